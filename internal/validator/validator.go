// Package validator checks user-supplied job fields before any registry mutation.
package validator

import (
	"net"
	"net/url"
	"regexp"
	"strings"
)

// ValidationError represents a single validation failure.
type ValidationError struct {
	Field   string   // The input being checked (e.g., "url", "name")
	Message string   // Human-readable error message
	Value   string   // The invalid value (if present)
	Allowed []string // For enum errors, the allowed values
}

func (e *ValidationError) Error() string {
	return FormatError(*e)
}

// SupportedSchemes lists URL schemes a job may target.
var SupportedSchemes = []string{"http", "https", "ftp", "ftps"}

var (
	namePattern  = regexp.MustCompile(`^[a-zA-Z0-9-]+$`)
	labelPattern = regexp.MustCompile(`^[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?$`)
	tldPattern   = regexp.MustCompile(`^(?:[a-zA-Z]{2,6}|[a-zA-Z0-9-]{2,})$`)
	ipv4Pattern  = regexp.MustCompile(`^\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}$`)
)

// NormalizeURL prefixes "http://" when raw carries no scheme.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		return "http://" + raw
	}
	return raw
}

// ValidateName checks that name is alphanumeric plus hyphen.
func ValidateName(name string) *ValidationError {
	if !namePattern.MatchString(name) {
		return &ValidationError{
			Field:   "name",
			Value:   name,
			Message: "must contain only letters, digits and '-'",
		}
	}
	return nil
}

// ValidateURL checks that raw is a well-formed URL with a supported scheme
// and a host that is a dotted DNS name, localhost, IPv4 or bracketed IPv6.
func ValidateURL(raw string) *ValidationError {
	invalid := func(msg string) *ValidationError {
		return &ValidationError{Field: "url", Value: raw, Message: msg}
	}

	if strings.ContainsAny(raw, " \t\r\n") {
		return invalid("must not contain whitespace")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return invalid("is not a well-formed URL")
	}

	scheme := strings.ToLower(u.Scheme)
	if !isAllowed(scheme, SupportedSchemes) {
		return &ValidationError{
			Field:   "url scheme",
			Value:   u.Scheme,
			Allowed: SupportedSchemes,
		}
	}

	if u.Host == "" {
		return invalid("has no host")
	}

	if port := u.Port(); port != "" && !isDigits(port) {
		return invalid("has an invalid port")
	}

	if !validHost(u.Hostname(), strings.HasPrefix(u.Host, "[")) {
		return invalid("has an invalid host")
	}

	return nil
}

func validHost(host string, bracketed bool) bool {
	if bracketed {
		ip := net.ParseIP(host)
		return ip != nil && strings.Contains(host, ":")
	}

	if strings.EqualFold(host, "localhost") {
		return true
	}

	if ipv4Pattern.MatchString(host) {
		return true
	}

	labels := strings.Split(strings.TrimSuffix(host, "."), ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels[:len(labels)-1] {
		if !labelPattern.MatchString(label) {
			return false
		}
	}
	return tldPattern.MatchString(labels[len(labels)-1])
}

// ValidateEnum checks value against allowed, reporting field on failure.
func ValidateEnum(field, value string, allowed []string) *ValidationError {
	if isAllowed(value, allowed) {
		return nil
	}
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: "invalid value",
		Allowed: allowed,
	}
}

func isAllowed(value string, allowed []string) bool {
	for _, v := range allowed {
		if v == value {
			return true
		}
	}
	return false
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
