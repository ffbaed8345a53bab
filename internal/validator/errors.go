package validator

import (
	"fmt"
	"strings"
)

// FormatError formats a ValidationError into a human-readable error message.
func FormatError(err ValidationError) string {
	// Enum errors list the accepted values
	if len(err.Allowed) > 0 {
		return fmt.Sprintf("%s: '%s' is not valid, must be one of: %s",
			err.Field, err.Value, strings.Join(err.Allowed, ", "))
	}

	if err.Value == "" {
		return fmt.Sprintf("%s: %s", err.Field, err.Message)
	}

	return fmt.Sprintf("%s: '%s' %s", err.Field, err.Value, err.Message)
}
