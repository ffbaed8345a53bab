// Package artifact keeps raw oracle replies on disk for offline debugging.
//
// Files are named
//
//	<job>_<YYYYMMDDHHMMSS>_<md5(url)>_parsed_{okay|bad}.json
//
// where the timestamp is the capture time of the snapshot the reply was
// produced for.
package artifact

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Outcome tags whether a reply parsed.
type Outcome string

const (
	Okay Outcome = "okay"
	Bad  Outcome = "bad"
)

// StampLayout is the timestamp format inside artifact filenames.
const StampLayout = "20060102150405"

// Key identifies the run a reply belongs to.
type Key struct {
	JobName    string
	CapturedAt time.Time
	URL        string
}

// URLHash returns the hex md5 digest of url.
func URLHash(url string) string {
	sum := md5.Sum([]byte(url))
	return hex.EncodeToString(sum[:])
}

// Filename returns the artifact filename for key and outcome.
func (k Key) Filename(outcome Outcome) string {
	return fmt.Sprintf("%s_%s_%s_parsed_%s.json",
		k.JobName, k.CapturedAt.Format(StampLayout), URLHash(k.URL), outcome)
}

// Record describes an artifact found on disk.
type Record struct {
	Path     string
	JobName  string
	Stamp    string
	URLHash  string
	Outcome  Outcome
	Captured time.Time
}

// ParseFilename splits an artifact filename into its parts.
func ParseFilename(name string) (Record, error) {
	base := strings.TrimSuffix(name, ".json")
	if base == name {
		return Record{}, fmt.Errorf("%q is not an artifact file", name)
	}
	parts := strings.Split(base, "_")
	if len(parts) != 5 || parts[3] != "parsed" {
		return Record{}, fmt.Errorf("%q is not an artifact file", name)
	}
	outcome := Outcome(parts[4])
	if outcome != Okay && outcome != Bad {
		return Record{}, fmt.Errorf("%q has unknown outcome %q", name, parts[4])
	}
	captured, err := time.ParseInLocation(StampLayout, parts[1], time.Local)
	if err != nil {
		return Record{}, fmt.Errorf("%q has a bad timestamp: %w", name, err)
	}
	return Record{
		JobName:  parts[0],
		Stamp:    parts[1],
		URLHash:  parts[2],
		Outcome:  outcome,
		Captured: captured,
	}, nil
}
