// Package registry stores monitored jobs in a line-oriented flat file.
//
// Each job line has the form
//
//	<frequency> <name> <url> <created_at:YYYYMMDDHHMMSS>
//
// Blank lines and lines starting with '#' are kept but otherwise ignored.
package registry

import (
	"fmt"
	"strings"
	"time"

	"github.com/ernop/gpt-webdiff/internal/validator"
)

// Frequency is how often a job is checked.
type Frequency string

const (
	Minutely Frequency = "minutely"
	Hourly   Frequency = "hourly"
	Daily    Frequency = "daily"
	Weekly   Frequency = "weekly"
	Monthly  Frequency = "monthly"
)

// DefaultFrequency applies when add is called without a frequency.
const DefaultFrequency = Weekly

// Frequencies is the fixed ordering used by frequency changes, fastest first.
var Frequencies = []Frequency{Minutely, Hourly, Daily, Weekly, Monthly}

// Minutely is 59s rather than 60s so a timer firing every minute never skips a run.
var intervals = map[Frequency]time.Duration{
	Minutely: 59 * time.Second,
	Hourly:   3600 * time.Second,
	Daily:    86400 * time.Second,
	Weekly:   604800 * time.Second,
	Monthly:  2592000 * time.Second,
}

// FrequencyNames returns the valid frequency strings in order.
func FrequencyNames() []string {
	names := make([]string, len(Frequencies))
	for i, f := range Frequencies {
		names[i] = string(f)
	}
	return names
}

// ParseFrequency validates s against the fixed enum.
func ParseFrequency(s string) (Frequency, error) {
	if verr := validator.ValidateEnum("frequency", s, FrequencyNames()); verr != nil {
		return "", verr
	}
	return Frequency(s), nil
}

// Interval returns the time between two checks.
func (f Frequency) Interval() time.Duration {
	return intervals[f]
}

func (f Frequency) index() int {
	for i, v := range Frequencies {
		if v == f {
			return i
		}
	}
	return -1
}

// Direction is a frequency change direction.
type Direction int

const (
	// Increase moves one step toward minutely.
	Increase Direction = iota
	// Decrease moves one step toward monthly.
	Decrease
)

func (d Direction) String() string {
	if d == Increase {
		return "increase"
	}
	return "decrease"
}

// Step returns the neighbouring frequency in direction d.
// ok is false when f is already at that end of the ordering.
func (f Frequency) Step(d Direction) (next Frequency, ok bool) {
	i := f.index()
	if i < 0 {
		return f, false
	}
	if d == Increase {
		i--
	} else {
		i++
	}
	if i < 0 || i >= len(Frequencies) {
		return f, false
	}
	return Frequencies[i], true
}

// TimestampLayout is the created_at format on disk.
const TimestampLayout = "20060102150405"

// zeroStamp stands in for a missing created_at.
const zeroStamp = "00000000000000"

// Job is a registered monitoring target.
type Job struct {
	Name      string
	URL       string
	Frequency Frequency
	CreatedAt time.Time // zero when the line had no timestamp
}

// Stamp returns CreatedAt in TimestampLayout, or all zeros when unset.
func (j Job) Stamp() string {
	if j.CreatedAt.IsZero() {
		return zeroStamp
	}
	return j.CreatedAt.Format(TimestampLayout)
}

// Line renders the job as a registry line without the trailing newline.
func (j Job) Line() string {
	return fmt.Sprintf("%s %s %s %s", j.Frequency, j.Name, j.URL, j.Stamp())
}

// parseLine parses a single registry line. Comment and blank lines
// return ok=false with a nil error.
func parseLine(line string) (job Job, ok bool, err error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return Job{}, false, nil
	}

	parts := strings.Fields(trimmed)
	if len(parts) < 3 {
		return Job{}, false, fmt.Errorf("expected at least 3 fields, got %d", len(parts))
	}

	freq, err := ParseFrequency(parts[0])
	if err != nil {
		return Job{}, false, err
	}

	job = Job{Frequency: freq, Name: parts[1], URL: parts[2]}
	if len(parts) > 3 && parts[3] != zeroStamp {
		created, perr := time.ParseInLocation(TimestampLayout, parts[3], time.Local)
		if perr != nil {
			return Job{}, false, fmt.Errorf("bad created_at %q", parts[3])
		}
		job.CreatedAt = created
	}

	return job, true, nil
}
