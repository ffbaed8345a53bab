// Package baseline persists the Job Run State: for each job, the snapshot
// that last triggered a notification. New captures are diffed against it.
package baseline

import (
	"time"

	"github.com/ernop/gpt-webdiff/internal/snapshot"
)

// Entry is the recorded state of one job.
type Entry struct {
	LastEmailed   string    `json:"last_emailed,omitempty"`    // Snapshot filename
	LastEmailedAt time.Time `json:"last_emailed_at,omitempty"` // Capture time of that snapshot
	UpdatedAt     time.Time `json:"updated_at,omitempty"`

	// LastSuccessfulTime is the unix time written by older versions of the
	// tool. It is read but never written.
	LastSuccessfulTime float64 `json:"last_successful_time,omitempty"`
}

// Ref returns the recorded snapshot reference for job, if any.
func (e Entry) Ref(job string) (snapshot.Ref, bool) {
	if e.LastEmailed == "" {
		return snapshot.Ref{}, false
	}
	ref, err := snapshot.ParseFilename(job, e.LastEmailed)
	if err != nil {
		return snapshot.Ref{}, false
	}
	return ref, true
}

// State maps job name to its entry.
type State map[string]Entry
