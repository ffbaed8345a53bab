// Package snapshot stores immutable, timestamped page captures per job.
// Captures live at <dir>/<job>/<job>-YYYYMMDD-HH-MM-SS.html, so lexical
// filename order is chronological order.
package snapshot

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// StampLayout is the capture-time part of a snapshot filename.
const StampLayout = "20060102-15-04-05"

const extension = ".html"

// Ref identifies a snapshot by job name and capture time.
type Ref struct {
	JobName    string    `json:"jobName"`
	CapturedAt time.Time `json:"capturedAt"`
}

// Filename returns the on-disk name for the snapshot.
func (r Ref) Filename() string {
	return r.JobName + "-" + r.CapturedAt.Format(StampLayout) + extension
}

// IsZero reports whether r is unset.
func (r Ref) IsZero() bool {
	return r.JobName == "" && r.CapturedAt.IsZero()
}

// ParseFilename recovers a Ref from a snapshot filename belonging to job.
func ParseFilename(job, filename string) (Ref, error) {
	prefix := job + "-"
	if !strings.HasPrefix(filename, prefix) || !strings.HasSuffix(filename, extension) {
		return Ref{}, fmt.Errorf("%q is not a snapshot of %q", filename, job)
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(filename, prefix), extension)
	t, err := time.ParseInLocation(StampLayout, stamp, time.Local)
	if err != nil {
		return Ref{}, fmt.Errorf("%q has a bad timestamp: %w", filename, err)
	}
	return Ref{JobName: job, CapturedAt: t}, nil
}

// Snapshot is a loaded capture.
type Snapshot struct {
	Ref
	Content []byte
}

// Fetcher retrieves the raw bytes at a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}
