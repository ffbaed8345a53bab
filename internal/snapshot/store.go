package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/ernop/gpt-webdiff/internal/fsutil"
)

var (
	// ErrSnapshotNotFound is returned when a snapshot doesn't exist.
	ErrSnapshotNotFound = errors.New("snapshot not found")
	// ErrSnapshotExists is returned when a capture would overwrite an existing snapshot.
	ErrSnapshotExists = errors.New("snapshot already exists")
)

// Store manages snapshot persistence.
type Store struct {
	Dir string           // Base directory for snapshots (one subdirectory per job)
	Now func() time.Time // Clock used to stamp captures
}

// NewStore creates a store with the given directory.
func NewStore(dir string) *Store {
	return &Store{Dir: dir, Now: time.Now}
}

// JobDir returns the directory holding a job's snapshots.
func (s *Store) JobDir(job string) string {
	return filepath.Join(s.Dir, job)
}

// Path returns the file path for a snapshot.
func (s *Store) Path(ref Ref) string {
	return filepath.Join(s.JobDir(ref.JobName), ref.Filename())
}

// Capture fetches url and stores the body as a new snapshot of job.
// The body is held in memory until the fetch succeeds, so a failed fetch
// leaves no file behind.
func (s *Store) Capture(ctx context.Context, job, url string, f Fetcher) (Snapshot, error) {
	body, err := f.Fetch(ctx, url)
	if err != nil {
		return Snapshot{}, errors.Wrapf(err, "fetch %s", url)
	}

	ref := Ref{JobName: job, CapturedAt: s.Now().Truncate(time.Second)}
	if err := s.Save(ref, body); err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Ref: ref, Content: body}, nil
}

// Save writes content under ref. Snapshots are immutable: an existing
// file with the same name yields ErrSnapshotExists.
func (s *Store) Save(ref Ref, content []byte) error {
	err := fsutil.WriteNew(s.Path(ref), content, 0644)
	if err != nil {
		if os.IsExist(err) {
			return errors.Wrapf(ErrSnapshotExists, "%s", ref.Filename())
		}
		return errors.Wrapf(err, "save snapshot %s", ref.Filename())
	}
	return nil
}

// Load reads the snapshot identified by ref.
func (s *Store) Load(ref Ref) (Snapshot, error) {
	data, err := os.ReadFile(s.Path(ref))
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{}, errors.Wrapf(ErrSnapshotNotFound, "%s", ref.Filename())
		}
		return Snapshot{}, errors.Wrapf(err, "load snapshot %s", ref.Filename())
	}
	return Snapshot{Ref: ref, Content: data}, nil
}

// Exists checks if a snapshot exists.
func (s *Store) Exists(ref Ref) bool {
	_, err := os.Stat(s.Path(ref))
	return err == nil
}

// List returns a job's snapshots in ascending capture order.
// Files that don't follow the naming convention are ignored.
func (s *Store) List(job string) ([]Ref, error) {
	entries, err := os.ReadDir(s.JobDir(job))
	if err != nil {
		if os.IsNotExist(err) {
			return []Ref{}, nil
		}
		return nil, errors.Wrapf(err, "list snapshots of %s", job)
	}

	refs := make([]Ref, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		ref, err := ParseFilename(job, entry.Name())
		if err != nil {
			continue // Skip foreign files
		}
		refs = append(refs, ref)
	}

	sort.Slice(refs, func(i, j int) bool {
		return refs[i].CapturedAt.Before(refs[j].CapturedAt)
	})
	return refs, nil
}

// Count returns how many snapshots a job has.
func (s *Store) Count(job string) (int, error) {
	refs, err := s.List(job)
	return len(refs), err
}

// LastN returns up to n most recent snapshots, newest first.
func (s *Store) LastN(job string, n int) ([]Ref, error) {
	refs, err := s.List(job)
	if err != nil {
		return nil, err
	}
	if n > len(refs) {
		n = len(refs)
	}
	if n < 0 {
		n = 0
	}
	out := make([]Ref, 0, n)
	for i := len(refs) - 1; i >= len(refs)-n; i-- {
		out = append(out, refs[i])
	}
	return out, nil
}

// Latest returns the newest snapshot of job. ok is false when there is none.
func (s *Store) Latest(job string) (ref Ref, ok bool, err error) {
	refs, err := s.LastN(job, 1)
	if err != nil || len(refs) == 0 {
		return Ref{}, false, err
	}
	return refs[0], true, nil
}

// FirstAfter returns the oldest snapshot captured strictly after t.
func (s *Store) FirstAfter(job string, t time.Time) (ref Ref, ok bool, err error) {
	refs, err := s.List(job)
	if err != nil {
		return Ref{}, false, err
	}
	for _, r := range refs {
		if r.CapturedAt.After(t) {
			return r, true, nil
		}
	}
	return Ref{}, false, nil
}

// BaselineForRun returns the snapshot a new capture is compared with:
// recorded when it is set and still on disk, otherwise the oldest
// retained snapshot.
func (s *Store) BaselineForRun(job string, recorded *Ref) (Ref, error) {
	if recorded != nil && !recorded.IsZero() && s.Exists(*recorded) {
		return *recorded, nil
	}

	refs, err := s.List(job)
	if err != nil {
		return Ref{}, err
	}
	if len(refs) == 0 {
		return Ref{}, errors.Wrapf(ErrSnapshotNotFound, "no snapshots for %s", job)
	}
	return refs[0], nil
}
