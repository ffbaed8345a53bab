package artifact

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/cockroachdb/errors"

	"github.com/ernop/gpt-webdiff/internal/fsutil"
)

// ErrNoArtifact is returned when a job has no matching artifact.
var ErrNoArtifact = errors.New("no artifact found")

// Store reads and writes artifact files in one directory.
type Store struct {
	Dir string
}

// NewStore creates a store with the given directory.
func NewStore(dir string) *Store {
	return &Store{Dir: dir}
}

// Write stores raw under key and outcome and returns the file path.
func (s *Store) Write(key Key, outcome Outcome, raw string) (string, error) {
	path := filepath.Join(s.Dir, key.Filename(outcome))
	if err := fsutil.WriteFile(path, []byte(raw), 0644); err != nil {
		return "", errors.Wrap(err, "write oracle artifact")
	}
	return path, nil
}

// Read returns the contents of an artifact.
func (s *Store) Read(rec Record) (string, error) {
	data, err := os.ReadFile(rec.Path)
	if err != nil {
		return "", errors.Wrapf(err, "read artifact %s", rec.Path)
	}
	return string(data), nil
}

// List returns the artifacts of job, oldest first.
func (s *Store) List(job string) ([]Record, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Record{}, nil
		}
		return nil, errors.Wrap(err, "list artifacts")
	}

	var records []Record
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		rec, err := ParseFilename(entry.Name())
		if err != nil || rec.JobName != job {
			continue
		}
		rec.Path = filepath.Join(s.Dir, entry.Name())
		records = append(records, rec)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Stamp < records[j].Stamp
	})
	return records, nil
}

// Latest returns the newest artifact of job with the given outcome.
func (s *Store) Latest(job string, outcome Outcome) (Record, error) {
	records, err := s.List(job)
	if err != nil {
		return Record{}, err
	}
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].Outcome == outcome {
			return records[i], nil
		}
	}
	return Record{}, errors.Wrapf(ErrNoArtifact, "%s artifact for %q", outcome, job)
}
