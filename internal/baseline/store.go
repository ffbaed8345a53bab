package baseline

import (
	"encoding/json"
	"math"
	"os"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/ernop/gpt-webdiff/internal/fsutil"
	"github.com/ernop/gpt-webdiff/internal/snapshot"
)

// Store manages the state file. Every update loads the whole file and
// rewrites it whole.
type Store struct {
	Path string
	Now  func() time.Time
}

// NewStore creates a store backed by the JSON file at path.
func NewStore(path string) *Store {
	return &Store{Path: path, Now: time.Now}
}

// Load reads the whole state. A missing file is an empty state.
func (s *Store) Load() (State, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, nil
		}
		return nil, errors.Wrap(err, "read job state")
	}

	state := State{}
	if len(data) == 0 {
		return state, nil
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, errors.Wrapf(err, "parse job state %s", s.Path)
	}
	// A file holding JSON null decodes to a nil map
	if state == nil {
		state = State{}
	}
	return state, nil
}

// Get returns the entry for job.
func (s *Store) Get(job string) (Entry, bool, error) {
	state, err := s.Load()
	if err != nil {
		return Entry{}, false, err
	}
	e, ok := state[job]
	return e, ok, nil
}

// Record marks ref as the last emailed snapshot of its job.
func (s *Store) Record(ref snapshot.Ref) error {
	state, err := s.Load()
	if err != nil {
		return err
	}
	state[ref.JobName] = Entry{
		LastEmailed:   ref.Filename(),
		LastEmailedAt: ref.CapturedAt,
		UpdatedAt:     s.Now().UTC().Truncate(time.Second),
	}
	return s.save(state)
}

// Forget drops the entry for job. Missing jobs are ignored.
func (s *Store) Forget(job string) error {
	state, err := s.Load()
	if err != nil {
		return err
	}
	if _, ok := state[job]; !ok {
		return nil
	}
	delete(state, job)
	return s.save(state)
}

func (s *Store) save(state State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode job state")
	}
	return fsutil.WriteFile(s.Path, append(data, '\n'), 0644)
}

// Recorded resolves the baseline snapshot recorded for job. Entries from
// older versions carry only a unix time and resolve to the first snapshot
// captured after it. The result is nil when nothing usable is recorded.
func (s *Store) Recorded(job string, snaps *snapshot.Store) (*snapshot.Ref, error) {
	e, ok, err := s.Get(job)
	if err != nil || !ok {
		return nil, err
	}

	if ref, ok := e.Ref(job); ok {
		return &ref, nil
	}

	if e.LastSuccessfulTime > 0 {
		sec, frac := math.Modf(e.LastSuccessfulTime)
		t := time.Unix(int64(sec), int64(frac*1e9))
		ref, found, err := snaps.FirstAfter(job, t)
		if err != nil {
			return nil, err
		}
		if found {
			return &ref, nil
		}
	}
	return nil, nil
}
