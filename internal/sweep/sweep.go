// Package sweep runs every due job once, one after another.
package sweep

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gofrs/flock"

	"github.com/ernop/gpt-webdiff/internal/logger"
	"github.com/ernop/gpt-webdiff/internal/registry"
	"github.com/ernop/gpt-webdiff/internal/runner"
	"github.com/ernop/gpt-webdiff/internal/snapshot"
	"github.com/ernop/gpt-webdiff/internal/summarize"
)

// ErrSweepInProgress is returned when another sweep holds the lock.
var ErrSweepInProgress = errors.New("another sweep is already running")

// Stats are the counters of one sweep.
type Stats struct {
	Total      int // Jobs in the registry
	Due        int // Jobs whose interval had elapsed
	Ran        int // Runs that completed without error
	Changes    int // Runs that found a non-empty diff
	EmailsSent int
	Failed     int
	Skipped    int // Jobs not yet due
}

// JobLister reads the registry.
type JobLister interface {
	Load() ([]registry.Job, error)
}

// JobRunner runs one job.
type JobRunner interface {
	Run(ctx context.Context, name string) (runner.Outcome, error)
}

// Sweeper checks every job against its frequency and runs the due ones.
type Sweeper struct {
	Jobs      JobLister
	Snapshots *snapshot.Store
	Runner    JobRunner
	LockPath  string // Empty disables locking
	Now       func() time.Time

	log logger.Logger
}

// New creates a Sweeper.
func New(jobs JobLister, snaps *snapshot.Store, r JobRunner, lockPath string, log logger.Logger) *Sweeper {
	if log == nil {
		log = logger.NewNop()
	}
	return &Sweeper{
		Jobs:      jobs,
		Snapshots: snaps,
		Runner:    r,
		LockPath:  lockPath,
		Now:       time.Now,
		log:       log,
	}
}

// NextDue returns when job should next run: its latest capture plus its
// interval, or the epoch when it has never been captured.
func (s *Sweeper) NextDue(job registry.Job) (time.Time, error) {
	latest, ok, err := s.Snapshots.Latest(job.Name)
	if err != nil {
		return time.Time{}, err
	}
	last := time.Unix(0, 0)
	if ok {
		last = latest.CapturedAt
	}
	return last.Add(job.Frequency.Interval()), nil
}

// CheckCron runs every due job, or every job when force is set. A job's
// failure is logged and counted without stopping the sweep; only a fatal
// parse failure or a canceled context ends it early.
func (s *Sweeper) CheckCron(ctx context.Context, force bool) (Stats, error) {
	var stats Stats

	unlock, err := s.lock()
	if err != nil {
		return stats, err
	}
	defer unlock()

	jobs, err := s.Jobs.Load()
	if err != nil {
		return stats, err
	}
	stats.Total = len(jobs)
	start := s.Now()

	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		log := s.log.With(logger.String("job", job.Name))

		due, err := s.NextDue(job)
		if err != nil {
			log.Error("Could not determine next due time", logger.Error(err))
			stats.Failed++
			continue
		}
		now := s.Now()
		if !force && now.Before(due) {
			stats.Skipped++
			log.Debug("Not due yet", logger.Duration("wait", due.Sub(now).Truncate(time.Second)))
			continue
		}
		stats.Due++

		out, err := s.Runner.Run(ctx, job.Name)
		if err != nil {
			stats.Failed++
			log.Error("Job run failed", logger.Error(err))
			if errors.Is(err, summarize.ErrFatalParse) {
				s.logStats(stats, start)
				return stats, err
			}
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			continue
		}

		stats.Ran++
		if out.Status == runner.StatusNotified || out.Status == runner.StatusBelowThreshold {
			if !out.Baseline.IsZero() {
				stats.Changes++
			}
		}
		if out.Notified {
			stats.EmailsSent++
		}
	}

	s.logStats(stats, start)
	return stats, nil
}

func (s *Sweeper) logStats(stats Stats, start time.Time) {
	s.log.Info("Sweep finished",
		logger.Int("total", stats.Total),
		logger.Int("due", stats.Due),
		logger.Int("ran", stats.Ran),
		logger.Int("changes", stats.Changes),
		logger.Int("emails_sent", stats.EmailsSent),
		logger.Int("failed", stats.Failed),
		logger.Int("skipped", stats.Skipped),
		logger.Duration("elapsed", s.Now().Sub(start)),
	)
}

// lock takes the sweep lock file without waiting.
func (s *Sweeper) lock() (func(), error) {
	if s.LockPath == "" {
		return func() {}, nil
	}
	if err := os.MkdirAll(filepath.Dir(s.LockPath), 0755); err != nil {
		return nil, errors.Wrap(err, "create lock directory")
	}

	fl := flock.New(s.LockPath)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, errors.Wrapf(err, "lock %s", s.LockPath)
	}
	if !locked {
		return nil, errors.Wrapf(ErrSweepInProgress, "lock %s is held", s.LockPath)
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			s.log.Warn("Could not release sweep lock", logger.Error(err))
		}
	}, nil
}
