package sweep

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ernop/gpt-webdiff/internal/registry"
	"github.com/ernop/gpt-webdiff/internal/runner"
	"github.com/ernop/gpt-webdiff/internal/snapshot"
	"github.com/ernop/gpt-webdiff/internal/summarize"
)

var now = time.Date(2024, 5, 17, 12, 0, 0, 0, time.Local)

type jobList struct {
	mu    sync.Mutex
	jobs  []registry.Job
	loads int
}

func (l *jobList) Load() ([]registry.Job, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loads++
	return l.jobs, nil
}

func (l *jobList) loadCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loads
}

type scriptedRunner struct {
	outcomes map[string]runner.Outcome
	errs     map[string]error
	ran      []string
}

func (r *scriptedRunner) Run(ctx context.Context, name string) (runner.Outcome, error) {
	r.ran = append(r.ran, name)
	if err := r.errs[name]; err != nil {
		return runner.Outcome{JobName: name, Status: runner.StatusFailed}, err
	}
	out, ok := r.outcomes[name]
	if !ok {
		out = runner.Outcome{JobName: name, Status: runner.StatusNoChange}
	}
	return out, nil
}

func newSweeper(t *testing.T, jobs []registry.Job, r *scriptedRunner) (*Sweeper, *snapshot.Store) {
	t.Helper()
	dir := t.TempDir()
	snaps := snapshot.NewStore(filepath.Join(dir, "data"))
	s := New(&jobList{jobs: jobs}, snaps, r, filepath.Join(dir, ".gptcron.lock"), nil)
	s.Now = func() time.Time { return now }
	return s, snaps
}

func capture(t *testing.T, snaps *snapshot.Store, job string, at time.Time) {
	t.Helper()
	require.NoError(t, snaps.Save(snapshot.Ref{JobName: job, CapturedAt: at}, []byte("<p>x</p>")))
}

func TestCheckCron_RunsOnlyDueJobs(t *testing.T) {
	jobs := []registry.Job{
		{Name: "fresh-daily", Frequency: registry.Daily},
		{Name: "stale-hourly", Frequency: registry.Hourly},
		{Name: "never-captured", Frequency: registry.Monthly},
		{Name: "exactly-due", Frequency: registry.Minutely},
	}
	r := &scriptedRunner{}
	s, snaps := newSweeper(t, jobs, r)

	capture(t, snaps, "fresh-daily", now.Add(-2*time.Hour))
	capture(t, snaps, "stale-hourly", now.Add(-2*time.Hour))
	capture(t, snaps, "exactly-due", now.Add(-59*time.Second))

	stats, err := s.CheckCron(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, []string{"stale-hourly", "never-captured", "exactly-due"}, r.ran)
	assert.Equal(t, Stats{Total: 4, Due: 3, Ran: 3, Skipped: 1}, stats)
}

func TestCheckCron_ForceRunsEverything(t *testing.T) {
	jobs := []registry.Job{
		{Name: "a", Frequency: registry.Monthly},
		{Name: "b", Frequency: registry.Monthly},
	}
	r := &scriptedRunner{}
	s, snaps := newSweeper(t, jobs, r)
	capture(t, snaps, "a", now.Add(-time.Minute))
	capture(t, snaps, "b", now.Add(-time.Minute))

	stats, err := s.CheckCron(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, r.ran)
	assert.Equal(t, 2, stats.Due)
}

func TestCheckCron_IsolatesFailuresAndCounts(t *testing.T) {
	jobs := []registry.Job{
		{Name: "broken", Frequency: registry.Daily},
		{Name: "changed", Frequency: registry.Daily},
		{Name: "quiet", Frequency: registry.Daily},
		{Name: "new", Frequency: registry.Daily},
	}
	prev := snapshot.Ref{JobName: "changed", CapturedAt: now.Add(-48 * time.Hour)}
	r := &scriptedRunner{
		errs: map[string]error{"broken": errors.New("fetch failed")},
		outcomes: map[string]runner.Outcome{
			"changed": {Status: runner.StatusNotified, Notified: true, Baseline: prev},
			"quiet":   {Status: runner.StatusBelowThreshold, Baseline: prev},
			"new":     {Status: runner.StatusNotified, Notified: true},
		},
	}
	s, _ := newSweeper(t, jobs, r)

	stats, err := s.CheckCron(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"broken", "changed", "quiet", "new"}, r.ran)
	assert.Equal(t, Stats{Total: 4, Due: 4, Ran: 3, Changes: 2, EmailsSent: 2, Failed: 1}, stats)
}

func TestCheckCron_FatalParseStops(t *testing.T) {
	jobs := []registry.Job{
		{Name: "first", Frequency: registry.Daily},
		{Name: "second", Frequency: registry.Daily},
	}
	r := &scriptedRunner{errs: map[string]error{
		"first": errors.Mark(errors.Wrap(summarize.ErrParse, "bad reply"), summarize.ErrFatalParse),
	}}
	s, _ := newSweeper(t, jobs, r)

	_, err := s.CheckCron(context.Background(), false)
	assert.True(t, errors.Is(err, summarize.ErrFatalParse))
	assert.Equal(t, []string{"first"}, r.ran)
}

func TestCheckCron_LockHeld(t *testing.T) {
	r := &scriptedRunner{}
	s, _ := newSweeper(t, []registry.Job{{Name: "a", Frequency: registry.Daily}}, r)

	other := flock.New(s.LockPath)
	locked, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, locked)

	_, err = s.CheckCron(context.Background(), false)
	assert.True(t, errors.Is(err, ErrSweepInProgress))
	assert.Empty(t, r.ran)

	require.NoError(t, other.Unlock())
	_, err = s.CheckCron(context.Background(), false)
	assert.NoError(t, err)
	assert.Equal(t, []string{"a"}, r.ran)
}

func TestCheckCron_CanceledContext(t *testing.T) {
	r := &scriptedRunner{}
	s, _ := newSweeper(t, []registry.Job{{Name: "a", Frequency: registry.Daily}}, r)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.CheckCron(ctx, false)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, r.ran)
}

func TestNextDue(t *testing.T) {
	s, snaps := newSweeper(t, nil, &scriptedRunner{})

	due, err := s.NextDue(registry.Job{Name: "none", Frequency: registry.Weekly})
	require.NoError(t, err)
	assert.Equal(t, time.Unix(0, 0).Add(604800*time.Second), due)

	at := now.Add(-time.Hour)
	capture(t, snaps, "some", at)
	due, err = s.NextDue(registry.Job{Name: "some", Frequency: registry.Daily})
	require.NoError(t, err)
	assert.True(t, due.Equal(at.Add(24*time.Hour)))
}

func TestWatch(t *testing.T) {
	jobs := &jobList{}
	s := New(jobs, snapshot.NewStore(t.TempDir()), &scriptedRunner{}, "", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2500*time.Millisecond)
	defer cancel()
	require.NoError(t, s.Watch(ctx, "@every 1s"))
	assert.GreaterOrEqual(t, jobs.loadCount(), 1)
}

func TestWatch_BadSchedule(t *testing.T) {
	s := New(&jobList{}, snapshot.NewStore(t.TempDir()), &scriptedRunner{}, "", nil)
	err := s.Watch(context.Background(), "every so often")
	assert.Error(t, err)
}
