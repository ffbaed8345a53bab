// Package runner performs one pass of one job: capture, compare with the
// last emailed snapshot, summarize, and notify when the change matters.
package runner

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/ernop/gpt-webdiff/internal/baseline"
	"github.com/ernop/gpt-webdiff/internal/drift"
	"github.com/ernop/gpt-webdiff/internal/logger"
	"github.com/ernop/gpt-webdiff/internal/notify"
	"github.com/ernop/gpt-webdiff/internal/registry"
	"github.com/ernop/gpt-webdiff/internal/snapshot"
	"github.com/ernop/gpt-webdiff/internal/summarize"
)

// DefaultThreshold is the lowest score that triggers a change email.
const DefaultThreshold = 5

// State is a step of a run.
type State string

const (
	StateFetching       State = "fetching"
	StateNoBaseline     State = "no_baseline"
	StateHasBaseline    State = "has_baseline"
	StateDiffing        State = "diffing"
	StateNoChange       State = "no_change"
	StateSummarizing    State = "summarizing"
	StateBelowThreshold State = "below_threshold"
	StateNotifying      State = "notifying"
	StateDone           State = "done"
)

// Status is how a run ended.
type Status string

const (
	StatusNotified       Status = "notified"
	StatusNoChange       Status = "no_change"
	StatusBelowThreshold Status = "below_threshold"
	StatusEmptyPage      Status = "empty_page"
	StatusFailed         Status = "failed"
)

// Outcome reports a finished run.
type Outcome struct {
	RunID    string
	JobName  string
	Status   Status
	Notified bool
	Score    int
	Snapshot snapshot.Ref // The capture taken by this run
	Baseline snapshot.Ref // What it was compared with, zero on a first run
	Stats    drift.Stats
}

// Jobs looks up registry entries.
type Jobs interface {
	Get(name string) (registry.Job, error)
}

// Summarizer produces oracle summaries.
type Summarizer interface {
	SummarizeChange(ctx context.Context, req summarize.ChangeRequest) (summarize.Summary, error)
	SummarizeNewPage(ctx context.Context, req summarize.PageRequest) (summarize.Summary, error)
}

// Deps are the collaborators of a Runner.
type Deps struct {
	Jobs       Jobs
	Snapshots  *snapshot.Store
	State      *baseline.Store
	Fetcher    snapshot.Fetcher
	Detector   *drift.Detector
	Summarizer Summarizer
	Renderer   *notify.Renderer
	Sender     notify.Sender
}

// Runner executes job runs.
type Runner struct {
	Deps
	Threshold int

	log      logger.Logger
	newRunID func() string
}

// New creates a Runner. A negative threshold selects DefaultThreshold.
func New(deps Deps, threshold int, log logger.Logger) *Runner {
	if log == nil {
		log = logger.NewNop()
	}
	if threshold < 0 {
		threshold = DefaultThreshold
	}
	return &Runner{
		Deps:      deps,
		Threshold: threshold,
		log:       log,
		newRunID:  uuid.NewString,
	}
}

// Run performs one pass of the named job. Job state only moves when an
// email has been sent, or when a first capture has no text at all. A
// capture with text following a textless baseline takes the first-run path.
func (r *Runner) Run(ctx context.Context, name string) (Outcome, error) {
	job, err := r.Jobs.Get(name)
	if err != nil {
		return Outcome{JobName: name, Status: StatusFailed}, err
	}

	out := Outcome{RunID: r.newRunID(), JobName: job.Name, Status: StatusFailed}
	log := r.log.With(
		logger.String("run_id", out.RunID),
		logger.String("job", job.Name),
	)
	start := time.Now()
	step := func(s State) { log.Debug("Run state", logger.String("state", string(s))) }

	step(StateFetching)
	snap, err := r.Snapshots.Capture(ctx, job.Name, job.URL, r.Fetcher)
	if err != nil {
		log.Error("Capture failed", logger.Error(err))
		return out, err
	}
	out.Snapshot = snap.Ref

	count, err := r.Snapshots.Count(job.Name)
	if err != nil {
		return out, err
	}

	if count < 2 {
		step(StateNoBaseline)
		err = r.firstRun(ctx, log, job, snap, &out)
	} else {
		step(StateHasBaseline)
		err = r.compareRun(ctx, log, step, job, snap, &out)
	}
	if err != nil {
		log.Error("Run failed", logger.Error(err))
		out.Status = StatusFailed
		out.Notified = false
		return out, err
	}

	step(StateDone)
	log.Info("Run finished",
		logger.String("status", string(out.Status)),
		logger.Bool("notified", out.Notified),
		logger.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}

// firstRun summarizes the whole page and always notifies on success.
func (r *Runner) firstRun(ctx context.Context, log logger.Logger, job registry.Job, snap snapshot.Snapshot, out *Outcome) error {
	text, err := r.Detector.Text(snap.Content)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		log.Warn("First capture has no text, recording it as baseline without a summary")
		if err := r.State.Record(snap.Ref); err != nil {
			return err
		}
		out.Status = StatusEmptyPage
		return nil
	}

	summary, err := r.Summarizer.SummarizeNewPage(ctx, summarize.PageRequest{
		JobName:    job.Name,
		URL:        job.URL,
		CapturedAt: snap.CapturedAt,
		Text:       text,
	})
	if err != nil {
		return errors.Wrap(err, "summarize new page")
	}
	out.Score = summary.Score

	msg, err := r.Renderer.RenderNewPage(notify.PageEmail{
		JobName:      job.Name,
		URL:          job.URL,
		Summary:      summary.Summary,
		BriefSummary: summary.BriefSummary,
		Current:      snap.Ref,
	})
	if err != nil {
		return err
	}
	if err := r.notify(ctx, msg, snap.Ref); err != nil {
		return err
	}
	out.Status = StatusNotified
	out.Notified = true
	return nil
}

func (r *Runner) compareRun(ctx context.Context, log logger.Logger, step func(State), job registry.Job, snap snapshot.Snapshot, out *Outcome) error {
	recorded, err := r.State.Recorded(job.Name, r.Snapshots)
	if err != nil {
		return err
	}
	base, err := r.Snapshots.BaselineForRun(job.Name, recorded)
	if err != nil {
		return err
	}
	out.Baseline = base

	older, err := r.Snapshots.Load(base)
	if err != nil {
		return err
	}

	// A baseline without text was recorded by an empty first run. Once the
	// page has text, it is announced like a new page.
	oldText, err := r.Detector.Text(older.Content)
	if err != nil {
		return err
	}
	if strings.TrimSpace(oldText) == "" {
		newText, err := r.Detector.Text(snap.Content)
		if err != nil {
			return err
		}
		if strings.TrimSpace(newText) != "" {
			log.Info("Baseline has no text, treating capture as a new page", logger.String("baseline", base.Filename()))
			out.Baseline = snapshot.Ref{}
			return r.firstRun(ctx, log, job, snap, out)
		}
	}

	step(StateDiffing)
	result, err := r.Detector.Diff(older.Content, snap.Content)
	if err != nil {
		return err
	}
	out.Stats = result.Stats()
	if result.Empty() {
		step(StateNoChange)
		out.Status = StatusNoChange
		log.Info("No change", logger.String("baseline", base.Filename()))
		return nil
	}

	step(StateSummarizing)
	text, err := r.Detector.Text(snap.Content)
	if err != nil {
		return err
	}
	summary, err := r.Summarizer.SummarizeChange(ctx, summarize.ChangeRequest{
		JobName:    job.Name,
		URL:        job.URL,
		CapturedAt: snap.CapturedAt,
		Diff:       result,
		Text:       text,
	})
	if err != nil {
		return errors.Wrap(err, "summarize change")
	}
	out.Score = summary.Score

	if summary.Score < r.Threshold {
		step(StateBelowThreshold)
		out.Status = StatusBelowThreshold
		log.Info("Below threshold, not sent",
			logger.Int("score", summary.Score),
			logger.Int("threshold", r.Threshold),
		)
		return nil
	}

	step(StateNotifying)
	msg, err := r.Renderer.RenderChange(notify.ChangeEmail{
		JobName:      job.Name,
		URL:          job.URL,
		Summary:      summary.Summary,
		BriefSummary: summary.BriefSummary,
		Score:        summary.Score,
		Diff:         result,
		Baseline:     base,
		Current:      snap.Ref,
	})
	if err != nil {
		return err
	}
	if err := r.notify(ctx, msg, snap.Ref); err != nil {
		return err
	}
	out.Status = StatusNotified
	out.Notified = true
	return nil
}

// notify sends msg and then records ref as the last emailed snapshot.
func (r *Runner) notify(ctx context.Context, msg notify.Message, ref snapshot.Ref) error {
	if err := r.Sender.Send(ctx, msg); err != nil {
		return errors.Wrap(err, "send notification")
	}
	return r.State.Record(ref)
}
