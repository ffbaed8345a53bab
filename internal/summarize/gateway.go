// Package summarize asks the oracle to describe page changes and turns
// its free-form replies into validated summaries. Every reply is kept on
// disk as an okay or bad diagnostic file.
package summarize

import (
	"bytes"
	"context"
	"strings"
	"text/template"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/ernop/gpt-webdiff/internal/artifact"
	"github.com/ernop/gpt-webdiff/internal/drift"
	"github.com/ernop/gpt-webdiff/internal/logger"
	"github.com/ernop/gpt-webdiff/internal/oracle"
	"github.com/ernop/gpt-webdiff/internal/templates"
)

// DefaultBudget is the default cap, in characters, on content sent to the oracle.
const DefaultBudget = 20000

var (
	// ErrParse is returned when a reply can't be decoded or has the wrong shape.
	ErrParse = errors.New("unparseable oracle response")
	// ErrOracle is returned when the oracle call itself fails.
	ErrOracle = errors.New("oracle request failed")
	// ErrFatalParse marks parse failures when the gateway is configured to
	// stop on them. Errors carrying it also match ErrParse.
	ErrFatalParse = errors.New("parse failure is fatal by configuration")
)

// Summary is a validated oracle reply.
type Summary struct {
	Summary      string `json:"summary"`
	BriefSummary string `json:"brief_summary"`
	Score        int    `json:"score"`
}

// ChangeRequest asks for a summary of a diff.
type ChangeRequest struct {
	JobName    string
	URL        string
	CapturedAt time.Time    // Capture time of the newer snapshot
	Diff       drift.Result // Non-empty diff
	Text       string       // Full text of the newer snapshot
}

// PageRequest asks for a summary of a whole page.
type PageRequest struct {
	JobName    string
	URL        string
	CapturedAt time.Time
	Text       string
}

// Gateway owns prompt construction, parsing and diagnostics around the oracle.
type Gateway struct {
	oracle    oracle.Oracle
	artifacts *artifact.Store
	budget    int
	fatal     bool
	log       logger.Logger

	changePrompt *template.Template
	pagePrompt   *template.Template
	namePrompt   *template.Template
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithBudget caps the content embedded in prompts.
func WithBudget(n int) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.budget = n
		}
	}
}

// WithFatalOnParseFailure makes parse failures carry ErrFatalParse.
func WithFatalOnParseFailure(fatal bool) Option {
	return func(g *Gateway) { g.fatal = fatal }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.log = l
		}
	}
}

// NewGateway compiles the prompt templates and returns a Gateway.
// artifacts may be nil, in which case no diagnostic files are written.
func NewGateway(o oracle.Oracle, artifacts *artifact.Store, tmpl templates.Templates, opts ...Option) (*Gateway, error) {
	g := &Gateway{
		oracle:    o,
		artifacts: artifacts,
		budget:    DefaultBudget,
		log:       logger.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}

	var err error
	if g.changePrompt, err = template.New("change_prompt").Parse(tmpl.ChangePrompt); err != nil {
		return nil, errors.Wrap(err, "change prompt")
	}
	if g.pagePrompt, err = template.New("page_prompt").Parse(tmpl.PagePrompt); err != nil {
		return nil, errors.Wrap(err, "page prompt")
	}
	if g.namePrompt, err = template.New("name_prompt").Parse(tmpl.NamePrompt); err != nil {
		return nil, errors.Wrap(err, "name prompt")
	}
	return g, nil
}

// SummarizeChange summarizes a non-empty diff. The score ranges over 0..10.
func (g *Gateway) SummarizeChange(ctx context.Context, req ChangeRequest) (Summary, error) {
	preamble, err := render(g.changePrompt, req.JobName, req.URL)
	if err != nil {
		return Summary{}, err
	}
	content := truncate("Diff:\n"+req.Diff.Changed()+"\n"+req.Text, g.budget)
	prompt := preamble + "\n\n" + content + "\n\n" + changeFormat

	key := artifact.Key{JobName: req.JobName, CapturedAt: req.CapturedAt, URL: req.URL}
	return g.summarize(ctx, key, prompt, 0)
}

// SummarizeNewPage summarizes a page seen for the first time. The score
// ranges over 1..10.
func (g *Gateway) SummarizeNewPage(ctx context.Context, req PageRequest) (Summary, error) {
	preamble, err := render(g.pagePrompt, req.JobName, req.URL)
	if err != nil {
		return Summary{}, err
	}
	prompt := preamble + "\n\n" + pageFormat + "\n\nHere is the content to base this JSON upon:\n\n" + truncate(req.Text, g.budget)

	key := artifact.Key{JobName: req.JobName, CapturedAt: req.CapturedAt, URL: req.URL}
	return g.summarize(ctx, key, prompt, 1)
}

// summarize makes exactly one oracle call. Parse failures are never retried.
func (g *Gateway) summarize(ctx context.Context, key artifact.Key, prompt string, minScore int) (Summary, error) {
	log := g.log.With(logger.String("job", key.JobName))

	start := time.Now()
	raw, err := g.oracle.Complete(ctx, prompt)
	if err != nil {
		return Summary{}, errors.Mark(errors.Wrap(err, "oracle call"), ErrOracle)
	}
	raw = strings.TrimSpace(raw)
	log.Debug("Oracle replied",
		logger.Int("prompt_chars", len(prompt)),
		logger.Int("reply_chars", len(raw)),
		logger.Duration("elapsed", time.Since(start)),
	)

	obj, strategy, err := ParseChain(raw)
	var summary Summary
	if err == nil {
		summary, err = ValidateSummary(obj, minScore)
	}

	if err != nil {
		path := g.keep(log, key, artifact.Bad, raw)
		log.Warn("Could not parse oracle reply",
			logger.String("diagnostic", path),
			logger.Error(err),
		)
		if g.fatal {
			return Summary{}, errors.Mark(err, ErrFatalParse)
		}
		return Summary{}, err
	}

	g.keep(log, key, artifact.Okay, raw)
	log.Info("Parsed oracle reply",
		logger.String("strategy", strategy),
		logger.Int("score", summary.Score),
	)
	return summary, nil
}

// keep writes a diagnostic file. A failed write is logged, not returned,
// so it never costs a usable summary.
func (g *Gateway) keep(log logger.Logger, key artifact.Key, outcome artifact.Outcome, raw string) string {
	if g.artifacts == nil {
		return ""
	}
	path, err := g.artifacts.Write(key, outcome, raw)
	if err != nil {
		log.Warn("Could not write diagnostic file", logger.Error(err))
		return ""
	}
	return path
}

type promptData struct {
	JobName string
	URL     string
}

func render(t *template.Template, job, url string) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, promptData{JobName: job, URL: url}); err != nil {
		return "", errors.Wrapf(err, "render %s", t.Name())
	}
	return strings.TrimSpace(buf.String()), nil
}

// truncate keeps the first n characters of s.
func truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

const changeFormat = `Please provide your response in the following JSON format:
{
    "summary": "a text summary of the changes. Use newlines to separate paragraphs covering all the main aspects of what changed.",
    "brief_summary": "a one-sentence, pure text summary of the changes. This is for use within an email subject line, so it cannot be very long.",
    "score": your_score_here (integer from 0 to 10)
}`

const pageFormat = `Please provide your response in the following JSON format:
{
    "summary": "a summary of the page including all relevant sections, with specific details. Use newlines to separate paragraphs.",
    "brief_summary": "a one-sentence, pure text summary of the entire webpage and what it is all about.",
    "score": your_score_here (integer from 1 to 10, for how globally relevant and interesting this page is)
}`
