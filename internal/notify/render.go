// Package notify renders notification emails and delivers them. Rendering
// is pure; Mailer keeps a plain-text copy of every message on disk
// before handing it to SMTP.
package notify

import (
	"bytes"
	"html/template"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/microcosm-cc/bluemonday"

	"github.com/ernop/gpt-webdiff/internal/drift"
	"github.com/ernop/gpt-webdiff/internal/snapshot"
	"github.com/ernop/gpt-webdiff/internal/templates"
)

const subjectPrefix = "GPT-diff"

// Message is a rendered email.
type Message struct {
	JobName  string // Used to name the disk copy
	Subject  string
	HTMLBody string
}

// ChangeEmail carries what a change notification reports.
type ChangeEmail struct {
	JobName      string
	URL          string
	Summary      string
	BriefSummary string
	Score        int
	Diff         drift.Result
	Baseline     snapshot.Ref
	Current      snapshot.Ref
}

// PageEmail carries what a new-job notification reports.
type PageEmail struct {
	JobName      string
	URL          string
	Summary      string
	BriefSummary string
	Current      snapshot.Ref
}

// Renderer turns email records into Messages.
type Renderer struct {
	change  *template.Template
	page    *template.Template
	failure *template.Template
	backup  *template.Template
	policy  *bluemonday.Policy
}

// NewRenderer compiles the email templates.
func NewRenderer(t templates.Templates) (*Renderer, error) {
	r := &Renderer{policy: bluemonday.UGCPolicy()}
	var err error
	if r.change, err = template.New("change_email").Parse(t.ChangeEmail); err != nil {
		return nil, errors.Wrap(err, "change email template")
	}
	if r.page, err = template.New("page_email").Parse(t.PageEmail); err != nil {
		return nil, errors.Wrap(err, "page email template")
	}
	if r.failure, err = template.New("failure_email").Parse(t.FailureEmail); err != nil {
		return nil, errors.Wrap(err, "failure email template")
	}
	if r.backup, err = template.New("backup_email").Parse(t.BackupEmail); err != nil {
		return nil, errors.Wrap(err, "backup email template")
	}
	return r, nil
}

// RenderChange renders the notification for a scored change.
func (r *Renderer) RenderChange(e ChangeEmail) (Message, error) {
	body, err := execute(r.change, struct {
		ChangeEmail
		SummaryHTML template.HTML
		Diff        string
		Stats       drift.Stats
	}{
		ChangeEmail: e,
		SummaryHTML: r.summaryHTML(e.Summary),
		Diff:        e.Diff.Changed(),
		Stats:       e.Diff.Stats(),
	})
	if err != nil {
		return Message{}, err
	}
	subject := strings.Join([]string{
		subjectPrefix,
		e.JobName,
		"Score: " + strconv.Itoa(e.Score),
		oneLine(e.BriefSummary),
	}, " | ")
	return Message{JobName: e.JobName, Subject: subject, HTMLBody: body}, nil
}

// RenderNewPage renders the notification sent when a job is first captured.
func (r *Renderer) RenderNewPage(e PageEmail) (Message, error) {
	body, err := execute(r.page, struct {
		PageEmail
		SummaryHTML template.HTML
	}{
		PageEmail:   e,
		SummaryHTML: r.summaryHTML(e.Summary),
	})
	if err != nil {
		return Message{}, err
	}
	subject := subjectPrefix + " | New job added: " + e.JobName + " | " + oneLine(e.BriefSummary)
	return Message{JobName: e.JobName, Subject: subject, HTMLBody: body}, nil
}

// RenderFailure renders the operator report for a crashed command.
func (r *Renderer) RenderFailure(command string, cause error, at time.Time) (Message, error) {
	detail := ""
	if cause != nil {
		detail = cause.Error()
	}
	body, err := execute(r.failure, struct {
		Command string
		Error   string
		Time    time.Time
	}{command, detail, at})
	if err != nil {
		return Message{}, err
	}
	return Message{
		JobName:  "gptdiff-error",
		Subject:  subjectPrefix + " | Error running " + oneLine(command) + " | " + oneLine(detail),
		HTMLBody: body,
	}, nil
}

// RenderRegistryBackup renders the emailed copy of the job registry.
func (r *Renderer) RenderRegistryBackup(raw []byte, at time.Time) (Message, error) {
	body, err := execute(r.backup, struct {
		Registry string
		Time     time.Time
	}{string(raw), at})
	if err != nil {
		return Message{}, err
	}
	return Message{
		JobName:  "gptcron-backup",
		Subject:  "Backup of .gptcron, as of " + at.Format("2006/01/02"),
		HTMLBody: body,
	}, nil
}

// summaryHTML sanitizes oracle-written text and keeps its line breaks.
func (r *Renderer) summaryHTML(s string) template.HTML {
	clean := r.policy.Sanitize(s)
	clean = strings.ReplaceAll(clean, "\r\n", "\n")
	return template.HTML(strings.ReplaceAll(clean, "\n", "<br>\n"))
}

func execute(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", errors.Wrapf(err, "render %s", t.Name())
	}
	return buf.String(), nil
}

// oneLine collapses whitespace so text is safe in a header.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
