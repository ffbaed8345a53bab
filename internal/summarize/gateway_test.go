package summarize

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ernop/gpt-webdiff/internal/artifact"
	"github.com/ernop/gpt-webdiff/internal/drift"
	"github.com/ernop/gpt-webdiff/internal/oracle"
	"github.com/ernop/gpt-webdiff/internal/templates"
)

var capturedAt = time.Date(2024, 5, 17, 9, 30, 15, 0, time.Local)

// scriptedOracle returns reply and records every prompt.
type scriptedOracle struct {
	reply   string
	err     error
	prompts []string
}

func (o *scriptedOracle) Complete(ctx context.Context, prompt string) (string, error) {
	o.prompts = append(o.prompts, prompt)
	return o.reply, o.err
}

func newTestGateway(t *testing.T, o oracle.Oracle, opts ...Option) (*Gateway, *artifact.Store) {
	t.Helper()
	store := artifact.NewStore(filepath.Join(t.TempDir(), "openai_responses"))
	g, err := NewGateway(o, store, templates.Default(), opts...)
	require.NoError(t, err)
	return g, store
}

func sampleChange() ChangeRequest {
	return ChangeRequest{
		JobName:    "site-x",
		URL:        "http://example.com",
		CapturedAt: capturedAt,
		Diff:       drift.Compare([]string{"Price: 10"}, []string{"Price: 12"}),
		Text:       "Price: 12",
	}
}

func TestSummarizeChange_Okay(t *testing.T) {
	o := &scriptedOracle{reply: "```json\n" + encodeSummary("Price rose.", "Price up", 6) + "\n```"}
	g, store := newTestGateway(t, o)

	got, err := g.SummarizeChange(context.Background(), sampleChange())
	require.NoError(t, err)
	assert.Equal(t, Summary{Summary: "Price rose.", BriefSummary: "Price up", Score: 6}, got)

	require.Len(t, o.prompts, 1)
	prompt := o.prompts[0]
	assert.Contains(t, prompt, "http://example.com")
	assert.Contains(t, prompt, "Diff:\n- Price: 10\n+ Price: 12\n")
	assert.Contains(t, prompt, `"brief_summary"`)

	rec, err := store.Latest("site-x", artifact.Okay)
	require.NoError(t, err)
	assert.Equal(t, "site-x_20240517093015_a9b9f04336ce0181a08e774e01113b31_parsed_okay.json", filepath.Base(rec.Path))
}

func TestSummarizeChange_ParseFailureWritesBadFile(t *testing.T) {
	o := &scriptedOracle{reply: "Sorry, no JSON today."}
	g, store := newTestGateway(t, o)

	_, err := g.SummarizeChange(context.Background(), sampleChange())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrParse))
	assert.False(t, errors.Is(err, ErrFatalParse))
	assert.Len(t, o.prompts, 1, "parse failures are not retried")

	rec, err := store.Latest("site-x", artifact.Bad)
	require.NoError(t, err)
	raw, err := store.Read(rec)
	require.NoError(t, err)
	assert.Equal(t, "Sorry, no JSON today.", raw)
}

func TestSummarizeChange_FatalParse(t *testing.T) {
	o := &scriptedOracle{reply: `{"summary": "s", "brief_summary": "b", "score": "lots"}`}
	g, _ := newTestGateway(t, o, WithFatalOnParseFailure(true))

	_, err := g.SummarizeChange(context.Background(), sampleChange())
	assert.True(t, errors.Is(err, ErrFatalParse))
	assert.True(t, errors.Is(err, ErrParse))
}

func TestSummarizeChange_OracleFailureWritesNothing(t *testing.T) {
	o := &scriptedOracle{err: errors.New("connection reset")}
	g, store := newTestGateway(t, o)

	_, err := g.SummarizeChange(context.Background(), sampleChange())
	assert.True(t, errors.Is(err, ErrOracle))

	records, err := store.List("site-x")
	require.NoError(t, err)
	assert.Empty(t, records)
	_, statErr := os.Stat(store.Dir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestSummarizeChange_Budget(t *testing.T) {
	o := &scriptedOracle{reply: encodeSummary("s", "b", 5)}
	g, _ := newTestGateway(t, o, WithBudget(30))

	req := sampleChange()
	req.Text = strings.Repeat("z", 500)
	_, err := g.SummarizeChange(context.Background(), req)
	require.NoError(t, err)

	content := "Diff:\n" + req.Diff.Changed() + "\n" + req.Text
	assert.Contains(t, o.prompts[0], content[:30])
	assert.NotContains(t, o.prompts[0], content[:31])
}

func TestSummarizeNewPage(t *testing.T) {
	o := &scriptedOracle{reply: encodeSummary("A blog about gardening.", "Gardening blog", 3)}
	g, store := newTestGateway(t, o)

	got, err := g.SummarizeNewPage(context.Background(), PageRequest{
		JobName:    "garden",
		URL:        "https://garden.example.org",
		CapturedAt: capturedAt,
		Text:       "Tomatoes\nCucumbers",
	})
	require.NoError(t, err)
	assert.Equal(t, "Gardening blog", got.BriefSummary)
	assert.Contains(t, o.prompts[0], "Tomatoes\nCucumbers")

	_, err = store.Latest("garden", artifact.Okay)
	assert.NoError(t, err)
}

func TestSuggestName(t *testing.T) {
	o := &scriptedOracle{reply: `{"result": " new-york-times "}`}
	g, _ := newTestGateway(t, o)

	name, err := g.SuggestName(context.Background(), "http://nytimes.com", strings.Repeat("n", 5000), []string{"nyt"})
	require.NoError(t, err)
	assert.Equal(t, "new-york-times", name)
	assert.Contains(t, o.prompts[0], "nyt")
	assert.NotContains(t, o.prompts[0], strings.Repeat("n", 1001))

	o.reply = `{"name": "x"}`
	_, err = g.SuggestName(context.Background(), "http://nytimes.com", "", nil)
	assert.True(t, errors.Is(err, ErrParse))
}

type staticFetcher []byte

func (f staticFetcher) Fetch(ctx context.Context, url string) ([]byte, error) { return f, nil }

type upperExtractor struct{}

func (upperExtractor) Extract(raw []byte) (string, error) { return strings.ToUpper(string(raw)), nil }

func TestPageNamer(t *testing.T) {
	o := &scriptedOracle{reply: `{"result": "shop"}`}
	g, _ := newTestGateway(t, o)
	namer := &PageNamer{Gateway: g, Fetcher: staticFetcher("welcome"), Extractor: upperExtractor{}}

	name, err := namer.SuggestName(context.Background(), "http://shop.example.com", nil)
	require.NoError(t, err)
	assert.Equal(t, "shop", name)
	assert.Contains(t, o.prompts[0], "WELCOME")
}

func TestReparse(t *testing.T) {
	store := artifact.NewStore(t.TempDir())
	_, err := Reparse(store, "site-x")
	assert.True(t, errors.Is(err, artifact.ErrNoArtifact))

	escaped := strings.ReplaceAll(encodeSummary("s", "b", 9), `"`, "&quot;")
	_, err = store.Write(artifact.Key{JobName: "site-x", CapturedAt: capturedAt, URL: "http://example.com"}, artifact.Bad, escaped)
	require.NoError(t, err)

	report, err := Reparse(store, "site-x")
	require.NoError(t, err)
	require.Len(t, report.Strategies, len(Strategies))
	assert.False(t, report.Strategies[0].OK)
	assert.False(t, report.Strategies[1].OK)
	assert.True(t, report.Strategies[2].OK)
	require.NotNil(t, report.Summary)
	assert.Equal(t, 9, report.Summary.Score)
}
