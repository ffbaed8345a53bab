package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"

	"github.com/ernop/gpt-webdiff/internal/cli"
	"github.com/ernop/gpt-webdiff/internal/oracle"
)

// captureStdout runs fn with os.Stdout redirected and returns what it wrote.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	done := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, r)
		done <- buf.String()
	}()

	fn()
	w.Close()
	os.Stdout = old
	return <-done
}

func TestRun_ListEmpty(t *testing.T) {
	dir := t.TempDir()
	var code int
	out := captureStdout(t, func() {
		code = run([]string{"list"}, nil, dir)
	})
	assert.Equal(t, cli.ExitOK, code)
	assert.Contains(t, out, "No jobs.")
}

func TestRun_ExitCodes(t *testing.T) {
	dir := t.TempDir()
	withKey := []string{"GPTDIFF_ORACLE_API_KEY=test-key"}

	tests := []struct {
		name    string
		args    []string
		environ []string
		want    int
	}{
		{"unknown command", []string{"frobnicate"}, nil, cli.ExitFailure},
		{"bad url", []string{"add", "http://", "home"}, nil, cli.ExitFailure},
		{"bad frequency", []string{"add", "http://example.com", "home", "yearly"}, nil, cli.ExitFailure},
		{"bad threshold", []string{"list"}, []string{"GPTDIFF_THRESHOLD=42"}, cli.ExitConfig},
		{"missing api key", []string{"run", "home"}, nil, cli.ExitConfig},
		{"unknown job", []string{"run", "ghost"}, withKey, cli.ExitNotFound},
		{"remove unknown", []string{"remove", "ghost"}, nil, cli.ExitNotFound},
		{"no bad reply", []string{"reparse", "ghost"}, nil, cli.ExitNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, run(tt.args, tt.environ, dir))
		})
	}
}

// TestRun_UnknownJob_Property checks that running any name absent from the
// registry exits with the not-found code and leaves no registry behind.
func TestRun_UnknownJob_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 25
	properties := gopter.NewProperties(parameters)

	dir := t.TempDir()
	environ := []string{"GPTDIFF_ORACLE_API_KEY=test-key"}

	properties.Property("unknown job exits 4", prop.ForAll(
		func(name string) bool {
			if run([]string{"run", name}, environ, dir) != cli.ExitNotFound {
				return false
			}
			_, err := os.Stat(dir + "/.gptcron")
			return os.IsNotExist(err)
		},
		gen.Identifier(),
	))

	properties.TestingRun(t)
}

type panickingFetcher struct{}

func (panickingFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	panic("boom")
}

func TestExecute_RecoversPanic(t *testing.T) {
	dir := t.TempDir()
	require.Equal(t, cli.ExitOK, run([]string{"add", "http://example.com", "home"}, nil, dir))

	var sent []*mail.Msg
	var stdout, stderr bytes.Buffer
	app := &cli.App{
		Stdout:  &stdout,
		Stderr:  &stderr,
		Environ: []string{"GPTDIFF_EMAIL_TO=me@example.com"},
		WorkDir: dir,
		Oracle: oracle.Func(func(ctx context.Context, prompt string) (string, error) {
			return "{}", nil
		}),
		Fetcher: panickingFetcher{},
		Transport: func(ctx context.Context, msg *mail.Msg) error {
			sent = append(sent, msg)
			return nil
		},
	}

	code := execute(context.Background(), app, []string{"run", "home"}, &stderr)
	assert.Equal(t, cli.ExitCrash, code)
	assert.Contains(t, stderr.String(), "panic: boom")

	require.Len(t, sent, 1)
	subject := sent[0].GetGenHeader(mail.HeaderSubject)
	require.Len(t, subject, 1)
	assert.True(t, strings.Contains(subject[0], "Error running gptdiff run home"), subject[0])

	logData, err := os.ReadFile(dir + "/gpt_diff.log")
	require.NoError(t, err)
	assert.Contains(t, string(logData), "Unexpected crash")
}

func TestExecute_PrintsHint(t *testing.T) {
	dir := t.TempDir()
	var stdout, stderr bytes.Buffer
	app := &cli.App{Stdout: &stdout, Stderr: &stderr, WorkDir: dir}

	require.Equal(t, cli.ExitOK, execute(context.Background(), app, []string{"add", "http://example.com", "home"}, &stderr))

	app = &cli.App{Stdout: &stdout, Stderr: &stderr, WorkDir: dir}
	code := execute(context.Background(), app, []string{"run", "home"}, &stderr)
	assert.Equal(t, cli.ExitConfig, code)
	assert.Contains(t, stderr.String(), "Error:")
	assert.Contains(t, stderr.String(), "Hint: set oracle.api_key")
}
