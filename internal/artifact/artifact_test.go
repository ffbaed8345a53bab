package artifact

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var md5Pattern = regexp.MustCompile(`^[a-f0-9]{32}$`)

func TestURLHash(t *testing.T) {
	assert.Equal(t, "a9b9f04336ce0181a08e774e01113b31", URLHash("http://example.com"))
}

// TestFilename_RoundTrip checks that every generated filename parses back
// to the same job, timestamp, hash and outcome.
func TestFilename_RoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("filename parses back", prop.ForAll(
		func(job, url string, sec int64, bad bool) bool {
			outcome := Okay
			if bad {
				outcome = Bad
			}
			key := Key{
				JobName:    job,
				CapturedAt: time.Unix(sec, 0),
				URL:        url,
			}
			rec, err := ParseFilename(key.Filename(outcome))
			if err != nil {
				return false
			}
			return rec.JobName == job &&
				rec.Outcome == outcome &&
				md5Pattern.MatchString(rec.URLHash) &&
				rec.URLHash == URLHash(url) &&
				rec.Captured.Equal(key.CapturedAt)
		},
		gen.Identifier().SuchThat(func(s string) bool { return s != "" }),
		gen.AnyString(),
		gen.Int64Range(946684800, 4102444800),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestParseFilename_Rejects(t *testing.T) {
	for _, name := range []string{
		"notes.txt",
		"job_20240101000000_abc_summary.json",
		"job_20240101000000_abc_parsed_maybe.json",
		"job_2024_abc_parsed_okay.json",
	} {
		if _, err := ParseFilename(name); err == nil {
			t.Errorf("ParseFilename(%q) expected error", name)
		}
	}
}

func TestStore_WriteListLatest(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "openai_responses"))
	base := time.Date(2024, 2, 3, 4, 5, 6, 0, time.Local)

	p1, err := store.Write(Key{JobName: "site-x", CapturedAt: base, URL: "http://x.com"}, Bad, "garbage one")
	require.NoError(t, err)
	_, err = store.Write(Key{JobName: "site-x", CapturedAt: base.Add(time.Hour), URL: "http://x.com"}, Okay, `{"score": 5}`)
	require.NoError(t, err)
	p3, err := store.Write(Key{JobName: "site-x", CapturedAt: base.Add(2 * time.Hour), URL: "http://x.com"}, Bad, "garbage two")
	require.NoError(t, err)
	_, err = store.Write(Key{JobName: "other", CapturedAt: base, URL: "http://o.com"}, Bad, "other")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir, "README"), []byte("x"), 0644))

	data, err := os.ReadFile(p1)
	require.NoError(t, err)
	assert.Equal(t, "garbage one", string(data))

	records, err := store.List("site-x")
	require.NoError(t, err)
	require.Len(t, records, 3)

	latest, err := store.Latest("site-x", Bad)
	require.NoError(t, err)
	assert.Equal(t, p3, latest.Path)

	raw, err := store.Read(latest)
	require.NoError(t, err)
	assert.Equal(t, "garbage two", raw)

	_, err = store.Latest("nobody", Bad)
	assert.True(t, errors.Is(err, ErrNoArtifact))
}
