package drift

import (
	"sort"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var vocabulary = []string{"alpha", "beta", "gamma", "delta", "", "alpha beta"}

// genLines generates short line sequences over a small vocabulary so that
// shared lines are common.
func genLines() gopter.Gen {
	return gen.SliceOf(gen.IntRange(0, len(vocabulary)-1).Map(func(i int) string {
		return vocabulary[i]
	}))
}

func smallParameters(n int) *gopter.TestParameters {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = n
	parameters.MaxSize = 12
	return parameters
}

func changedSet(r Result, swap bool) []string {
	var out []string
	for _, l := range r.ChangedLines() {
		op := l.Op
		if swap {
			if op == OpAdded {
				op = OpRemoved
			} else {
				op = OpAdded
			}
		}
		out = append(out, string(op)+":"+l.Text)
	}
	sort.Strings(out)
	return out
}

// TestCompare_Reflexive checks that a sequence compared with itself has
// no changed lines.
func TestCompare_Reflexive(t *testing.T) {
	properties := gopter.NewProperties(smallParameters(100))

	properties.Property("diff against self is empty", prop.ForAll(
		func(lines []string) bool {
			r := Compare(lines, lines)
			return r.Empty() && r.Changed() == "" && len(r.Lines) == len(lines)
		},
		genLines(),
	))

	properties.TestingRun(t)
}

// TestCompare_Symmetric checks that swapping the inputs swaps the added
// and removed tags and nothing else.
func TestCompare_Symmetric(t *testing.T) {
	properties := gopter.NewProperties(smallParameters(200))

	properties.Property("A->B mirrors B->A", prop.ForAll(
		func(a, b []string) bool {
			ab := changedSet(Compare(a, b), false)
			ba := changedSet(Compare(b, a), true)
			if len(ab) != len(ba) {
				return false
			}
			for i := range ab {
				if ab[i] != ba[i] {
					return false
				}
			}
			return true
		},
		genLines(),
		genLines(),
	))

	properties.TestingRun(t)
}

// TestCompare_Deterministic checks that repeated comparisons agree.
func TestCompare_Deterministic(t *testing.T) {
	properties := gopter.NewProperties(smallParameters(100))

	properties.Property("same inputs give same output", prop.ForAll(
		func(a, b []string) bool {
			return Compare(a, b).Context() == Compare(a, b).Context()
		},
		genLines(),
		genLines(),
	))

	properties.TestingRun(t)
}

// TestCompare_PreservesBothSides checks that the context view keeps every
// line of both inputs: removed plus equal lines rebuild the old sequence
// and added plus equal lines rebuild the new one.
func TestCompare_PreservesBothSides(t *testing.T) {
	properties := gopter.NewProperties(smallParameters(100))

	properties.Property("alignment rebuilds inputs", prop.ForAll(
		func(a, b []string) bool {
			var oldSide, newSide []string
			for _, l := range Compare(a, b).Lines {
				if l.Op != OpAdded {
					oldSide = append(oldSide, l.Text)
				}
				if l.Op != OpRemoved {
					newSide = append(newSide, l.Text)
				}
			}
			return strings.Join(oldSide, "\x00") == strings.Join(a, "\x00") &&
				strings.Join(newSide, "\x00") == strings.Join(b, "\x00")
		},
		genLines(),
		genLines(),
	))

	properties.TestingRun(t)
}

func TestCompare_ChangedAndContext(t *testing.T) {
	a := []string{"Title", "Price: 10", "Footer"}
	b := []string{"Title", "Price: 12", "New banner", "Footer"}

	r := Compare(a, b)
	assert.Equal(t, "- Price: 10\n+ Price: 12\n+ New banner", r.Changed())
	assert.Equal(t, "  Title\n- Price: 10\n+ Price: 12\n+ New banner\n  Footer", r.Context())
	assert.Equal(t, Stats{Added: 2, Removed: 1, Unchanged: 2}, r.Stats())
}

type fakeExtractor map[string]string

func (f fakeExtractor) Extract(raw []byte) (string, error) {
	return f[string(raw)], nil
}

func TestDetector_EmptySideSuppressed(t *testing.T) {
	d := NewDetector(fakeExtractor{"old": "one\ntwo", "blank": "", "new": "one\nthree"})

	r, err := d.Diff([]byte("old"), []byte("blank"))
	require.NoError(t, err)
	assert.True(t, r.Empty())
	assert.Empty(t, r.Lines)

	r, err = d.Diff([]byte("blank"), []byte("new"))
	require.NoError(t, err)
	assert.True(t, r.Empty())

	r, err = d.Diff([]byte("old"), []byte("new"))
	require.NoError(t, err)
	assert.Equal(t, "- two\n+ three", r.Changed())
}

func TestDetector_IdenticalText(t *testing.T) {
	d := NewDetector(fakeExtractor{"v1": "same\ntext", "v2": "same\ntext"})
	r, err := d.Diff([]byte("v1"), []byte("v2"))
	require.NoError(t, err)
	assert.True(t, r.Empty())
}
