package drift

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestFormatCLI_ContainsChangedLines checks that every changed line shows
// up in the terminal report with its marker.
func TestFormatCLI_ContainsChangedLines(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("CLI format lists changes", prop.ForAll(
		func(oldLine, newLine string) bool {
			if oldLine == newLine {
				return true
			}
			r := Compare([]string{"keep", oldLine}, []string{"keep", newLine})
			out := FormatCLI(r)
			return strings.Contains(out, "- "+oldLine) &&
				strings.Contains(out, "+ "+newLine) &&
				strings.Contains(out, "Changes detected")
		},
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

func TestFormatCLI_NoChanges(t *testing.T) {
	out := FormatCLI(Result{})
	if out != "No changes detected.\n" {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestFormatJSON(t *testing.T) {
	r := Compare([]string{"a"}, []string{"b"})
	out, err := FormatJSON(r)
	if err != nil {
		t.Fatalf("FormatJSON: %v", err)
	}

	var parsed struct {
		HasChanges bool  `json:"hasChanges"`
		Stats      Stats `json:"stats"`
		Lines      []Line
	}
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if !parsed.HasChanges || parsed.Stats.Added != 1 || parsed.Stats.Removed != 1 {
		t.Errorf("unexpected report: %+v", parsed)
	}

	empty, err := FormatJSON(Result{})
	if err != nil {
		t.Fatalf("FormatJSON: %v", err)
	}
	if !strings.Contains(empty, `"lines": []`) {
		t.Errorf("empty result should encode an empty list: %s", empty)
	}
}
