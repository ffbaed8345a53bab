package drift

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatCLI formats a result for terminal output.
func FormatCLI(r Result) string {
	if r.Empty() {
		return "No changes detected.\n"
	}

	s := r.Stats()
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Changes detected: %d added, %d removed, %d unchanged\n", s.Added, s.Removed, s.Unchanged))
	for _, l := range r.ChangedLines() {
		sb.WriteString(l.Op.Prefix())
		sb.WriteString(l.Text)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// FormatJSON formats a result as JSON, with stats alongside the lines.
func FormatJSON(r Result) (string, error) {
	lines := r.Lines
	if lines == nil {
		lines = []Line{}
	}
	out := struct {
		HasChanges bool   `json:"hasChanges"`
		Stats      Stats  `json:"stats"`
		Lines      []Line `json:"lines"`
	}{
		HasChanges: !r.Empty(),
		Stats:      r.Stats(),
		Lines:      lines,
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
