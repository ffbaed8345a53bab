// Package drift computes line-level changes between two page captures.
package drift

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/pmezard/go-difflib/difflib"
)

// Op tags a line in the alignment.
type Op string

const (
	OpEqual   Op = "equal"   // Line present in both captures
	OpRemoved Op = "removed" // Line only in the older capture
	OpAdded   Op = "added"   // Line only in the newer capture
)

// Prefix returns the two-character marker used in text renderings.
func (o Op) Prefix() string {
	switch o {
	case OpRemoved:
		return "- "
	case OpAdded:
		return "+ "
	default:
		return "  "
	}
}

// Line is one aligned line.
type Line struct {
	Op   Op     `json:"op"`
	Text string `json:"text"`
}

// Result is the aligned comparison of two line sequences.
type Result struct {
	Lines []Line `json:"lines"`
}

// Stats counts lines by tag.
type Stats struct {
	Added     int `json:"added"`
	Removed   int `json:"removed"`
	Unchanged int `json:"unchanged"`
}

// Empty reports whether the comparison found no added or removed lines.
func (r Result) Empty() bool {
	for _, l := range r.Lines {
		if l.Op != OpEqual {
			return false
		}
	}
	return true
}

// ChangedLines returns only the added and removed lines, in alignment order.
func (r Result) ChangedLines() []Line {
	var out []Line
	for _, l := range r.Lines {
		if l.Op != OpEqual {
			out = append(out, l)
		}
	}
	return out
}

// Changed renders the added and removed lines with their markers.
func (r Result) Changed() string {
	return render(r.ChangedLines())
}

// Context renders every line, unchanged ones included, with markers.
func (r Result) Context() string {
	return render(r.Lines)
}

// Stats counts the lines of each kind.
func (r Result) Stats() Stats {
	var s Stats
	for _, l := range r.Lines {
		switch l.Op {
		case OpAdded:
			s.Added++
		case OpRemoved:
			s.Removed++
		default:
			s.Unchanged++
		}
	}
	return s
}

func render(lines []Line) string {
	var sb strings.Builder
	for i, l := range lines {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(l.Op.Prefix())
		sb.WriteString(l.Text)
	}
	return sb.String()
}

// SplitLines splits extracted text into lines. Empty text has no lines.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

// Compare aligns a (older) against b (newer). It is a pure function of
// its inputs. The matcher always runs on the same ordered pair whichever
// way round the inputs are given, so Compare(b, a) is Compare(a, b) with
// the added and removed tags exchanged.
func Compare(a, b []string) Result {
	x, y, swapped := a, b, false
	if compareSlices(a, b) > 0 {
		x, y, swapped = b, a, true
	}

	// Tags as seen from the x side
	del, ins := OpRemoved, OpAdded
	if swapped {
		del, ins = OpAdded, OpRemoved
	}

	matcher := difflib.NewMatcherWithJunk(x, y, false, nil)
	var lines []Line
	for _, oc := range matcher.GetOpCodes() {
		switch oc.Tag {
		case 'e':
			lines = appendLines(lines, OpEqual, x[oc.I1:oc.I2])
		case 'd':
			lines = appendLines(lines, del, x[oc.I1:oc.I2])
		case 'i':
			lines = appendLines(lines, ins, y[oc.J1:oc.J2])
		case 'r':
			// Older side first
			if swapped {
				lines = appendLines(lines, OpRemoved, y[oc.J1:oc.J2])
				lines = appendLines(lines, OpAdded, x[oc.I1:oc.I2])
			} else {
				lines = appendLines(lines, OpRemoved, x[oc.I1:oc.I2])
				lines = appendLines(lines, OpAdded, y[oc.J1:oc.J2])
			}
		}
	}
	return Result{Lines: lines}
}

func appendLines(dst []Line, op Op, texts []string) []Line {
	for _, t := range texts {
		dst = append(dst, Line{Op: op, Text: t})
	}
	return dst
}

// compareSlices orders string slices element by element, then by length.
func compareSlices(a, b []string) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := strings.Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}

// Extractor turns raw captured content into plain text.
type Extractor interface {
	Extract(raw []byte) (string, error)
}

// Detector diffs raw captures through an Extractor.
type Detector struct {
	extractor Extractor
}

// NewDetector creates a Detector using e for text extraction.
func NewDetector(e Extractor) *Detector {
	return &Detector{extractor: e}
}

// Text extracts the plain text of raw.
func (d *Detector) Text(raw []byte) (string, error) {
	text, err := d.extractor.Extract(raw)
	if err != nil {
		return "", errors.Wrap(err, "extract text")
	}
	return text, nil
}

// Diff compares the text of two captures. When either side extracts to
// empty text the result is empty, so a blank or broken page never reads
// as all content deleted.
func (d *Detector) Diff(older, newer []byte) (Result, error) {
	a, err := d.Text(older)
	if err != nil {
		return Result{}, err
	}
	b, err := d.Text(newer)
	if err != nil {
		return Result{}, err
	}
	if a == "" || b == "" {
		return Result{}, nil
	}
	return Compare(SplitLines(a), SplitLines(b)), nil
}
