package summarize

import (
	"encoding/json"
	"html"
	"math"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// Strategy is one attempt at decoding an oracle reply into a JSON object.
type Strategy struct {
	Name  string
	Parse func(raw string) (map[string]any, error)
}

// Strategies are tried in order, most strict first. The oracle is known
// to wrap its JSON in code fences, emit HTML entities for quotes and
// escape quotes it shouldn't.
var Strategies = []Strategy{
	{Name: "strict", Parse: parseStrict},
	{Name: "fenced", Parse: parseFenced},
	{Name: "unescaped", Parse: parseUnescaped},
	{Name: "debackslashed", Parse: parseDebackslashed},
}

// ParseChain runs Strategies against raw and returns the first decoded
// object along with the name of the strategy that produced it.
func ParseChain(raw string) (map[string]any, string, error) {
	var errs []string
	for _, s := range Strategies {
		obj, err := s.Parse(raw)
		if err == nil {
			return obj, s.Name, nil
		}
		errs = append(errs, s.Name+": "+err.Error())
	}
	return nil, "", errors.Wrapf(ErrParse, "no strategy decoded the reply (%s)", strings.Join(errs, "; "))
}

func decodeObject(s string) (map[string]any, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, errors.New("not a JSON object")
	}
	return obj, nil
}

func parseStrict(raw string) (map[string]any, error) {
	return decodeObject(raw)
}

// stripFences removes code-fence characters from both ends, then a
// leading language tag.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "`json\n")
	s = strings.Trim(s, "\n`")
	s = strings.TrimPrefix(s, "json")
	return strings.TrimSpace(s)
}

func parseFenced(raw string) (map[string]any, error) {
	return decodeObject(stripFences(raw))
}

func parseUnescaped(raw string) (map[string]any, error) {
	return decodeObject(stripFences(html.UnescapeString(raw)))
}

func parseDebackslashed(raw string) (map[string]any, error) {
	s := html.UnescapeString(raw)
	s = strings.ReplaceAll(s, "\\\n", "")
	s = strings.ReplaceAll(s, "\\", "")
	return decodeObject(stripFences(s))
}

// ValidateSummary checks the decoded object's shape. The brief summary
// may be keyed "brief_summary" or "brief summary". score may be a
// number or a numeric string; it is truncated to an integer and must lie
// within [minScore, 10].
func ValidateSummary(obj map[string]any, minScore int) (Summary, error) {
	summary, ok := obj["summary"].(string)
	if !ok {
		return Summary{}, errors.Wrap(ErrParse, `missing or non-string "summary"`)
	}

	briefValue, found := obj["brief_summary"]
	if !found {
		briefValue, found = obj["brief summary"]
	}
	brief, ok := briefValue.(string)
	if !found || !ok {
		return Summary{}, errors.Wrap(ErrParse, `missing or non-string "brief_summary"`)
	}

	score, err := coerceScore(obj["score"])
	if err != nil {
		return Summary{}, err
	}
	if score < minScore || score > 10 {
		return Summary{}, errors.Wrapf(ErrParse, "score %d outside %d..10", score, minScore)
	}

	return Summary{Summary: summary, BriefSummary: brief, Score: score}, nil
}

func coerceScore(v any) (int, error) {
	var f float64
	switch s := v.(type) {
	case float64:
		f = s
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, errors.Wrapf(ErrParse, "score %q is not numeric", s)
		}
		f = n
	case nil:
		return 0, errors.Wrap(ErrParse, `missing "score"`)
	default:
		return 0, errors.Wrapf(ErrParse, "score has type %T", v)
	}

	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > 1e6 {
		return 0, errors.Wrapf(ErrParse, "score %v is not a usable number", v)
	}
	// Fractions truncate toward zero
	return int(math.Trunc(f)), nil
}
