package summarize

import (
	"github.com/ernop/gpt-webdiff/internal/artifact"
)

// StrategyResult is the outcome of one strategy during a reparse.
type StrategyResult struct {
	Name string
	OK   bool
	Err  string
}

// ReparseReport describes a fresh attempt at the newest bad reply of a job.
type ReparseReport struct {
	Record     artifact.Record
	Raw        string
	Strategies []StrategyResult
	Summary    *Summary // Set when a strategy decoded a valid summary
	Validation string   // Shape error of the first decoded object, if any
}

// Reparse runs every strategy against the newest bad diagnostic file of
// job. It never calls the oracle.
func Reparse(store *artifact.Store, job string) (ReparseReport, error) {
	rec, err := store.Latest(job, artifact.Bad)
	if err != nil {
		return ReparseReport{}, err
	}
	raw, err := store.Read(rec)
	if err != nil {
		return ReparseReport{}, err
	}

	report := ReparseReport{Record: rec, Raw: raw}
	var first map[string]any
	for _, s := range Strategies {
		obj, err := s.Parse(raw)
		res := StrategyResult{Name: s.Name, OK: err == nil}
		if err != nil {
			res.Err = err.Error()
		} else if first == nil {
			first = obj
		}
		report.Strategies = append(report.Strategies, res)
	}

	if first != nil {
		summary, err := ValidateSummary(first, 0)
		if err != nil {
			report.Validation = err.Error()
		} else {
			report.Summary = &summary
		}
	}
	return report, nil
}
