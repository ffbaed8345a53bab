package registry

import (
	"sort"
	"strings"

	"github.com/ernop/gpt-webdiff/internal/validator"
)

// SortKey selects the job ordering for list and save_sorted.
type SortKey string

const (
	SortNone SortKey = ""
	SortDate SortKey = "date"
	SortURL  SortKey = "url"
	SortName SortKey = "name"
)

// SortKeyNames returns the accepted --sort_by values.
func SortKeyNames() []string {
	return []string{string(SortDate), string(SortURL), string(SortName)}
}

// ParseSortKey validates s. An empty string means file order.
func ParseSortKey(s string) (SortKey, error) {
	if s == "" {
		return SortNone, nil
	}
	if verr := validator.ValidateEnum("sort_by", s, SortKeyNames()); verr != nil {
		return SortNone, verr
	}
	return SortKey(s), nil
}

// SortJobs returns a copy of jobs ordered by key. The sort is stable so
// equal keys keep their file order.
func SortJobs(jobs []Job, key SortKey) []Job {
	sorted := make([]Job, len(jobs))
	copy(sorted, jobs)

	var less func(a, b Job) bool
	switch key {
	case SortDate:
		less = func(a, b Job) bool { return a.CreatedAt.Before(b.CreatedAt) }
	case SortURL:
		less = func(a, b Job) bool { return stripScheme(a.URL) < stripScheme(b.URL) }
	case SortName:
		less = func(a, b Job) bool { return strings.ToLower(a.Name) < strings.ToLower(b.Name) }
	default:
		return sorted
	}

	sort.SliceStable(sorted, func(i, j int) bool { return less(sorted[i], sorted[j]) })
	return sorted
}

// stripScheme returns the part of u after "//".
func stripScheme(u string) string {
	if i := strings.Index(u, "//"); i >= 0 {
		return u[i+2:]
	}
	return u
}
