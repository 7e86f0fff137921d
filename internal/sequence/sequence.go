// Package sequence reconciles the document numbers observed for one
// (model, series) pair against the full numeric span they should cover,
// surfacing skipped numbers that point at lost or never-issued documents.
package sequence

import (
	"sort"
	"strconv"
	"strings"
)

// Report describes the continuity of one observed numbering span.
type Report struct {
	Min      int   // lowest observed number
	Max      int   // highest observed number
	Observed int   // distinct numbers observed
	Missing  []int // numbers absent from [Min, Max], ascending
}

// Complete reports whether the span has no gaps.
func (r Report) Complete() bool {
	return len(r.Missing) == 0
}

// Span is the size of the closed interval [Min, Max].
func (r Report) Span() int {
	if r.Observed == 0 {
		return 0
	}
	return r.Max - r.Min + 1
}

// MissingPercent is the share of the span that is missing, in percent.
func (r Report) MissingPercent() float64 {
	span := r.Span()
	if span == 0 {
		return 0
	}
	return float64(len(r.Missing)) / float64(span) * 100
}

// MissingRuns renders the missing numbers as compact runs, e.g. "5-7, 10".
func (r Report) MissingRuns() string {
	return FormatRuns(r.Missing)
}

// Analyze computes the numbers absent from the closed span
// [min(numbers), max(numbers)]. Duplicates count once; order does not
// matter. An empty input yields the zero Report.
func Analyze(numbers []int) Report {
	if len(numbers) == 0 {
		return Report{}
	}

	sorted := append([]int(nil), numbers...)
	sort.Ints(sorted)

	uniq := sorted[:1]
	for _, n := range sorted[1:] {
		if n != uniq[len(uniq)-1] {
			uniq = append(uniq, n)
		}
	}

	rep := Report{Min: uniq[0], Max: uniq[len(uniq)-1], Observed: len(uniq)}
	next := rep.Min
	for _, n := range uniq {
		for ; next < n; next++ {
			rep.Missing = append(rep.Missing, next)
		}
		next = n + 1
	}
	return rep
}

// FormatRuns renders sorted integers as comma-separated runs: consecutive
// values collapse to "start-end", isolated values stand alone. An empty
// input renders as the empty string.
func FormatRuns(numbers []int) string {
	if len(numbers) == 0 {
		return ""
	}

	var b strings.Builder
	start, prev := numbers[0], numbers[0]
	flush := func() {
		if b.Len() > 0 {
			b.WriteString(", ")
		}
		b.WriteString(strconv.Itoa(start))
		if start != prev {
			b.WriteByte('-')
			b.WriteString(strconv.Itoa(prev))
		}
	}
	for _, n := range numbers[1:] {
		if n != prev+1 {
			flush()
			start = n
		}
		prev = n
	}
	flush()
	return b.String()
}
