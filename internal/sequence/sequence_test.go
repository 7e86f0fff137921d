package sequence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnalyzeComplete(t *testing.T) {
	rep := Analyze([]int{1, 2, 3, 4, 5})

	assert.True(t, rep.Complete())
	assert.Equal(t, 1, rep.Min)
	assert.Equal(t, 5, rep.Max)
	assert.Equal(t, 5, rep.Observed)
	assert.Empty(t, rep.Missing)
	assert.Equal(t, "", rep.MissingRuns())
}

func TestAnalyzeGaps(t *testing.T) {
	rep := Analyze([]int{1, 2, 4, 7, 8})

	assert.False(t, rep.Complete())
	assert.Equal(t, []int{3, 5, 6}, rep.Missing)
	assert.Equal(t, "3, 5-6", rep.MissingRuns())
	assert.Equal(t, 8, rep.Span())
	assert.InDelta(t, 37.5, rep.MissingPercent(), 0.001)
}

func TestAnalyzeOrderIndependent(t *testing.T) {
	a := Analyze([]int{8, 1, 7, 2, 4})
	b := Analyze([]int{1, 2, 4, 7, 8})
	assert.Equal(t, b, a)
}

func TestAnalyzeDuplicatesCountOnce(t *testing.T) {
	rep := Analyze([]int{10, 10, 11, 13, 13})

	assert.Equal(t, 3, rep.Observed)
	assert.Equal(t, []int{12}, rep.Missing)
}

func TestAnalyzeSingle(t *testing.T) {
	rep := Analyze([]int{42})

	assert.True(t, rep.Complete())
	assert.Equal(t, 42, rep.Min)
	assert.Equal(t, 42, rep.Max)
	assert.Equal(t, 1, rep.Span())
}

func TestAnalyzeEmpty(t *testing.T) {
	rep := Analyze(nil)

	assert.Equal(t, Report{}, rep)
	assert.Equal(t, 0, rep.Span())
	assert.Equal(t, 0.0, rep.MissingPercent())
}

func TestFormatRuns(t *testing.T) {
	tests := []struct {
		in   []int
		want string
	}{
		{[]int{5, 6, 7, 10}, "5-7, 10"},
		{[]int{3}, "3"},
		{[]int{1, 3, 5}, "1, 3, 5"},
		{[]int{1, 2, 3}, "1-3"},
		{[]int{4, 5, 9, 10, 11, 20}, "4-5, 9-11, 20"},
		{nil, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatRuns(tt.in), "input %v", tt.in)
	}
}
