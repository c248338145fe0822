package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHistogramExpandKeepsCountsInLexicalOrder(t *testing.T) {
	ids := []string{"vase", "chair", "vase", "bowl", "chair", "vase"}
	h := NewHistogram(ids)
	require.Equal(t, 3, h.Count("vase"))
	require.Equal(t, 6, h.Units())

	out := h.Expand()
	require.Equal(t, []string{"bowl", "chair", "chair", "vase", "vase", "vase"}, out)
	require.Equal(t, h, NewHistogram(out))
}

func TestHistogramExpandSkipsEmptyCounts(t *testing.T) {
	h := Histogram{"lamp": 2, "rug": 0}
	require.Equal(t, []string{"lamp", "lamp"}, h.Expand())
	require.Empty(t, Histogram{}.Expand())
}

func TestHistogramMerge(t *testing.T) {
	h := NewHistogram([]string{"sofa"})
	h.Merge(Histogram{"sofa": 2, "lamp": 1})
	require.Equal(t, Histogram{"sofa": 3, "lamp": 1}, h)
}
