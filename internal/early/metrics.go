package early

import (
	"fmt"

	"teaser/internal/series"
)

// SplitAndFilter partitions the open instance subset by the decisions
// of the last checkpoint. It returns the still open batch, the still
// open original indices and the newly closed original indices. Pure
// function of its inputs.
func SplitAndFilter(x series.Batch, openIdx []int, decisions []bool) (series.Batch, []int, []int, error) {
	if len(openIdx) != x.Len() {
		return nil, nil, nil, fmt.Errorf("%d indices for %d instances: %w", len(openIdx), x.Len(), ErrStateMismatch)
	}
	if len(decisions) != len(openIdx) {
		return nil, nil, nil, fmt.Errorf("%d decisions for %d instances: %w", len(decisions), len(openIdx), ErrStateMismatch)
	}

	var (
		stillOpen   series.Batch
		stillOpenAt []int
		closedAt    []int
	)
	for j, idx := range openIdx {
		if decisions[j] {
			closedAt = append(closedAt, idx)
			continue
		}
		stillOpen = append(stillOpen, x[j])
		stillOpenAt = append(stillOpenAt, idx)
	}
	return stillOpen, stillOpenAt, closedAt, nil
}

// HarmonicMean computes the combined earliness and accuracy score over
// a completed streaming state: 2*acc*(1-earliness)/(acc+(1-earliness)),
// zero when either factor is zero. Earliness is the mean fraction of
// the series length consumed before each instance closed.
func HarmonicMean(state State, y []string) (float64, float64, float64, error) {
	if len(y) != state.Total() {
		return 0, 0, 0, fmt.Errorf("%d labels for %d instances: %w", len(y), state.Total(), series.ErrLabelMismatch)
	}
	if state.Total() == 0 {
		return 0, 0, 0, fmt.Errorf("state is empty")
	}
	if state.Length == 0 {
		return 0, 0, 0, fmt.Errorf("state has no series length")
	}

	var correct int
	var consumed float64
	for i := range state.Records {
		rec := state.Records[i]
		if !rec.Closed {
			return 0, 0, 0, fmt.Errorf("instance %d is still open", rec.Index)
		}
		if rec.Class == y[rec.Index] {
			correct++
		}
		consumed += float64(rec.ClosedAt) / float64(state.Length)
	}

	acc := float64(correct) / float64(state.Total())
	earliness := consumed / float64(state.Total())

	timeliness := 1 - earliness
	if acc == 0 || timeliness == 0 {
		return 0, acc, earliness, nil
	}
	hm := 2 * acc * timeliness / (acc + timeliness)
	return hm, acc, earliness, nil
}
