package series

import (
	"fmt"

	"teaser/pkg/math/vector"
)

var (
	ErrEmptySeries   = fmt.Errorf("series has no channels")
	ErrRaggedSeries  = fmt.Errorf("series channels have different lengths")
	ErrEmptyBatch    = fmt.Errorf("batch has no instances")
	ErrRaggedBatch   = fmt.Errorf("batch instances have different shapes")
	ErrShortPrefix   = fmt.Errorf("prefix is longer than the series")
	ErrLabelMismatch = fmt.Errorf("labels count does not match batch size")
)

// Series is one multivariate time series, channels by timepoints.
type Series []vector.V

func New(channels [][]float64) Series {
	s := make(Series, len(channels))
	for i := range channels {
		s[i] = vector.New(channels[i])
	}
	return s
}

func (s Series) Channels() int {
	return len(s)
}

// Length is the number of timepoints per channel.
func (s Series) Length() int {
	if len(s) == 0 {
		return 0
	}
	return len(s[0])
}

func (s Series) Validate() error {
	if len(s) == 0 {
		return ErrEmptySeries
	}
	length := len(s[0])
	for i := range s {
		if len(s[i]) != length {
			return ErrRaggedSeries
		}
	}
	return nil
}

// Prefix returns the first n timepoints of every channel.
// The returned series shares the backing arrays.
func (s Series) Prefix(n int) (Series, error) {
	if n > s.Length() {
		return nil, fmt.Errorf("prefix %d of series length %d: %w", n, s.Length(), ErrShortPrefix)
	}
	out := make(Series, len(s))
	for i := range s {
		out[i] = s[i][:n]
	}
	return out, nil
}

func (s Series) Copy() Series {
	out := make(Series, len(s))
	for i := range s {
		out[i] = s[i].Copy()
	}
	return out
}

// Batch is a set of series with a common shape.
type Batch []Series

func (b Batch) Len() int {
	return len(b)
}

func (b Batch) Channels() int {
	if len(b) == 0 {
		return 0
	}
	return b[0].Channels()
}

func (b Batch) Length() int {
	if len(b) == 0 {
		return 0
	}
	return b[0].Length()
}

func (b Batch) Validate() error {
	if len(b) == 0 {
		return ErrEmptyBatch
	}
	channels, length := b[0].Channels(), b[0].Length()
	for i := range b {
		if err := b[i].Validate(); err != nil {
			return fmt.Errorf("instance %d: %w", i, err)
		}
		if b[i].Channels() != channels || b[i].Length() != length {
			return fmt.Errorf("instance %d: %w", i, ErrRaggedBatch)
		}
	}
	return nil
}

func (b Batch) Prefix(n int) (Batch, error) {
	out := make(Batch, len(b))
	for i := range b {
		p, err := b[i].Prefix(n)
		if err != nil {
			return nil, fmt.Errorf("instance %d: %w", i, err)
		}
		out[i] = p
	}
	return out, nil
}

// Select returns the instances at the given indices, in order.
func (b Batch) Select(indices []int) (Batch, error) {
	out := make(Batch, 0, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= len(b) {
			return nil, fmt.Errorf("index %d out of batch range %d", idx, len(b))
		}
		out = append(out, b[idx])
	}
	return out, nil
}

// ValidateLabels checks that y matches the batch size.
func (b Batch) ValidateLabels(y []string) error {
	if len(y) != len(b) {
		return fmt.Errorf("%d labels for %d instances: %w", len(y), len(b), ErrLabelMismatch)
	}
	return nil
}
