package vector

import (
	"math"
	"testing"
)

func TestVecArgMax(t *testing.T) {
	tests := []struct {
		name     string
		v        V
		expected int
	}{
		{name: "single", v: V{0.5}, expected: 0},
		{name: "last", v: V{0.1, 0.2, 0.7}, expected: 2},
		{name: "first_on_tie", v: V{0.5, 0.5}, expected: 0},
		{name: "negative_values", v: V{-3, -1, -2}, expected: 1},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := test.v.ArgMax(); got != test.expected {
				t.Errorf("compute ArgMax, got: %v, expected: %v", got, test.expected)
			}
		})
	}
}

func TestVecMargin(t *testing.T) {
	tests := []struct {
		name     string
		v        V
		expected float64
	}{
		{name: "empty", v: V{}, expected: 0},
		{name: "single", v: V{0.9}, expected: 0.9},
		{name: "spread", v: V{0.1, 0.7, 0.2}, expected: 0.5},
		{name: "tie", v: V{0.5, 0.5}, expected: 0},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := test.v.Margin()
			if math.Abs(got-test.expected) > 1e-12 {
				t.Errorf("compute Margin, got: %v, expected: %v", got, test.expected)
			}
		})
	}
}

func TestVecSlope(t *testing.T) {
	tests := []struct {
		name     string
		v        V
		expected float64
	}{
		{name: "short", v: V{1}, expected: 0},
		{name: "flat", v: V{2, 2, 2, 2}, expected: 0},
		{name: "rising", v: V{0, 1, 2, 3}, expected: 1},
		{name: "falling", v: V{3, 1, -1}, expected: -2},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := test.v.Slope()
			if math.Abs(got-test.expected) > 1e-12 {
				t.Errorf("compute Slope, got: %v, expected: %v", got, test.expected)
			}
		})
	}
}

func TestVecNorm(t *testing.T) {
	tests := []struct {
		name     string
		v        V
		expected V
	}{
		{name: "positive", v: V{1, 3}, expected: V{0.25, 0.75}},
		{name: "zero_sum", v: V{0, 0}, expected: V{0, 0}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			test.v.Norm()
			if !test.v.Equal(test.expected) {
				t.Errorf("compute Norm, got: %v, expected: %v", test.v, test.expected)
			}
		})
	}
}

func TestVecStd(t *testing.T) {
	tests := []struct {
		name     string
		v        V
		expected float64
	}{
		{name: "short", v: V{5}, expected: 0},
		{name: "flat", v: V{1, 1, 1}, expected: 0},
		{name: "sample", v: V{2, 4, 4, 4, 5, 5, 7, 9}, expected: 2.138089935299395},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := test.v.Std()
			if math.Abs(got-test.expected) > 1e-12 {
				t.Errorf("compute Std, got: %v, expected: %v", got, test.expected)
			}
		})
	}
}
