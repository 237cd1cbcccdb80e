package oneclass

import (
	"testing"

	"teaser/pkg/math/vector"
)

func clusterPoints() []vector.V {
	return []vector.V{
		{0, 0}, {0, 1}, {1, 0}, {1, 1}, {0.5, 0.5}, {0.2, 0.8},
	}
}

func TestLofAccept(t *testing.T) {
	tests := []struct {
		name     string
		p        vector.V
		expected bool
	}{
		{name: "positive_inlier", p: vector.V{0.5, 0.4}, expected: true},
		{name: "positive_fitted_point", p: vector.V{1, 1}, expected: true},
		{name: "negative_outlier", p: vector.V{10, 10}, expected: false},
	}

	l, err := New()
	if err != nil {
		t.Fatalf("calling the New method, err got: %v, expected: nil", err)
	}
	if err := l.Fit(clusterPoints()); err != nil {
		t.Fatalf("calling the Fit method, err got: %v, expected: nil", err)
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := l.Accept(test.p)
			if err != nil {
				t.Fatalf("calling the Accept method, err got: %v, expected: nil", err)
			}
			if got != test.expected {
				t.Errorf("calling the Accept method, got: %v, expected: %v", got, test.expected)
			}
		})
	}
}

func TestLofAcceptSmallPopulation(t *testing.T) {
	l, err := New()
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Fit([]vector.V{{0, 0}, {1, 1}}); err != nil {
		t.Fatal(err)
	}

	// with fewer points than k there is no density to compare against
	got, err := l.Accept(vector.V{100, 100})
	if err != nil {
		t.Fatalf("calling the Accept method, err got: %v, expected: nil", err)
	}
	if !got {
		t.Errorf("a small population must accept every point")
	}
}

func TestLofFitResetLen(t *testing.T) {
	l, err := New()
	if err != nil {
		t.Fatal(err)
	}

	if _, err := l.Accept(vector.V{0, 0}); err == nil {
		t.Errorf("accept before fit must return an error")
	}
	if err := l.Fit(nil); err == nil {
		t.Errorf("fitting on an empty point set must return an error")
	}

	if err := l.Fit(clusterPoints()); err != nil {
		t.Fatal(err)
	}
	if l.Len() != 6 {
		t.Errorf("calling the Len method, got: %v, expected: 6", l.Len())
	}
	l.Reset()
	if l.Len() != 0 {
		t.Errorf("calling the Len method after Reset, got: %v, expected: 0", l.Len())
	}
}

func TestLofNewValidation(t *testing.T) {
	if _, err := New(WithKNum(1)); err == nil {
		t.Errorf("too small k must return an error")
	}
	if _, err := New(WithThreshold(0)); err == nil {
		t.Errorf("non positive threshold must return an error")
	}
}
