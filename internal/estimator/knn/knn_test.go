package knn

import (
	"context"
	"testing"

	"teaser/internal/series"
)

func trainBatch() (series.Batch, []string) {
	x := series.Batch{
		series.New([][]float64{{0, 0, 0}}),
		series.New([][]float64{{0.1, 0.1, 0.1}}),
		series.New([][]float64{{0.2, 0, 0.1}}),
		series.New([][]float64{{10, 10, 10}}),
		series.New([][]float64{{10.1, 10, 9.9}}),
		series.New([][]float64{{9.9, 10.2, 10}}),
	}
	y := []string{"low", "low", "low", "high", "high", "high"}
	return x, y
}

func TestKnnPredictProba(t *testing.T) {
	x, y := trainBatch()

	n, err := New(WithKNum(3))
	if err != nil {
		t.Fatalf("calling the New method, err got: %v, expected: nil", err)
	}
	if err := n.Fit(context.Background(), x, y); err != nil {
		t.Fatalf("calling the Fit method, err got: %v, expected: nil", err)
	}

	classes := n.Classes()
	if len(classes) != 2 || classes[0] != "high" || classes[1] != "low" {
		t.Fatalf("the classes must be sorted and unique, got: %v", classes)
	}

	tests := []struct {
		name     string
		query    series.Series
		expected string
	}{
		{name: "near_low", query: series.New([][]float64{{0.05, 0.05, 0}}), expected: "low"},
		{name: "near_high", query: series.New([][]float64{{9.8, 10.1, 10}}), expected: "high"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			probas, err := n.PredictProba(context.Background(), series.Batch{test.query})
			if err != nil {
				t.Fatalf("calling the PredictProba method, err got: %v, expected: nil", err)
			}
			if got := classes[probas[0].ArgMax()]; got != test.expected {
				t.Errorf("classified as %v, expected: %v", got, test.expected)
			}
			if probas[0][probas[0].ArgMax()] != 1 {
				t.Errorf("unanimous neighbours must give probability 1, got: %v", probas[0])
			}
		})
	}
}

func TestKnnErrors(t *testing.T) {
	if _, err := New(WithKNum(0)); err == nil {
		t.Errorf("zero k must return an error")
	}

	n, err := New()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := n.PredictProba(context.Background(), series.Batch{series.New([][]float64{{1}})}); err != ErrNotFitted {
		t.Errorf("predict before fit, err got: %v, expected: %v", err, ErrNotFitted)
	}

	x, y := trainBatch()
	if err := n.Fit(context.Background(), x, y[:2]); err == nil {
		t.Errorf("a label count mismatch must return an error")
	}
}
