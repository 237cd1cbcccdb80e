package estimator

import (
	"context"

	"teaser/internal/series"
	"teaser/pkg/math/vector"
)

// ProvideFn is the contract for returning a fresh base estimator instance.
type ProvideFn func() (ProbaEstimator, error)

// OneClassProvideFn returns a fresh safety estimator instance.
type OneClassProvideFn func() (OneClass, error)

type PointsDistanceFn func(vec, vec1 []float64) (float64, error)

// ProbaEstimator is any classifier producing per-class probability
// vectors from fixed-length series input.
type ProbaEstimator interface {
	Fit(ctx context.Context, x series.Batch, y []string) error
	// PredictProba returns one probability vector per instance,
	// ordered by Classes.
	PredictProba(ctx context.Context, x series.Batch) ([]vector.V, error)
	Classes() []string
}

// OneClass judges whether a feature vector belongs to the population
// it was fitted on. Used as the per-checkpoint safety estimator.
type OneClass interface {
	Fit(points []vector.V) error
	Accept(p vector.V) (bool, error)
	Len() int
	Reset()
}
