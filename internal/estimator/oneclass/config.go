package oneclass

import (
	"fmt"

	"teaser/internal/estimator"
	"teaser/pkg/math/vector"
)

const MinKNum = 3

type DistanceFuncType string

const (
	DistanceFuncTypeEuclidean DistanceFuncType = "EUCLIDEAN"
	DistanceFuncTypeChebyshev DistanceFuncType = "CHEBYSHEV"
	DistanceFuncTypeManhattan DistanceFuncType = "MANHATTAN"
)

type Config struct {
	KNum           int              `envconfig:"TEASER_ONECLASS_K_NUM" default:"3"`
	Threshold      float64          `envconfig:"TEASER_ONECLASS_THRESHOLD" default:"1.5"`
	MetricFuncType DistanceFuncType `envconfig:"TEASER_ONECLASS_DISTANCE_FUNC" default:"EUCLIDEAN"`
}

func DistanceFuncFor(d DistanceFuncType) (estimator.PointsDistanceFn, error) {
	switch d {
	case DistanceFuncTypeChebyshev:
		return vector.ChebyshevDistance, nil
	case DistanceFuncTypeEuclidean:
		return vector.EuclideanDistance, nil
	case DistanceFuncTypeManhattan:
		return vector.ManhattanDistance, nil
	default:
		return nil, fmt.Errorf("unknown distance function: %s", d)
	}
}
