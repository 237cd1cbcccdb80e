package knn

import "teaser/internal/estimator/oneclass"

type Config struct {
	KNum           int                       `envconfig:"TEASER_KNN_K_NUM" default:"5"`
	MetricFuncType oneclass.DistanceFuncType `envconfig:"TEASER_KNN_DISTANCE_FUNC" default:"EUCLIDEAN"`
}
