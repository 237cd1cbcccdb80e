package estimator

type AlgType string

const (
	AlgTypeForest AlgType = "FOREST"
	AlgTypeKNN    AlgType = "KNN"
)

type Config struct {
	Type AlgType `envconfig:"TEASER_ESTIMATOR_TYPE" default:"FOREST"`
}
