package early

type Config struct {
	// ClassificationPoints are the prefix lengths at which a stop or
	// continue decision may be attempted. When empty, NumPoints evenly
	// spaced checkpoints over the series length are used.
	ClassificationPoints []int `envconfig:"TEASER_CLASSIFICATION_POINTS"`
	NumPoints            int   `envconfig:"TEASER_NUM_POINTS" default:"20"`
	// Consecutive is the number of successive accepted checkpoints with
	// a stable predicted class required to close an instance early.
	Consecutive int `envconfig:"TEASER_CONSECUTIVE" default:"3"`
}
