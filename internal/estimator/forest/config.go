package forest

type Config struct {
	Trees       int   `envconfig:"TEASER_FOREST_TREES" default:"50"`
	MaxDepth    int   `envconfig:"TEASER_FOREST_MAX_DEPTH" default:"8"`
	MinLeaf     int   `envconfig:"TEASER_FOREST_MIN_LEAF" default:"1"`
	Intervals   int   `envconfig:"TEASER_FOREST_INTERVALS"`
	RandomState int64 `envconfig:"TEASER_RANDOM_STATE"`
}
