package collect

import "time"

type Config struct {
	RequestTimeout time.Duration `envconfig:"TEASER_COLLECT_REQUEST_TIMEOUT" default:"30s"`
}
