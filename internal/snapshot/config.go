package snapshot

import "time"

type Config struct {
	RequestTimeout time.Duration `envconfig:"TEASER_SNAPSHOT_REQUEST_TIMEOUT" default:"10s"`
}
