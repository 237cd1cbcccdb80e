package notify

import (
	"encoding/json"
	"time"

	"teaser/internal/httputil"
)

type Config struct {
	Targets              Targets       `envconfig:"TEASER_NOTIFY_TARGET_URLS"`
	MaxConcurrentRequest int           `envconfig:"TEASER_NOTIFY_MAX_CONCURRENT_REQUEST" default:"64"`
	Interval             time.Duration `envconfig:"TEASER_NOTIFY_INTERVAL" default:"5s"`
}

type Targets []Target

func (ts *Targets) Decode(value string) error {
	targets := []Target{}
	if err := json.Unmarshal([]byte(value), &targets); err != nil {
		return err
	}
	*ts = targets
	return nil
}

type Target struct {
	URL        string                    `json:"url"`
	HTTPConfig httputil.HTTPClientConfig `json:"httpConfig"`
}
