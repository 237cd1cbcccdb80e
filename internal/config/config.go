package teaser

import (
	"teaser/internal/cache"
	"teaser/internal/classify"
	"teaser/internal/collect"
	"teaser/internal/database"
	"teaser/internal/dataset"
	"teaser/internal/early"
	"teaser/internal/estimator"
	"teaser/internal/notify"
	"teaser/internal/setup"
	"teaser/internal/snapshot"
	"teaser/internal/stream"
)

var (
	_ setup.EarlyConfigProvider     = (*Config)(nil)
	_ setup.EstimatorConfigProvider = (*Config)(nil)
	_ setup.DatasetConfigProvider   = (*Config)(nil)
	_ setup.StreamConfigProvider    = (*Config)(nil)
	_ setup.NotifierConfigProvider  = (*Config)(nil)
	_ setup.DatabaseConfigProvider  = (*Config)(nil)
	_ setup.CacheConfigProvider     = (*Config)(nil)
)

type Config struct {
	SrvAddr     string `envconfig:"TEASER_ADDR" default:":8787"`
	GRPCAddr    string `envconfig:"TEASER_GRPC_ADDR" default:":8788"`
	ProfilerSrv string `envconfig:"TEASER_PROFILER_ADDR" default:""`
	Early       early.Config
	Estimator   estimator.Config
	Dataset     dataset.Config
	Stream      stream.Config
	Classify    classify.Config
	Collect     collect.Config
	Snapshot    snapshot.Config
	Database    database.Config
	Notify      notify.Config
	Cache       cache.Config
}

func (c *Config) EarlyConfig() *early.Config {
	return &c.Early
}

func (c *Config) EstimatorConfig() *estimator.Config {
	return &c.Estimator
}

func (c *Config) EstimatorType() estimator.AlgType {
	return c.Estimator.Type
}

func (c *Config) DatasetConfig() *dataset.Config {
	return &c.Dataset
}

func (c *Config) StreamConfig() *stream.Config {
	return &c.Stream
}

func (c *Config) ClassifyConfig() *classify.Config {
	return &c.Classify
}

func (c *Config) CollectConfig() *collect.Config {
	return &c.Collect
}

func (c *Config) SnapshotConfig() *snapshot.Config {
	return &c.Snapshot
}

func (c *Config) DatabaseConfig() *database.Config {
	return &c.Database
}

func (c *Config) NotifyConfig() *notify.Config {
	return &c.Notify
}

func (c *Config) CacheConfig() *cache.Config {
	return &c.Cache
}
