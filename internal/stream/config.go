package stream

import "time"

type Config struct {
	MaxStoredSessions  int           `envconfig:"TEASER_STREAM_MAX_STORED_SESSIONS" default:"1024"`
	MaxSessionIdleTime time.Duration `envconfig:"TEASER_STREAM_MAX_SESSION_IDLE_TIME" default:"1h"`
	RebuildDBTime      time.Duration `envconfig:"TEASER_STREAM_REBUILD_DB_TIME" default:"1m"`
	DBFlushTime        time.Duration `envconfig:"TEASER_STREAM_DB_FLUSH_TIME" default:"5s"`
	DBFlushSize        int           `envconfig:"TEASER_STREAM_DB_FLUSH_SIZE" default:"64"`
}
