package srvenv

import (
	"teaser/internal/cache"
	"teaser/internal/database"
	"teaser/internal/notify"
	"teaser/internal/stream"
)

type Option func(*SrvEnv) *SrvEnv

func New(opts ...Option) *SrvEnv {
	env := &SrvEnv{}
	for _, f := range opts {
		env = f(env)
	}

	return env
}

type SrvEnv struct {
	database   *database.DB
	cache      *cache.Cache
	classifier stream.ProvideClassifierFn
	stream     stream.ProvideFn
	notifier   notify.ProvideFn
}

func (s *SrvEnv) ProvideNotifier() notify.ProvideFn {
	return s.notifier
}

func (s *SrvEnv) ProvideStream() stream.ProvideFn {
	return s.stream
}

func (s *SrvEnv) ProvideClassifier() stream.ProvideClassifierFn {
	return s.classifier
}

func (s *SrvEnv) Database() *database.DB {
	return s.database
}

func (s *SrvEnv) Cache() *cache.Cache {
	return s.cache
}

func WithNotifier(fn notify.ProvideFn) Option {
	return func(s *SrvEnv) *SrvEnv {
		s.notifier = fn
		return s
	}
}

func WithStream(fn stream.ProvideFn) Option {
	return func(s *SrvEnv) *SrvEnv {
		s.stream = fn
		return s
	}
}

func WithClassifier(fn stream.ProvideClassifierFn) Option {
	return func(s *SrvEnv) *SrvEnv {
		s.classifier = fn
		return s
	}
}

func WithDatabase(db *database.DB) Option {
	return func(s *SrvEnv) *SrvEnv {
		s.database = db
		return s
	}
}

func WithCache(c *cache.Cache) Option {
	return func(s *SrvEnv) *SrvEnv {
		s.cache = c
		return s
	}
}
