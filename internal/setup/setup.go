package setup

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kelseyhightower/envconfig"

	"teaser/internal/cache"
	"teaser/internal/database"
	"teaser/internal/dataset"
	"teaser/internal/early"
	"teaser/internal/estimator"
	"teaser/internal/estimator/forest"
	"teaser/internal/estimator/knn"
	"teaser/internal/estimator/oneclass"
	"teaser/internal/logging"
	"teaser/internal/notify"
	"teaser/internal/srvenv"
	stateDb "teaser/internal/state/database"
	"teaser/internal/state/model"
	"teaser/internal/stream"
)

type EarlyConfigProvider interface {
	EarlyConfig() *early.Config
}

type EstimatorConfigProvider interface {
	EstimatorConfig() *estimator.Config
	EstimatorType() estimator.AlgType
}

type DatasetConfigProvider interface {
	DatasetConfig() *dataset.Config
}

type StreamConfigProvider interface {
	StreamConfig() *stream.Config
}

type NotifierConfigProvider interface {
	NotifyConfig() *notify.Config
}

type DatabaseConfigProvider interface {
	DatabaseConfig() *database.Config
}

type CacheConfigProvider interface {
	CacheConfig() *cache.Config
}

func Setup(ctx context.Context, config interface{}) (*srvenv.SrvEnv, error) {
	logger := logging.FromContext(ctx)
	var serverEnvOpts []srvenv.Option
	if err := envconfig.Process("", config); err != nil {
		return nil, fmt.Errorf("error loading environment variables: %w", err)
	}

	var (
		db                  *database.DB
		sessionCache        *cache.Cache
		classifierProvideFn stream.ProvideClassifierFn
		notifierProvideFn   notify.ProvideFn
		streamProvideFn     stream.ProvideFn
	)
	if dbConfigProvider, ok := config.(DatabaseConfigProvider); ok {
		logger.Info("Configuring db")
		if err := envconfig.Process("", dbConfigProvider.DatabaseConfig()); err != nil {
			return nil, fmt.Errorf("dont process db env: %w", err)
		}
		dbFromEnv, err := database.NewFromEnv(ctx, dbConfigProvider.DatabaseConfig())
		if err != nil {
			return nil, fmt.Errorf("unable to connect to database: %v", err)
		}
		db = dbFromEnv
		serverEnvOpts = append(serverEnvOpts, srvenv.WithDatabase(db))
	}

	if cacheConfigProvider, ok := config.(CacheConfigProvider); ok {
		cfg := cacheConfigProvider.CacheConfig()
		if err := envconfig.Process("", cfg); err != nil {
			return nil, fmt.Errorf("dont process cache env: %w", err)
		}
		if cfg.Addr != "" {
			logger.Info("Configuring session cache")
			c, err := cache.New(ctx, cfg)
			if err != nil {
				return nil, fmt.Errorf("unable to connect to cache: %v", err)
			}
			sessionCache = c
			serverEnvOpts = append(serverEnvOpts, srvenv.WithCache(sessionCache))
		}
	}

	if notifyConfigProvider, ok := config.(NotifierConfigProvider); ok {
		logger.Info("Configuring notifier")

		provideFn, err := ProvideNotifierFor(notifyConfigProvider)
		if err != nil {
			return nil, fmt.Errorf("unable create notifier provide function: %v", err)
		}
		notifierProvideFn = provideFn
		serverEnvOpts = append(serverEnvOpts, srvenv.WithNotifier(notifierProvideFn))
	}

	if estimatorConfigProvider, ok := config.(EstimatorConfigProvider); ok {
		logger.Info("Configuring classifier")
		earlyConfigProvider, ok := config.(EarlyConfigProvider)
		if !ok {
			return nil, fmt.Errorf("unable read early classifier config")
		}
		datasetConfigProvider, ok := config.(DatasetConfigProvider)
		if !ok {
			return nil, fmt.Errorf("unable read dataset config")
		}
		provideFn, err := ProvideClassifierFor(
			ctx,
			estimatorConfigProvider,
			earlyConfigProvider.EarlyConfig(),
			datasetConfigProvider.DatasetConfig(),
			db,
		)
		if err != nil {
			return nil, fmt.Errorf("unable create classifier provide function: %v", err)
		}
		classifierProvideFn = provideFn
		serverEnvOpts = append(serverEnvOpts, srvenv.WithClassifier(classifierProvideFn))
	}

	if streamConfigProvider, ok := config.(StreamConfigProvider); ok {
		logger.Info("Configuring stream manager")
		provideFn, err := ProvideStreamFor(streamConfigProvider, classifierProvideFn, sessionCache, db)
		if err != nil {
			return nil, fmt.Errorf("unable create stream provide function: %v", err)
		}
		streamProvideFn = provideFn
		serverEnvOpts = append(serverEnvOpts, srvenv.WithStream(streamProvideFn))
	}

	return srvenv.New(serverEnvOpts...), nil
}

func ProvideNotifierFor(provider NotifierConfigProvider) (notify.ProvideFn, error) {
	cfg := provider.NotifyConfig()
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("dont process notifier env: %w", err)
	}
	return func(shutdownCh chan<- error) (notify.Manager, error) {
		return notify.New(
			shutdownCh,
			notify.WithMaxConcurrentRequest(cfg.MaxConcurrentRequest),
			notify.WithInterval(cfg.Interval),
			notify.WithTargets(cfg.Targets),
		)
	}, nil
}

func ProvideStreamFor(
	provider StreamConfigProvider,
	classifierFn stream.ProvideClassifierFn,
	sessionCache *cache.Cache,
	db *database.DB,
) (stream.ProvideFn, error) {
	cfg := provider.StreamConfig()
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("dont process stream env: %w", err)
	}
	return func(notifier notify.Manager, shutdownCh chan<- error) (stream.Manager, error) {
		opts := []stream.Option{
			stream.WithMaxStoredSessions(cfg.MaxStoredSessions),
			stream.WithMaxSessionIdleTime(cfg.MaxSessionIdleTime),
			stream.WithRebuildDBTime(cfg.RebuildDBTime),
			stream.WithDBFlushTime(cfg.DBFlushTime),
			stream.WithDBFlushSize(cfg.DBFlushSize),
		}
		if sessionCache != nil {
			opts = append(opts, stream.WithCache(sessionCache))
		}
		return stream.New(db, classifierFn, notifier, shutdownCh, opts...)
	}, nil
}

// ProvideClassifierFor fits an early classifier on the configured
// dataset and returns a factory the service clones sessions from.
func ProvideClassifierFor(
	ctx context.Context,
	provider EstimatorConfigProvider,
	earlyCfg *early.Config,
	datasetCfg *dataset.Config,
	db *database.DB,
) (stream.ProvideClassifierFn, error) {
	logger := logging.FromContext(ctx)
	if err := envconfig.Process("", earlyCfg); err != nil {
		return nil, fmt.Errorf("dont process early classifier env: %w", err)
	}
	if err := envconfig.Process("", datasetCfg); err != nil {
		return nil, fmt.Errorf("dont process dataset env: %w", err)
	}

	estimatorFn, err := provideEstimatorFor(provider)
	if err != nil {
		return nil, fmt.Errorf("unable provide base estimator: %v", err)
	}
	oneClassFn, err := provideOneClassFn()
	if err != nil {
		return nil, fmt.Errorf("unable provide one class estimator: %v", err)
	}

	ds, err := dataset.Load(datasetCfg.Manifest)
	if err != nil {
		return nil, fmt.Errorf("unable load dataset: %v", err)
	}

	cls, err := early.New(
		early.WithClassificationPoints(earlyCfg.ClassificationPoints),
		early.WithNumPoints(earlyCfg.NumPoints),
		early.WithConsecutive(earlyCfg.Consecutive),
		early.WithEstimator(estimatorFn),
		early.WithOneClass(oneClassFn),
	)
	if err != nil {
		return nil, fmt.Errorf("unable create early classifier: %v", err)
	}

	logger.Infof("Fitting classifier on dataset %s, %d train instances", ds.Name, ds.Train.Len())
	if err := cls.Fit(ctx, ds.Train, ds.TrainY); err != nil {
		return nil, fmt.Errorf("unable fit classifier: %v", err)
	}

	if db != nil {
		info := model.ModelInfo{
			ID:       uuid.New(),
			Dataset:  ds.Name,
			Classes:  cls.Classes(),
			Points:   cls.Points(),
			FittedAt: time.Now(),
		}
		if err := stateDb.New(db).SaveModelInfo(ctx, info); err != nil {
			logger.Errorf("unable save model info: %v", err)
		}
	}

	return func() (*early.Classifier, error) {
		return cls, nil
	}, nil
}

func provideEstimatorFor(provider EstimatorConfigProvider) (estimator.ProvideFn, error) {
	switch provider.EstimatorType() {
	case estimator.AlgTypeForest:
		cfg := forest.Config{}
		if err := envconfig.Process("", &cfg); err != nil {
			return nil, fmt.Errorf("error loading environment variables: %w", err)
		}
		return func() (estimator.ProbaEstimator, error) {
			f, err := forest.New(
				forest.WithTrees(cfg.Trees),
				forest.WithMaxDepth(cfg.MaxDepth),
				forest.WithMinLeaf(cfg.MinLeaf),
				forest.WithIntervals(cfg.Intervals),
				forest.WithSeed(cfg.RandomState),
			)
			if err != nil {
				return nil, fmt.Errorf("unable create forest instance: %v", err)
			}
			return f, nil
		}, nil
	case estimator.AlgTypeKNN:
		cfg := knn.Config{}
		if err := envconfig.Process("", &cfg); err != nil {
			return nil, fmt.Errorf("error loading environment variables: %w", err)
		}
		distFunc, err := oneclass.DistanceFuncFor(cfg.MetricFuncType)
		if err != nil {
			return nil, fmt.Errorf("unable provide distance function: %v", err)
		}
		return func() (estimator.ProbaEstimator, error) {
			k, err := knn.New(
				knn.WithKNum(cfg.KNum),
				knn.WithDistance(distFunc),
			)
			if err != nil {
				return nil, fmt.Errorf("unable create knn instance: %v", err)
			}
			return k, nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown estimator type: %s", provider.EstimatorType())
	}
}

func provideOneClassFn() (estimator.OneClassProvideFn, error) {
	cfg := oneclass.Config{}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error loading environment variables: %w", err)
	}
	distFunc, err := oneclass.DistanceFuncFor(cfg.MetricFuncType)
	if err != nil {
		return nil, fmt.Errorf("unable provide distance function: %v", err)
	}
	return func() (estimator.OneClass, error) {
		l, err := oneclass.New(
			oneclass.WithKNum(cfg.KNum),
			oneclass.WithThreshold(cfg.Threshold),
			oneclass.WithDistance(distFunc),
		)
		if err != nil {
			return nil, fmt.Errorf("unable create one class instance: %v", err)
		}
		return l, nil
	}, nil
}
