package di

import (
	"context"
	"fmt"
	"io"
	"time"

	"ConfluenceCal/internal/domain/repository"
	"ConfluenceCal/internal/domain/service"
	"ConfluenceCal/internal/handler/api"
	internalrepo "ConfluenceCal/internal/repository"
	svccache "ConfluenceCal/internal/service/cache"
	"ConfluenceCal/internal/services/optimizer"
	"ConfluenceCal/internal/services/scoring"
	"ConfluenceCal/internal/usecase"
	"ConfluenceCal/pkg/cache"
	pkgch "ConfluenceCal/pkg/clickhouse"
	"ConfluenceCal/pkg/config"
	xhttp "ConfluenceCal/pkg/http"
	pkgkafka "ConfluenceCal/pkg/kafka"
	applogger "ConfluenceCal/pkg/logger"
	"ConfluenceCal/pkg/metrics"
	"ConfluenceCal/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Logger.Level,
		Format: cfg.Logger.Format,
		Output: cfg.Logger.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client and its schema. It
// returns nil when ClickHouse is disabled.
func ProvideClickHouseClient(cfg *config.Config, l *applogger.Logger) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(cfg.ClickHouse.MaxOpenConns, cfg.ClickHouse.MaxIdleConns),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.Schema(client.Database())); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	l.Info("clickhouse: connected and schema ready", applogger.String("db", client.Database()))
	return client, nil
}

// ProvideCache returns Redis behind an in-memory L1, or a memory-only cache
// when Redis is disabled.
func ProvideCache(cfg *config.Config, l *applogger.Logger) (cache.Service, error) {
	if !cfg.Redis.Enabled {
		l.Warn("redis disabled: published weights are kept in process memory only")
		return cache.NewMemoryCache(cache.WithMemoryMaxSize(cfg.Redis.L1Size)), nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Host, cfg.Redis.Port),
		cache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
		cache.WithRedisPool(cfg.Redis.PoolSize, cfg.Redis.MinIdleConns, cfg.Redis.Timeout),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return cache.NewLayeredCache(rc,
		cache.WithLayeredMemorySize(cfg.Redis.L1Size),
		cache.WithLayeredMemoryTTL(cfg.Redis.L1TTL),
	), nil
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAutoCreateTopics(cfg.Kafka.Producer.AutoCreateTopics),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideScorer creates the shared map-reduce scorer.
func ProvideScorer(cfg *config.Config) *scoring.Scorer {
	opts := []scoring.Option{}
	if cfg.Optimizer.ScoreWorkers > 0 {
		opts = append(opts, scoring.WithWorkers(cfg.Optimizer.ScoreWorkers))
	}
	if cfg.Optimizer.ChunkSize > 0 {
		opts = append(opts, scoring.WithChunkSize(cfg.Optimizer.ChunkSize))
	}
	return scoring.New(opts...)
}

// ProvideOptimizerConfig maps the optimizer section onto optimizer.Config.
func ProvideOptimizerConfig(cfg *config.Config) (optimizer.Config, error) {
	oc := optimizer.DefaultConfig()
	opts := []optimizer.Option{
		optimizer.WithLearningRate(cfg.Optimizer.LearningRate),
		optimizer.WithIterations(cfg.Optimizer.Iterations),
		optimizer.WithFDStep(cfg.Optimizer.FDStep),
		optimizer.WithDecay(cfg.Optimizer.DecayEvery, cfg.Optimizer.DecayFactor),
	}
	if cfg.Optimizer.Workers > 0 {
		opts = append(opts, optimizer.WithWorkers(cfg.Optimizer.Workers))
	}
	for _, o := range opts {
		o(&oc)
	}
	if err := oc.Validate(); err != nil {
		return oc, fmt.Errorf("optimizer config: %w", err)
	}
	return oc, nil
}

// ProvideSettings maps the calibration section onto usecase.Settings.
func ProvideSettings(cfg *config.Config) usecase.Settings {
	s := usecase.DefaultSettings()
	s.MinTerminalSignals = cfg.Calibration.MinTerminalSignals
	s.Lookback = cfg.Calibration.Lookback
	s.Timeframe = repository.NormalizeTimeframe(cfg.Calibration.CandleTimeframe)
	s.Version = cfg.Calibration.Version
	s.LockTTL = cfg.Calibration.LockTTL
	return s
}

// ProvideCalibrationUseCase wires every configured store into the use case.
// Disabled backends are left out so the steps needing them are skipped.
func ProvideCalibrationUseCase(
	cfg *config.Config,
	scorer *scoring.Scorer,
	optCfg optimizer.Config,
	settings usecase.Settings,
	ch *pkgch.Client,
	c cache.Service,
	producer *pkgkafka.Producer,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.CalibrationUseCase {
	weights := internalrepo.NewRedisWeightStore(c, cfg.Calibration.CachePrefix, cfg.Calibration.WeightsTTL)
	weights.SetLogger(l)

	opts := []usecase.Option{
		usecase.WithWeightStore(weights),
		usecase.WithRunLock(weights),
		usecase.WithWeightCache(svccache.NewWeightCache(cfg.Calibration.CacheTTL)),
		usecase.WithMetrics(m),
		usecase.WithLogger(l),
	}
	if ch != nil {
		signals := internalrepo.NewCHSignalStore(ch)
		signals.SetLogger(l)
		candles := internalrepo.NewCHCandleStore(ch)
		candles.SetLogger(l)
		runs := internalrepo.NewCHRunStore(ch)
		runs.SetLogger(l)
		opts = append(opts,
			usecase.WithSignalStore(signals),
			usecase.WithCandleStore(candles),
			usecase.WithRunStore(runs),
		)
	}
	if producer != nil {
		opts = append(opts, usecase.WithPublisher(internalrepo.NewKafkaWeightPublisher(producer, cfg.Calibration.EventsTopic)))
	}
	return usecase.NewCalibrationUseCase(scorer, optCfg, settings, opts...)
}

// ProvideCalibrator exposes the use case through its service interface.
func ProvideCalibrator(uc *usecase.CalibrationUseCase) service.Calibrator {
	return uc
}

// ProvideKafkaConsumer creates the calibration requests consumer, or nil
// when Kafka or the consumer is disabled.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerHandleTimeout(cfg.Kafka.Consumer.HandleTimeout),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.NewHookChain(pkgkafka.TraceHook(), pkgkafka.LoggingHook(l)))
	return consumer, nil
}

// ProvideRequestsHandler handles the calibration requests topic.
func ProvideRequestsHandler(cfg *config.Config, cal service.Calibrator, m repository.Metrics, l *applogger.Logger) *usecase.CalibrationRequestsHandler {
	h := usecase.NewCalibrationRequestsHandler(cfg.Calibration.RequestsTopic, cal, m)
	h.SetLogger(l)
	return h
}

// ProvideScheduler creates the periodic recalibration of configured symbols.
func ProvideScheduler(cfg *config.Config, cal service.Calibrator, m repository.Metrics, l *applogger.Logger) *usecase.RecalibrationScheduler {
	s := usecase.NewRecalibrationScheduler(cal, cfg.Calibration.Symbols, cfg.Calibration.Schedule, m)
	s.SetLogger(l)
	return s
}

// ProvideHTTPHandler creates the calibration API handler.
func ProvideHTTPHandler(cfg *config.Config, cal service.Calibrator, l *applogger.Logger) *api.CalibrationEchoHandler {
	return api.NewCalibrationEchoHandler(cal, l, api.RateLimit{
		Capacity:     cfg.Server.RateLimit.Capacity,
		RefillPerSec: cfg.Server.RateLimit.RefillPerSec,
	})
}

// ProvideHTTPServer creates the Echo server with every API handler.
func ProvideHTTPServer(cfg *config.Config, h *api.CalibrationEchoHandler, l *applogger.Logger) *xhttp.Server {
	return xhttp.NewServer([]xhttp.Handler{h},
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithBodyLimit(cfg.Server.BodyLimit),
		xhttp.WithSlowRequest(cfg.Server.SlowRequest),
		xhttp.WithMetricsEndpoint(cfg.Metrics.Enabled),
		xhttp.WithLogger(l),
	)
}

// ProvideApp creates the application and attaches the error log collector.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	srv *xhttp.Server,
	consumer *pkgkafka.Consumer,
	kh *usecase.CalibrationRequestsHandler,
	scheduler *usecase.RecalibrationScheduler,
	ch *pkgch.Client,
	c cache.Service,
	producer *pkgkafka.Producer,
) *server.App {
	if cfg.Logger.CollectErrors {
		cc := &applogger.CollectionConfig{
			TimeInterval:   cfg.Logger.FlushInterval,
			CountThreshold: cfg.Logger.Threshold,
			KeepRecent:     cfg.Logger.KeepRecent,
			Topic:          cfg.Kafka.LogsTopic,
		}
		if producer != nil {
			cc.Publisher = internalrepo.NewKafkaLogPublisher(producer)
		}
		l.AddCollector(cc)
	}

	closers := []io.Closer{c}
	if ch != nil {
		closers = append(closers, ch)
	}
	if producer != nil {
		closers = append(closers, producer)
	}
	var handler pkgkafka.MessageHandler
	if consumer != nil {
		handler = kh
	}
	return server.New(cfg, l, srv, consumer, handler, scheduler, closers...)
}
