package di

import (
	"context"
	"fmt"
	"time"

	"PriceOpt/internal/domain/models"
	"PriceOpt/internal/domain/repository"
	"PriceOpt/internal/handler/api"
	internalrepo "PriceOpt/internal/repository"
	"PriceOpt/internal/service/competitor"
	"PriceOpt/internal/service/ratelimit"
	"PriceOpt/internal/services/optimizer"
	"PriceOpt/internal/usecase"
	"PriceOpt/pkg/cache"
	pkgch "PriceOpt/pkg/clickhouse"
	"PriceOpt/pkg/config"
	xhttp "PriceOpt/pkg/http"
	pkgkafka "PriceOpt/pkg/kafka"
	applogger "PriceOpt/pkg/logger"
	"PriceOpt/pkg/metrics"
	"PriceOpt/pkg/queue"
	"PriceOpt/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideRegistry returns the default registry so collectors registered by
// pkg/kafka through promauto are served on /metrics too.
func ProvideRegistry() *prometheus.Registry {
	if r, ok := prometheus.DefaultRegisterer.(*prometheus.Registry); ok {
		return r
	}
	r := prometheus.NewRegistry()
	r.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return r
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(cfg *config.Config, reg *prometheus.Registry) repository.Metrics {
	if !cfg.Metrics.Enabled {
		return metrics.Nop{}
	}
	return metrics.New(reg)
}

// ProvideRedisCache connects to Redis when the redis storage backend is
// selected; otherwise it returns nil.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	if cfg.Storage.Backend != "redis" {
		return nil, nil
	}
	rc, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return rc, nil
}

// ProvideClickHouseClient creates a ClickHouse client when enabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(cfg.ClickHouse.Config)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideKafkaProducer creates a Kafka producer when Kafka is enabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	pc := cfg.Kafka.Producer
	brokers := pc.Brokers
	if len(brokers) == 0 {
		brokers = cfg.Kafka.Brokers
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(brokers),
		pkgkafka.WithCompression(pc.Compression),
		pkgkafka.WithRequiredAcks(pc.RequiredAcks),
		pkgkafka.WithMaxAttempts(pc.MaxAttempts),
		pkgkafka.WithBatching(pc.BatchSize, pc.BatchTimeout),
		pkgkafka.WithWriteTimeout(pc.WriteTimeout),
		pkgkafka.WithAsync(pc.Async),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

func ProvideModelStore(rc *cache.RedisCache) repository.ModelStore {
	if rc != nil {
		return internalrepo.NewRedisModelStore(rc)
	}
	return internalrepo.NewMemoryModelStore()
}

func ProvideExperimentStore(rc *cache.RedisCache) repository.ExperimentStore {
	if rc != nil {
		return internalrepo.NewRedisExperimentStore(rc)
	}
	return internalrepo.NewMemoryExperimentStore()
}

// ProvideLocker returns nil without Redis; a single instance then relies on
// the orchestrator's in-process locks.
func ProvideLocker(rc *cache.RedisCache) repository.Locker {
	if rc == nil {
		return nil
	}
	return internalrepo.NewRedisLocker(rc)
}

// ProvideHistoryStore stores history in ClickHouse when a client is
// available and in a bounded in-memory store otherwise.
func ProvideHistoryStore(cfg *config.Config, ch *pkgch.Client, l *applogger.Logger) (repository.HistoryStore, error) {
	if ch == nil {
		return internalrepo.NewMemoryHistoryStore(cfg.Storage.HistoryMaxEntries), nil
	}
	store := internalrepo.NewClickHouseHistoryStore(ch)
	store.SetLogger(l)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return store, nil
}

func ProvideEventPublisher(cfg *config.Config, producer *pkgkafka.Producer) repository.EventPublisher {
	if producer == nil {
		return internalrepo.NopPublisher{}
	}
	return internalrepo.NewKafkaEventPublisher(producer, internalrepo.Topics(cfg.Kafka.Topics))
}

func ProvideCompetitorBook(cfg *config.Config) *competitor.Book {
	return competitor.NewBook(cfg.Competitor.MaxAge)
}

// ProvideCompetitorStream returns nil when the feed is disabled.
func ProvideCompetitorStream(cfg *config.Config, book *competitor.Book, l *applogger.Logger) *competitor.Stream {
	if !cfg.Competitor.Enabled {
		return nil
	}
	s := competitor.NewStream(cfg.Competitor.URL, cfg.Competitor.Products, book,
		cfg.Competitor.ReconnectDelay, cfg.Competitor.PingInterval)
	s.SetLogger(l.With(applogger.String("component", "competitor_feed")))
	return s
}

// ProvidePricingOrchestrator builds the orchestrator and seeds the sample
// catalog when configured.
func ProvidePricingOrchestrator(
	cfg *config.Config,
	store repository.ModelStore,
	experiments repository.ExperimentStore,
	history repository.HistoryStore,
	events repository.EventPublisher,
	m repository.Metrics,
	book *competitor.Book,
	locker repository.Locker,
	l *applogger.Logger,
) (*usecase.PricingOrchestrator, error) {
	pc := cfg.Pricing
	opts := []usecase.OrchestratorOption{
		usecase.WithOptimizer(optimizer.New(
			optimizer.WithTolerance(pc.Tolerance),
			optimizer.WithMaxIterations(pc.MaxIterations),
		)),
		usecase.WithABSamples(pc.ABSamples),
		usecase.WithDemandDraws(pc.DemandDraws),
		usecase.WithRefineIterations(pc.RefineIterations),
		usecase.WithCompetitorBook(book),
	}
	if locker != nil {
		opts = append(opts, usecase.WithLocker(locker))
	}
	if pc.Seed != 0 {
		opts = append(opts, usecase.WithSeed(pc.Seed))
	}
	if pc.Fallback.Enabled {
		opts = append(opts, usecase.WithFallbackModel(pc.Fallback.Coefficient, pc.Fallback.BaseDemand))
	}

	orch := usecase.NewPricingOrchestrator(store, experiments, history, events, m, opts...)
	orch.SetLogger(l.With(applogger.String("component", "pricing")))

	if pc.SeedSampleProducts {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := orch.SeedProducts(ctx, models.SampleProducts()); err != nil {
			return nil, fmt.Errorf("seed products: %w", err)
		}
	}
	return orch, nil
}

// ProvideResponseCache layers a local LRU over Redis when Redis is
// available and falls back to the LRU alone.
func ProvideResponseCache(cfg *config.Config, rc *cache.RedisCache) (cache.Service, error) {
	if rc != nil {
		return cache.NewLayeredCache(rc, cfg.Cache)
	}
	return cache.NewMemoryCache(cache.WithMemoryMaxSize(cfg.Cache.MaxSize))
}

// ProvideRateLimiter returns nil when rate limiting is disabled.
func ProvideRateLimiter(cfg *config.Config) (*ratelimit.Limiter, error) {
	if !cfg.RateLimit.Enabled {
		return nil, nil
	}
	return ratelimit.New(ratelimit.Config(cfg.RateLimit))
}

// ProvideJobQueue returns the retraining queue, or nil unless it is enabled
// and Redis is connected.
func ProvideJobQueue(cfg *config.Config, rc *cache.RedisCache, orch *usecase.PricingOrchestrator, l *applogger.Logger) *queue.RedisQueue {
	if !cfg.Queue.Enabled || rc == nil {
		return nil
	}
	ql := l.With(applogger.String("component", "queue"))
	q := queue.NewRedisQueue(rc.Client(), cfg.Queue.Jobs, ql)
	q.Register(usecase.NewRetrainJob(orch, ql))
	return q
}

func ProvidePricingHandler(
	l *applogger.Logger,
	orch *usecase.PricingOrchestrator,
	c cache.Service,
	limiter *ratelimit.Limiter,
	q *queue.RedisQueue,
) *api.PricingEchoHandler {
	h := api.NewPricingEchoHandler(l.With(applogger.String("component", "http")), orch, c, limiter)
	if q != nil {
		h.SetJobQueue(q)
	}
	return h
}

func ProvideHTTPServer(cfg *config.Config, l *applogger.Logger, reg *prometheus.Registry, h *api.PricingEchoHandler) *xhttp.Server {
	var r prometheus.Registerer
	if cfg.Metrics.Enabled {
		r = reg
	}
	sc := cfg.Server
	return xhttp.NewServer(l, r, []xhttp.Handler{h},
		xhttp.WithHost(sc.Host),
		xhttp.WithPort(sc.Port),
		xhttp.WithTimeouts(sc.ReadTimeout, sc.WriteTimeout, sc.ShutdownTimeout),
		xhttp.WithSlowRequest(sc.SlowRequest),
		xhttp.WithCORS(sc.CORS),
		xhttp.WithMetricsPath(sc.MetricsPath),
	)
}

// ProvideKafkaConsumer subscribes the sales and A/B observation handlers.
// It returns nil when Kafka is disabled.
func ProvideKafkaConsumer(
	cfg *config.Config,
	orch *usecase.PricingOrchestrator,
	m repository.Metrics,
	l *applogger.Logger,
) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	cc := cfg.Kafka.Consumer
	brokers := cc.Brokers
	if len(brokers) == 0 {
		brokers = cfg.Kafka.Brokers
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(brokers),
		pkgkafka.WithConsumerGroupID(cc.GroupID),
		pkgkafka.WithConsumerWorkers(cc.WorkerCount),
		pkgkafka.WithConsumerBufferSize(cc.BufferSize),
		pkgkafka.WithConsumerRetry(cc.RetryMax, cc.BackoffMin, cc.BackoffMax),
		pkgkafka.WithConsumerDLQ(cc.DLQTopic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	kl := l.With(applogger.String("component", "kafka"))
	consumer.SetLogger(kl)
	consumer.RegisterHandler(usecase.NewKafkaSalesHandler(cfg.Kafka.Topics.Sales, orch, m, kl))
	consumer.RegisterHandler(usecase.NewKafkaObservationsHandler(cfg.Kafka.Topics.Observations, orch, m, kl))
	return consumer, nil
}

// ProvideApp assembles the lifecycle. Optional components that are nil are
// left out.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	srv *xhttp.Server,
	consumer *pkgkafka.Consumer,
	stream *competitor.Stream,
	q *queue.RedisQueue,
	producer *pkgkafka.Producer,
	ch *pkgch.Client,
	rc *cache.RedisCache,
) *server.App {
	opts := []server.Option{server.WithShutdownTimeout(cfg.Server.ShutdownTimeout + 5*time.Second)}
	if stream != nil {
		opts = append(opts, server.WithBackground("competitor_feed", stream.Run))
	}
	if q != nil {
		opts = append(opts, server.WithBackground("retrain_queue", func(ctx context.Context) error {
			if err := q.Start(); err != nil {
				return err
			}
			<-ctx.Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			return q.Stop(stopCtx)
		}))
	}
	if rc != nil {
		opts = append(opts, server.WithCloser("redis", rc))
	}
	if ch != nil {
		opts = append(opts, server.WithCloser("clickhouse", ch))
	}
	if producer != nil {
		opts = append(opts, server.WithCloser("kafka_producer", producer))
	}
	return server.New(l, srv, consumer, opts...)
}
