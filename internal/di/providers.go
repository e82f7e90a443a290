package di

import (
	"context"
	"fmt"
	"strings"
	"time"

	"FinSignal/internal/domain/models"
	"FinSignal/internal/domain/repository"
	domsvc "FinSignal/internal/domain/service"
	"FinSignal/internal/handler/api"
	internalrepo "FinSignal/internal/repository"
	"FinSignal/internal/service/finnhub"
	"FinSignal/internal/services/generators"
	"FinSignal/internal/usecase"
	pkgcache "FinSignal/pkg/cache"
	pkgch "FinSignal/pkg/clickhouse"
	"FinSignal/pkg/config"
	xhttp "FinSignal/pkg/http"
	pkgkafka "FinSignal/pkg/kafka"
	applogger "FinSignal/pkg/logger"
	"FinSignal/pkg/metrics"
	"FinSignal/pkg/server"
)

// ProvideLogger creates the application logger from the log section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(cfg *config.Config) repository.Metrics {
	if !cfg.Metrics.Enabled {
		return nil
	}
	return metrics.New()
}

func usesClickHouse(cfg *config.Config) bool {
	return cfg.Feed.Type == "clickhouse" || cfg.Store.Type == "clickhouse"
}

func signalTable(cfg *config.Config) string {
	return cfg.ClickHouse.Database + "." + cfg.Store.Table
}

// ProvideClickHouseClient creates a ClickHouse client and its schema. It
// returns nil when neither the feed nor the store is ClickHouse backed.
func ProvideClickHouseClient(cfg *config.Config, l *applogger.Logger) (*pkgch.Client, error) {
	if !usesClickHouse(cfg) {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithPool(cfg.ClickHouse.MaxOpenConns, cfg.ClickHouse.MaxIdleConns, 0),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithCompression(cfg.ClickHouse.Compression),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := []string{"CREATE DATABASE IF NOT EXISTS " + client.Database()}
	if cfg.Store.Type == "clickhouse" {
		stmts = append(stmts, internalrepo.SignalSchema(signalTable(cfg))...)
	}
	if cfg.Feed.Type == "clickhouse" {
		stmts = append(stmts, internalrepo.CandleSchema(cfg.ClickHouse.Database)...)
	}
	if err := client.InitSchema(ctx, stmts); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	l.Info("clickhouse ready", applogger.String("database", cfg.ClickHouse.Database), applogger.Int("statements", len(stmts)))
	return client, nil
}

// ProvideFinnhubClient creates the Finnhub REST client, or nil without an API key.
func ProvideFinnhubClient(cfg *config.Config, l *applogger.Logger) *finnhub.Client {
	if cfg.Finnhub.APIKey == "" {
		return nil
	}
	return finnhub.New(cfg.Finnhub.APIKey,
		finnhub.WithBaseURL(cfg.Finnhub.BaseURL),
		finnhub.WithHTTPClient(xhttp.NewClient(xhttp.WithTimeout(cfg.Finnhub.Timeout))),
		finnhub.WithRateLimit(cfg.Finnhub.RequestsPerS, cfg.Finnhub.Burst),
		finnhub.WithNewsDays(cfg.Finnhub.NewsDays),
		finnhub.WithCrypto(cfg.Signals.Crypto),
		finnhub.WithLogger(l),
	)
}

// ProvideMarketDataFeed selects the price and candle collaborator.
func ProvideMarketDataFeed(cfg *config.Config, ch *pkgch.Client, fh *finnhub.Client, l *applogger.Logger) (repository.MarketDataFeed, error) {
	switch cfg.Feed.Type {
	case "finnhub":
		if fh == nil {
			return nil, fmt.Errorf("finnhub feed: missing api key")
		}
		return fh, nil
	default:
		feed := internalrepo.NewCHCandleFeed(ch, cfg.ClickHouse.Database)
		feed.SetLogger(l)
		return feed, nil
	}
}

// ProvideNewsFeed returns the Finnhub client as news source when configured.
func ProvideNewsFeed(fh *finnhub.Client) repository.NewsFeed {
	if fh == nil {
		return nil
	}
	return fh
}

// ProvideSignalStore creates the signal persistence store.
func ProvideSignalStore(cfg *config.Config, ch *pkgch.Client, l *applogger.Logger) repository.SignalStore {
	if cfg.Store.Type == "memory" {
		return internalrepo.NewMemorySignalStore()
	}
	store := internalrepo.NewCHSignalStore(ch, signalTable(cfg))
	store.SetLogger(l)
	return store
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithTopic(cfg.Kafka.Topic),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideSignalPublisher wraps the producer as lifecycle event publisher.
func ProvideSignalPublisher(producer *pkgkafka.Producer) repository.SignalPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaSignalPublisher(producer)
}

// ProvideSharedCache returns Redis when enabled and a process local cache otherwise.
// It backs both the snapshot and the monitor lock.
func ProvideSharedCache(cfg *config.Config, l *applogger.Logger) (pkgcache.Service, error) {
	if !cfg.Redis.Enabled {
		return pkgcache.NewMemoryCache(), nil
	}
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(cfg.Redis.Host),
		pkgcache.WithRedisPort(cfg.Redis.Port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
		pkgcache.WithRedisPrefix(cfg.Redis.Prefix),
		pkgcache.WithRedisPool(cfg.Redis.PoolSize, 0),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	l.Info("redis cache ready", applogger.String("host", cfg.Redis.Host), applogger.Int("db", cfg.Redis.DB))
	return rc, nil
}

// ProvideGenerators builds every generator named in the config, enabled or not;
// the service decides which ones run. An enabled sentiment generator without a
// news feed is a startup error.
func ProvideGenerators(cfg *config.Config, feed repository.MarketDataFeed, news repository.NewsFeed, l *applogger.Logger) ([]domsvc.SignalGenerator, error) {
	iv := repository.NormalizeInterval(cfg.Feed.Interval)
	out := make([]domsvc.SignalGenerator, 0, len(cfg.Signals.Generators))
	for _, name := range []string{"technical", "pattern", "sentiment"} {
		if _, ok := cfg.Signals.Generators[name]; !ok {
			continue
		}
		switch name {
		case "technical":
			out = append(out, generators.NewTechnicalGenerator(feed,
				generators.WithInterval(iv),
				generators.WithHistory(cfg.Feed.HistoryCount),
				generators.WithTechnicalLogger(l),
			))
		case "pattern":
			out = append(out, generators.NewPatternGenerator(feed, iv, cfg.Feed.HistoryCount, l))
		case "sentiment":
			if news == nil {
				if cfg.Signals.Generators[name].Enabled {
					return nil, fmt.Errorf("sentiment generator enabled without a news feed")
				}
				continue
			}
			out = append(out, generators.NewSentimentGenerator(news, feed, iv, l))
		}
	}
	return out, nil
}

// ProvideSignalAggregator maps the aggregator section and generator weights.
func ProvideSignalAggregator(cfg *config.Config) (*usecase.SignalAggregator, error) {
	ac := usecase.AggregatorConfig{
		Policy:             usecase.Policy(cfg.Signals.Aggregator.Policy),
		MinSignalsRequired: cfg.Signals.Aggregator.MinSignalsRequired,
		TypeWeights:        map[models.SignalType]float64{},
		StrengthWeights:    map[models.Strength]float64{},
	}
	for name, g := range cfg.Signals.Generators {
		ac.TypeWeights[models.SignalType(name)] = g.Weight
	}
	for name, w := range cfg.Signals.Aggregator.StrengthWeights {
		ac.StrengthWeights[models.Strength(strings.ToUpper(name))] = w
	}
	return usecase.NewSignalAggregator(ac)
}

// ProvideSignalService creates the lifecycle service.
func ProvideSignalService(
	cfg *config.Config,
	feed repository.MarketDataFeed,
	store repository.SignalStore,
	agg *usecase.SignalAggregator,
	gens []domsvc.SignalGenerator,
	pub repository.SignalPublisher,
	shared pkgcache.Service,
	m repository.Metrics,
	l *applogger.Logger,
) (*usecase.SignalService, error) {
	enabled := make(map[models.SignalType]bool, len(cfg.Signals.Generators))
	for name, g := range cfg.Signals.Generators {
		enabled[models.SignalType(name)] = g.Enabled
	}
	sc := usecase.SignalServiceConfig{
		Symbols:        cfg.Signals.Symbols,
		Crypto:         cfg.Signals.Crypto,
		CacheEnabled:   cfg.Signals.Cache.Enabled,
		CacheDuration:  cfg.Signals.Cache.Duration,
		MinSignals:     cfg.Signals.MinSignals,
		Concurrency:    cfg.Signals.Concurrency,
		Interval:       repository.NormalizeInterval(cfg.Feed.Interval),
		HistoryCount:   cfg.Feed.HistoryCount,
		Generators:     enabled,
		PersistTimeout: cfg.Signals.PersistTimeout,
	}
	opts := []usecase.ServiceOption{
		usecase.WithLogger(l.Component("signals")),
		usecase.WithMetrics(m),
		usecase.WithPublisher(pub),
		usecase.WithSnapshotCache(shared),
	}
	svc, err := usecase.NewSignalService(sc, feed, store, agg, gens, opts...)
	if err != nil {
		return nil, fmt.Errorf("signal service: %w", err)
	}
	return svc, nil
}

// ProvideSignalScheduler creates the refresh and monitor loops.
func ProvideSignalScheduler(cfg *config.Config, svc *usecase.SignalService, shared pkgcache.Service, l *applogger.Logger) *usecase.SignalScheduler {
	return usecase.NewSignalScheduler(svc, shared, cfg.Signals.RefreshInterval, cfg.Signals.MonitorInterval, l.Component("scheduler"))
}

// ProvideSignalsHandler creates the Echo handler for the signal API.
func ProvideSignalsHandler(l *applogger.Logger, svc *usecase.SignalService, sched *usecase.SignalScheduler) *api.SignalsEchoHandler {
	return api.NewSignalsEchoHandler(l.Component("api"), svc, sched)
}

// ProvideHTTPServer creates the Echo server with every route handler.
func ProvideHTTPServer(cfg *config.Config, h *api.SignalsEchoHandler, ch *pkgch.Client, shared pkgcache.Service, l *applogger.Logger) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	var db server.Pinger
	if ch != nil {
		db = ch
	}
	return xhttp.NewServer(
		[]xhttp.Handler{h, server.NewHealthHandler(db, shared)},
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithLogger(l),
		xhttp.WithCORS(true, cfg.Server.CORSOrigins...),
		xhttp.WithMetrics(metricsPath, cfg.Server.SlowRequest),
	)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	srv *xhttp.Server,
	sched *usecase.SignalScheduler,
	pub repository.SignalPublisher,
	shared pkgcache.Service,
	ch *pkgch.Client,
) *server.App {
	// Closed in this order after the scheduler and HTTP server stop.
	var opts []server.Option
	if pub != nil {
		opts = append(opts, server.WithCloser("kafka", pub))
	}
	opts = append(opts, server.WithCloser("cache", shared))
	if ch != nil {
		opts = append(opts, server.WithCloser("clickhouse", ch))
	}
	return server.New(cfg, l, srv, sched, opts...)
}
