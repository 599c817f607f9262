package di

import (
	"context"
	"fmt"
	"time"

	"github.com/RusaUB/finorax/internal/domain/models"
	"github.com/RusaUB/finorax/internal/domain/repository"
	"github.com/RusaUB/finorax/internal/handler/api"
	internalrepo "github.com/RusaUB/finorax/internal/repository"
	icache "github.com/RusaUB/finorax/internal/service/cache"
	"github.com/RusaUB/finorax/internal/service/lock"
	"github.com/RusaUB/finorax/internal/service/pricefeed"
	"github.com/RusaUB/finorax/internal/service/priceseries"
	"github.com/RusaUB/finorax/internal/usecase"
	pkgch "github.com/RusaUB/finorax/pkg/clickhouse"
	"github.com/RusaUB/finorax/pkg/config"
	xhttp "github.com/RusaUB/finorax/pkg/http"
	pkgkafka "github.com/RusaUB/finorax/pkg/kafka"
	"github.com/RusaUB/finorax/pkg/logger"
	"github.com/RusaUB/finorax/pkg/metrics"
	"github.com/RusaUB/finorax/pkg/server"
	"github.com/RusaUB/finorax/pkg/util"

	"github.com/redis/go-redis/v9"
)

// PriceBackend stores ticks and serves lookups from the same data.
type PriceBackend interface {
	repository.PriceSeries
	repository.PriceSink
}

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(cfg *config.Config) repository.Metrics {
	if !cfg.Metrics.Enabled {
		return metrics.Noop{}
	}
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client and applies the schema.
// Returns nil when the memory backend is selected.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if cfg.Backend.Type != "clickhouse" {
		return nil, nil
	}

	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
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

	stmts := append([]string{"CREATE DATABASE IF NOT EXISTS " + cfg.ClickHouse.Database}, internalrepo.Schema()...)
	if err := client.InitSchema(ctx, stmts); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideRedisClient creates a Redis client, or nil when disabled.
func ProvideRedisClient(cfg *config.Config) *redis.Client {
	if !cfg.Redis.Enabled {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// ProvideObservationStore selects the observation backend.
func ProvideObservationStore(cfg *config.Config, ch *pkgch.Client, l *logger.Logger) repository.ObservationStore {
	if cfg.Backend.Type == "clickhouse" {
		store := internalrepo.NewCHObservationStore(ch)
		store.SetLogger(l)
		return store
	}
	return internalrepo.NewMemoryObservationStore()
}

// ProvidePriceBackend selects the price tick storage.
func ProvidePriceBackend(cfg *config.Config, ch *pkgch.Client, l *logger.Logger) PriceBackend {
	if cfg.Backend.Type == "clickhouse" {
		s := internalrepo.NewCHPriceSeries(ch, cfg.Scoring.PriceMaxGap)
		s.SetLogger(l)
		return s
	}
	return internalrepo.NewMemoryPriceSeries(cfg.Scoring.PriceMaxGap)
}

// ProvidePriceSeries wraps the backend with bounded retries for scoring.
func ProvidePriceSeries(cfg *config.Config, backend PriceBackend, l *logger.Logger) repository.PriceSeries {
	rc := priceseries.DefaultRetryConfig()
	if cfg.Scoring.PriceRetryAttempts > 0 {
		rc.Attempts = cfg.Scoring.PriceRetryAttempts
	}
	if cfg.Scoring.PriceBackoffMin > 0 {
		rc.BackoffMin = cfg.Scoring.PriceBackoffMin
	}
	if cfg.Scoring.PriceBackoffMax > 0 {
		rc.BackoffMax = cfg.Scoring.PriceBackoffMax
	}
	return priceseries.NewRetryingSeries(backend, rc, l)
}

// ProvideLeaderboardStore selects the leaderboard backend.
func ProvideLeaderboardStore(cfg *config.Config, ch *pkgch.Client, l *logger.Logger) repository.LeaderboardStore {
	if cfg.Backend.Type == "clickhouse" {
		store := internalrepo.NewCHLeaderboardStore(ch)
		store.SetLogger(l)
		return store
	}
	return internalrepo.NewMemoryLeaderboardStore()
}

// ProvideLocker creates the distributed round lock, or a no-op when Redis is
// unavailable and the process is assumed to own scoring alone.
func ProvideLocker(rdb *redis.Client) repository.Locker {
	if rdb == nil {
		return lock.NopLocker{}
	}
	return lock.NewRedisLocker(rdb)
}

// ProvideBoardCache picks the leaderboard cache: Redis when present, process
// memory otherwise.
func ProvideBoardCache(rdb *redis.Client) icache.BytesCache {
	if rdb == nil {
		return icache.NewTTLCache()
	}
	return icache.NewRedisCache(rdb)
}

// ProvideKafkaProducer creates a Kafka producer, or nil when disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
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

// ProvidePublisher creates the leaderboard publisher.
func ProvidePublisher(cfg *config.Config, producer *pkgkafka.Producer, l *logger.Logger) repository.Publisher {
	if producer == nil {
		return internalrepo.NopPublisher{}
	}
	return internalrepo.NewKafkaResultsPublisher(producer, cfg.Kafka.LeaderboardTopic, l)
}

// ProvideKafkaConsumer creates the observations consumer, or nil when
// disabled.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideRoundManager builds the round lifecycle manager from the schedule.
// The schedule start is snapped down to a round boundary so windows stay
// aligned with wall-clock intervals.
func ProvideRoundManager(cfg *config.Config, store repository.LeaderboardStore, m repository.Metrics, l *logger.Logger) (*usecase.RoundManager, error) {
	schedule := models.Schedule{
		Version:     cfg.Schedule.Version,
		Start:       util.SnapToInterval(cfg.Schedule.Start.UTC(), cfg.Schedule.RoundLength, util.SnapFloor),
		RoundLength: cfg.Schedule.RoundLength,
	}
	return usecase.NewRoundManager(schedule, store, m, l)
}

// ProvideObservationIntake creates the single observation write path.
func ProvideObservationIntake(rounds *usecase.RoundManager, store repository.ObservationStore, m repository.Metrics, l *logger.Logger) *usecase.ObservationIntake {
	return usecase.NewObservationIntake(rounds, store, m, l)
}

// ProvideScoringEngine creates the scoring engine.
func ProvideScoringEngine(
	cfg *config.Config,
	rounds *usecase.RoundManager,
	observations repository.ObservationStore,
	prices repository.PriceSeries,
	locker repository.Locker,
	m repository.Metrics,
	l *logger.Logger,
) *usecase.ScoringEngine {
	return usecase.NewScoringEngine(rounds, observations, prices, locker, cfg.Scoring.LockTTL, m, l)
}

// ProvideRankingAggregator creates the leaderboard builder.
func ProvideRankingAggregator(
	cfg *config.Config,
	rounds *usecase.RoundManager,
	engine *usecase.ScoringEngine,
	store repository.LeaderboardStore,
	boardCache icache.BytesCache,
	publisher repository.Publisher,
	m repository.Metrics,
	l *logger.Logger,
) *usecase.RankingAggregator {
	return usecase.NewRankingAggregator(rounds, engine, store, boardCache, cfg.Redis.LeaderboardTTL, publisher, m, l)
}

// ProvideRoundScheduler creates the lifecycle timer loop.
func ProvideRoundScheduler(
	cfg *config.Config,
	rounds *usecase.RoundManager,
	engine *usecase.ScoringEngine,
	aggregator *usecase.RankingAggregator,
	l *logger.Logger,
) *usecase.RoundScheduler {
	return usecase.NewRoundScheduler(rounds, engine, aggregator, cfg.Schedule.CloseInterval, l)
}

// ProvideObservationsHandler registers the Kafka intake handler.
func ProvideObservationsHandler(cfg *config.Config, intake *usecase.ObservationIntake, l *logger.Logger) *usecase.ObservationsHandler {
	return usecase.NewObservationsHandler(cfg.Kafka.ObservationsTopic, intake, l)
}

// ProvidePriceFeed creates the WebSocket price feed, or nil when disabled.
func ProvidePriceFeed(cfg *config.Config, sink PriceBackend, l *logger.Logger) *pricefeed.Client {
	if !cfg.PriceFeed.Enabled {
		return nil
	}
	return pricefeed.New(pricefeed.Config{
		WebSocketURL:   cfg.PriceFeed.WebSocketURL,
		APIKey:         cfg.PriceFeed.APIKey,
		Assets:         cfg.PriceFeed.Assets,
		ReconnectDelay: cfg.PriceFeed.ReconnectDelay,
		PingInterval:   cfg.PriceFeed.PingInterval,
	}, sink, l)
}

// ProvideRoundsHandler creates the HTTP API handler.
func ProvideRoundsHandler(
	cfg *config.Config,
	l *logger.Logger,
	rounds *usecase.RoundManager,
	intake *usecase.ObservationIntake,
	engine *usecase.ScoringEngine,
	aggregator *usecase.RankingAggregator,
) xhttp.Handler {
	h := api.NewRoundsHandler(l, rounds, intake, engine, aggregator)
	h.SetRateLimit(cfg.RateLimit.Capacity, cfg.RateLimit.RefillPerSec)
	return h
}

// ProvideApp assembles the application.
func ProvideApp(
	cfg *config.Config,
	l *logger.Logger,
	scheduler *usecase.RoundScheduler,
	consumer *pkgkafka.Consumer,
	obsHandler *usecase.ObservationsHandler,
	feed *pricefeed.Client,
	handler xhttp.Handler,
	observations repository.ObservationStore,
	boards repository.LeaderboardStore,
	publisher repository.Publisher,
	ch *pkgch.Client,
) *server.App {
	var mh pkgkafka.MessageHandler
	if consumer != nil {
		mh = obsHandler
	}
	app := server.New(cfg, l, scheduler, consumer, mh, feed, handler)
	app.AddCloser(observations)
	app.AddCloser(boards)
	app.AddCloser(publisher)
	if ch != nil {
		app.AddCloser(ch)
	}
	return app
}
