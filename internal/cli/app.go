package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/archon-research/fraud-scoring/internal/adapters/outbound/artifact"
	"github.com/archon-research/fraud-scoring/internal/adapters/outbound/memory"
	"github.com/archon-research/fraud-scoring/internal/adapters/outbound/postgres"
	"github.com/archon-research/fraud-scoring/internal/adapters/outbound/redis"
	s3adapter "github.com/archon-research/fraud-scoring/internal/adapters/outbound/s3"
	snsadapter "github.com/archon-research/fraud-scoring/internal/adapters/outbound/sns"
	"github.com/archon-research/fraud-scoring/internal/adapters/outbound/telemetry"
	"github.com/archon-research/fraud-scoring/internal/config"
	"github.com/archon-research/fraud-scoring/internal/pkg/retry"
	"github.com/archon-research/fraud-scoring/internal/ports/outbound"
	"github.com/archon-research/fraud-scoring/internal/services/model_access"
	"github.com/archon-research/fraud-scoring/internal/services/scoring"
	"github.com/archon-research/fraud-scoring/internal/services/transaction_query"
)

// app holds the collaborators shared by serve and worker.
type app struct {
	pool    *pgxpool.Pool
	txm     *postgres.TxManager
	models  *model_access.Provider
	scoring *scoring.Service
	query   *transaction_query.Service

	closers []func(context.Context) error
	logger  *slog.Logger
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *app) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// openPool connects to PostgreSQL, retrying while the database comes up.
func openPool(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	if err := cfg.RequireDatabase(); err != nil {
		return nil, err
	}
	dbCfg := postgres.DefaultDBConfig(cfg.DatabaseURL)
	dbCfg.MaxConns = cfg.DBMaxConns
	dbCfg.MinConns = cfg.DBMinConns

	onRetry := func(attempt int, err error, wait time.Duration) {
		logger.Warn("database not reachable, retrying", "attempt", attempt, "backoff", wait, "error", err)
	}
	pool, err := retry.Value(ctx, retry.DefaultConfig(), nil, onRetry, func(ctx context.Context) (*pgxpool.Pool, error) {
		return postgres.OpenPool(ctx, dbCfg)
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	logger.Info("PostgreSQL connected", "maxConns", dbCfg.MaxConns)
	return pool, nil
}

func loadAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	if cfg.AWSEndpointURL != "" {
		awsCfg.BaseEndpoint = aws.String(cfg.AWSEndpointURL)
	}
	return awsCfg, nil
}

// needsAWS reports whether any configured collaborator lives in AWS.
func needsAWS(cfg *config.Config) bool {
	return cfg.SNSTopicARN != "" || cfg.SQSQueueURL != "" || artifact.IsS3Location(cfg.ModelPath)
}

// newApp wires persistence, model access, telemetry and the use cases.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close(context.WithoutCancel(ctx))
		}
	}()

	tcfg := telemetry.Config{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: cfg.ServiceVersion,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
	}
	shutdownTelemetry, err := telemetry.Setup(ctx, tcfg)
	if err != nil {
		return nil, err
	}
	a.onClose(shutdownTelemetry)
	metrics, err := telemetry.NewMetrics()
	if err != nil {
		return nil, err
	}

	a.pool, err = openPool(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.onClose(func(context.Context) error { a.pool.Close(); return nil })

	a.txm, err = postgres.NewTxManager(a.pool, logger)
	if err != nil {
		return nil, err
	}

	var awsCfg aws.Config
	if needsAWS(cfg) {
		if awsCfg, err = loadAWSConfig(ctx, cfg); err != nil {
			return nil, err
		}
	}

	if cfg.ModelPath == "" {
		logger.Warn("MODEL_PATH is not set; scoring requests will fail until it is configured")
	}
	var s3Reader outbound.S3Reader
	if artifact.IsS3Location(cfg.ModelPath) {
		s3Reader = s3adapter.NewReader(awsCfg, logger)
	}
	a.models, err = model_access.NewProvider(model_access.Config{
		Location: cfg.ModelPath,
		Logger:   logger,
	}, artifact.NewSource(s3Reader, logger))
	if err != nil {
		return nil, err
	}

	cache, err := newCache(cfg, logger)
	if err != nil {
		return nil, err
	}
	a.onClose(func(context.Context) error { return cache.Close() })

	var sink outbound.EventSink
	if cfg.SNSTopicARN != "" {
		snsSink, err := snsadapter.NewEventSink(sns.NewFromConfig(awsCfg), snsadapter.Config{
			TopicARN: cfg.SNSTopicARN,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating SNS event sink: %w", err)
		}
		// Publishing and its retries run off the request path.
		async, err := snsadapter.NewAsyncEventSink(snsSink, snsadapter.AsyncConfig{Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("creating async event sink: %w", err)
		}
		a.onClose(func(context.Context) error { return async.Close() })
		sink = async
	}

	a.scoring, err = scoring.NewService(scoring.Config{
		DefaultThreshold: cfg.DefaultThreshold,
		ReviewThreshold:  cfg.ReviewThreshold,
		EventSink:        sink,
		Cache:            cache,
		Metrics:          metrics,
		Logger:           logger,
	}, a.models, a.txm)
	if err != nil {
		return nil, fmt.Errorf("creating scoring service: %w", err)
	}

	txRepo, err := postgres.NewTransactionRepository(a.pool, logger)
	if err != nil {
		return nil, err
	}
	predRepo, err := postgres.NewPredictionRepository(a.pool, logger)
	if err != nil {
		return nil, err
	}
	a.query, err = transaction_query.NewService(transaction_query.Config{
		Cache:  cache,
		Logger: logger,
	}, txRepo, predRepo)
	if err != nil {
		return nil, fmt.Errorf("creating transaction query service: %w", err)
	}

	return a, nil
}

// newCache returns the Redis cache when REDIS_ADDR is set and an in-process
// cache otherwise.
func newCache(cfg *config.Config, logger *slog.Logger) (outbound.TransactionCache, error) {
	if cfg.RedisAddr == "" {
		return memory.NewTransactionCache(cfg.CacheTTL), nil
	}
	cache, err := redis.NewTransactionCache(redis.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		TTL:      cfg.CacheTTL,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating redis cache: %w", err)
	}
	return cache, nil
}
