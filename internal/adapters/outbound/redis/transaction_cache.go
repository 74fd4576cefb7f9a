// Package redis provides a Redis implementation of the TransactionCache port.
//
// Transaction details are stored as JSON under prefix:tx:{<transaction_id>}
// with a configurable TTL. The scoring use case invalidates an entry after
// every committed prediction, which also advances a generation counter kept
// under prefix:tx:{<transaction_id>}:gen. Set is a compare-and-set against that
// counter so a reader that loaded history before the invalidation cannot
// overwrite it with the stale copy. Both keys share a hash tag to stay in one
// cluster slot for the scripts.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/archon-research/fraud-scoring/internal/domain/entity"
	"github.com/archon-research/fraud-scoring/internal/ports/outbound"
)

var _ outbound.TransactionCache = (*TransactionCache)(nil)

// redisClient is the subset of *redis.Client used by the cache.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// generationTTL bounds how long an idle generation counter is kept. It must
// outlive any in-flight read, which is far shorter.
const generationTTL = 24 * time.Hour

// setIfCurrentScript stores KEYS[1] only while the generation at KEYS[2] still equals ARGV[1].
// ARGV[2] is the payload and ARGV[3] the TTL in milliseconds.
const setIfCurrentScript = `
if (redis.call('GET', KEYS[2]) or '0') ~= ARGV[1] then
  return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`

// invalidateScript deletes KEYS[1] and advances the generation at KEYS[2].
// ARGV[1] is the generation TTL in milliseconds.
const invalidateScript = `
redis.call('DEL', KEYS[1])
local gen = redis.call('INCR', KEYS[2])
redis.call('PEXPIRE', KEYS[2], ARGV[1])
return gen
`

// Config holds Redis cache configuration.
type Config struct {
	// Addr is the Redis server address (e.g., "localhost:6379")
	Addr string
	// Password for Redis authentication (empty for no auth)
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// TTL is how long cached data lives before expiring
	TTL time.Duration
	// KeyPrefix is prepended to all cache keys
	KeyPrefix string
}

// ConfigDefaults returns defaults for the Redis cache.
func ConfigDefaults() Config {
	return Config{
		Addr:      "localhost:6379",
		TTL:       5 * time.Minute,
		KeyPrefix: "fraud",
	}
}

// TransactionCache is a Redis implementation of the outbound.TransactionCache port.
type TransactionCache struct {
	client    redisClient
	ttl       time.Duration
	keyPrefix string
	logger    *slog.Logger
}

// NewTransactionCache creates a new Redis transaction cache.
func NewTransactionCache(cfg Config, logger *slog.Logger) (*TransactionCache, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	if cfg.DB < 0 || cfg.DB > 15 {
		return nil, fmt.Errorf("redis db must be between 0 and 15, got %d", cfg.DB)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return newTransactionCache(client, cfg, logger), nil
}

func newTransactionCache(client redisClient, cfg Config, logger *slog.Logger) *TransactionCache {
	defaults := ConfigDefaults()
	if cfg.TTL == 0 {
		cfg.TTL = defaults.TTL
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaults.KeyPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &TransactionCache{
		client:    client,
		ttl:       cfg.TTL,
		keyPrefix: cfg.KeyPrefix,
		logger:    logger.With("component", "redis-cache"),
	}
}

// Ping checks the Redis connection.
func (c *TransactionCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *TransactionCache) Close() error {
	return c.client.Close()
}

// key generates a cache key in the format prefix:tx:{transactionID}
func (c *TransactionCache) key(transactionID string) string {
	return fmt.Sprintf("%s:tx:{%s}", c.keyPrefix, transactionID)
}

func (c *TransactionCache) generationKey(transactionID string) string {
	return c.key(transactionID) + ":gen"
}

// Get returns the cached detail, or nil, nil on a miss.
func (c *TransactionCache) Get(ctx context.Context, transactionID string) (*entity.TransactionDetail, error) {
	data, err := c.client.Get(ctx, c.key(transactionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction %s: %w", transactionID, err)
	}

	detail, err := decodeDetail(data)
	if err != nil {
		// A corrupt entry behaves like a miss and is overwritten on the next Set.
		c.logger.Warn("discarding undecodable cache entry", "transactionID", transactionID, "error", err)
		return nil, nil
	}
	return detail, nil
}

// Generation returns the transaction's generation; zero if it was never invalidated.
func (c *TransactionCache) Generation(ctx context.Context, transactionID string) (int64, error) {
	gen, err := c.client.Get(ctx, c.generationKey(transactionID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read generation of %s: %w", transactionID, err)
	}
	return gen, nil
}

// Set caches a transaction detail unless it was invalidated after generation was read.
func (c *TransactionCache) Set(ctx context.Context, detail *entity.TransactionDetail, generation int64) error {
	if detail == nil || detail.Transaction == nil {
		return fmt.Errorf("cannot cache an empty transaction detail")
	}
	data, err := encodeDetail(detail)
	if err != nil {
		return fmt.Errorf("failed to encode transaction %s: %w", detail.Transaction.TransactionID, err)
	}
	id := detail.Transaction.TransactionID
	stored, err := c.client.Eval(ctx, setIfCurrentScript,
		[]string{c.key(id), c.generationKey(id)},
		generation, data, c.ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("failed to cache transaction %s: %w", id, err)
	}
	if stored == 0 {
		c.logger.Debug("skipped caching superseded transaction", "transactionID", id, "generation", generation)
	}
	return nil
}

// Invalidate removes the cached detail for a transaction and advances its generation.
func (c *TransactionCache) Invalidate(ctx context.Context, transactionID string) error {
	err := c.client.Eval(ctx, invalidateScript,
		[]string{c.key(transactionID), c.generationKey(transactionID)},
		generationTTL.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("failed to invalidate transaction %s: %w", transactionID, err)
	}
	return nil
}

type cachedTransaction struct {
	ID                 int64     `json:"id"`
	TransactionID      string    `json:"transactionId"`
	Amount             string    `json:"amount"`
	TransactionHour    int       `json:"transactionHour"`
	MerchantCategory   string    `json:"merchantCategory"`
	ForeignTransaction bool      `json:"foreignTransaction"`
	LocationMismatch   bool      `json:"locationMismatch"`
	DeviceTrustScore   int       `json:"deviceTrustScore"`
	VelocityLast24h    int       `json:"velocityLast24h"`
	CardholderAge      int       `json:"cardholderAge"`
	CreatedAt          time.Time `json:"createdAt"`
}

type cachedPrediction struct {
	ID               int64     `json:"id"`
	FraudProbability float64   `json:"fraudProbability"`
	Decision         string    `json:"decision"`
	ModelVersion     string    `json:"modelVersion"`
	ScoredAt         time.Time `json:"scoredAt"`
}

type cachedDetail struct {
	Transaction cachedTransaction  `json:"transaction"`
	Predictions []cachedPrediction `json:"predictions"`
}

func encodeDetail(d *entity.TransactionDetail) ([]byte, error) {
	t := d.Transaction
	out := cachedDetail{
		Transaction: cachedTransaction{
			ID:                 t.ID,
			TransactionID:      t.TransactionID,
			Amount:             t.Amount.String(),
			TransactionHour:    t.TransactionHour,
			MerchantCategory:   string(t.MerchantCategory),
			ForeignTransaction: t.ForeignTransaction,
			LocationMismatch:   t.LocationMismatch,
			DeviceTrustScore:   t.DeviceTrustScore,
			VelocityLast24h:    t.VelocityLast24h,
			CardholderAge:      t.CardholderAge,
			CreatedAt:          t.CreatedAt,
		},
		Predictions: make([]cachedPrediction, 0, len(d.Predictions)),
	}
	for _, p := range d.Predictions {
		out.Predictions = append(out.Predictions, cachedPrediction{
			ID:               p.ID,
			FraudProbability: p.FraudProbability,
			Decision:         string(p.Decision),
			ModelVersion:     p.ModelVersion,
			ScoredAt:         p.ScoredAt,
		})
	}
	return json.Marshal(out)
}

func decodeDetail(data []byte) (*entity.TransactionDetail, error) {
	var in cachedDetail
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, err
	}
	amount, err := decimal.NewFromString(in.Transaction.Amount)
	if err != nil {
		return nil, fmt.Errorf("amount: %w", err)
	}

	t := in.Transaction
	detail := &entity.TransactionDetail{
		Transaction: &entity.Transaction{
			ID:                 t.ID,
			TransactionID:      t.TransactionID,
			Amount:             amount,
			TransactionHour:    t.TransactionHour,
			MerchantCategory:   entity.MerchantCategory(t.MerchantCategory),
			ForeignTransaction: t.ForeignTransaction,
			LocationMismatch:   t.LocationMismatch,
			DeviceTrustScore:   t.DeviceTrustScore,
			VelocityLast24h:    t.VelocityLast24h,
			CardholderAge:      t.CardholderAge,
			CreatedAt:          t.CreatedAt,
		},
		Predictions: make([]*entity.Prediction, 0, len(in.Predictions)),
	}
	for _, p := range in.Predictions {
		decision, err := entity.ParseDecision(p.Decision)
		if err != nil {
			return nil, err
		}
		detail.Predictions = append(detail.Predictions, &entity.Prediction{
			ID:               p.ID,
			TransactionID:    t.TransactionID,
			FraudProbability: p.FraudProbability,
			Decision:         decision,
			ModelVersion:     p.ModelVersion,
			ScoredAt:         p.ScoredAt,
		})
	}
	return detail, nil
}
