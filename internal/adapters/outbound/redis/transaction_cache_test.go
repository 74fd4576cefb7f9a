package redis

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/archon-research/fraud-scoring/internal/domain/entity"
)

// fakeRedis is an in-process stand-in for the commands the cache issues.
type fakeRedis struct {
	mu      sync.Mutex
	data    map[string][]byte
	ttls    map[string]time.Duration
	failErr error
	closed  bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return redis.NewStringResult("", f.failErr)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(string(v), nil)
}

// Eval runs the Go equivalent of the cache's two scripts.
func (f *fakeRedis) Eval(_ context.Context, script string, keys []string, args ...any) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return redis.NewCmdResult(nil, f.failErr)
	}
	gen, _ := strconv.ParseInt(string(f.data[keys[1]]), 10, 64)

	switch script {
	case setIfCurrentScript:
		if gen != args[0].(int64) {
			return redis.NewCmdResult(int64(0), nil)
		}
		f.data[keys[0]] = args[1].([]byte)
		f.ttls[keys[0]] = time.Duration(args[2].(int64)) * time.Millisecond
		return redis.NewCmdResult(int64(1), nil)
	case invalidateScript:
		delete(f.data, keys[0])
		gen++
		f.data[keys[1]] = []byte(strconv.FormatInt(gen, 10))
		f.ttls[keys[1]] = time.Duration(args[0].(int64)) * time.Millisecond
		return redis.NewCmdResult(gen, nil)
	}
	return redis.NewCmdResult(nil, errors.New("unknown script"))
}

func (f *fakeRedis) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", f.failErr)
}

func (f *fakeRedis) Close() error {
	f.closed = true
	return nil
}

func sampleDetail() *entity.TransactionDetail {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return &entity.TransactionDetail{
		Transaction: &entity.Transaction{
			ID:                 7,
			TransactionID:      "tx1",
			Amount:             decimal.RequireFromString("1200.50"),
			TransactionHour:    23,
			MerchantCategory:   entity.MerchantCategoryElectronics,
			ForeignTransaction: true,
			LocationMismatch:   true,
			DeviceTrustScore:   25,
			VelocityLast24h:    8,
			CardholderAge:      45,
			CreatedAt:          created,
		},
		Predictions: []*entity.Prediction{
			{ID: 2, TransactionID: "tx1", FraudProbability: 1, Decision: entity.DecisionReject, ModelVersion: "rules-v1", ScoredAt: created.Add(time.Minute)},
		},
	}
}

func TestNewTransactionCache_Validation(t *testing.T) {
	if _, err := NewTransactionCache(Config{}, nil); err == nil {
		t.Error("expected error for empty address")
	}
	if _, err := NewTransactionCache(Config{Addr: "localhost:6379", DB: 16}, nil); err == nil {
		t.Error("expected error for out-of-range db")
	}
}

func TestTransactionCache_Key(t *testing.T) {
	c := newTransactionCache(newFakeRedis(), Config{KeyPrefix: "test"}, nil)
	if got := c.key("tx1"); got != "test:tx:{tx1}" {
		t.Errorf("key() = %q, want test:tx:{tx1}", got)
	}
	if got := c.generationKey("tx1"); got != "test:tx:{tx1}:gen" {
		t.Errorf("generationKey() = %q, want test:tx:{tx1}:gen", got)
	}

	c = newTransactionCache(newFakeRedis(), Config{}, nil)
	if got := c.key("tx1"); got != "fraud:tx:{tx1}" {
		t.Errorf("key() with default prefix = %q", got)
	}
}

func TestTransactionCache_SetGetInvalidate(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	c := newTransactionCache(fake, Config{TTL: time.Minute}, nil)

	if got, err := c.Get(ctx, "tx1"); got != nil || err != nil {
		t.Fatalf("Get() on empty cache = %v, %v; want miss", got, err)
	}

	want := sampleDetail()
	if err := c.Set(ctx, want, 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if fake.ttls["fraud:tx:{tx1}"] != time.Minute {
		t.Errorf("ttl = %v, want 1m", fake.ttls["fraud:tx:{tx1}"])
	}

	got, err := c.Get(ctx, "tx1")
	if err != nil || got == nil {
		t.Fatalf("Get() = %v, %v", got, err)
	}
	if !got.Transaction.Amount.Equal(want.Transaction.Amount) || got.Transaction.Fields().MerchantCategory != entity.MerchantCategoryElectronics {
		t.Errorf("transaction = %+v", got.Transaction)
	}
	if !got.Transaction.CreatedAt.Equal(want.Transaction.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.Transaction.CreatedAt, want.Transaction.CreatedAt)
	}
	if len(got.Predictions) != 1 || got.Predictions[0].Decision != entity.DecisionReject || got.Predictions[0].TransactionID != "tx1" {
		t.Errorf("predictions = %+v", got.Predictions)
	}

	if err := c.Invalidate(ctx, "tx1"); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	if got, _ := c.Get(ctx, "tx1"); got != nil {
		t.Error("entry should be gone after Invalidate")
	}
	if gen, err := c.Generation(ctx, "tx1"); gen != 1 || err != nil {
		t.Errorf("Generation() after Invalidate = %d, %v; want 1", gen, err)
	}
	if fake.ttls["fraud:tx:{tx1}:gen"] != generationTTL {
		t.Errorf("generation ttl = %v, want %v", fake.ttls["fraud:tx:{tx1}:gen"], generationTTL)
	}
}

func TestTransactionCache_SetSkipsSupersededGeneration(t *testing.T) {
	ctx := context.Background()
	c := newTransactionCache(newFakeRedis(), Config{}, nil)

	gen, err := c.Generation(ctx, "tx1")
	if err != nil || gen != 0 {
		t.Fatalf("Generation() = %d, %v; want 0", gen, err)
	}

	// A prediction commits while the reader is still loading from storage.
	if err := c.Invalidate(ctx, "tx1"); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	if err := c.Set(ctx, sampleDetail(), gen); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if got, _ := c.Get(ctx, "tx1"); got != nil {
		t.Error("detail loaded before the invalidation was cached")
	}

	gen, _ = c.Generation(ctx, "tx1")
	if err := c.Set(ctx, sampleDetail(), gen); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if got, _ := c.Get(ctx, "tx1"); got == nil {
		t.Error("detail loaded at the current generation was not cached")
	}
}

func TestTransactionCache_CorruptEntryIsMiss(t *testing.T) {
	fake := newFakeRedis()
	fake.data["fraud:tx:{tx1}"] = []byte(`{"transaction":{"amount":"not-a-number"}}`)
	c := newTransactionCache(fake, Config{}, nil)

	got, err := c.Get(context.Background(), "tx1")
	if got != nil || err != nil {
		t.Errorf("Get() = %v, %v; want miss", got, err)
	}
}

func TestTransactionCache_Errors(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	fake.failErr = errors.New("connection refused")
	c := newTransactionCache(fake, Config{}, nil)

	if _, err := c.Get(ctx, "tx1"); err == nil {
		t.Error("Get() should surface connection errors")
	}
	if err := c.Set(ctx, sampleDetail(), 0); err == nil {
		t.Error("Set() should surface connection errors")
	}
	if _, err := c.Generation(ctx, "tx1"); err == nil {
		t.Error("Generation() should surface connection errors")
	}
	if err := c.Invalidate(ctx, "tx1"); err == nil {
		t.Error("Invalidate() should surface connection errors")
	}
	if err := c.Set(ctx, &entity.TransactionDetail{}, 0); err == nil {
		t.Error("Set() should reject an empty detail")
	}
}

func TestTransactionCache_Close(t *testing.T) {
	fake := newFakeRedis()
	c := newTransactionCache(fake, Config{}, nil)
	if err := c.Close(); err != nil || !fake.closed {
		t.Errorf("Close() = %v, closed = %v", err, fake.closed)
	}
}
