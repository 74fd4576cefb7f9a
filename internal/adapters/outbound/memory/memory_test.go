package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/archon-research/fraud-scoring/internal/domain/entity"
	"github.com/archon-research/fraud-scoring/internal/ports/outbound"
)

func newTx(t *testing.T, id string) *entity.Transaction {
	t.Helper()
	tx, err := entity.NewTransaction(entity.TransactionFields{
		TransactionID:    id,
		Amount:           decimal.RequireFromString("10.00"),
		TransactionHour:  12,
		MerchantCategory: entity.MerchantCategoryFood,
		DeviceTrustScore: 80,
		CardholderAge:    30,
	})
	if err != nil {
		t.Fatalf("NewTransaction() error = %v", err)
	}
	return tx
}

func newPrediction(t *testing.T, id string, prob float64, at time.Time) *entity.Prediction {
	t.Helper()
	p, err := entity.NewPrediction(id, prob, entity.DefaultDecisionPolicy().Decide(prob), "v1", at)
	if err != nil {
		t.Fatalf("NewPrediction() error = %v", err)
	}
	return p
}

func TestTransactionRepository(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repo := store.Transactions()

	tx := newTx(t, "tx1")
	inserted, err := repo.Insert(ctx, tx)
	if err != nil || !inserted {
		t.Fatalf("Insert() = %v, %v; want true, nil", inserted, err)
	}
	if tx.ID != 1 || tx.CreatedAt.IsZero() {
		t.Errorf("Insert() did not assign ID/CreatedAt: %+v", tx)
	}

	inserted, err = repo.Insert(ctx, newTx(t, "tx1"))
	if err != nil || inserted {
		t.Errorf("duplicate Insert() = %v, %v; want false, nil", inserted, err)
	}

	got, err := repo.FindByExternalID(ctx, "tx1")
	if err != nil || got == nil || got.ID != 1 {
		t.Errorf("FindByExternalID() = %+v, %v", got, err)
	}
	missing, err := repo.FindByExternalID(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("FindByExternalID(missing) = %+v, %v; want nil, nil", missing, err)
	}
}

func TestTransactionRepository_List(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	store.SetClock(func() time.Time {
		tick++
		// Every pair of inserts shares a timestamp to exercise the id tie-break.
		return base.Add(time.Duration(tick/2) * time.Second)
	})
	repo := store.Transactions()
	for i := range 5 {
		repo.Insert(ctx, newTx(t, fmt.Sprintf("tx-%d", i)))
	}

	tests := []struct {
		name          string
		limit, offset int
		want          []string
	}{
		{name: "first page", limit: 2, offset: 0, want: []string{"tx-4", "tx-3"}},
		{name: "second page", limit: 2, offset: 2, want: []string{"tx-2", "tx-1"}},
		{name: "tail", limit: 10, offset: 4, want: []string{"tx-0"}},
		{name: "past end", limit: 10, offset: 10, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := repo.List(ctx, tt.limit, tt.offset)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(page) != len(tt.want) {
				t.Fatalf("List() returned %d rows, want %d", len(page), len(tt.want))
			}
			for i, tx := range page {
				if tx.TransactionID != tt.want[i] {
					t.Errorf("List()[%d] = %s, want %s", i, tx.TransactionID, tt.want[i])
				}
			}
		})
	}
}

func TestPredictionRepository(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repo := store.Predictions()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	repo.Insert(ctx, newPrediction(t, "tx1", 0.1, base))
	repo.Insert(ctx, newPrediction(t, "tx1", 0.9, base.Add(time.Minute)))
	repo.Insert(ctx, newPrediction(t, "tx2", 0.5, base))

	got, err := repo.ListByTransactionID(ctx, "tx1")
	if err != nil {
		t.Fatalf("ListByTransactionID() error = %v", err)
	}
	if len(got) != 2 || got[0].FraudProbability != 0.9 || got[1].FraudProbability != 0.1 {
		t.Errorf("ListByTransactionID() = %+v, want newest first", got)
	}

	n, err := repo.DeleteAll(ctx)
	if err != nil || n != 3 {
		t.Errorf("DeleteAll() = %d, %v; want 3", n, err)
	}
	if store.PredictionCount() != 0 {
		t.Error("predictions remain after DeleteAll()")
	}
}

func TestTxManager_CommitAndRollback(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	txm, err := NewTxManager(store)
	if err != nil {
		t.Fatalf("NewTxManager() error = %v", err)
	}

	err = txm.WithTransaction(ctx, func(uow outbound.UnitOfWork) error {
		if _, err := uow.Transactions().Insert(ctx, newTx(t, "ok")); err != nil {
			return err
		}
		return uow.Predictions().Insert(ctx, newPrediction(t, "ok", 0.2, time.Now()))
	})
	if err != nil {
		t.Fatalf("WithTransaction() error = %v", err)
	}

	wantErr := errors.New("boom")
	err = txm.WithTransaction(ctx, func(uow outbound.UnitOfWork) error {
		if _, err := uow.Transactions().Insert(ctx, newTx(t, "rolled-back")); err != nil {
			return err
		}
		if err := uow.Predictions().Insert(ctx, newPrediction(t, "rolled-back", 0.2, time.Now())); err != nil {
			return err
		}
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("WithTransaction() error = %v, want %v", err, wantErr)
	}

	if store.TransactionCount() != 1 || store.PredictionCount() != 1 {
		t.Errorf("after rollback: %d transactions, %d predictions; want 1, 1",
			store.TransactionCount(), store.PredictionCount())
	}

	// Ids consumed by the rolled back unit of work are reused.
	tx := newTx(t, "next")
	store.Transactions().Insert(ctx, tx)
	if tx.ID != 2 {
		t.Errorf("ID after rollback = %d, want 2", tx.ID)
	}
}

func TestTxManager_PanicRollsBack(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	txm, _ := NewTxManager(store)

	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected panic to be re-raised")
			}
		}()
		_ = txm.WithTransaction(ctx, func(uow outbound.UnitOfWork) error {
			uow.Transactions().Insert(ctx, newTx(t, "tx1"))
			panic("boom")
		})
	}()

	if store.TransactionCount() != 0 {
		t.Error("transaction survived panic")
	}
	// The store lock must have been released.
	if _, err := store.Transactions().FindByExternalID(ctx, "tx1"); err != nil {
		t.Errorf("FindByExternalID() error = %v", err)
	}
}

func TestTxManager_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	txm, _ := NewTxManager(NewStore())

	called := false
	err := txm.WithTransaction(ctx, func(uow outbound.UnitOfWork) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("WithTransaction() error = %v, want context.Canceled", err)
	}
	if called {
		t.Error("fn ran with a canceled context")
	}
}

func TestNewTxManager_NilStore(t *testing.T) {
	if _, err := NewTxManager(nil); err == nil {
		t.Error("expected error for nil store")
	}
}

func TestEventSink(t *testing.T) {
	ctx := context.Background()
	sink := NewEventSink()

	ev := outbound.PredictionEvent{TransactionID: "tx1", Decision: "reject"}
	if err := sink.Publish(ctx, ev); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if err := sink.Publish(ctx, outbound.PredictionEvent{TransactionID: "tx2", Decision: "approve"}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if got := sink.GetPredictionEvents(); len(got) != 2 || got[0].TransactionID != "tx1" {
		t.Errorf("GetPredictionEvents() = %+v", got)
	}
	if got := sink.EventsFor("tx2"); len(got) != 1 {
		t.Errorf("EventsFor(tx2) = %+v", got)
	}

	sink.Close()
	if err := sink.Publish(ctx, ev); !errors.Is(err, ErrSinkClosed) {
		t.Errorf("Publish() after Close error = %v, want ErrSinkClosed", err)
	}
	if len(sink.GetEvents()) != 2 {
		t.Error("event published after Close was stored")
	}
}

func TestBoundedEventSink_KeepsMostRecent(t *testing.T) {
	ctx := context.Background()
	sink := NewBoundedEventSink(2)
	for _, id := range []string{"a", "b", "c"} {
		if err := sink.Publish(ctx, outbound.PredictionEvent{TransactionID: id}); err != nil {
			t.Fatalf("Publish(%s) error = %v", id, err)
		}
	}
	got := sink.GetPredictionEvents()
	if len(got) != 2 || got[0].TransactionID != "b" || got[1].TransactionID != "c" {
		t.Errorf("retained = %+v, want [b c]", got)
	}
}

func TestEventSink_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink := NewEventSink()
	if err := sink.Publish(ctx, outbound.PredictionEvent{TransactionID: "tx1"}); !errors.Is(err, context.Canceled) {
		t.Errorf("Publish() error = %v, want context.Canceled", err)
	}
}

func TestTransactionCache(t *testing.T) {
	ctx := context.Background()
	cache := NewTransactionCache(time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	detail := &entity.TransactionDetail{
		Transaction: newTx(t, "tx1"),
		Predictions: []*entity.Prediction{newPrediction(t, "tx1", 0.3, now)},
	}

	if got, err := cache.Get(ctx, "tx1"); got != nil || err != nil {
		t.Fatalf("Get() on empty cache = %v, %v", got, err)
	}
	if err := cache.Set(ctx, detail, 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := cache.Get(ctx, "tx1")
	if err != nil || got == nil {
		t.Fatalf("Get() = %v, %v", got, err)
	}
	got.Predictions[0].FraudProbability = 1
	again, _ := cache.Get(ctx, "tx1")
	if again.Predictions[0].FraudProbability != 0.3 {
		t.Error("cached entry was mutated through a returned value")
	}

	cache.Invalidate(ctx, "tx1")
	if got, _ := cache.Get(ctx, "tx1"); got != nil {
		t.Error("Get() after Invalidate returned a value")
	}

	cache.Set(ctx, detail, 1)
	now = now.Add(time.Minute)
	if got, _ := cache.Get(ctx, "tx1"); got != nil {
		t.Error("Get() returned an expired entry")
	}
}

func TestTransactionCache_Generation(t *testing.T) {
	ctx := context.Background()
	cache := NewTransactionCache(0)
	detail := &entity.TransactionDetail{Transaction: newTx(t, "tx1")}

	gen, _ := cache.Generation(ctx, "tx1")
	cache.Invalidate(ctx, "tx1")
	cache.Set(ctx, detail, gen)
	if got, _ := cache.Get(ctx, "tx1"); got != nil {
		t.Error("Set() with a generation older than the last Invalidate stored the entry")
	}

	gen, _ = cache.Generation(ctx, "tx1")
	if gen != 1 {
		t.Fatalf("Generation() = %d, want 1", gen)
	}
	cache.Set(ctx, detail, gen)
	if got, _ := cache.Get(ctx, "tx1"); got == nil {
		t.Error("Set() with the current generation did not store the entry")
	}

	if other, _ := cache.Generation(ctx, "tx2"); other != 0 {
		t.Errorf("Generation() of an untouched transaction = %d, want 0", other)
	}
}
