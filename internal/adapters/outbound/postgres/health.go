package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// DatabaseCheck checks that the database answers a ping within a timeout.
type DatabaseCheck struct {
	db      pinger
	timeout time.Duration
}

// NewDatabaseCheck checks pool. A zero timeout defaults to two seconds.
func NewDatabaseCheck(pool *pgxpool.Pool, timeout time.Duration) *DatabaseCheck {
	return newDatabaseCheck(pool, timeout)
}

func newDatabaseCheck(db pinger, timeout time.Duration) *DatabaseCheck {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &DatabaseCheck{db: db, timeout: timeout}
}

// Check pings the database.
func (p *DatabaseCheck) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping: %w", err)
	}
	return nil
}
