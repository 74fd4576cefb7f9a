// Package migrator brings the fraud scoring schema up to date.
//
// Migrations are the *.sql files of a directory, applied in lexical order.
// Each applied file is recorded in schema_migrations with a SHA-256 of its
// content so that later edits to an applied file are detected instead of
// silently skipped. Concurrent runs (several replicas running `migrate` on
// deploy) are serialized with a Postgres advisory lock.
package migrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const ensureHistoryTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    name       TEXT PRIMARY KEY,
    checksum   TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// lockKey identifies the advisory lock held while migrating.
const lockKey int64 = 0x46524155445343 // "FRAUDSC"

// ErrChecksumMismatch is returned when an applied migration file has been modified.
var ErrChecksumMismatch = errors.New("migration has been modified")

// Migration is one schema migration file.
type Migration struct {
	Name     string
	Checksum string
	SQL      string
}

// Status reports whether a migration file has been applied.
type Status struct {
	Name      string
	Checksum  string
	AppliedAt *time.Time
}

// Applied reports whether the migration is recorded in the history table.
func (s Status) Applied() bool { return s.AppliedAt != nil }

type record struct {
	checksum  string
	appliedAt time.Time
}

type Migrator struct {
	pool   *pgxpool.Pool
	fsys   fs.FS
	dir    string
	logger *slog.Logger
}

// New creates a Migrator reading *.sql files from dir within fsys.
func New(pool *pgxpool.Pool, fsys fs.FS, dir string, logger *slog.Logger) *Migrator {
	if logger == nil {
		logger = slog.Default()
	}
	if dir == "" {
		dir = "."
	}
	return &Migrator{
		pool:   pool,
		fsys:   fsys,
		dir:    dir,
		logger: logger.With("component", "migrator"),
	}
}

// Up applies every pending migration and returns how many were applied.
// Applied migrations are checksum-verified first; a mismatch aborts before
// anything new is executed.
func (m *Migrator) Up(ctx context.Context) (int, error) {
	conn, err := m.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", lockKey); err != nil {
		return 0, fmt.Errorf("acquiring migration lock: %w", err)
	}
	defer func() {
		// The context may already be canceled; the unlock must still reach the server.
		if _, err := conn.Exec(context.WithoutCancel(ctx), "SELECT pg_advisory_unlock($1)", lockKey); err != nil {
			m.logger.Warn("failed to release migration lock", "error", err)
		}
	}()

	if _, err := conn.Exec(ctx, ensureHistoryTable); err != nil {
		return 0, fmt.Errorf("creating schema_migrations: %w", err)
	}

	pending, err := m.pending(ctx, conn)
	if err != nil {
		return 0, err
	}

	for i, mig := range pending {
		if err := m.apply(ctx, conn, mig); err != nil {
			return i, fmt.Errorf("applying %s: %w", mig.Name, err)
		}
	}
	if len(pending) == 0 {
		m.logger.Debug("schema is up to date")
	}
	return len(pending), nil
}

// Pending returns the migrations Up would apply, without applying them.
func (m *Migrator) Pending(ctx context.Context) ([]Migration, error) {
	conn, err := m.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Release()
	return m.pending(ctx, conn)
}

// Status lists every known migration, applied or not, in application order.
// Entries recorded in the history table whose file no longer exists are included.
func (m *Migrator) Status(ctx context.Context) ([]Status, error) {
	conn, err := m.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Release()

	history, err := m.history(ctx, conn)
	if err != nil {
		return nil, err
	}
	migrations, err := m.Load()
	if err != nil {
		return nil, err
	}

	out := make([]Status, 0, max(len(migrations), len(history)))
	for _, mig := range migrations {
		st := Status{Name: mig.Name, Checksum: mig.Checksum}
		if rec, ok := history[mig.Name]; ok {
			st.AppliedAt = &rec.appliedAt
			delete(history, mig.Name)
		}
		out = append(out, st)
	}
	for name, rec := range history {
		out = append(out, Status{Name: name, Checksum: rec.checksum, AppliedAt: &rec.appliedAt})
	}
	slices.SortFunc(out, func(a, b Status) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

// Load reads the migration files in application order.
func (m *Migrator) Load() ([]Migration, error) {
	entries, err := fs.ReadDir(m.fsys, m.dir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory %q: %w", m.dir, err)
	}

	var migrations []Migration
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || path.Ext(name) != ".sql" || strings.HasPrefix(name, "README") {
			continue
		}
		content, err := fs.ReadFile(m.fsys, path.Join(m.dir, name))
		if err != nil {
			return nil, fmt.Errorf("reading migration %s: %w", name, err)
		}
		migrations = append(migrations, Migration{
			Name:     name,
			Checksum: Checksum(content),
			SQL:      string(content),
		})
	}

	slices.SortFunc(migrations, func(a, b Migration) int { return strings.Compare(a.Name, b.Name) })
	return migrations, nil
}

func (m *Migrator) pending(ctx context.Context, conn *pgxpool.Conn) ([]Migration, error) {
	history, err := m.history(ctx, conn)
	if err != nil {
		return nil, err
	}
	migrations, err := m.Load()
	if err != nil {
		return nil, err
	}

	var pending []Migration
	for _, mig := range migrations {
		rec, ok := history[mig.Name]
		if !ok {
			pending = append(pending, mig)
			continue
		}
		if rec.checksum != mig.Checksum {
			return nil, fmt.Errorf("%w: %s was applied with checksum %s, file now has %s",
				ErrChecksumMismatch, mig.Name, short(rec.checksum), short(mig.Checksum))
		}
	}
	return pending, nil
}

// history returns the applied migrations keyed by name. A database that has
// never been migrated has an empty history.
func (m *Migrator) history(ctx context.Context, conn *pgxpool.Conn) (map[string]record, error) {
	var exists bool
	if err := conn.QueryRow(ctx, "SELECT to_regclass('schema_migrations') IS NOT NULL").Scan(&exists); err != nil {
		return nil, fmt.Errorf("checking schema_migrations: %w", err)
	}
	history := make(map[string]record)
	if !exists {
		return history, nil
	}

	rows, err := conn.Query(ctx, "SELECT name, checksum, applied_at FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("reading schema_migrations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var rec record
		if err := rows.Scan(&name, &rec.checksum, &rec.appliedAt); err != nil {
			return nil, fmt.Errorf("scanning schema_migrations: %w", err)
		}
		history[name] = rec
	}
	return history, rows.Err()
}

// apply runs one migration and records it in the same transaction, so a
// failing file leaves neither schema changes nor a history row behind.
func (m *Migrator) apply(ctx context.Context, conn *pgxpool.Conn, mig Migration) error {
	start := time.Now()
	err := pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, mig.SQL); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			"INSERT INTO schema_migrations (name, checksum) VALUES ($1, $2)",
			mig.Name, mig.Checksum)
		return err
	})
	if err != nil {
		return err
	}

	m.logger.Info("applied migration",
		"name", mig.Name,
		"checksum", short(mig.Checksum),
		"duration", time.Since(start))
	return nil
}

// Checksum returns the hex-encoded SHA-256 of a migration file.
func Checksum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func short(checksum string) string {
	if len(checksum) > 12 {
		return checksum[:12]
	}
	return checksum
}
