package postgres

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/loykin/taskvisor/internal/store"
)

// DB implements store.Store for PostgreSQL via the pgx stdlib driver.
// New does not connect; the kv_state table is created on first use.
type DB struct {
	db    *sql.DB
	mu    sync.Mutex
	ready bool
}

func New(dsn string) (*DB, error) {
	d, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &DB{db: d}, nil
}

// ensureSchema creates the table on the first successful call. Failures are
// not cached so a database that was briefly unreachable recovers.
func (p *DB) ensureSchema(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ready {
		return nil
	}
	if _, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS kv_state(
			key TEXT PRIMARY KEY,
			value BYTEA NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`); err != nil {
		return err
	}
	p.ready = true
	return nil
}

func (p *DB) Get(ctx context.Context, key string) ([]byte, error) {
	if err := p.ensureSchema(ctx); err != nil {
		return nil, err
	}
	var v []byte
	err := p.db.QueryRowContext(ctx,
		`SELECT value FROM kv_state WHERE key=$1;`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (p *DB) Set(ctx context.Context, key string, value []byte) error {
	if err := p.ensureSchema(ctx); err != nil {
		return err
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO kv_state(key, value, updated_at)
		VALUES($1, $2, $3)
		ON CONFLICT(key) DO UPDATE SET
			value=EXCLUDED.value,
			updated_at=EXCLUDED.updated_at;`,
		key, value, time.Now().UTC())
	return err
}

func (p *DB) Delete(ctx context.Context, key string) error {
	if err := p.ensureSchema(ctx); err != nil {
		return err
	}
	_, err := p.db.ExecContext(ctx, `DELETE FROM kv_state WHERE key=$1;`, key)
	return err
}

func (p *DB) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *DB) Close() error { return p.db.Close() }
