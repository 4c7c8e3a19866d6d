package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	logx "fxcalbot/pkg/logx"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS sent_notifications (
	key     TEXT PRIMARY KEY,
	sent_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

type postgresStore struct {
	pool *pgxpool.Pool
	log  logx.Logger
	set  *keySet
}

func openPostgres(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, &PersistenceError{Driver: "postgres", Op: "open", Err: errors.New("dsn is required")}
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, &PersistenceError{Driver: "postgres", Op: "open", Err: err}
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, &PersistenceError{Driver: "postgres", Op: "ping", Err: err}
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, &PersistenceError{Driver: "postgres", Op: "migrate", Err: err}
	}

	rows, err := pool.Query(ctx, `SELECT key FROM sent_notifications`)
	if err != nil {
		pool.Close()
		return nil, &PersistenceError{Driver: "postgres", Op: "load", Err: err}
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		pool.Close()
		return nil, &PersistenceError{Driver: "postgres", Op: "load", Err: err}
	}
	log.Info("notification state loaded", logx.String("driver", "postgres"), logx.Int("keys", len(keys)))
	return &postgresStore{pool: pool, log: log, set: newKeySet(keys)}, nil
}

func (s *postgresStore) IsSent(key string) bool { return s.set.has(key) }
func (s *postgresStore) Keys() []string         { return s.set.sorted() }
func (s *postgresStore) Len() int               { return s.set.size() }

func (s *postgresStore) MarkSent(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	if err := s.set.add(ctx, key, s.insert); err != nil {
		return &PersistenceError{Driver: "postgres", Op: "insert", Key: key, Err: err}
	}
	return nil
}

func (s *postgresStore) insert(ctx context.Context, batch []string) error {
	b := &pgx.Batch{}
	for _, k := range batch {
		b.Queue(`INSERT INTO sent_notifications(key) VALUES($1) ON CONFLICT (key) DO NOTHING`, k)
	}
	return s.pool.SendBatch(ctx, b).Close()
}

func (s *postgresStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.set.flush(ctx, s.insert)
	s.pool.Close()
	if err != nil {
		return &PersistenceError{Driver: "postgres", Op: "flush", Err: err}
	}
	return nil
}
