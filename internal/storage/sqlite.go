package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	logx "fxcalbot/pkg/logx"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sent_notifications (
	key     TEXT PRIMARY KEY,
	sent_at INTEGER NOT NULL
);`

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
	set *keySet
}

func openSQLite(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, &PersistenceError{Driver: "sqlite", Op: "open", Err: errors.New("path is required")}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &PersistenceError{Driver: "sqlite", Op: "open", Err: err}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &PersistenceError{Driver: "sqlite", Op: "open", Err: err}
	}
	// One writer; SQLite serializes anyway and this avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()),
		"PRAGMA journal_mode = WAL",
		// FULL: a committed key must survive power loss, not only a process crash.
		"PRAGMA synchronous = FULL",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			log.Warn("sqlite pragma failed", logx.String("pragma", p), logx.Err(err))
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, &PersistenceError{Driver: "sqlite", Op: "migrate", Err: err}
	}

	keys, err := loadKeys(ctx, db, `SELECT key FROM sent_notifications`)
	if err != nil {
		_ = db.Close()
		return nil, &PersistenceError{Driver: "sqlite", Op: "load", Err: err}
	}
	log.Info("notification state loaded", logx.String("path", path), logx.Int("keys", len(keys)))
	return &sqliteStore{db: db, log: log, set: newKeySet(keys)}, nil
}

func loadKeys(ctx context.Context, db *sql.DB, query string) ([]string, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *sqliteStore) IsSent(key string) bool { return s.set.has(key) }
func (s *sqliteStore) Keys() []string         { return s.set.sorted() }
func (s *sqliteStore) Len() int               { return s.set.size() }

func (s *sqliteStore) MarkSent(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	if err := s.set.add(ctx, key, s.insert); err != nil {
		return &PersistenceError{Driver: "sqlite", Op: "insert", Key: key, Err: err}
	}
	return nil
}

func (s *sqliteStore) insert(ctx context.Context, batch []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	now := time.Now().UnixMilli()
	for _, k := range batch {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sent_notifications(key, sent_at) VALUES(?, ?) ON CONFLICT(key) DO NOTHING`,
			k, now,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) Close() error {
	if s.db == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	flushErr := s.set.flush(ctx, s.insert)
	if flushErr != nil {
		flushErr = &PersistenceError{Driver: "sqlite", Op: "flush", Err: flushErr}
	}
	return errors.Join(flushErr, s.db.Close())
}
