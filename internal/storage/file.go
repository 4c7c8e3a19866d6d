package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	logx "fxcalbot/pkg/logx"
)

// fileStore keeps the key set in one JSON array document.
//
// Each new key rewrites the whole document through a temp file + rename in the
// same directory, so a crash leaves either the old or the new snapshot.
type fileStore struct {
	log    logx.Logger
	path   string
	set    *keySet
	closed atomic.Bool
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, &PersistenceError{Driver: "file", Op: "open", Err: errors.New("path is required")}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &PersistenceError{Driver: "file", Op: "open", Err: err}
	}
	keys, err := readSnapshot(path)
	if err != nil {
		return nil, &PersistenceError{Driver: "file", Op: "load", Err: err}
	}
	log.Info("notification state loaded", logx.String("path", path), logx.Int("keys", len(keys)))
	return &fileStore{log: log, path: path, set: newKeySet(keys)}, nil
}

// readSnapshot returns nil keys when the file does not exist yet.
func readSnapshot(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return nil, nil
	}
	var keys []string
	if err := json.Unmarshal(b, &keys); err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *fileStore) IsSent(key string) bool { return s.set.has(key) }
func (s *fileStore) Keys() []string         { return s.set.sorted() }
func (s *fileStore) Len() int               { return s.set.size() }

func (s *fileStore) MarkSent(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	if s.closed.Load() {
		return &PersistenceError{Driver: "file", Op: "mark", Key: key, Err: errors.New("store closed")}
	}
	if err := s.set.add(ctx, key, s.writeSnapshot); err != nil {
		return &PersistenceError{Driver: "file", Op: "write", Key: key, Err: err}
	}
	return nil
}

// writeSnapshot ignores the batch: the document always holds the full set.
func (s *fileStore) writeSnapshot(ctx context.Context, _ []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.MarshalIndent(s.set.sorted(), "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(s.path, append(b, '\n'), 0o600)
}

func (s *fileStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if err := s.set.flush(context.Background(), s.writeSnapshot); err != nil {
		return &PersistenceError{Driver: "file", Op: "flush", Err: err}
	}
	return nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	fail := func(err error) error {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if _, err := f.Write(data); err != nil {
		return fail(err)
	}
	if err := f.Sync(); err != nil {
		return fail(err)
	}
	if err := f.Chmod(perm); err != nil {
		return fail(err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
