package storage

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// Config configures storage.
type Config struct {
	Driver      string
	Path        string
	DSN         string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the notification state: a grow-only set of delivered keys.
type Store interface {
	IsSent(key string) bool
	// MarkSent records key and returns only after it is durable.
	// Repeating a key is a no-op. Failures are *PersistenceError.
	MarkSent(ctx context.Context, key string) error
	Keys() []string
	Len() int
	Close() error
}

// PersistenceError means the state could not be written or read back.
// Callers must not swallow it: a lost key means a repeated notification.
type PersistenceError struct {
	Driver string
	Op     string
	Key    string
	Err    error
}

func (e *PersistenceError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("storage %s: %s %q: %v", e.Driver, e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("storage %s: %s: %v", e.Driver, e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// keySet is the in-memory mirror shared by all drivers.
//
// A key whose write failed stays in memory (no resend from this process) and
// in pending, so the next successful write or Close persists it.
type keySet struct {
	// wmu serializes writes; mu guards keys for readers.
	wmu     sync.Mutex
	pending []string

	mu   sync.RWMutex
	keys map[string]struct{}
}

type writeFunc func(ctx context.Context, batch []string) error

func newKeySet(keys []string) *keySet {
	s := &keySet{keys: make(map[string]struct{}, len(keys))}
	for _, k := range keys {
		if k != "" {
			s.keys[k] = struct{}{}
		}
	}
	return s
}

func (s *keySet) add(ctx context.Context, key string, write writeFunc) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	s.mu.Lock()
	_, exists := s.keys[key]
	if !exists {
		s.keys[key] = struct{}{}
	}
	s.mu.Unlock()

	if exists && len(s.pending) == 0 {
		return nil
	}
	batch := s.pending
	if !exists {
		batch = append(slices.Clone(s.pending), key)
	}
	if err := write(ctx, batch); err != nil {
		s.pending = batch
		return err
	}
	s.pending = nil
	return nil
}

func (s *keySet) flush(ctx context.Context, write writeFunc) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if len(s.pending) == 0 {
		return nil
	}
	if err := write(ctx, s.pending); err != nil {
		return err
	}
	s.pending = nil
	return nil
}

func (s *keySet) has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.keys[key]
	return ok
}

func (s *keySet) sorted() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.keys))
	for k := range s.keys {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

func (s *keySet) size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}
