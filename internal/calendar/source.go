package calendar

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	logx "fxcalbot/pkg/logx"
)

// Fetcher is the raw feed download. *FeedClient implements it.
type Fetcher interface {
	Fetch(ctx context.Context) ([]json.RawMessage, error)
}

type SourceOptions struct {
	Location   *time.Location
	Currencies []string
	// PollInterval is how long a successful snapshot is reused. Zero refetches every call.
	PollInterval time.Duration
}

// SourceStats is a point-in-time view for /status.
type SourceStats struct {
	FetchedAt time.Time `json:"fetched_at"`
	Events    int       `json:"events"`
	Skipped   int       `json:"skipped"`
	LastError string    `json:"last_error,omitempty"`
}

// Source is the fetch → normalize → filter pipeline with a snapshot cache.
type Source struct {
	feed Fetcher
	log  logx.Logger

	// fetchMu serializes refreshes; mu is never held across the network call.
	fetchMu sync.Mutex

	mu        sync.Mutex
	opts      SourceOptions
	events    []Event // normalized, unfiltered, feed order
	fetchedAt time.Time
	skipped   int
	lastErr   error
}

func NewSource(feed Fetcher, opts SourceOptions, log logx.Logger) *Source {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Source{feed: feed, opts: opts, log: log}
}

// Configure swaps options at runtime. A timezone change drops the snapshot.
func (s *Source) Configure(opts SourceOptions) {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opts.Location.String() != opts.Location.String() {
		s.events = nil
		s.fetchedAt = time.Time{}
	}
	s.opts = opts
}

func (s *Source) Location() *time.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts.Location
}

// Events returns the filtered events of the current snapshot in feed order.
// A fetch failure returns a *FetchError and no events.
func (s *Source) Events(ctx context.Context, now time.Time) ([]Event, error) {
	if events, ok := s.cached(now); ok {
		return events, nil
	}

	s.fetchMu.Lock()
	defer s.fetchMu.Unlock()
	// Another caller may have refreshed while this one waited.
	if events, ok := s.cached(now); ok {
		return events, nil
	}

	records, err := s.feed.Fetch(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.lastErr = err
		s.events = nil
		s.fetchedAt = time.Time{}
		return nil, err
	}
	events, errs := Normalize(records, s.opts.Location)
	for _, e := range errs {
		s.log.Warn("feed record skipped", logx.Err(e))
	}
	s.events = events
	s.skipped = len(errs)
	s.fetchedAt = now
	s.lastErr = nil
	s.log.Debug("feed refreshed", logx.Int("events", len(events)), logx.Int("skipped", len(errs)))
	return Filter(s.events, s.opts.Currencies), nil
}

func (s *Source) cached(now time.Time) ([]Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.fresh(now) {
		return nil, false
	}
	return Filter(s.events, s.opts.Currencies), true
}

func (s *Source) fresh(now time.Time) bool {
	if s.fetchedAt.IsZero() || s.opts.PollInterval <= 0 {
		return false
	}
	age := now.Sub(s.fetchedAt)
	return age >= 0 && age < s.opts.PollInterval
}

// Upcoming returns filtered events in [now, now+horizon], ascending.
func (s *Source) Upcoming(ctx context.Context, now time.Time, horizon time.Duration) ([]Event, error) {
	events, err := s.Events(ctx, now)
	if err != nil {
		return nil, err
	}
	return Upcoming(events, now, horizon), nil
}

// Week returns every filtered event of the snapshot, ascending.
func (s *Source) Week(ctx context.Context, now time.Time) ([]Event, error) {
	events, err := s.Events(ctx, now)
	if err != nil {
		return nil, err
	}
	SortByTime(events)
	return events, nil
}

func (s *Source) Stats() SourceStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := SourceStats{FetchedAt: s.fetchedAt, Events: len(s.events), Skipped: s.skipped}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}
