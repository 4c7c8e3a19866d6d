package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	logx "fxcalbot/pkg/logx"
)

// ErrSkipped is returned by RunNow when the job is already running.
var ErrSkipped = errors.New("scheduler: job already running")

// ErrUnknownJob is returned by RunNow for a name that was never registered.
var ErrUnknownJob = errors.New("scheduler: unknown job")

// Job is one unit of scheduled work.
type Job func(ctx context.Context) error

type jobDef struct {
	name    string
	spec    string
	timeout time.Duration
	run     Job
	sched   cron.Schedule
	entryID cron.EntryID

	running  atomic.Bool
	runs     atomic.Uint64
	skipped  atomic.Uint64
	failures atomic.Uint64

	mu      sync.Mutex
	lastAt  time.Time
	lastDur time.Duration
	lastErr string
}

// Service registers jobs and owns the cron instance.
type Service struct {
	log    logx.Logger
	parser cron.Parser

	mu   sync.Mutex
	loc  *time.Location
	c    *cron.Cron
	ctx  context.Context
	defs map[string]*jobDef

	// slot serializes job bodies: at most one job runs at a time.
	slot chan struct{}

	hmu         sync.Mutex
	history     []HistoryItem
	historySize int
}

// ScheduleInfo describes one registered job.
type ScheduleInfo struct {
	Name     string        `json:"name"`
	Spec     string        `json:"spec"`
	Timeout  time.Duration `json:"timeout"`
	Next     time.Time     `json:"next"`
	Running  bool          `json:"running"`
	Runs     uint64        `json:"runs"`
	Skipped  uint64        `json:"skipped"`
	Failures uint64        `json:"failures"`
	LastAt   time.Time     `json:"last_at,omitzero"`
	LastDur  time.Duration `json:"last_dur,omitempty"`
	LastErr  string        `json:"last_error,omitempty"`
}

// HistoryItem is one finished run.
type HistoryItem struct {
	Name     string        `json:"name"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Err      string        `json:"error,omitempty"`
}

type Snapshot struct {
	Running   bool           `json:"running"`
	Timezone  string         `json:"timezone"`
	Schedules []ScheduleInfo `json:"schedules"`
	History   []HistoryItem  `json:"history,omitempty"`
}
