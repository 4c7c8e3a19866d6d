// Package router dispatches Telegram slash commands to handlers on a bounded
// worker pool.
package router

import (
	"context"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	rtsup "fxcalbot/internal/runtime/supervisor"
	kit "fxcalbot/internal/transport"
	logx "fxcalbot/pkg/logx"
	"fxcalbot/pkg/tgui"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessAdminOnly
)

type Command struct {
	Name        string // without the leading slash
	Description string
	Access      Access
	Hidden      bool          // excluded from the Telegram menu
	Timeout     time.Duration // optional per-command override
	Handle      HandlerFunc
}

type Request struct {
	Message *kit.Message
	Chat    kit.ChatTarget
	FromID  int64
	Command string
	Args    []string
	ReqID   string

	Logger logx.Logger
	Sender kit.Sender
}

// Reply sends m to the chat the command came from.
func (r *Request) Reply(ctx context.Context, m tgui.Message) error {
	_, err := m.Send(ctx, r.Sender, r.Chat)
	return err
}

type Options struct {
	AdminID int64
	// Denied is the reply for admin-only commands sent by anyone else.
	Denied tgui.Message
	// DefaultTimeout bounds handlers without their own Timeout.
	DefaultTimeout time.Duration
	Workers        int
	QueueSize      int
}

type Router struct {
	log    logx.Logger
	sender kit.Sender

	mu    sync.RWMutex
	cmds  map[string]Command
	order []Command

	admin   atomic.Int64
	denied  tgui.Message
	timeout time.Duration
	workers int

	jobs    chan func()
	handled atomic.Uint64
	dropped atomic.Uint64

	supMu sync.Mutex
	sup   *rtsup.Supervisor
}

func New(log logx.Logger, sender kit.Sender, opt Options) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	if opt.Workers <= 0 {
		opt.Workers = max(2, runtime.NumCPU())
	}
	if opt.QueueSize <= 0 {
		opt.QueueSize = 64
	}
	if opt.DefaultTimeout <= 0 {
		opt.DefaultTimeout = 30 * time.Second
	}
	if opt.Denied.Text == "" {
		opt.Denied = tgui.Message{Text: tgui.Esc("unauthorized")}
	}
	r := &Router{
		log:     log,
		sender:  sender,
		cmds:    map[string]Command{},
		denied:  opt.Denied,
		timeout: opt.DefaultTimeout,
		workers: opt.Workers,
		jobs:    make(chan func(), opt.QueueSize),
	}
	r.admin.Store(opt.AdminID)
	return r
}

// SetAdmin updates the user allowed to run admin-only commands.
// Safe to call during hot-reload.
func (r *Router) SetAdmin(id int64) { r.admin.Store(id) }

// SetCommands replaces the command registry.
func (r *Router) SetCommands(cmds []Command) {
	m := make(map[string]Command, len(cmds))
	order := make([]Command, 0, len(cmds))
	for _, c := range cmds {
		name := sanitizeCommand(c.Name)
		if name == "" || c.Handle == nil {
			continue
		}
		c.Name = name
		if _, dup := m[name]; !dup {
			order = append(order, c)
		}
		m[name] = c
	}
	r.mu.Lock()
	r.cmds = m
	r.order = order
	r.mu.Unlock()
}

// Commands returns the registry in registration order.
func (r *Router) Commands() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Command(nil), r.order...)
}

// UpdateMenu publishes the command list when the sender supports it.
func (r *Router) UpdateMenu(ctx context.Context) error {
	up, ok := r.sender.(kit.CommandMenuUpdater)
	if !ok {
		return nil
	}
	return up.UpdateMenuCommands(ctx, menuCommands(r.Commands()))
}

type Stats struct {
	Handled uint64 `json:"handled"`
	Dropped uint64 `json:"dropped"`
	Queued  int    `json:"queued"`
}

func (r *Router) Stats() Stats {
	return Stats{Handled: r.handled.Load(), Dropped: r.dropped.Load(), Queued: len(r.jobs)}
}

// Supervisor returns the worker pool supervisor (nil if not running).
func (r *Router) Supervisor() *rtsup.Supervisor {
	r.supMu.Lock()
	defer r.supMu.Unlock()
	return r.sup
}

// DispatchLoop consumes updates until ctx is done or updates is closed.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.New(ctx,
		rtsup.WithLogger(r.log.With(logx.String("comp", "telegram.router"))),
		rtsup.WithCancelOnError(false),
	)
	r.supMu.Lock()
	r.sup = sup
	r.supMu.Unlock()

	r.log.Info("command dispatcher started", logx.Int("workers", r.workers), logx.Int("job_queue_cap", cap(r.jobs)))
	for i := 0; i < r.workers; i++ {
		sup.GoRestart("command.worker."+strconv.Itoa(i), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job := <-r.jobs:
					job()
				}
			}
		}, rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second))
	}

	defer func() {
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Stop(wctx)
		cancel()
		r.supMu.Lock()
		r.sup = nil
		r.supMu.Unlock()
		r.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			run, ok := r.prepare(ctx, up)
			if !ok {
				continue
			}
			select {
			case r.jobs <- run:
			default:
				r.dropped.Add(1)
				r.log.Warn("command queue full, dropping", logx.Int("cap", cap(r.jobs)))
			}
		}
	}
}

// prepare resolves an update into a runnable job. Non-command text, unknown
// commands and denied admin commands produce no job.
func (r *Router) prepare(ctx context.Context, up kit.Update) (func(), bool) {
	msg := up.Message
	if msg == nil {
		return nil, false
	}
	name, args, ok := ParseCommand(msg.Text)
	if !ok {
		return nil, false
	}
	r.mu.RLock()
	cmd, found := r.cmds[name]
	r.mu.RUnlock()
	if !found {
		r.log.Debug("unknown command", logx.String("cmd", name), logx.Int64("from_id", msg.FromID))
		return nil, false
	}

	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	if cmd.Access == AccessAdminOnly && msg.FromID != r.admin.Load() {
		r.log.Info("admin command denied", logx.String("cmd", name), logx.Int64("from_id", msg.FromID))
		denied := r.denied
		return func() { _, _ = denied.Send(ctx, r.sender, chat) }, true
	}

	rid := uuid.NewString()
	req := &Request{
		Message: msg,
		Chat:    chat,
		FromID:  msg.FromID,
		Command: name,
		Args:    args,
		ReqID:   rid,
		Sender:  r.sender,
		Logger: r.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", name),
		),
	}
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = r.timeout
	}
	final := Chain(cmd.Handle,
		MWPanicRecover(r.log),
		MWRequestLog(r.log),
		MWTimeout(timeout),
	)
	return func() {
		_ = final(ctx, req)
		r.handled.Add(1)
	}, true
}

// ParseCommand splits "/name@bot arg1 arg2" into its parts.
func ParseCommand(text string) (name string, args []string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}
	fields := strings.Fields(text)
	word := strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	word = strings.ToLower(word)
	if word == "" {
		return "", nil, false
	}
	return word, fields[1:], true
}
