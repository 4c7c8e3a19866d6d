package notifier

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"

	kit "fxcalbot/internal/transport"
	logx "fxcalbot/pkg/logx"
	"fxcalbot/pkg/tgui"
)

// DeliveryConfig controls how messages reach the channel.
type DeliveryConfig struct {
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	SendTimeout   time.Duration
}

// DeliveryError reports a message that could not be delivered after retries.
type DeliveryError struct {
	Target string
	// Part is the 1-based part that failed; earlier parts were delivered.
	Part     int
	Parts    int
	Attempts int
	Err      error
}

func (e *DeliveryError) Error() string {
	if e.Parts > 1 {
		return fmt.Sprintf("deliver to %s failed at part %d/%d after %d attempt(s): %v",
			e.Target, e.Part, e.Parts, e.Attempts, e.Err)
	}
	return fmt.Sprintf("deliver to %s failed after %d attempt(s): %v", e.Target, e.Attempts, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Deliverer sends one rendered message to the configured channel.
type Deliverer interface {
	Deliver(ctx context.Context, m tgui.Message) error
}

// HistoryItem is one delivered message, kept for /status.
type HistoryItem struct {
	At   time.Time `json:"at"`
	Text string    `json:"text"`
}

// Delivery sends to a single channel with rate limiting and retries.
// It is safe for concurrent use.
type Delivery struct {
	sender kit.Sender
	log    logx.Logger

	mu      sync.Mutex
	cfg     DeliveryConfig
	target  kit.ChatTarget
	limiter *rate.Limiter

	hmu     sync.Mutex
	history []HistoryItem
	sent    uint64
	failed  uint64
}

func NewDelivery(sender kit.Sender, target kit.ChatTarget, cfg DeliveryConfig, log logx.Logger) *Delivery {
	if log.IsZero() {
		log = logx.Nop()
	}
	d := &Delivery{sender: sender, log: log}
	d.Apply(target, cfg)
	return d
}

// Apply swaps the target and limits at runtime.
func (d *Delivery) Apply(target kit.ChatTarget, cfg DeliveryConfig) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = time.Second
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 30 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.limiter == nil || d.cfg.RatePerSec != cfg.RatePerSec {
		// Token bucket: burst = rate per sec, so short spikes don't block too hard.
		d.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	}
	d.cfg = cfg
	d.target = target
}

func (d *Delivery) Target() kit.ChatTarget {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.target
}

// Deliver sends m, retrying transient failures. A long message goes out part
// by part and a retry resumes at the failed part. Cancellation of ctx is
// returned as is; exhausted retries return a *DeliveryError.
func (d *Delivery) Deliver(ctx context.Context, m tgui.Message) error {
	d.mu.Lock()
	cfg, lim, target := d.cfg, d.limiter, d.target
	d.mu.Unlock()

	parts := m.Parts()
	for i, p := range parts {
		attempts, err := d.sendPart(ctx, cfg, lim, target, p)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.hmu.Lock()
		d.failed++
		d.hmu.Unlock()
		return &DeliveryError{Target: target.String(), Part: i + 1, Parts: len(parts), Attempts: attempts, Err: err}
	}
	d.record(m)
	return nil
}

// sendPart sends one part with a limiter token per attempt.
func (d *Delivery) sendPart(ctx context.Context, cfg DeliveryConfig, lim *rate.Limiter, target kit.ChatTarget, p tgui.Message) (int, error) {
	attempts := 1 + cfg.RetryMax
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			return attempt, err
		}
		callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
		_, err := p.Send(callCtx, d.sender, target)
		cancel()
		if err == nil {
			return attempt, nil
		}
		if ctx.Err() != nil {
			return attempt, ctx.Err()
		}
		lastErr = err
		d.log.Debug("send failed", logx.Err(err), logx.Int("attempt", attempt), logx.Int("max", attempts))
		if attempt == attempts || !retryable(err) {
			return attempt, lastErr
		}

		t := time.NewTimer(retryDelay(cfg, attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return attempt, ctx.Err()
		}
	}
	return attempts, lastErr
}

// retryable is false for errors a retry cannot fix.
func retryable(err error) bool {
	return !tgui.IsParseError(err)
}

func (d *Delivery) record(m tgui.Message) {
	d.hmu.Lock()
	d.sent++
	d.history = append(d.history, HistoryItem{At: time.Now(), Text: m.PlainText()})
	if len(d.history) > 100 {
		d.history = d.history[len(d.history)-100:]
	}
	d.hmu.Unlock()
}

type DeliveryStats struct {
	Sent    uint64        `json:"sent"`
	Failed  uint64        `json:"failed"`
	Target  string        `json:"target"`
	History []HistoryItem `json:"history,omitempty"`
}

// Stats returns counters and the most recent deliveries (newest last).
func (d *Delivery) Stats(lastN int) DeliveryStats {
	target := d.Target()
	d.hmu.Lock()
	defer d.hmu.Unlock()
	st := DeliveryStats{Sent: d.sent, Failed: d.failed, Target: target.String()}
	if lastN > 0 {
		from := max(0, len(d.history)-lastN)
		st.History = append([]HistoryItem(nil), d.history[from:]...)
	}
	return st
}

func retryDelay(cfg DeliveryConfig, attempt int) time.Duration {
	// attempt starts at 1; the delay is for the next attempt.
	delay := cfg.RetryBase
	for i := 1; i < attempt && delay < cfg.RetryMaxDelay; i++ {
		delay *= 2
	}
	// Jitter 0.7..1.3
	delay = time.Duration(float64(delay) * (0.7 + rand.Float64()*0.6))
	return min(max(delay, 0), cfg.RetryMaxDelay)
}
