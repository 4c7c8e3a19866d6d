package notifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	kit "fxcalbot/internal/transport"
	logx "fxcalbot/pkg/logx"
	"fxcalbot/pkg/tgui"
)

type flakySender struct {
	mu       sync.Mutex
	failures int
	calls    int
	to       []kit.ChatTarget
}

func (f *flakySender) SendText(_ context.Context, to kit.ChatTarget, _ string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.to = append(f.to, to)
	if f.calls <= f.failures {
		return kit.MessageRef{}, errors.New("telegram: Too Many Requests (429)")
	}
	return kit.MessageRef{MessageID: f.calls}, nil
}

func fastDelivery(s kit.Sender, retryMax int) *Delivery {
	return NewDelivery(s, kit.ParseChatTarget("@fxnews"), DeliveryConfig{
		RatePerSec:    1000,
		RetryMax:      retryMax,
		RetryBase:     time.Millisecond,
		RetryMaxDelay: 2 * time.Millisecond,
	}, logx.Nop())
}

func TestDeliveryRetriesTransientFailures(t *testing.T) {
	t.Parallel()
	s := &flakySender{failures: 2}
	d := fastDelivery(s, 3)

	if err := d.Deliver(context.Background(), tgui.Message{Text: tgui.Esc("hi")}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if s.calls != 3 {
		t.Fatalf("calls=%d", s.calls)
	}
	if s.to[0].Username != "@fxnews" {
		t.Fatalf("target=%+v", s.to[0])
	}
	st := d.Stats(5)
	if st.Sent != 1 || st.Failed != 0 || len(st.History) != 1 || st.History[0].Text != "hi" {
		t.Fatalf("stats=%+v", st)
	}
}

func TestDeliveryGivesUpAfterRetryMax(t *testing.T) {
	t.Parallel()
	s := &flakySender{failures: 10}
	d := fastDelivery(s, 2)

	err := d.Deliver(context.Background(), tgui.Message{Text: tgui.Esc("hi")})
	var de *DeliveryError
	if !errors.As(err, &de) || de.Attempts != 3 || de.Target != "@fxnews" {
		t.Fatalf("err=%v", err)
	}
	if s.calls != 3 || d.Stats(0).Failed != 1 {
		t.Fatalf("calls=%d stats=%+v", s.calls, d.Stats(0))
	}
}

func TestDeliveryHonorsCancellation(t *testing.T) {
	t.Parallel()
	d := fastDelivery(&flakySender{failures: 10}, 5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Deliver(ctx, tgui.Message{Text: tgui.Esc("hi")}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v", err)
	}
}

// scriptedSender fails the listed call numbers (1-based) once each.
type scriptedSender struct {
	mu        sync.Mutex
	fail      map[int]error
	calls     int
	delivered []string
}

func (f *scriptedSender) SendText(_ context.Context, _ kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.fail[f.calls]; err != nil {
		return kit.MessageRef{}, err
	}
	f.delivered = append(f.delivered, text)
	return kit.MessageRef{MessageID: f.calls}, nil
}

func longMessage() tgui.Message {
	b := tgui.New()
	for i := range 120 {
		b.Line(fmt.Sprintf("line %03d %s", i, strings.Repeat("x", 90)))
	}
	return b.Build()
}

func TestDeliveryResumesAtFailedPart(t *testing.T) {
	t.Parallel()
	m := longMessage()
	parts := m.Parts()
	if len(parts) < 3 {
		t.Fatalf("parts=%d, want a message of 3+ parts", len(parts))
	}
	s := &scriptedSender{fail: map[int]error{2: errors.New("telegram: Too Many Requests (429)")}}
	d := fastDelivery(s, 3)

	if err := d.Deliver(context.Background(), m); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if s.calls != len(parts)+1 {
		t.Fatalf("calls=%d parts=%d", s.calls, len(parts))
	}
	if len(s.delivered) != len(parts) {
		t.Fatalf("delivered=%d parts=%d", len(s.delivered), len(parts))
	}
	for i, p := range parts {
		if s.delivered[i] != p.Text.String() {
			t.Fatalf("part %d delivered out of order or twice", i+1)
		}
	}
	if st := d.Stats(0); st.Sent != 1 || st.Failed != 0 {
		t.Fatalf("stats=%+v", st)
	}
}

func TestDeliveryReportsFailedPart(t *testing.T) {
	t.Parallel()
	m := longMessage()
	fail := errors.New("telegram: Too Many Requests (429)")
	s := &scriptedSender{fail: map[int]error{2: fail, 3: fail}}
	d := fastDelivery(s, 1)

	var de *DeliveryError
	if err := d.Deliver(context.Background(), m); !errors.As(err, &de) {
		t.Fatalf("err=%v", err)
	}
	if de.Part != 2 || de.Parts != len(m.Parts()) || de.Attempts != 2 {
		t.Fatalf("error=%+v", de)
	}
	if len(s.delivered) != 1 {
		t.Fatalf("delivered=%d", len(s.delivered))
	}
}

func TestRetryDelayIsBounded(t *testing.T) {
	t.Parallel()
	cfg := DeliveryConfig{RetryBase: 100 * time.Millisecond, RetryMaxDelay: time.Second}
	for attempt := 1; attempt <= 10; attempt++ {
		d := retryDelay(cfg, attempt)
		if d <= 0 || d > time.Second {
			t.Fatalf("attempt %d: delay=%v", attempt, d)
		}
	}
}
