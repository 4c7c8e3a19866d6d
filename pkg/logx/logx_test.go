package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

func TestLoggerWithFieldsAndCaller(t *testing.T) {
	var buf bytes.Buffer
	l := FromZerolog(zerolog.New(&buf)).With(String("comp", "notifier"))
	l.Warn("delivery failed", Int("threshold", 15), Err(errors.New("boom")))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("decode: %v (%q)", err, buf.String())
	}
	if m["comp"] != "notifier" || m["message"] != "delivery failed" {
		t.Fatalf("unexpected fields: %v", m)
	}
	if m["threshold"] != float64(15) {
		t.Fatalf("threshold=%v", m["threshold"])
	}
	caller, _ := m[zerolog.CallerFieldName].(string)
	if !strings.HasPrefix(caller, "logx_test.go:") {
		t.Fatalf("caller=%q", caller)
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	var l Logger
	if !l.IsZero() {
		t.Fatalf("zero logger should report IsZero")
	}
	l.Error("nothing happens")
	if Nop().IsZero() {
		t.Fatalf("Nop logger is not zero")
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{" WARNING ", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"loud", zerolog.InfoLevel},
	}
	for _, tc := range cases {
		if got := parseLevel(tc.in, zerolog.InfoLevel); got != tc.want {
			t.Fatalf("parseLevel(%q)=%v want %v", tc.in, got, tc.want)
		}
	}
	if ValidLevel("loud") || !ValidLevel("") || !ValidLevel("trace") {
		t.Fatalf("ValidLevel mismatch")
	}
}

func TestFormatTelegramLine(t *testing.T) {
	t.Parallel()
	line := `{"level":"error","time":"x","message":"persist failed","key":"a_t60","comp":"store"}`
	got := formatTelegramLine([]byte(line))
	want := "[ERROR] persist failed\n- comp=store\n- key=a_t60"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
	if got := formatTelegramLine([]byte("plain text\n")); got != "plain text" {
		t.Fatalf("non-json passthrough: %q", got)
	}
}

func TestTelegramWriterRespectsMinLevel(t *testing.T) {
	s := &Service{tgQueue: make(chan string, 4)}
	s.Apply(Config{Telegram: TelegramConfig{MinLevel: "error", RatePerSec: 10}})

	w := &telegramWriter{svc: s}
	_, _ = w.WriteLevel(zerolog.WarnLevel, []byte(`{"level":"warn","message":"skip"}`))
	_, _ = w.WriteLevel(zerolog.ErrorLevel, []byte(`{"level":"error","message":"keep"}`))

	if len(s.tgQueue) != 1 {
		t.Fatalf("queued=%d want 1", len(s.tgQueue))
	}
	if msg := <-s.tgQueue; msg != "[ERROR] keep" {
		t.Fatalf("msg=%q", msg)
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	t.Parallel()
	s := strings.Repeat("ё", 20)
	for n := 1; n < len(s); n++ {
		got := truncate(s, n)
		if !utf8.ValidString(got) {
			t.Fatalf("truncate(%d) split a rune: %q", n, got)
		}
		if len(got) > n {
			t.Fatalf("truncate(%d) len=%d", n, len(got))
		}
	}
	if got := truncate("plain", 10); got != "plain" {
		t.Fatalf("short input changed: %q", got)
	}
}
