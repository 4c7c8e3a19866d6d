package tgui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	kit "fxcalbot/internal/transport"
)

func TestEscEscapesEveryReservedCharacter(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in, want string
	}{
		{"CPI m/m", "CPI m/m"},
		{"GDP q/q (Prel.)", `GDP q/q \(Prel\.\)`},
		{"-0.3%", `\-0\.3%`},
		{"a_b*c[d]e~f`g>h#i+j=k|l{m}n!o", "a\\_b\\*c\\[d\\]e\\~f\\`g\\>h\\#i\\+j\\=k\\|l\\{m\\}n\\!o"},
		{`back\slash`, `back\\slash`},
	}
	for _, tc := range cases {
		if got := Esc(tc.in).String(); got != tc.want {
			t.Fatalf("Esc(%q)=%q want %q", tc.in, got, tc.want)
		}
	}
}

func TestUnescapeRoundTripsEscapedText(t *testing.T) {
	t.Parallel()
	in := "Fed Chair Powell Speaks (F: 1.2%, P: -0.3%)"
	if got := Unescape(Esc(in)); got != in {
		t.Fatalf("got %q", got)
	}
	if got := Unescape(Concat(B("Time:"), Esc(" Jan 08"))); got != "Time: Jan 08" {
		t.Fatalf("got %q", got)
	}
}

func TestJoinSkipsBlankParts(t *testing.T) {
	t.Parallel()
	got := Join(" - ", B("a"), "", Esc("b.c"))
	if got != `*a* \- b\.c` {
		t.Fatalf("got %q", got)
	}
}

func TestSplitPrefersNewlines(t *testing.T) {
	t.Parallel()
	line := strings.Repeat("x", 30)
	text := strings.Repeat(line+"\n", 10)
	chunks := Split(text, 100)
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	for _, c := range chunks {
		if utf8.RuneCountInString(c) > 100 {
			t.Fatalf("chunk too long: %d", utf8.RuneCountInString(c))
		}
		if strings.HasSuffix(c, "\n") || strings.HasPrefix(c, "\n") {
			t.Fatalf("chunk keeps boundary newline: %q", c)
		}
	}
	if got := strings.Join(chunks, "\n"); got != strings.TrimRight(text, "\n") {
		t.Fatalf("content lost")
	}
}

func TestSplitKeepsEscapePairs(t *testing.T) {
	t.Parallel()
	text := strings.Repeat("a", 9) + `\.` + strings.Repeat("b", 9)
	chunks := Split(text, 10)
	if chunks[0] != strings.Repeat("a", 9) {
		t.Fatalf("first chunk=%q", chunks[0])
	}
	if !strings.HasPrefix(chunks[1], `\.`) {
		t.Fatalf("second chunk=%q", chunks[1])
	}
}

type fakeSender struct {
	calls []kit.SendOptions
	texts []string
	fail  error
}

func (f *fakeSender) SendText(_ context.Context, _ kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.calls = append(f.calls, *opt)
	f.texts = append(f.texts, text)
	if opt.ParseMode != "" && f.fail != nil {
		return kit.MessageRef{}, f.fail
	}
	return kit.MessageRef{MessageID: len(f.calls)}, nil
}

func TestMessageSendFallsBackToPlainOnParseError(t *testing.T) {
	t.Parallel()
	fs := &fakeSender{fail: errors.New("telegram: Bad Request: can't parse entities: character '.' is reserved (400)")}
	m := Message{Text: MD("broken."), Plain: "broken."}
	ref, err := m.Send(context.Background(), fs, kit.ChatTarget{ChatID: 1})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if ref.MessageID != 2 || len(fs.calls) != 2 {
		t.Fatalf("calls=%d ref=%+v", len(fs.calls), ref)
	}
	if fs.calls[1].ParseMode != "" || fs.texts[1] != "broken." {
		t.Fatalf("fallback=%+v %q", fs.calls[1], fs.texts[1])
	}
}

func TestMessageSendDoesNotRetryOtherErrors(t *testing.T) {
	t.Parallel()
	fs := &fakeSender{fail: errors.New("telegram: Forbidden: bot was blocked by the user (403)")}
	_, err := Message{Text: Esc("hi")}.Send(context.Background(), fs, kit.ChatTarget{ChatID: 1})
	if err == nil || len(fs.calls) != 1 {
		t.Fatalf("err=%v calls=%d", err, len(fs.calls))
	}
}

// partSender rejects the MarkdownV2 rendition of the listed call numbers.
type partSender struct {
	calls int
	fail  map[int]bool
	sent  []string
	modes []string
}

func (f *partSender) SendText(_ context.Context, _ kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.calls++
	if f.fail[f.calls] {
		return kit.MessageRef{}, errors.New("telegram: Bad Request: can't parse entities (400)")
	}
	f.sent = append(f.sent, text)
	f.modes = append(f.modes, opt.ParseMode)
	return kit.MessageRef{MessageID: f.calls}, nil
}

func TestMessageSendFallsBackPerPart(t *testing.T) {
	t.Parallel()
	b := New()
	for range 150 {
		b.Line(strings.Repeat("y", 60) + ".")
	}
	m := b.Build()
	parts := m.Parts()
	if len(parts) < 2 {
		t.Fatalf("parts=%d", len(parts))
	}
	for _, p := range parts {
		if utf8.RuneCountInString(p.Text.String()) > TextLimit {
			t.Fatalf("part exceeds limit")
		}
	}

	fs := &partSender{fail: map[int]bool{2: true}}
	ref, err := m.Send(context.Background(), fs, kit.ChatTarget{ChatID: 1})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if ref.MessageID != 1 || len(fs.sent) != len(parts) {
		t.Fatalf("ref=%+v sent=%d parts=%d", ref, len(fs.sent), len(parts))
	}
	if fs.sent[0] != parts[0].Text.String() || fs.modes[0] != kit.ParseModeMarkdownV2 {
		t.Fatalf("first part resent or altered")
	}
	if fs.sent[1] != Unescape(parts[1].Text) || fs.modes[1] != "" {
		t.Fatalf("second part fallback=%q mode=%q", fs.sent[1], fs.modes[1])
	}
}

func TestBuilder(t *testing.T) {
	t.Parallel()
	m := New().Title("📊", "Status").Blank().KV("Keys", "12").Line("done.").Build()
	want := "📊 *Status*\n\n• *Keys*: 12\ndone\\."
	if m.Text.String() != want {
		t.Fatalf("text=%q want %q", m.Text, want)
	}
	if m.Plain != "📊 Status\n\n• Keys: 12\ndone." {
		t.Fatalf("plain=%q", m.Plain)
	}
	if !m.DisablePreview {
		t.Fatalf("preview should be disabled by default")
	}
}
