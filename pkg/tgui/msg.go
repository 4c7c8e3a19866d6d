package tgui

import (
	"context"
	"strings"

	kit "fxcalbot/internal/transport"
)

// Message is a rendered UI payload: MarkdownV2 text plus a plain fallback.
// It is intended as a single ergonomic "unit" that callers build once and
// send without repeating ParseMode/preview boilerplate.
type Message struct {
	Text MD

	// Plain is sent without parse mode when Telegram rejects Text.
	// Empty means Unescape(Text).
	Plain string

	DisablePreview bool
}

// Options returns the send options for the MarkdownV2 rendition.
func (m Message) Options() *kit.SendOptions {
	return &kit.SendOptions{ParseMode: kit.ParseModeMarkdownV2, DisablePreview: m.DisablePreview}
}

// PlainText returns the fallback rendition.
func (m Message) PlainText() string {
	if strings.TrimSpace(m.Plain) != "" {
		return m.Plain
	}
	return Unescape(m.Text)
}

// Parts splits m into messages that each fit one Telegram send. Parts of a
// split message carry no explicit Plain; each falls back to its own text.
func (m Message) Parts() []Message {
	chunks := Split(m.Text.String(), TextLimit)
	if len(chunks) <= 1 {
		return []Message{m}
	}
	out := make([]Message, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, Message{Text: MD(c), DisablePreview: m.DisablePreview})
	}
	return out
}

// Send sends m part by part. A part rejected with an entity parse error is
// resent once as plain text; parts already delivered are never resent.
// The returned ref points at the first part.
func (m Message) Send(ctx context.Context, s kit.Sender, to kit.ChatTarget) (kit.MessageRef, error) {
	var first kit.MessageRef
	for i, p := range m.Parts() {
		ref, err := p.sendPart(ctx, s, to)
		if err != nil {
			return first, err
		}
		if i == 0 {
			first = ref
		}
	}
	return first, nil
}

func (m Message) sendPart(ctx context.Context, s kit.Sender, to kit.ChatTarget) (kit.MessageRef, error) {
	ref, err := s.SendText(ctx, to, m.Text.String(), m.Options())
	if err == nil || !IsParseError(err) {
		return ref, err
	}
	return s.SendText(ctx, to, m.PlainText(), &kit.SendOptions{DisablePreview: m.DisablePreview})
}

// IsParseError reports whether err is Telegram's "can't parse entities" reply.
func IsParseError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "can't parse entities") || strings.Contains(msg, "can't find end of")
}

// Builder assembles a MarkdownV2 message line by line.
// Default: DisablePreview=true.
type Builder struct {
	disablePreview bool
	lines          []string
	plain          []string
}

// New creates a new builder with sensible defaults for Telegram.
func New() *Builder {
	return &Builder{disablePreview: true}
}

// DisablePreview sets DisableWebPagePreview.
func (b *Builder) DisablePreview(v bool) *Builder {
	b.disablePreview = v
	return b
}

// Title adds a bold title line. Emoji is optional.
func (b *Builder) Title(emoji, title string) *Builder {
	e := strings.TrimSpace(emoji)
	t := strings.TrimSpace(title)
	if t == "" {
		return b
	}
	if e != "" {
		b.add(e+" "+B(t).String(), e+" "+t)
	} else {
		b.add(B(t).String(), t)
	}
	return b
}

// Line adds a single escaped line.
func (b *Builder) Line(s string) *Builder {
	b.add(Esc(s).String(), s)
	return b
}

// Blank inserts an empty line.
func (b *Builder) Blank() *Builder { return b.Line("") }

// KV adds a "key: value" row with a bold key.
func (b *Builder) KV(key, value string) *Builder {
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	if key == "" {
		return b
	}
	b.add(Esc("• ").String()+B(key).String()+Esc(": "+value).String(), "• "+key+": "+value)
	return b
}

func (b *Builder) add(md, plain string) {
	b.lines = append(b.lines, md)
	b.plain = append(b.plain, plain)
}

// Build produces a ready-to-send Message.
func (b *Builder) Build() Message {
	return Message{
		Text:           MD(strings.Trim(strings.Join(b.lines, "\n"), "\n")),
		Plain:          strings.Trim(strings.Join(b.plain, "\n"), "\n"),
		DisablePreview: b.disablePreview,
	}
}
