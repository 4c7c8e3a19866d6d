package router

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	kit "fxcalbot/internal/transport"
	logx "fxcalbot/pkg/logx"
	"fxcalbot/pkg/tgui"
)

type sent struct {
	to   kit.ChatTarget
	text string
}

type fakeSender struct {
	mu   sync.Mutex
	msgs []sent
	menu []kit.BotCommand
}

func (f *fakeSender) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, sent{to: to, text: text})
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.msgs)}, nil
}

func (f *fakeSender) UpdateMenuCommands(_ context.Context, cmds []kit.BotCommand) error {
	f.menu = cmds
	return nil
}

func (f *fakeSender) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.msgs))
	for i, m := range f.msgs {
		out[i] = m.text
	}
	return out
}

func message(from int64, text string) kit.Update {
	return kit.Update{Message: &kit.Message{ID: 1, ChatID: from, FromID: from, Text: text, IsPrivate: true}}
}

func TestParseCommand(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		name string
		args []string
		ok   bool
	}{
		{"/upcoming 12", "upcoming", []string{"12"}, true},
		{"  /Upcoming@fx_bot   6  ", "upcoming", []string{"6"}, true},
		{"/start", "start", []string{}, true},
		{"hello", "", nil, false},
		{"/", "", nil, false},
		{"/@bot", "", nil, false},
	}
	for _, tc := range cases {
		name, args, ok := ParseCommand(tc.in)
		if ok != tc.ok || name != tc.name || (ok && !reflect.DeepEqual(args, tc.args)) {
			t.Fatalf("ParseCommand(%q)=(%q,%v,%v)", tc.in, name, args, ok)
		}
	}
}

func TestPrepareRoutesAndChecksAccess(t *testing.T) {
	t.Parallel()
	fs := &fakeSender{}
	r := New(logx.Nop(), fs, Options{AdminID: 42, Denied: tgui.Message{Text: tgui.Esc("no.")}})

	var gotArgs []string
	r.SetCommands([]Command{
		{Name: "start", Handle: func(ctx context.Context, req *Request) error {
			return req.Reply(ctx, tgui.Message{Text: tgui.Esc("hi")})
		}},
		{Name: "upcoming", Access: AccessAdminOnly, Handle: func(ctx context.Context, req *Request) error {
			gotArgs = req.Args
			if req.ReqID == "" {
				t.Errorf("missing request id")
			}
			return nil
		}},
	})
	ctx := context.Background()

	run, ok := r.prepare(ctx, message(7, "/start"))
	if !ok {
		t.Fatalf("start not routed")
	}
	run()

	run, ok = r.prepare(ctx, message(7, "/upcoming 5"))
	if !ok {
		t.Fatalf("denied command should still produce a reply job")
	}
	run()
	if gotArgs != nil {
		t.Fatalf("admin handler ran for a non-admin")
	}

	run, _ = r.prepare(ctx, message(42, "/upcoming 5"))
	run()
	if !reflect.DeepEqual(gotArgs, []string{"5"}) {
		t.Fatalf("args=%v", gotArgs)
	}

	if _, ok := r.prepare(ctx, message(7, "/nope")); ok {
		t.Fatalf("unknown command routed")
	}
	if _, ok := r.prepare(ctx, message(7, "plain text")); ok {
		t.Fatalf("plain text routed")
	}

	if got := fs.texts(); !reflect.DeepEqual(got, []string{"hi", `no\.`}) {
		t.Fatalf("replies=%q", got)
	}
	if r.Stats().Handled != 2 {
		t.Fatalf("handled=%d", r.Stats().Handled)
	}
}

func TestHandlerPanicIsRecovered(t *testing.T) {
	t.Parallel()
	r := New(logx.Nop(), &fakeSender{}, Options{})
	r.SetCommands([]Command{{Name: "boom", Handle: func(context.Context, *Request) error { panic("x") }}})
	run, ok := r.prepare(context.Background(), message(1, "/boom"))
	if !ok {
		t.Fatalf("not routed")
	}
	run()
}

func TestTimeoutMiddleware(t *testing.T) {
	t.Parallel()
	h := Chain(func(ctx context.Context, _ *Request) error {
		<-ctx.Done()
		return ctx.Err()
	}, MWTimeout(10*time.Millisecond))
	if err := h(context.Background(), &Request{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err=%v", err)
	}
}

func TestDispatchLoopRunsCommands(t *testing.T) {
	t.Parallel()
	fs := &fakeSender{}
	r := New(logx.Nop(), fs, Options{Workers: 2})
	done := make(chan struct{})
	r.SetCommands([]Command{{Name: "ping", Handle: func(ctx context.Context, req *Request) error {
		defer close(done)
		return req.Reply(ctx, tgui.Message{Text: tgui.Esc("pong")})
	}}})

	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan kit.Update, 1)
	loopDone := make(chan error, 1)
	go func() { loopDone <- r.DispatchLoop(ctx, updates) }()

	updates <- message(1, "/ping")
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("command not handled")
	}
	cancel()
	if err := <-loopDone; err != nil {
		t.Fatalf("DispatchLoop: %v", err)
	}
}

func TestMenuCommands(t *testing.T) {
	t.Parallel()
	fs := &fakeSender{}
	r := New(logx.Nop(), fs, Options{})
	noop := func(context.Context, *Request) error { return nil }
	r.SetCommands([]Command{
		{Name: "start", Description: "Start the bot", Handle: noop},
		{Name: "help", Description: "Show all commands", Handle: noop},
		{Name: "upcoming", Description: "Upcoming events", Access: AccessAdminOnly, Handle: noop},
		{Name: "debug", Hidden: true, Handle: noop},
	})
	if err := r.UpdateMenu(context.Background()); err != nil {
		t.Fatalf("UpdateMenu: %v", err)
	}
	want := []kit.BotCommand{
		{Command: "start", Description: "Start the bot"},
		{Command: "help", Description: "Show all commands"},
		{Command: "upcoming", Description: "🔒 Upcoming events"},
	}
	if !reflect.DeepEqual(fs.menu, want) {
		t.Fatalf("menu=%+v", fs.menu)
	}
}

func TestSanitizeCommand(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"/Upcoming":   "upcoming",
		"weekly-post": "weekly_post",
		"1hour":       "cmd_1hour",
		"a  b":        "a_b",
		"!!":          "",
	}
	for in, want := range cases {
		if got := sanitizeCommand(in); got != want {
			t.Fatalf("sanitizeCommand(%q)=%q want %q", in, got, want)
		}
	}
}
