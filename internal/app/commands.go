package app

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"fxcalbot/internal/calendar"
	"fxcalbot/internal/render"
	"fxcalbot/internal/transport/telegram/router"
	logx "fxcalbot/pkg/logx"
	"fxcalbot/pkg/tgui"
)

// upcomingSource is the calendar view the commands read. *calendar.Source implements it.
type upcomingSource interface {
	Upcoming(ctx context.Context, now time.Time, horizon time.Duration) ([]calendar.Event, error)
	Location() *time.Location
}

// handlers implements the bot's slash commands.
type handlers struct {
	source     upcomingSource
	thresholds func() []int
	weekly     func() string
	status     func(ctx context.Context) tgui.Message
	now        func() time.Time
}

func (h *handlers) commands() []router.Command {
	return []router.Command{
		{Name: "start", Description: "Welcome message", Handle: h.start, Hidden: true},
		{Name: "help", Description: "Show all commands", Handle: h.help},
		{Name: "upcoming", Description: "Upcoming events (1-72 hours)", Access: router.AccessAdminOnly, Handle: h.upcoming},
		{Name: "status", Description: "Bot status", Access: router.AccessAdminOnly, Handle: h.statusCmd},
	}
}

func (h *handlers) tzLabel() string {
	return render.TZLabel(h.source.Location(), h.now())
}

func (h *handlers) start(ctx context.Context, req *router.Request) error {
	return req.Reply(ctx, render.Welcome(h.tzLabel()))
}

func (h *handlers) help(ctx context.Context, req *router.Request) error {
	return req.Reply(ctx, render.Help(render.HelpOptions{
		Thresholds: h.thresholds(),
		TZ:         h.tzLabel(),
		Status:     true,
		Weekly:     h.weekly(),
	}))
}

func (h *handlers) upcoming(ctx context.Context, req *router.Request) error {
	hours := calendar.DefaultCommandHours
	if len(req.Args) > 0 {
		n, err := strconv.Atoi(req.Args[0])
		if err != nil {
			return req.Reply(ctx, render.BadHours)
		}
		hours = calendar.ClampHours(n)
	}

	events, err := h.source.Upcoming(ctx, h.now(), time.Duration(hours)*time.Hour)
	if err != nil {
		req.Logger.Warn("upcoming fetch failed", logx.Err(err))
		return req.Reply(ctx, render.FetchFailed)
	}
	if len(events) == 0 {
		return req.Reply(ctx, render.NoUpcoming)
	}
	return req.Reply(ctx, render.Upcoming(events, hours, h.source.Location()))
}

func (h *handlers) statusCmd(ctx context.Context, req *router.Request) error {
	if h.status == nil {
		return fmt.Errorf("status not available")
	}
	return req.Reply(ctx, h.status(ctx))
}
