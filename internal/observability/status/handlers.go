package status

import (
	"crypto/subtle"
	"net/http"
	hpprof "net/http/pprof"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"fxcalbot/internal/calendar"
	logx "fxcalbot/pkg/logx"
)

// EventView is the JSON shape of one calendar event.
type EventView struct {
	ID       string    `json:"id"`
	Time     time.Time `json:"time"`
	Currency string    `json:"currency"`
	Impact   string    `json:"impact"`
	Title    string    `json:"title"`
	Forecast string    `json:"forecast,omitempty"`
	Previous string    `json:"previous,omitempty"`
}

func viewOf(ev calendar.Event) EventView {
	return EventView{
		ID:       ev.ID,
		Time:     ev.OccursAt,
		Currency: ev.Currency,
		Impact:   ev.Impact.String(),
		Title:    ev.Title,
		Forecast: ev.Forecast,
		Previous: ev.Previous,
	}
}

// Handler builds the gin engine for cfg. It is what the listener serves.
func (s *Service) Handler() http.Handler {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()
	return s.handler(cfg)
}

func (s *Service) handler(cfg Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.CustomRecovery(func(c *gin.Context, err any) {
		s.log.Error("status handler panic", logx.Any("panic", err), logx.String("path", c.Request.URL.Path))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}))
	r.Use(requestLog(s.log))

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	api := r.Group("/", bearerAuth(cfg.Token))
	api.GET("/status", s.getStatus)
	api.GET("/upcoming", s.getUpcoming)
	if cfg.Pprof {
		api.GET("/debug/pprof/*name", pprofHandler)
	}
	return r
}

func (s *Service) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.rep.Report(c.Request.Context()))
}

func (s *Service) getUpcoming(c *gin.Context) {
	hours := calendar.DefaultCommandHours
	if raw := strings.TrimSpace(c.Query("hours")); raw != "" {
		h, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "hours must be an integer (1-72)"})
			return
		}
		hours = calendar.ClampHours(h)
	}
	events, err := s.rep.Upcoming(c.Request.Context(), hours)
	if err != nil {
		s.log.Warn("status upcoming failed", logx.Err(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "calendar feed unavailable"})
		return
	}
	views := make([]EventView, 0, len(events))
	for _, ev := range events {
		views = append(views, viewOf(ev))
	}
	c.JSON(http.StatusOK, gin.H{"hours": hours, "events": views})
}

// pprofHandler dispatches under one catch-all route; gin does not allow
// static siblings next to a wildcard.
func pprofHandler(c *gin.Context) {
	w, r := c.Writer, c.Request
	switch strings.TrimPrefix(c.Param("name"), "/") {
	case "cmdline":
		hpprof.Cmdline(w, r)
	case "profile":
		hpprof.Profile(w, r)
	case "symbol":
		hpprof.Symbol(w, r)
	case "trace":
		hpprof.Trace(w, r)
	default:
		hpprof.Index(w, r)
	}
}

// bearerAuth accepts "Authorization: Bearer <token>" or "?token=<token>".
// An empty token disables the check.
func bearerAuth(token string) gin.HandlerFunc {
	tok := strings.TrimSpace(token)
	return func(c *gin.Context) {
		if tok == "" {
			c.Next()
			return
		}
		got := c.Query("token")
		if got == "" {
			if ah := c.GetHeader("Authorization"); strings.HasPrefix(ah, "Bearer ") {
				got = strings.TrimSpace(strings.TrimPrefix(ah, "Bearer "))
			}
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(tok)) != 1 {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func requestLog(log logx.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("status request",
			logx.String("method", c.Request.Method),
			logx.String("path", c.Request.URL.Path),
			logx.Int("status", c.Writer.Status()),
			logx.Duration("dur", time.Since(start)),
		)
	}
}
