package httpapi

import (
	"context"
	_ "embed"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	apimw "github.com/hamed0406/certwatch/internal/httpapi/middleware"
	"github.com/hamed0406/certwatch/internal/notify"
	"github.com/hamed0406/certwatch/internal/repo"
	"github.com/hamed0406/certwatch/internal/state"
)

//go:embed web/index.html
var dashboard []byte

// Notifications is the alerting side the API exposes.
type Notifications interface {
	Configured() bool
	Threshold() int
	History() repo.History
	SendTestNotification(ctx context.Context, text string) (notify.Delivery, error)
	SendTestAlert(ctx context.Context) ([]notify.Alert, notify.Delivery, error)
}

type Options struct {
	CheckInterval time.Duration
	TestKey       string
	TestCooldown  time.Duration
	// Sites reports how many targets are configured; used by the test
	// notification text.
	Sites func() int
}

type Server struct {
	Logger  *zap.Logger
	State   *state.Store
	Alerts  Notifications
	Options Options

	started time.Time
	now     func() time.Time
}

func NewServer(l *zap.Logger, st *state.Store, alerts Notifications, opts Options) *Server {
	if l == nil {
		l = zap.NewNop()
	}
	return &Server{
		Logger:  l,
		State:   st,
		Alerts:  alerts,
		Options: opts,
		started: time.Now(),
		now:     time.Now,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(apimw.AccessLog(s.Logger))
	r.Use(cors.AllowAll().Handler)

	r.Get("/", s.handleDashboard)
	r.Get("/index.html", s.handleDashboard)
	r.Get("/api", s.handleSnapshot)
	r.Get("/api/alerts", s.handleAlertHistory)
	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(apimw.RequireTestKey(s.Options.TestKey))
		r.Use(apimw.Cooldown(s.Options.TestCooldown))
		r.Get("/test-webhook", s.handleTestWebhook)
		r.Get("/test-alert", s.handleTestAlert)
	})

	return r
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(dashboard)
}
