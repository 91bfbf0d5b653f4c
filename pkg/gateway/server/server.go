package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/vango-go/vai-interview/pkg/core/live"
	"github.com/vango-go/vai-interview/pkg/core/report"
	"github.com/vango-go/vai-interview/pkg/gateway/config"
	"github.com/vango-go/vai-interview/pkg/gateway/handlers"
	"github.com/vango-go/vai-interview/pkg/gateway/lifecycle"
	"github.com/vango-go/vai-interview/pkg/gateway/live/session"
	"github.com/vango-go/vai-interview/pkg/gateway/live/sessions"
	"github.com/vango-go/vai-interview/pkg/gateway/mw"
	"github.com/vango-go/vai-interview/pkg/gateway/ratelimit"
	"github.com/vango-go/vai-interview/pkg/store"
)

// Dependencies are the external collaborators of the gateway.
type Dependencies struct {
	Dialer live.Dialer
	Scorer report.Scorer
	Store  store.Store
}

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	deps      Dependencies
	limiter   *ratelimit.Limiter
	lifecycle *lifecycle.Lifecycle
	sessions  *sessions.Tracker
}

func New(cfg config.Config, logger *slog.Logger, deps Dependencies) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Store == nil {
		deps.Store = store.NewMemory()
	}

	s := &Server{
		cfg:    cfg,
		logger: logger,
		mux:    http.NewServeMux(),
		deps:   deps,
		limiter: ratelimit.New(ratelimit.Config{
			RPS:                       cfg.LimitRPS,
			Burst:                     cfg.LimitBurst,
			MaxConcurrentRequests:     cfg.LimitMaxConcurrentRequests,
			MaxInterviews:             cfg.MaxSessions,
			MaxInterviewsPerPrincipal: cfg.MaxInterviewsPerClient,
		}),
		lifecycle: &lifecycle.Lifecycle{},
		sessions:  sessions.NewTracker(),
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{
		Config:           s.cfg,
		Store:            s.deps.Store,
		Lifecycle:        s.lifecycle,
		ActiveInterviews: s.sessions.Count,
	})

	s.mux.Handle("/v1/interview", handlers.InterviewHandler{
		Config:    s.cfg,
		Logger:    s.logger,
		Limiter:   s.limiter,
		Lifecycle: s.lifecycle,
		Sessions:  s.sessions,
		Dialer:    s.deps.Dialer,
		Scorer:    s.deps.Scorer,
		Reports:   s.deps.Store,
	})

	reports := handlers.ReportsHandler{Reports: s.deps.Store}
	s.mux.Handle("/v1/reports", reports)
	s.mux.Handle("/v1/reports/", reports)

	s.mux.Handle("/", handlers.NotFoundHandler{})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.RateLimit(s.cfg, s.limiter, h)
	h = mw.Auth(s.cfg, h)
	h = mw.APIVersion(h)
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// SetDraining makes new interviews and readiness probes fail.
func (s *Server) SetDraining() {
	if s.lifecycle.BeginDrain(time.Now()) {
		s.logger.Info("draining", "active_interviews", s.sessions.Count())
	}
}

// ActiveInterviews reports interviews currently registered.
func (s *Server) ActiveInterviews() int {
	return s.sessions.Count()
}

// DrainInterviews ends running interviews for shutdown. Candidates get a
// notice, every interview is terminated so a disqualified report is still
// written, and connections still open once ctx expires are cut.
func (s *Server) DrainInterviews(ctx context.Context) {
	s.SetDraining()
	if n := s.sessions.NotifyAll("server_shutdown", "The interview server is shutting down."); n > 0 {
		s.logger.Info("notified interviews of shutdown", "count", n)
	}
	terminated := s.sessions.TerminateAll(session.ReasonServerShutdown)
	if s.sessions.Wait(ctx) {
		s.logger.Info("interviews drained", "terminated", terminated)
		return
	}
	canceled := s.sessions.CancelAll()
	s.logger.Warn("interview drain timed out", "terminated", terminated, "canceled", canceled)

	// Canceled handlers deregister asynchronously.
	waitCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = s.sessions.Wait(waitCtx)
}
