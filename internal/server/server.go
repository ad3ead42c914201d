package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dupipcom/morpheus-sub002/internal/authz"
	"github.com/dupipcom/morpheus-sub002/internal/middleware"
	"github.com/dupipcom/morpheus-sub002/internal/service"
	"github.com/dupipcom/morpheus-sub002/internal/store"
	ws "github.com/dupipcom/morpheus-sub002/internal/websocket"
)

// Config tunes the HTTP surface.
type Config struct {
	OriginPatterns []string
	RateLimit      int
	RateWindow     time.Duration
}

// Server owns the engine services and the change feed they publish to.
// Tasks, Jobs and Ledger are the entry points for the host that embeds the
// daemon; every change they commit is pushed to the /ws clients of the list.
type Server struct {
	store       *store.Store
	hub         *ws.Hub
	tasks       *service.TaskService
	jobs        *service.JobService
	ledger      *service.LedgerService
	rateLimiter *middleware.RateLimiter
	cfg         Config
	logger      *slog.Logger
}

func New(s *store.Store, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 30
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Minute
	}
	hub := ws.NewHub(logger)
	ledger := service.NewLedgerService(s, hub, logger)

	return &Server{
		store:       s,
		hub:         hub,
		tasks:       service.NewTaskService(s, hub, logger),
		jobs:        service.NewJobService(s, ledger, hub, logger),
		ledger:      ledger,
		rateLimiter: middleware.NewRateLimiter(),
		cfg:         cfg,
		logger:      logger,
	}
}

func (s *Server) Tasks() *service.TaskService {
	return s.tasks
}

func (s *Server) Jobs() *service.JobService {
	return s.jobs
}

func (s *Server) Ledger() *service.LedgerService {
	return s.ledger
}

func (s *Server) Hub() *ws.Hub {
	return s.hub
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.healthHandler)

	feed := ws.HandleWebSocket(s.hub, authz.NewResolver(s.store), s.cfg.OriginPatterns)
	limited := middleware.RateLimit(s.rateLimiter, middleware.ByCaller, s.cfg.RateLimit, s.cfg.RateWindow)(feed)
	mux.Handle("GET /ws", middleware.Identity(s.store)(limited))

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"clients": s.hub.ClientCount(),
	})
}
