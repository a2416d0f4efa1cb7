package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/uptimer-dev/uptimer/internal/config"
	"github.com/uptimer-dev/uptimer/internal/httputil"
	"github.com/uptimer-dev/uptimer/internal/statuspage"
	"github.com/uptimer-dev/uptimer/internal/storage"
)

var _ http.Handler = (*Server)(nil)

// Server is the public read-only API. All write surfaces live elsewhere;
// every endpoint here is safe to expose unauthenticated behind the rate
// limiter.
type Server struct {
	cfg     *config.Config
	store   storage.Store
	agg     *statuspage.Aggregator
	cache   *statuspage.Cache
	logger  *slog.Logger
	limiter *httputil.RateLimiter
	handler http.Handler

	Now func() int64
}

func NewServer(cfg *config.Config, store storage.Store, agg *statuspage.Aggregator, cache *statuspage.Cache, logger *slog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		store:  store,
		agg:    agg,
		cache:  cache,
		logger: logger,
		Now:    func() int64 { return time.Now().Unix() },
	}

	s.limiter = httputil.NewRateLimiter(cfg.Server.RateLimitPerSec, cfg.Server.RateLimitBurst)

	r := chi.NewRouter()
	r.Use(recovery(logger))
	r.Use(requestID())
	r.Use(logging(logger))
	r.Use(s.limiter.Middleware(cfg.TrustedNets(), writeError))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)
		r.Get("/monitors/{id}/latency", s.handleMonitorLatency)
		r.Get("/monitors/{id}/uptime", s.handleMonitorUptime)
		r.Get("/monitors/{id}/outages", s.handleMonitorOutages)
		r.Get("/analytics/uptime", s.handleAnalyticsUptime)
		r.Get("/incidents", s.handleListIncidents)
		r.Get("/maintenance-windows", s.handleListMaintenance)
	})

	s.handler = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Close stops the rate limiter's background sweep.
func (s *Server) Close() {
	s.limiter.Stop()
}
