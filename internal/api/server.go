// Package api exposes the engine over HTTP: an authenticated admin
// surface under /api for newsletters, settings, runs, and logs, plus
// unauthenticated digest views for recipients who click through.
package api

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/jsnider89/ai-news-digest/internal/config"
	"github.com/jsnider89/ai-news-digest/internal/domain"
	"github.com/jsnider89/ai-news-digest/internal/pkg/httputil"
	"github.com/jsnider89/ai-news-digest/internal/pkg/logger"
	"github.com/jsnider89/ai-news-digest/internal/scheduler"
	"github.com/jsnider89/ai-news-digest/internal/store"
)

// Store is the persistence surface the handlers read and write.
// *store.Store satisfies it; tests substitute an in-memory fake.
type Store interface {
	ListNewsletters(ctx context.Context, activeOnly bool) ([]domain.Newsletter, error)
	GetNewsletter(ctx context.Context, id string) (*domain.Newsletter, error)
	CreateNewsletter(ctx context.Context, n *domain.Newsletter) error
	UpdateNewsletter(ctx context.Context, n *domain.Newsletter) error
	DeleteNewsletter(ctx context.Context, id string) error
	ResetSeen(ctx context.Context, newsletterID string, hours int) (before, deleted, after int, err error)

	GetSettingOverrides(ctx context.Context) (map[string]string, error)
	PutSettingOverrides(ctx context.Context, values map[string]string) error
	EffectiveSettings(ctx context.Context, cfg *config.Config) (domain.Settings, error)

	ListRuns(ctx context.Context, newsletterID string, limit int) ([]store.RunWithName, error)
	GetRun(ctx context.Context, runID string) (*domain.Run, error)
	ListRunArticles(ctx context.Context, runID string) ([]store.RunArticleDetail, error)
	ListRunQuotes(ctx context.Context, runID string) ([]domain.MarketQuote, error)
	ListRunLogs(ctx context.Context, runID string) ([]domain.RunLogEntry, error)
	GetDigest(ctx context.Context, runID string) (*domain.Digest, error)
	LatestDigest(ctx context.Context) (*domain.Digest, error)
	CountRunsSince(ctx context.Context, since time.Time) (total, failed int, err error)
}

// Runner starts pipeline runs. The manual-run endpoint goes through the
// same path as a scheduled fire.
type Runner interface {
	Run(ctx context.Context, newsletterID string) (*domain.RunResult, error)
}

// Schedule is the scheduler surface the API needs: job inspection for
// the health view and a refresh hook after mutations.
type Schedule interface {
	RefreshJobs(ctx context.Context) error
	Jobs() []scheduler.Job
	Running() bool
}

// Authenticator guards the admin routes. Deployments that terminate
// auth at a fronting proxy run without one; DEV_MODE=true bypasses it.
type Authenticator interface {
	Authenticated(r *http.Request) bool
}

// Server is the HTTP server for the admin API and public digest views.
type Server struct {
	cfg      *config.Config
	store    Store
	runner   Runner
	schedule Schedule
	auth     Authenticator
	devMode  bool

	handler http.Handler
	server  *http.Server
}

// New creates a server with auth delegated to the deployment (no
// in-process check).
func New(cfg *config.Config, st Store, runner Runner, schedule Schedule) *Server {
	return NewWithAuth(cfg, st, runner, schedule, nil)
}

// NewWithAuth creates a server that gates /api behind the given
// authenticator.
func NewWithAuth(cfg *config.Config, st Store, runner Runner, schedule Schedule, auth Authenticator) *Server {
	s := &Server{
		cfg:      cfg,
		store:    st,
		runner:   runner,
		schedule: schedule,
		auth:     auth,
		devMode:  os.Getenv("DEV_MODE") == "true",
	}
	s.handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Use(cors.Handler(s.corsOptions()))

	r.Get("/health", s.handleHealth)

	// Public digest views. No secrets in rendered HTML, safe without auth.
	r.Get("/latest", s.handleLatestDigest)
	r.Get("/runs/{runID}/digest", s.handlePublicRunDigest)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireAuth)

		r.Route("/newsletters", func(r chi.Router) {
			r.Get("/", s.handleListNewsletters)
			r.Post("/", s.handleCreateNewsletter)
			r.Get("/{id}", s.handleGetNewsletter)
			r.Put("/{id}", s.handleUpdateNewsletter)
			r.Delete("/{id}", s.handleDeleteNewsletter)
			r.Post("/{id}/run", s.handleRunNewsletter)
			r.Post("/{id}/reset-seen", s.handleResetSeen)
		})

		r.Route("/settings", func(r chi.Router) {
			r.Get("/", s.handleGetSettings)
			r.Put("/", s.handlePutSettings)
		})

		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.handleListRuns)
			r.Get("/{runID}", s.handleGetRun)
			r.Get("/{runID}/digest", s.handleRunDigest)
			r.Get("/{runID}/logs", s.handleRunLogs)
		})

		r.Route("/logs", func(r chi.Router) {
			r.Get("/", s.handleListLogs)
			r.Delete("/", s.handleClearLogs)
		})

		r.Get("/meta/options", s.handleMetaOptions)
	})

	return r
}

// corsOptions derives the CORS policy from ALLOWED_ORIGIN. Without a
// configured origin the API answers any origin but refuses credentials.
func (s *Server) corsOptions() cors.Options {
	opts := cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}
	if origin := s.cfg.Server.AllowedOrigin; origin != "" {
		opts.AllowedOrigins = []string{origin}
		opts.AllowCredentials = true
	}
	return opts
}

// requireAuth gates admin routes. With no authenticator configured the
// check is the deployment's problem (reverse proxy, network policy).
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.auth != nil && !s.devMode && !s.auth.Authenticated(r) {
			httputil.Error(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger records request outcomes at debug level so the live log
// view stays readable at the default level.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).Round(time.Millisecond).String())
	})
}

// ListenAndServe starts the HTTP server on addr and blocks until it
// stops.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.handler,
		// The write timeout must outlive a manual run, which holds the
		// connection until the run deadline.
		ReadTimeout:       time.Minute,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the routed handler for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// refreshSchedule reloads scheduler jobs after a mutation. A refresh
// failure is logged, not surfaced: the write already committed.
func (s *Server) refreshSchedule(ctx context.Context) {
	if s.schedule == nil {
		return
	}
	if err := s.schedule.RefreshJobs(ctx); err != nil {
		logger.Warn("schedule refresh after mutation failed", "error", err.Error())
	}
}
