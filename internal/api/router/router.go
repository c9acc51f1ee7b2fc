package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/clinic-booking-assistant/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/clinic-booking-assistant/internal/http/middleware"
	"github.com/wolfman30/clinic-booking-assistant/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Turns              *handlers.TurnHandler
	AdminAuthSecret    string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// Per-IP limit on the turn endpoints; zero disables it.
	TurnRateLimit float64
	TurnRateBurst int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	if cfg.Turns == nil {
		panic("router: turn handler cannot be nil")
	}
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	r.Get("/health", cfg.Turns.HealthCheck)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/v1", func(v1 chi.Router) {
		v1.Group(func(turns chi.Router) {
			turns.Use(httpmiddleware.RateLimit(cfg.TurnRateLimit, cfg.TurnRateBurst))
			turns.Post("/turns", cfg.Turns.PostTurn)
			turns.Post("/messages", cfg.Turns.PostMessage)
		})

		// Session inspection and reset are operator-only.
		v1.Route("/sessions/{id}", func(sessions chi.Router) {
			sessions.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			sessions.Get("/", cfg.Turns.GetSession)
			sessions.Post("/reset", cfg.Turns.ResetSession)
		})
	})

	return r
}
