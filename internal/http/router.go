package http

import (
	"net/http"
	"time"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"

	"rentwheels/internal/apierr"
	"rentwheels/internal/bookings"
	"rentwheels/internal/cars"
	"rentwheels/internal/config"
	"rentwheels/internal/exporter"
	"rentwheels/internal/identity"
	"rentwheels/internal/importer"
	"rentwheels/internal/metrics"
	"rentwheels/internal/users"
)

// Services bundles the domain services served by the router.
type Services struct {
	Identity *identity.Service
	Users    *users.Service
	Cars     *cars.Service
	Bookings *bookings.Service

	// Limiter throttles authenticated requests per caller. Nil disables it.
	Limiter keyedLimiter
	// Metrics records request and domain counters. Nil records nothing.
	Metrics metrics.Recorder
	// Gatherer backs GET /metrics. Nil hides the endpoint.
	Gatherer prometheus.Gatherer
}

// NewRouter wires application routes and middleware using chi.
func NewRouter(cfg config.Config, svc Services, logger *slog.Logger) http.Handler {
	recorder := svc.Metrics
	if recorder == nil {
		recorder = metrics.Nop{}
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(newSlogMiddleware(logger))
	r.Use(newMetricsMiddleware(recorder))
	r.Use(newSecurityHeadersMiddleware(cfg.Environment))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":      "ok",
			"environment": cfg.Environment,
		})
	})
	if svc.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(svc.Gatherer))
	}

	identityHandler := NewIdentityHandler(svc.Identity, recorder, logger)
	userHandler := NewUserHandler(svc.Users, logger)
	carHandler := NewCarHandler(svc.Cars, importer.NewCSVImporter(svc.Cars), logger)
	bookingHandler := NewBookingHandler(svc.Bookings, exporter.NewCSVExporter(), recorder, logger)

	authenticate := newAuthMiddleware(svc.Identity, svc.Users, logger)

	r.Route("/identity", func(r chi.Router) {
		r.Post("/accounts", identityHandler.SignUp)
		r.Post("/sessions", identityHandler.SignIn)
		r.Post("/federated", identityHandler.Federated)
		r.Delete("/sessions/current", identityHandler.SignOut)

		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Get("/me", identityHandler.Me)
			r.Patch("/me", identityHandler.UpdateMe)
		})
	})

	r.Get("/cars", carHandler.List)
	r.Get("/car/{id}", carHandler.Get)

	r.Group(func(r chi.Router) {
		r.Use(authenticate)
		if svc.Limiter != nil {
			r.Use(newRateLimitMiddleware(svc.Limiter, recorder, logger))
		} else {
			logger.Warn("API rate limiting disabled")
		}

		r.Post("/users", userHandler.Upsert)
		r.Get("/user/{email}", userHandler.Get)

		r.Post("/cars", carHandler.Create)
		r.Post("/cars/import", carHandler.Import)
		r.Get("/my-cars", carHandler.ListMine)
		r.Put("/car/{id}", carHandler.Update)
		r.Delete("/car/{id}", carHandler.Delete)

		r.Post("/bookings", bookingHandler.Create)
		r.Get("/my-bookings", bookingHandler.ListMine)
		r.Delete("/bookings/{id}", bookingHandler.Cancel)

		r.Group(func(r chi.Router) {
			r.Use(requireAdmin)
			r.Get("/users", userHandler.List)
			r.Patch("/user/{email}/role", userHandler.UpdateRole)
			r.Get("/bookings", bookingHandler.ListAll)
			r.Get("/bookings/export", bookingHandler.Export)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, apierr.CodeNotFound, "route not found")
	})

	return r
}
