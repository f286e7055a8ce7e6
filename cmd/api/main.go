package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"rentwheels/internal/bookings"
	"rentwheels/internal/cars"
	"rentwheels/internal/config"
	transporthttp "rentwheels/internal/http"
	"rentwheels/internal/identity"
	"rentwheels/internal/metrics"
	"rentwheels/internal/platform/cache"
	"rentwheels/internal/platform/database"
	"rentwheels/internal/platform/logging"
	"rentwheels/internal/platform/migrate"
	"rentwheels/internal/platform/ratelimit"
	"rentwheels/internal/users"
)

const sessionCleanupInterval = 30 * time.Minute

type repositories struct {
	identity identity.Repository
	users    users.Repository
	cars     cars.Repository
	bookings bookings.Repository
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.New(cfg.LogLevel)

	repos, cleanup, err := buildRepositories(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	if cleanup != nil {
		defer cleanup()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewCollector(registry)

	carOpts := []cars.Option{cars.WithLogger(logger)}
	if cfg.RedisAddr != "" {
		redisCache, err := cache.Open(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, Prefix: "rentwheels:"})
		if err != nil {
			logger.Warn("redis unavailable; serving cars without cache", "addr", cfg.RedisAddr, "error", err)
		} else {
			defer redisCache.Close()
			carOpts = append(carOpts, cars.WithCache(redisCache, cfg.CarCacheTTL))
			logger.Info("car cache enabled", "addr", cfg.RedisAddr, "ttl", cfg.CarCacheTTL.String())
		}
	}

	signInLimiter := ratelimit.New(ratelimit.Config{Rate: rate.Every(12 * time.Second), Burst: 5})
	defer signInLimiter.Stop()
	apiLimiter := ratelimit.New(ratelimit.Config{Rate: rate.Limit(cfg.RateLimitRPS), Burst: cfg.RateLimitBurst})
	defer apiLimiter.Stop()

	identityOpts := []identity.Option{identity.WithLogger(logger), identity.WithSignInLimiter(signInLimiter)}
	if cfg.GoogleSignInEnabled() {
		verifier, err := identity.NewGoogleVerifier(ctx, cfg.GoogleClientID, cfg.GoogleAllowedDomains, cfg.GoogleAllowedEmails)
		if err != nil {
			logger.Error("failed to initialize Google sign-in", "error", err)
			os.Exit(1)
		}
		if !verifier.HasAllowlist() {
			logger.Warn("Google sign-in allowlist is empty; any verified Google account may sign in")
		}
		identityOpts = append(identityOpts, identity.WithGoogle(verifier))
	}

	identitySvc := identity.NewService(repos.identity, cfg.TokenSecret, cfg.SessionTTL, identityOpts...)
	userSvc := users.NewService(repos.users, cfg.AdminEmails)
	carOpts = append(carOpts, cars.WithBookingLookup(repos.bookings))
	carSvc := cars.NewService(repos.cars, carOpts...)
	bookingSvc := bookings.NewService(repos.bookings, carSvc, logger)

	go runSessionCleanup(ctx, identitySvc, logger)

	router := transporthttp.NewRouter(cfg, transporthttp.Services{
		Identity: identitySvc,
		Users:    userSvc,
		Cars:     carSvc,
		Bookings: bookingSvc,
		Limiter:  apiLimiter,
		Metrics:  recorder,
		Gatherer: registry,
	}, logger)

	srv := &http.Server{
		Addr:              cfg.HTTPAddress(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    http.DefaultMaxHeaderBytes,
	}

	go func() {
		logger.Info("rentwheels API listening", "addr", srv.Addr, "store", cfg.DataStore, "google", cfg.GoogleSignInEnabled())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

func runSessionCleanup(ctx context.Context, svc *identity.Service, logger *slog.Logger) {
	ticker := time.NewTicker(sessionCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := svc.CleanupExpiredSessions(ctx)
			if err != nil {
				logger.Error("session cleanup failed", "error", err)
				continue
			}
			if removed > 0 {
				logger.Info("expired sessions removed", "count", removed)
			}
		}
	}
}

func buildRepositories(ctx context.Context, cfg config.Config, logger *slog.Logger) (repositories, func(), error) {
	if cfg.UseInMemoryStore() {
		logger.Info("using in-memory repository")
		return repositories{
			identity: identity.NewInMemoryRepository(),
			users:    users.NewInMemoryRepository(),
			cars:     cars.NewInMemoryRepository(seedDemoCars()),
			bookings: bookings.NewInMemoryRepository(),
		}, nil, nil
	}

	db, err := database.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return repositories{}, nil, err
	}

	cleanup := func() {
		_ = db.Close()
	}

	if err := migrate.Apply(ctx, db, logger); err != nil {
		cleanup()
		return repositories{}, nil, err
	}

	logger.Info("connected to postgres")
	return repositories{
		identity: identity.NewPostgresRepository(db),
		users:    users.NewPostgresRepository(db),
		cars:     cars.NewPostgresRepository(db),
		bookings: bookings.NewPostgresRepository(db),
	}, cleanup, nil
}
