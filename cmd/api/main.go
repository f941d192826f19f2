package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/lifedrop-api/internal/app"
	"github.com/jwalitptl/lifedrop-api/internal/config"
	"github.com/jwalitptl/lifedrop-api/internal/handler/auth"
	"github.com/jwalitptl/lifedrop-api/internal/handler/bloodrequest"
	"github.com/jwalitptl/lifedrop-api/internal/handler/donation"
	"github.com/jwalitptl/lifedrop-api/internal/handler/health"
	"github.com/jwalitptl/lifedrop-api/internal/handler/hospital"
	"github.com/jwalitptl/lifedrop-api/internal/handler/notification"
	realtimeHandler "github.com/jwalitptl/lifedrop-api/internal/handler/realtime"
	"github.com/jwalitptl/lifedrop-api/internal/handler/user"
	"github.com/jwalitptl/lifedrop-api/internal/middleware"
	"github.com/jwalitptl/lifedrop-api/internal/realtime"
	"github.com/jwalitptl/lifedrop-api/internal/router"
	"github.com/jwalitptl/lifedrop-api/pkg/logger"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format).With("service", "lifedrop-api")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal(err, "api stopped")
	}
	log.Info("api stopped")
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	a, err := app.Build(ctx, cfg, log, app.Options{AsyncDispatch: true})
	if err != nil {
		return err
	}
	defer a.Close()

	if err := middleware.RegisterValidators(); err != nil {
		return err
	}

	registry := realtime.NewRegistry(log.With("component", "realtime_registry"), a.Metrics)
	relay := realtime.NewRelay(a.Broker, cfg.Redis.Channel, registry, log)

	authMiddleware := middleware.NewAuthMiddleware(a.Auth)
	radius := cfg.Notification.SearchRadiusKm

	r := router.NewRouter(router.Config{
		Mode:           cfg.Server.Mode,
		RequestTimeout: cfg.Server.RequestTimeout,
		RateLimit: middleware.RateLimiterConfig{
			Rate:  rate.Limit(cfg.RateLimit.RPS),
			Burst: cfg.RateLimit.Burst,
			TTL:   cfg.RateLimit.TTL,
		},
		CORS:     middleware.DefaultCORSConfig(cfg.CORS.AllowOrigins...),
		Security: middleware.DefaultSecurityConfig(),
	}, authMiddleware, log, a.Metrics)

	r.Setup(
		[]router.RootHandler{
			health.NewHandler(a.Checks(), a.Registry),
			realtimeHandler.NewHandler(registry, a.Auth, a.Notifications, cfg.CORS.AllowOrigins, log),
		},
		auth.NewHandler(a.Auth, a.Users),
		user.NewHandler(a.Users, radius),
		hospital.NewHandler(a.Hospitals, radius),
		bloodrequest.NewHandler(a.Requests, a.Users, radius),
		donation.NewHandler(a.Donations),
		notification.NewHandler(a.Notifications),
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return relay.Run(gctx)
	})
	g.Go(func() error {
		log.Info("api listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to serve http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
