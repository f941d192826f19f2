// Package app assembles the stores, broker, notification channels and services
// shared by the api, worker and ctl binaries.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jwalitptl/lifedrop-api/internal/channel"
	"github.com/jwalitptl/lifedrop-api/internal/config"
	"github.com/jwalitptl/lifedrop-api/internal/handler/health"
	"github.com/jwalitptl/lifedrop-api/internal/realtime"
	"github.com/jwalitptl/lifedrop-api/internal/repository/postgres"
	"github.com/jwalitptl/lifedrop-api/internal/service/auth"
	"github.com/jwalitptl/lifedrop-api/internal/service/bloodrequest"
	"github.com/jwalitptl/lifedrop-api/internal/service/donation"
	"github.com/jwalitptl/lifedrop-api/internal/service/hospital"
	"github.com/jwalitptl/lifedrop-api/internal/service/notification"
	"github.com/jwalitptl/lifedrop-api/internal/service/user"
	"github.com/jwalitptl/lifedrop-api/internal/worker"
	jwtauth "github.com/jwalitptl/lifedrop-api/pkg/auth"
	"github.com/jwalitptl/lifedrop-api/pkg/circuitbreaker"
	"github.com/jwalitptl/lifedrop-api/pkg/logger"
	"github.com/jwalitptl/lifedrop-api/pkg/messaging"
	"github.com/jwalitptl/lifedrop-api/pkg/messaging/redis"
	"github.com/jwalitptl/lifedrop-api/pkg/metrics"
	"github.com/jwalitptl/lifedrop-api/pkg/security"
)

const metricsNamespace = "lifedrop"

// Options tweak what Build wires for a particular binary.
type Options struct {
	// AsyncDispatch takes notification fan-out off the request path.
	AsyncDispatch bool
}

type App struct {
	Config   *config.Config
	Log      *logger.Logger
	DB       *sqlx.DB
	Broker   messaging.Broker
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	Publisher *realtime.Publisher

	Auth          auth.Service
	Users         user.Service
	Hospitals     hospital.Service
	Requests      bloodrequest.Service
	Donations     donation.Service
	Notifications notification.Service
	Dispatcher    notification.Dispatcher

	closers []func() error
}

// Build connects to Postgres and the broker and wires every service. The
// caller owns the returned App and must Close it.
func Build(ctx context.Context, cfg *config.Config, log *logger.Logger, opts Options) (*App, error) {
	a := &App{Config: cfg, Log: log}

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.New(metricsNamespace, a.Registry)

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		return nil, err
	}
	a.DB = db
	a.closers = append(a.closers, db.Close)
	a.Registry.MustRegister(collectors.NewDBStatsCollector(db.DB, cfg.Database.Name))

	if cfg.Database.AutoMigrate {
		if err := postgres.Migrate(ctx, db, "up", log); err != nil {
			a.Close()
			return nil, err
		}
	}

	if a.Broker, err = newBroker(ctx, cfg.Redis, log); err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, a.Broker.Close)
	a.Publisher = realtime.NewPublisher(a.Broker, cfg.Redis.Channel)

	channels, err := newChannels(ctx, cfg, a.Publisher, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	base := postgres.NewBaseRepository(db)
	users := postgres.NewUserRepository(base)
	hospitals := postgres.NewHospitalRepository(base)
	requests := postgres.NewBloodRequestRepository(base)
	donations := postgres.NewDonationRepository(base)
	notifications := postgres.NewNotificationRepository(base)

	a.Dispatcher = notification.NewDispatcher(notifications, users, channels, a.Publisher, notification.Options{
		ChannelTimeout: cfg.Notification.ChannelTimeout,
		MaxConcurrency: cfg.Notification.MaxConcurrency,
	}, log, a.Metrics)

	hasher := security.NewBcryptHasher(0)
	tokens := jwtauth.NewManager(cfg.JWT.Secret, cfg.JWT.Issuer, time.Duration(cfg.JWT.ExpiryHours)*time.Hour)

	a.Auth = auth.NewService(users, tokens, hasher, log)
	a.Users = user.NewService(users, hospitals, hasher, a.Dispatcher, log)
	a.Hospitals = hospital.NewService(hospitals, users, a.Dispatcher, log)
	a.Requests = bloodrequest.NewService(requests, users, hospitals, a.Dispatcher, a.Publisher, bloodrequest.Options{
		SearchRadiusKm: cfg.Notification.SearchRadiusKm,
		Async:          opts.AsyncDispatch,
	}, log, a.Metrics)
	a.Donations = donation.NewService(donations, users, hospitals, requests, a.Dispatcher, donation.Options{
		LowStockThreshold: cfg.Notification.LowStockThreshold,
		ReminderWindow:    cfg.Worker.ReminderInterval,
	}, log, a.Metrics)
	a.Notifications = notification.NewService(notifications, a.Publisher, log.With("component", "notification_service"))

	return a, nil
}

// Sweeper returns the background jobs configured for this deployment.
func (a *App) Sweeper() *worker.Sweeper {
	w := a.Config.Worker
	return worker.NewSweeper(a.Log,
		worker.RequestExpiry(a.Requests, w.BatchSize, w.RequestExpiryInterval),
		worker.UnitExpiry(a.Donations, w.BatchSize, w.UnitExpiryInterval),
		worker.Reminders(a.Donations, w.ReminderInterval),
		worker.NotificationExpiry(a.Notifications, w.BatchSize, w.NotificationExpiryInterval),
	)
}

// Checks are the dependencies readiness depends on.
func (a *App) Checks() map[string]health.Pinger {
	checks := map[string]health.Pinger{"database": a.DB}
	if p, ok := a.Broker.(interface{ Ping(context.Context) error }); ok {
		checks["redis"] = health.PingFunc(p.Ping)
	}
	return checks
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Log.Warn("failed to close resource", "error", err.Error())
		}
	}
	a.closers = nil
}

func newBroker(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) (messaging.Broker, error) {
	if !cfg.Enabled {
		log.Warn("redis disabled, realtime events stay on this instance")
		return messaging.NewMemoryBroker(), nil
	}
	b, err := redis.NewRedisBroker(ctx, redis.Config{
		URL:            cfg.URL,
		MaxRetries:     cfg.MaxRetries,
		RetryBackoff:   cfg.RetryBackoff,
		PoolSize:       cfg.PoolSize,
		MinIdleConns:   cfg.MinIdleConns,
		ConnectTimeout: cfg.ConnectTimeout,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return b, nil
}

// newChannels builds the delivery channels. Realtime is always on; email and
// push only when configured, each behind its own circuit breaker.
func newChannels(ctx context.Context, cfg *config.Config, publisher *realtime.Publisher, log *logger.Logger) ([]channel.Channel, error) {
	channels := []channel.Channel{channel.NewRealtime(publisher)}

	n := cfg.Notification
	if n.Email.Enabled {
		email := channel.NewEmail(channel.EmailConfig{
			Host:     n.Email.Host,
			Port:     n.Email.Port,
			Username: n.Email.Username,
			Password: n.Email.Password,
			From:     n.Email.From,
			AppURL:   n.AppURL,
		})
		channels = append(channels, channel.WithBreaker(email, circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultSettings("email"))))
	}

	if n.Push.Enabled {
		tokens, err := channel.TokenSource(ctx, n.Push.CredentialsJSON, n.Push.CredentialsFile)
		if err != nil {
			return nil, err
		}
		push := channel.NewPush(channel.PushConfig{
			ProjectID: n.Push.ProjectID,
			Endpoint:  n.Push.Endpoint,
			Timeout:   n.ChannelTimeout,
		}, tokens)
		channels = append(channels, channel.WithBreaker(push, circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultSettings("push"))))
	}

	names := make([]string, len(channels))
	for i, c := range channels {
		names[i] = c.Name()
	}
	log.Info("notification channels ready", "channels", names)
	return channels, nil
}
