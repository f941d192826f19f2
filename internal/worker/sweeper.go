// Package worker runs the periodic sweeps that keep requests, blood units and
// donor reminders moving without a caller.
package worker

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jwalitptl/lifedrop-api/internal/service/bloodrequest"
	"github.com/jwalitptl/lifedrop-api/internal/service/donation"
	"github.com/jwalitptl/lifedrop-api/internal/service/notification"
	"github.com/jwalitptl/lifedrop-api/pkg/logger"
)

// Summary counts what one sweep run did.
type Summary struct {
	Handled int
	Failed  int
}

// Job is one named sweep repeated every Interval.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) (Summary, error)
}

type Sweeper struct {
	jobs []Job
	log  *logger.Logger
}

func NewSweeper(log *logger.Logger, jobs ...Job) *Sweeper {
	return &Sweeper{jobs: jobs, log: log.With("component", "sweeper")}
}

// Start runs every job once, then on its interval, until ctx is cancelled.
// A failed run is logged and retried on the next tick.
func (s *Sweeper) Start(ctx context.Context) error {
	for _, job := range s.jobs {
		if job.Interval <= 0 {
			return fmt.Errorf("sweep %s: interval must be positive", job.Name)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, job := range s.jobs {
		job := job
		g.Go(func() error {
			s.loop(ctx, job)
			return nil
		})
	}
	s.log.Info("sweeper started", "jobs", len(s.jobs))
	err := g.Wait()
	s.log.Info("sweeper stopped")
	return err
}

func (s *Sweeper) loop(ctx context.Context, job Job) {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		s.runJob(ctx, job)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce runs the named job a single time.
func (s *Sweeper) RunOnce(ctx context.Context, name string) (Summary, error) {
	for _, job := range s.jobs {
		if job.Name == name {
			return s.runJob(ctx, job)
		}
	}
	return Summary{}, fmt.Errorf("unknown sweep %q", name)
}

// Names lists the configured jobs in order.
func (s *Sweeper) Names() []string {
	names := make([]string, len(s.jobs))
	for i, j := range s.jobs {
		names[i] = j.Name
	}
	return names
}

func (s *Sweeper) runJob(ctx context.Context, job Job) (Summary, error) {
	started := time.Now()
	sum, err := job.Run(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Error(err, "sweep failed", "sweep", job.Name)
		}
		return sum, err
	}
	if sum.Handled > 0 || sum.Failed > 0 {
		s.log.Info("sweep finished",
			"sweep", job.Name,
			"handled", sum.Handled,
			"failed", sum.Failed,
			"duration_ms", time.Since(started).Milliseconds())
	}
	return sum, nil
}

// RequestExpiry expires pending requests past their deadline, batch at a time.
func RequestExpiry(svc bloodrequest.Service, batch int, interval time.Duration) Job {
	return Job{
		Name:     "request_expiry",
		Interval: interval,
		Run: func(ctx context.Context) (Summary, error) {
			outcomes, err := svc.ExpireOverdue(ctx, batch)
			if err != nil {
				return Summary{}, err
			}
			var sum Summary
			for _, o := range outcomes {
				switch {
				case o.Error != "":
					sum.Failed++
				case o.Expired:
					sum.Handled++
				}
			}
			return sum, nil
		},
	}
}

// UnitExpiry retires available blood units past their expiry date.
func UnitExpiry(svc donation.Service, batch int, interval time.Duration) Job {
	return Job{
		Name:     "unit_expiry",
		Interval: interval,
		Run: func(ctx context.Context) (Summary, error) {
			outcomes, err := svc.ExpireUnits(ctx, batch)
			if err != nil {
				return Summary{}, err
			}
			var sum Summary
			for _, o := range outcomes {
				switch {
				case o.Error != "":
					sum.Failed++
				case o.Expired:
					sum.Handled++
				}
			}
			return sum, nil
		},
	}
}

// Reminders tells donors they can give blood again. The interval has to match
// the reminder window the donation service was built with.
func Reminders(svc donation.Service, interval time.Duration) Job {
	return Job{
		Name:     "donation_reminder",
		Interval: interval,
		Run: func(ctx context.Context) (Summary, error) {
			outcomes, err := svc.SendReminders(ctx)
			if err != nil {
				return Summary{}, err
			}
			var sum Summary
			for _, o := range outcomes {
				if o.Sent {
					sum.Handled++
				} else {
					sum.Failed++
				}
			}
			return sum, nil
		},
	}
}

// NotificationExpiry deletes notifications past their expiry. Reads already
// hide them; this only reclaims the rows.
func NotificationExpiry(svc notification.Service, batch int, interval time.Duration) Job {
	return Job{
		Name:     "notification_expiry",
		Interval: interval,
		Run: func(ctx context.Context) (Summary, error) {
			n, err := svc.PurgeExpired(ctx, batch)
			if err != nil {
				return Summary{}, err
			}
			return Summary{Handled: int(n)}, nil
		},
	}
}
