package server

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ramonsune/custodia-360-sub010/internal/server/service"
)

// Scheduler is the in-process alternative to an external cron. It calls the
// same operations as the job endpoints and nothing else.
type Scheduler struct {
	Services         *Services
	GuardInterval    time.Duration
	DispatchInterval time.Duration
	Logger           *zerolog.Logger
}

type scheduledJob struct {
	name string
	run  func(context.Context) (service.JobResult, error)
}

func (s *Scheduler) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	guards := []scheduledJob{
		{service.JobComplianceGuard, s.Services.Guard.RunComplianceGuard},
		{service.JobOnboardingGuard, s.Services.Guard.RunOnboardingGuard},
		{service.JobBillingReminders, s.Services.Guard.RunBillingReminders},
	}
	g.Go(func() error {
		return s.loop(gctx, s.GuardInterval, guards)
	})
	g.Go(func() error {
		return s.loop(gctx, s.DispatchInterval, []scheduledJob{
			{service.JobMailerDispatch, s.Services.Dispatcher.Run},
		})
	})
	return g.Wait()
}

// loop runs jobs once right away and then on every tick. A failed job is
// logged; the next tick retries it.
func (s *Scheduler) loop(ctx context.Context, every time.Duration, jobs []scheduledJob) error {
	if every <= 0 {
		return nil
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		for _, job := range jobs {
			res, err := job.run(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.Logger.Error().Err(err).Str("job", job.name).Msg("scheduled job failed")
				continue
			}
			s.Logger.Debug().
				Str("job", job.name).
				Int("processed", res.Processed).
				Msg("scheduled job done")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
