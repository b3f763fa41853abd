package service

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	server "github.com/ramonsune/custodia-360-sub010/internal/server/domain"
	shared "github.com/ramonsune/custodia-360-sub010/internal/shared/domain"
)

const defaultBatchSize = 50

var errNoRecipients = errors.New("no recipients")

// Dispatcher drains due message jobs into a Sender.
type Dispatcher struct {
	Jobs     server.MessageJobRepository
	Entities server.EntityRepository
	Sender   Sender
	Logger   *zerolog.Logger
	// BatchSize caps the jobs handled per run.
	BatchSize int
	// StuckAfter puts processing jobs claimed longer ago than this back in
	// the queue. Zero disables the sweep.
	StuckAfter time.Duration
	Now        func() time.Time
}

func (d *Dispatcher) Run(ctx context.Context) (JobResult, error) {
	res := JobResult{Notes: []string{}}
	now := nowFrom(d.Now)
	logger := orNop(d.Logger).With().Str("job", JobMailerDispatch).Logger()

	if d.StuckAfter > 0 {
		n, err := d.Jobs.RequeueStuck(ctx, now.Add(-d.StuckAfter))
		if err != nil {
			return res, err
		}
		if n > 0 {
			dispatchRequeuedTotal.Add(float64(n))
			logger.Warn().Int("jobs", n).Msg("requeued stuck jobs")
		}
	}

	limit := d.BatchSize
	if limit <= 0 {
		limit = defaultBatchSize
	}
	jobs, err := d.Jobs.ListDue(ctx, now, limit)
	if err != nil {
		return res, err
	}

	for _, job := range jobs {
		claimed, err := d.Jobs.Claim(ctx, job.ID, now)
		if err != nil {
			logger.Error().Err(err).Str("message", job.ID.String()).Msg("failed to claim job")
			continue
		}
		if !claimed {
			continue
		}

		if err := d.deliver(ctx, job); err != nil {
			logger.Error().Err(err).
				Str("message", job.ID.String()).
				Str("template", string(job.TemplateSlug)).
				Msg("failed to deliver job")
			if err := d.Jobs.MarkFailed(ctx, job.ID, nowFrom(d.Now), err.Error()); err != nil {
				logger.Error().Err(err).Str("message", job.ID.String()).Msg("failed to mark job failed")
				continue
			}
			dispatchMessagesTotal.WithLabelValues(string(job.TemplateSlug), string(server.JobFailed)).Inc()
			res.note("failed %s: %v", job.ID, err)
			continue
		}

		if err := d.Jobs.MarkSent(ctx, job.ID, nowFrom(d.Now)); err != nil {
			logger.Error().Err(err).Str("message", job.ID.String()).Msg("failed to mark job sent")
			continue
		}
		dispatchMessagesTotal.WithLabelValues(string(job.TemplateSlug), string(server.JobSent)).Inc()
		res.note("sent %s (%s)", job.ID, job.TemplateSlug)
	}

	logger.Info().
		Int("due", len(jobs)).
		Int("processed", res.Processed).
		Msg("mailer dispatch finished")
	return res, nil
}

func (d *Dispatcher) deliver(ctx context.Context, job server.MessageJob) error {
	recipients, err := d.Jobs.ListRecipients(ctx, job.ID)
	if err != nil {
		return err
	}

	var entityName string
	ent, err := d.Entities.GetByID(ctx, job.EntityID)
	switch {
	case err == nil:
		entityName = ent.Name
		if len(recipients) == 0 && ent.ContactEmail != "" {
			recipients = []string{ent.ContactEmail}
		}
	case !errors.Is(err, shared.ErrNotExist):
		return err
	}
	if len(recipients) == 0 {
		return errNoRecipients
	}

	subject, text, err := render(job, entityName)
	if err != nil {
		return err
	}

	timer := prometheus.NewTimer(dispatchSendDuration.WithLabelValues(string(job.TemplateSlug)))
	defer timer.ObserveDuration()
	return d.Sender.Send(ctx, Email{
		To:             recipients,
		Subject:        subject,
		Text:           text,
		IdempotencyKey: job.ID.String(),
	})
}
