package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	server "github.com/ramonsune/custodia-360-sub010/internal/server/domain"
	shared "github.com/ramonsune/custodia-360-sub010/internal/shared/domain"
)

const (
	JobComplianceGuard  = "compliance-guard"
	JobOnboardingGuard  = "onboarding-guard"
	JobBillingReminders = "billing-reminders"
	JobMailerDispatch   = "mailer-dispatch"
)

var (
	onboardingThresholds = []int{7, 3}
	billingThresholds    = []int{30, 7}
	billingTemplates     = map[int]server.TemplateSlug{
		30: server.TemplateBilling5mReminder,
		7:  server.TemplateBilling11mReminder,
	}
)

// JobResult is what every guard run reports back to its caller.
type JobResult struct {
	Processed int
	Notes     []string
}

func (r *JobResult) note(format string, args ...any) {
	r.Processed++
	r.Notes = append(r.Notes, fmt.Sprintf(format, args...))
}

// GuardService runs the deadline policies. Each record is handled on its
// own: a failing record is logged and skipped, never retried in-run.
type GuardService struct {
	Compliance    server.ComplianceRepository
	Invites       server.InviteTokenRepository
	Subscriptions server.SubscriptionRepository
	Messages      *MessageService
	BaseURL       string
	// CatchUpDays widens every reminder threshold downwards so a skipped
	// cron day still sends it. Zero means exact day matches only.
	CatchUpDays int
	Logger      *zerolog.Logger
	Now         func() time.Time
}

func (s *GuardService) RunComplianceGuard(ctx context.Context) (JobResult, error) {
	res := JobResult{Notes: []string{}}
	recs, err := s.Compliance.ListUnblocked(ctx)
	if err != nil {
		return res, err
	}

	now := nowFrom(s.Now)
	logger := orNop(s.Logger).With().Str("job", JobComplianceGuard).Logger()
	for _, rec := range recs {
		ev := server.Evaluate(rec, now)
		if !ev.HasPendingPostponedSteps {
			continue
		}

		switch {
		case ev.IsExpired:
			if err := s.blockRecord(ctx, rec, ev, &res); err != nil {
				guardRecordErrorsTotal.WithLabelValues(JobComplianceGuard).Inc()
				logger.Error().Err(err).
					Str("entity", rec.EntityID.String()).
					Msg("failed to block entity")
			}
		case rec.WarningSentAt == nil:
			threshold, ok := reminderThreshold(ev.DaysRemaining, []int{server.ComplianceWarnDays}, s.CatchUpDays)
			if !ok {
				continue
			}
			if err := s.warnRecord(ctx, rec, ev, threshold, now, &res); err != nil {
				guardRecordErrorsTotal.WithLabelValues(JobComplianceGuard).Inc()
				logger.Error().Err(err).
					Str("entity", rec.EntityID.String()).
					Msg("failed to queue compliance warning")
			}
		}
	}

	logger.Info().
		Int("records", len(recs)).
		Int("processed", res.Processed).
		Msg("compliance guard finished")
	return res, nil
}

// blockRecord queues the keyed notice, then flips the flag. Both steps are
// no-ops when repeated.
func (s *GuardService) blockRecord(ctx context.Context, rec server.ComplianceRecord, ev server.Evaluation, res *JobResult) error {
	_, err := s.Messages.Enqueue(ctx, EnqueueRequest{
		EntityID:     rec.EntityID,
		TemplateSlug: server.TemplateComplianceBlocked,
		Context: map[string]any{
			"stage":          "blocked",
			"deadline":       rec.DeadlineAt.UTC().Format(time.DateOnly),
			"days_remaining": ev.DaysRemaining,
		},
		IdempotencyKey: server.BlockedKey(rec.EntityID, rec.DeadlineAt),
	})
	if err != nil {
		return err
	}
	changed, err := s.Compliance.MarkBlocked(ctx, rec.EntityID)
	if err != nil {
		return err
	}
	if changed {
		guardActionsTotal.WithLabelValues(JobComplianceGuard, "blocked").Inc()
		res.note("blocked %s", rec.EntityID)
	}
	return nil
}

func (s *GuardService) warnRecord(ctx context.Context, rec server.ComplianceRecord, ev server.Evaluation, threshold int, now time.Time, res *JobResult) error {
	out, err := s.Messages.Enqueue(ctx, EnqueueRequest{
		EntityID:     rec.EntityID,
		TemplateSlug: server.TemplateComplianceBlocked,
		Context: map[string]any{
			"stage":          "warning",
			"deadline":       rec.DeadlineAt.UTC().Format(time.DateOnly),
			"days_remaining": ev.DaysRemaining,
		},
		IdempotencyKey: server.ReminderKey(server.TemplateComplianceBlocked, rec.EntityID, rec.DeadlineAt, threshold),
	})
	if err != nil {
		return err
	}
	if err := s.Compliance.MarkWarningSent(ctx, rec.EntityID, now); err != nil {
		return err
	}
	if !out.Replayed {
		guardActionsTotal.WithLabelValues(JobComplianceGuard, "warned").Inc()
		res.note("warned %s (%d days left)", rec.EntityID, ev.DaysRemaining)
	}
	return nil
}

func (s *GuardService) RunOnboardingGuard(ctx context.Context) (JobResult, error) {
	res := JobResult{Notes: []string{}}
	invites, err := s.Invites.ListPendingWithDeadline(ctx)
	if err != nil {
		return res, err
	}

	now := nowFrom(s.Now)
	logger := orNop(s.Logger).With().Str("job", JobOnboardingGuard).Logger()
	for _, inv := range invites {
		if inv.DeadlineAt == nil {
			continue
		}
		days := server.DaysUntil(*inv.DeadlineAt, now)

		if days < 0 {
			if err := s.Invites.UpdateStatus(ctx, inv.EntityID, server.InviteExpired); err != nil {
				guardRecordErrorsTotal.WithLabelValues(JobOnboardingGuard).Inc()
				logger.Error().Err(err).
					Str("entity", inv.EntityID.String()).
					Msg("failed to expire invite")
				continue
			}
			guardActionsTotal.WithLabelValues(JobOnboardingGuard, "expired").Inc()
			res.note("expired invite %s", inv.EntityID)
			continue
		}

		threshold, ok := reminderThreshold(days, onboardingThresholds, s.CatchUpDays)
		if !ok {
			continue
		}
		out, err := s.Messages.Enqueue(ctx, EnqueueRequest{
			EntityID:     inv.EntityID,
			TemplateSlug: server.TemplateOnboardingDelay,
			Context: map[string]any{
				"days_remaining": days,
				"deadline":       inv.DeadlineAt.UTC().Format(time.DateOnly),
				"invite_url":     shared.NewInviteLink(s.BaseURL, inv.EntityID, inv.Token).URL,
			},
			IdempotencyKey: server.ReminderKey(server.TemplateOnboardingDelay, inv.EntityID, *inv.DeadlineAt, threshold),
		})
		if err != nil {
			guardRecordErrorsTotal.WithLabelValues(JobOnboardingGuard).Inc()
			logger.Error().Err(err).
				Str("entity", inv.EntityID.String()).
				Msg("failed to queue onboarding reminder")
			continue
		}
		if !out.Replayed {
			guardActionsTotal.WithLabelValues(JobOnboardingGuard, "reminded").Inc()
			res.note("onboarding reminder %s (%d days left)", inv.EntityID, days)
		}
	}

	logger.Info().
		Int("invites", len(invites)).
		Int("processed", res.Processed).
		Msg("onboarding guard finished")
	return res, nil
}

func (s *GuardService) RunBillingReminders(ctx context.Context) (JobResult, error) {
	res := JobResult{Notes: []string{}}
	subs, err := s.Subscriptions.ListActive(ctx)
	if err != nil {
		return res, err
	}

	now := nowFrom(s.Now)
	logger := orNop(s.Logger).With().Str("job", JobBillingReminders).Logger()
	for _, sub := range subs {
		days := server.DaysUntil(sub.CurrentPeriodEnd, now)
		threshold, ok := reminderThreshold(days, billingThresholds, s.CatchUpDays)
		if !ok {
			continue
		}
		slug := billingTemplates[threshold]
		out, err := s.Messages.Enqueue(ctx, EnqueueRequest{
			EntityID:     sub.EntityID,
			TemplateSlug: slug,
			Context: map[string]any{
				"days_remaining": days,
				"period_end":     sub.CurrentPeriodEnd.UTC().Format(time.DateOnly),
				"subscription":   sub.ID.String(),
			},
			IdempotencyKey: server.ReminderKey(slug, sub.ID, sub.CurrentPeriodEnd, threshold),
		})
		if err != nil {
			guardRecordErrorsTotal.WithLabelValues(JobBillingReminders).Inc()
			logger.Error().Err(err).
				Str("subscription", sub.ID.String()).
				Msg("failed to queue billing reminder")
			continue
		}
		if !out.Replayed {
			guardActionsTotal.WithLabelValues(JobBillingReminders, string(slug)).Inc()
			res.note("%s for %s (%d days left)", slug, sub.EntityID, days)
		}
	}

	logger.Info().
		Int("subscriptions", len(subs)).
		Int("processed", res.Processed).
		Msg("billing reminders finished")
	return res, nil
}

// reminderThreshold picks the threshold (thresholds sorted descending) whose
// window contains days. A window runs from the threshold down catchUp days
// but stops above the next threshold, and above zero for the last one.
func reminderThreshold(days int, thresholds []int, catchUp int) (int, bool) {
	for i, t := range thresholds {
		floor := 1
		if i+1 < len(thresholds) {
			floor = thresholds[i+1] + 1
		}
		lower := max(t-catchUp, floor)
		if days <= t && days >= lower {
			return t, true
		}
	}
	return 0, false
}
