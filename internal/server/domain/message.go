package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobSent       JobStatus = "sent"
	JobFailed     JobStatus = "failed"
)

type Channel string

const ChannelEmail Channel = "email"

type TemplateSlug string

const (
	TemplateComplianceBlocked TemplateSlug = "compliance-blocked"
	TemplateOnboardingDelay   TemplateSlug = "onboarding-delay"
	// The billing slugs predate the 30/7 day offsets that now use them.
	TemplateBilling5mReminder  TemplateSlug = "billing-5m-reminder"
	TemplateBilling11mReminder TemplateSlug = "billing-11m-reminder"
)

func ParseTemplateSlug(s string) (TemplateSlug, error) {
	switch slug := TemplateSlug(s); slug {
	case TemplateComplianceBlocked, TemplateOnboardingDelay,
		TemplateBilling5mReminder, TemplateBilling11mReminder:
		return slug, nil
	}
	return "", fmt.Errorf("unknown template slug %q", s)
}

type MessageJob struct {
	ID             uuid.UUID
	EntityID       uuid.UUID
	TemplateSlug   TemplateSlug
	Channel        Channel
	Context        map[string]any
	Status         JobStatus
	ScheduledAt    time.Time
	IdempotencyKey string
	ClaimedAt      *time.Time
	ProcessedAt    *time.Time
	LastError      string
	CreatedAt      time.Time
}

// NewMessageJob returns a queued job that is due at now.
func NewMessageJob(entityID uuid.UUID, slug TemplateSlug, ctx map[string]any, now time.Time) MessageJob {
	if ctx == nil {
		ctx = map[string]any{}
	}
	return MessageJob{
		ID:           uuid.New(),
		EntityID:     entityID,
		TemplateSlug: slug,
		Channel:      ChannelEmail,
		Context:      ctx,
		Status:       JobQueued,
		ScheduledAt:  now,
		CreatedAt:    now,
	}
}

// ReminderKey identifies one reminder for one deadline, so re-running a
// guard on the same day cannot queue it twice.
func ReminderKey(slug TemplateSlug, entityID uuid.UUID, deadline time.Time, threshold int) string {
	return fmt.Sprintf("%s:%s:%s:%dd", slug, entityID, deadline.UTC().Format(time.DateOnly), threshold)
}

type MessageJobRepository interface {
	// Insert stores the job and its recipients. It fails with ErrConflict
	// when the idempotency key is taken.
	Insert(ctx context.Context, job MessageJob, recipients []string) error
	GetByID(ctx context.Context, id uuid.UUID) (MessageJob, error)
	GetByIdempotencyKey(ctx context.Context, key string) (MessageJob, error)
	ListByEntityID(ctx context.Context, id uuid.UUID) ([]MessageJob, error)
	ListRecipients(ctx context.Context, id uuid.UUID) ([]string, error)
	// ListDue returns queued jobs with scheduled_at <= now, oldest first.
	ListDue(ctx context.Context, now time.Time, limit int) ([]MessageJob, error)
	// Claim moves a queued job to processing; false means someone else did.
	Claim(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, at time.Time, reason string) error
	RequeueStuck(ctx context.Context, claimedBefore time.Time) (int, error)
}

// BlockedKey identifies the single block notice for one deadline.
func BlockedKey(entityID uuid.UUID, deadline time.Time) string {
	return fmt.Sprintf("%s:%s:%s:blocked", TemplateComplianceBlocked, entityID, deadline.UTC().Format(time.DateOnly))
}
