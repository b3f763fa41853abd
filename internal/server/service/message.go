package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	server "github.com/ramonsune/custodia-360-sub010/internal/server/domain"
	shared "github.com/ramonsune/custodia-360-sub010/internal/shared/domain"
)

type MessageService struct {
	Jobs server.MessageJobRepository
	Now  func() time.Time
}

type EnqueueRequest struct {
	EntityID       uuid.UUID
	TemplateSlug   server.TemplateSlug
	Recipients     []string
	Context        map[string]any
	IdempotencyKey string
	ScheduleAt     *time.Time
}

type EnqueueResult struct {
	Job             server.MessageJob
	RecipientsCount int
	// Replayed is set when the idempotency key matched an existing job.
	Replayed bool
}

// Enqueue queues a job. A repeated idempotency key returns the stored job
// and creates nothing; it does not stop the stored job from being sent.
func (s *MessageService) Enqueue(ctx context.Context, req EnqueueRequest) (EnqueueResult, error) {
	if req.EntityID == uuid.Nil {
		return EnqueueResult{}, fmt.Errorf("%w: entity id is required", shared.ErrInvalid)
	}
	if _, err := server.ParseTemplateSlug(string(req.TemplateSlug)); err != nil {
		return EnqueueResult{}, fmt.Errorf("%w: %v", shared.ErrInvalid, err)
	}

	if req.IdempotencyKey != "" {
		res, err := s.replay(ctx, req.IdempotencyKey)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, shared.ErrNotExist) {
			return EnqueueResult{}, err
		}
	}

	job := server.NewMessageJob(req.EntityID, req.TemplateSlug, req.Context, nowFrom(s.Now))
	if req.ScheduleAt != nil {
		job.ScheduledAt = *req.ScheduleAt
	}
	job.IdempotencyKey = req.IdempotencyKey

	if err := s.Jobs.Insert(ctx, job, req.Recipients); err != nil {
		if errors.Is(err, shared.ErrConflict) && req.IdempotencyKey != "" {
			return s.replay(ctx, req.IdempotencyKey)
		}
		return EnqueueResult{}, err
	}
	return EnqueueResult{Job: job, RecipientsCount: len(req.Recipients)}, nil
}

func (s *MessageService) replay(ctx context.Context, key string) (EnqueueResult, error) {
	job, err := s.Jobs.GetByIdempotencyKey(ctx, key)
	if err != nil {
		return EnqueueResult{}, err
	}
	recipients, err := s.Jobs.ListRecipients(ctx, job.ID)
	if err != nil {
		return EnqueueResult{}, err
	}
	return EnqueueResult{Job: job, RecipientsCount: len(recipients), Replayed: true}, nil
}
