package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
	"github.com/uptrace/bun"

	server "github.com/ramonsune/custodia-360-sub010/internal/server/domain"
	shared "github.com/ramonsune/custodia-360-sub010/internal/shared/domain"
	"github.com/ramonsune/custodia-360-sub010/internal/shared/infra"
)

type BunMessageJobRepository struct {
	db       *bun.DB
	txRunner *infra.BunTransactionRunner
}

func NewBunMessageJobRepository(ctx context.Context, db *bun.DB) (*BunMessageJobRepository, error) {
	r := &BunMessageJobRepository{
		db:       db,
		txRunner: infra.NewBunTransactionRunner(db),
	}
	tx := infra.ExtractTx(ctx, r.db)
	for _, model := range []any{(*messageJob)(nil), (*messageRecipient)(nil)} {
		_, err := tx.NewCreateTable().
			Model(model).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return r, fmt.Errorf("failed to create repository: %w", err)
		}
	}
	_, err := tx.NewCreateIndex().
		Model((*messageJob)(nil)).
		Index("message_jobs_due_idx").
		Column("status", "scheduled_at").
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return r, fmt.Errorf("failed to create repository: %w", err)
	}
	return r, nil
}

func (r *BunMessageJobRepository) Insert(ctx context.Context, job server.MessageJob, recipients []string) error {
	return r.txRunner.Exec(ctx, func(ctx context.Context) error {
		tx := infra.ExtractTx(ctx, r.db)
		j := new(messageJob)
		j.fromDomain(job)
		_, err := tx.NewInsert().
			Model(j).
			Exec(ctx)
		if err != nil {
			if infra.IsUniqueViolation(err) {
				err = fmt.Errorf("%w: %v", shared.ErrConflict, err)
			}
			return fmt.Errorf("failed to save message job: %w", err)
		}
		if len(recipients) == 0 {
			return nil
		}
		rows := make([]messageRecipient, 0, len(recipients))
		for _, email := range recipients {
			rows = append(rows, messageRecipient{JobID: job.ID, Email: email})
		}
		_, err = tx.NewInsert().
			Model(&rows).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to save message recipients: %w", err)
		}
		return nil
	})
}

func (r *BunMessageJobRepository) GetByID(ctx context.Context, id uuid.UUID) (server.MessageJob, error) {
	return r.getOne(ctx, "id = ?", id)
}

func (r *BunMessageJobRepository) GetByIdempotencyKey(ctx context.Context, key string) (server.MessageJob, error) {
	return r.getOne(ctx, "idempotency_key = ?", key)
}

func (r *BunMessageJobRepository) getOne(ctx context.Context, query string, arg any) (server.MessageJob, error) {
	tx := infra.ExtractTx(ctx, r.db)
	j := new(messageJob)
	err := tx.NewSelect().
		Model(j).
		Where(query, arg).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = shared.ErrNotExist
		}
		return server.MessageJob{}, fmt.Errorf("failed to get message job: %w", err)
	}
	return j.toDomain(), nil
}

func (r *BunMessageJobRepository) ListByEntityID(ctx context.Context, id uuid.UUID) ([]server.MessageJob, error) {
	tx := infra.ExtractTx(ctx, r.db)
	var rows []messageJob
	err := tx.NewSelect().
		Model(&rows).
		Where("entity_id = ?", id).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list message jobs: %w", err)
	}
	return toDomainJobs(rows), nil
}

func (r *BunMessageJobRepository) ListRecipients(ctx context.Context, id uuid.UUID) ([]string, error) {
	tx := infra.ExtractTx(ctx, r.db)
	var emails []string
	err := tx.NewSelect().
		Model((*messageRecipient)(nil)).
		Column("email").
		Where("job_id = ?", id).
		Order("id ASC").
		Scan(ctx, &emails)
	if err != nil {
		return nil, fmt.Errorf("failed to list message recipients: %w", err)
	}
	return emails, nil
}

func (r *BunMessageJobRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]server.MessageJob, error) {
	tx := infra.ExtractTx(ctx, r.db)
	var rows []messageJob
	err := tx.NewSelect().
		Model(&rows).
		Where("status = ?", server.JobQueued).
		Where("scheduled_at <= ?", now.UTC()).
		Order("scheduled_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list due message jobs: %w", err)
	}
	return toDomainJobs(rows), nil
}

func (r *BunMessageJobRepository) Claim(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tx := infra.ExtractTx(ctx, r.db)
	res, err := tx.NewUpdate().
		Model((*messageJob)(nil)).
		Set("status = ?", server.JobProcessing).
		Set("claimed_at = ?", at.UTC()).
		Where("id = ?", id).
		Where("status = ?", server.JobQueued).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to claim message job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to claim message job: %w", err)
	}
	return n == 1, nil
}

func (r *BunMessageJobRepository) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.finish(ctx, id, server.JobSent, at, "")
}

func (r *BunMessageJobRepository) MarkFailed(ctx context.Context, id uuid.UUID, at time.Time, reason string) error {
	return r.finish(ctx, id, server.JobFailed, at, reason)
}

func (r *BunMessageJobRepository) finish(ctx context.Context, id uuid.UUID, status server.JobStatus, at time.Time, reason string) error {
	tx := infra.ExtractTx(ctx, r.db)
	at = at.UTC()
	j := &messageJob{
		ID:          id,
		Status:      status,
		ProcessedAt: &at,
		LastError:   reason,
	}
	_, err := tx.NewUpdate().
		Model(j).
		Column("status", "processed_at", "last_error").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to mark message job %s: %w", status, err)
	}
	return nil
}

func (r *BunMessageJobRepository) RequeueStuck(ctx context.Context, claimedBefore time.Time) (int, error) {
	tx := infra.ExtractTx(ctx, r.db)
	res, err := tx.NewUpdate().
		Model((*messageJob)(nil)).
		Set("status = ?", server.JobQueued).
		Set("claimed_at = NULL").
		Where("status = ?", server.JobProcessing).
		Where("claimed_at < ?", claimedBefore.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to requeue stuck message jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to requeue stuck message jobs: %w", err)
	}
	return int(n), nil
}

type messageJob struct {
	bun.BaseModel `bun:"table:message_jobs"`

	ID             uuid.UUID           `bun:",pk,type:uuid"`
	EntityID       uuid.UUID           `bun:",notnull,type:uuid"`
	TemplateSlug   server.TemplateSlug `bun:",notnull"`
	Channel        server.Channel      `bun:",notnull"`
	Context        map[string]any
	Status         server.JobStatus `bun:",notnull"`
	ScheduledAt    time.Time        `bun:",notnull"`
	IdempotencyKey string           `bun:",unique,nullzero"`
	ClaimedAt      *time.Time
	ProcessedAt    *time.Time
	LastError      string    `bun:",nullzero"`
	CreatedAt      time.Time `bun:",notnull"`
}

func (j *messageJob) toDomain() server.MessageJob {
	job := server.MessageJob{}
	copier.Copy(&job, j)
	if job.Context == nil {
		job.Context = map[string]any{}
	}
	return job
}

func (j *messageJob) fromDomain(job server.MessageJob) {
	copier.Copy(j, &job)
	j.ScheduledAt = j.ScheduledAt.UTC()
	j.CreatedAt = j.CreatedAt.UTC()
}

func toDomainJobs(rows []messageJob) []server.MessageJob {
	jobs := make([]server.MessageJob, 0, len(rows))
	for i := range rows {
		jobs = append(jobs, rows[i].toDomain())
	}
	return jobs
}

type messageRecipient struct {
	bun.BaseModel `bun:"table:message_recipients"`

	ID    int64     `bun:",pk,autoincrement"`
	JobID uuid.UUID `bun:",notnull,type:uuid"`
	Email string    `bun:",notnull"`
}
