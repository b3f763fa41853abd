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

type BunComplianceRepository struct {
	db *bun.DB
}

func NewBunComplianceRepository(ctx context.Context, db *bun.DB) (*BunComplianceRepository, error) {
	r := &BunComplianceRepository{
		db: db,
	}
	tx := infra.ExtractTx(ctx, r.db)
	_, err := tx.NewCreateTable().
		Model((*complianceRecord)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return r, fmt.Errorf("failed to create repository: %w", err)
	}
	return r, nil
}

func (r *BunComplianceRepository) Save(ctx context.Context, rec server.ComplianceRecord) error {
	tx := infra.ExtractTx(ctx, r.db)
	row := new(complianceRecord)
	row.fromDomain(rec)
	_, err := tx.NewInsert().
		Model(row).
		Exec(ctx)
	if err != nil {
		if infra.IsUniqueViolation(err) {
			err = fmt.Errorf("%w: %v", shared.ErrConflict, err)
		}
		return fmt.Errorf("failed to save compliance record: %w", err)
	}
	return nil
}

func (r *BunComplianceRepository) GetByEntityID(ctx context.Context, id uuid.UUID) (server.ComplianceRecord, error) {
	tx := infra.ExtractTx(ctx, r.db)
	row := new(complianceRecord)
	err := tx.NewSelect().
		Model(row).
		Where("entity_id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = shared.ErrNotExist
		}
		return server.ComplianceRecord{}, fmt.Errorf("failed to get compliance record: %w", err)
	}
	return row.toDomain(), nil
}

func (r *BunComplianceRepository) ListUnblocked(ctx context.Context) ([]server.ComplianceRecord, error) {
	tx := infra.ExtractTx(ctx, r.db)
	var rows []complianceRecord
	err := tx.NewSelect().
		Model(&rows).
		Where("blocked = ?", false).
		Order("deadline_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list compliance records: %w", err)
	}
	recs := make([]server.ComplianceRecord, 0, len(rows))
	for i := range rows {
		recs = append(recs, rows[i].toDomain())
	}
	return recs, nil
}

func (r *BunComplianceRepository) MarkBlocked(ctx context.Context, id uuid.UUID) (bool, error) {
	tx := infra.ExtractTx(ctx, r.db)
	res, err := tx.NewUpdate().
		Model((*complianceRecord)(nil)).
		Set("blocked = ?", true).
		Where("entity_id = ?", id).
		Where("blocked = ?", false).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to block compliance record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to block compliance record: %w", err)
	}
	return n == 1, nil
}

func (r *BunComplianceRepository) MarkWarningSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	tx := infra.ExtractTx(ctx, r.db)
	_, err := tx.NewUpdate().
		Model((*complianceRecord)(nil)).
		Set("warning_sent_at = ?", at.UTC()).
		Where("entity_id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to mark compliance warning: %w", err)
	}
	return nil
}

func (r *BunComplianceRepository) UpdateSteps(ctx context.Context, rec server.ComplianceRecord) error {
	tx := infra.ExtractTx(ctx, r.db)
	row := new(complianceRecord)
	row.fromDomain(rec)
	res, err := tx.NewUpdate().
		Model(row).
		Column("channel_done", "channel_postponed", "penales_done", "penales_postponed", "blocked", "warning_sent_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update compliance steps: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("failed to update compliance steps: %w", shared.ErrNotExist)
	}
	return nil
}

type complianceRecord struct {
	bun.BaseModel `bun:"table:compliance_records"`

	EntityID         uuid.UUID `bun:",pk,type:uuid"`
	ChannelDone      bool      `bun:",notnull"`
	ChannelPostponed bool      `bun:",notnull"`
	PenalesDone      bool      `bun:",notnull"`
	PenalesPostponed bool      `bun:",notnull"`
	StartAt          time.Time `bun:",notnull"`
	DeadlineAt       time.Time `bun:",notnull"`
	Blocked          bool      `bun:",notnull"`
	WarningSentAt    *time.Time
}

func (c *complianceRecord) toDomain() server.ComplianceRecord {
	rec := server.ComplianceRecord{}
	copier.Copy(&rec, c)
	return rec
}

func (c *complianceRecord) fromDomain(rec server.ComplianceRecord) {
	copier.Copy(c, &rec)
	c.StartAt = c.StartAt.UTC()
	c.DeadlineAt = c.DeadlineAt.UTC()
	if c.WarningSentAt != nil {
		t := c.WarningSentAt.UTC()
		c.WarningSentAt = &t
	}
}
