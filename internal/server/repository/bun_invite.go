package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	server "github.com/ramonsune/custodia-360-sub010/internal/server/domain"
	shared "github.com/ramonsune/custodia-360-sub010/internal/shared/domain"
	"github.com/ramonsune/custodia-360-sub010/internal/shared/infra"
)

type BunInviteTokenRepository struct {
	db *bun.DB
}

func NewBunInviteTokenRepository(ctx context.Context, db *bun.DB) (*BunInviteTokenRepository, error) {
	r := &BunInviteTokenRepository{
		db: db,
	}
	tx := infra.ExtractTx(ctx, r.db)
	_, err := tx.NewCreateTable().
		Model((*inviteToken)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return r, fmt.Errorf("failed to create repository: %w", err)
	}
	return r, nil
}

func (r *BunInviteTokenRepository) Insert(ctx context.Context, inv server.InviteToken) error {
	tx := infra.ExtractTx(ctx, r.db)
	i := new(inviteToken)
	i.fromDomain(inv)
	_, err := tx.NewInsert().
		Model(i).
		Exec(ctx)
	if err != nil {
		if infra.IsUniqueViolation(err) {
			err = fmt.Errorf("%w: %v", shared.ErrConflict, err)
		}
		return fmt.Errorf("failed to save invite token: %w", err)
	}
	return nil
}

func (r *BunInviteTokenRepository) GetActiveByEntityID(ctx context.Context, id uuid.UUID) (server.InviteToken, error) {
	tx := infra.ExtractTx(ctx, r.db)
	i := new(inviteToken)
	err := tx.NewSelect().
		Model(i).
		Where("entity_id = ?", id).
		Where("active IS NOT ?", false).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = shared.ErrNotExist
		}
		return server.InviteToken{}, fmt.Errorf("failed to get invite token: %w", err)
	}
	return i.toDomain(), nil
}

func (r *BunInviteTokenRepository) ListPendingWithDeadline(ctx context.Context) ([]server.InviteToken, error) {
	tx := infra.ExtractTx(ctx, r.db)
	var rows []inviteToken
	err := tx.NewSelect().
		Model(&rows).
		Where("status = ?", server.InvitePending).
		Where("deadline_at IS NOT NULL").
		Order("deadline_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending invites: %w", err)
	}
	invites := make([]server.InviteToken, 0, len(rows))
	for i := range rows {
		invites = append(invites, rows[i].toDomain())
	}
	return invites, nil
}

func (r *BunInviteTokenRepository) UpdateStatus(ctx context.Context, id uuid.UUID, s server.InviteStatus) error {
	if !s.Valid() {
		return fmt.Errorf("failed to update invite status: %w: %q", shared.ErrInvalid, s)
	}
	tx := infra.ExtractTx(ctx, r.db)
	i := &inviteToken{EntityID: id, Status: s}
	_, err := tx.NewUpdate().
		Model(i).
		Column("status").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update invite status: %w", err)
	}
	return nil
}

// entity_id as primary key is what serialises concurrent issuers.
type inviteToken struct {
	bun.BaseModel `bun:"table:invite_tokens"`

	EntityID   uuid.UUID           `bun:",pk,type:uuid"`
	Token      string              `bun:",unique,notnull"`
	Active     bool                `bun:",notnull"`
	Status     server.InviteStatus `bun:",notnull"`
	DeadlineAt *time.Time
	CreatedAt  time.Time `bun:",notnull"`
}

func (i *inviteToken) toDomain() server.InviteToken {
	return server.InviteToken{
		EntityID:   i.EntityID,
		Token:      i.Token,
		Active:     i.Active,
		Status:     i.Status,
		DeadlineAt: i.DeadlineAt,
		CreatedAt:  i.CreatedAt,
	}
}

func (i *inviteToken) fromDomain(inv server.InviteToken) {
	i.EntityID = inv.EntityID
	i.Token = inv.Token
	i.Active = inv.Active
	i.Status = inv.Status
	if inv.DeadlineAt != nil {
		t := inv.DeadlineAt.UTC()
		i.DeadlineAt = &t
	}
	i.CreatedAt = inv.CreatedAt.UTC()
}
