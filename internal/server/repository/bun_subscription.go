package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
	"github.com/uptrace/bun"

	server "github.com/ramonsune/custodia-360-sub010/internal/server/domain"
	"github.com/ramonsune/custodia-360-sub010/internal/shared/infra"
)

type BunSubscriptionRepository struct {
	db *bun.DB
}

func NewBunSubscriptionRepository(ctx context.Context, db *bun.DB) (*BunSubscriptionRepository, error) {
	r := &BunSubscriptionRepository{
		db: db,
	}
	tx := infra.ExtractTx(ctx, r.db)
	_, err := tx.NewCreateTable().
		Model((*subscription)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return r, fmt.Errorf("failed to create repository: %w", err)
	}
	return r, nil
}

func (r *BunSubscriptionRepository) Upsert(ctx context.Context, sub server.Subscription) error {
	tx := infra.ExtractTx(ctx, r.db)
	s := new(subscription)
	copier.Copy(s, &sub)
	s.CurrentPeriodEnd = s.CurrentPeriodEnd.UTC()
	_, err := tx.NewInsert().
		Model(s).
		On("CONFLICT (id) DO UPDATE").
		Set("status = EXCLUDED.status").
		Set("current_period_end = EXCLUDED.current_period_end").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}
	return nil
}

func (r *BunSubscriptionRepository) ListActive(ctx context.Context) ([]server.Subscription, error) {
	tx := infra.ExtractTx(ctx, r.db)
	var rows []subscription
	err := tx.NewSelect().
		Model(&rows).
		Where("status = ?", server.SubscriptionActive).
		Order("current_period_end ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	subs := make([]server.Subscription, len(rows))
	for i := range rows {
		copier.Copy(&subs[i], &rows[i])
	}
	return subs, nil
}

type subscription struct {
	bun.BaseModel `bun:"table:subscriptions"`

	ID               uuid.UUID                 `bun:",pk,type:uuid"`
	EntityID         uuid.UUID                 `bun:",notnull,type:uuid"`
	Status           server.SubscriptionStatus `bun:",notnull"`
	CurrentPeriodEnd time.Time                 `bun:",notnull"`
}
