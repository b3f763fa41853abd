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

type BunEntityRepository struct {
	db *bun.DB
}

func NewBunEntityRepository(ctx context.Context, db *bun.DB) (*BunEntityRepository, error) {
	r := &BunEntityRepository{
		db: db,
	}
	tx := infra.ExtractTx(ctx, r.db)
	_, err := tx.NewCreateTable().
		Model((*entity)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return r, fmt.Errorf("failed to create repository: %w", err)
	}
	return r, nil
}

func (r *BunEntityRepository) Save(ctx context.Context, e server.Entity) error {
	tx := infra.ExtractTx(ctx, r.db)
	row := new(entity)
	copier.Copy(row, &e)
	row.CreatedAt = row.CreatedAt.UTC()
	_, err := tx.NewInsert().
		Model(row).
		Exec(ctx)
	if err != nil {
		if infra.IsUniqueViolation(err) {
			err = fmt.Errorf("%w: %v", shared.ErrConflict, err)
		}
		return fmt.Errorf("failed to save entity: %w", err)
	}
	return nil
}

func (r *BunEntityRepository) GetByID(ctx context.Context, id uuid.UUID) (server.Entity, error) {
	tx := infra.ExtractTx(ctx, r.db)
	row := new(entity)
	e := server.Entity{}
	err := tx.NewSelect().
		Model(row).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = shared.ErrNotExist
		}
		return e, fmt.Errorf("failed to get entity: %w", err)
	}
	copier.Copy(&e, row)
	return e, nil
}

type entity struct {
	bun.BaseModel `bun:"table:entities"`

	ID           uuid.UUID `bun:",pk,type:uuid"`
	Name         string    `bun:",notnull"`
	ContactEmail string    `bun:",nullzero"`
	CreatedAt    time.Time `bun:",notnull"`
}
