package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Entity struct {
	ID           uuid.UUID
	Name         string
	ContactEmail string
	CreatedAt    time.Time
}

type EntityRepository interface {
	Save(ctx context.Context, e Entity) error
	GetByID(ctx context.Context, id uuid.UUID) (Entity, error)
}
