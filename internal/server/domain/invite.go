package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type InviteStatus string

const (
	InvitePending   InviteStatus = "pending"
	InviteCompleted InviteStatus = "completed"
	InviteExpired   InviteStatus = "expired"
)

func (s InviteStatus) Valid() bool {
	switch s {
	case InvitePending, InviteCompleted, InviteExpired:
		return true
	}
	return false
}

type InviteToken struct {
	EntityID   uuid.UUID
	Token      string
	Active     bool
	Status     InviteStatus
	DeadlineAt *time.Time
	CreatedAt  time.Time
}

type InviteTokenRepository interface {
	// Insert fails with ErrConflict when the entity already has a token.
	Insert(ctx context.Context, inv InviteToken) error
	GetActiveByEntityID(ctx context.Context, id uuid.UUID) (InviteToken, error)
	ListPendingWithDeadline(ctx context.Context) ([]InviteToken, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, s InviteStatus) error
}
