package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

type Subscription struct {
	ID               uuid.UUID
	EntityID         uuid.UUID
	Status           SubscriptionStatus
	CurrentPeriodEnd time.Time
}

type SubscriptionRepository interface {
	Upsert(ctx context.Context, s Subscription) error
	ListActive(ctx context.Context) ([]Subscription, error)
}
