package domain

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
)

const (
	ComplianceWindow   = 30 * 24 * time.Hour
	ComplianceWarnDays = 7
)

type ComplianceRecord struct {
	EntityID         uuid.UUID
	ChannelDone      bool
	ChannelPostponed bool
	PenalesDone      bool
	PenalesPostponed bool
	StartAt          time.Time
	DeadlineAt       time.Time
	Blocked          bool
	WarningSentAt    *time.Time
}

func NewComplianceRecord(entityID uuid.UUID, start time.Time) ComplianceRecord {
	return ComplianceRecord{
		EntityID:   entityID,
		StartAt:    start,
		DeadlineAt: start.Add(ComplianceWindow),
	}
}

// ComplianceSteps is the set of flags a compliance update may change.
type ComplianceSteps struct {
	ChannelDone      bool
	ChannelPostponed bool
	PenalesDone      bool
	PenalesPostponed bool
}

func (r *ComplianceRecord) ApplySteps(s ComplianceSteps) {
	r.ChannelDone = s.ChannelDone
	r.ChannelPostponed = s.ChannelPostponed
	r.PenalesDone = s.PenalesDone
	r.PenalesPostponed = s.PenalesPostponed
}

// HasPendingPostponedSteps only counts steps that were explicitly postponed;
// a step never started is not pending.
func (r ComplianceRecord) HasPendingPostponedSteps() bool {
	return (r.ChannelPostponed && !r.ChannelDone) ||
		(r.PenalesPostponed && !r.PenalesDone)
}

type Evaluation struct {
	DaysRemaining            int
	HasPendingPostponedSteps bool
	IsExpired                bool
}

func Evaluate(r ComplianceRecord, now time.Time) Evaluation {
	return Evaluation{
		DaysRemaining:            DaysUntil(r.DeadlineAt, now),
		HasPendingPostponedSteps: r.HasPendingPostponedSteps(),
		IsExpired:                r.DeadlineAt.Before(now),
	}
}

// DaysUntil is floor((deadline - now) / 24h). It is negative once the
// deadline has passed by any amount.
func DaysUntil(deadline, now time.Time) int {
	d := deadline.Sub(now)
	return int(math.Floor(d.Hours() / 24))
}

type ComplianceRepository interface {
	Save(ctx context.Context, r ComplianceRecord) error
	GetByEntityID(ctx context.Context, id uuid.UUID) (ComplianceRecord, error)
	ListUnblocked(ctx context.Context) ([]ComplianceRecord, error)
	// MarkBlocked flips blocked to true; it reports false when the record
	// was already blocked.
	MarkBlocked(ctx context.Context, id uuid.UUID) (bool, error)
	MarkWarningSent(ctx context.Context, id uuid.UUID, at time.Time) error
	UpdateSteps(ctx context.Context, r ComplianceRecord) error
}
