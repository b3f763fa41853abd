package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	server "github.com/ramonsune/custodia-360-sub010/internal/server/domain"
	shared "github.com/ramonsune/custodia-360-sub010/internal/shared/domain"
)

type ComplianceService struct {
	Entities   server.EntityRepository
	Compliance server.ComplianceRepository
	Invites    *InviteService
	TXRunner   shared.TransactionRunner
	Now        func() time.Time
}

type OnboardRequest struct {
	Name         string
	ContactEmail string
}

type Onboarding struct {
	Entity server.Entity
	Record server.ComplianceRecord
	Invite server.InviteToken
	Link   shared.InviteLink
}

// Onboard creates the entity, its compliance record and its invite in one
// transaction. The compliance deadline is fixed here and never moves.
func (s *ComplianceService) Onboard(ctx context.Context, req OnboardRequest) (Onboarding, error) {
	out := Onboarding{}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return out, fmt.Errorf("%w: name is required", shared.ErrInvalid)
	}
	if req.ContactEmail != "" {
		if _, err := mail.ParseAddress(req.ContactEmail); err != nil {
			return out, fmt.Errorf("%w: contact email: %v", shared.ErrInvalid, err)
		}
	}

	now := nowFrom(s.Now)
	out.Entity = server.Entity{
		ID:           uuid.New(),
		Name:         name,
		ContactEmail: req.ContactEmail,
		CreatedAt:    now,
	}
	out.Record = server.NewComplianceRecord(out.Entity.ID, now)

	err := s.TXRunner.Exec(ctx, func(ctx context.Context) error {
		if err := s.Entities.Save(ctx, out.Entity); err != nil {
			return err
		}
		if err := s.Compliance.Save(ctx, out.Record); err != nil {
			return err
		}
		inv, err := s.Invites.EnsureInviteToken(ctx, out.Entity.ID)
		if err != nil {
			return err
		}
		out.Invite = inv
		return nil
	})
	if err != nil {
		return Onboarding{}, err
	}
	out.Link = s.Invites.Link(out.Invite)
	return out, nil
}

// UpdateSteps records step progress. Resolving every postponed step is the
// only way a blocked entity becomes unblocked.
func (s *ComplianceService) UpdateSteps(ctx context.Context, entityID uuid.UUID, steps server.ComplianceSteps) (server.ComplianceRecord, error) {
	var rec server.ComplianceRecord
	err := s.TXRunner.Exec(ctx, func(ctx context.Context) error {
		var err error
		rec, err = s.Compliance.GetByEntityID(ctx, entityID)
		if err != nil {
			return err
		}
		rec.ApplySteps(steps)
		if !rec.HasPendingPostponedSteps() {
			rec.Blocked = false
			rec.WarningSentAt = nil
		}
		return s.Compliance.UpdateSteps(ctx, rec)
	})
	if err != nil {
		return server.ComplianceRecord{}, err
	}
	return rec, nil
}

type ComplianceStatus struct {
	Record     server.ComplianceRecord
	Evaluation server.Evaluation
}

func (s *ComplianceService) Status(ctx context.Context, entityID uuid.UUID) (ComplianceStatus, error) {
	rec, err := s.Compliance.GetByEntityID(ctx, entityID)
	if err != nil {
		return ComplianceStatus{}, err
	}
	return ComplianceStatus{
		Record:     rec,
		Evaluation: server.Evaluate(rec, nowFrom(s.Now)),
	}, nil
}
