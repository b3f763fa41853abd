package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	server "github.com/ramonsune/custodia-360-sub010/internal/server/domain"
	shared "github.com/ramonsune/custodia-360-sub010/internal/shared/domain"
)

const inviteTokenBytes = 32

type InviteService struct {
	Invites server.InviteTokenRepository
	BaseURL string
	// Window is how long a new invite stays pending before the onboarding
	// guard expires it.
	Window time.Duration
	Rand   io.Reader
	Now    func() time.Time
}

// EnsureInviteToken returns the entity's active token, creating one if there
// is none. Concurrent callers for the same entity get the same token: the
// loser of the insert race re-reads the winner's row.
func (s *InviteService) EnsureInviteToken(ctx context.Context, entityID uuid.UUID) (server.InviteToken, error) {
	inv, err := s.Invites.GetActiveByEntityID(ctx, entityID)
	if err == nil {
		return inv, nil
	}
	if !errors.Is(err, shared.ErrNotExist) {
		return server.InviteToken{}, err
	}

	tok, err := s.newToken()
	if err != nil {
		return server.InviteToken{}, err
	}

	now := nowFrom(s.Now)
	inv = server.InviteToken{
		EntityID:  entityID,
		Token:     tok,
		Active:    true,
		Status:    server.InvitePending,
		CreatedAt: now,
	}
	if s.Window > 0 {
		deadline := now.Add(s.Window)
		inv.DeadlineAt = &deadline
	}

	if err := s.Invites.Insert(ctx, inv); err != nil {
		if errors.Is(err, shared.ErrConflict) {
			return s.Invites.GetActiveByEntityID(ctx, entityID)
		}
		return server.InviteToken{}, err
	}
	return inv, nil
}

func (s *InviteService) Link(inv server.InviteToken) shared.InviteLink {
	return shared.NewInviteLink(s.BaseURL, inv.EntityID, inv.Token)
}

func (s *InviteService) newToken() (string, error) {
	rnd := s.Rand
	if rnd == nil {
		rnd = rand.Reader
	}
	buf := make([]byte, inviteTokenBytes)
	if _, err := io.ReadFull(rnd, buf); err != nil {
		return "", fmt.Errorf("failed to generate invite token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func nowFrom(fn func() time.Time) time.Time {
	if fn == nil {
		return time.Now().UTC()
	}
	return fn()
}

func orNop(l *zerolog.Logger) *zerolog.Logger {
	if l == nil {
		nop := zerolog.Nop()
		return &nop
	}
	return l
}
