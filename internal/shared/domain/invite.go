package domain

import (
	"strings"

	"github.com/google/uuid"
)

// InviteLink is what an operator hands to an entity to start onboarding.
type InviteLink struct {
	EntityID uuid.UUID
	Token    string
	URL      string
}

func NewInviteLink(baseURL string, entityID uuid.UUID, token string) InviteLink {
	return InviteLink{
		EntityID: entityID,
		Token:    token,
		URL:      strings.TrimRight(baseURL, "/") + "/onboarding/" + entityID.String() + "/" + token,
	}
}
