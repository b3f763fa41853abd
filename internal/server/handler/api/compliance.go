package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	server "github.com/ramonsune/custodia-360-sub010/internal/server/domain"
	"github.com/ramonsune/custodia-360-sub010/internal/server/handler"
	"github.com/ramonsune/custodia-360-sub010/internal/server/service"
)

type CreateEntityRequest struct {
	Name         string `json:"name" validate:"required,max=200"`
	ContactEmail string `json:"contactEmail" validate:"omitempty,email"`
}

type EntityDTO struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	ContactEmail string    `json:"contactEmail,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

type CreateEntityReply struct {
	OK         bool          `json:"ok"`
	Entity     EntityDTO     `json:"entity"`
	Compliance ComplianceDTO `json:"compliance"`
	InviteURL  string        `json:"inviteUrl"`
}

func (h *APIHandler) CreateEntity(w http.ResponseWriter, r *http.Request) {
	var req CreateEntityRequest
	if err := handler.DecodeJSON(r, &req, h.Validate); err != nil {
		handler.WriteErr(w, h.Logger, err)
		return
	}

	out, err := h.Compliance.Onboard(r.Context(), service.OnboardRequest{
		Name:         req.Name,
		ContactEmail: req.ContactEmail,
	})
	if err != nil {
		handler.WriteErr(w, h.Logger, err)
		return
	}
	handler.WriteJSON(w, http.StatusCreated, CreateEntityReply{
		OK: true,
		Entity: EntityDTO{
			ID:           out.Entity.ID.String(),
			Name:         out.Entity.Name,
			ContactEmail: out.Entity.ContactEmail,
			CreatedAt:    out.Entity.CreatedAt,
		},
		Compliance: toComplianceDTO(out.Record, server.Evaluate(out.Record, out.Entity.CreatedAt)),
		InviteURL:  out.Link.URL,
	})
}

type ComplianceDTO struct {
	EntityID                 string    `json:"entityId"`
	ChannelDone              bool      `json:"channelDone"`
	ChannelPostponed         bool      `json:"channelPostponed"`
	PenalesDone              bool      `json:"penalesDone"`
	PenalesPostponed         bool      `json:"penalesPostponed"`
	StartAt                  time.Time `json:"startAt"`
	DeadlineAt               time.Time `json:"deadlineAt"`
	Blocked                  bool      `json:"blocked"`
	DaysRemaining            int       `json:"daysRemaining"`
	HasPendingPostponedSteps bool      `json:"hasPendingPostponedSteps"`
	IsExpired                bool      `json:"isExpired"`
}

type ComplianceReply struct {
	OK         bool          `json:"ok"`
	Compliance ComplianceDTO `json:"compliance"`
}

func toComplianceDTO(rec server.ComplianceRecord, ev server.Evaluation) ComplianceDTO {
	return ComplianceDTO{
		EntityID:                 rec.EntityID.String(),
		ChannelDone:              rec.ChannelDone,
		ChannelPostponed:         rec.ChannelPostponed,
		PenalesDone:              rec.PenalesDone,
		PenalesPostponed:         rec.PenalesPostponed,
		StartAt:                  rec.StartAt,
		DeadlineAt:               rec.DeadlineAt,
		Blocked:                  rec.Blocked,
		DaysRemaining:            ev.DaysRemaining,
		HasPendingPostponedSteps: ev.HasPendingPostponedSteps,
		IsExpired:                ev.IsExpired,
	}
}

func (h *APIHandler) ComplianceStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.URL.Query().Get("entityId"))
	if err != nil {
		handler.WriteError(w, http.StatusBadRequest, "entityId must be a uuid")
		return
	}
	st, err := h.Compliance.Status(r.Context(), id)
	if err != nil {
		handler.WriteErr(w, h.Logger, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, ComplianceReply{OK: true, Compliance: toComplianceDTO(st.Record, st.Evaluation)})
}

type UpdateStepsRequest struct {
	EntityID         string `json:"entityId" validate:"required,uuid"`
	ChannelDone      bool   `json:"channelDone"`
	ChannelPostponed bool   `json:"channelPostponed"`
	PenalesDone      bool   `json:"penalesDone"`
	PenalesPostponed bool   `json:"penalesPostponed"`
}

func (h *APIHandler) UpdateSteps(w http.ResponseWriter, r *http.Request) {
	var req UpdateStepsRequest
	if err := handler.DecodeJSON(r, &req, h.Validate); err != nil {
		handler.WriteErr(w, h.Logger, err)
		return
	}

	id := uuid.MustParse(req.EntityID)
	if _, err := h.Compliance.UpdateSteps(r.Context(), id, server.ComplianceSteps{
		ChannelDone:      req.ChannelDone,
		ChannelPostponed: req.ChannelPostponed,
		PenalesDone:      req.PenalesDone,
		PenalesPostponed: req.PenalesPostponed,
	}); err != nil {
		handler.WriteErr(w, h.Logger, err)
		return
	}
	st, err := h.Compliance.Status(r.Context(), id)
	if err != nil {
		handler.WriteErr(w, h.Logger, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, ComplianceReply{OK: true, Compliance: toComplianceDTO(st.Record, st.Evaluation)})
}
