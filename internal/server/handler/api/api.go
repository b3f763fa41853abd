package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	server "github.com/ramonsune/custodia-360-sub010/internal/server/domain"
	"github.com/ramonsune/custodia-360-sub010/internal/server/handler"
	"github.com/ramonsune/custodia-360-sub010/internal/server/service"
)

// APIHandler serves the invite, message and compliance endpoints. Nil
// services mean the process was started without a datastore.
type APIHandler struct {
	Invites    *service.InviteService
	Messages   *service.MessageService
	Compliance *service.ComplianceService
	Validate   *validator.Validate
	Logger     *zerolog.Logger
}

func (h *APIHandler) Register(r chi.Router) {
	r.Use(h.requireDatastore)
	r.Get("/invite-token", h.InviteToken)
	r.Post("/invite-token", h.InviteToken)
	r.Post("/message-jobs", h.EnqueueMessage)
	r.Post("/entities", h.CreateEntity)
	r.Get("/compliance/status", h.ComplianceStatus)
	r.Post("/compliance/steps", h.UpdateSteps)
}

func (h *APIHandler) requireDatastore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Invites == nil || h.Messages == nil || h.Compliance == nil {
			handler.WriteError(w, http.StatusInternalServerError, handler.MissingDatastore)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type InviteTokenRequest struct {
	EntityID string `json:"entityId" validate:"required,uuid"`
}

type InviteTokenReply struct {
	OK    bool   `json:"ok"`
	Token string `json:"token"`
	URL   string `json:"url"`
}

func (h *APIHandler) InviteToken(w http.ResponseWriter, r *http.Request) {
	var req InviteTokenRequest
	if r.Method == http.MethodGet {
		req.EntityID = r.URL.Query().Get("entityId")
		if err := h.Validate.StructCtx(r.Context(), req); err != nil {
			handler.WriteErr(w, h.Logger, err)
			return
		}
	} else if err := handler.DecodeJSON(r, &req, h.Validate); err != nil {
		handler.WriteErr(w, h.Logger, err)
		return
	}

	inv, err := h.Invites.EnsureInviteToken(r.Context(), uuid.MustParse(req.EntityID))
	if err != nil {
		handler.WriteErr(w, h.Logger, err)
		return
	}
	link := h.Invites.Link(inv)
	handler.WriteJSON(w, http.StatusOK, InviteTokenReply{OK: true, Token: link.Token, URL: link.URL})
}

type EnqueueMessageRequest struct {
	EntityID       string         `json:"entityId" validate:"required,uuid"`
	TemplateSlug   string         `json:"templateSlug" validate:"required,oneof=compliance-blocked onboarding-delay billing-5m-reminder billing-11m-reminder"`
	Recipients     []string       `json:"recipients" validate:"dive,email"`
	Context        map[string]any `json:"context"`
	IdempotencyKey string         `json:"idempotencyKey" validate:"max=200"`
	ScheduleAt     *time.Time     `json:"scheduleAt"`
}

type MessageJobDTO struct {
	ID             string         `json:"id"`
	EntityID       string         `json:"entityId"`
	TemplateSlug   string         `json:"templateSlug"`
	Channel        string         `json:"channel"`
	Context        map[string]any `json:"context"`
	Status         string         `json:"status"`
	ScheduledAt    time.Time      `json:"scheduledAt"`
	IdempotencyKey string         `json:"idempotencyKey,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
}

type EnqueueMessageReply struct {
	Job             MessageJobDTO `json:"job"`
	RecipientsCount int           `json:"recipientsCount"`
}

func (h *APIHandler) EnqueueMessage(w http.ResponseWriter, r *http.Request) {
	var req EnqueueMessageRequest
	if err := handler.DecodeJSON(r, &req, h.Validate); err != nil {
		handler.WriteErr(w, h.Logger, err)
		return
	}

	res, err := h.Messages.Enqueue(r.Context(), service.EnqueueRequest{
		EntityID:       uuid.MustParse(req.EntityID),
		TemplateSlug:   server.TemplateSlug(req.TemplateSlug),
		Recipients:     req.Recipients,
		Context:        req.Context,
		IdempotencyKey: strings.TrimSpace(req.IdempotencyKey),
		ScheduleAt:     req.ScheduleAt,
	})
	if err != nil {
		handler.WriteErr(w, h.Logger, err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	handler.WriteJSON(w, status, EnqueueMessageReply{
		Job:             toMessageJobDTO(res.Job),
		RecipientsCount: res.RecipientsCount,
	})
}

func toMessageJobDTO(j server.MessageJob) MessageJobDTO {
	return MessageJobDTO{
		ID:             j.ID.String(),
		EntityID:       j.EntityID.String(),
		TemplateSlug:   string(j.TemplateSlug),
		Channel:        string(j.Channel),
		Context:        j.Context,
		Status:         string(j.Status),
		ScheduledAt:    j.ScheduledAt,
		IdempotencyKey: j.IdempotencyKey,
		CreatedAt:      j.CreatedAt,
	}
}
