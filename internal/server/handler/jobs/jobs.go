package jobs

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/ramonsune/custodia-360-sub010/internal/server/handler"
	"github.com/ramonsune/custodia-360-sub010/internal/server/service"
	"github.com/ramonsune/custodia-360-sub010/internal/shared/cronsig"
)

const jobFailed = "job failed"

type Reply struct {
	OK        bool     `json:"ok"`
	Processed int      `json:"processed"`
	Notes     []string `json:"notes"`
}

// CronAuth guards the job endpoints. The marker header must carry "1";
// with a secret configured a signed token is required as well.
type CronAuth struct {
	Header string
	Secret []byte
	Now    func() time.Time
}

func (a CronAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(a.Header) != "1" {
			handler.WriteError(w, http.StatusForbidden, "forbidden")
			return
		}
		if len(a.Secret) > 0 {
			now := time.Now()
			if a.Now != nil {
				now = a.Now()
			}
			job := chi.URLParam(r, "job")
			if err := cronsig.Verify(a.Secret, r.Header.Get(cronsig.Header), job, now); err != nil {
				handler.WriteError(w, http.StatusForbidden, "forbidden")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// JobHandler runs guard jobs on demand. Nil services mean the process was
// started without a datastore.
type JobHandler struct {
	Guard      *service.GuardService
	Dispatcher *service.Dispatcher
	Logger     *zerolog.Logger
}

func (h *JobHandler) Register(r chi.Router, auth CronAuth) {
	r.With(auth.Middleware).Post("/{job}", h.Run)
}

func (h *JobHandler) Run(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "job")
	run, ok := h.runner(name)
	if !ok {
		handler.WriteError(w, http.StatusNotFound, "unknown job")
		return
	}
	if h.Guard == nil || h.Dispatcher == nil {
		handler.WriteError(w, http.StatusInternalServerError, handler.MissingDatastore)
		return
	}

	res, err := run(r.Context())
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error().Err(err).Str("job", name).Msg("job failed")
		}
		handler.WriteError(w, http.StatusInternalServerError, jobFailed)
		return
	}
	notes := res.Notes
	if notes == nil {
		notes = []string{}
	}
	handler.WriteJSON(w, http.StatusOK, Reply{OK: true, Processed: res.Processed, Notes: notes})
}

func (h *JobHandler) runner(name string) (func(context.Context) (service.JobResult, error), bool) {
	switch name {
	case service.JobComplianceGuard:
		return func(ctx context.Context) (service.JobResult, error) { return h.Guard.RunComplianceGuard(ctx) }, true
	case service.JobOnboardingGuard:
		return func(ctx context.Context) (service.JobResult, error) { return h.Guard.RunOnboardingGuard(ctx) }, true
	case service.JobBillingReminders:
		return func(ctx context.Context) (service.JobResult, error) { return h.Guard.RunBillingReminders(ctx) }, true
	case service.JobMailerDispatch:
		return func(ctx context.Context) (service.JobResult, error) { return h.Dispatcher.Run(ctx) }, true
	}
	return nil, false
}
