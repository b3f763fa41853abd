package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramonsune/custodia-360-sub010/internal/server/handler/jobs"
	"github.com/ramonsune/custodia-360-sub010/internal/shared/config"
	"github.com/ramonsune/custodia-360-sub010/internal/shared/infra"
	"github.com/ramonsune/custodia-360-sub010/internal/shared/log"
)

func newTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	ctx := context.Background()

	db, err := infra.OpenDB(ctx, infra.DriverSQLite, "file::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := config.Default()
	cfg.App.BaseURL = "https://app.custodia360.es"
	sender, err := NewSender(cfg.Mail, log.Discard())
	require.NoError(t, err)
	services, err := NewServices(ctx, db, &cfg, sender, log.Discard())
	require.NoError(t, err)

	srv := &Server{
		HTTP: HTTPConfig{
			Cron:   jobs.CronAuth{Header: cfg.Cron.Header},
			Logger: log.Discard(),
		},
		Services: services,
		DB:       db,
	}
	return srv, srv.Router()
}

func do(t *testing.T, h http.Handler, method, path string, body any, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	out := map[string]any{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestRouter(t *testing.T) {
	_, h := newTestServer(t)
	cron := map[string]string{"x-internal-cron": "1"}

	rec, out := do(t, h, http.MethodPost, "/api/entities", map[string]any{
		"name":         "AD Las Palmas",
		"contactEmail": "secretaria@adlp.es",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	entity := out["entity"].(map[string]any)
	entityID := entity["id"].(string)
	inviteURL := out["inviteUrl"].(string)
	assert.True(t, strings.HasPrefix(inviteURL, "https://app.custodia360.es/onboarding/"+entityID+"/"))

	t.Run("invite token is stable across verbs", func(t *testing.T) {
		rec, got := do(t, h, http.MethodGet, "/api/invite-token?entityId="+entityID, nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, got["ok"])
		assert.Equal(t, inviteURL, got["url"])

		rec, again := do(t, h, http.MethodPost, "/api/invite-token", map[string]any{"entityId": entityID}, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, got["token"], again["token"])

		rec, bad := do(t, h, http.MethodGet, "/api/invite-token?entityId=nope", nil, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, false, bad["ok"])
	})

	t.Run("compliance status and steps", func(t *testing.T) {
		rec, got := do(t, h, http.MethodGet, "/api/compliance/status?entityId="+entityID, nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		c := got["compliance"].(map[string]any)
		// the deadline is 30 days after creation, read back a moment later
		assert.Contains(t, []any{float64(29), float64(30)}, c["daysRemaining"])
		assert.Equal(t, false, c["hasPendingPostponedSteps"])

		rec, got = do(t, h, http.MethodPost, "/api/compliance/steps", map[string]any{
			"entityId":         entityID,
			"channelPostponed": true,
		}, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		c = got["compliance"].(map[string]any)
		assert.Equal(t, true, c["hasPendingPostponedSteps"])

		rec, _ = do(t, h, http.MethodGet, "/api/compliance/status?entityId="+uuid.NewString(), nil, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("message jobs replay", func(t *testing.T) {
		body := map[string]any{
			"entityId":       entityID,
			"templateSlug":   "billing-5m-reminder",
			"recipients":     []string{"pagos@adlp.es"},
			"context":        map[string]any{"period_end": "2026-06-01"},
			"idempotencyKey": "stripe-evt-1",
		}
		rec, first := do(t, h, http.MethodPost, "/api/message-jobs", body, nil)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		assert.Equal(t, float64(1), first["recipientsCount"])

		rec, second := do(t, h, http.MethodPost, "/api/message-jobs", body, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t,
			first["job"].(map[string]any)["id"],
			second["job"].(map[string]any)["id"])

		body["templateSlug"] = "welcome"
		rec, _ = do(t, h, http.MethodPost, "/api/message-jobs", body, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("jobs", func(t *testing.T) {
		rec, got := do(t, h, http.MethodPost, "/api/jobs/compliance-guard", nil, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "forbidden", got["error"])

		for _, job := range []string{"compliance-guard", "onboarding-guard", "billing-reminders", "mailer-dispatch"} {
			rec, got := do(t, h, http.MethodPost, "/api/jobs/"+job, nil, cron)
			require.Equal(t, http.StatusOK, rec.Code, job)
			assert.Equal(t, true, got["ok"], job)
			assert.Contains(t, got, "processed", job)
			assert.IsType(t, []any{}, got["notes"], job)
		}
	})

	t.Run("health and metrics", func(t *testing.T) {
		rec, got := do(t, h, http.MethodGet, "/healthz", nil, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, got["ok"])

		rec, _ = do(t, h, http.MethodGet, "/metrics", nil, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "custodia_http_requests_total")
	})
}

func TestRouterWithoutDatastore(t *testing.T) {
	srv := &Server{HTTP: HTTPConfig{Cron: jobs.CronAuth{Header: "x-internal-cron"}}}
	h := srv.Router()

	rec, got := do(t, h, http.MethodPost, "/api/jobs/mailer-dispatch", nil, map[string]string{"x-internal-cron": "1"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, map[string]any{"ok": false, "error": "missing datastore configuration"}, got)

	rec, got = do(t, h, http.MethodGet, "/api/invite-token?entityId="+uuid.NewString(), nil, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "missing datastore configuration", got["error"])

	rec, _ = do(t, h, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
