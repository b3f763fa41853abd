package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	server "github.com/ramonsune/custodia-360-sub010/internal/server/domain"
	shared "github.com/ramonsune/custodia-360-sub010/internal/shared/domain"
	"github.com/ramonsune/custodia-360-sub010/internal/shared/infra"
)

var testNow = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	db, err := infra.OpenDB(context.Background(), infra.DriverSQLite, "file::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBunComplianceRepository(t *testing.T) {
	ctx := context.Background()
	repo, err := NewBunComplianceRepository(ctx, newTestDB(t))
	require.NoError(t, err)

	rec := server.NewComplianceRecord(uuid.New(), testNow)
	rec.ChannelPostponed = true
	require.NoError(t, repo.Save(ctx, rec))

	t.Run("duplicate entity", func(t *testing.T) {
		err := repo.Save(ctx, rec)
		assert.ErrorIs(t, err, shared.ErrConflict)
	})

	t.Run("get", func(t *testing.T) {
		got, err := repo.GetByEntityID(ctx, rec.EntityID)
		require.NoError(t, err)
		assert.True(t, got.ChannelPostponed)
		assert.True(t, got.DeadlineAt.Equal(rec.DeadlineAt))
		assert.Nil(t, got.WarningSentAt)

		_, err = repo.GetByEntityID(ctx, uuid.New())
		assert.ErrorIs(t, err, shared.ErrNotExist)
	})

	t.Run("block only once", func(t *testing.T) {
		other := server.NewComplianceRecord(uuid.New(), testNow)
		require.NoError(t, repo.Save(ctx, other))

		changed, err := repo.MarkBlocked(ctx, other.EntityID)
		require.NoError(t, err)
		assert.True(t, changed)

		changed, err = repo.MarkBlocked(ctx, other.EntityID)
		require.NoError(t, err)
		assert.False(t, changed)

		recs, err := repo.ListUnblocked(ctx)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, rec.EntityID, recs[0].EntityID)
	})

	t.Run("warning and steps", func(t *testing.T) {
		require.NoError(t, repo.MarkWarningSent(ctx, rec.EntityID, testNow))
		got, err := repo.GetByEntityID(ctx, rec.EntityID)
		require.NoError(t, err)
		require.NotNil(t, got.WarningSentAt)
		assert.True(t, got.WarningSentAt.Equal(testNow))

		got.ChannelDone = true
		got.WarningSentAt = nil
		require.NoError(t, repo.UpdateSteps(ctx, got))
		got, err = repo.GetByEntityID(ctx, rec.EntityID)
		require.NoError(t, err)
		assert.True(t, got.ChannelDone)
		assert.Nil(t, got.WarningSentAt)

		missing := server.NewComplianceRecord(uuid.New(), testNow)
		assert.ErrorIs(t, repo.UpdateSteps(ctx, missing), shared.ErrNotExist)
	})
}

func TestBunInviteTokenRepository(t *testing.T) {
	ctx := context.Background()
	repo, err := NewBunInviteTokenRepository(ctx, newTestDB(t))
	require.NoError(t, err)

	deadline := testNow.Add(72 * time.Hour)
	inv := server.InviteToken{
		EntityID:   uuid.New(),
		Token:      "tok-1",
		Active:     true,
		Status:     server.InvitePending,
		DeadlineAt: &deadline,
		CreatedAt:  testNow,
	}
	require.NoError(t, repo.Insert(ctx, inv))

	t.Run("second token for entity conflicts", func(t *testing.T) {
		dup := inv
		dup.Token = "tok-2"
		assert.ErrorIs(t, repo.Insert(ctx, dup), shared.ErrConflict)
	})

	t.Run("inactive tokens are not returned", func(t *testing.T) {
		inactive := server.InviteToken{
			EntityID:  uuid.New(),
			Token:     "tok-3",
			Status:    server.InviteCompleted,
			CreatedAt: testNow,
		}
		require.NoError(t, repo.Insert(ctx, inactive))
		_, err := repo.GetActiveByEntityID(ctx, inactive.EntityID)
		assert.ErrorIs(t, err, shared.ErrNotExist)
	})

	t.Run("pending with deadline", func(t *testing.T) {
		noDeadline := server.InviteToken{
			EntityID:  uuid.New(),
			Token:     "tok-4",
			Active:    true,
			Status:    server.InvitePending,
			CreatedAt: testNow,
		}
		require.NoError(t, repo.Insert(ctx, noDeadline))

		pending, err := repo.ListPendingWithDeadline(ctx)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, inv.EntityID, pending[0].EntityID)
		assert.True(t, pending[0].DeadlineAt.Equal(deadline))
	})

	t.Run("expire", func(t *testing.T) {
		require.NoError(t, repo.UpdateStatus(ctx, inv.EntityID, server.InviteExpired))
		got, err := repo.GetActiveByEntityID(ctx, inv.EntityID)
		require.NoError(t, err)
		assert.Equal(t, server.InviteExpired, got.Status)
		assert.Equal(t, "tok-1", got.Token)

		assert.ErrorIs(t, repo.UpdateStatus(ctx, inv.EntityID, "lost"), shared.ErrInvalid)
	})
}

func TestBunMessageJobRepository(t *testing.T) {
	ctx := context.Background()
	repo, err := NewBunMessageJobRepository(ctx, newTestDB(t))
	require.NoError(t, err)

	entityID := uuid.New()
	newJob := func(at time.Time) server.MessageJob {
		job := server.NewMessageJob(entityID, server.TemplateOnboardingDelay, map[string]any{"days": 3}, at)
		return job
	}

	t.Run("insert with recipients", func(t *testing.T) {
		job := newJob(testNow)
		job.IdempotencyKey = "key-1"
		require.NoError(t, repo.Insert(ctx, job, []string{"a@example.org", "b@example.org"}))

		got, err := repo.GetByIdempotencyKey(ctx, "key-1")
		require.NoError(t, err)
		assert.Equal(t, job.ID, got.ID)
		assert.Equal(t, server.JobQueued, got.Status)
		assert.EqualValues(t, 3, got.Context["days"])

		emails, err := repo.ListRecipients(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"a@example.org", "b@example.org"}, emails)
	})

	t.Run("idempotency key conflict rolls back recipients", func(t *testing.T) {
		job := newJob(testNow)
		job.IdempotencyKey = "key-1"
		err := repo.Insert(ctx, job, []string{"c@example.org"})
		assert.ErrorIs(t, err, shared.ErrConflict)

		emails, err := repo.ListRecipients(ctx, job.ID)
		require.NoError(t, err)
		assert.Empty(t, emails)
	})

	t.Run("jobs without key do not conflict", func(t *testing.T) {
		require.NoError(t, repo.Insert(ctx, newJob(testNow), nil))
		require.NoError(t, repo.Insert(ctx, newJob(testNow), nil))
	})

	t.Run("due boundary", func(t *testing.T) {
		otherRepo, err := NewBunMessageJobRepository(ctx, newTestDB(t))
		require.NoError(t, err)

		atNow := newJob(testNow)
		later := newJob(testNow.Add(time.Second))
		require.NoError(t, otherRepo.Insert(ctx, later, nil))
		require.NoError(t, otherRepo.Insert(ctx, atNow, nil))

		due, err := otherRepo.ListDue(ctx, testNow, 50)
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, atNow.ID, due[0].ID)
	})

	t.Run("claim and finish", func(t *testing.T) {
		job := newJob(testNow)
		require.NoError(t, repo.Insert(ctx, job, nil))

		ok, err := repo.Claim(ctx, job.ID, testNow)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.Claim(ctx, job.ID, testNow)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, repo.MarkFailed(ctx, job.ID, testNow, "smtp down"))
		got, err := repo.GetByID(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, server.JobFailed, got.Status)
		assert.Equal(t, "smtp down", got.LastError)
		require.NotNil(t, got.ProcessedAt)
	})

	t.Run("requeue stuck", func(t *testing.T) {
		stuck := newJob(testNow)
		fresh := newJob(testNow)
		require.NoError(t, repo.Insert(ctx, stuck, nil))
		require.NoError(t, repo.Insert(ctx, fresh, nil))

		_, err := repo.Claim(ctx, stuck.ID, testNow.Add(-time.Hour))
		require.NoError(t, err)
		_, err = repo.Claim(ctx, fresh.ID, testNow)
		require.NoError(t, err)

		n, err := repo.RequeueStuck(ctx, testNow.Add(-15*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		got, err := repo.GetByID(ctx, stuck.ID)
		require.NoError(t, err)
		assert.Equal(t, server.JobQueued, got.Status)
		assert.Nil(t, got.ClaimedAt)

		got, err = repo.GetByID(ctx, fresh.ID)
		require.NoError(t, err)
		assert.Equal(t, server.JobProcessing, got.Status)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := repo.GetByID(ctx, uuid.New())
		assert.ErrorIs(t, err, shared.ErrNotExist)
	})
}

func TestBunSubscriptionRepository(t *testing.T) {
	ctx := context.Background()
	repo, err := NewBunSubscriptionRepository(ctx, newTestDB(t))
	require.NoError(t, err)

	sub := server.Subscription{
		ID:               uuid.New(),
		EntityID:         uuid.New(),
		Status:           server.SubscriptionActive,
		CurrentPeriodEnd: testNow.AddDate(0, 1, 0),
	}
	require.NoError(t, repo.Upsert(ctx, sub))

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, sub.EntityID, active[0].EntityID)

	sub.Status = server.SubscriptionCanceled
	require.NoError(t, repo.Upsert(ctx, sub))

	active, err = repo.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestBunEntityRepository(t *testing.T) {
	ctx := context.Background()
	repo, err := NewBunEntityRepository(ctx, newTestDB(t))
	require.NoError(t, err)

	e := server.Entity{ID: uuid.New(), Name: "Club Deportivo Norte", ContactEmail: "delegado@cdnorte.es", CreatedAt: testNow}
	require.NoError(t, repo.Save(ctx, e))

	got, err := repo.GetByID(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.Name, got.Name)
	assert.Equal(t, e.ContactEmail, got.ContactEmail)

	assert.ErrorIs(t, repo.Save(ctx, e), shared.ErrConflict)
}
