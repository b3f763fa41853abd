package service

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	server "github.com/ramonsune/custodia-360-sub010/internal/server/domain"
	"github.com/ramonsune/custodia-360-sub010/internal/server/repository"
	"github.com/ramonsune/custodia-360-sub010/internal/shared/infra"
	"github.com/ramonsune/custodia-360-sub010/internal/shared/log"
)

var testStart = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fixture struct {
	db            *bun.DB
	clock         *clock
	entities      *repository.BunEntityRepository
	compliance    *repository.BunComplianceRepository
	invites       *repository.BunInviteTokenRepository
	subscriptions *repository.BunSubscriptionRepository
	jobs          *repository.BunMessageJobRepository

	inviteSvc     *InviteService
	messageSvc    *MessageService
	complianceSvc *ComplianceService
	guard         *GuardService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := infra.OpenDB(ctx, infra.DriverSQLite, "file::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{db: db, clock: &clock{now: testStart}}
	f.entities, err = repository.NewBunEntityRepository(ctx, db)
	require.NoError(t, err)
	f.compliance, err = repository.NewBunComplianceRepository(ctx, db)
	require.NoError(t, err)
	f.invites, err = repository.NewBunInviteTokenRepository(ctx, db)
	require.NoError(t, err)
	f.subscriptions, err = repository.NewBunSubscriptionRepository(ctx, db)
	require.NoError(t, err)
	f.jobs, err = repository.NewBunMessageJobRepository(ctx, db)
	require.NoError(t, err)

	f.inviteSvc = &InviteService{
		Invites: f.invites,
		BaseURL: "https://app.custodia360.es",
		Window:  30 * 24 * time.Hour,
		Now:     f.clock.Now,
	}
	f.messageSvc = &MessageService{
		Jobs: f.jobs,
		Now:  f.clock.Now,
	}
	f.complianceSvc = &ComplianceService{
		Entities:   f.entities,
		Compliance: f.compliance,
		Invites:    f.inviteSvc,
		TXRunner:   infra.NewBunTransactionRunner(db),
		Now:        f.clock.Now,
	}
	f.guard = &GuardService{
		Compliance:    f.compliance,
		Invites:       f.invites,
		Subscriptions: f.subscriptions,
		Messages:      f.messageSvc,
		BaseURL:       "https://app.custodia360.es",
		Logger:        log.Discard(),
		Now:           f.clock.Now,
	}
	return f
}

func (f *fixture) dispatcher(sender Sender) *Dispatcher {
	return &Dispatcher{
		Jobs:       f.jobs,
		Entities:   f.entities,
		Sender:     sender,
		Logger:     log.Discard(),
		BatchSize:  10,
		StuckAfter: 15 * time.Minute,
		Now:        f.clock.Now,
	}
}

// onboard creates an entity at the current clock time with the given
// postponed steps.
func (f *fixture) onboard(t *testing.T, channelPostponed, penalesPostponed bool) Onboarding {
	t.Helper()
	ctx := context.Background()
	out, err := f.complianceSvc.Onboard(ctx, OnboardRequest{
		Name:         "Club Deportivo Norte",
		ContactEmail: "admin@cdnorte.es",
	})
	require.NoError(t, err)
	if channelPostponed || penalesPostponed {
		_, err = f.complianceSvc.UpdateSteps(ctx, out.Entity.ID, server.ComplianceSteps{
			ChannelPostponed: channelPostponed,
			PenalesPostponed: penalesPostponed,
		})
		require.NoError(t, err)
	}
	return out
}

func (f *fixture) jobsFor(t *testing.T, id uuid.UUID) []server.MessageJob {
	t.Helper()
	jobs, err := f.jobs.ListByEntityID(context.Background(), id)
	require.NoError(t, err)
	return jobs
}

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(ctx context.Context, e Email) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

// fixedReader always yields the same bytes.
func fixedReader(b byte) *bytes.Reader {
	return bytes.NewReader(bytes.Repeat([]byte{b}, inviteTokenBytes))
}
