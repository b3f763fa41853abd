package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestDaysUntil(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		deadline time.Time
		want     int
	}{
		{"exactly now", now, 0},
		{"one second ahead", now.Add(time.Second), 0},
		{"one second behind", now.Add(-time.Second), -1},
		{"seven days", now.Add(7 * 24 * time.Hour), 7},
		{"seven days minus a minute", now.Add(7*24*time.Hour - time.Minute), 6},
		{"one day late", now.Add(-24 * time.Hour), -1},
		{"a day and a half late", now.Add(-36 * time.Hour), -2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DaysUntil(tt.deadline, now))
		})
	}
}

func TestEvaluate(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	rec := NewComplianceRecord(uuid.New(), now.Add(-31*24*time.Hour))

	t.Run("nothing postponed", func(t *testing.T) {
		ev := Evaluate(rec, now)
		assert.Equal(t, -1, ev.DaysRemaining)
		assert.True(t, ev.IsExpired)
		assert.False(t, ev.HasPendingPostponedSteps)
	})

	t.Run("postponed and not done", func(t *testing.T) {
		r := rec
		r.ChannelPostponed = true
		assert.True(t, Evaluate(r, now).HasPendingPostponedSteps)
	})

	t.Run("postponed but done", func(t *testing.T) {
		r := rec
		r.PenalesPostponed = true
		r.PenalesDone = true
		assert.False(t, Evaluate(r, now).HasPendingPostponedSteps)
	})

	t.Run("deadline equal to now is not expired", func(t *testing.T) {
		r := rec
		r.DeadlineAt = now
		ev := Evaluate(r, now)
		assert.False(t, ev.IsExpired)
		assert.Equal(t, 0, ev.DaysRemaining)
	})
}

func TestNewComplianceRecord(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r := NewComplianceRecord(uuid.New(), start)
	assert.Equal(t, start.AddDate(0, 0, 30), r.DeadlineAt)
	assert.False(t, r.Blocked)
}

func TestParseTemplateSlug(t *testing.T) {
	slug, err := ParseTemplateSlug("onboarding-delay")
	assert.NoError(t, err)
	assert.Equal(t, TemplateOnboardingDelay, slug)

	_, err = ParseTemplateSlug("welcome")
	assert.Error(t, err)
}

func TestReminderKey(t *testing.T) {
	id := uuid.MustParse("0b6c2a52-2f4b-4c55-8d52-7f2d3f9b5b10")
	deadline := time.Date(2026, 4, 9, 23, 30, 0, 0, time.UTC)
	assert.Equal(t,
		"compliance-blocked:0b6c2a52-2f4b-4c55-8d52-7f2d3f9b5b10:2026-04-09:7d",
		ReminderKey(TemplateComplianceBlocked, id, deadline, 7))
}
