package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransitionTo(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		allowed bool
	}{
		{"pending to waiting", StatusPending, StatusWaiting, true},
		{"pending to cancelled", StatusPending, StatusCancelled, true},
		{"pending to expired", StatusPending, StatusExpired, true},
		{"pending to live skips waiting", StatusPending, StatusLive, false},
		{"pending to completed", StatusPending, StatusCompleted, false},
		{"waiting to live", StatusWaiting, StatusLive, true},
		{"waiting to completed", StatusWaiting, StatusCompleted, true},
		{"waiting to cancelled", StatusWaiting, StatusCancelled, true},
		{"waiting back to pending", StatusWaiting, StatusPending, false},
		{"live to completed", StatusLive, StatusCompleted, true},
		{"live to error", StatusLive, StatusError, true},
		{"live back to waiting", StatusLive, StatusWaiting, false},
		{"completed is terminal", StatusCompleted, StatusCancelled, false},
		{"cancelled is terminal", StatusCancelled, StatusWaiting, false},
		{"expired is terminal", StatusExpired, StatusLive, false},
		{"error is terminal", StatusError, StatusCompleted, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Session{Status: tt.from}
			assert.Equal(t, tt.allowed, s.CanTransitionTo(tt.to))
		})
	}
}

func TestCanTransitionTo_SameStateIsIdempotent(t *testing.T) {
	for _, st := range []Status{StatusPending, StatusWaiting, StatusLive, StatusCompleted, StatusCancelled, StatusExpired, StatusError} {
		s := &Session{Status: st}
		assert.True(t, s.CanTransitionTo(st), "same-state transition for %s", st)
	}
}

func TestIsTerminal(t *testing.T) {
	terminal := []Status{StatusCompleted, StatusCancelled, StatusExpired, StatusError}
	for _, st := range terminal {
		assert.True(t, (&Session{Status: st}).IsTerminal(), "%s", st)
		assert.False(t, (&Session{Status: st}).IsActive(), "%s", st)
	}
	for _, st := range []Status{StatusPending, StatusWaiting, StatusLive} {
		assert.False(t, (&Session{Status: st}).IsTerminal(), "%s", st)
		assert.True(t, (&Session{Status: st}).IsActive(), "%s", st)
	}
}

func TestDurationFrom(t *testing.T) {
	now := time.Now().UTC()

	t.Run("uses started_at when present", func(t *testing.T) {
		started := now.Add(-45 * time.Minute)
		s := &Session{CreatedAt: now.Add(-2 * time.Hour), StartedAt: &started}
		assert.Equal(t, 45, s.DurationFrom(now))
	})

	t.Run("falls back to created_at", func(t *testing.T) {
		s := &Session{CreatedAt: now.Add(-30 * time.Minute)}
		assert.Equal(t, 30, s.DurationFrom(now))
	})

	t.Run("never negative", func(t *testing.T) {
		s := &Session{CreatedAt: now.Add(10 * time.Minute)}
		assert.Equal(t, 0, s.DurationFrom(now))
	})
}

func TestIsVirtualType(t *testing.T) {
	assert.True(t, IsVirtualType(TypeChat))
	assert.True(t, IsVirtualType(TypeVideo))
	assert.True(t, IsVirtualType(TypeDiagnostic))
	assert.False(t, IsVirtualType(TypeInPerson))
}

func TestIsValidType(t *testing.T) {
	assert.True(t, IsValidType(TypeChat))
	assert.False(t, IsValidType(Type("PHONE")))
	assert.False(t, IsValidType(Type("")))
}

func TestNewEvent(t *testing.T) {
	s := &Session{}
	require.NotNil(t, s)

	e := NewEvent(s.SessionID, EventCreated, "customer:abc", nil)
	require.NotNil(t, e)
	assert.Equal(t, EventCreated, e.Kind)
	assert.Equal(t, "customer:abc", e.Actor)
	assert.False(t, e.CreatedAt.IsZero())
}
