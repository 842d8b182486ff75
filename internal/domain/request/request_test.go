package request

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestCanTransitionTo(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		allowed bool
	}{
		{"pending to accepted", StatusPending, StatusAccepted, true},
		{"pending to cancelled", StatusPending, StatusCancelled, true},
		{"pending to expired", StatusPending, StatusExpired, true},
		{"pending to completed skips accepted", StatusPending, StatusCompleted, false},
		{"accepted to completed", StatusAccepted, StatusCompleted, true},
		{"accepted to cancelled", StatusAccepted, StatusCancelled, true},
		{"accepted back to pending", StatusAccepted, StatusPending, false},
		{"accepted to expired", StatusAccepted, StatusExpired, false},
		{"cancelled is terminal", StatusCancelled, StatusAccepted, false},
		{"expired is terminal", StatusExpired, StatusPending, false},
		{"completed is terminal", StatusCompleted, StatusCancelled, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Request{Status: tt.from}
			assert.Equal(t, tt.allowed, r.CanTransitionTo(tt.to))
		})
	}
}

func TestCanTransitionTo_SameState(t *testing.T) {
	for _, st := range []Status{StatusPending, StatusAccepted, StatusCancelled, StatusExpired, StatusCompleted} {
		r := &Request{Status: st}
		assert.True(t, r.CanTransitionTo(st), "%s", st)
	}
}

func TestDangling(t *testing.T) {
	mech := uuid.New()

	assert.True(t, (&Request{Status: StatusPending}).Dangling())
	assert.False(t, (&Request{Status: StatusPending, MechanicID: &mech}).Dangling())
	assert.False(t, (&Request{Status: StatusAccepted, MechanicID: &mech}).Dangling())
	assert.False(t, (&Request{Status: StatusCancelled}).Dangling())
}

func TestIsTerminal(t *testing.T) {
	for _, st := range []Status{StatusCancelled, StatusExpired, StatusCompleted} {
		assert.True(t, (&Request{Status: st}).IsTerminal(), "%s", st)
	}
	for _, st := range []Status{StatusPending, StatusAccepted} {
		assert.False(t, (&Request{Status: st}).IsTerminal(), "%s", st)
	}
}
