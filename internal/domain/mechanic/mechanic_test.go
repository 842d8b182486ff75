package mechanic

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/session-hub/session-hub/internal/domain/session"
)

func TestEligible(t *testing.T) {
	workshopA := uuid.New()
	workshopB := uuid.New()

	tests := []struct {
		name        string
		tier        ServiceTier
		canAccept   bool
		mechShop    *uuid.UUID
		sessionType session.Type
		sessionShop *uuid.UUID
		want        bool
	}{
		{"virtual only takes chat", TierVirtualOnly, true, nil, session.TypeChat, nil, true},
		{"virtual only takes video", TierVirtualOnly, true, nil, session.TypeVideo, nil, true},
		{"virtual only takes diagnostic", TierVirtualOnly, true, nil, session.TypeDiagnostic, nil, true},
		{"virtual only rejects in-person", TierVirtualOnly, true, nil, session.TypeInPerson, nil, false},
		{"full service takes in-person", TierFullService, true, nil, session.TypeInPerson, nil, true},
		{"not approved sees nothing", TierFullService, false, nil, session.TypeChat, nil, false},
		{"workshop session hidden from unaffiliated", TierFullService, true, nil, session.TypeChat, &workshopA, false},
		{"workshop session hidden from other workshop", TierFullService, true, &workshopB, session.TypeChat, &workshopA, false},
		{"workshop session visible to own workshop", TierFullService, true, &workshopA, session.TypeChat, &workshopA, true},
		{"unscoped session visible to workshop mechanic", TierFullService, true, &workshopA, session.TypeChat, nil, true},
		{"unscoped session visible to independent", TierFullService, true, nil, session.TypeChat, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Profile{
				MechanicID:        uuid.New(),
				ServiceTier:       tt.tier,
				WorkshopID:        tt.mechShop,
				CanAcceptSessions: tt.canAccept,
			}
			assert.Equal(t, tt.want, Eligible(p, tt.sessionType, tt.sessionShop))
		})
	}
}

func TestEligible_NilProfile(t *testing.T) {
	assert.False(t, Eligible(nil, session.TypeChat, nil))
}
