package mechanic

import (
	"time"

	"github.com/google/uuid"

	"github.com/session-hub/session-hub/internal/domain/session"
)

// ServiceTier describes what kinds of work a mechanic can take on.
type ServiceTier string

const (
	TierVirtualOnly ServiceTier = "VIRTUAL_ONLY"
	TierFullService ServiceTier = "FULL_SERVICE"
)

// Profile is a mechanic's capability record, keyed by account id. Eligibility
// decisions read only this struct so the broadcast filter stays a pure
// predicate.
type Profile struct {
	MechanicID        uuid.UUID   `json:"mechanicId"`
	DisplayName       string      `json:"displayName"`
	ServiceTier       ServiceTier `json:"serviceTier"`
	WorkshopID        *uuid.UUID  `json:"workshopId,omitempty"`
	CanAcceptSessions bool        `json:"canAcceptSessions"`
	CreatedAt         time.Time   `json:"createdAt"`
	UpdatedAt         time.Time   `json:"updatedAt"`
}

// Eligible reports whether the mechanic may see and accept a session of the
// given type and workshop scope.
//
// Rules: a virtual-only mechanic never serves in-person work; a
// workshop-scoped session is visible only to mechanics of that workshop;
// unscoped sessions are visible to every mechanic whose tier matches,
// workshop-affiliated or not.
func Eligible(p *Profile, sessionType session.Type, workshopID *uuid.UUID) bool {
	if p == nil || !p.CanAcceptSessions {
		return false
	}
	if p.ServiceTier == TierVirtualOnly && !session.IsVirtualType(sessionType) {
		return false
	}
	if workshopID != nil {
		if p.WorkshopID == nil || *p.WorkshopID != *workshopID {
			return false
		}
	}
	return true
}
