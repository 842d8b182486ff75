package request

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/session-hub/session-hub/internal/domain/session"
)

// Status represents session request status.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusAccepted  Status = "ACCEPTED"
	StatusCancelled Status = "CANCELLED"
	StatusExpired   Status = "EXPIRED"
	StatusCompleted Status = "COMPLETED"
)

// RoutingType selects how a request reaches mechanics.
type RoutingType string

const (
	RoutingBroadcast RoutingType = "BROADCAST"
	RoutingDirect    RoutingType = "DIRECT"
)

var (
	ErrInvalidTransition    = errors.New("invalid request status transition")
	ErrActiveSessionExists  = errors.New("customer already has an active session")
	ErrRequestNotCancelable = errors.New("request is no longer pending")
)

// Request is the customer-facing record of a service ask. It stays a parallel
// bookkeeping row next to the session it materialized into.
type Request struct {
	ID              int64           `json:"id"`
	RequestID       uuid.UUID       `json:"requestId"`
	CustomerID      uuid.UUID       `json:"customerId"`
	SessionID       uuid.UUID       `json:"sessionId"`
	ParentSessionID *uuid.UUID      `json:"parentSessionId,omitempty"`
	SessionType     session.Type    `json:"sessionType"`
	PlanCode        string          `json:"planCode"`
	Status          Status          `json:"status"`
	RoutingType     RoutingType     `json:"routingType"`
	MechanicID      *uuid.UUID      `json:"mechanicId,omitempty"`
	IsUrgent        bool            `json:"isUrgent"`
	VehicleRef      *string         `json:"vehicleRef,omitempty"`
	Concern         string          `json:"concern,omitempty"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	AcceptedAt      *time.Time      `json:"acceptedAt,omitempty"`
	CancelledAt     *time.Time      `json:"cancelledAt,omitempty"`
}

// CanTransitionTo validates a request status transition. Same-state moves are
// idempotent no-ops.
func (r *Request) CanTransitionTo(target Status) bool {
	if r.Status == target {
		return true
	}
	transitions := map[Status][]Status{
		StatusPending:   {StatusAccepted, StatusCancelled, StatusExpired},
		StatusAccepted:  {StatusCompleted, StatusCancelled},
		StatusCancelled: {},
		StatusExpired:   {},
		StatusCompleted: {},
	}
	allowed := transitions[r.Status]
	for _, st := range allowed {
		if st == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is permitted.
func (r *Request) IsTerminal() bool {
	switch r.Status {
	case StatusCancelled, StatusExpired, StatusCompleted:
		return true
	}
	return false
}

// Dangling reports whether the request is pending with no mechanic bound.
// At most one dangling request may exist per customer.
func (r *Request) Dangling() bool {
	return r.Status == StatusPending && r.MechanicID == nil
}
