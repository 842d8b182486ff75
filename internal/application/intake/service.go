package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/session-hub/session-hub/internal/application/notifier"
	"github.com/session-hub/session-hub/internal/domain/assignment"
	"github.com/session-hub/session-hub/internal/domain/notification"
	"github.com/session-hub/session-hub/internal/domain/request"
	"github.com/session-hub/session-hub/internal/domain/session"
)

// Store creates the intake row set atomically: request, session, assignment,
// customer participant and creation event all land in one transaction.
type Store interface {
	CreateIntake(ctx context.Context, req *request.Request, sess *session.Session, assign *assignment.Assignment, participant *session.Participant, event *session.Event) error
}

// Service is the request store: it owns request creation and cancellation
// and enforces the one-dangling-request-per-customer invariant.
type Service struct {
	store       Store
	requestRepo request.Repository
	sessionRepo session.Repository
	notifier    *notifier.Service
	logger      zerolog.Logger
}

// NewService creates an intake service.
func NewService(store Store, requestRepo request.Repository, sessionRepo session.Repository, notifier *notifier.Service, logger zerolog.Logger) *Service {
	return &Service{
		store:       store,
		requestRepo: requestRepo,
		sessionRepo: sessionRepo,
		notifier:    notifier,
		logger:      logger.With().Str("service", "intake").Logger(),
	}
}

// CreateRequestInput carries intake submission fields.
type CreateRequestInput struct {
	CustomerID      uuid.UUID
	SessionType     session.Type
	PlanCode        string
	VehicleRef      *string
	Concern         string
	Metadata        json.RawMessage
	IsUrgent        bool
	WorkshopID      *uuid.UUID
	TargetMechanic  *uuid.UUID
	ParentSessionID *uuid.UUID
}

// CreateResult is returned from intake creation.
type CreateResult struct {
	RequestID uuid.UUID `json:"requestId"`
	SessionID uuid.UUID `json:"sessionId"`
}

// CreateRequest creates a pending request plus its session and broadcast
// assignment. A customer already bound into an active session is rejected;
// a dangling pending request is cancelled first, best-effort.
func (s *Service) CreateRequest(ctx context.Context, in CreateRequestInput) (*CreateResult, error) {
	if in.CustomerID == uuid.Nil {
		return nil, fmt.Errorf("customer_id is required")
	}
	if !session.IsValidType(in.SessionType) {
		return nil, fmt.Errorf("unknown session type: %s", in.SessionType)
	}
	if in.PlanCode == "" {
		return nil, fmt.Errorf("plan_code is required")
	}
	if len(in.Metadata) > 0 {
		var raw json.RawMessage
		if err := json.Unmarshal(in.Metadata, &raw); err != nil {
			return nil, fmt.Errorf("metadata must be valid JSON")
		}
	}

	active, err := s.sessionRepo.GetActiveByCustomer(ctx, in.CustomerID)
	if err != nil {
		return nil, err
	}
	if active != nil && active.Bound() {
		return nil, request.ErrActiveSessionExists
	}

	now := time.Now().UTC()

	// Best-effort reclamation of the previous dangling intake. A failure
	// here is logged, not surfaced: the partial unique index on pending
	// unbound requests is the hard backstop.
	if n, err := s.requestRepo.CancelDangling(ctx, in.CustomerID, now); err != nil {
		s.logger.Warn().Err(err).Str("customer_id", in.CustomerID.String()).Msg("dangling request cancel failed")
	} else if n > 0 {
		s.logger.Info().Int("cancelled", n).Str("customer_id", in.CustomerID.String()).Msg("dangling requests cancelled")
	}
	if active != nil && !active.Bound() {
		if _, err := s.sessionRepo.CompareAndSwapStatus(ctx, active.SessionID, session.StatusPending, session.StatusCancelled); err != nil {
			s.logger.Warn().Err(err).Str("session_id", active.SessionID.String()).Msg("stale pending session cancel failed")
		}
	}

	routing := request.RoutingBroadcast
	if in.TargetMechanic != nil {
		routing = request.RoutingDirect
	}

	sess := &session.Session{
		SessionID:  uuid.New(),
		Type:       in.SessionType,
		Status:     session.StatusPending,
		CustomerID: in.CustomerID,
		PlanCode:   in.PlanCode,
		WorkshopID: in.WorkshopID,
		Metadata:   in.Metadata,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	req := &request.Request{
		RequestID:       uuid.New(),
		CustomerID:      in.CustomerID,
		SessionID:       sess.SessionID,
		ParentSessionID: in.ParentSessionID,
		SessionType:     in.SessionType,
		PlanCode:        in.PlanCode,
		Status:          request.StatusPending,
		RoutingType:     routing,
		IsUrgent:        in.IsUrgent,
		VehicleRef:      in.VehicleRef,
		Concern:         in.Concern,
		Metadata:        in.Metadata,
		CreatedAt:       now,
	}
	assign := &assignment.Assignment{
		AssignmentID: uuid.New(),
		SessionID:    sess.SessionID,
		MechanicID:   in.TargetMechanic,
		Status:       assignment.StatusQueued,
		OfferedAt:    now,
	}
	participant := &session.Participant{
		SessionID: sess.SessionID,
		UserID:    in.CustomerID,
		Role:      session.RoleCustomer,
		JoinedAt:  now,
	}
	event := session.NewEvent(sess.SessionID, session.EventCreated, "customer:"+in.CustomerID.String(), nil)

	if err := s.store.CreateIntake(ctx, req, sess, assign, participant, event); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("request_id", req.RequestID.String()).
		Str("session_id", sess.SessionID.String()).
		Str("routing", string(routing)).
		Msg("request created")

	// Realtime nudge is best-effort; the queued assignment row is already
	// visible to eligible mechanics.
	s.notifier.Publish("request.created", map[string]any{
		"sessionId":   sess.SessionID,
		"sessionType": sess.Type,
		"urgent":      in.IsUrgent,
	})
	s.notifier.Notify(ctx, in.CustomerID, notification.KindRequestCreated, map[string]any{
		"requestId": req.RequestID,
		"sessionId": sess.SessionID,
	})

	return &CreateResult{RequestID: req.RequestID, SessionID: sess.SessionID}, nil
}

// CreateBoundSession is the payment-capture entry point: checkout settled,
// materialize a session for the paid plan. Payment verification happened
// upstream; this path only records that the plan was paid.
func (s *Service) CreateBoundSession(ctx context.Context, customerID uuid.UUID, planCode string, sessionType session.Type) (*CreateResult, error) {
	meta, _ := json.Marshal(map[string]string{"payment": "captured"})
	return s.CreateRequest(ctx, CreateRequestInput{
		CustomerID:  customerID,
		SessionType: sessionType,
		PlanCode:    planCode,
		Metadata:    meta,
	})
}

// CancelRequest cancels a pending request. Cancelling a terminal request is
// an idempotent no-op returning the current state.
func (s *Service) CancelRequest(ctx context.Context, requestID uuid.UUID, actor string) (*request.Request, error) {
	req, err := s.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, fmt.Errorf("request not found: %s", requestID)
	}
	if req.IsTerminal() {
		return req, nil
	}
	if req.Status != request.StatusPending {
		return nil, request.ErrRequestNotCancelable
	}

	swapped, err := s.requestRepo.CompareAndSwapStatus(ctx, requestID, request.StatusPending, request.StatusCancelled)
	if err != nil {
		return nil, err
	}
	if swapped {
		if _, err := s.sessionRepo.CompareAndSwapStatus(ctx, req.SessionID, session.StatusPending, session.StatusCancelled); err != nil {
			s.logger.Warn().Err(err).Str("session_id", req.SessionID.String()).Msg("paired session cancel failed")
		}
		s.notifier.Notify(ctx, req.CustomerID, notification.KindRequestCancelled, map[string]any{
			"requestId": requestID,
		})
		s.logger.Info().Str("request_id", requestID.String()).Str("actor", actor).Msg("request cancelled")
	}

	return s.requestRepo.GetByID(ctx, requestID)
}

// GetRequest retrieves a request by id.
func (s *Service) GetRequest(ctx context.Context, requestID uuid.UUID) (*request.Request, error) {
	return s.requestRepo.GetByID(ctx, requestID)
}

// ListCustomerRequests lists a customer's requests, newest first.
func (s *Service) ListCustomerRequests(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]*request.Request, error) {
	return s.requestRepo.ListByCustomer(ctx, customerID, limit, offset)
}
