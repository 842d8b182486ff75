package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/session-hub/session-hub/internal/application/notifier"
	"github.com/session-hub/session-hub/internal/domain/assignment"
	"github.com/session-hub/session-hub/internal/domain/mechanic"
	"github.com/session-hub/session-hub/internal/domain/notification"
	"github.com/session-hub/session-hub/internal/domain/request"
	"github.com/session-hub/session-hub/internal/domain/session"
)

// Service fans pending sessions out to eligible mechanics and resolves
// concurrent accept attempts to exactly one winner.
type Service struct {
	assignmentRepo assignment.Repository
	sessionRepo    session.Repository
	requestRepo    request.Repository
	mechanicRepo   mechanic.Repository
	eventRepo      session.EventRepository
	notifier       *notifier.Service
	logger         zerolog.Logger
}

// NewService creates a dispatch service.
func NewService(
	assignmentRepo assignment.Repository,
	sessionRepo session.Repository,
	requestRepo request.Repository,
	mechanicRepo mechanic.Repository,
	eventRepo session.EventRepository,
	notifier *notifier.Service,
	logger zerolog.Logger,
) *Service {
	return &Service{
		assignmentRepo: assignmentRepo,
		sessionRepo:    sessionRepo,
		requestRepo:    requestRepo,
		mechanicRepo:   mechanicRepo,
		eventRepo:      eventRepo,
		notifier:       notifier,
		logger:         logger.With().Str("service", "dispatch").Logger(),
	}
}

// QueueItem pairs an open assignment with its session snapshot.
type QueueItem struct {
	Assignment *assignment.Assignment `json:"assignment"`
	Session    *session.Session       `json:"session"`
}

// ErrMechanicNotAllowed is returned when the mechanic may not take sessions.
var ErrMechanicNotAllowed = fmt.Errorf("mechanic is not approved to accept sessions")

// Queue lists open assignments visible to this mechanic, filtered by the
// eligibility predicate over the mechanic's capability profile.
func (s *Service) Queue(ctx context.Context, mechanicID uuid.UUID, limit int) ([]*QueueItem, error) {
	profile, err := s.mechanicRepo.GetByID(ctx, mechanicID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, fmt.Errorf("mechanic not found: %s", mechanicID)
	}
	if !profile.CanAcceptSessions {
		return nil, ErrMechanicNotAllowed
	}

	open, err := s.assignmentRepo.ListOpenForMechanic(ctx, mechanicID, limit)
	if err != nil {
		return nil, err
	}

	items := make([]*QueueItem, 0, len(open))
	for _, a := range open {
		sess, err := s.sessionRepo.GetByID(ctx, a.SessionID)
		if err != nil {
			return nil, err
		}
		if sess == nil || sess.Status != session.StatusPending {
			continue
		}
		if !mechanic.Eligible(profile, sess.Type, sess.WorkshopID) {
			continue
		}
		items = append(items, &QueueItem{Assignment: a, Session: sess})
	}
	return items, nil
}

// Accept binds the mechanic to the assignment's session. The single
// conditional update in the assignment store is the race tie-break: exactly
// one concurrent caller sees it succeed, every other caller gets
// assignment.ErrAlreadyResolved and must have produced no side effects.
func (s *Service) Accept(ctx context.Context, assignmentID, mechanicID uuid.UUID) (*session.Session, error) {
	profile, err := s.mechanicRepo.GetByID(ctx, mechanicID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, fmt.Errorf("mechanic not found: %s", mechanicID)
	}
	if !profile.CanAcceptSessions {
		return nil, ErrMechanicNotAllowed
	}

	a, err := s.assignmentRepo.GetByID(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("assignment not found: %s", assignmentID)
	}
	if !a.AcceptableBy(mechanicID) {
		return nil, assignment.ErrAlreadyResolved
	}

	sess, err := s.sessionRepo.GetByID(ctx, a.SessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, fmt.Errorf("session not found: %s", a.SessionID)
	}
	if sess.IsTerminal() {
		return nil, assignment.ErrAlreadyResolved
	}
	if !mechanic.Eligible(profile, sess.Type, sess.WorkshopID) {
		return nil, fmt.Errorf("mechanic not eligible for this session")
	}

	now := time.Now().UTC()
	won, err := s.assignmentRepo.Accept(ctx, assignmentID, mechanicID, now)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, assignment.ErrAlreadyResolved
	}

	// Winner path. Sibling offers must be invalidated, not just ignored.
	if _, err := s.assignmentRepo.ExpireSiblings(ctx, sess.SessionID, assignmentID); err != nil {
		s.logger.Warn().Err(err).Str("session_id", sess.SessionID.String()).Msg("sibling assignment expiry failed")
	}

	bound, err := s.sessionRepo.BindMechanic(ctx, sess.SessionID, mechanicID)
	if err != nil {
		return nil, err
	}
	if !bound {
		// The session moved to a terminal state between the accept and the
		// bind; report the accepted offer as resolved rather than half-bind.
		return nil, assignment.ErrAlreadyResolved
	}

	// Advance pending -> waiting. A session already past pending stays put;
	// the CAS never downgrades live or completed.
	if _, err := s.sessionRepo.CompareAndSwapStatus(ctx, sess.SessionID, session.StatusPending, session.StatusWaiting); err != nil {
		return nil, err
	}

	if req, err := s.requestRepo.GetBySessionID(ctx, sess.SessionID); err != nil {
		s.logger.Warn().Err(err).Str("session_id", sess.SessionID.String()).Msg("request lookup failed after accept")
	} else if req != nil {
		if ok, err := s.requestRepo.MarkAccepted(ctx, req.RequestID, mechanicID, now); err != nil {
			s.logger.Warn().Err(err).Str("request_id", req.RequestID.String()).Msg("request accept mark failed")
		} else if !ok {
			s.logger.Warn().Str("request_id", req.RequestID.String()).Str("status", string(req.Status)).Msg("request no longer pending at accept")
		}
	}

	if err := s.eventRepo.Append(ctx, session.NewEvent(sess.SessionID, session.EventAssigned, "mechanic:"+mechanicID.String(), nil)); err != nil {
		s.logger.Warn().Err(err).Str("session_id", sess.SessionID.String()).Msg("assigned event append failed")
	}
	s.notifier.Notify(ctx, sess.CustomerID, notification.KindSessionAssigned, map[string]any{
		"sessionId":  sess.SessionID,
		"mechanicId": mechanicID,
	})

	s.logger.Info().
		Str("assignment_id", assignmentID.String()).
		Str("session_id", sess.SessionID.String()).
		Str("mechanic_id", mechanicID.String()).
		Msg("assignment accepted")

	return s.sessionRepo.GetByID(ctx, sess.SessionID)
}
