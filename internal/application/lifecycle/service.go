package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/session-hub/session-hub/internal/application/notifier"
	"github.com/session-hub/session-hub/internal/domain/account"
	"github.com/session-hub/session-hub/internal/domain/notification"
	"github.com/session-hub/session-hub/internal/domain/request"
	"github.com/session-hub/session-hub/internal/domain/session"
	"github.com/session-hub/session-hub/internal/infrastructure/rooms"
)

var (
	// ErrSessionNotFound is returned when the session id resolves to nothing.
	ErrSessionNotFound = errors.New("session not found")
	// ErrNotCancelable is returned when the caller may not cancel the session
	// in its current state.
	ErrNotCancelable = errors.New("session cannot be cancelled in its current state")
)

// Service drives sessions through waiting, live and the terminal states.
// Every transition goes through a conditional store update and leaves an
// audit event behind.
type Service struct {
	sessionRepo     session.Repository
	participantRepo session.ParticipantRepository
	eventRepo       session.EventRepository
	requestRepo     request.Repository
	rooms           rooms.Provider
	notifier        *notifier.Service
	logger          zerolog.Logger
}

// NewService creates a lifecycle service.
func NewService(
	sessionRepo session.Repository,
	participantRepo session.ParticipantRepository,
	eventRepo session.EventRepository,
	requestRepo request.Repository,
	roomProvider rooms.Provider,
	notifier *notifier.Service,
	logger zerolog.Logger,
) *Service {
	return &Service{
		sessionRepo:     sessionRepo,
		participantRepo: participantRepo,
		eventRepo:       eventRepo,
		requestRepo:     requestRepo,
		rooms:           roomProvider,
		notifier:        notifier,
		logger:          logger.With().Str("service", "lifecycle").Logger(),
	}
}

// JoinResult is what a participant needs to enter the session.
type JoinResult struct {
	Session    *session.Session  `json:"session"`
	Credential *rooms.Credential `json:"credential,omitempty"`
}

// Join records the caller's presence and, on the first join of a waiting
// session, moves it live. Joining an already live session hands back fresh
// room credentials; joining a terminal session returns the snapshot with no
// credential so late clients can render the outcome.
func (s *Service) Join(ctx context.Context, sessionID uuid.UUID, caller account.Principal) (*JoinResult, error) {
	sess, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}

	role, ok := s.participantRole(sess, caller)
	if !ok {
		return nil, session.ErrNotParticipant
	}

	if sess.IsTerminal() {
		return &JoinResult{Session: sess}, nil
	}
	if sess.Status == session.StatusPending {
		return nil, fmt.Errorf("session has no mechanic yet: %w", session.ErrInvalidTransition)
	}

	now := time.Now().UTC()
	if err := s.participantRepo.Upsert(ctx, &session.Participant{
		SessionID: sessionID,
		UserID:    caller.ID,
		Role:      role,
		JoinedAt:  now,
	}); err != nil {
		return nil, err
	}
	if err := s.eventRepo.Append(ctx, session.NewEvent(sessionID, session.EventJoined, caller.ActorString(), nil)); err != nil {
		s.logger.Warn().Err(err).Str("session_id", sessionID.String()).Msg("joined event append failed")
	}

	// First join flips waiting -> live. Losing this swap just means someone
	// else beat us to it, which is fine.
	started, err := s.sessionRepo.MarkLive(ctx, sessionID, now)
	if err != nil {
		return nil, err
	}
	if started {
		if err := s.eventRepo.Append(ctx, session.NewEvent(sessionID, session.EventStarted, caller.ActorString(), nil)); err != nil {
			s.logger.Warn().Err(err).Str("session_id", sessionID.String()).Msg("started event append failed")
		}
		s.notifyCounterpart(ctx, sess, caller, notification.KindSessionStarted)
	}

	cred, err := s.rooms.RoomCredential(sessionID, caller.ID)
	if err != nil {
		return nil, err
	}
	if sess.RoomID == nil {
		if err := s.sessionRepo.SetRoomID(ctx, sessionID, cred.RoomID); err != nil {
			s.logger.Warn().Err(err).Str("session_id", sessionID.String()).Msg("room id save failed")
		}
	}

	sess, err = s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &JoinResult{Session: sess, Credential: cred}, nil
}

// End completes the session. Either participant may end it from waiting or
// live; ending an already terminal session returns the snapshot unchanged.
func (s *Service) End(ctx context.Context, sessionID uuid.UUID, caller account.Principal) (*session.Session, error) {
	sess, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	if _, ok := s.participantRole(sess, caller); !ok && caller.Role != account.RoleAdmin {
		return nil, session.ErrNotParticipant
	}
	if sess.IsTerminal() {
		return sess, nil
	}
	if sess.Status == session.StatusPending {
		return nil, fmt.Errorf("pending session must be cancelled, not ended: %w", session.ErrInvalidTransition)
	}

	now := time.Now().UTC()
	ended, err := s.sessionRepo.MarkEnded(ctx, sessionID,
		[]session.Status{session.StatusWaiting, session.StatusLive},
		session.StatusCompleted, now, sess.DurationFrom(now))
	if err != nil {
		return nil, err
	}
	if ended {
		s.completeRequest(ctx, sessionID)
		if err := s.eventRepo.Append(ctx, session.NewEvent(sessionID, session.EventEnded, caller.ActorString(), nil)); err != nil {
			s.logger.Warn().Err(err).Str("session_id", sessionID.String()).Msg("ended event append failed")
		}
		s.notifyCounterpart(ctx, sess, caller, notification.KindSessionEnded)
		s.logger.Info().Str("session_id", sessionID.String()).Str("actor", caller.ActorString()).Msg("session ended")
	}
	return s.sessionRepo.GetByID(ctx, sessionID)
}

// Cancel tears a session down before it completes. The customer may cancel
// their own session while no mechanic is bound; admins may cancel any
// non-terminal session. Cancelling a terminal session is a no-op.
func (s *Service) Cancel(ctx context.Context, sessionID uuid.UUID, caller account.Principal) (*session.Session, error) {
	sess, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	if sess.IsTerminal() {
		return sess, nil
	}

	switch {
	case caller.Role == account.RoleAdmin:
	case caller.ID == sess.CustomerID && !sess.Bound():
	default:
		return nil, ErrNotCancelable
	}

	now := time.Now().UTC()
	done, err := s.sessionRepo.MarkEnded(ctx, sessionID,
		[]session.Status{session.StatusPending, session.StatusWaiting, session.StatusLive},
		session.StatusCancelled, now, sess.DurationFrom(now))
	if err != nil {
		return nil, err
	}
	if done {
		s.cancelRequest(ctx, sessionID)
		if err := s.eventRepo.Append(ctx, session.NewEvent(sessionID, session.EventCancelled, caller.ActorString(), nil)); err != nil {
			s.logger.Warn().Err(err).Str("session_id", sessionID.String()).Msg("cancelled event append failed")
		}
		s.notifyCounterpart(ctx, sess, caller, notification.KindSessionCancelled)
		s.logger.Info().Str("session_id", sessionID.String()).Str("actor", caller.ActorString()).Msg("session cancelled")
	}
	return s.sessionRepo.GetByID(ctx, sessionID)
}

// ForceClose moves a stuck session to expired or error. Admin only; the
// handler enforces the role, the service enforces the target status.
func (s *Service) ForceClose(ctx context.Context, sessionID uuid.UUID, target session.Status, caller account.Principal) (*session.Session, error) {
	if target != session.StatusExpired && target != session.StatusError {
		return nil, fmt.Errorf("force close target must be EXPIRED or ERROR: %w", session.ErrInvalidTransition)
	}
	sess, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	if sess.IsTerminal() {
		return sess, nil
	}

	now := time.Now().UTC()
	done, err := s.sessionRepo.MarkEnded(ctx, sessionID,
		[]session.Status{session.StatusPending, session.StatusWaiting, session.StatusLive},
		target, now, sess.DurationFrom(now))
	if err != nil {
		return nil, err
	}
	if done {
		kind := session.EventExpired
		notifyKind := notification.KindRequestExpired
		if target == session.StatusError {
			kind = session.EventErrored
			notifyKind = notification.KindSessionErrored
		}
		s.cancelRequest(ctx, sessionID)
		if err := s.eventRepo.Append(ctx, session.NewEvent(sessionID, kind, caller.ActorString(), nil)); err != nil {
			s.logger.Warn().Err(err).Str("session_id", sessionID.String()).Msg("force close event append failed")
		}
		s.notifier.Notify(ctx, sess.CustomerID, notifyKind, map[string]any{"sessionId": sessionID})
		if sess.MechanicID != nil {
			s.notifier.Notify(ctx, *sess.MechanicID, notifyKind, map[string]any{"sessionId": sessionID})
		}
		s.logger.Info().Str("session_id", sessionID.String()).Str("target", string(target)).Msg("session force closed")
	}
	return s.sessionRepo.GetByID(ctx, sessionID)
}

// Get returns the session with its participants and audit trail.
func (s *Service) Get(ctx context.Context, sessionID uuid.UUID) (*session.Session, []*session.Participant, error) {
	sess, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if sess == nil {
		return nil, nil, ErrSessionNotFound
	}
	participants, err := s.participantRepo.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	return sess, participants, nil
}

// Events returns the session's audit log.
func (s *Service) Events(ctx context.Context, sessionID uuid.UUID, limit, offset int) ([]*session.Event, error) {
	return s.eventRepo.ListBySession(ctx, sessionID, limit, offset)
}

func (s *Service) participantRole(sess *session.Session, caller account.Principal) (session.ParticipantRole, bool) {
	if caller.ID == sess.CustomerID {
		return session.RoleCustomer, true
	}
	if sess.MechanicID != nil && caller.ID == *sess.MechanicID {
		return session.RoleMechanic, true
	}
	return "", false
}

// notifyCounterpart tells the other side of the session what just happened.
func (s *Service) notifyCounterpart(ctx context.Context, sess *session.Session, caller account.Principal, kind notification.Kind) {
	payload := map[string]any{"sessionId": sess.SessionID}
	if caller.ID != sess.CustomerID {
		s.notifier.Notify(ctx, sess.CustomerID, kind, payload)
	}
	if sess.MechanicID != nil && caller.ID != *sess.MechanicID {
		s.notifier.Notify(ctx, *sess.MechanicID, kind, payload)
	}
}

func (s *Service) completeRequest(ctx context.Context, sessionID uuid.UUID) {
	req, err := s.requestRepo.GetBySessionID(ctx, sessionID)
	if err != nil || req == nil {
		return
	}
	if _, err := s.requestRepo.CompareAndSwapStatus(ctx, req.RequestID, request.StatusAccepted, request.StatusCompleted); err != nil {
		s.logger.Warn().Err(err).Str("request_id", req.RequestID.String()).Msg("request completion failed")
	}
}

func (s *Service) cancelRequest(ctx context.Context, sessionID uuid.UUID) {
	req, err := s.requestRepo.GetBySessionID(ctx, sessionID)
	if err != nil || req == nil {
		return
	}
	for _, from := range []request.Status{request.StatusPending, request.StatusAccepted} {
		if done, err := s.requestRepo.CompareAndSwapStatus(ctx, req.RequestID, from, request.StatusCancelled); err != nil {
			s.logger.Warn().Err(err).Str("request_id", req.RequestID.String()).Msg("request cancel failed")
			return
		} else if done {
			return
		}
	}
}
