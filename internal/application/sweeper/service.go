package sweeper

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/session-hub/session-hub/internal/application/notifier"
	"github.com/session-hub/session-hub/internal/config"
	"github.com/session-hub/session-hub/internal/domain/assignment"
	"github.com/session-hub/session-hub/internal/domain/notification"
	"github.com/session-hub/session-hub/internal/domain/request"
	"github.com/session-hub/session-hub/internal/domain/session"
	"github.com/session-hub/session-hub/internal/domain/token"
)

const sweepActor = "system:sweeper"

// Report summarizes one sweep pass. All counts are rows actually moved;
// a second pass over the same data reports zeros everywhere.
type Report struct {
	RequestsExpired      int `json:"requestsExpired"`
	SessionsUnattended   int `json:"sessionsUnattended"`
	SessionsExpired      int `json:"sessionsExpired"`
	SessionsCancelled    int `json:"sessionsCancelled"`
	SessionsErrored      int `json:"sessionsErrored"`
	AssignmentsExpired   int `json:"assignmentsExpired"`
	TokensDeleted        int `json:"tokensDeleted"`
	DurationMilliseconds int `json:"durationMilliseconds"`
}

// Service is the periodic reaper for stale requests, sessions, assignments
// and tokens. Every action is a bulk conditional update keyed on status and
// age, so overlapping or repeated runs converge instead of double-firing.
type Service struct {
	sessionRepo    session.Repository
	requestRepo    request.Repository
	assignmentRepo assignment.Repository
	eventRepo      session.EventRepository
	tokenRepo      token.Repository
	notifier       *notifier.Service
	thresholds     config.SweepThresholds
	logger         zerolog.Logger
}

// NewService creates a sweeper.
func NewService(
	sessionRepo session.Repository,
	requestRepo request.Repository,
	assignmentRepo assignment.Repository,
	eventRepo session.EventRepository,
	tokenRepo token.Repository,
	notifier *notifier.Service,
	thresholds config.SweepThresholds,
	logger zerolog.Logger,
) *Service {
	return &Service{
		sessionRepo:    sessionRepo,
		requestRepo:    requestRepo,
		assignmentRepo: assignmentRepo,
		eventRepo:      eventRepo,
		tokenRepo:      tokenRepo,
		notifier:       notifier,
		thresholds:     thresholds,
		logger:         logger.With().Str("service", "sweeper").Logger(),
	}
}

// Sweep runs one full pass. Each stage is independent; a failing stage is
// logged and the pass continues, since the next run will pick the rows up
// again.
func (s *Service) Sweep(ctx context.Context) (*Report, error) {
	started := time.Now()
	now := started.UTC()
	report := &Report{}

	// Stale pending requests expire first, and their paired sessions leave
	// the queue in the same pass. An expired request must not keep an
	// acceptable session behind.
	var orphanedByRequest []uuid.UUID
	if ids, err := s.requestRepo.ExpireStalePending(ctx, now.Add(-s.thresholds.RequestPendingTTL)); err != nil {
		s.logger.Error().Err(err).Msg("request expiry stage failed")
	} else {
		report.RequestsExpired = len(ids)
		for _, id := range ids {
			s.notifyRequestOwner(ctx, id, notification.KindRequestExpired)
			req, err := s.requestRepo.GetByID(ctx, id)
			if err != nil || req == nil {
				continue
			}
			ok, err := s.sessionRepo.MarkEnded(ctx, req.SessionID, []session.Status{session.StatusPending}, session.StatusCancelled, now, 0)
			if err != nil {
				s.logger.Error().Err(err).Str("session_id", req.SessionID.String()).Msg("paired session cancel failed")
				continue
			}
			if ok {
				orphanedByRequest = append(orphanedByRequest, req.SessionID)
			}
		}
		report.SessionsCancelled += len(orphanedByRequest)
		s.recordAll(ctx, orphanedByRequest, session.EventCancelled)
	}

	// Unbound pending sessions get flagged for manual attention well before
	// they expire.
	if ids, err := s.sessionRepo.FlagUnattended(ctx, now.Add(-s.thresholds.UnattendedAfter)); err != nil {
		s.logger.Error().Err(err).Msg("unattended flag stage failed")
	} else {
		report.SessionsUnattended = len(ids)
		s.recordAll(ctx, ids, session.EventUnattended)
		for _, id := range ids {
			s.notifySessionCustomer(ctx, id, notification.KindUnattended)
		}
	}

	expired, err := s.sessionRepo.ExpireStalePending(ctx, now.Add(-s.thresholds.PendingExpireTTL))
	if err != nil {
		s.logger.Error().Err(err).Msg("pending expiry stage failed")
	} else {
		report.SessionsExpired = len(expired)
		s.recordAll(ctx, expired, session.EventExpired)
		for _, id := range expired {
			s.notifySessionCustomer(ctx, id, notification.KindRequestExpired)
		}
	}

	cancelled, err := s.sessionRepo.CancelStaleWaiting(ctx, now.Add(-s.thresholds.WaitingCancelTTL))
	if err != nil {
		s.logger.Error().Err(err).Msg("waiting cancel stage failed")
	} else {
		report.SessionsCancelled += len(cancelled)
		s.recordAll(ctx, cancelled, session.EventCancelled)
		for _, id := range cancelled {
			s.cancelAcceptedRequest(ctx, id)
			s.notifySessionCustomer(ctx, id, notification.KindSessionCancelled)
		}
	}

	errored, err := s.sessionRepo.OrphanStaleLive(ctx, now.Add(-s.thresholds.LiveCeiling))
	if err != nil {
		s.logger.Error().Err(err).Msg("live ceiling stage failed")
	} else {
		report.SessionsErrored = len(errored)
		s.recordAll(ctx, errored, session.EventErrored)
		for _, id := range errored {
			s.cancelAcceptedRequest(ctx, id)
			s.notifySessionCustomer(ctx, id, notification.KindSessionErrored)
		}
	}

	// Open assignments pointing at swept sessions must not stay acceptable.
	swept := append(append(append(orphanedByRequest, expired...), cancelled...), errored...)
	if len(swept) > 0 {
		n, err := s.assignmentRepo.ExpireForSessions(ctx, swept)
		if err != nil {
			s.logger.Error().Err(err).Msg("assignment expiry stage failed")
		} else {
			report.AssignmentsExpired = n
		}
	}

	if n, err := s.tokenRepo.DeleteExpired(ctx); err != nil {
		s.logger.Error().Err(err).Msg("token cleanup stage failed")
	} else {
		report.TokensDeleted = n
	}

	report.DurationMilliseconds = int(time.Since(started).Milliseconds())
	s.logger.Info().
		Int("requests_expired", report.RequestsExpired).
		Int("sessions_unattended", report.SessionsUnattended).
		Int("sessions_expired", report.SessionsExpired).
		Int("sessions_cancelled", report.SessionsCancelled).
		Int("sessions_errored", report.SessionsErrored).
		Int("assignments_expired", report.AssignmentsExpired).
		Int("tokens_deleted", report.TokensDeleted).
		Int("duration_ms", report.DurationMilliseconds).
		Msg("sweep pass finished")

	return report, nil
}

func (s *Service) recordAll(ctx context.Context, ids []uuid.UUID, kind session.EventKind) {
	for _, id := range ids {
		if err := s.eventRepo.Append(ctx, session.NewEvent(id, kind, sweepActor, nil)); err != nil {
			s.logger.Warn().Err(err).Str("session_id", id.String()).Msg("sweep event append failed")
		}
	}
}

// cancelAcceptedRequest closes the bookkeeping row of a session the sweep
// just terminated. An accepted request with a dead session has no remaining
// transition path of its own.
func (s *Service) cancelAcceptedRequest(ctx context.Context, sessionID uuid.UUID) {
	req, err := s.requestRepo.GetBySessionID(ctx, sessionID)
	if err != nil || req == nil {
		return
	}
	if _, err := s.requestRepo.CompareAndSwapStatus(ctx, req.RequestID, request.StatusAccepted, request.StatusCancelled); err != nil {
		s.logger.Warn().Err(err).Str("request_id", req.RequestID.String()).Msg("accepted request cancel failed")
	}
}

func (s *Service) notifySessionCustomer(ctx context.Context, sessionID uuid.UUID, kind notification.Kind) {
	sess, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil || sess == nil {
		return
	}
	payload := map[string]any{"sessionId": sessionID}
	s.notifier.Notify(ctx, sess.CustomerID, kind, payload)
	if sess.MechanicID != nil {
		s.notifier.Notify(ctx, *sess.MechanicID, kind, payload)
	}
}

func (s *Service) notifyRequestOwner(ctx context.Context, requestID uuid.UUID, kind notification.Kind) {
	req, err := s.requestRepo.GetByID(ctx, requestID)
	if err != nil || req == nil {
		return
	}
	s.notifier.Notify(ctx, req.CustomerID, kind, map[string]any{"requestId": requestID})
}
