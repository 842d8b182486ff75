package notifier

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/session-hub/session-hub/internal/domain/notification"
)

// Service emits realtime events and persisted notification rows. Everything
// here is fire-and-forget: a delivery failure is logged and never propagated
// into the state transition that triggered it.
type Service struct {
	repo   notification.Repository
	hub    notification.SSEHub
	logger zerolog.Logger
}

// NewService creates a notifier service.
func NewService(repo notification.Repository, hub notification.SSEHub, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		hub:    hub,
		logger: logger.With().Str("service", "notifier").Logger(),
	}
}

// Notify stores a notification row for the user and pushes it over SSE.
func (s *Service) Notify(ctx context.Context, userID uuid.UUID, kind notification.Kind, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn().Err(err).Str("kind", string(kind)).Msg("notification payload not serializable")
		return
	}

	n := notification.New(userID, kind, data)
	if err := s.repo.Create(ctx, n); err != nil {
		s.logger.Warn().Err(err).Str("kind", string(kind)).Str("user_id", userID.String()).Msg("notification row insert failed")
	}

	s.hub.BroadcastToUser(userID, notification.NewSSEMessage(string(kind), data))
}

// Publish pushes an event to every connected client. Used for queue refresh
// hints to mechanics.
func (s *Service) Publish(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn().Err(err).Str("event", event).Msg("publish payload not serializable")
		return
	}
	s.hub.BroadcastToAll(notification.NewSSEMessage(event, data))
}

// List returns notifications for a user.
func (s *Service) List(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit, offset int) ([]*notification.Notification, error) {
	return s.repo.ListByUser(ctx, userID, unreadOnly, limit, offset)
}

// MarkRead marks one notification as read.
func (s *Service) MarkRead(ctx context.Context, notificationID uuid.UUID) error {
	return s.repo.MarkRead(ctx, notificationID)
}
