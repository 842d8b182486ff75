package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/session-hub/session-hub/internal/application/notifier"
	"github.com/session-hub/session-hub/internal/domain/account"
	"github.com/session-hub/session-hub/internal/domain/request"
	"github.com/session-hub/session-hub/internal/domain/session"
	"github.com/session-hub/session-hub/internal/infrastructure/memory"
	"github.com/session-hub/session-hub/internal/infrastructure/rooms"
	"github.com/session-hub/session-hub/internal/infrastructure/sse"
)

type fixture struct {
	store    *memory.Store
	service  *Service
	customer account.Principal
	mech     account.Principal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	hub := sse.NewHub()
	t.Cleanup(hub.Stop)
	logger := zerolog.Nop()
	notifierSvc := notifier.NewService(store.Notifications(), hub, logger)
	provider := rooms.NewHMACProvider([]byte("test-signing-key"), time.Hour)
	svc := NewService(store.Sessions(), store.Participants(), store.Events(), store.Requests(), provider, notifierSvc, logger)
	return &fixture{
		store:    store,
		service:  svc,
		customer: account.Principal{ID: uuid.New(), Role: account.RoleCustomer},
		mech:     account.Principal{ID: uuid.New(), Role: account.RoleMechanic},
	}
}

func (f *fixture) seedSession(t *testing.T, status session.Status, bound bool) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	sessionID := uuid.New()
	sess := &session.Session{
		SessionID:  sessionID,
		Type:       session.TypeVideo,
		Status:     status,
		CustomerID: f.customer.ID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if bound {
		m := f.mech.ID
		sess.MechanicID = &m
	}
	require.NoError(t, f.store.Sessions().Create(ctx, sess))
	require.NoError(t, f.store.Requests().Create(ctx, &request.Request{
		RequestID:   uuid.New(),
		CustomerID:  f.customer.ID,
		SessionID:   sessionID,
		SessionType: session.TypeVideo,
		Status:      request.StatusAccepted,
		CreatedAt:   now,
	}))
	return sessionID
}

func TestJoin_FirstJoinGoesLive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sessionID := f.seedSession(t, session.StatusWaiting, true)

	result, err := f.service.Join(ctx, sessionID, f.mech)
	require.NoError(t, err)
	require.NotNil(t, result.Credential)
	assert.Equal(t, session.StatusLive, result.Session.Status)
	assert.NotNil(t, result.Session.StartedAt)
	assert.NotNil(t, result.Session.RoomID)
}

func TestJoin_SecondJoinKeepsStartedAt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sessionID := f.seedSession(t, session.StatusWaiting, true)

	first, err := f.service.Join(ctx, sessionID, f.mech)
	require.NoError(t, err)
	started := *first.Session.StartedAt

	second, err := f.service.Join(ctx, sessionID, f.customer)
	require.NoError(t, err)
	assert.Equal(t, session.StatusLive, second.Session.Status)
	assert.Equal(t, started, *second.Session.StartedAt)
	assert.NotNil(t, second.Credential)

	participants, err := f.store.Participants().ListBySession(ctx, sessionID)
	require.NoError(t, err)
	assert.Len(t, participants, 2)
}

func TestJoin_OutsiderRejected(t *testing.T) {
	f := newFixture(t)
	sessionID := f.seedSession(t, session.StatusWaiting, true)

	outsider := account.Principal{ID: uuid.New(), Role: account.RoleMechanic}
	_, err := f.service.Join(context.Background(), sessionID, outsider)
	assert.ErrorIs(t, err, session.ErrNotParticipant)
}

func TestJoin_PendingRejected(t *testing.T) {
	f := newFixture(t)
	sessionID := f.seedSession(t, session.StatusPending, false)

	_, err := f.service.Join(context.Background(), sessionID, f.customer)
	assert.ErrorIs(t, err, session.ErrInvalidTransition)
}

func TestJoin_TerminalReturnsSnapshot(t *testing.T) {
	f := newFixture(t)
	sessionID := f.seedSession(t, session.StatusCompleted, true)

	result, err := f.service.Join(context.Background(), sessionID, f.customer)
	require.NoError(t, err)
	assert.Nil(t, result.Credential)
	assert.Equal(t, session.StatusCompleted, result.Session.Status)
}

func TestEnd_CompletesAndStampsDuration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sessionID := f.seedSession(t, session.StatusWaiting, true)

	_, err := f.service.Join(ctx, sessionID, f.mech)
	require.NoError(t, err)

	sess, err := f.service.End(ctx, sessionID, f.customer)
	require.NoError(t, err)
	assert.Equal(t, session.StatusCompleted, sess.Status)
	assert.NotNil(t, sess.EndedAt)
	require.NotNil(t, sess.DurationMinutes)
	assert.GreaterOrEqual(t, *sess.DurationMinutes, 0)

	req, err := f.store.Requests().GetBySessionID(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, request.StatusCompleted, req.Status)
}

func TestEnd_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sessionID := f.seedSession(t, session.StatusWaiting, true)

	first, err := f.service.End(ctx, sessionID, f.mech)
	require.NoError(t, err)
	require.Equal(t, session.StatusCompleted, first.Status)

	second, err := f.service.End(ctx, sessionID, f.mech)
	require.NoError(t, err)
	assert.Equal(t, session.StatusCompleted, second.Status)
	assert.Equal(t, first.EndedAt, second.EndedAt)
}

func TestCancel_CustomerOnlyWhileUnbound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("unbound pending cancels", func(t *testing.T) {
		sessionID := f.seedSession(t, session.StatusPending, false)
		sess, err := f.service.Cancel(ctx, sessionID, f.customer)
		require.NoError(t, err)
		assert.Equal(t, session.StatusCancelled, sess.Status)
	})

	t.Run("bound session refuses customer cancel", func(t *testing.T) {
		sessionID := f.seedSession(t, session.StatusWaiting, true)
		_, err := f.service.Cancel(ctx, sessionID, f.customer)
		assert.ErrorIs(t, err, ErrNotCancelable)
	})

	t.Run("admin cancels bound session", func(t *testing.T) {
		sessionID := f.seedSession(t, session.StatusWaiting, true)
		admin := account.Principal{ID: uuid.New(), Role: account.RoleAdmin}
		sess, err := f.service.Cancel(ctx, sessionID, admin)
		require.NoError(t, err)
		assert.Equal(t, session.StatusCancelled, sess.Status)
	})
}

func TestForceClose(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := account.Principal{ID: uuid.New(), Role: account.RoleAdmin}

	t.Run("to error", func(t *testing.T) {
		sessionID := f.seedSession(t, session.StatusLive, true)
		sess, err := f.service.ForceClose(ctx, sessionID, session.StatusError, admin)
		require.NoError(t, err)
		assert.Equal(t, session.StatusError, sess.Status)
	})

	t.Run("rejects non-terminal target", func(t *testing.T) {
		sessionID := f.seedSession(t, session.StatusLive, true)
		_, err := f.service.ForceClose(ctx, sessionID, session.StatusWaiting, admin)
		assert.ErrorIs(t, err, session.ErrInvalidTransition)
	})
}
