package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/session-hub/session-hub/internal/application/notifier"
	"github.com/session-hub/session-hub/internal/domain/assignment"
	assignmentMocks "github.com/session-hub/session-hub/internal/domain/assignment/mocks"
	"github.com/session-hub/session-hub/internal/domain/mechanic"
	"github.com/session-hub/session-hub/internal/domain/request"
	"github.com/session-hub/session-hub/internal/domain/session"
	"github.com/session-hub/session-hub/internal/infrastructure/memory"
	"github.com/session-hub/session-hub/internal/infrastructure/sse"
)

type fixture struct {
	store   *memory.Store
	service *Service
	hub     *sse.Hub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	hub := sse.NewHub()
	t.Cleanup(hub.Stop)
	logger := zerolog.Nop()
	notifierSvc := notifier.NewService(store.Notifications(), hub, logger)
	svc := NewService(store.Assignments(), store.Sessions(), store.Requests(), store.Mechanics(), store.Events(), notifierSvc, logger)
	return &fixture{store: store, service: svc, hub: hub}
}

func (f *fixture) seedPending(t *testing.T, customerID uuid.UUID, workshopID *uuid.UUID) (uuid.UUID, uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	sessionID := uuid.New()
	sess := &session.Session{
		SessionID:  sessionID,
		Type:       session.TypeVideo,
		Status:     session.StatusPending,
		CustomerID: customerID,
		WorkshopID: workshopID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	req := &request.Request{
		RequestID:   uuid.New(),
		CustomerID:  customerID,
		SessionID:   sessionID,
		SessionType: session.TypeVideo,
		Status:      request.StatusPending,
		RoutingType: request.RoutingBroadcast,
		CreatedAt:   now,
	}
	assign := &assignment.Assignment{
		AssignmentID: uuid.New(),
		SessionID:    sessionID,
		Status:       assignment.StatusQueued,
		OfferedAt:    now,
	}
	participant := &session.Participant{SessionID: sessionID, UserID: customerID, Role: session.RoleCustomer, JoinedAt: now}
	event := session.NewEvent(sessionID, session.EventCreated, "customer:"+customerID.String(), nil)
	require.NoError(t, f.store.CreateIntake(ctx, req, sess, assign, participant, event))
	return sessionID, assign.AssignmentID
}

func (f *fixture) seedMechanic(t *testing.T, tier mechanic.ServiceTier, workshopID *uuid.UUID) uuid.UUID {
	t.Helper()
	id := uuid.New()
	require.NoError(t, f.store.Mechanics().Create(context.Background(), &mechanic.Profile{
		MechanicID:        id,
		DisplayName:       "m-" + id.String()[:8],
		ServiceTier:       tier,
		WorkshopID:        workshopID,
		CanAcceptSessions: true,
	}))
	return id
}

func TestAccept_SingleWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := uuid.New()
	sessionID, assignmentID := f.seedPending(t, customer, nil)

	const racers = 16
	mechanics := make([]uuid.UUID, racers)
	for i := range mechanics {
		mechanics[i] = f.seedMechanic(t, mechanic.TierVirtualOnly, nil)
	}

	var wg sync.WaitGroup
	errs := make([]error, racers)
	start := make(chan struct{})
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.service.Accept(ctx, assignmentID, mechanics[i])
		}(i)
	}
	close(start)
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, assignment.ErrAlreadyResolved)
		}
	}
	assert.Equal(t, 1, winners, "exactly one mechanic must win the race")

	sess, err := f.store.Sessions().GetByID(ctx, sessionID)
	require.NoError(t, err)
	require.NotNil(t, sess.MechanicID)
	assert.Equal(t, session.StatusWaiting, sess.Status)

	a, err := f.store.Assignments().GetByID(ctx, assignmentID)
	require.NoError(t, err)
	assert.Equal(t, assignment.StatusAccepted, a.Status)
	assert.Equal(t, *sess.MechanicID, *a.MechanicID)

	req, err := f.store.Requests().GetBySessionID(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, request.StatusAccepted, req.Status)
	assert.Equal(t, *sess.MechanicID, *req.MechanicID)
}

func TestAccept_RepeatIsConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, assignmentID := f.seedPending(t, uuid.New(), nil)
	mech := f.seedMechanic(t, mechanic.TierVirtualOnly, nil)

	_, err := f.service.Accept(ctx, assignmentID, mech)
	require.NoError(t, err)

	_, err = f.service.Accept(ctx, assignmentID, mech)
	assert.ErrorIs(t, err, assignment.ErrAlreadyResolved)
}

func TestAccept_DirectOnlyTarget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := uuid.New()
	target := f.seedMechanic(t, mechanic.TierVirtualOnly, nil)
	intruder := f.seedMechanic(t, mechanic.TierVirtualOnly, nil)

	sessionID := uuid.New()
	now := time.Now().UTC()
	require.NoError(t, f.store.Sessions().Create(ctx, &session.Session{
		SessionID: sessionID, Type: session.TypeChat, Status: session.StatusPending,
		CustomerID: customer, CreatedAt: now, UpdatedAt: now,
	}))
	assignmentID := uuid.New()
	require.NoError(t, f.store.Assignments().Create(ctx, &assignment.Assignment{
		AssignmentID: assignmentID, SessionID: sessionID,
		MechanicID: &target, Status: assignment.StatusOffered, OfferedAt: now,
	}))

	_, err := f.service.Accept(ctx, assignmentID, intruder)
	assert.ErrorIs(t, err, assignment.ErrAlreadyResolved)

	sess, err := f.service.Accept(ctx, assignmentID, target)
	require.NoError(t, err)
	assert.Equal(t, target, *sess.MechanicID)
}

func TestAccept_MechanicNotApproved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, assignmentID := f.seedPending(t, uuid.New(), nil)

	mech := uuid.New()
	require.NoError(t, f.store.Mechanics().Create(ctx, &mechanic.Profile{
		MechanicID: mech, ServiceTier: mechanic.TierVirtualOnly, CanAcceptSessions: false,
	}))

	_, err := f.service.Accept(ctx, assignmentID, mech)
	assert.ErrorIs(t, err, ErrMechanicNotAllowed)
}

func TestAccept_ExpiresSiblings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sessionID, assignmentID := f.seedPending(t, uuid.New(), nil)
	mech := f.seedMechanic(t, mechanic.TierVirtualOnly, nil)

	sibling := uuid.New()
	require.NoError(t, f.store.Assignments().Create(ctx, &assignment.Assignment{
		AssignmentID: sibling, SessionID: sessionID,
		Status: assignment.StatusQueued, OfferedAt: time.Now().UTC(),
	}))

	_, err := f.service.Accept(ctx, assignmentID, mech)
	require.NoError(t, err)

	a, err := f.store.Assignments().GetByID(ctx, sibling)
	require.NoError(t, err)
	assert.Equal(t, assignment.StatusExpired, a.Status)
}

func TestQueue_FiltersByEligibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	workshop := uuid.New()

	f.seedPending(t, uuid.New(), nil)       // open to everyone
	f.seedPending(t, uuid.New(), &workshop) // workshop scoped

	t.Run("independent mechanic sees only unscoped", func(t *testing.T) {
		mech := f.seedMechanic(t, mechanic.TierVirtualOnly, nil)
		items, err := f.service.Queue(ctx, mech, 50)
		require.NoError(t, err)
		assert.Len(t, items, 1)
		assert.Nil(t, items[0].Session.WorkshopID)
	})

	t.Run("workshop mechanic sees both", func(t *testing.T) {
		mech := f.seedMechanic(t, mechanic.TierFullService, &workshop)
		items, err := f.service.Queue(ctx, mech, 50)
		require.NoError(t, err)
		assert.Len(t, items, 2)
	})

	t.Run("unapproved mechanic is rejected", func(t *testing.T) {
		mech := uuid.New()
		require.NoError(t, f.store.Mechanics().Create(ctx, &mechanic.Profile{
			MechanicID: mech, ServiceTier: mechanic.TierVirtualOnly, CanAcceptSessions: false,
		}))
		_, err := f.service.Queue(ctx, mech, 50)
		assert.ErrorIs(t, err, ErrMechanicNotAllowed)
	})
}

func TestAccept_LostStoreRaceHasNoSideEffects(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := memory.NewStore()
	hub := sse.NewHub()
	t.Cleanup(hub.Stop)
	logger := zerolog.Nop()
	notifierSvc := notifier.NewService(store.Notifications(), hub, logger)

	assignmentRepo := assignmentMocks.NewMockRepository(ctrl)
	svc := NewService(assignmentRepo, store.Sessions(), store.Requests(), store.Mechanics(), store.Events(), notifierSvc, logger)

	ctx := context.Background()
	mech := uuid.New()
	require.NoError(t, store.Mechanics().Create(ctx, &mechanic.Profile{
		MechanicID: mech, ServiceTier: mechanic.TierVirtualOnly, CanAcceptSessions: true,
	}))
	sessionID := uuid.New()
	now := time.Now().UTC()
	require.NoError(t, store.Sessions().Create(ctx, &session.Session{
		SessionID: sessionID, Type: session.TypeChat, Status: session.StatusPending,
		CustomerID: uuid.New(), CreatedAt: now, UpdatedAt: now,
	}))

	assignmentID := uuid.New()
	// The snapshot still looks open but the conditional update loses: the
	// service must report conflict and never touch siblings or the session.
	assignmentRepo.EXPECT().
		GetByID(gomock.Any(), assignmentID).
		Return(&assignment.Assignment{
			AssignmentID: assignmentID, SessionID: sessionID,
			Status: assignment.StatusQueued, OfferedAt: now,
		}, nil)
	assignmentRepo.EXPECT().
		Accept(gomock.Any(), assignmentID, mech, gomock.Any()).
		Return(false, nil)

	_, err := svc.Accept(ctx, assignmentID, mech)
	assert.ErrorIs(t, err, assignment.ErrAlreadyResolved)

	sess, err := store.Sessions().GetByID(ctx, sessionID)
	require.NoError(t, err)
	assert.Nil(t, sess.MechanicID)
	assert.Equal(t, session.StatusPending, sess.Status)
}
