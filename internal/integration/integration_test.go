package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpapi "github.com/session-hub/session-hub/internal/api/http"
	"github.com/session-hub/session-hub/internal/application/auth"
	"github.com/session-hub/session-hub/internal/application/dispatch"
	"github.com/session-hub/session-hub/internal/application/intake"
	"github.com/session-hub/session-hub/internal/application/lifecycle"
	"github.com/session-hub/session-hub/internal/application/notifier"
	"github.com/session-hub/session-hub/internal/application/sweeper"
	"github.com/session-hub/session-hub/internal/config"
	"github.com/session-hub/session-hub/internal/infrastructure/memory"
	"github.com/session-hub/session-hub/internal/infrastructure/rooms"
	"github.com/session-hub/session-hub/internal/infrastructure/sse"
)

const sweepSecret = "test-sweep-secret"

type env struct {
	store  *memory.Store
	server *httptest.Server
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := memory.NewStore()
	hub := sse.NewHub()
	t.Cleanup(hub.Stop)
	logger := zerolog.Nop()

	notifierSvc := notifier.NewService(store.Notifications(), hub, logger)
	authSvc := auth.NewService(store.Accounts(), store.Tokens(), store.Mechanics(), time.Hour, logger)
	intakeSvc := intake.NewService(store, store.Requests(), store.Sessions(), notifierSvc, logger)
	dispatchSvc := dispatch.NewService(store.Assignments(), store.Sessions(), store.Requests(), store.Mechanics(), store.Events(), notifierSvc, logger)
	provider := rooms.NewHMACProvider([]byte("test-room-key"), time.Hour)
	lifecycleSvc := lifecycle.NewService(store.Sessions(), store.Participants(), store.Events(), store.Requests(), provider, notifierSvc, logger)
	sweeperSvc := sweeper.NewService(store.Sessions(), store.Requests(), store.Assignments(), store.Events(), store.Tokens(), notifierSvc, config.SweepThresholds{
		RequestPendingTTL: 15 * time.Minute,
		UnattendedAfter:   5 * time.Minute,
		PendingExpireTTL:  2 * time.Hour,
		WaitingCancelTTL:  time.Hour,
		LiveCeiling:       2 * time.Hour,
	}, logger)

	apiServer := httpapi.NewServer(authSvc, intakeSvc, dispatchSvc, lifecycleSvc, sweeperSvc, notifierSvc, hub, "session_hub_auth", false, sweepSecret)
	server := httptest.NewServer(apiServer.Router())
	t.Cleanup(server.Close)
	return &env{store: store, server: server}
}

func (e *env) do(t *testing.T, method, path, token string, body interface{}, out interface{}) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, out), "body: %s", data)
	}
	return resp.StatusCode
}

func (e *env) signup(t *testing.T, email, role, tier string) string {
	t.Helper()
	body := map[string]string{
		"email":     email,
		"password":  "s3cret-password",
		"full_name": email,
		"role":      role,
	}
	if tier != "" {
		body["service_tier"] = tier
	}
	status := e.do(t, http.MethodPost, "/v1/auth/register", "", body, nil)
	require.Equal(t, http.StatusCreated, status)

	var login struct {
		Token string `json:"token"`
	}
	status = e.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"email": email, "password": "s3cret-password",
	}, &login)
	require.Equal(t, http.StatusOK, status)
	require.NotEmpty(t, login.Token)
	return login.Token
}

func (e *env) approveMechanic(t *testing.T, email string) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	acct, err := e.store.Accounts().GetByEmail(ctx, email)
	require.NoError(t, err)
	require.NotNil(t, acct)
	profile, err := e.store.Mechanics().GetByID(ctx, acct.AccountID)
	require.NoError(t, err)
	require.NotNil(t, profile)
	profile.CanAcceptSessions = true
	require.NoError(t, e.store.Mechanics().Update(ctx, profile))
	return acct.AccountID
}

func TestRequestToCompletionFlow(t *testing.T) {
	e := newEnv(t)
	customerToken := e.signup(t, "customer@example.com", "CUSTOMER", "")
	mechToken := e.signup(t, "mech@example.com", "MECHANIC", "VIRTUAL_ONLY")

	// Unapproved mechanics cannot see the queue.
	status := e.do(t, http.MethodGet, "/v1/mechanics/queue", mechToken, nil, nil)
	assert.Equal(t, http.StatusForbidden, status)
	e.approveMechanic(t, "mech@example.com")

	var created struct {
		RequestID uuid.UUID `json:"requestId"`
		SessionID uuid.UUID `json:"sessionId"`
	}
	status = e.do(t, http.MethodPost, "/v1/requests", customerToken, map[string]interface{}{
		"session_type": "VIDEO",
		"plan_code":    "video-30",
		"concern":      "brakes squeal",
	}, &created)
	require.Equal(t, http.StatusCreated, status)

	var queue struct {
		Queue []struct {
			Assignment struct {
				AssignmentID uuid.UUID `json:"assignmentId"`
			} `json:"assignment"`
			Session struct {
				SessionID uuid.UUID `json:"sessionId"`
			} `json:"session"`
		} `json:"queue"`
	}
	status = e.do(t, http.MethodGet, "/v1/mechanics/queue", mechToken, nil, &queue)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, queue.Queue, 1)
	assignmentID := queue.Queue[0].Assignment.AssignmentID

	var accepted struct {
		SessionID uuid.UUID `json:"sessionId"`
		Status    string    `json:"status"`
	}
	status = e.do(t, http.MethodPost, "/v1/assignments/"+assignmentID.String()+"/accept", mechToken, nil, &accepted)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "WAITING", accepted.Status)
	assert.Equal(t, created.SessionID, accepted.SessionID)

	// Repeat accept is a conflict, not a double-bind.
	status = e.do(t, http.MethodPost, "/v1/assignments/"+assignmentID.String()+"/accept", mechToken, nil, nil)
	assert.Equal(t, http.StatusConflict, status)

	var joined struct {
		Session struct {
			Status string `json:"status"`
		} `json:"session"`
		Credential struct {
			RoomID string `json:"roomId"`
			Token  string `json:"token"`
		} `json:"credential"`
	}
	status = e.do(t, http.MethodPost, "/v1/sessions/"+created.SessionID.String()+"/join", mechToken, nil, &joined)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "LIVE", joined.Session.Status)
	assert.NotEmpty(t, joined.Credential.Token)

	status = e.do(t, http.MethodPost, "/v1/sessions/"+created.SessionID.String()+"/join", customerToken, nil, &joined)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "LIVE", joined.Session.Status)

	var ended struct {
		Status string `json:"status"`
	}
	status = e.do(t, http.MethodPost, "/v1/sessions/"+created.SessionID.String()+"/end", customerToken, nil, &ended)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "COMPLETED", ended.Status)

	var reqOut struct {
		Status string `json:"status"`
	}
	status = e.do(t, http.MethodGet, "/v1/requests/"+created.RequestID.String(), customerToken, nil, &reqOut)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "COMPLETED", reqOut.Status)

	var events struct {
		Events []struct {
			Kind string `json:"kind"`
		} `json:"events"`
	}
	status = e.do(t, http.MethodGet, "/v1/sessions/"+created.SessionID.String()+"/events", customerToken, nil, &events)
	require.Equal(t, http.StatusOK, status)
	kinds := make([]string, 0, len(events.Events))
	for _, ev := range events.Events {
		kinds = append(kinds, ev.Kind)
	}
	assert.Contains(t, kinds, "CREATED")
	assert.Contains(t, kinds, "ASSIGNED")
	assert.Contains(t, kinds, "STARTED")
	assert.Contains(t, kinds, "ENDED")
}

func TestOutsiderCannotTouchSession(t *testing.T) {
	e := newEnv(t)
	customerToken := e.signup(t, "customer@example.com", "CUSTOMER", "")
	e.signup(t, "mech@example.com", "MECHANIC", "VIRTUAL_ONLY")
	outsiderToken := e.signup(t, "other@example.com", "CUSTOMER", "")

	var created struct {
		SessionID uuid.UUID `json:"sessionId"`
	}
	status := e.do(t, http.MethodPost, "/v1/requests", customerToken, map[string]interface{}{
		"session_type": "CHAT",
		"plan_code":    "chat-15",
	}, &created)
	require.Equal(t, http.StatusCreated, status)

	status = e.do(t, http.MethodGet, "/v1/sessions/"+created.SessionID.String(), outsiderToken, nil, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status = e.do(t, http.MethodPost, "/v1/sessions/"+created.SessionID.String()+"/join", outsiderToken, nil, nil)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestSweepEndpointAuth(t *testing.T) {
	e := newEnv(t)

	req, err := http.NewRequest(http.MethodPost, e.server.URL+"/internal/sweep", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var report struct {
		RequestsExpired int `json:"requestsExpired"`
	}
	status := e.do(t, http.MethodPost, "/internal/sweep", sweepSecret, nil, &report)
	assert.Equal(t, http.StatusOK, status)
}

func TestCustomerCannotAccessMechanicQueue(t *testing.T) {
	e := newEnv(t)
	customerToken := e.signup(t, "customer@example.com", "CUSTOMER", "")

	status := e.do(t, http.MethodGet, "/v1/mechanics/queue", customerToken, nil, nil)
	assert.Equal(t, http.StatusForbidden, status)
}
