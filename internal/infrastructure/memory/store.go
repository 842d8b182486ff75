// Package memory holds mutex-guarded in-memory implementations of the
// repository interfaces. The dispatch race and sweep convergence tests run
// against these; the conditional-update semantics mirror the postgres
// repositories exactly, including which rows each predicate may touch.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/session-hub/session-hub/internal/domain/account"
	"github.com/session-hub/session-hub/internal/domain/assignment"
	"github.com/session-hub/session-hub/internal/domain/mechanic"
	"github.com/session-hub/session-hub/internal/domain/notification"
	"github.com/session-hub/session-hub/internal/domain/request"
	"github.com/session-hub/session-hub/internal/domain/session"
	"github.com/session-hub/session-hub/internal/domain/token"
)

type participantKey struct {
	sessionID uuid.UUID
	userID    uuid.UUID
}

// Store is the shared backing state. One mutex covers everything so
// cross-table writes stay atomic the way a database transaction would be.
type Store struct {
	mu            sync.Mutex
	sessions      map[uuid.UUID]*session.Session
	requests      map[uuid.UUID]*request.Request
	assignments   map[uuid.UUID]*assignment.Assignment
	participants  map[participantKey]*session.Participant
	events        []*session.Event
	mechanics     map[uuid.UUID]*mechanic.Profile
	notifications map[uuid.UUID]*notification.Notification
	tokens        map[uuid.UUID]*token.Token
	accounts      map[uuid.UUID]*account.Account
	nextID        int64
}

func NewStore() *Store {
	return &Store{
		sessions:      make(map[uuid.UUID]*session.Session),
		requests:      make(map[uuid.UUID]*request.Request),
		assignments:   make(map[uuid.UUID]*assignment.Assignment),
		participants:  make(map[participantKey]*session.Participant),
		mechanics:     make(map[uuid.UUID]*mechanic.Profile),
		notifications: make(map[uuid.UUID]*notification.Notification),
		tokens:        make(map[uuid.UUID]*token.Token),
		accounts:      make(map[uuid.UUID]*account.Account),
	}
}

func (s *Store) Sessions() *SessionRepo           { return &SessionRepo{s} }
func (s *Store) Requests() *RequestRepo           { return &RequestRepo{s} }
func (s *Store) Assignments() *AssignmentRepo     { return &AssignmentRepo{s} }
func (s *Store) Participants() *ParticipantRepo   { return &ParticipantRepo{s} }
func (s *Store) Events() *EventRepo               { return &EventRepo{s} }
func (s *Store) Mechanics() *MechanicRepo         { return &MechanicRepo{s} }
func (s *Store) Notifications() *NotificationRepo { return &NotificationRepo{s} }
func (s *Store) Tokens() *TokenRepo               { return &TokenRepo{s} }
func (s *Store) Accounts() *AccountRepo           { return &AccountRepo{s} }

// CreateIntake inserts the intake row set under one lock acquisition,
// matching the single-transaction postgres store.
func (s *Store) CreateIntake(_ context.Context, req *request.Request, sess *session.Session, assign *assignment.Assignment, participant *session.Participant, event *session.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc := *sess
	s.nextID++
	sc.ID = s.nextID
	s.sessions[sc.SessionID] = &sc

	rc := *req
	s.nextID++
	rc.ID = s.nextID
	s.requests[rc.RequestID] = &rc

	ac := *assign
	s.nextID++
	ac.ID = s.nextID
	s.assignments[ac.AssignmentID] = &ac

	key := participantKey{participant.SessionID, participant.UserID}
	if _, exists := s.participants[key]; !exists {
		pc := *participant
		s.participants[key] = &pc
	}

	ec := *event
	s.nextID++
	ec.ID = s.nextID
	s.events = append(s.events, &ec)
	return nil
}

// SessionRepo implements session.Repository.
type SessionRepo struct{ s *Store }

func (r *SessionRepo) Create(_ context.Context, sess *session.Session) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := *sess
	r.s.nextID++
	c.ID = r.s.nextID
	r.s.sessions[c.SessionID] = &c
	return nil
}

func (r *SessionRepo) GetByID(_ context.Context, sessionID uuid.UUID) (*session.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	c := *sess
	return &c, nil
}

func (r *SessionRepo) GetActiveByCustomer(_ context.Context, customerID uuid.UUID) (*session.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, sess := range r.s.sessions {
		if sess.CustomerID == customerID && !sess.IsTerminal() {
			c := *sess
			return &c, nil
		}
	}
	return nil, nil
}

func (r *SessionRepo) ListByStatus(_ context.Context, status session.Status, limit, offset int) ([]*session.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*session.Session, 0)
	for _, sess := range r.s.sessions {
		if sess.Status == status {
			c := *sess
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *SessionRepo) CompareAndSwapStatus(_ context.Context, sessionID uuid.UUID, expected, next session.Status) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.s.sessions[sessionID]
	if !ok || sess.Status != expected {
		return false, nil
	}
	sess.Status = next
	sess.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *SessionRepo) BindMechanic(_ context.Context, sessionID, mechanicID uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.s.sessions[sessionID]
	if !ok || sess.MechanicID != nil {
		return false, nil
	}
	if sess.Status != session.StatusPending && sess.Status != session.StatusWaiting {
		return false, nil
	}
	m := mechanicID
	sess.MechanicID = &m
	sess.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *SessionRepo) MarkLive(_ context.Context, sessionID uuid.UUID, startedAt time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.s.sessions[sessionID]
	if !ok || sess.Status != session.StatusWaiting {
		return false, nil
	}
	sess.Status = session.StatusLive
	t := startedAt
	sess.StartedAt = &t
	sess.UpdatedAt = startedAt
	return true, nil
}

func (r *SessionRepo) MarkEnded(_ context.Context, sessionID uuid.UUID, from []session.Status, next session.Status, endedAt time.Time, durationMinutes int) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.s.sessions[sessionID]
	if !ok {
		return false, nil
	}
	matched := false
	for _, st := range from {
		if sess.Status == st {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}
	sess.Status = next
	t := endedAt
	sess.EndedAt = &t
	d := durationMinutes
	sess.DurationMinutes = &d
	sess.UpdatedAt = endedAt
	return true, nil
}

func (r *SessionRepo) SetRoomID(_ context.Context, sessionID uuid.UUID, roomID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.s.sessions[sessionID]
	if !ok || sess.RoomID != nil {
		return nil
	}
	rm := roomID
	sess.RoomID = &rm
	return nil
}

func (r *SessionRepo) ExpireStalePending(_ context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	return r.sweep(func(sess *session.Session) bool {
		if sess.Status != session.StatusPending || sess.MechanicID != nil || !sess.CreatedAt.Before(cutoff) {
			return false
		}
		sess.Status = session.StatusExpired
		now := time.Now().UTC()
		sess.EndedAt = &now
		return true
	})
}

func (r *SessionRepo) FlagUnattended(_ context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	return r.sweep(func(sess *session.Session) bool {
		if sess.Status != session.StatusPending || sess.MechanicID != nil || sess.UnattendedAt != nil || !sess.CreatedAt.Before(cutoff) {
			return false
		}
		now := time.Now().UTC()
		sess.UnattendedAt = &now
		return true
	})
}

func (r *SessionRepo) CancelStaleWaiting(_ context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	return r.sweep(func(sess *session.Session) bool {
		if sess.Status != session.StatusWaiting || sess.StartedAt != nil || !sess.CreatedAt.Before(cutoff) {
			return false
		}
		sess.Status = session.StatusCancelled
		now := time.Now().UTC()
		sess.EndedAt = &now
		return true
	})
}

func (r *SessionRepo) OrphanStaleLive(_ context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	return r.sweep(func(sess *session.Session) bool {
		if sess.Status != session.StatusLive || sess.StartedAt == nil || !sess.StartedAt.Before(cutoff) {
			return false
		}
		sess.Status = session.StatusError
		now := time.Now().UTC()
		sess.EndedAt = &now
		d := sess.DurationFrom(now)
		sess.DurationMinutes = &d
		return true
	})
}

func (r *SessionRepo) sweep(apply func(*session.Session) bool) ([]uuid.UUID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ids := make([]uuid.UUID, 0)
	for _, sess := range r.s.sessions {
		if apply(sess) {
			sess.UpdatedAt = time.Now().UTC()
			ids = append(ids, sess.SessionID)
		}
	}
	return ids, nil
}

// RequestRepo implements request.Repository.
type RequestRepo struct{ s *Store }

func (r *RequestRepo) Create(_ context.Context, req *request.Request) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := *req
	r.s.nextID++
	c.ID = r.s.nextID
	r.s.requests[c.RequestID] = &c
	return nil
}

func (r *RequestRepo) GetByID(_ context.Context, requestID uuid.UUID) (*request.Request, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	req, ok := r.s.requests[requestID]
	if !ok {
		return nil, nil
	}
	c := *req
	return &c, nil
}

func (r *RequestRepo) GetBySessionID(_ context.Context, sessionID uuid.UUID) (*request.Request, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, req := range r.s.requests {
		if req.SessionID == sessionID {
			c := *req
			return &c, nil
		}
	}
	return nil, nil
}

func (r *RequestRepo) ListByCustomer(_ context.Context, customerID uuid.UUID, limit, offset int) ([]*request.Request, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*request.Request, 0)
	for _, req := range r.s.requests {
		if req.CustomerID == customerID {
			c := *req
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *RequestRepo) CancelDangling(_ context.Context, customerID uuid.UUID, at time.Time) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, req := range r.s.requests {
		if req.CustomerID == customerID && req.Dangling() {
			req.Status = request.StatusCancelled
			t := at
			req.CancelledAt = &t
			n++
		}
	}
	return n, nil
}

func (r *RequestRepo) MarkAccepted(_ context.Context, requestID, mechanicID uuid.UUID, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	req, ok := r.s.requests[requestID]
	if !ok || req.Status != request.StatusPending {
		return false, nil
	}
	req.Status = request.StatusAccepted
	m := mechanicID
	req.MechanicID = &m
	t := at
	req.AcceptedAt = &t
	return true, nil
}

func (r *RequestRepo) CompareAndSwapStatus(_ context.Context, requestID uuid.UUID, expected, next request.Status) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	req, ok := r.s.requests[requestID]
	if !ok || req.Status != expected {
		return false, nil
	}
	req.Status = next
	if next == request.StatusCancelled {
		now := time.Now().UTC()
		req.CancelledAt = &now
	}
	return true, nil
}

func (r *RequestRepo) ExpireStalePending(_ context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ids := make([]uuid.UUID, 0)
	for _, req := range r.s.requests {
		if req.Status == request.StatusPending && req.MechanicID == nil && req.CreatedAt.Before(cutoff) {
			req.Status = request.StatusExpired
			ids = append(ids, req.RequestID)
		}
	}
	return ids, nil
}

// AssignmentRepo implements assignment.Repository.
type AssignmentRepo struct{ s *Store }

func (r *AssignmentRepo) Create(_ context.Context, a *assignment.Assignment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := *a
	r.s.nextID++
	c.ID = r.s.nextID
	r.s.assignments[c.AssignmentID] = &c
	return nil
}

func (r *AssignmentRepo) GetByID(_ context.Context, assignmentID uuid.UUID) (*assignment.Assignment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.assignments[assignmentID]
	if !ok {
		return nil, nil
	}
	c := *a
	return &c, nil
}

func (r *AssignmentRepo) ListOpenForMechanic(_ context.Context, mechanicID uuid.UUID, limit int) ([]*assignment.Assignment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*assignment.Assignment, 0)
	for _, a := range r.s.assignments {
		if !a.Open() {
			continue
		}
		if a.MechanicID != nil && *a.MechanicID != mechanicID {
			continue
		}
		c := *a
		out = append(out, &c)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *AssignmentRepo) ListBySession(_ context.Context, sessionID uuid.UUID) ([]*assignment.Assignment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*assignment.Assignment, 0)
	for _, a := range r.s.assignments {
		if a.SessionID == sessionID {
			c := *a
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *AssignmentRepo) Accept(_ context.Context, assignmentID, mechanicID uuid.UUID, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.assignments[assignmentID]
	if !ok || !a.Open() {
		return false, nil
	}
	if a.MechanicID != nil && *a.MechanicID != mechanicID {
		return false, nil
	}
	a.Status = assignment.StatusAccepted
	m := mechanicID
	a.MechanicID = &m
	t := at
	a.AcceptedAt = &t
	return true, nil
}

func (r *AssignmentRepo) ExpireSiblings(_ context.Context, sessionID, winnerID uuid.UUID) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, a := range r.s.assignments {
		if a.SessionID == sessionID && a.AssignmentID != winnerID && a.Open() {
			a.Status = assignment.StatusExpired
			n++
		}
	}
	return n, nil
}

func (r *AssignmentRepo) ExpireForSessions(_ context.Context, sessionIDs []uuid.UUID) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	want := make(map[uuid.UUID]struct{}, len(sessionIDs))
	for _, id := range sessionIDs {
		want[id] = struct{}{}
	}
	n := 0
	for _, a := range r.s.assignments {
		if _, ok := want[a.SessionID]; ok && a.Open() {
			a.Status = assignment.StatusExpired
			n++
		}
	}
	return n, nil
}

// ParticipantRepo implements session.ParticipantRepository.
type ParticipantRepo struct{ s *Store }

func (r *ParticipantRepo) Upsert(_ context.Context, p *session.Participant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := participantKey{p.SessionID, p.UserID}
	if _, exists := r.s.participants[key]; exists {
		return nil
	}
	c := *p
	r.s.participants[key] = &c
	return nil
}

func (r *ParticipantRepo) ListBySession(_ context.Context, sessionID uuid.UUID) ([]*session.Participant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*session.Participant, 0)
	for _, p := range r.s.participants {
		if p.SessionID == sessionID {
			c := *p
			out = append(out, &c)
		}
	}
	return out, nil
}

// EventRepo implements session.EventRepository.
type EventRepo struct{ s *Store }

func (r *EventRepo) Append(_ context.Context, e *session.Event) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := *e
	r.s.nextID++
	c.ID = r.s.nextID
	r.s.events = append(r.s.events, &c)
	return nil
}

func (r *EventRepo) ListBySession(_ context.Context, sessionID uuid.UUID, limit, offset int) ([]*session.Event, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*session.Event, 0)
	for _, e := range r.s.events {
		if e.SessionID == sessionID {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}

// MechanicRepo implements mechanic.Repository.
type MechanicRepo struct{ s *Store }

func (r *MechanicRepo) Create(_ context.Context, p *mechanic.Profile) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := *p
	r.s.mechanics[c.MechanicID] = &c
	return nil
}

func (r *MechanicRepo) GetByID(_ context.Context, mechanicID uuid.UUID) (*mechanic.Profile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.mechanics[mechanicID]
	if !ok {
		return nil, nil
	}
	c := *p
	return &c, nil
}

func (r *MechanicRepo) Update(_ context.Context, p *mechanic.Profile) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := *p
	r.s.mechanics[c.MechanicID] = &c
	return nil
}

// NotificationRepo implements notification.Repository.
type NotificationRepo struct{ s *Store }

func (r *NotificationRepo) Create(_ context.Context, n *notification.Notification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := *n
	r.s.nextID++
	c.ID = r.s.nextID
	r.s.notifications[c.NotificationID] = &c
	return nil
}

func (r *NotificationRepo) ListByUser(_ context.Context, userID uuid.UUID, unreadOnly bool, limit, offset int) ([]*notification.Notification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*notification.Notification, 0)
	for _, n := range r.s.notifications {
		if n.UserID != userID {
			continue
		}
		if unreadOnly && n.Read {
			continue
		}
		c := *n
		out = append(out, &c)
	}
	return out, nil
}

func (r *NotificationRepo) MarkRead(_ context.Context, notificationID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if n, ok := r.s.notifications[notificationID]; ok {
		n.Read = true
	}
	return nil
}

// AccountRepo implements account.Repository.
type AccountRepo struct{ s *Store }

func (r *AccountRepo) Create(_ context.Context, a *account.Account) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := *a
	r.s.nextID++
	c.ID = r.s.nextID
	r.s.accounts[c.AccountID] = &c
	return nil
}

func (r *AccountRepo) GetByID(_ context.Context, accountID uuid.UUID) (*account.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[accountID]
	if !ok {
		return nil, nil
	}
	c := *a
	return &c, nil
}

func (r *AccountRepo) GetByEmail(_ context.Context, email string) (*account.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.accounts {
		if a.Email == email {
			c := *a
			return &c, nil
		}
	}
	return nil, nil
}

// TokenRepo implements token.Repository.
type TokenRepo struct{ s *Store }

func (r *TokenRepo) Create(_ context.Context, t *token.Token) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := *t
	r.s.nextID++
	c.ID = r.s.nextID
	r.s.tokens[c.TokenID] = &c
	return nil
}

func (r *TokenRepo) GetByHash(_ context.Context, tokenHash string) (*token.Token, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.tokens {
		if t.TokenHash == tokenHash {
			c := *t
			return &c, nil
		}
	}
	return nil, nil
}

func (r *TokenRepo) DeleteByHash(_ context.Context, tokenHash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, t := range r.s.tokens {
		if t.TokenHash == tokenHash {
			delete(r.s.tokens, id)
		}
	}
	return nil
}

func (r *TokenRepo) DeleteByID(_ context.Context, tokenID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.tokens, tokenID)
	return nil
}

func (r *TokenRepo) UpdateLastSeen(_ context.Context, tokenID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if t, ok := r.s.tokens[tokenID]; ok {
		now := time.Now().UTC()
		t.LastSeenAt = &now
	}
	return nil
}

func (r *TokenRepo) DeleteExpired(_ context.Context) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := time.Now().UTC()
	n := 0
	for id, t := range r.s.tokens {
		if t.IsExpired(now) {
			delete(r.s.tokens, id)
			n++
		}
	}
	return n, nil
}
