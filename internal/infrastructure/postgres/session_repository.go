package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/session-hub/session-hub/internal/domain/session"
)

// SessionRepository implements session.Repository.
type SessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

const sessionColumns = `
	id, session_id, type, status, customer_id, mechanic_id, plan_code,
	workshop_id, room_id, metadata, unattended_at, created_at, updated_at,
	started_at, ended_at, duration_minutes`

func (r *SessionRepository) Create(ctx context.Context, s *session.Session) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sessions
		(session_id, type, status, customer_id, mechanic_id, plan_code, workshop_id, metadata, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, s.SessionID, s.Type, s.Status, s.CustomerID, s.MechanicID, s.PlanCode, s.WorkshopID, s.Metadata, s.CreatedAt, s.UpdatedAt)
	return err
}

func (r *SessionRepository) GetByID(ctx context.Context, sessionID uuid.UUID) (*session.Session, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE session_id=$1`, sessionID)
	return scanSession(row)
}

func (r *SessionRepository) GetActiveByCustomer(ctx context.Context, customerID uuid.UUID) (*session.Session, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE customer_id=$1 AND status IN ('PENDING','WAITING','LIVE')
		ORDER BY created_at DESC
		LIMIT 1
	`, customerID)
	return scanSession(row)
}

func (r *SessionRepository) ListByStatus(ctx context.Context, status session.Status, limit, offset int) ([]*session.Session, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions WHERE status=$1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, status, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*session.Session, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CompareAndSwapStatus is the single audited race primitive: the status
// predicate rides in the UPDATE itself and the row count is the tie-break.
func (r *SessionRepository) CompareAndSwapStatus(ctx context.Context, sessionID uuid.UUID, expected, next session.Status) (bool, error) {
	res, err := r.pool.Exec(ctx, `
		UPDATE sessions SET status=$1, updated_at=$2
		WHERE session_id=$3 AND status=$4
	`, next, time.Now().UTC(), sessionID, expected)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() == 1, nil
}

func (r *SessionRepository) BindMechanic(ctx context.Context, sessionID, mechanicID uuid.UUID) (bool, error) {
	res, err := r.pool.Exec(ctx, `
		UPDATE sessions SET mechanic_id=$1, updated_at=$2
		WHERE session_id=$3 AND mechanic_id IS NULL AND status IN ('PENDING','WAITING')
	`, mechanicID, time.Now().UTC(), sessionID)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() == 1, nil
}

func (r *SessionRepository) MarkLive(ctx context.Context, sessionID uuid.UUID, startedAt time.Time) (bool, error) {
	res, err := r.pool.Exec(ctx, `
		UPDATE sessions SET status='LIVE', started_at=$1, updated_at=$1
		WHERE session_id=$2 AND status='WAITING'
	`, startedAt, sessionID)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() == 1, nil
}

func (r *SessionRepository) MarkEnded(ctx context.Context, sessionID uuid.UUID, from []session.Status, next session.Status, endedAt time.Time, durationMinutes int) (bool, error) {
	res, err := r.pool.Exec(ctx, `
		UPDATE sessions SET status=$1, ended_at=$2, duration_minutes=$3, updated_at=$2
		WHERE session_id=$4 AND status=ANY($5)
	`, next, endedAt, durationMinutes, sessionID, statusStrings(from))
	if err != nil {
		return false, err
	}
	return res.RowsAffected() == 1, nil
}

func (r *SessionRepository) SetRoomID(ctx context.Context, sessionID uuid.UUID, roomID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE sessions SET room_id=$1, updated_at=$2 WHERE session_id=$3 AND room_id IS NULL
	`, roomID, time.Now().UTC(), sessionID)
	return err
}

func (r *SessionRepository) ExpireStalePending(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	return r.sweepUpdate(ctx, `
		UPDATE sessions SET status='EXPIRED', ended_at=$1, updated_at=$1
		WHERE status='PENDING' AND mechanic_id IS NULL AND created_at < $2
		RETURNING session_id
	`, cutoff)
}

func (r *SessionRepository) FlagUnattended(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	return r.sweepUpdate(ctx, `
		UPDATE sessions SET unattended_at=$1, updated_at=$1
		WHERE status='PENDING' AND mechanic_id IS NULL AND unattended_at IS NULL AND created_at < $2
		RETURNING session_id
	`, cutoff)
}

func (r *SessionRepository) CancelStaleWaiting(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	return r.sweepUpdate(ctx, `
		UPDATE sessions SET status='CANCELLED', ended_at=$1, updated_at=$1
		WHERE status='WAITING' AND started_at IS NULL AND created_at < $2
		RETURNING session_id
	`, cutoff)
}

func (r *SessionRepository) OrphanStaleLive(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	return r.sweepUpdate(ctx, `
		UPDATE sessions
		SET status='ERROR', ended_at=$1,
		    duration_minutes=GREATEST(0, EXTRACT(EPOCH FROM ($1 - COALESCE(started_at, created_at)))::int / 60),
		    updated_at=$1
		WHERE status='LIVE' AND started_at < $2
		RETURNING session_id
	`, cutoff)
}

func (r *SessionRepository) sweepUpdate(ctx context.Context, sql string, cutoff time.Time) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, sql, time.Now().UTC(), cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func statusStrings(list []session.Status) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = string(s)
	}
	return out
}

func scanSession(row pgx.Row) (*session.Session, error) {
	var s session.Session
	if err := row.Scan(
		&s.ID, &s.SessionID, &s.Type, &s.Status, &s.CustomerID, &s.MechanicID,
		&s.PlanCode, &s.WorkshopID, &s.RoomID, &s.Metadata, &s.UnattendedAt,
		&s.CreatedAt, &s.UpdatedAt, &s.StartedAt, &s.EndedAt, &s.DurationMinutes,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}
