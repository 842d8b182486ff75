package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/session-hub/session-hub/internal/domain/assignment"
)

// AssignmentRepository implements assignment.Repository.
type AssignmentRepository struct {
	pool *pgxpool.Pool
}

func NewAssignmentRepository(pool *pgxpool.Pool) *AssignmentRepository {
	return &AssignmentRepository{pool: pool}
}

const assignmentColumns = `
	id, assignment_id, session_id, mechanic_id, status, metadata, offered_at, accepted_at`

func (r *AssignmentRepository) Create(ctx context.Context, a *assignment.Assignment) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO session_assignments
		(assignment_id, session_id, mechanic_id, status, metadata, offered_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, a.AssignmentID, a.SessionID, a.MechanicID, a.Status, a.Metadata, a.OfferedAt)
	return err
}

func (r *AssignmentRepository) GetByID(ctx context.Context, assignmentID uuid.UUID) (*assignment.Assignment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+assignmentColumns+` FROM session_assignments WHERE assignment_id=$1`, assignmentID)
	return scanAssignment(row)
}

func (r *AssignmentRepository) ListOpenForMechanic(ctx context.Context, mechanicID uuid.UUID, limit int) ([]*assignment.Assignment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+assignmentColumns+`
		FROM session_assignments
		WHERE status IN ('QUEUED','OFFERED') AND (mechanic_id IS NULL OR mechanic_id=$1)
		ORDER BY offered_at ASC
		LIMIT $2
	`, mechanicID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*assignment.Assignment, 0)
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *AssignmentRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*assignment.Assignment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+assignmentColumns+`
		FROM session_assignments WHERE session_id=$1
		ORDER BY offered_at ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*assignment.Assignment, 0)
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Accept resolves the race in one conditional update. A broadcast row must
// still be unbound; a direct row must already be bound to this mechanic.
// Every losing caller sees zero rows affected.
func (r *AssignmentRepository) Accept(ctx context.Context, assignmentID, mechanicID uuid.UUID, at time.Time) (bool, error) {
	res, err := r.pool.Exec(ctx, `
		UPDATE session_assignments
		SET status='ACCEPTED', mechanic_id=$1, accepted_at=$2
		WHERE assignment_id=$3
		  AND status IN ('QUEUED','OFFERED')
		  AND (mechanic_id IS NULL OR mechanic_id=$1)
	`, mechanicID, at, assignmentID)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() == 1, nil
}

func (r *AssignmentRepository) ExpireSiblings(ctx context.Context, sessionID, winnerID uuid.UUID) (int, error) {
	res, err := r.pool.Exec(ctx, `
		UPDATE session_assignments SET status='EXPIRED'
		WHERE session_id=$1 AND assignment_id<>$2 AND status IN ('QUEUED','OFFERED')
	`, sessionID, winnerID)
	if err != nil {
		return 0, err
	}
	return int(res.RowsAffected()), nil
}

func (r *AssignmentRepository) ExpireForSessions(ctx context.Context, sessionIDs []uuid.UUID) (int, error) {
	if len(sessionIDs) == 0 {
		return 0, nil
	}
	res, err := r.pool.Exec(ctx, `
		UPDATE session_assignments SET status='EXPIRED'
		WHERE session_id=ANY($1) AND status IN ('QUEUED','OFFERED')
	`, sessionIDs)
	if err != nil {
		return 0, err
	}
	return int(res.RowsAffected()), nil
}

func scanAssignment(row pgx.Row) (*assignment.Assignment, error) {
	var a assignment.Assignment
	if err := row.Scan(
		&a.ID, &a.AssignmentID, &a.SessionID, &a.MechanicID, &a.Status,
		&a.Metadata, &a.OfferedAt, &a.AcceptedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}
