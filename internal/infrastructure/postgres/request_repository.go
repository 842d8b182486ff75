package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/session-hub/session-hub/internal/domain/request"
)

// RequestRepository implements request.Repository.
type RequestRepository struct {
	pool *pgxpool.Pool
}

func NewRequestRepository(pool *pgxpool.Pool) *RequestRepository {
	return &RequestRepository{pool: pool}
}

const requestColumns = `
	id, request_id, customer_id, session_id, parent_session_id, session_type,
	plan_code, status, routing_type, mechanic_id, is_urgent, vehicle_ref,
	concern, metadata, created_at, accepted_at, cancelled_at`

func (r *RequestRepository) Create(ctx context.Context, req *request.Request) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO session_requests
		(request_id, customer_id, session_id, parent_session_id, session_type, plan_code,
		 status, routing_type, mechanic_id, is_urgent, vehicle_ref, concern, metadata, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, req.RequestID, req.CustomerID, req.SessionID, req.ParentSessionID, req.SessionType,
		req.PlanCode, req.Status, req.RoutingType, req.MechanicID, req.IsUrgent,
		req.VehicleRef, req.Concern, req.Metadata, req.CreatedAt)
	return err
}

func (r *RequestRepository) GetByID(ctx context.Context, requestID uuid.UUID) (*request.Request, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM session_requests WHERE request_id=$1`, requestID)
	return scanRequest(row)
}

func (r *RequestRepository) GetBySessionID(ctx context.Context, sessionID uuid.UUID) (*request.Request, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM session_requests WHERE session_id=$1`, sessionID)
	return scanRequest(row)
}

func (r *RequestRepository) ListByCustomer(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]*request.Request, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+requestColumns+`
		FROM session_requests WHERE customer_id=$1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, customerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*request.Request, 0)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func (r *RequestRepository) CancelDangling(ctx context.Context, customerID uuid.UUID, at time.Time) (int, error) {
	res, err := r.pool.Exec(ctx, `
		UPDATE session_requests SET status='CANCELLED', cancelled_at=$1
		WHERE customer_id=$2 AND status='PENDING' AND mechanic_id IS NULL
	`, at, customerID)
	if err != nil {
		return 0, err
	}
	return int(res.RowsAffected()), nil
}

func (r *RequestRepository) MarkAccepted(ctx context.Context, requestID, mechanicID uuid.UUID, at time.Time) (bool, error) {
	res, err := r.pool.Exec(ctx, `
		UPDATE session_requests SET status='ACCEPTED', mechanic_id=$1, accepted_at=$2
		WHERE request_id=$3 AND status='PENDING'
	`, mechanicID, at, requestID)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() == 1, nil
}

func (r *RequestRepository) CompareAndSwapStatus(ctx context.Context, requestID uuid.UUID, expected, next request.Status) (bool, error) {
	cancelledAt := pgtypeTimestampForStatus(next)
	res, err := r.pool.Exec(ctx, `
		UPDATE session_requests SET status=$1, cancelled_at=COALESCE($2, cancelled_at)
		WHERE request_id=$3 AND status=$4
	`, next, cancelledAt, requestID, expected)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() == 1, nil
}

func (r *RequestRepository) ExpireStalePending(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE session_requests SET status='EXPIRED'
		WHERE status='PENDING' AND mechanic_id IS NULL AND created_at < $1
		RETURNING request_id
	`, cutoff)
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

func pgtypeTimestampForStatus(next request.Status) *time.Time {
	if next == request.StatusCancelled {
		now := time.Now().UTC()
		return &now
	}
	return nil
}

func scanRequest(row pgx.Row) (*request.Request, error) {
	var req request.Request
	if err := row.Scan(
		&req.ID, &req.RequestID, &req.CustomerID, &req.SessionID, &req.ParentSessionID,
		&req.SessionType, &req.PlanCode, &req.Status, &req.RoutingType, &req.MechanicID,
		&req.IsUrgent, &req.VehicleRef, &req.Concern, &req.Metadata, &req.CreatedAt,
		&req.AcceptedAt, &req.CancelledAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &req, nil
}
