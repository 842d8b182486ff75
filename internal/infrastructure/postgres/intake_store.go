package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/session-hub/session-hub/internal/domain/assignment"
	"github.com/session-hub/session-hub/internal/domain/request"
	"github.com/session-hub/session-hub/internal/domain/session"
)

// IntakeStore creates the request, session, assignment, participant and
// creation event in one transaction, so the assignment is visible to
// mechanics the instant the request exists and never without it.
type IntakeStore struct {
	pool *pgxpool.Pool
}

func NewIntakeStore(pool *pgxpool.Pool) *IntakeStore {
	return &IntakeStore{pool: pool}
}

func (s *IntakeStore) CreateIntake(
	ctx context.Context,
	req *request.Request,
	sess *session.Session,
	assign *assignment.Assignment,
	participant *session.Participant,
	event *session.Event,
) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO sessions
		(session_id, type, status, customer_id, mechanic_id, plan_code, workshop_id, metadata, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, sess.SessionID, sess.Type, sess.Status, sess.CustomerID, sess.MechanicID,
		sess.PlanCode, sess.WorkshopID, sess.Metadata, sess.CreatedAt, sess.UpdatedAt); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO session_requests
		(request_id, customer_id, session_id, parent_session_id, session_type, plan_code,
		 status, routing_type, mechanic_id, is_urgent, vehicle_ref, concern, metadata, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, req.RequestID, req.CustomerID, req.SessionID, req.ParentSessionID, req.SessionType,
		req.PlanCode, req.Status, req.RoutingType, req.MechanicID, req.IsUrgent,
		req.VehicleRef, req.Concern, req.Metadata, req.CreatedAt); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO session_assignments
		(assignment_id, session_id, mechanic_id, status, metadata, offered_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, assign.AssignmentID, assign.SessionID, assign.MechanicID, assign.Status,
		assign.Metadata, assign.OfferedAt); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO session_participants (session_id, user_id, role, joined_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (session_id, user_id) DO NOTHING
	`, participant.SessionID, participant.UserID, participant.Role, participant.JoinedAt); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO session_events (event_id, session_id, kind, actor, payload, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, event.EventID, event.SessionID, event.Kind, event.Actor, event.Payload, event.CreatedAt); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
