package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	appIntake "github.com/session-hub/session-hub/internal/application/intake"
	"github.com/session-hub/session-hub/internal/domain/account"
	"github.com/session-hub/session-hub/internal/domain/session"
)

type requestCreateRequest struct {
	SessionType     string          `json:"session_type"`
	PlanCode        string          `json:"plan_code"`
	VehicleRef      *string         `json:"vehicle_ref,omitempty"`
	Concern         string          `json:"concern,omitempty"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
	IsUrgent        bool            `json:"is_urgent,omitempty"`
	WorkshopID      *uuid.UUID      `json:"workshop_id,omitempty"`
	TargetMechanic  *uuid.UUID      `json:"target_mechanic,omitempty"`
	ParentSessionID *uuid.UUID      `json:"parent_session_id,omitempty"`
}

func (s *Server) createRequest(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth")
		return
	}
	var req requestCreateRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	result, err := s.intakeSvc.CreateRequest(r.Context(), appIntake.CreateRequestInput{
		CustomerID:      p.ID,
		SessionType:     session.Type(req.SessionType),
		PlanCode:        req.PlanCode,
		VehicleRef:      req.VehicleRef,
		Concern:         req.Concern,
		Metadata:        req.Metadata,
		IsUrgent:        req.IsUrgent,
		WorkshopID:      req.WorkshopID,
		TargetMechanic:  req.TargetMechanic,
		ParentSessionID: req.ParentSessionID,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

type boundSessionRequest struct {
	SessionType string `json:"session_type"`
	PlanCode    string `json:"plan_code"`
}

// createBoundSession is the payment-capture hook: checkout has settled and
// the session should enter the queue immediately.
func (s *Server) createBoundSession(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth")
		return
	}
	var req boundSessionRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	result, err := s.intakeSvc.CreateBoundSession(r.Context(), p.ID, req.PlanCode, session.Type(req.SessionType))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

func (s *Server) listRequests(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth")
		return
	}
	limit, offset := parseLimitOffset(r, 50, 200)
	reqs, err := s.intakeSvc.ListCustomerRequests(r.Context(), p.ID, limit, offset)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"requests": reqs})
}

func (s *Server) getRequest(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "requestId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid requestId")
		return
	}
	req, err := s.intakeSvc.GetRequest(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if req == nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "request not found")
		return
	}
	respondJSON(w, http.StatusOK, req)
}

func (s *Server) cancelRequest(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth")
		return
	}
	id, err := parseUUIDParam(r, "requestId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid requestId")
		return
	}
	existing, err := s.intakeSvc.GetRequest(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if existing == nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "request not found")
		return
	}
	if existing.CustomerID != p.ID && p.Role != account.RoleAdmin {
		respondError(w, http.StatusForbidden, "FORBIDDEN", "not your request")
		return
	}
	req, err := s.intakeSvc.CancelRequest(r.Context(), id, p.ActorString())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, req)
}
