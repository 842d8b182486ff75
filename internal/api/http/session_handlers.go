package httpapi

import (
	"net/http"

	"github.com/session-hub/session-hub/internal/domain/account"
	"github.com/session-hub/session-hub/internal/domain/session"
)

type forceCloseRequest struct {
	Target string `json:"target"`
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth")
		return
	}
	id, err := parseUUIDParam(r, "sessionId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid sessionId")
		return
	}
	sess, participants, err := s.lifecycleSvc.Get(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if !canViewSession(p, sess) {
		respondError(w, http.StatusForbidden, "FORBIDDEN", "not a session participant")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"session":      sess,
		"participants": participants,
	})
}

func (s *Server) listSessionEvents(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth")
		return
	}
	id, err := parseUUIDParam(r, "sessionId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid sessionId")
		return
	}
	sess, _, err := s.lifecycleSvc.Get(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if !canViewSession(p, sess) {
		respondError(w, http.StatusForbidden, "FORBIDDEN", "not a session participant")
		return
	}
	limit, offset := parseLimitOffset(r, 100, 500)
	events, err := s.lifecycleSvc.Events(r.Context(), id, limit, offset)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

func (s *Server) joinSession(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth")
		return
	}
	id, err := parseUUIDParam(r, "sessionId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid sessionId")
		return
	}
	result, err := s.lifecycleSvc.Join(r.Context(), id, p)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) endSession(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth")
		return
	}
	id, err := parseUUIDParam(r, "sessionId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid sessionId")
		return
	}
	sess, err := s.lifecycleSvc.End(r.Context(), id, p)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) cancelSession(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth")
		return
	}
	id, err := parseUUIDParam(r, "sessionId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid sessionId")
		return
	}
	sess, err := s.lifecycleSvc.Cancel(r.Context(), id, p)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) forceCloseSession(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth")
		return
	}
	id, err := parseUUIDParam(r, "sessionId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid sessionId")
		return
	}
	var req forceCloseRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	sess, err := s.lifecycleSvc.ForceClose(r.Context(), id, session.Status(req.Target), p)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

// canViewSession limits session reads to its two parties and admins.
func canViewSession(p account.Principal, sess *session.Session) bool {
	if p.Role == account.RoleAdmin {
		return true
	}
	if p.ID == sess.CustomerID {
		return true
	}
	if sess.MechanicID != nil && p.ID == *sess.MechanicID {
		return true
	}
	return false
}
