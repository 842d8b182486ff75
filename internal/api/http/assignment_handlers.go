package httpapi

import (
	"net/http"
)

func (s *Server) mechanicQueue(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth")
		return
	}
	limit, _ := parseLimitOffset(r, 50, 200)
	items, err := s.dispatchSvc.Queue(r.Context(), p.ID, limit)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"queue": items})
}

func (s *Server) acceptAssignment(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth")
		return
	}
	id, err := parseUUIDParam(r, "assignmentId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid assignmentId")
		return
	}
	sess, err := s.dispatchSvc.Accept(r.Context(), id, p.ID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}
