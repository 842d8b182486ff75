package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/cors"

	appAuth "github.com/session-hub/session-hub/internal/application/auth"
	appDispatch "github.com/session-hub/session-hub/internal/application/dispatch"
	appIntake "github.com/session-hub/session-hub/internal/application/intake"
	appLifecycle "github.com/session-hub/session-hub/internal/application/lifecycle"
	appNotifier "github.com/session-hub/session-hub/internal/application/notifier"
	appSweeper "github.com/session-hub/session-hub/internal/application/sweeper"
	"github.com/session-hub/session-hub/internal/domain/account"
	"github.com/session-hub/session-hub/internal/domain/assignment"
	"github.com/session-hub/session-hub/internal/domain/notification"
	"github.com/session-hub/session-hub/internal/domain/request"
	"github.com/session-hub/session-hub/internal/domain/session"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	authSvc          *appAuth.Service
	intakeSvc        *appIntake.Service
	dispatchSvc      *appDispatch.Service
	lifecycleSvc     *appLifecycle.Service
	sweeperSvc       *appSweeper.Service
	notifierSvc      *appNotifier.Service
	sseHub           notification.SSEHub
	authCookieName   string
	authCookieSecure bool
	sweepSecret      string
}

func NewServer(
	authSvc *appAuth.Service,
	intakeSvc *appIntake.Service,
	dispatchSvc *appDispatch.Service,
	lifecycleSvc *appLifecycle.Service,
	sweeperSvc *appSweeper.Service,
	notifierSvc *appNotifier.Service,
	sseHub notification.SSEHub,
	authCookieName string,
	authCookieSecure bool,
	sweepSecret string,
) *Server {
	return &Server{
		authSvc:          authSvc,
		intakeSvc:        intakeSvc,
		dispatchSvc:      dispatchSvc,
		lifecycleSvc:     lifecycleSvc,
		sweeperSvc:       sweeperSvc,
		notifierSvc:      notifierSvc,
		sseHub:           sseHub,
		authCookieName:   authCookieName,
		authCookieSecure: authCookieSecure,
		sweepSecret:      sweepSecret,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.AllowAll().Handler)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", s.register)
			r.Post("/login", s.login)
			r.Group(func(r chi.Router) {
				r.Use(s.requireAuth)
				r.Post("/logout", s.logout)
				r.Get("/me", s.me)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Route("/requests", func(r chi.Router) {
				r.Post("/", s.createRequest)
				r.Get("/", s.listRequests)
				r.Get("/{requestId}", s.getRequest)
				r.Post("/{requestId}/cancel", s.cancelRequest)
			})

			r.Route("/mechanics", func(r chi.Router) {
				r.With(s.requireRole(string(account.RoleMechanic))).Get("/queue", s.mechanicQueue)
			})

			r.Route("/assignments", func(r chi.Router) {
				r.With(s.requireRole(string(account.RoleMechanic))).Post("/{assignmentId}/accept", s.acceptAssignment)
			})

			r.Route("/sessions", func(r chi.Router) {
				r.With(s.requireRole(string(account.RoleCustomer))).Post("/bound", s.createBoundSession)
				r.Get("/{sessionId}", s.getSession)
				r.Get("/{sessionId}/events", s.listSessionEvents)
				r.Post("/{sessionId}/join", s.joinSession)
				r.Post("/{sessionId}/end", s.endSession)
				r.Post("/{sessionId}/cancel", s.cancelSession)
				r.With(s.requireRole(string(account.RoleAdmin))).Post("/{sessionId}/force-close", s.forceCloseSession)
			})

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", s.listNotifications)
				r.Post("/{notificationId}/read", s.markNotificationRead)
				r.Get("/sse", s.sseEndpoint)
			})
		})
	})

	r.Route("/internal", func(r chi.Router) {
		r.Use(s.requireSweepSecret)
		r.Post("/sweep", s.runSweep)
	})

	return r
}

// requireSweepSecret guards the internal cron surface with a shared secret.
func (s *Server) requireSweepSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.sweepSecret == "" {
			respondError(w, http.StatusForbidden, "FORBIDDEN", "sweep secret not configured")
			return
		}
		authz := r.Header.Get("Authorization")
		token := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.sweepSecret)) != 1 {
			respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid sweep secret")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Helpers

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":   code,
		"message": message,
	})
}

// respondDomainError maps known domain errors to their HTTP shape.
func respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, request.ErrActiveSessionExists):
		respondError(w, http.StatusConflict, "ACTIVE_SESSION_EXISTS", err.Error())
	case errors.Is(err, assignment.ErrAlreadyResolved):
		respondError(w, http.StatusConflict, "ALREADY_RESOLVED", err.Error())
	case errors.Is(err, request.ErrRequestNotCancelable):
		respondError(w, http.StatusConflict, "NOT_CANCELABLE", err.Error())
	case errors.Is(err, session.ErrInvalidTransition):
		respondError(w, http.StatusConflict, "INVALID_TRANSITION", err.Error())
	case errors.Is(err, session.ErrNotParticipant):
		respondError(w, http.StatusForbidden, "FORBIDDEN", err.Error())
	case errors.Is(err, appDispatch.ErrMechanicNotAllowed):
		respondError(w, http.StatusForbidden, "FORBIDDEN", err.Error())
	case errors.Is(err, appLifecycle.ErrNotCancelable):
		respondError(w, http.StatusForbidden, "FORBIDDEN", err.Error())
	case errors.Is(err, appLifecycle.ErrSessionNotFound):
		respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case strings.Contains(err.Error(), "not found"):
		respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}

func parseUUIDParam(r *http.Request, key string) (uuid.UUID, error) {
	val := chi.URLParam(r, key)
	return uuid.Parse(val)
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func parseLimitOffset(r *http.Request, defaultLimit, maxLimit int) (int, int) {
	limit := defaultLimit
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil {
			limit = l
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if o, err := strconv.Atoi(v); err == nil {
			offset = o
		}
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
