package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"hutkeeper/internal/config"
	"hutkeeper/internal/database"
	"hutkeeper/internal/domain"
	"hutkeeper/internal/export"
	"hutkeeper/internal/metrics"
	"hutkeeper/internal/models"
	"hutkeeper/internal/service"

	"github.com/rs/zerolog"
)

type principalKeyType struct{}

var principalKey principalKeyType

// Server exposes the reservation API over HTTP.
type Server struct {
	cfg          *config.Config
	auth         *service.AuthService
	reservations *service.ReservationService
	repo         domain.Repository
	exporter     *export.Service
	limiter      *rateLimiter
	server       *http.Server
	logger       *zerolog.Logger
}

func NewServer(
	cfg *config.Config,
	auth *service.AuthService,
	reservations *service.ReservationService,
	repo domain.Repository,
	exporter *export.Service,
	logger *zerolog.Logger,
) *Server {
	s := &Server{
		cfg:          cfg,
		auth:         auth,
		reservations: reservations,
		repo:         repo,
		exporter:     exporter,
		limiter:      newRateLimiter(cfg.HTTP.RateLimit),
		logger:       logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)

	mux.HandleFunc("/api/auth/register", s.handleRegister)
	mux.HandleFunc("/api/auth/login", s.handleLogin)
	mux.HandleFunc("/api/auth/refresh", s.handleRefresh)
	mux.HandleFunc("/api/auth/logout", s.handleLogout)
	mux.HandleFunc("/api/auth/me", s.handleMe)
	mux.HandleFunc("/api/auth/whitelist-check", s.handleWhitelistCheck)

	mux.HandleFunc("/api/reservations", s.handleReservations)
	mux.HandleFunc("/api/reservations/calendar", s.handleCalendar)
	mux.HandleFunc("/api/reservations/mine", s.handleMine)
	mux.HandleFunc("/api/reservations/", s.handleReservationByID)

	mux.HandleFunc("/api/admin/reservations", s.handleAdminReservations)
	mux.HandleFunc("/api/admin/reservations/pending-count", s.handlePendingCount)
	mux.HandleFunc("/api/admin/reservations/export", s.handleExport)
	mux.HandleFunc("/api/admin/reservations/", s.handleAdminReservationByID)

	mux.HandleFunc("/api/admin/users/", s.handleAdminUserByID)

	mux.HandleFunc("/api/admin/whitelist", s.handleWhitelist)
	mux.HandleFunc("/api/admin/whitelist/", s.handleWhitelistByID)

	mux.HandleFunc("/api/settings/", s.handleGetSetting)
	mux.HandleFunc("/api/admin/settings/", s.handlePutSetting)

	handler := s.loggingMiddleware(s.rateLimitMiddleware(s.principalMiddleware(mux)))

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return s
}

func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the root handler with the full middleware chain, for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// principalMiddleware resolves the bearer token into a principal. Requests
// without credentials proceed as anonymous; handlers decide what that may see.
func (s *Server) principalMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := models.Anonymous
		if header := r.Header.Get("Authorization"); len(header) > 7 && header[:7] == "Bearer " {
			p = s.auth.ResolvePrincipal(header[7:])
		}
		ctx := context.WithValue(r.Context(), principalKey, p)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.allow(clientIP(r)) {
			writeError(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		metrics.IncHTTP(r.URL.Path, strconv.Itoa(recorder.status))
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func principalFrom(r *http.Request) models.Principal {
	if p, ok := r.Context().Value(principalKey).(models.Principal); ok {
		return p
	}
	return models.Anonymous
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return "unknown"
}

func decodeBody(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

func writeJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, map[string]string{"code": code, "error": message})
}

// writeServiceError maps domain errors onto HTTP statuses. Unknown errors
// are treated as transient infrastructure failures.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case service.IsValidation(err):
		writeError(w, http.StatusUnprocessableEntity, "validation_error", err.Error())
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "forbidden")
	case errors.Is(err, service.ErrNotWhitelisted):
		writeError(w, http.StatusForbidden, "not_whitelisted", err.Error())
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrSessionExpired):
		writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
	case errors.Is(err, service.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate_limited", err.Error())
	case errors.Is(err, service.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, database.ErrConcurrentModification):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, database.ErrReservationNotFound),
		errors.Is(err, database.ErrUserNotFound),
		errors.Is(err, database.ErrWhitelistEntryNotFound),
		errors.Is(err, database.ErrSettingNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, database.ErrUserExists), errors.Is(err, database.ErrWhitelistEntryExists):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	default:
		s.logger.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusServiceUnavailable, "unavailable", "temporarily unavailable")
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
