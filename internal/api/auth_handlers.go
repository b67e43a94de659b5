package api

import (
	"net/http"
	"strings"
	"time"

	"hutkeeper/internal/service"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	var body credentialsRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	user, err := s.auth.Register(r.Context(), body.Email, body.Password)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	tokens, _, err := s.auth.Login(r.Context(), body.Email, body.Password, r.UserAgent(), clientIP(r))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.setRefreshCookie(w, tokens.RefreshToken, tokens.RefreshExpiresAt)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"user":   user,
		"tokens": tokens,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	var body credentialsRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	tokens, user, err := s.auth.Login(r.Context(), body.Email, body.Password, r.UserAgent(), clientIP(r))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.setRefreshCookie(w, tokens.RefreshToken, tokens.RefreshExpiresAt)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":   user,
		"tokens": tokens,
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	tokens, err := s.auth.Refresh(r.Context(), s.refreshCookie(r), r.UserAgent(), clientIP(r))
	if err != nil {
		s.clearRefreshCookie(w)
		s.writeServiceError(w, err)
		return
	}

	s.setRefreshCookie(w, tokens.RefreshToken, tokens.RefreshExpiresAt)
	writeJSON(w, http.StatusOK, map[string]interface{}{"tokens": tokens})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	if err := s.auth.Logout(r.Context(), s.refreshCookie(r)); err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	p := principalFrom(r)
	if !p.Authenticated {
		s.writeServiceError(w, service.ErrSessionExpired)
		return
	}

	user, err := s.repo.GetUserByID(r.Context(), p.UserID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"user": user})
}

func (s *Server) handleWhitelistCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "email is required")
		return
	}

	ok, err := s.auth.IsWhitelisted(r.Context(), email)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"whitelisted": ok})
}

func (s *Server) setRefreshCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.Auth.RefreshCookieName,
		Value:    token,
		Path:     s.cfg.Auth.RefreshCookiePath,
		Expires:  expires,
		HttpOnly: true,
		Secure:   s.cfg.Auth.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

func (s *Server) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.Auth.RefreshCookieName,
		Path:     s.cfg.Auth.RefreshCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.Auth.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

func (s *Server) refreshCookie(r *http.Request) string {
	cookie, err := r.Cookie(s.cfg.Auth.RefreshCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}
