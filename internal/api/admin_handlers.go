package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"hutkeeper/internal/metrics"
	"hutkeeper/internal/models"
)

func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) (models.Principal, bool) {
	p := principalFrom(r)
	if !p.Authenticated {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return p, false
	}
	if !p.IsAdmin {
		writeError(w, http.StatusForbidden, "forbidden", "admin access required")
		return p, false
	}
	return p, true
}

// handleAdminReservations returns the full ledger without role masking,
// including rejected and cancelled rows.
func (s *Server) handleAdminReservations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}

	reservations, err := s.repo.GetAllReservations(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"reservations": reservations})
}

// handleAdminUserByID toggles the account flags: deactivation locks the
// user out on the next refresh, the notification flag controls admin mail.
func (s *Server) handleAdminUserByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}

	idStr := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/admin/users/"), "/")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid user id")
		return
	}

	var body struct {
		IsActive             *bool `json:"is_active"`
		ReceivesNotification *bool `json:"receives_notification"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if body.IsActive == nil && body.ReceivesNotification == nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "nothing to update")
		return
	}

	if body.IsActive != nil {
		if err := s.repo.SetUserActive(r.Context(), id, *body.IsActive); err != nil {
			s.writeServiceError(w, err)
			return
		}
	}
	if body.ReceivesNotification != nil {
		if err := s.repo.SetUserReceivesNotification(r.Context(), id, *body.ReceivesNotification); err != nil {
			s.writeServiceError(w, err)
			return
		}
	}

	user, err := s.repo.GetUserByID(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"user": user})
}

func (s *Server) handlePendingCount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	p, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}

	count, err := s.reservations.PendingCount(r.Context(), p)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	metrics.SetPending(int(count))
	writeJSON(w, http.StatusOK, map[string]int64{"pending_count": count})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}

	start, end, ok := parseRange(w, r)
	if !ok {
		return
	}

	filePath, err := s.exporter.ScheduleFile(r.Context(), start, end)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	defer os.Remove(filePath)

	w.Header().Set("Content-Disposition", "attachment; filename="+filepath.Base(filePath))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	http.ServeFile(w, r, filePath)
}

// handleAdminReservationByID covers
//
//	PATCH  /api/admin/reservations/{id}/status
//	DELETE /api/admin/reservations/{id}
func (s *Server) handleAdminReservationByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/admin/reservations/")

	if idStr, ok := strings.CutSuffix(rest, "/status"); ok {
		if r.Method != http.MethodPatch {
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
			return
		}
		s.handleSetStatus(w, r, idStr)
		return
	}

	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	s.handleDeleteReservation(w, r, rest)
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request, idStr string) {
	id, ok := parseID(w, idStr)
	if !ok {
		return
	}

	var body struct {
		Status  string `json:"status"`
		Version int64  `json:"version"`
		Message string `json:"message"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	reservation, err := s.reservations.SetStatus(r.Context(), principalFrom(r), id, body.Version, body.Status, body.Message)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"reservation": reservation})
}

func (s *Server) handleDeleteReservation(w http.ResponseWriter, r *http.Request, idStr string) {
	id, ok := parseID(w, idStr)
	if !ok {
		return
	}

	if err := s.reservations.Delete(r.Context(), principalFrom(r), id); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleWhitelist(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		entries, err := s.repo.GetWhitelistEntries(r.Context())
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})

	case http.MethodPost:
		var body struct {
			Email          string `json:"email"`
			DisplayName    string `json:"display_name"`
			IsAdminDefault bool   `json:"is_admin_default"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
			return
		}
		email := strings.ToLower(strings.TrimSpace(body.Email))
		if email == "" || !strings.Contains(email, "@") {
			writeError(w, http.StatusUnprocessableEntity, "validation_error", "email: must be a valid email address")
			return
		}

		entry := &models.WhitelistEntry{
			Email:          email,
			DisplayName:    strings.TrimSpace(body.DisplayName),
			IsAdminDefault: body.IsAdminDefault,
			AddedByUserID:  p.UserID,
		}
		if err := s.repo.CreateWhitelistEntry(r.Context(), entry); err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]interface{}{"entry": entry})

	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}

func (s *Server) handleWhitelistByID(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	idStr := strings.TrimPrefix(r.URL.Path, "/api/admin/whitelist/")
	id, err := strconv.ParseInt(strings.TrimSuffix(idStr, "/"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid whitelist entry id")
		return
	}

	if err := s.repo.DeleteWhitelistEntry(r.Context(), id); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleGetSetting(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	key := strings.TrimPrefix(r.URL.Path, "/api/settings/")
	if key == "" || strings.Contains(key, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", "setting key is required")
		return
	}

	value, err := s.repo.GetSetting(r.Context(), key)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": value})
}

func (s *Server) handlePutSetting(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}
	if r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	key := strings.TrimPrefix(r.URL.Path, "/api/admin/settings/")
	if key == "" || strings.Contains(key, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", "setting key is required")
		return
	}

	var body struct {
		Value string `json:"value"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	if err := s.repo.SetSetting(r.Context(), key, body.Value); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": body.Value})
}

// ExpireStaleExports removes export files older than a day.
func (s *Server) ExpireStaleExports() {
	entries, err := os.ReadDir(s.cfg.Exports.Path)
	if err != nil {
		return
	}
	cutoff := time.Now().Add(-24 * time.Hour)
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil || info.IsDir() {
			continue
		}
		if info.ModTime().Before(cutoff) {
			_ = os.Remove(filepath.Join(s.cfg.Exports.Path, entry.Name()))
		}
	}
}
