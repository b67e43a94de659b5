package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"hutkeeper/internal/service"
)

type createReservationRequest struct {
	Purpose                string    `json:"purpose"`
	DisplayMessage         string    `json:"display_message"`
	Description            string    `json:"description"`
	Visibility             string    `json:"visibility"`
	AttendeeCount          int64     `json:"attendee_count"`
	AllowAdditionalMembers bool      `json:"allow_additional_members"`
	StartTime              time.Time `json:"start_time"`
	EndTime                time.Time `json:"end_time"`
}

func (s *Server) handleReservations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateReservation(w, r)
	case http.MethodGet:
		s.handleListReservations(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}

func (s *Server) handleCreateReservation(w http.ResponseWriter, r *http.Request) {
	var body createReservationRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	reservation, err := s.reservations.Create(r.Context(), principalFrom(r), service.CreateReservationInput{
		Purpose:                body.Purpose,
		DisplayMessage:         body.DisplayMessage,
		Description:            body.Description,
		Visibility:             body.Visibility,
		AttendeeCount:          body.AttendeeCount,
		AllowAdditionalMembers: body.AllowAdditionalMembers,
		StartTime:              body.StartTime,
		EndTime:                body.EndTime,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"reservation": reservation})
}

// handleListReservations is the role-filtered listing over the whole
// schedule: one year back, one year forward.
func (s *Server) handleListReservations(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	events, err := s.reservations.Calendar(r.Context(), principalFrom(r),
		now.AddDate(-1, 0, 0), now.AddDate(1, 0, 0), "")
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"reservations": events})
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	start, end, ok := parseRange(w, r)
	if !ok {
		return
	}

	events, err := s.reservations.Calendar(r.Context(), principalFrom(r), start, end,
		strings.TrimSpace(r.URL.Query().Get("visibility")))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

func (s *Server) handleMine(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	events, err := s.reservations.Mine(r.Context(), principalFrom(r))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"reservations": events})
}

// handleReservationByID covers
//
//	GET   /api/reservations/{id}
//	PATCH /api/reservations/{id}
//	POST  /api/reservations/{id}/cancellation-request
func (s *Server) handleReservationByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/reservations/")

	if idStr, ok := strings.CutSuffix(rest, "/cancellation-request"); ok {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
			return
		}
		s.handleCancellationRequest(w, r, idStr)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleGetReservation(w, r, rest)
	case http.MethodPatch:
		s.handleEditReservation(w, r, rest)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}

func (s *Server) handleGetReservation(w http.ResponseWriter, r *http.Request, idStr string) {
	id, ok := parseID(w, idStr)
	if !ok {
		return
	}

	event, err := s.reservations.Get(r.Context(), principalFrom(r), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"reservation": event})
}

func (s *Server) handleEditReservation(w http.ResponseWriter, r *http.Request, idStr string) {
	id, ok := parseID(w, idStr)
	if !ok {
		return
	}

	var body struct {
		Description    *string `json:"description"`
		DisplayMessage *string `json:"display_message"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	reservation, err := s.reservations.EditContent(r.Context(), principalFrom(r), id, body.Description, body.DisplayMessage)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"reservation": reservation})
}

func (s *Server) handleCancellationRequest(w http.ResponseWriter, r *http.Request, idStr string) {
	id, ok := parseID(w, idStr)
	if !ok {
		return
	}

	var body struct {
		Version int64  `json:"version"`
		Reason  string `json:"reason"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	reservation, err := s.reservations.RequestCancellation(r.Context(), principalFrom(r), id, body.Version, body.Reason)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"reservation": reservation})
}

func parseID(w http.ResponseWriter, idStr string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSuffix(idStr, "/"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid reservation id")
		return 0, false
	}
	return id, true
}

func parseRange(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	startStr := strings.TrimSpace(r.URL.Query().Get("start"))
	endStr := strings.TrimSpace(r.URL.Query().Get("end"))
	if startStr == "" || endStr == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "start and end are required")
		return time.Time{}, time.Time{}, false
	}

	start, err := parseDateOrTime(startStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid start; expected YYYY-MM-DD or RFC3339")
		return time.Time{}, time.Time{}, false
	}
	end, err := parseDateOrTime(endStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid end; expected YYYY-MM-DD or RFC3339")
		return time.Time{}, time.Time{}, false
	}
	if end.Before(start) {
		writeError(w, http.StatusBadRequest, "bad_request", "end must not be before start")
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

func parseDateOrTime(raw string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}
