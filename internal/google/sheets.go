package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"hutkeeper/internal/models"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const (
	scheduleSheet = "Schedule"
	requestRange  = scheduleSheet + "!A:A"

	callTimeout = 30 * time.Second
)

var errRowNotFound = errors.New("reservation row not found")

// SheetsService mirrors the reservation schedule into a Google spreadsheet
// that hut admins share with the club. One row per reservation, keyed by
// reservation id in column A.
type SheetsService struct {
	service       *sheets.Service
	spreadsheetID string
	rowCache      map[int64]int
	cacheMu       sync.RWMutex
}

func NewSheetsService(credentialsFile, spreadsheetID string) (*SheetsService, error) {
	ctx := context.Background()

	// Читаем файл учетных данных сервисного аккаунта
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %v", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %v", err)
	}

	client := config.Client(ctx)

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %v", err)
	}

	service := &SheetsService{
		service:       srv,
		spreadsheetID: spreadsheetID,
		rowCache:      make(map[int64]int),
	}

	// Warm up cache in background
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		service.WarmUpCache(ctx)
	}()

	// Periodic cache refresh every 1 hour
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
			service.WarmUpCache(ctx)
			cancel()
		}
	}()

	return service, nil
}

// TestConnection проверяет подключение к таблице
func (s *SheetsService) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, scheduleSheet+"!A1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %v", err)
	}
	return nil
}

// GetServiceAccountEmail возвращает email сервисного аккаунта
func (s *SheetsService) GetServiceAccountEmail(credentialsFile string) (string, error) {
	file, err := os.ReadFile(credentialsFile)
	if err != nil {
		return "", err
	}

	var creds struct {
		ClientEmail string `json:"client_email"`
	}

	if err := json.Unmarshal(file, &creds); err != nil {
		return "", err
	}

	return creds.ClientEmail, nil
}

// WarmUpCache populates the row index cache by reading the entire ID column.
func (s *SheetsService) WarmUpCache(ctx context.Context) error {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, requestRange).Context(ctx).Do()
	if err != nil {
		return err
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache = make(map[int64]int)

	for i, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		var id int64
		switch v := row[0].(type) {
		case float64:
			id = int64(v)
		case string:
			fmt.Sscanf(v, "%d", &id)
		}
		if id > 0 {
			s.rowCache[id] = i + 1
		}
	}
	return nil
}

// UpsertReservation updates an existing reservation row or appends a new
// one if not found.
func (s *SheetsService) UpsertReservation(r *models.Reservation) error {
	if r == nil {
		return fmt.Errorf("reservation is nil")
	}

	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	rowIdx, err := s.findReservationRow(ctx, r.ID)
	if err != nil {
		if errors.Is(err, errRowNotFound) {
			return s.appendReservation(ctx, r)
		}
		return err
	}

	rangeData := fmt.Sprintf("%s!A%d:J%d", scheduleSheet, rowIdx, rowIdx)
	valueRange := &sheets.ValueRange{
		Values: [][]interface{}{reservationRowValues(r)},
	}

	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, rangeData, valueRange).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return err
}

// DeleteReservationRow removes the row that corresponds to reservationID.
func (s *SheetsService) DeleteReservationRow(reservationID int64) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	rowIdx, err := s.findReservationRow(ctx, reservationID)
	if err != nil {
		return err
	}

	rangeData := fmt.Sprintf("%s!A%d:J%d", scheduleSheet, rowIdx, rowIdx)
	_, err = s.service.Spreadsheets.Values.Clear(s.spreadsheetID, rangeData, &sheets.ClearValuesRequest{}).
		Context(ctx).
		Do()
	if err == nil {
		s.deleteCacheRow(reservationID)
	}
	return err
}

// UpdateReservationStatus updates status (and the updated-at stamp) for a
// reservation row.
func (s *SheetsService) UpdateReservationStatus(reservationID int64, status string) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	rowIdx, err := s.findReservationRow(ctx, reservationID)
	if err != nil {
		return err
	}

	now := time.Now().Format("2006-01-02 15:04:05")

	statusRange := fmt.Sprintf("%s!C%d:C%d", scheduleSheet, rowIdx, rowIdx)
	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, statusRange, &sheets.ValueRange{
		Values: [][]interface{}{{status}},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return err
	}

	updatedRange := fmt.Sprintf("%s!J%d:J%d", scheduleSheet, rowIdx, rowIdx)
	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, updatedRange, &sheets.ValueRange{
		Values: [][]interface{}{{now}},
	}).ValueInputOption("RAW").Context(ctx).Do()
	return err
}

// ReplaceScheduleSheet полностью перезаписывает лист расписания
func (s *SheetsService) ReplaceScheduleSheet(reservations []*models.Reservation) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	// Очищаем весь лист (кроме заголовков)
	clearRange := scheduleSheet + "!A2:Z"
	_, err := s.service.Spreadsheets.Values.Clear(s.spreadsheetID, clearRange, &sheets.ClearValuesRequest{}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to clear schedule sheet: %v", err)
	}

	var values [][]interface{}
	for _, r := range reservations {
		values = append(values, reservationRowValues(r))
	}

	valueRange := &sheets.ValueRange{
		Values: values,
	}

	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, scheduleSheet+"!A2", valueRange).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to update schedule sheet: %v", err)
	}

	// Re-populate cache
	s.cacheMu.Lock()
	s.rowCache = make(map[int64]int)
	for i, r := range reservations {
		s.rowCache[r.ID] = i + 2 // +2 because data starts at row 2
	}
	s.cacheMu.Unlock()

	return nil
}

// findReservationRow locates row index (1-based) for a reservation id in
// column A with cache.
func (s *SheetsService) findReservationRow(ctx context.Context, reservationID int64) (int, error) {
	if reservationID == 0 {
		return 0, fmt.Errorf("reservation id is required")
	}

	if row, ok := s.getCachedRow(reservationID); ok {
		return row, nil
	}

	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, requestRange).Context(ctx).Do()
	if err != nil {
		return 0, err
	}

	for i, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		switch v := row[0].(type) {
		case float64:
			if int64(v) == reservationID {
				rowIdx := i + 1 // Values are zero-based; sheet rows are 1-based
				s.setCachedRow(reservationID, rowIdx)
				return rowIdx, nil
			}
		case string:
			// if ID stored as string
			if v == fmt.Sprintf("%d", reservationID) {
				rowIdx := i + 1
				s.setCachedRow(reservationID, rowIdx)
				return rowIdx, nil
			}
		}
	}

	return 0, errRowNotFound
}

func (s *SheetsService) appendReservation(ctx context.Context, r *models.Reservation) error {
	valueRange := &sheets.ValueRange{
		Values: [][]interface{}{reservationRowValues(r)},
	}

	_, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, requestRange, valueRange).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()

	return err
}

func (s *SheetsService) getCachedRow(id int64) (int, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	row, ok := s.rowCache[id]
	return row, ok
}

func (s *SheetsService) setCachedRow(id int64, row int) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache[id] = row
}

func (s *SheetsService) deleteCacheRow(id int64) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	delete(s.rowCache, id)
}

// ClearCache clears the row index cache.
func (s *SheetsService) ClearCache() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache = make(map[int64]int)
}

func reservationRowValues(r *models.Reservation) []interface{} {
	return []interface{}{
		r.ID,
		r.UserID,
		r.Status,
		r.Visibility,
		r.Purpose,
		r.StartTime.Format("2006-01-02 15:04"),
		r.EndTime.Format("2006-01-02 15:04"),
		r.AttendeeCount,
		r.CreatedAt.Format("2006-01-02 15:04:05"),
		r.UpdatedAt.Format("2006-01-02 15:04:05"),
	}
}
