package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"hutkeeper/internal/domain"
	"hutkeeper/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const sheetName = "Schedule"

// Service renders reservation schedules as xlsx files for admins.
type Service struct {
	repo   domain.Repository
	path   string
	logger *zerolog.Logger
}

func NewService(repo domain.Repository, path string, logger *zerolog.Logger) *Service {
	return &Service{repo: repo, path: path, logger: logger}
}

// ScheduleFile writes an xlsx file with every reservation overlapping the
// range and returns its path. The caller is responsible for cleanup.
func (s *Service) ScheduleFile(ctx context.Context, startDate, endDate time.Time) (string, error) {
	if err := os.MkdirAll(s.path, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %v", err)
	}

	reservations, err := s.repo.GetReservationsInRange(ctx, startDate, endDate)
	if err != nil {
		return "", fmt.Errorf("error getting reservations: %v", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %v", err)
	}
	f.SetActiveSheet(index)

	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("Period: %s - %s",
		startDate.Format("02.01.2006"), endDate.Format("02.01.2006")))
	_ = f.MergeCell(sheetName, "A1", "J1")

	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(sheetName, "A1", "A1", titleStyle)

	writeHeaders(f)
	s.writeReservations(ctx, f, reservations)

	_ = f.SetColWidth(sheetName, "A", "A", 8)
	_ = f.SetColWidth(sheetName, "B", "C", 18)
	_ = f.SetColWidth(sheetName, "D", "E", 14)
	_ = f.SetColWidth(sheetName, "F", "F", 28)
	_ = f.SetColWidth(sheetName, "G", "G", 10)
	_ = f.SetColWidth(sheetName, "H", "J", 22)

	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("schedule_%s_to_%s_%s.xlsx",
		startDate.Format("2006-01-02"),
		endDate.Format("2006-01-02"),
		uuid.NewString()[:8])
	filePath := filepath.Join(s.path, fileName)

	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %v", err)
	}

	s.logger.Info().Str("file_path", filePath).Int("reservations", len(reservations)).Msg("Schedule export created")
	return filePath, nil
}

func writeHeaders(f *excelize.File) {
	headers := []string{
		"ID", "Start", "End", "Status", "Visibility",
		"Purpose", "Guests", "Requester", "Decision note", "Cancellation reason",
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})

	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(sheetName, cell, header)
		_ = f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}
}

func (s *Service) writeReservations(ctx context.Context, f *excelize.File, reservations []*models.Reservation) {
	emails := make(map[int64]string)

	for i, r := range reservations {
		row := i + 3

		email, ok := emails[r.UserID]
		if !ok {
			if u, err := s.repo.GetUserByID(ctx, r.UserID); err == nil {
				email = u.Email
			}
			emails[r.UserID] = email
		}

		decision := r.ApprovalMessage
		if r.Status == models.StatusRejected {
			decision = r.RejectionReason
		}

		_ = f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), r.ID)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), r.StartTime.Format("02.01.2006 15:04"))
		_ = f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), r.EndTime.Format("02.01.2006 15:04"))
		_ = f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), r.Status)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), r.Visibility)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("F%d", row), r.Purpose)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("G%d", row), r.AttendeeCount)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("H%d", row), email)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("I%d", row), decision)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("J%d", row), r.CancellationReason)

		if styleID, err := statusStyle(f, r.Status); err == nil {
			_ = f.SetCellStyle(sheetName, fmt.Sprintf("A%d", row), fmt.Sprintf("J%d", row), styleID)
		}
	}
}

// statusStyle возвращает стиль строки по статусу заявки
func statusStyle(f *excelize.File, status string) (int, error) {
	var color string
	switch status {
	case models.StatusApproved:
		color = "#C6EFCE"
	case models.StatusPending, models.StatusCancellationRequested:
		color = "#FFEB9C"
	case models.StatusRejected, models.StatusCancelled:
		color = "#FFC7CE"
	default:
		color = "#FFFFFF"
	}

	return f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "left",
			Vertical:   "top",
			WrapText:   true,
		},
	})
}
