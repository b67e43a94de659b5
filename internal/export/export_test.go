package export

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"hutkeeper/internal/database"
	"hutkeeper/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func newTestService(t *testing.T) (*Service, *database.DB) {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewService(db, filepath.Join(t.TempDir(), "exports"), &logger), db
}

func TestScheduleFile(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	user := &models.User{Email: "member@example.com", HashedPassword: "x", IsActive: true}
	require.NoError(t, db.CreateUser(ctx, user))

	start := time.Date(2025, 7, 4, 14, 0, 0, 0, time.UTC)
	r := &models.Reservation{
		UserID:        user.ID,
		Visibility:    models.VisibilityPublic,
		Purpose:       "club weekend",
		AttendeeCount: 4,
		StartTime:     start,
		EndTime:       start.Add(48 * time.Hour),
	}
	require.NoError(t, db.CreateReservation(ctx, r))

	filePath, err := svc.ScheduleFile(ctx, start.AddDate(0, 0, -1), start.AddDate(0, 0, 7))
	require.NoError(t, err)
	require.FileExists(t, filePath)

	f, err := excelize.OpenFile(filePath)
	require.NoError(t, err)
	defer f.Close()

	purpose, err := f.GetCellValue(sheetName, "F3")
	require.NoError(t, err)
	assert.Equal(t, "club weekend", purpose)

	status, err := f.GetCellValue(sheetName, "D3")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, status)

	requester, err := f.GetCellValue(sheetName, "H3")
	require.NoError(t, err)
	assert.Equal(t, "member@example.com", requester)
}

func TestScheduleFileEmptyRange(t *testing.T) {
	svc, _ := newTestService(t)

	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	filePath, err := svc.ScheduleFile(context.Background(), start, start.AddDate(0, 0, 7))
	require.NoError(t, err)
	require.FileExists(t, filePath)

	f, err := excelize.OpenFile(filePath)
	require.NoError(t, err)
	defer f.Close()

	// Only the period header and column headers
	value, err := f.GetCellValue(sheetName, "A3")
	require.NoError(t, err)
	assert.Empty(t, value)
}
