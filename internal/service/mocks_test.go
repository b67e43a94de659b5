package service

import (
	"context"
	"time"

	"hutkeeper/internal/models"

	"github.com/stretchr/testify/mock"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) CreateReservation(ctx context.Context, r *models.Reservation) error {
	return m.Called(ctx, r).Error(0)
}
func (m *mockRepo) GetReservation(ctx context.Context, id int64) (*models.Reservation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Reservation), args.Error(1)
}
func (m *mockRepo) GetReservationsInRange(ctx context.Context, start, end time.Time) ([]*models.Reservation, error) {
	args := m.Called(ctx, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Reservation), args.Error(1)
}
func (m *mockRepo) GetAllReservations(ctx context.Context) ([]*models.Reservation, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Reservation), args.Error(1)
}
func (m *mockRepo) GetUserReservations(ctx context.Context, userID int64) ([]*models.Reservation, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Reservation), args.Error(1)
}
func (m *mockRepo) UpdateReservationContent(ctx context.Context, id int64, description, displayMessage *string) error {
	return m.Called(ctx, id, description, displayMessage).Error(0)
}
func (m *mockRepo) ApplyReservationTransition(ctx context.Context, id, fromVersion int64, upd models.TransitionUpdate) error {
	return m.Called(ctx, id, fromVersion, upd).Error(0)
}
func (m *mockRepo) DeleteReservation(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}
func (m *mockRepo) CountPendingReservations(ctx context.Context, includeCancellationRequests bool) (int64, error) {
	args := m.Called(ctx, includeCancellationRequests)
	return args.Get(0).(int64), args.Error(1)
}
func (m *mockRepo) MarkReservationNotified(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockRepo) CreateUser(ctx context.Context, u *models.User) error {
	return m.Called(ctx, u).Error(0)
}
func (m *mockRepo) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}
func (m *mockRepo) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}
func (m *mockRepo) GetNotifiableAdmins(ctx context.Context) ([]*models.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.User), args.Error(1)
}
func (m *mockRepo) SetUserActive(ctx context.Context, id int64, active bool) error {
	return m.Called(ctx, id, active).Error(0)
}
func (m *mockRepo) SetUserReceivesNotification(ctx context.Context, id int64, enabled bool) error {
	return m.Called(ctx, id, enabled).Error(0)
}

func (m *mockRepo) CreateWhitelistEntry(ctx context.Context, e *models.WhitelistEntry) error {
	return m.Called(ctx, e).Error(0)
}
func (m *mockRepo) GetWhitelistEntryByEmail(ctx context.Context, email string) (*models.WhitelistEntry, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WhitelistEntry), args.Error(1)
}
func (m *mockRepo) GetWhitelistEntries(ctx context.Context) ([]*models.WhitelistEntry, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.WhitelistEntry), args.Error(1)
}
func (m *mockRepo) DeleteWhitelistEntry(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockRepo) GetSetting(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}
func (m *mockRepo) SetSetting(ctx context.Context, key, value string) error {
	return m.Called(ctx, key, value).Error(0)
}

type mockSyncWorker struct {
	mock.Mock
}

func (m *mockSyncWorker) EnqueueTask(ctx context.Context, taskType string, reservationID int64, r *models.Reservation, status string) error {
	return m.Called(ctx, taskType, reservationID, r, status).Error(0)
}
func (m *mockSyncWorker) EnqueueSyncSchedule(ctx context.Context, start, end time.Time) error {
	return m.Called(ctx, start, end).Error(0)
}

type mockEventBus struct {
	mock.Mock
}

func (m *mockEventBus) PublishJSON(eventType string, payload interface{}) error {
	return m.Called(eventType, payload).Error(0)
}
