package domain

import (
	"context"
	"time"

	"hutkeeper/internal/models"
)

type Repository interface {
	CreateReservation(ctx context.Context, r *models.Reservation) error
	GetReservation(ctx context.Context, id int64) (*models.Reservation, error)
	GetReservationsInRange(ctx context.Context, start, end time.Time) ([]*models.Reservation, error)
	GetAllReservations(ctx context.Context) ([]*models.Reservation, error)
	GetUserReservations(ctx context.Context, userID int64) ([]*models.Reservation, error)
	UpdateReservationContent(ctx context.Context, id int64, description, displayMessage *string) error
	ApplyReservationTransition(ctx context.Context, id, fromVersion int64, upd models.TransitionUpdate) error
	DeleteReservation(ctx context.Context, id int64) error
	CountPendingReservations(ctx context.Context, includeCancellationRequests bool) (int64, error)
	MarkReservationNotified(ctx context.Context, id int64) error

	CreateUser(ctx context.Context, u *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetNotifiableAdmins(ctx context.Context) ([]*models.User, error)
	SetUserActive(ctx context.Context, id int64, active bool) error
	SetUserReceivesNotification(ctx context.Context, id int64, enabled bool) error

	CreateWhitelistEntry(ctx context.Context, e *models.WhitelistEntry) error
	GetWhitelistEntryByEmail(ctx context.Context, email string) (*models.WhitelistEntry, error)
	GetWhitelistEntries(ctx context.Context) ([]*models.WhitelistEntry, error)
	DeleteWhitelistEntry(ctx context.Context, id int64) error

	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}

// SessionRepository stores refresh sessions keyed by a token hash. A nil
// session and nil error together mean the session does not exist.
type SessionRepository interface {
	GetSession(ctx context.Context, tokenHash string) (*models.Session, error)
	SetSession(ctx context.Context, session *models.Session) error
	DeleteSession(ctx context.Context, tokenHash string) error
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type SyncWorker interface {
	EnqueueTask(ctx context.Context, taskType string, reservationID int64, r *models.Reservation, status string) error
	EnqueueSyncSchedule(ctx context.Context, start, end time.Time) error
}

// Notifier delivers lifecycle notices outside the service. Implementations
// must be safe to call from event bus goroutines.
type Notifier interface {
	NotifyAdmins(ctx context.Context, subject, body string) error
	NotifyUser(ctx context.Context, user *models.User, subject, body string) error
}
