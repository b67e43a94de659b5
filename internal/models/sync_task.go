package models

import (
	"database/sql"
	"time"
)

// SyncTask is a persisted unit of work for the sheets mirror worker.
type SyncTask struct {
	ID            int64
	TaskType      string
	ReservationID int64
	Payload       string
	Status        string
	RetryCount    int
	LastError     sql.NullString
	CreatedAt     time.Time
	ProcessedAt   sql.NullTime
	NextRetryAt   sql.NullTime
}
