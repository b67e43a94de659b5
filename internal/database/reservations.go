package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"hutkeeper/internal/models"
)

const reservationColumns = `id, user_id, status, visibility, purpose, display_message,
	description, cancellation_reason, rejection_reason, approval_message,
	attendee_count, allow_additional_members, start_time, end_time,
	notification_sent, created_at, updated_at, version`

func (db *DB) CreateReservation(ctx context.Context, r *models.Reservation) error {
	query := `INSERT INTO reservations (
				user_id, status, visibility, purpose, display_message, description,
				cancellation_reason, rejection_reason, approval_message,
				attendee_count, allow_additional_members, start_time, end_time,
				notification_sent, created_at, updated_at, version
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC()
	if r.Status == "" {
		r.Status = models.StatusPending
	}
	result, err := db.ExecContext(ctx, query,
		r.UserID,
		r.Status,
		r.Visibility,
		r.Purpose,
		r.DisplayMessage,
		r.Description,
		r.CancellationReason,
		r.RejectionReason,
		r.ApprovalMessage,
		r.AttendeeCount,
		r.AllowAdditionalMembers,
		r.StartTime.UTC(),
		r.EndTime.UTC(),
		r.NotificationSent,
		now,
		now,
		1,
	)
	if err != nil {
		return fmt.Errorf("failed to create reservation: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	r.ID = id
	r.CreatedAt = now
	r.UpdatedAt = now
	r.Version = 1

	return nil
}

func (db *DB) GetReservation(ctx context.Context, id int64) (*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = ?`
	r, err := db.scanReservation(db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReservationNotFound
		}
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	return r, nil
}

// GetReservationsInRange returns every reservation whose interval intersects
// the half-open window [start, end). Ordering is by start time; callers that
// need a different order sort themselves.
func (db *DB) GetReservationsInRange(ctx context.Context, start, end time.Time) ([]*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations
              WHERE start_time < ? AND end_time > ?
              ORDER BY start_time ASC`
	return db.queryReservations(ctx, query, end.UTC(), start.UTC())
}

func (db *DB) GetAllReservations(ctx context.Context) ([]*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations ORDER BY start_time DESC`
	return db.queryReservations(ctx, query)
}

func (db *DB) GetUserReservations(ctx context.Context, userID int64) ([]*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations
              WHERE user_id = ? ORDER BY start_time DESC`
	return db.queryReservations(ctx, query, userID)
}

// UpdateReservationContent patches the owner-editable free-text fields. Nil
// pointers leave the column untouched. Status is deliberately not checked:
// content edits are legal at any lifecycle stage.
func (db *DB) UpdateReservationContent(ctx context.Context, id int64, description, displayMessage *string) error {
	sets := []string{"updated_at = ?"}
	args := []interface{}{time.Now().UTC()}
	if description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *description)
	}
	if displayMessage != nil {
		sets = append(sets, "display_message = ?")
		args = append(args, *displayMessage)
	}
	args = append(args, id)

	query := `UPDATE reservations SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update reservation content: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrReservationNotFound
	}
	return nil
}

// ApplyReservationTransition commits a status transition with an optimistic
// version precondition. The legality of the move is the caller's concern;
// the store only guarantees that exactly one of two racing writers wins.
func (db *DB) ApplyReservationTransition(ctx context.Context, id, fromVersion int64, upd models.TransitionUpdate) error {
	sets := []string{"status = ?", "version = version + 1", "updated_at = ?"}
	args := []interface{}{upd.Status, time.Now().UTC()}
	if upd.RejectionReason != nil {
		sets = append(sets, "rejection_reason = ?")
		args = append(args, *upd.RejectionReason)
	}
	if upd.ApprovalMessage != nil {
		sets = append(sets, "approval_message = ?")
		args = append(args, *upd.ApprovalMessage)
	}
	if upd.CancellationReason != nil {
		sets = append(sets, "cancellation_reason = ?")
		args = append(args, *upd.CancellationReason)
	}
	args = append(args, id, fromVersion)

	query := `UPDATE reservations SET ` + strings.Join(sets, ", ") + ` WHERE id = ? AND version = ?`
	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to apply reservation transition: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		// Distinguish a vanished row from a lost race.
		var one int
		err := db.QueryRowContext(ctx, `SELECT 1 FROM reservations WHERE id = ?`, id).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrReservationNotFound
		}
		return ErrConcurrentModification
	}
	return nil
}

// DeleteReservation removes the row unconditionally. No tombstone is kept.
func (db *DB) DeleteReservation(ctx context.Context, id int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM reservations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete reservation: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrReservationNotFound
	}
	return nil
}

func (db *DB) CountPendingReservations(ctx context.Context, includeCancellationRequests bool) (int64, error) {
	query := `SELECT COUNT(*) FROM reservations WHERE status = ?`
	args := []interface{}{models.StatusPending}
	if includeCancellationRequests {
		query = `SELECT COUNT(*) FROM reservations WHERE status IN (?, ?)`
		args = append(args, models.StatusCancellationRequested)
	}

	var count int64
	if err := db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count pending reservations: %w", err)
	}
	return count, nil
}

func (db *DB) MarkReservationNotified(ctx context.Context, id int64) error {
	_, err := db.ExecContext(ctx,
		`UPDATE reservations SET notification_sent = 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark reservation notified: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (db *DB) scanReservation(row rowScanner) (*models.Reservation, error) {
	var r models.Reservation
	err := row.Scan(
		&r.ID, &r.UserID, &r.Status, &r.Visibility, &r.Purpose, &r.DisplayMessage,
		&r.Description, &r.CancellationReason, &r.RejectionReason, &r.ApprovalMessage,
		&r.AttendeeCount, &r.AllowAdditionalMembers, &r.StartTime, &r.EndTime,
		&r.NotificationSent, &r.CreatedAt, &r.UpdatedAt, &r.Version,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (db *DB) queryReservations(ctx context.Context, query string, args ...interface{}) ([]*models.Reservation, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reservations: %w", err)
	}
	defer rows.Close()

	var reservations []*models.Reservation
	for rows.Next() {
		r, err := db.scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		reservations = append(reservations, r)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return reservations, nil
}
