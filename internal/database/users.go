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

func (db *DB) CreateUser(ctx context.Context, user *models.User) error {
	query := `INSERT INTO users (
				email, hashed_password, is_admin, is_active, receives_notification,
				created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC()
	result, err := db.ExecContext(ctx, query,
		user.Email,
		user.HashedPassword,
		user.IsAdmin,
		user.IsActive,
		user.ReceivesNotification,
		now,
		now,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrUserExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	user.ID = id
	user.CreatedAt = now
	user.UpdatedAt = now

	return nil
}

func (db *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT id, email, hashed_password, is_admin, is_active,
	                 receives_notification, created_at, updated_at
              FROM users WHERE email = ?`
	return db.queryUser(ctx, query, email)
}

func (db *DB) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT id, email, hashed_password, is_admin, is_active,
	                 receives_notification, created_at, updated_at
              FROM users WHERE id = ?`
	return db.queryUser(ctx, query, id)
}

func (db *DB) queryUser(ctx context.Context, query string, args ...interface{}) (*models.User, error) {
	var user models.User
	err := db.QueryRowContext(ctx, query, args...).Scan(
		&user.ID, &user.Email, &user.HashedPassword, &user.IsAdmin, &user.IsActive,
		&user.ReceivesNotification, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// GetNotifiableAdmins returns active admins that opted into notifications.
func (db *DB) GetNotifiableAdmins(ctx context.Context) ([]*models.User, error) {
	query := `SELECT id, email, hashed_password, is_admin, is_active,
	                 receives_notification, created_at, updated_at
              FROM users
              WHERE is_admin = 1 AND is_active = 1 AND receives_notification = 1`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get notifiable admins: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		var user models.User
		err := rows.Scan(
			&user.ID, &user.Email, &user.HashedPassword, &user.IsAdmin, &user.IsActive,
			&user.ReceivesNotification, &user.CreatedAt, &user.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		users = append(users, &user)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return users, nil
}

func (db *DB) SetUserActive(ctx context.Context, id int64, active bool) error {
	result, err := db.ExecContext(ctx,
		`UPDATE users SET is_active = ?, updated_at = ? WHERE id = ?`,
		active, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update user active flag: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (db *DB) SetUserReceivesNotification(ctx context.Context, id int64, enabled bool) error {
	result, err := db.ExecContext(ctx,
		`UPDATE users SET receives_notification = ?, updated_at = ? WHERE id = ?`,
		enabled, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update user notification flag: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}
