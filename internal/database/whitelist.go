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

func (db *DB) CreateWhitelistEntry(ctx context.Context, entry *models.WhitelistEntry) error {
	query := `INSERT INTO whitelist (email, display_name, is_admin_default, added_by_user_id, created_at)
              VALUES (?, ?, ?, ?, ?)`
	now := time.Now().UTC()
	result, err := db.ExecContext(ctx, query,
		entry.Email,
		entry.DisplayName,
		entry.IsAdminDefault,
		entry.AddedByUserID,
		now,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrWhitelistEntryExists
		}
		return fmt.Errorf("failed to create whitelist entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	entry.ID = id
	entry.CreatedAt = now

	return nil
}

func (db *DB) GetWhitelistEntryByEmail(ctx context.Context, email string) (*models.WhitelistEntry, error) {
	query := `SELECT id, email, display_name, is_admin_default, added_by_user_id, created_at
              FROM whitelist WHERE email = ?`
	var entry models.WhitelistEntry
	err := db.QueryRowContext(ctx, query, email).Scan(
		&entry.ID, &entry.Email, &entry.DisplayName, &entry.IsAdminDefault,
		&entry.AddedByUserID, &entry.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWhitelistEntryNotFound
		}
		return nil, fmt.Errorf("failed to get whitelist entry: %w", err)
	}
	return &entry, nil
}

func (db *DB) GetWhitelistEntries(ctx context.Context) ([]*models.WhitelistEntry, error) {
	query := `SELECT id, email, display_name, is_admin_default, added_by_user_id, created_at
              FROM whitelist ORDER BY created_at DESC`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get whitelist entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.WhitelistEntry
	for rows.Next() {
		var entry models.WhitelistEntry
		err := rows.Scan(
			&entry.ID, &entry.Email, &entry.DisplayName, &entry.IsAdminDefault,
			&entry.AddedByUserID, &entry.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		entries = append(entries, &entry)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}

func (db *DB) DeleteWhitelistEntry(ctx context.Context, id int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM whitelist WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete whitelist entry: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrWhitelistEntryNotFound
	}
	return nil
}
