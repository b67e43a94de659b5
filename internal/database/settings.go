package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

func (db *DB) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := db.QueryRowContext(ctx, `SELECT value FROM system_settings WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrSettingNotFound
		}
		return "", fmt.Errorf("failed to get setting: %w", err)
	}
	return value, nil
}

func (db *DB) SetSetting(ctx context.Context, key, value string) error {
	query := `INSERT INTO system_settings (key, value) VALUES (?, ?)
              ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	if _, err := db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to set setting: %w", err)
	}
	return nil
}
