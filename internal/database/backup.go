package database

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"hutkeeper/internal/config"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// BackupService periodically snapshots the SQLite file. A hard delete of a
// reservation is irreversible in the live database, so the snapshots are the
// only recovery path operators have.
type BackupService struct {
	dbPath string
	config config.BackupConfig
	logger *zerolog.Logger
}

func NewBackupService(dbPath string, cfg config.BackupConfig, logger *zerolog.Logger) *BackupService {
	return &BackupService{
		dbPath: dbPath,
		config: cfg,
		logger: logger,
	}
}

func (s *BackupService) Start(ctx context.Context) {
	if !s.config.Enabled {
		s.logger.Info().Msg("backup service is disabled")
		return
	}

	s.logger.Info().Str("interval", s.config.Interval).Msg("backup service started")

	interval := 24 * time.Hour
	if s.config.Interval != "" {
		if d, err := time.ParseDuration(s.config.Interval); err == nil {
			interval = d
		} else {
			s.logger.Warn().Err(err).Str("interval", s.config.Interval).Msg("failed to parse backup interval, using default 24h")
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Run first backup immediately
	if err := s.PerformBackup(); err != nil {
		s.logger.Error().Err(err).Msg("initial backup failed")
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.PerformBackup(); err != nil {
				s.logger.Error().Err(err).Msg("scheduled backup failed")
			}
			s.CleanupOldBackups()
		}
	}
}

func (s *BackupService) PerformBackup() error {
	if _, err := os.Stat(s.config.StoragePath); os.IsNotExist(err) {
		if err := os.MkdirAll(s.config.StoragePath, 0o755); err != nil {
			return fmt.Errorf("failed to create backup directory: %w", err)
		}
	}

	timestamp := time.Now().Format("20060102_150405")
	backupPath := filepath.Join(s.config.StoragePath, fmt.Sprintf("reservations_%s.db", timestamp))

	s.logger.Info().Str("path", backupPath).Msg("performing database backup via VACUUM INTO")

	db, err := sql.Open("sqlite3", s.dbPath)
	if err != nil {
		return fmt.Errorf("failed to open source database: %w", err)
	}
	defer db.Close()

	// VACUUM INTO gives a consistent online snapshot
	if _, err = db.Exec(fmt.Sprintf("VACUUM INTO '%s'", backupPath)); err != nil {
		s.logger.Warn().Err(err).Msg("VACUUM INTO failed, falling back to file copy")
		return s.performBackupFallback(backupPath)
	}

	s.logger.Info().Msg("backup completed")
	return nil
}

func (s *BackupService) performBackupFallback(backupPath string) error {
	source, err := os.Open(s.dbPath)
	if err != nil {
		return err
	}
	defer source.Close()

	destination, err := os.Create(backupPath)
	if err != nil {
		return err
	}
	defer destination.Close()

	// io.Copy is not atomic for SQLite; the copy can be corrupt if writes land mid-copy
	if _, err = io.Copy(destination, source); err != nil {
		return err
	}

	s.logger.Info().Msg("fallback backup completed")
	return nil
}

func (s *BackupService) CleanupOldBackups() {
	if s.config.RetentionDays <= 0 {
		return
	}

	files, err := os.ReadDir(s.config.StoragePath)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to read backup directory for cleanup")
		return
	}

	cutoff := time.Now().AddDate(0, 0, -s.config.RetentionDays)

	for _, file := range files {
		if file.IsDir() {
			continue
		}

		info, err := file.Info()
		if err != nil {
			continue
		}

		if info.ModTime().Before(cutoff) {
			s.logger.Info().Str("file", file.Name()).Msg("deleting old backup")
			os.Remove(filepath.Join(s.config.StoragePath, file.Name()))
		}
	}
}
