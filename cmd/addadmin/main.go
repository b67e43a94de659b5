package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"hutkeeper/internal/database"
	"hutkeeper/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// Bootstraps the first admin account: a whitelist entry plus a user row.
// Meant to run once against a fresh database before the server starts.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		email    = flag.String("email", "", "admin email")
		password = flag.String("password", "", "admin password")
		name     = flag.String("name", "", "display name for the whitelist entry")
		dbPath   = flag.String("db", "./data/hutkeeper.db", "path to sqlite db")
	)
	flag.Parse()

	addr := strings.ToLower(strings.TrimSpace(*email))
	if addr == "" || !strings.Contains(addr, "@") {
		return fmt.Errorf("a valid -email is required")
	}
	if len(*password) < 8 {
		return fmt.Errorf("-password must be at least 8 characters")
	}

	db, err := database.NewDB(*dbPath, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	entry := &models.WhitelistEntry{
		Email:          addr,
		DisplayName:    strings.TrimSpace(*name),
		IsAdminDefault: true,
	}
	if err := db.CreateWhitelistEntry(ctx, entry); err != nil {
		if !errors.Is(err, database.ErrWhitelistEntryExists) {
			return fmt.Errorf("create whitelist entry: %w", err)
		}
		logger.Info().Str("email", addr).Msg("whitelist entry already present")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(*password), models.DefaultBcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		Email:                addr,
		HashedPassword:       string(hash),
		IsAdmin:              true,
		IsActive:             true,
		ReceivesNotification: true,
	}
	if err := db.CreateUser(ctx, user); err != nil {
		if errors.Is(err, database.ErrUserExists) {
			return fmt.Errorf("user %s already exists", addr)
		}
		return fmt.Errorf("create user: %w", err)
	}

	logger.Info().Str("email", addr).Int64("user_id", user.ID).Msg("admin account created")
	return nil
}
