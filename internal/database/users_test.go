package database

import (
	"context"
	"testing"

	"hutkeeper/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateUser(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	user := &models.User{
		Email:          "alice@example.com",
		HashedPassword: "hash",
		IsAdmin:        true,
		IsActive:       true,
	}
	require.NoError(t, db.CreateUser(ctx, user))
	assert.NotZero(t, user.ID)

	t.Run("DuplicateEmail", func(t *testing.T) {
		dup := &models.User{Email: "alice@example.com", HashedPassword: "hash2", IsActive: true}
		err := db.CreateUser(ctx, dup)
		assert.ErrorIs(t, err, ErrUserExists)
	})

	t.Run("GetByEmail", func(t *testing.T) {
		got, err := db.GetUserByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
		assert.True(t, got.IsAdmin)
	})

	t.Run("GetByID", func(t *testing.T) {
		got, err := db.GetUserByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "alice@example.com", got.Email)
	})

	t.Run("UnknownEmail", func(t *testing.T) {
		_, err := db.GetUserByEmail(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, ErrUserNotFound)
	})
}

func TestNotifiableAdmins(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	admin := &models.User{Email: "admin@example.com", HashedPassword: "h", IsAdmin: true, IsActive: true, ReceivesNotification: true}
	require.NoError(t, db.CreateUser(ctx, admin))
	quietAdmin := &models.User{Email: "quiet@example.com", HashedPassword: "h", IsAdmin: true, IsActive: true}
	require.NoError(t, db.CreateUser(ctx, quietAdmin))
	member := &models.User{Email: "member@example.com", HashedPassword: "h", IsActive: true, ReceivesNotification: true}
	require.NoError(t, db.CreateUser(ctx, member))

	admins, err := db.GetNotifiableAdmins(ctx)
	require.NoError(t, err)
	require.Len(t, admins, 1)
	assert.Equal(t, "admin@example.com", admins[0].Email)

	require.NoError(t, db.SetUserReceivesNotification(ctx, quietAdmin.ID, true))
	admins, err = db.GetNotifiableAdmins(ctx)
	require.NoError(t, err)
	assert.Len(t, admins, 2)

	require.NoError(t, db.SetUserActive(ctx, admin.ID, false))
	admins, err = db.GetNotifiableAdmins(ctx)
	require.NoError(t, err)
	require.Len(t, admins, 1)
	assert.Equal(t, "quiet@example.com", admins[0].Email)
}

func TestWhitelist(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	entry := &models.WhitelistEntry{
		Email:          "new.member@example.com",
		DisplayName:    "New Member",
		IsAdminDefault: false,
		AddedByUserID:  1,
	}
	require.NoError(t, db.CreateWhitelistEntry(ctx, entry))
	assert.NotZero(t, entry.ID)

	t.Run("Duplicate", func(t *testing.T) {
		err := db.CreateWhitelistEntry(ctx, &models.WhitelistEntry{Email: "new.member@example.com"})
		assert.ErrorIs(t, err, ErrWhitelistEntryExists)
	})

	t.Run("Lookup", func(t *testing.T) {
		got, err := db.GetWhitelistEntryByEmail(ctx, "new.member@example.com")
		require.NoError(t, err)
		assert.Equal(t, "New Member", got.DisplayName)

		_, err = db.GetWhitelistEntryByEmail(ctx, "stranger@example.com")
		assert.ErrorIs(t, err, ErrWhitelistEntryNotFound)
	})

	t.Run("List", func(t *testing.T) {
		entries, err := db.GetWhitelistEntries(ctx)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, db.DeleteWhitelistEntry(ctx, entry.ID))
		err := db.DeleteWhitelistEntry(ctx, entry.ID)
		assert.ErrorIs(t, err, ErrWhitelistEntryNotFound)
	})
}

func TestSettings(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := db.GetSetting(ctx, "intro_video_url")
	assert.ErrorIs(t, err, ErrSettingNotFound)

	require.NoError(t, db.SetSetting(ctx, "intro_video_url", "https://example.com/v1"))
	val, err := db.GetSetting(ctx, "intro_video_url")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/v1", val)

	// Upsert overwrites
	require.NoError(t, db.SetSetting(ctx, "intro_video_url", "https://example.com/v2"))
	val, err = db.GetSetting(ctx, "intro_video_url")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/v2", val)
}
