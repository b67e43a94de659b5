package database

import "errors"

var (
	// ErrReservationNotFound is returned when a reservation id does not exist.
	ErrReservationNotFound = errors.New("reservation not found")

	// ErrConcurrentModification signals an optimistic version check failure:
	// the row changed between the caller's read and the attempted update.
	ErrConcurrentModification = errors.New("reservation was modified concurrently")

	// ErrUserNotFound is returned when a user id or email does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrUserExists is returned when registering an already known email.
	ErrUserExists = errors.New("user already exists")

	// ErrWhitelistEntryExists is returned when adding a duplicate whitelist email.
	ErrWhitelistEntryExists = errors.New("whitelist entry already exists")

	// ErrWhitelistEntryNotFound is returned for unknown whitelist entry ids.
	ErrWhitelistEntryNotFound = errors.New("whitelist entry not found")

	// ErrSettingNotFound is returned for unknown system setting keys.
	ErrSettingNotFound = errors.New("setting not found")
)
