package models

import "time"

type User struct {
	ID                   int64     `json:"id"`
	Email                string    `json:"email"`
	HashedPassword       string    `json:"-"`
	IsAdmin              bool      `json:"is_admin"`
	IsActive             bool      `json:"is_active"`
	ReceivesNotification bool      `json:"receives_notification"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// WhitelistEntry gates self-registration: only listed emails may sign up.
type WhitelistEntry struct {
	ID             int64     `json:"id"`
	Email          string    `json:"email"`
	DisplayName    string    `json:"display_name,omitempty"`
	IsAdminDefault bool      `json:"is_admin_default"`
	AddedByUserID  int64     `json:"added_by_user_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
