package models

import "time"

// Reservation is a hut reservation request and its approval state.
// Version is an optimistic concurrency token: every status transition
// increments it, and callers must echo the version they read.
type Reservation struct {
	ID                     int64     `json:"id"`
	UserID                 int64     `json:"user_id"`
	Status                 string    `json:"status"`
	Visibility             string    `json:"visibility"`
	Purpose                string    `json:"purpose"`
	DisplayMessage         string    `json:"display_message,omitempty"`
	Description            string    `json:"description,omitempty"`
	CancellationReason     string    `json:"cancellation_reason,omitempty"`
	RejectionReason        string    `json:"rejection_reason,omitempty"`
	ApprovalMessage        string    `json:"approval_message,omitempty"`
	AttendeeCount          int64     `json:"attendee_count"`
	AllowAdditionalMembers bool      `json:"allow_additional_members"`
	StartTime              time.Time `json:"start_time"`
	EndTime                time.Time `json:"end_time"`
	NotificationSent       bool      `json:"notification_sent"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
	Version                int64     `json:"version"`
}

// IsTerminal reports whether the reservation can no longer move to another
// status through the lifecycle (hard delete is still possible).
func (r *Reservation) IsTerminal() bool {
	return r.Status == StatusRejected || r.Status == StatusCancelled
}

// TransitionUpdate describes a status change plus the fields the transition
// sets. Nil pointers leave the column untouched.
type TransitionUpdate struct {
	Status             string
	RejectionReason    *string
	ApprovalMessage    *string
	CancellationReason *string
}
