package models

import "time"

// ViewEvent is the principal-specific projection of a reservation returned
// by calendar queries. Non-privileged viewers only ever receive the outer
// fields; everything sensitive lives behind Detail, which is populated
// solely for admins and the owning member.
type ViewEvent struct {
	ID         int64     `json:"id"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Title      string    `json:"title"`
	Status     string    `json:"status"`
	Visibility string    `json:"visibility"`
	IsOwner    bool      `json:"is_owner"`

	Detail *ViewEventDetail `json:"detail,omitempty"`
}

// ViewEventDetail carries the privileged slice of a projection.
type ViewEventDetail struct {
	RequesterID            int64  `json:"requester_id"`
	RequesterEmail         string `json:"requester_email,omitempty"`
	Purpose                string `json:"purpose"`
	DisplayMessage         string `json:"display_message,omitempty"`
	Description            string `json:"description,omitempty"`
	AttendeeCount          int64  `json:"attendee_count"`
	AllowAdditionalMembers bool   `json:"allow_additional_members"`
	RejectionReason        string `json:"rejection_reason,omitempty"`
	ApprovalMessage        string `json:"approval_message,omitempty"`
	CancellationReason     string `json:"cancellation_reason,omitempty"`
	RawStatus              string `json:"raw_status"`
	Version                int64  `json:"version"`
}
