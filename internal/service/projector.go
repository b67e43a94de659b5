package service

import (
	"hutkeeper/internal/models"
)

const (
	maskedTitle          = "reserved"
	maskedAnonymousTitle = "reserved (anonymous)"
)

// ProjectReservation builds the view of a single reservation for the given
// principal. It is a pure function of its inputs. A nil result means the
// reservation is hidden from this principal entirely.
//
// Admins and the owning member get full detail. Everybody else sees only
// approved reservations (a pending cancellation request is still shown as
// approved until an admin confirms it), with the title masked according to
// the reservation's visibility setting.
func ProjectReservation(p models.Principal, r *models.Reservation) *models.ViewEvent {
	if r == nil {
		return nil
	}

	if p.CanViewPrivate(r) {
		title := r.DisplayMessage
		if title == "" {
			title = r.Purpose
		}
		return &models.ViewEvent{
			ID:         r.ID,
			Start:      r.StartTime,
			End:        r.EndTime,
			Title:      title,
			Status:     r.Status,
			Visibility: r.Visibility,
			IsOwner:    p.Owns(r),
			Detail: &models.ViewEventDetail{
				RequesterID:            r.UserID,
				Purpose:                r.Purpose,
				DisplayMessage:         r.DisplayMessage,
				Description:            r.Description,
				AttendeeCount:          r.AttendeeCount,
				AllowAdditionalMembers: r.AllowAdditionalMembers,
				RejectionReason:        r.RejectionReason,
				ApprovalMessage:        r.ApprovalMessage,
				CancellationReason:     r.CancellationReason,
				RawStatus:              r.Status,
				Version:                r.Version,
			},
		}
	}

	// Pending, rejected and cancelled reservations of other users never
	// reach non-privileged viewers.
	if r.Status != models.StatusApproved && r.Status != models.StatusCancellationRequested {
		return nil
	}

	event := &models.ViewEvent{
		ID:         r.ID,
		Start:      r.StartTime,
		End:        r.EndTime,
		Status:     models.StatusApproved,
		Visibility: r.Visibility,
	}

	switch r.Visibility {
	case models.VisibilityPublic:
		event.Title = r.DisplayMessage
		if event.Title == "" {
			event.Title = r.Purpose
		}
		if event.Title == "" {
			event.Title = maskedTitle
		}
	default:
		event.Title = maskedAnonymousTitle
	}

	return event
}

// ProjectCalendar projects a set of reservations for the principal.
// visibilityFilter narrows the privileged view to reservations with the
// given visibility attribute; it never widens or narrows what a
// non-privileged viewer sees.
func ProjectCalendar(p models.Principal, reservations []*models.Reservation, visibilityFilter string) []*models.ViewEvent {
	events := make([]*models.ViewEvent, 0, len(reservations))
	for _, r := range reservations {
		if visibilityFilter != "" && p.CanViewPrivate(r) && r.Visibility != visibilityFilter {
			continue
		}
		if event := ProjectReservation(p, r); event != nil {
			events = append(events, event)
		}
	}
	return events
}
