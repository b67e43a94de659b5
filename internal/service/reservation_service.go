package service

import (
	"context"
	"strings"
	"time"

	"hutkeeper/internal/database"
	"hutkeeper/internal/domain"
	"hutkeeper/internal/events"
	"hutkeeper/internal/metrics"
	"hutkeeper/internal/models"

	"github.com/rs/zerolog"
)

// ReservationService owns the reservation lifecycle: creation, content
// edits, status transitions, deletion and the projected read paths. Status
// legality and actor permissions are enforced here; the store below only
// guarantees atomicity.
type ReservationService struct {
	repo                        domain.Repository
	eventBus                    domain.EventPublisher
	syncWorker                  domain.SyncWorker
	includeCancellationRequests bool
	logger                      *zerolog.Logger
}

func NewReservationService(repo domain.Repository, eventBus domain.EventPublisher, syncWorker domain.SyncWorker, includeCancellationRequests bool, logger *zerolog.Logger) *ReservationService {
	return &ReservationService{
		repo:                        repo,
		eventBus:                    eventBus,
		syncWorker:                  syncWorker,
		includeCancellationRequests: includeCancellationRequests,
		logger:                      logger,
	}
}

// CreateReservationInput carries the member-supplied fields of a new
// reservation. Status and version are always assigned by the service.
type CreateReservationInput struct {
	Purpose                string
	DisplayMessage         string
	Description            string
	Visibility             string
	AttendeeCount          int64
	AllowAdditionalMembers bool
	StartTime              time.Time
	EndTime                time.Time
}

func (s *ReservationService) Create(ctx context.Context, p models.Principal, input CreateReservationInput) (*models.Reservation, error) {
	if !p.Authenticated {
		return nil, ErrForbidden
	}
	if strings.TrimSpace(input.Purpose) == "" {
		return nil, newValidationError("purpose", "must not be empty")
	}
	if !models.IsValidVisibility(input.Visibility) {
		return nil, newValidationError("visibility", "must be public or anonymous")
	}
	if input.StartTime.IsZero() || input.EndTime.IsZero() {
		return nil, newValidationError("time", "start and end are required")
	}
	if !input.StartTime.Before(input.EndTime) {
		return nil, newValidationError("time", "start must be before end")
	}
	if input.AttendeeCount < 1 {
		return nil, newValidationError("attendee_count", "must be at least 1")
	}

	reservation := &models.Reservation{
		UserID:                 p.UserID,
		Status:                 models.StatusPending,
		Visibility:             input.Visibility,
		Purpose:                strings.TrimSpace(input.Purpose),
		DisplayMessage:         input.DisplayMessage,
		Description:            input.Description,
		AttendeeCount:          input.AttendeeCount,
		AllowAdditionalMembers: input.AllowAdditionalMembers,
		StartTime:              input.StartTime,
		EndTime:                input.EndTime,
	}

	if err := s.repo.CreateReservation(ctx, reservation); err != nil {
		return nil, err
	}

	s.publishEvent(ctx, events.EventReservationCreated, reservation, "", p)
	s.enqueueSync(ctx, reservation, "upsert")
	s.enqueueScheduleSync(ctx)

	return reservation, nil
}

// EditContent updates description and display message. Owner only: admins
// decide the lifecycle, the wording stays with whoever booked. Nil fields
// stay untouched. Times, visibility and status are not editable through
// this path.
func (s *ReservationService) EditContent(ctx context.Context, p models.Principal, id int64, description, displayMessage *string) (*models.Reservation, error) {
	reservation, err := s.repo.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Owns(reservation) {
		return nil, ErrForbidden
	}

	if err := s.repo.UpdateReservationContent(ctx, id, description, displayMessage); err != nil {
		return nil, err
	}

	updated, err := s.repo.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}

	s.publishEvent(ctx, events.EventReservationContentEdited, updated, "", p)
	s.enqueueSync(ctx, updated, "upsert")

	return updated, nil
}

// RequestCancellation moves the owner's approved reservation into
// cancellation_requested. Cancelling a confirmed slot affects other
// viewers, so the final word stays with an admin.
func (s *ReservationService) RequestCancellation(ctx context.Context, p models.Principal, id, version int64, reason string) (*models.Reservation, error) {
	reservation, err := s.repo.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Owns(reservation) {
		return nil, ErrForbidden
	}
	if reservation.Status != models.StatusApproved {
		return nil, ErrInvalidTransition
	}
	if strings.TrimSpace(reason) == "" {
		return nil, newValidationError("cancellation_reason", "must not be empty")
	}
	// Без явной версии от клиента сверяемся с только что прочитанной строкой.
	if version <= 0 {
		version = reservation.Version
	}

	upd := models.TransitionUpdate{
		Status:             models.StatusCancellationRequested,
		CancellationReason: &reason,
	}
	if err := s.repo.ApplyReservationTransition(ctx, id, version, upd); err != nil {
		return nil, err
	}
	metrics.IncTransition(models.StatusCancellationRequested)

	updated, err := s.repo.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}

	s.publishEvent(ctx, events.EventReservationCancellationRequested, updated, reason, p)
	s.enqueueSync(ctx, updated, "update_status")
	s.enqueueScheduleSync(ctx)

	return updated, nil
}

// SetStatus applies an admin transition. The message argument is the
// rejection reason when moving into rejected and the optional approval
// message otherwise.
func (s *ReservationService) SetStatus(ctx context.Context, p models.Principal, id, version int64, newStatus, message string) (*models.Reservation, error) {
	if !p.IsAdmin {
		return nil, ErrForbidden
	}
	if !models.IsValidStatus(newStatus) {
		return nil, newValidationError("status", "unknown status")
	}

	reservation, err := s.repo.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}

	upd := models.TransitionUpdate{Status: newStatus}
	eventType := ""

	switch {
	case reservation.Status == models.StatusPending && newStatus == models.StatusApproved:
		if message != "" {
			upd.ApprovalMessage = &message
		}
		eventType = events.EventReservationApproved

	case reservation.Status == models.StatusPending && newStatus == models.StatusRejected:
		if strings.TrimSpace(message) == "" {
			return nil, newValidationError("rejection_reason", "must not be empty")
		}
		upd.RejectionReason = &message
		eventType = events.EventReservationRejected

	case reservation.Status == models.StatusCancellationRequested && newStatus == models.StatusCancelled:
		if message != "" {
			upd.ApprovalMessage = &message
		}
		eventType = events.EventReservationCancelled

	case reservation.Status == models.StatusCancellationRequested && newStatus == models.StatusApproved:
		// Revert: the cancellation intent is dropped but the recorded
		// cancellation reason stays on the row for audit.
		if message != "" {
			upd.ApprovalMessage = &message
		}
		eventType = events.EventReservationApproved

	default:
		return nil, ErrInvalidTransition
	}

	if err := s.repo.ApplyReservationTransition(ctx, id, version, upd); err != nil {
		return nil, err
	}
	metrics.IncTransition(newStatus)

	updated, err := s.repo.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}

	s.publishEvent(ctx, eventType, updated, message, p)
	s.enqueueSync(ctx, updated, "update_status")
	s.enqueueScheduleSync(ctx)

	return updated, nil
}

// Delete removes the reservation outright, from any status. Admin only.
// There is no tombstone; the id is gone after this returns.
func (s *ReservationService) Delete(ctx context.Context, p models.Principal, id int64) error {
	if !p.IsAdmin {
		return ErrForbidden
	}

	reservation, err := s.repo.GetReservation(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.DeleteReservation(ctx, id); err != nil {
		return err
	}

	s.publishEvent(ctx, events.EventReservationDeleted, reservation, "", p)
	s.enqueueScheduleSync(ctx)

	return nil
}

// Get returns the principal's view of a single reservation. A reservation
// the principal is not allowed to see at all reads as not found.
func (s *ReservationService) Get(ctx context.Context, p models.Principal, id int64) (*models.ViewEvent, error) {
	reservation, err := s.repo.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}

	event := ProjectReservation(p, reservation)
	if event == nil {
		return nil, database.ErrReservationNotFound
	}
	s.attachRequesterEmails(ctx, []*models.ViewEvent{event})

	return event, nil
}

// Calendar returns the projected reservations in [start, end) for the
// principal. visibilityFilter narrows the privileged view only.
func (s *ReservationService) Calendar(ctx context.Context, p models.Principal, start, end time.Time, visibilityFilter string) ([]*models.ViewEvent, error) {
	if !start.Before(end) {
		return nil, newValidationError("range", "start must be before end")
	}
	if visibilityFilter != "" && !models.IsValidVisibility(visibilityFilter) {
		return nil, newValidationError("visibility_filter", "must be public or anonymous")
	}

	reservations, err := s.repo.GetReservationsInRange(ctx, start, end)
	if err != nil {
		return nil, err
	}

	views := ProjectCalendar(p, reservations, visibilityFilter)
	s.attachRequesterEmails(ctx, views)
	return views, nil
}

// Mine returns all of the principal's own reservations, full detail.
func (s *ReservationService) Mine(ctx context.Context, p models.Principal) ([]*models.ViewEvent, error) {
	if !p.Authenticated {
		return nil, ErrForbidden
	}

	reservations, err := s.repo.GetUserReservations(ctx, p.UserID)
	if err != nil {
		return nil, err
	}

	views := ProjectCalendar(p, reservations, "")
	s.attachRequesterEmails(ctx, views)
	return views, nil
}

// PendingCount reports how many reservations await an admin decision.
func (s *ReservationService) PendingCount(ctx context.Context, p models.Principal) (int64, error) {
	if !p.IsAdmin {
		return 0, ErrForbidden
	}

	count, err := s.repo.CountPendingReservations(ctx, s.includeCancellationRequests)
	if err != nil {
		return 0, err
	}
	metrics.SetPending(int(count))
	return count, nil
}

func (s *ReservationService) attachRequesterEmails(ctx context.Context, viewEvents []*models.ViewEvent) {
	cache := make(map[int64]string)
	for _, event := range viewEvents {
		if event.Detail == nil {
			continue
		}
		email, ok := cache[event.Detail.RequesterID]
		if !ok {
			user, err := s.repo.GetUserByID(ctx, event.Detail.RequesterID)
			if err != nil {
				s.logger.Warn().Err(err).Int64("user_id", event.Detail.RequesterID).Msg("requester lookup failed")
				cache[event.Detail.RequesterID] = ""
				continue
			}
			email = user.Email
			cache[event.Detail.RequesterID] = email
		}
		event.Detail.RequesterEmail = email
	}
}

func (s *ReservationService) publishEvent(ctx context.Context, eventType string, r *models.Reservation, reason string, actor models.Principal) {
	if s.eventBus == nil || eventType == "" {
		return
	}

	payload := events.ReservationEventPayload{
		ReservationID: r.ID,
		UserID:        r.UserID,
		Status:        r.Status,
		Visibility:    r.Visibility,
		Purpose:       r.Purpose,
		StartTime:     r.StartTime,
		EndTime:       r.EndTime,
		Reason:        reason,
		ActorIsAdmin:  actor.IsAdmin,
		ActorUserID:   actor.UserID,
	}
	if user, err := s.repo.GetUserByID(ctx, r.UserID); err == nil {
		payload.UserEmail = user.Email
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("reservation_id", r.ID).Msg("publish event error")
	}
}

func (s *ReservationService) enqueueSync(ctx context.Context, r *models.Reservation, taskType string) {
	if s.syncWorker == nil {
		return
	}

	var status string
	if taskType == "update_status" {
		status = r.Status
	}

	if err := s.syncWorker.EnqueueTask(ctx, taskType, r.ID, r, status); err != nil {
		s.logger.Error().Err(err).Int64("reservation_id", r.ID).Str("task", taskType).Msg("sheets enqueue error")
	}
}

func (s *ReservationService) enqueueScheduleSync(ctx context.Context) {
	if s.syncWorker == nil {
		return
	}
	if err := s.syncWorker.EnqueueSyncSchedule(ctx, time.Time{}, time.Time{}); err != nil {
		s.logger.Error().Err(err).Msg("schedule sync enqueue error")
	}
}
