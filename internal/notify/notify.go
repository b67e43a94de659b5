package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"hutkeeper/internal/events"
	"hutkeeper/internal/models"

	"github.com/rs/zerolog"
)

// userStore is the slice of the repository the notifier needs.
type userStore interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetNotifiableAdmins(ctx context.Context) ([]*models.User, error)
	MarkReservationNotified(ctx context.Context, id int64) error
}

// Service turns reservation lifecycle events into emails and telegram
// notices. Either channel may be absent; the other keeps working.
type Service struct {
	store    userStore
	email    EmailSender
	telegram Broadcaster
	logger   *zerolog.Logger
}

func NewService(store userStore, email EmailSender, telegram Broadcaster, logger *zerolog.Logger) *Service {
	return &Service{
		store:    store,
		email:    email,
		telegram: telegram,
		logger:   logger,
	}
}

// Subscribe wires the notifier onto the event bus. Admins hear about new
// requests and cancellation requests; members hear about decisions on
// their own reservations.
func (s *Service) Subscribe(bus *events.EventBus) {
	bus.Subscribe(events.EventReservationCreated, s.handleAdminAttention)
	bus.Subscribe(events.EventReservationCancellationRequested, s.handleAdminAttention)

	bus.Subscribe(events.EventReservationApproved, s.handleDecision)
	bus.Subscribe(events.EventReservationRejected, s.handleDecision)
	bus.Subscribe(events.EventReservationCancelled, s.handleDecision)
}

func (s *Service) handleAdminAttention(event *events.Event) error {
	payload, err := decodePayload(event)
	if err != nil {
		return err
	}
	ctx := context.Background()

	subject, body := adminMessage(event.Type, payload)
	if err := s.NotifyAdmins(ctx, subject, body); err != nil {
		s.logger.Error().Err(err).Str("event", event.Type).Msg("failed to notify admins")
		return err
	}

	if event.Type == events.EventReservationCreated {
		if err := s.store.MarkReservationNotified(ctx, payload.ReservationID); err != nil {
			s.logger.Warn().Err(err).Int64("reservation_id", payload.ReservationID).Msg("failed to mark reservation notified")
		}
	}
	return nil
}

func (s *Service) handleDecision(event *events.Event) error {
	payload, err := decodePayload(event)
	if err != nil {
		return err
	}
	ctx := context.Background()

	user, err := s.store.GetUserByID(ctx, payload.UserID)
	if err != nil {
		s.logger.Error().Err(err).Int64("user_id", payload.UserID).Msg("failed to load reservation owner")
		return err
	}

	subject, body := decisionMessage(event.Type, payload)
	if err := s.NotifyUser(ctx, user, subject, body); err != nil {
		s.logger.Error().Err(err).Str("event", event.Type).Str("email", user.Email).Msg("failed to notify user")
		return err
	}
	return nil
}

// NotifyAdmins emails every admin who opted into notifications and pushes
// a telegram notice.
func (s *Service) NotifyAdmins(ctx context.Context, subject, body string) error {
	var lastErr error

	if s.email != nil {
		admins, err := s.store.GetNotifiableAdmins(ctx)
		if err != nil {
			return fmt.Errorf("failed to load notifiable admins: %w", err)
		}
		for _, admin := range admins {
			if err := s.email.Send(admin.Email, "", subject, body, ""); err != nil {
				lastErr = err
			}
		}
	}

	if s.telegram != nil {
		if err := s.telegram.Broadcast(subject + "\n" + body); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (s *Service) NotifyUser(ctx context.Context, user *models.User, subject, body string) error {
	if s.email == nil || user == nil {
		return nil
	}
	return s.email.Send(user.Email, "", subject, body, "")
}

func decodePayload(event *events.Event) (*events.ReservationEventPayload, error) {
	var payload events.ReservationEventPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode event payload: %w", err)
	}
	return &payload, nil
}

func adminMessage(eventType string, p *events.ReservationEventPayload) (string, string) {
	period := fmt.Sprintf("%s - %s", p.StartTime.Format("02.01.2006 15:04"), p.EndTime.Format("02.01.2006 15:04"))

	switch eventType {
	case events.EventReservationCancellationRequested:
		subject := fmt.Sprintf("Cancellation requested for reservation #%d", p.ReservationID)
		body := fmt.Sprintf("Reservation #%d (%s) has a pending cancellation request.\nReason: %s", p.ReservationID, period, p.Reason)
		return subject, body
	default:
		subject := fmt.Sprintf("New reservation request #%d", p.ReservationID)
		body := fmt.Sprintf("A new reservation is waiting for review.\nPeriod: %s\nPurpose: %s", period, p.Purpose)
		return subject, body
	}
}

func decisionMessage(eventType string, p *events.ReservationEventPayload) (string, string) {
	period := fmt.Sprintf("%s - %s", p.StartTime.Format("02.01.2006 15:04"), p.EndTime.Format("02.01.2006 15:04"))

	switch eventType {
	case events.EventReservationRejected:
		subject := fmt.Sprintf("Reservation #%d was rejected", p.ReservationID)
		body := fmt.Sprintf("Your reservation for %s was rejected.\nReason: %s", period, p.Reason)
		return subject, body
	case events.EventReservationCancelled:
		subject := fmt.Sprintf("Reservation #%d was cancelled", p.ReservationID)
		body := fmt.Sprintf("Your reservation for %s has been cancelled.", period)
		return subject, body
	default:
		subject := fmt.Sprintf("Reservation #%d was approved", p.ReservationID)
		body := fmt.Sprintf("Your reservation for %s has been approved.", period)
		if p.Reason != "" {
			body += "\nNote: " + p.Reason
		}
		return subject, body
	}
}
