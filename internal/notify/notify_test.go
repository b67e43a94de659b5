package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"hutkeeper/internal/events"
	"hutkeeper/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMail struct {
	to      string
	subject string
	body    string
}

type fakeEmail struct {
	sent []sentMail
	err  error
}

func (f *fakeEmail) Send(to, toName, subject, plainText, htmlContent string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{to: to, subject: subject, body: plainText})
	return nil
}

type fakeBroadcast struct {
	messages []string
}

func (f *fakeBroadcast) Broadcast(text string) error {
	f.messages = append(f.messages, text)
	return nil
}

type fakeStore struct {
	admins   []*models.User
	users    map[int64]*models.User
	notified []int64
}

func (f *fakeStore) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, errors.New("user not found")
}

func (f *fakeStore) GetNotifiableAdmins(ctx context.Context) ([]*models.User, error) {
	return f.admins, nil
}

func (f *fakeStore) MarkReservationNotified(ctx context.Context, id int64) error {
	f.notified = append(f.notified, id)
	return nil
}

func newTestService() (*Service, *fakeStore, *fakeEmail, *fakeBroadcast) {
	store := &fakeStore{
		admins: []*models.User{
			{ID: 1, Email: "admin@example.com", IsAdmin: true},
			{ID: 2, Email: "keeper@example.com", IsAdmin: true},
		},
		users: map[int64]*models.User{
			7: {ID: 7, Email: "member@example.com"},
		},
	}
	email := &fakeEmail{}
	broadcast := &fakeBroadcast{}
	logger := zerolog.Nop()
	return NewService(store, email, broadcast, &logger), store, email, broadcast
}

func testPayload() events.ReservationEventPayload {
	start := time.Date(2025, 7, 4, 14, 0, 0, 0, time.UTC)
	return events.ReservationEventPayload{
		ReservationID: 42,
		UserID:        7,
		Status:        models.StatusPending,
		Purpose:       "club weekend",
		StartTime:     start,
		EndTime:       start.Add(48 * time.Hour),
	}
}

func TestCreatedNotifiesAdmins(t *testing.T) {
	svc, store, email, broadcast := newTestService()
	bus := events.NewEventBus()
	svc.Subscribe(bus)

	require.NoError(t, bus.PublishJSON(events.EventReservationCreated, testPayload()))

	require.Len(t, email.sent, 2)
	assert.Equal(t, "admin@example.com", email.sent[0].to)
	assert.Equal(t, "keeper@example.com", email.sent[1].to)
	assert.Contains(t, email.sent[0].subject, "#42")

	require.Len(t, broadcast.messages, 1)
	assert.Contains(t, broadcast.messages[0], "club weekend")

	assert.Equal(t, []int64{42}, store.notified)
}

func TestCancellationRequestNotifiesAdmins(t *testing.T) {
	svc, store, email, _ := newTestService()
	bus := events.NewEventBus()
	svc.Subscribe(bus)

	payload := testPayload()
	payload.Status = models.StatusCancellationRequested
	payload.Reason = "trip fell through"
	require.NoError(t, bus.PublishJSON(events.EventReservationCancellationRequested, payload))

	require.Len(t, email.sent, 2)
	assert.Contains(t, email.sent[0].subject, "Cancellation requested")
	assert.Contains(t, email.sent[0].body, "trip fell through")

	// Only creation marks the notified flag
	assert.Empty(t, store.notified)
}

func TestDecisionNotifiesOwner(t *testing.T) {
	tests := []struct {
		name      string
		eventType string
		reason    string
		expect    string
	}{
		{"Approved", events.EventReservationApproved, "", "approved"},
		{"Rejected", events.EventReservationRejected, "dates clash", "rejected"},
		{"Cancelled", events.EventReservationCancelled, "", "cancelled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, email, _ := newTestService()
			bus := events.NewEventBus()
			svc.Subscribe(bus)

			payload := testPayload()
			payload.Reason = tt.reason
			require.NoError(t, bus.PublishJSON(tt.eventType, payload))

			require.Len(t, email.sent, 1)
			assert.Equal(t, "member@example.com", email.sent[0].to)
			assert.Contains(t, email.sent[0].subject, tt.expect)
			if tt.reason != "" {
				assert.Contains(t, email.sent[0].body, tt.reason)
			}
		})
	}
}

func TestNilChannels(t *testing.T) {
	store := &fakeStore{users: map[int64]*models.User{7: {ID: 7, Email: "member@example.com"}}}
	logger := zerolog.Nop()
	svc := NewService(store, nil, nil, &logger)
	bus := events.NewEventBus()
	svc.Subscribe(bus)

	assert.NoError(t, bus.PublishJSON(events.EventReservationApproved, testPayload()))
	assert.NoError(t, svc.NotifyAdmins(context.Background(), "subject", "body"))
}
