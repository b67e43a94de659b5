package database

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"hutkeeper/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Two admins race to decide the same pending reservation. Exactly one write
// must win; the loser gets a version conflict and the stored status matches
// the winner's request.
func TestConcurrentTransition(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := newTestUser(t, db, "member@example.com")

	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	r := newTestReservation(t, db, user.ID, start, start.Add(2*time.Hour))

	reason := "double booked"
	updates := []models.TransitionUpdate{
		{Status: models.StatusApproved},
		{Status: models.StatusRejected, RejectionReason: &reason},
	}

	var wg sync.WaitGroup
	results := make([]error, len(updates))
	for i, upd := range updates {
		wg.Add(1)
		go func(i int, upd models.TransitionUpdate) {
			defer wg.Done()
			results[i] = db.ApplyReservationTransition(ctx, r.ID, r.Version, upd)
		}(i, upd)
	}
	wg.Wait()

	var wins, conflicts int
	var winner models.TransitionUpdate
	for i, err := range results {
		switch {
		case err == nil:
			wins++
			winner = updates[i]
		case errors.Is(err, ErrConcurrentModification):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, wins, "exactly one transition should win")
	assert.Equal(t, 1, conflicts, "the losing transition should see a conflict")

	got, err := db.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, winner.Status, got.Status)
	assert.Equal(t, int64(2), got.Version)
}
