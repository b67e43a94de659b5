package repository

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"hutkeeper/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockSessionRepo struct {
	mock.Mock
}

func (m *mockSessionRepo) GetSession(ctx context.Context, tokenHash string) (*models.Session, error) {
	args := m.Called(ctx, tokenHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Session), args.Error(1)
}

func (m *mockSessionRepo) SetSession(ctx context.Context, session *models.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *mockSessionRepo) DeleteSession(ctx context.Context, tokenHash string) error {
	args := m.Called(ctx, tokenHash)
	return args.Error(0)
}

func (m *mockSessionRepo) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}

func TestFailoverSessionRepository(t *testing.T) {
	primary := new(mockSessionRepo)
	fallback := new(mockSessionRepo)
	logger := zerolog.New(io.Discard)
	repo := NewFailoverSessionRepository(primary, fallback, &logger)
	ctx := context.Background()

	t.Run("PrimarySuccess", func(t *testing.T) {
		session := &models.Session{TokenHash: "h1", UserID: 1}
		primary.On("GetSession", ctx, "h1").Return(session, nil).Once()

		got, err := repo.GetSession(ctx, "h1")
		assert.NoError(t, err)
		assert.Equal(t, session, got)
		primary.AssertExpectations(t)
	})

	t.Run("PrimaryFailFallbackSuccess", func(t *testing.T) {
		session := &models.Session{TokenHash: "h2", UserID: 2}
		primary.On("GetSession", ctx, "h2").Return(nil, errors.New("fail")).Once()
		fallback.On("GetSession", ctx, "h2").Return(session, nil).Once()

		got, err := repo.GetSession(ctx, "h2")
		assert.NoError(t, err)
		assert.Equal(t, session, got)
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("RecoveryAttempt", func(t *testing.T) {
		repo.isDown.Store(true)
		repo.lastCheck = time.Now().Add(-2 * time.Minute)

		session := &models.Session{TokenHash: "h3", UserID: 3}
		primary.On("GetSession", ctx, "h3").Return(session, nil).Once()

		got, err := repo.GetSession(ctx, "h3")
		assert.NoError(t, err)
		assert.Equal(t, session, got)
		assert.False(t, repo.isDown.Load())
		primary.AssertExpectations(t)
	})

	t.Run("RecoveryAttemptFail", func(t *testing.T) {
		repo.isDown.Store(true)
		repo.lastCheck = time.Now().Add(-2 * time.Minute)

		primary.On("GetSession", ctx, "h33").Return(nil, errors.New("still fail")).Once()
		fallback.On("GetSession", ctx, "h33").Return(nil, nil).Once()

		_, err := repo.GetSession(ctx, "h33")
		assert.NoError(t, err)
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("SetSessionSuccess", func(t *testing.T) {
		repo.isDown.Store(false)
		session := &models.Session{TokenHash: "h77", UserID: 77}
		primary.On("SetSession", ctx, session).Return(nil).Once()

		err := repo.SetSession(ctx, session)
		assert.NoError(t, err)
		primary.AssertExpectations(t)
	})

	t.Run("DeleteSessionSuccess", func(t *testing.T) {
		repo.isDown.Store(false)
		primary.On("DeleteSession", ctx, "h88").Return(nil).Once()

		err := repo.DeleteSession(ctx, "h88")
		assert.NoError(t, err)
		primary.AssertExpectations(t)
	})

	t.Run("CheckRateLimitSuccess", func(t *testing.T) {
		repo.isDown.Store(false)
		primary.On("CheckRateLimit", ctx, "k99", 10, time.Minute).Return(true, nil).Once()

		allowed, err := repo.CheckRateLimit(ctx, "k99", 10, time.Minute)
		assert.NoError(t, err)
		assert.True(t, allowed)
		primary.AssertExpectations(t)
	})

	t.Run("SetSessionFailover", func(t *testing.T) {
		repo.isDown.Store(false)
		session := &models.Session{TokenHash: "h4", UserID: 4}
		primary.On("SetSession", ctx, session).Return(errors.New("fail")).Once()
		fallback.On("SetSession", ctx, session).Return(nil).Once()

		err := repo.SetSession(ctx, session)
		assert.NoError(t, err)
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("DeleteSessionFailover", func(t *testing.T) {
		repo.isDown.Store(false)
		primary.On("DeleteSession", ctx, "h5").Return(errors.New("fail")).Once()
		fallback.On("DeleteSession", ctx, "h5").Return(nil).Once()

		err := repo.DeleteSession(ctx, "h5")
		assert.NoError(t, err)
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("CheckRateLimitFailover", func(t *testing.T) {
		repo.isDown.Store(false)
		primary.On("CheckRateLimit", ctx, "k6", 10, time.Minute).Return(false, errors.New("fail")).Once()
		fallback.On("CheckRateLimit", ctx, "k6", 10, time.Minute).Return(true, nil).Once()

		allowed, err := repo.CheckRateLimit(ctx, "k6", 10, time.Minute)
		assert.NoError(t, err)
		assert.True(t, allowed)
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("SetSessionAlreadyDown", func(t *testing.T) {
		repo.isDown.Store(true)
		session := &models.Session{TokenHash: "h44", UserID: 44}
		fallback.On("SetSession", ctx, session).Return(nil).Once()

		err := repo.SetSession(ctx, session)
		assert.NoError(t, err)
		fallback.AssertExpectations(t)
	})

	t.Run("DeleteSessionAlreadyDown", func(t *testing.T) {
		repo.isDown.Store(true)
		fallback.On("DeleteSession", ctx, "h55").Return(nil).Once()

		err := repo.DeleteSession(ctx, "h55")
		assert.NoError(t, err)
		fallback.AssertExpectations(t)
	})

	t.Run("CheckRateLimitAlreadyDown", func(t *testing.T) {
		repo.isDown.Store(true)
		fallback.On("CheckRateLimit", ctx, "k66", 10, time.Minute).Return(true, nil).Once()

		allowed, err := repo.CheckRateLimit(ctx, "k66", 10, time.Minute)
		assert.NoError(t, err)
		assert.True(t, allowed)
		fallback.AssertExpectations(t)
	})
}
