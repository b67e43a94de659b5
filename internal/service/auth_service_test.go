package service

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"hutkeeper/internal/config"
	"hutkeeper/internal/database"
	"hutkeeper/internal/models"
	"hutkeeper/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:        "test-secret",
		AccessTTLMinutes: 15,
		RefreshTTLDays:   30,
		BcryptCost:       bcrypt.MinCost,
	}
}

func newTestAuthService(repo *mockRepo) *AuthService {
	logger := zerolog.New(io.Discard)
	return NewAuthService(repo, repository.NewMemorySessionRepository(), testAuthConfig(), &logger)
}

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func TestRegister(t *testing.T) {
	ctx := context.Background()

	t.Run("NotWhitelisted", func(t *testing.T) {
		repo := new(mockRepo)
		svc := newTestAuthService(repo)

		repo.On("GetWhitelistEntryByEmail", ctx, "outsider@club.org").
			Return(nil, database.ErrWhitelistEntryNotFound).Once()

		_, err := svc.Register(ctx, "Outsider@club.org", "password123")
		assert.ErrorIs(t, err, ErrNotWhitelisted)
		repo.AssertNotCalled(t, "CreateUser")
	})

	t.Run("ShortPassword", func(t *testing.T) {
		svc := newTestAuthService(new(mockRepo))
		_, err := svc.Register(ctx, "member@club.org", "short")
		assert.True(t, IsValidation(err))
	})

	t.Run("BadEmail", func(t *testing.T) {
		svc := newTestAuthService(new(mockRepo))
		_, err := svc.Register(ctx, "not-an-email", "password123")
		assert.True(t, IsValidation(err))
	})

	t.Run("Success", func(t *testing.T) {
		repo := new(mockRepo)
		svc := newTestAuthService(repo)

		repo.On("GetWhitelistEntryByEmail", ctx, "member@club.org").
			Return(&models.WhitelistEntry{Email: "member@club.org", IsAdminDefault: false}, nil).Once()
		repo.On("CreateUser", ctx, mock.AnythingOfType("*models.User")).
			Run(func(args mock.Arguments) {
				args.Get(1).(*models.User).ID = 1
			}).Return(nil).Once()

		user, err := svc.Register(ctx, "Member@Club.org ", "password123")
		require.NoError(t, err)
		assert.Equal(t, "member@club.org", user.Email)
		assert.False(t, user.IsAdmin)
		assert.True(t, user.IsActive)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte("password123")))
	})

	t.Run("WhitelistAdminDefault", func(t *testing.T) {
		repo := new(mockRepo)
		svc := newTestAuthService(repo)

		repo.On("GetWhitelistEntryByEmail", ctx, "chief@club.org").
			Return(&models.WhitelistEntry{Email: "chief@club.org", IsAdminDefault: true}, nil).Once()
		repo.On("CreateUser", ctx, mock.Anything).Return(nil).Once()

		user, err := svc.Register(ctx, "chief@club.org", "password123")
		require.NoError(t, err)
		assert.True(t, user.IsAdmin)
		assert.True(t, user.ReceivesNotification)
	})
}

func TestLogin(t *testing.T) {
	ctx := context.Background()

	activeUser := func() *models.User {
		return &models.User{
			ID:             1,
			Email:          "member@club.org",
			HashedPassword: hashPassword(t, "password123"),
			IsActive:       true,
		}
	}

	t.Run("UnknownEmail", func(t *testing.T) {
		repo := new(mockRepo)
		svc := newTestAuthService(repo)

		repo.On("GetUserByEmail", ctx, "ghost@club.org").Return(nil, database.ErrUserNotFound).Once()

		_, _, err := svc.Login(ctx, "ghost@club.org", "password123", "", "")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("WrongPassword", func(t *testing.T) {
		repo := new(mockRepo)
		svc := newTestAuthService(repo)

		repo.On("GetUserByEmail", ctx, "member@club.org").Return(activeUser(), nil).Once()

		_, _, err := svc.Login(ctx, "member@club.org", "wrong", "", "")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("DeactivatedUser", func(t *testing.T) {
		repo := new(mockRepo)
		svc := newTestAuthService(repo)

		user := activeUser()
		user.IsActive = false
		repo.On("GetUserByEmail", ctx, "member@club.org").Return(user, nil).Once()

		_, _, err := svc.Login(ctx, "member@club.org", "password123", "", "")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("Success", func(t *testing.T) {
		repo := new(mockRepo)
		svc := newTestAuthService(repo)

		repo.On("GetUserByEmail", ctx, "member@club.org").Return(activeUser(), nil).Once()

		pair, user, err := svc.Login(ctx, "member@club.org", "password123", "agent", "10.0.0.1")
		require.NoError(t, err)
		require.NotNil(t, pair)
		assert.NotEmpty(t, pair.AccessToken)
		assert.NotEmpty(t, pair.RefreshToken)
		assert.Equal(t, int64(1), user.ID)

		principal := svc.ResolvePrincipal(pair.AccessToken)
		assert.True(t, principal.Authenticated)
		assert.Equal(t, int64(1), principal.UserID)
		assert.False(t, principal.IsAdmin)
	})

	t.Run("AttemptBudgetExhausted", func(t *testing.T) {
		repo := new(mockRepo)
		svc := newTestAuthService(repo)

		repo.On("GetUserByEmail", ctx, "member@club.org").Return(activeUser(), nil)

		for i := 0; i < loginAttemptLimit; i++ {
			_, _, err := svc.Login(ctx, "member@club.org", "wrong", "", "")
			assert.ErrorIs(t, err, ErrInvalidCredentials)
		}

		// Дальше не пускаем даже с верным паролем
		_, _, err := svc.Login(ctx, "member@club.org", "password123", "", "")
		assert.ErrorIs(t, err, ErrRateLimited)

		// Другой аккаунт бюджетом не задет
		repo.On("GetUserByEmail", ctx, "other@club.org").Return(nil, database.ErrUserNotFound).Once()
		_, _, err = svc.Login(ctx, "other@club.org", "password123", "", "")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestResolvePrincipal(t *testing.T) {
	svc := newTestAuthService(new(mockRepo))

	t.Run("Empty", func(t *testing.T) {
		assert.Equal(t, models.Anonymous, svc.ResolvePrincipal(""))
	})

	t.Run("Garbage", func(t *testing.T) {
		assert.Equal(t, models.Anonymous, svc.ResolvePrincipal("not.a.jwt"))
	})

	t.Run("WrongSecret", func(t *testing.T) {
		logger := zerolog.New(io.Discard)
		otherCfg := testAuthConfig()
		otherCfg.JWTSecret = "other-secret"
		other := NewAuthService(new(mockRepo), repository.NewMemorySessionRepository(), otherCfg, &logger)

		repo := new(mockRepo)
		repo.On("GetUserByEmail", mock.Anything, "member@club.org").Return(&models.User{
			ID: 1, Email: "member@club.org", HashedPassword: hashPassword(t, "password123"), IsActive: true,
		}, nil).Once()
		pair, _, err := svc2Login(t, repo, "member@club.org", "password123")
		require.NoError(t, err)

		assert.Equal(t, models.Anonymous, other.ResolvePrincipal(pair.AccessToken))
	})
}

func svc2Login(t *testing.T, repo *mockRepo, email, password string) (*TokenPair, *models.User, error) {
	t.Helper()
	svc := newTestAuthService(repo)
	return svc.Login(context.Background(), email, password, "", "")
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()

	loginUser := func(t *testing.T, repo *mockRepo, svc *AuthService) *TokenPair {
		t.Helper()
		repo.On("GetUserByEmail", ctx, "member@club.org").Return(&models.User{
			ID: 1, Email: "member@club.org", HashedPassword: hashPassword(t, "password123"), IsActive: true,
		}, nil).Once()
		pair, _, err := svc.Login(ctx, "member@club.org", "password123", "", "")
		require.NoError(t, err)
		return pair
	}

	t.Run("UnknownToken", func(t *testing.T) {
		svc := newTestAuthService(new(mockRepo))
		_, err := svc.Refresh(ctx, "never-issued", "", "")
		assert.ErrorIs(t, err, ErrSessionExpired)
	})

	t.Run("EmptyToken", func(t *testing.T) {
		svc := newTestAuthService(new(mockRepo))
		_, err := svc.Refresh(ctx, "", "", "")
		assert.ErrorIs(t, err, ErrSessionExpired)
	})

	t.Run("RotationInvalidatesOldToken", func(t *testing.T) {
		repo := new(mockRepo)
		svc := newTestAuthService(repo)
		pair := loginUser(t, repo, svc)

		repo.On("GetUserByID", ctx, int64(1)).Return(&models.User{
			ID: 1, Email: "member@club.org", IsActive: true,
		}, nil)

		rotated, err := svc.Refresh(ctx, pair.RefreshToken, "", "")
		require.NoError(t, err)
		assert.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)

		_, err = svc.Refresh(ctx, pair.RefreshToken, "", "")
		assert.ErrorIs(t, err, ErrSessionExpired)

		_, err = svc.Refresh(ctx, rotated.RefreshToken, "", "")
		assert.NoError(t, err)
	})

	t.Run("DeactivatedUserCannotRefresh", func(t *testing.T) {
		repo := new(mockRepo)
		svc := newTestAuthService(repo)
		pair := loginUser(t, repo, svc)

		repo.On("GetUserByID", ctx, int64(1)).Return(&models.User{
			ID: 1, Email: "member@club.org", IsActive: false,
		}, nil)

		_, err := svc.Refresh(ctx, pair.RefreshToken, "", "")
		assert.ErrorIs(t, err, ErrSessionExpired)
	})
}

// gatedSessions blocks the first GetSession until released so concurrent
// refreshes are guaranteed to overlap.
type gatedSessions struct {
	*repository.MemorySessionRepository
	gate chan struct{}
	gets atomic.Int64
}

func (g *gatedSessions) GetSession(ctx context.Context, tokenHash string) (*models.Session, error) {
	g.gets.Add(1)
	<-g.gate
	return g.MemorySessionRepository.GetSession(ctx, tokenHash)
}

func TestConcurrentRefreshesShareOneRotation(t *testing.T) {
	ctx := context.Background()
	repo := new(mockRepo)
	logger := zerolog.New(io.Discard)

	sessions := &gatedSessions{
		MemorySessionRepository: repository.NewMemorySessionRepository(),
		gate:                    make(chan struct{}),
	}
	svc := NewAuthService(repo, sessions, testAuthConfig(), &logger)

	repo.On("GetUserByEmail", ctx, "member@club.org").Return(&models.User{
		ID: 1, Email: "member@club.org", HashedPassword: hashPassword(t, "password123"), IsActive: true,
	}, nil).Once()
	repo.On("GetUserByID", ctx, int64(1)).Return(&models.User{
		ID: 1, Email: "member@club.org", IsActive: true,
	}, nil)

	// Login writes the session without reading, so it passes the gate.
	pair, _, err := svc.Login(ctx, "member@club.org", "password123", "", "")
	require.NoError(t, err)

	const parallel = 8
	results := make([]*TokenPair, parallel)
	errs := make([]error, parallel)
	var wg sync.WaitGroup
	for i := 0; i < parallel; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Refresh(ctx, pair.RefreshToken, "", "")
		}(i)
	}

	// Give every goroutine time to join the in-flight rotation, then
	// release the store.
	time.Sleep(100 * time.Millisecond)
	close(sessions.gate)
	wg.Wait()

	for i := 0; i < parallel; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].AccessToken, results[i].AccessToken)
		assert.Equal(t, results[0].RefreshToken, results[i].RefreshToken)
	}
	// A single rotation means a single read of the old session.
	assert.Equal(t, int64(1), sessions.gets.Load())
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	repo := new(mockRepo)
	svc := newTestAuthService(repo)

	repo.On("GetUserByEmail", ctx, "member@club.org").Return(&models.User{
		ID: 1, Email: "member@club.org", HashedPassword: hashPassword(t, "password123"), IsActive: true,
	}, nil).Once()

	pair, _, err := svc.Login(ctx, "member@club.org", "password123", "", "")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, pair.RefreshToken))

	_, err = svc.Refresh(ctx, pair.RefreshToken, "", "")
	assert.ErrorIs(t, err, ErrSessionExpired)

	// Logging out twice is a no-op, not an error.
	assert.NoError(t, svc.Logout(ctx, pair.RefreshToken))
}

func TestIsWhitelisted(t *testing.T) {
	ctx := context.Background()
	repo := new(mockRepo)
	svc := newTestAuthService(repo)

	repo.On("GetWhitelistEntryByEmail", ctx, "member@club.org").
		Return(&models.WhitelistEntry{Email: "member@club.org"}, nil).Once()
	repo.On("GetWhitelistEntryByEmail", ctx, "outsider@club.org").
		Return(nil, database.ErrWhitelistEntryNotFound).Once()

	ok, err := svc.IsWhitelisted(ctx, "member@club.org")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.IsWhitelisted(ctx, "outsider@club.org")
	require.NoError(t, err)
	assert.False(t, ok)
}
