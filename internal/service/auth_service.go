package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"hutkeeper/internal/config"
	"hutkeeper/internal/database"
	"hutkeeper/internal/domain"
	"hutkeeper/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/singleflight"
)

// AuthService resolves principals and owns the credential lifecycle:
// whitelist-gated registration, login, refresh rotation and logout.
// Concurrent refreshes of the same token are collapsed into one rotation
// so parallel tabs do not race each other out of their session.
type AuthService struct {
	repo     domain.Repository
	sessions domain.SessionRepository
	cfg      config.AuthConfig
	logger   *zerolog.Logger

	refreshGroup singleflight.Group
}

func NewAuthService(repo domain.Repository, sessions domain.SessionRepository, cfg config.AuthConfig, logger *zerolog.Logger) *AuthService {
	return &AuthService{
		repo:     repo,
		sessions: sessions,
		cfg:      cfg,
		logger:   logger,
	}
}

// TokenPair is what a successful login or refresh hands back to the client.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"-"`
	RefreshExpiresAt time.Time `json:"-"`
}

// Register creates a member account for a whitelisted email. The whitelist
// entry decides whether the new account starts as admin.
func (s *AuthService) Register(ctx context.Context, email, password string) (*models.User, error) {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, newValidationError("email", "must be a valid email address")
	}
	if len(password) < 8 {
		return nil, newValidationError("password", "must be at least 8 characters")
	}

	entry, err := s.repo.GetWhitelistEntryByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, database.ErrWhitelistEntryNotFound) {
			return nil, ErrNotWhitelisted
		}
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Email:                email,
		HashedPassword:       string(hash),
		IsAdmin:              entry.IsAdminDefault,
		IsActive:             true,
		ReceivesNotification: entry.IsAdminDefault,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info().Str("email", email).Bool("is_admin", user.IsAdmin).Msg("user registered")
	return user, nil
}

// Attempt budget per account, counted against the session store so the
// limit survives across instances when Redis backs it.
const (
	loginAttemptLimit  = 10
	loginAttemptWindow = time.Minute
)

// Login verifies credentials and opens a refresh session. Unknown email and
// wrong password produce the same error.
func (s *AuthService) Login(ctx context.Context, email, password, userAgent, ip string) (*TokenPair, *models.User, error) {
	email = normalizeEmail(email)

	allowed, err := s.sessions.CheckRateLimit(ctx, "login:"+email, loginAttemptLimit, loginAttemptWindow)
	if err != nil {
		s.logger.Warn().Err(err).Msg("login rate limit check failed")
	} else if !allowed {
		return nil, nil, ErrRateLimited
	}

	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}
	if !user.IsActive {
		return nil, nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(password)); err != nil {
		return nil, nil, ErrInvalidCredentials
	}

	pair, err := s.openSession(ctx, user, userAgent, ip)
	if err != nil {
		return nil, nil, err
	}
	return pair, user, nil
}

// Refresh rotates a refresh token and issues a new access token. Concurrent
// calls with the same token share a single rotation and all receive the
// same new pair.
func (s *AuthService) Refresh(ctx context.Context, refreshToken, userAgent, ip string) (*TokenPair, error) {
	if refreshToken == "" {
		return nil, ErrSessionExpired
	}
	tokenHash := hashToken(refreshToken)

	v, err, _ := s.refreshGroup.Do(tokenHash, func() (interface{}, error) {
		return s.rotateSession(ctx, tokenHash, userAgent, ip)
	})
	if err != nil {
		return nil, err
	}
	return v.(*TokenPair), nil
}

func (s *AuthService) rotateSession(ctx context.Context, tokenHash, userAgent, ip string) (*TokenPair, error) {
	session, err := s.sessions.GetSession(ctx, tokenHash)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionExpired
	}
	if session.Expired(time.Now()) {
		_ = s.sessions.DeleteSession(ctx, tokenHash)
		return nil, ErrSessionExpired
	}

	user, err := s.repo.GetUserByID(ctx, session.UserID)
	if err != nil {
		return nil, ErrSessionExpired
	}
	if !user.IsActive {
		_ = s.sessions.DeleteSession(ctx, tokenHash)
		return nil, ErrSessionExpired
	}

	if err := s.sessions.DeleteSession(ctx, tokenHash); err != nil {
		s.logger.Warn().Err(err).Msg("failed to delete rotated session")
	}

	return s.openSession(ctx, user, userAgent, ip)
}

// Logout drops the refresh session. Unknown tokens are a no-op.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.sessions.DeleteSession(ctx, hashToken(refreshToken))
}

// ResolvePrincipal maps a bearer token to a principal. Missing or invalid
// credentials resolve to the anonymous principal, never an error.
func (s *AuthService) ResolvePrincipal(tokenString string) models.Principal {
	if tokenString == "" {
		return models.Anonymous
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return models.Anonymous
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return models.Anonymous
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return models.Anonymous
	}
	userID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return models.Anonymous
	}

	isAdmin, _ := claims["adm"].(bool)
	return models.Principal{UserID: userID, IsAdmin: isAdmin, Authenticated: true}
}

// IsWhitelisted reports whether the email may register.
func (s *AuthService) IsWhitelisted(ctx context.Context, email string) (bool, error) {
	_, err := s.repo.GetWhitelistEntryByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, database.ErrWhitelistEntryNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *AuthService) openSession(ctx context.Context, user *models.User, userAgent, ip string) (*TokenPair, error) {
	now := time.Now().UTC()

	accessExpiry := now.Add(time.Duration(s.cfg.AccessTTLMinutes) * time.Minute)
	claims := jwt.MapClaims{
		"sub": strconv.FormatInt(user.ID, 10),
		"adm": user.IsAdmin,
		"iat": now.Unix(),
		"exp": accessExpiry.Unix(),
	}
	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	refreshToken := uuid.NewString()
	refreshExpiry := now.Add(time.Duration(s.cfg.RefreshTTLDays) * 24 * time.Hour)
	session := &models.Session{
		TokenHash: hashToken(refreshToken),
		UserID:    user.ID,
		IsAdmin:   user.IsAdmin,
		UserAgent: userAgent,
		IP:        ip,
		CreatedAt: now,
		ExpiresAt: refreshExpiry,
	}
	if err := s.sessions.SetSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	return &TokenPair{
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExpiry,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: refreshExpiry,
	}, nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
