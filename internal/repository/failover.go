package repository

import (
	"context"
	"sync/atomic"
	"time"

	"hutkeeper/internal/domain"
	"hutkeeper/internal/models"

	"github.com/rs/zerolog"
)

// FailoverSessionRepository serves sessions from the primary store and
// degrades to the fallback when the primary errors. Recovery is probed at
// most once a minute.
type FailoverSessionRepository struct {
	primary   domain.SessionRepository
	fallback  domain.SessionRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck time.Time
}

func NewFailoverSessionRepository(primary, fallback domain.SessionRepository, logger *zerolog.Logger) *FailoverSessionRepository {
	return &FailoverSessionRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverSessionRepository) GetSession(ctx context.Context, tokenHash string) (*models.Session, error) {
	if !r.isDown.Load() {
		session, err := r.primary.GetSession(ctx, tokenHash)
		if err == nil {
			return session, nil
		}
		r.logger.Error().Err(err).Msg("Primary session repository failed, falling back to memory")
		r.isDown.Store(true)
		r.lastCheck = time.Now()
	}

	// Try to recover after 1 minute
	if r.isDown.Load() && time.Since(r.lastCheck) > time.Minute {
		session, err := r.primary.GetSession(ctx, tokenHash)
		if err == nil {
			r.isDown.Store(false)
			return session, nil
		}
		r.lastCheck = time.Now()
	}

	return r.fallback.GetSession(ctx, tokenHash)
}

func (r *FailoverSessionRepository) SetSession(ctx context.Context, session *models.Session) error {
	if !r.isDown.Load() {
		err := r.primary.SetSession(ctx, session)
		if err == nil {
			return nil
		}
		r.logger.Error().Err(err).Msg("Primary session repository failed, falling back to memory")
		r.isDown.Store(true)
		r.lastCheck = time.Now()
	}

	return r.fallback.SetSession(ctx, session)
}

func (r *FailoverSessionRepository) DeleteSession(ctx context.Context, tokenHash string) error {
	if !r.isDown.Load() {
		err := r.primary.DeleteSession(ctx, tokenHash)
		if err == nil {
			return nil
		}
		r.logger.Error().Err(err).Msg("Primary session repository failed, falling back to memory")
		r.isDown.Store(true)
		r.lastCheck = time.Now()
	}

	return r.fallback.DeleteSession(ctx, tokenHash)
}

func (r *FailoverSessionRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if !r.isDown.Load() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		if err == nil {
			return allowed, nil
		}
		r.logger.Error().Err(err).Msg("Primary session repository failed, falling back to memory")
		r.isDown.Store(true)
		r.lastCheck = time.Now()
	}

	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}
