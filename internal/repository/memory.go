package repository

import (
	"context"
	"sync"
	"time"

	"hutkeeper/internal/models"
)

type MemorySessionRepository struct {
	sessions   sync.Map
	rateLimits sync.Map
}

func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{}
}

func (r *MemorySessionRepository) GetSession(ctx context.Context, tokenHash string) (*models.Session, error) {
	val, ok := r.sessions.Load(tokenHash)
	if !ok {
		return nil, nil
	}
	session := val.(*models.Session)
	if session.Expired(time.Now()) {
		r.sessions.Delete(tokenHash)
		return nil, nil
	}
	return session, nil
}

func (r *MemorySessionRepository) SetSession(ctx context.Context, session *models.Session) error {
	r.sessions.Store(session.TokenHash, session)
	return nil
}

func (r *MemorySessionRepository) DeleteSession(ctx context.Context, tokenHash string) error {
	r.sessions.Delete(tokenHash)
	return nil
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

func (r *MemorySessionRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now()
	val, ok := r.rateLimits.Load(key)

	var entry *rateLimitEntry
	if !ok {
		entry = &rateLimitEntry{
			count:     1,
			expiresAt: now.Add(window),
		}
	} else {
		entry = val.(*rateLimitEntry)
		if now.After(entry.expiresAt) {
			entry.count = 1
			entry.expiresAt = now.Add(window)
		} else {
			entry.count++
		}
	}

	r.rateLimits.Store(key, entry)
	return entry.count <= limit, nil
}
