package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/problem-bridge/internal/config"
)

var ErrTooManySessions = errors.New("too many open bridge sessions")

// sessionTTL expires the registry of a user whose sockets all died without a
// clean release.
const sessionTTL = 12 * time.Hour

// SessionService tracks open bridge sockets per user in Redis.
type SessionService struct {
	rdb   *redis.Client
	limit int
}

// NewSessionService creates a new SessionService. limit <= 0 disables the cap.
func NewSessionService(rdb *redis.Client, cfg *config.Config) *SessionService {
	return &SessionService{rdb: rdb, limit: cfg.MaxBridgeSessions}
}

// Acquire registers a session for userID. The id is added first and removed
// again when the set ends up over the cap, so two racing sockets cannot both
// slip under it.
func (s *SessionService) Acquire(ctx context.Context, userID int, sessionID uuid.UUID) error {
	key := config.CacheKey.BridgeSessionKey(userID)

	pipe := s.rdb.TxPipeline()
	pipe.SAdd(ctx, key, sessionID.String())
	pipe.Expire(ctx, key, sessionTTL)
	card := pipe.SCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("acquire bridge session: %w", err)
	}

	if s.limit > 0 && card.Val() > int64(s.limit) {
		if err := s.rdb.SRem(ctx, key, sessionID.String()).Err(); err != nil {
			return fmt.Errorf("release over-limit session: %w", err)
		}
		return ErrTooManySessions
	}
	return nil
}

// Release removes a session. It uses its own context so it still runs after
// the request context is gone.
func (s *SessionService) Release(userID int, sessionID uuid.UUID) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.rdb.SRem(ctx, config.CacheKey.BridgeSessionKey(userID), sessionID.String()).Err()
}

// Count returns the number of open sessions for userID.
func (s *SessionService) Count(ctx context.Context, userID int) (int64, error) {
	return s.rdb.SCard(ctx, config.CacheKey.BridgeSessionKey(userID)).Result()
}
