package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/problem-bridge/internal/bridge"
	"github.com/stemsi/problem-bridge/internal/config"
	"github.com/stemsi/problem-bridge/internal/model"
	"github.com/stemsi/problem-bridge/internal/repository"
)

const (
	DefaultActivityLimit = 20
	MaxActivityLimit     = 100
)

// ActivityRecorder queues bridge activity for the persist worker. Recording
// never blocks on Postgres.
type ActivityRecorder struct {
	rdb *redis.Client
}

// NewActivityRecorder creates a new ActivityRecorder.
func NewActivityRecorder(rdb *redis.Client) *ActivityRecorder {
	return &ActivityRecorder{rdb: rdb}
}

var _ bridge.ActivitySink = (*ActivityRecorder)(nil)

// Record pushes a onto the persist queue.
func (r *ActivityRecorder) Record(ctx context.Context, a model.Activity) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal activity: %w", err)
	}
	if err := r.rdb.RPush(ctx, config.WorkerKey.PersistActivityQueue, data).Err(); err != nil {
		return fmt.Errorf("queue activity: %w", err)
	}
	return nil
}

// ActivityService reads the persisted journal.
type ActivityService struct {
	repo *repository.ActivityRepository
}

// NewActivityService creates a new ActivityService.
func NewActivityService(repo *repository.ActivityRepository) *ActivityService {
	return &ActivityService{repo: repo}
}

// ForProblem returns the user's latest successful save and submit on a problem
// together with the most recent journal entries.
func (s *ActivityService) ForProblem(ctx context.Context, userID, problemID, limit int) (*model.ProblemActivity, error) {
	limit = ClampLimit(limit)

	summary, err := s.repo.LastSuccess(ctx, userID, problemID)
	if err != nil {
		return nil, fmt.Errorf("last success: %w", err)
	}

	entries, err := s.repo.ListRecent(ctx, userID, problemID, limit)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	if entries == nil {
		entries = []model.Activity{}
	}
	summary.Entries = entries
	return summary, nil
}

// ClampLimit bounds a requested page size.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultActivityLimit
	}
	if limit > MaxActivityLimit {
		return MaxActivityLimit
	}
	return limit
}
