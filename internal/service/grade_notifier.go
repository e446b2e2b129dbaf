package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/problem-bridge/internal/config"
	"github.com/stemsi/problem-bridge/internal/model"
)

// GradeEvent is published whenever a submission returns a new grade.
type GradeEvent struct {
	Type      string             `json:"type"`
	UserID    int                `json:"user_id"`
	ProblemID int                `json:"problem_id"`
	Grade     model.StudentGrade `json:"grade"`
	At        time.Time          `json:"at"`
}

// GradeNotifier fans grade updates out over Redis Pub/Sub so every page
// showing the problem can refresh its score.
type GradeNotifier struct {
	rdb *redis.Client
}

// NewGradeNotifier creates a new GradeNotifier.
func NewGradeNotifier(rdb *redis.Client) *GradeNotifier {
	return &GradeNotifier{rdb: rdb}
}

// Publish announces g for the user's problem.
func (n *GradeNotifier) Publish(ctx context.Context, userID, problemID int, g model.StudentGrade) error {
	payload, err := json.Marshal(GradeEvent{
		Type:      "grade",
		UserID:    userID,
		ProblemID: problemID,
		Grade:     g,
		At:        time.Now(),
	})
	if err != nil {
		return fmt.Errorf("marshal grade event: %w", err)
	}
	channel := config.CacheKey.GradeChannel(userID, problemID)
	if err := n.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish grade: %w", err)
	}
	return nil
}

// Subscribe opens a subscription to the user's grade updates for a problem.
// The caller closes it.
func (n *GradeNotifier) Subscribe(ctx context.Context, userID, problemID int) *redis.PubSub {
	return n.rdb.Subscribe(ctx, config.CacheKey.GradeChannel(userID, problemID))
}
