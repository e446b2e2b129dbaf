package bridge

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/problem-bridge/internal/debounce"
	"github.com/stemsi/problem-bridge/internal/model"
)

// ActivitySink journals load, save and submit outcomes.
type ActivitySink interface {
	Record(ctx context.Context, a model.Activity) error
}

type activityLog struct {
	ctx       context.Context
	sink      ActivitySink
	sessionID uuid.UUID
	userID    int
	clock     debounce.Clock
	log       zerolog.Logger
}

func (a *activityLog) record(act model.Activity) {
	if a == nil || a.sink == nil {
		return
	}
	act.SessionID = a.sessionID
	act.UserID = a.userID
	act.OccurredAt = a.clock.Now()

	if err := a.sink.Record(a.ctx, act); err != nil {
		a.log.Warn().Err(err).Str("activity", string(act.Kind)).Msg("Failed to journal bridge activity")
	}
}
