package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/problem-bridge/internal/config"
	"github.com/stemsi/problem-bridge/internal/model"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// ActivityStore persists journal entries.
type ActivityStore interface {
	CopyBatch(ctx context.Context, batch []model.Activity) (int64, error)
	Insert(ctx context.Context, a model.Activity) error
}

// ActivityWorker drains the bridge activity queue into Postgres in batches.
type ActivityWorker struct {
	store     ActivityStore
	rdb       *redis.Client
	batchSize int
	backoff   time.Duration
	requeueFn func(ctx context.Context, items []model.Activity) error
	log       zerolog.Logger
}

func NewActivityWorker(store ActivityStore, rdb *redis.Client, batchSize int, log zerolog.Logger) *ActivityWorker {
	if batchSize <= 0 {
		batchSize = BatchSize
	}
	w := &ActivityWorker{
		store:     store,
		rdb:       rdb,
		batchSize: batchSize,
		backoff:   2 * time.Second,
		log:       log.With().Str("component", "activity_worker").Logger(),
	}
	w.requeueFn = w.pushBack
	return w
}

func (w *ActivityWorker) Start(ctx context.Context) {
	w.log.Info().Int("batch_size", w.batchSize).Msg("ActivityWorker started")

	buffer := make([]model.Activity, 0, w.batchSize)
	lastFlushTime := time.Now()

	for {
		// 1. Flush on size or age
		if len(buffer) > 0 {
			if len(buffer) >= w.batchSize || time.Since(lastFlushTime) >= BatchTimeout {
				w.flushSafe(ctx, buffer)
				buffer = buffer[:0]
				lastFlushTime = time.Now()
			}
		}

		// 2. Graceful shutdown
		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		// 3. Fetch from Redis
		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistActivityQueue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue // Queue empty, loop back to check the flush timer
			}
			if ctx.Err() != nil {
				w.shutdown(buffer)
				return
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}

		// 4. Decode
		if len(result) < 2 {
			continue
		}
		a, ok := w.decode(result[1])
		if !ok {
			continue
		}
		buffer = append(buffer, a)
	}
}

func (w *ActivityWorker) decode(raw string) (model.Activity, bool) {
	var a model.Activity
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		// Malformed entries cannot be retried.
		w.log.Error().Err(err).Str("data", raw).Msg("Discarding malformed activity JSON")
		return model.Activity{}, false
	}
	if a.ProblemID <= 0 || a.Kind == "" {
		w.log.Error().Str("data", raw).Msg("Discarding incomplete activity entry")
		return model.Activity{}, false
	}
	return a, true
}

// flushSafe attempts a bulk copy, then row-by-row inserts, then requeue.
func (w *ActivityWorker) flushSafe(ctx context.Context, batch []model.Activity) {
	n, err := w.store.CopyBatch(ctx, batch)
	if err == nil {
		w.log.Debug().Int64("rows", n).Msg("Activity batch persisted")
		return
	}
	w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk copy failed, attempting row-by-row recovery")
	w.fallbackInsert(ctx, batch)
}

func (w *ActivityWorker) fallbackInsert(ctx context.Context, batch []model.Activity) {
	requeueList := make([]model.Activity, 0)

	for _, a := range batch {
		if err := w.store.Insert(ctx, a); err != nil {
			w.log.Error().Err(err).
				Int("user_id", a.UserID).
				Int("problem_id", a.ProblemID).
				Msg("Insert failed, requeueing")
			requeueList = append(requeueList, a)
		}
	}

	if len(requeueList) == 0 {
		return
	}
	if err := w.requeueFn(ctx, requeueList); err != nil {
		w.log.Error().Err(err).Int("count", len(requeueList)).Msg("CRITICAL: Failed to requeue activity. Data loss occurred.")
		return
	}
	w.log.Info().Int("count", len(requeueList)).Msg("Requeued failed activity back to Redis")
	// Avoid thrashing while the database is down.
	time.Sleep(w.backoff)
}

func (w *ActivityWorker) pushBack(ctx context.Context, items []model.Activity) error {
	pipe := w.rdb.Pipeline()
	for _, a := range items {
		data, err := json.Marshal(a)
		if err != nil {
			continue
		}
		pipe.RPush(ctx, config.WorkerKey.PersistActivityQueue, data)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (w *ActivityWorker) shutdown(buffer []model.Activity) {
	w.log.Info().Int("pending", len(buffer)).Msg("Worker stopping, flushing remaining buffer")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}
