package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/problem-bridge/internal/model"
)

var activityColumns = []string{
	"session_id", "user_id", "problem_id", "grade_id", "kind", "ok", "updates_count", "error_kind", "occurred_at",
}

type ActivityRepository struct {
	pool *pgxpool.Pool
}

func NewActivityRepository(pool *pgxpool.Pool) *ActivityRepository {
	return &ActivityRepository{pool: pool}
}

// CopyBatch bulk-inserts a batch with COPY. The whole batch fails together.
func (r *ActivityRepository) CopyBatch(ctx context.Context, batch []model.Activity) (int64, error) {
	rows := make([][]interface{}, 0, len(batch))
	for _, a := range batch {
		rows = append(rows, activityRow(a))
	}
	return r.pool.CopyFrom(ctx, pgx.Identifier{"bridge_activity"}, activityColumns, pgx.CopyFromRows(rows))
}

// Insert stores a single entry.
func (r *ActivityRepository) Insert(ctx context.Context, a model.Activity) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO bridge_activity
		   (session_id, user_id, problem_id, grade_id, kind, ok, updates_count, error_kind, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		activityRow(a)...)
	return err
}

// ListRecent returns a user's latest entries for a problem, newest first.
func (r *ActivityRepository) ListRecent(ctx context.Context, userID, problemID, limit int) ([]model.Activity, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, user_id, problem_id, grade_id, kind, ok, updates_count, COALESCE(error_kind, ''), occurred_at
		 FROM bridge_activity
		 WHERE user_id = $1 AND problem_id = $2
		 ORDER BY occurred_at DESC, id DESC
		 LIMIT $3`,
		userID, problemID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]model.Activity, 0, limit)
	for rows.Next() {
		var a model.Activity
		var kind string
		if err := rows.Scan(&a.ID, &a.SessionID, &a.UserID, &a.ProblemID, &a.GradeID,
			&kind, &a.OK, &a.UpdatesCount, &a.ErrorKind, &a.OccurredAt); err != nil {
			return nil, err
		}
		a.Kind = model.ActivityKind(kind)
		entries = append(entries, a)
	}
	return entries, rows.Err()
}

// LastSuccess returns when a user last saved with a visible change and last
// submitted successfully. Either may be nil.
func (r *ActivityRepository) LastSuccess(ctx context.Context, userID, problemID int) (*model.ProblemActivity, error) {
	pa := &model.ProblemActivity{ProblemID: problemID}
	err := r.pool.QueryRow(ctx,
		`SELECT
		   MAX(occurred_at) FILTER (WHERE kind = 'SAVE' AND ok AND updates_count > 0),
		   MAX(occurred_at) FILTER (WHERE kind = 'SUBMIT' AND ok)
		 FROM bridge_activity
		 WHERE user_id = $1 AND problem_id = $2`,
		userID, problemID).Scan(&pa.LastSavedAt, &pa.LastSubmittedAt)
	if err != nil {
		return nil, err
	}
	return pa, nil
}

func activityRow(a model.Activity) []interface{} {
	var errorKind *string
	if a.ErrorKind != "" {
		errorKind = &a.ErrorKind
	}
	return []interface{}{
		a.SessionID, a.UserID, a.ProblemID, a.GradeID, string(a.Kind), a.OK, a.UpdatesCount, errorKind, a.OccurredAt,
	}
}
