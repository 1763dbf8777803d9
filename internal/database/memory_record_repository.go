package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/example/drillcore/internal/apperr"
	"github.com/example/drillcore/pkg/models"
)

// MemoryRecordRepository handles persistence of per-(user, item, track)
// scheduling records. Rows are never hard-deleted by normal operation.
type MemoryRecordRepository struct {
	db *sqlx.DB
}

// NewMemoryRecordRepository creates a repository over the given handle.
func NewMemoryRecordRepository(db *sqlx.DB) *MemoryRecordRepository {
	return &MemoryRecordRepository{db: db}
}

// GetByTriple returns the record for (user, item, track).
func (r *MemoryRecordRepository) GetByTriple(ctx context.Context, userID string, vocabID int64, track models.Track) (*models.MemoryRecord, error) {
	var rec models.MemoryRecord
	query := r.db.Rebind(`SELECT * FROM memory_records WHERE user_id = ? AND vocab_id = ? AND track = ?`)
	err := r.db.GetContext(ctx, &rec, query, userID, vocabID, track)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFoundf("memory record user=%s vocab=%d track=%s", userID, vocabID, track)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get memory record: %w", err)
	}
	return &rec, nil
}

// Due returns LEARNING/REVIEW records for the track whose next review has
// passed, oldest-due first, capped at limit. The ascending order is a
// correctness requirement of the selector, not a heuristic.
func (r *MemoryRecordRepository) Due(ctx context.Context, userID string, track models.Track, before time.Time, exclude []int64, limit int) ([]models.MemoryRecord, error) {
	query := `
		SELECT * FROM memory_records
		WHERE user_id = ? AND track = ?
		  AND status IN ('LEARNING', 'REVIEW')
		  AND next_review_at IS NOT NULL AND next_review_at <= ?`
	args := []interface{}{userID, track, before}

	if len(exclude) > 0 {
		inQuery, inArgs, err := sqlx.In(` AND vocab_id NOT IN (?)`, exclude)
		if err != nil {
			return nil, fmt.Errorf("failed to build exclude filter: %w", err)
		}
		query += inQuery
		args = append(args, inArgs...)
	}
	query += ` ORDER BY next_review_at ASC LIMIT ?`
	args = append(args, limit)

	var recs []models.MemoryRecord
	if err := r.db.SelectContext(ctx, &recs, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to get due records: %w", err)
	}
	return recs, nil
}

// Upsert writes the full computed record, creating the row lazily on first
// exposure. The whole record is replaced in one statement; combined with the
// scheduler being a pure function of the previous state this makes
// last-write-wins safe without a distributed lock.
func (r *MemoryRecordRepository) Upsert(ctx context.Context, rec *models.MemoryRecord) error {
	query := r.db.Rebind(`
		INSERT INTO memory_records (
			user_id, vocab_id, track, status, state, stability, difficulty,
			reps, lapses, "interval", last_review_at, next_review_at, due_date
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, vocab_id, track) DO UPDATE SET
			status = excluded.status,
			state = excluded.state,
			stability = excluded.stability,
			difficulty = excluded.difficulty,
			reps = excluded.reps,
			lapses = excluded.lapses,
			"interval" = excluded."interval",
			last_review_at = excluded.last_review_at,
			next_review_at = excluded.next_review_at,
			due_date = excluded.due_date,
			updated_at = CURRENT_TIMESTAMP`)
	_, err := r.db.ExecContext(ctx, query,
		rec.UserID, rec.VocabID, rec.Track, rec.Status, rec.State,
		rec.Stability, rec.Difficulty, rec.Reps, rec.Lapses, rec.Interval,
		rec.LastReviewAt, rec.NextReviewAt, rec.DueDate,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert memory record: %w", err)
	}
	return nil
}

// FinalizeMastered moves an existing record to MASTERED and clears its
// schedule. Mastery is an explicit operation, never a scheduler outcome.
func (r *MemoryRecordRepository) FinalizeMastered(ctx context.Context, userID string, vocabID int64, track models.Track) error {
	query := r.db.Rebind(`
		UPDATE memory_records
		SET status = 'MASTERED', next_review_at = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ? AND vocab_id = ? AND track = ?`)
	res, err := r.db.ExecContext(ctx, query, userID, vocabID, track)
	if err != nil {
		return fmt.Errorf("failed to finalize record: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.NotFoundf("memory record user=%s vocab=%d track=%s", userID, vocabID, track)
	}
	return nil
}

// ActiveUserIDs returns users who reviewed anything after the cutoff.
// Consumed by the scheduled replenishment sweep.
func (r *MemoryRecordRepository) ActiveUserIDs(ctx context.Context, since time.Time) ([]string, error) {
	var ids []string
	query := r.db.Rebind(`
		SELECT DISTINCT user_id FROM memory_records
		WHERE last_review_at IS NOT NULL AND last_review_at >= ?`)
	if err := r.db.SelectContext(ctx, &ids, query, since); err != nil {
		return nil, fmt.Errorf("failed to get active users: %w", err)
	}
	return ids, nil
}
