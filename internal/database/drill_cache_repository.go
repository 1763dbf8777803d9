package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/example/drillcore/internal/apperr"
	"github.com/example/drillcore/pkg/models"
)

// DrillCacheEntry is one durable batch of pre-generated drills for a
// (user, mode). This is the coarse-grained secondary cache layer; the redis
// inventory is always checked first.
type DrillCacheEntry struct {
	ID         string    `db:"id"`
	UserID     string    `db:"user_id"`
	Mode       string    `db:"mode"`
	Payload    string    `db:"payload"`
	IsConsumed bool      `db:"is_consumed"`
	ExpiresAt  time.Time `db:"expires_at"`
	CreatedAt  time.Time `db:"created_at"`
}

// Drills decodes the stored batch.
func (e *DrillCacheEntry) Drills() ([]models.DrillContent, error) {
	var out []models.DrillContent
	if err := json.Unmarshal([]byte(e.Payload), &out); err != nil {
		return nil, fmt.Errorf("failed to decode drill cache payload: %w", err)
	}
	return out, nil
}

// DrillCacheRepository manages the durable overflow cache. Entries are
// marked consumed at read time and deleted lazily by the cleanup job.
type DrillCacheRepository struct {
	db *sqlx.DB
}

// NewDrillCacheRepository creates a repository over the given handle.
func NewDrillCacheRepository(db *sqlx.DB) *DrillCacheRepository {
	return &DrillCacheRepository{db: db}
}

// Save stores a generated batch with the given TTL.
func (r *DrillCacheRepository) Save(ctx context.Context, userID string, mode models.Mode, drills []models.DrillContent, ttl time.Duration) error {
	payload, err := json.Marshal(drills)
	if err != nil {
		return fmt.Errorf("failed to encode drill cache payload: %w", err)
	}
	query := r.db.Rebind(`
		INSERT INTO drill_cache (id, user_id, mode, payload, is_consumed, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	_, err = r.db.ExecContext(ctx, query,
		uuid.NewString(), userID, mode, string(payload), false, time.Now().Add(ttl))
	if err != nil {
		return fmt.Errorf("failed to save drill cache entry: %w", err)
	}
	return nil
}

// FindUnconsumed returns the oldest valid batch for (user, mode).
// Oldest-first so reliable caches are used before they expire.
func (r *DrillCacheRepository) FindUnconsumed(ctx context.Context, userID string, mode models.Mode) (*DrillCacheEntry, error) {
	var entry DrillCacheEntry
	query := r.db.Rebind(`
		SELECT * FROM drill_cache
		WHERE user_id = ? AND mode = ? AND is_consumed = ? AND expires_at > ?
		ORDER BY created_at ASC LIMIT 1`)
	err := r.db.GetContext(ctx, &entry, query, userID, mode, false, time.Now())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFoundf("drill cache user=%s mode=%s", userID, mode)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find drill cache entry: %w", err)
	}
	return &entry, nil
}

// MarkConsumed flags an entry instead of deleting it.
func (r *DrillCacheRepository) MarkConsumed(ctx context.Context, id string) error {
	query := r.db.Rebind(`UPDATE drill_cache SET is_consumed = ? WHERE id = ?`)
	if _, err := r.db.ExecContext(ctx, query, true, id); err != nil {
		return fmt.Errorf("failed to mark drill cache consumed: %w", err)
	}
	return nil
}

// DeleteExpired removes consumed and expired entries. Cleanup job use.
func (r *DrillCacheRepository) DeleteExpired(ctx context.Context) (int64, error) {
	query := r.db.Rebind(`DELETE FROM drill_cache WHERE is_consumed = ? OR expires_at <= ?`)
	res, err := r.db.ExecContext(ctx, query, true, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired drill cache entries: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
