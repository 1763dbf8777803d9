package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/drillcore/internal/apperr"
	"github.com/example/drillcore/internal/database"
	"github.com/example/drillcore/internal/fsrs"
	"github.com/example/drillcore/pkg/models"
)

// Flusher settles buffered answers into durable scheduling state.
type Flusher interface {
	Flush(ctx context.Context, userID string) error
}

// BufferFlusher applies a user's open windows through the scheduler and
// clears them. One scheduler update per (item, track), regardless of how
// many attempts the window absorbed.
type BufferFlusher struct {
	buf     *Buffer
	engine  *fsrs.Engine
	records *database.MemoryRecordRepository
}

// NewBufferFlusher creates a BufferFlusher.
func NewBufferFlusher(buf *Buffer, engine *fsrs.Engine, records *database.MemoryRecordRepository) *BufferFlusher {
	return &BufferFlusher{buf: buf, engine: engine, records: records}
}

// Flush settles every open window for the user, then removes the user from
// the active set. A failed window aborts the flush with its keys intact so
// the next pass retries it; settled windows stay settled.
func (f *BufferFlusher) Flush(ctx context.Context, userID string) error {
	windows, keys, err := f.buf.collectWindows(ctx, userID)
	if err != nil {
		return err
	}

	now := time.Now()
	for i, w := range windows {
		rec, err := f.records.GetByTriple(ctx, userID, w.vocabID, w.track)
		if errors.Is(err, apperr.ErrNotFound) {
			fresh := models.NewMemoryRecord(userID, w.vocabID, w.track, now)
			rec = &fresh
		} else if err != nil {
			return err
		}
		// Mastered items never re-enter the schedule; drop the window.
		if rec.Status == models.StatusMastered {
			if err := f.buf.rdb.Del(ctx, keys[i]).Err(); err != nil {
				return fmt.Errorf("failed to clear window %s: %w", keys[i], err)
			}
			continue
		}

		next, err := f.engine.Schedule(*rec, w.effectiveGrade(), now)
		if err != nil {
			return fmt.Errorf("failed to settle window for vocab %d: %w", w.vocabID, err)
		}
		if err := f.records.Upsert(ctx, &next); err != nil {
			return err
		}
		// Settled: drop the window so a retried flush cannot grade it twice.
		if err := f.buf.rdb.Del(ctx, keys[i]).Err(); err != nil {
			return fmt.Errorf("failed to clear window %s: %w", keys[i], err)
		}
	}

	if err := f.buf.rdb.ZRem(ctx, activeSessionsKey, userID).Err(); err != nil {
		return fmt.Errorf("failed to deactivate session: %w", err)
	}
	return nil
}
