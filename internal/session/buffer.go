// Package session holds the in-flight grading window. Repeated attempts on
// the same item within a session collapse into one scheduler update, applied
// when the session goes quiet.
package session

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/drillcore/internal/config"
	"github.com/example/drillcore/internal/logger"
	"github.com/example/drillcore/pkg/models"
)

// activeSessionsKey is a zset of user ids scored by last-activity epoch
// millis. The settler sweeps it for idle users.
const activeSessionsKey = "active_sessions"

func windowKey(userID string, track models.Track, vocabID int64) string {
	return fmt.Sprintf("window:%s:%s:%d", userID, track, vocabID)
}

func windowPattern(userID string) string {
	return fmt.Sprintf("window:%s:*", userID)
}

// Buffer records answers into per-item windows instead of grading them
// immediately. A window keeps the last grade, the attempt count, and whether
// any attempt was a lapse; the lapse flag is sticky because a forgotten item
// stays forgotten for scheduling purposes no matter how the retry went.
type Buffer struct {
	rdb *redis.Client
	cfg config.Config
	log *logger.Logger
}

// NewBuffer creates a Buffer.
func NewBuffer(rdb *redis.Client, cfg config.Config, log *logger.Logger) *Buffer {
	return &Buffer{rdb: rdb, cfg: cfg, log: log.With("component", "session")}
}

// RecordAnswer folds one answer into the item's window and marks the user
// active. The window TTL is a safety net against a settler outage, not the
// normal expiry path.
func (b *Buffer) RecordAnswer(ctx context.Context, userID string, track models.Track, vocabID int64, grade models.Grade) error {
	key := windowKey(userID, track, vocabID)
	now := time.Now()

	pipe := b.rdb.TxPipeline()
	pipe.HSet(ctx, key, "lastGrade", int(grade))
	pipe.HIncrBy(ctx, key, "attempts", 1)
	if grade == models.GradeAgain {
		pipe.HSet(ctx, key, "hasAgain", 1)
	}
	pipe.Expire(ctx, key, b.cfg.WindowTTL)
	pipe.ZAdd(ctx, activeSessionsKey, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: userID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record answer: %w", err)
	}
	return nil
}

// window is one decoded answer window.
type window struct {
	track    models.Track
	vocabID  int64
	grade    models.Grade
	attempts int
	hasAgain bool
}

// effectiveGrade collapses the window per the sticky-lapse rule.
func (w window) effectiveGrade() models.Grade {
	if w.hasAgain {
		return models.GradeAgain
	}
	return w.grade
}

// collectWindows scans a user's open windows and decodes them.
func (b *Buffer) collectWindows(ctx context.Context, userID string) ([]window, []string, error) {
	var (
		out  []window
		keys []string
	)
	iter := b.rdb.Scan(ctx, 0, windowPattern(userID), 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		track, vocabID, err := parseWindowKey(key, userID)
		if err != nil {
			b.log.Warn("skipping malformed window key", "key", key, "error", err)
			continue
		}
		fields, err := b.rdb.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read window %s: %w", key, err)
		}
		if len(fields) == 0 {
			continue
		}
		lastGrade, _ := strconv.Atoi(fields["lastGrade"])
		attempts, _ := strconv.Atoi(fields["attempts"])
		out = append(out, window{
			track:    track,
			vocabID:  vocabID,
			grade:    models.Grade(lastGrade),
			attempts: attempts,
			hasAgain: fields["hasAgain"] == "1",
		})
		keys = append(keys, key)
	}
	if err := iter.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to scan windows: %w", err)
	}
	return out, keys, nil
}

func parseWindowKey(key, userID string) (models.Track, int64, error) {
	rest := strings.TrimPrefix(key, "window:"+userID+":")
	idx := strings.LastIndex(rest, ":")
	if idx < 0 {
		return "", 0, fmt.Errorf("no track separator in %q", key)
	}
	track := models.Track(rest[:idx])
	if !track.Valid() {
		return "", 0, fmt.Errorf("bad track in %q", key)
	}
	vocabID, err := strconv.ParseInt(rest[idx+1:], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("bad vocab id in %q", key)
	}
	return track, vocabID, nil
}
