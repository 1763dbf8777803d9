// Package inventory implements the per-(user, mode, item) drill cache:
// FIFO lists of pre-generated content plus an aggregate per-(user, mode)
// counter kept in lockstep for O(1) low-watermark checks.
package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/drillcore/internal/apperr"
	"github.com/example/drillcore/internal/logger"
	"github.com/example/drillcore/pkg/models"
)

const (
	readAttempts = 3
	readBackoff  = 25 * time.Millisecond
)

// retryRead runs a read against redis a few times before classifying the
// failure as a transient store error. Writes are never retried here; the
// scripts are atomic and a blind re-run would double-apply them.
func retryRead(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < readAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			break
		}
		time.Sleep(readBackoff << attempt)
	}
	return apperr.Transientf("read failed after %d attempts: %v", readAttempts, err)
}

// pushScript appends one entry and bumps the aggregate counter unless the
// mode is already at capacity. List and counter move together or not at all.
var pushScript = redis.NewScript(`
local cap = tonumber(ARGV[2])
local cur = tonumber(redis.call('HGET', KEYS[2], ARGV[1]) or '0')
if cur >= cap then
	return 0
end
redis.call('RPUSH', KEYS[1], ARGV[3])
redis.call('HINCRBY', KEYS[2], ARGV[1], 1)
return 1
`)

// popScript removes the oldest entry and decrements the counter only when
// something was actually popped, so concurrent pops can never double-count.
var popScript = redis.NewScript(`
local v = redis.call('LPOP', KEYS[1])
if v then
	redis.call('HINCRBY', KEYS[2], ARGV[1], -1)
end
return v
`)

// CapacityFunc returns the aggregate cap for a mode.
type CapacityFunc func(models.Mode) int

// Store is the redis-backed inventory. Safe for concurrent use; per-key
// linearizability comes from the scripts above.
type Store struct {
	rdb      *redis.Client
	capacity CapacityFunc
	log      *logger.Logger
}

// NewStore creates a Store.
func NewStore(rdb *redis.Client, capacity CapacityFunc, log *logger.Logger) *Store {
	return &Store{
		rdb:      rdb,
		capacity: capacity,
		log:      log.With("component", "inventory"),
	}
}

// Push appends content for (user, mode, item). Returns false when the push
// was dropped because the mode is at capacity.
func (s *Store) Push(ctx context.Context, userID string, mode models.Mode, itemID int64, content models.DrillContent) (bool, error) {
	raw, err := json.Marshal(content)
	if err != nil {
		return false, fmt.Errorf("failed to encode drill: %w", err)
	}
	res, err := pushScript.Run(ctx, s.rdb,
		[]string{entriesKey(userID, mode, itemID), statsKey(userID)},
		string(mode), s.capacity(mode), raw).Int()
	if err != nil {
		return false, fmt.Errorf("inventory push failed: %w", err)
	}
	if res == 0 {
		s.log.Debug("push dropped at capacity", "userId", userID, "mode", mode, "itemId", itemID)
		return false, nil
	}
	return true, nil
}

// Pop removes and returns the oldest entry for (user, mode, item).
// A miss is (nil, false, nil), never an error.
func (s *Store) Pop(ctx context.Context, userID string, mode models.Mode, itemID int64) (*models.DrillContent, bool, error) {
	raw, err := popScript.Run(ctx, s.rdb,
		[]string{entriesKey(userID, mode, itemID), statsKey(userID)},
		string(mode)).Text()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("inventory pop failed: %w", err)
	}

	var content models.DrillContent
	if err := json.Unmarshal([]byte(raw), &content); err != nil {
		return nil, false, fmt.Errorf("failed to decode drill: %w", err)
	}
	return &content, true, nil
}

// Remaining returns the list length for one (user, mode, item) key.
func (s *Store) Remaining(ctx context.Context, userID string, mode models.Mode, itemID int64) (int64, error) {
	var n int64
	err := retryRead(ctx, func() error {
		var err error
		n, err = s.rdb.LLen(ctx, entriesKey(userID, mode, itemID)).Result()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("inventory llen failed: %w", err)
	}
	return n, nil
}

// Stats returns the aggregate counter per mode for a user.
func (s *Store) Stats(ctx context.Context, userID string) (map[models.Mode]int, error) {
	var raw map[string]string
	err := retryRead(ctx, func() error {
		var err error
		raw, err = s.rdb.HGetAll(ctx, statsKey(userID)).Result()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("inventory stats failed: %w", err)
	}
	out := make(map[models.Mode]int, len(models.Modes))
	for _, mode := range models.Modes {
		out[mode] = 0
	}
	for field, val := range raw {
		n, err := strconv.Atoi(val)
		if err != nil {
			continue
		}
		out[models.Mode(field)] = n
	}
	return out, nil
}

// Counts returns per-item list lengths for the given items in one pipeline.
func (s *Store) Counts(ctx context.Context, userID string, mode models.Mode, itemIDs []int64) (map[int64]int64, error) {
	out := make(map[int64]int64, len(itemIDs))
	if len(itemIDs) == 0 {
		return out, nil
	}
	err := retryRead(ctx, func() error {
		pipe := s.rdb.Pipeline()
		cmds := make([]*redis.IntCmd, len(itemIDs))
		for i, id := range itemIDs {
			cmds[i] = pipe.LLen(ctx, entriesKey(userID, mode, id))
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		for i, id := range itemIDs {
			out[id] = cmds[i].Val()
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("inventory counts failed: %w", err)
	}
	return out, nil
}

// Reconcile recomputes the aggregate counter for (user, mode) from every
// item list under that mode and repairs it on mismatch. The scan is the
// source of truth; a caller-supplied item subset would let a partial job
// clobber a correct counter. A repaired drift comes back as an invariant
// violation so callers log it loudly instead of ignoring it.
func (s *Store) Reconcile(ctx context.Context, userID string, mode models.Mode) error {
	var keys []string
	err := retryRead(ctx, func() error {
		keys = keys[:0]
		iter := s.rdb.Scan(ctx, 0, entriesPattern(userID, mode), 100).Iterator()
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		return iter.Err()
	})
	if err != nil {
		return fmt.Errorf("inventory key scan failed: %w", err)
	}

	var actual int64
	if len(keys) > 0 {
		err = retryRead(ctx, func() error {
			pipe := s.rdb.Pipeline()
			cmds := make([]*redis.IntCmd, len(keys))
			for i, k := range keys {
				cmds[i] = pipe.LLen(ctx, k)
			}
			if _, err := pipe.Exec(ctx); err != nil {
				return err
			}
			actual = 0
			for _, cmd := range cmds {
				actual += cmd.Val()
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("inventory list lengths failed: %w", err)
		}
	}

	var stored int64
	err = retryRead(ctx, func() error {
		n, err := s.rdb.HGet(ctx, statsKey(userID), string(mode)).Int64()
		if errors.Is(err, redis.Nil) {
			n, err = 0, nil
		}
		stored = n
		return err
	})
	if err != nil {
		return fmt.Errorf("inventory stat read failed: %w", err)
	}

	if stored == actual {
		return nil
	}
	if err := s.rdb.HSet(ctx, statsKey(userID), string(mode), actual).Err(); err != nil {
		return fmt.Errorf("inventory counter repair failed: %w", err)
	}
	return apperr.Invariantf("inventory counter for user %s mode %s held %d, lists held %d (repaired)",
		userID, mode, stored, actual)
}
