package replenish

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/example/drillcore/internal/config"
	"github.com/example/drillcore/internal/logger"
	"github.com/example/drillcore/pkg/models"
)

// bufferKey holds accumulated low-stock signals awaiting a batch flush.
const bufferKey = "buffer:replenish"

// Enqueuer is the slice of asynq.Client the coordinator needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// StatsSource reports aggregate inventory counts per mode.
type StatsSource interface {
	Stats(ctx context.Context, userID string) (map[models.Mode]int, error)
}

// ActiveUserSource lists users with recent review activity.
type ActiveUserSource interface {
	ActiveUserIDs(ctx context.Context, since time.Time) ([]string, error)
}

// Coordinator decides how low stock turns into jobs. Injected dependencies
// only; the shared signal buffer lives in redis, not in package state.
type Coordinator struct {
	rdb   *redis.Client
	queue Enqueuer
	stats StatsSource
	users ActiveUserSource
	cfg   config.Config
	log   *logger.Logger
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(rdb *redis.Client, queue Enqueuer, stats StatsSource, users ActiveUserSource, cfg config.Config, log *logger.Logger) *Coordinator {
	return &Coordinator{
		rdb:   rdb,
		queue: queue,
		stats: stats,
		users: users,
		cfg:   cfg,
		log:   log.With("component", "replenish"),
	}
}

// NoteMiss handles Plan B: the interactive path served a fallback for these
// items, so restock them at the highest priority. Enqueue failures are
// logged and swallowed; the request was already satisfied.
func (c *Coordinator) NoteMiss(ctx context.Context, userID string, mode models.Mode, itemIDs []int64) {
	if len(itemIDs) == 0 {
		return
	}
	build := NewReplenishBatchTask
	if len(itemIDs) == 1 {
		build = NewReplenishOneTask
	}
	task, err := build(Payload{
		UserID:        userID,
		Mode:          mode,
		VocabIDs:      itemIDs,
		CorrelationID: "emergency-" + uuid.NewString(),
	})
	if err != nil {
		c.log.Warn("emergency task build failed", "error", err)
		return
	}
	if _, err := c.queue.EnqueueContext(ctx, task,
		asynq.Queue(QueueCritical),
		asynq.MaxRetry(c.cfg.JobMaxRetry),
	); err != nil {
		c.log.Warn("emergency enqueue failed", "userId", userID, "mode", mode, "error", err)
		return
	}
	c.log.Info("emergency replenishment enqueued", "userId", userID, "mode", mode, "items", len(itemIDs))
}

// NoteLowStock handles Plan C: buffer the signal and flush a grouped batch
// job once enough signals accumulate.
func (c *Coordinator) NoteLowStock(ctx context.Context, userID string, mode models.Mode, itemID int64) {
	member := bufferMember(userID, mode, itemID)
	if err := c.rdb.SAdd(ctx, bufferKey, member).Err(); err != nil {
		c.log.Warn("low-stock buffer add failed", "error", err)
		return
	}
	n, err := c.rdb.SCard(ctx, bufferKey).Result()
	if err != nil {
		c.log.Warn("low-stock buffer size check failed", "error", err)
		return
	}
	if int(n) >= c.cfg.BufferFlushSize {
		c.FlushBuffer(ctx)
	}
}

// FlushBuffer drains buffered signals into grouped batch jobs, one per
// (user, mode), at medium priority.
func (c *Coordinator) FlushBuffer(ctx context.Context) {
	members, err := c.rdb.SPopN(ctx, bufferKey, int64(c.cfg.SweepBatchSize)).Result()
	if err != nil {
		c.log.Warn("buffer flush pop failed", "error", err)
		return
	}
	if len(members) == 0 {
		return
	}

	type groupKey struct {
		userID string
		mode   models.Mode
	}
	groups := make(map[groupKey][]int64)
	for _, m := range members {
		userID, mode, itemID, err := parseBufferMember(m)
		if err != nil {
			c.log.Warn("dropping malformed buffer member", "member", m, "error", err)
			continue
		}
		k := groupKey{userID, mode}
		groups[k] = append(groups[k], itemID)
	}

	for k, ids := range groups {
		task, err := NewReplenishBatchTask(Payload{
			UserID:        k.userID,
			Mode:          k.mode,
			VocabIDs:      ids,
			CorrelationID: "batch-" + uuid.NewString(),
		})
		if err != nil {
			c.log.Warn("batch task build failed", "error", err)
			continue
		}
		if _, err := c.queue.EnqueueContext(ctx, task,
			asynq.Queue(QueueDefault),
			asynq.MaxRetry(c.cfg.JobMaxRetry),
		); err != nil {
			c.log.Warn("batch enqueue failed", "userId", k.userID, "mode", k.mode, "error", err)
			continue
		}
		c.log.Info("batch replenishment enqueued", "userId", k.userID, "mode", k.mode, "items", len(ids))
	}
}

// SweepActiveUsers is the periodic pass: every active user and mode below
// the watermark gets a low-priority top-up job. Returns the number of jobs
// enqueued.
func (c *Coordinator) SweepActiveUsers(ctx context.Context) (int, error) {
	since := time.Now().AddDate(0, 0, -c.cfg.ActiveUserDays)
	userIDs, err := c.users.ActiveUserIDs(ctx, since)
	if err != nil {
		return 0, err
	}

	enqueued := 0
	for _, userID := range userIDs {
		stats, err := c.stats.Stats(ctx, userID)
		if err != nil {
			c.log.Warn("sweep stats read failed", "userId", userID, "error", err)
			continue
		}
		for _, mode := range models.Modes {
			if stats[mode] >= c.cfg.Watermark(mode) {
				continue
			}
			task, err := NewReplenishBatchTask(Payload{
				UserID:        userID,
				Mode:          mode,
				CorrelationID: "sweep-" + uuid.NewString(),
			})
			if err != nil {
				c.log.Warn("sweep task build failed", "error", err)
				continue
			}
			if _, err := c.queue.EnqueueContext(ctx, task,
				asynq.Queue(QueueLow),
				asynq.MaxRetry(c.cfg.JobMaxRetry),
			); err != nil {
				c.log.Warn("sweep enqueue failed", "userId", userID, "mode", mode, "error", err)
				continue
			}
			enqueued++
		}
	}
	c.log.Info("scheduled replenishment sweep complete", "users", len(userIDs), "jobs", enqueued)
	return enqueued, nil
}

// Buffer members use '|' because user ids are opaque and may contain ':'.
func bufferMember(userID string, mode models.Mode, itemID int64) string {
	return fmt.Sprintf("%s|%s|%d", userID, mode, itemID)
}

func parseBufferMember(m string) (string, models.Mode, int64, error) {
	idx := strings.LastIndex(m, "|")
	if idx < 0 {
		return "", "", 0, fmt.Errorf("no item separator in %q", m)
	}
	itemID, err := strconv.ParseInt(m[idx+1:], 10, 64)
	if err != nil {
		return "", "", 0, fmt.Errorf("bad item id in %q", m)
	}
	rest := m[:idx]
	idx = strings.LastIndex(rest, "|")
	if idx < 0 {
		return "", "", 0, fmt.Errorf("no mode separator in %q", m)
	}
	mode := models.Mode(rest[idx+1:])
	if !mode.Valid() {
		return "", "", 0, fmt.Errorf("bad mode in %q", m)
	}
	return rest[:idx], mode, itemID, nil
}
