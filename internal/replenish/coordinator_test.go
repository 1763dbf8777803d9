package replenish

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/drillcore/internal/config"
	"github.com/example/drillcore/internal/logger"
	"github.com/example/drillcore/pkg/models"
)

type enqueued struct {
	typ     string
	payload Payload
	queue   string
}

type fakeEnqueuer struct {
	tasks []enqueued
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	var p Payload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return nil, err
	}
	queue := "default"
	for _, opt := range opts {
		if opt.Type() == asynq.QueueOpt {
			queue = opt.Value().(string)
		}
	}
	f.tasks = append(f.tasks, enqueued{typ: task.Type(), payload: p, queue: queue})
	return &asynq.TaskInfo{}, nil
}

type fakeStats struct {
	byUser map[string]map[models.Mode]int
}

func (f *fakeStats) Stats(_ context.Context, userID string) (map[models.Mode]int, error) {
	return f.byUser[userID], nil
}

type fakeUsers struct {
	ids []string
}

func (f *fakeUsers) ActiveUserIDs(_ context.Context, _ time.Time) ([]string, error) {
	return f.ids, nil
}

func testConfig() config.Config {
	return config.Config{
		ModeCapacity: map[models.Mode]int{
			models.ModeSyntax:   20,
			models.ModeChunking: 30,
			models.ModeNuance:   50,
			models.ModeBlitz:    10,
		},
		LowWatermarkPct: 0.5,
		BufferFlushSize: 3,
		SweepBatchSize:  10,
		JobMaxRetry:     3,
		ActiveUserDays:  7,
	}
}

func newTestCoordinator(t *testing.T, stats *fakeStats, users *fakeUsers) (*Coordinator, *fakeEnqueuer, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	q := &fakeEnqueuer{}
	if stats == nil {
		stats = &fakeStats{}
	}
	if users == nil {
		users = &fakeUsers{}
	}
	return NewCoordinator(rdb, q, stats, users, testConfig(), logger.NewNop()), q, rdb
}

func TestNoteMissEnqueuesCritical(t *testing.T) {
	c, q, _ := newTestCoordinator(t, nil, nil)

	c.NoteMiss(context.Background(), "u1", models.ModeNuance, []int64{4, 8})

	require.Len(t, q.tasks, 1)
	got := q.tasks[0]
	assert.Equal(t, TypeReplenishBatch, got.typ)
	assert.Equal(t, QueueCritical, got.queue)
	assert.Equal(t, "u1", got.payload.UserID)
	assert.Equal(t, models.ModeNuance, got.payload.Mode)
	assert.Equal(t, []int64{4, 8}, got.payload.VocabIDs)
	assert.NotEmpty(t, got.payload.CorrelationID)
}

func TestNoteMissSingleItemUsesOneTask(t *testing.T) {
	c, q, _ := newTestCoordinator(t, nil, nil)
	c.NoteMiss(context.Background(), "u1", models.ModeBlitz, []int64{9})
	require.Len(t, q.tasks, 1)
	assert.Equal(t, TypeReplenishOne, q.tasks[0].typ)
	assert.Equal(t, QueueCritical, q.tasks[0].queue)
}

func TestNoteMissIgnoresEmptyList(t *testing.T) {
	c, q, _ := newTestCoordinator(t, nil, nil)
	c.NoteMiss(context.Background(), "u1", models.ModeNuance, nil)
	assert.Empty(t, q.tasks)
}

func TestNoteLowStockBuffersUntilThreshold(t *testing.T) {
	c, q, rdb := newTestCoordinator(t, nil, nil)
	ctx := context.Background()

	c.NoteLowStock(ctx, "u1", models.ModeSyntax, 1)
	c.NoteLowStock(ctx, "u1", models.ModeSyntax, 2)
	assert.Empty(t, q.tasks, "below the flush threshold nothing is enqueued")

	c.NoteLowStock(ctx, "u1", models.ModeSyntax, 3)
	require.Len(t, q.tasks, 1)
	got := q.tasks[0]
	assert.Equal(t, QueueDefault, got.queue)
	assert.Equal(t, "u1", got.payload.UserID)
	assert.ElementsMatch(t, []int64{1, 2, 3}, got.payload.VocabIDs)

	n, err := rdb.SCard(ctx, bufferKey).Result()
	require.NoError(t, err)
	assert.Zero(t, n, "buffer drained after flush")
}

func TestNoteLowStockDeduplicates(t *testing.T) {
	c, q, rdb := newTestCoordinator(t, nil, nil)
	ctx := context.Background()

	c.NoteLowStock(ctx, "u1", models.ModeSyntax, 1)
	c.NoteLowStock(ctx, "u1", models.ModeSyntax, 1)
	c.NoteLowStock(ctx, "u1", models.ModeSyntax, 1)

	assert.Empty(t, q.tasks, "repeat signals for one item collapse")
	n, err := rdb.SCard(ctx, bufferKey).Result()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestFlushBufferGroupsByUserAndMode(t *testing.T) {
	c, q, _ := newTestCoordinator(t, nil, nil)
	ctx := context.Background()

	c.NoteLowStock(ctx, "u1", models.ModeSyntax, 1)
	c.NoteLowStock(ctx, "u1", models.ModeBlitz, 2)
	c.FlushBuffer(ctx)

	require.Len(t, q.tasks, 2)
	seen := map[models.Mode][]int64{}
	for _, task := range q.tasks {
		assert.Equal(t, QueueDefault, task.queue)
		assert.Equal(t, "u1", task.payload.UserID)
		seen[task.payload.Mode] = task.payload.VocabIDs
	}
	assert.Equal(t, []int64{1}, seen[models.ModeSyntax])
	assert.Equal(t, []int64{2}, seen[models.ModeBlitz])
}

func TestSweepTargetsModesBelowWatermark(t *testing.T) {
	stats := &fakeStats{byUser: map[string]map[models.Mode]int{
		"u1": {
			models.ModeSyntax:   2,  // below 10
			models.ModeChunking: 30, // full
			models.ModeNuance:   50, // full
			models.ModeBlitz:    10, // full
		},
		"u2": {
			models.ModeSyntax:   20,
			models.ModeChunking: 30,
			models.ModeNuance:   50,
			models.ModeBlitz:    10,
		},
	}}
	users := &fakeUsers{ids: []string{"u1", "u2"}}
	c, q, _ := newTestCoordinator(t, stats, users)

	n, err := c.SweepActiveUsers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Len(t, q.tasks, 1)
	got := q.tasks[0]
	assert.Equal(t, QueueLow, got.queue)
	assert.Equal(t, "u1", got.payload.UserID)
	assert.Equal(t, models.ModeSyntax, got.payload.Mode)
	assert.Empty(t, got.payload.VocabIDs, "sweep jobs let the worker pick targets")
}

func TestBufferMemberRoundTrip(t *testing.T) {
	member := bufferMember("user:with:colons", models.ModeChunking, 77)
	userID, mode, itemID, err := parseBufferMember(member)
	require.NoError(t, err)
	assert.Equal(t, "user:with:colons", userID)
	assert.Equal(t, models.ModeChunking, mode)
	assert.EqualValues(t, 77, itemID)

	_, _, _, err = parseBufferMember("garbage")
	assert.Error(t, err)
}
