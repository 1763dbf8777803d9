package replenish

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/drillcore/internal/config"
	"github.com/example/drillcore/internal/database"
	"github.com/example/drillcore/internal/generator"
	"github.com/example/drillcore/internal/inventory"
	"github.com/example/drillcore/internal/logger"
	"github.com/example/drillcore/pkg/models"
)

type workerEnv struct {
	worker     *Worker
	store      *inventory.Store
	records    *database.MemoryRecordRepository
	catalog    *database.VocabRepository
	drillCache *database.DrillCacheRepository
}

func newWorkerEnv(t *testing.T, capacity int) *workerEnv {
	t.Helper()

	db, err := database.Connect("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	cfg := config.Config{
		ModeCapacity: map[models.Mode]int{
			models.ModeSyntax:   capacity,
			models.ModeChunking: capacity,
			models.ModeNuance:   capacity,
			models.ModeBlitz:    capacity,
		},
		PerItemTarget:  2,
		GenTimeout:     5 * time.Second,
		SweepBatchSize: 10,
		DrillCacheTTL:  24 * time.Hour,
	}

	log := logger.NewNop()
	records := database.NewMemoryRecordRepository(db)
	catalog := database.NewVocabRepository(db)
	drillCache := database.NewDrillCacheRepository(db)
	store := inventory.NewStore(rdb, cfg.Capacity, log)
	worker := NewWorker(records, catalog, drillCache, store, generator.Static{}, cfg, log)

	return &workerEnv{
		worker:     worker,
		store:      store,
		records:    records,
		catalog:    catalog,
		drillCache: drillCache,
	}
}

func (e *workerEnv) seedItems(t *testing.T, words ...string) {
	t.Helper()
	for _, w := range words {
		require.NoError(t, e.catalog.Create(context.Background(), &models.VocabularyItem{
			Word:       w,
			Definition: "a definition",
			Example:    "an example sentence here",
			Level:      5,
			IsCore:     true,
		}))
	}
}

func batchTask(t *testing.T, p Payload) *asynq.Task {
	t.Helper()
	task, err := NewReplenishBatchTask(p)
	require.NoError(t, err)
	return task
}

func TestHandleStocksExplicitTargets(t *testing.T) {
	env := newWorkerEnv(t, 50)
	env.seedItems(t, "alpha", "beta")
	ctx := context.Background()

	task := batchTask(t, Payload{
		UserID: "u1", Mode: models.ModeNuance, VocabIDs: []int64{1, 2}, CorrelationID: "t1",
	})
	require.NoError(t, env.worker.Handle(ctx, task))

	counts, err := env.store.Counts(ctx, "u1", models.ModeNuance, []int64{1, 2})
	require.NoError(t, err)
	assert.EqualValues(t, 2, counts[1], "stocked to the per-item target")
	assert.EqualValues(t, 2, counts[2])

	stats, err := env.store.Stats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 4, stats[models.ModeNuance])
}

func TestHandlePartialJobsKeepCounterExact(t *testing.T) {
	env := newWorkerEnv(t, 50)
	env.seedItems(t, "alpha", "beta")
	ctx := context.Background()

	// Two emergency jobs, each restocking a single item. The second job's
	// reconcile must still account for the first job's entries.
	taskA := batchTask(t, Payload{UserID: "u1", Mode: models.ModeNuance, VocabIDs: []int64{1}, CorrelationID: "a"})
	require.NoError(t, env.worker.Handle(ctx, taskA))
	taskB := batchTask(t, Payload{UserID: "u1", Mode: models.ModeNuance, VocabIDs: []int64{2}, CorrelationID: "b"})
	require.NoError(t, env.worker.Handle(ctx, taskB))

	counts, err := env.store.Counts(ctx, "u1", models.ModeNuance, []int64{1, 2})
	require.NoError(t, err)
	assert.EqualValues(t, 2, counts[1])
	assert.EqualValues(t, 2, counts[2])

	stats, err := env.store.Stats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 4, stats[models.ModeNuance], "aggregate counter equals the sum of list lengths")
}

func TestHandleIsIdempotentAtTarget(t *testing.T) {
	env := newWorkerEnv(t, 50)
	env.seedItems(t, "alpha")
	ctx := context.Background()

	task := batchTask(t, Payload{UserID: "u1", Mode: models.ModeNuance, VocabIDs: []int64{1}, CorrelationID: "t1"})
	require.NoError(t, env.worker.Handle(ctx, task))
	require.NoError(t, env.worker.Handle(ctx, task))

	counts, err := env.store.Counts(ctx, "u1", models.ModeNuance, []int64{1})
	require.NoError(t, err)
	assert.EqualValues(t, 2, counts[1], "a rerun tops up, never overstocks")
}

func TestHandleOverflowGoesToDrillCache(t *testing.T) {
	env := newWorkerEnv(t, 1)
	env.seedItems(t, "alpha", "beta")
	ctx := context.Background()

	task := batchTask(t, Payload{
		UserID: "u1", Mode: models.ModeNuance, VocabIDs: []int64{1, 2}, CorrelationID: "t1",
	})
	require.NoError(t, env.worker.Handle(ctx, task))

	stats, err := env.store.Stats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats[models.ModeNuance], "inventory capped at capacity")

	entry, err := env.drillCache.FindUnconsumed(ctx, "u1", models.ModeNuance)
	require.NoError(t, err)
	drills, err := entry.Drills()
	require.NoError(t, err)
	assert.Len(t, drills, 3, "everything the inventory refused is kept durably")
}

func TestHandleSweepPicksOwnTargets(t *testing.T) {
	env := newWorkerEnv(t, 50)
	env.seedItems(t, "alpha", "beta")
	ctx := context.Background()
	now := time.Now()

	// Item 1 is due for the mode's track; the sweep job should find it.
	due := now.Add(-time.Hour)
	rec := models.NewMemoryRecord("u1", 1, models.TrackContext, now)
	rec.Status = models.StatusReview
	rec.State = models.StateReview
	rec.NextReviewAt = &due
	require.NoError(t, env.records.Upsert(ctx, &rec))

	task := batchTask(t, Payload{UserID: "u1", Mode: models.ModeNuance, CorrelationID: "sweep"})
	require.NoError(t, env.worker.Handle(ctx, task))

	counts, err := env.store.Counts(ctx, "u1", models.ModeNuance, []int64{1, 2})
	require.NoError(t, err)
	assert.EqualValues(t, 2, counts[1], "due item restocked")
}

func TestHandleSweepFallsBackToFreshItems(t *testing.T) {
	env := newWorkerEnv(t, 50)
	env.seedItems(t, "alpha")
	ctx := context.Background()

	// No records at all: a brand-new user still gets stock.
	task := batchTask(t, Payload{UserID: "newbie", Mode: models.ModeNuance, CorrelationID: "sweep"})
	require.NoError(t, env.worker.Handle(ctx, task))

	counts, err := env.store.Counts(ctx, "newbie", models.ModeNuance, []int64{1})
	require.NoError(t, err)
	assert.EqualValues(t, 2, counts[1])
}

func TestHandleRejectsGarbagePayload(t *testing.T) {
	env := newWorkerEnv(t, 50)
	err := env.worker.Handle(context.Background(), asynq.NewTask(TypeReplenishBatch, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry, "malformed payloads must not retry")
}
