package replenish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/example/drillcore/internal/apperr"
	"github.com/example/drillcore/internal/config"
	"github.com/example/drillcore/internal/database"
	"github.com/example/drillcore/internal/generator"
	"github.com/example/drillcore/internal/inventory"
	"github.com/example/drillcore/internal/logger"
	"github.com/example/drillcore/pkg/models"
)

// Worker consumes replenishment jobs: it resolves target items, generates
// content for whatever is under-stocked, and pushes it into the inventory.
// Overflow that the inventory refuses goes to the durable drill cache.
type Worker struct {
	records    *database.MemoryRecordRepository
	catalog    *database.VocabRepository
	drillCache *database.DrillCacheRepository
	store      *inventory.Store
	gen        generator.ContentGenerator
	cfg        config.Config
	log        *logger.Logger
}

// NewWorker creates a Worker.
func NewWorker(records *database.MemoryRecordRepository, catalog *database.VocabRepository, drillCache *database.DrillCacheRepository, store *inventory.Store, gen generator.ContentGenerator, cfg config.Config, log *logger.Logger) *Worker {
	return &Worker{
		records:    records,
		catalog:    catalog,
		drillCache: drillCache,
		store:      store,
		gen:        gen,
		cfg:        cfg,
		log:        log.With("component", "replenish_worker"),
	}
}

// Register attaches the worker's handlers to an asynq mux.
func (w *Worker) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeReplenishOne, w.Handle)
	mux.HandleFunc(TypeReplenishBatch, w.Handle)
}

// Handle processes one job. A returned error triggers asynq's retry with
// backoff, up to the job's MaxRetry, after which it lands in the archive.
func (w *Worker) Handle(ctx context.Context, task *asynq.Task) error {
	var p Payload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return fmt.Errorf("undecodable payload: %v: %w", err, asynq.SkipRetry)
	}
	if !p.Mode.Valid() {
		return fmt.Errorf("unknown mode %q: %w", p.Mode, asynq.SkipRetry)
	}
	log := w.log.With("correlationId", p.CorrelationID, "userId", p.UserID, "mode", p.Mode)

	targets, err := w.resolveTargets(ctx, p)
	if err != nil {
		return fmt.Errorf("failed to resolve targets: %w", err)
	}
	if len(targets) == 0 {
		log.Debug("nothing to replenish")
		return nil
	}

	counts, err := w.store.Counts(ctx, p.UserID, p.Mode, targets)
	if err != nil {
		return err
	}

	var overflow []models.DrillContent
	generated, failed := 0, 0
	for _, itemID := range targets {
		need := w.cfg.PerItemTarget - int(counts[itemID])
		if need <= 0 {
			continue
		}
		item, err := w.catalog.GetByID(ctx, itemID)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				log.Warn("target item missing from catalog", "itemId", itemID)
				continue
			}
			return err
		}
		for i := 0; i < need; i++ {
			drill, err := w.generateOne(ctx, *item, p.Mode)
			if err != nil {
				failed++
				log.Warn("generation failed", "itemId", itemID, "error", err)
				break
			}
			pushed, err := w.store.Push(ctx, p.UserID, p.Mode, itemID, drill)
			if err != nil {
				return err
			}
			if !pushed {
				overflow = append(overflow, drill)
				continue
			}
			generated++
		}
	}

	if len(overflow) > 0 {
		if err := w.drillCache.Save(ctx, p.UserID, p.Mode, overflow, w.cfg.DrillCacheTTL); err != nil {
			log.Warn("failed to save overflow batch", "error", err)
		} else {
			log.Info("overflow saved to drill cache", "drills", len(overflow))
		}
	}

	// The counter and the lists may have drifted if a prior run died
	// between operations. Repair before declaring the job done; the drift
	// itself is worth an error-level trace even after the repair.
	if err := w.store.Reconcile(ctx, p.UserID, p.Mode); err != nil {
		if errors.Is(err, apperr.ErrInvariant) {
			log.Error("inventory counter drifted", "error", err)
		} else {
			log.Warn("reconcile failed", "error", err)
		}
	}

	log.Info("replenishment job done", "generated", generated, "overflow", len(overflow), "failed", failed)
	if generated == 0 && len(overflow) == 0 && failed > 0 {
		return fmt.Errorf("all generations failed for user %s mode %s", p.UserID, p.Mode)
	}
	return nil
}

// resolveTargets turns a payload into concrete item ids. Explicit ids are
// used as given; an empty list means a sweep job, which targets the user's
// soonest-due records and falls back to fresh core items for new users.
func (w *Worker) resolveTargets(ctx context.Context, p Payload) ([]int64, error) {
	if len(p.VocabIDs) > 0 {
		return p.VocabIDs, nil
	}

	track := p.Mode.TrackFor()
	horizon := time.Now().Add(24 * time.Hour)
	recs, err := w.records.Due(ctx, p.UserID, track, horizon, nil, w.cfg.SweepBatchSize)
	if err != nil {
		return nil, err
	}
	if len(recs) > 0 {
		ids := make([]int64, len(recs))
		for i, rec := range recs {
			ids[i] = rec.VocabID
		}
		return ids, nil
	}

	items, err := w.catalog.NewInBand(ctx, p.UserID, track, database.BandCore, nil, w.cfg.SweepBatchSize)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return ids, nil
}

// generateOne bounds a single generation call so one slow upstream request
// cannot stall the whole queue.
func (w *Worker) generateOne(ctx context.Context, item models.VocabularyItem, mode models.Mode) (models.DrillContent, error) {
	genCtx, cancel := context.WithTimeout(ctx, w.cfg.GenTimeout)
	defer cancel()
	drill, err := w.gen.Generate(genCtx, item, mode)
	if err != nil {
		return models.DrillContent{}, err
	}
	if drill.Source == "" {
		drill.Source = models.SourceCache
	}
	return drill, nil
}
