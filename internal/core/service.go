// Package core is the application facade: it composes the selector, the
// inventory, the scheduler and the replenishment coordinator into the
// operations the transport layer exposes.
package core

import (
	"context"
	"errors"
	"time"

	"github.com/example/drillcore/internal/apperr"
	"github.com/example/drillcore/internal/config"
	"github.com/example/drillcore/internal/database"
	"github.com/example/drillcore/internal/fsrs"
	"github.com/example/drillcore/internal/generator"
	"github.com/example/drillcore/internal/inventory"
	"github.com/example/drillcore/internal/logger"
	"github.com/example/drillcore/internal/replenish"
	"github.com/example/drillcore/internal/selector"
	"github.com/example/drillcore/internal/session"
	"github.com/example/drillcore/pkg/models"
)

// Notifier receives stock signals from the interactive path. Both calls are
// fire-and-forget; the batch being served never waits on them.
type Notifier interface {
	NoteMiss(ctx context.Context, userID string, mode models.Mode, itemIDs []int64)
	NoteLowStock(ctx context.Context, userID string, mode models.Mode, itemID int64)
}

// Batch is one served drill batch. CaughtUp distinguishes "nothing due and
// nothing new for you right now" from an error.
type Batch struct {
	Drills   []models.DrillContent `json:"drills"`
	CaughtUp bool                  `json:"caught_up"`
}

// Service wires the scheduling core together.
type Service struct {
	selector   *selector.Selector
	store      *inventory.Store
	drillCache *database.DrillCacheRepository
	catalog    *database.VocabRepository
	records    *database.MemoryRecordRepository
	engine     *fsrs.Engine
	buffer     *session.Buffer
	notifier   Notifier
	inspector  replenish.QueueInspector
	cfg        config.Config
	log        *logger.Logger
}

// NewService creates a Service.
func NewService(
	sel *selector.Selector,
	store *inventory.Store,
	drillCache *database.DrillCacheRepository,
	catalog *database.VocabRepository,
	records *database.MemoryRecordRepository,
	engine *fsrs.Engine,
	buffer *session.Buffer,
	notifier Notifier,
	inspector replenish.QueueInspector,
	cfg config.Config,
	log *logger.Logger,
) *Service {
	return &Service{
		selector:   sel,
		store:      store,
		drillCache: drillCache,
		catalog:    catalog,
		records:    records,
		engine:     engine,
		buffer:     buffer,
		notifier:   notifier,
		inspector:  inspector,
		cfg:        cfg,
		log:        log.With("component", "core"),
	}
}

// GetNextBatch serves up to limit drills for (user, mode), skipping any item
// in excludeIDs. Content comes from the inventory first, then the durable
// drill cache, then deterministic fallbacks. The user always gets a full
// batch; misses only generate replenishment signals.
func (s *Service) GetNextBatch(ctx context.Context, userID string, mode models.Mode, limit int, excludeIDs []int64) (Batch, error) {
	if userID == "" {
		return Batch{}, apperr.Validationf("user id is required")
	}
	if !mode.Valid() {
		return Batch{}, apperr.Validationf("unknown mode %q", mode)
	}
	if limit <= 0 || limit > s.cfg.BatchLimit {
		limit = s.cfg.BatchLimit
	}

	cands, err := s.selector.Select(ctx, userID, mode.TrackFor(), limit, excludeIDs)
	if err != nil {
		return Batch{}, err
	}
	if len(cands) == 0 {
		total, err := s.catalog.CountAll(ctx)
		if err != nil {
			return Batch{}, err
		}
		if total == 0 {
			return Batch{}, apperr.NotFoundf("vocabulary catalog is empty")
		}
		return Batch{CaughtUp: true}, nil
	}

	// Cached drills that survived an inventory overflow. Loaded lazily on
	// the first miss, keyed by item.
	var cached map[int64][]models.DrillContent

	drills := make([]models.DrillContent, 0, len(cands))
	var missed []int64
	for _, cand := range cands {
		itemID := cand.Item.ID

		drill, ok, err := s.store.Pop(ctx, userID, mode, itemID)
		if err != nil {
			return Batch{}, err
		}
		if ok {
			drill.Source = models.SourceCache
			drills = append(drills, *drill)
			s.checkItemStock(ctx, userID, mode, itemID)
			continue
		}

		if cached == nil {
			cached, err = s.loadDrillCache(ctx, userID, mode)
			if err != nil {
				return Batch{}, err
			}
		}
		if batch := cached[itemID]; len(batch) > 0 {
			drill := batch[0]
			cached[itemID] = batch[1:]
			drill.Source = models.SourceDrillCache
			drills = append(drills, drill)
			missed = append(missed, itemID)
			continue
		}

		drills = append(drills, generator.BuildFallback(cand.Item, mode))
		missed = append(missed, itemID)
	}

	if len(missed) > 0 {
		s.notifier.NoteMiss(ctx, userID, mode, missed)
	}

	s.log.Info("batch served",
		"userId", userID, "mode", mode,
		"drills", len(drills), "misses", len(missed))
	return Batch{Drills: drills}, nil
}

// checkItemStock buffers a low-stock signal when an item's list has run thin.
func (s *Service) checkItemStock(ctx context.Context, userID string, mode models.Mode, itemID int64) {
	remaining, err := s.store.Remaining(ctx, userID, mode, itemID)
	if err != nil {
		s.log.Warn("stock check failed", "userId", userID, "itemId", itemID, "error", err)
		return
	}
	if remaining < int64(s.cfg.ItemLowStock) {
		s.notifier.NoteLowStock(ctx, userID, mode, itemID)
	}
}

// loadDrillCache consumes the oldest durable batch for (user, mode) and
// indexes it by item. Missing cache is a normal miss, not an error.
func (s *Service) loadDrillCache(ctx context.Context, userID string, mode models.Mode) (map[int64][]models.DrillContent, error) {
	out := make(map[int64][]models.DrillContent)
	entry, err := s.drillCache.FindUnconsumed(ctx, userID, mode)
	if errors.Is(err, apperr.ErrNotFound) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	batch, err := entry.Drills()
	if err != nil {
		s.log.Warn("discarding corrupt drill cache entry", "id", entry.ID, "error", err)
		return out, s.drillCache.MarkConsumed(ctx, entry.ID)
	}
	if err := s.drillCache.MarkConsumed(ctx, entry.ID); err != nil {
		return nil, err
	}
	for _, d := range batch {
		out[d.VocabID] = append(out[d.VocabID], d)
	}
	return out, nil
}

// SubmitGrade records one answer. With buffered grading (the default) the
// answer lands in the session window and is settled later; otherwise it is
// scheduled and persisted immediately.
func (s *Service) SubmitGrade(ctx context.Context, userID string, mode models.Mode, vocabID int64, reduced models.ReducedGrade, durationMs int64, isRetry bool) error {
	if userID == "" {
		return apperr.Validationf("user id is required")
	}
	if !mode.Valid() {
		return apperr.Validationf("unknown mode %q", mode)
	}
	if vocabID <= 0 {
		return apperr.Validationf("vocab id %d is not positive", vocabID)
	}
	grade, err := MapGrade(reduced, mode, durationMs, isRetry)
	if err != nil {
		return err
	}
	track := mode.TrackFor()

	if s.cfg.BufferGrading {
		return s.buffer.RecordAnswer(ctx, userID, track, vocabID, grade)
	}

	now := time.Now()
	rec, err := s.records.GetByTriple(ctx, userID, vocabID, track)
	if errors.Is(err, apperr.ErrNotFound) {
		fresh := models.NewMemoryRecord(userID, vocabID, track, now)
		rec = &fresh
	} else if err != nil {
		return err
	}
	if rec.Status == models.StatusMastered {
		return apperr.Validationf("vocab %d is mastered on track %s", vocabID, track)
	}
	next, err := s.engine.Schedule(*rec, grade, now)
	if err != nil {
		return err
	}
	return s.records.Upsert(ctx, &next)
}

// GetInventoryStats returns the aggregate inventory count per mode.
func (s *Service) GetInventoryStats(ctx context.Context, userID string) (map[models.Mode]int, error) {
	if userID == "" {
		return nil, apperr.Validationf("user id is required")
	}
	return s.store.Stats(ctx, userID)
}

// GetQueueStatus reports the replenishment queue backlog.
func (s *Service) GetQueueStatus(ctx context.Context) (replenish.QueueStatus, error) {
	return replenish.Status(s.inspector)
}

// ResetProgress re-initializes one (user, item, track) record to NEW, due
// now. Resetting an unseen item creates its row; resetting twice is a no-op.
func (s *Service) ResetProgress(ctx context.Context, userID string, vocabID int64, track models.Track) error {
	if userID == "" {
		return apperr.Validationf("user id is required")
	}
	if !track.Valid() {
		return apperr.Validationf("unknown track %q", track)
	}
	if _, err := s.catalog.GetByID(ctx, vocabID); err != nil {
		return err
	}

	now := time.Now()
	rec, err := s.records.GetByTriple(ctx, userID, vocabID, track)
	if errors.Is(err, apperr.ErrNotFound) {
		fresh := models.NewMemoryRecord(userID, vocabID, track, now)
		rec = &fresh
	} else if err != nil {
		return err
	}
	next := fsrs.Reset(*rec, now)
	return s.records.Upsert(ctx, &next)
}

// FinalizeMastery retires one (user, item, track) record from scheduling.
func (s *Service) FinalizeMastery(ctx context.Context, userID string, vocabID int64, track models.Track) error {
	if userID == "" {
		return apperr.Validationf("user id is required")
	}
	if !track.Valid() {
		return apperr.Validationf("unknown track %q", track)
	}
	return s.records.FinalizeMastered(ctx, userID, vocabID, track)
}
