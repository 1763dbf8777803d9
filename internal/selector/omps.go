// Package selector implements the two-stage OMPS candidate picker:
// a macro split of review vs new items by ratio, then stratified sampling
// of the new pool across simple/core/hard bands.
package selector

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/example/drillcore/internal/database"
	"github.com/example/drillcore/internal/logger"
	"github.com/example/drillcore/pkg/models"
)

// CandidateType tags where a candidate came from.
type CandidateType string

const (
	CandidateReview CandidateType = "REVIEW"
	CandidateNew    CandidateType = "NEW"
)

// Candidate is one selected item with its denormalized display fields.
// Record is set only for REVIEW candidates.
type Candidate struct {
	Item   models.VocabularyItem
	Type   CandidateType
	Record *models.MemoryRecord
}

// ReviewSource supplies due scheduling records.
type ReviewSource interface {
	Due(ctx context.Context, userID string, track models.Track, before time.Time, exclude []int64, limit int) ([]models.MemoryRecord, error)
}

// CatalogSource supplies vocabulary metadata and the unseen pool.
type CatalogSource interface {
	GetByIDs(ctx context.Context, ids []int64) (map[int64]models.VocabularyItem, error)
	NewInBand(ctx context.Context, userID string, track models.Track, band database.Band, exclude []int64, limit int) ([]models.VocabularyItem, error)
}

// Config holds the selection ratios. Zero values fall back to the defaults
// (0.7 review, 0.2 simple, 0.2 hard; core takes the remainder).
type Config struct {
	ReviewRatio float64
	SimpleRatio float64
	HardRatio   float64
}

func (c Config) withDefaults() Config {
	if c.ReviewRatio == 0 {
		c.ReviewRatio = 0.7
	}
	if c.SimpleRatio == 0 {
		c.SimpleRatio = 0.2
	}
	if c.HardRatio == 0 {
		c.HardRatio = 0.2
	}
	return c
}

// Selector produces ordered candidate lists per (user, track).
type Selector struct {
	reviews ReviewSource
	catalog CatalogSource
	cfg     Config
	log     *logger.Logger
}

// New creates a Selector.
func New(reviews ReviewSource, catalog CatalogSource, cfg Config, log *logger.Logger) *Selector {
	return &Selector{
		reviews: reviews,
		catalog: catalog,
		cfg:     cfg.withDefaults(),
		log:     log.With("component", "selector"),
	}
}

// Select returns up to limit candidates for the track: due reviews first in
// ascending next_review_at order, then a shuffled stratified sample of new
// items. Items in exclude never appear. An empty result means both pools
// are exhausted; the caller decides what that means.
func (s *Selector) Select(ctx context.Context, userID string, track models.Track, limit int, exclude []int64) ([]Candidate, error) {
	if limit <= 0 {
		return nil, nil
	}
	now := time.Now()

	// Macro stage: split the request by the review ratio. A due shortfall
	// flows into the new quota, never the other way around.
	reviewTarget := int(math.Round(float64(limit) * s.cfg.ReviewRatio))
	due, err := s.reviews.Due(ctx, userID, track, now, exclude, reviewTarget)
	if err != nil {
		return nil, err
	}

	reviewCands, reviewIDs, err := s.resolveReviews(ctx, due)
	if err != nil {
		return nil, err
	}

	newTarget := limit - len(reviewCands)
	var newCands []Candidate
	if newTarget > 0 {
		excludeAll := append(append([]int64{}, exclude...), reviewIDs...)
		items, err := s.stratifiedNew(ctx, userID, track, newTarget, excludeAll)
		if err != nil {
			return nil, err
		}
		rand.Shuffle(len(items), func(i, j int) { items[i], items[j] = items[j], items[i] })
		for _, it := range items {
			newCands = append(newCands, Candidate{Item: it, Type: CandidateNew})
		}
	}

	s.log.Debug("candidates selected",
		"userId", userID, "track", track,
		"review", len(reviewCands), "new", len(newCands))

	return append(reviewCands, newCands...), nil
}

// resolveReviews joins due records with their catalog rows in one pass.
// Records whose item vanished from the catalog are skipped.
func (s *Selector) resolveReviews(ctx context.Context, due []models.MemoryRecord) ([]Candidate, []int64, error) {
	if len(due) == 0 {
		return nil, nil, nil
	}
	ids := make([]int64, 0, len(due))
	for _, rec := range due {
		ids = append(ids, rec.VocabID)
	}
	items, err := s.catalog.GetByIDs(ctx, ids)
	if err != nil {
		return nil, nil, err
	}

	cands := make([]Candidate, 0, len(due))
	kept := make([]int64, 0, len(due))
	for i := range due {
		rec := due[i]
		item, ok := items[rec.VocabID]
		if !ok {
			s.log.Warn("due record references missing vocab item",
				"userId", rec.UserID, "vocabId", rec.VocabID)
			continue
		}
		cands = append(cands, Candidate{Item: item, Type: CandidateReview, Record: &rec})
		kept = append(kept, rec.VocabID)
	}
	return cands, kept, nil
}

// stratifiedNew samples the unseen pool across bands. An underfilled band's
// quota redistributes to CORE, then to an unfiltered fallback pass, so the
// total only shrinks when the whole pool is exhausted.
func (s *Selector) stratifiedNew(ctx context.Context, userID string, track models.Track, count int, exclude []int64) ([]models.VocabularyItem, error) {
	if count <= 1 {
		return s.catalog.NewInBand(ctx, userID, track, database.BandCore, exclude, count)
	}

	simpleCount := int(math.Round(float64(count) * s.cfg.SimpleRatio))
	hardCount := int(math.Round(float64(count) * s.cfg.HardRatio))
	coreCount := count - simpleCount - hardCount

	// Bands can overlap (a core item may sit at any level), so each fetch
	// excludes everything already picked.
	var result []models.VocabularyItem
	taken := func() []int64 {
		out := append([]int64{}, exclude...)
		for _, it := range result {
			out = append(out, it.ID)
		}
		return out
	}

	for _, part := range []struct {
		band database.Band
		n    int
	}{
		{database.BandSimple, simpleCount},
		{database.BandCore, coreCount},
		{database.BandHard, hardCount},
	} {
		items, err := s.catalog.NewInBand(ctx, userID, track, part.band, taken(), part.n)
		if err != nil {
			return nil, err
		}
		result = append(result, items...)
	}

	for _, band := range []database.Band{database.BandCore, database.BandFallback} {
		gap := count - len(result)
		if gap <= 0 {
			break
		}
		extra, err := s.catalog.NewInBand(ctx, userID, track, band, taken(), gap)
		if err != nil {
			return nil, err
		}
		result = append(result, extra...)
	}
	return result, nil
}
