package selector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/drillcore/internal/database"
	"github.com/example/drillcore/internal/logger"
	"github.com/example/drillcore/pkg/models"
)

type fakeReviews struct {
	due       []models.MemoryRecord
	lastLimit int
}

func (f *fakeReviews) Due(_ context.Context, _ string, _ models.Track, _ time.Time, exclude []int64, limit int) ([]models.MemoryRecord, error) {
	f.lastLimit = limit
	skip := make(map[int64]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}
	var out []models.MemoryRecord
	for _, rec := range f.due {
		if skip[rec.VocabID] {
			continue
		}
		out = append(out, rec)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type fakeCatalog struct {
	items map[int64]models.VocabularyItem
	bands map[database.Band][]int64
}

func (f *fakeCatalog) GetByIDs(_ context.Context, ids []int64) (map[int64]models.VocabularyItem, error) {
	out := make(map[int64]models.VocabularyItem)
	for _, id := range ids {
		if it, ok := f.items[id]; ok {
			out[id] = it
		}
	}
	return out, nil
}

func (f *fakeCatalog) NewInBand(_ context.Context, _ string, _ models.Track, band database.Band, exclude []int64, limit int) ([]models.VocabularyItem, error) {
	if limit <= 0 {
		return nil, nil
	}
	skip := make(map[int64]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}
	pool := f.bands[band]
	if band == database.BandFallback {
		for id := range f.items {
			pool = append(pool, id)
		}
	}
	var out []models.VocabularyItem
	for _, id := range pool {
		if skip[id] {
			continue
		}
		out = append(out, f.items[id])
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func dueRecord(vocabID int64, dueDaysAgo int) models.MemoryRecord {
	due := time.Now().AddDate(0, 0, -dueDaysAgo)
	return models.MemoryRecord{
		UserID:       "u1",
		VocabID:      vocabID,
		Track:        models.TrackContext,
		Status:       models.StatusReview,
		State:        models.StateReview,
		NextReviewAt: &due,
	}
}

func catalogWith(ids ...int64) *fakeCatalog {
	items := make(map[int64]models.VocabularyItem, len(ids))
	for _, id := range ids {
		items[id] = models.VocabularyItem{ID: id, Word: "w", Definition: "d"}
	}
	return &fakeCatalog{items: items, bands: map[database.Band][]int64{}}
}

func TestSelectKeepsReviewDueOrder(t *testing.T) {
	reviews := &fakeReviews{due: []models.MemoryRecord{
		dueRecord(3, 5), dueRecord(7, 3), dueRecord(1, 1),
	}}
	catalog := catalogWith(1, 3, 7)
	s := New(reviews, catalog, Config{}, logger.NewNop())

	// limit 5 gives a review quota of 4, enough for every due record.
	cands, err := s.Select(context.Background(), "u1", models.TrackContext, 5, nil)
	require.NoError(t, err)
	require.Len(t, cands, 3, "all three items are already taken by reviews")

	// Most overdue first, exactly as the source returned them.
	assert.Equal(t, int64(3), cands[0].Item.ID)
	assert.Equal(t, int64(7), cands[1].Item.ID)
	assert.Equal(t, int64(1), cands[2].Item.ID)
	for _, c := range cands {
		assert.Equal(t, CandidateReview, c.Type)
		assert.NotNil(t, c.Record)
	}
}

func TestSelectReviewQuotaCapsDueItems(t *testing.T) {
	reviews := &fakeReviews{due: []models.MemoryRecord{
		dueRecord(3, 5), dueRecord(7, 3), dueRecord(1, 1),
	}}
	catalog := catalogWith(1, 2, 3, 7)
	catalog.bands[database.BandCore] = []int64{2}
	s := New(reviews, catalog, Config{}, logger.NewNop())

	cands, err := s.Select(context.Background(), "u1", models.TrackContext, 3, nil)
	require.NoError(t, err)
	require.Len(t, cands, 3)

	assert.Equal(t, 2, reviews.lastLimit, "review quota is round(3 * 0.7)")
	// The quota admits only the two most overdue records, still in order.
	assert.Equal(t, int64(3), cands[0].Item.ID)
	assert.Equal(t, int64(7), cands[1].Item.ID)
	assert.Equal(t, CandidateNew, cands[2].Type)
}

func TestSelectMacroSplit(t *testing.T) {
	reviews := &fakeReviews{}
	for i := int64(1); i <= 20; i++ {
		reviews.due = append(reviews.due, dueRecord(i, 1))
	}
	catalog := catalogWith(1, 2, 3, 4, 5, 6, 7, 8, 9, 10,
		11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21, 22, 23)
	catalog.bands[database.BandCore] = []int64{21, 22, 23}
	s := New(reviews, catalog, Config{}, logger.NewNop())

	cands, err := s.Select(context.Background(), "u1", models.TrackContext, 10, nil)
	require.NoError(t, err)

	assert.Equal(t, 7, reviews.lastLimit, "review quota is round(10 * 0.7)")
	var reviewCount, newCount int
	for _, c := range cands {
		if c.Type == CandidateReview {
			reviewCount++
		} else {
			newCount++
		}
	}
	assert.Equal(t, 7, reviewCount)
	assert.Equal(t, 3, newCount)
}

func TestSelectReviewShortfallFlowsToNew(t *testing.T) {
	reviews := &fakeReviews{due: []models.MemoryRecord{dueRecord(1, 1), dueRecord(2, 1)}}
	catalog := catalogWith(1, 2, 10, 11, 12, 13, 14, 15, 16, 17)
	catalog.bands[database.BandCore] = []int64{10, 11, 12, 13, 14, 15, 16, 17}
	s := New(reviews, catalog, Config{}, logger.NewNop())

	cands, err := s.Select(context.Background(), "u1", models.TrackContext, 10, nil)
	require.NoError(t, err)
	require.Len(t, cands, 10)

	var newCount int
	for _, c := range cands {
		if c.Type == CandidateNew {
			newCount++
		}
	}
	assert.Equal(t, 8, newCount, "unused review quota goes to new items")
}

func TestSelectNeverDuplicates(t *testing.T) {
	reviews := &fakeReviews{due: []models.MemoryRecord{dueRecord(1, 1)}}
	catalog := catalogWith(1, 2, 3, 4, 5, 6)
	// Item 2 sits in every band; it must still appear at most once.
	catalog.bands[database.BandSimple] = []int64{2, 3}
	catalog.bands[database.BandCore] = []int64{2, 4, 5}
	catalog.bands[database.BandHard] = []int64{2, 6}
	s := New(reviews, catalog, Config{}, logger.NewNop())

	cands, err := s.Select(context.Background(), "u1", models.TrackContext, 6, nil)
	require.NoError(t, err)

	seen := make(map[int64]bool)
	for _, c := range cands {
		assert.False(t, seen[c.Item.ID], "item %d selected twice", c.Item.ID)
		seen[c.Item.ID] = true
	}
}

func TestSelectExcludeIsHonored(t *testing.T) {
	reviews := &fakeReviews{due: []models.MemoryRecord{dueRecord(1, 1), dueRecord(2, 1)}}
	catalog := catalogWith(1, 2, 3, 4)
	catalog.bands[database.BandCore] = []int64{3, 4}
	s := New(reviews, catalog, Config{}, logger.NewNop())

	cands, err := s.Select(context.Background(), "u1", models.TrackContext, 4, []int64{1, 3})
	require.NoError(t, err)
	for _, c := range cands {
		assert.NotEqual(t, int64(1), c.Item.ID)
		assert.NotEqual(t, int64(3), c.Item.ID)
	}
}

func TestSelectGapFillFromFallback(t *testing.T) {
	reviews := &fakeReviews{}
	catalog := catalogWith(1, 2, 3, 4, 5)
	// All bands empty; only the unfiltered fallback pass can fill the batch.
	s := New(reviews, catalog, Config{}, logger.NewNop())

	cands, err := s.Select(context.Background(), "u1", models.TrackContext, 5, nil)
	require.NoError(t, err)
	assert.Len(t, cands, 5)
}

func TestSelectEmptyPoolsReturnsEmpty(t *testing.T) {
	s := New(&fakeReviews{}, catalogWith(), Config{}, logger.NewNop())
	cands, err := s.Select(context.Background(), "u1", models.TrackContext, 10, nil)
	require.NoError(t, err)
	assert.Empty(t, cands)
}

func TestSelectSkipsRecordsWithMissingItems(t *testing.T) {
	reviews := &fakeReviews{due: []models.MemoryRecord{dueRecord(1, 1), dueRecord(99, 2)}}
	catalog := catalogWith(1)
	s := New(reviews, catalog, Config{}, logger.NewNop())

	cands, err := s.Select(context.Background(), "u1", models.TrackContext, 2, nil)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, int64(1), cands[0].Item.ID)
}
