package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/example/drillcore/internal/apperr"
	"github.com/example/drillcore/pkg/models"
)

// Band partitions the unseen pool for stratified sampling.
type Band string

const (
	BandSimple   Band = "SIMPLE"   // level 1-3
	BandCore     Band = "CORE"     // core list or level 4-7
	BandHard     Band = "HARD"     // level 8+
	BandFallback Band = "FALLBACK" // no band filter
)

// VocabRepository is the read-mostly catalog. The scheduling core never
// writes vocabulary; Create exists for the importer.
type VocabRepository struct {
	db *sqlx.DB
}

// NewVocabRepository creates a repository over the given handle.
func NewVocabRepository(db *sqlx.DB) *VocabRepository {
	return &VocabRepository{db: db}
}

// GetByID returns one catalog item.
func (r *VocabRepository) GetByID(ctx context.Context, id int64) (*models.VocabularyItem, error) {
	var item models.VocabularyItem
	query := r.db.Rebind(`SELECT * FROM vocab_items WHERE id = ?`)
	err := r.db.GetContext(ctx, &item, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFoundf("vocab item %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vocab item: %w", err)
	}
	return &item, nil
}

// GetByIDs returns catalog items for the given ids in one query.
func (r *VocabRepository) GetByIDs(ctx context.Context, ids []int64) (map[int64]models.VocabularyItem, error) {
	out := make(map[int64]models.VocabularyItem, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query, args, err := sqlx.In(`SELECT * FROM vocab_items WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build id filter: %w", err)
	}
	var items []models.VocabularyItem
	if err := r.db.SelectContext(ctx, &items, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to get vocab items: %w", err)
	}
	for _, it := range items {
		out[it.ID] = it
	}
	return out, nil
}

// NewInBand returns items in the band that the user has never been exposed
// to in the given track, ordered core-first then by descending frequency.
func (r *VocabRepository) NewInBand(ctx context.Context, userID string, track models.Track, band Band, exclude []int64, limit int) ([]models.VocabularyItem, error) {
	if limit <= 0 {
		return nil, nil
	}
	query := `
		SELECT v.* FROM vocab_items v
		WHERE NOT EXISTS (
			SELECT 1 FROM memory_records m
			WHERE m.vocab_id = v.id AND m.user_id = ? AND m.track = ?
		)`
	args := []interface{}{userID, track}

	switch band {
	case BandSimple:
		query += ` AND v.level <= 3`
	case BandCore:
		query += ` AND (v.is_core = ? OR v.level BETWEEN 4 AND 7)`
		args = append(args, true)
	case BandHard:
		query += ` AND v.level >= 8`
	case BandFallback:
		// No band filter.
	default:
		return nil, apperr.Validationf("unknown band %q", band)
	}

	if len(exclude) > 0 {
		inQuery, inArgs, err := sqlx.In(` AND v.id NOT IN (?)`, exclude)
		if err != nil {
			return nil, fmt.Errorf("failed to build exclude filter: %w", err)
		}
		query += inQuery
		args = append(args, inArgs...)
	}
	query += ` ORDER BY v.is_core DESC, v.frequency_score DESC LIMIT ?`
	args = append(args, limit)

	var items []models.VocabularyItem
	if err := r.db.SelectContext(ctx, &items, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to get new items: %w", err)
	}
	return items, nil
}

// CountAll returns the catalog size, used to distinguish "caught up" from
// "no content exists at all".
func (r *VocabRepository) CountAll(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM vocab_items`); err != nil {
		return 0, fmt.Errorf("failed to count vocab items: %w", err)
	}
	return n, nil
}

// Create inserts a catalog item. Importer use only.
func (r *VocabRepository) Create(ctx context.Context, item *models.VocabularyItem) error {
	query := r.db.Rebind(`
		INSERT INTO vocab_items (word, definition, example, collocations,
			part_of_speech, level, frequency_score, is_core, tags)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(word) DO UPDATE SET
			definition = excluded.definition,
			example = excluded.example,
			collocations = excluded.collocations,
			part_of_speech = excluded.part_of_speech,
			level = excluded.level,
			frequency_score = excluded.frequency_score,
			is_core = excluded.is_core,
			tags = excluded.tags,
			updated_at = CURRENT_TIMESTAMP`)
	_, err := r.db.ExecContext(ctx, query,
		item.Word, item.Definition, item.Example, item.Collocations,
		item.PartOfSpeech, item.Level, item.FrequencyScore, item.IsCore, item.Tags,
	)
	if err != nil {
		return fmt.Errorf("failed to create vocab item: %w", err)
	}
	return nil
}
