// Package excel imports the vocabulary catalog from spreadsheet files.
package excel

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/example/drillcore/internal/database"
	"github.com/example/drillcore/internal/logger"
	"github.com/example/drillcore/pkg/models"
)

// ImportConfig defines the expected column layout.
type ImportConfig struct {
	FilePath  string
	SheetName string
	StartRow  int // 1-based; default skips the header row
}

// DefaultImportConfig returns the default layout: word, definition, example,
// collocations, part of speech, level, frequency score, is_core, tags.
func DefaultImportConfig(path string) ImportConfig {
	return ImportConfig{
		FilePath:  path,
		SheetName: "Sheet1",
		StartRow:  2,
	}
}

// ImportResult summarizes one import run.
type ImportResult struct {
	TotalProcessed int
	Imported       int
	Skipped        int
	Errors         []string
}

// Importer loads catalog rows into the vocab repository.
type Importer struct {
	catalog *database.VocabRepository
	log     *logger.Logger
}

// NewImporter creates an Importer.
func NewImporter(catalog *database.VocabRepository, log *logger.Logger) *Importer {
	return &Importer{catalog: catalog, log: log.With("component", "importer")}
}

// Import reads an .xlsx or .csv file and upserts every row by word.
func (im *Importer) Import(ctx context.Context, cfg ImportConfig) (*ImportResult, error) {
	var (
		rows [][]string
		err  error
	)
	if strings.ToLower(filepath.Ext(cfg.FilePath)) == ".csv" {
		rows, err = readCSV(cfg.FilePath)
	} else {
		rows, err = readExcel(cfg)
	}
	if err != nil {
		return nil, err
	}

	result := &ImportResult{}
	for i, row := range rows {
		if i < cfg.StartRow-1 {
			continue
		}
		result.TotalProcessed++

		item, err := parseRow(row)
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", i+1, err))
			continue
		}
		if err := im.catalog.Create(ctx, item); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", i+1, err))
			continue
		}
		result.Imported++
	}

	im.log.Info("catalog import finished",
		"file", cfg.FilePath,
		"processed", result.TotalProcessed,
		"imported", result.Imported,
		"skipped", result.Skipped,
		"errors", len(result.Errors))
	return result, nil
}

func readExcel(cfg ImportConfig) ([][]string, error) {
	f, err := excelize.OpenFile(cfg.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open excel file: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(cfg.SheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", cfg.SheetName, err)
	}
	return rows, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open csv file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	var rows [][]string
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv: %w", err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseRow(row []string) (*models.VocabularyItem, error) {
	get := func(i int) string {
		if i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	word := get(0)
	if word == "" {
		return nil, fmt.Errorf("empty word")
	}
	definition := get(1)
	if definition == "" {
		return nil, fmt.Errorf("empty definition for %q", word)
	}

	level := 5
	if v := get(5); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 10 {
			return nil, fmt.Errorf("bad level %q for %q", v, word)
		}
		level = n
	}

	freq := 0.0
	if v := get(6); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("bad frequency score %q for %q", v, word)
		}
		freq = f
	}

	isCore := false
	if v := get(7); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("bad is_core flag %q for %q", v, word)
		}
		isCore = b
	}

	return &models.VocabularyItem{
		Word:           word,
		Definition:     definition,
		Example:        get(2),
		Collocations:   get(3),
		PartOfSpeech:   get(4),
		Level:          level,
		FrequencyScore: freq,
		IsCore:         isCore,
		Tags:           get(8),
	}, nil
}
