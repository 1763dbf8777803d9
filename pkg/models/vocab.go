package models

import "time"

// VocabularyItem is a catalog entry. Read-only to the scheduling core; the
// selector consumes its level/frequency metadata for stratification.
type VocabularyItem struct {
	ID             int64     `json:"id" db:"id"`
	Word           string    `json:"word" db:"word"`
	Definition     string    `json:"definition" db:"definition"`
	Example        string    `json:"example" db:"example"`
	Collocations   string    `json:"collocations" db:"collocations"`
	PartOfSpeech   string    `json:"part_of_speech" db:"part_of_speech"`
	Level          int       `json:"level" db:"level"`
	FrequencyScore float64   `json:"frequency_score" db:"frequency_score"`
	IsCore         bool      `json:"is_core" db:"is_core"`
	Tags           string    `json:"tags" db:"tags"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}
