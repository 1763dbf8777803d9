package models

import "time"

// Status is the user-facing lifecycle stage of a memory record.
// Grading moves it forward NEW→LEARNING→REVIEW, or back to LEARNING on a
// lapse. MASTERED is reached only through an explicit finalize operation.
type Status string

const (
	StatusNew      Status = "NEW"
	StatusLearning Status = "LEARNING"
	StatusReview   Status = "REVIEW"
	StatusMastered Status = "MASTERED"
)

// State is the internal FSRS phase, distinct from Status.
type State string

const (
	StateNew        State = "New"
	StateLearning   State = "Learning"
	StateReview     State = "Review"
	StateRelearning State = "Relearning"
)

// Track is an independent learning modality. The same vocabulary item is
// scheduled separately per track.
type Track string

const (
	TrackVisual  Track = "VISUAL"
	TrackAudio   Track = "AUDIO"
	TrackContext Track = "CONTEXT"
)

// Tracks lists every valid track.
var Tracks = []Track{TrackVisual, TrackAudio, TrackContext}

// Valid reports whether t is a known track.
func (t Track) Valid() bool {
	switch t {
	case TrackVisual, TrackAudio, TrackContext:
		return true
	}
	return false
}

// MemoryRecord is the per-(user, item, track) scheduling state.
// Exactly one row exists per triple (unique constraint in the store).
type MemoryRecord struct {
	ID           int64      `json:"id" db:"id"`
	UserID       string     `json:"user_id" db:"user_id"`
	VocabID      int64      `json:"vocab_id" db:"vocab_id"`
	Track        Track      `json:"track" db:"track"`
	Status       Status     `json:"status" db:"status"`
	State        State      `json:"state" db:"state"`
	Stability    float64    `json:"stability" db:"stability"`
	Difficulty   float64    `json:"difficulty" db:"difficulty"`
	Reps         int        `json:"reps" db:"reps"`
	Lapses       int        `json:"lapses" db:"lapses"`
	Interval     int        `json:"interval" db:"interval"`
	LastReviewAt *time.Time `json:"last_review_at" db:"last_review_at"`
	NextReviewAt *time.Time `json:"next_review_at" db:"next_review_at"`
	DueDate      time.Time  `json:"due_date" db:"due_date"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

// NewMemoryRecord returns a fresh NEW record for the triple, due immediately.
func NewMemoryRecord(userID string, vocabID int64, track Track, now time.Time) MemoryRecord {
	return MemoryRecord{
		UserID:  userID,
		VocabID: vocabID,
		Track:   track,
		Status:  StatusNew,
		State:   StateNew,
		DueDate: now,
	}
}

// IsDue reports whether the record's next review has passed.
func (r *MemoryRecord) IsDue(now time.Time) bool {
	return r.NextReviewAt != nil && !r.NextReviewAt.After(now)
}
