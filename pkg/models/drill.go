package models

import (
	"fmt"
	"time"
)

// DrillKind tags the shape of a drill's interaction.
type DrillKind string

const (
	DrillSVO      DrillKind = "SVO"
	DrillCloze    DrillKind = "CLOZE"
	DrillTrap     DrillKind = "TRAP"
	DrillFallback DrillKind = "FALLBACK"
)

// DrillSource records how a drill reached the learner.
type DrillSource string

const (
	SourceCache      DrillSource = "cache"
	SourceDrillCache DrillSource = "drill_cache"
	SourceFallback   DrillSource = "deterministic_fallback"
)

// DrillContent is one presentable drill unit. Content crossing from a
// generator into the core must pass Validate first; the core never branches
// on untyped payload shape.
type DrillContent struct {
	Kind        DrillKind   `json:"kind"`
	VocabID     int64       `json:"vocab_id"`
	Word        string      `json:"word"`
	Question    string      `json:"question"`
	Options     []string    `json:"options,omitempty"`
	AnswerIndex int         `json:"answer_index"`
	Explanation string      `json:"explanation,omitempty"`
	Source      DrillSource `json:"source,omitempty"`
	GeneratedAt time.Time   `json:"generated_at"`
}

// Validate is the schema boundary for generated content.
func (d *DrillContent) Validate() error {
	switch d.Kind {
	case DrillSVO, DrillCloze, DrillTrap, DrillFallback:
	default:
		return fmt.Errorf("drill: unknown kind %q", d.Kind)
	}
	if d.VocabID <= 0 {
		return fmt.Errorf("drill: missing vocab id")
	}
	if d.Word == "" {
		return fmt.Errorf("drill: missing word")
	}
	if d.Question == "" {
		return fmt.Errorf("drill: missing question")
	}
	if len(d.Options) > 0 && (d.AnswerIndex < 0 || d.AnswerIndex >= len(d.Options)) {
		return fmt.Errorf("drill: answer index %d out of range", d.AnswerIndex)
	}
	return nil
}
