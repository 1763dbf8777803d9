package generator

import (
	"fmt"
	"strings"
	"time"

	"github.com/example/drillcore/pkg/models"
)

// BuildFallback assembles a deterministic drill from catalog fields alone.
// It is fast, never fails, and carries no generated prose, which is exactly
// what the interactive cache-miss path needs.
func BuildFallback(item models.VocabularyItem, mode models.Mode) models.DrillContent {
	var question string
	switch mode {
	case models.ModeSyntax:
		question = fmt.Sprintf("Build a sentence using **%s**.", item.Word)
		if item.Example != "" {
			question = fmt.Sprintf("Reorder the parts of this sentence: %s", scramble(item.Example))
		}
	case models.ModeBlitz:
		question = fmt.Sprintf("Quick: what does **%s** mean?", item.Word)
	default:
		question = fmt.Sprintf("Which meaning fits **%s** here?", item.Word)
		if item.Example != "" {
			question = fmt.Sprintf("%s\n\n> %s", question, item.Example)
		}
	}

	explanation := item.Definition
	if item.Collocations != "" {
		explanation = fmt.Sprintf("%s (often with: %s)", explanation, item.Collocations)
	}

	return models.DrillContent{
		Kind:        models.DrillFallback,
		VocabID:     item.ID,
		Word:        item.Word,
		Question:    question,
		Explanation: explanation,
		Source:      models.SourceFallback,
		GeneratedAt: time.Now(),
	}
}

// scramble rotates the words of a sentence so the learner has to restore
// the order. Deterministic on purpose.
func scramble(sentence string) string {
	words := strings.Fields(sentence)
	if len(words) < 3 {
		return sentence
	}
	mid := len(words) / 2
	rotated := append(append([]string{}, words[mid:]...), words[:mid]...)
	return strings.Join(rotated, " / ")
}
