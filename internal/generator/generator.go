package generator

import (
	"context"

	"github.com/example/drillcore/pkg/models"
)

// ContentGenerator turns a vocabulary item and a mode into presentable
// drill content. Implementations may be slow (seconds) and may fail; they
// are called only from background workers, never on the interactive path.
type ContentGenerator interface {
	Generate(ctx context.Context, item models.VocabularyItem, mode models.Mode) (models.DrillContent, error)
}
