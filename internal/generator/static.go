package generator

import (
	"context"

	"github.com/example/drillcore/pkg/models"
)

// Static is a ContentGenerator that always produces the deterministic
// fallback drill. It keeps the replenishment pipeline functional when no
// generation backend is configured.
type Static struct{}

// Generate implements ContentGenerator.
func (Static) Generate(_ context.Context, item models.VocabularyItem, mode models.Mode) (models.DrillContent, error) {
	return BuildFallback(item, mode), nil
}
