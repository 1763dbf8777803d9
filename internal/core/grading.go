package core

import (
	"github.com/example/drillcore/internal/apperr"
	"github.com/example/drillcore/pkg/models"
)

// Per-mode response-time thresholds in milliseconds. Sentence building is
// slower by nature, so SYNTAX gets a wider window.
type gradeThresholds struct {
	easyBelow int64
	hardAbove int64
}

var thresholdsByMode = map[models.Mode]gradeThresholds{
	models.ModeSyntax: {easyBelow: 2500, hardAbove: 8000},
}

var defaultThresholds = gradeThresholds{easyBelow: 1500, hardAbove: 5000}

// MapGrade turns the three-point answer plus response time into the
// scheduler's four-point ordinal. A retry of an item already missed this
// session caps at Good: a corrected answer is recall, not mastery.
func MapGrade(reduced models.ReducedGrade, mode models.Mode, durationMs int64, isRetry bool) (models.Grade, error) {
	if !reduced.Valid() {
		return 0, apperr.Validationf("unknown grade %q", reduced)
	}

	t, ok := thresholdsByMode[mode]
	if !ok {
		t = defaultThresholds
	}

	var grade models.Grade
	switch reduced {
	case models.ReducedForgot:
		grade = models.GradeAgain
	case models.ReducedHazy:
		grade = models.GradeHard
	case models.ReducedKnow:
		switch {
		case durationMs >= 0 && durationMs < t.easyBelow:
			grade = models.GradeEasy
		case durationMs > t.hardAbove:
			grade = models.GradeHard
		default:
			grade = models.GradeGood
		}
	}

	if isRetry && grade > models.GradeGood {
		grade = models.GradeGood
	}
	return grade, nil
}
