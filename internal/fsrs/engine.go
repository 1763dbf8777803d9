// Package fsrs implements the spaced-repetition engine (FSRS-class).
//
// Schedule is a pure function of (record, grade, now) and the parameter
// set: it never reads external state and never randomizes, so the same
// inputs always produce the same next record.
package fsrs

import (
	"math"
	"time"

	"github.com/example/drillcore/internal/apperr"
	"github.com/example/drillcore/pkg/models"
)

const (
	// relearnDelay is the short fixed step for same-day relearning.
	relearnDelay = 10 * time.Minute
	// graduateReps is the successful-rep count at which a learning record
	// moves to the Review phase.
	graduateReps = 2
)

// Config tunes an Engine. Zero values fall back to defaults.
type Config struct {
	Parameters       [21]float64 // zero → DefaultParameters
	DesiredRetention float64     // zero → 0.9
	MaximumInterval  int         // zero → 36500 days
}

// Engine schedules memory records. Safe for concurrent use.
type Engine struct {
	w                [21]float64
	decay            float64 // -w[20]
	factor           float64 // 0.9^(1/decay) - 1
	desiredRetention float64
	maximumInterval  int
}

// NewEngine builds an Engine, validating the parameter set.
func NewEngine(cfg Config) (*Engine, error) {
	params := cfg.Parameters
	if params == [21]float64{} {
		params = DefaultParameters
	}
	if err := ValidateParameters(params); err != nil {
		return nil, err
	}

	dr := cfg.DesiredRetention
	if dr == 0 {
		dr = 0.9
	}
	if dr < 0 || dr > 1 {
		return nil, apperr.Validationf("desired retention %f out of range (0, 1]", dr)
	}

	maxIvl := cfg.MaximumInterval
	if maxIvl == 0 {
		maxIvl = 36500
	}
	if maxIvl < 0 {
		return nil, apperr.Validationf("maximum interval %d must be positive", maxIvl)
	}

	decay := -params[20]
	return &Engine{
		w:                params,
		decay:            decay,
		factor:           math.Pow(0.9, 1.0/decay) - 1.0,
		desiredRetention: dr,
		maximumInterval:  maxIvl,
	}, nil
}

// Schedule computes the next memory record for a graded review.
// The input record is not mutated. Invalid grades are rejected; every
// numeric degenerate case (clock skew, zero stability) is clamped inside.
func (e *Engine) Schedule(rec models.MemoryRecord, grade models.Grade, now time.Time) (models.MemoryRecord, error) {
	if !grade.Valid() {
		return models.MemoryRecord{}, apperr.Validationf("grade %d outside [1, 4]", int(grade))
	}

	next := rec

	// Elapsed days since the last review, clamped at zero against skew.
	var elapsed float64
	if rec.LastReviewAt != nil {
		elapsed = now.Sub(*rec.LastReviewAt).Hours() / 24.0
		if elapsed < 0 {
			elapsed = 0
		}
	}

	if rec.State == models.StateNew || rec.Stability == 0 {
		next.Stability = e.initStability(grade)
		next.Difficulty = e.initDifficulty(grade, true)
		next.State = models.StateLearning
		if grade == models.GradeAgain {
			next.Interval = 0
			due := now.Add(relearnDelay)
			next.NextReviewAt = &due
			next.DueDate = due
		} else {
			next.Reps = rec.Reps + 1
			next.Interval = e.nextInterval(next.Stability)
			due := now.AddDate(0, 0, next.Interval)
			next.NextReviewAt = &due
			next.DueDate = due
		}
	} else {
		next.Difficulty = e.nextDifficulty(rec.Difficulty, grade)
		retr := e.retrievability(elapsed, rec.Stability)

		if grade == models.GradeAgain {
			next.Stability = e.nextForgetStability(next.Difficulty, rec.Stability, retr)
			next.Lapses = rec.Lapses + 1
			next.State = models.StateRelearning
			next.Interval = 0
			due := now.Add(relearnDelay)
			next.NextReviewAt = &due
			next.DueDate = due
		} else {
			if rec.State == models.StateReview {
				next.Stability = e.nextRecallStability(next.Difficulty, rec.Stability, retr, grade)
			} else {
				// Same-phase (learning/relearning) success.
				next.Stability = e.shortTermStability(rec.Stability, grade)
			}
			next.Reps = rec.Reps + 1
			next.State = e.nextSuccessState(rec.State, next.Reps)
			next.Interval = e.nextInterval(next.Stability)
			due := now.AddDate(0, 0, next.Interval)
			next.NextReviewAt = &due
			next.DueDate = due
		}
	}

	lr := now
	next.LastReviewAt = &lr
	next.Status = statusFor(next.State)
	return next, nil
}

// Reset re-initializes a record to NEW, due immediately. Idempotent: the row
// survives (history and foreign keys stay stable), only the memory state is
// cleared.
func Reset(rec models.MemoryRecord, now time.Time) models.MemoryRecord {
	next := rec
	next.Status = models.StatusNew
	next.State = models.StateNew
	next.Stability = 0
	next.Difficulty = 0
	next.Reps = 0
	next.Lapses = 0
	next.Interval = 0
	next.LastReviewAt = nil
	due := now
	next.NextReviewAt = &due
	next.DueDate = now
	return next
}

func (e *Engine) nextSuccessState(prev models.State, reps int) models.State {
	switch prev {
	case models.StateRelearning:
		return models.StateReview
	case models.StateLearning:
		if reps >= graduateReps {
			return models.StateReview
		}
		return models.StateLearning
	default:
		return models.StateReview
	}
}

func statusFor(s models.State) models.Status {
	switch s {
	case models.StateNew:
		return models.StatusNew
	case models.StateReview:
		return models.StatusReview
	default:
		return models.StatusLearning
	}
}

// retrievability computes R(t, S) = (1 + FACTOR * t / S) ^ DECAY.
func (e *Engine) retrievability(elapsedDays, stability float64) float64 {
	return math.Pow(1+e.factor*elapsedDays/stability, e.decay)
}

// initStability returns S₀(G) = clamp_s(w[G-1]).
func (e *Engine) initStability(g models.Grade) float64 {
	return clampS(e.w[g-1])
}

// initDifficulty returns D₀(G) = w[4] - e^(w[5] * (G - 1)) + 1.
func (e *Engine) initDifficulty(g models.Grade, clamp bool) float64 {
	d := e.w[4] - math.Exp(e.w[5]*float64(g-1)) + 1
	if clamp {
		return clampD(d)
	}
	return d
}

// nextInterval computes the next review interval in days from stability and
// the target retention, floor 1, capped at the maximum interval.
func (e *Engine) nextInterval(stability float64) int {
	ivl := stability / e.factor * (math.Pow(e.desiredRetention, 1.0/e.decay) - 1)
	rounded := int(math.Round(ivl))
	if rounded < 1 {
		rounded = 1
	}
	if rounded > e.maximumInterval {
		rounded = e.maximumInterval
	}
	return rounded
}

// nextDifficulty applies linear damping and mean reversion toward D₀(Easy),
// clamped to [1, 10]. Harder grades push difficulty up.
func (e *Engine) nextDifficulty(difficulty float64, g models.Grade) float64 {
	deltaD := -e.w[6] * (float64(g) - 3)
	dPrime := difficulty + (10-difficulty)*deltaD/9
	d0Easy := e.initDifficulty(models.GradeEasy, false)
	return clampD(e.w[7]*d0Easy + (1-e.w[7])*dPrime)
}

// nextRecallStability grows stability after a successful recall, with a
// penalty for Hard and a bonus for Easy.
func (e *Engine) nextRecallStability(d, s, r float64, g models.Grade) float64 {
	hardPenalty := 1.0
	if g == models.GradeHard {
		hardPenalty = e.w[15]
	}
	easyBonus := 1.0
	if g == models.GradeEasy {
		easyBonus = e.w[16]
	}
	return s * (1 + math.Exp(e.w[8])*
		(11-d)*
		math.Pow(s, -e.w[9])*
		(math.Exp((1-r)*e.w[10])-1)*
		hardPenalty*easyBonus)
}

// nextForgetStability shrinks stability after a lapse. The result is a sharp
// reduction, never zero.
func (e *Engine) nextForgetStability(d, s, r float64) float64 {
	long := e.w[11] *
		math.Pow(d, -e.w[12]) *
		(math.Pow(s+1, e.w[13]) - 1) *
		math.Exp((1-r)*e.w[14])
	short := s / math.Exp(e.w[17]*e.w[18])
	return clampS(math.Min(long, short))
}

// shortTermStability handles same-phase learning steps.
func (e *Engine) shortTermStability(stability float64, g models.Grade) float64 {
	sInc := math.Exp(e.w[17]*(float64(g)-3+e.w[18])) * math.Pow(stability, -e.w[19])
	if g == models.GradeGood || g == models.GradeEasy {
		sInc = math.Max(sInc, 1.0)
	}
	return clampS(stability * sInc)
}

func clampS(s float64) float64 {
	return math.Max(s, 0.001)
}

func clampD(d float64) float64 {
	return math.Min(math.Max(d, 1), 10)
}
