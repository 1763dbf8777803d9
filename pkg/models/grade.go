package models

// Grade is the FSRS rating ordinal.
type Grade int

const (
	GradeAgain Grade = 1
	GradeHard  Grade = 2
	GradeGood  Grade = 3
	GradeEasy  Grade = 4
)

// Valid reports whether g is within the ordinal scale.
func (g Grade) Valid() bool {
	return g >= GradeAgain && g <= GradeEasy
}

func (g Grade) String() string {
	switch g {
	case GradeAgain:
		return "Again"
	case GradeHard:
		return "Hard"
	case GradeGood:
		return "Good"
	case GradeEasy:
		return "Easy"
	}
	return "Unknown"
}

// ReducedGrade is the three-point scale presented to the user. It is mapped
// to the ordinal Grade together with the response duration.
type ReducedGrade string

const (
	ReducedForgot ReducedGrade = "forgot"
	ReducedHazy   ReducedGrade = "hazy"
	ReducedKnow   ReducedGrade = "know"
)

// Valid reports whether r is a known reduced grade.
func (r ReducedGrade) Valid() bool {
	switch r {
	case ReducedForgot, ReducedHazy, ReducedKnow:
		return true
	}
	return false
}

// Mode is a drill session mode. Inventory is stocked per mode; each mode is
// graded against exactly one scheduling track.
type Mode string

const (
	ModeSyntax   Mode = "SYNTAX"
	ModeChunking Mode = "CHUNKING"
	ModeNuance   Mode = "NUANCE"
	ModeBlitz    Mode = "BLITZ"
)

// Modes lists every valid mode.
var Modes = []Mode{ModeSyntax, ModeChunking, ModeNuance, ModeBlitz}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeSyntax, ModeChunking, ModeNuance, ModeBlitz:
		return true
	}
	return false
}

// TrackFor returns the scheduling track graded by drills of this mode.
func (m Mode) TrackFor() Track {
	switch m {
	case ModeSyntax:
		return TrackVisual
	case ModeBlitz:
		return TrackAudio
	default:
		return TrackContext
	}
}
