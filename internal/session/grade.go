package session

// Grade is the letter tier of a session's accuracy.
type Grade string

const (
	GradeS Grade = "S"
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
)

// GradeFor maps an accuracy percentage to its letter grade.
func GradeFor(accuracy float64) Grade {
	switch {
	case accuracy >= 95:
		return GradeS
	case accuracy >= 90:
		return GradeA
	case accuracy >= 80:
		return GradeB
	case accuracy >= 70:
		return GradeC
	default:
		return GradeD
	}
}

// Passed reports whether g clears a song. Only D fails.
func (g Grade) Passed() bool {
	switch g {
	case GradeS, GradeA, GradeB, GradeC:
		return true
	}
	return false
}
