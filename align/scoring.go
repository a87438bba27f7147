package align

// Scoring holds the alignment scoring parameters. Penalties are positive
// numbers that are subtracted.
type Scoring struct {
	Match        int
	Mismatch     int
	GapOpen      int
	GapExtension int
	// FullLengthBonus is added for each read end that is aligned rather than
	// soft clipped.
	FullLengthBonus int
}

// DefaultScoring is the default scoring scheme.
var DefaultScoring = Scoring{
	Match:           1,
	Mismatch:        4,
	GapOpen:         6,
	GapExtension:    1,
	FullLengthBonus: 5,
}

// WithoutFullLengthBonus returns a's score less the full-length bonus
// earned at each end that is not soft clipped. An alignment without a path
// scores 0.
func (s Scoring) WithoutFullLengthBonus(a Alignment) int {
	if !a.HasPath() {
		return 0
	}
	score := a.Score
	if SoftclipStart(a) == 0 {
		score -= s.FullLengthBonus
	}
	if SoftclipEnd(a) == 0 {
		score -= s.FullLengthBonus
	}
	return score
}

func (s Scoring) base(r, g byte) int32 {
	if r == 'N' || g == 'N' {
		return 0
	}
	if r == g {
		return int32(s.Match)
	}
	return -int32(s.Mismatch)
}
