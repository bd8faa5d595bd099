// Package labeling turns a single batch-level user verdict into
// per-review training labels. The user only says whether the analysis
// as a whole was helpful; each strategy decides how that propagates to
// individual reviews based on their scores.
package labeling

// Labeling strategies.
const (
	StrategyWeak     = "weak"     // every review inherits the user's verdict
	StrategyHybrid   = "hybrid"   // extremes are fixed, middle scores labeled relative to the batch average
	StrategyExtreme  = "extreme"  // only confident extremes kept, middle scores excluded
	StrategyRelative = "relative" // labeled purely relative to the batch average
)

// DefaultStrategy is used when the caller doesn't pick one.
const DefaultStrategy = StrategyHybrid

// Hybrid treats scores at or beyond these bounds as certain.
const (
	hybridHigh = 85
	hybridLow  = 35
)

// Extreme keeps only scores at or beyond these bounds.
const (
	extremeHigh = 80
	extremeLow  = 40
)

// Valid reports whether the strategy name is one of the known strategies.
func Valid(strategy string) bool {
	switch strategy {
	case StrategyWeak, StrategyHybrid, StrategyExtreme, StrategyRelative:
		return true
	}
	return false
}

// Label assigns a training label to one review. score is the review's
// reliability score (0-100), avgScore the mean score of its batch, and
// satisfied the user's batch-level verdict. ok=false means the review is
// excluded from training data. Unknown strategies fall back to hybrid.
func Label(strategy string, score, avgScore float64, satisfied bool) (label int, ok bool) {
	switch strategy {
	case StrategyWeak:
		if satisfied {
			return 1, true
		}
		return 0, true
	case StrategyExtreme:
		return labelExtreme(score, satisfied)
	case StrategyRelative:
		return labelRelative(score, avgScore, satisfied), true
	default:
		return labelHybrid(score, avgScore, satisfied), true
	}
}

func labelHybrid(score, avgScore float64, satisfied bool) int {
	if satisfied {
		if score >= hybridHigh {
			return 1
		}
		if score <= hybridLow {
			return 0
		}
	} else {
		if score <= hybridLow {
			return 0
		}
		if score >= hybridHigh {
			return 1
		}
	}
	return labelRelative(score, avgScore, satisfied)
}

func labelExtreme(score float64, satisfied bool) (int, bool) {
	if satisfied {
		if score >= extremeHigh {
			return 1, true
		}
		if score <= extremeLow {
			return 0, true
		}
		return 0, false
	}
	if score <= extremeLow {
		return 0, true
	}
	if score >= extremeHigh {
		return 1, true
	}
	return 0, false
}

// labelRelative compares against the batch average. A score exactly at
// the average sides with the user's verdict.
func labelRelative(score, avgScore float64, satisfied bool) int {
	if satisfied {
		if score > avgScore {
			return 1
		}
		return 0
	}
	if score < avgScore {
		return 0
	}
	return 1
}

// Confidence measures how strongly the score agrees with the assigned
// label: high scores back label 1, low scores back label 0.
func Confidence(score float64, label int) float64 {
	var c float64
	if label == 1 {
		c = score / 100.0
	} else {
		c = (100 - score) / 100.0
	}
	if c > 1 {
		c = 1
	}
	if c < 0 {
		c = 0
	}
	return c
}
