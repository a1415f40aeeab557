// Package rank assigns budget tiers to listings and aggregates them.
package rank

import (
	"github.com/sells-group/jobleads-cli/internal/model"
)

// Confidence attached to each way a rank can be decided.
const (
	ConfidenceSponsored = 0.9
	ConfidencePosition  = 0.6
	ConfidenceDefault   = 0.3
)

// DefaultPositionThreshold is the number of leading absolute positions that
// earn a B rank when a site does not configure its own.
const DefaultPositionThreshold = 20

// Signals are the markup observations a site extracts for one result card.
type Signals struct {
	// Sponsored is true when the card carries an explicit paid-placement
	// marker (data attribute, attention class, PR path segment).
	Sponsored bool
	// Position is the 1-based absolute position across all result pages.
	Position int
	// Page is the 1-based results page the card was found on.
	Page int
}

// Policy holds the position rule used for B ranks.
type Policy struct {
	// PositionThreshold ranks the first N absolute positions B. Zero uses
	// DefaultPositionThreshold.
	PositionThreshold int
	// FirstPageIsB ranks every card on results page 1 B.
	FirstPageIsB bool
}

// Classifier maps signals to a rank and a confidence.
type Classifier func(Signals) (model.Rank, float64)

// NewClassifier returns a Classifier applying, in priority order, the
// explicit sponsor signal, the position rule, then the C default.
func NewClassifier(p Policy) Classifier {
	threshold := p.PositionThreshold
	if threshold <= 0 {
		threshold = DefaultPositionThreshold
	}
	return func(s Signals) (model.Rank, float64) {
		switch {
		case s.Sponsored:
			return model.RankA, ConfidenceSponsored
		case p.FirstPageIsB && s.Page == 1:
			return model.RankB, ConfidencePosition
		case s.Position > 0 && s.Position <= threshold:
			return model.RankB, ConfidencePosition
		default:
			return model.RankC, ConfidenceDefault
		}
	}
}

// Best returns the highest-ordinal rank among ranks, or RankNone when none
// is valid.
func Best(ranks ...model.Rank) model.Rank {
	best := model.RankNone
	for _, r := range ranks {
		if r.Ordinal() > best.Ordinal() {
			best = r
		}
	}
	return best
}

// Direction compares two ranks by ordinal. It returns "" when they are
// equal.
func Direction(from, to model.Rank) model.Direction {
	switch {
	case to.Ordinal() > from.Ordinal():
		return model.DirectionUpgrade
	case to.Ordinal() < from.Ordinal():
		return model.DirectionDowngrade
	default:
		return ""
	}
}
