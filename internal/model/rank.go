package model

// Rank is the heuristic budget tier of a listing: A for paid placement,
// B for prominent position, C otherwise. The zero value means no rank was
// observed.
type Rank string

const (
	RankNone Rank = ""
	RankA    Rank = "A"
	RankB    Rank = "B"
	RankC    Rank = "C"
)

// Ordinal maps a rank to A=3, B=2, C=1 and anything else to 0.
func (r Rank) Ordinal() int {
	switch r {
	case RankA:
		return 3
	case RankB:
		return 2
	case RankC:
		return 1
	default:
		return 0
	}
}

// Valid reports whether r is one of A, B or C.
func (r Rank) Valid() bool { return r.Ordinal() > 0 }

// ParseRank returns the rank for s, or RankNone when s is not A, B or C.
func ParseRank(s string) Rank {
	r := Rank(s)
	if r.Valid() {
		return r
	}
	return RankNone
}
