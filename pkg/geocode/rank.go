package geocode

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/agext/levenshtein"
)

// Ranker picks one candidate out of several acceptable ones.
type Ranker interface {
	// Pick returns the index of the preferred candidate for the requested
	// name and house number, and whether another candidate at a different
	// position ranked equally apart from backend order.
	Pick(name, houseNumber string, cands []Candidate) (best int, ambiguous bool)
}

// EditDistanceRanker prefers the smallest normalised Levenshtein distance
// between requested and matched name, then the smallest house number
// difference, then the earliest candidate.
type EditDistanceRanker struct{}

// Pick implements Ranker.
func (EditDistanceRanker) Pick(name, houseNumber string, cands []Candidate) (int, bool) {
	if len(cands) == 0 {
		return -1, false
	}
	best := 0
	bestDist := NameDistance(name, cands[0].Name)
	bestDiff := houseDiff(houseNumber, cands[0].HouseNumber)
	ambiguous := false
	for i := 1; i < len(cands); i++ {
		dist := NameDistance(name, cands[i].Name)
		diff := houseDiff(houseNumber, cands[i].HouseNumber)
		switch {
		case dist < bestDist || (dist == bestDist && diff < bestDiff):
			best, bestDist, bestDiff = i, dist, diff
			ambiguous = false
		case dist == bestDist && diff == bestDiff && cands[i].Point() != cands[best].Point():
			ambiguous = true
		}
	}
	return best, ambiguous
}

// NameDistance is the Levenshtein distance between a and b, compared without
// case and divided by the length of the longer one. It ranges from 0 for
// equal names to 1.
func NameDistance(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	n := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if n == 0 {
		return 0
	}
	return float64(levenshtein.Distance(a, b, nil)) / float64(n)
}

func houseDiff(want, got string) int {
	if want == "" {
		return 0
	}
	w, err := strconv.Atoi(want)
	if err != nil {
		return 0
	}
	g, err := strconv.Atoi(got)
	if err != nil {
		return math.MaxInt
	}
	if w > g {
		return w - g
	}
	return g - w
}
