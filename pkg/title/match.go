package title

import (
	"regexp"

	"github.com/hbollon/go-edlib"
)

var numberRegex = regexp.MustCompile(`\b(\d+)\b`)

// Similarity scores two titles between 0 and 1 using Jaro-Winkler on their
// cleaned forms. Sequel numbers that disagree pull the score down.
func Similarity(a, b string) float64 {
	ca, cb := Clean(a), Clean(b)
	if ca == cb {
		return 1
	}
	score := float64(edlib.JaroWinklerSimilarity(ca, cb))
	return adjustForNumbers(score, numberRegex.FindAllString(ca, -1), numberRegex.FindAllString(cb, -1))
}

// Best returns the index of the candidate most similar to t, and its score.
// ok is false when no candidate reaches threshold.
func Best(t string, candidates []string, threshold float64) (idx int, score float64, ok bool) {
	idx = -1
	for i, c := range candidates {
		if s := Similarity(t, c); s > score {
			idx, score = i, s
		}
	}
	if idx < 0 || score < threshold {
		return -1, score, false
	}
	return idx, score, true
}

// adjustForNumbers rewards candidates sharing a sequence number with the
// query and penalizes ones that lack it or carry a different one.
func adjustForNumbers(score float64, want, got []string) float64 {
	if len(want) == 0 {
		return score
	}
	if len(got) == 0 {
		return score * 0.85
	}
	have := make(map[string]bool, len(got))
	for _, n := range got {
		have[n] = true
	}
	for _, n := range want {
		if have[n] {
			return min(score*1.05, 1.0)
		}
	}
	return score * 0.90
}
