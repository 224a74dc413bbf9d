// Package wakeword provides wake-word matcher implementations satisfying
// engine.WakeWordMatcher.
package wakeword

import (
	"context"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/normanking/companioncore/internal/engine"
)

// Keyword is a fuzzy substring wake-word matcher. It expects window to
// already be transcribed to lowercase text by a cheap streaming decoder
// upstream; the fuzzy match tolerates small transcription errors around
// the configured wake phrases.
type Keyword struct {
	words       []string
	sensitivity float64 // 0 (loose) to 1 (strict)
}

// NewKeyword builds a Keyword matcher for the given wake phrases.
// sensitivity ranges 0-1; higher values require a closer fuzzy match.
func NewKeyword(words []string, sensitivity float64) *Keyword {
	normalized := make([]string, len(words))
	for i, w := range words {
		normalized[i] = strings.ToLower(strings.TrimSpace(w))
	}
	return &Keyword{words: normalized, sensitivity: sensitivity}
}

// Detect implements engine.WakeWordMatcher. window is treated as UTF-8 text
// (a partial transcript window), not raw PCM.
func (k *Keyword) Detect(_ context.Context, window []byte) (engine.WakeWordResult, error) {
	text := strings.ToLower(string(window))

	best := engine.WakeWordResult{}
	for _, word := range k.words {
		if strings.Contains(text, word) {
			return engine.WakeWordResult{Matched: true, Word: word, Confidence: 1.0}, nil
		}

		score := fuzzyScore(text, word)
		if score > best.Confidence {
			best = engine.WakeWordResult{Word: word, Confidence: score}
		}
	}

	threshold := 0.5 + k.sensitivity*0.4 // 0.5..0.9
	best.Matched = best.Confidence >= threshold
	return best, nil
}

// fuzzyScore finds the tightest Jaro-Winkler match of word against any
// equal-length-ish substring window of text, via antzucaro/matchr.
func fuzzyScore(text, word string) float64 {
	n := len(word)
	if n == 0 || len(text) < n {
		return matchr.JaroWinkler(text, word, true)
	}
	best := 0.0
	for start := 0; start+n <= len(text); start++ {
		candidate := text[start : start+n]
		score := matchr.JaroWinkler(candidate, word, true)
		if score > best {
			best = score
		}
	}
	return best
}

// Profile implements engine.WakeWordMatcher.
func (k *Keyword) Profile() engine.ResourceProfile {
	return engine.ResourceProfile{RAMMB: 4, CPUCores: 1, NeedsGPU: false}
}
