// Package tokens estimates completion token counts for responses whose
// backend did not report usage. Estimates feed metrics and persisted turn
// metadata only; they are never billed.
package tokens

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// Estimator counts tokens with a BPE encoding when available and falls
// back to a rune heuristic when the encoding cannot be loaded (the
// tiktoken dictionaries are fetched lazily and may be unavailable offline).
type Estimator struct {
	once     sync.Once
	encoding *tiktoken.Tiktoken
}

// NewEstimator creates an estimator. Loading the encoding is deferred to
// the first Count call.
func NewEstimator() *Estimator {
	return &Estimator{}
}

// Count returns the estimated token count of text.
func (e *Estimator) Count(text string) int {
	if text == "" {
		return 0
	}

	e.once.Do(func() {
		enc, err := tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
		if err == nil {
			e.encoding = enc
		}
	})

	if e.encoding != nil {
		return len(e.encoding.Encode(text, nil, nil))
	}
	return heuristicCount(text)
}

// heuristicCount approximates one token per four runes, minimum one for
// non-empty text. Close enough for dashboards.
func heuristicCount(text string) int {
	n := utf8.RuneCountInString(text)
	count := n / 4
	if count == 0 {
		count = 1
	}
	return count
}
