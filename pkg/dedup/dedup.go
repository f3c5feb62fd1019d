// Package dedup keeps near-duplicate trivia questions out of the store.
// It tracks an in-memory cache of recently seen questions and flags a
// candidate when its exact signature was seen before or when its token
// set overlaps a recent question beyond a similarity threshold.
package dedup

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/billdonner/card-engine/pkg/store"
)

const (
	// DefaultMaxCache bounds the in-memory entry cache.
	DefaultMaxCache = 10000

	// recentWindow is how many of the newest entries participate in
	// similarity comparison.
	recentWindow = 1000

	// similarityThreshold is the Jaccard score at or above which two
	// questions count as duplicates.
	similarityThreshold = 0.85
)

var nonAlnumPattern = regexp.MustCompile(`[^a-z0-9 ]`)

type entry struct {
	cardID    string
	signature string
	tokens    map[string]struct{}
}

// CardLister loads the newest trivia cards for warm-start.
type CardLister interface {
	ListRecentTriviaCards(ctx context.Context, limit int) ([]store.Card, error)
}

// Filter is a bounded duplicate detector. Safe for concurrent use.
// Filter state is per-process; a restart warms from the store again.
type Filter struct {
	mu         sync.Mutex
	entries    []entry
	signatures map[string]string
	maxCache   int
}

// New creates a filter. maxCache <= 0 selects DefaultMaxCache.
func New(maxCache int) *Filter {
	if maxCache <= 0 {
		maxCache = DefaultMaxCache
	}
	return &Filter{
		signatures: make(map[string]string),
		maxCache:   maxCache,
	}
}

// normalize lowercases, trims, and strips everything but letters,
// digits and spaces.
func normalize(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	return nonAlnumPattern.ReplaceAllString(s, "")
}

// signature is the exact-match key for a question/answer pair.
func signature(question, answer string) string {
	return normalize(question) + "|" + normalize(answer)
}

func tokenSet(s string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, tok := range strings.Fields(normalize(s)) {
		tokens[tok] = struct{}{}
	}
	return tokens
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}

// IsDuplicate reports whether the pair matches a cached entry, either
// by exact signature or by question similarity against the most recent
// entries.
func (f *Filter) IsDuplicate(question, answer string) bool {
	sig := signature(question, answer)
	tokens := tokenSet(question)

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.signatures[sig]; ok {
		return true
	}

	start := 0
	if len(f.entries) > recentWindow {
		start = len(f.entries) - recentWindow
	}
	for _, e := range f.entries[start:] {
		if jaccard(tokens, e.tokens) >= similarityThreshold {
			return true
		}
	}
	return false
}

// Register records a pair under its card id. Pairs whose signature is
// already cached are not re-inserted. When the cache is full the oldest
// quarter of entries is evicted first.
func (f *Filter) Register(question, answer, cardID string) {
	sig := signature(question, answer)

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.signatures[sig]; ok {
		return
	}
	f.entries = append(f.entries, entry{cardID: cardID, signature: sig, tokens: tokenSet(question)})
	f.signatures[sig] = cardID
	if len(f.entries) > f.maxCache {
		f.evictLocked()
	}
}

// evictLocked drops the oldest quarter of the cache ceiling and
// rebuilds the signature map from what remains.
func (f *Filter) evictLocked() {
	drop := f.maxCache / 4
	if drop < 1 {
		drop = 1
	}
	f.entries = append([]entry(nil), f.entries[drop:]...)
	f.signatures = make(map[string]string, len(f.entries))
	for _, e := range f.entries {
		f.signatures[e.signature] = e.cardID
	}
}

// Warm seeds the filter with the newest trivia cards already in the
// store, up to the cache ceiling. Returns how many cards were loaded.
func (f *Filter) Warm(ctx context.Context, cards CardLister) (int, error) {
	recent, err := cards.ListRecentTriviaCards(ctx, f.maxCache)
	if err != nil {
		return 0, fmt.Errorf("failed to warm dedup cache: %w", err)
	}
	for _, c := range recent {
		f.Register(c.Question, CorrectAnswer(c.Properties), c.ID)
	}
	return len(recent), nil
}

// CorrectAnswer extracts the correct choice text from a trivia card's
// property bag. Returns empty when the bag has no usable choices.
func CorrectAnswer(props map[string]any) string {
	choices, ok := props["choices"].([]any)
	if !ok {
		return ""
	}
	index := 0
	switch v := props["correct_index"].(type) {
	case float64:
		index = int(v)
	case int:
		index = v
	}
	if index < 0 || index >= len(choices) {
		return ""
	}
	choice, ok := choices[index].(map[string]any)
	if !ok {
		return ""
	}
	text, _ := choice["text"].(string)
	return text
}

// Len returns the number of cached entries.
func (f *Filter) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}
