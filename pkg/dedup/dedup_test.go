package dedup

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billdonner/card-engine/pkg/store"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"What is the capital of France?", "what is the capital of france"},
		{"  Padded with spaces  ", "padded with spaces"},
		{"Mix3d CASE & sym-bols!", "mix3d case  symbols"},
		{"", ""},
		{"???", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalize(tt.in), tt.in)
	}
}

func TestSignatureIgnoresFormatting(t *testing.T) {
	a := signature("What is the capital of France?", "Paris")
	b := signature("what is the capital of FRANCE", "  paris! ")
	assert.Equal(t, a, b)
}

func TestRegisterThenDuplicate(t *testing.T) {
	f := New(0)
	assert.False(t, f.IsDuplicate("Who painted the Mona Lisa?", "Leonardo da Vinci"))

	f.Register("Who painted the Mona Lisa?", "Leonardo da Vinci", "card-1")
	assert.True(t, f.IsDuplicate("Who painted the Mona Lisa?", "Leonardo da Vinci"))
	assert.True(t, f.IsDuplicate("who painted the mona lisa", "LEONARDO DA VINCI"))
}

func TestRegisterSkipsKnownSignature(t *testing.T) {
	f := New(0)
	f.Register("Who wrote Hamlet?", "Shakespeare", "card-1")
	f.Register("Who wrote Hamlet?", "Shakespeare", "card-2")
	assert.Equal(t, 1, f.Len())
}

func TestSameQuestionDifferentAnswerIsSimilar(t *testing.T) {
	f := New(0)
	f.Register("Which planet is known as the red planet?", "Mars", "card-1")
	// Signature differs but the question token sets are identical.
	assert.True(t, f.IsDuplicate("Which planet is known as the red planet?", "Jupiter"))
}

const baseQuestion = "alpha bravo charlie delta echo foxtrot golf hotel india juliett kilo lima mike november oscar papa quebec romeo sierra tango"

func TestNearDuplicateDetection(t *testing.T) {
	f := New(0)
	f.Register(baseQuestion, "x", "card-1")

	// One of twenty tokens replaced: 19/21 ≈ 0.90, above threshold.
	near := "alpha bravo charlie delta echo foxtrot golf hotel india juliett kilo lima mike november oscar papa quebec romeo sierra uniform"
	assert.True(t, f.IsDuplicate(near, "y"))

	// Five of twenty replaced: 15/25 = 0.60, below threshold.
	far := "alpha bravo charlie delta echo foxtrot golf hotel india juliett kilo lima mike november oscar uniform victor whiskey xray yankee"
	assert.False(t, f.IsDuplicate(far, "y"))
}

func TestEvictionDropsOldestQuarter(t *testing.T) {
	f := New(8)
	for i := 0; i < 8; i++ {
		f.Register(fmt.Sprintf("unique question number %d about topic %d", i, i), "answer", fmt.Sprintf("card-%d", i))
	}
	assert.Equal(t, 8, f.Len())

	// The ninth registration evicts the oldest two entries first.
	f.Register("a brand new ninth question entirely", "answer", "card-8")
	assert.Equal(t, 7, f.Len())

	assert.False(t, f.IsDuplicate("unique question number 0 about topic 0", "answer"))
	assert.False(t, f.IsDuplicate("unique question number 1 about topic 1", "answer"))
	assert.True(t, f.IsDuplicate("unique question number 7 about topic 7", "answer"))
	assert.True(t, f.IsDuplicate("a brand new ninth question entirely", "answer"))
}

func TestCorrectAnswer(t *testing.T) {
	props := map[string]any{
		"choices": []any{
			map[string]any{"text": "Mars", "isCorrect": false},
			map[string]any{"text": "Venus", "isCorrect": true},
		},
		"correct_index": float64(1),
	}
	assert.Equal(t, "Venus", CorrectAnswer(props))
	assert.Equal(t, "", CorrectAnswer(map[string]any{}))
	assert.Equal(t, "", CorrectAnswer(map[string]any{"choices": []any{}, "correct_index": float64(2)}))
}

type stubLister struct {
	cards []store.Card
}

func (s *stubLister) ListRecentTriviaCards(_ context.Context, limit int) ([]store.Card, error) {
	if len(s.cards) > limit {
		return s.cards[:limit], nil
	}
	return s.cards, nil
}

func TestWarmRegistersExistingCards(t *testing.T) {
	lister := &stubLister{cards: []store.Card{
		{
			ID:       "card-1",
			Question: "What is the tallest mountain on Earth?",
			Properties: map[string]any{
				"choices": []any{
					map[string]any{"text": "Everest", "isCorrect": true},
					map[string]any{"text": "K2", "isCorrect": false},
				},
				"correct_index": float64(0),
			},
		},
	}}

	f := New(0)
	loaded, err := f.Warm(context.Background(), lister)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded)
	assert.True(t, f.IsDuplicate("What is the tallest mountain on Earth?", "Everest"))
}
