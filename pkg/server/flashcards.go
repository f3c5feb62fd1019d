package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/billdonner/card-engine/pkg/store"
)

// Flashcard responses keep the shape the kid-facing app shipped with:
// a deck is a "topic" and a card is a bare question/answer pair.

type flashcardCardOut struct {
	Position int    `json:"position"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type flashcardDeckOut struct {
	ID        string             `json:"id"`
	Topic     string             `json:"topic"`
	AgeRange  string             `json:"age_range"`
	Voice     *string            `json:"voice"`
	CardCount int                `json:"card_count"`
	CreatedAt time.Time          `json:"created_at"`
	Cards     []flashcardCardOut `json:"cards"`
}

type flashcardsOut struct {
	Decks []flashcardDeckOut `json:"decks"`
	Total int                `json:"total"`
}

func flashcardDeck(d store.DeckWithCards) flashcardDeckOut {
	out := flashcardDeckOut{
		ID:        d.ID,
		Topic:     d.Title,
		AgeRange:  stringProp(d.Properties, "age_range"),
		CardCount: d.CardCount,
		CreatedAt: d.CreatedAt,
		Cards:     make([]flashcardCardOut, 0, len(d.Cards)),
	}
	if voice, ok := d.Properties["voice"].(string); ok {
		out.Voice = &voice
	}
	for _, c := range d.Cards {
		out.Cards = append(out.Cards, flashcardCardOut{
			Position: c.Position,
			Question: c.Question,
			Answer:   stringProp(c.Properties, "answer"),
		})
	}
	return out
}

// handleListFlashcardDecks bulk-fetches every flashcard deck with its
// cards in one call, so clients do not issue one request per deck.
func (s *Server) handleListFlashcardDecks(w http.ResponseWriter, r *http.Request) {
	rows, err := s.db.GetAllDecksWithCards(r.Context(), store.KindFlashcard)
	if err != nil {
		renderStoreError(w, err, "Deck not found")
		return
	}
	decks := make([]flashcardDeckOut, 0, len(rows))
	for _, d := range rows {
		decks = append(decks, flashcardDeck(d))
	}
	writeJSON(w, http.StatusOK, flashcardsOut{Decks: decks, Total: len(decks)})
}

func (s *Server) handleGetFlashcardDeck(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "deckID")
	deck, err := s.db.GetDeck(r.Context(), id)
	if err != nil {
		renderStoreError(w, err, fmt.Sprintf("Deck %s not found", id))
		return
	}
	if deck.Kind != store.KindFlashcard {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Deck %s is not a flashcard deck", id))
		return
	}
	writeJSON(w, http.StatusOK, flashcardDeck(*deck))
}
