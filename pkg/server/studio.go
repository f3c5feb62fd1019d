package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/billdonner/card-engine/pkg/store"
)

type createDeckIn struct {
	Title      string         `json:"title"`
	Kind       string         `json:"kind"`
	Tier       string         `json:"tier"`
	Properties map[string]any `json:"properties"`
}

type updateDeckIn struct {
	Title      *string        `json:"title"`
	Properties map[string]any `json:"properties"`
}

type createCardIn struct {
	Question   string         `json:"question"`
	Properties map[string]any `json:"properties"`
	Difficulty string         `json:"difficulty"`
}

type updateCardIn struct {
	Question   *string        `json:"question"`
	Properties map[string]any `json:"properties"`
	Difficulty *string        `json:"difficulty"`
}

type reorderCardsIn struct {
	CardIDs []string `json:"card_ids"`
}

type searchOut struct {
	Results []store.SearchResult `json:"results"`
	Total   int                  `json:"total"`
}

func (s *Server) handleCreateDeck(w http.ResponseWriter, r *http.Request) {
	var in createDeckIn
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if in.Title == "" {
		writeError(w, http.StatusBadRequest, "Title is required")
		return
	}
	if !store.ValidKind(in.Kind) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid kind: %s", in.Kind))
		return
	}
	if in.Tier != "" && !store.ValidTier(in.Tier) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid tier: %s", in.Tier))
		return
	}

	deck, err := s.db.CreateDeck(r.Context(), in.Title, in.Kind, in.Tier, in.Properties)
	if err != nil {
		renderStoreError(w, err, "Deck not found")
		return
	}
	writeJSON(w, http.StatusCreated, deck)
}

func (s *Server) handleUpdateDeck(w http.ResponseWriter, r *http.Request) {
	var in updateDeckIn
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	deck, err := s.db.UpdateDeck(r.Context(), chi.URLParam(r, "deckID"), in.Title, in.Properties)
	if err != nil {
		renderStoreError(w, err, "Deck not found")
		return
	}
	writeJSON(w, http.StatusOK, deck)
}

func (s *Server) handlePublishDeck(w http.ResponseWriter, r *http.Request) {
	s.setDeckStatus(w, r, store.DeckStatusPublished)
}

func (s *Server) handleUnpublishDeck(w http.ResponseWriter, r *http.Request) {
	s.setDeckStatus(w, r, store.DeckStatusDraft)
}

func (s *Server) setDeckStatus(w http.ResponseWriter, r *http.Request, status string) {
	deck, err := s.db.SetDeckStatus(r.Context(), chi.URLParam(r, "deckID"), status)
	if err != nil {
		renderStoreError(w, err, "Deck not found")
		return
	}
	writeJSON(w, http.StatusOK, deck)
}

func (s *Server) handleDeleteDeck(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.db.DeleteDeck(r.Context(), chi.URLParam(r, "deckID"))
	if err != nil {
		renderStoreError(w, err, "Deck not found")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "Deck not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleCreateCard(w http.ResponseWriter, r *http.Request) {
	deckID := chi.URLParam(r, "deckID")

	var in createCardIn
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if in.Question == "" {
		writeError(w, http.StatusBadRequest, "Question is required")
		return
	}
	if in.Difficulty == "" {
		in.Difficulty = store.DifficultyMedium
	}
	if !store.ValidDifficulty(in.Difficulty) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid difficulty: %s", in.Difficulty))
		return
	}

	if _, err := s.db.GetDeck(r.Context(), deckID); err != nil {
		renderStoreError(w, err, "Deck not found")
		return
	}

	card, err := s.db.CreateCard(r.Context(), deckID, store.NewCard{
		Question:   in.Question,
		Properties: in.Properties,
		Difficulty: in.Difficulty,
	})
	if err != nil {
		renderStoreError(w, err, "Deck not found")
		return
	}
	writeJSON(w, http.StatusCreated, card)
}

func (s *Server) handleUpdateCard(w http.ResponseWriter, r *http.Request) {
	deckID := chi.URLParam(r, "deckID")
	cardID := chi.URLParam(r, "cardID")

	var in updateCardIn
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if in.Difficulty != nil && !store.ValidDifficulty(*in.Difficulty) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid difficulty: %s", *in.Difficulty))
		return
	}

	// Check deck membership before touching the row, so a cross-deck
	// request cannot modify anything.
	card, err := s.db.GetCard(r.Context(), cardID)
	if err != nil {
		renderStoreError(w, err, "Card not found")
		return
	}
	if card.DeckID != deckID {
		writeError(w, http.StatusNotFound, "Card not found in this deck")
		return
	}

	updated, err := s.db.UpdateCard(r.Context(), cardID, in.Question, in.Properties, in.Difficulty)
	if err != nil {
		renderStoreError(w, err, "Card not found")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteCard(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.db.DeleteCard(r.Context(), chi.URLParam(r, "deckID"), chi.URLParam(r, "cardID"))
	if err != nil {
		renderStoreError(w, err, "Card not found")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "Card not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleReorderCards(w http.ResponseWriter, r *http.Request) {
	deckID := chi.URLParam(r, "deckID")

	var in reorderCardsIn
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	deck, err := s.db.GetDeck(r.Context(), deckID)
	if err != nil {
		renderStoreError(w, err, "Deck not found")
		return
	}

	cards, err := s.db.ReorderCards(r.Context(), deckID, in.CardIDs)
	if err != nil {
		if errors.Is(err, store.ErrCardDeckMismatch) {
			writeError(w, http.StatusBadRequest, "Card ids do not match deck")
			return
		}
		renderStoreError(w, err, "Deck not found")
		return
	}
	writeJSON(w, http.StatusOK, store.DeckWithCards{Deck: deck.Deck, Cards: cards})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, "Query parameter q is required")
		return
	}
	limit := queryInt(r, "limit", 20, 1, 100)

	results, total, err := s.db.SearchCards(r.Context(), q, limit)
	if err != nil {
		renderStoreError(w, err, "Card not found")
		return
	}
	writeJSON(w, http.StatusOK, searchOut{Results: results, Total: total})
}
