package server

import (
	"fmt"
	"math"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/billdonner/card-engine/pkg/store"
)

type decksListOut struct {
	Decks []store.Deck `json:"decks"`
	Total int          `json:"total"`
}

func (s *Server) handleListDecks(w http.ResponseWriter, r *http.Request) {
	f := store.DeckFilter{
		Kind:   r.URL.Query().Get("kind"),
		Age:    r.URL.Query().Get("age"),
		Limit:  queryInt(r, "limit", 50, 1, 200),
		Offset: queryInt(r, "offset", 0, 0, math.MaxInt),
	}
	if f.Kind != "" && !store.ValidKind(f.Kind) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid kind: %s", f.Kind))
		return
	}

	decks, total, err := s.db.ListDecks(r.Context(), f)
	if err != nil {
		renderStoreError(w, err, "Deck not found")
		return
	}
	writeJSON(w, http.StatusOK, decksListOut{Decks: decks, Total: total})
}

func (s *Server) handleGetDeck(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "deckID")
	deck, err := s.db.GetDeck(r.Context(), id)
	if err != nil {
		renderStoreError(w, err, fmt.Sprintf("Deck %s not found", id))
		return
	}
	writeJSON(w, http.StatusOK, deck)
}
