package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/billdonner/card-engine/pkg/family"
	"github.com/billdonner/card-engine/pkg/store"
)

type createFamilyIn struct {
	Name string `json:"name"`
}

type createPersonIn struct {
	Name        string  `json:"name"`
	Nickname    *string `json:"nickname"`
	MaidenName  *string `json:"maiden_name"`
	Born        *int    `json:"born"`
	Status      string  `json:"status"`
	Gender      *string `json:"gender"`
	Notes       *string `json:"notes"`
	Player      bool    `json:"player"`
	Placeholder bool    `json:"placeholder"`
	PhotoURL    *string `json:"photo_url"`
}

type updatePersonIn struct {
	Name        *string `json:"name"`
	Nickname    *string `json:"nickname"`
	MaidenName  *string `json:"maiden_name"`
	Born        *int    `json:"born"`
	Status      *string `json:"status"`
	Gender      *string `json:"gender"`
	Notes       *string `json:"notes"`
	Player      *bool   `json:"player"`
	Placeholder *bool   `json:"placeholder"`
	PhotoURL    *string `json:"photo_url"`
}

type createRelationshipIn struct {
	Type      string  `json:"type"`
	FromID    string  `json:"from_id"`
	ToID      string  `json:"to_id"`
	Year      *int    `json:"year"`
	Ended     bool    `json:"ended"`
	EndReason *string `json:"end_reason"`
	Notes     *string `json:"notes"`
}

type openItemOut struct {
	PersonID string   `json:"person_id"`
	Name     string   `json:"name"`
	Issues   []string `json:"issues"`
}

type openItemsOut struct {
	Items []openItemOut `json:"items"`
	Total int           `json:"total"`
}

type chatIn struct {
	Message string `json:"message"`
}

type chatOut struct {
	Reply          string            `json:"reply"`
	PatchesApplied int               `json:"patches_applied"`
	Tree           *store.FamilyTree `json:"tree"`
}

type generateIn struct {
	Kinds []string `json:"kinds"`
}

type generateOut struct {
	DeckIDs      []string `json:"deck_ids"`
	CardsCreated int      `json:"cards_created"`
	PlayerName   string   `json:"player_name"`
}

type generatedDeckOut struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Kind      string    `json:"kind"`
	CardCount int       `json:"card_count"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Server) handleCreateFamily(w http.ResponseWriter, r *http.Request) {
	var in createFamilyIn
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if in.Name == "" {
		writeError(w, http.StatusBadRequest, "Name is required")
		return
	}

	fam, err := s.db.CreateFamily(r.Context(), in.Name)
	if err != nil {
		renderStoreError(w, err, "Family not found")
		return
	}
	writeJSON(w, http.StatusCreated, fam)
}

func (s *Server) handleListFamilies(w http.ResponseWriter, r *http.Request) {
	families, err := s.db.ListFamilies(r.Context())
	if err != nil {
		renderStoreError(w, err, "Family not found")
		return
	}
	writeJSON(w, http.StatusOK, families)
}

// handleFamilyTree serves both GET /family/{id} and /family/{id}/tree.
func (s *Server) handleFamilyTree(w http.ResponseWriter, r *http.Request) {
	tree, err := s.db.FamilySnapshot(r.Context(), chi.URLParam(r, "familyID"))
	if err != nil {
		renderStoreError(w, err, "Family not found")
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

func (s *Server) handleDeleteFamily(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.db.DeleteFamily(r.Context(), chi.URLParam(r, "familyID"))
	if err != nil {
		renderStoreError(w, err, "Family not found")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "Family not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleCreatePerson(w http.ResponseWriter, r *http.Request) {
	familyID := chi.URLParam(r, "familyID")

	var in createPersonIn
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if in.Name == "" {
		writeError(w, http.StatusBadRequest, "Name is required")
		return
	}
	if in.Status == "" {
		in.Status = store.StatusLiving
	}
	if !store.ValidPersonStatus(in.Status) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid status: %s", in.Status))
		return
	}

	if _, err := s.db.GetFamily(r.Context(), familyID); err != nil {
		renderStoreError(w, err, "Family not found")
		return
	}

	person, err := s.db.CreatePerson(r.Context(), familyID, store.PersonInput{
		Name:        in.Name,
		Nickname:    in.Nickname,
		MaidenName:  in.MaidenName,
		Born:        in.Born,
		Status:      in.Status,
		Gender:      in.Gender,
		Player:      in.Player,
		Placeholder: in.Placeholder,
		PhotoURL:    in.PhotoURL,
		Notes:       in.Notes,
	})
	if err != nil {
		renderStoreError(w, err, "Family not found")
		return
	}
	writeJSON(w, http.StatusCreated, person)
}

func (s *Server) handleUpdatePerson(w http.ResponseWriter, r *http.Request) {
	var in updatePersonIn
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if in.Status != nil && !store.ValidPersonStatus(*in.Status) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid status: %s", *in.Status))
		return
	}

	person, err := s.db.UpdatePerson(r.Context(), chi.URLParam(r, "familyID"), chi.URLParam(r, "personID"), store.PersonPatch{
		Name:        in.Name,
		Nickname:    in.Nickname,
		MaidenName:  in.MaidenName,
		Born:        in.Born,
		Status:      in.Status,
		Gender:      in.Gender,
		Player:      in.Player,
		Placeholder: in.Placeholder,
		PhotoURL:    in.PhotoURL,
		Notes:       in.Notes,
	})
	if err != nil {
		renderStoreError(w, err, "Person not found")
		return
	}
	writeJSON(w, http.StatusOK, person)
}

func (s *Server) handleDeletePerson(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.db.DeletePerson(r.Context(), chi.URLParam(r, "familyID"), chi.URLParam(r, "personID"))
	if err != nil {
		renderStoreError(w, err, "Person not found")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "Person not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleCreateRelationship(w http.ResponseWriter, r *http.Request) {
	familyID := chi.URLParam(r, "familyID")

	var in createRelationshipIn
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if !store.ValidRelationshipType(in.Type) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid relationship type: %s", in.Type))
		return
	}

	if _, err := s.db.GetFamily(r.Context(), familyID); err != nil {
		renderStoreError(w, err, "Family not found")
		return
	}
	// Both endpoints must already be members of this family.
	for _, personID := range []string{in.FromID, in.ToID} {
		if _, err := s.db.GetPerson(r.Context(), familyID, personID); err != nil {
			renderStoreError(w, err, "Person not found in this family")
			return
		}
	}

	rel, err := s.db.CreateRelationship(r.Context(), familyID, store.RelationshipInput{
		Type:      in.Type,
		From:      in.FromID,
		To:        in.ToID,
		Year:      in.Year,
		Ended:     in.Ended,
		EndReason: in.EndReason,
		Notes:     in.Notes,
	})
	if err != nil {
		renderStoreError(w, err, "Family not found")
		return
	}
	writeJSON(w, http.StatusCreated, rel)
}

func (s *Server) handleDeleteRelationship(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.db.DeleteRelationship(r.Context(), chi.URLParam(r, "familyID"), chi.URLParam(r, "relID"))
	if err != nil {
		renderStoreError(w, err, "Relationship not found")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "Relationship not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handlePlayers(w http.ResponseWriter, r *http.Request) {
	people, err := s.db.ListPeople(r.Context(), chi.URLParam(r, "familyID"))
	if err != nil {
		renderStoreError(w, err, "Family not found")
		return
	}
	players := []store.Person{}
	for _, p := range people {
		if p.Player {
			players = append(players, p)
		}
	}
	writeJSON(w, http.StatusOK, players)
}

// handleOpenItems reports data-quality gaps per person: placeholders,
// missing birth years, and people no relationship mentions.
func (s *Server) handleOpenItems(w http.ResponseWriter, r *http.Request) {
	familyID := chi.URLParam(r, "familyID")

	people, err := s.db.ListPeople(r.Context(), familyID)
	if err != nil {
		renderStoreError(w, err, "Family not found")
		return
	}
	rels, err := s.db.ListRelationships(r.Context(), familyID)
	if err != nil {
		renderStoreError(w, err, "Family not found")
		return
	}

	linked := map[string]bool{}
	for _, rel := range rels {
		linked[rel.From] = true
		linked[rel.To] = true
	}

	items := []openItemOut{}
	for _, p := range people {
		var issues []string
		if p.Placeholder {
			issues = append(issues, "placeholder — needs more details")
		}
		if p.Born == nil {
			issues = append(issues, "missing birth year")
		}
		if !linked[p.ID] {
			issues = append(issues, "no relationships defined")
		}
		if len(issues) > 0 {
			items = append(items, openItemOut{PersonID: p.ID, Name: p.Name, Issues: issues})
		}
	}
	writeJSON(w, http.StatusOK, openItemsOut{Items: items, Total: len(items)})
}

// handleChat runs one turn of the conversational tree builder: ask the
// model, apply whatever patches it proposed, persist the exchange, and
// return the refreshed tree.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	familyID := chi.URLParam(r, "familyID")

	var in chatIn
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if in.Message == "" {
		writeError(w, http.StatusBadRequest, "Message is required")
		return
	}

	snapshot, err := s.db.FamilySnapshot(r.Context(), familyID)
	if err != nil {
		renderStoreError(w, err, "Family not found")
		return
	}
	session, err := s.db.GetOrCreateChatSession(r.Context(), familyID)
	if err != nil {
		renderStoreError(w, err, "Family not found")
		return
	}

	result := s.chat.Ask(r.Context(), in.Message, snapshot.People, snapshot.Relationships, session.Messages)

	applied := 0
	for _, patch := range result.Patches {
		ok, err := family.ApplyPatch(r.Context(), s.db, familyID, patch)
		if err != nil {
			slog.Warn("failed to apply chat patch", "error", err)
			continue
		}
		if ok {
			applied++
		}
	}

	if err := s.db.AppendChatMessage(r.Context(), session.ID, "user", in.Message); err != nil {
		slog.Error("failed to append chat message", "error", err)
	}
	if err := s.db.AppendChatMessage(r.Context(), session.ID, "assistant", result.Reply); err != nil {
		slog.Error("failed to append chat message", "error", err)
	}

	tree, err := s.db.FamilySnapshot(r.Context(), familyID)
	if err != nil {
		renderStoreError(w, err, "Family not found")
		return
	}
	writeJSON(w, http.StatusOK, chatOut{
		Reply:          result.Reply,
		PatchesApplied: applied,
		Tree:           tree,
	})
}

func (s *Server) handleGenerateDecks(w http.ResponseWriter, r *http.Request) {
	familyID := chi.URLParam(r, "familyID")
	playerID := chi.URLParam(r, "playerID")

	// The kinds body is optional; an empty request means both kinds.
	var in generateIn
	if err := decodeJSON(r, &in); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	snapshot, err := s.db.FamilySnapshot(r.Context(), familyID)
	if err != nil {
		renderStoreError(w, err, "Family not found")
		return
	}

	var player *store.Person
	for i := range snapshot.People {
		if snapshot.People[i].ID == playerID {
			player = &snapshot.People[i]
			break
		}
	}
	if player == nil {
		writeError(w, http.StatusNotFound, "Player not found in this family")
		return
	}
	if !player.Player {
		writeError(w, http.StatusBadRequest, "Person is not marked as a player")
		return
	}

	deckIDs, cards, err := family.GenerateDecks(r.Context(), s.db, familyID, playerID,
		snapshot.People, snapshot.Relationships, in.Kinds)
	if err != nil {
		slog.Error("deck generation failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if deckIDs == nil {
		deckIDs = []string{}
	}
	writeJSON(w, http.StatusOK, generateOut{
		DeckIDs:      deckIDs,
		CardsCreated: cards,
		PlayerName:   player.Name,
	})
}

func (s *Server) handleGeneratedDecks(w http.ResponseWriter, r *http.Request) {
	rows, err := s.db.ListGeneratedDecks(r.Context(), chi.URLParam(r, "familyID"), chi.URLParam(r, "playerID"))
	if err != nil {
		renderStoreError(w, err, "Family not found")
		return
	}
	decks := make([]generatedDeckOut, 0, len(rows))
	for _, row := range rows {
		decks = append(decks, generatedDeckOut{
			ID:        row.ID,
			Title:     row.Title,
			Kind:      row.Kind,
			CardCount: row.CardCount,
			CreatedAt: row.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, decks)
}
