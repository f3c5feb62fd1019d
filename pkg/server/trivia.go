package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/billdonner/card-engine/pkg/store"
)

// challengeOut is the trivia app's wire format for one question.
type challengeOut struct {
	ID          string   `json:"id"`
	Topic       string   `json:"topic"`
	Pic         string   `json:"pic"`
	Question    string   `json:"question"`
	Answers     []string `json:"answers"`
	Correct     string   `json:"correct"`
	Explanation string   `json:"explanation"`
	Hint        string   `json:"hint"`
	AISource    string   `json:"aisource"`
	Date        string   `json:"date"`
}

type gameDataOut struct {
	ID         string         `json:"id"`
	Generated  string         `json:"generated"`
	Challenges []challengeOut `json:"challenges"`
}

type categoryOut struct {
	Name  string `json:"name"`
	Pic   string `json:"pic"`
	Count int    `json:"count"`
}

type categoriesOut struct {
	Categories []categoryOut `json:"categories"`
	Total      int           `json:"total"`
}

// choiceTexts flattens a stored choices value into its display texts.
// JSONB round-trips deliver []any of objects; cards that never left the
// process may still hold typed choices.
func choiceTexts(v any) []string {
	switch choices := v.(type) {
	case []any:
		texts := make([]string, 0, len(choices))
		for _, c := range choices {
			if m, ok := c.(map[string]any); ok {
				text, _ := m["text"].(string)
				texts = append(texts, text)
				continue
			}
			texts = append(texts, fmt.Sprintf("%v", c))
		}
		return texts
	case []store.Choice:
		texts := make([]string, 0, len(choices))
		for _, c := range choices {
			texts = append(texts, c.Text)
		}
		return texts
	}
	return []string{}
}

func intProp(props map[string]any, key string) int {
	switch v := props[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

// handleGameData bulk-exports all trivia content in the challenge
// format the trivia app consumes.
func (s *Server) handleGameData(w http.ResponseWriter, r *http.Request) {
	decks, err := s.db.GetAllDecksWithCards(r.Context(), store.KindTrivia)
	if err != nil {
		renderStoreError(w, err, "Deck not found")
		return
	}

	challenges := []challengeOut{}
	for _, d := range decks {
		pic := stringProp(d.Properties, "pic")
		if pic == "" {
			pic = "questionmark.circle"
		}
		for _, c := range d.Cards {
			answers := choiceTexts(c.Properties["choices"])
			correct := ""
			if idx := intProp(c.Properties, "correct_index"); idx >= 0 && idx < len(answers) {
				correct = answers[idx]
			}
			aisource := stringProp(c.Properties, "aisource")
			if aisource == "" {
				aisource = "card-engine"
			}
			date := ""
			if c.SourceDate != nil {
				date = c.SourceDate.Format(time.RFC3339)
			}

			challenges = append(challenges, challengeOut{
				ID:          c.ID,
				Topic:       d.Title,
				Pic:         pic,
				Question:    c.Question,
				Answers:     answers,
				Correct:     correct,
				Explanation: stringProp(c.Properties, "explanation"),
				Hint:        stringProp(c.Properties, "hint"),
				AISource:    aisource,
				Date:        date,
			})
		}
	}

	writeJSON(w, http.StatusOK, gameDataOut{
		ID:         uuid.NewString(),
		Generated:  time.Now().UTC().Format(time.RFC3339),
		Challenges: challenges,
	})
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	rows, err := s.db.GetCategoriesWithCounts(r.Context())
	if err != nil {
		renderStoreError(w, err, "Categories not found")
		return
	}
	categories := make([]categoryOut, 0, len(rows))
	for _, row := range rows {
		categories = append(categories, categoryOut{
			Name:  row.Name,
			Pic:   row.Pic,
			Count: row.CardCount,
		})
	}
	writeJSON(w, http.StatusOK, categoriesOut{Categories: categories, Total: len(categories)})
}
