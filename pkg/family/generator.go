package family

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/billdonner/card-engine/pkg/store"
)

// DeckWriter is the slice of the store deck generation writes through.
type DeckWriter interface {
	CreateDeck(ctx context.Context, title, kind, tier string, properties map[string]any) (*store.Deck, error)
	CreateCard(ctx context.Context, deckID string, in store.NewCard) (*store.Card, error)
}

// FlashcardPrompt is one question/answer pair before persistence.
type FlashcardPrompt struct {
	Question   string
	Answer     string
	Difficulty int
}

// TriviaCard is one generated multiple-choice card before persistence.
type TriviaCard struct {
	Question     string
	Choices      []store.Choice
	CorrectIndex int
	Explanation  string
	Hint         string
	Difficulty   string
}

// displayName prefers the nickname, which reads more naturally for kids.
func displayName(p Person) string {
	if p.Nickname != "" {
		return p.Nickname
	}
	return p.Name
}

var labelGroups = map[string]string{
	"father": "parent", "mother": "parent",
	"brother": "sibling", "sister": "sibling",
	"grandfather": "grandparent", "grandmother": "grandparent",
	"great-grandfather": "great-grandparent", "great-grandmother": "great-grandparent",
	"uncle": "aunt/uncle", "aunt": "aunt/uncle",
	"uncle (by marriage)": "aunt/uncle", "aunt (by marriage)": "aunt/uncle",
	"great-uncle": "great-aunt/uncle", "great-aunt": "great-aunt/uncle",
	"husband": "spouse", "wife": "spouse",
}

// baseLabel strips the side prefix and maps gendered labels onto their
// neutral group so counting questions can aggregate across them.
func baseLabel(label string) string {
	stripped := label
	for _, prefix := range []string{"paternal ", "maternal "} {
		if rest, ok := strings.CutPrefix(stripped, prefix); ok {
			stripped = rest
			break
		}
	}
	if group, ok := labelGroups[stripped]; ok {
		return group
	}
	return stripped
}

var difficultyWords = map[int]string{
	1: store.DifficultyEasy,
	2: store.DifficultyMedium,
	3: store.DifficultyHard,
	4: store.DifficultyHard,
}

func difficultyWord(d int) string {
	if word, ok := difficultyWords[d]; ok {
		return word
	}
	return store.DifficultyMedium
}

func labelCount(all []NamedRelation, label string) int {
	n := 0
	for _, r := range all {
		if r.Label == label {
			n++
		}
	}
	return n
}

// flashcardTemplates expands one relation into its question/answer
// pairs. The person's name appears in the question wherever several
// people could share a label; "Who is your X?" is only emitted when the
// label is unique in the tree.
func flashcardTemplates(rel NamedRelation, all []NamedRelation) []FlashcardPrompt {
	p := rel.Person
	dn := displayName(p)
	var cards []FlashcardPrompt

	cards = append(cards, FlashcardPrompt{
		Question:   fmt.Sprintf("How is %s related to you?", dn),
		Answer:     fmt.Sprintf("Your %s", rel.Label),
		Difficulty: rel.Difficulty,
	})

	if labelCount(all, rel.Label) == 1 {
		cards = append(cards, FlashcardPrompt{
			Question:   fmt.Sprintf("Who is your %s?", rel.Label),
			Answer:     dn,
			Difficulty: rel.Difficulty,
		})
	}

	if p.Nickname != "" {
		easier := max(1, rel.Difficulty-1)
		cards = append(cards,
			FlashcardPrompt{
				Question:   fmt.Sprintf("What is %s's real name?", p.Nickname),
				Answer:     p.Name,
				Difficulty: easier,
			},
			FlashcardPrompt{
				Question:   fmt.Sprintf("What do we call %s in our family?", p.Name),
				Answer:     p.Nickname,
				Difficulty: easier,
			},
		)
	}

	if p.MaidenName != "" {
		cards = append(cards, FlashcardPrompt{
			Question:   fmt.Sprintf("What was %s's last name before getting married?", dn),
			Answer:     p.MaidenName,
			Difficulty: min(rel.Difficulty+1, 4),
		})
	}

	if p.Born != 0 {
		cards = append(cards, FlashcardPrompt{
			Question:   fmt.Sprintf("What year was %s born?", dn),
			Answer:     strconv.Itoa(p.Born),
			Difficulty: min(rel.Difficulty+1, 4),
		})
	}

	return cards
}

// oldestAndYoungest picks the relations with the earliest and latest
// known birth years. Nil when fewer than two have one.
func oldestAndYoungest(group []NamedRelation) (*NamedRelation, *NamedRelation) {
	var born []*NamedRelation
	for i := range group {
		if group[i].Person.Born != 0 {
			born = append(born, &group[i])
		}
	}
	if len(born) < 2 {
		return nil, nil
	}
	oldest, youngest := born[0], born[0]
	for _, r := range born[1:] {
		if r.Person.Born < oldest.Person.Born {
			oldest = r
		}
		if r.Person.Born > youngest.Person.Born {
			youngest = r
		}
	}
	return oldest, youngest
}

// bonusFlashcards builds counting, naming and connection questions
// across the whole relation set.
func bonusFlashcards(all []NamedRelation) []FlashcardPrompt {
	var cards []FlashcardPrompt

	groups := make(map[string][]NamedRelation)
	var order []string
	for _, r := range all {
		base := baseLabel(r.Label)
		if _, ok := groups[base]; !ok {
			order = append(order, base)
		}
		groups[base] = append(groups[base], r)
	}

	for _, base := range order {
		group := groups[base]
		if len(group) < 2 {
			continue
		}
		plural := base + "s"
		if strings.Contains(base, "aunt/uncle") {
			plural = "aunts and uncles"
		}

		cards = append(cards, FlashcardPrompt{
			Question:   fmt.Sprintf("How many %s do you have?", plural),
			Answer:     strconv.Itoa(len(group)),
			Difficulty: 2,
		})
		if len(group) <= 5 {
			names := make([]string, 0, len(group))
			for _, r := range group {
				names = append(names, displayName(r.Person))
			}
			sort.Strings(names)
			cards = append(cards, FlashcardPrompt{
				Question:   fmt.Sprintf("Can you name all your %s?", plural),
				Answer:     strings.Join(names, ", "),
				Difficulty: 3,
			})
		}
	}

	// Siblings born in the same year are twins.
	siblings := groups["sibling"]
	if len(siblings) >= 2 {
		byYear := make(map[int][]NamedRelation)
		var years []int
		for _, r := range siblings {
			if r.Person.Born != 0 {
				if _, ok := byYear[r.Person.Born]; !ok {
					years = append(years, r.Person.Born)
				}
				byYear[r.Person.Born] = append(byYear[r.Person.Born], r)
			}
		}
		for _, year := range years {
			twins := byYear[year]
			if len(twins) >= 2 {
				names := make([]string, 0, len(twins))
				for _, r := range twins {
					names = append(names, displayName(r.Person))
				}
				sort.Strings(names)
				cards = append(cards, FlashcardPrompt{
					Question:   "Who are the twins in your family?",
					Answer:     strings.Join(names, " and "),
					Difficulty: 1,
				})
			}
		}
	}

	if len(siblings) >= 2 {
		oldest, youngest := oldestAndYoungest(siblings)
		if oldest != nil && oldest.Person.ID != youngest.Person.ID {
			cards = append(cards, FlashcardPrompt{
				Question:   "Who is your oldest sibling?",
				Answer:     displayName(oldest.Person),
				Difficulty: 2,
			})
		}
	}

	cousins := groups["cousin"]
	if len(cousins) >= 2 {
		oldest, youngest := oldestAndYoungest(cousins)
		if oldest != nil && oldest.Person.ID != youngest.Person.ID {
			cards = append(cards,
				FlashcardPrompt{
					Question:   "Who is the oldest cousin?",
					Answer:     displayName(oldest.Person),
					Difficulty: 2,
				},
				FlashcardPrompt{
					Question:   "Who is the youngest cousin?",
					Answer:     displayName(youngest.Person),
					Difficulty: 2,
				},
			)
		}
	}

	nicknamed := 0
	for _, r := range all {
		if r.Person.Nickname != "" {
			nicknamed++
		}
	}
	if nicknamed >= 2 {
		cards = append(cards, FlashcardPrompt{
			Question:   "How many family members have special nicknames?",
			Answer:     strconv.Itoa(nicknamed),
			Difficulty: 2,
		})
	}

	cards = append(cards, FlashcardPrompt{
		Question:   "How many relatives are in your family tree?",
		Answer:     strconv.Itoa(len(all)),
		Difficulty: 3,
	})

	return cards
}

// sampleDistractors shuffles the pool minus the correct answer, keeps
// three, and pads with the filler when the pool runs short.
func sampleDistractors(pool []string, correct, filler string) []string {
	options := make([]string, 0, len(pool))
	for _, o := range pool {
		if o != correct {
			options = append(options, o)
		}
	}
	rand.Shuffle(len(options), func(i, j int) {
		options[i], options[j] = options[j], options[i]
	})
	if len(options) > 3 {
		options = options[:3]
	}
	for len(options) < 3 {
		options = append(options, filler)
	}
	return options
}

func makeTrivia(question, answer string, diff int, distractors []string, explanation, hint string) TriviaCard {
	correctIndex := rand.Intn(4)
	answers := append([]string{}, distractors[:3]...)
	answers = slices.Insert(answers, correctIndex, answer)

	choices := make([]store.Choice, len(answers))
	for i, text := range answers {
		choices[i] = store.Choice{Text: text, IsCorrect: i == correctIndex}
	}
	return TriviaCard{
		Question:     question,
		Choices:      choices,
		CorrectIndex: correctIndex,
		Explanation:  explanation,
		Hint:         hint,
		Difficulty:   difficultyWord(diff),
	}
}

// triviaTemplates expands one relation into multiple-choice cards,
// drawing distractors from the other people and labels in the tree.
func triviaTemplates(rel NamedRelation, all []NamedRelation, playerName string) []TriviaCard {
	p := rel.Person
	dn := displayName(p)
	var cards []TriviaCard

	namePool := make([]string, 0, len(all))
	for _, r := range all {
		if r.Person.ID != p.ID {
			namePool = append(namePool, displayName(r.Person))
		}
	}

	labelSet := make(map[string]bool)
	var labels []string
	for _, r := range all {
		if !labelSet[r.Label] {
			labelSet[r.Label] = true
			labels = append(labels, r.Label)
		}
	}

	cards = append(cards, makeTrivia(
		fmt.Sprintf("How is %s related to %s?", dn, playerName),
		rel.Label,
		rel.Difficulty,
		sampleDistractors(labels, rel.Label, "no relation"),
		fmt.Sprintf("%s is %s's %s.", dn, playerName, rel.Label),
		fmt.Sprintf("Think about how %s fits in the family.", dn),
	))

	if labelCount(all, rel.Label) == 1 {
		cards = append(cards, makeTrivia(
			fmt.Sprintf("Who is %s's %s?", playerName, rel.Label),
			dn,
			rel.Difficulty,
			sampleDistractors(namePool, dn, "Not "+dn),
			fmt.Sprintf("%s is %s's %s.", dn, playerName, rel.Label),
			fmt.Sprintf("Think about your %s.", rel.Label),
		))
	}

	if p.Nickname != "" {
		cards = append(cards, makeTrivia(
			fmt.Sprintf("What is %s's real name?", p.Nickname),
			p.Name,
			max(1, rel.Difficulty-1),
			sampleDistractors(namePool, p.Name, "Not "+p.Name),
			fmt.Sprintf("%s's real name is %s.", p.Nickname, p.Name),
			"Think about family nicknames!",
		))
	}

	if p.MaidenName != "" {
		var maidenPool []string
		for _, r := range all {
			if r.Person.ID != p.ID && r.Person.MaidenName != "" {
				maidenPool = append(maidenPool, r.Person.MaidenName)
			}
		}
		var distractors []string
		if len(maidenPool) > 0 {
			distractors = sampleDistractors(maidenPool, p.MaidenName, "Not "+p.MaidenName)
		} else {
			distractors = sampleDistractors(namePool, p.MaidenName, "Not "+p.MaidenName)
		}
		cards = append(cards, makeTrivia(
			fmt.Sprintf("What was %s's last name before getting married?", dn),
			p.MaidenName,
			min(rel.Difficulty+1, 4),
			distractors,
			fmt.Sprintf("%s's maiden name was %s.", dn, p.MaidenName),
			"Think about family names before marriage.",
		))
	}

	return cards
}

func enginePeople(people []store.Person) []Person {
	out := make([]Person, 0, len(people))
	for _, p := range people {
		ep := Person{
			ID:          p.ID,
			Name:        p.Name,
			Status:      p.Status,
			Player:      p.Player,
			Placeholder: p.Placeholder,
		}
		if p.Nickname != nil {
			ep.Nickname = *p.Nickname
		}
		if p.MaidenName != nil {
			ep.MaidenName = *p.MaidenName
		}
		if p.Born != nil {
			ep.Born = *p.Born
		}
		out = append(out, ep)
	}
	return out
}

func engineRelationships(relationships []store.Relationship) []Relationship {
	out := make([]Relationship, 0, len(relationships))
	for _, r := range relationships {
		out = append(out, Relationship{ID: r.ID, Type: r.Type, From: r.From, To: r.To})
	}
	return out
}

// GenerateDecks materialises flashcard and/or trivia decks for a player
// from a family snapshot. Relations to deceased people are skipped.
// Returns the new deck ids and the total number of cards created; an
// empty relation set produces no decks.
func GenerateDecks(ctx context.Context, db DeckWriter, familyID, playerID string,
	people []store.Person, relationships []store.Relationship, kinds []string) ([]string, int, error) {

	if len(kinds) == 0 {
		kinds = []string{store.KindFlashcard, store.KindTrivia}
	}

	graph := NewGraph(enginePeople(people), engineRelationships(relationships))
	relations := graph.ComputeRelations(playerID)

	living := make([]NamedRelation, 0, len(relations))
	for _, r := range relations {
		if r.Person.Status != store.StatusDeceased {
			living = append(living, r)
		}
	}
	if len(living) == 0 {
		return nil, 0, nil
	}

	playerName := "you"
	for _, p := range people {
		if p.ID == playerID {
			playerName = p.Name
			break
		}
	}

	var deckIDs []string
	totalCards := 0

	for _, kind := range kinds {
		if kind != store.KindFlashcard && kind != store.KindTrivia {
			continue
		}

		title := fmt.Sprintf("%s's Family %ss", playerName, strings.ToUpper(kind[:1])+kind[1:])
		deck, err := db.CreateDeck(ctx, title, kind, "", map[string]any{
			"family_id": familyID,
			"player_id": playerID,
			"status":    store.DeckStatusPublished,
			"generated": true,
		})
		if err != nil {
			return deckIDs, totalCards, fmt.Errorf("failed to create %s deck: %w", kind, err)
		}
		deckIDs = append(deckIDs, deck.ID)

		created := 0
		switch kind {
		case store.KindFlashcard:
			var prompts []FlashcardPrompt
			for _, rel := range living {
				prompts = append(prompts, flashcardTemplates(rel, living)...)
			}
			prompts = append(prompts, bonusFlashcards(living)...)

			for _, prompt := range prompts {
				_, err := db.CreateCard(ctx, deck.ID, store.NewCard{
					Question:   prompt.Question,
					Properties: map[string]any{"answer": prompt.Answer},
					Difficulty: difficultyWord(prompt.Difficulty),
				})
				if err != nil {
					return deckIDs, totalCards, fmt.Errorf("failed to insert flashcard: %w", err)
				}
				created++
			}

		case store.KindTrivia:
			for _, rel := range living {
				for _, card := range triviaTemplates(rel, living, playerName) {
					_, err := db.CreateCard(ctx, deck.ID, store.NewCard{
						Question: card.Question,
						Properties: map[string]any{
							"choices":       card.Choices,
							"correct_index": card.CorrectIndex,
							"explanation":   card.Explanation,
							"hint":          card.Hint,
							"aisource":      "family-tree",
						},
						Difficulty: card.Difficulty,
					})
					if err != nil {
						return deckIDs, totalCards, fmt.Errorf("failed to insert trivia card: %w", err)
					}
					created++
				}
			}
		}

		totalCards += created
		slog.Info("generated family deck",
			"kind", kind, "deck_id", deck.ID, "player_id", playerID, "cards", created)
	}

	return deckIDs, totalCards, nil
}
