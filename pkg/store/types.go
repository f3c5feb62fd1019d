package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrCardDeckMismatch is returned by ReorderCards when the supplied card
// ids are not exactly the cards of the target deck.
var ErrCardDeckMismatch = errors.New("card ids do not match deck")

// Deck kinds.
const (
	KindFlashcard = "flashcard"
	KindTrivia    = "trivia"
	KindNewsquiz  = "newsquiz"
)

// Deck tiers.
const (
	TierFree    = "free"
	TierPremium = "premium"
)

// Card difficulties.
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

// Person statuses.
const (
	StatusLiving   = "living"
	StatusDeceased = "deceased"
)

// Relationship types.
const (
	RelParentOf = "parent_of"
	RelMarried  = "married"
	RelDivorced = "divorced"
)

// Source provider types.
const (
	SourceTypeAPI    = "api"
	SourceTypeRSS    = "rss"
	SourceTypeScrape = "scrape"
)

// Deck statuses, kept inside the deck property bag.
const (
	DeckStatusDraft     = "draft"
	DeckStatusPublished = "published"
)

// ValidKind reports whether kind is a known deck kind.
func ValidKind(kind string) bool {
	switch kind {
	case KindFlashcard, KindTrivia, KindNewsquiz:
		return true
	}
	return false
}

// ValidTier reports whether tier is a known deck tier.
func ValidTier(tier string) bool {
	switch tier {
	case TierFree, TierPremium:
		return true
	}
	return false
}

// ValidDifficulty reports whether difficulty is a known card difficulty.
func ValidDifficulty(difficulty string) bool {
	switch difficulty {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// ValidPersonStatus reports whether status is a known person status.
func ValidPersonStatus(status string) bool {
	switch status {
	case StatusLiving, StatusDeceased:
		return true
	}
	return false
}

// ValidRelationshipType reports whether relType is a known relationship type.
func ValidRelationshipType(relType string) bool {
	switch relType {
	case RelParentOf, RelMarried, RelDivorced:
		return true
	}
	return false
}

// Deck is a published or draft collection of cards.
type Deck struct {
	ID         string         `json:"id"`
	Title      string         `json:"title"`
	Kind       string         `json:"kind"`
	Tier       string         `json:"tier"`
	Properties map[string]any `json:"properties"`
	CardCount  int            `json:"card_count"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Choice is one multiple-choice option inside a trivia card's property
// bag.
type Choice struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
}

// Card is a single question within a deck. The answer, choices and any
// app-specific fields live in the property bag.
type Card struct {
	ID         string         `json:"id"`
	DeckID     string         `json:"deck_id,omitempty"`
	Position   int            `json:"position"`
	Question   string         `json:"question"`
	Properties map[string]any `json:"properties"`
	Difficulty string         `json:"difficulty"`
	SourceURL  *string        `json:"source_url"`
	SourceDate *time.Time     `json:"source_date"`
	CreatedAt  time.Time      `json:"-"`
}

// DeckWithCards pairs a deck with its full ordered card list.
type DeckWithCards struct {
	Deck
	Cards []Card `json:"cards"`
}

// DeckFilter narrows ListDecks results. Zero values mean "no filter".
type DeckFilter struct {
	Kind   string
	Age    string
	Tier   string
	Limit  int
	Offset int
}

// SourceRun is one audit row for a single ingestion cycle of a provider.
type SourceRun struct {
	ID           string     `json:"id"`
	ProviderName string     `json:"provider_name"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at"`
	ItemsFetched int        `json:"items_fetched"`
	ItemsAdded   int        `json:"items_added"`
	ItemsSkipped int        `json:"items_skipped"`
	Error        *string    `json:"error"`
}

// Family is a named group of people and relationships.
type Family struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Person is a member of a family. Placeholder people stand in for unknown
// ancestors and are excluded from generated content.
type Person struct {
	ID          string  `json:"id"`
	FamilyID    string  `json:"family_id"`
	Name        string  `json:"name"`
	Nickname    *string `json:"nickname"`
	MaidenName  *string `json:"maiden_name"`
	Born        *int    `json:"born"`
	Status      string  `json:"status"`
	Gender      *string `json:"gender"`
	Player      bool    `json:"player"`
	Placeholder bool    `json:"placeholder"`
	PhotoURL    *string `json:"photo_url"`
	Notes       *string `json:"notes"`
}

// Relationship is a directed edge between two people of the same family.
// For parent_of, From is the parent and To the child.
type Relationship struct {
	ID        string  `json:"id"`
	FamilyID  string  `json:"family_id"`
	Type      string  `json:"type"`
	From      string  `json:"from_person"`
	To        string  `json:"to_person"`
	Year      *int    `json:"year"`
	Ended     bool    `json:"ended"`
	EndReason *string `json:"end_reason"`
	Notes     *string `json:"notes"`
}

// ChatMessage is one turn of a family chat session.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatSession is a persisted conversation about one family.
type ChatSession struct {
	ID        string        `json:"id"`
	FamilyID  string        `json:"family_id"`
	Messages  []ChatMessage `json:"messages"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// QuestionReport is an end-user report against a served question.
type QuestionReport struct {
	ID          string    `json:"id"`
	AppID       string    `json:"app_id"`
	ChallengeID string    `json:"challenge_id"`
	Question    *string   `json:"question,omitempty"`
	Reason      *string   `json:"reason,omitempty"`
	ReportedAt  time.Time `json:"reported_at"`
}

// SearchResult is one full-text search hit over card questions.
type SearchResult struct {
	CardID     string         `json:"card_id"`
	DeckID     string         `json:"deck_id"`
	DeckTitle  string         `json:"deck_title"`
	DeckKind   string         `json:"deck_kind"`
	Question   string         `json:"question"`
	Properties map[string]any `json:"properties"`
	Rank       float64        `json:"rank"`
}

// Stats summarises the whole store for the dashboard.
type Stats struct {
	TotalDecks   int            `json:"total_decks"`
	TotalCards   int            `json:"total_cards"`
	TotalSources int            `json:"total_sources"`
	DecksByKind  map[string]int `json:"decks_by_kind"`
}

// CategoryCount is one trivia deck with its card total, for the
// category listing endpoint.
type CategoryCount struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Pic       string `json:"pic"`
	CardCount int    `json:"card_count"`
}
