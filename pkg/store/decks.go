package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const deckColumns = `id, title, kind::text, tier::text, properties, card_count, created_at`

const cardColumns = `id, deck_id, position, question, properties, difficulty::text, source_url, source_date, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeck(row rowScanner) (*Deck, error) {
	var d Deck
	var props []byte
	if err := row.Scan(&d.ID, &d.Title, &d.Kind, &d.Tier, &props, &d.CardCount, &d.CreatedAt); err != nil {
		return nil, err
	}
	d.Properties = scanProps(props)
	return &d, nil
}

func scanCard(row rowScanner) (*Card, error) {
	var c Card
	var props []byte
	var sourceURL sql.NullString
	var sourceDate sql.NullTime
	if err := row.Scan(&c.ID, &c.DeckID, &c.Position, &c.Question, &props, &c.Difficulty, &sourceURL, &sourceDate, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.Properties = scanProps(props)
	c.SourceURL = nullString(sourceURL)
	c.SourceDate = nullTime(sourceDate)
	return &c, nil
}

// ListDecks returns deck summaries matching the filter plus the total
// count before pagination.
func (s *Store) ListDecks(ctx context.Context, f DeckFilter) ([]Deck, int, error) {
	conditions := []string{}
	args := []any{}

	if f.Kind != "" {
		args = append(args, f.Kind)
		conditions = append(conditions, fmt.Sprintf("kind = $%d::deck_kind", len(args)))
	}
	if f.Age != "" {
		args = append(args, f.Age)
		conditions = append(conditions, fmt.Sprintf("properties->>'age_range' = $%d", len(args)))
	}
	if f.Tier != "" {
		args = append(args, f.Tier)
		conditions = append(conditions, fmt.Sprintf("tier = $%d::deck_tier", len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM decks" + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count decks: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	limitClause := fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))
	args = append(args, f.Offset)
	limitClause += fmt.Sprintf(" OFFSET $%d", len(args))

	query := "SELECT " + deckColumns + " FROM decks" + where + limitClause
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list decks: %w", err)
	}
	defer rows.Close()

	decks := []Deck{}
	for rows.Next() {
		d, err := scanDeck(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan deck: %w", err)
		}
		decks = append(decks, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read decks: %w", err)
	}
	return decks, total, nil
}

// GetDeck returns one deck with its cards ordered by position.
func (s *Store) GetDeck(ctx context.Context, id string) (*DeckWithCards, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+deckColumns+" FROM decks WHERE id = $1", id)
	deck, err := scanDeck(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get deck: %w", err)
	}

	cards, err := s.listDeckCards(ctx, id)
	if err != nil {
		return nil, err
	}
	return &DeckWithCards{Deck: *deck, Cards: cards}, nil
}

func (s *Store) listDeckCards(ctx context.Context, deckID string) ([]Card, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+cardColumns+" FROM cards WHERE deck_id = $1 ORDER BY position", deckID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	defer rows.Close()

	cards := []Card{}
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan card: %w", err)
		}
		cards = append(cards, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read cards: %w", err)
	}
	return cards, nil
}

// GetAllDecksWithCards bulk-fetches every deck of one kind together with
// its cards in a single join, for the app-facing download endpoints.
func (s *Store) GetAllDecksWithCards(ctx context.Context, kind string) ([]DeckWithCards, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.title, d.kind::text, d.tier::text, d.properties, d.card_count, d.created_at,
		       c.id, c.position, c.question, c.properties, c.difficulty::text, c.source_url, c.source_date
		FROM decks d
		LEFT JOIN cards c ON c.deck_id = d.id
		WHERE d.kind = $1::deck_kind
		ORDER BY d.created_at, c.position`, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch decks with cards: %w", err)
	}
	defer rows.Close()

	decks := []DeckWithCards{}
	index := map[string]int{}
	for rows.Next() {
		var d Deck
		var deckProps []byte
		var cardID, question, difficulty sql.NullString
		var position sql.NullInt64
		var cardProps []byte
		var sourceURL sql.NullString
		var sourceDate sql.NullTime
		err := rows.Scan(&d.ID, &d.Title, &d.Kind, &d.Tier, &deckProps, &d.CardCount, &d.CreatedAt,
			&cardID, &position, &question, &cardProps, &difficulty, &sourceURL, &sourceDate)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deck row: %w", err)
		}

		pos, ok := index[d.ID]
		if !ok {
			d.Properties = scanProps(deckProps)
			decks = append(decks, DeckWithCards{Deck: d, Cards: []Card{}})
			pos = len(decks) - 1
			index[d.ID] = pos
		}
		if cardID.Valid {
			decks[pos].Cards = append(decks[pos].Cards, Card{
				ID:         cardID.String,
				DeckID:     d.ID,
				Position:   int(position.Int64),
				Question:   question.String,
				Properties: scanProps(cardProps),
				Difficulty: difficulty.String,
				SourceURL:  nullString(sourceURL),
				SourceDate: nullTime(sourceDate),
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read deck rows: %w", err)
	}
	return decks, nil
}

// GetCategoriesWithCounts lists trivia decks as categories with their
// icon hint and card totals.
func (s *Store) GetCategoriesWithCounts(ctx context.Context) ([]CategoryCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, COALESCE(properties->>'pic', 'questionmark.circle'), card_count
		FROM decks
		WHERE kind = 'trivia'
		ORDER BY title`)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	categories := []CategoryCount{}
	for rows.Next() {
		var c CategoryCount
		if err := rows.Scan(&c.ID, &c.Name, &c.Pic, &c.CardCount); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read categories: %w", err)
	}
	return categories, nil
}

// GetStats returns store-wide totals for the dashboard.
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{DecksByKind: map[string]int{}}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM decks`).Scan(&stats.TotalDecks); err != nil {
		return nil, fmt.Errorf("failed to count decks: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cards`).Scan(&stats.TotalCards); err != nil {
		return nil, fmt.Errorf("failed to count cards: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM source_providers`).Scan(&stats.TotalSources); err != nil {
		return nil, fmt.Errorf("failed to count sources: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT kind::text, COUNT(*) FROM decks GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("failed to count decks by kind: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var kind string
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, fmt.Errorf("failed to scan kind count: %w", err)
		}
		stats.DecksByKind[kind] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read kind counts: %w", err)
	}
	return stats, nil
}

// CreateDeck inserts a new deck. Status defaults to draft when the
// property bag does not carry one; an empty tier defaults to free.
func (s *Store) CreateDeck(ctx context.Context, title, kind, tier string, properties map[string]any) (*Deck, error) {
	if properties == nil {
		properties = map[string]any{}
	}
	if _, ok := properties["status"]; !ok {
		properties["status"] = DeckStatusDraft
	}
	if tier == "" {
		tier = TierFree
	}
	props, err := marshalProps(properties)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO decks (id, title, kind, tier, properties)
		VALUES ($1, $2, $3::deck_kind, $4::deck_tier, $5::jsonb)
		RETURNING `+deckColumns,
		uuid.New().String(), title, kind, tier, props)
	deck, err := scanDeck(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create deck: %w", err)
	}
	return deck, nil
}

// UpdateDeck patches title and/or properties. Nil arguments leave the
// current value untouched.
func (s *Store) UpdateDeck(ctx context.Context, id string, title *string, properties map[string]any) (*Deck, error) {
	var propsArg any
	if properties != nil {
		props, err := marshalProps(properties)
		if err != nil {
			return nil, err
		}
		propsArg = props
	}

	row := s.db.QueryRowContext(ctx, `
		UPDATE decks
		SET title = COALESCE($2, title),
		    properties = COALESCE($3::jsonb, properties)
		WHERE id = $1
		RETURNING `+deckColumns,
		id, title, propsArg)
	deck, err := scanDeck(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update deck: %w", err)
	}
	return deck, nil
}

// SetDeckStatus rewrites the status key inside the deck property bag,
// used by the publish and unpublish operations.
func (s *Store) SetDeckStatus(ctx context.Context, id, status string) (*Deck, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE decks
		SET properties = jsonb_set(properties, '{status}', to_jsonb($2::text))
		WHERE id = $1
		RETURNING `+deckColumns,
		id, status)
	deck, err := scanDeck(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to set deck status: %w", err)
	}
	return deck, nil
}

// DeleteDeck removes a deck and, via cascade, its cards. Returns false
// when no such deck exists.
func (s *Store) DeleteDeck(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM decks WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete deck: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read delete result: %w", err)
	}
	return affected > 0, nil
}

// GetOrCreateDeckByTitle finds a deck by case-insensitive title and kind,
// creating it when absent. Ingestion uses this to map categories onto
// trivia decks.
func (s *Store) GetOrCreateDeckByTitle(ctx context.Context, title, kind string, properties map[string]any) (*Deck, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+deckColumns+` FROM decks
		WHERE lower(title) = lower($1) AND kind = $2::deck_kind
		LIMIT 1`, title, kind)
	deck, err := scanDeck(row)
	if err == nil {
		return deck, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to look up deck: %w", err)
	}
	return s.CreateDeck(ctx, title, kind, "", properties)
}

// ListGeneratedDecks returns decks generated for a family, newest first,
// each with its cards. An empty playerID matches any player.
func (s *Store) ListGeneratedDecks(ctx context.Context, familyID, playerID string) ([]DeckWithCards, error) {
	args := []any{familyID}
	query := "SELECT " + deckColumns + " FROM decks WHERE properties->>'family_id' = $1"
	if playerID != "" {
		args = append(args, playerID)
		query += fmt.Sprintf(" AND properties->>'player_id' = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list generated decks: %w", err)
	}
	defer rows.Close()

	decks := []DeckWithCards{}
	for rows.Next() {
		d, err := scanDeck(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deck: %w", err)
		}
		decks = append(decks, DeckWithCards{Deck: *d})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read decks: %w", err)
	}

	for i := range decks {
		cards, err := s.listDeckCards(ctx, decks[i].ID)
		if err != nil {
			return nil, err
		}
		decks[i].Cards = cards
	}
	return decks, nil
}
