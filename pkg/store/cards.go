package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewCard carries the caller-supplied fields of a card insert. Source
// fields are set by ingestion and left nil by the studio.
type NewCard struct {
	Question   string
	Properties map[string]any
	Difficulty string
	SourceURL  *string
	SourceDate *time.Time
}

// DeckExists reports whether a deck row exists.
func (s *Store) DeckExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM decks WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check deck: %w", err)
	}
	return exists, nil
}

// GetCard returns one card by id.
func (s *Store) GetCard(ctx context.Context, id string) (*Card, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+cardColumns+" FROM cards WHERE id = $1", id)
	card, err := scanCard(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get card: %w", err)
	}
	return card, nil
}

// CreateCard appends a card to the end of a deck. Position assignment
// and the deck's card_count update happen in one transaction.
func (s *Store) CreateCard(ctx context.Context, deckID string, in NewCard) (*Card, error) {
	if in.Difficulty == "" {
		in.Difficulty = DifficultyMedium
	}
	props, err := marshalProps(in.Properties)
	if err != nil {
		return nil, err
	}

	var card *Card
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var position int
		err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(position) + 1, 0) FROM cards WHERE deck_id = $1`, deckID).Scan(&position)
		if err != nil {
			return fmt.Errorf("failed to compute card position: %w", err)
		}

		row := tx.QueryRowContext(ctx, `
			INSERT INTO cards (id, deck_id, position, question, properties, difficulty, source_url, source_date)
			VALUES ($1, $2, $3, $4, $5::jsonb, $6::difficulty, $7, $8)
			RETURNING `+cardColumns,
			uuid.New().String(), deckID, position, in.Question, props, in.Difficulty, in.SourceURL, in.SourceDate)
		card, err = scanCard(row)
		if err != nil {
			return fmt.Errorf("failed to create card: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE decks SET card_count = card_count + 1 WHERE id = $1`, deckID); err != nil {
			return fmt.Errorf("failed to update card count: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return card, nil
}

// UpdateCard patches question, properties and/or difficulty. Nil
// arguments leave the current value untouched.
func (s *Store) UpdateCard(ctx context.Context, cardID string, question *string, properties map[string]any, difficulty *string) (*Card, error) {
	var propsArg any
	if properties != nil {
		props, err := marshalProps(properties)
		if err != nil {
			return nil, err
		}
		propsArg = props
	}

	row := s.db.QueryRowContext(ctx, `
		UPDATE cards
		SET question = COALESCE($2, question),
		    properties = COALESCE($3::jsonb, properties),
		    difficulty = COALESCE($4::difficulty, difficulty)
		WHERE id = $1
		RETURNING `+cardColumns,
		cardID, question, propsArg, difficulty)
	card, err := scanCard(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update card: %w", err)
	}
	return card, nil
}

// DeleteCard removes a card from a deck, closing the position gap and
// decrementing the deck's card_count in one transaction. Returns false
// when the card is not in the deck.
func (s *Store) DeleteCard(ctx context.Context, deckID, cardID string) (bool, error) {
	deleted := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var position int
		err := tx.QueryRowContext(ctx,
			`DELETE FROM cards WHERE id = $1 AND deck_id = $2 RETURNING position`,
			cardID, deckID).Scan(&position)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to delete card: %w", err)
		}
		deleted = true

		if _, err := tx.ExecContext(ctx,
			`UPDATE cards SET position = position - 1 WHERE deck_id = $1 AND position > $2`,
			deckID, position); err != nil {
			return fmt.Errorf("failed to shift card positions: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE decks SET card_count = card_count - 1 WHERE id = $1`, deckID); err != nil {
			return fmt.Errorf("failed to update card count: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

// ReorderCards rewrites positions 0..n-1 following the supplied order.
// The id list must be exactly the deck's card set; otherwise
// ErrCardDeckMismatch and no changes.
func (s *Store) ReorderCards(ctx context.Context, deckID string, ids []string) ([]Card, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT id FROM cards WHERE deck_id = $1`, deckID)
		if err != nil {
			return fmt.Errorf("failed to list deck cards: %w", err)
		}
		existing := map[string]bool{}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan card id: %w", err)
			}
			existing[id] = true
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("failed to read card ids: %w", err)
		}

		if len(ids) != len(existing) {
			return ErrCardDeckMismatch
		}
		seen := map[string]bool{}
		for _, id := range ids {
			if !existing[id] || seen[id] {
				return ErrCardDeckMismatch
			}
			seen[id] = true
		}

		for position, id := range ids {
			if _, err := tx.ExecContext(ctx,
				`UPDATE cards SET position = $1 WHERE id = $2`, position, id); err != nil {
				return fmt.Errorf("failed to reposition card: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.listDeckCards(ctx, deckID)
}

// ListRecentTriviaCards returns the newest trivia cards across all decks,
// used to warm the dedup cache on startup.
func (s *Store) ListRecentTriviaCards(ctx context.Context, limit int) ([]Card, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+prefixedCardColumns("c")+`
		FROM cards c
		JOIN decks d ON c.deck_id = d.id
		WHERE d.kind = 'trivia'
		ORDER BY c.created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent trivia cards: %w", err)
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

func prefixedCardColumns(alias string) string {
	return alias + ".id, " + alias + ".deck_id, " + alias + ".position, " +
		alias + ".question, " + alias + ".properties, " + alias + ".difficulty::text, " +
		alias + ".source_url, " + alias + ".source_date, " + alias + ".created_at"
}

// SearchCards runs a ranked full-text search over card questions. Returns
// up to limit hits plus the total match count.
func (s *Store) SearchCards(ctx context.Context, query string, limit int) ([]SearchResult, int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM cards
		WHERE to_tsvector('english', question) @@ plainto_tsquery('english', $1)`, query).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count search results: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.deck_id, d.title, d.kind::text, c.question, c.properties,
		       ts_rank(to_tsvector('english', c.question), plainto_tsquery('english', $1)) AS rank
		FROM cards c
		JOIN decks d ON c.deck_id = d.id
		WHERE to_tsvector('english', c.question) @@ plainto_tsquery('english', $1)
		ORDER BY rank DESC, c.id
		LIMIT $2`, query, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search cards: %w", err)
	}
	defer rows.Close()

	results := []SearchResult{}
	for rows.Next() {
		var r SearchResult
		var props []byte
		if err := rows.Scan(&r.CardID, &r.DeckID, &r.DeckTitle, &r.DeckKind, &r.Question, &props, &r.Rank); err != nil {
			return nil, 0, fmt.Errorf("failed to scan search result: %w", err)
		}
		r.Properties = scanProps(props)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read search results: %w", err)
	}
	return results, total, nil
}
