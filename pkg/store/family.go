package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const personColumns = `id, family_id, name, nickname, maiden_name, born, status::text, gender, player, placeholder, photo_url, notes`

const relationshipColumns = `id, family_id, type::text, from_person, to_person, year, ended, end_reason, notes`

// FamilyTree is a full snapshot of one family: the row itself plus all
// its people and relationship edges.
type FamilyTree struct {
	Family        Family         `json:"family"`
	People        []Person       `json:"people"`
	Relationships []Relationship `json:"relationships"`
}

// PersonInput carries the fields of a person insert.
type PersonInput struct {
	Name        string
	Nickname    *string
	MaidenName  *string
	Born        *int
	Status      string
	Gender      *string
	Player      bool
	Placeholder bool
	PhotoURL    *string
	Notes       *string
}

// PersonPatch carries a partial person update. Nil fields are left
// untouched.
type PersonPatch struct {
	Name        *string
	Nickname    *string
	MaidenName  *string
	Born        *int
	Status      *string
	Gender      *string
	Player      *bool
	Placeholder *bool
	PhotoURL    *string
	Notes       *string
}

// RelationshipInput carries the fields of a relationship insert.
type RelationshipInput struct {
	Type      string
	From      string
	To        string
	Year      *int
	Ended     bool
	EndReason *string
	Notes     *string
}

func scanPerson(row rowScanner) (*Person, error) {
	var p Person
	var nickname, maidenName, gender, photoURL, notes sql.NullString
	var born sql.NullInt64
	err := row.Scan(&p.ID, &p.FamilyID, &p.Name, &nickname, &maidenName, &born,
		&p.Status, &gender, &p.Player, &p.Placeholder, &photoURL, &notes)
	if err != nil {
		return nil, err
	}
	p.Nickname = nullString(nickname)
	p.MaidenName = nullString(maidenName)
	p.Born = nullInt(born)
	p.Gender = nullString(gender)
	p.PhotoURL = nullString(photoURL)
	p.Notes = nullString(notes)
	return &p, nil
}

func scanRelationship(row rowScanner) (*Relationship, error) {
	var r Relationship
	var year sql.NullInt64
	var endReason, notes sql.NullString
	err := row.Scan(&r.ID, &r.FamilyID, &r.Type, &r.From, &r.To, &year, &r.Ended, &endReason, &notes)
	if err != nil {
		return nil, err
	}
	r.Year = nullInt(year)
	r.EndReason = nullString(endReason)
	r.Notes = nullString(notes)
	return &r, nil
}

// CreateFamily inserts a new named family.
func (s *Store) CreateFamily(ctx context.Context, name string) (*Family, error) {
	var f Family
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO families (id, name) VALUES ($1, $2)
		RETURNING id, name, created_at`,
		uuid.New().String(), name).Scan(&f.ID, &f.Name, &f.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create family: %w", err)
	}
	return &f, nil
}

// ListFamilies returns all families, newest first.
func (s *Store) ListFamilies(ctx context.Context) ([]Family, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, created_at FROM families ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list families: %w", err)
	}
	defer rows.Close()

	families := []Family{}
	for rows.Next() {
		var f Family
		if err := rows.Scan(&f.ID, &f.Name, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan family: %w", err)
		}
		families = append(families, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read families: %w", err)
	}
	return families, nil
}

// GetFamily returns one family row.
func (s *Store) GetFamily(ctx context.Context, id string) (*Family, error) {
	var f Family
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM families WHERE id = $1`, id).Scan(&f.ID, &f.Name, &f.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get family: %w", err)
	}
	return &f, nil
}

// DeleteFamily removes a family and, via cascade, its people,
// relationships and chat sessions.
func (s *Store) DeleteFamily(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM families WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete family: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read delete result: %w", err)
	}
	return affected > 0, nil
}

// CreatePerson adds a person to a family. Status defaults to living.
func (s *Store) CreatePerson(ctx context.Context, familyID string, in PersonInput) (*Person, error) {
	if in.Status == "" {
		in.Status = StatusLiving
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO family_people (id, family_id, name, nickname, maiden_name, born, status, gender, player, placeholder, photo_url, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7::person_status, $8, $9, $10, $11, $12)
		RETURNING `+personColumns,
		uuid.New().String(), familyID, in.Name, in.Nickname, in.MaidenName, in.Born,
		in.Status, in.Gender, in.Player, in.Placeholder, in.PhotoURL, in.Notes)
	person, err := scanPerson(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create person: %w", err)
	}
	return person, nil
}

// GetPerson returns one person scoped to a family.
func (s *Store) GetPerson(ctx context.Context, familyID, personID string) (*Person, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+personColumns+" FROM family_people WHERE id = $1 AND family_id = $2",
		personID, familyID)
	person, err := scanPerson(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get person: %w", err)
	}
	return person, nil
}

// ListPeople returns every person in a family.
func (s *Store) ListPeople(ctx context.Context, familyID string) ([]Person, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+personColumns+" FROM family_people WHERE family_id = $1 ORDER BY name",
		familyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list people: %w", err)
	}
	defer rows.Close()

	people := []Person{}
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan person: %w", err)
		}
		people = append(people, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read people: %w", err)
	}
	return people, nil
}

// UpdatePerson patches a person in place. Nil fields keep their
// current value.
func (s *Store) UpdatePerson(ctx context.Context, familyID, personID string, patch PersonPatch) (*Person, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE family_people
		SET name = COALESCE($3, name),
		    nickname = COALESCE($4, nickname),
		    maiden_name = COALESCE($5, maiden_name),
		    born = COALESCE($6, born),
		    status = COALESCE($7::person_status, status),
		    gender = COALESCE($8, gender),
		    player = COALESCE($9, player),
		    placeholder = COALESCE($10, placeholder),
		    photo_url = COALESCE($11, photo_url),
		    notes = COALESCE($12, notes)
		WHERE id = $1 AND family_id = $2
		RETURNING `+personColumns,
		personID, familyID, patch.Name, patch.Nickname, patch.MaidenName, patch.Born,
		patch.Status, patch.Gender, patch.Player, patch.Placeholder, patch.PhotoURL, patch.Notes)
	person, err := scanPerson(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update person: %w", err)
	}
	return person, nil
}

// DeletePerson removes a person and, via cascade, their relationship
// edges.
func (s *Store) DeletePerson(ctx context.Context, familyID, personID string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM family_people WHERE id = $1 AND family_id = $2`, personID, familyID)
	if err != nil {
		return false, fmt.Errorf("failed to delete person: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read delete result: %w", err)
	}
	return affected > 0, nil
}

// GetPersonByName resolves a person by exact case-insensitive name or
// nickname within a family.
func (s *Store) GetPersonByName(ctx context.Context, familyID, name string) (*Person, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+personColumns+` FROM family_people
		WHERE family_id = $1 AND (lower(name) = lower($2) OR lower(COALESCE(nickname, '')) = lower($2))
		LIMIT 1`, familyID, name)
	person, err := scanPerson(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find person: %w", err)
	}
	return person, nil
}

// FindPersonByName resolves a person by name within a family: exact
// case-insensitive match (name or nickname) first, then substring match.
func (s *Store) FindPersonByName(ctx context.Context, familyID, name string) (*Person, error) {
	person, err := s.GetPersonByName(ctx, familyID, name)
	if err == nil {
		return person, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT `+personColumns+` FROM family_people
		WHERE family_id = $1 AND lower(name) LIKE '%' || lower($2) || '%'
		ORDER BY name
		LIMIT 1`, familyID, name)
	person, err = scanPerson(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find person: %w", err)
	}
	return person, nil
}

// CreateRelationship adds a relationship edge between two people of the
// same family.
func (s *Store) CreateRelationship(ctx context.Context, familyID string, in RelationshipInput) (*Relationship, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO family_relationships (id, family_id, type, from_person, to_person, year, ended, end_reason, notes)
		VALUES ($1, $2, $3::relationship_type, $4, $5, $6, $7, $8, $9)
		RETURNING `+relationshipColumns,
		uuid.New().String(), familyID, in.Type, in.From, in.To, in.Year, in.Ended, in.EndReason, in.Notes)
	rel, err := scanRelationship(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create relationship: %w", err)
	}
	return rel, nil
}

// ListRelationships returns every relationship edge in a family.
func (s *Store) ListRelationships(ctx context.Context, familyID string) ([]Relationship, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+relationshipColumns+" FROM family_relationships WHERE family_id = $1 ORDER BY created_at",
		familyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list relationships: %w", err)
	}
	defer rows.Close()

	rels := []Relationship{}
	for rows.Next() {
		r, err := scanRelationship(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan relationship: %w", err)
		}
		rels = append(rels, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read relationships: %w", err)
	}
	return rels, nil
}

// DeleteRelationship removes one relationship edge.
func (s *Store) DeleteRelationship(ctx context.Context, familyID, relID string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM family_relationships WHERE id = $1 AND family_id = $2`, relID, familyID)
	if err != nil {
		return false, fmt.Errorf("failed to delete relationship: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read delete result: %w", err)
	}
	return affected > 0, nil
}

// FamilySnapshot loads a family with all its people and relationships,
// the unit the kinship engine and card generator operate on.
func (s *Store) FamilySnapshot(ctx context.Context, familyID string) (*FamilyTree, error) {
	family, err := s.GetFamily(ctx, familyID)
	if err != nil {
		return nil, err
	}
	people, err := s.ListPeople(ctx, familyID)
	if err != nil {
		return nil, err
	}
	rels, err := s.ListRelationships(ctx, familyID)
	if err != nil {
		return nil, err
	}
	return &FamilyTree{Family: *family, People: people, Relationships: rels}, nil
}

// GetOrCreateChatSession returns the most recent chat session for a
// family, creating an empty one when none exists.
func (s *Store) GetOrCreateChatSession(ctx context.Context, familyID string) (*ChatSession, error) {
	session, err := s.scanChatSession(s.db.QueryRowContext(ctx, `
		SELECT id, family_id, messages, created_at, updated_at
		FROM family_chat_sessions
		WHERE family_id = $1
		ORDER BY updated_at DESC
		LIMIT 1`, familyID))
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get chat session: %w", err)
	}

	session, err = s.scanChatSession(s.db.QueryRowContext(ctx, `
		INSERT INTO family_chat_sessions (id, family_id)
		VALUES ($1, $2)
		RETURNING id, family_id, messages, created_at, updated_at`,
		uuid.New().String(), familyID))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat session: %w", err)
	}
	return session, nil
}

func (s *Store) scanChatSession(row rowScanner) (*ChatSession, error) {
	var session ChatSession
	var messages []byte
	err := row.Scan(&session.ID, &session.FamilyID, &messages, &session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		return nil, err
	}
	session.Messages = []ChatMessage{}
	if len(messages) > 0 {
		if err := json.Unmarshal(messages, &session.Messages); err != nil {
			return nil, fmt.Errorf("failed to decode chat messages: %w", err)
		}
	}
	return &session, nil
}

// AppendChatMessage appends one turn to a chat session's message log.
func (s *Store) AppendChatMessage(ctx context.Context, sessionID, role, content string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE family_chat_sessions
		SET messages = messages || jsonb_build_array(jsonb_build_object('role', $2::text, 'content', $3::text)),
		    updated_at = now()
		WHERE id = $1`,
		sessionID, role, content)
	if err != nil {
		return fmt.Errorf("failed to append chat message: %w", err)
	}
	return nil
}
