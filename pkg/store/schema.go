package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Enum types are created inside DO blocks so the statements stay
// idempotent across restarts.
const createEnumTypesSQL = `
DO $$ BEGIN
	CREATE TYPE deck_kind AS ENUM ('flashcard', 'trivia', 'newsquiz');
EXCEPTION WHEN duplicate_object THEN NULL; END $$;

DO $$ BEGIN
	CREATE TYPE deck_tier AS ENUM ('free', 'premium');
EXCEPTION WHEN duplicate_object THEN NULL; END $$;

DO $$ BEGIN
	CREATE TYPE difficulty AS ENUM ('easy', 'medium', 'hard');
EXCEPTION WHEN duplicate_object THEN NULL; END $$;

DO $$ BEGIN
	CREATE TYPE person_status AS ENUM ('living', 'deceased');
EXCEPTION WHEN duplicate_object THEN NULL; END $$;

DO $$ BEGIN
	CREATE TYPE relationship_type AS ENUM ('parent_of', 'married', 'divorced');
EXCEPTION WHEN duplicate_object THEN NULL; END $$;

DO $$ BEGIN
	CREATE TYPE source_type AS ENUM ('api', 'rss', 'scrape');
EXCEPTION WHEN duplicate_object THEN NULL; END $$;
`

const createDecksTableSQL = `
CREATE TABLE IF NOT EXISTS decks (
	id UUID PRIMARY KEY,
	title TEXT NOT NULL,
	kind deck_kind NOT NULL,
	tier deck_tier NOT NULL DEFAULT 'free',
	properties JSONB NOT NULL DEFAULT '{}',
	card_count INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const createCardsTableSQL = `
CREATE TABLE IF NOT EXISTS cards (
	id UUID PRIMARY KEY,
	deck_id UUID NOT NULL REFERENCES decks(id) ON DELETE CASCADE,
	position INTEGER NOT NULL DEFAULT 0,
	question TEXT NOT NULL,
	properties JSONB NOT NULL DEFAULT '{}',
	difficulty difficulty NOT NULL DEFAULT 'medium',
	source_url TEXT,
	source_date TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const createSourceProvidersTableSQL = `
CREATE TABLE IF NOT EXISTS source_providers (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	source_type source_type NOT NULL DEFAULT 'api',
	config JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const createSourceRunsTableSQL = `
CREATE TABLE IF NOT EXISTS source_runs (
	id UUID PRIMARY KEY,
	provider_id UUID NOT NULL REFERENCES source_providers(id) ON DELETE CASCADE,
	started_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ,
	items_fetched INTEGER NOT NULL DEFAULT 0,
	items_added INTEGER NOT NULL DEFAULT 0,
	items_skipped INTEGER NOT NULL DEFAULT 0,
	error TEXT
)`

const createFamiliesTableSQL = `
CREATE TABLE IF NOT EXISTS families (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const createFamilyPeopleTableSQL = `
CREATE TABLE IF NOT EXISTS family_people (
	id UUID PRIMARY KEY,
	family_id UUID NOT NULL REFERENCES families(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	nickname TEXT,
	maiden_name TEXT,
	born INTEGER,
	status person_status NOT NULL DEFAULT 'living',
	gender TEXT,
	player BOOLEAN NOT NULL DEFAULT FALSE,
	placeholder BOOLEAN NOT NULL DEFAULT FALSE,
	photo_url TEXT,
	notes TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const createFamilyRelationshipsTableSQL = `
CREATE TABLE IF NOT EXISTS family_relationships (
	id UUID PRIMARY KEY,
	family_id UUID NOT NULL REFERENCES families(id) ON DELETE CASCADE,
	type relationship_type NOT NULL,
	from_person UUID NOT NULL REFERENCES family_people(id) ON DELETE CASCADE,
	to_person UUID NOT NULL REFERENCES family_people(id) ON DELETE CASCADE,
	year INTEGER,
	ended BOOLEAN NOT NULL DEFAULT FALSE,
	end_reason TEXT,
	notes TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const createFamilyChatSessionsTableSQL = `
CREATE TABLE IF NOT EXISTS family_chat_sessions (
	id UUID PRIMARY KEY,
	family_id UUID NOT NULL REFERENCES families(id) ON DELETE CASCADE,
	messages JSONB NOT NULL DEFAULT '[]',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const createQuestionReportsTableSQL = `
CREATE TABLE IF NOT EXISTS question_reports (
	id UUID PRIMARY KEY,
	app_id TEXT NOT NULL,
	challenge_id TEXT NOT NULL,
	question TEXT,
	reason TEXT,
	reported_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const createIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_cards_deck_id ON cards(deck_id);
CREATE INDEX IF NOT EXISTS idx_cards_question_fts ON cards USING GIN (to_tsvector('english', question));
CREATE INDEX IF NOT EXISTS idx_decks_kind ON decks(kind);
CREATE INDEX IF NOT EXISTS idx_source_runs_started ON source_runs(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_family_people_family ON family_people(family_id);
CREATE INDEX IF NOT EXISTS idx_family_relationships_family ON family_relationships(family_id);
CREATE INDEX IF NOT EXISTS idx_question_reports_app ON question_reports(app_id)
`

// InitSchema creates the enum types, tables and indexes if they do not
// already exist. Safe to run on every startup.
func InitSchema(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	statements := []struct {
		name string
		sql  string
	}{
		{"enum types", createEnumTypesSQL},
		{"decks table", createDecksTableSQL},
		{"cards table", createCardsTableSQL},
		{"source_providers table", createSourceProvidersTableSQL},
		{"source_runs table", createSourceRunsTableSQL},
		{"families table", createFamiliesTableSQL},
		{"family_people table", createFamilyPeopleTableSQL},
		{"family_relationships table", createFamilyRelationshipsTableSQL},
		{"family_chat_sessions table", createFamilyChatSessionsTableSQL},
		{"question_reports table", createQuestionReportsTableSQL},
		{"indexes", createIndexesSQL},
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt.sql); err != nil {
			return fmt.Errorf("failed to create %s: %w", stmt.name, err)
		}
	}
	return nil
}
