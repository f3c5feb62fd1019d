package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// EnsureProvider returns the id of the named source provider, creating
// the row on first use.
func (s *Store) EnsureProvider(ctx context.Context, name, sourceType string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM source_providers WHERE name = $1`, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("failed to look up provider: %w", err)
	}

	id = uuid.New().String()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO source_providers (id, name, source_type) VALUES ($1, $2, $3::source_type)`,
		id, name, sourceType)
	if err != nil {
		return "", fmt.Errorf("failed to create provider: %w", err)
	}
	return id, nil
}

// StartRun opens an audit row for one ingestion cycle and returns its id.
func (s *Store) StartRun(ctx context.Context, providerID string) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO source_runs (id, provider_id) VALUES ($1, $2)`, id, providerID)
	if err != nil {
		return "", fmt.Errorf("failed to start run: %w", err)
	}
	return id, nil
}

// FinishRun closes a run's audit row with its final counters. An empty
// errMsg records a clean cycle.
func (s *Store) FinishRun(ctx context.Context, runID string, fetched, added, skipped int, errMsg string) error {
	var errArg any
	if errMsg != "" {
		errArg = errMsg
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE source_runs
		SET finished_at = now(),
		    items_fetched = $2,
		    items_added = $3,
		    items_skipped = $4,
		    error = $5
		WHERE id = $1`,
		runID, fetched, added, skipped, errArg)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return nil
}

// ListRecentRuns returns the newest run audit rows with provider names.
func (s *Store) ListRecentRuns(ctx context.Context, limit int) ([]SourceRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, p.name, r.started_at, r.finished_at,
		       r.items_fetched, r.items_added, r.items_skipped, r.error
		FROM source_runs r
		JOIN source_providers p ON r.provider_id = p.id
		ORDER BY r.started_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []SourceRun{}
	for rows.Next() {
		var run SourceRun
		var finished sql.NullTime
		var errMsg sql.NullString
		err := rows.Scan(&run.ID, &run.ProviderName, &run.StartedAt, &finished,
			&run.ItemsFetched, &run.ItemsAdded, &run.ItemsSkipped, &errMsg)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.FinishedAt = nullTime(finished)
		run.Error = nullString(errMsg)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read runs: %w", err)
	}
	return runs, nil
}
