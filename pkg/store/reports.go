package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// ReportInput carries one end-user question report.
type ReportInput struct {
	AppID       string
	ChallengeID string
	Question    *string
	Reason      *string
}

// InsertQuestionReport records a report against a served question.
func (s *Store) InsertQuestionReport(ctx context.Context, in ReportInput) (*QuestionReport, error) {
	var report QuestionReport
	var question, reason sql.NullString
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO question_reports (id, app_id, challenge_id, question, reason)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, app_id, challenge_id, question, reason, reported_at`,
		uuid.New().String(), in.AppID, in.ChallengeID, in.Question, in.Reason).
		Scan(&report.ID, &report.AppID, &report.ChallengeID, &question, &reason, &report.ReportedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert report: %w", err)
	}
	report.Question = nullString(question)
	report.Reason = nullString(reason)
	return &report, nil
}

// ListQuestionReports returns reports newest first, optionally filtered
// by the reporting app, plus the total count before limit and offset.
func (s *Store) ListQuestionReports(ctx context.Context, appID string, limit, offset int) ([]QuestionReport, int, error) {
	where := ""
	countArgs := []any{}
	if appID != "" {
		where = " WHERE app_id = $1"
		countArgs = append(countArgs, appID)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM question_reports"+where, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count reports: %w", err)
	}

	args := append([]any{}, countArgs...)
	args = append(args, limit)
	limitClause := fmt.Sprintf(" LIMIT $%d", len(args))
	args = append(args, offset)
	limitClause += fmt.Sprintf(" OFFSET $%d", len(args))
	query := `
		SELECT id, app_id, challenge_id, question, reason, reported_at
		FROM question_reports` + where + `
		ORDER BY reported_at DESC` + limitClause

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	reports := []QuestionReport{}
	for rows.Next() {
		var r QuestionReport
		var question, reason sql.NullString
		if err := rows.Scan(&r.ID, &r.AppID, &r.ChallengeID, &question, &reason, &r.ReportedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan report: %w", err)
		}
		r.Question = nullString(question)
		r.Reason = nullString(reason)
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read reports: %w", err)
	}
	return reports, total, nil
}
