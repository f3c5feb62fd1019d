package server

import (
	"math"
	"net/http"
	"time"

	"github.com/billdonner/card-engine/pkg/store"
)

type reportIn struct {
	AppID       string  `json:"app_id"`
	ChallengeID string  `json:"challenge_id"`
	Question    *string `json:"question"`
	Reason      *string `json:"reason"`
}

// reportOut echoes the stored report without the free-text fields.
type reportOut struct {
	ID          string    `json:"id"`
	AppID       string    `json:"app_id"`
	ChallengeID string    `json:"challenge_id"`
	ReportedAt  time.Time `json:"reported_at"`
}

type reportsListOut struct {
	Reports []reportOut `json:"reports"`
	Total   int         `json:"total"`
}

func (s *Server) handleCreateReport(w http.ResponseWriter, r *http.Request) {
	var in reportIn
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if in.AppID == "" || in.ChallengeID == "" {
		writeError(w, http.StatusBadRequest, "app_id and challenge_id are required")
		return
	}

	report, err := s.db.InsertQuestionReport(r.Context(), store.ReportInput{
		AppID:       in.AppID,
		ChallengeID: in.ChallengeID,
		Question:    in.Question,
		Reason:      in.Reason,
	})
	if err != nil {
		renderStoreError(w, err, "Report not found")
		return
	}
	writeJSON(w, http.StatusCreated, reportOut{
		ID:          report.ID,
		AppID:       report.AppID,
		ChallengeID: report.ChallengeID,
		ReportedAt:  report.ReportedAt,
	})
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	appID := r.URL.Query().Get("app_id")
	limit := queryInt(r, "limit", 50, 1, 200)
	offset := queryInt(r, "offset", 0, 0, math.MaxInt)

	rows, total, err := s.db.ListQuestionReports(r.Context(), appID, limit, offset)
	if err != nil {
		renderStoreError(w, err, "Report not found")
		return
	}
	reports := make([]reportOut, 0, len(rows))
	for _, row := range rows {
		reports = append(reports, reportOut{
			ID:          row.ID,
			AppID:       row.AppID,
			ChallengeID: row.ChallengeID,
			ReportedAt:  row.ReportedAt,
		})
	}
	writeJSON(w, http.StatusOK, reportsListOut{Reports: reports, Total: total})
}
