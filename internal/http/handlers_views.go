package http

import (
	"net/http"
	"time"

	"splitledger/internal/core"
)

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	view, err := s.ledger.Balances(r.Context(), core.GroupID(r.PathValue("id")))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalancesDTO(view))
}

type categoryTotalDTO struct {
	Category   string `json:"category"`
	Total      string `json:"total"`
	TotalCents int64  `json:"total_cents"`
}

func (s *Server) handleCategorySummary(w http.ResponseWriter, r *http.Request) {
	filter, ok := expenseFilterFromQuery(w, r)
	if !ok {
		return
	}
	totals, err := s.ledger.CategorySummary(r.Context(), filter)
	if err != nil {
		respondError(w, r, err)
		return
	}
	out := make([]categoryTotalDTO, 0, len(totals))
	for _, ct := range totals {
		out = append(out, categoryTotalDTO{
			Category:   string(ct.Category),
			Total:      ct.Total.String(),
			TotalCents: ct.Total.Cents,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type syncStatusDTO struct {
	State     string `json:"state"`
	LastSync  string `json:"last_sync,omitempty"`
	LastError string `json:"last_error,omitempty"`
	Failures  int    `json:"failures"`
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	status := s.ledger.SyncStatus()
	dto := syncStatusDTO{
		State:     string(status.State),
		LastError: status.LastError,
		Failures:  status.Failures,
	}
	if !status.LastSync.IsZero() {
		dto.LastSync = status.LastSync.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, dto)
}
