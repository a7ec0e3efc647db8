package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"splitledger/internal/core"
	"splitledger/internal/service"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// respondError maps domain sentinels onto HTTP status codes.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, core.ErrNotFound), errors.Is(err, core.ErrMemberNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, core.ErrAlreadyMember):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, core.ErrNotMember),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrEmptyName),
		errors.Is(err, core.ErrInvalidDate):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		slog.ErrorContext(r.Context(), "Request failed",
			"method", r.Method, "url", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// --- DTOs ---

type memberDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func toMemberDTO(m core.Member) memberDTO {
	return memberDTO{ID: string(m.ID), Name: m.Name}
}

type groupDTO struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	MemberIDs []string `json:"member_ids"`
}

func toGroupDTO(g core.Group) groupDTO {
	ids := make([]string, 0, len(g.MemberIDs))
	for _, id := range g.MemberIDs {
		ids = append(ids, string(id))
	}
	return groupDTO{ID: string(g.ID), Name: g.Name, MemberIDs: ids}
}

type expenseDTO struct {
	ID          string `json:"id"`
	GroupID     string `json:"group_id"`
	PayerID     string `json:"payer_id"`
	Name        string `json:"name"`
	Amount      string `json:"amount"`
	AmountCents int64  `json:"amount_cents"`
	Category    string `json:"category"`
	SpentAt     string `json:"spent_at"`
}

func toExpenseDTO(e core.Expense) expenseDTO {
	return expenseDTO{
		ID:          string(e.ID),
		GroupID:     string(e.GroupID),
		PayerID:     string(e.PayerID),
		Name:        e.Name,
		Amount:      e.Amount.String(),
		AmountCents: e.Amount.Cents,
		Category:    string(e.Category),
		SpentAt:     e.SpentAt.UTC().Format(time.RFC3339),
	}
}

type balanceDTO struct {
	MemberID    string `json:"member_id"`
	Name        string `json:"name"`
	Amount      string `json:"amount"`
	AmountCents int64  `json:"amount_cents"`
}

type balancesDTO struct {
	GroupID  string       `json:"group_id"`
	Balances []balanceDTO `json:"balances"`
}

func toBalancesDTO(v service.GroupBalances) balancesDTO {
	out := balancesDTO{GroupID: string(v.GroupID), Balances: make([]balanceDTO, 0, len(v.Balances))}
	for _, b := range v.Balances {
		out.Balances = append(out.Balances, balanceDTO{
			MemberID:    string(b.MemberID),
			Name:        b.Name,
			Amount:      b.Amount.String(),
			AmountCents: b.Amount.Cents,
		})
	}
	return out
}
