package http

import (
	"net/http"
	"strings"
	"time"

	"splitledger/internal/core"
	"splitledger/internal/storage"
)

type expenseRequest struct {
	GroupID  string `json:"group_id"`
	PayerID  string `json:"payer_id"`
	Name     string `json:"name"`
	Amount   string `json:"amount"`
	Category string `json:"category"`
	SpentAt  string `json:"spent_at"`
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	cents, err := core.ParseDecimalToCents(req.Amount)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid amount: "+req.Amount)
		return
	}
	spentAt, err := time.Parse(time.RFC3339, req.SpentAt)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid spent_at, want RFC 3339: "+req.SpentAt)
		return
	}

	e, err := s.ledger.CreateExpense(r.Context(), core.Expense{
		GroupID:  core.GroupID(req.GroupID),
		PayerID:  core.MemberID(req.PayerID),
		Name:     req.Name,
		Amount:   core.Money{Cents: cents},
		Category: core.ParseCategory(req.Category),
		SpentAt:  spentAt,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toExpenseDTO(e))
}

type expenseUpdateRequest struct {
	PayerID  *string `json:"payer_id"`
	Name     *string `json:"name"`
	Amount   *string `json:"amount"`
	Category *string `json:"category"`
	SpentAt  *string `json:"spent_at"`
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var upd storage.ExpenseUpdate
	upd.Name = req.Name
	if req.PayerID != nil {
		payer := core.MemberID(*req.PayerID)
		upd.PayerID = &payer
	}
	if req.Amount != nil {
		cents, err := core.ParseDecimalToCents(*req.Amount)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "invalid amount: "+*req.Amount)
			return
		}
		upd.Amount = &core.Money{Cents: cents}
	}
	if req.Category != nil {
		cat := core.ParseCategory(*req.Category)
		upd.Category = &cat
	}
	if req.SpentAt != nil {
		spentAt, err := time.Parse(time.RFC3339, *req.SpentAt)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "invalid spent_at, want RFC 3339: "+*req.SpentAt)
			return
		}
		upd.SpentAt = &spentAt
	}

	id := core.ExpenseID(r.PathValue("id"))
	if err := s.ledger.UpdateExpense(r.Context(), id, upd); err != nil {
		respondError(w, r, err)
		return
	}
	e, err := s.ledger.GetExpense(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenseDTO(e))
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	e, err := s.ledger.GetExpense(r.Context(), core.ExpenseID(r.PathValue("id")))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenseDTO(e))
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteExpense(r.Context(), core.ExpenseID(r.PathValue("id"))); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	filter, ok := expenseFilterFromQuery(w, r)
	if !ok {
		return
	}

	sort := storage.ExpenseSort{}
	switch v := strings.TrimSpace(r.URL.Query().Get("sort")); v {
	case "", "date":
		sort.Field = storage.SortByDate
	case "amount":
		sort.Field = storage.SortByAmount
	case "name":
		sort.Field = storage.SortByName
	default:
		writeError(w, http.StatusBadRequest, "invalid sort field: "+v)
		return
	}
	if v := strings.TrimSpace(r.URL.Query().Get("order")); v == "asc" {
		sort.Ascending = true
	}

	expenses, err := s.ledger.ListExpenses(r.Context(), filter, sort)
	if err != nil {
		respondError(w, r, err)
		return
	}
	out := make([]expenseDTO, 0, len(expenses))
	for _, e := range expenses {
		out = append(out, toExpenseDTO(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func expenseFilterFromQuery(w http.ResponseWriter, r *http.Request) (storage.ExpenseFilter, bool) {
	var filter storage.ExpenseFilter
	q := r.URL.Query()
	filter.GroupID = core.GroupID(strings.TrimSpace(q.Get("group_id")))
	if v := strings.TrimSpace(q.Get("from")); v != "" {
		from, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from, want RFC 3339: "+v)
			return filter, false
		}
		filter.From = from
	}
	if v := strings.TrimSpace(q.Get("to")); v != "" {
		to, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid to, want RFC 3339: "+v)
			return filter, false
		}
		filter.To = to
	}
	return filter, true
}
