package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"splitledger/internal/core"
)

// ExpenseFilter narrows ListExpenses. Zero values mean "no constraint".
type ExpenseFilter struct {
	GroupID core.GroupID
	From    time.Time
	To      time.Time
}

// SortField selects the ListExpenses ordering column.
type SortField string

const (
	SortByDate   SortField = "date"
	SortByAmount SortField = "amount"
	SortByName   SortField = "name"
)

// ExpenseSort describes the requested ordering. The zero value sorts by
// date descending, the default for list views.
type ExpenseSort struct {
	Field     SortField
	Ascending bool
}

func (s ExpenseSort) orderClause() string {
	col := "spent_at"
	switch s.Field {
	case SortByAmount:
		col = "amount_cents"
	case SortByName:
		col = "name"
	}
	dir := "DESC"
	if s.Ascending {
		dir = "ASC"
	}
	// Identifier tiebreak keeps the ordering reproducible.
	return fmt.Sprintf("ORDER BY %s %s, id %s", col, dir, dir)
}

// ExpenseUpdate carries the fields to change; nil pointers are left alone.
type ExpenseUpdate struct {
	Name     *string
	Amount   *core.Money
	Category *core.Category
	SpentAt  *time.Time
	PayerID  *core.MemberID
}

// CreateExpense validates that the payer belongs to the owning group, then
// inserts the expense.
func (r *Repository) CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	e.ID = core.ExpenseID(core.NewID())
	e.Category = core.ParseCategory(string(e.Category))
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}

	err := r.withTx(ctx, "create expense", func(tx *sql.Tx) error {
		if err := requireLive(ctx, tx, "groups", string(e.GroupID)); err != nil {
			return err
		}
		var isMember int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM group_members WHERE group_id = ? AND member_id = ?`,
			e.GroupID, e.PayerID).Scan(&isMember)
		if err != nil {
			return err
		}
		if isMember == 0 {
			return fmt.Errorf("payer %s in group %s: %w", e.PayerID, e.GroupID, core.ErrNotMember)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO expenses (id, group_id, payer_id, name, amount_cents, category, spent_at, version, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?)`,
			e.ID, e.GroupID, e.PayerID, e.Name, e.Amount.Cents, e.Category, formatTime(e.SpentAt), nowStamp())
		return err
	})
	if err != nil {
		return core.Expense{}, err
	}

	slog.InfoContext(ctx, "Expense created",
		"expense_id", e.ID,
		"group_id", e.GroupID,
		"amount_cents", e.Amount.Cents,
		"category", e.Category)
	return e, nil
}

// UpdateExpense applies the non-nil fields of upd to one expense.
func (r *Repository) UpdateExpense(ctx context.Context, id core.ExpenseID, upd ExpenseUpdate) error {
	return r.withTx(ctx, "update expense", func(tx *sql.Tx) error {
		e, err := scanExpense(tx.QueryRowContext(ctx, selectExpense+` WHERE id = ? AND deleted_at IS NULL`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("expense %s: %w", id, core.ErrNotFound)
		}
		if err != nil {
			return err
		}

		if upd.Name != nil {
			e.Name = *upd.Name
		}
		if upd.Amount != nil {
			e.Amount = *upd.Amount
		}
		if upd.Category != nil {
			e.Category = core.ParseCategory(string(*upd.Category))
		}
		if upd.SpentAt != nil {
			e.SpentAt = *upd.SpentAt
		}
		if upd.PayerID != nil {
			var isMember int
			err := tx.QueryRowContext(ctx,
				`SELECT COUNT(*) FROM group_members WHERE group_id = ? AND member_id = ?`,
				e.GroupID, *upd.PayerID).Scan(&isMember)
			if err != nil {
				return err
			}
			if isMember == 0 {
				return fmt.Errorf("payer %s in group %s: %w", *upd.PayerID, e.GroupID, core.ErrNotMember)
			}
			e.PayerID = *upd.PayerID
		}
		if err := e.Validate(); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE expenses SET name = ?, amount_cents = ?, category = ?, spent_at = ?, payer_id = ?,
			 version = version + 1, updated_at = ? WHERE id = ?`,
			e.Name, e.Amount.Cents, e.Category, formatTime(e.SpentAt), e.PayerID, nowStamp(), id)
		return err
	})
}

// DeleteExpense tombstones one expense.
func (r *Repository) DeleteExpense(ctx context.Context, id core.ExpenseID) error {
	return r.withTx(ctx, "delete expense", func(tx *sql.Tx) error {
		now := nowStamp()
		res, err := tx.ExecContext(ctx,
			`UPDATE expenses SET deleted_at = ?, version = version + 1, updated_at = ?
			 WHERE id = ? AND deleted_at IS NULL`,
			now, now, id)
		if err != nil {
			return err
		}
		return requireRow(res, id)
	})
}

const selectExpense = `SELECT id, group_id, payer_id, name, amount_cents, category, spent_at FROM expenses`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(row rowScanner) (core.Expense, error) {
	var e core.Expense
	var cents int64
	var category, spentAt string
	if err := row.Scan(&e.ID, &e.GroupID, &e.PayerID, &e.Name, &cents, &category, &spentAt); err != nil {
		return core.Expense{}, err
	}
	e.Amount = core.Money{Cents: cents}
	e.Category = core.ParseCategory(category)
	t, err := parseTime(spentAt)
	if err != nil {
		return core.Expense{}, fmt.Errorf("parse spent_at: %w", err)
	}
	e.SpentAt = t
	return e, nil
}

// GetExpense returns a live expense, or core.ErrNotFound.
func (r *Repository) GetExpense(ctx context.Context, id core.ExpenseID) (core.Expense, error) {
	e, err := scanExpense(r.db.QueryRowContext(ctx, selectExpense+` WHERE id = ? AND deleted_at IS NULL`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, fmt.Errorf("expense %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Expense{}, wrapErr("get expense", err)
	}
	return e, nil
}

// ListExpenses returns live expenses matching the filter in the requested
// order.
func (r *Repository) ListExpenses(ctx context.Context, filter ExpenseFilter, sort ExpenseSort) ([]core.Expense, error) {
	query := selectExpense + ` WHERE deleted_at IS NULL`
	var args []any
	if filter.GroupID != "" {
		query += ` AND group_id = ?`
		args = append(args, filter.GroupID)
	}
	if !filter.From.IsZero() {
		query += ` AND spent_at >= ?`
		args = append(args, formatTime(filter.From))
	}
	if !filter.To.IsZero() {
		query += ` AND spent_at <= ?`
		args = append(args, formatTime(filter.To))
	}
	query += " " + sort.orderClause()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("list expenses", err)
	}
	defer rows.Close()

	var expenses []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, wrapErr("list expenses", err)
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list expenses", err)
	}
	return expenses, nil
}

// Snapshot is a consistent point-in-time view of one group, the input to the
// balance calculator.
type Snapshot struct {
	Group    core.Group
	Members  []core.Member
	Expenses []core.Expense
}

// GroupSnapshot reads the group, its members and its expenses inside one
// read transaction so derived computations see a consistent state.
func (r *Repository) GroupSnapshot(ctx context.Context, id core.GroupID) (Snapshot, error) {
	var snap Snapshot
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return snap, wrapErr("group snapshot", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx,
		`SELECT id, name FROM groups WHERE id = ? AND deleted_at IS NULL`, id).
		Scan(&snap.Group.ID, &snap.Group.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return snap, fmt.Errorf("group %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return snap, wrapErr("group snapshot", err)
	}

	// Members whose rows were tombstoned after joining are treated as
	// departed: the join row survives only for live members.
	rows, err := tx.QueryContext(ctx,
		`SELECT m.id, m.name FROM group_members gm
		 JOIN members m ON m.id = gm.member_id AND m.deleted_at IS NULL
		 WHERE gm.group_id = ? ORDER BY m.id`, id)
	if err != nil {
		return snap, wrapErr("group snapshot", err)
	}
	for rows.Next() {
		var m core.Member
		if err := rows.Scan(&m.ID, &m.Name); err != nil {
			rows.Close()
			return snap, wrapErr("group snapshot", err)
		}
		snap.Members = append(snap.Members, m)
		snap.Group.MemberIDs = append(snap.Group.MemberIDs, m.ID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return snap, wrapErr("group snapshot", err)
	}
	rows.Close()

	expRows, err := tx.QueryContext(ctx,
		selectExpense+` WHERE group_id = ? AND deleted_at IS NULL ORDER BY spent_at DESC, id DESC`, id)
	if err != nil {
		return snap, wrapErr("group snapshot", err)
	}
	defer expRows.Close()
	for expRows.Next() {
		e, err := scanExpense(expRows)
		if err != nil {
			return snap, wrapErr("group snapshot", err)
		}
		snap.Expenses = append(snap.Expenses, e)
	}
	if err := expRows.Err(); err != nil {
		return snap, wrapErr("group snapshot", err)
	}
	return snap, nil
}
