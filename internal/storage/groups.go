package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"splitledger/internal/core"
)

// CreateGroup mints a new empty group.
func (r *Repository) CreateGroup(ctx context.Context, name string) (core.Group, error) {
	g := core.Group{ID: core.GroupID(core.NewID()), Name: name}
	if err := g.Validate(); err != nil {
		return core.Group{}, err
	}

	err := r.withTx(ctx, "create group", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO groups (id, name, version, updated_at) VALUES (?, ?, 1, ?)`,
			g.ID, g.Name, nowStamp())
		return err
	})
	if err != nil {
		return core.Group{}, err
	}

	slog.InfoContext(ctx, "Group created", "group_id", g.ID, "name", g.Name)
	return g, nil
}

// RenameGroup changes the group name.
func (r *Repository) RenameGroup(ctx context.Context, id core.GroupID, name string) error {
	if err := (core.Group{ID: id, Name: name}).Validate(); err != nil {
		return err
	}
	return r.withTx(ctx, "rename group", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE groups SET name = ?, version = version + 1, updated_at = ?
			 WHERE id = ? AND deleted_at IS NULL`,
			name, nowStamp(), id)
		if err != nil {
			return err
		}
		return requireRow(res, id)
	})
}

// DeleteGroup tombstones the group and cascades to its expenses in the same
// transaction: the group exclusively owns them.
func (r *Repository) DeleteGroup(ctx context.Context, id core.GroupID) error {
	err := r.withTx(ctx, "delete group", func(tx *sql.Tx) error {
		now := nowStamp()
		res, err := tx.ExecContext(ctx,
			`UPDATE groups SET deleted_at = ?, version = version + 1, updated_at = ?
			 WHERE id = ? AND deleted_at IS NULL`,
			now, now, id)
		if err != nil {
			return err
		}
		if err := requireRow(res, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE expenses SET deleted_at = ?, version = version + 1, updated_at = ?
			 WHERE group_id = ? AND deleted_at IS NULL`,
			now, now, id); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM group_members WHERE group_id = ?`, id)
		return err
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Group deleted", "group_id", id)
	return nil
}

// AddMember associates a member with a group.
func (r *Repository) AddMember(ctx context.Context, groupID core.GroupID, memberID core.MemberID) error {
	return r.withTx(ctx, "add member", func(tx *sql.Tx) error {
		if err := requireLive(ctx, tx, "groups", string(groupID)); err != nil {
			return err
		}
		if err := requireLive(ctx, tx, "members", string(memberID)); err != nil {
			return err
		}
		var exists int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM group_members WHERE group_id = ? AND member_id = ?`,
			groupID, memberID).Scan(&exists)
		if err != nil {
			return err
		}
		if exists > 0 {
			return fmt.Errorf("%s in %s: %w", memberID, groupID, core.ErrAlreadyMember)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO group_members (group_id, member_id) VALUES (?, ?)`,
			groupID, memberID); err != nil {
			return err
		}
		// Membership is part of the group's replicated state.
		_, err = tx.ExecContext(ctx,
			`UPDATE groups SET version = version + 1, updated_at = ? WHERE id = ?`,
			nowStamp(), groupID)
		return err
	})
}

// RemoveMember dissolves the association. The member's historical expenses
// stay behind, excluded from paid accumulation by the balance calculator.
func (r *Repository) RemoveMember(ctx context.Context, groupID core.GroupID, memberID core.MemberID) error {
	return r.withTx(ctx, "remove member", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM group_members WHERE group_id = ? AND member_id = ?`,
			groupID, memberID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%s in %s: %w", memberID, groupID, core.ErrMemberNotFound)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE groups SET version = version + 1, updated_at = ? WHERE id = ?`,
			nowStamp(), groupID)
		return err
	})
}

// GetGroup returns a live group with its membership.
func (r *Repository) GetGroup(ctx context.Context, id core.GroupID) (core.Group, error) {
	var g core.Group
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name FROM groups WHERE id = ? AND deleted_at IS NULL`, id).
		Scan(&g.ID, &g.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Group{}, fmt.Errorf("group %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Group{}, wrapErr("get group", err)
	}

	memberIDs, err := r.groupMemberIDs(ctx, r.db, id)
	if err != nil {
		return core.Group{}, err
	}
	g.MemberIDs = memberIDs
	return g, nil
}

// ListGroups returns all live groups with their memberships, ordered by name.
func (r *Repository) ListGroups(ctx context.Context) ([]core.Group, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name FROM groups WHERE deleted_at IS NULL ORDER BY name, id`)
	if err != nil {
		return nil, wrapErr("list groups", err)
	}
	defer rows.Close()

	var groups []core.Group
	for rows.Next() {
		var g core.Group
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			return nil, wrapErr("list groups", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list groups", err)
	}

	for i := range groups {
		ids, err := r.groupMemberIDs(ctx, r.db, groups[i].ID)
		if err != nil {
			return nil, err
		}
		groups[i].MemberIDs = ids
	}
	return groups, nil
}

// querier lets membership reads run against either the pool or a transaction.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *Repository) groupMemberIDs(ctx context.Context, q querier, id core.GroupID) ([]core.MemberID, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT member_id FROM group_members WHERE group_id = ? ORDER BY member_id`, id)
	if err != nil {
		return nil, wrapErr("group members", err)
	}
	defer rows.Close()

	var ids []core.MemberID
	for rows.Next() {
		var mid core.MemberID
		if err := rows.Scan(&mid); err != nil {
			return nil, wrapErr("group members", err)
		}
		ids = append(ids, mid)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("group members", err)
	}
	return ids, nil
}

// requireLive fails with core.ErrNotFound unless a non-deleted row exists.
func requireLive(ctx context.Context, q querier, table, id string) error {
	var one int
	err := q.QueryRowContext(ctx,
		`SELECT 1 FROM `+table+` WHERE id = ? AND deleted_at IS NULL`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", table, id, core.ErrNotFound)
	}
	return err
}
