package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"splitledger/internal/core"
)

// CreateMember mints a new member with a fresh identifier.
func (r *Repository) CreateMember(ctx context.Context, name string) (core.Member, error) {
	m := core.Member{ID: core.MemberID(core.NewID()), Name: name}
	if err := m.Validate(); err != nil {
		return core.Member{}, err
	}

	err := r.withTx(ctx, "create member", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO members (id, name, version, updated_at) VALUES (?, ?, 1, ?)`,
			m.ID, m.Name, nowStamp())
		return err
	})
	if err != nil {
		return core.Member{}, err
	}

	slog.InfoContext(ctx, "Member created", "member_id", m.ID, "name", m.Name)
	return m, nil
}

// RenameMember changes the display name; identity never changes.
func (r *Repository) RenameMember(ctx context.Context, id core.MemberID, name string) error {
	if err := (core.Member{ID: id, Name: name}).Validate(); err != nil {
		return err
	}
	return r.withTx(ctx, "rename member", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE members SET name = ?, version = version + 1, updated_at = ?
			 WHERE id = ? AND deleted_at IS NULL`,
			name, nowStamp(), id)
		if err != nil {
			return err
		}
		return requireRow(res, id)
	})
}

// DeleteMember tombstones a member. Historical expenses keep the payer
// reference for audit; group membership rows are removed so balance
// computation stops crediting the departed payer.
func (r *Repository) DeleteMember(ctx context.Context, id core.MemberID) error {
	err := r.withTx(ctx, "delete member", func(tx *sql.Tx) error {
		now := nowStamp()
		res, err := tx.ExecContext(ctx,
			`UPDATE members SET deleted_at = ?, version = version + 1, updated_at = ?
			 WHERE id = ? AND deleted_at IS NULL`,
			now, now, id)
		if err != nil {
			return err
		}
		if err := requireRow(res, id); err != nil {
			return err
		}
		// Membership is an association, not ownership: drop the rows and
		// bump the affected groups so the change replicates.
		if _, err := tx.ExecContext(ctx,
			`UPDATE groups SET version = version + 1, updated_at = ?
			 WHERE id IN (SELECT group_id FROM group_members WHERE member_id = ?)`,
			now, id); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM group_members WHERE member_id = ?`, id)
		return err
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Member deleted", "member_id", id)
	return nil
}

// GetMember returns a live member, or core.ErrNotFound.
func (r *Repository) GetMember(ctx context.Context, id core.MemberID) (core.Member, error) {
	var m core.Member
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name FROM members WHERE id = ? AND deleted_at IS NULL`, id).
		Scan(&m.ID, &m.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Member{}, fmt.Errorf("member %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Member{}, wrapErr("get member", err)
	}
	return m, nil
}

// ListMembers returns all live members ordered by identifier.
func (r *Repository) ListMembers(ctx context.Context) ([]core.Member, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name FROM members WHERE deleted_at IS NULL ORDER BY id`)
	if err != nil {
		return nil, wrapErr("list members", err)
	}
	defer rows.Close()

	var members []core.Member
	for rows.Next() {
		var m core.Member
		if err := rows.Scan(&m.ID, &m.Name); err != nil {
			return nil, wrapErr("list members", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list members", err)
	}
	return members, nil
}

// requireRow converts a zero-row update into core.ErrNotFound.
func requireRow(res sql.Result, id any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%v: %w", id, core.ErrNotFound)
	}
	return nil
}
