package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"splitledger/internal/core"
	"splitledger/internal/remote"
)

const cursorKey = "remote_cursor"

// Cursor returns the revision the last import cycle stopped at (zero before
// any import).
func (r *Repository) Cursor(ctx context.Context) (int64, error) {
	var raw string
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM sync_meta WHERE key = ?`, cursorKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, wrapErr("read cursor", err)
	}
	cursor, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, wrapErr("read cursor", err)
	}
	return cursor, nil
}

// DirtyRecords returns every entity whose current state differs from its
// sync baseline, in dependency order (members, groups, expenses). A deleted
// entity with a baseline yields a tombstone; one that never synced is
// omitted, nothing remote ever knew about it.
func (r *Repository) DirtyRecords(ctx context.Context) ([]remote.Record, error) {
	var dirty []remote.Record
	for _, kind := range remote.Kinds {
		records, err := r.allRecords(ctx, kind)
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			base, err := r.baseRecord(ctx, r.db, rec.Kind, rec.ID)
			if err != nil {
				return nil, err
			}
			if base == nil {
				if rec.Deleted {
					continue
				}
				dirty = append(dirty, rec)
				continue
			}
			if recordsEqual(rec, *base) {
				continue
			}
			if rec.Deleted {
				dirty = append(dirty, remote.Tombstone(rec.Kind, rec.ID))
				continue
			}
			dirty = append(dirty, rec)
		}
	}
	return dirty, nil
}

// MarkExported records that the remote accepted these records: the baseline
// becomes the pushed state, so the entities stop being dirty.
func (r *Repository) MarkExported(ctx context.Context, records []remote.Record) error {
	return r.withTx(ctx, "mark exported", func(tx *sql.Tx) error {
		for _, rec := range records {
			if err := setBase(ctx, tx, rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// Resolver merges one incoming remote record with the local state and the
// shared baseline. local and base are nil when absent.
type Resolver func(local, base *remote.Record, incoming remote.Record) remote.Record

// ChangeSummary counts what an import cycle did, for the event payload.
type ChangeSummary struct {
	Created int
	Updated int
	Deleted int
}

func (s ChangeSummary) Total() int {
	return s.Created + s.Updated + s.Deleted
}

// ApplyImport merges a pulled batch into the store inside one transaction:
// either the whole cycle lands, with the cursor advanced, or none of it
// does. Running it serializes against ordinary local writes, so a merge
// never interleaves with a local update of the same entity.
func (r *Repository) ApplyImport(ctx context.Context, records []remote.Record, cursor int64, resolve Resolver) (ChangeSummary, error) {
	var summary ChangeSummary
	err := r.withTx(ctx, "apply import", func(tx *sql.Tx) error {
		for _, incoming := range records {
			local, err := r.localRecord(ctx, tx, incoming.Kind, incoming.ID)
			if err != nil {
				return err
			}
			base, err := r.baseRecord(ctx, tx, incoming.Kind, incoming.ID)
			if err != nil {
				return err
			}

			merged := resolve(local, base, incoming)
			if err := r.applyRecord(ctx, tx, merged); err != nil {
				return err
			}

			// The baseline becomes the remote state: fields changed only
			// locally still differ from it and stay dirty for the next
			// export.
			baseRec := incoming.Clone()
			if err := setBase(ctx, tx, baseRec); err != nil {
				return err
			}

			switch {
			case incoming.Deleted && local != nil && !local.Deleted:
				summary.Deleted++
			case local == nil && !incoming.Deleted:
				summary.Created++
			case !incoming.Deleted:
				summary.Updated++
			}
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO sync_meta (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			cursorKey, strconv.FormatInt(cursor, 10))
		return err
	})
	if err != nil {
		return ChangeSummary{}, err
	}
	return summary, nil
}

func recordsEqual(a, b remote.Record) bool {
	if a.Deleted != b.Deleted || len(a.Fields) != len(b.Fields) {
		return false
	}
	for k, v := range a.Fields {
		if b.Fields[k] != v {
			return false
		}
	}
	return true
}

func setBase(ctx context.Context, q querier, rec remote.Record) error {
	fields, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("marshal baseline: %w", err)
	}
	deleted := 0
	if rec.Deleted {
		deleted = 1
	}
	_, err = q.ExecContext(ctx,
		`INSERT INTO sync_base (kind, id, fields, deleted) VALUES (?, ?, ?, ?)
		 ON CONFLICT(kind, id) DO UPDATE SET fields = excluded.fields, deleted = excluded.deleted`,
		rec.Kind, rec.ID, string(fields), deleted)
	return err
}

func (r *Repository) baseRecord(ctx context.Context, q querier, kind remote.Kind, id string) (*remote.Record, error) {
	var raw string
	var deleted int
	err := q.QueryRowContext(ctx,
		`SELECT fields, deleted FROM sync_base WHERE kind = ? AND id = ?`, kind, id).
		Scan(&raw, &deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("read baseline", err)
	}
	fields := make(map[string]string)
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, wrapErr("read baseline", err)
	}
	return &remote.Record{Kind: kind, ID: id, Deleted: deleted == 1, Fields: fields}, nil
}

// localRecord encodes the current row (deleted or not) as a record; nil when
// no row exists at all.
func (r *Repository) localRecord(ctx context.Context, q querier, kind remote.Kind, id string) (*remote.Record, error) {
	switch kind {
	case remote.KindMember:
		var name string
		var deletedAt sql.NullString
		err := q.QueryRowContext(ctx,
			`SELECT name, deleted_at FROM members WHERE id = ?`, id).Scan(&name, &deletedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, wrapErr("local record", err)
		}
		rec := remote.Record{Kind: kind, ID: id, Deleted: deletedAt.Valid,
			Fields: map[string]string{remote.FieldName: name}}
		return &rec, nil

	case remote.KindGroup:
		var name string
		var deletedAt sql.NullString
		err := q.QueryRowContext(ctx,
			`SELECT name, deleted_at FROM groups WHERE id = ?`, id).Scan(&name, &deletedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, wrapErr("local record", err)
		}
		memberIDs, err := r.groupMemberIDs(ctx, q, core.GroupID(id))
		if err != nil {
			return nil, err
		}
		g := core.Group{ID: core.GroupID(id), Name: name, MemberIDs: memberIDs}
		rec := remote.GroupRecord(g)
		rec.Deleted = deletedAt.Valid
		return &rec, nil

	case remote.KindExpense:
		row := q.QueryRowContext(ctx,
			selectExpense+` WHERE id = ?`, id)
		e, err := scanExpense(row)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, wrapErr("local record", err)
		}
		var deletedAt sql.NullString
		if err := q.QueryRowContext(ctx,
			`SELECT deleted_at FROM expenses WHERE id = ?`, id).Scan(&deletedAt); err != nil {
			return nil, wrapErr("local record", err)
		}
		rec := remote.ExpenseRecord(e)
		rec.Deleted = deletedAt.Valid
		return &rec, nil
	}
	return nil, fmt.Errorf("%s: %w", kind, errUnknownKind)
}

// EntityVersion returns the current version counter of a row, tombstoned
// rows included.
func (r *Repository) EntityVersion(ctx context.Context, kind remote.Kind, id string) (int64, error) {
	var table string
	switch kind {
	case remote.KindMember:
		table = "members"
	case remote.KindGroup:
		table = "groups"
	case remote.KindExpense:
		table = "expenses"
	default:
		return 0, fmt.Errorf("%s: %w", kind, errUnknownKind)
	}
	var version int64
	err := r.db.QueryRowContext(ctx,
		`SELECT version FROM `+table+` WHERE id = ?`, id).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, wrapErr("entity version", core.ErrNotFound)
	}
	if err != nil {
		return 0, wrapErr("entity version", err)
	}
	return version, nil
}

// allRecords encodes every row of one kind, tombstoned rows included.
func (r *Repository) allRecords(ctx context.Context, kind remote.Kind) ([]remote.Record, error) {
	var table string
	switch kind {
	case remote.KindMember:
		table = "members"
	case remote.KindGroup:
		table = "groups"
	case remote.KindExpense:
		table = "expenses"
	default:
		return nil, fmt.Errorf("%s: %w", kind, errUnknownKind)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT id FROM `+table+` ORDER BY id`)
	if err != nil {
		return nil, wrapErr("all records", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, wrapErr("all records", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, wrapErr("all records", err)
	}
	rows.Close()

	records := make([]remote.Record, 0, len(ids))
	for _, id := range ids {
		rec, err := r.localRecord(ctx, r.db, kind, id)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			records = append(records, *rec)
		}
	}
	return records, nil
}

// applyRecord writes a merged record's state over the local rows.
func (r *Repository) applyRecord(ctx context.Context, tx *sql.Tx, rec remote.Record) error {
	now := nowStamp()
	if rec.Deleted {
		return r.applyDeletion(ctx, tx, rec, now)
	}

	switch rec.Kind {
	case remote.KindMember:
		m, err := remote.ToMember(rec)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO members (id, name, version, updated_at) VALUES (?, ?, 1, ?)
			 ON CONFLICT(id) DO UPDATE SET name = excluded.name,
			 version = version + 1, updated_at = excluded.updated_at, deleted_at = NULL`,
			m.ID, m.Name, now)
		return err

	case remote.KindGroup:
		g, err := remote.ToGroup(rec)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO groups (id, name, version, updated_at) VALUES (?, ?, 1, ?)
			 ON CONFLICT(id) DO UPDATE SET name = excluded.name,
			 version = version + 1, updated_at = excluded.updated_at, deleted_at = NULL`,
			g.ID, g.Name, now); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM group_members WHERE group_id = ?`, g.ID); err != nil {
			return err
		}
		for _, mid := range g.MemberIDs {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO group_members (group_id, member_id) VALUES (?, ?)`,
				g.ID, mid); err != nil {
				return err
			}
		}
		return nil

	case remote.KindExpense:
		e, err := remote.ToExpense(rec)
		if err != nil {
			// A malformed remote expense is a data-integrity problem, not
			// a reason to abort the whole import.
			slog.WarnContext(ctx, "Skipping malformed remote expense",
				"expense_id", rec.ID, "error", err)
			return nil
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO expenses (id, group_id, payer_id, name, amount_cents, category, spent_at, version, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?)
			 ON CONFLICT(id) DO UPDATE SET group_id = excluded.group_id,
			 payer_id = excluded.payer_id, name = excluded.name,
			 amount_cents = excluded.amount_cents, category = excluded.category,
			 spent_at = excluded.spent_at, version = version + 1,
			 updated_at = excluded.updated_at, deleted_at = NULL`,
			e.ID, e.GroupID, e.PayerID, e.Name, e.Amount.Cents, e.Category, formatTime(e.SpentAt), now)
		return err
	}
	return fmt.Errorf("%s: %w", rec.Kind, errUnknownKind)
}

func (r *Repository) applyDeletion(ctx context.Context, tx *sql.Tx, rec remote.Record, now string) error {
	switch rec.Kind {
	case remote.KindMember:
		if _, err := tx.ExecContext(ctx,
			`UPDATE members SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
			now, now, rec.ID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM group_members WHERE member_id = ?`, rec.ID)
		return err

	case remote.KindGroup:
		// Remote group deletion cascades exactly like a local one.
		if _, err := tx.ExecContext(ctx,
			`UPDATE groups SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
			now, now, rec.ID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE expenses SET deleted_at = ?, updated_at = ? WHERE group_id = ? AND deleted_at IS NULL`,
			now, now, rec.ID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM group_members WHERE group_id = ?`, rec.ID)
		return err

	case remote.KindExpense:
		_, err := tx.ExecContext(ctx,
			`UPDATE expenses SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
			now, now, rec.ID)
		return err
	}
	return fmt.Errorf("%s: %w", rec.Kind, errUnknownKind)
}

var errUnknownKind = errors.New("unknown record kind")
