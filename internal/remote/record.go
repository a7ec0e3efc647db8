package remote

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"splitledger/internal/core"
)

// Kind discriminates the entity a record describes.
type Kind string

const (
	KindMember  Kind = "member"
	KindGroup   Kind = "group"
	KindExpense Kind = "expense"
)

// Kinds lists entity kinds in dependency order: members and groups must
// exist before the expenses that reference them.
var Kinds = []Kind{KindMember, KindGroup, KindExpense}

// Field keys shared by the record codec, the sync baseline and the remote
// adapters. Values are canonical strings so field-level comparison is a
// plain string compare.
const (
	FieldName        = "name"
	FieldMemberIDs   = "member_ids"
	FieldGroupID     = "group_id"
	FieldPayerID     = "payer_id"
	FieldAmountCents = "amount_cents"
	FieldCategory    = "category"
	FieldSpentAt     = "spent_at"
)

// Record is the flat wire form of one entity: an identifier plus a map of
// canonical field strings. Rev is assigned by the remote store; Deleted
// marks a tombstone.
type Record struct {
	Kind    Kind
	ID      string
	Rev     int64
	Deleted bool
	Fields  map[string]string
}

// Tombstone builds a deletion record for the given entity.
func Tombstone(kind Kind, id string) Record {
	return Record{Kind: kind, ID: id, Deleted: true, Fields: map[string]string{}}
}

func MemberRecord(m core.Member) Record {
	return Record{
		Kind: KindMember,
		ID:   string(m.ID),
		Fields: map[string]string{
			FieldName: m.Name,
		},
	}
}

func GroupRecord(g core.Group) Record {
	ids := make([]string, len(g.MemberIDs))
	for i, id := range g.MemberIDs {
		ids[i] = string(id)
	}
	sort.Strings(ids)
	return Record{
		Kind: KindGroup,
		ID:   string(g.ID),
		Fields: map[string]string{
			FieldName:      g.Name,
			FieldMemberIDs: strings.Join(ids, ","),
		},
	}
}

func ExpenseRecord(e core.Expense) Record {
	return Record{
		Kind: KindExpense,
		ID:   string(e.ID),
		Fields: map[string]string{
			FieldGroupID:     string(e.GroupID),
			FieldPayerID:     string(e.PayerID),
			FieldName:        e.Name,
			FieldAmountCents: strconv.FormatInt(e.Amount.Cents, 10),
			FieldCategory:    string(e.Category),
			FieldSpentAt:     e.SpentAt.UTC().Format(time.RFC3339),
		},
	}
}

func ToMember(r Record) (core.Member, error) {
	if r.Kind != KindMember {
		return core.Member{}, fmt.Errorf("record %s/%s: %w", r.Kind, r.ID, core.ErrUnknownEntity)
	}
	return core.Member{
		ID:   core.MemberID(r.ID),
		Name: r.Fields[FieldName],
	}, nil
}

func ToGroup(r Record) (core.Group, error) {
	if r.Kind != KindGroup {
		return core.Group{}, fmt.Errorf("record %s/%s: %w", r.Kind, r.ID, core.ErrUnknownEntity)
	}
	g := core.Group{
		ID:   core.GroupID(r.ID),
		Name: r.Fields[FieldName],
	}
	if raw := r.Fields[FieldMemberIDs]; raw != "" {
		for _, id := range strings.Split(raw, ",") {
			g.MemberIDs = append(g.MemberIDs, core.MemberID(id))
		}
	}
	return g, nil
}

func ToExpense(r Record) (core.Expense, error) {
	if r.Kind != KindExpense {
		return core.Expense{}, fmt.Errorf("record %s/%s: %w", r.Kind, r.ID, core.ErrUnknownEntity)
	}
	cents, err := strconv.ParseInt(r.Fields[FieldAmountCents], 10, 64)
	if err != nil {
		return core.Expense{}, fmt.Errorf("record %s/%s: parse amount: %w", r.Kind, r.ID, err)
	}
	spentAt, err := time.Parse(time.RFC3339, r.Fields[FieldSpentAt])
	if err != nil {
		return core.Expense{}, fmt.Errorf("record %s/%s: parse date: %w", r.Kind, r.ID, err)
	}
	return core.Expense{
		ID:       core.ExpenseID(r.ID),
		GroupID:  core.GroupID(r.Fields[FieldGroupID]),
		PayerID:  core.MemberID(r.Fields[FieldPayerID]),
		Name:     r.Fields[FieldName],
		Amount:   core.Money{Cents: cents},
		Category: core.ParseCategory(r.Fields[FieldCategory]),
		SpentAt:  spentAt,
	}, nil
}

// Clone returns a deep copy so staged merges never alias a caller's map.
func (r Record) Clone() Record {
	fields := make(map[string]string, len(r.Fields))
	for k, v := range r.Fields {
		fields[k] = v
	}
	out := r
	out.Fields = fields
	return out
}
