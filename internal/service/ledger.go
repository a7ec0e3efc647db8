// Package service orchestrates ledger operations across storage, AMQP and
// the sync engine. Writes land in SQLite first; the change notification and
// the cache invalidation are best-effort side effects.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"splitledger/internal/balance"
	"splitledger/internal/cache"
	"splitledger/internal/core"
	"splitledger/internal/remote"
	"splitledger/internal/storage"
	syncpkg "splitledger/internal/sync"
)

// ChangePublisher notifies other processes that a local entity changed.
// *amqp.Client satisfies it.
type ChangePublisher interface {
	PublishChange(ctx context.Context, kind, id string, version int64) error
}

// MemberBalance is one member's net position within a group.
type MemberBalance struct {
	MemberID core.MemberID
	Name     string
	Amount   core.Money
}

// GroupBalances is the computed settlement view of one group, ordered by
// member ID.
type GroupBalances struct {
	GroupID  core.GroupID
	Balances []MemberBalance
}

const (
	balanceCacheSize = 256
	balanceCacheTTL  = 5 * time.Minute
)

// Ledger is the application service in front of the repository.
type Ledger struct {
	repo        *storage.Repository
	publisher   ChangePublisher
	engine      *syncpkg.Engine
	balances    *cache.LRUCache[GroupBalances]
	unsubscribe func()
}

// NewLedger wires the service. publisher and engine may be nil; without
// them writes stay local-only and no cache invalidation happens on import.
func NewLedger(repo *storage.Repository, publisher ChangePublisher, engine *syncpkg.Engine) *Ledger {
	l := &Ledger{
		repo:      repo,
		publisher: publisher,
		engine:    engine,
		balances:  cache.NewLRUCache[GroupBalances](balanceCacheSize, balanceCacheTTL),
	}
	if engine != nil {
		// An import can touch any group, so the whole balance cache goes.
		l.unsubscribe = engine.Subscribe(func(ev syncpkg.Event) {
			if ev.Type == syncpkg.EventImport && ev.Phase == syncpkg.PhaseCompleted && ev.Summary.Total() > 0 {
				l.balances.Purge()
			}
		})
	}
	return l
}

// Close detaches the service from the sync engine.
func (l *Ledger) Close() error {
	if l.unsubscribe != nil {
		l.unsubscribe()
		l.unsubscribe = nil
	}
	return nil
}

// --- members ---

func (l *Ledger) CreateMember(ctx context.Context, name string) (core.Member, error) {
	m, err := l.repo.CreateMember(ctx, name)
	if err != nil {
		return core.Member{}, fmt.Errorf("create member: %w", err)
	}
	l.publishChange(ctx, remote.KindMember, string(m.ID))
	return m, nil
}

func (l *Ledger) RenameMember(ctx context.Context, id core.MemberID, name string) error {
	if err := l.repo.RenameMember(ctx, id, name); err != nil {
		return fmt.Errorf("rename member: %w", err)
	}
	l.publishChange(ctx, remote.KindMember, string(id))
	// Cached balance views carry the display name.
	l.balances.Purge()
	return nil
}

func (l *Ledger) DeleteMember(ctx context.Context, id core.MemberID) error {
	if err := l.repo.DeleteMember(ctx, id); err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	l.publishChange(ctx, remote.KindMember, string(id))
	l.balances.Purge()
	return nil
}

func (l *Ledger) GetMember(ctx context.Context, id core.MemberID) (core.Member, error) {
	return l.repo.GetMember(ctx, id)
}

func (l *Ledger) ListMembers(ctx context.Context) ([]core.Member, error) {
	return l.repo.ListMembers(ctx)
}

// --- groups ---

func (l *Ledger) CreateGroup(ctx context.Context, name string) (core.Group, error) {
	g, err := l.repo.CreateGroup(ctx, name)
	if err != nil {
		return core.Group{}, fmt.Errorf("create group: %w", err)
	}
	l.publishChange(ctx, remote.KindGroup, string(g.ID))
	return g, nil
}

func (l *Ledger) RenameGroup(ctx context.Context, id core.GroupID, name string) error {
	if err := l.repo.RenameGroup(ctx, id, name); err != nil {
		return fmt.Errorf("rename group: %w", err)
	}
	l.publishChange(ctx, remote.KindGroup, string(id))
	return nil
}

func (l *Ledger) DeleteGroup(ctx context.Context, id core.GroupID) error {
	if err := l.repo.DeleteGroup(ctx, id); err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	l.publishChange(ctx, remote.KindGroup, string(id))
	l.balances.Invalidate(string(id))
	return nil
}

func (l *Ledger) AddMember(ctx context.Context, groupID core.GroupID, memberID core.MemberID) error {
	if err := l.repo.AddMember(ctx, groupID, memberID); err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	l.publishChange(ctx, remote.KindGroup, string(groupID))
	l.balances.Invalidate(string(groupID))
	return nil
}

func (l *Ledger) RemoveMember(ctx context.Context, groupID core.GroupID, memberID core.MemberID) error {
	if err := l.repo.RemoveMember(ctx, groupID, memberID); err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	l.publishChange(ctx, remote.KindGroup, string(groupID))
	l.balances.Invalidate(string(groupID))
	return nil
}

func (l *Ledger) GetGroup(ctx context.Context, id core.GroupID) (core.Group, error) {
	return l.repo.GetGroup(ctx, id)
}

func (l *Ledger) ListGroups(ctx context.Context) ([]core.Group, error) {
	return l.repo.ListGroups(ctx)
}

// --- expenses ---

func (l *Ledger) CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	created, err := l.repo.CreateExpense(ctx, e)
	if err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}
	l.publishChange(ctx, remote.KindExpense, string(created.ID))
	l.balances.Invalidate(string(created.GroupID))
	return created, nil
}

func (l *Ledger) UpdateExpense(ctx context.Context, id core.ExpenseID, upd storage.ExpenseUpdate) error {
	if err := l.repo.UpdateExpense(ctx, id, upd); err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	l.publishChange(ctx, remote.KindExpense, string(id))
	l.balances.Purge()
	return nil
}

func (l *Ledger) DeleteExpense(ctx context.Context, id core.ExpenseID) error {
	e, err := l.repo.GetExpense(ctx, id)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	if err := l.repo.DeleteExpense(ctx, id); err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	l.publishChange(ctx, remote.KindExpense, string(id))
	l.balances.Invalidate(string(e.GroupID))
	return nil
}

func (l *Ledger) GetExpense(ctx context.Context, id core.ExpenseID) (core.Expense, error) {
	return l.repo.GetExpense(ctx, id)
}

func (l *Ledger) ListExpenses(ctx context.Context, filter storage.ExpenseFilter, sort storage.ExpenseSort) ([]core.Expense, error) {
	return l.repo.ListExpenses(ctx, filter, sort)
}

// --- views ---

// Balances computes (or serves from cache) the settlement view of a group.
func (l *Ledger) Balances(ctx context.Context, id core.GroupID) (GroupBalances, error) {
	if cached, ok := l.balances.Get(string(id)); ok {
		return cached, nil
	}

	snap, err := l.repo.GroupSnapshot(ctx, id)
	if err != nil {
		return GroupBalances{}, fmt.Errorf("group snapshot: %w", err)
	}

	net := balance.Compute(snap.Members, snap.Expenses)
	members := make([]core.Member, len(snap.Members))
	copy(members, snap.Members)
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })

	view := GroupBalances{GroupID: id, Balances: make([]MemberBalance, 0, len(members))}
	for _, m := range members {
		view.Balances = append(view.Balances, MemberBalance{
			MemberID: m.ID,
			Name:     m.Name,
			Amount:   net[m.ID],
		})
	}

	l.balances.Set(string(id), view)
	return view, nil
}

// CategorySummary aggregates expense totals by category over an optional
// group and date range.
func (l *Ledger) CategorySummary(ctx context.Context, filter storage.ExpenseFilter) ([]balance.CategoryTotal, error) {
	expenses, err := l.repo.ListExpenses(ctx, filter, storage.ExpenseSort{})
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return balance.AggregateByCategory(expenses), nil
}

// SyncStatus reports the engine state, or a zero status when the service
// runs without an engine.
func (l *Ledger) SyncStatus() syncpkg.Status {
	if l.engine == nil {
		return syncpkg.Status{State: syncpkg.StateIdle}
	}
	return l.engine.Status()
}

func (l *Ledger) publishChange(ctx context.Context, kind remote.Kind, id string) {
	if l.publisher == nil {
		return
	}
	version, err := l.repo.EntityVersion(ctx, kind, id)
	if err != nil {
		slog.WarnContext(ctx, "Failed to read entity version for change message",
			"kind", kind, "id", id, "error", err)
		version = 0
	}
	if err := l.publisher.PublishChange(ctx, string(kind), id, version); err != nil {
		// The write already landed locally; sync will pick it up later.
		slog.ErrorContext(ctx, "Failed to publish change message",
			"kind", kind, "id", id, "error", err)
	}
}
