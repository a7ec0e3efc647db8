package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"splitledger/internal/core"
	"splitledger/internal/storage"
)

type publishedChange struct {
	Kind    string
	ID      string
	Version int64
}

type stubPublisher struct {
	mu      sync.Mutex
	changes []publishedChange
	err     error
}

func (p *stubPublisher) PublishChange(_ context.Context, kind, id string, version int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.changes = append(p.changes, publishedChange{Kind: kind, ID: id, Version: version})
	return nil
}

func (p *stubPublisher) published() []publishedChange {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]publishedChange, len(p.changes))
	copy(out, p.changes)
	return out
}

func testLedger(t *testing.T) (*Ledger, *stubPublisher) {
	t.Helper()
	repo, err := storage.Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	pub := &stubPublisher{}
	l := NewLedger(repo, pub, nil)
	t.Cleanup(func() { l.Close() })
	return l, pub
}

func seedGroup(t *testing.T, l *Ledger) (core.Group, core.Member, core.Member) {
	t.Helper()
	ctx := context.Background()
	g, err := l.CreateGroup(ctx, "Trip")
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	alice, err := l.CreateMember(ctx, "Alice")
	if err != nil {
		t.Fatalf("create member: %v", err)
	}
	bob, err := l.CreateMember(ctx, "Bob")
	if err != nil {
		t.Fatalf("create member: %v", err)
	}
	for _, m := range []core.Member{alice, bob} {
		if err := l.AddMember(ctx, g.ID, m.ID); err != nil {
			t.Fatalf("add member: %v", err)
		}
	}
	return g, alice, bob
}

var spentAt = time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC)

func TestCreateExpensePublishesChange(t *testing.T) {
	l, pub := testLedger(t)
	ctx := context.Background()
	g, alice, _ := seedGroup(t, l)

	e, err := l.CreateExpense(ctx, core.Expense{
		GroupID:  g.ID,
		PayerID:  alice.ID,
		Name:     "Dinner",
		Amount:   core.Money{Cents: 3000},
		Category: core.CategoryFood,
		SpentAt:  spentAt,
	})
	if err != nil {
		t.Fatalf("create expense: %v", err)
	}

	changes := pub.published()
	last := changes[len(changes)-1]
	if last.Kind != "expense" || last.ID != string(e.ID) {
		t.Errorf("last change = %+v, want expense %s", last, e.ID)
	}
	if last.Version != 1 {
		t.Errorf("version = %d, want 1", last.Version)
	}
}

func TestPublishFailureDoesNotFailWrite(t *testing.T) {
	l, pub := testLedger(t)
	ctx := context.Background()
	pub.err = errors.New("broker down")

	m, err := l.CreateMember(ctx, "Alice")
	if err != nil {
		t.Fatalf("create member: %v", err)
	}

	got, err := l.GetMember(ctx, m.ID)
	if err != nil {
		t.Fatalf("get member: %v", err)
	}
	if got.Name != "Alice" {
		t.Errorf("name = %q, want Alice", got.Name)
	}
}

func TestBalancesComputedAndCached(t *testing.T) {
	l, _ := testLedger(t)
	ctx := context.Background()
	g, alice, bob := seedGroup(t, l)

	if _, err := l.CreateExpense(ctx, core.Expense{
		GroupID: g.ID, PayerID: alice.ID, Name: "Hotel",
		Amount: core.Money{Cents: 3000}, Category: core.CategoryOther, SpentAt: spentAt,
	}); err != nil {
		t.Fatalf("create expense: %v", err)
	}

	view, err := l.Balances(ctx, g.ID)
	if err != nil {
		t.Fatalf("balances: %v", err)
	}
	if len(view.Balances) != 2 {
		t.Fatalf("got %d balances, want 2", len(view.Balances))
	}

	want := map[core.MemberID]int64{alice.ID: 1500, bob.ID: -1500}
	for _, b := range view.Balances {
		if b.Amount.Cents != want[b.MemberID] {
			t.Errorf("%s balance = %d, want %d", b.Name, b.Amount.Cents, want[b.MemberID])
		}
	}

	// A new expense invalidates the cached view.
	if _, err := l.CreateExpense(ctx, core.Expense{
		GroupID: g.ID, PayerID: bob.ID, Name: "Gas",
		Amount: core.Money{Cents: 1000}, Category: core.CategoryTransport, SpentAt: spentAt,
	}); err != nil {
		t.Fatalf("create expense: %v", err)
	}

	view, err = l.Balances(ctx, g.ID)
	if err != nil {
		t.Fatalf("balances after second expense: %v", err)
	}
	want = map[core.MemberID]int64{alice.ID: 1000, bob.ID: -1000}
	for _, b := range view.Balances {
		if b.Amount.Cents != want[b.MemberID] {
			t.Errorf("%s balance = %d, want %d", b.Name, b.Amount.Cents, want[b.MemberID])
		}
	}
}

func TestBalancesOrderedByMemberID(t *testing.T) {
	l, _ := testLedger(t)
	ctx := context.Background()
	g, _, _ := seedGroup(t, l)

	view, err := l.Balances(ctx, g.ID)
	if err != nil {
		t.Fatalf("balances: %v", err)
	}
	for i := 1; i < len(view.Balances); i++ {
		if view.Balances[i-1].MemberID >= view.Balances[i].MemberID {
			t.Fatalf("balances not ordered by member ID: %v", view.Balances)
		}
	}
}

func TestRenameMemberRefreshesBalanceNames(t *testing.T) {
	l, _ := testLedger(t)
	ctx := context.Background()
	g, alice, _ := seedGroup(t, l)

	// Prime the cache.
	if _, err := l.Balances(ctx, g.ID); err != nil {
		t.Fatalf("balances: %v", err)
	}

	if err := l.RenameMember(ctx, alice.ID, "Alicia"); err != nil {
		t.Fatalf("rename member: %v", err)
	}

	view, err := l.Balances(ctx, g.ID)
	if err != nil {
		t.Fatalf("balances after rename: %v", err)
	}
	for _, b := range view.Balances {
		if b.MemberID == alice.ID && b.Name != "Alicia" {
			t.Errorf("balance name = %q, want Alicia", b.Name)
		}
	}
}

func TestCategorySummary(t *testing.T) {
	l, _ := testLedger(t)
	ctx := context.Background()
	g, alice, bob := seedGroup(t, l)

	for _, e := range []core.Expense{
		{GroupID: g.ID, PayerID: alice.ID, Name: "Dinner", Amount: core.Money{Cents: 3000}, Category: core.CategoryFood, SpentAt: spentAt},
		{GroupID: g.ID, PayerID: bob.ID, Name: "Lunch", Amount: core.Money{Cents: 1000}, Category: core.CategoryFood, SpentAt: spentAt},
		{GroupID: g.ID, PayerID: bob.ID, Name: "Taxi", Amount: core.Money{Cents: 500}, Category: core.CategoryTransport, SpentAt: spentAt},
	} {
		if _, err := l.CreateExpense(ctx, e); err != nil {
			t.Fatalf("create expense: %v", err)
		}
	}

	totals, err := l.CategorySummary(ctx, storage.ExpenseFilter{GroupID: g.ID})
	if err != nil {
		t.Fatalf("category summary: %v", err)
	}

	got := map[core.Category]int64{}
	for _, ct := range totals {
		got[ct.Category] = ct.Total.Cents
	}
	if got[core.CategoryFood] != 4000 {
		t.Errorf("food total = %d, want 4000", got[core.CategoryFood])
	}
	if got[core.CategoryTransport] != 500 {
		t.Errorf("transport total = %d, want 500", got[core.CategoryTransport])
	}
}

func TestDeleteExpenseNotFound(t *testing.T) {
	l, _ := testLedger(t)
	ctx := context.Background()

	err := l.DeleteExpense(ctx, core.ExpenseID("missing"))
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("error = %v, want core.ErrNotFound", err)
	}
}
