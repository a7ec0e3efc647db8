package balance

import (
	"testing"
	"time"

	"splitledger/internal/core"
)

var testDate = time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)

func member(id, name string) core.Member {
	return core.Member{ID: core.MemberID(id), Name: name}
}

func expense(payer string, cents int64, cat core.Category) core.Expense {
	return core.Expense{
		ID:       core.ExpenseID(core.NewID()),
		GroupID:  "g1",
		PayerID:  core.MemberID(payer),
		Name:     "expense",
		Amount:   core.Money{Cents: cents},
		Category: cat,
		SpentAt:  testDate,
	}
}

func sumBalances(b map[core.MemberID]core.Money) int64 {
	var sum int64
	for _, m := range b {
		sum += m.Cents
	}
	return sum
}

func TestComputeTripScenario(t *testing.T) {
	// Trip: Alice pays 30.00 food, Bob pays 15.00 transport, Carol pays nothing.
	members := []core.Member{member("alice", "Alice"), member("bob", "Bob"), member("carol", "Carol")}
	expenses := []core.Expense{
		expense("alice", 3000, core.CategoryFood),
		expense("bob", 1500, core.CategoryTransport),
	}

	got := Compute(members, expenses)

	want := map[core.MemberID]int64{"alice": 1500, "bob": 0, "carol": -1500}
	for id, cents := range want {
		if got[id].Cents != cents {
			t.Fatalf("%s: expected %d, got %d", id, cents, got[id].Cents)
		}
	}
	if sum := sumBalances(got); sum != 0 {
		t.Fatalf("balances should sum to zero, got %d", sum)
	}
}

func TestComputeZeroSumWithRemainder(t *testing.T) {
	// 100 cents over 3 members does not divide evenly; largest-remainder
	// distribution must still make the balances sum to exactly zero.
	members := []core.Member{member("a", "A"), member("b", "B"), member("c", "C")}
	expenses := []core.Expense{expense("a", 100, core.CategoryOther)}

	got := Compute(members, expenses)

	if sum := sumBalances(got); sum != 0 {
		t.Fatalf("balances should sum to zero, got %d", sum)
	}
	// Shares are 34, 33, 33 in ascending member-ID order.
	if got["a"].Cents != 100-34 {
		t.Fatalf("a: expected %d, got %d", 100-34, got["a"].Cents)
	}
	if got["b"].Cents != -33 || got["c"].Cents != -33 {
		t.Fatalf("b/c: expected -33/-33, got %d/%d", got["b"].Cents, got["c"].Cents)
	}
}

func TestComputeDeterministic(t *testing.T) {
	members := []core.Member{member("x", "X"), member("m", "M"), member("z", "Z"), member("a", "A")}
	expenses := []core.Expense{
		expense("x", 1001, core.CategoryFood),
		expense("m", 333, core.CategoryHealth),
		expense("a", 7, core.CategoryOther),
	}

	first := Compute(members, expenses)
	second := Compute(members, expenses)

	if len(first) != len(second) {
		t.Fatalf("runs disagree on size: %d vs %d", len(first), len(second))
	}
	for id, m := range first {
		if second[id] != m {
			t.Fatalf("%s: runs disagree: %d vs %d", id, m.Cents, second[id].Cents)
		}
	}
	if sum := sumBalances(first); sum != 0 {
		t.Fatalf("balances should sum to zero, got %d", sum)
	}
}

func TestComputeEmptyMemberSet(t *testing.T) {
	got := Compute(nil, []core.Expense{expense("ghost", 1000, core.CategoryFood)})
	if len(got) != 0 {
		t.Fatalf("expected empty balances, got %v", got)
	}
}

func TestComputeDepartedPayer(t *testing.T) {
	// The departed payer's expense still counts toward the total but is not
	// credited to anyone, so remaining members split it among themselves.
	members := []core.Member{member("a", "A"), member("b", "B")}
	expenses := []core.Expense{
		expense("a", 1000, core.CategoryFood),
		expense("departed", 500, core.CategoryTransport),
	}

	got := Compute(members, expenses)

	// total 1500, share 750 each; a paid 1000, b paid 0.
	if got["a"].Cents != 250 {
		t.Fatalf("a: expected 250, got %d", got["a"].Cents)
	}
	if got["b"].Cents != -750 {
		t.Fatalf("b: expected -750, got %d", got["b"].Cents)
	}
}

func TestAggregateByCategory(t *testing.T) {
	expenses := []core.Expense{
		expense("a", 3000, core.CategoryFood),
		expense("a", 1200, core.CategoryFood),
		expense("b", 1500, core.CategoryTransport),
		expense("b", 99, core.Category("mystery")),
		expense("b", 1, core.Category("")),
	}

	got := AggregateByCategory(expenses)

	want := []CategoryTotal{
		{Category: core.CategoryFood, Total: core.Money{Cents: 4200}},
		{Category: core.CategoryOther, Total: core.Money{Cents: 100}},
		{Category: core.CategoryTransport, Total: core.Money{Cents: 1500}},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d totals, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("position %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

func TestAggregateByCategoryEmpty(t *testing.T) {
	if got := AggregateByCategory(nil); len(got) != 0 {
		t.Fatalf("expected empty result, got %v", got)
	}
}
