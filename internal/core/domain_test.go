package core

import (
	"testing"
	"time"
)

func validExpense() Expense {
	return Expense{
		ID:       ExpenseID(NewID()),
		GroupID:  GroupID(NewID()),
		PayerID:  MemberID(NewID()),
		Name:     "groceries",
		Amount:   Money{Cents: 1250},
		Category: CategoryFood,
		SpentAt:  time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
	}
}

func TestExpenseValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Expense)
		ok     bool
	}{
		{"valid", func(e *Expense) {}, true},
		{"empty name", func(e *Expense) { e.Name = "  " }, false},
		{"negative amount", func(e *Expense) { e.Amount.Cents = -1 }, false},
		{"zero amount allowed", func(e *Expense) { e.Amount.Cents = 0 }, true},
		{"zero date", func(e *Expense) { e.SpentAt = time.Time{} }, false},
		{"missing group", func(e *Expense) { e.GroupID = "" }, false},
		{"missing payer", func(e *Expense) { e.PayerID = "" }, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := validExpense()
			tc.mutate(&e)
			err := e.Validate()
			if tc.ok && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestParseCategory(t *testing.T) {
	cases := []struct {
		in   string
		want Category
	}{
		{"food", CategoryFood},
		{"transport", CategoryTransport},
		{"other", CategoryOther},
		{"donut", CategoryOther},
		{"", CategoryOther},
		{"Food", CategoryOther}, // tags are case sensitive
	}
	for _, tc := range cases {
		if got := ParseCategory(tc.in); got != tc.want {
			t.Fatalf("%q: expected %q, got %q", tc.in, tc.want, got)
		}
	}
}

func TestGroupHasMember(t *testing.T) {
	alice := MemberID(NewID())
	bob := MemberID(NewID())
	g := Group{ID: GroupID(NewID()), Name: "Trip", MemberIDs: []MemberID{alice}}

	if !g.HasMember(alice) {
		t.Fatal("alice should be a member")
	}
	if g.HasMember(bob) {
		t.Fatal("bob should not be a member")
	}
}
