package core

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestValidateReturnsSentinels(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Expense)
		want   error
	}{
		{"empty name", func(e *Expense) { e.Name = "  " }, ErrEmptyName},
		{"negative amount", func(e *Expense) { e.Amount.Cents = -1 }, ErrInvalidAmount},
		{"zero date", func(e *Expense) { e.SpentAt = time.Time{} }, ErrInvalidDate},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := validExpense()
			tc.mutate(&e)
			if err := e.Validate(); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestParseDecimalToCentsReturnsErrInvalidAmount(t *testing.T) {
	for _, in := range []string{"", "abc", "-5.00", "1.2.3"} {
		if _, err := ParseDecimalToCents(in); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("%q: expected ErrInvalidAmount, got %v", in, err)
		}
	}
}

// Callers classify failures through wrapping chains, so the sentinels must
// survive fmt.Errorf %w.
func TestSentinelsMatchThroughWrapping(t *testing.T) {
	sentinels := []error{
		ErrInvalidAmount,
		ErrEmptyName,
		ErrInvalidDate,
		ErrNotFound,
		ErrNotMember,
		ErrAlreadyMember,
		ErrMemberNotFound,
		ErrUnknownEntity,
	}
	for _, sentinel := range sentinels {
		wrapped := fmt.Errorf("outer: %w", fmt.Errorf("inner: %w", sentinel))
		if !errors.Is(wrapped, sentinel) {
			t.Fatalf("%v did not match through wrapping", sentinel)
		}
	}
}
