// Package balance derives per-member net positions and per-category totals
// from a ledger snapshot. Everything here is a pure function over the inputs:
// no storage access, no side effects, safe for concurrent readers.
package balance

import (
	"sort"

	"splitledger/internal/core"
)

// Compute returns the net position of every member for the given snapshot.
//
// The group total is divided equally with largest-remainder distribution:
// every member gets the floor share, then the leftover cents are handed out
// one per member in ascending identifier order. Shares therefore sum to the
// total exactly, and so the returned balances sum to zero whenever every
// expense is paid by a current member.
//
// Expenses whose payer is no longer in the member set still count toward the
// group total but are excluded from that payer's paid accumulation. This
// mirrors how historical expenses behave after a member leaves.
//
// An empty member set yields an empty map rather than a division error.
func Compute(members []core.Member, expenses []core.Expense) map[core.MemberID]core.Money {
	balances := make(map[core.MemberID]core.Money, len(members))
	if len(members) == 0 {
		return balances
	}

	ids := make([]core.MemberID, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	memberSet := make(map[core.MemberID]bool, len(ids))
	for _, id := range ids {
		memberSet[id] = true
	}

	var total int64
	paid := make(map[core.MemberID]int64, len(ids))
	for _, e := range expenses {
		total += e.Amount.Cents
		if memberSet[e.PayerID] {
			paid[e.PayerID] += e.Amount.Cents
		}
	}

	n := int64(len(ids))
	share := total / n
	remainder := total % n

	for i, id := range ids {
		memberShare := share
		if int64(i) < remainder {
			memberShare++
		}
		balances[id] = core.Money{Cents: paid[id] - memberShare}
	}

	return balances
}

// CategoryTotal is the summed amount for one category tag.
type CategoryTotal struct {
	Category core.Category
	Total    core.Money
}

// AggregateByCategory sums expense amounts per category over the supplied
// scope. Unknown or missing tags fold into core.CategoryOther. The result is
// sorted by category identity so repeated runs over the same snapshot
// produce the same sequence; an empty scope yields an empty slice.
func AggregateByCategory(expenses []core.Expense) []CategoryTotal {
	sums := make(map[core.Category]int64)
	for _, e := range expenses {
		sums[core.ParseCategory(string(e.Category))] += e.Amount.Cents
	}

	totals := make([]CategoryTotal, 0, len(sums))
	for c, cents := range sums {
		totals = append(totals, CategoryTotal{Category: c, Total: core.Money{Cents: cents}})
	}
	sort.Slice(totals, func(i, j int) bool { return totals[i].Category < totals[j].Category })
	return totals
}
