package ledger

import (
	"sort"

	"envelope/internal/core"
)

// flow is a cleared movement of money into (positive) or out of (negative)
// the on-budget accounts.
type flow struct {
	date   core.Date
	amount core.Money
}

// History is an immutable copy of the cleared on-budget money flows, ordered
// by date. It is safe to use without holding the budget lock.
type History struct {
	flows []flow
}

// History captures the flows age of money is computed from: cleared or
// reconciled, non-deleted transactions on on-budget accounts. Transfers
// between two on-budget accounts cancel out and are skipped; a transfer that
// crosses the budget boundary counts as an inflow or outflow of the on-budget
// side. Accounts are classified by OnBudget alone, so deleting an account
// does not rewrite the history of months already reported.
func (s *Store) History() History {
	flows := make([]flow, 0, len(s.transactions))
	for _, t := range s.transactions {
		if t.IsDeleted || !t.Cleared.CountsAsCleared() || t.Amount == 0 {
			continue
		}
		from := s.accounts[t.Account-1]
		onBudget := from.OnBudget
		amount := t.Amount
		if t.IsTransfer() {
			to := s.accounts[t.TransferAccount-1]
			toBudget := to.OnBudget
			switch {
			case onBudget && toBudget, !onBudget && !toBudget:
				continue
			case !onBudget:
				amount = t.Amount.Neg()
				onBudget = true
			}
		}
		if !onBudget {
			continue
		}
		flows = append(flows, flow{date: t.Date, amount: amount})
	}
	sort.SliceStable(flows, func(i, j int) bool {
		return flows[i].date.Before(flows[j].date.Time)
	})
	return History{flows: flows}
}

// Len returns the number of flows in the history.
func (h History) Len() int { return len(h.flows) }

// AgeOfMoney returns how many days the oldest unspent dollar had been held
// on asOf. Only flows dated on or before asOf are considered.
//
// Inflows are walked newest first, summing amounts until the running total
// covers the money that is still unspent (inflows minus outflows). The inflow
// at which that happens holds the oldest unspent dollar. The result is
// unavailable (false) when there are no inflows or nothing is left unspent.
func (h History) AgeOfMoney(asOf core.Date) (int, bool) {
	var inflows []flow
	var unspent core.Money
	for _, f := range h.flows {
		if f.date.After(asOf.Time) {
			break
		}
		unspent += f.amount
		if f.amount > 0 {
			inflows = append(inflows, f)
		}
	}
	if len(inflows) == 0 || unspent <= 0 {
		return 0, false
	}
	var running core.Money
	for i := len(inflows) - 1; i >= 0; i-- {
		running += inflows[i].amount
		if running >= unspent {
			return inflows[i].date.DaysUntil(asOf), true
		}
	}
	// unspent never exceeds the sum of inflows, so the loop always returns.
	return inflows[0].date.DaysUntil(asOf), true
}

// MonthAgeOfMoney evaluates AgeOfMoney at the last day of the month.
func (h History) MonthAgeOfMoney(key core.MonthKey) (int, bool) {
	return h.AgeOfMoney(key.Last())
}
