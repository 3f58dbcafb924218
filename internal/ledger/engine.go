package ledger

import (
	"fmt"

	"envelope/internal/core"
)

// resolution controls how prepare dereferences a transaction's references.
type resolution struct {
	view        View
	allowClosed bool
}

var (
	// commitRules apply to new and edited transactions.
	commitRules = resolution{view: ActiveOnly}
	// reverseRules let a posted transaction be undone after its payee or
	// category was deleted; closed accounts still reject it.
	reverseRules = resolution{view: IncludeDeleted}
	// replayRules rebuild aggregates from stored history.
	replayRules = resolution{view: IncludeDeleted, allowClosed: true}
)

// posting is a validated transaction together with the owners it touches.
type posting struct {
	tx       core.Transaction
	transfer core.AccountID
	category core.CategoryID
	inflow   bool
	// month is an index into Store.months, or -1 when no month is touched.
	month int
}

// prepare validates tx against the store without mutating anything and
// returns the normalized transaction with its effects resolved.
func (s *Store) prepare(tx core.Transaction, r resolution) (posting, error) {
	if err := tx.Validate(); err != nil {
		return posting{}, err
	}
	acct, err := s.account(tx.Account, r.view)
	if err != nil {
		return posting{}, err
	}
	if acct.IsClosed && !r.allowClosed {
		return posting{}, fmt.Errorf("account %d: %w", acct.ID, core.ErrClosedAccount)
	}

	if tx.Payee != 0 {
		p, err := s.payee(tx.Payee, r.view)
		if err != nil {
			return posting{}, err
		}
		if p.TransferAccount != 0 {
			switch {
			case tx.TransferAccount == 0 && tx.Category != 0:
				return posting{}, fmt.Errorf("%w: transfer payee %d with a category", core.ErrInvalidTransaction, p.ID)
			case tx.TransferAccount == 0:
				tx.TransferAccount = p.TransferAccount
			case tx.TransferAccount != p.TransferAccount:
				return posting{}, fmt.Errorf("%w: payee %d transfers to account %d, not %d",
					core.ErrInvalidTransaction, p.ID, p.TransferAccount, tx.TransferAccount)
			}
		}
	}

	p := posting{tx: tx, month: -1}
	if tx.IsTransfer() {
		if tx.TransferAccount == tx.Account {
			return posting{}, fmt.Errorf("%w: transfer to the same account", core.ErrInvalidTransaction)
		}
		other, err := s.account(tx.TransferAccount, r.view)
		if err != nil {
			return posting{}, err
		}
		if other.IsClosed && !r.allowClosed {
			return posting{}, fmt.Errorf("account %d: %w", other.ID, core.ErrClosedAccount)
		}
		if p.tx.Payee == 0 {
			p.tx.Payee = other.TransferPayee
		}
		p.transfer = other.ID
		return p, nil
	}

	if !acct.OnBudget {
		if tx.Category != 0 {
			return posting{}, fmt.Errorf("%w: tracking account %d cannot use a category", core.ErrInvalidTransaction, acct.ID)
		}
		return p, nil
	}
	if tx.Category == 0 {
		return posting{}, fmt.Errorf("%w: category required on budget account %d", core.ErrInvalidTransaction, acct.ID)
	}
	cat, err := s.category(tx.Category, r.view)
	if err != nil {
		return posting{}, err
	}
	i, ok := s.monthIndex(tx.Date.Month())
	if !ok {
		return posting{}, fmt.Errorf("month %s: %w", tx.Date.Month(), core.ErrNotFound)
	}
	p.category = cat.ID
	p.inflow = cat.ID == s.inflow
	p.month = i
	return p, nil
}

// route adds amt to an account's balance and to its cleared or uncleared part.
func (s *Store) route(id core.AccountID, amt core.Money, status core.ClearedStatus) {
	a := &s.accounts[id-1]
	a.Balance += amt
	if status.CountsAsCleared() {
		a.ClearedBalance += amt
	} else {
		a.UnclearedBalance += amt
	}
}

// apply performs the effects of a prepared posting. With carry set, the
// change is also carried into the balances of every later month; without
// it only the posting's own month is touched and Recompute chains later.
func (s *Store) apply(p posting, carry bool) {
	amt := p.tx.Amount
	s.route(p.tx.Account, amt, p.tx.Cleared)
	if p.transfer != 0 {
		s.route(p.transfer, amt.Neg(), p.tx.Cleared)
		return
	}
	if p.month < 0 {
		return
	}
	m := s.months[p.month]
	if p.inflow {
		m.month.Income += amt
		if carry {
			for _, later := range s.months[p.month:] {
				later.month.ToBeBudgeted += amt
			}
		}
		return
	}
	ci := p.category - 1
	m.month.Activity += amt
	m.categories[ci].Activity += amt
	if carry {
		for _, later := range s.months[p.month:] {
			later.categories[ci].Balance += amt
		}
	}
}

// Commit applies tx to account, category and month balances. Every
// precondition is checked before the first mutation, so on error the store is
// unchanged. The returned transaction has its transfer fields resolved from
// the payee.
func (s *Store) Commit(tx core.Transaction) (core.Transaction, error) {
	p, err := s.prepare(tx, commitRules)
	if err != nil {
		return core.Transaction{}, err
	}
	s.apply(p, true)
	return p.tx, nil
}

// Reverse applies the exact negation of Commit(tx).
func (s *Store) Reverse(tx core.Transaction) error {
	p, err := s.prepare(tx.Reversed(), reverseRules)
	if err != nil {
		return err
	}
	s.apply(p, true)
	return nil
}

// Record commits tx and stores it under a new identifier.
func (s *Store) Record(tx core.Transaction) (core.Transaction, error) {
	tx.ID = 0
	tx.IsDeleted = false
	posted, err := s.Commit(tx)
	if err != nil {
		return core.Transaction{}, err
	}
	posted.ID = core.TransactionID(len(s.transactions) + 1)
	s.transactions = append(s.transactions, posted)
	return posted, nil
}

// Replace swaps a stored transaction for tx. The old effects are reversed and
// the new ones committed only when both are valid.
func (s *Store) Replace(id core.TransactionID, tx core.Transaction) (core.Transaction, error) {
	old, err := s.transaction(id, ActiveOnly)
	if err != nil {
		return core.Transaction{}, err
	}
	undo, err := s.prepare(old.Reversed(), reverseRules)
	if err != nil {
		return core.Transaction{}, err
	}
	tx.ID = id
	tx.IsDeleted = false
	redo, err := s.prepare(tx, commitRules)
	if err != nil {
		return core.Transaction{}, err
	}
	s.apply(undo, true)
	s.apply(redo, true)
	*old = redo.tx
	return redo.tx, nil
}

// Remove reverses a stored transaction and soft-deletes it.
func (s *Store) Remove(id core.TransactionID) error {
	t, err := s.transaction(id, ActiveOnly)
	if err != nil {
		return err
	}
	if err := s.Reverse(*t); err != nil {
		return err
	}
	t.IsDeleted = true
	return nil
}

// SetApproved toggles approval. Balances are not affected.
func (s *Store) SetApproved(id core.TransactionID, approved bool) error {
	t, err := s.transaction(id, ActiveOnly)
	if err != nil {
		return err
	}
	t.Approved = approved
	return nil
}

// Reconcile marks every cleared transaction on the account reconciled and
// returns how many changed. Balances are unchanged since both states count
// as cleared.
func (s *Store) Reconcile(id core.AccountID) (int, error) {
	a, err := s.account(id, ActiveOnly)
	if err != nil {
		return 0, err
	}
	if a.IsClosed {
		return 0, fmt.Errorf("account %d: %w", id, core.ErrClosedAccount)
	}
	n := 0
	for i := range s.transactions {
		t := &s.transactions[i]
		if t.IsDeleted || t.Cleared != core.Cleared {
			continue
		}
		if t.Account == id || t.TransferAccount == id {
			t.Cleared = core.Reconciled
			n++
		}
	}
	return n, nil
}
