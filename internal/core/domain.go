package core

import (
	"errors"
	"fmt"
	"strings"
)

// Identifiers are opaque handles issued by the ledger store. Zero means "absent".
type (
	AccountID       int64
	PayeeID         int64
	CategoryGroupID int64
	CategoryID      int64
	TransactionID   int64
)

const (
	Checking AccountKind = iota + 1
	Savings
	Cash
	CreditCard
	LineOfCredit
	OtherAsset
	OtherLiability
)

// The zero ClearedStatus is Uncleared.
const (
	Uncleared ClearedStatus = iota
	Cleared
	Reconciled
)

const (
	FlagNone   FlagColor = ""
	FlagRed    FlagColor = "red"
	FlagOrange FlagColor = "orange"
	FlagYellow FlagColor = "yellow"
	FlagGreen  FlagColor = "green"
	FlagBlue   FlagColor = "blue"
	FlagPurple FlagColor = "purple"
)

type (
	// AccountKind is the type of account, e.g. whether it's a checking, asset or liability account.
	AccountKind int

	// ClearedStatus is the settlement state of a transaction.
	ClearedStatus int

	// FlagColor is an optional marker set on a transaction.
	FlagColor string

	// Account holds a currency balance that may be used on a budget.
	Account struct {
		ID               AccountID
		Name             string
		Kind             AccountKind
		OnBudget         bool
		IsClosed         bool
		Note             string
		Balance          Money
		ClearedBalance   Money
		UnclearedBalance Money
		// TransferPayee is the payee other accounts use to transfer into this one.
		TransferPayee PayeeID
		IsDeleted     bool
	}

	Payee struct {
		ID   PayeeID
		Name string
		// TransferAccount is set for payees that stand for another account.
		TransferAccount AccountID
		IsDeleted       bool
	}

	CategoryGroup struct {
		ID         CategoryGroupID
		Name       string
		IsHidden   bool
		IsDeleted  bool
		Categories []CategoryID
	}

	// Category is an envelope. Budgeted, Activity and Balance are the values of
	// the latest month; per-month values are in CategoryMonth.
	Category struct {
		ID        CategoryID
		Group     CategoryGroupID
		Name      string
		IsHidden  bool
		Note      string
		Budgeted  Money
		Activity  Money
		Balance   Money
		Goal      *Goal
		IsDeleted bool
	}

	// CategoryMonth is a category's state inside one month.
	CategoryMonth struct {
		Category CategoryID
		Month    MonthKey
		Budgeted Money
		Activity Money
		Balance  Money
	}

	Month struct {
		Month        MonthKey
		Note         string
		Income       Money
		Budgeted     Money
		Activity     Money
		ToBeBudgeted Money
		// AgeOfMoney is derived on demand; nil when unavailable.
		AgeOfMoney *int
		IsDeleted  bool
	}

	Transaction struct {
		ID      TransactionID
		Date    Date
		Amount  Money
		Account AccountID
		Payee   PayeeID
		// Category is zero for transfers and for off-budget accounts.
		Category CategoryID
		// TransferAccount receives the opposite amount when set.
		TransferAccount AccountID
		Memo            string
		Cleared         ClearedStatus
		Approved        bool
		FlagColor       FlagColor
		IsDeleted       bool
	}
)

var accountKindNames = map[AccountKind]string{
	Checking:       "checking",
	Savings:        "savings",
	Cash:           "cash",
	CreditCard:     "creditCard",
	LineOfCredit:   "lineOfCredit",
	OtherAsset:     "otherAsset",
	OtherLiability: "otherLiability",
}

// String implements fmt.Stringer
func (k AccountKind) String() string {
	if s, ok := accountKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("AccountKind(%d)", int(k))
}

// IsValid returns true if the account kind is known
func (k AccountKind) IsValid() bool {
	_, ok := accountKindNames[k]
	return ok
}

// IsLiability reports whether balances of this kind are normally negative.
func (k AccountKind) IsLiability() bool {
	return k == CreditCard || k == LineOfCredit || k == OtherLiability
}

// ParseAccountKind maps the names used by String back to kinds (case-insensitive).
func ParseAccountKind(s string) (AccountKind, error) {
	for k, name := range accountKindNames {
		if strings.EqualFold(name, strings.TrimSpace(s)) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%q: %w", s, ErrInvalidAccountKind)
}

// String implements fmt.Stringer
func (s ClearedStatus) String() string {
	switch s {
	case Uncleared:
		return "uncleared"
	case Cleared:
		return "cleared"
	case Reconciled:
		return "reconciled"
	default:
		return fmt.Sprintf("ClearedStatus(%d)", int(s))
	}
}

// IsValid returns true if the status is one of the three known states
func (s ClearedStatus) IsValid() bool {
	return s == Uncleared || s == Cleared || s == Reconciled
}

// CountsAsCleared reports whether amounts in this state go to the cleared balance.
// Reconciled transactions are cleared ones that were also matched to a statement.
func (s ClearedStatus) CountsAsCleared() bool {
	return s == Cleared || s == Reconciled
}

// ParseClearedStatus maps "cleared", "uncleared" and "reconciled" to statuses.
func ParseClearedStatus(s string) (ClearedStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "uncleared", "":
		return Uncleared, nil
	case "cleared":
		return Cleared, nil
	case "reconciled":
		return Reconciled, nil
	}
	return 0, fmt.Errorf("cleared status %q: %w", s, ErrInvalidTransaction)
}

// IsValid returns true for the empty flag and the six supported colors
func (f FlagColor) IsValid() bool {
	switch f {
	case FlagNone, FlagRed, FlagOrange, FlagYellow, FlagGreen, FlagBlue, FlagPurple:
		return true
	}
	return false
}

// IsTransfer reports whether the transaction moves money between two accounts.
func (t Transaction) IsTransfer() bool {
	return t.TransferAccount != 0
}

// Reversed returns a copy of t with the amount negated. Committing a
// transaction and then its reversal leaves every balance unchanged.
func (t Transaction) Reversed() Transaction {
	r := t
	r.Amount = t.Amount.Neg()
	return r
}

// Validate checks the fields that do not need the ledger to resolve.
func (t Transaction) Validate() error {
	if err := t.Date.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}
	if !t.Cleared.IsValid() {
		return fmt.Errorf("%w: cleared status %d", ErrInvalidTransaction, int(t.Cleared))
	}
	if !t.FlagColor.IsValid() {
		return fmt.Errorf("%w: flag color %q", ErrInvalidTransaction, string(t.FlagColor))
	}
	if t.Account == 0 {
		return fmt.Errorf("%w: missing account", ErrInvalidTransaction)
	}
	if t.IsTransfer() && t.Category != 0 {
		return fmt.Errorf("%w: transfer cannot have a category", ErrInvalidTransaction)
	}
	if t.IsTransfer() && t.TransferAccount == t.Account {
		return fmt.Errorf("%w: transfer to the same account", ErrInvalidTransaction)
	}
	if len(t.Memo) > 500 {
		return fmt.Errorf("%w: memo too long (max 500 characters)", ErrInvalidTransaction)
	}
	return nil
}

// ValidateName rejects blank or overly long entity names.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}
	if len(name) > 200 {
		return errors.New("name too long (max 200 characters)")
	}
	return nil
}
