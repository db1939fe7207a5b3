package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountStatus is the member account lifecycle status.
type AccountStatus string

const (
	AccountActive AccountStatus = "A"
	AccountFrozen AccountStatus = "F"
	AccountClosed AccountStatus = "C"
)

// Account is a member's funded benefit account. Balance is the full funded
// amount; ReservedBalance tracks funds earmarked for approved claims awaiting
// payment. Available funds are Balance minus ReservedBalance.
type Account struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	MemberID        uuid.UUID       `db:"member_id" json:"member_id"`
	CurrencyCode    string          `db:"currency_code" json:"currency_code"`
	Balance         decimal.Decimal `db:"balance" json:"balance"`
	ReservedBalance decimal.Decimal `db:"reserved_balance" json:"reserved_balance"`
	Status          AccountStatus   `db:"status" json:"status"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// Available returns the spendable balance.
func (a *Account) Available() decimal.Decimal {
	return a.Balance.Sub(a.ReservedBalance)
}

// TransactionType classifies ledger entries.
type TransactionType string

const (
	TxnDeposit   TransactionType = "D"
	TxnReserve   TransactionType = "R"
	TxnUnreserve TransactionType = "U"
	TxnPayment   TransactionType = "P"
	TxnAdjust    TransactionType = "J"
)

// Transaction is an immutable ledger entry. Reserve and unreserve entries
// move funds between available and reserved without changing the balance.
type Transaction struct {
	ID                uuid.UUID       `db:"id" json:"id"`
	AccountID         uuid.UUID       `db:"account_id" json:"account_id"`
	TransactionNumber string          `db:"transaction_number" json:"transaction_number"`
	Type              TransactionType `db:"type" json:"type"`
	Amount            decimal.Decimal `db:"amount" json:"amount"`
	BalanceAfter      decimal.Decimal `db:"balance_after" json:"balance_after"`
	ReservedAfter     decimal.Decimal `db:"reserved_after" json:"reserved_after"`
	Description       string          `db:"description" json:"description"`
	Reference         string          `db:"reference" json:"reference"`
	ClaimID           *uuid.UUID      `db:"claim_id" json:"claim_id,omitempty"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
}
