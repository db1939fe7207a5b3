package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountRepository provides access to member accounts.
type AccountRepository interface {
	// GetByMemberForUpdate loads the account row with a row lock so balance
	// movements are serialized. Callers must hold an open transaction.
	GetByMemberForUpdate(ctx context.Context, memberID uuid.UUID) (*Account, error)
	GetByMember(ctx context.Context, memberID uuid.UUID) (*Account, error)
	UpdateBalances(ctx context.Context, id uuid.UUID, balance, reserved decimal.Decimal) error
}

// TransactionRepository records and queries ledger entries.
type TransactionRepository interface {
	Create(ctx context.Context, t *Transaction) error
	// OutstandingReserved returns the net amount still reserved against a
	// claim: reserves minus unreserves and payments.
	OutstandingReserved(ctx context.Context, claimID uuid.UUID) (decimal.Decimal, error)
	ListByClaim(ctx context.Context, claimID uuid.UUID) ([]*Transaction, error)
}
