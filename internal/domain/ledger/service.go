package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/vitalsuite/claims/internal/platform/sequence"
)

// ErrInsufficientFunds is returned when a reserve would exceed the account's
// available balance.
var ErrInsufficientFunds = errors.New("insufficient available balance")

// Service moves funds on member accounts and records the ledger trail.
// Callers are expected to run its mutating methods inside a transaction so
// the account row lock and the ledger entries commit together.
type Service struct {
	accounts AccountRepository
	txns     TransactionRepository
	seq      sequence.Generator
	log      zerolog.Logger
	now      func() time.Time
}

func NewService(accounts AccountRepository, txns TransactionRepository, seq sequence.Generator, log zerolog.Logger) *Service {
	return &Service{
		accounts: accounts,
		txns:     txns,
		seq:      seq,
		log:      log.With().Str("component", "ledger").Logger(),
		now:      time.Now,
	}
}

func (s *Service) nextTransactionNumber(ctx context.Context) (string, error) {
	n, err := s.seq.Next(ctx, "account_transaction")
	if err != nil {
		return "", fmt.Errorf("transaction number: %w", err)
	}
	return fmt.Sprintf("MT%s%06d", s.now().Format("060102"), n%1000000), nil
}

// AvailableBalance returns the member's spendable balance.
func (s *Service) AvailableBalance(ctx context.Context, memberID uuid.UUID) (decimal.Decimal, error) {
	acct, err := s.accounts.GetByMember(ctx, memberID)
	if err != nil {
		return decimal.Zero, err
	}
	return acct.Available(), nil
}

// Reserve earmarks funds against a claim. The reference ties the ledger
// entry back to the claim's transaction number.
func (s *Service) Reserve(ctx context.Context, memberID, claimID uuid.UUID, reference string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("reserve amount must be positive, got %s", amount)
	}

	acct, err := s.accounts.GetByMemberForUpdate(ctx, memberID)
	if err != nil {
		return err
	}
	if acct.Available().LessThan(amount) {
		return fmt.Errorf("%w: need %s, have %s", ErrInsufficientFunds, amount, acct.Available())
	}

	reserved := acct.ReservedBalance.Add(amount)
	if err := s.accounts.UpdateBalances(ctx, acct.ID, acct.Balance, reserved); err != nil {
		return err
	}

	number, err := s.nextTransactionNumber(ctx)
	if err != nil {
		return err
	}
	txn := &Transaction{
		ID:                uuid.New(),
		AccountID:         acct.ID,
		TransactionNumber: number,
		Type:              TxnReserve,
		Amount:            amount,
		BalanceAfter:      acct.Balance,
		ReservedAfter:     reserved,
		Description:       "Funds reserved for claim",
		Reference:         reference,
		ClaimID:           &claimID,
	}
	if err := s.txns.Create(ctx, txn); err != nil {
		return err
	}

	s.log.Info().
		Str("member_id", memberID.String()).
		Str("claim_id", claimID.String()).
		Str("amount", amount.String()).
		Str("transaction_number", number).
		Msg("funds reserved")
	return nil
}

// Release frees whatever remains reserved against a claim and returns the
// released amount. Releasing a claim with nothing outstanding is a no-op.
func (s *Service) Release(ctx context.Context, memberID, claimID uuid.UUID, reference string) (decimal.Decimal, error) {
	// The account lock is taken before the outstanding figure is read, so
	// a release racing another writer sees that writer's committed entries.
	acct, err := s.accounts.GetByMemberForUpdate(ctx, memberID)
	if err != nil {
		return decimal.Zero, err
	}

	outstanding, err := s.txns.OutstandingReserved(ctx, claimID)
	if err != nil {
		return decimal.Zero, err
	}
	if !outstanding.IsPositive() {
		return decimal.Zero, nil
	}

	reserved := acct.ReservedBalance.Sub(outstanding)
	if reserved.IsNegative() {
		reserved = decimal.Zero
	}
	if err := s.accounts.UpdateBalances(ctx, acct.ID, acct.Balance, reserved); err != nil {
		return decimal.Zero, err
	}

	number, err := s.nextTransactionNumber(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	txn := &Transaction{
		ID:                uuid.New(),
		AccountID:         acct.ID,
		TransactionNumber: number,
		Type:              TxnUnreserve,
		Amount:            outstanding,
		BalanceAfter:      acct.Balance,
		ReservedAfter:     reserved,
		Description:       "Reserved funds released",
		Reference:         reference,
		ClaimID:           &claimID,
	}
	if err := s.txns.Create(ctx, txn); err != nil {
		return decimal.Zero, err
	}

	s.log.Info().
		Str("member_id", memberID.String()).
		Str("claim_id", claimID.String()).
		Str("amount", outstanding.String()).
		Msg("reserved funds released")
	return outstanding, nil
}
