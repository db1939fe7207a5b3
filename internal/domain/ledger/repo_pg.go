package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/vitalsuite/claims/internal/platform/db"
)

type queryable interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PgAccountRepository is the pgx-backed AccountRepository.
type PgAccountRepository struct {
	pool *pgxpool.Pool
}

func NewPgAccountRepository(pool *pgxpool.Pool) *PgAccountRepository {
	return &PgAccountRepository{pool: pool}
}

func (r *PgAccountRepository) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const accountColumns = `id, member_id, currency_code, balance, reserved_balance, status, created_at, updated_at`

func scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.MemberID, &a.CurrencyCode, &a.Balance,
		&a.ReservedBalance, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *PgAccountRepository) GetByMember(ctx context.Context, memberID uuid.UUID) (*Account, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+accountColumns+` FROM member_accounts WHERE member_id = $1`, memberID)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("account for member %s not found", memberID)
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (r *PgAccountRepository) GetByMemberForUpdate(ctx context.Context, memberID uuid.UUID) (*Account, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+accountColumns+` FROM member_accounts WHERE member_id = $1 FOR UPDATE`, memberID)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("account for member %s not found", memberID)
		}
		return nil, fmt.Errorf("lock account: %w", err)
	}
	return a, nil
}

func (r *PgAccountRepository) UpdateBalances(ctx context.Context, id uuid.UUID, balance, reserved decimal.Decimal) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE member_accounts SET balance = $2, reserved_balance = $3, updated_at = now() WHERE id = $1`,
		id, balance, reserved)
	if err != nil {
		return fmt.Errorf("update balances: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account %s not found", id)
	}
	return nil
}

// PgTransactionRepository is the pgx-backed TransactionRepository.
type PgTransactionRepository struct {
	pool *pgxpool.Pool
}

func NewPgTransactionRepository(pool *pgxpool.Pool) *PgTransactionRepository {
	return &PgTransactionRepository{pool: pool}
}

func (r *PgTransactionRepository) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *PgTransactionRepository) Create(ctx context.Context, t *Transaction) error {
	_, err := r.conn(ctx).Exec(ctx,
		`INSERT INTO account_transactions (id, account_id, transaction_number, type, amount,
			balance_after, reserved_after, description, reference, claim_id, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now())`,
		t.ID, t.AccountID, t.TransactionNumber, t.Type, t.Amount,
		t.BalanceAfter, t.ReservedAfter, t.Description, t.Reference, t.ClaimID)
	if err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}

func (r *PgTransactionRepository) OutstandingReserved(ctx context.Context, claimID uuid.UUID) (decimal.Decimal, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT COALESCE(SUM(CASE WHEN type = $2 THEN amount ELSE -amount END), 0)
		 FROM account_transactions
		 WHERE claim_id = $1 AND type IN ($2, $3, $4)`,
		claimID, TxnReserve, TxnUnreserve, TxnPayment)

	var out decimal.Decimal
	if err := row.Scan(&out); err != nil {
		return decimal.Zero, fmt.Errorf("outstanding reserved: %w", err)
	}
	return out, nil
}

func (r *PgTransactionRepository) ListByClaim(ctx context.Context, claimID uuid.UUID) ([]*Transaction, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT id, account_id, transaction_number, type, amount, balance_after,
			reserved_after, description, reference, claim_id, created_at
		 FROM account_transactions WHERE claim_id = $1 ORDER BY created_at`, claimID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []*Transaction
	for rows.Next() {
		var t Transaction
		err := rows.Scan(&t.ID, &t.AccountID, &t.TransactionNumber, &t.Type, &t.Amount,
			&t.BalanceAfter, &t.ReservedAfter, &t.Description, &t.Reference, &t.ClaimID, &t.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}
