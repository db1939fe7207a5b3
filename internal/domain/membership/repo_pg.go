package membership

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vitalsuite/claims/internal/platform/db"
)

type queryable interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PgRepository is the pgx-backed Repository.
type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// conn returns the ambient transaction when one is carried on the context,
// otherwise the pool.
func (r *PgRepository) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const memberColumns = `id, membership_number, name, type, currency_code, default_package_id, status, created_at, updated_at`

func (r *PgRepository) GetMember(ctx context.Context, id uuid.UUID) (*Member, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+memberColumns+` FROM members WHERE id = $1`, id)

	var m Member
	err := row.Scan(&m.ID, &m.MembershipNumber, &m.Name, &m.Type, &m.CurrencyCode,
		&m.DefaultPackageID, &m.Status, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("member %s not found", id)
		}
		return nil, fmt.Errorf("get member: %w", err)
	}
	return &m, nil
}

const beneficiaryColumns = `id, member_id, membership_number, dependent_code, first_name, last_name,
	national_id, date_of_birth, gender, status, type, benefit_start_date,
	annual_limit_override, package_id, created_at, updated_at`

func scanBeneficiary(row pgx.Row) (*Beneficiary, error) {
	var b Beneficiary
	err := row.Scan(&b.ID, &b.MemberID, &b.MembershipNumber, &b.DependentCode,
		&b.FirstName, &b.LastName, &b.NationalID, &b.DateOfBirth, &b.Gender,
		&b.Status, &b.Type, &b.BenefitStartDate, &b.AnnualLimitOverride,
		&b.PackageID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *PgRepository) GetBeneficiary(ctx context.Context, id uuid.UUID) (*Beneficiary, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+beneficiaryColumns+` FROM beneficiaries WHERE id = $1`, id)

	b, err := scanBeneficiary(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("beneficiary %s not found", id)
		}
		return nil, fmt.Errorf("get beneficiary: %w", err)
	}
	return b, nil
}

func (r *PgRepository) ListBeneficiaries(ctx context.Context, memberID uuid.UUID) ([]*Beneficiary, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+beneficiaryColumns+` FROM beneficiaries WHERE member_id = $1 ORDER BY dependent_code`,
		memberID)
	if err != nil {
		return nil, fmt.Errorf("list beneficiaries: %w", err)
	}
	defer rows.Close()

	var out []*Beneficiary
	for rows.Next() {
		b, err := scanBeneficiary(rows)
		if err != nil {
			return nil, fmt.Errorf("scan beneficiary: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *PgRepository) CreateBeneficiary(ctx context.Context, b *Beneficiary) error {
	_, err := r.conn(ctx).Exec(ctx,
		`INSERT INTO beneficiaries (id, member_id, membership_number, dependent_code,
			first_name, last_name, national_id, date_of_birth, gender, status, type,
			benefit_start_date, annual_limit_override, package_id, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,now(),now())`,
		b.ID, b.MemberID, b.MembershipNumber, b.DependentCode, b.FirstName, b.LastName,
		b.NationalID, b.DateOfBirth, b.Gender, b.Status, b.Type, b.BenefitStartDate,
		b.AnnualLimitOverride, b.PackageID)
	if err != nil {
		return fmt.Errorf("create beneficiary: %w", err)
	}
	return nil
}

func (r *PgRepository) UpdateBeneficiaryStatus(ctx context.Context, id uuid.UUID, status Status) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE beneficiaries SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update beneficiary status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("beneficiary %s not found", id)
	}
	return nil
}
