package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

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

func (r *PgRepository) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *PgRepository) GetService(ctx context.Context, id uuid.UUID) (*Service, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT id, code, description, category_id, unit_price, is_active,
			requires_authorization, requires_referral, created_at, updated_at
		 FROM services WHERE id = $1`, id)

	var s Service
	err := row.Scan(&s.ID, &s.Code, &s.Description, &s.CategoryID, &s.UnitPrice,
		&s.IsActive, &s.RequiresAuthorization, &s.RequiresReferral, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("service %s not found", id)
		}
		return nil, fmt.Errorf("get service: %w", err)
	}
	return &s, nil
}

func (r *PgRepository) GetPackage(ctx context.Context, id uuid.UUID) (*Package, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT id, name, global_annual_limit, is_active, created_at, updated_at
		 FROM packages WHERE id = $1`, id)

	var p Package
	err := row.Scan(&p.ID, &p.Name, &p.GlobalAnnualLimit, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("package %s not found", id)
		}
		return nil, fmt.Errorf("get package: %w", err)
	}
	return &p, nil
}

func (r *PgRepository) GetPackageLimit(ctx context.Context, packageID, categoryID uuid.UUID) (*PackageLimit, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT id, package_id, category_id, annual_limit, waiting_period_days
		 FROM package_limits WHERE package_id = $1 AND category_id = $2`,
		packageID, categoryID)

	var l PackageLimit
	err := row.Scan(&l.ID, &l.PackageID, &l.CategoryID, &l.AnnualLimit, &l.WaitingPeriodDays)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get package limit: %w", err)
	}
	return &l, nil
}

func (r *PgRepository) GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT id, identification_no, name, status, tier_id, created_at, updated_at
		 FROM providers WHERE id = $1`, id)

	var p Provider
	err := row.Scan(&p.ID, &p.IdentificationNo, &p.Name, &p.Status, &p.TierID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("provider %s not found", id)
		}
		return nil, fmt.Errorf("get provider: %w", err)
	}
	return &p, nil
}

func (r *PgRepository) ProviderDocumentIssues(ctx context.Context, providerID uuid.UUID, at time.Time) ([]string, []string, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT name, file_ref, expires_at
		 FROM provider_documents
		 WHERE provider_id = $1 AND required ORDER BY name`, providerID)
	if err != nil {
		return nil, nil, fmt.Errorf("provider document issues: %w", err)
	}
	defer rows.Close()

	var missing, expired []string
	for rows.Next() {
		var (
			name      string
			fileRef   *string
			expiresAt *time.Time
		)
		if err := rows.Scan(&name, &fileRef, &expiresAt); err != nil {
			return nil, nil, fmt.Errorf("scan provider document: %w", err)
		}
		switch {
		case fileRef == nil:
			missing = append(missing, name)
		case expiresAt != nil && expiresAt.Before(at):
			expired = append(expired, name)
		}
	}
	return missing, expired, rows.Err()
}
