package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/vitalsuite/claims/internal/domain/adjudication"
	"github.com/vitalsuite/claims/internal/domain/catalog"
	"github.com/vitalsuite/claims/internal/domain/membership"
	"github.com/vitalsuite/claims/internal/platform/db"
)

// EligibilityAdapter adapts the membership and catalog repositories to the
// adjudication.EligibilityOracle interface, avoiding circular imports between
// the adjudication package and the domains it consults.
type EligibilityAdapter struct {
	members membership.Repository
	catalog catalog.Repository
	pool    *pgxpool.Pool
}

// NewEligibilityAdapter creates a new adapter.
func NewEligibilityAdapter(members membership.Repository, cat catalog.Repository, pool *pgxpool.Pool) *EligibilityAdapter {
	return &EligibilityAdapter{members: members, catalog: cat, pool: pool}
}

// BeneficiaryProfile implements adjudication.EligibilityOracle. The annual
// limit resolves the beneficiary override against the package's global limit,
// and the package falls back to the member's default.
func (a *EligibilityAdapter) BeneficiaryProfile(ctx context.Context, beneficiaryID uuid.UUID) (*adjudication.BeneficiaryProfile, error) {
	b, err := a.members.GetBeneficiary(ctx, beneficiaryID)
	if err != nil {
		return nil, err
	}
	m, err := a.members.GetMember(ctx, b.MemberID)
	if err != nil {
		return nil, err
	}

	packageID := b.PackageID
	if packageID == nil {
		packageID = m.DefaultPackageID
	}

	globalLimit := decimal.Zero
	if packageID != nil {
		pkg, err := a.catalog.GetPackage(ctx, *packageID)
		if err != nil {
			return nil, err
		}
		globalLimit = pkg.GlobalAnnualLimit
	}

	return &adjudication.BeneficiaryProfile{
		ID:               b.ID,
		MemberID:         b.MemberID,
		Status:           string(b.Status),
		Type:             string(b.Type),
		MemberType:       m.Type,
		DateOfBirth:      b.DateOfBirth,
		BenefitStartDate: b.BenefitStartDate,
		AnnualLimit:      b.EffectiveAnnualLimit(globalLimit),
		PackageID:        packageID,
	}, nil
}

// AnnualUtilization implements adjudication.EligibilityOracle.
func (a *EligibilityAdapter) AnnualUtilization(ctx context.Context, beneficiaryID uuid.UUID, year int) (decimal.Decimal, error) {
	q := a.conn(ctx)
	row := q.QueryRow(ctx,
		`SELECT COALESCE(SUM(adjudicated_amount), 0)
		 FROM claims
		 WHERE beneficiary_id = $1
		   AND status IN ('APPROVED', 'PAID')
		   AND EXTRACT(YEAR FROM service_start_date) = $2`,
		beneficiaryID, year)

	var total decimal.Decimal
	if err := row.Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("annual utilization: %w", err)
	}
	return total, nil
}

// ServiceProfile implements adjudication.EligibilityOracle.
func (a *EligibilityAdapter) ServiceProfile(ctx context.Context, serviceID uuid.UUID) (*adjudication.ServiceProfile, error) {
	s, err := a.catalog.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	return &adjudication.ServiceProfile{
		ID:                    s.ID,
		Description:           s.Description,
		CategoryID:            s.CategoryID,
		IsActive:              s.IsActive,
		RequiresAuthorization: s.RequiresAuthorization,
		RequiresReferral:      s.RequiresReferral,
		Pediatric:             s.IsPediatric(),
		Geriatric:             s.IsGeriatric(),
	}, nil
}

// PackageCoverage implements adjudication.EligibilityOracle.
func (a *EligibilityAdapter) PackageCoverage(ctx context.Context, packageID, categoryID uuid.UUID) (*adjudication.CoverageTerms, error) {
	l, err := a.catalog.GetPackageLimit(ctx, packageID, categoryID)
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, nil
	}
	return &adjudication.CoverageTerms{
		AnnualLimit:       l.AnnualLimit,
		WaitingPeriodDays: l.WaitingPeriodDays,
	}, nil
}

// ProviderStanding implements adjudication.EligibilityOracle.
func (a *EligibilityAdapter) ProviderStanding(ctx context.Context, providerID uuid.UUID) (*adjudication.ProviderStanding, error) {
	p, err := a.catalog.GetProvider(ctx, providerID)
	if err != nil {
		return nil, err
	}
	missing, expired, err := a.catalog.ProviderDocumentIssues(ctx, providerID, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	return &adjudication.ProviderStanding{
		ID:               p.ID,
		IdentificationNo: p.IdentificationNo,
		Status:           string(p.Status),
		TierID:           p.TierID,
		MissingDocuments: missing,
		ExpiredDocuments: expired,
	}, nil
}

type queryable interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (a *EligibilityAdapter) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return a.pool
}
