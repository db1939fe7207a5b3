package adjudication

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ClaimRepository provides access to claims and the aggregate queries the
// fraud heuristics and rule frequency caps need.
type ClaimRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*Claim, error)
	// GetForUpdate loads a claim with its row locked for the duration of
	// the surrounding transaction.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Claim, error)
	Update(ctx context.Context, c *Claim) error
	UpdateLines(ctx context.Context, lines []*ServiceLine) error
	ListIDsByStatus(ctx context.Context, status ClaimStatus, limit int) ([]uuid.UUID, error)

	// CountVisits counts the beneficiary's settled (approved or paid)
	// claims touching any of the given services since the cutoff,
	// excluding the claim being adjudicated.
	CountVisits(ctx context.Context, beneficiaryID uuid.UUID, serviceIDs []uuid.UUID, since time.Time, excludeClaimID uuid.UUID) (int, error)
	// HasDuplicateInvoice reports whether another settled claim exists for
	// the same beneficiary, provider and invoice number.
	HasDuplicateInvoice(ctx context.Context, beneficiaryID, providerID uuid.UUID, invoiceNumber string, excludeClaimID uuid.UUID) (bool, error)
	// CountSameDay counts the beneficiary's other settled claims with the
	// same provider on the same service start date.
	CountSameDay(ctx context.Context, beneficiaryID, providerID uuid.UUID, serviceDate time.Time, excludeClaimID uuid.UUID) (int, error)
	// AverageAdjudicated returns the mean adjudicated amount of the
	// beneficiary's settled claims since the cutoff, zero when none.
	AverageAdjudicated(ctx context.Context, beneficiaryID uuid.UUID, since time.Time) (decimal.Decimal, error)
	// CountProviderDaily counts the provider's settled claims on a service
	// date.
	CountProviderDaily(ctx context.Context, providerID uuid.UUID, serviceDate time.Time) (int, error)
}

// ServiceRequestRepository provides access to pre-authorizations.
type ServiceRequestRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*ServiceRequest, error)
	Update(ctx context.Context, r *ServiceRequest) error
}

// ResultRepository persists results, messages and overrides.
type ResultRepository interface {
	// Create persists a result together with its messages.
	Create(ctx context.Context, r *Result) error
	// GetActive returns the subject's active result, or nil when none
	// exists.
	GetActive(ctx context.Context, kind SubjectKind, subjectID uuid.UUID) (*Result, error)
	// Deactivate clears the active flag on every result for the subject.
	Deactivate(ctx context.Context, kind SubjectKind, subjectID uuid.UUID) error
	// Supersede clears the active flag on the one result the caller
	// observed. It fails with ErrConcurrencyConflict when that result has
	// already been superseded by another writer.
	Supersede(ctx context.Context, kind SubjectKind, subjectID, activeResultID uuid.UUID) error
	// LinkOverride attaches an override record to an existing result.
	LinkOverride(ctx context.Context, resultID, overrideID uuid.UUID) error
	CreateOverride(ctx context.Context, o *Override) error
	ListOverridesByReviewer(ctx context.Context, reviewerID string, since time.Time) ([]*Override, error)
}

// RuleRepository supplies the currently effective rules in ascending
// priority order.
type RuleRepository interface {
	ActiveRules(ctx context.Context, asOf time.Time) ([]*Rule, error)
}

// BeneficiaryProfile is the eligibility view of a beneficiary.
type BeneficiaryProfile struct {
	ID               uuid.UUID
	MemberID         uuid.UUID
	Status           string
	Type             string
	MemberType       string
	DateOfBirth      time.Time
	BenefitStartDate *time.Time
	AnnualLimit      decimal.Decimal
	PackageID        *uuid.UUID
}

// Beneficiary status codes as the eligibility oracle reports them.
const (
	BeneficiaryActive     = "A"
	BeneficiaryInactive   = "I"
	BeneficiarySuspended  = "S"
	BeneficiaryTerminated = "T"
)

// BenefitsStarted reports whether benefits are in force at the given date.
func (p *BeneficiaryProfile) BenefitsStarted(at time.Time) bool {
	return p.BenefitStartDate != nil && !p.BenefitStartDate.After(at)
}

// AgeAt returns the beneficiary's age in whole years at the given date.
func (p *BeneficiaryProfile) AgeAt(at time.Time) int {
	years := at.Year() - p.DateOfBirth.Year()
	anniversary := time.Date(at.Year(), p.DateOfBirth.Month(), p.DateOfBirth.Day(), 0, 0, 0, 0, time.UTC)
	if at.Before(anniversary) {
		years--
	}
	return years
}

// ServiceProfile is the coverage view of a catalog service.
type ServiceProfile struct {
	ID                    uuid.UUID
	Description           string
	CategoryID            uuid.UUID
	IsActive              bool
	RequiresAuthorization bool
	RequiresReferral      bool
	Pediatric             bool
	Geriatric             bool
}

// CoverageTerms are the package's terms for one service category.
type CoverageTerms struct {
	AnnualLimit       decimal.Decimal
	WaitingPeriodDays int
}

// ProviderStanding is the compliance view of a provider.
type ProviderStanding struct {
	ID               uuid.UUID
	IdentificationNo string
	Status           string
	TierID           *uuid.UUID
	MissingDocuments []string
	ExpiredDocuments []string
}

// Provider status codes as the eligibility oracle reports them.
const (
	ProviderActive    = "A"
	ProviderInactive  = "I"
	ProviderSuspended = "S"
)

// EligibilityOracle answers beneficiary, coverage and provider questions
// from stored records. The engine consumes it and never reimplements it.
type EligibilityOracle interface {
	BeneficiaryProfile(ctx context.Context, beneficiaryID uuid.UUID) (*BeneficiaryProfile, error)
	// AnnualUtilization sums the adjudicated amounts of the beneficiary's
	// settled claims whose service started in the given year.
	AnnualUtilization(ctx context.Context, beneficiaryID uuid.UUID, year int) (decimal.Decimal, error)
	ServiceProfile(ctx context.Context, serviceID uuid.UUID) (*ServiceProfile, error)
	// PackageCoverage returns the package's terms for a category, or nil
	// when the category is not covered at all.
	PackageCoverage(ctx context.Context, packageID, categoryID uuid.UUID) (*CoverageTerms, error)
	ProviderStanding(ctx context.Context, providerID uuid.UUID) (*ProviderStanding, error)
}

// LedgerService reserves and releases funds on member accounts. The ledger
// domain's Service satisfies this.
type LedgerService interface {
	AvailableBalance(ctx context.Context, memberID uuid.UUID) (decimal.Decimal, error)
	Reserve(ctx context.Context, memberID, claimID uuid.UUID, reference string, amount decimal.Decimal) error
	Release(ctx context.Context, memberID, claimID uuid.UUID, reference string) (decimal.Decimal, error)
}
