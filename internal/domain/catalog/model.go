package catalog

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Category groups services for benefit-limit purposes.
type Category struct {
	ID   uuid.UUID `db:"id" json:"id"`
	Name string    `db:"name" json:"name"`
}

// Service is a billable medical service or procedure.
type Service struct {
	ID                    uuid.UUID       `db:"id" json:"id"`
	Code                  string          `db:"code" json:"code"`
	Description           string          `db:"description" json:"description"`
	CategoryID            uuid.UUID       `db:"category_id" json:"category_id"`
	UnitPrice             decimal.Decimal `db:"unit_price" json:"unit_price"`
	IsActive              bool            `db:"is_active" json:"is_active"`
	RequiresAuthorization bool            `db:"requires_authorization" json:"requires_authorization"`
	RequiresReferral      bool            `db:"requires_referral" json:"requires_referral"`
	CreatedAt             time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time       `db:"updated_at" json:"updated_at"`
}

// IsPediatric reports whether the service description marks it as intended
// for children.
func (s *Service) IsPediatric() bool {
	d := strings.ToLower(s.Description)
	return strings.Contains(d, "pediatric") || strings.Contains(d, "paediatric") || strings.Contains(d, "child")
}

// IsGeriatric reports whether the service description marks it as intended
// for the elderly.
func (s *Service) IsGeriatric() bool {
	d := strings.ToLower(s.Description)
	return strings.Contains(d, "geriatric") || strings.Contains(d, "elderly")
}

// Package is a benefit plan.
type Package struct {
	ID                uuid.UUID       `db:"id" json:"id"`
	Name              string          `db:"name" json:"name"`
	GlobalAnnualLimit decimal.Decimal `db:"global_annual_limit" json:"global_annual_limit"`
	IsActive          bool            `db:"is_active" json:"is_active"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
}

// PackageLimit is a per-category benefit limit within a package. A zero
// AnnualLimit means the category has no sub-limit of its own.
type PackageLimit struct {
	ID                uuid.UUID       `db:"id" json:"id"`
	PackageID         uuid.UUID       `db:"package_id" json:"package_id"`
	CategoryID        uuid.UUID       `db:"category_id" json:"category_id"`
	AnnualLimit       decimal.Decimal `db:"annual_limit" json:"annual_limit"`
	WaitingPeriodDays int             `db:"waiting_period_days" json:"waiting_period_days"`
}

// ProviderStatus is the provider network status.
type ProviderStatus string

const (
	ProviderActive    ProviderStatus = "A"
	ProviderInactive  ProviderStatus = "I"
	ProviderSuspended ProviderStatus = "S"
)

// Tier ranks providers for rule targeting and reimbursement.
type Tier struct {
	ID   uuid.UUID `db:"id" json:"id"`
	Name string    `db:"name" json:"name"`
	Rank int       `db:"rank" json:"rank"`
}

// Provider is a healthcare facility or practitioner in the network.
type Provider struct {
	ID               uuid.UUID      `db:"id" json:"id"`
	IdentificationNo string         `db:"identification_no" json:"identification_no"`
	Name             string         `db:"name" json:"name"`
	Status           ProviderStatus `db:"status" json:"status"`
	TierID           *uuid.UUID     `db:"tier_id" json:"tier_id,omitempty"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at" json:"updated_at"`
}

// ProviderDocument is a credentialing document a provider must keep current.
type ProviderDocument struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	ProviderID uuid.UUID  `db:"provider_id" json:"provider_id"`
	Name       string     `db:"name" json:"name"`
	Required   bool       `db:"required" json:"required"`
	FileRef    *string    `db:"file_ref" json:"file_ref,omitempty"`
	ExpiresAt  *time.Time `db:"expires_at" json:"expires_at,omitempty"`
}

// Expired reports whether the document has lapsed as of the given date.
func (d *ProviderDocument) Expired(at time.Time) bool {
	return d.ExpiresAt != nil && d.ExpiresAt.Before(at)
}
