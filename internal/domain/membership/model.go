package membership

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the beneficiary lifecycle status.
type Status string

const (
	StatusActive     Status = "A"
	StatusInactive   Status = "I"
	StatusSuspended  Status = "S"
	StatusTerminated Status = "T"
)

// BeneficiaryType distinguishes the covered individual's relationship to the
// member account.
type BeneficiaryType string

const (
	TypePrincipal BeneficiaryType = "P"
	TypeSpouse    BeneficiaryType = "S"
	TypeDependent BeneficiaryType = "D"
	TypeEmployee  BeneficiaryType = "E"
)

// Member is the paying account (individual or corporate) beneficiaries hang
// off.
type Member struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	MembershipNumber string     `db:"membership_number" json:"membership_number"`
	Name             string     `db:"name" json:"name"`
	Type             string     `db:"type" json:"type"`
	CurrencyCode     string     `db:"currency_code" json:"currency_code"`
	DefaultPackageID *uuid.UUID `db:"default_package_id" json:"default_package_id,omitempty"`
	Status           Status     `db:"status" json:"status"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// Beneficiary is a covered individual.
type Beneficiary struct {
	ID               uuid.UUID       `db:"id" json:"id"`
	MemberID         uuid.UUID       `db:"member_id" json:"member_id"`
	MembershipNumber string          `db:"membership_number" json:"membership_number"`
	DependentCode    string          `db:"dependent_code" json:"dependent_code"`
	FirstName        string          `db:"first_name" json:"first_name"`
	LastName         string          `db:"last_name" json:"last_name"`
	NationalID       string          `db:"national_id" json:"national_id"`
	DateOfBirth      time.Time       `db:"date_of_birth" json:"date_of_birth"`
	Gender           string          `db:"gender" json:"gender"`
	Status           Status          `db:"status" json:"status"`
	Type             BeneficiaryType `db:"type" json:"type"`
	BenefitStartDate *time.Time      `db:"benefit_start_date" json:"benefit_start_date,omitempty"`
	// AnnualLimitOverride, when positive, replaces the package's global
	// annual limit for this beneficiary.
	AnnualLimitOverride decimal.Decimal `db:"annual_limit_override" json:"annual_limit_override"`
	PackageID           *uuid.UUID      `db:"package_id" json:"package_id,omitempty"`
	CreatedAt           time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time       `db:"updated_at" json:"updated_at"`
}

// FullName returns the beneficiary's display name.
func (b *Beneficiary) FullName() string {
	return fmt.Sprintf("%s %s", b.FirstName, b.LastName)
}

// Reference returns the membership/dependent identifier shown on cards and
// statements.
func (b *Beneficiary) Reference() string {
	return fmt.Sprintf("%s/%s", b.MembershipNumber, b.DependentCode)
}

// AgeAt returns the beneficiary's age in whole years as of the given date.
func (b *Beneficiary) AgeAt(at time.Time) int {
	years := at.Year() - b.DateOfBirth.Year()
	anniversary := time.Date(at.Year(), b.DateOfBirth.Month(), b.DateOfBirth.Day(), 0, 0, 0, 0, time.UTC)
	if at.Before(anniversary) {
		years--
	}
	return years
}

// EffectiveAnnualLimit resolves the beneficiary's annual limit: an explicit
// override wins, otherwise the package's global limit applies.
func (b *Beneficiary) EffectiveAnnualLimit(packageGlobalLimit decimal.Decimal) decimal.Decimal {
	if b.AnnualLimitOverride.IsPositive() {
		return b.AnnualLimitOverride
	}
	return packageGlobalLimit
}

// BenefitsStarted reports whether benefits are in force as of the given date.
// A beneficiary with no start date recorded is treated as not yet started.
func (b *Beneficiary) BenefitsStarted(at time.Time) bool {
	if b.BenefitStartDate == nil {
		return false
	}
	return !b.BenefitStartDate.After(at)
}
