package adjudication

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RuleAction is what a matching rule does to the claim.
type RuleAction string

const (
	ActionAutoApprove    RuleAction = "AUTO_APPROVE"
	ActionAutoDecline    RuleAction = "AUTO_DECLINE"
	ActionManualReview   RuleAction = "MANUAL_REVIEW"
	ActionClinicalReview RuleAction = "CLINICAL_REVIEW"
	ActionReduceAmount   RuleAction = "REDUCE_AMOUNT"
	ActionApplyCopayment RuleAction = "APPLY_COPAYMENT"
)

// Exclusive reports whether the action terminates rule evaluation. Amount
// adjustments are cumulative and evaluation continues past them.
func (a RuleAction) Exclusive() bool {
	switch a {
	case ActionAutoApprove, ActionAutoDecline, ActionManualReview, ActionClinicalReview:
		return true
	}
	return false
}

// Rule is a configurable adjudication rule. Condition fields left at their
// zero value place no restriction; the predicate is the conjunction of the
// configured filters. Rules are evaluated in ascending Priority order.
type Rule struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	Name      string     `db:"name" json:"name"`
	Action    RuleAction `db:"action" json:"action"`
	Priority  int        `db:"priority" json:"priority"`
	IsActive  bool       `db:"is_active" json:"is_active"`
	ValidFrom *time.Time `db:"valid_from" json:"valid_from,omitempty"`
	ValidTo   *time.Time `db:"valid_to" json:"valid_to,omitempty"`

	MinAmount             decimal.Decimal `db:"min_amount" json:"min_amount"`
	MaxAmount             decimal.Decimal `db:"max_amount" json:"max_amount"`
	BeneficiaryTypes      []string        `db:"beneficiary_types" json:"beneficiary_types"`
	MemberTypes           []string        `db:"member_types" json:"member_types"`
	ProviderTiers         []uuid.UUID     `db:"provider_tiers" json:"provider_tiers"`
	ServiceIDs            []uuid.UUID     `db:"service_ids" json:"service_ids"`
	CategoryIDs           []uuid.UUID     `db:"category_ids" json:"category_ids"`
	MinAge                int             `db:"min_age" json:"min_age"`
	MaxAge                int             `db:"max_age" json:"max_age"`
	MaxVisitsPerYear      int             `db:"max_visits_per_year" json:"max_visits_per_year"`
	MaxVisitsPerMonth     int             `db:"max_visits_per_month" json:"max_visits_per_month"`
	RequiresReferral      bool            `db:"requires_referral" json:"requires_referral"`
	RequiresAuthorization bool            `db:"requires_authorization" json:"requires_authorization"`

	ReductionPercent decimal.Decimal `db:"reduction_percent" json:"reduction_percent"`
	ReductionCap     decimal.Decimal `db:"reduction_cap" json:"reduction_cap"`
	CopaymentPercent decimal.Decimal `db:"copayment_percent" json:"copayment_percent"`
	CopaymentFixed   decimal.Decimal `db:"copayment_fixed" json:"copayment_fixed"`
}

// EffectiveAt reports whether the rule's activity window covers the given
// time.
func (r *Rule) EffectiveAt(at time.Time) bool {
	if !r.IsActive {
		return false
	}
	if r.ValidFrom != nil && at.Before(*r.ValidFrom) {
		return false
	}
	if r.ValidTo != nil && at.After(*r.ValidTo) {
		return false
	}
	return true
}

// RuleContext carries the claim attributes a rule predicate matches
// against.
type RuleContext struct {
	Amount           decimal.Decimal
	BeneficiaryType  string
	MemberType       string
	ProviderTier     *uuid.UUID
	ServiceIDs       []uuid.UUID
	CategoryIDs      []uuid.UUID
	Age              int
	HasReferral      bool
	HasAuthorization bool
	// VisitCount reports how many settled claims the beneficiary has for
	// any of the given services within the trailing window.
	VisitCount func(windowDays int, serviceIDs []uuid.UUID) (int, error)
}

func intersectsUUID(a, b []uuid.UUID) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

func containsString(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// Matches evaluates the rule predicate against the claim context. Frequency
// caps are a ceiling on applicability: once the beneficiary has reached the
// cap the rule no longer fires and the claim falls through to the next rule.
func (r *Rule) Matches(rc *RuleContext) (bool, error) {
	if r.MinAmount.IsPositive() && rc.Amount.LessThan(r.MinAmount) {
		return false, nil
	}
	if r.MaxAmount.IsPositive() && rc.Amount.GreaterThan(r.MaxAmount) {
		return false, nil
	}
	if len(r.BeneficiaryTypes) > 0 && !containsString(r.BeneficiaryTypes, rc.BeneficiaryType) {
		return false, nil
	}
	if len(r.MemberTypes) > 0 && !containsString(r.MemberTypes, rc.MemberType) {
		return false, nil
	}
	if len(r.ProviderTiers) > 0 {
		if rc.ProviderTier == nil {
			return false, nil
		}
		if !intersectsUUID(r.ProviderTiers, []uuid.UUID{*rc.ProviderTier}) {
			return false, nil
		}
	}
	if len(r.ServiceIDs) > 0 && !intersectsUUID(r.ServiceIDs, rc.ServiceIDs) {
		return false, nil
	}
	if len(r.CategoryIDs) > 0 && !intersectsUUID(r.CategoryIDs, rc.CategoryIDs) {
		return false, nil
	}
	if r.MinAge > 0 && rc.Age < r.MinAge {
		return false, nil
	}
	if r.MaxAge > 0 && rc.Age > r.MaxAge {
		return false, nil
	}
	if r.RequiresReferral && !rc.HasReferral {
		return false, nil
	}
	if r.RequiresAuthorization && !rc.HasAuthorization {
		return false, nil
	}
	if r.MaxVisitsPerYear > 0 {
		n, err := rc.VisitCount(365, rc.ServiceIDs)
		if err != nil {
			return false, err
		}
		if n >= r.MaxVisitsPerYear {
			return false, nil
		}
	}
	if r.MaxVisitsPerMonth > 0 {
		n, err := rc.VisitCount(30, rc.ServiceIDs)
		if err != nil {
			return false, err
		}
		if n >= r.MaxVisitsPerMonth {
			return false, nil
		}
	}
	return true, nil
}

// Reduce applies a REDUCE_AMOUNT rule to the given amount. A configured
// percentage takes precedence over a fixed cap.
func (r *Rule) Reduce(amount decimal.Decimal) decimal.Decimal {
	if r.ReductionPercent.IsPositive() {
		factor := decimal.NewFromInt(100).Sub(r.ReductionPercent).Div(decimal.NewFromInt(100))
		return amount.Mul(factor).Round(2)
	}
	if r.ReductionCap.IsPositive() && amount.GreaterThan(r.ReductionCap) {
		return r.ReductionCap
	}
	return amount
}

// Copayment computes an APPLY_COPAYMENT rule's co-payment for the given
// amount. A configured percentage takes precedence over a fixed amount.
func (r *Rule) Copayment(amount decimal.Decimal) decimal.Decimal {
	if r.CopaymentPercent.IsPositive() {
		return amount.Mul(r.CopaymentPercent).Div(decimal.NewFromInt(100)).Round(2)
	}
	if r.CopaymentFixed.IsPositive() {
		if r.CopaymentFixed.GreaterThan(amount) {
			return amount
		}
		return r.CopaymentFixed
	}
	return decimal.Zero
}
