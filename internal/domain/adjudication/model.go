package adjudication

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ClaimStatus is the claim lifecycle status.
type ClaimStatus string

const (
	ClaimNew         ClaimStatus = "NEW"
	ClaimUnderReview ClaimStatus = "UNDER_REVIEW"
	ClaimApproved    ClaimStatus = "APPROVED"
	ClaimPaid        ClaimStatus = "PAID"
	ClaimDeclined    ClaimStatus = "DECLINED"
	ClaimCancelled   ClaimStatus = "CANCELLED"
)

// SubjectKind tags the two adjudication targets.
type SubjectKind string

const (
	KindClaim          SubjectKind = "CLAIM"
	KindServiceRequest SubjectKind = "SERVICE_REQUEST"
)

// Subject is the contract shared by claims and pre-authorization service
// requests so the eligibility, coverage and compliance stages can run
// against either.
type Subject interface {
	SubjectID() uuid.UUID
	SubjectKind() SubjectKind
	SubjectBeneficiary() uuid.UUID
	SubjectProvider() uuid.UUID
	SubjectAmount() decimal.Decimal
	SubjectServiceIDs() []uuid.UUID
}

// Claim is a provider's bill for services rendered to a beneficiary.
type Claim struct {
	ID                  uuid.UUID       `db:"id" json:"id"`
	TransactionNumber   string          `db:"transaction_number" json:"transaction_number"`
	BeneficiaryID       uuid.UUID       `db:"beneficiary_id" json:"beneficiary_id"`
	MemberID            uuid.UUID       `db:"member_id" json:"member_id"`
	ProviderID          uuid.UUID       `db:"provider_id" json:"provider_id"`
	ReferringProviderID *uuid.UUID      `db:"referring_provider_id" json:"referring_provider_id,omitempty"`
	ServiceRequestID    *uuid.UUID      `db:"service_request_id" json:"service_request_id,omitempty"`
	InvoiceNumber       string          `db:"invoice_number" json:"invoice_number"`
	Status              ClaimStatus     `db:"status" json:"status"`
	ServiceStartDate    time.Time       `db:"service_start_date" json:"service_start_date"`
	ServiceEndDate      time.Time       `db:"service_end_date" json:"service_end_date"`
	ClaimedAmount       decimal.Decimal `db:"claimed_amount" json:"claimed_amount"`
	AcceptedAmount      decimal.Decimal `db:"accepted_amount" json:"accepted_amount"`
	AdjudicatedAmount   decimal.Decimal `db:"adjudicated_amount" json:"adjudicated_amount"`
	ShortfallAmount     decimal.Decimal `db:"shortfall_amount" json:"shortfall_amount"`
	PaidToProvider      decimal.Decimal `db:"paid_to_provider" json:"paid_to_provider"`
	PaidToMember        decimal.Decimal `db:"paid_to_member" json:"paid_to_member"`
	Lines               []*ServiceLine  `db:"-" json:"lines"`
	SubmittedAt         time.Time       `db:"submitted_at" json:"submitted_at"`
	CreatedAt           time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time       `db:"updated_at" json:"updated_at"`
}

func (c *Claim) SubjectID() uuid.UUID          { return c.ID }
func (c *Claim) SubjectKind() SubjectKind      { return KindClaim }
func (c *Claim) SubjectBeneficiary() uuid.UUID { return c.BeneficiaryID }
func (c *Claim) SubjectProvider() uuid.UUID    { return c.ProviderID }
func (c *Claim) SubjectAmount() decimal.Decimal {
	return c.ClaimedAmount
}

func (c *Claim) SubjectServiceIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(c.Lines))
	for _, l := range c.Lines {
		ids = append(ids, l.ServiceID)
	}
	return ids
}

// TotalClaimed sums the service lines' claimed amounts.
func (c *Claim) TotalClaimed() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.Lines {
		total = total.Add(l.ClaimedAmount)
	}
	return total
}

// RedistributeLines spreads the claim-level adjudicated amount across the
// service lines in proportion to what each line claimed. Rounding remainders
// land on the last line so the lines always sum exactly to the claim total.
func (c *Claim) RedistributeLines() {
	if len(c.Lines) == 0 || !c.ClaimedAmount.IsPositive() {
		return
	}
	acceptedRatio := c.AcceptedAmount.Div(c.ClaimedAmount)
	adjudicatedRatio := c.AdjudicatedAmount.Div(c.ClaimedAmount)

	var acceptedSum, adjudicatedSum decimal.Decimal
	for i, l := range c.Lines {
		if i == len(c.Lines)-1 {
			l.AcceptedAmount = c.AcceptedAmount.Sub(acceptedSum)
			l.AdjudicatedAmount = c.AdjudicatedAmount.Sub(adjudicatedSum)
			break
		}
		l.AcceptedAmount = l.ClaimedAmount.Mul(acceptedRatio).Round(2)
		l.AdjudicatedAmount = l.ClaimedAmount.Mul(adjudicatedRatio).Round(2)
		acceptedSum = acceptedSum.Add(l.AcceptedAmount)
		adjudicatedSum = adjudicatedSum.Add(l.AdjudicatedAmount)
	}
}

// ServiceLine is one billed item within a claim.
type ServiceLine struct {
	ID                uuid.UUID       `db:"id" json:"id"`
	ClaimID           uuid.UUID       `db:"claim_id" json:"claim_id"`
	ServiceID         uuid.UUID       `db:"service_id" json:"service_id"`
	Description       string          `db:"description" json:"description"`
	UnitPrice         decimal.Decimal `db:"unit_price" json:"unit_price"`
	Quantity          int32           `db:"quantity" json:"quantity"`
	ClaimedAmount     decimal.Decimal `db:"claimed_amount" json:"claimed_amount"`
	AcceptedAmount    decimal.Decimal `db:"accepted_amount" json:"accepted_amount"`
	AdjudicatedAmount decimal.Decimal `db:"adjudicated_amount" json:"adjudicated_amount"`
	ServiceDate       time.Time       `db:"service_date" json:"service_date"`
}

// ComputeClaimed derives the line's claimed amount from unit price and
// quantity.
func (l *ServiceLine) ComputeClaimed() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt32(l.Quantity)).Round(2)
}

// ServiceRequestStatus is the pre-authorization lifecycle status.
type ServiceRequestStatus string

const (
	RequestNew           ServiceRequestStatus = "NEW"
	RequestApproved      ServiceRequestStatus = "APPROVED"
	RequestDeclined      ServiceRequestStatus = "DECLINED"
	RequestPendingReview ServiceRequestStatus = "PENDING_REVIEW"
	RequestExpired       ServiceRequestStatus = "EXPIRED"
	RequestUtilized      ServiceRequestStatus = "UTILIZED"
	RequestCancelled     ServiceRequestStatus = "CANCELLED"
)

// ServiceRequest is a pre-authorization permitting a future claim up to a
// bounded amount.
type ServiceRequest struct {
	ID                uuid.UUID             `db:"id" json:"id"`
	RequestNumber     string                `db:"request_number" json:"request_number"`
	AuthorizationCode string                `db:"authorization_code" json:"authorization_code"`
	BeneficiaryID     uuid.UUID             `db:"beneficiary_id" json:"beneficiary_id"`
	MemberID          uuid.UUID             `db:"member_id" json:"member_id"`
	ProviderID        uuid.UUID             `db:"provider_id" json:"provider_id"`
	Status            ServiceRequestStatus  `db:"status" json:"status"`
	EstimatedAmount   decimal.Decimal       `db:"estimated_amount" json:"estimated_amount"`
	ApprovedAmount    decimal.Decimal       `db:"approved_amount" json:"approved_amount"`
	UtilizedAmount    decimal.Decimal       `db:"utilized_amount" json:"utilized_amount"`
	ExpiryDate        *time.Time            `db:"expiry_date" json:"expiry_date,omitempty"`
	Items             []*ServiceRequestItem `db:"-" json:"items"`
	RequestedAt       time.Time             `db:"requested_at" json:"requested_at"`
	CreatedAt         time.Time             `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time             `db:"updated_at" json:"updated_at"`
}

func (r *ServiceRequest) SubjectID() uuid.UUID          { return r.ID }
func (r *ServiceRequest) SubjectKind() SubjectKind      { return KindServiceRequest }
func (r *ServiceRequest) SubjectBeneficiary() uuid.UUID { return r.BeneficiaryID }
func (r *ServiceRequest) SubjectProvider() uuid.UUID    { return r.ProviderID }
func (r *ServiceRequest) SubjectAmount() decimal.Decimal {
	return r.EstimatedAmount
}

func (r *ServiceRequest) SubjectServiceIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(r.Items))
	for _, it := range r.Items {
		ids = append(ids, it.ServiceID)
	}
	return ids
}

// RemainingAmount returns the authorized amount not yet consumed by claims.
func (r *ServiceRequest) RemainingAmount() decimal.Decimal {
	return r.ApprovedAmount.Sub(r.UtilizedAmount)
}

// Expired reports whether the authorization has lapsed as of the given date.
func (r *ServiceRequest) Expired(at time.Time) bool {
	return r.ExpiryDate != nil && r.ExpiryDate.Before(at)
}

// ServiceRequestItem is one requested service within a pre-authorization.
type ServiceRequestItem struct {
	ID               uuid.UUID       `db:"id" json:"id"`
	ServiceRequestID uuid.UUID       `db:"service_request_id" json:"service_request_id"`
	ServiceID        uuid.UUID       `db:"service_id" json:"service_id"`
	Quantity         int32           `db:"quantity" json:"quantity"`
	EstimatedAmount  decimal.Decimal `db:"estimated_amount" json:"estimated_amount"`
}
