package adjudication

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ResultStatus is the adjudication outcome.
type ResultStatus string

const (
	ResultApproved        ResultStatus = "APPROVED"
	ResultDeclined        ResultStatus = "DECLINED"
	ResultPendingReview   ResultStatus = "PENDING_REVIEW"
	ResultPendingClinical ResultStatus = "PENDING_CLINICAL"
)

// Terminal reports whether the outcome ends the adjudication workflow.
func (s ResultStatus) Terminal() bool {
	return s == ResultApproved || s == ResultDeclined
}

// ProcessingType records which pipeline produced a result.
type ProcessingType string

const (
	ProcessingAutomatic ProcessingType = "AUTOMATIC"
	ProcessingManual    ProcessingType = "MANUAL"
	ProcessingClinical  ProcessingType = "CLINICAL"
)

// Result is one adjudication decision for a claim or service request. At
// most one result per subject is active at a time; superseded results are
// retained inactive for audit.
type Result struct {
	ID                uuid.UUID       `db:"id" json:"id"`
	SubjectKind       SubjectKind     `db:"subject_kind" json:"subject_kind"`
	SubjectID         uuid.UUID       `db:"subject_id" json:"subject_id"`
	Status            ResultStatus    `db:"status" json:"status"`
	ClaimedAmount     decimal.Decimal `db:"claimed_amount" json:"claimed_amount"`
	AcceptedAmount    decimal.Decimal `db:"accepted_amount" json:"accepted_amount"`
	AdjudicatedAmount decimal.Decimal `db:"adjudicated_amount" json:"adjudicated_amount"`
	CopaymentAmount   decimal.Decimal `db:"copayment_amount" json:"copayment_amount"`
	WithheldAmount    decimal.Decimal `db:"withheld_amount" json:"withheld_amount"`
	ProcessingType    ProcessingType  `db:"processing_type" json:"processing_type"`
	ProcessedBy       string          `db:"processed_by" json:"processed_by"`
	ProcessedAt       time.Time       `db:"processed_at" json:"processed_at"`
	Active            bool            `db:"active" json:"active"`
	OverrideID        *uuid.UUID      `db:"override_id" json:"override_id,omitempty"`
	Messages          []*Message      `db:"-" json:"messages"`
}

// AddMessage appends an ordered message to the result. An empty text falls
// back to the catalog title for the code.
func (r *Result) AddMessage(code, text string) {
	if text == "" {
		text = CodeTitle(code)
	}
	r.Messages = append(r.Messages, &Message{
		ID:       uuid.New(),
		ResultID: r.ID,
		Code:     code,
		Text:     text,
		Sequence: len(r.Messages) + 1,
	})
}

// HasCode reports whether any message on the result carries the given code.
func (r *Result) HasCode(code string) bool {
	for _, m := range r.Messages {
		if m.Code == code {
			return true
		}
	}
	return false
}

// Message is one ordered, append-only explanation attached to a result.
type Message struct {
	ID        uuid.UUID `db:"id" json:"id"`
	ResultID  uuid.UUID `db:"result_id" json:"result_id"`
	Code      string    `db:"code" json:"code"`
	Text      string    `db:"text" json:"text"`
	Sequence  int       `db:"sequence" json:"sequence"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Severity classifies message codes.
type Severity string

const (
	SeverityInfo    Severity = "I"
	SeverityWarning Severity = "W"
	SeverityError   Severity = "E"
)

// MessageCode is a fixed catalog entry referenced by messages.
type MessageCode struct {
	Code            string   `db:"code" json:"code"`
	Title           string   `db:"title" json:"title"`
	Severity        Severity `db:"severity" json:"severity"`
	ProviderVisible bool     `db:"provider_visible" json:"provider_visible"`
	MemberVisible   bool     `db:"member_visible" json:"member_visible"`
}

// Override is the immutable audit record of a manual intervention.
type Override struct {
	ID               uuid.UUID       `db:"id" json:"id"`
	ClaimID          uuid.UUID       `db:"claim_id" json:"claim_id"`
	PreviousResultID *uuid.UUID      `db:"previous_result_id" json:"previous_result_id,omitempty"`
	OriginalStatus   ResultStatus    `db:"original_status" json:"original_status"`
	OriginalAmount   decimal.Decimal `db:"original_amount" json:"original_amount"`
	NewStatus        ResultStatus    `db:"new_status" json:"new_status"`
	NewAmount        decimal.Decimal `db:"new_amount" json:"new_amount"`
	FinancialImpact  decimal.Decimal `db:"financial_impact" json:"financial_impact"`
	Reason           string          `db:"reason" json:"reason"`
	Notes            string          `db:"notes" json:"notes"`
	ReviewerID       string          `db:"reviewer_id" json:"reviewer_id"`
	ReviewerName     string          `db:"reviewer_name" json:"reviewer_name"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
}
