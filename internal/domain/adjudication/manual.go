package adjudication

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/vitalsuite/claims/internal/platform/auth"
	"github.com/vitalsuite/claims/internal/platform/db"
	"github.com/vitalsuite/claims/internal/platform/notification"
)

// ReviewAction is the reviewer's decision.
type ReviewAction string

const (
	ReviewApprove      ReviewAction = "APPROVE"
	ReviewDecline      ReviewAction = "DECLINE"
	ReviewModify       ReviewAction = "MODIFY"
	ReviewReturnToAuto ReviewAction = "RETURN_TO_AUTO"
)

// PaymentMethod hints how an approved amount should be paid.
type PaymentMethod string

const (
	PaymentFull     PaymentMethod = "FULL"
	PaymentPartial  PaymentMethod = "PARTIAL"
	PaymentWithheld PaymentMethod = "WITHHELD"
)

// Reviewer identifies the human making a manual decision.
type Reviewer struct {
	ID          string
	Name        string
	Permissions []string
}

// Has reports whether the reviewer holds a permission.
func (r Reviewer) Has(perm string) bool {
	for _, p := range r.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// Decision is one manual review decision. ActiveResultID must reference the
// result the reviewer saw; a stale reference fails with a concurrency
// conflict instead of silently overwriting another reviewer's work.
type Decision struct {
	Action          ReviewAction
	Amount          *decimal.Decimal
	Reason          string
	Notes           string
	PaymentMethod   PaymentMethod
	WithheldPercent decimal.Decimal
	ActiveResultID  uuid.UUID
}

// ManualEngineDeps are the collaborators the manual pipeline needs.
type ManualEngineDeps struct {
	Claims   ClaimRepository
	Results  ResultRepository
	Ledger   LedgerService
	Auto     *AutoEngine
	Runner   db.Runner
	Notifier notification.Dispatcher
}

// ManualEngine applies reviewer decisions to adjudicated claims, keeping
// the single-active-result invariant and reconciling the ledger.
type ManualEngine struct {
	deps       ManualEngineDeps
	thresholds Thresholds
	log        zerolog.Logger
	now        func() time.Time
}

func NewManualEngine(deps ManualEngineDeps, thresholds Thresholds, log zerolog.Logger) *ManualEngine {
	return &ManualEngine{
		deps:       deps,
		thresholds: thresholds,
		log:        log.With().Str("component", "manual_engine").Logger(),
		now:        time.Now,
	}
}

// Review applies one reviewer decision to a claim. The override record, the
// new result, the ledger reconcile and the claim update commit as a single
// transaction; a failure anywhere leaves everything untouched.
func (e *ManualEngine) Review(ctx context.Context, claimID uuid.UUID, reviewer Reviewer, d Decision) (*Result, error) {
	if strings.TrimSpace(d.Reason) == "" {
		return nil, fmt.Errorf("%w: reason is required", ErrInvalidDecision)
	}
	switch d.Action {
	case ReviewApprove, ReviewDecline, ReviewModify, ReviewReturnToAuto:
	default:
		return nil, fmt.Errorf("%w: unknown action %q", ErrInvalidDecision, d.Action)
	}

	var result *Result
	err := e.deps.Runner.InTx(ctx, func(ctx context.Context) error {
		// Reviewers of the same claim serialize on the row lock; the
		// active result is only read once the lock is held.
		claim, err := e.deps.Claims.GetForUpdate(ctx, claimID)
		if err != nil {
			return err
		}
		current, err := e.deps.Results.GetActive(ctx, KindClaim, claim.ID)
		if err != nil {
			return err
		}
		if current != nil && current.ID != d.ActiveResultID {
			return fmt.Errorf("%w: result %s superseded %s", ErrConcurrencyConflict, current.ID, d.ActiveResultID)
		}

		if d.Action == ReviewReturnToAuto {
			if err := e.authorize(reviewer, claim, current, ResultPendingReview); err != nil {
				return err
			}
			result, err = e.returnToAuto(ctx, claim, current, reviewer, d)
			return err
		}

		status, accepted, withheld, err := e.resolve(claim, current, d)
		if err != nil {
			return err
		}
		if err := e.authorize(reviewer, claim, current, status); err != nil {
			return err
		}
		result, err = e.apply(ctx, claim, current, reviewer, d, status, accepted, withheld)
		return err
	})
	if err != nil {
		return nil, err
	}

	if d.Action != ReviewReturnToAuto && result.Status.Terminal() {
		e.deps.Notifier.Notify(claimID, string(result.Status))
	}
	e.log.Info().
		Str("claim_id", claimID.String()).
		Str("reviewer", reviewer.ID).
		Str("action", string(d.Action)).
		Str("outcome", string(result.Status)).
		Msg("manual review completed")
	return result, nil
}

// authorize enforces the permission gate before any state change.
func (e *ManualEngine) authorize(reviewer Reviewer, claim *Claim, current *Result, newStatus ResultStatus) error {
	if !reviewer.Has(auth.PermAdjudicate) {
		return fmt.Errorf("%w: %s required", ErrInsufficientAuthority, auth.PermAdjudicate)
	}
	if claim.ClaimedAmount.GreaterThan(e.thresholds.HighValueThreshold) && !reviewer.Has(auth.PermHighValue) {
		return fmt.Errorf("%w: claim exceeds high-value threshold, %s required",
			ErrInsufficientAuthority, auth.PermHighValue)
	}
	if current != nil {
		if current.Status == ResultPendingClinical && !reviewer.Has(auth.PermClinical) {
			return fmt.Errorf("%w: %s required", ErrInsufficientAuthority, auth.PermClinical)
		}
		if current.ProcessingType == ProcessingAutomatic && current.Status != newStatus && !reviewer.Has(auth.PermOverrideAuto) {
			return fmt.Errorf("%w: reversing an automatic decision requires %s",
				ErrInsufficientAuthority, auth.PermOverrideAuto)
		}
	}
	return nil
}

// resolve computes the new status, accepted amount and withheld amount for
// an approve, decline or modify decision.
func (e *ManualEngine) resolve(claim *Claim, current *Result, d Decision) (ResultStatus, decimal.Decimal, decimal.Decimal, error) {
	switch d.Action {
	case ReviewApprove:
		amount := claim.ClaimedAmount
		switch {
		case d.Amount != nil:
			amount = *d.Amount
		case current != nil && current.AcceptedAmount.IsPositive():
			amount = current.AcceptedAmount
		}
		if amount.IsNegative() || amount.GreaterThan(claim.ClaimedAmount) {
			return "", decimal.Zero, decimal.Zero,
				fmt.Errorf("%w: amount %s outside 0..%s", ErrInvalidDecision, amount, claim.ClaimedAmount)
		}
		withheld := decimal.Zero
		if d.PaymentMethod == PaymentWithheld {
			if d.WithheldPercent.IsNegative() || d.WithheldPercent.GreaterThan(decimal.NewFromInt(100)) {
				return "", decimal.Zero, decimal.Zero,
					fmt.Errorf("%w: withheld percent %s outside 0..100", ErrInvalidDecision, d.WithheldPercent)
			}
			withheld = amount.Mul(d.WithheldPercent).Div(decimal.NewFromInt(100)).Round(2)
		}
		return ResultApproved, amount, withheld, nil

	case ReviewDecline:
		return ResultDeclined, decimal.Zero, decimal.Zero, nil

	case ReviewModify:
		if d.Amount == nil {
			return "", decimal.Zero, decimal.Zero,
				fmt.Errorf("%w: modify requires an amount", ErrInvalidDecision)
		}
		amount := *d.Amount
		if amount.IsNegative() || amount.GreaterThan(claim.ClaimedAmount) {
			return "", decimal.Zero, decimal.Zero,
				fmt.Errorf("%w: amount %s outside 0..%s", ErrInvalidDecision, amount, claim.ClaimedAmount)
		}
		if amount.IsPositive() {
			return ResultApproved, amount, decimal.Zero, nil
		}
		return ResultDeclined, decimal.Zero, decimal.Zero, nil
	}
	return "", decimal.Zero, decimal.Zero, fmt.Errorf("%w: unknown action %q", ErrInvalidDecision, d.Action)
}

// retireActive deactivates the result the decision was made against. The
// conditional form keeps the write honest: if another decision slipped in,
// the update misses and the conflict propagates instead of clobbering it.
func (e *ManualEngine) retireActive(ctx context.Context, claimID uuid.UUID, current *Result) error {
	if current != nil {
		return e.deps.Results.Supersede(ctx, KindClaim, claimID, current.ID)
	}
	return e.deps.Results.Deactivate(ctx, KindClaim, claimID)
}

func originalState(claim *Claim, current *Result) (ResultStatus, decimal.Decimal) {
	if current != nil {
		return current.Status, current.AdjudicatedAmount
	}
	return ResultPendingReview, claim.AdjudicatedAmount
}

// apply performs the four effects of a successful decision: override record,
// new active result, ledger reconcile, claim update.
func (e *ManualEngine) apply(ctx context.Context, claim *Claim, current *Result, reviewer Reviewer, d Decision, status ResultStatus, accepted, withheld decimal.Decimal) (*Result, error) {
	adjudicated := accepted.Sub(withheld)
	origStatus, origAmount := originalState(claim, current)

	released, err := e.deps.Ledger.Release(ctx, claim.MemberID, claim.ID, claim.TransactionNumber)
	if err != nil {
		return nil, err
	}

	override := &Override{
		ID:              uuid.New(),
		ClaimID:         claim.ID,
		OriginalStatus:  origStatus,
		OriginalAmount:  origAmount,
		NewStatus:       status,
		NewAmount:       adjudicated,
		FinancialImpact: adjudicated.Sub(origAmount),
		Reason:          d.Reason,
		Notes:           d.Notes,
		ReviewerID:      reviewer.ID,
		ReviewerName:    reviewer.Name,
		CreatedAt:       e.now(),
	}
	if current != nil {
		override.PreviousResultID = &current.ID
	}
	if err := e.deps.Results.CreateOverride(ctx, override); err != nil {
		return nil, err
	}

	res := &Result{
		ID:                uuid.New(),
		SubjectKind:       KindClaim,
		SubjectID:         claim.ID,
		Status:            status,
		ClaimedAmount:     claim.ClaimedAmount,
		AcceptedAmount:    accepted,
		AdjudicatedAmount: adjudicated,
		WithheldAmount:    withheld,
		ProcessingType:    ProcessingManual,
		ProcessedBy:       reviewer.ID,
		ProcessedAt:       e.now(),
		Active:            true,
		OverrideID:        &override.ID,
	}
	if status == ResultApproved {
		res.AddMessage(CodeManualApproved, d.Reason)
	} else {
		res.AddMessage(CodeManualDecline, d.Reason)
	}
	if withheld.IsPositive() {
		res.AddMessage(CodeAmountReduced,
			fmt.Sprintf("%s%% withheld (%s) pending release", d.WithheldPercent, withheld))
	}

	if err := e.retireActive(ctx, claim.ID, current); err != nil {
		return nil, err
	}
	if err := e.deps.Results.Create(ctx, res); err != nil {
		return nil, err
	}

	claim.AcceptedAmount = accepted
	claim.AdjudicatedAmount = adjudicated
	claim.ShortfallAmount = claim.ClaimedAmount.Sub(adjudicated)
	if status == ResultApproved {
		claim.Status = ClaimApproved
	} else {
		claim.Status = ClaimDeclined
	}
	claim.RedistributeLines()
	if err := e.deps.Claims.Update(ctx, claim); err != nil {
		return nil, err
	}
	if err := e.deps.Claims.UpdateLines(ctx, claim.Lines); err != nil {
		return nil, err
	}

	if status == ResultApproved && adjudicated.IsPositive() {
		if err := e.deps.Ledger.Reserve(ctx, claim.MemberID, claim.ID, claim.TransactionNumber, adjudicated); err != nil {
			return nil, err
		}
	}

	e.log.Debug().
		Str("claim_id", claim.ID.String()).
		Str("released", released.String()).
		Str("reserved", adjudicated.String()).
		Msg("ledger reconciled")
	return res, nil
}

// returnToAuto releases any reservation, resets the claim to NEW and
// re-runs the automatic pipeline inside the same transaction, linking the
// fresh result back to the override for traceability. This is the only path
// that re-enters the automatic pipeline after a manual touch.
func (e *ManualEngine) returnToAuto(ctx context.Context, claim *Claim, current *Result, reviewer Reviewer, d Decision) (*Result, error) {
	origStatus, origAmount := originalState(claim, current)

	if _, err := e.deps.Ledger.Release(ctx, claim.MemberID, claim.ID, claim.TransactionNumber); err != nil {
		return nil, err
	}
	if err := e.retireActive(ctx, claim.ID, current); err != nil {
		return nil, err
	}

	claim.Status = ClaimNew
	claim.AcceptedAmount = decimal.Zero
	claim.AdjudicatedAmount = decimal.Zero
	claim.ShortfallAmount = decimal.Zero
	if err := e.deps.Claims.Update(ctx, claim); err != nil {
		return nil, err
	}

	res, err := e.deps.Auto.Process(ctx, claim.ID)
	if err != nil {
		return nil, err
	}

	override := &Override{
		ID:              uuid.New(),
		ClaimID:         claim.ID,
		OriginalStatus:  origStatus,
		OriginalAmount:  origAmount,
		NewStatus:       res.Status,
		NewAmount:       res.AdjudicatedAmount,
		FinancialImpact: res.AdjudicatedAmount.Sub(origAmount),
		Reason:          d.Reason,
		Notes:           d.Notes,
		ReviewerID:      reviewer.ID,
		ReviewerName:    reviewer.Name,
		CreatedAt:       e.now(),
	}
	if current != nil {
		override.PreviousResultID = &current.ID
	}
	if err := e.deps.Results.CreateOverride(ctx, override); err != nil {
		return nil, err
	}
	if err := e.deps.Results.LinkOverride(ctx, res.ID, override.ID); err != nil {
		return nil, err
	}
	res.OverrideID = &override.ID
	return res, nil
}
