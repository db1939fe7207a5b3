package adjudication

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/vitalsuite/claims/internal/platform/db"
	"github.com/vitalsuite/claims/internal/platform/notification"
	"github.com/vitalsuite/claims/internal/platform/sequence"
)

// Thresholds are the tunable limits the engines apply.
type Thresholds struct {
	ClaimMaxAgeDays         int
	HighValueThreshold      decimal.Decimal
	ProviderDailyClaimLimit int
	SameDayClaimLimit       int
	AnomalyMultiplier       int64
	AuthExpiryDays          int
}

// DefaultThresholds returns the limits used when no configuration is
// supplied.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ClaimMaxAgeDays:         365,
		HighValueThreshold:      decimal.NewFromInt(10000),
		ProviderDailyClaimLimit: 50,
		SameDayClaimLimit:       3,
		AnomalyMultiplier:       5,
		AuthExpiryDays:          30,
	}
}

// AutoEngineDeps are the collaborators the automatic pipeline needs.
type AutoEngineDeps struct {
	Claims    ClaimRepository
	Requests  ServiceRequestRepository
	Results   ResultRepository
	Rules     RuleRepository
	Oracle    EligibilityOracle
	Ledger    LedgerService
	Runner    db.Runner
	Sequences sequence.Generator
	Notifier  notification.Dispatcher
}

// AutoEngine runs the ordered automatic adjudication pipeline for newly
// submitted claims and service requests.
type AutoEngine struct {
	deps       AutoEngineDeps
	thresholds Thresholds
	log        zerolog.Logger
	now        func() time.Time
}

func NewAutoEngine(deps AutoEngineDeps, thresholds Thresholds, log zerolog.Logger) *AutoEngine {
	return &AutoEngine{
		deps:       deps,
		thresholds: thresholds,
		log:        log.With().Str("component", "auto_engine").Logger(),
		now:        time.Now,
	}
}

// autoRun is the accumulating state of one pipeline invocation.
type autoRun struct {
	claim    *Claim
	result   *Result
	benef    *BeneficiaryProfile
	provider *ProviderStanding
	services map[uuid.UUID]*ServiceProfile
	request  *ServiceRequest

	accepted decimal.Decimal
	copay    decimal.Decimal
	outcome  ResultStatus
}

func (run *autoRun) decline(code, text string) {
	run.outcome = ResultDeclined
	run.result.AddMessage(code, text)
}

// Process adjudicates one claim. The evaluation, the result and its
// messages, the claim update and any ledger reservation commit as a single
// transaction. An unexpected failure never leaves the claim stuck in NEW;
// it is routed to review instead.
func (e *AutoEngine) Process(ctx context.Context, claimID uuid.UUID) (*Result, error) {
	claim, err := e.deps.Claims.Get(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if claim.Status != ClaimNew {
		return nil, fmt.Errorf("%w: claim %s is %s", ErrNotProcessable, claim.ID, claim.Status)
	}

	var result *Result
	err = e.deps.Runner.InTx(ctx, func(ctx context.Context) error {
		// The check above was unlocked. The row lock here serializes
		// workers on the same claim, and the status is checked again so
		// the loser backs off instead of adjudicating twice.
		locked, err := e.deps.Claims.GetForUpdate(ctx, claimID)
		if err != nil {
			return err
		}
		if locked.Status != ClaimNew {
			return fmt.Errorf("%w: claim %s is %s", ErrNotProcessable, locked.ID, locked.Status)
		}
		claim = locked
		r, err := e.adjudicate(ctx, locked)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotProcessable) {
			return nil, err
		}
		e.log.Error().Err(err).Str("claim_id", claimID.String()).Msg("automatic adjudication failed")
		return e.routeToReview(ctx, claimID, err)
	}

	if result.Status.Terminal() {
		e.deps.Notifier.Notify(claim.ID, string(result.Status))
	}
	e.log.Info().
		Str("claim_id", claim.ID.String()).
		Str("transaction_number", claim.TransactionNumber).
		Str("outcome", string(result.Status)).
		Str("adjudicated", result.AdjudicatedAmount.String()).
		Msg("claim adjudicated")
	return result, nil
}

// routeToReview parks a claim whose evaluation failed unexpectedly in
// PENDING_REVIEW so it stays visible in the workflow.
func (e *AutoEngine) routeToReview(ctx context.Context, claimID uuid.UUID, cause error) (*Result, error) {
	var result *Result
	err := e.deps.Runner.InTx(ctx, func(ctx context.Context) error {
		claim, err := e.deps.Claims.GetForUpdate(ctx, claimID)
		if err != nil {
			return err
		}
		res := e.newResult(KindClaim, claim.ID)
		res.Status = ResultPendingReview
		res.ClaimedAmount = claim.TotalClaimed()
		res.AddMessage(CodeManualReview, "System error during automatic adjudication, manual review required")

		if err := e.deps.Results.Deactivate(ctx, KindClaim, claim.ID); err != nil {
			return err
		}
		if err := e.deps.Results.Create(ctx, res); err != nil {
			return err
		}
		claim.Status = ClaimUnderReview
		if err := e.deps.Claims.Update(ctx, claim); err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("route to review after failure (%v): %w", cause, err)
	}
	return result, nil
}

func (e *AutoEngine) newResult(kind SubjectKind, subjectID uuid.UUID) *Result {
	return &Result{
		ID:             uuid.New(),
		SubjectKind:    kind,
		SubjectID:      subjectID,
		ProcessingType: ProcessingAutomatic,
		ProcessedBy:    "system",
		ProcessedAt:    e.now(),
		Active:         true,
	}
}

func (e *AutoEngine) adjudicate(ctx context.Context, claim *Claim) (*Result, error) {
	run := &autoRun{
		claim:    claim,
		result:   e.newResult(KindClaim, claim.ID),
		services: make(map[uuid.UUID]*ServiceProfile),
		outcome:  ResultApproved,
	}

	provider, err := e.deps.Oracle.ProviderStanding(ctx, claim.ProviderID)
	if err != nil {
		return nil, err
	}
	run.provider = provider
	if err := e.assignTransactionNumber(ctx, claim, provider); err != nil {
		return nil, err
	}

	stages := []func(context.Context, *autoRun) error{
		e.preValidate,
		e.computeTotals,
		e.checkBeneficiary,
		e.checkCoverage,
		e.checkProvider,
		e.checkAuthorization,
	}
	for _, stage := range stages {
		if err := stage(ctx, run); err != nil {
			return nil, err
		}
		if run.outcome == ResultDeclined {
			return run.result, e.finalize(ctx, run)
		}
	}

	if err := e.applyRules(ctx, run); err != nil {
		return nil, err
	}
	if run.outcome != ResultDeclined {
		if err := e.checkFraud(ctx, run); err != nil {
			return nil, err
		}
	}
	if run.outcome == ResultApproved {
		if err := e.checkBalance(ctx, run); err != nil {
			return nil, err
		}
	}
	return run.result, e.finalize(ctx, run)
}

func (e *AutoEngine) assignTransactionNumber(ctx context.Context, claim *Claim, provider *ProviderStanding) error {
	if claim.TransactionNumber != "" {
		return nil
	}
	n, err := e.deps.Sequences.Next(ctx, "claim:"+provider.IdentificationNo)
	if err != nil {
		return fmt.Errorf("claim transaction number: %w", err)
	}
	claim.TransactionNumber = fmt.Sprintf("CL.%s.%04d", provider.IdentificationNo, n%10000)
	return nil
}

func (e *AutoEngine) preValidate(_ context.Context, run *autoRun) error {
	if len(run.claim.Lines) == 0 {
		run.decline(CodeServiceNotCovered, "Claim has no service lines")
		return nil
	}
	now := e.now()
	cutoff := now.AddDate(0, 0, -e.thresholds.ClaimMaxAgeDays)
	for _, l := range run.claim.Lines {
		if l.ServiceDate.After(now) {
			run.decline(CodeFutureServiceDate,
				fmt.Sprintf("Service date %s is in the future", l.ServiceDate.Format("2006-01-02")))
			return nil
		}
		if l.ServiceDate.Before(cutoff) {
			run.decline(CodeStaleServiceDate,
				fmt.Sprintf("Service date %s is older than %d days", l.ServiceDate.Format("2006-01-02"), e.thresholds.ClaimMaxAgeDays))
			return nil
		}
	}
	return nil
}

func (e *AutoEngine) computeTotals(_ context.Context, run *autoRun) error {
	run.claim.ClaimedAmount = run.claim.TotalClaimed()
	run.result.ClaimedAmount = run.claim.ClaimedAmount
	run.accepted = run.claim.ClaimedAmount
	if !run.claim.ClaimedAmount.IsPositive() {
		run.decline(CodeServiceNotCovered, "Claim total is zero")
	}
	return nil
}

func (e *AutoEngine) checkBeneficiary(ctx context.Context, run *autoRun) error {
	p, err := e.deps.Oracle.BeneficiaryProfile(ctx, run.claim.BeneficiaryID)
	if err != nil {
		return err
	}
	run.benef = p

	switch p.Status {
	case BeneficiaryActive:
	case BeneficiarySuspended:
		run.decline(CodeBeneficiarySuspended, "")
		return nil
	case BeneficiaryTerminated:
		run.decline(CodeBeneficiaryTerminated, "")
		return nil
	default:
		run.decline(CodeBeneficiaryInactive, "")
		return nil
	}
	if !p.BenefitsStarted(e.now()) {
		run.decline(CodeBenefitsNotStarted, "")
		return nil
	}

	// A non-positive annual limit means the beneficiary has no configured
	// cap.
	if p.AnnualLimit.IsPositive() {
		used, err := e.deps.Oracle.AnnualUtilization(ctx, p.ID, e.now().Year())
		if err != nil {
			return err
		}
		remaining := p.AnnualLimit.Sub(used)
		if !remaining.IsPositive() {
			run.decline(CodeAnnualLimitExceeded,
				fmt.Sprintf("Annual limit %s fully utilized", p.AnnualLimit))
			return nil
		}
		if run.accepted.GreaterThan(remaining) {
			run.accepted = remaining
			run.result.AddMessage(CodeAmountReduced,
				fmt.Sprintf("Accepted amount capped at remaining annual limit %s", remaining))
		}
	}
	run.result.AddMessage(CodeEligibilityConfirmed, "")
	return nil
}

func (e *AutoEngine) serviceProfile(ctx context.Context, run *autoRun, serviceID uuid.UUID) (*ServiceProfile, error) {
	if s, ok := run.services[serviceID]; ok {
		return s, nil
	}
	s, err := e.deps.Oracle.ServiceProfile(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	run.services[serviceID] = s
	return s, nil
}

func (e *AutoEngine) checkCoverage(ctx context.Context, run *autoRun) error {
	now := e.now()
	age := run.benef.AgeAt(now)

	for _, l := range run.claim.Lines {
		svc, err := e.serviceProfile(ctx, run, l.ServiceID)
		if err != nil {
			return err
		}
		if !svc.IsActive {
			run.decline(CodeServiceNotCovered,
				fmt.Sprintf("Service %s is not active", svc.Description))
			return nil
		}
		if run.benef.PackageID == nil {
			run.decline(CodePackageNotCovered, "Beneficiary has no benefit package")
			return nil
		}
		cov, err := e.deps.Oracle.PackageCoverage(ctx, *run.benef.PackageID, svc.CategoryID)
		if err != nil {
			return err
		}
		if cov == nil {
			run.decline(CodePackageNotCovered,
				fmt.Sprintf("Service %s is not covered under the benefit package", svc.Description))
			return nil
		}
		if cov.WaitingPeriodDays > 0 && run.benef.BenefitStartDate != nil {
			eligibleFrom := run.benef.BenefitStartDate.AddDate(0, 0, cov.WaitingPeriodDays)
			if l.ServiceDate.Before(eligibleFrom) {
				run.decline(CodeWaitingPeriod,
					fmt.Sprintf("Waiting period of %d days ends %s", cov.WaitingPeriodDays, eligibleFrom.Format("2006-01-02")))
				return nil
			}
		}
		if svc.RequiresReferral && run.claim.ReferringProviderID == nil {
			run.decline(CodeReferralRequired,
				fmt.Sprintf("Service %s requires a referral", svc.Description))
			return nil
		}
		if svc.Pediatric && age >= 18 {
			run.decline(CodeAgeRestriction,
				fmt.Sprintf("Service %s is restricted to children, beneficiary is %d", svc.Description, age))
			return nil
		}
		if svc.Geriatric && age < 65 {
			run.decline(CodeAgeRestriction,
				fmt.Sprintf("Service %s is restricted to the elderly, beneficiary is %d", svc.Description, age))
			return nil
		}
	}
	return nil
}

// checkProvider declines on inactive or suspended providers. Document
// issues are recorded as warnings only; they may lead to payment
// withholding during manual review but never decline a claim on their own.
func (e *AutoEngine) checkProvider(_ context.Context, run *autoRun) error {
	p := run.provider
	switch p.Status {
	case ProviderActive:
	case ProviderSuspended:
		run.decline(CodeProviderSuspended, "")
		return nil
	default:
		run.decline(CodeProviderInactive, "")
		return nil
	}
	if len(p.MissingDocuments) > 0 {
		run.result.AddMessage(CodeMissingDocuments,
			"Provider missing documents: "+strings.Join(p.MissingDocuments, ", "))
	}
	if len(p.ExpiredDocuments) > 0 {
		run.result.AddMessage(CodeExpiredDocuments,
			"Provider expired documents: "+strings.Join(p.ExpiredDocuments, ", "))
	}
	return nil
}

func (e *AutoEngine) checkAuthorization(ctx context.Context, run *autoRun) error {
	needsAuth := false
	for _, svc := range run.services {
		if svc.RequiresAuthorization {
			needsAuth = true
			break
		}
	}
	if !needsAuth {
		return nil
	}

	if run.claim.ServiceRequestID == nil {
		run.decline(CodeAuthRequired, "")
		return nil
	}
	sr, err := e.deps.Requests.Get(ctx, *run.claim.ServiceRequestID)
	if err != nil {
		return err
	}
	if sr.Status != RequestApproved {
		run.decline(CodeAuthRequired,
			fmt.Sprintf("Authorization %s is %s", sr.AuthorizationCode, sr.Status))
		return nil
	}
	if sr.Expired(e.now()) {
		run.decline(CodeAuthExpired,
			fmt.Sprintf("Authorization %s expired %s", sr.AuthorizationCode, sr.ExpiryDate.Format("2006-01-02")))
		return nil
	}
	remaining := sr.RemainingAmount()
	if !remaining.IsPositive() {
		run.decline(CodeAuthExhausted,
			fmt.Sprintf("Authorization %s is fully utilized", sr.AuthorizationCode))
		return nil
	}
	if run.accepted.GreaterThan(remaining) {
		run.accepted = remaining
		run.result.AddMessage(CodeAuthPartial,
			fmt.Sprintf("Accepted amount capped at authorized balance %s", remaining))
	} else {
		run.result.AddMessage(CodeAuthValid,
			fmt.Sprintf("Authorization %s accepted", sr.AuthorizationCode))
	}
	run.request = sr
	return nil
}

func (e *AutoEngine) ruleContext(ctx context.Context, run *autoRun) *RuleContext {
	categoryIDs := make([]uuid.UUID, 0, len(run.services))
	for _, svc := range run.services {
		categoryIDs = append(categoryIDs, svc.CategoryID)
	}
	return &RuleContext{
		Amount:           run.claim.ClaimedAmount,
		BeneficiaryType:  run.benef.Type,
		MemberType:       run.benef.MemberType,
		ProviderTier:     run.provider.TierID,
		ServiceIDs:       run.claim.SubjectServiceIDs(),
		CategoryIDs:      categoryIDs,
		Age:              run.benef.AgeAt(e.now()),
		HasReferral:      run.claim.ReferringProviderID != nil,
		HasAuthorization: run.claim.ServiceRequestID != nil,
		VisitCount: func(windowDays int, serviceIDs []uuid.UUID) (int, error) {
			since := e.now().AddDate(0, 0, -windowDays)
			return e.deps.Claims.CountVisits(ctx, run.benef.ID, serviceIDs, since, run.claim.ID)
		},
	}
}

// applyRules walks the active rules in ascending priority order. The first
// matching exclusive rule fixes the outcome; amount adjustments accumulate
// and evaluation continues.
func (e *AutoEngine) applyRules(ctx context.Context, run *autoRun) error {
	rules, err := e.deps.Rules.ActiveRules(ctx, e.now())
	if err != nil {
		return err
	}
	rc := e.ruleContext(ctx, run)

	for _, rule := range rules {
		if !rule.EffectiveAt(e.now()) {
			continue
		}
		match, err := rule.Matches(rc)
		if err != nil {
			return err
		}
		if !match {
			continue
		}

		switch rule.Action {
		case ActionAutoApprove:
			run.result.AddMessage(CodeAutoApproved, fmt.Sprintf("Approved by rule %q", rule.Name))
			return nil
		case ActionAutoDecline:
			run.decline(CodePolicyExclusion, fmt.Sprintf("Declined by rule %q", rule.Name))
			return nil
		case ActionManualReview:
			run.outcome = ResultPendingReview
			run.result.AddMessage(CodeManualReview, fmt.Sprintf("Routed for review by rule %q", rule.Name))
			return nil
		case ActionClinicalReview:
			run.outcome = ResultPendingClinical
			run.result.AddMessage(CodeClinicalReview, fmt.Sprintf("Routed for clinical review by rule %q", rule.Name))
			return nil
		case ActionReduceAmount:
			reduced := rule.Reduce(run.accepted)
			if reduced.LessThan(run.accepted) {
				run.accepted = reduced
				run.result.AddMessage(CodeAmountReduced,
					fmt.Sprintf("Amount reduced to %s by rule %q", reduced, rule.Name))
			}
		case ActionApplyCopayment:
			c := rule.Copayment(run.accepted)
			if c.IsPositive() {
				run.copay = run.copay.Add(c)
				run.result.AddMessage(CodeCopaymentApplied,
					fmt.Sprintf("Co-payment of %s applied by rule %q", c, rule.Name))
			}
		}
	}
	return nil
}

// checkBalance caps the payable amount at the member account's available
// balance. Any capping or missing balance routes to review rather than
// silently approving a reduced amount.
func (e *AutoEngine) checkBalance(ctx context.Context, run *autoRun) error {
	avail, err := e.deps.Ledger.AvailableBalance(ctx, run.claim.MemberID)
	if err != nil {
		e.log.Warn().Err(err).Str("claim_id", run.claim.ID.String()).Msg("balance lookup failed")
		run.outcome = ResultPendingReview
		run.result.AddMessage(CodeAccountMissing, "")
		return nil
	}

	adjudicated := run.accepted.Sub(run.copay)
	if !avail.IsPositive() {
		run.outcome = ResultPendingReview
		run.result.AddMessage(CodeInsufficientBalance,
			fmt.Sprintf("Available balance is %s", avail))
		return nil
	}
	if adjudicated.GreaterThan(avail) {
		run.accepted = avail.Add(run.copay)
		run.outcome = ResultPendingReview
		run.result.AddMessage(CodeBalanceReduced,
			fmt.Sprintf("Amount reduced to available balance %s", avail))
	}
	return nil
}

func (e *AutoEngine) finalize(ctx context.Context, run *autoRun) error {
	claim, res := run.claim, run.result
	res.ClaimedAmount = claim.ClaimedAmount

	switch run.outcome {
	case ResultApproved:
		adjudicated := run.accepted.Sub(run.copay)
		if adjudicated.IsNegative() {
			adjudicated = decimal.Zero
		}
		res.Status = ResultApproved
		res.AcceptedAmount = run.accepted
		res.CopaymentAmount = run.copay
		res.AdjudicatedAmount = adjudicated
		if !res.HasCode(CodeAutoApproved) {
			res.AddMessage(CodeAutoApproved, "")
		}
		claim.Status = ClaimApproved
		claim.AcceptedAmount = run.accepted
		claim.AdjudicatedAmount = adjudicated
		claim.ShortfallAmount = claim.ClaimedAmount.Sub(adjudicated)
		claim.RedistributeLines()

		if adjudicated.IsPositive() {
			if err := e.deps.Ledger.Reserve(ctx, claim.MemberID, claim.ID, claim.TransactionNumber, adjudicated); err != nil {
				return err
			}
		}
		if run.request != nil {
			if err := e.consumeAuthorization(ctx, run.request, adjudicated); err != nil {
				return err
			}
		}

	case ResultDeclined:
		res.Status = ResultDeclined
		res.AcceptedAmount = decimal.Zero
		res.AdjudicatedAmount = decimal.Zero
		claim.Status = ClaimDeclined
		claim.AcceptedAmount = decimal.Zero
		claim.AdjudicatedAmount = decimal.Zero
		claim.ShortfallAmount = claim.ClaimedAmount
		claim.RedistributeLines()

	default:
		res.Status = run.outcome
		res.AcceptedAmount = run.accepted
		res.CopaymentAmount = run.copay
		res.AdjudicatedAmount = run.accepted.Sub(run.copay)
		claim.Status = ClaimUnderReview
		claim.AcceptedAmount = run.accepted
		claim.AdjudicatedAmount = res.AdjudicatedAmount
		claim.ShortfallAmount = claim.ClaimedAmount.Sub(res.AdjudicatedAmount)
		claim.RedistributeLines()
	}

	if err := e.deps.Results.Deactivate(ctx, KindClaim, claim.ID); err != nil {
		return err
	}
	if err := e.deps.Results.Create(ctx, res); err != nil {
		return err
	}
	if err := e.deps.Claims.Update(ctx, claim); err != nil {
		return err
	}
	return e.deps.Claims.UpdateLines(ctx, claim.Lines)
}

// consumeAuthorization adds the adjudicated amount to the linked service
// request's utilization. A fully consumed request moves to UTILIZED.
func (e *AutoEngine) consumeAuthorization(ctx context.Context, sr *ServiceRequest, amount decimal.Decimal) error {
	sr.UtilizedAmount = sr.UtilizedAmount.Add(amount)
	if !sr.RemainingAmount().IsPositive() {
		sr.Status = RequestUtilized
	}
	return e.deps.Requests.Update(ctx, sr)
}
