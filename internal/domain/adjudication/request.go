package adjudication

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProcessServiceRequest adjudicates a pre-authorization request. It runs
// the eligibility, coverage and provider-compliance stages against the
// request's estimated amount; approval allocates an authorization code and
// an expiry date. Provider compliance issues route the request to review
// instead of declining it.
func (e *AutoEngine) ProcessServiceRequest(ctx context.Context, requestID uuid.UUID) (*Result, error) {
	sr, err := e.deps.Requests.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if sr.Status != RequestNew {
		return nil, fmt.Errorf("%w: service request %s is %s", ErrNotProcessable, sr.ID, sr.Status)
	}

	var result *Result
	err = e.deps.Runner.InTx(ctx, func(ctx context.Context) error {
		r, err := e.adjudicateRequest(ctx, sr)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Status.Terminal() {
		e.deps.Notifier.Notify(sr.ID, string(result.Status))
	}
	e.log.Info().
		Str("request_id", sr.ID.String()).
		Str("request_number", sr.RequestNumber).
		Str("outcome", string(result.Status)).
		Msg("service request adjudicated")
	return result, nil
}

func (e *AutoEngine) adjudicateRequest(ctx context.Context, sr *ServiceRequest) (*Result, error) {
	now := e.now()
	res := e.newResult(KindServiceRequest, sr.ID)
	res.ClaimedAmount = sr.EstimatedAmount
	outcome := ResultApproved
	approved := sr.EstimatedAmount

	decline := func(code, text string) {
		outcome = ResultDeclined
		res.AddMessage(code, text)
	}

	if err := e.assignRequestNumber(ctx, sr); err != nil {
		return nil, err
	}
	if len(sr.Items) == 0 || !sr.EstimatedAmount.IsPositive() {
		decline(CodeServiceNotCovered, "Service request has no items")
		return res, e.finalizeRequest(ctx, sr, res, outcome, decimal.Zero)
	}

	benef, err := e.deps.Oracle.BeneficiaryProfile(ctx, sr.BeneficiaryID)
	if err != nil {
		return nil, err
	}
	switch benef.Status {
	case BeneficiaryActive:
	case BeneficiarySuspended:
		decline(CodeBeneficiarySuspended, "")
	case BeneficiaryTerminated:
		decline(CodeBeneficiaryTerminated, "")
	default:
		decline(CodeBeneficiaryInactive, "")
	}
	if outcome == ResultDeclined {
		return res, e.finalizeRequest(ctx, sr, res, outcome, decimal.Zero)
	}
	if !benef.BenefitsStarted(now) {
		decline(CodeBenefitsNotStarted, "")
		return res, e.finalizeRequest(ctx, sr, res, outcome, decimal.Zero)
	}

	if benef.AnnualLimit.IsPositive() {
		used, err := e.deps.Oracle.AnnualUtilization(ctx, benef.ID, now.Year())
		if err != nil {
			return nil, err
		}
		remaining := benef.AnnualLimit.Sub(used)
		if !remaining.IsPositive() {
			decline(CodeAnnualLimitExceeded, "")
			return res, e.finalizeRequest(ctx, sr, res, outcome, decimal.Zero)
		}
		if approved.GreaterThan(remaining) {
			approved = remaining
			res.AddMessage(CodeAmountReduced,
				fmt.Sprintf("Approved amount capped at remaining annual limit %s", remaining))
		}
	}

	age := benef.AgeAt(now)
	for _, item := range sr.Items {
		svc, err := e.deps.Oracle.ServiceProfile(ctx, item.ServiceID)
		if err != nil {
			return nil, err
		}
		if !svc.IsActive {
			decline(CodeServiceNotCovered, fmt.Sprintf("Service %s is not active", svc.Description))
			return res, e.finalizeRequest(ctx, sr, res, outcome, decimal.Zero)
		}
		if benef.PackageID == nil {
			decline(CodePackageNotCovered, "Beneficiary has no benefit package")
			return res, e.finalizeRequest(ctx, sr, res, outcome, decimal.Zero)
		}
		cov, err := e.deps.Oracle.PackageCoverage(ctx, *benef.PackageID, svc.CategoryID)
		if err != nil {
			return nil, err
		}
		if cov == nil {
			decline(CodePackageNotCovered,
				fmt.Sprintf("Service %s is not covered under the benefit package", svc.Description))
			return res, e.finalizeRequest(ctx, sr, res, outcome, decimal.Zero)
		}
		if cov.WaitingPeriodDays > 0 && benef.BenefitStartDate != nil {
			eligibleFrom := benef.BenefitStartDate.AddDate(0, 0, cov.WaitingPeriodDays)
			if now.Before(eligibleFrom) {
				decline(CodeWaitingPeriod,
					fmt.Sprintf("Waiting period of %d days ends %s", cov.WaitingPeriodDays, eligibleFrom.Format("2006-01-02")))
				return res, e.finalizeRequest(ctx, sr, res, outcome, decimal.Zero)
			}
		}
		if svc.Pediatric && age >= 18 {
			decline(CodeAgeRestriction, fmt.Sprintf("Service %s is restricted to children", svc.Description))
			return res, e.finalizeRequest(ctx, sr, res, outcome, decimal.Zero)
		}
		if svc.Geriatric && age < 65 {
			decline(CodeAgeRestriction, fmt.Sprintf("Service %s is restricted to the elderly", svc.Description))
			return res, e.finalizeRequest(ctx, sr, res, outcome, decimal.Zero)
		}
	}

	provider, err := e.deps.Oracle.ProviderStanding(ctx, sr.ProviderID)
	if err != nil {
		return nil, err
	}
	switch provider.Status {
	case ProviderActive:
	case ProviderSuspended:
		outcome = ResultPendingReview
		res.AddMessage(CodeProviderSuspended, "")
	default:
		outcome = ResultPendingReview
		res.AddMessage(CodeProviderInactive, "")
	}
	if len(provider.MissingDocuments) > 0 {
		outcome = ResultPendingReview
		res.AddMessage(CodeMissingDocuments, "")
	}
	if len(provider.ExpiredDocuments) > 0 {
		outcome = ResultPendingReview
		res.AddMessage(CodeExpiredDocuments, "")
	}
	if outcome == ResultPendingReview {
		res.AddMessage(CodeManualReview, "Provider compliance issues require review")
	}

	return res, e.finalizeRequest(ctx, sr, res, outcome, approved)
}

func (e *AutoEngine) assignRequestNumber(ctx context.Context, sr *ServiceRequest) error {
	if sr.RequestNumber != "" {
		return nil
	}
	n, err := e.deps.Sequences.Next(ctx, "service_request")
	if err != nil {
		return fmt.Errorf("service request number: %w", err)
	}
	sr.RequestNumber = fmt.Sprintf("SR%s%04d", e.now().Format("060102"), n%10000)
	return nil
}

func (e *AutoEngine) finalizeRequest(ctx context.Context, sr *ServiceRequest, res *Result, outcome ResultStatus, approved decimal.Decimal) error {
	switch outcome {
	case ResultApproved:
		n, err := e.deps.Sequences.Next(ctx, "authorization_code")
		if err != nil {
			return fmt.Errorf("authorization code: %w", err)
		}
		expiry := e.now().AddDate(0, 0, e.thresholds.AuthExpiryDays)

		sr.AuthorizationCode = fmt.Sprintf("AUTH%06d", n%1000000)
		sr.ApprovedAmount = approved
		sr.ExpiryDate = &expiry
		sr.Status = RequestApproved

		res.Status = ResultApproved
		res.AcceptedAmount = approved
		res.AdjudicatedAmount = approved
		res.AddMessage(CodeAutoApproved,
			fmt.Sprintf("Authorization %s valid until %s", sr.AuthorizationCode, expiry.Format("2006-01-02")))

	case ResultDeclined:
		sr.Status = RequestDeclined
		res.Status = ResultDeclined

	default:
		sr.Status = RequestPendingReview
		res.Status = outcome
		res.AcceptedAmount = approved
		res.AdjudicatedAmount = approved
	}

	if err := e.deps.Results.Deactivate(ctx, KindServiceRequest, sr.ID); err != nil {
		return err
	}
	if err := e.deps.Results.Create(ctx, res); err != nil {
		return err
	}
	return e.deps.Requests.Update(ctx, sr)
}
