package adjudication

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

type fraudFlag struct {
	code string
	text string
}

// checkFraud runs the fraud heuristics. Flags are non-blocking: any flag
// routes a tentatively approved claim to PENDING_REVIEW, but flags never
// override a decline already decided upstream.
func (e *AutoEngine) checkFraud(ctx context.Context, run *autoRun) error {
	flags, err := e.fraudFlags(ctx, run.claim)
	if err != nil {
		return err
	}
	if len(flags) == 0 {
		return nil
	}
	for _, f := range flags {
		run.result.AddMessage(f.code, f.text)
	}
	if run.outcome == ResultApproved {
		run.outcome = ResultPendingReview
		run.result.AddMessage(CodeManualReview, "Routed for review by fraud screening")
	}
	e.log.Warn().
		Str("claim_id", run.claim.ID.String()).
		Int("flags", len(flags)).
		Msg("fraud screening flagged claim")
	return nil
}

func (e *AutoEngine) fraudFlags(ctx context.Context, claim *Claim) ([]fraudFlag, error) {
	var flags []fraudFlag

	if claim.InvoiceNumber != "" {
		dup, err := e.deps.Claims.HasDuplicateInvoice(ctx, claim.BeneficiaryID, claim.ProviderID, claim.InvoiceNumber, claim.ID)
		if err != nil {
			return nil, err
		}
		if dup {
			flags = append(flags, fraudFlag{CodeDuplicateClaim,
				fmt.Sprintf("Invoice %s already claimed for this beneficiary and provider", claim.InvoiceNumber)})
		}
	}

	sameDay, err := e.deps.Claims.CountSameDay(ctx, claim.BeneficiaryID, claim.ProviderID, claim.ServiceStartDate, claim.ID)
	if err != nil {
		return nil, err
	}
	if sameDay >= e.thresholds.SameDayClaimLimit {
		flags = append(flags, fraudFlag{CodeHighFrequency,
			fmt.Sprintf("%d other claims for this beneficiary and provider on %s", sameDay, claim.ServiceStartDate.Format("2006-01-02"))})
	}

	avg, err := e.deps.Claims.AverageAdjudicated(ctx, claim.BeneficiaryID, e.now().AddDate(0, -6, 0))
	if err != nil {
		return nil, err
	}
	if avg.IsPositive() {
		ceiling := avg.Mul(decimal.NewFromInt(e.thresholds.AnomalyMultiplier))
		if claim.ClaimedAmount.GreaterThan(ceiling) {
			flags = append(flags, fraudFlag{CodeAnomalousAmount,
				fmt.Sprintf("Claimed %s exceeds %dx the trailing average %s", claim.ClaimedAmount, e.thresholds.AnomalyMultiplier, avg)})
		}
	}

	daily, err := e.deps.Claims.CountProviderDaily(ctx, claim.ProviderID, claim.ServiceStartDate)
	if err != nil {
		return nil, err
	}
	if daily > e.thresholds.ProviderDailyClaimLimit {
		flags = append(flags, fraudFlag{CodeProviderVolume,
			fmt.Sprintf("Provider has %d claims on %s", daily, claim.ServiceStartDate.Format("2006-01-02"))})
	}

	return flags, nil
}
