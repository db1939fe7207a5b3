package adjudication

import (
	"context"

	"github.com/shopspring/decimal"
)

// QualityReport summarizes a reviewer's decisions over a trailing window.
// Rates are percentages rounded to two decimals.
type QualityReport struct {
	ReviewerID       string          `json:"reviewer_id"`
	WindowDays       int             `json:"window_days"`
	TotalReviews     int             `json:"total_reviews"`
	Approved         int             `json:"approved"`
	Declined         int             `json:"declined"`
	Modified         int             `json:"modified"`
	ApprovalRate     decimal.Decimal `json:"approval_rate"`
	DeclineRate      decimal.Decimal `json:"decline_rate"`
	ModificationRate decimal.Decimal `json:"modification_rate"`
	TotalOriginal    decimal.Decimal `json:"total_original"`
	TotalAdjusted    decimal.Decimal `json:"total_adjusted"`
	FinancialImpact  decimal.Decimal `json:"financial_impact"`
	SavingsPercent   decimal.Decimal `json:"savings_percent"`
	AverageOriginal  decimal.Decimal `json:"average_original"`
}

func rate(part, total int) decimal.Decimal {
	if total == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(part)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(total))).
		Round(2)
}

// ValidateReviewerQuality reports approval, decline and modification rates
// plus the financial impact of a reviewer's overrides in the trailing
// window.
func (e *ManualEngine) ValidateReviewerQuality(ctx context.Context, reviewerID string, windowDays int) (*QualityReport, error) {
	since := e.now().AddDate(0, 0, -windowDays)
	overrides, err := e.deps.Results.ListOverridesByReviewer(ctx, reviewerID, since)
	if err != nil {
		return nil, err
	}

	report := &QualityReport{ReviewerID: reviewerID, WindowDays: windowDays}
	for _, o := range overrides {
		report.TotalReviews++
		switch {
		case o.NewStatus == ResultDeclined:
			report.Declined++
		case !o.NewAmount.Equal(o.OriginalAmount):
			report.Modified++
		default:
			report.Approved++
		}
		report.TotalOriginal = report.TotalOriginal.Add(o.OriginalAmount)
		report.TotalAdjusted = report.TotalAdjusted.Add(o.NewAmount)
		report.FinancialImpact = report.FinancialImpact.Add(o.FinancialImpact)
	}

	report.ApprovalRate = rate(report.Approved, report.TotalReviews)
	report.DeclineRate = rate(report.Declined, report.TotalReviews)
	report.ModificationRate = rate(report.Modified, report.TotalReviews)
	if report.TotalOriginal.IsPositive() {
		report.SavingsPercent = report.TotalOriginal.Sub(report.TotalAdjusted).
			Mul(decimal.NewFromInt(100)).
			Div(report.TotalOriginal).
			Round(2)
		report.AverageOriginal = report.TotalOriginal.
			Div(decimal.NewFromInt(int64(report.TotalReviews))).
			Round(2)
	}
	return report, nil
}
