package adjudication

import (
	"context"

	"github.com/google/uuid"
)

// BatchError records one failed item in a batch run.
type BatchError struct {
	ClaimID uuid.UUID `json:"claim_id"`
	Error   string    `json:"error"`
}

// BatchSummary is the tally of one batch run. Errors are isolated per
// claim; one failure never aborts the rest of the batch.
type BatchSummary struct {
	Processed       int          `json:"processed"`
	Approved        int          `json:"approved"`
	Declined        int          `json:"declined"`
	PendingReview   int          `json:"pending_review"`
	PendingClinical int          `json:"pending_clinical"`
	Errors          []BatchError `json:"errors"`
}

func (s *BatchSummary) tally(status ResultStatus) {
	s.Processed++
	switch status {
	case ResultApproved:
		s.Approved++
	case ResultDeclined:
		s.Declined++
	case ResultPendingReview:
		s.PendingReview++
	case ResultPendingClinical:
		s.PendingClinical++
	}
}

// ProcessBatch adjudicates each claim independently and tallies the
// outcomes.
func (e *AutoEngine) ProcessBatch(ctx context.Context, claimIDs []uuid.UUID) *BatchSummary {
	summary := &BatchSummary{}
	for _, id := range claimIDs {
		res, err := e.Process(ctx, id)
		if err != nil {
			summary.Errors = append(summary.Errors, BatchError{ClaimID: id, Error: err.Error()})
			continue
		}
		summary.tally(res.Status)
	}
	e.log.Info().
		Int("processed", summary.Processed).
		Int("approved", summary.Approved).
		Int("declined", summary.Declined).
		Int("pending", summary.PendingReview+summary.PendingClinical).
		Int("errors", len(summary.Errors)).
		Msg("batch adjudication finished")
	return summary
}

// ReviewBatch applies one reviewer decision across many claims with
// per-claim error isolation.
func (e *ManualEngine) ReviewBatch(ctx context.Context, claimIDs []uuid.UUID, reviewer Reviewer, d Decision) *BatchSummary {
	summary := &BatchSummary{}
	for _, id := range claimIDs {
		decision := d
		if current, err := e.deps.Results.GetActive(ctx, KindClaim, id); err == nil && current != nil {
			decision.ActiveResultID = current.ID
		}
		res, err := e.Review(ctx, id, reviewer, decision)
		if err != nil {
			summary.Errors = append(summary.Errors, BatchError{ClaimID: id, Error: err.Error()})
			continue
		}
		summary.tally(res.Status)
	}
	e.log.Info().
		Str("reviewer", reviewer.ID).
		Int("processed", summary.Processed).
		Int("errors", len(summary.Errors)).
		Msg("bulk manual review finished")
	return summary
}
