package adjudication

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/vitalsuite/claims/internal/platform/db"
)

type queryable interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func conn(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return pool
}

// PgClaimRepository is the pgx-backed ClaimRepository.
type PgClaimRepository struct {
	pool *pgxpool.Pool
}

func NewPgClaimRepository(pool *pgxpool.Pool) *PgClaimRepository {
	return &PgClaimRepository{pool: pool}
}

const claimColumns = `id, transaction_number, beneficiary_id, member_id, provider_id,
	referring_provider_id, service_request_id, invoice_number, status,
	service_start_date, service_end_date, claimed_amount, accepted_amount,
	adjudicated_amount, shortfall_amount, paid_to_provider, paid_to_member,
	submitted_at, created_at, updated_at`

func scanClaim(row pgx.Row) (*Claim, error) {
	var c Claim
	err := row.Scan(&c.ID, &c.TransactionNumber, &c.BeneficiaryID, &c.MemberID, &c.ProviderID,
		&c.ReferringProviderID, &c.ServiceRequestID, &c.InvoiceNumber, &c.Status,
		&c.ServiceStartDate, &c.ServiceEndDate, &c.ClaimedAmount, &c.AcceptedAmount,
		&c.AdjudicatedAmount, &c.ShortfallAmount, &c.PaidToProvider, &c.PaidToMember,
		&c.SubmittedAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *PgClaimRepository) Get(ctx context.Context, id uuid.UUID) (*Claim, error) {
	return r.get(ctx, id, "")
}

// GetForUpdate locks the claim row so concurrent adjudicators and reviewers
// of the same claim serialize on it.
func (r *PgClaimRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*Claim, error) {
	return r.get(ctx, id, " FOR UPDATE")
}

func (r *PgClaimRepository) get(ctx context.Context, id uuid.UUID, lock string) (*Claim, error) {
	q := conn(ctx, r.pool)
	row := q.QueryRow(ctx, `SELECT `+claimColumns+` FROM claims WHERE id = $1`+lock, id)
	c, err := scanClaim(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("claim %s not found", id)
		}
		return nil, fmt.Errorf("get claim: %w", err)
	}

	rows, err := q.Query(ctx,
		`SELECT id, claim_id, service_id, description, unit_price, quantity,
			claimed_amount, accepted_amount, adjudicated_amount, service_date
		 FROM claim_lines WHERE claim_id = $1 ORDER BY service_date, id`, id)
	if err != nil {
		return nil, fmt.Errorf("get claim lines: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var l ServiceLine
		err := rows.Scan(&l.ID, &l.ClaimID, &l.ServiceID, &l.Description, &l.UnitPrice,
			&l.Quantity, &l.ClaimedAmount, &l.AcceptedAmount, &l.AdjudicatedAmount, &l.ServiceDate)
		if err != nil {
			return nil, fmt.Errorf("scan claim line: %w", err)
		}
		c.Lines = append(c.Lines, &l)
	}
	return c, rows.Err()
}

func (r *PgClaimRepository) Update(ctx context.Context, c *Claim) error {
	tag, err := conn(ctx, r.pool).Exec(ctx,
		`UPDATE claims SET transaction_number = $2, status = $3, claimed_amount = $4,
			accepted_amount = $5, adjudicated_amount = $6, shortfall_amount = $7,
			paid_to_provider = $8, paid_to_member = $9, updated_at = now()
		 WHERE id = $1`,
		c.ID, c.TransactionNumber, c.Status, c.ClaimedAmount, c.AcceptedAmount,
		c.AdjudicatedAmount, c.ShortfallAmount, c.PaidToProvider, c.PaidToMember)
	if err != nil {
		return fmt.Errorf("update claim: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("claim %s not found", c.ID)
	}
	return nil
}

func (r *PgClaimRepository) UpdateLines(ctx context.Context, lines []*ServiceLine) error {
	q := conn(ctx, r.pool)
	for _, l := range lines {
		_, err := q.Exec(ctx,
			`UPDATE claim_lines SET claimed_amount = $2, accepted_amount = $3, adjudicated_amount = $4
			 WHERE id = $1`,
			l.ID, l.ClaimedAmount, l.AcceptedAmount, l.AdjudicatedAmount)
		if err != nil {
			return fmt.Errorf("update claim line: %w", err)
		}
	}
	return nil
}

func (r *PgClaimRepository) ListIDsByStatus(ctx context.Context, status ClaimStatus, limit int) ([]uuid.UUID, error) {
	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT id FROM claims WHERE status = $1 ORDER BY submitted_at LIMIT $2`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan claim id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *PgClaimRepository) CountVisits(ctx context.Context, beneficiaryID uuid.UUID, serviceIDs []uuid.UUID, since time.Time, excludeClaimID uuid.UUID) (int, error) {
	if len(serviceIDs) == 0 {
		return 0, nil
	}
	svcs := make([]string, len(serviceIDs))
	for i, id := range serviceIDs {
		svcs[i] = id.String()
	}
	row := conn(ctx, r.pool).QueryRow(ctx,
		`SELECT COUNT(DISTINCT c.id)
		 FROM claims c
		 JOIN claim_lines l ON l.claim_id = c.id
		 WHERE c.beneficiary_id = $1
		   AND c.id <> $2
		   AND c.status IN ('APPROVED', 'PAID')
		   AND c.service_start_date >= $3
		   AND l.service_id = ANY($4::uuid[])`,
		beneficiaryID, excludeClaimID, since, svcs)

	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count visits: %w", err)
	}
	return n, nil
}

func (r *PgClaimRepository) HasDuplicateInvoice(ctx context.Context, beneficiaryID, providerID uuid.UUID, invoiceNumber string, excludeClaimID uuid.UUID) (bool, error) {
	row := conn(ctx, r.pool).QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM claims
			WHERE beneficiary_id = $1 AND provider_id = $2 AND invoice_number = $3
			  AND id <> $4 AND status IN ('APPROVED', 'PAID')
		 )`,
		beneficiaryID, providerID, invoiceNumber, excludeClaimID)

	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, fmt.Errorf("duplicate invoice check: %w", err)
	}
	return exists, nil
}

func (r *PgClaimRepository) CountSameDay(ctx context.Context, beneficiaryID, providerID uuid.UUID, serviceDate time.Time, excludeClaimID uuid.UUID) (int, error) {
	row := conn(ctx, r.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM claims
		 WHERE beneficiary_id = $1 AND provider_id = $2
		   AND service_start_date = $3 AND id <> $4
		   AND status IN ('APPROVED', 'PAID')`,
		beneficiaryID, providerID, serviceDate, excludeClaimID)

	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count same-day claims: %w", err)
	}
	return n, nil
}

func (r *PgClaimRepository) AverageAdjudicated(ctx context.Context, beneficiaryID uuid.UUID, since time.Time) (decimal.Decimal, error) {
	row := conn(ctx, r.pool).QueryRow(ctx,
		`SELECT COALESCE(AVG(adjudicated_amount), 0) FROM claims
		 WHERE beneficiary_id = $1 AND status IN ('APPROVED', 'PAID')
		   AND service_start_date >= $2`,
		beneficiaryID, since)

	var avg decimal.Decimal
	if err := row.Scan(&avg); err != nil {
		return decimal.Zero, fmt.Errorf("average adjudicated: %w", err)
	}
	return avg, nil
}

func (r *PgClaimRepository) CountProviderDaily(ctx context.Context, providerID uuid.UUID, serviceDate time.Time) (int, error) {
	row := conn(ctx, r.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM claims
		 WHERE provider_id = $1 AND service_start_date = $2
		   AND status IN ('APPROVED', 'PAID')`,
		providerID, serviceDate)

	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count provider daily claims: %w", err)
	}
	return n, nil
}

// PgServiceRequestRepository is the pgx-backed ServiceRequestRepository.
type PgServiceRequestRepository struct {
	pool *pgxpool.Pool
}

func NewPgServiceRequestRepository(pool *pgxpool.Pool) *PgServiceRequestRepository {
	return &PgServiceRequestRepository{pool: pool}
}

func (r *PgServiceRequestRepository) Get(ctx context.Context, id uuid.UUID) (*ServiceRequest, error) {
	q := conn(ctx, r.pool)
	row := q.QueryRow(ctx,
		`SELECT id, request_number, authorization_code, beneficiary_id, member_id,
			provider_id, status, estimated_amount, approved_amount, utilized_amount,
			expiry_date, requested_at, created_at, updated_at
		 FROM service_requests WHERE id = $1`, id)

	var sr ServiceRequest
	err := row.Scan(&sr.ID, &sr.RequestNumber, &sr.AuthorizationCode, &sr.BeneficiaryID,
		&sr.MemberID, &sr.ProviderID, &sr.Status, &sr.EstimatedAmount, &sr.ApprovedAmount,
		&sr.UtilizedAmount, &sr.ExpiryDate, &sr.RequestedAt, &sr.CreatedAt, &sr.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("service request %s not found", id)
		}
		return nil, fmt.Errorf("get service request: %w", err)
	}

	rows, err := q.Query(ctx,
		`SELECT id, service_request_id, service_id, quantity, estimated_amount
		 FROM service_request_items WHERE service_request_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("get service request items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var it ServiceRequestItem
		if err := rows.Scan(&it.ID, &it.ServiceRequestID, &it.ServiceID, &it.Quantity, &it.EstimatedAmount); err != nil {
			return nil, fmt.Errorf("scan service request item: %w", err)
		}
		sr.Items = append(sr.Items, &it)
	}
	return &sr, rows.Err()
}

func (r *PgServiceRequestRepository) Update(ctx context.Context, sr *ServiceRequest) error {
	tag, err := conn(ctx, r.pool).Exec(ctx,
		`UPDATE service_requests SET request_number = $2, authorization_code = $3,
			status = $4, approved_amount = $5, utilized_amount = $6, expiry_date = $7,
			updated_at = now()
		 WHERE id = $1`,
		sr.ID, sr.RequestNumber, sr.AuthorizationCode, sr.Status, sr.ApprovedAmount,
		sr.UtilizedAmount, sr.ExpiryDate)
	if err != nil {
		return fmt.Errorf("update service request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("service request %s not found", sr.ID)
	}
	return nil
}

// PgResultRepository is the pgx-backed ResultRepository.
type PgResultRepository struct {
	pool *pgxpool.Pool
}

func NewPgResultRepository(pool *pgxpool.Pool) *PgResultRepository {
	return &PgResultRepository{pool: pool}
}

func (r *PgResultRepository) Create(ctx context.Context, res *Result) error {
	q := conn(ctx, r.pool)
	_, err := q.Exec(ctx,
		`INSERT INTO adjudication_results (id, subject_kind, subject_id, status,
			claimed_amount, accepted_amount, adjudicated_amount, copayment_amount,
			withheld_amount, processing_type, processed_by, processed_at, active, override_id)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		res.ID, res.SubjectKind, res.SubjectID, res.Status,
		res.ClaimedAmount, res.AcceptedAmount, res.AdjudicatedAmount, res.CopaymentAmount,
		res.WithheldAmount, res.ProcessingType, res.ProcessedBy, res.ProcessedAt,
		res.Active, res.OverrideID)
	if err != nil {
		return fmt.Errorf("create result: %w", err)
	}

	for _, m := range res.Messages {
		_, err := q.Exec(ctx,
			`INSERT INTO adjudication_messages (id, result_id, code, text, sequence, created_at)
			 VALUES ($1,$2,$3,$4,$5,now())`,
			m.ID, res.ID, m.Code, m.Text, m.Sequence)
		if err != nil {
			return fmt.Errorf("create message: %w", err)
		}
	}
	return nil
}

func (r *PgResultRepository) GetActive(ctx context.Context, kind SubjectKind, subjectID uuid.UUID) (*Result, error) {
	q := conn(ctx, r.pool)
	row := q.QueryRow(ctx,
		`SELECT id, subject_kind, subject_id, status, claimed_amount, accepted_amount,
			adjudicated_amount, copayment_amount, withheld_amount, processing_type,
			processed_by, processed_at, active, override_id
		 FROM adjudication_results
		 WHERE subject_kind = $1 AND subject_id = $2 AND active`, kind, subjectID)

	var res Result
	err := row.Scan(&res.ID, &res.SubjectKind, &res.SubjectID, &res.Status,
		&res.ClaimedAmount, &res.AcceptedAmount, &res.AdjudicatedAmount,
		&res.CopaymentAmount, &res.WithheldAmount, &res.ProcessingType,
		&res.ProcessedBy, &res.ProcessedAt, &res.Active, &res.OverrideID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get active result: %w", err)
	}

	rows, err := q.Query(ctx,
		`SELECT id, result_id, code, text, sequence, created_at
		 FROM adjudication_messages WHERE result_id = $1 ORDER BY sequence`, res.ID)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ResultID, &m.Code, &m.Text, &m.Sequence, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		res.Messages = append(res.Messages, &m)
	}
	return &res, rows.Err()
}

func (r *PgResultRepository) Deactivate(ctx context.Context, kind SubjectKind, subjectID uuid.UUID) error {
	_, err := conn(ctx, r.pool).Exec(ctx,
		`UPDATE adjudication_results SET active = false
		 WHERE subject_kind = $1 AND subject_id = $2 AND active`, kind, subjectID)
	if err != nil {
		return fmt.Errorf("deactivate results: %w", err)
	}
	return nil
}

// Supersede is the optimistic variant of Deactivate: it only clears the
// result the caller last observed, so a decision that landed in between
// surfaces as a conflict instead of being silently overwritten.
func (r *PgResultRepository) Supersede(ctx context.Context, kind SubjectKind, subjectID, activeResultID uuid.UUID) error {
	tag, err := conn(ctx, r.pool).Exec(ctx,
		`UPDATE adjudication_results SET active = false
		 WHERE id = $3 AND subject_kind = $1 AND subject_id = $2 AND active`,
		kind, subjectID, activeResultID)
	if err != nil {
		return fmt.Errorf("supersede result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: result %s", ErrConcurrencyConflict, activeResultID)
	}
	return nil
}

func (r *PgResultRepository) LinkOverride(ctx context.Context, resultID, overrideID uuid.UUID) error {
	tag, err := conn(ctx, r.pool).Exec(ctx,
		`UPDATE adjudication_results SET override_id = $2 WHERE id = $1`, resultID, overrideID)
	if err != nil {
		return fmt.Errorf("link override: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("result %s not found", resultID)
	}
	return nil
}

func (r *PgResultRepository) CreateOverride(ctx context.Context, o *Override) error {
	_, err := conn(ctx, r.pool).Exec(ctx,
		`INSERT INTO adjudication_overrides (id, claim_id, previous_result_id,
			original_status, original_amount, new_status, new_amount, financial_impact,
			reason, notes, reviewer_id, reviewer_name, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		o.ID, o.ClaimID, o.PreviousResultID, o.OriginalStatus, o.OriginalAmount,
		o.NewStatus, o.NewAmount, o.FinancialImpact, o.Reason, o.Notes,
		o.ReviewerID, o.ReviewerName, o.CreatedAt)
	if err != nil {
		return fmt.Errorf("create override: %w", err)
	}
	return nil
}

func (r *PgResultRepository) ListOverridesByReviewer(ctx context.Context, reviewerID string, since time.Time) ([]*Override, error) {
	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT id, claim_id, previous_result_id, original_status, original_amount,
			new_status, new_amount, financial_impact, reason, notes,
			reviewer_id, reviewer_name, created_at
		 FROM adjudication_overrides
		 WHERE reviewer_id = $1 AND created_at >= $2 ORDER BY created_at`, reviewerID, since)
	if err != nil {
		return nil, fmt.Errorf("list overrides: %w", err)
	}
	defer rows.Close()

	var out []*Override
	for rows.Next() {
		var o Override
		err := rows.Scan(&o.ID, &o.ClaimID, &o.PreviousResultID, &o.OriginalStatus,
			&o.OriginalAmount, &o.NewStatus, &o.NewAmount, &o.FinancialImpact,
			&o.Reason, &o.Notes, &o.ReviewerID, &o.ReviewerName, &o.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan override: %w", err)
		}
		out = append(out, &o)
	}
	return out, rows.Err()
}

// PgRuleRepository is the pgx-backed RuleRepository. Rule condition sets
// are stored as Postgres arrays and surfaced as typed slices.
type PgRuleRepository struct {
	pool *pgxpool.Pool
}

func NewPgRuleRepository(pool *pgxpool.Pool) *PgRuleRepository {
	return &PgRuleRepository{pool: pool}
}

func (r *PgRuleRepository) ActiveRules(ctx context.Context, asOf time.Time) ([]*Rule, error) {
	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT id, name, action, priority, is_active, valid_from, valid_to,
			min_amount, max_amount, beneficiary_types, member_types, provider_tiers,
			service_ids, category_ids, min_age, max_age,
			max_visits_per_year, max_visits_per_month,
			requires_referral, requires_authorization,
			reduction_percent, reduction_cap, copayment_percent, copayment_fixed
		 FROM adjudication_rules
		 WHERE is_active
		   AND (valid_from IS NULL OR valid_from <= $1)
		   AND (valid_to IS NULL OR valid_to >= $1)
		 ORDER BY priority, name`, asOf)
	if err != nil {
		return nil, fmt.Errorf("active rules: %w", err)
	}
	defer rows.Close()

	var out []*Rule
	for rows.Next() {
		var (
			rule     Rule
			tiers    []string
			services []string
			cats     []string
		)
		err := rows.Scan(&rule.ID, &rule.Name, &rule.Action, &rule.Priority, &rule.IsActive,
			&rule.ValidFrom, &rule.ValidTo, &rule.MinAmount, &rule.MaxAmount,
			&rule.BeneficiaryTypes, &rule.MemberTypes, &tiers, &services, &cats,
			&rule.MinAge, &rule.MaxAge, &rule.MaxVisitsPerYear, &rule.MaxVisitsPerMonth,
			&rule.RequiresReferral, &rule.RequiresAuthorization,
			&rule.ReductionPercent, &rule.ReductionCap, &rule.CopaymentPercent, &rule.CopaymentFixed)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		if rule.ProviderTiers, err = parseUUIDs(tiers); err != nil {
			return nil, fmt.Errorf("rule %s provider tiers: %w", rule.Name, err)
		}
		if rule.ServiceIDs, err = parseUUIDs(services); err != nil {
			return nil, fmt.Errorf("rule %s services: %w", rule.Name, err)
		}
		if rule.CategoryIDs, err = parseUUIDs(cats); err != nil {
			return nil, fmt.Errorf("rule %s categories: %w", rule.Name, err)
		}
		out = append(out, &rule)
	}
	return out, rows.Err()
}

func parseUUIDs(in []string) ([]uuid.UUID, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make([]uuid.UUID, 0, len(in))
	for _, s := range in {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}
