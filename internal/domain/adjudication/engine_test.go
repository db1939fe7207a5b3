package adjudication

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/vitalsuite/claims/internal/platform/notification"
	"github.com/vitalsuite/claims/internal/platform/sequence"
)

type mockClaims struct {
	store map[uuid.UUID]*Claim

	// onLock runs when a claim row is locked, standing in for whatever a
	// concurrent writer committed while this caller waited.
	onLock func(*Claim)

	visits        int
	dupInvoice    bool
	sameDay       int
	avg           decimal.Decimal
	providerDaily int
}

func (m *mockClaims) Get(_ context.Context, id uuid.UUID) (*Claim, error) {
	c, ok := m.store[id]
	if !ok {
		return nil, errors.New("claim not found")
	}
	return c, nil
}

func (m *mockClaims) GetForUpdate(ctx context.Context, id uuid.UUID) (*Claim, error) {
	c, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.onLock != nil {
		m.onLock(c)
	}
	return c, nil
}

func (m *mockClaims) Update(_ context.Context, c *Claim) error {
	m.store[c.ID] = c
	return nil
}

func (m *mockClaims) UpdateLines(context.Context, []*ServiceLine) error { return nil }

func (m *mockClaims) ListIDsByStatus(_ context.Context, status ClaimStatus, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for id, c := range m.store {
		if c.Status == status && len(ids) < limit {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *mockClaims) CountVisits(context.Context, uuid.UUID, []uuid.UUID, time.Time, uuid.UUID) (int, error) {
	return m.visits, nil
}

func (m *mockClaims) HasDuplicateInvoice(context.Context, uuid.UUID, uuid.UUID, string, uuid.UUID) (bool, error) {
	return m.dupInvoice, nil
}

func (m *mockClaims) CountSameDay(context.Context, uuid.UUID, uuid.UUID, time.Time, uuid.UUID) (int, error) {
	return m.sameDay, nil
}

func (m *mockClaims) AverageAdjudicated(context.Context, uuid.UUID, time.Time) (decimal.Decimal, error) {
	return m.avg, nil
}

func (m *mockClaims) CountProviderDaily(context.Context, uuid.UUID, time.Time) (int, error) {
	return m.providerDaily, nil
}

type mockRequests struct {
	store map[uuid.UUID]*ServiceRequest
}

func (m *mockRequests) Get(_ context.Context, id uuid.UUID) (*ServiceRequest, error) {
	sr, ok := m.store[id]
	if !ok {
		return nil, errors.New("service request not found")
	}
	return sr, nil
}

func (m *mockRequests) Update(_ context.Context, sr *ServiceRequest) error {
	m.store[sr.ID] = sr
	return nil
}

type mockResults struct {
	created   []*Result
	overrides []*Override
	active    map[uuid.UUID]*Result
}

func newMockResults() *mockResults {
	return &mockResults{active: make(map[uuid.UUID]*Result)}
}

func (m *mockResults) Create(_ context.Context, r *Result) error {
	m.created = append(m.created, r)
	if r.Active {
		m.active[r.SubjectID] = r
	}
	return nil
}

func (m *mockResults) GetActive(_ context.Context, _ SubjectKind, subjectID uuid.UUID) (*Result, error) {
	return m.active[subjectID], nil
}

func (m *mockResults) Deactivate(_ context.Context, _ SubjectKind, subjectID uuid.UUID) error {
	if r, ok := m.active[subjectID]; ok {
		r.Active = false
		delete(m.active, subjectID)
	}
	return nil
}

func (m *mockResults) Supersede(_ context.Context, _ SubjectKind, subjectID, activeResultID uuid.UUID) error {
	r, ok := m.active[subjectID]
	if !ok || r.ID != activeResultID {
		return fmt.Errorf("%w: result %s", ErrConcurrencyConflict, activeResultID)
	}
	r.Active = false
	delete(m.active, subjectID)
	return nil
}

func (m *mockResults) LinkOverride(_ context.Context, resultID, overrideID uuid.UUID) error {
	for _, r := range m.created {
		if r.ID == resultID {
			id := overrideID
			r.OverrideID = &id
			return nil
		}
	}
	return errors.New("result not found")
}

func (m *mockResults) CreateOverride(_ context.Context, o *Override) error {
	m.overrides = append(m.overrides, o)
	return nil
}

func (m *mockResults) ListOverridesByReviewer(_ context.Context, reviewerID string, since time.Time) ([]*Override, error) {
	var out []*Override
	for _, o := range m.overrides {
		if o.ReviewerID == reviewerID && !o.CreatedAt.Before(since) {
			out = append(out, o)
		}
	}
	return out, nil
}

type mockRules struct {
	rules []*Rule
}

func (m *mockRules) ActiveRules(context.Context, time.Time) ([]*Rule, error) {
	return m.rules, nil
}

type mockOracle struct {
	benef       *BeneficiaryProfile
	benefErr    error
	utilization decimal.Decimal
	services    map[uuid.UUID]*ServiceProfile
	coverage    map[uuid.UUID]*CoverageTerms
	provider    *ProviderStanding
}

func (m *mockOracle) BeneficiaryProfile(context.Context, uuid.UUID) (*BeneficiaryProfile, error) {
	if m.benefErr != nil {
		return nil, m.benefErr
	}
	return m.benef, nil
}

func (m *mockOracle) AnnualUtilization(context.Context, uuid.UUID, int) (decimal.Decimal, error) {
	return m.utilization, nil
}

func (m *mockOracle) ServiceProfile(_ context.Context, id uuid.UUID) (*ServiceProfile, error) {
	s, ok := m.services[id]
	if !ok {
		return nil, errors.New("service not found")
	}
	return s, nil
}

func (m *mockOracle) PackageCoverage(_ context.Context, _ uuid.UUID, categoryID uuid.UUID) (*CoverageTerms, error) {
	return m.coverage[categoryID], nil
}

func (m *mockOracle) ProviderStanding(context.Context, uuid.UUID) (*ProviderStanding, error) {
	return m.provider, nil
}

type mockLedger struct {
	available decimal.Decimal
	reserved  map[uuid.UUID]decimal.Decimal
}

func newMockLedger(available int64) *mockLedger {
	return &mockLedger{
		available: decimal.NewFromInt(available),
		reserved:  make(map[uuid.UUID]decimal.Decimal),
	}
}

func (m *mockLedger) AvailableBalance(context.Context, uuid.UUID) (decimal.Decimal, error) {
	return m.available, nil
}

func (m *mockLedger) Reserve(_ context.Context, _, claimID uuid.UUID, _ string, amount decimal.Decimal) error {
	if amount.GreaterThan(m.available) {
		return errors.New("insufficient funds")
	}
	m.reserved[claimID] = m.reserved[claimID].Add(amount)
	m.available = m.available.Sub(amount)
	return nil
}

func (m *mockLedger) Release(_ context.Context, _, claimID uuid.UUID, _ string) (decimal.Decimal, error) {
	out := m.reserved[claimID]
	delete(m.reserved, claimID)
	m.available = m.available.Add(out)
	return out, nil
}

type passthroughRunner struct{}

func (passthroughRunner) InTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

type fixture struct {
	now      time.Time
	claims   *mockClaims
	requests *mockRequests
	results  *mockResults
	rules    *mockRules
	oracle   *mockOracle
	ledger   *mockLedger
	notifier *notification.Memory
	auto     *AutoEngine
	manual   *ManualEngine

	benefID    uuid.UUID
	memberID   uuid.UUID
	providerID uuid.UUID
	packageID  uuid.UUID
	serviceID  uuid.UUID
	categoryID uuid.UUID
}

func newFixture() *fixture {
	now := time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)
	f := &fixture{
		now:        now,
		claims:     &mockClaims{store: make(map[uuid.UUID]*Claim)},
		requests:   &mockRequests{store: make(map[uuid.UUID]*ServiceRequest)},
		results:    newMockResults(),
		rules:      &mockRules{},
		notifier:   notification.NewMemory(),
		ledger:     newMockLedger(100000),
		benefID:    uuid.New(),
		memberID:   uuid.New(),
		providerID: uuid.New(),
		packageID:  uuid.New(),
		serviceID:  uuid.New(),
		categoryID: uuid.New(),
	}

	benefitStart := now.AddDate(-2, 0, 0)
	f.oracle = &mockOracle{
		benef: &BeneficiaryProfile{
			ID:               f.benefID,
			MemberID:         f.memberID,
			Status:           BeneficiaryActive,
			Type:             "P",
			MemberType:       "I",
			DateOfBirth:      time.Date(1985, 3, 20, 0, 0, 0, 0, time.UTC),
			BenefitStartDate: &benefitStart,
			AnnualLimit:      decimal.NewFromInt(50000),
			PackageID:        &f.packageID,
		},
		services: map[uuid.UUID]*ServiceProfile{
			f.serviceID: {
				ID:          f.serviceID,
				Description: "General consultation",
				CategoryID:  f.categoryID,
				IsActive:    true,
			},
		},
		coverage: map[uuid.UUID]*CoverageTerms{
			f.categoryID: {AnnualLimit: decimal.NewFromInt(20000)},
		},
		provider: &ProviderStanding{
			ID:               f.providerID,
			IdentificationNo: "001",
			Status:           ProviderActive,
		},
	}

	deps := AutoEngineDeps{
		Claims:    f.claims,
		Requests:  f.requests,
		Results:   f.results,
		Rules:     f.rules,
		Oracle:    f.oracle,
		Ledger:    f.ledger,
		Runner:    passthroughRunner{},
		Sequences: sequence.NewMemory(),
		Notifier:  f.notifier,
	}
	f.auto = NewAutoEngine(deps, DefaultThresholds(), zerolog.Nop())
	f.auto.now = func() time.Time { return now }

	f.manual = NewManualEngine(ManualEngineDeps{
		Claims:   f.claims,
		Results:  f.results,
		Ledger:   f.ledger,
		Auto:     f.auto,
		Runner:   passthroughRunner{},
		Notifier: f.notifier,
	}, DefaultThresholds(), zerolog.Nop())
	f.manual.now = f.auto.now

	return f
}

func (f *fixture) seedClaim(amount int64) *Claim {
	serviceDate := f.now.AddDate(0, 0, -10)
	claim := &Claim{
		ID:               uuid.New(),
		BeneficiaryID:    f.benefID,
		MemberID:         f.memberID,
		ProviderID:       f.providerID,
		InvoiceNumber:    "INV-1001",
		Status:           ClaimNew,
		ServiceStartDate: serviceDate,
		ServiceEndDate:   serviceDate,
		SubmittedAt:      f.now,
	}
	claim.Lines = []*ServiceLine{{
		ID:            uuid.New(),
		ClaimID:       claim.ID,
		ServiceID:     f.serviceID,
		Description:   "General consultation",
		UnitPrice:     decimal.NewFromInt(amount),
		Quantity:      1,
		ClaimedAmount: decimal.NewFromInt(amount),
		ServiceDate:   serviceDate,
	}}
	f.claims.store[claim.ID] = claim
	return claim
}

func TestAutoEngine_ApprovesCleanClaim(t *testing.T) {
	f := newFixture()
	claim := f.seedClaim(800)

	res, err := f.auto.Process(context.Background(), claim.ID)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if res.Status != ResultApproved {
		t.Fatalf("status = %s, want APPROVED", res.Status)
	}
	if !res.AdjudicatedAmount.Equal(decimal.NewFromInt(800)) {
		t.Errorf("adjudicated = %s, want 800", res.AdjudicatedAmount)
	}
	if claim.Status != ClaimApproved {
		t.Errorf("claim status = %s, want APPROVED", claim.Status)
	}
	if claim.TransactionNumber != "CL.001.0001" {
		t.Errorf("transaction number = %q, want CL.001.0001", claim.TransactionNumber)
	}
	if !f.ledger.reserved[claim.ID].Equal(decimal.NewFromInt(800)) {
		t.Errorf("reserved = %s, want 800", f.ledger.reserved[claim.ID])
	}
	if !res.HasCode(CodeAutoApproved) {
		t.Error("expected auto-approval message")
	}
	if !res.Active {
		t.Error("result should be active")
	}
	events := f.notifier.Events()
	if len(events) != 1 || events[0].Outcome != "APPROVED" {
		t.Errorf("expected one APPROVED notification, got %+v", events)
	}
}

func TestAutoEngine_PartialApprovalAtAnnualLimit(t *testing.T) {
	f := newFixture()
	f.oracle.benef.AnnualLimit = decimal.NewFromInt(1000)
	f.oracle.utilization = decimal.NewFromInt(500)
	claim := f.seedClaim(800)

	res, err := f.auto.Process(context.Background(), claim.ID)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if res.Status != ResultApproved {
		t.Fatalf("status = %s, want APPROVED", res.Status)
	}
	if !res.AcceptedAmount.Equal(decimal.NewFromInt(500)) {
		t.Errorf("accepted = %s, want 500", res.AcceptedAmount)
	}
	if !res.HasCode(CodeAmountReduced) {
		t.Error("expected amount-reduced message")
	}
}

func TestAutoEngine_DeclinesExhaustedAnnualLimit(t *testing.T) {
	f := newFixture()
	f.oracle.benef.AnnualLimit = decimal.NewFromInt(1000)
	f.oracle.utilization = decimal.NewFromInt(1000)
	claim := f.seedClaim(100)

	res, err := f.auto.Process(context.Background(), claim.ID)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Status != ResultDeclined || !res.HasCode(CodeAnnualLimitExceeded) {
		t.Fatalf("expected decline with limit message, got %s %+v", res.Status, res.Messages)
	}
	if claim.Status != ClaimDeclined {
		t.Errorf("claim status = %s, want DECLINED", claim.Status)
	}
}

func TestAutoEngine_DeclinesInactiveBeneficiary(t *testing.T) {
	f := newFixture()

	cases := []struct {
		status string
		code   string
	}{
		{BeneficiarySuspended, CodeBeneficiarySuspended},
		{BeneficiaryTerminated, CodeBeneficiaryTerminated},
		{BeneficiaryInactive, CodeBeneficiaryInactive},
	}
	for _, tc := range cases {
		t.Run(tc.status, func(t *testing.T) {
			f.oracle.benef.Status = tc.status
			claim := f.seedClaim(100)

			res, err := f.auto.Process(context.Background(), claim.ID)
			if err != nil {
				t.Fatalf("Process: %v", err)
			}
			if res.Status != ResultDeclined || !res.HasCode(tc.code) {
				t.Errorf("expected decline with %s, got %s", tc.code, res.Status)
			}
		})
	}
}

func TestAutoEngine_DeclinesBadServiceDates(t *testing.T) {
	f := newFixture()

	claim := f.seedClaim(100)
	claim.Lines[0].ServiceDate = f.now.AddDate(0, 0, 5)
	res, err := f.auto.Process(context.Background(), claim.ID)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Status != ResultDeclined || !res.HasCode(CodeFutureServiceDate) {
		t.Errorf("future date: expected decline with TIME002, got %s", res.Status)
	}

	stale := f.seedClaim(100)
	stale.Lines[0].ServiceDate = f.now.AddDate(0, 0, -400)
	res, err = f.auto.Process(context.Background(), stale.ID)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Status != ResultDeclined || !res.HasCode(CodeStaleServiceDate) {
		t.Errorf("stale date: expected decline with TIME001, got %s", res.Status)
	}
}

func TestAutoEngine_DeclinesEmptyClaim(t *testing.T) {
	f := newFixture()
	claim := f.seedClaim(100)
	claim.Lines = nil

	res, err := f.auto.Process(context.Background(), claim.ID)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Status != ResultDeclined || !res.HasCode(CodeServiceNotCovered) {
		t.Errorf("expected decline with SERV001, got %s", res.Status)
	}
}

func TestAutoEngine_DeclinesMissingReferral(t *testing.T) {
	f := newFixture()
	f.oracle.services[f.serviceID].RequiresReferral = true
	claim := f.seedClaim(100)

	res, err := f.auto.Process(context.Background(), claim.ID)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Status != ResultDeclined || !res.HasCode(CodeReferralRequired) {
		t.Errorf("expected decline with SERV002, got %s", res.Status)
	}

	// A referring provider satisfies the requirement.
	ref := uuid.New()
	claim2 := f.seedClaim(100)
	claim2.ReferringProviderID = &ref
	res, err = f.auto.Process(context.Background(), claim2.ID)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Status != ResultApproved {
		t.Errorf("with referral: status = %s, want APPROVED", res.Status)
	}
}

func TestAutoEngine_DeclinesDuringWaitingPeriod(t *testing.T) {
	f := newFixture()
	recent := f.now.AddDate(0, 0, -30)
	f.oracle.benef.BenefitStartDate = &recent
	f.oracle.coverage[f.categoryID].WaitingPeriodDays = 90
	claim := f.seedClaim(100)

	res, err := f.auto.Process(context.Background(), claim.ID)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Status != ResultDeclined || !res.HasCode(CodeWaitingPeriod) {
		t.Errorf("expected decline with PACK003, got %s", res.Status)
	}
}

func TestAutoEngine_DeclinesUncoveredCategory(t *testing.T) {
	f := newFixture()
	delete(f.oracle.coverage, f.categoryID)
	claim := f.seedClaim(100)

	res, err := f.auto.Process(context.Background(), claim.ID)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Status != ResultDeclined || !res.HasCode(CodePackageNotCovered) {
		t.Errorf("expected decline with PACK002, got %s", res.Status)
	}
}

func TestAutoEngine_AgeRestrictedService(t *testing.T) {
	f := newFixture()
	f.oracle.services[f.serviceID].Pediatric = true
	claim := f.seedClaim(100)

	res, err := f.auto.Process(context.Background(), claim.ID)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Status != ResultDeclined || !res.HasCode(CodeAgeRestriction) {
		t.Errorf("adult on pediatric service: expected decline with AGER001, got %s", res.Status)
	}
}

func TestAutoEngine_GeriatricServiceCutoff(t *testing.T) {
	f := newFixture()
	f.oracle.services[f.serviceID].Geriatric = true

	// 62 at the fixture date, below the geriatric threshold of 65.
	f.oracle.benef.DateOfBirth = time.Date(1962, 3, 20, 0, 0, 0, 0, time.UTC)
	claim := f.seedClaim(100)
	res, err := f.auto.Process(context.Background(), claim.ID)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Status != ResultDeclined || !res.HasCode(CodeAgeRestriction) {
		t.Errorf("62-year-old on geriatric service: expected decline with AGER001, got %s", res.Status)
	}

	// 69 qualifies.
	f.oracle.benef.DateOfBirth = time.Date(1955, 3, 20, 0, 0, 0, 0, time.UTC)
	claim2 := f.seedClaim(100)
	res, err = f.auto.Process(context.Background(), claim2.ID)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Status != ResultApproved {
		t.Errorf("69-year-old on geriatric service: status = %s, want APPROVED", res.Status)
	}
}

func TestAutoEngine_ProviderDocumentWarningsDoNotDecline(t *testing.T) {
	f := newFixture()
	f.oracle.provider.MissingDocuments = []string{"practice licence"}
	claim := f.seedClaim(100)

	res, err := f.auto.Process(context.Background(), claim.ID)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Status != ResultApproved {
		t.Fatalf("status = %s, want APPROVED", res.Status)
	}
	if !res.HasCode(CodeMissingDocuments) {
		t.Error("expected missing-documents warning")
	}
}

func TestAutoEngine_SuspendedProviderDeclines(t *testing.T) {
	f := newFixture()
	f.oracle.provider.Status = ProviderSuspended
	claim := f.seedClaim(100)

	res, err := f.auto.Process(context.Background(), claim.ID)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Status != ResultDeclined || !res.HasCode(CodeProviderSuspended) {
		t.Errorf("expected decline with PROV002, got %s", res.Status)
	}
}

func TestAutoEngine_AuthorizationRequired(t *testing.T) {
	f := newFixture()
	f.oracle.services[f.serviceID].RequiresAuthorization = true
	claim := f.seedClaim(100)

	res, err := f.auto.Process(context.Background(), claim.ID)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Status != ResultDeclined || !res.HasCode(CodeAuthRequired) {
		t.Errorf("expected decline with AUTH001, got %s", res.Status)
	}
}

func (f *fixture) seedAuthorization(approved, utilized int64, expiry time.Time) *ServiceRequest {
	sr := &ServiceRequest{
		ID:                uuid.New(),
		RequestNumber:     "SR2406010001",
		AuthorizationCode: "AUTH000001",
		BeneficiaryID:     f.benefID,
		MemberID:          f.memberID,
		ProviderID:        f.providerID,
		Status:            RequestApproved,
		EstimatedAmount:   decimal.NewFromInt(approved),
		ApprovedAmount:    decimal.NewFromInt(approved),
		UtilizedAmount:    decimal.NewFromInt(utilized),
		ExpiryDate:        &expiry,
	}
	f.requests.store[sr.ID] = sr
	return sr
}

func TestAutoEngine_AuthorizationCapsAmount(t *testing.T) {
	f := newFixture()
	f.oracle.services[f.serviceID].RequiresAuthorization = true
	sr := f.seedAuthorization(500, 200, f.now.AddDate(0, 0, 10))
	claim := f.seedClaim(800)
	claim.ServiceRequestID = &sr.ID

	res, err := f.auto.Process(context.Background(), claim.ID)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Status != ResultApproved {
		t.Fatalf("status = %s, want APPROVED", res.Status)
	}
	if !res.AcceptedAmount.Equal(decimal.NewFromInt(300)) {
		t.Errorf("accepted = %s, want 300 (authorized balance)", res.AcceptedAmount)
	}
	if !res.HasCode(CodeAuthPartial) {
		t.Error("expected partial-authorization message")
	}
	// Approval consumes the remaining authorization.
	if sr.Status != RequestUtilized {
		t.Errorf("request status = %s, want UTILIZED", sr.Status)
	}
	if !sr.UtilizedAmount.Equal(decimal.NewFromInt(500)) {
		t.Errorf("utilized = %s, want 500", sr.UtilizedAmount)
	}
}

func TestAutoEngine_ExpiredAuthorizationDeclines(t *testing.T) {
	f := newFixture()
	f.oracle.services[f.serviceID].RequiresAuthorization = true
	sr := f.seedAuthorization(500, 0, f.now.AddDate(0, 0, -1))
	claim := f.seedClaim(100)
	claim.ServiceRequestID = &sr.ID

	res, err := f.auto.Process(context.Background(), claim.ID)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Status != ResultDeclined || !res.HasCode(CodeAuthExpired) {
		t.Errorf("expected decline with AUTH003, got %s", res.Status)
	}
}

func TestAutoEngine_RulePriorityOrder(t *testing.T) {
	f := newFixture()
	f.rules.rules = []*Rule{
		{ID: uuid.New(), Name: "exclusion", Action: ActionAutoDecline, Priority: 10, IsActive: true, ServiceIDs: []uuid.UUID{f.serviceID}},
		{ID: uuid.New(), Name: "fast track", Action: ActionAutoApprove, Priority: 50, IsActive: true},
	}
	claim := f.seedClaim(100)

	res, err := f.auto.Process(context.Background(), claim.ID)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Status != ResultDeclined || !res.HasCode(CodePolicyExclusion) {
		t.Errorf("priority 10 decline should win, got %s %+v", res.Status, res.Messages)
	}
}

func TestAutoEngine_CumulativeAdjustmentRules(t *testing.T) {
	f := newFixture()
	f.rules.rules = []*Rule{
		{ID: uuid.New(), Name: "tier discount", Action: ActionReduceAmount, Priority: 10, IsActive: true,
			ReductionPercent: decimal.NewFromInt(10)},
		{ID: uuid.New(), Name: "consult copay", Action: ActionApplyCopayment, Priority: 20, IsActive: true,
			CopaymentFixed: decimal.NewFromInt(50)},
	}
	claim := f.seedClaim(1000)

	res, err := f.auto.Process(context.Background(), claim.ID)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Status != ResultApproved {
		t.Fatalf("status = %s, want APPROVED", res.Status)
	}
	if !res.AcceptedAmount.Equal(decimal.NewFromInt(900)) {
		t.Errorf("accepted = %s, want 900 after 10%% reduction", res.AcceptedAmount)
	}
	if !res.CopaymentAmount.Equal(decimal.NewFromInt(50)) {
		t.Errorf("copayment = %s, want 50", res.CopaymentAmount)
	}
	if !res.AdjudicatedAmount.Equal(decimal.NewFromInt(850)) {
		t.Errorf("adjudicated = %s, want 850", res.AdjudicatedAmount)
	}
	if !f.ledger.reserved[claim.ID].Equal(decimal.NewFromInt(850)) {
		t.Errorf("reserved = %s, want 850", f.ledger.reserved[claim.ID])
	}
}

func TestAutoEngine_FrequencyCapMakesRuleInapplicable(t *testing.T) {
	f := newFixture()
	f.claims.visits = 2
	f.rules.rules = []*Rule{
		{ID: uuid.New(), Name: "capped approve", Action: ActionAutoDecline, Priority: 10, IsActive: true,
			MaxVisitsPerYear: 2},
	}
	claim := f.seedClaim(100)

	res, err := f.auto.Process(context.Background(), claim.ID)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	// Cap reached, the rule no longer fires and the claim falls through to
	// the default approval.
	if res.Status != ResultApproved {
		t.Errorf("status = %s, want APPROVED", res.Status)
	}
}

func TestAutoEngine_DuplicateInvoiceRoutesToReview(t *testing.T) {
	f := newFixture()
	f.claims.dupInvoice = true
	claim := f.seedClaim(100)

	res, err := f.auto.Process(context.Background(), claim.ID)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Status != ResultPendingReview || !res.HasCode(CodeDuplicateClaim) {
		t.Fatalf("expected PENDING_REVIEW with FRAU001, got %s", res.Status)
	}
	if claim.Status != ClaimUnderReview {
		t.Errorf("claim status = %s, want UNDER_REVIEW", claim.Status)
	}
	if len(f.ledger.reserved) != 0 {
		t.Error("no reservation should exist for a pending claim")
	}
}

func TestAutoEngine_FraudNeverOverridesDecline(t *testing.T) {
	f := newFixture()
	f.claims.dupInvoice = true
	f.oracle.benef.Status = BeneficiarySuspended
	claim := f.seedClaim(100)

	res, err := f.auto.Process(context.Background(), claim.ID)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Status != ResultDeclined {
		t.Errorf("status = %s, want DECLINED", res.Status)
	}
	if res.HasCode(CodeDuplicateClaim) {
		t.Error("fraud screening should not run on a declined claim")
	}
}

func TestAutoEngine_AnomalousAmountFlags(t *testing.T) {
	f := newFixture()
	f.claims.avg = decimal.NewFromInt(100)
	claim := f.seedClaim(600)

	res, err := f.auto.Process(context.Background(), claim.ID)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Status != ResultPendingReview || !res.HasCode(CodeAnomalousAmount) {
		t.Errorf("expected PENDING_REVIEW with FRAU003, got %s", res.Status)
	}
}

func TestAutoEngine_BalanceCapRoutesToReview(t *testing.T) {
	f := newFixture()
	f.ledger.available = decimal.NewFromInt(300)
	claim := f.seedClaim(800)

	res, err := f.auto.Process(context.Background(), claim.ID)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Status != ResultPendingReview || !res.HasCode(CodeBalanceReduced) {
		t.Fatalf("expected PENDING_REVIEW with ACCT001, got %s", res.Status)
	}
	if !res.AdjudicatedAmount.Equal(decimal.NewFromInt(300)) {
		t.Errorf("adjudicated = %s, want 300", res.AdjudicatedAmount)
	}
}

func TestAutoEngine_PendingOutcomeUpdatesLines(t *testing.T) {
	f := newFixture()
	f.ledger.available = decimal.NewFromInt(300)
	claim := f.seedClaim(800)

	if _, err := f.auto.Process(context.Background(), claim.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}

	// Reviewers see the capped amounts on the lines, not the submitted ones.
	total := decimal.Zero
	for _, l := range claim.Lines {
		total = total.Add(l.AdjudicatedAmount)
	}
	if !total.Equal(decimal.NewFromInt(300)) {
		t.Errorf("line adjudicated sum = %s, want 300", total)
	}
	if !claim.ShortfallAmount.Equal(decimal.NewFromInt(500)) {
		t.Errorf("shortfall = %s, want 500", claim.ShortfallAmount)
	}
}

func TestAutoEngine_ZeroBalanceRoutesToReview(t *testing.T) {
	f := newFixture()
	f.ledger.available = decimal.Zero
	claim := f.seedClaim(100)

	res, err := f.auto.Process(context.Background(), claim.ID)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Status != ResultPendingReview || !res.HasCode(CodeInsufficientBalance) {
		t.Errorf("expected PENDING_REVIEW with ACCT002, got %s", res.Status)
	}
}

func TestAutoEngine_RejectsNonNewClaim(t *testing.T) {
	f := newFixture()
	claim := f.seedClaim(100)
	claim.Status = ClaimApproved

	_, err := f.auto.Process(context.Background(), claim.ID)
	if !errors.Is(err, ErrNotProcessable) {
		t.Fatalf("expected ErrNotProcessable, got %v", err)
	}
}

func TestAutoEngine_ConcurrentWorkerBacksOff(t *testing.T) {
	f := newFixture()
	claim := f.seedClaim(100)

	// Another worker finishes the claim between the unlocked status check
	// and the row lock.
	f.claims.onLock = func(c *Claim) {
		if c.ID == claim.ID {
			c.Status = ClaimApproved
		}
	}

	_, err := f.auto.Process(context.Background(), claim.ID)
	if !errors.Is(err, ErrNotProcessable) {
		t.Fatalf("expected ErrNotProcessable, got %v", err)
	}
	if len(f.results.created) != 0 {
		t.Errorf("losing worker wrote %d results, want 0", len(f.results.created))
	}
	if len(f.ledger.reserved) != 0 {
		t.Error("losing worker must not reserve funds")
	}
}

func TestAutoEngine_UnexpectedFailureRoutesToReview(t *testing.T) {
	f := newFixture()
	f.oracle.benefErr = errors.New("eligibility store unavailable")
	claim := f.seedClaim(100)

	res, err := f.auto.Process(context.Background(), claim.ID)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Status != ResultPendingReview || !res.HasCode(CodeManualReview) {
		t.Fatalf("expected PENDING_REVIEW with REVW001, got %s", res.Status)
	}
	if claim.Status != ClaimUnderReview {
		t.Errorf("claim status = %s, want UNDER_REVIEW", claim.Status)
	}
}

func TestAutoEngine_ProcessBatch(t *testing.T) {
	f := newFixture()
	good := f.seedClaim(100)
	declined := f.seedClaim(100)
	declined.Lines[0].ServiceDate = f.now.AddDate(0, 0, 5)
	missing := uuid.New()

	summary := f.auto.ProcessBatch(context.Background(), []uuid.UUID{good.ID, declined.ID, missing})

	if summary.Processed != 2 {
		t.Errorf("processed = %d, want 2", summary.Processed)
	}
	if summary.Approved != 1 || summary.Declined != 1 {
		t.Errorf("approved/declined = %d/%d, want 1/1", summary.Approved, summary.Declined)
	}
	if len(summary.Errors) != 1 || summary.Errors[0].ClaimID != missing {
		t.Errorf("expected one error for the missing claim, got %+v", summary.Errors)
	}
}

func TestAutoEngine_SingleActiveResult(t *testing.T) {
	f := newFixture()
	claim := f.seedClaim(100)

	if _, err := f.auto.Process(context.Background(), claim.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}

	active := 0
	for _, r := range f.results.created {
		if r.Active {
			active++
		}
	}
	if active != 1 {
		t.Errorf("active results = %d, want 1", active)
	}
}

func TestAutoEngine_ServiceRequestApproval(t *testing.T) {
	f := newFixture()
	sr := &ServiceRequest{
		ID:              uuid.New(),
		BeneficiaryID:   f.benefID,
		MemberID:        f.memberID,
		ProviderID:      f.providerID,
		Status:          RequestNew,
		EstimatedAmount: decimal.NewFromInt(2000),
		RequestedAt:     f.now,
		Items: []*ServiceRequestItem{{
			ID:              uuid.New(),
			ServiceID:       f.serviceID,
			Quantity:        1,
			EstimatedAmount: decimal.NewFromInt(2000),
		}},
	}
	f.requests.store[sr.ID] = sr

	res, err := f.auto.ProcessServiceRequest(context.Background(), sr.ID)
	if err != nil {
		t.Fatalf("ProcessServiceRequest: %v", err)
	}

	if res.Status != ResultApproved {
		t.Fatalf("status = %s, want APPROVED", res.Status)
	}
	if sr.Status != RequestApproved {
		t.Errorf("request status = %s, want APPROVED", sr.Status)
	}
	if sr.AuthorizationCode != "AUTH000001" {
		t.Errorf("authorization code = %q, want AUTH000001", sr.AuthorizationCode)
	}
	if sr.RequestNumber != "SR2406150001" {
		t.Errorf("request number = %q, want SR2406150001", sr.RequestNumber)
	}
	if sr.ExpiryDate == nil || !sr.ExpiryDate.Equal(f.now.AddDate(0, 0, 30)) {
		t.Errorf("expiry = %v, want 30 days out", sr.ExpiryDate)
	}
	if !sr.ApprovedAmount.Equal(decimal.NewFromInt(2000)) {
		t.Errorf("approved = %s, want 2000", sr.ApprovedAmount)
	}
}

func TestAutoEngine_ServiceRequestComplianceRoutesToReview(t *testing.T) {
	f := newFixture()
	f.oracle.provider.ExpiredDocuments = []string{"practice licence"}
	sr := &ServiceRequest{
		ID:              uuid.New(),
		BeneficiaryID:   f.benefID,
		MemberID:        f.memberID,
		ProviderID:      f.providerID,
		Status:          RequestNew,
		EstimatedAmount: decimal.NewFromInt(500),
		RequestedAt:     f.now,
		Items: []*ServiceRequestItem{{
			ID:              uuid.New(),
			ServiceID:       f.serviceID,
			Quantity:        1,
			EstimatedAmount: decimal.NewFromInt(500),
		}},
	}
	f.requests.store[sr.ID] = sr

	res, err := f.auto.ProcessServiceRequest(context.Background(), sr.ID)
	if err != nil {
		t.Fatalf("ProcessServiceRequest: %v", err)
	}
	if res.Status != ResultPendingReview {
		t.Fatalf("status = %s, want PENDING_REVIEW", res.Status)
	}
	if sr.Status != RequestPendingReview {
		t.Errorf("request status = %s, want PENDING_REVIEW", sr.Status)
	}
	if sr.AuthorizationCode != "" {
		t.Error("no authorization code should be allocated for a pending request")
	}
}

func TestAutoEngine_ServiceRequestSuspendedProviderRoutesToReview(t *testing.T) {
	f := newFixture()
	f.oracle.provider.Status = ProviderSuspended
	sr := &ServiceRequest{
		ID:              uuid.New(),
		BeneficiaryID:   f.benefID,
		MemberID:        f.memberID,
		ProviderID:      f.providerID,
		Status:          RequestNew,
		EstimatedAmount: decimal.NewFromInt(500),
		RequestedAt:     f.now,
		Items: []*ServiceRequestItem{{
			ID:              uuid.New(),
			ServiceID:       f.serviceID,
			Quantity:        1,
			EstimatedAmount: decimal.NewFromInt(500),
		}},
	}
	f.requests.store[sr.ID] = sr

	res, err := f.auto.ProcessServiceRequest(context.Background(), sr.ID)
	if err != nil {
		t.Fatalf("ProcessServiceRequest: %v", err)
	}
	if res.Status != ResultPendingReview || !res.HasCode(CodeProviderSuspended) {
		t.Fatalf("expected PENDING_REVIEW with PROV002, got %s %+v", res.Status, res.Messages)
	}
	if !res.HasCode(CodeManualReview) {
		t.Error("expected manual-review message")
	}
	if sr.Status != RequestPendingReview {
		t.Errorf("request status = %s, want PENDING_REVIEW", sr.Status)
	}
}
