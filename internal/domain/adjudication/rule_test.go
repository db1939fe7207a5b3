package adjudication

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func staticContext() *RuleContext {
	tier := uuid.New()
	return &RuleContext{
		Amount:          decimal.NewFromInt(1000),
		BeneficiaryType: "P",
		MemberType:      "I",
		ProviderTier:    &tier,
		ServiceIDs:      []uuid.UUID{uuid.New()},
		CategoryIDs:     []uuid.UUID{uuid.New()},
		Age:             38,
		HasReferral:     false,
		VisitCount: func(int, []uuid.UUID) (int, error) {
			return 0, nil
		},
	}
}

func TestRuleAction_Exclusive(t *testing.T) {
	exclusive := []RuleAction{ActionAutoApprove, ActionAutoDecline, ActionManualReview, ActionClinicalReview}
	for _, a := range exclusive {
		if !a.Exclusive() {
			t.Errorf("%s should be exclusive", a)
		}
	}
	for _, a := range []RuleAction{ActionReduceAmount, ActionApplyCopayment} {
		if a.Exclusive() {
			t.Errorf("%s should not be exclusive", a)
		}
	}
}

func TestRule_Matches(t *testing.T) {
	rc := staticContext()

	cases := []struct {
		name string
		rule Rule
		want bool
	}{
		{"empty rule matches everything", Rule{}, true},
		{"amount in range", Rule{MinAmount: decimal.NewFromInt(500), MaxAmount: decimal.NewFromInt(2000)}, true},
		{"amount below min", Rule{MinAmount: decimal.NewFromInt(2000)}, false},
		{"amount above max", Rule{MaxAmount: decimal.NewFromInt(500)}, false},
		{"beneficiary type match", Rule{BeneficiaryTypes: []string{"P", "S"}}, true},
		{"beneficiary type miss", Rule{BeneficiaryTypes: []string{"D"}}, false},
		{"member type match", Rule{MemberTypes: []string{"I"}}, true},
		{"member type miss", Rule{MemberTypes: []string{"C"}}, false},
		{"tier match", Rule{ProviderTiers: []uuid.UUID{*rc.ProviderTier}}, true},
		{"tier miss", Rule{ProviderTiers: []uuid.UUID{uuid.New()}}, false},
		{"service intersection", Rule{ServiceIDs: []uuid.UUID{rc.ServiceIDs[0], uuid.New()}}, true},
		{"service miss", Rule{ServiceIDs: []uuid.UUID{uuid.New()}}, false},
		{"category intersection", Rule{CategoryIDs: []uuid.UUID{rc.CategoryIDs[0]}}, true},
		{"age in range", Rule{MinAge: 18, MaxAge: 60}, true},
		{"age below min", Rule{MinAge: 50}, false},
		{"age above max", Rule{MaxAge: 30}, false},
		{"referral gate", Rule{RequiresReferral: true}, false},
		{"authorization gate", Rule{RequiresAuthorization: true}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.rule.Matches(rc)
			if err != nil {
				t.Fatalf("Matches: %v", err)
			}
			if got != tc.want {
				t.Errorf("Matches = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestRule_FrequencyCap(t *testing.T) {
	rc := staticContext()
	rule := Rule{MaxVisitsPerYear: 3}

	for _, tc := range []struct {
		visits int
		want   bool
	}{
		{0, true},
		{2, true},
		{3, false},
		{5, false},
	} {
		rc.VisitCount = func(int, []uuid.UUID) (int, error) { return tc.visits, nil }
		got, err := rule.Matches(rc)
		if err != nil {
			t.Fatalf("Matches: %v", err)
		}
		if got != tc.want {
			t.Errorf("visits=%d: Matches = %v, want %v", tc.visits, got, tc.want)
		}
	}
}

func TestRule_ReducePercentWinsOverCap(t *testing.T) {
	rule := Rule{
		ReductionPercent: decimal.NewFromInt(25),
		ReductionCap:     decimal.NewFromInt(10),
	}
	got := rule.Reduce(decimal.NewFromInt(1000))
	if !got.Equal(decimal.NewFromInt(750)) {
		t.Errorf("Reduce = %s, want 750 (percentage wins over cap)", got)
	}
}

func TestRule_ReduceByCap(t *testing.T) {
	rule := Rule{ReductionCap: decimal.NewFromInt(400)}

	if got := rule.Reduce(decimal.NewFromInt(1000)); !got.Equal(decimal.NewFromInt(400)) {
		t.Errorf("Reduce above cap = %s, want 400", got)
	}
	if got := rule.Reduce(decimal.NewFromInt(300)); !got.Equal(decimal.NewFromInt(300)) {
		t.Errorf("Reduce below cap = %s, want 300", got)
	}
}

func TestRule_Copayment(t *testing.T) {
	pct := Rule{CopaymentPercent: decimal.NewFromInt(10), CopaymentFixed: decimal.NewFromInt(999)}
	if got := pct.Copayment(decimal.NewFromInt(500)); !got.Equal(decimal.NewFromInt(50)) {
		t.Errorf("percentage copayment = %s, want 50", got)
	}

	fixed := Rule{CopaymentFixed: decimal.NewFromInt(75)}
	if got := fixed.Copayment(decimal.NewFromInt(500)); !got.Equal(decimal.NewFromInt(75)) {
		t.Errorf("fixed copayment = %s, want 75", got)
	}
	if got := fixed.Copayment(decimal.NewFromInt(50)); !got.Equal(decimal.NewFromInt(50)) {
		t.Errorf("fixed copayment above amount = %s, want 50", got)
	}
}
