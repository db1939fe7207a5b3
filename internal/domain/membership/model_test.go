package membership

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestBeneficiary_AgeAt(t *testing.T) {
	b := &Beneficiary{DateOfBirth: time.Date(1990, 6, 15, 0, 0, 0, 0, time.UTC)}

	cases := []struct {
		name string
		at   time.Time
		want int
	}{
		{"day before birthday", time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC), 33},
		{"on birthday", time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC), 34},
		{"end of year", time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), 34},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := b.AgeAt(tc.at); got != tc.want {
				t.Errorf("AgeAt(%s) = %d, want %d", tc.at.Format("2006-01-02"), got, tc.want)
			}
		})
	}
}

func TestBeneficiary_EffectiveAnnualLimit(t *testing.T) {
	pkgLimit := decimal.NewFromInt(50000)

	b := &Beneficiary{}
	if got := b.EffectiveAnnualLimit(pkgLimit); !got.Equal(pkgLimit) {
		t.Errorf("without override got %s, want %s", got, pkgLimit)
	}

	b.AnnualLimitOverride = decimal.NewFromInt(20000)
	if got := b.EffectiveAnnualLimit(pkgLimit); !got.Equal(b.AnnualLimitOverride) {
		t.Errorf("with override got %s, want %s", got, b.AnnualLimitOverride)
	}
}

func TestBeneficiary_BenefitsStarted(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	b := &Beneficiary{}
	if b.BenefitsStarted(now) {
		t.Error("no start date should mean benefits not started")
	}

	past := now.AddDate(0, -1, 0)
	b.BenefitStartDate = &past
	if !b.BenefitsStarted(now) {
		t.Error("past start date should mean benefits started")
	}

	future := now.AddDate(0, 1, 0)
	b.BenefitStartDate = &future
	if b.BenefitsStarted(now) {
		t.Error("future start date should mean benefits not started")
	}
}
