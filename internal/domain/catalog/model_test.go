package catalog

import (
	"testing"
	"time"
)

func TestService_AgeHeuristics(t *testing.T) {
	cases := []struct {
		desc      string
		pediatric bool
		geriatric bool
	}{
		{"Pediatric consultation", true, false},
		{"Paediatric immunisation", true, false},
		{"Child wellness check", true, false},
		{"Geriatric assessment", false, true},
		{"Care of the elderly", false, true},
		{"General consultation", false, false},
	}
	for _, tc := range cases {
		s := &Service{Description: tc.desc}
		if got := s.IsPediatric(); got != tc.pediatric {
			t.Errorf("%q IsPediatric = %v, want %v", tc.desc, got, tc.pediatric)
		}
		if got := s.IsGeriatric(); got != tc.geriatric {
			t.Errorf("%q IsGeriatric = %v, want %v", tc.desc, got, tc.geriatric)
		}
	}
}

func TestProviderDocument_Expired(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	d := &ProviderDocument{}
	if d.Expired(now) {
		t.Error("document without expiry should not be expired")
	}

	past := now.AddDate(0, 0, -1)
	d.ExpiresAt = &past
	if !d.Expired(now) {
		t.Error("lapsed document should be expired")
	}

	future := now.AddDate(1, 0, 0)
	d.ExpiresAt = &future
	if d.Expired(now) {
		t.Error("current document should not be expired")
	}
}
