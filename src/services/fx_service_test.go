package services

import (
	"errors"
	"testing"

	"github.com/ekazakov-source/statka/src/models"
)

func newTestFx(t *testing.T) (FxService, models.Actor, models.Actor) {
	t.Helper()
	setupTestDB(t)
	svc := NewFxService(NewAuditService(), 1.10)
	lead := mustCreateUser(t, "lead1", models.RoleTeamLead)
	buyer := mustCreateUser(t, "buyer1", models.RoleBuyer)
	return svc, lead, buyer
}

func TestSetRateValidation(t *testing.T) {
	svc, lead, buyer := newTestFx(t)

	if err := svc.SetRate(buyer, "2025-08-01", "EUR", 1.08); !errors.Is(err, ErrForbidden) {
		t.Errorf("BUYER setting rate: err = %v, want ErrForbidden", err)
	}
	if err := svc.SetRate(lead, "01.08.2025", "EUR", 1.08); !errors.Is(err, ErrValidation) {
		t.Errorf("bad date: err = %v, want ErrValidation", err)
	}
	if err := svc.SetRate(lead, "2025-08-01", "USD", 1.08); !errors.Is(err, ErrValidation) {
		t.Errorf("settlement currency as source: err = %v, want ErrValidation", err)
	}
	if err := svc.SetRate(lead, "2025-08-01", "EUR", 0); !errors.Is(err, ErrValidation) {
		t.Errorf("zero rate: err = %v, want ErrValidation", err)
	}
	if err := svc.SetRate(lead, "2025-08-01", "EUR", 1.08); err != nil {
		t.Fatalf("SetRate: %v", err)
	}
}

func TestSetRateLastWriteWins(t *testing.T) {
	svc, lead, _ := newTestFx(t)

	if err := svc.SetRate(lead, "2025-08-01", "EUR", 1.08); err != nil {
		t.Fatalf("first SetRate: %v", err)
	}
	if err := svc.SetRate(lead, "2025-08-01", "EUR", 1.12); err != nil {
		t.Fatalf("second SetRate: %v", err)
	}

	rate, err := svc.Rate("2025-08-01", "EUR")
	if err != nil {
		t.Fatalf("Rate: %v", err)
	}
	if rate != 1.12 {
		t.Errorf("rate = %v, want 1.12 (last write wins)", rate)
	}
}

func TestRateResolution(t *testing.T) {
	svc, lead, _ := newTestFx(t)

	if err := svc.SetRate(lead, "2025-08-01", "EUR", 1.05); err != nil {
		t.Fatalf("SetRate: %v", err)
	}
	if err := svc.SetRate(lead, "2025-08-10", "EUR", 1.20); err != nil {
		t.Fatalf("SetRate: %v", err)
	}

	cases := []struct {
		name     string
		date     string
		currency string
		want     float64
	}{
		{"settlement currency is identity", "2025-08-05", "USD", 1.0},
		{"exact day", "2025-08-01", "EUR", 1.05},
		{"most recent on or before", "2025-08-05", "EUR", 1.05},
		{"later rate once reached", "2025-08-10", "EUR", 1.20},
		{"fallback before any rate", "2025-07-01", "EUR", 1.10},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := svc.Rate(tc.date, tc.currency)
			if err != nil {
				t.Fatalf("Rate(%s, %s): %v", tc.date, tc.currency, err)
			}
			if got != tc.want {
				t.Errorf("Rate(%s, %s) = %v, want %v", tc.date, tc.currency, got, tc.want)
			}
		})
	}

	if _, err := svc.Rate("2025-08-05", "GBP"); !errors.Is(err, ErrValidation) {
		t.Errorf("unknown currency: err = %v, want ErrValidation", err)
	}
}

func TestRecentRates(t *testing.T) {
	svc, lead, _ := newTestFx(t)

	for _, day := range []string{"2025-08-01", "2025-08-02", "2025-08-03"} {
		if err := svc.SetRate(lead, day, "EUR", 1.10); err != nil {
			t.Fatalf("SetRate(%s): %v", day, err)
		}
	}

	rates, err := svc.RecentRates(2)
	if err != nil {
		t.Fatalf("RecentRates: %v", err)
	}
	if len(rates) != 2 {
		t.Fatalf("len(rates) = %d, want 2", len(rates))
	}
	if rates[0].Date != "2025-08-03" {
		t.Errorf("newest rate first, got %s", rates[0].Date)
	}
}
