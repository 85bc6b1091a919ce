package services

import (
	"errors"
	"math"
	"testing"

	"github.com/ekazakov-source/statka/src/database"
	"github.com/ekazakov-source/statka/src/models"
)

func newTestLedger(t *testing.T) (LedgerService, models.Actor, int64) {
	t.Helper()
	setupTestDB(t)
	audit := NewAuditService()
	fx := NewFxService(audit, 1.10)
	svc := NewLedgerService(testPayouts(), fx, audit, nil)

	buyer := mustCreateUser(t, "buyer1", models.RoleBuyer)
	socID := mustCreateSoc(t, buyer.ID, "soc-main")
	cabID := mustCreateCabinet(t, socID, "cab-eur-agency", "EUR", models.CabinetTypeAgency, 6.0)
	return svc, buyer, cabID
}

func readRecord(t *testing.T, userID int64, date, geo, vertical string, cabID int64) models.Record {
	t.Helper()
	var rec models.Record
	err := database.DB.QueryRow(`
		SELECT user, user_id, date, geo, vertical, cabinet_id,
		       spend_raw, spend_currency, spend, spend_usd, deps, revenue, profit
		FROM records WHERE user_id=? AND date=? AND geo=? AND vertical=? AND cabinet_id=?`,
		userID, date, geo, vertical, cabID).Scan(
		&rec.User, &rec.UserID, &rec.Date, &rec.Geo, &rec.Vertical, &rec.CabinetID,
		&rec.SpendRaw, &rec.SpendCurrency, &rec.Spend, &rec.SpendSettlement,
		&rec.Deposits, &rec.Revenue, &rec.Profit)
	if err != nil {
		t.Fatalf("reading record (%s/%s/%s): %v", date, geo, vertical, err)
	}
	return rec
}

func countRecords(t *testing.T) int {
	t.Helper()
	var n int
	if err := database.DB.QueryRow("SELECT COUNT(*) FROM records").Scan(&n); err != nil {
		t.Fatalf("counting records: %v", err)
	}
	return n
}

func TestSubmitBatchAgencyCommissionAndFx(t *testing.T) {
	svc, buyer, cabID := newTestLedger(t)
	mustSetFxRate(t, "2025-08-01", "EUR", 1.10)

	result, err := svc.SubmitBatch(buyer, BatchInput{
		Date:      "2025-08-01",
		CabinetID: cabID,
		Entries: []BatchEntry{
			{Geo: "Germany", Vertical: "Slots", Spend: "100", Deposits: "5"},
		},
	})
	if err != nil {
		t.Fatalf("SubmitBatch: %v", err)
	}
	if result.Written != 1 || result.Skipped != 0 || result.Locked {
		t.Fatalf("unexpected result: %+v", result)
	}

	rec := readRecord(t, buyer.ID, "2025-08-01", "Germany", "Slots", cabID)
	// 100 EUR * 1.06 commission * 1.10 fx = 116.60 USD.
	if math.Abs(rec.SpendSettlement-116.6) > 1e-9 {
		t.Errorf("spend_usd = %v, want 116.6", rec.SpendSettlement)
	}
	if rec.Spend != 117 {
		t.Errorf("rounded spend = %d, want 117", rec.Spend)
	}
	if rec.SpendRaw != 100 || rec.SpendCurrency != "EUR" {
		t.Errorf("raw spend stored as %v %s, want 100 EUR", rec.SpendRaw, rec.SpendCurrency)
	}
	if rec.Revenue != 200 {
		t.Errorf("revenue = %d, want 200 (5 deps x CPA 40)", rec.Revenue)
	}
	if rec.Profit != 83 {
		t.Errorf("profit = %d, want 83 (200 - 117)", rec.Profit)
	}
	if rec.User != buyer.Username {
		t.Errorf("user = %q, want %q", rec.User, buyer.Username)
	}
}

func TestSubmitBatchFarmSkipsCommission(t *testing.T) {
	svc, buyer, _ := newTestLedger(t)
	socID := mustCreateSoc(t, buyer.ID, "soc-farm")
	farmCab := mustCreateCabinet(t, socID, "cab-eur-farm", "EUR", models.CabinetTypeFarm, 6.0)
	mustSetFxRate(t, "2025-08-01", "EUR", 1.10)

	_, err := svc.SubmitBatch(buyer, BatchInput{
		Date:      "2025-08-01",
		CabinetID: farmCab,
		Entries: []BatchEntry{
			{Geo: "Germany", Vertical: "Slots", Spend: "100", Deposits: "0"},
		},
	})
	if err != nil {
		t.Fatalf("SubmitBatch: %v", err)
	}

	rec := readRecord(t, buyer.ID, "2025-08-01", "Germany", "Slots", farmCab)
	// FARM spend converts without the commission factor: 100 * 1.10 = 110.
	if math.Abs(rec.SpendSettlement-110) > 1e-9 {
		t.Errorf("spend_usd = %v, want 110", rec.SpendSettlement)
	}
	if rec.Profit != -110 {
		t.Errorf("profit = %d, want -110", rec.Profit)
	}
}

func TestSubmitBatchFxFallback(t *testing.T) {
	svc, buyer, cabID := newTestLedger(t)
	// No fx_rates row at all: the configured fallback (1.10) applies.

	_, err := svc.SubmitBatch(buyer, BatchInput{
		Date:      "2025-08-01",
		CabinetID: cabID,
		Entries: []BatchEntry{
			{Geo: "Canada", Vertical: "Slots", Spend: "50", Deposits: "1"},
		},
	})
	if err != nil {
		t.Fatalf("SubmitBatch: %v", err)
	}

	rec := readRecord(t, buyer.ID, "2025-08-01", "Canada", "Slots", cabID)
	// 50 * 1.06 * 1.10 = 58.30.
	if math.Abs(rec.SpendSettlement-58.3) > 1e-9 {
		t.Errorf("spend_usd = %v, want 58.3", rec.SpendSettlement)
	}
}

func TestSubmitBatchUsesMostRecentRateOnOrBefore(t *testing.T) {
	svc, buyer, cabID := newTestLedger(t)
	mustSetFxRate(t, "2025-07-28", "EUR", 1.05)
	mustSetFxRate(t, "2025-08-02", "EUR", 1.20)

	_, err := svc.SubmitBatch(buyer, BatchInput{
		Date:      "2025-08-01",
		CabinetID: cabID,
		Entries: []BatchEntry{
			{Geo: "Canada", Vertical: "Crash", Spend: "200", Deposits: "2"},
		},
	})
	if err != nil {
		t.Fatalf("SubmitBatch: %v", err)
	}

	rec := readRecord(t, buyer.ID, "2025-08-01", "Canada", "Crash", cabID)
	// The 2025-08-02 rate postdates the batch: 200 * 1.06 * 1.05 = 222.60.
	if math.Abs(rec.SpendSettlement-222.6) > 1e-9 {
		t.Errorf("spend_usd = %v, want 222.6", rec.SpendSettlement)
	}
}

func TestSubmitBatchSkipsDisabledGeos(t *testing.T) {
	svc, buyer, cabID := newTestLedger(t)

	result, err := svc.SubmitBatch(buyer, BatchInput{
		Date:      "2025-08-01",
		CabinetID: cabID,
		Entries: []BatchEntry{
			{Geo: "Greece", Vertical: "Slots", Spend: "100", Deposits: "3"},
			{Geo: "Germany", Vertical: "Crash", Spend: "100", Deposits: "3"},
			{Geo: "Germany", Vertical: "Slots", Spend: "10", Deposits: "0"},
		},
	})
	if err != nil {
		t.Fatalf("SubmitBatch: %v", err)
	}
	if result.Skipped != 2 {
		t.Errorf("skipped = %d, want 2", result.Skipped)
	}
	if result.Written != 1 {
		t.Errorf("written = %d, want 1", result.Written)
	}
	if countRecords(t) != 1 {
		t.Errorf("record count = %d, want 1", countRecords(t))
	}
}

func TestSubmitBatchAllEntriesDisabled(t *testing.T) {
	svc, buyer, cabID := newTestLedger(t)

	result, err := svc.SubmitBatch(buyer, BatchInput{
		Date:      "2025-08-01",
		CabinetID: cabID,
		Entries: []BatchEntry{
			{Geo: "Greece", Vertical: "Crash", Spend: "100", Deposits: "3"},
		},
	})
	if err != nil {
		t.Fatalf("SubmitBatch: %v", err)
	}
	if result.Written != 0 || result.Skipped != 1 || result.Locked {
		t.Fatalf("unexpected result: %+v", result)
	}
	if countRecords(t) != 0 {
		t.Errorf("record count = %d, want 0", countRecords(t))
	}
}

func TestSubmitBatchIdempotentReplay(t *testing.T) {
	svc, buyer, cabID := newTestLedger(t)
	mustSetFxRate(t, "2025-08-01", "EUR", 1.10)

	input := BatchInput{
		Date:      "2025-08-01",
		CabinetID: cabID,
		Entries: []BatchEntry{
			{Geo: "Germany", Vertical: "Slots", Spend: "100", Deposits: "5"},
		},
	}
	if _, err := svc.SubmitBatch(buyer, input); err != nil {
		t.Fatalf("first SubmitBatch: %v", err)
	}

	// Resubmitting the same key replaces the row instead of duplicating it.
	input.Entries[0].Spend = "80"
	input.Entries[0].Deposits = "4"
	if _, err := svc.SubmitBatch(buyer, input); err != nil {
		t.Fatalf("second SubmitBatch: %v", err)
	}

	if countRecords(t) != 1 {
		t.Fatalf("record count = %d after replay, want 1", countRecords(t))
	}
	rec := readRecord(t, buyer.ID, "2025-08-01", "Germany", "Slots", cabID)
	if rec.SpendRaw != 80 || rec.Deposits != 4 {
		t.Errorf("replayed row not replaced: raw=%v deps=%d", rec.SpendRaw, rec.Deposits)
	}
	// 80 * 1.06 * 1.10 = 93.28 -> rounds to 93; revenue 4*40=160; profit 67.
	if rec.Spend != 93 || rec.Revenue != 160 || rec.Profit != 67 {
		t.Errorf("replayed metrics spend=%d revenue=%d profit=%d, want 93/160/67",
			rec.Spend, rec.Revenue, rec.Profit)
	}
}

func TestSubmitBatchLenientNumericInput(t *testing.T) {
	svc, buyer, cabID := newTestLedger(t)
	mustSetFxRate(t, "2025-08-01", "EUR", 1.0)

	_, err := svc.SubmitBatch(buyer, BatchInput{
		Date:      "2025-08-01",
		CabinetID: cabID,
		Entries: []BatchEntry{
			{Geo: "Germany", Vertical: "Slots", Spend: " 12,5 ", Deposits: "abc"},
		},
	})
	if err != nil {
		t.Fatalf("SubmitBatch: %v", err)
	}

	rec := readRecord(t, buyer.ID, "2025-08-01", "Germany", "Slots", cabID)
	if rec.SpendRaw != 12.5 {
		t.Errorf("spend_raw = %v, want 12.5 (comma decimal separator)", rec.SpendRaw)
	}
	if rec.Deposits != 0 {
		t.Errorf("deps = %d, want 0 (unparseable input falls back)", rec.Deposits)
	}
}

func TestSubmitBatchLockedDay(t *testing.T) {
	svc, buyer, cabID := newTestLedger(t)
	lead := mustCreateUser(t, "lead1", models.RoleTeamLead)

	if err := svc.LockDay(lead, buyer.ID, "2025-08-01"); err != nil {
		t.Fatalf("LockDay: %v", err)
	}

	result, err := svc.SubmitBatch(buyer, BatchInput{
		Date:      "2025-08-01",
		CabinetID: cabID,
		Entries: []BatchEntry{
			{Geo: "Germany", Vertical: "Slots", Spend: "100", Deposits: "5"},
		},
	})
	if err != nil {
		t.Fatalf("SubmitBatch on locked day: %v", err)
	}
	if !result.Locked || result.Written != 0 {
		t.Fatalf("unexpected result for locked day: %+v", result)
	}
	if countRecords(t) != 0 {
		t.Errorf("record count = %d, want 0 for locked day", countRecords(t))
	}

	// Other days stay writable.
	result, err = svc.SubmitBatch(buyer, BatchInput{
		Date:      "2025-08-02",
		CabinetID: cabID,
		Entries: []BatchEntry{
			{Geo: "Germany", Vertical: "Slots", Spend: "100", Deposits: "5"},
		},
	})
	if err != nil || result.Locked || result.Written != 1 {
		t.Fatalf("adjacent day blocked: result=%+v err=%v", result, err)
	}
}

func TestLockDayRequiresPrivilege(t *testing.T) {
	svc, buyer, _ := newTestLedger(t)

	err := svc.LockDay(buyer, buyer.ID, "2025-08-01")
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("LockDay as BUYER: err = %v, want ErrForbidden", err)
	}
}

func TestLockDayIdempotent(t *testing.T) {
	svc, buyer, _ := newTestLedger(t)
	lead := mustCreateUser(t, "lead1", models.RoleTeamLead)

	if err := svc.LockDay(lead, buyer.ID, "2025-08-01"); err != nil {
		t.Fatalf("first LockDay: %v", err)
	}
	if err := svc.LockDay(lead, buyer.ID, "2025-08-01"); err != nil {
		t.Fatalf("repeat LockDay: %v", err)
	}

	locked, err := svc.IsDayLocked(buyer.ID, "2025-08-01")
	if err != nil || !locked {
		t.Fatalf("IsDayLocked = %v, %v; want true", locked, err)
	}
	locked, err = svc.IsDayLocked(buyer.ID, "2025-08-02")
	if err != nil || locked {
		t.Fatalf("IsDayLocked for open day = %v, %v; want false", locked, err)
	}
}

func TestSubmitBatchForOtherUser(t *testing.T) {
	svc, buyer, cabID := newTestLedger(t)
	other := mustCreateUser(t, "buyer2", models.RoleBuyer)
	lead := mustCreateUser(t, "lead1", models.RoleTeamLead)

	input := BatchInput{
		UserID:    buyer.ID,
		Date:      "2025-08-01",
		CabinetID: cabID,
		Entries: []BatchEntry{
			{Geo: "Germany", Vertical: "Slots", Spend: "10", Deposits: "1"},
		},
	}

	if _, err := svc.SubmitBatch(other, input); !errors.Is(err, ErrForbidden) {
		t.Fatalf("BUYER submitting for someone else: err = %v, want ErrForbidden", err)
	}
	if _, err := svc.SubmitBatch(lead, input); err != nil {
		t.Fatalf("TEAM_LEAD submitting for buyer: %v", err)
	}
	rec := readRecord(t, buyer.ID, "2025-08-01", "Germany", "Slots", cabID)
	if rec.UserID != buyer.ID {
		t.Errorf("record attributed to user %d, want %d", rec.UserID, buyer.ID)
	}
}

func TestSubmitBatchInvalidDate(t *testing.T) {
	svc, buyer, cabID := newTestLedger(t)

	_, err := svc.SubmitBatch(buyer, BatchInput{
		Date:      "01.08.2025",
		CabinetID: cabID,
		Entries:   []BatchEntry{{Geo: "Germany", Vertical: "Slots", Spend: "1", Deposits: "1"}},
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestSubmitBatchUnknownCabinet(t *testing.T) {
	svc, buyer, _ := newTestLedger(t)

	_, err := svc.SubmitBatch(buyer, BatchInput{
		Date:      "2025-08-01",
		CabinetID: 999,
		Entries:   []BatchEntry{{Geo: "Germany", Vertical: "Slots", Spend: "1", Deposits: "1"}},
	})
	if !errors.Is(err, ErrCabinetNotFound) {
		t.Fatalf("err = %v, want ErrCabinetNotFound", err)
	}
}
