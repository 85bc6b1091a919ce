package services

import (
	"path/filepath"
	"testing"

	"github.com/ekazakov-source/statka/src/database"
	"github.com/ekazakov-source/statka/src/logger"
	"github.com/ekazakov-source/statka/src/models"
	"github.com/ekazakov-source/statka/src/payouts"
)

// setupTestDB points the global handle at a fresh on-disk database under the
// test's temp dir. Each test gets an isolated schema.
func setupTestDB(t *testing.T) {
	t.Helper()
	logger.InitLogger("error")
	database.InitDB(filepath.Join(t.TempDir(), "test.db"))
}

func i64ptr(v int64) *int64 { return &v }

// testPayouts is a small fixed CPA table: two verticals, Germany disabled for
// Crash only, Greece disabled everywhere.
func testPayouts() *payouts.Config {
	return &payouts.Config{
		Version: "test",
		Verticals: map[string]map[string]*int64{
			"Slots": {
				"Germany": i64ptr(40),
				"Canada":  i64ptr(55),
				"Greece":  nil,
			},
			"Crash": {
				"Germany": nil,
				"Canada":  i64ptr(50),
				"Greece":  nil,
			},
		},
	}
}

func mustCreateUser(t *testing.T, username, role string) models.Actor {
	t.Helper()
	res, err := database.DB.Exec("INSERT INTO users (username, role) VALUES (?, ?)", username, role)
	if err != nil {
		t.Fatalf("creating user %s: %v", username, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("resolving user id: %v", err)
	}
	return models.Actor{ID: id, Username: username, Role: role}
}

func mustCreateSoc(t *testing.T, userID int64, name string) int64 {
	t.Helper()
	res, err := database.DB.Exec("INSERT INTO socs (user_id, name) VALUES (?, ?)", userID, name)
	if err != nil {
		t.Fatalf("creating soc %s: %v", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("resolving soc id: %v", err)
	}
	return id
}

func mustCreateCabinet(t *testing.T, socID int64, name, currency, cabType string, commissionPct float64) int64 {
	t.Helper()
	res, err := database.DB.Exec(
		"INSERT INTO cabinets (soc_id, name, currency, cab_type, commission_pct) VALUES (?, ?, ?, ?, ?)",
		socID, name, currency, cabType, commissionPct)
	if err != nil {
		t.Fatalf("creating cabinet %s: %v", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("resolving cabinet id: %v", err)
	}
	return id
}

func mustSetFxRate(t *testing.T, date, from string, rate float64) {
	t.Helper()
	_, err := database.DB.Exec(
		"INSERT INTO fx_rates (date, from_currency, to_currency, rate) VALUES (?, ?, ?, ?)",
		date, from, models.SettlementCurrency, rate)
	if err != nil {
		t.Fatalf("seeding fx rate: %v", err)
	}
}
