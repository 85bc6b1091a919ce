package services

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	cache "github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"

	"github.com/ekazakov-source/statka/src/database"
	"github.com/ekazakov-source/statka/src/logger"
	"github.com/ekazakov-source/statka/src/models"
	"github.com/ekazakov-source/statka/src/payouts"
	"github.com/ekazakov-source/statka/src/utils"
)

const timestampFormat = "2006-01-02 15:04:05"

type ledgerServiceImpl struct {
	payoutCfg   *payouts.Config
	fx          FxService
	audit       AuditService
	reportCache *cache.Cache
}

func NewLedgerService(payoutCfg *payouts.Config, fx FxService, audit AuditService, reportCache *cache.Cache) LedgerService {
	return &ledgerServiceImpl{
		payoutCfg:   payoutCfg,
		fx:          fx,
		audit:       audit,
		reportCache: reportCache,
	}
}

func (s *ledgerServiceImpl) IsDayLocked(userID int64, date string) (bool, error) {
	var one int
	err := database.DB.QueryRow(
		"SELECT 1 FROM day_locks WHERE user_id=? AND date=?", userID, date).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("error checking day lock for userID %d on %s: %w", userID, date, err)
	}
	return true, nil
}

// LockDay closes a (user, date) for further writes. Idempotent: locking an
// already-locked day is a no-op. Never auto-removed.
func (s *ledgerServiceImpl) LockDay(actor models.Actor, userID int64, date string) error {
	if !actor.Privileged() {
		return fmt.Errorf("%w: locking days requires TEAM_LEAD or ADMIN", ErrForbidden)
	}
	if !utils.ValidISODate(date) {
		return fmt.Errorf("%w: invalid date %q", ErrValidation, date)
	}

	_, err := database.DB.Exec(
		"INSERT OR IGNORE INTO day_locks (user_id, date) VALUES (?, ?)", userID, date)
	if err != nil {
		return fmt.Errorf("error locking day %s for userID %d: %w", date, userID, err)
	}

	s.audit.Record(actor.Username, "CLOSE_DAY", map[string]interface{}{
		"user_id": userID, "date": date,
	})
	return nil
}

// computedRow is one ledger line ready for upsert.
type computedRow struct {
	geo, vertical   string
	spendRaw        float64
	spend           int64 // legacy rounded settlement column
	spendSettlement float64
	deposits        int64
	revenue         int64
	profit          int64
}

// SubmitBatch runs the ledger write pipeline for one (user, date, cabinet)
// submission: CPA lookup (disabled GEOs are skipped), FX conversion,
// commission adjustment, derived revenue/profit, then an atomic full-row
// upsert of every valid entry. The day-lock check runs inside the same
// transaction as the upsert, so a lock can never slip in between check and
// write. A batch either fully commits or leaves the ledger untouched.
func (s *ledgerServiceImpl) SubmitBatch(actor models.Actor, input BatchInput) (*BatchResult, error) {
	startTime := time.Now()
	result, err := s.submitBatch(actor, input)
	metricBatchDuration.Observe(time.Since(startTime).Seconds())
	switch {
	case err != nil:
		metricBatchesSubmitted.WithLabelValues("error").Inc()
	case result.Locked:
		metricBatchesSubmitted.WithLabelValues("locked").Inc()
	case result.Written == 0:
		metricBatchesSubmitted.WithLabelValues("empty").Inc()
	default:
		metricBatchesSubmitted.WithLabelValues("written").Inc()
		metricRecordsWritten.Add(float64(result.Written))
	}
	return result, err
}

func (s *ledgerServiceImpl) submitBatch(actor models.Actor, input BatchInput) (*BatchResult, error) {
	if input.UserID == 0 {
		input.UserID = actor.ID
	}
	if input.UserID != actor.ID && !actor.Privileged() {
		return nil, fmt.Errorf("%w: submitting for another user requires TEAM_LEAD or ADMIN", ErrForbidden)
	}
	if !utils.ValidISODate(input.Date) {
		return nil, fmt.Errorf("%w: invalid date %q", ErrValidation, input.Date)
	}

	user, err := GetUser(input.UserID)
	if err != nil {
		return nil, err
	}
	cab, err := getCabinet(input.CabinetID)
	if err != nil {
		return nil, err
	}
	soc, err := getSoc(cab.SocID)
	if err != nil {
		return nil, err
	}
	if soc.UserID != input.UserID && !actor.Privileged() {
		return nil, fmt.Errorf("%w: cabinet %d does not belong to user %d", ErrForbidden, cab.ID, input.UserID)
	}

	fxRate, err := s.fx.Rate(input.Date, cab.Currency)
	if err != nil {
		return nil, err
	}

	// Commission is only meaningful for AGENCY cabinets; FARM spend passes
	// through unadjusted.
	factor := decimal.NewFromInt(1)
	if cab.CabType == models.CabinetTypeAgency {
		factor = factor.Add(decimal.NewFromFloat(cab.CommissionPct).Div(decimal.NewFromInt(100)))
	}
	fxDec := decimal.NewFromFloat(fxRate)

	var rows []computedRow
	skipped := 0
	for _, entry := range input.Entries {
		cpa, payable := s.payoutCfg.CPA(entry.Vertical, entry.Geo)
		if !payable {
			// GEO disabled for this vertical: no record, not an error.
			skipped++
			continue
		}

		spendRaw := utils.ParseLenientFloat(entry.Spend, 0)
		deposits := utils.ParseLenientInt(entry.Deposits, 0)

		spendSettlement := decimal.NewFromFloat(spendRaw).Mul(factor).Mul(fxDec).Round(4)
		spendRounded := spendSettlement.Round(0).IntPart()
		revenue := deposits * cpa
		profit := revenue - spendRounded

		rows = append(rows, computedRow{
			geo:             entry.Geo,
			vertical:        entry.Vertical,
			spendRaw:        spendRaw,
			spend:           spendRounded,
			spendSettlement: spendSettlement.InexactFloat64(),
			deposits:        deposits,
			revenue:         revenue,
			profit:          profit,
		})
	}

	result := &BatchResult{BatchID: uuid.NewString(), Skipped: skipped}
	if len(rows) == 0 {
		logger.L.Info("Batch contained no payable entries",
			"userID", input.UserID, "date", input.Date, "cabinetID", input.CabinetID, "skipped", skipped)
		return result, nil
	}

	dbTx, err := database.DB.Begin()
	if err != nil {
		return nil, fmt.Errorf("error beginning database transaction: %w", err)
	}
	defer dbTx.Rollback()

	// Lock check inside the write transaction: no row may be written for a
	// locked day, and no lock may appear between the check and the commit.
	var one int
	err = dbTx.QueryRow("SELECT 1 FROM day_locks WHERE user_id=? AND date=?", input.UserID, input.Date).Scan(&one)
	if err == nil {
		result.Locked = true
		logger.L.Info("Batch rejected by day lock",
			"userID", input.UserID, "date", input.Date, "cabinetID", input.CabinetID)
		return result, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("error checking day lock for userID %d on %s: %w", input.UserID, input.Date, err)
	}

	stmt, err := dbTx.Prepare(`
		INSERT INTO records (user, user_id, date, geo, vertical, cabinet_id,
		                     spend_raw, spend_currency, spend, spend_usd, deps, revenue, profit,
		                     created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, date, geo, vertical, cabinet_id) DO UPDATE SET
		  user=excluded.user,
		  spend_raw=excluded.spend_raw,
		  spend_currency=excluded.spend_currency,
		  spend=excluded.spend,
		  spend_usd=excluded.spend_usd,
		  deps=excluded.deps,
		  revenue=excluded.revenue,
		  profit=excluded.profit,
		  updated_at=excluded.updated_at
	`)
	if err != nil {
		return nil, fmt.Errorf("error preparing upsert statement: %w", err)
	}
	defer stmt.Close()

	nowTS := time.Now().UTC().Format(timestampFormat)
	for _, row := range rows {
		_, err := stmt.Exec(
			user.Username, input.UserID, input.Date, row.geo, row.vertical, input.CabinetID,
			row.spendRaw, cab.Currency, row.spend, row.spendSettlement, row.deposits, row.revenue, row.profit,
			nowTS, nowTS,
		)
		if err != nil {
			return nil, fmt.Errorf("error upserting record (geo=%s, vertical=%s): %w", row.geo, row.vertical, err)
		}
	}

	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing batch: %w", err)
	}

	result.Written = len(rows)
	s.audit.Record(actor.Username, "UPSERT_RECORDS", map[string]interface{}{
		"batch_id": result.BatchID, "date": input.Date,
		"cabinet_id": input.CabinetID, "user_id": input.UserID, "rows": len(rows),
	})
	if s.reportCache != nil {
		s.reportCache.Flush()
	}

	logger.L.Info("Batch committed",
		"batchID", result.BatchID, "userID", input.UserID, "date", input.Date,
		"cabinetID", input.CabinetID, "written", result.Written, "skipped", skipped)
	return result, nil
}
