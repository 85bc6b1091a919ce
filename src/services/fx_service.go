package services

import (
	"database/sql"
	"fmt"

	"github.com/ekazakov-source/statka/src/database"
	"github.com/ekazakov-source/statka/src/logger"
	"github.com/ekazakov-source/statka/src/models"
	"github.com/ekazakov-source/statka/src/utils"
)

type fxServiceImpl struct {
	audit AuditService

	// fallbackRate is returned when no rate exists on or before the requested
	// date. Explicit and configurable so the fallback never hides inside
	// business logic (FX_FALLBACK_RATE, default 1.10).
	fallbackRate float64
}

func NewFxService(audit AuditService, fallbackRate float64) FxService {
	return &fxServiceImpl{audit: audit, fallbackRate: fallbackRate}
}

// SetRate upserts the rate for (date, fromCurrency, settlement currency).
// Last write wins on conflict.
func (s *fxServiceImpl) SetRate(actor models.Actor, date, fromCurrency string, rate float64) error {
	if !actor.Privileged() {
		return fmt.Errorf("%w: setting FX rates requires TEAM_LEAD or ADMIN", ErrForbidden)
	}
	if !utils.ValidISODate(date) {
		return fmt.Errorf("%w: invalid date %q", ErrValidation, date)
	}
	if !models.ValidCurrency(fromCurrency) || fromCurrency == models.SettlementCurrency {
		return fmt.Errorf("%w: invalid source currency %q", ErrValidation, fromCurrency)
	}
	if rate <= 0 {
		return fmt.Errorf("%w: rate must be positive, got %g", ErrValidation, rate)
	}

	_, err := database.DB.Exec(`
		INSERT INTO fx_rates (date, from_currency, to_currency, rate)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(date, from_currency, to_currency) DO UPDATE SET rate=excluded.rate
	`, date, fromCurrency, models.SettlementCurrency, rate)
	if err != nil {
		return fmt.Errorf("error upserting fx rate for %s on %s: %w", fromCurrency, date, err)
	}

	s.audit.Record(actor.Username, "FX_SET", map[string]interface{}{
		"date": date, "from": fromCurrency, "rate": rate,
	})
	return nil
}

// Rate resolves the conversion rate into the settlement currency for the
// given day: 1.0 when the currency already is the settlement currency,
// otherwise the most recent rate on or before the date, otherwise the
// configured fallback.
func (s *fxServiceImpl) Rate(date, fromCurrency string) (float64, error) {
	if fromCurrency == models.SettlementCurrency {
		return 1.0, nil
	}
	if !models.ValidCurrency(fromCurrency) {
		return 0, fmt.Errorf("%w: unknown currency %q", ErrValidation, fromCurrency)
	}

	var rate float64
	err := database.DB.QueryRow(`
		SELECT rate FROM fx_rates
		WHERE date<=? AND from_currency=? AND to_currency=?
		ORDER BY date DESC LIMIT 1
	`, date, fromCurrency, models.SettlementCurrency).Scan(&rate)
	if err == sql.ErrNoRows {
		logger.L.Warn("No FX rate on or before date, using fallback",
			"currency", fromCurrency, "date", date, "fallback", s.fallbackRate)
		return s.fallbackRate, nil
	}
	if err != nil {
		return 0, fmt.Errorf("error querying fx rate for %s on %s: %w", fromCurrency, date, err)
	}
	return rate, nil
}

func (s *fxServiceImpl) RecentRates(limit int) ([]models.FxRate, error) {
	if limit <= 0 {
		limit = 30
	}
	rows, err := database.DB.Query(
		"SELECT id, date, from_currency, to_currency, rate FROM fx_rates ORDER BY date DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("error querying recent fx rates: %w", err)
	}
	defer rows.Close()

	var rates []models.FxRate
	for rows.Next() {
		var r models.FxRate
		if err := rows.Scan(&r.ID, &r.Date, &r.FromCurrency, &r.ToCurrency, &r.Rate); err != nil {
			return nil, fmt.Errorf("error scanning fx rate row: %w", err)
		}
		rates = append(rates, r)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over fx rate rows: %w", err)
	}
	if rates == nil {
		rates = []models.FxRate{}
	}
	return rates, nil
}
