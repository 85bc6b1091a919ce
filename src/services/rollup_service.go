package services

import (
	"database/sql"
	"fmt"

	cache "github.com/patrickmn/go-cache"

	"github.com/ekazakov-source/statka/src/database"
	"github.com/ekazakov-source/statka/src/logger"
	"github.com/ekazakov-source/statka/src/models"
	"github.com/ekazakov-source/statka/src/utils"
)

type rollupServiceImpl struct {
	reportCache *cache.Cache
}

func NewRollupService(reportCache *cache.Cache) RollupService {
	return &rollupServiceImpl{reportCache: reportCache}
}

// buildWhere translates a filter into the shared WHERE clause used by every
// rollup query, so all groupings run over the identical row set. alias
// prefixes the record columns for joined queries.
func buildWhere(filter models.Filter, alias string) (string, []interface{}) {
	where := alias + "date>=? AND " + alias + "date<=?"
	params := []interface{}{filter.StartDate, filter.EndDate}
	if filter.UserID != 0 {
		where = alias + "user_id=? AND " + where
		params = append([]interface{}{filter.UserID}, params...)
	}
	if filter.SocID != 0 {
		where += " AND " + alias + "cabinet_id IN (SELECT id FROM cabinets WHERE soc_id=?)"
		params = append(params, filter.SocID)
	}
	if filter.CabinetID != 0 {
		where += " AND " + alias + "cabinet_id=?"
		params = append(params, filter.CabinetID)
	}
	return where, params
}

func validateFilter(filter models.Filter) error {
	if !utils.ValidISODate(filter.StartDate) {
		return fmt.Errorf("%w: invalid start date %q", ErrValidation, filter.StartDate)
	}
	if !utils.ValidISODate(filter.EndDate) {
		return fmt.Errorf("%w: invalid end date %q", ErrValidation, filter.EndDate)
	}
	if filter.StartDate > filter.EndDate {
		return fmt.Errorf("%w: start date %s after end date %s", ErrValidation, filter.StartDate, filter.EndDate)
	}
	return nil
}

func (s *rollupServiceImpl) Query(filter models.Filter) (*models.RollupResult, error) {
	if err := validateFilter(filter); err != nil {
		return nil, err
	}

	cacheKey := ""
	if s.reportCache != nil {
		if fp, err := utils.FingerprintJSON(filter); err == nil {
			cacheKey = "rollup_" + fp
			if cached, found := s.reportCache.Get(cacheKey); found {
				metricRollupQueries.WithLabelValues("hit").Inc()
				logger.L.Debug("Cache hit for rollup query", "filter", filter)
				return cached.(*models.RollupResult), nil
			}
		}
	}
	metricRollupQueries.WithLabelValues("miss").Inc()

	where, params := buildWhere(filter, "")
	result := &models.RollupResult{
		ByVertical:     make(map[string]models.MetricTotals),
		ByVerticalGeo:  make(map[string][]models.GeoTotals),
		ByGeoCabinet:   make(map[string][]models.CabinetTotals),
		VerticalSeries: make(map[string]models.Series),
	}

	// Every derived metric (CAC, ROI) is computed from the SUMs below, never
	// from per-row ratios.

	rows, err := database.DB.Query(`
		SELECT vertical,
		       SUM(spend_usd) AS spend, SUM(deps) AS deps,
		       SUM(revenue) AS revenue, SUM(profit) AS profit
		FROM records WHERE `+where+`
		GROUP BY vertical`, params...)
	if err != nil {
		return nil, fmt.Errorf("error querying by-vertical rollup: %w", err)
	}
	for rows.Next() {
		var vertical string
		var m models.MetricTotals
		if err := scanTotals(rows.Scan, &vertical, &m); err != nil {
			rows.Close()
			return nil, err
		}
		result.ByVertical[vertical] = m
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}

	rows, err = database.DB.Query(`
		SELECT vertical, geo,
		       SUM(spend_usd) AS spend, SUM(deps) AS deps,
		       SUM(revenue) AS revenue, SUM(profit) AS profit
		FROM records WHERE `+where+`
		GROUP BY vertical, geo
		ORDER BY vertical, geo`, params...)
	if err != nil {
		return nil, fmt.Errorf("error querying by-vertical-geo rollup: %w", err)
	}
	for rows.Next() {
		var vertical, geo string
		var m models.MetricTotals
		if err := scanTotals2(rows.Scan, &vertical, &geo, &m); err != nil {
			rows.Close()
			return nil, err
		}
		if m.IsZero() {
			// All-zero GEO rows add no information and must not render.
			continue
		}
		result.ByVerticalGeo[vertical] = append(result.ByVerticalGeo[vertical], models.GeoTotals{Geo: geo, MetricTotals: m})
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}

	var totals models.MetricTotals
	var spend sql.NullFloat64
	var deps, revenue, profit sql.NullInt64
	err = database.DB.QueryRow(`
		SELECT SUM(spend_usd), SUM(deps), SUM(revenue), SUM(profit)
		FROM records WHERE `+where, params...).Scan(&spend, &deps, &revenue, &profit)
	if err != nil {
		return nil, fmt.Errorf("error querying grand totals: %w", err)
	}
	totals.Spend = spend.Float64
	totals.Deposits = deps.Int64
	totals.Revenue = revenue.Int64
	totals.Profit = profit.Int64
	result.Totals = totals

	rows, err = database.DB.Query(`
		SELECT geo,
		       SUM(spend_usd) AS spend, SUM(deps) AS deps,
		       SUM(revenue) AS revenue, SUM(profit) AS profit
		FROM records WHERE `+where+`
		GROUP BY geo
		ORDER BY geo`, params...)
	if err != nil {
		return nil, fmt.Errorf("error querying by-geo rollup: %w", err)
	}
	for rows.Next() {
		var geo string
		var m models.MetricTotals
		if err := scanTotals(rows.Scan, &geo, &m); err != nil {
			rows.Close()
			return nil, err
		}
		if m.IsZero() {
			continue
		}
		result.TotalsByGeo = append(result.TotalsByGeo, models.GeoTotals{Geo: geo, MetricTotals: m})
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}

	rows, err = database.DB.Query(`
		SELECT date,
		       SUM(spend_usd) AS spend, SUM(deps) AS deps,
		       SUM(revenue) AS revenue, SUM(profit) AS profit,
		       MAX(updated_at) AS last
		FROM records WHERE `+where+`
		GROUP BY date
		ORDER BY date`, params...)
	if err != nil {
		return nil, fmt.Errorf("error querying by-day rollup: %w", err)
	}
	for rows.Next() {
		var day models.DayTotals
		var last sql.NullString
		var spendN sql.NullFloat64
		var depsN, revenueN, profitN sql.NullInt64
		if err := rows.Scan(&day.Date, &spendN, &depsN, &revenueN, &profitN, &last); err != nil {
			rows.Close()
			return nil, fmt.Errorf("error scanning by-day row: %w", err)
		}
		day.Spend = spendN.Float64
		day.Deposits = depsN.Int64
		day.Revenue = revenueN.Int64
		day.Profit = profitN.Int64
		day.LastUpdated = last.String
		result.ByDay = append(result.ByDay, day)
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}

	result.Labels = make([]string, 0, len(result.ByDay))
	for _, day := range result.ByDay {
		result.Labels = append(result.Labels, day.Date)
	}
	result.TotalSeries = packSeries(result.ByDay)

	perVerticalDay := make(map[string]map[string]models.MetricTotals)
	rows, err = database.DB.Query(`
		SELECT date, vertical,
		       SUM(spend_usd) AS spend, SUM(deps) AS deps,
		       SUM(revenue) AS revenue, SUM(profit) AS profit
		FROM records WHERE `+where+`
		GROUP BY date, vertical
		ORDER BY date, vertical`, params...)
	if err != nil {
		return nil, fmt.Errorf("error querying per-vertical day rollup: %w", err)
	}
	for rows.Next() {
		var date, vertical string
		var m models.MetricTotals
		if err := scanTotals2(rows.Scan, &date, &vertical, &m); err != nil {
			rows.Close()
			return nil, err
		}
		if perVerticalDay[vertical] == nil {
			perVerticalDay[vertical] = make(map[string]models.MetricTotals)
		}
		perVerticalDay[vertical][date] = m
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}
	for vertical, byDate := range perVerticalDay {
		// Align each vertical's series to the shared day axis; days without
		// rows for the vertical contribute zero buckets.
		aligned := make([]models.DayTotals, 0, len(result.Labels))
		for _, label := range result.Labels {
			aligned = append(aligned, models.DayTotals{Date: label, MetricTotals: byDate[label]})
		}
		result.VerticalSeries[vertical] = packSeries(aligned)
	}

	joinedWhere, joinedParams := buildWhere(filter, "r.")
	rows, err = database.DB.Query(`
		SELECT r.geo, r.cabinet_id, c.name, c.soc_id, s.name,
		       SUM(r.spend_usd) AS spend, SUM(r.deps) AS deps,
		       SUM(r.revenue) AS revenue, SUM(r.profit) AS profit
		FROM records r
		JOIN cabinets c ON c.id = r.cabinet_id
		JOIN socs s ON s.id = c.soc_id
		WHERE `+joinedWhere+`
		GROUP BY r.geo, r.cabinet_id
		HAVING SUM(r.spend_usd) > 0
		ORDER BY r.geo`, joinedParams...)
	if err != nil {
		return nil, fmt.Errorf("error querying geo-cabinet rollup: %w", err)
	}
	for rows.Next() {
		var ct models.CabinetTotals
		var spendN sql.NullFloat64
		var depsN, revenueN, profitN sql.NullInt64
		if err := rows.Scan(&ct.Geo, &ct.CabinetID, &ct.CabinetName, &ct.SocID, &ct.SocName,
			&spendN, &depsN, &revenueN, &profitN); err != nil {
			rows.Close()
			return nil, fmt.Errorf("error scanning geo-cabinet row: %w", err)
		}
		ct.Spend = spendN.Float64
		ct.Deposits = depsN.Int64
		ct.Revenue = revenueN.Int64
		ct.Profit = profitN.Int64
		result.ByGeoCabinet[ct.Geo] = append(result.ByGeoCabinet[ct.Geo], ct)
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}

	if s.reportCache != nil && cacheKey != "" {
		s.reportCache.Set(cacheKey, result, cache.DefaultExpiration)
	}
	return result, nil
}

// ExportRaw returns the flat ledger rows matching the filter, ordered for the
// external CSV formatter.
func (s *rollupServiceImpl) ExportRaw(filter models.Filter) ([]models.ExportRow, error) {
	if err := validateFilter(filter); err != nil {
		return nil, err
	}
	where, params := buildWhere(filter, "")

	rows, err := database.DB.Query(`
		SELECT user, date, vertical, geo, cabinet_id,
		       spend_raw, spend_currency, spend_usd, deps, revenue, profit, updated_at
		FROM records WHERE `+where+`
		ORDER BY date, user, vertical, geo`, params...)
	if err != nil {
		return nil, fmt.Errorf("error querying export rows: %w", err)
	}
	defer rows.Close()

	var out []models.ExportRow
	for rows.Next() {
		var r models.ExportRow
		var user, date, vertical, geo sql.NullString
		var spendRaw, spendUSD sql.NullFloat64
		var currency, updatedAt sql.NullString
		var cabinetID, deps, revenue, profit sql.NullInt64
		if err := rows.Scan(&user, &date, &vertical, &geo, &cabinetID,
			&spendRaw, &currency, &spendUSD, &deps, &revenue, &profit, &updatedAt); err != nil {
			return nil, fmt.Errorf("error scanning export row: %w", err)
		}
		r.User = user.String
		r.Date = date.String
		r.Vertical = vertical.String
		r.Geo = geo.String
		r.CabinetID = cabinetID.Int64
		r.SpendRaw = spendRaw.Float64
		r.SpendCurrency = currency.String
		r.SpendSettlement = spendUSD.Float64
		r.Deposits = deps.Int64
		r.Revenue = revenue.Int64
		r.Profit = profit.Int64
		r.UpdatedAt = updatedAt.String
		out = append(out, r)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over export rows: %w", err)
	}
	if out == nil {
		out = []models.ExportRow{}
	}
	return out, nil
}

// packSeries derives the chart series for a day axis. CAC and ROI come from
// each day's summed metrics and are nil where undefined (no deposits / no
// spend respectively).
func packSeries(days []models.DayTotals) models.Series {
	series := models.Series{
		Spend:    make([]float64, 0, len(days)),
		Profit:   make([]int64, 0, len(days)),
		Deposits: make([]int64, 0, len(days)),
		CAC:      make([]*float64, 0, len(days)),
		ROI:      make([]*float64, 0, len(days)),
	}
	for _, day := range days {
		series.Spend = append(series.Spend, day.Spend)
		series.Profit = append(series.Profit, day.Profit)
		series.Deposits = append(series.Deposits, day.Deposits)
		series.CAC = append(series.CAC, day.CAC())
		series.ROI = append(series.ROI, day.ROI())
	}
	return series
}

type scanFunc func(dest ...interface{}) error

func scanTotals(scan scanFunc, key *string, m *models.MetricTotals) error {
	var spend sql.NullFloat64
	var deps, revenue, profit sql.NullInt64
	if err := scan(key, &spend, &deps, &revenue, &profit); err != nil {
		return fmt.Errorf("error scanning rollup row: %w", err)
	}
	m.Spend = spend.Float64
	m.Deposits = deps.Int64
	m.Revenue = revenue.Int64
	m.Profit = profit.Int64
	return nil
}

func scanTotals2(scan scanFunc, key1, key2 *string, m *models.MetricTotals) error {
	var spend sql.NullFloat64
	var deps, revenue, profit sql.NullInt64
	if err := scan(key1, key2, &spend, &deps, &revenue, &profit); err != nil {
		return fmt.Errorf("error scanning rollup row: %w", err)
	}
	m.Spend = spend.Float64
	m.Deposits = deps.Int64
	m.Revenue = revenue.Int64
	m.Profit = profit.Int64
	return nil
}

func closeRows(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("error iterating over rollup rows: %w", err)
	}
	return rows.Close()
}
