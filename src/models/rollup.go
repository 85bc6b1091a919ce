package models

// Filter selects the ledger rows a rollup or export runs over. Zero-valued
// optional fields mean "all".
type Filter struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	UserID    int64  `json:"user_id,omitempty"`
	SocID     int64  `json:"soc_id,omitempty"`
	CabinetID int64  `json:"cabinet_id,omitempty"`
}

// MetricTotals holds summed raw metrics for one rollup bucket. CAC and ROI
// are always derived from these sums; per-row ratios are never averaged.
type MetricTotals struct {
	Spend    float64 `json:"spend"`
	Deposits int64   `json:"deps"`
	Revenue  int64   `json:"revenue"`
	Profit   int64   `json:"profit"`
}

// IsZero reports whether every metric in the bucket is zero. All-zero GEO
// breakdown rows are suppressed from rollup output.
func (m MetricTotals) IsZero() bool {
	return m.Spend == 0 && m.Deposits == 0 && m.Revenue == 0 && m.Profit == 0
}

// CAC is spend per deposit, computed from the bucket sums. Nil when the
// bucket has no deposits (undefined, not zero).
func (m MetricTotals) CAC() *float64 {
	if m.Deposits <= 0 {
		return nil
	}
	v := m.Spend / float64(m.Deposits)
	return &v
}

// ROI is (revenue-spend)*100/spend, computed from the bucket sums. Nil when
// the bucket has no spend.
func (m MetricTotals) ROI() *float64 {
	if m.Spend <= 0 {
		return nil
	}
	v := (float64(m.Revenue) - m.Spend) * 100.0 / m.Spend
	return &v
}

type GeoTotals struct {
	Geo string `json:"geo"`
	MetricTotals
}

type DayTotals struct {
	Date string `json:"date"`
	MetricTotals
	// LastUpdated is the most recent updated_at among the day's rows,
	// for "last saved" display.
	LastUpdated string `json:"last_updated,omitempty"`
}

// CabinetTotals is one (geo, cabinet) bucket, joined against cabinet and soc
// names for display.
type CabinetTotals struct {
	Geo         string `json:"geo"`
	CabinetID   int64  `json:"cabinet_id"`
	CabinetName string `json:"cabinet_name"`
	SocID       int64  `json:"soc_id"`
	SocName     string `json:"soc_name"`
	MetricTotals
}

// Series carries per-day chart data over a shared label axis. CAC and ROI
// entries are nil where undefined.
type Series struct {
	Spend    []float64  `json:"spend"`
	Profit   []int64    `json:"profit"`
	Deposits []int64    `json:"deps"`
	CAC      []*float64 `json:"cac"`
	ROI      []*float64 `json:"roi"`
}

type RollupResult struct {
	ByVertical    map[string]MetricTotals  `json:"by_vertical"`
	ByVerticalGeo map[string][]GeoTotals   `json:"by_vertical_geo"`
	ByGeoCabinet  map[string][]CabinetTotals `json:"by_geo_cabinet"`
	ByDay         []DayTotals              `json:"by_day"`
	Totals        MetricTotals             `json:"totals"`
	TotalsByGeo   []GeoTotals              `json:"totals_by_geo"`

	// Labels is the day axis shared by TotalSeries and VerticalSeries.
	Labels         []string          `json:"labels"`
	TotalSeries    Series            `json:"total_series"`
	VerticalSeries map[string]Series `json:"vertical_series"`
}

// ExportRow is one flat ledger line handed to the external CSV formatter.
type ExportRow struct {
	User            string  `json:"user"`
	Date            string  `json:"date"`
	Vertical        string  `json:"vertical"`
	Geo             string  `json:"geo"`
	CabinetID       int64   `json:"cabinet_id"`
	SpendRaw        float64 `json:"spend_raw"`
	SpendCurrency   string  `json:"spend_currency"`
	SpendSettlement float64 `json:"spend_usd"`
	Deposits        int64   `json:"deps"`
	Revenue         int64   `json:"revenue"`
	Profit          int64   `json:"profit"`
	UpdatedAt       string  `json:"updated_at"`
}
