package models

// Settlement currency for the whole ledger. Raw spend is converted into it on
// write and every stored monetary aggregate is denominated in it.
const SettlementCurrency = "USD"

// User roles are capability levels, not an inheritance chain.
const (
	RoleBuyer    = "BUYER"
	RoleTeamLead = "TEAM_LEAD"
	RoleAdmin    = "ADMIN"
)

const (
	CabinetStatusActive = "ACTIVE"
	CabinetStatusBanned = "BANNED"
)

const (
	CabinetTypeAgency = "AGENCY"
	CabinetTypeFarm   = "FARM"
)

// DefaultCommissionPct applies when a cabinet is created without an explicit
// commission percentage. It is only meaningful for AGENCY cabinets.
const DefaultCommissionPct = 6.0

func ValidRole(role string) bool {
	return role == RoleBuyer || role == RoleTeamLead || role == RoleAdmin
}

func ValidCurrency(currency string) bool {
	return currency == "USD" || currency == "EUR"
}

func ValidCabinetStatus(status string) bool {
	return status == CabinetStatusActive || status == CabinetStatusBanned
}

func ValidCabinetType(cabType string) bool {
	return cabType == CabinetTypeAgency || cabType == CabinetTypeFarm
}

type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Role      string `json:"role"`
	IsActive  bool   `json:"is_active"`
	IsDeleted bool   `json:"is_deleted"`
	CreatedAt string `json:"created_at"`
}

// Soc is an account group owned by exactly one user. Closed is a soft state:
// no new cabinets may be created under a closed soc, but its data stays
// queryable.
type Soc struct {
	ID        int64  `json:"id"`
	UserID    int64  `json:"user_id"`
	Name      string `json:"name"`
	IsClosed  bool   `json:"is_closed"`
	CreatedAt string `json:"created_at"`
}

type Cabinet struct {
	ID            int64   `json:"id"`
	SocID         int64   `json:"soc_id"`
	Name          string  `json:"name"`
	Status        string  `json:"status"`
	Currency      string  `json:"currency"`
	CabType       string  `json:"cab_type"`
	CommissionPct float64 `json:"commission_pct"`
	CreatedAt     string  `json:"created_at"`
}

// FxRate converts FromCurrency into the settlement currency on a given day.
// At most one rate exists per (date, from, to); writes are last-write-wins.
type FxRate struct {
	ID           int64   `json:"id"`
	Date         string  `json:"date"`
	FromCurrency string  `json:"from_currency"`
	ToCurrency   string  `json:"to_currency"`
	Rate         float64 `json:"rate"`
}

// Record is one ledger line, uniquely identified by
// (user_id, date, geo, vertical, cabinet_id).
//
// SpendSettlement holds the precise converted value; Spend is the rounded
// legacy integer column kept for backward compatibility
// (Spend = round(SpendSettlement)). Profit is computed against the rounded
// value so that it matches the legacy ledger.
type Record struct {
	ID              int64   `json:"id"`
	User            string  `json:"user"`
	UserID          int64   `json:"user_id"`
	Date            string  `json:"date"`
	Geo             string  `json:"geo"`
	Vertical        string  `json:"vertical"`
	CabinetID       int64   `json:"cabinet_id"`
	SpendRaw        float64 `json:"spend_raw"`
	SpendCurrency   string  `json:"spend_currency"`
	Spend           int64   `json:"spend"`
	SpendSettlement float64 `json:"spend_usd"`
	Deposits        int64   `json:"deps"`
	Revenue         int64   `json:"revenue"`
	Profit          int64   `json:"profit"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
}

type AuditEntry struct {
	ID        int64  `json:"id"`
	Timestamp string `json:"ts"`
	ActorUser string `json:"actor_user"`
	Action    string `json:"action"`
	Payload   string `json:"payload"`
}

// Actor identifies the caller of a mutating operation, as resolved by the
// upstream auth collaborator.
type Actor struct {
	ID       int64
	Username string
	Role     string
}

// Privileged reports whether the actor may act on resources it does not own.
func (a Actor) Privileged() bool {
	return a.Role == RoleTeamLead || a.Role == RoleAdmin
}
