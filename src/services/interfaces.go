package services

import (
	"errors"

	"github.com/ekazakov-source/statka/src/models"
)

// Error taxonomy. Every failure a service returns wraps one of these kinds so
// the presentation layer can map it to an appropriate message; handlers match
// with errors.Is.
var (
	// ErrValidation covers invalid enum fields, malformed dates and other
	// synchronously rejected input. No partial write occurs.
	ErrValidation = errors.New("validation failed")

	ErrUserNotFound    = errors.New("user not found")
	ErrSocNotFound     = errors.New("account group not found")
	ErrCabinetNotFound = errors.New("cabinet not found")

	// ErrSocClosed rejects new cabinets under a closed account group.
	ErrSocClosed = errors.New("account group is closed")

	// ErrForbidden rejects mutations by callers that neither own the resource
	// nor hold a privileged role.
	ErrForbidden = errors.New("forbidden")
)

// BatchEntry is one submitted (GEO, vertical) line. Spend and Deposits arrive
// as free-text operator input and are coerced leniently; see
// utils.ParseLenientFloat.
type BatchEntry struct {
	Geo      string `json:"geo"`
	Vertical string `json:"vertical"`
	Spend    string `json:"spend"`
	Deposits string `json:"deposits"`
}

// BatchInput is a full submission for one (user, date, cabinet).
type BatchInput struct {
	UserID    int64
	Date      string
	CabinetID int64
	Entries   []BatchEntry
}

// BatchResult reports the outcome of a batch submission. A locked day is not
// an error at this layer: Locked is set and nothing is written.
type BatchResult struct {
	BatchID string `json:"batch_id"`
	Written int    `json:"written"`
	Skipped int    `json:"skipped"`
	Locked  bool   `json:"locked"`
}

// LedgerService is the ledger write path: day locks and the batch upsert
// pipeline.
type LedgerService interface {
	SubmitBatch(actor models.Actor, input BatchInput) (*BatchResult, error)
	IsDayLocked(userID int64, date string) (bool, error)
	LockDay(actor models.Actor, userID int64, date string) error
}

// RollupService is the read side: multi-dimensional sums over the ledger and
// the flat export feed.
type RollupService interface {
	Query(filter models.Filter) (*models.RollupResult, error)
	ExportRaw(filter models.Filter) ([]models.ExportRow, error)
}

type AccountService interface {
	CreateUser(actor models.Actor, username, role string) (*models.User, error)
	SetUserActive(actor models.Actor, userID int64, active bool) error
	DeleteUser(actor models.Actor, userID int64) error
	ListUsers(actor models.Actor) ([]models.User, error)

	CreateSoc(actor models.Actor, name string) (*models.Soc, error)
	UpdateSoc(actor models.Actor, socID int64, name string, isClosed bool) error
	ListSocs(actor models.Actor, userID int64) ([]models.Soc, error)

	CreateCabinet(actor models.Actor, socID int64, name, currency, cabType string, commissionPct float64) (*models.Cabinet, error)
	UpdateCabinet(actor models.Actor, cabinetID int64, update CabinetUpdate) error
	ListCabinets(actor models.Actor, socID int64) ([]models.Cabinet, error)
}

// CabinetUpdate carries the optional cabinet fields; nil means unchanged.
// CommissionPct is applied together with CabType, matching the way the
// commission only has meaning relative to the account type.
type CabinetUpdate struct {
	Status        *string  `json:"status,omitempty"`
	Currency      *string  `json:"currency,omitempty"`
	CabType       *string  `json:"cab_type,omitempty"`
	CommissionPct *float64 `json:"commission_pct,omitempty"`
}

type FxService interface {
	SetRate(actor models.Actor, date, fromCurrency string, rate float64) error
	Rate(date, fromCurrency string) (float64, error)
	RecentRates(limit int) ([]models.FxRate, error)
}

// AuditService appends to the immutable audit log. Failures are swallowed;
// audit writes must never abort the caller's primary operation.
type AuditService interface {
	Record(actorUser, action string, payload map[string]interface{})
}
