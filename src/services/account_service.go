package services

import (
	"database/sql"
	"fmt"
	"strings"

	cache "github.com/patrickmn/go-cache"

	"github.com/ekazakov-source/statka/src/database"
	"github.com/ekazakov-source/statka/src/models"
)

type accountServiceImpl struct {
	audit       AuditService
	reportCache *cache.Cache
}

func NewAccountService(audit AuditService, reportCache *cache.Cache) AccountService {
	return &accountServiceImpl{audit: audit, reportCache: reportCache}
}

// invalidate drops every cached rollup. Account mutations can change how
// rows group (soc membership, cabinet naming), so the whole report cache goes.
func (s *accountServiceImpl) invalidate() {
	if s.reportCache != nil {
		s.reportCache.Flush()
	}
}

// ---- Users ----

func (s *accountServiceImpl) CreateUser(actor models.Actor, username, role string) (*models.User, error) {
	if !actor.Privileged() {
		return nil, fmt.Errorf("%w: creating users requires TEAM_LEAD or ADMIN", ErrForbidden)
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrValidation)
	}
	if !models.ValidRole(role) {
		return nil, fmt.Errorf("%w: invalid role %q", ErrValidation, role)
	}

	res, err := database.DB.Exec(
		"INSERT INTO users (username, role) VALUES (?, ?)", username, role)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique constraint failed") {
			return nil, fmt.Errorf("%w: username %q already exists", ErrValidation, username)
		}
		return nil, fmt.Errorf("error inserting user %q: %w", username, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("error resolving new user id: %w", err)
	}

	s.audit.Record(actor.Username, "ADD_USER", map[string]interface{}{
		"username": username, "role": role,
	})
	return &models.User{ID: id, Username: username, Role: role, IsActive: true}, nil
}

func (s *accountServiceImpl) SetUserActive(actor models.Actor, userID int64, active bool) error {
	if !actor.Privileged() {
		return fmt.Errorf("%w: toggling users requires TEAM_LEAD or ADMIN", ErrForbidden)
	}
	res, err := database.DB.Exec(
		"UPDATE users SET is_active=? WHERE id=? AND is_deleted=0", boolToInt(active), userID)
	if err != nil {
		return fmt.Errorf("error toggling user %d: %w", userID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: id %d", ErrUserNotFound, userID)
	}

	s.audit.Record(actor.Username, "TOGGLE_USER", map[string]interface{}{
		"id": userID, "is_active": active,
	})
	return nil
}

// DeleteUser marks the user deleted. Groups, cabinets and records stay in
// place; whether orphaned data should be reassigned or removed is an open
// product decision.
func (s *accountServiceImpl) DeleteUser(actor models.Actor, userID int64) error {
	if actor.Role != models.RoleAdmin {
		return fmt.Errorf("%w: deleting users requires ADMIN", ErrForbidden)
	}
	if actor.ID == userID {
		return fmt.Errorf("%w: cannot delete own account", ErrValidation)
	}

	var username string
	err := database.DB.QueryRow("SELECT username FROM users WHERE id=? AND is_deleted=0", userID).Scan(&username)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: id %d", ErrUserNotFound, userID)
	}
	if err != nil {
		return fmt.Errorf("error looking up user %d: %w", userID, err)
	}

	_, err = database.DB.Exec("UPDATE users SET is_deleted=1, is_active=0 WHERE id=?", userID)
	if err != nil {
		return fmt.Errorf("error deleting user %d: %w", userID, err)
	}

	s.audit.Record(actor.Username, "DELETE_USER", map[string]interface{}{
		"id": userID, "username": username,
	})
	return nil
}

func (s *accountServiceImpl) ListUsers(actor models.Actor) ([]models.User, error) {
	if !actor.Privileged() {
		return nil, fmt.Errorf("%w: listing users requires TEAM_LEAD or ADMIN", ErrForbidden)
	}
	rows, err := database.DB.Query(
		"SELECT id, username, role, is_active, is_deleted, created_at FROM users WHERE is_deleted=0 ORDER BY username")
	if err != nil {
		return nil, fmt.Errorf("error querying users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Role, &u.IsActive, &u.IsDeleted, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning user row: %w", err)
		}
		users = append(users, u)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over user rows: %w", err)
	}
	if users == nil {
		users = []models.User{}
	}
	return users, nil
}

// GetUser resolves a user by id. Used by the handlers to turn the upstream
// caller id into an Actor.
func GetUser(userID int64) (*models.User, error) {
	var u models.User
	err := database.DB.QueryRow(
		"SELECT id, username, role, is_active, is_deleted, created_at FROM users WHERE id=? AND is_deleted=0",
		userID).Scan(&u.ID, &u.Username, &u.Role, &u.IsActive, &u.IsDeleted, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: id %d", ErrUserNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("error looking up user %d: %w", userID, err)
	}
	return &u, nil
}

// ---- Socs ----

func (s *accountServiceImpl) CreateSoc(actor models.Actor, name string) (*models.Soc, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: soc name is required", ErrValidation)
	}

	res, err := database.DB.Exec("INSERT INTO socs (user_id, name) VALUES (?, ?)", actor.ID, name)
	if err != nil {
		return nil, fmt.Errorf("error inserting soc %q: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("error resolving new soc id: %w", err)
	}

	s.audit.Record(actor.Username, "ADD_SOC", map[string]interface{}{"name": name})
	s.invalidate()
	return &models.Soc{ID: id, UserID: actor.ID, Name: name}, nil
}

func (s *accountServiceImpl) UpdateSoc(actor models.Actor, socID int64, name string, isClosed bool) error {
	soc, err := getSoc(socID)
	if err != nil {
		return err
	}
	if soc.UserID != actor.ID && !actor.Privileged() {
		return fmt.Errorf("%w: soc %d is not owned by caller", ErrForbidden, socID)
	}

	name = strings.TrimSpace(name)
	if name != "" {
		if _, err := database.DB.Exec("UPDATE socs SET name=? WHERE id=?", name, socID); err != nil {
			return fmt.Errorf("error renaming soc %d: %w", socID, err)
		}
	}
	if _, err := database.DB.Exec("UPDATE socs SET is_closed=? WHERE id=?", boolToInt(isClosed), socID); err != nil {
		return fmt.Errorf("error updating soc %d: %w", socID, err)
	}

	s.audit.Record(actor.Username, "UPDATE_SOC", map[string]interface{}{
		"soc_id": socID, "name": name, "is_closed": isClosed,
	})
	s.invalidate()
	return nil
}

func (s *accountServiceImpl) ListSocs(actor models.Actor, userID int64) ([]models.Soc, error) {
	if userID == 0 {
		userID = actor.ID
	}
	if userID != actor.ID && !actor.Privileged() {
		return nil, fmt.Errorf("%w: listing another user's socs requires TEAM_LEAD or ADMIN", ErrForbidden)
	}

	rows, err := database.DB.Query(
		"SELECT id, user_id, name, is_closed, created_at FROM socs WHERE user_id=? ORDER BY name", userID)
	if err != nil {
		return nil, fmt.Errorf("error querying socs for userID %d: %w", userID, err)
	}
	defer rows.Close()

	var socs []models.Soc
	for rows.Next() {
		var soc models.Soc
		if err := rows.Scan(&soc.ID, &soc.UserID, &soc.Name, &soc.IsClosed, &soc.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning soc row: %w", err)
		}
		socs = append(socs, soc)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over soc rows: %w", err)
	}
	if socs == nil {
		socs = []models.Soc{}
	}
	return socs, nil
}

// ---- Cabinets ----

func (s *accountServiceImpl) CreateCabinet(actor models.Actor, socID int64, name, currency, cabType string, commissionPct float64) (*models.Cabinet, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: cabinet name is required", ErrValidation)
	}
	if !models.ValidCurrency(currency) {
		return nil, fmt.Errorf("%w: invalid currency %q", ErrValidation, currency)
	}
	if !models.ValidCabinetType(cabType) {
		return nil, fmt.Errorf("%w: invalid cabinet type %q", ErrValidation, cabType)
	}
	if commissionPct < 0 {
		return nil, fmt.Errorf("%w: commission must be non-negative, got %g", ErrValidation, commissionPct)
	}

	soc, err := getSoc(socID)
	if err != nil {
		return nil, err
	}
	if soc.UserID != actor.ID && !actor.Privileged() {
		return nil, fmt.Errorf("%w: soc %d is not owned by caller", ErrForbidden, socID)
	}
	if soc.IsClosed {
		return nil, fmt.Errorf("%w: soc %d", ErrSocClosed, socID)
	}

	res, err := database.DB.Exec(`
		INSERT INTO cabinets (soc_id, name, currency, cab_type, commission_pct)
		VALUES (?, ?, ?, ?, ?)
	`, socID, name, currency, cabType, commissionPct)
	if err != nil {
		return nil, fmt.Errorf("error inserting cabinet %q: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("error resolving new cabinet id: %w", err)
	}

	s.audit.Record(actor.Username, "ADD_CAB", map[string]interface{}{
		"soc_id": socID, "name": name,
	})
	s.invalidate()
	return &models.Cabinet{
		ID: id, SocID: socID, Name: name,
		Status: models.CabinetStatusActive, Currency: currency,
		CabType: cabType, CommissionPct: commissionPct,
	}, nil
}

func (s *accountServiceImpl) UpdateCabinet(actor models.Actor, cabinetID int64, update CabinetUpdate) error {
	cab, err := getCabinet(cabinetID)
	if err != nil {
		return err
	}
	soc, err := getSoc(cab.SocID)
	if err != nil {
		return err
	}
	if soc.UserID != actor.ID && !actor.Privileged() {
		return fmt.Errorf("%w: cabinet %d is not owned by caller", ErrForbidden, cabinetID)
	}

	if update.Status != nil && !models.ValidCabinetStatus(*update.Status) {
		return fmt.Errorf("%w: invalid cabinet status %q", ErrValidation, *update.Status)
	}
	if update.Currency != nil && !models.ValidCurrency(*update.Currency) {
		return fmt.Errorf("%w: invalid currency %q", ErrValidation, *update.Currency)
	}
	if update.CabType != nil && !models.ValidCabinetType(*update.CabType) {
		return fmt.Errorf("%w: invalid cabinet type %q", ErrValidation, *update.CabType)
	}
	if update.CommissionPct != nil && *update.CommissionPct < 0 {
		return fmt.Errorf("%w: commission must be non-negative, got %g", ErrValidation, *update.CommissionPct)
	}

	if update.Status != nil {
		if _, err := database.DB.Exec("UPDATE cabinets SET status=? WHERE id=?", *update.Status, cabinetID); err != nil {
			return fmt.Errorf("error updating cabinet %d status: %w", cabinetID, err)
		}
	}
	if update.Currency != nil {
		if _, err := database.DB.Exec("UPDATE cabinets SET currency=? WHERE id=?", *update.Currency, cabinetID); err != nil {
			return fmt.Errorf("error updating cabinet %d currency: %w", cabinetID, err)
		}
	}
	if update.CabType != nil {
		pct := cab.CommissionPct
		if update.CommissionPct != nil {
			pct = *update.CommissionPct
		}
		if _, err := database.DB.Exec("UPDATE cabinets SET cab_type=?, commission_pct=? WHERE id=?", *update.CabType, pct, cabinetID); err != nil {
			return fmt.Errorf("error updating cabinet %d type: %w", cabinetID, err)
		}
	} else if update.CommissionPct != nil {
		if _, err := database.DB.Exec("UPDATE cabinets SET commission_pct=? WHERE id=?", *update.CommissionPct, cabinetID); err != nil {
			return fmt.Errorf("error updating cabinet %d commission: %w", cabinetID, err)
		}
	}

	s.audit.Record(actor.Username, "UPDATE_CAB", map[string]interface{}{"cab_id": cabinetID})
	s.invalidate()
	return nil
}

func (s *accountServiceImpl) ListCabinets(actor models.Actor, socID int64) ([]models.Cabinet, error) {
	soc, err := getSoc(socID)
	if err != nil {
		return nil, err
	}
	if soc.UserID != actor.ID && !actor.Privileged() {
		return nil, fmt.Errorf("%w: soc %d is not owned by caller", ErrForbidden, socID)
	}

	rows, err := database.DB.Query(`
		SELECT id, soc_id, name, status, currency, cab_type, commission_pct, created_at
		FROM cabinets WHERE soc_id=? ORDER BY name`, socID)
	if err != nil {
		return nil, fmt.Errorf("error querying cabinets for socID %d: %w", socID, err)
	}
	defer rows.Close()

	var cabs []models.Cabinet
	for rows.Next() {
		var c models.Cabinet
		if err := rows.Scan(&c.ID, &c.SocID, &c.Name, &c.Status, &c.Currency, &c.CabType, &c.CommissionPct, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning cabinet row: %w", err)
		}
		cabs = append(cabs, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over cabinet rows: %w", err)
	}
	if cabs == nil {
		cabs = []models.Cabinet{}
	}
	return cabs, nil
}

// ---- shared lookups ----

func getSoc(socID int64) (*models.Soc, error) {
	var soc models.Soc
	err := database.DB.QueryRow(
		"SELECT id, user_id, name, is_closed, created_at FROM socs WHERE id=?", socID).
		Scan(&soc.ID, &soc.UserID, &soc.Name, &soc.IsClosed, &soc.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: id %d", ErrSocNotFound, socID)
	}
	if err != nil {
		return nil, fmt.Errorf("error looking up soc %d: %w", socID, err)
	}
	return &soc, nil
}

func getCabinet(cabinetID int64) (*models.Cabinet, error) {
	var c models.Cabinet
	err := database.DB.QueryRow(`
		SELECT id, soc_id, name, status, currency, cab_type, commission_pct, created_at
		FROM cabinets WHERE id=?`, cabinetID).
		Scan(&c.ID, &c.SocID, &c.Name, &c.Status, &c.Currency, &c.CabType, &c.CommissionPct, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: id %d", ErrCabinetNotFound, cabinetID)
	}
	if err != nil {
		return nil, fmt.Errorf("error looking up cabinet %d: %w", cabinetID, err)
	}
	return &c, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
