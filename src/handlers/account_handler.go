package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/ekazakov-source/statka/src/services"
	"github.com/ekazakov-source/statka/src/utils"
)

type AccountHandler struct {
	accountService services.AccountService
	fxService      services.FxService
}

func NewAccountHandler(accountService services.AccountService, fxService services.FxService) *AccountHandler {
	return &AccountHandler{accountService: accountService, fxService: fxService}
}

// ---- Users ----

type createUserRequest struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

func (h *AccountHandler) HandleCreateUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	user, err := h.accountService.CreateUser(actor, req.Username, req.Role)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

type toggleUserRequest struct {
	UserID   int64 `json:"user_id"`
	IsActive bool  `json:"is_active"`
}

func (h *AccountHandler) HandleToggleUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req toggleUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.accountService.SetUserActive(actor, req.UserID, req.IsActive); err != nil {
		sendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"user_id": req.UserID, "is_active": req.IsActive})
}

func (h *AccountHandler) HandleDeleteUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	userID := queryInt64(r, "id")
	if err := h.accountService.DeleteUser(actor, userID); err != nil {
		sendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"user_id": userID, "deleted": true})
}

func (h *AccountHandler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	users, err := h.accountService.ListUsers(actor)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// ---- Socs ----

type createSocRequest struct {
	Name string `json:"name"`
}

func (h *AccountHandler) HandleCreateSoc(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req createSocRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	soc, err := h.accountService.CreateSoc(actor, req.Name)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, soc)
}

type updateSocRequest struct {
	SocID    int64  `json:"soc_id"`
	Name     string `json:"name"`
	IsClosed bool   `json:"is_closed"`
}

func (h *AccountHandler) HandleUpdateSoc(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req updateSocRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.accountService.UpdateSoc(actor, req.SocID, req.Name, req.IsClosed); err != nil {
		sendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"soc_id": req.SocID})
}

func (h *AccountHandler) HandleListSocs(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	socs, err := h.accountService.ListSocs(actor, queryInt64(r, "user_id"))
	if err != nil {
		sendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, socs)
}

// ---- Cabinets ----

type createCabinetRequest struct {
	SocID         int64    `json:"soc_id"`
	Name          string   `json:"name"`
	Currency      string   `json:"currency"`
	CabType       string   `json:"cab_type"`
	CommissionPct *float64 `json:"commission_pct"`
}

func (h *AccountHandler) HandleCreateCabinet(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req createCabinetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	commission := 6.0
	if req.CommissionPct != nil {
		commission = *req.CommissionPct
	}
	cab, err := h.accountService.CreateCabinet(actor, req.SocID, req.Name, req.Currency, req.CabType, commission)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, cab)
}

type updateCabinetRequest struct {
	CabinetID int64 `json:"cab_id"`
	services.CabinetUpdate
}

func (h *AccountHandler) HandleUpdateCabinet(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req updateCabinetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.accountService.UpdateCabinet(actor, req.CabinetID, req.CabinetUpdate); err != nil {
		sendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"cab_id": req.CabinetID})
}

func (h *AccountHandler) HandleListCabinets(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	cabs, err := h.accountService.ListCabinets(actor, queryInt64(r, "soc_id"))
	if err != nil {
		sendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cabs)
}

// ---- FX rates ----

type setFxRateRequest struct {
	Date         string  `json:"date"`
	FromCurrency string  `json:"from_currency"`
	Rate         float64 `json:"rate"`
}

func (h *AccountHandler) HandleSetFxRate(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req setFxRateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Date == "" {
		req.Date = utils.Today()
	}
	if err := h.fxService.SetRate(actor, req.Date, req.FromCurrency, req.Rate); err != nil {
		sendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"date": req.Date, "from_currency": req.FromCurrency, "rate": req.Rate,
	})
}

func (h *AccountHandler) HandleListFxRates(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(w, r); !ok {
		return
	}
	rates, err := h.fxService.RecentRates(int(queryInt64(r, "limit")))
	if err != nil {
		sendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rates)
}
