package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/ekazakov-source/statka/src/services"
	"github.com/ekazakov-source/statka/src/utils"
)

type LedgerHandler struct {
	ledgerService services.LedgerService
}

func NewLedgerHandler(ledgerService services.LedgerService) *LedgerHandler {
	return &LedgerHandler{ledgerService: ledgerService}
}

type submitBatchRequest struct {
	UserID    int64                 `json:"user_id"`
	Date      string                `json:"date"`
	CabinetID int64                 `json:"cabinet_id"`
	Entries   []services.BatchEntry `json:"entries"`
}

// HandleSubmitBatch accepts a full (user, date, cabinet) submission. A locked
// day is not an error here: the response carries locked=true with zero rows
// written and the caller decides how to present it.
func (h *LedgerHandler) HandleSubmitBatch(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req submitBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Date == "" {
		req.Date = utils.Today()
	}

	result, err := h.ledgerService.SubmitBatch(actor, services.BatchInput{
		UserID:    req.UserID,
		Date:      req.Date,
		CabinetID: req.CabinetID,
		Entries:   req.Entries,
	})
	if err != nil {
		sendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *LedgerHandler) HandleIsDayLocked(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	userID := queryInt64(r, "user_id")
	if userID == 0 {
		userID = actor.ID
	}
	date := r.URL.Query().Get("date")
	if date == "" {
		date = utils.Today()
	}

	locked, err := h.ledgerService.IsDayLocked(userID, date)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id": userID, "date": date, "locked": locked,
	})
}

type lockDayRequest struct {
	UserID int64  `json:"user_id"`
	Date   string `json:"date"`
}

func (h *LedgerHandler) HandleLockDay(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req lockDayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Date == "" {
		req.Date = utils.Today()
	}
	if req.UserID == 0 {
		req.UserID = actor.ID
	}

	if err := h.ledgerService.LockDay(actor, req.UserID, req.Date); err != nil {
		sendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id": req.UserID, "date": req.Date, "locked": true,
	})
}
