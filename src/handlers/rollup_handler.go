package handlers

import (
	"net/http"

	"github.com/ekazakov-source/statka/src/models"
	"github.com/ekazakov-source/statka/src/services"
	"github.com/ekazakov-source/statka/src/utils"
)

type RollupHandler struct {
	rollupService services.RollupService
}

func NewRollupHandler(rollupService services.RollupService) *RollupHandler {
	return &RollupHandler{rollupService: rollupService}
}

// filterFromRequest builds the rollup filter from query parameters. BUYERs
// only ever see their own rows; privileged roles may widen to any user or to
// everyone by omitting user_id.
func filterFromRequest(r *http.Request, actor models.Actor) models.Filter {
	filter := models.Filter{
		StartDate: r.URL.Query().Get("start_date"),
		EndDate:   r.URL.Query().Get("end_date"),
		UserID:    queryInt64(r, "user_id"),
		SocID:     queryInt64(r, "soc_id"),
		CabinetID: queryInt64(r, "cab_id"),
	}
	if filter.StartDate == "" {
		filter.StartDate = utils.Today()
	}
	if filter.EndDate == "" {
		filter.EndDate = utils.Today()
	}
	if !actor.Privileged() {
		filter.UserID = actor.ID
	}
	return filter
}

func (h *RollupHandler) HandleQueryRollup(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	result, err := h.rollupService.Query(filterFromRequest(r, actor))
	if err != nil {
		sendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleExportRaw streams the flat ledger rows as JSON; CSV formatting is the
// consumer's concern.
func (h *RollupHandler) HandleExportRaw(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	rows, err := h.rollupService.ExportRaw(filterFromRequest(r, actor))
	if err != nil {
		sendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}
