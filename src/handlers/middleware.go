package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ekazakov-source/statka/src/logger"
	"github.com/ekazakov-source/statka/src/models"
	"github.com/ekazakov-source/statka/src/services"
	"github.com/ekazakov-source/statka/src/utils"
)

// actorHeader carries the caller's user id, set by the upstream auth layer.
// Session handling and password checks live entirely outside this service.
const actorHeader = "X-User-ID"

// actorFromRequest resolves the upstream caller id into an Actor. Inactive
// and deleted users are rejected.
func actorFromRequest(r *http.Request) (models.Actor, error) {
	idStr := r.Header.Get(actorHeader)
	if idStr == "" {
		return models.Actor{}, errors.New("missing " + actorHeader + " header")
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		return models.Actor{}, errors.New("invalid " + actorHeader + " header")
	}
	user, err := services.GetUser(id)
	if err != nil {
		return models.Actor{}, err
	}
	if !user.IsActive {
		return models.Actor{}, errors.New("user is not active")
	}
	return models.Actor{ID: user.ID, Username: user.Username, Role: user.Role}, nil
}

// requireActor wraps actorFromRequest and writes the error response itself.
func requireActor(w http.ResponseWriter, r *http.Request) (models.Actor, bool) {
	actor, err := actorFromRequest(r)
	if err != nil {
		utils.SendJSONError(w, "authentication required: "+err.Error(), http.StatusUnauthorized)
		return models.Actor{}, false
	}
	return actor, true
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.L.Error("Error encoding JSON response", "error", err)
	}
}

// sendServiceError maps the service error taxonomy onto HTTP status codes so
// the presentation layer can distinguish every error kind.
func sendServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrValidation):
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, services.ErrForbidden):
		utils.SendJSONError(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, services.ErrUserNotFound),
		errors.Is(err, services.ErrSocNotFound),
		errors.Is(err, services.ErrCabinetNotFound):
		utils.SendJSONError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, services.ErrSocClosed):
		utils.SendJSONError(w, err.Error(), http.StatusConflict)
	default:
		utils.SendJSONError(w, err.Error(), http.StatusInternalServerError)
	}
}

func queryInt64(r *http.Request, key string) int64 {
	v, err := strconv.ParseInt(r.URL.Query().Get(key), 10, 64)
	if err != nil {
		return 0
	}
	return v
}
