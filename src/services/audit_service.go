package services

import (
	"encoding/json"

	"github.com/ekazakov-source/statka/src/database"
	"github.com/ekazakov-source/statka/src/logger"
)

type auditServiceImpl struct{}

func NewAuditService() AuditService {
	return &auditServiceImpl{}
}

// Record appends one audit entry. Best effort: marshalling or storage
// failures are logged and swallowed, never retried, never surfaced.
func (s *auditServiceImpl) Record(actorUser, action string, payload map[string]interface{}) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		if logger.L != nil {
			logger.L.Warn("Failed to marshal audit payload", "action", action, "error", err)
		}
		payloadJSON = []byte("{}")
	}

	_, err = database.DB.Exec(
		"INSERT INTO audit_log (actor_user, action, payload) VALUES (?, ?, ?)",
		actorUser, action, string(payloadJSON),
	)
	if err != nil {
		if logger.L != nil {
			logger.L.Warn("Failed to write audit entry", "action", action, "actor", actorUser, "error", err)
		}
		metricAuditFailures.Inc()
	}
}
