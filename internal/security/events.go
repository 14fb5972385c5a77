/*-------------------------------------------------------------------------
 *
 * events.go
 *    Security event logging
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <admin@neurondb.com>
 *
 * IDENTIFICATION
 *    internal/security/events.go
 *
 *-------------------------------------------------------------------------
 */

package security

import (
	"net/http"
	"time"

	"github.com/neurondb/NeuronQuery/api/internal/logging"
	"github.com/neurondb/NeuronQuery/api/internal/metrics"
	"github.com/neurondb/NeuronQuery/api/internal/utils"
)

/* maxUserAgentLength bounds the user agent copied into an event */
const maxUserAgentLength = 256

/* Event types */
const (
	EventInvalidInput     = "invalid_input"
	EventIPBlocked        = "ip_blocked"
	EventSQLRejected      = "sql_rejected"
	EventAuthFailure      = "auth_failure"
	EventRateLimited      = "rate_limited"
	EventSessionIssued    = "session_issued"
	EventUntranslatable   = "untranslatable_question"
	EventEphemeralKeyUsed = "ephemeral_encryption_key"
)

/* Event is one security-relevant occurrence */
type Event struct {
	EventType string                 `json:"event_type"`
	IPAddress string                 `json:"ip_address"`
	UserAgent string                 `json:"user_agent"`
	Details   map[string]interface{} `json:"details"`
	Timestamp time.Time              `json:"timestamp"`
}

/* EventLog writes security events to the structured log and counts them */
type EventLog struct {
	logger     *logging.Logger
	trustProxy bool
	now        func() time.Time
}

/* NewEventLog creates an event log; trustProxy controls client address resolution */
func NewEventLog(logger *logging.Logger, trustProxy bool) *EventLog {
	return &EventLog{logger: logger, trustProxy: trustProxy, now: time.Now}
}

/* Log records an event attributed to the caller of r; r and l may be nil */
func (l *EventLog) Log(r *http.Request, eventType string, details map[string]interface{}) Event {
	now, trustProxy := time.Now, false
	if l != nil {
		now, trustProxy = l.now, l.trustProxy
	}

	ev := Event{
		EventType: eventType,
		Details:   details,
		Timestamp: now().UTC(),
	}
	if r != nil {
		ev.IPAddress = ClientIP(r, trustProxy)
		ev.UserAgent = utils.SanitizeString(r.UserAgent(), maxUserAgentLength)
	}
	l.Record(ev)
	return ev
}

/* Record writes a prepared event */
func (l *EventLog) Record(ev Event) {
	metrics.RecordSecurityEvent(ev.EventType)
	if l == nil {
		return
	}
	l.logger.Warn("Security event", map[string]interface{}{
		"event_type": ev.EventType,
		"ip_address": ev.IPAddress,
		"user_agent": ev.UserAgent,
		"details":    ev.Details,
		"timestamp":  ev.Timestamp.Format(time.RFC3339),
	})
}
