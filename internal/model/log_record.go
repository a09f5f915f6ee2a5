package model

import (
	"encoding/json"
	"time"
)

const (
	LogSourceAccess  = "access"
	LogSourceWAF     = "waf"
	LogSourceUnknown = "unknown"
)

const (
	LogActionAllowed  = "allowed"
	LogActionDetected = "detected"
	LogActionBlocked  = "blocked"
	LogActionUnknown  = "unknown"
)

// LogRecord is the canonical security/access event produced by the log
// normalizer. Records are immutable after ingest; TenantID is a best-effort
// attribution and nil for unattributed traffic.
type LogRecord struct {
	ID              int64             `json:"id" db:"id"`
	TS              time.Time         `json:"ts" db:"ts"`
	Source          string            `json:"source" db:"source"`
	Action          string            `json:"action" db:"action"`
	IP              *string           `json:"ip,omitempty" db:"client_ip"`
	Method          *string           `json:"method,omitempty" db:"method"`
	URI             *string           `json:"uri,omitempty" db:"uri"`
	Status          *int              `json:"status,omitempty" db:"status"`
	RuleIDs         []int             `json:"rule_ids,omitempty" db:"rule_ids"`
	RequestHeaders  map[string]string `json:"request_headers,omitempty" db:"request_headers"`
	ResponseHeaders map[string]string `json:"response_headers,omitempty" db:"response_headers"`
	RequestBody     *string           `json:"request_body,omitempty" db:"request_body"`
	ResponseBody    *string           `json:"response_body,omitempty" db:"response_body"`
	TenantID        *string           `json:"tenant_id,omitempty" db:"tenant_id"`
	Raw             json.RawMessage   `json:"raw" db:"raw"`
}
