// Package lognorm turns the two ingest payload shapes emitted by the WAF
// stack (nginx JSON access logs and ModSecurity audit logs) into the one
// canonical log record stored by the control plane.
package lognorm

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/edvin/wafgate/internal/model"
)

var tenantMsgRe = regexp.MustCompile(`tenant=([A-Za-z0-9_\-:.]+)`)

// accessRecord is the nginx JSON access log shape. Loose value types are kept
// as json.RawMessage or any where the emitter is known to vary.
type accessRecord struct {
	Timestamp     *string           `json:"timestamp"`
	Time          *string           `json:"time"`
	AtTimestamp   *string           `json:"@timestamp"`
	Status        any               `json:"status"`
	RemoteAddr    *string           `json:"remote_addr"`
	RequestMethod string            `json:"request_method"`
	RequestURI    *string           `json:"request_uri"`
	URI           *string           `json:"uri"`
	UserID        any               `json:"user_id"`
	Tenant        any               `json:"tenant"`
	TenantID      any               `json:"tenant_id"`
	HeaderTenant  any               `json:"X-Tenant-Id"`
	HeaderTenant2 any               `json:"x-tenant-id"`
	Headers       map[string]string `json:"headers"`
	ReqHeaders    map[string]string `json:"request_headers"`
}

// wafRecord is the ModSecurity audit log shape.
type wafRecord struct {
	Timestamp   *string        `json:"timestamp"`
	Transaction wafTransaction `json:"transaction"`
}

type wafTransaction struct {
	ClientIP  *string      `json:"client_ip"`
	TimeStamp *string      `json:"time_stamp"`
	Request   *wafRequest  `json:"request"`
	Response  *wafResponse `json:"response"`
	Messages  []wafMessage `json:"messages"`
}

type wafRequest struct {
	URI     *string           `json:"uri"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
	Body    *string           `json:"body"`
}

type wafResponse struct {
	HTTPCode *float64          `json:"http_code"`
	Status   *float64          `json:"status"`
	Headers  map[string]string `json:"headers"`
	Body     *string           `json:"body"`
}

type wafMessage struct {
	Message string            `json:"message"`
	Details wafMessageDetails `json:"details"`
}

type wafMessageDetails struct {
	RuleID any `json:"ruleId"`
}

// Normalize maps one raw ingest payload onto the canonical record. It never
// fails: an unrecognized shape yields an action "unknown" record so the event
// is still retained for audit. now supplies the ingestion-time fallback
// timestamp.
func Normalize(raw json.RawMessage, now time.Time) *model.LogRecord {
	rec := &model.LogRecord{
		TS:     now,
		Source: model.LogSourceUnknown,
		Action: model.LogActionUnknown,
		Raw:    append(json.RawMessage(nil), raw...),
	}

	var probe struct {
		Source *string `json:"source"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil || probe.Source == nil {
		return rec
	}

	switch *probe.Source {
	case model.LogSourceAccess:
		rec.Source = model.LogSourceAccess
		var a accessRecord
		if err := json.Unmarshal(raw, &a); err != nil {
			return rec
		}
		normalizeAccess(rec, &a, now)
	case model.LogSourceWAF:
		rec.Source = model.LogSourceWAF
		var w wafRecord
		if err := json.Unmarshal(raw, &w); err != nil {
			return rec
		}
		normalizeWAF(rec, &w, now)
	default:
		if *probe.Source != "" {
			rec.Source = *probe.Source
		}
	}

	return rec
}

func normalizeAccess(rec *model.LogRecord, a *accessRecord, now time.Time) {
	rec.TS = firstTimestamp(now, a.Timestamp, a.Time, a.AtTimestamp)
	rec.Status = coerceStatus(a.Status)

	if rec.Status != nil && *rec.Status >= 400 {
		rec.Action = model.LogActionBlocked
	} else {
		rec.Action = model.LogActionAllowed
	}

	rec.IP = a.RemoteAddr
	if m := strings.ToUpper(a.RequestMethod); m != "" {
		rec.Method = &m
	}
	if a.RequestURI != nil {
		rec.URI = a.RequestURI
	} else {
		rec.URI = a.URI
	}

	rec.TenantID = accessTenant(a)
}

func normalizeWAF(rec *model.LogRecord, w *wafRecord, now time.Time) {
	tx := w.Transaction
	rec.TS = firstTimestamp(now, w.Timestamp, tx.TimeStamp)

	var status *int
	if tx.Response != nil {
		if tx.Response.HTTPCode != nil {
			s := int(*tx.Response.HTTPCode)
			status = &s
		} else if tx.Response.Status != nil {
			s := int(*tx.Response.Status)
			status = &s
		}
	}
	rec.Status = status

	switch {
	case status != nil && *status >= 400:
		rec.Action = model.LogActionBlocked
	case len(tx.Messages) > 0:
		rec.Action = model.LogActionDetected
	default:
		rec.Action = model.LogActionAllowed
	}

	rec.IP = tx.ClientIP
	if tx.Request != nil {
		if m := strings.ToUpper(tx.Request.Method); m != "" {
			rec.Method = &m
		}
		rec.URI = tx.Request.URI
		rec.RequestHeaders = tx.Request.Headers
		rec.RequestBody = tx.Request.Body
	}
	if tx.Response != nil {
		rec.ResponseHeaders = tx.Response.Headers
		rec.ResponseBody = tx.Response.Body
	}

	rec.RuleIDs = collectRuleIDs(tx.Messages)
	rec.TenantID = wafTenant(&tx)
}

// collectRuleIDs gathers numeric rule ids from detection messages, truncating
// toward zero and dropping anything non-finite. An empty result stays nil.
func collectRuleIDs(messages []wafMessage) []int {
	var ids []int
	for _, m := range messages {
		if n, ok := toFinite(m.Details.RuleID); ok {
			ids = append(ids, int(math.Trunc(n)))
		}
	}
	return ids
}

// accessTenant resolves tenant attribution for an access record: explicit
// tenant/user fields first, then a case-insensitive X-Tenant-Id header.
func accessTenant(a *accessRecord) *string {
	for _, c := range []any{a.UserID, a.Tenant, a.TenantID, a.HeaderTenant, a.HeaderTenant2} {
		if s, ok := stringify(c); ok {
			return &s
		}
	}
	headers := a.Headers
	if headers == nil {
		headers = a.ReqHeaders
	}
	if v := headerLookup(headers, "x-tenant-id"); v != nil {
		return v
	}
	return nil
}

// wafTenant resolves tenant attribution for a WAF record: the X-Tenant-Id
// request header first, then a "tenant=<token>" marker emitted into any
// detection message by the phase:5 attribution SecAction.
func wafTenant(tx *wafTransaction) *string {
	if tx.Request != nil {
		if v := headerLookup(tx.Request.Headers, "x-tenant-id"); v != nil {
			return v
		}
	}
	for _, m := range tx.Messages {
		if match := tenantMsgRe.FindStringSubmatch(m.Message); match != nil {
			v := match[1]
			return &v
		}
	}
	return nil
}

func headerLookup(headers map[string]string, name string) *string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			s := v
			return &s
		}
	}
	return nil
}

// firstTimestamp parses the first non-nil candidate; unparsable or absent
// values fall back to the ingestion time.
func firstTimestamp(now time.Time, candidates ...*string) time.Time {
	for _, c := range candidates {
		if c == nil {
			continue
		}
		if ts, ok := parseTimestamp(*c); ok {
			return ts
		}
		return now
	}
	return now
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	// ModSecurity audit log transaction time_stamp.
	"Mon Jan 2 15:04:05 2006",
}

func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	// Epoch seconds or milliseconds.
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		if n > 1e12 {
			return time.UnixMilli(int64(n)), true
		}
		return time.Unix(int64(n), 0), true
	}
	return time.Time{}, false
}

// coerceStatus converts the loosely typed access status field to an int,
// accepting JSON numbers and numeric strings; anything else is absent.
func coerceStatus(v any) *int {
	if n, ok := toFinite(v); ok {
		s := int(n)
		return &s
	}
	return nil
}

func toFinite(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0, false
		}
		return t, true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return n, true
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// stringify renders scalar tenant id candidates; nil and composite values do
// not attribute.
func stringify(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		if t == "" {
			return "", false
		}
		return t, true
	case float64:
		if t == math.Trunc(t) {
			return strconv.FormatInt(int64(t), 10), true
		}
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}
