package request

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/edvin/wafgate/internal/core"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// ParseLogQuery extracts log filter and paging parameters from the query
// string. Unknown parameters are ignored; malformed values are rejected.
func ParseLogQuery(r *http.Request) (core.LogQueryParams, error) {
	q := r.URL.Query()
	params := core.LogQueryParams{Page: 1, Limit: DefaultLimit}

	if v := q.Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			return params, fmt.Errorf("invalid page %q", v)
		}
		params.Page = page
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			return params, fmt.Errorf("invalid limit %q", v)
		}
		if limit > MaxLimit {
			limit = MaxLimit
		}
		params.Limit = limit
	}
	if v := q.Get("from"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return params, fmt.Errorf("invalid from timestamp %q", v)
		}
		params.From = &ts
	}
	if v := q.Get("to"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return params, fmt.Errorf("invalid to timestamp %q", v)
		}
		params.To = &ts
	}
	if v := q.Get("status"); v != "" {
		status, err := strconv.Atoi(v)
		if err != nil {
			return params, fmt.Errorf("invalid status %q", v)
		}
		params.Status = &status
	}
	if v := q.Get("rule_id"); v != "" {
		ruleID, err := strconv.Atoi(v)
		if err != nil {
			return params, fmt.Errorf("invalid rule_id %q", v)
		}
		params.RuleID = &ruleID
	}
	if v := q.Get("ip"); v != "" {
		params.IP = &v
	}
	if v := q.Get("uri"); v != "" {
		params.URI = &v
	}
	if v := q.Get("method"); v != "" {
		params.Method = &v
	}
	if v := q.Get("action"); v != "" {
		params.Action = &v
	}
	if v := q.Get("source"); v != "" {
		params.Source = &v
	}

	return params, nil
}
