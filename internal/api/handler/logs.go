package handler

import (
	"io"
	"net/http"

	mw "github.com/edvin/wafgate/internal/api/middleware"
	"github.com/edvin/wafgate/internal/api/request"
	"github.com/edvin/wafgate/internal/api/response"
	"github.com/edvin/wafgate/internal/core"
)

// maxIngestBytes bounds a single log shipment.
const maxIngestBytes = 10 << 20

// Logs handles log ingest and query endpoints.
type Logs struct {
	svc *core.LogService
}

// NewLogs creates a new Logs handler.
func NewLogs(svc *core.LogService) *Logs {
	return &Logs{svc: svc}
}

// Ingest accepts a raw log shipment from the engine. The response is an
// acknowledgement with the number of records stored.
func (h *Logs) Ingest(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxIngestBytes))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, "unreadable request body")
		return
	}

	stored, err := h.svc.Ingest(r.Context(), payload)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusAccepted, map[string]int{"stored": stored})
}

// Query returns the tenant's log records matching the filters.
func (h *Logs) Query(w http.ResponseWriter, r *http.Request) {
	params, err := request.ParseLogQuery(r)
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.svc.Query(r.Context(), mw.TenantID(r.Context()), params)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, result)
}
