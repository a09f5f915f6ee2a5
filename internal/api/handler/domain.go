package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/edvin/wafgate/internal/api/middleware"
	"github.com/edvin/wafgate/internal/api/request"
	"github.com/edvin/wafgate/internal/api/response"
	"github.com/edvin/wafgate/internal/core"
	"github.com/edvin/wafgate/internal/model"
)

// Domain handles domain endpoints.
type Domain struct {
	svc *core.DomainService
}

// NewDomain creates a new Domain handler.
func NewDomain(svc *core.DomainService) *Domain {
	return &Domain{svc: svc}
}

// List returns the authenticated tenant's domains.
func (h *Domain) List(w http.ResponseWriter, r *http.Request) {
	domains, err := h.svc.List(r.Context(), mw.TenantID(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if domains == nil {
		domains = []model.Domain{}
	}
	response.WriteJSON(w, http.StatusOK, domains)
}

// Create registers a domain and provisions its routing artifact.
func (h *Domain) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateDomain
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	domain, err := h.svc.Create(r.Context(), mw.TenantID(r.Context()), req.Domain, req.OriginIP)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, domain)
}

// Get retrieves a domain by ID.
func (h *Domain) Get(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	domain, err := h.svc.GetByID(r.Context(), mw.TenantID(r.Context()), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, domain)
}

// Update changes the domain's origin IP and/or status.
func (h *Domain) Update(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req request.UpdateDomain
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	domain, err := h.svc.Update(r.Context(), mw.TenantID(r.Context()), id, core.UpdateDomainParams{
		OriginIP: req.OriginIP,
		Status:   req.Status,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, domain)
}

// Delete removes a domain and its artifacts.
func (h *Domain) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.Delete(r.Context(), mw.TenantID(r.Context()), id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Status reports the domain's lifecycle state.
func (h *Domain) Status(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	status, message, err := h.svc.Status(r.Context(), mw.TenantID(r.Context()), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"message": message,
	})
}
