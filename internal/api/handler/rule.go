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

// Rule handles WAF rule endpoints.
type Rule struct {
	svc *core.RuleService
}

// NewRule creates a new Rule handler.
func NewRule(svc *core.RuleService) *Rule {
	return &Rule{svc: svc}
}

// List returns all rules owned by the authenticated tenant.
func (h *Rule) List(w http.ResponseWriter, r *http.Request) {
	rules, err := h.svc.List(r.Context(), mw.TenantID(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if rules == nil {
		rules = []model.Rule{}
	}
	response.WriteJSON(w, http.StatusOK, rules)
}

// Create adds a rule and syncs the tenant's rule artifact.
func (h *Rule) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateRule
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	rule, err := h.svc.Create(r.Context(), mw.TenantID(r.Context()), core.CreateRuleParams{
		Name:        req.Name,
		Description: req.Description,
		Content:     req.Content,
		IsActive:    req.IsActive,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, rule)
}

// Update modifies a rule and syncs the tenant's rule artifact.
func (h *Rule) Update(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req request.UpdateRule
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	rule, err := h.svc.Update(r.Context(), mw.TenantID(r.Context()), id, core.UpdateRuleParams{
		Name:        req.Name,
		Description: req.Description,
		Content:     req.Content,
		IsActive:    req.IsActive,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, rule)
}

// Delete removes a rule and syncs the tenant's rule artifact.
func (h *Rule) Delete(w http.ResponseWriter, r *http.Request) {
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
