package api

import (
	"net/http"

	"github.com/go-chi/render"

	"github.com/rafaeljc/vigil/internal/logger"
)

// handleListRules serves GET /api/v1/rules in source order.
func (a *API) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules := a.catalog.Rules()

	resp := make([]RuleResponse, 0, len(rules))
	for _, rule := range rules {
		resp = append(resp, RuleResponse{
			ID:          rule.ID,
			Expression:  rule.Expression,
			Description: rule.Description,
			Active:      rule.Active,
		})
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, resp)
}

// handleRuleStats serves GET /api/v1/rules/stats.
func (a *API) handleRuleStats(w http.ResponseWriter, r *http.Request) {
	state := a.catalog.State()

	render.Status(r, http.StatusOK)
	render.JSON(w, r, RuleStatsResponse{
		CachedRules:          a.catalog.CachedRules(),
		CompiledRules:        a.catalog.CompiledRules(),
		LastRefreshTime:      state.LastRefreshTime,
		LastRefreshSucceeded: state.LastRefreshSucceeded,
	})
}

// handleRefreshRules serves POST /api/v1/rules/refresh. The refresh runs in
// the background; repeated calls while one is pending are merged.
func (a *API) handleRefreshRules(w http.ResponseWriter, r *http.Request) {
	if !a.catalog.RequestRefresh() {
		logger.FromContext(r.Context()).Debug("refresh already pending")
	}

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, RefreshResponse{Status: "refresh triggered"})
}
