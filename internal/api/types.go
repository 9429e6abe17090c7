package api

import (
	"time"

	"github.com/rafaeljc/vigil/internal/transaction"
)

// IngestEventsRequest is the body of POST /api/v1/events.
type IngestEventsRequest struct {
	Events []*transaction.Event `json:"events"`
}

// IngestEventsResponse reports how many events of an accepted batch were dispatched.
type IngestEventsResponse struct {
	Dispatched int `json:"dispatched"`
	Total      int `json:"total"`
}

// RuleResponse describes one cached rule.
type RuleResponse struct {
	ID          int64  `json:"id"`
	Expression  string `json:"expression"`
	Description string `json:"description"`
	Active      bool   `json:"active"`
}

// RuleStatsResponse is the body of GET /api/v1/rules/stats.
type RuleStatsResponse struct {
	CachedRules          int        `json:"cachedRules"`
	CompiledRules        int        `json:"compiledRules"`
	LastRefreshTime      *time.Time `json:"lastRefreshTime"`
	LastRefreshSucceeded bool       `json:"lastRefreshSucceeded"`
}

// RefreshResponse acknowledges an on-demand refresh.
type RefreshResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	// Code is machine-readable, e.g. "ERR_INVALID_EVENT".
	Code    string        `json:"code"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
}

// ErrorDetail points at the offending part of the request.
type ErrorDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}
