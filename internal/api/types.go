package api

import (
	"github.com/mattjoyce/ranortv/internal/catalog"
	"github.com/mattjoyce/ranortv/internal/history"
	"github.com/mattjoyce/ranortv/internal/nav"
)

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
	// Reason is a stable label for launch failures, e.g. "not_found".
	Reason string `json:"reason,omitempty"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Apps          int    `json:"apps"`
	Fingerprint   string `json:"fingerprint,omitempty"`
}

// AppsResponse is returned by GET /apps/{view}.
type AppsResponse struct {
	View        catalog.View  `json:"view"`
	Fingerprint string        `json:"fingerprint"`
	Apps        []catalog.App `json:"apps"`
}

// NavResponse is returned by the /nav endpoints.
type NavResponse struct {
	Nav     nav.State    `json:"nav"`
	Focused *catalog.App `json:"focused,omitempty"`
}

// RefreshResponse is returned by POST /store/refresh.
type RefreshResponse struct {
	Applied     int    `json:"applied"`
	Installed   int    `json:"installed"`
	Store       int    `json:"store"`
	Fingerprint string `json:"fingerprint"`
	// Error lists feed records that were skipped.
	Error string `json:"error,omitempty"`
}

// HistoryResponse is returned by GET /history.
type HistoryResponse struct {
	Entries []history.Entry `json:"entries"`
}

// UsageResponse is returned by GET /history/usage.
type UsageResponse struct {
	Usage []history.Usage `json:"usage"`
}
