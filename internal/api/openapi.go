package api

import (
	"strings"

	"github.com/mattjoyce/ranortv/internal/auth"
)

type routeDoc struct {
	method  string
	path    string
	summary string
	scope   string // empty for public routes
}

var routeDocs = []routeDoc{
	{"get", "/healthz", "Liveness and catalog fingerprint", ""},
	{"get", "/apps/{view}", "Apps in a view (featured, installed, store)", auth.ScopeKioskRead},
	{"get", "/app/{appID}", "One catalog record", auth.ScopeKioskRead},
	{"get", "/nav", "Navigation state and focused app", auth.ScopeKioskRead},
	{"post", "/nav/{event}", "Apply left, right, up, down or select", auth.ScopeKioskRW},
	{"post", "/nav/tab/{tab}", "Switch tab", auth.ScopeKioskRW},
	{"post", "/nav/focus/{tab}/{index}", "Focus an index in a tab", auth.ScopeKioskRW},
	{"post", "/launch/{appID}", "Launch an app", auth.ScopeKioskRW},
	{"post", "/store/refresh", "Apply the store feed", auth.ScopeKioskRW},
	{"get", "/history", "Recent launch attempts", auth.ScopeHistory},
	{"get", "/history/usage", "Launch counts per app", auth.ScopeHistory},
	{"get", "/events", "Server-sent kiosk events, optionally filtered by ?topics=", auth.ScopeEvents},
	{"get", "/metrics", "Prometheus metrics", auth.ScopeMetrics},
}

// buildOpenAPIDoc returns an OpenAPI 3.1 document for the kiosk routes.
func buildOpenAPIDoc() map[string]any {
	paths := map[string]any{}
	for _, rd := range routeDocs {
		item, ok := paths[rd.path].(map[string]any)
		if !ok {
			item = map[string]any{}
			paths[rd.path] = item
		}
		item[rd.method] = buildOperation(rd)
	}

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "RanorTV Kiosk",
			"version": "1.0",
		},
		"paths": paths,
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"BearerAuth": map[string]any{
					"type":   "http",
					"scheme": "bearer",
				},
			},
		},
	}
}

func buildOperation(rd routeDoc) map[string]any {
	responses := map[string]any{
		"200": map[string]any{"description": "OK"},
	}
	op := map[string]any{
		"operationId": operationID(rd),
		"summary":     rd.summary,
		"responses":   responses,
	}
	if params := pathParams(rd.path); len(params) > 0 {
		list := make([]any, 0, len(params))
		for _, p := range params {
			list = append(list, map[string]any{
				"name":     p,
				"in":       "path",
				"required": true,
				"schema":   map[string]any{"type": "string"},
			})
		}
		op["parameters"] = list
	}
	if rd.scope != "" {
		responses["401"] = map[string]any{"description": "Missing or invalid token"}
		responses["403"] = map[string]any{"description": "Insufficient scope"}
		op["security"] = []any{map[string]any{"BearerAuth": []string{}}}
		op["x-required-scope"] = rd.scope
	}
	if rd.path == "/launch/{appID}" {
		responses["404"] = map[string]any{"description": "Unknown app"}
		responses["422"] = map[string]any{"description": "Unknown builtin or spawn failure"}
	}
	return op
}

func pathParams(path string) []string {
	var out []string
	for _, seg := range strings.Split(path, "/") {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			out = append(out, strings.Trim(seg, "{}"))
		}
	}
	return out
}

// operationID turns "post /nav/focus/{tab}/{index}" into "post_nav_focus_tab_index".
func operationID(rd routeDoc) string {
	r := strings.NewReplacer("/", "_", "{", "", "}", "")
	return rd.method + strings.TrimRight(r.Replace(rd.path), "_")
}
