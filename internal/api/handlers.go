package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/ranortv/internal/auth"
	"github.com/mattjoyce/ranortv/internal/catalog"
	"github.com/mattjoyce/ranortv/internal/kiosk"
	"github.com/mattjoyce/ranortv/internal/launch"
	"github.com/mattjoyce/ranortv/internal/nav"
	"github.com/mattjoyce/ranortv/internal/sandbox"
)

const (
	healthTimeout       = 2 * time.Second
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// kioskContext tags loop calls so history shows where they came from:
// "api", or "api:<token name>" when auth is enabled.
func kioskContext(r *http.Request) context.Context {
	source := "api"
	if p, ok := auth.PrincipalFromContext(r.Context()); ok && p.Name != "" {
		source += ":" + p.Name
	}
	return kiosk.WithSource(r.Context(), source)
}

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	resp := HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
	}
	snap, err := kiosk.Query(ctx, s.loop, func(k *kiosk.Session) (HealthzResponse, error) {
		return HealthzResponse{Apps: k.Catalog().Len(), Fingerprint: k.Catalog().Fingerprint()}, nil
	})
	if err != nil {
		s.logger.Error("kiosk loop unavailable", "error", err)
		resp.Status = "unavailable"
		respondJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp.Apps = snap.Apps
	resp.Fingerprint = snap.Fingerprint
	respondJSON(w, http.StatusOK, resp)
}

// handleApps handles GET /apps/{view}. The ETag tracks the catalog
// fingerprint so pollers can revalidate cheaply.
func (s *Server) handleApps(w http.ResponseWriter, r *http.Request) {
	view, err := catalog.ParseView(chi.URLParam(r, "view"))
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}

	resp, err := kiosk.Query(r.Context(), s.loop, func(k *kiosk.Session) (AppsResponse, error) {
		return AppsResponse{
			View:        view,
			Fingerprint: k.Catalog().Fingerprint(),
			Apps:        k.Catalog().View(view),
		}, nil
	})
	if err != nil {
		s.writeKioskError(w, err)
		return
	}

	etag := `"` + resp.Fingerprint + "-" + view.String() + `"`
	w.Header().Set("ETag", etag)
	if etagMatches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleApp handles GET /app/{appID}.
func (s *Server) handleApp(w http.ResponseWriter, r *http.Request) {
	appID := chi.URLParam(r, "appID")
	type result struct {
		app catalog.App
		ok  bool
	}
	res, err := kiosk.Query(r.Context(), s.loop, func(k *kiosk.Session) (result, error) {
		app, ok := k.Catalog().Get(appID)
		return result{app, ok}, nil
	})
	if err != nil {
		s.writeKioskError(w, err)
		return
	}
	if !res.ok {
		s.writeError(w, http.StatusNotFound, "app not found")
		return
	}
	respondJSON(w, http.StatusOK, res.app)
}

// handleNavState handles GET /nav.
func (s *Server) handleNavState(w http.ResponseWriter, r *http.Request) {
	resp, err := kiosk.Query(r.Context(), s.loop, func(k *kiosk.Session) (NavResponse, error) {
		return navResponse(k, k.Nav()), nil
	})
	if err != nil {
		s.writeKioskError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleNavEvent handles POST /nav/{event}: left, right, up, down, select.
func (s *Server) handleNavEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := nav.ParseEvent(chi.URLParam(r, "event"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.navigate(w, r, ev)
}

// handleNavTab handles POST /nav/tab/{tab}.
func (s *Server) handleNavTab(w http.ResponseWriter, r *http.Request) {
	tab, err := catalog.ParseView(chi.URLParam(r, "tab"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.navigate(w, r, nav.SwitchTo(tab))
}

// handleNavFocus handles POST /nav/focus/{tab}/{index}.
func (s *Server) handleNavFocus(w http.ResponseWriter, r *http.Request) {
	tab, err := catalog.ParseView(chi.URLParam(r, "tab"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		s.writeError(w, http.StatusBadRequest, "index must be a non-negative integer")
		return
	}
	s.navigate(w, r, nav.FocusAt(tab, index))
}

func (s *Server) navigate(w http.ResponseWriter, r *http.Request, ev nav.Event) {
	type result struct {
		resp NavResponse
		err  error
	}
	ctx := kioskContext(r)
	res, err := kiosk.Query(ctx, s.loop, func(k *kiosk.Session) (result, error) {
		state, navErr := k.Navigate(ctx, ev)
		return result{resp: navResponse(k, state), err: navErr}, nil
	})
	if err != nil {
		s.writeKioskError(w, err)
		return
	}
	if res.err != nil {
		s.writeKioskError(w, res.err)
		return
	}
	respondJSON(w, http.StatusOK, res.resp)
}

// handleLaunch handles POST /launch/{appID}.
func (s *Server) handleLaunch(w http.ResponseWriter, r *http.Request) {
	appID := chi.URLParam(r, "appID")
	ctx := kioskContext(r)
	out, err := kiosk.Query(ctx, s.loop, func(k *kiosk.Session) (launch.Outcome, error) {
		return k.Launch(ctx, appID)
	})
	if err != nil {
		s.writeKioskError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, out)
}

// handleStoreRefresh handles POST /store/refresh. Skipped feed records are
// reported but do not fail the request.
func (s *Server) handleStoreRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := kioskContext(r)
	resp, err := kiosk.Query(ctx, s.loop, func(k *kiosk.Session) (RefreshResponse, error) {
		applied, refreshErr := k.RefreshStore(ctx)
		resp := RefreshResponse{
			Applied:     applied,
			Installed:   k.Catalog().ViewLen(catalog.ViewInstalled),
			Store:       k.Catalog().ViewLen(catalog.ViewStore),
			Fingerprint: k.Catalog().Fingerprint(),
		}
		if refreshErr != nil {
			if ctxErr := r.Context().Err(); ctxErr != nil {
				return resp, ctxErr
			}
			resp.Error = refreshErr.Error()
		}
		return resp, nil
	})
	if err != nil {
		s.writeKioskError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleHistory handles GET /history?limit=N.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusNotFound, "history disabled")
		return
	}
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	entries, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to read history", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read history")
		return
	}
	respondJSON(w, http.StatusOK, HistoryResponse{Entries: entries})
}

// handleUsage handles GET /history/usage.
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusNotFound, "history disabled")
		return
	}
	usage, err := s.history.Usage(r.Context())
	if err != nil {
		s.logger.Error("failed to read usage", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read usage")
		return
	}
	respondJSON(w, http.StatusOK, UsageResponse{Usage: usage})
}

// handleMetrics handles GET /metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		s.writeError(w, http.StatusNotFound, "metrics disabled")
		return
	}
	s.metrics.Handler().ServeHTTP(w, r)
}

// handleOpenAPI handles GET /openapi.json (no auth).
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, buildOpenAPIDoc())
}

func navResponse(k *kiosk.Session, state nav.State) NavResponse {
	resp := NavResponse{Nav: state}
	if app, ok := k.Focused(); ok {
		resp.Focused = &app
	}
	return resp
}

func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}

// writeKioskError maps loop and launch errors to HTTP statuses.
func (s *Server) writeKioskError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, launch.ErrUnknownApp):
		respondJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error(), Reason: kiosk.FailureReason(err)})
	case errors.Is(err, launch.ErrUnknownBuiltin), sandbox.KindOf(err) != 0:
		respondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error(), Reason: kiosk.FailureReason(err)})
	case errors.Is(err, kiosk.ErrClosed), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.writeError(w, http.StatusServiceUnavailable, "kiosk unavailable")
	default:
		s.logger.Error("kiosk request failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
