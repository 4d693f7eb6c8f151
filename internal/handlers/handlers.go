package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	log "github.com/sirupsen/logrus"

	"vantage/internal/dashboard"
	"vantage/internal/environment"
	"vantage/internal/middleware"
	"vantage/internal/netinfo"
	"vantage/internal/types"
)

// API serves the dashboard as JSON. Refresh cycles run under base, not the
// request context, so a client that stops waiting does not abort its cycle.
type API struct {
	base     context.Context
	sessions *dashboard.Manager
	version  string
}

func NewAPI(base context.Context, sessions *dashboard.Manager, version string) *API {
	return &API{base: base, sessions: sessions, version: version}
}

type errorResponse struct {
	Error string `json:"error"`
}

func renderError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, errorResponse{Error: msg})
}

// Routes mounts the dashboard API. The session middleware must run first.
func (a *API) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/dashboard", a.Dashboard)
	r.Post("/hints", a.Hints)
	r.Post("/refresh", a.Refresh)
	r.Get("/network", a.Network)
	r.Get("/environment", a.Environment)
	r.Get("/score", a.Score)
	return r
}

func (a *API) session(r *http.Request) *dashboard.Session {
	return a.sessions.Open(middleware.SessionIDFrom(r.Context()))
}

// cycleInputs returns the context and probe a refresh for r runs with.
func (a *API) cycleInputs(r *http.Request, s *dashboard.Session) (context.Context, environment.Probe) {
	ip := middleware.ClientIPFrom(r.Context())
	log.WithFields(log.Fields{"session": s.ID, "ip": ip}).Debug("refresh requested")
	return netinfo.WithClientIP(a.base, ip), environment.NewRequestProbe(r, s.Hints())
}

func (a *API) startRefresh(r *http.Request, s *dashboard.Session) <-chan struct{} {
	ctx, probe := a.cycleInputs(r, s)
	return s.Refresh(ctx, probe)
}

// await blocks until done closes or the request goes away.
func await(r *http.Request, done <-chan struct{}) {
	select {
	case <-done:
	case <-r.Context().Done():
	}
}

// Dashboard returns the full snapshot. A session's first request is its
// page load and starts the initial cycle. Requests arriving before that
// cycle lands wait for it instead of starting their own.
func (a *API) Dashboard(w http.ResponseWriter, r *http.Request) {
	s := a.session(r)
	ctx, probe := a.cycleInputs(r, s)
	await(r, s.EnsureStarted(ctx, probe))
	render.JSON(w, r, s.Snapshot())
}

// Hints stores what the page script reports and re-runs the cycle with it.
func (a *API) Hints(w http.ResponseWriter, r *http.Request) {
	var hints types.ClientHints
	if err := render.DecodeJSON(r.Body, &hints); err != nil {
		log.WithField("ip", middleware.ClientIPFrom(r.Context())).Debugf("Hints: invalid payload: %v", err)
		renderError(w, r, http.StatusBadRequest, "invalid payload")
		return
	}
	s := a.session(r)
	s.SetHints(hints)
	await(r, a.startRefresh(r, s))
	render.JSON(w, r, s.Snapshot())
}

// Refresh starts a new cycle. With wait=false it answers immediately with
// the loading snapshot.
func (a *API) Refresh(w http.ResponseWriter, r *http.Request) {
	wait := true
	if v := r.URL.Query().Get("wait"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			renderError(w, r, http.StatusBadRequest, "invalid wait parameter")
			return
		}
		wait = b
	}
	s := a.session(r)
	done := a.startRefresh(r, s)
	if wait {
		await(r, done)
	} else {
		render.Status(r, http.StatusAccepted)
	}
	render.JSON(w, r, s.Snapshot())
}

func (a *API) Network(w http.ResponseWriter, r *http.Request) {
	snap := a.session(r).Snapshot()
	if snap.Network == nil {
		renderError(w, r, http.StatusNotFound, "network info not loaded")
		return
	}
	render.JSON(w, r, snap.Network)
}

func (a *API) Environment(w http.ResponseWriter, r *http.Request) {
	snap := a.session(r).Snapshot()
	if snap.Environment == nil {
		renderError(w, r, http.StatusNotFound, "environment not inspected")
		return
	}
	render.JSON(w, r, snap.Environment)
}

func (a *API) Score(w http.ResponseWriter, r *http.Request) {
	snap := a.session(r).Snapshot()
	if snap.Score == nil {
		renderError(w, r, http.StatusNotFound, "score not computed")
		return
	}
	render.JSON(w, r, snap.Score)
}
