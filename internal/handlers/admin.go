package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	log "github.com/sirupsen/logrus"
)

type SessionStats struct {
	Active  int `json:"active"`
	Expired int `json:"expired,omitempty"`
}

// AdminRoutes exposes session housekeeping. Mount it behind middleware.APIKey.
func (a *API) AdminRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/sessions", a.SessionCount)
	r.Post("/sessions/sweep", a.SweepSessions)
	return r
}

func (a *API) SessionCount(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, SessionStats{Active: a.sessions.Len()})
}

// SweepSessions expires idle sessions now instead of waiting for the next tick.
func (a *API) SweepSessions(w http.ResponseWriter, r *http.Request) {
	n := a.sessions.Sweep(time.Now())
	log.WithField("expired", n).Info("admin sweep")
	render.JSON(w, r, SessionStats{Active: a.sessions.Len(), Expired: n})
}
