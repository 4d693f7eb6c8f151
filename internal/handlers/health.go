package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/render"
)

// HealthResponse defines the health-check response payload
type HealthResponse struct {
	Status   string `json:"status"`
	Uptime   string `json:"uptime"`
	Version  string `json:"version"`
	Sessions int    `json:"sessions"`
}

var startTime = time.Now()

// Health returns service health, uptime and the live session count.
func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, HealthResponse{
		Status:   "ok",
		Uptime:   time.Since(startTime).Round(time.Second).String(),
		Version:  a.version,
		Sessions: a.sessions.Len(),
	})
}
