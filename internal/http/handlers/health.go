package handlers

import (
	"net/http"
)

type healthResponse struct {
	Status   string `json:"status"`
	Generate string `json:"generate"`
}

// Health is the liveness probe. It never calls a remote dependency, so it
// stays green while the model or media host is down.
func (a *App) Health(w http.ResponseWriter, _ *http.Request) {
	a.json(w, http.StatusOK, healthResponse{Status: "ok", Generate: "POST /api/generate-image"})
}
