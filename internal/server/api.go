package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/desertthunder/leadsync/internal/models"
	"github.com/desertthunder/leadsync/internal/shared"
	"github.com/desertthunder/leadsync/internal/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SnapshotResponse is the body of GET /v1/snapshot.
type SnapshotResponse struct {
	Version        models.Version      `json:"version"`
	Label          string              `json:"label"`
	CollectedUsers []string            `json:"collectedUsers"`
	SavedUserList  []models.UserRecord `json:"savedUserList"`
	Stats          models.Stats        `json:"stats"`
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status   string `json:"status"`
	Agent    bool   `json:"agent"`
	Displays int    `json:"displays"`
}

type apiHandler struct {
	snapshots SnapshotReader
	hub       *Hub
}

func (a *apiHandler) Routes() []string {
	return []string{"GET /v1/snapshot", "GET /healthz"}
}

func (a *apiHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/v1/snapshot":
		a.snapshot(w, r)
	case "/healthz":
		writeJSON(w, http.StatusOK, HealthResponse{
			Status:   "ok",
			Agent:    a.hub.mux.Agent() != nil,
			Displays: a.hub.Count(transport.RoleDisplay),
		})
	default:
		http.NotFound(w, r)
	}
}

func (a *apiHandler) snapshot(w http.ResponseWriter, r *http.Request) {
	v, err := models.ParseVersion(r.URL.Query().Get("version"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if a.snapshots == nil {
		writeError(w, http.StatusServiceUnavailable, shared.ErrServiceUnavailable)
		return
	}
	snap, err := a.snapshots.GetSavedData(r.Context(), v)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, models.ErrUnknownVersion) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}
	snap = snap.Clone()
	writeJSON(w, http.StatusOK, SnapshotResponse{
		Version:        v,
		Label:          v.Label(),
		CollectedUsers: snap.CollectedUsers,
		SavedUserList:  snap.SavedUserList,
		Stats:          snap.Stats(),
	})
}

func metricsHandler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
