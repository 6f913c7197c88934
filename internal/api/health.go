package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/dverett/pricefeed-backend/internal/objectstore"
)

type healthResponse struct {
	Status    string         `json:"status"`
	Timestamp string         `json:"timestamp"`
	Services  healthServices `json:"services"`
}

type healthServices struct {
	Database    string `json:"database"`
	ObjectStore string `json:"objectStore"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbStatus := "connected"
	if err := s.pool.Ping(r.Context()); err != nil {
		dbStatus = "disconnected"
	}

	// A not-found on a probe key still proves the store answers.
	storeStatus := "connected"
	if _, err := s.objects.Get(r.Context(), "health/probe"); err != nil && !errors.Is(err, objectstore.ErrNotFound) {
		storeStatus = "disconnected"
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services:  healthServices{Database: dbStatus, ObjectStore: storeStatus},
	})
}
