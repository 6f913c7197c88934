package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dverett/pricefeed-backend/internal/worker"
)

// handleWorkerFetch is the remote worker invocation endpoint: it runs one
// chunk fetch synchronously and answers with plain success or failure, the
// contract the orchestrator's HTTP invoker expects.
func (s *Server) handleWorkerFetch(w http.ResponseWriter, r *http.Request) {
	if s.fetcher == nil {
		writeError(w, http.StatusNotImplemented, "no worker configured on this deployment")
		return
	}

	var payload worker.FetchPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !validateSymbol(payload.Symbol) {
		writeError(w, http.StatusBadRequest, "invalid symbol")
		return
	}
	if !validateDate(payload.ChunkStart) || !validateDate(payload.ChunkEnd) {
		writeError(w, http.StatusBadRequest, "chunkStart and chunkEnd must be YYYY-MM-DD")
		return
	}
	start, _ := time.Parse("2006-01-02", payload.ChunkStart)
	end, _ := time.Parse("2006-01-02", payload.ChunkEnd)
	if !start.Before(end) {
		writeError(w, http.StatusBadRequest, "chunkStart must precede chunkEnd")
		return
	}

	if err := s.fetcher.FetchRange(r.Context(), payload.Symbol, start, end); err != nil {
		fmt.Printf("[API] Worker fetch failed for %s: %v\n", payload.Symbol, err)
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"status": "failed",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
