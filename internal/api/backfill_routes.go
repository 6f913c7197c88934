package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/dverett/pricefeed-backend/internal/models"
)

type checkpointJSON struct {
	Symbol          string `json:"symbol"`
	CursorDate      string `json:"cursorDate"`
	TargetStartDate string `json:"targetStartDate"`
	Status          string `json:"status"`
	RemainingDays   int    `json:"remainingDays"`
	LastAttemptAt   string `json:"lastAttemptAt,omitempty"`
	LastError       string `json:"lastError,omitempty"`
}

func toCheckpointJSON(cp models.BackfillCheckpoint) checkpointJSON {
	out := checkpointJSON{
		Symbol:          cp.Symbol,
		CursorDate:      cp.CursorDate.Format("2006-01-02"),
		TargetStartDate: cp.TargetStartDate.Format("2006-01-02"),
		Status:          string(cp.Status),
		RemainingDays:   cp.RemainingDays(),
		LastError:       cp.LastError,
	}
	if cp.LastAttemptAt != nil {
		out.LastAttemptAt = cp.LastAttemptAt.UTC().Format(time.RFC3339)
	}
	return out
}

func (s *Server) handleBackfillStatus(w http.ResponseWriter, r *http.Request) {
	checkpoints, err := s.backfill.Status(r.Context(), s.symbols)
	if err != nil {
		fmt.Printf("[API] Error loading backfill status: %v\n", err)
		writeError(w, http.StatusInternalServerError, "failed to load backfill status")
		return
	}

	out := make([]checkpointJSON, len(checkpoints))
	for i, cp := range checkpoints {
		out[i] = toCheckpointJSON(cp)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleBackfillRun triggers one orchestrator invocation synchronously, the
// same step the periodic scheduler fires. ?symbol= restricts the run to one
// configured symbol.
func (s *Server) handleBackfillRun(w http.ResponseWriter, r *http.Request) {
	symbols := s.symbols
	if want := r.URL.Query().Get("symbol"); want != "" {
		if !validateSymbol(want) {
			writeError(w, http.StatusBadRequest, "invalid symbol")
			return
		}
		found := false
		for _, sym := range s.symbols {
			if sym == want {
				symbols = []string{sym}
				found = true
				break
			}
		}
		if !found {
			writeError(w, http.StatusNotFound, "symbol not configured")
			return
		}
	}

	if err := s.backfill.RunAll(r.Context(), symbols); err != nil {
		fmt.Printf("[API] Manual backfill run finished with failures: %v\n", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"status": "failed",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
