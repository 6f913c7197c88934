package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/dverett/pricefeed-backend/internal/models"
)

type barJSON struct {
	Day      string  `json:"day"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	AdjClose float64 `json:"adjClose"`
	Volume   int64   `json:"volume"`
}

func toBarJSON(b models.DailyBar) barJSON {
	return barJSON{
		Day:      b.DayKey(),
		Open:     b.Open,
		High:     b.High,
		Low:      b.Low,
		Close:    b.Close,
		AdjClose: b.AdjClose,
		Volume:   b.Volume,
	}
}

func (s *Server) handleLatestBar(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")
	if !validateSymbol(symbol) {
		writeError(w, http.StatusBadRequest, "invalid symbol")
		return
	}

	bar, err := s.barRepo.GetLatest(r.Context(), symbol)
	if err != nil {
		fmt.Printf("[API] Error fetching latest bar for %s: %v\n", symbol, err)
		writeError(w, http.StatusInternalServerError, "failed to fetch bar")
		return
	}
	if bar == nil {
		writeError(w, http.StatusNotFound, "no data for symbol")
		return
	}
	writeJSON(w, http.StatusOK, toBarJSON(*bar))
}

func (s *Server) handleBarsByRange(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")
	if !validateSymbol(symbol) {
		writeError(w, http.StatusBadRequest, "invalid symbol")
		return
	}

	startStr := r.URL.Query().Get("start")
	endStr := r.URL.Query().Get("end")
	if !validateDate(startStr) || !validateDate(endStr) {
		writeError(w, http.StatusBadRequest, "start and end are required, format YYYY-MM-DD")
		return
	}
	start, _ := time.Parse("2006-01-02", startStr)
	end, _ := time.Parse("2006-01-02", endStr)
	if end.Before(start) {
		writeError(w, http.StatusBadRequest, "end is before start")
		return
	}

	bars, err := s.barRepo.GetRange(r.Context(), symbol, start, end)
	if err != nil {
		fmt.Printf("[API] Error fetching bars for %s: %v\n", symbol, err)
		writeError(w, http.StatusInternalServerError, "failed to fetch bars")
		return
	}

	out := make([]barJSON, len(bars))
	for i, b := range bars {
		out[i] = toBarJSON(b)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSymbols(w http.ResponseWriter, r *http.Request) {
	symbols, err := s.barRepo.GetSymbols(r.Context())
	if err != nil {
		fmt.Printf("[API] Error fetching symbols: %v\n", err)
		writeError(w, http.StatusInternalServerError, "failed to fetch symbols")
		return
	}
	if symbols == nil {
		symbols = []string{}
	}
	writeJSON(w, http.StatusOK, symbols)
}
