package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dverett/pricefeed-backend/internal/models"
)

type fakeBackfill struct {
	checkpoints []models.BackfillCheckpoint
	runErr      error
	ranSymbols  []string
}

func (f *fakeBackfill) RunAll(ctx context.Context, symbols []string) error {
	f.ranSymbols = symbols
	return f.runErr
}

func (f *fakeBackfill) Status(ctx context.Context, symbols []string) ([]models.BackfillCheckpoint, error) {
	return f.checkpoints, nil
}

func TestHandleBackfillStatus(t *testing.T) {
	attempt := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	fake := &fakeBackfill{
		checkpoints: []models.BackfillCheckpoint{
			{
				Symbol:          "SPY",
				CursorDate:      time.Date(2020, 7, 1, 0, 0, 0, 0, time.UTC),
				TargetStartDate: time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC),
				Status:          models.BackfillInProgress,
				LastAttemptAt:   &attempt,
			},
			{
				Symbol:          "TLT",
				CursorDate:      time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC),
				TargetStartDate: time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC),
				Status:          models.BackfillComplete,
			},
		},
	}
	s := &Server{backfill: fake, symbols: []string{"SPY", "TLT"}}

	req := httptest.NewRequest(http.MethodGet, "/v1/backfill/status", nil)
	rr := httptest.NewRecorder()
	s.handleBackfillStatus(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var out []checkpointJSON
	if err := json.NewDecoder(rr.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 checkpoints, got %d", len(out))
	}
	if out[0].CursorDate != "2020-07-01" || out[0].Status != "IN_PROGRESS" {
		t.Errorf("SPY checkpoint = %+v", out[0])
	}
	if out[0].LastAttemptAt == "" {
		t.Error("expected lastAttemptAt for SPY")
	}
	if out[1].Status != "COMPLETE" || out[1].RemainingDays != 0 {
		t.Errorf("TLT checkpoint = %+v", out[1])
	}
}

func TestHandleBackfillRun_AllSymbols(t *testing.T) {
	fake := &fakeBackfill{}
	s := &Server{backfill: fake, symbols: []string{"SPY", "TLT"}}

	req := httptest.NewRequest(http.MethodPost, "/v1/backfill/run", nil)
	rr := httptest.NewRecorder()
	s.handleBackfillRun(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if len(fake.ranSymbols) != 2 {
		t.Fatalf("ran symbols = %v", fake.ranSymbols)
	}
}

func TestHandleBackfillRun_SingleSymbol(t *testing.T) {
	fake := &fakeBackfill{}
	s := &Server{backfill: fake, symbols: []string{"SPY", "TLT"}}

	req := httptest.NewRequest(http.MethodPost, "/v1/backfill/run?symbol=TLT", nil)
	rr := httptest.NewRecorder()
	s.handleBackfillRun(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if len(fake.ranSymbols) != 1 || fake.ranSymbols[0] != "TLT" {
		t.Fatalf("ran symbols = %v", fake.ranSymbols)
	}
}

func TestHandleBackfillRun_UnknownSymbol(t *testing.T) {
	fake := &fakeBackfill{}
	s := &Server{backfill: fake, symbols: []string{"SPY"}}

	req := httptest.NewRequest(http.MethodPost, "/v1/backfill/run?symbol=MSFT", nil)
	rr := httptest.NewRecorder()
	s.handleBackfillRun(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestHandleBackfillRun_FailureIsReported(t *testing.T) {
	fake := &fakeBackfill{runErr: fmt.Errorf("SPY: worker invocation failed")}
	s := &Server{backfill: fake, symbols: []string{"SPY"}}

	req := httptest.NewRequest(http.MethodPost, "/v1/backfill/run", nil)
	rr := httptest.NewRecorder()
	s.handleBackfillRun(rr, req)

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rr.Code)
	}
	var out map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["status"] != "failed" || out["error"] == "" {
		t.Errorf("body = %v", out)
	}
}

type fakeFetcher struct {
	gotSymbol string
	gotStart  time.Time
	gotEnd    time.Time
	err       error
}

func (f *fakeFetcher) FetchRange(ctx context.Context, symbol string, start, end time.Time) error {
	f.gotSymbol, f.gotStart, f.gotEnd = symbol, start, end
	return f.err
}

func TestHandleWorkerFetch(t *testing.T) {
	fake := &fakeFetcher{}
	s := &Server{fetcher: fake}

	body := `{"symbol":"SPY","chunkStart":"2024-01-01","chunkEnd":"2024-06-01"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/worker/fetch", strings.NewReader(body))
	rr := httptest.NewRecorder()
	s.handleWorkerFetch(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	if fake.gotSymbol != "SPY" {
		t.Errorf("symbol = %q", fake.gotSymbol)
	}
	if fake.gotStart.Format("2006-01-02") != "2024-01-01" || fake.gotEnd.Format("2006-01-02") != "2024-06-01" {
		t.Errorf("range = %s..%s", fake.gotStart, fake.gotEnd)
	}
}

func TestHandleWorkerFetch_BadPayloads(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"not json", `nope`},
		{"bad symbol", `{"symbol":"S P Y","chunkStart":"2024-01-01","chunkEnd":"2024-06-01"}`},
		{"bad dates", `{"symbol":"SPY","chunkStart":"Jan 1","chunkEnd":"2024-06-01"}`},
		{"inverted range", `{"symbol":"SPY","chunkStart":"2024-06-01","chunkEnd":"2024-01-01"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := &Server{fetcher: &fakeFetcher{}}
			req := httptest.NewRequest(http.MethodPost, "/v1/worker/fetch", strings.NewReader(tc.body))
			rr := httptest.NewRecorder()
			s.handleWorkerFetch(rr, req)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rr.Code)
			}
		})
	}
}

func TestHandleWorkerFetch_FetchFailure(t *testing.T) {
	s := &Server{fetcher: &fakeFetcher{err: fmt.Errorf("tiingo returned status 500")}}

	body := `{"symbol":"SPY","chunkStart":"2024-01-01","chunkEnd":"2024-06-01"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/worker/fetch", strings.NewReader(body))
	rr := httptest.NewRecorder()
	s.handleWorkerFetch(rr, req)

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rr.Code)
	}
}

func TestHandleWorkerFetch_NoWorkerConfigured(t *testing.T) {
	s := &Server{fetcher: nil}
	body := `{"symbol":"SPY","chunkStart":"2024-01-01","chunkEnd":"2024-06-01"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/worker/fetch", strings.NewReader(body))
	rr := httptest.NewRecorder()
	s.handleWorkerFetch(rr, req)

	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d, want 501", rr.Code)
	}
}
