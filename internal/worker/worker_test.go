package worker_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/dverett/pricefeed-backend/internal/models"
	"github.com/dverett/pricefeed-backend/internal/objectstore"
	"github.com/dverett/pricefeed-backend/internal/worker"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type fakeSource struct {
	bars []models.DailyBar
	err  error

	gotSymbol string
	gotStart  time.Time
	gotEnd    time.Time
}

func (f *fakeSource) DailyPrices(ctx context.Context, symbol string, start, end time.Time) ([]models.DailyBar, error) {
	f.gotSymbol, f.gotStart, f.gotEnd = symbol, start, end
	return f.bars, f.err
}

type fakeRecorder struct {
	batches [][]models.DailyBar
	err     error
}

func (f *fakeRecorder) UpsertBatch(ctx context.Context, bars []models.DailyBar) error {
	f.batches = append(f.batches, bars)
	return f.err
}

func sampleBars(symbol string) []models.DailyBar {
	return []models.DailyBar{
		{Symbol: symbol, Day: date(2024, 1, 2), Open: 187.15, Close: 185.64, Volume: 82488700},
		{Symbol: symbol, Day: date(2024, 1, 3), Open: 184.22, Close: 184.25, Volume: 58414500},
	}
}

func TestFetchRange_WritesOneObjectPerDay(t *testing.T) {
	src := &fakeSource{bars: sampleBars("AAPL")}
	objects := objectstore.NewMemoryStore()
	rec := &fakeRecorder{}
	w := worker.New(src, objects, rec)

	err := w.FetchRange(context.Background(), "AAPL", date(2024, 1, 1), date(2024, 1, 5))
	if err != nil {
		t.Fatalf("FetchRange: %v", err)
	}

	// The source sees an inclusive range ending the day before chunk end.
	if !src.gotStart.Equal(date(2024, 1, 1)) || !src.gotEnd.Equal(date(2024, 1, 4)) {
		t.Errorf("source range = %s..%s, want 2024-01-01..2024-01-04",
			src.gotStart.Format("2006-01-02"), src.gotEnd.Format("2006-01-02"))
	}

	keys := objects.Keys()
	sort.Strings(keys)
	want := []string{
		"tiingo/AAPL/2024/01/02/data.json",
		"tiingo/AAPL/2024/01/03/data.json",
	}
	if len(keys) != len(want) {
		t.Fatalf("keys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d] = %q, want %q", i, keys[i], want[i])
		}
	}

	data, err := objects.Get(context.Background(), want[0])
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	var stored models.DailyBar
	if err := json.Unmarshal(data, &stored); err != nil {
		t.Fatalf("unmarshal stored object: %v", err)
	}
	if stored.Close != 185.64 {
		t.Errorf("stored close = %f", stored.Close)
	}

	if len(rec.batches) != 1 || len(rec.batches[0]) != 2 {
		t.Fatalf("recorder got %v batches", rec.batches)
	}
}

func TestFetchRange_RepeatIsIdempotent(t *testing.T) {
	src := &fakeSource{bars: sampleBars("AAPL")}
	objects := objectstore.NewMemoryStore()
	w := worker.New(src, objects, nil)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := w.FetchRange(ctx, "AAPL", date(2024, 1, 1), date(2024, 1, 5)); err != nil {
			t.Fatalf("FetchRange #%d: %v", i, err)
		}
	}
	if n := len(objects.Keys()); n != 2 {
		t.Fatalf("expected 2 objects after repeated fetch, got %d", n)
	}
}

func TestFetchRange_EmptyRange(t *testing.T) {
	w := worker.New(&fakeSource{}, objectstore.NewMemoryStore(), nil)
	err := w.FetchRange(context.Background(), "AAPL", date(2024, 1, 5), date(2024, 1, 5))
	if err == nil {
		t.Fatal("expected error for empty range")
	}
}

func TestFetchRange_SourceFailure(t *testing.T) {
	src := &fakeSource{err: fmt.Errorf("rate limited")}
	objects := objectstore.NewMemoryStore()
	w := worker.New(src, objects, nil)

	err := w.FetchRange(context.Background(), "AAPL", date(2024, 1, 1), date(2024, 1, 5))
	if err == nil {
		t.Fatal("expected fetch error to propagate")
	}
	if len(objects.Keys()) != 0 {
		t.Error("no objects should be written when the source fails")
	}
}

func TestFetchDaily_FetchesYesterdayForEachSymbol(t *testing.T) {
	src := &fakeSource{bars: nil}
	w := worker.New(src, objectstore.NewMemoryStore(), nil)

	now := time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)
	if err := w.FetchDaily(context.Background(), []string{"SPY"}, now); err != nil {
		t.Fatalf("FetchDaily: %v", err)
	}
	if !src.gotStart.Equal(date(2024, 5, 31)) || !src.gotEnd.Equal(date(2024, 5, 31)) {
		t.Errorf("daily range = %s..%s, want yesterday only",
			src.gotStart.Format("2006-01-02"), src.gotEnd.Format("2006-01-02"))
	}
}

func TestHTTPInvoker_PostsPayloadAndMapsStatus(t *testing.T) {
	var got worker.FetchPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret" {
			t.Errorf("auth = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	inv := worker.NewHTTPInvoker(srv.URL, "secret")
	err := inv.FetchRange(context.Background(), "SPY", date(2024, 1, 1), date(2024, 6, 1))
	if err != nil {
		t.Fatalf("FetchRange: %v", err)
	}
	if got.Symbol != "SPY" || got.ChunkStart != "2024-01-01" || got.ChunkEnd != "2024-06-01" {
		t.Errorf("payload = %+v", got)
	}
}

func TestHTTPInvoker_WorkerErrorIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "fetch blew up", http.StatusBadGateway)
	}))
	defer srv.Close()

	inv := worker.NewHTTPInvoker(srv.URL, "")
	err := inv.FetchRange(context.Background(), "SPY", date(2024, 1, 1), date(2024, 6, 1))
	if err == nil {
		t.Fatal("expected error for non-200 worker response")
	}
	t.Logf("error: %v", err)
}

func TestHTTPInvoker_RespectsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server's background read can detect the
		// client disconnect and cancel r.Context(); otherwise srv.Close
		// blocks forever on this connection.
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	inv := worker.NewHTTPInvoker(srv.URL, "")
	err := inv.FetchRange(ctx, "SPY", date(2024, 1, 1), date(2024, 6, 1))
	if err == nil {
		t.Fatal("expected timeout error")
	}
}
