package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dverett/pricefeed-backend/internal/models"
	"github.com/dverett/pricefeed-backend/internal/objectstore"
	"github.com/dverett/pricefeed-backend/internal/repository"
)

var (
	dateRegexp   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	symbolRegexp = regexp.MustCompile(`^[A-Za-z0-9.\-]{1,12}$`)
)

// BackfillService is the orchestrator surface the API exposes.
type BackfillService interface {
	RunAll(ctx context.Context, symbols []string) error
	Status(ctx context.Context, symbols []string) ([]models.BackfillCheckpoint, error)
}

// FetchService is the worker surface behind the remote invocation endpoint.
type FetchService interface {
	FetchRange(ctx context.Context, symbol string, start, end time.Time) error
}

type Server struct {
	pool       *pgxpool.Pool
	objects    objectstore.Store
	barRepo    *repository.BarRepo
	backfill   BackfillService
	fetcher    FetchService
	symbols    []string
	httpServer *http.Server
	apiKey     string
}

func NewServer(pool *pgxpool.Pool, objects objectstore.Store, backfill BackfillService, fetcher FetchService, symbols []string, port int, apiKey, corsOrigin string) *Server {
	s := &Server{
		pool:     pool,
		objects:  objects,
		barRepo:  repository.NewBarRepo(pool),
		backfill: backfill,
		fetcher:  fetcher,
		symbols:  symbols,
		apiKey:   apiKey,
	}

	mux := http.NewServeMux()

	// Bar routes
	mux.HandleFunc("GET /v1/bars/{symbol}/latest", s.handleLatestBar)
	mux.HandleFunc("GET /v1/bars/{symbol}", s.handleBarsByRange)
	mux.HandleFunc("GET /v1/symbols", s.handleSymbols)

	// Backfill routes
	mux.HandleFunc("GET /v1/backfill/status", s.handleBackfillStatus)
	mux.HandleFunc("POST /v1/backfill/run", s.handleBackfillRun)

	// Worker invocation endpoint (remote worker deployments)
	mux.HandleFunc("POST /v1/worker/fetch", s.handleWorkerFetch)

	// Health and metrics (no auth required)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	handler := s.authMiddleware(corsMiddleware(mux, corsOrigin))

	s.httpServer = &http.Server{
		Addr:        fmt.Sprintf(":%d", port),
		Handler:     handler,
		ReadTimeout: 10 * time.Second,
		// Long write timeout: /v1/worker/fetch runs a whole chunk fetch
		// inside the request.
		WriteTimeout: 20 * time.Minute,
	}

	return s
}

func (s *Server) Start() error {
	fmt.Printf("[API] REST API server started on http://localhost%s\n", s.httpServer.Addr)
	fmt.Printf("[API] Health check: http://localhost%s/health\n", s.httpServer.Addr)
	if s.apiKey != "" {
		fmt.Println("[API] Authentication: enabled (Bearer token)")
	} else {
		fmt.Println("[API] Authentication: disabled (no API_KEY configured)")
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// --- middleware ---

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" || r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		auth := r.Header.Get("Authorization")
		if auth == "" {
			writeError(w, http.StatusUnauthorized, "missing Authorization header")
			return
		}

		token := strings.TrimPrefix(auth, "Bearer ")
		if token == auth || token != s.apiKey {
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(next http.Handler, allowOrigin string) http.Handler {
	if allowOrigin == "" {
		allowOrigin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- validation helpers ---

func validateDate(date string) bool {
	if !dateRegexp.MatchString(date) {
		return false
	}
	_, err := time.Parse("2006-01-02", date)
	return err == nil
}

func validateSymbol(symbol string) bool {
	return symbolRegexp.MatchString(symbol)
}

// --- response helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
