package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dverett/pricefeed-backend/internal/httputil"
)

// FetchPayload is the wire form of a worker invocation request. Dates are
// YYYY-MM-DD; ChunkEnd is exclusive.
type FetchPayload struct {
	Symbol     string `json:"symbol"`
	ChunkStart string `json:"chunkStart"`
	ChunkEnd   string `json:"chunkEnd"`
}

// HTTPInvoker drives a remotely deployed worker over its fetch endpoint.
// The call is synchronous: it returns only once the remote worker has
// finished (or failed) the whole range. It satisfies the same FetchRange
// contract as the in-process Worker.
type HTTPInvoker struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

func NewHTTPInvoker(url, apiKey string) *HTTPInvoker {
	return &HTTPInvoker{
		url:    url,
		apiKey: apiKey,
		// No client-level timeout: the caller bounds the invocation via ctx,
		// and a chunk fetch can legitimately run for many minutes.
		httpClient: &http.Client{},
	}
}

func (inv *HTTPInvoker) FetchRange(ctx context.Context, symbol string, start, end time.Time) error {
	payload := FetchPayload{
		Symbol:     symbol,
		ChunkStart: start.UTC().Format("2006-01-02"),
		ChunkEnd:   end.UTC().Format("2006-01-02"),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal fetch payload: %w", err)
	}

	// Single attempt per invocation: retries happen at the granularity of
	// whole orchestrator invocations, never inside one.
	resp, err := httputil.Do(ctx, inv.httpClient, httputil.RetryConfig{MaxAttempts: 1}, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, inv.url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if inv.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+inv.apiKey)
		}
		return req, nil
	})
	if err != nil {
		return fmt.Errorf("invoke worker: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("worker returned status %d: %s", resp.StatusCode, string(detail))
	}
	return nil
}
