package external

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/dverett/pricefeed-backend/internal/httputil"
	"github.com/dverett/pricefeed-backend/internal/models"
)

const defaultTiingoBaseURL = "https://api.tiingo.com"

// TiingoClient fetches end-of-day price history from the Tiingo API.
type TiingoClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	retry      httputil.RetryConfig
}

type TiingoOptions struct {
	// BaseURL overrides the API host, used in tests.
	BaseURL string
	Timeout time.Duration
}

func NewTiingoClient(apiKey string, opts TiingoOptions) *TiingoClient {
	base := opts.BaseURL
	if base == "" {
		base = defaultTiingoBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &TiingoClient{
		apiKey:     apiKey,
		baseURL:    base,
		httpClient: &http.Client{Timeout: timeout},
		retry: httputil.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   2 * time.Second,
			MaxDelay:    15 * time.Second,
		},
	}
}

// tiingoBar mirrors one element of the /tiingo/daily/<ticker>/prices
// response array.
type tiingoBar struct {
	Date     string  `json:"date"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	AdjClose float64 `json:"adjClose"`
	Volume   int64   `json:"volume"`
}

// DailyPrices fetches daily bars for symbol over the inclusive date range
// [start, end]. An empty response is not an error: weekends and holidays
// legitimately have no bars.
func (c *TiingoClient) DailyPrices(ctx context.Context, symbol string, start, end time.Time) ([]models.DailyBar, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("tiingo API key not configured")
	}

	q := url.Values{}
	q.Set("startDate", start.UTC().Format("2006-01-02"))
	q.Set("endDate", end.UTC().Format("2006-01-02"))
	q.Set("token", c.apiKey)
	reqURL := fmt.Sprintf("%s/tiingo/daily/%s/prices?%s", c.baseURL, url.PathEscape(symbol), q.Encode())

	resp, err := httputil.Do(ctx, c.httpClient, c.retry, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("tiingo fetch %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tiingo returned status %d for %s", resp.StatusCode, symbol)
	}

	var raw []tiingoBar
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode tiingo response for %s: %w", symbol, err)
	}

	bars := make([]models.DailyBar, 0, len(raw))
	for _, rb := range raw {
		day, err := time.Parse(time.RFC3339, rb.Date)
		if err != nil {
			return nil, fmt.Errorf("bad date %q in tiingo response for %s: %w", rb.Date, symbol, err)
		}
		bars = append(bars, models.DailyBar{
			Symbol:   symbol,
			Day:      day.UTC().Truncate(24 * time.Hour),
			Open:     rb.Open,
			High:     rb.High,
			Low:      rb.Low,
			Close:    rb.Close,
			AdjClose: rb.AdjClose,
			Volume:   rb.Volume,
		})
	}
	return bars, nil
}
