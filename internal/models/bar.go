package models

import "time"

// DailyBar is one end-of-day OHLCV record for a symbol.
type DailyBar struct {
	Symbol   string    `json:"symbol"`
	Day      time.Time `json:"day"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	AdjClose float64   `json:"adjClose"`
	Volume   int64     `json:"volume"`
}

// DayKey returns the bar's trading day in YYYY-MM-DD form.
func (b DailyBar) DayKey() string {
	return b.Day.UTC().Format("2006-01-02")
}
