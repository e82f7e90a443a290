package models

import "time"

// HistoricalData holds parallel OHLCV sequences ordered oldest to newest.
// All slices have the same length.
type HistoricalData struct {
	Timestamps []time.Time `json:"timestamps"`
	Opens      []float64   `json:"opens"`
	Highs      []float64   `json:"highs"`
	Lows       []float64   `json:"lows"`
	Closes     []float64   `json:"closes"`
	Volumes    []float64   `json:"volumes"`
}

// Len returns the number of periods.
func (h *HistoricalData) Len() int {
	if h == nil {
		return 0
	}
	return len(h.Closes)
}

// Consistent reports whether all sequences share the same length.
func (h *HistoricalData) Consistent() bool {
	if h == nil {
		return false
	}
	n := len(h.Closes)
	return len(h.Timestamps) == n && len(h.Opens) == n && len(h.Highs) == n &&
		len(h.Lows) == n && len(h.Volumes) == n
}

// HistoricalDataFromCandles converts ascending candles to parallel sequences.
func HistoricalDataFromCandles(cs []Candle) *HistoricalData {
	h := &HistoricalData{
		Timestamps: make([]time.Time, 0, len(cs)),
		Opens:      make([]float64, 0, len(cs)),
		Highs:      make([]float64, 0, len(cs)),
		Lows:       make([]float64, 0, len(cs)),
		Closes:     make([]float64, 0, len(cs)),
		Volumes:    make([]float64, 0, len(cs)),
	}
	for _, c := range cs {
		h.Timestamps = append(h.Timestamps, c.Bucket)
		h.Opens = append(h.Opens, c.Open)
		h.Highs = append(h.Highs, c.High)
		h.Lows = append(h.Lows, c.Low)
		h.Closes = append(h.Closes, c.Close)
		h.Volumes = append(h.Volumes, c.Volume)
	}
	return h
}

// MarketData is one instrument's current snapshot. HistoricalData is optional
// and fetched on demand by generators when absent.
type MarketData struct {
	Symbol         string          `json:"symbol"`
	Price          float64         `json:"price"`
	Change         *float64        `json:"change,omitempty"`
	ChangePercent  *float64        `json:"change_percent,omitempty"`
	Volume         *float64        `json:"volume,omitempty"`
	High           *float64        `json:"high,omitempty"`
	Low            *float64        `json:"low,omitempty"`
	Open           *float64        `json:"open,omitempty"`
	IsCrypto       bool            `json:"is_crypto"`
	HistoricalData *HistoricalData `json:"historical_data,omitempty"`
}

// Quote is the current price of an instrument as reported by a price feed.
type Quote struct {
	Price         float64
	Change        float64
	ChangePercent float64
}

// NewsItem is a headline consumed by non-technical generators.
type NewsItem struct {
	Symbol    string
	Headline  string
	Summary   string
	Source    string
	URL       string
	Published time.Time
}

// Candle represents an OHLCV record.
type Candle struct {
	Bucket time.Time
	Symbol string
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}
