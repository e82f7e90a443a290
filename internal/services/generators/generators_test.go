package generators

import (
	"context"
	"errors"
	"math"
	"strconv"
	"testing"
	"time"

	"FinSignal/internal/domain/models"
	drepo "FinSignal/internal/domain/repository"
	domsvc "FinSignal/internal/domain/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 6, 3, 14, 30, 0, 0, time.UTC)

type fakeFeed struct {
	hist      *models.HistoricalData
	err       error
	requested int
}

func (f *fakeFeed) CurrentPrice(context.Context, string) (models.Quote, error) {
	return models.Quote{}, errors.New("not used")
}

func (f *fakeFeed) HistoricalCandles(_ context.Context, _ string, _ drepo.Interval, count int) (*models.HistoricalData, error) {
	f.requested = count
	return f.hist, f.err
}

type fakeNews struct {
	items []models.NewsItem
	err   error
}

func (f fakeNews) RecentNews(context.Context, string) ([]models.NewsItem, error) { return f.items, f.err }

// flatHistory builds OHLCV from closes with a one point range around each close.
func flatHistory(closes []float64) *models.HistoricalData {
	h := &models.HistoricalData{}
	for i, c := range closes {
		h.Timestamps = append(h.Timestamps, testNow.AddDate(0, 0, i-len(closes)))
		h.Opens = append(h.Opens, c)
		h.Highs = append(h.Highs, c+0.5)
		h.Lows = append(h.Lows, c-0.5)
		h.Closes = append(h.Closes, c)
		h.Volumes = append(h.Volumes, 1000)
	}
	return h
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func generate(g domsvc.SignalGenerator, md *models.MarketData) models.SignalGeneratorResult {
	return g.GenerateSignals(context.Background(), md, domsvc.GenerateOptions{Now: testNow})
}

func TestTechnical_GoldenCross(t *testing.T) {
	closes := repeat(100, 201)
	closes[150] = 90

	g := NewTechnicalGenerator(nil)
	res := generate(g, &models.MarketData{Symbol: "X", Price: 100, HistoricalData: flatHistory(closes)})

	require.Len(t, res.Signals, 1)
	s := res.Signals[0]
	assert.Equal(t, models.Buy, s.Signal)
	assert.Equal(t, models.Strong, s.Strength)
	assert.Equal(t, models.TypeTechnical, s.Type)
	assert.Equal(t, models.StatusActive, s.Status)
	assert.InDelta(t, 95.0, s.StopLoss, 1e-9)
	assert.InDelta(t, 115.0, s.TargetPrice, 1e-9)
	assert.Equal(t, 100.0, s.EntryPrice)
	assert.Equal(t, "3.00", s.RiskReward)
	assert.Equal(t, testNow.Add(30*24*time.Hour), s.Expiry)
	rule, _ := s.Metadata.String("rule")
	assert.Equal(t, "golden_cross", rule)
	assert.True(t, s.ValidLevels())
}

func TestTechnical_DeathCross(t *testing.T) {
	closes := repeat(100, 201)
	closes[150] = 110

	res := generate(NewTechnicalGenerator(nil), &models.MarketData{Symbol: "X", Price: 100, HistoricalData: flatHistory(closes)})

	require.Len(t, res.Signals, 1)
	s := res.Signals[0]
	assert.Equal(t, models.Sell, s.Signal)
	assert.InDelta(t, 105.0, s.StopLoss, 1e-9)
	assert.InDelta(t, 85.0, s.TargetPrice, 1e-9)
	assert.True(t, s.ValidLevels())
}

func TestTechnical_ShortTermCross(t *testing.T) {
	closes := append(repeat(100, 30), 110)

	res := generate(NewTechnicalGenerator(nil), &models.MarketData{Symbol: "X", Price: 110, HistoricalData: flatHistory(closes)})

	require.Len(t, res.Signals, 1, "first matching rule short-circuits the RSI rule")
	s := res.Signals[0]
	assert.Equal(t, models.Buy, s.Signal)
	assert.Equal(t, models.Moderate, s.Strength)
	assert.InDelta(t, 0.45, s.SuccessRate, 1e-9, "default back-test discounted to 90%")
	assert.Equal(t, testNow.Add(14*24*time.Hour), s.Expiry)
}

func TestTechnical_RSIOversold(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100 - float64(i)
	}

	res := generate(NewTechnicalGenerator(nil), &models.MarketData{Symbol: "X", Price: 71, HistoricalData: flatHistory(closes)})

	require.Len(t, res.Signals, 1)
	s := res.Signals[0]
	assert.Equal(t, models.Buy, s.Signal)
	assert.Equal(t, models.Moderate, s.Strength)
	assert.InDelta(t, 71*0.97, s.StopLoss, 1e-9)
	assert.InDelta(t, 71*1.05, s.TargetPrice, 1e-9)
	assert.InDelta(t, 0.425, s.SuccessRate, 1e-9)
	rsi, ok := s.Metadata.Float("rsi")
	require.True(t, ok)
	assert.Equal(t, 0.0, rsi)
}

func TestTechnical_FetchesHistoryWhenAbsent(t *testing.T) {
	closes := repeat(100, 201)
	closes[150] = 90
	feed := &fakeFeed{hist: flatHistory(closes)}

	res := generate(NewTechnicalGenerator(feed, WithHistory(50)), &models.MarketData{Symbol: "X", Price: 100})

	assert.Len(t, res.Signals, 1)
	assert.GreaterOrEqual(t, feed.requested, 200)
}

func TestTechnical_DegradesWithoutData(t *testing.T) {
	g := NewTechnicalGenerator(&fakeFeed{hist: flatHistory(repeat(100, 19))})
	assert.Empty(t, generate(g, &models.MarketData{Symbol: "X", Price: 100}).Signals, "fewer than 20 periods")

	g = NewTechnicalGenerator(&fakeFeed{err: errors.New("feed down")})
	assert.Empty(t, generate(g, &models.MarketData{Symbol: "X", Price: 100}).Signals)

	ragged := flatHistory(repeat(100, 40))
	ragged.Volumes = ragged.Volumes[:10]
	assert.Empty(t, generate(NewTechnicalGenerator(nil), &models.MarketData{Symbol: "X", Price: 100, HistoricalData: ragged}).Signals)

	assert.Empty(t, generate(NewTechnicalGenerator(nil), nil).Signals)
}

func TestTechnical_LevelsAlwaysOrdered(t *testing.T) {
	g := NewTechnicalGenerator(nil)
	series := make([]float64, 400)
	for i := range series {
		series[i] = 100 + 15*math.Sin(float64(i)/9) + 5*math.Sin(float64(i)/2.3)
	}

	produced := 0
	for end := 20; end <= len(series); end++ {
		closes := series[:end]
		res := generate(g, &models.MarketData{Symbol: "S", Price: closes[end-1], HistoricalData: flatHistory(closes)})
		for _, s := range res.Signals {
			produced++
			assert.True(t, s.ValidLevels(), "end=%d %+v", end, s)
			rr, err := strconv.ParseFloat(s.RiskReward, 64)
			require.NoError(t, err)
			assert.Greater(t, rr, 0.0)
			assert.GreaterOrEqual(t, s.SuccessRate, 0.0)
			assert.LessOrEqual(t, s.SuccessRate, 1.0)
		}
	}
	assert.Greater(t, produced, 0)
}

func TestBacktestSuccessRate(t *testing.T) {
	closes := repeat(100, 15)
	assert.Equal(t, 0.5, BacktestSuccessRate(closes[:14], models.Buy, 5), "not enough history")

	closes[5] = 104
	assert.Equal(t, 1.0, BacktestSuccessRate(closes, models.Buy, 5))
	assert.Equal(t, 0.0, BacktestSuccessRate(closes, models.Sell, 5))

	closes[5] = 90
	assert.Equal(t, 1.0, BacktestSuccessRate(closes, models.Sell, 5))
}

func TestPattern_HammerNearLows(t *testing.T) {
	h := &models.HistoricalData{}
	add := func(o, hi, lo, c float64) {
		h.Timestamps = append(h.Timestamps, testNow.AddDate(0, 0, len(h.Closes)-30))
		h.Opens, h.Highs, h.Lows, h.Closes = append(h.Opens, o), append(h.Highs, hi), append(h.Lows, lo), append(h.Closes, c)
		h.Volumes = append(h.Volumes, 1000)
	}
	for i := 0; i < 25; i++ {
		c := 150 - 2*float64(i)
		add(c+1, c+1.5, c-0.5, c)
	}
	add(100, 100.55, 98, 100.5)

	g := NewPatternGenerator(nil, drepo.Interval1d, 0, nil)
	res := generate(g, &models.MarketData{Symbol: "P", Price: 100.5, HistoricalData: h})

	require.Len(t, res.Signals, 1)
	s := res.Signals[0]
	assert.Equal(t, models.TypePattern, s.Type)
	assert.Equal(t, models.Buy, s.Signal)
	assert.Equal(t, models.Strong, s.Strength)
	assert.True(t, s.ValidLevels())
	assert.Equal(t, testNow.Add(5*24*time.Hour), s.Expiry)
	name, _ := s.Metadata.String("pattern")
	assert.Equal(t, "hammer", name)
	atr, _ := s.Metadata.Float("atr")
	assert.Greater(t, atr, 0.0)
	assert.InDelta(t, 100.5-1.5*atr, s.StopLoss, 1e-9)
}

func TestPattern_NoFormation(t *testing.T) {
	g := NewPatternGenerator(nil, drepo.Interval1d, 0, nil)
	res := generate(g, &models.MarketData{Symbol: "P", Price: 100, HistoricalData: flatHistory(repeat(100, 40))})
	assert.Empty(t, res.Signals)
}

func TestATRLevelsFallback(t *testing.T) {
	stop, target := atrLevels(models.Sell, 100, 0)
	assert.InDelta(t, 103.0, stop, 1e-9)
	assert.InDelta(t, 94.0, target, 1e-9)

	stop, target = atrLevels(models.Buy, 100, 2)
	assert.InDelta(t, 97.0, stop, 1e-9)
	assert.InDelta(t, 106.0, target, 1e-9)
}

func news(headlines ...string) []models.NewsItem {
	out := make([]models.NewsItem, 0, len(headlines))
	for _, h := range headlines {
		out = append(out, models.NewsItem{Symbol: "N", Headline: h})
	}
	return out
}

func TestSentiment(t *testing.T) {
	positive := fakeNews{items: news(
		"Company beats estimates with record profits",
		"Analysts upgrade shares after strong growth",
		"Stock surges to record",
	)}
	g := NewSentimentGenerator(positive, nil, drepo.Interval1d, nil)
	res := generate(g, &models.MarketData{Symbol: "N", Price: 100})

	require.Len(t, res.Signals, 1)
	s := res.Signals[0]
	assert.Equal(t, models.Buy, s.Signal)
	assert.Equal(t, models.Strong, s.Strength)
	assert.InDelta(t, 96.0, s.StopLoss, 1e-9)
	assert.InDelta(t, 108.0, s.TargetPrice, 1e-9)
	assert.InDelta(t, 0.5, s.SuccessRate, 1e-9)
	assert.Equal(t, testNow.Add(3*24*time.Hour), s.Expiry)

	negative := fakeNews{items: news("Shares plunge on fraud probe", "Downgrade after weak quarter", "Losses widen as sales decline")}
	res = generate(NewSentimentGenerator(negative, nil, drepo.Interval1d, nil), &models.MarketData{Symbol: "N", Price: 100})
	require.Len(t, res.Signals, 1)
	assert.Equal(t, models.Sell, res.Signals[0].Signal)
	assert.True(t, res.Signals[0].ValidLevels())
}

func TestSentiment_NeedsEnoughDirectionalNews(t *testing.T) {
	few := fakeNews{items: news("Stock surges", "Record profits")}
	assert.Empty(t, generate(NewSentimentGenerator(few, nil, drepo.Interval1d, nil), &models.MarketData{Symbol: "N", Price: 100}).Signals)

	mixed := fakeNews{items: news("Stock surges", "Stock plunges", "Quarterly report published")}
	assert.Empty(t, generate(NewSentimentGenerator(mixed, nil, drepo.Interval1d, nil), &models.MarketData{Symbol: "N", Price: 100}).Signals)

	broken := fakeNews{err: errors.New("timeout")}
	assert.Empty(t, generate(NewSentimentGenerator(broken, nil, drepo.Interval1d, nil), &models.MarketData{Symbol: "N", Price: 100}).Signals)

	assert.Empty(t, generate(NewSentimentGenerator(nil, nil, drepo.Interval1d, nil), &models.MarketData{Symbol: "N", Price: 100}).Signals)
}

func TestScoreText(t *testing.T) {
	assert.Equal(t, 1.0, ScoreText("Profits SURGE!"))
	assert.Equal(t, -1.0, ScoreText("shares drop"))
	assert.Equal(t, 0.0, ScoreText("gain then loss"))
	assert.Equal(t, 0.0, ScoreText("nothing to see"))
}
