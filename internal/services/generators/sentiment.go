package generators

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"

	"FinSignal/internal/domain/models"
	drepo "FinSignal/internal/domain/repository"
	domsvc "FinSignal/internal/domain/service"
	applogger "FinSignal/pkg/logger"
)

const (
	minNewsItems       = 3
	sentimentThreshold = 0.3
	sentimentLookback  = 30
)

var (
	positiveWords = wordSet("beat", "beats", "surge", "surges", "soar", "soars", "gain", "gains", "growth",
		"record", "upgrade", "upgraded", "bullish", "profit", "profits", "strong", "rally", "rallies",
		"outperform", "raise", "raises", "raised", "buy", "positive", "expands", "boost", "jump", "jumps")
	negativeWords = wordSet("miss", "misses", "plunge", "plunges", "drop", "drops", "fall", "falls", "loss",
		"losses", "downgrade", "downgraded", "bearish", "weak", "lawsuit", "probe", "cut", "cuts", "sell",
		"negative", "decline", "declines", "slump", "recall", "warning", "layoffs", "fraud", "crash")
)

func wordSet(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

// ScoreText returns a lexicon sentiment in [-1, 1]: (pos-neg)/(pos+neg), or 0
// when no lexicon word appears.
func ScoreText(text string) float64 {
	pos, neg := 0, 0
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	}) {
		if _, ok := positiveWords[w]; ok {
			pos++
		}
		if _, ok := negativeWords[w]; ok {
			neg++
		}
	}
	if pos+neg == 0 {
		return 0
	}
	return float64(pos-neg) / float64(pos+neg)
}

// SentimentGenerator turns recent headlines into a directional signal.
type SentimentGenerator struct {
	news     drepo.NewsFeed
	feed     drepo.MarketDataFeed
	interval drepo.Interval
	log      *applogger.Logger
}

var _ domsvc.SignalGenerator = (*SentimentGenerator)(nil)

func NewSentimentGenerator(news drepo.NewsFeed, feed drepo.MarketDataFeed, iv drepo.Interval, log *applogger.Logger) *SentimentGenerator {
	if log == nil {
		log = applogger.Nop()
	}
	return &SentimentGenerator{news: news, feed: feed, interval: iv, log: log}
}

func (g *SentimentGenerator) Type() models.SignalType { return models.TypeSentiment }

func (g *SentimentGenerator) GenerateSignals(ctx context.Context, md *models.MarketData, opts domsvc.GenerateOptions) models.SignalGeneratorResult {
	if md == nil || g.news == nil {
		return empty()
	}
	return safeGenerate(g.log, g.Type(), md.Symbol, func() models.SignalGeneratorResult {
		items, err := g.news.RecentNews(ctx, md.Symbol)
		if err != nil {
			g.log.Warn("sentiment: news unavailable", applogger.String("symbol", md.Symbol), applogger.Error(err))
			return empty()
		}
		if len(items) < minNewsItems {
			return empty()
		}

		total := 0.0
		for _, it := range items {
			total += ScoreText(it.Headline + " " + it.Summary)
		}
		score := total / float64(len(items))

		var dir models.Direction
		switch {
		case score > sentimentThreshold:
			dir = models.Buy
		case score < -sentimentThreshold:
			dir = models.Sell
		default:
			return empty()
		}

		var closes []float64
		if hist, err := historyFor(ctx, g.feed, md, g.interval, requiredHistory); err == nil && hist.Consistent() {
			closes = hist.Closes
		}
		price := md.Price
		if price <= 0 && len(closes) > 0 {
			price = closes[len(closes)-1]
		}
		if price <= 0 {
			return empty()
		}

		now := opts.Now
		if now.IsZero() {
			now = time.Now()
		}
		abs := math.Abs(score)
		stop, target := levels{stopPct: 0.04, targetPct: 0.08}.apply(dir, price)
		meta := models.Metadata{}
		meta.SetFloat("score", score)
		meta.SetInt("news_count", len(items))

		tone := "positive"
		if dir == models.Sell {
			tone = "negative"
		}
		s := newSignal(draft{
			symbol: md.Symbol, typ: models.TypeSentiment, dir: dir,
			strength:  strengthFor(abs, 0.7, 0.5),
			reason:    fmt.Sprintf("News sentiment %s (%.2f over %d articles)", tone, score, len(items)),
			price:     price, stop: stop, target: target,
			success:   BacktestSuccessRate(closes, dir, sentimentLookback) * (0.75 + 0.25*abs),
			timeframe: "short-term", ttl: 3 * day, now: now, meta: meta,
		})
		return models.SignalGeneratorResult{Signals: []models.TradingSignal{s}}
	})
}
