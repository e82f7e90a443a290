package indicators

const (
	DefaultRSIPeriod  = 14
	DefaultMACDFast   = 12
	DefaultMACDSlow   = 26
	DefaultMACDSignal = 9
)

// RSI returns Wilder-smoothed relative strength values in [0, 100].
// The first value needs period deltas, so out[0] corresponds to prices[period].
// A window with no losses saturates to 100, flat windows included.
func RSI(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) < period+1 {
		return []float64{}
	}

	gains := make([]float64, len(prices)-1)
	losses := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if d := prices[i] - prices[i-1]; d > 0 {
			gains[i-1] = d
		} else {
			losses[i-1] = -d
		}
	}

	avgGain := wilder(gains, period)
	avgLoss := wilder(losses, period)
	out := make([]float64, len(avgGain))
	for i := range avgGain {
		out[i] = rsiValue(avgGain[i], avgLoss[i])
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// MACDResult holds the aligned MACD series. Histogram[i] and Signal[i] refer
// to the same period as MACD[i+len(MACD)-len(Signal)].
type MACDResult struct {
	MACD      []float64
	Signal    []float64
	Histogram []float64
}

// MACD computes fast EMA minus slow EMA, its signal EMA and the histogram.
// Unlike trend.Macd the full line is kept, not only the part with a signal.
func MACD(prices []float64, fast, slow, signal int) MACDResult {
	if fast <= 0 || slow <= fast || signal <= 0 || len(prices) < slow {
		return MACDResult{MACD: []float64{}, Signal: []float64{}, Histogram: []float64{}}
	}

	fastEMA := EMA(prices, fast)
	slowEMA := EMA(prices, slow)
	offset := slow - fast

	line := make([]float64, len(slowEMA))
	for i := range slowEMA {
		line[i] = fastEMA[i+offset] - slowEMA[i]
	}

	sig := EMA(line, signal)
	hist := make([]float64, len(sig))
	shift := len(line) - len(sig)
	for i := range sig {
		hist[i] = line[i+shift] - sig[i]
	}
	return MACDResult{MACD: line, Signal: sig, Histogram: hist}
}
