package indicators

import "ConfluenceCal/internal/domain/models"

// RSI computes the relative strength index from the simple average of gains
// and losses over the last period close-to-close changes. It returns 100 when
// the average loss is zero and the neutral 50 when fewer than two closes exist.
func RSI(closes []float64, period int) float64 {
	n := effectivePeriod(len(closes)-1, period)
	if n == 0 {
		return 50
	}
	var gain, loss float64
	for i := len(closes) - n; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain := gain / float64(n)
	avgLoss := loss / float64(n)
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// MACDResult holds the MACD line, its signal line and their difference.
type MACDResult struct {
	MACD      float64
	Signal    float64
	Histogram float64
}

// signalApprox scales the latest MACD value when the series is too short for
// a real signal EMA.
const signalApprox = 0.9

// MACD computes EMA(fast) - EMA(slow). The signal line is the signal-period EMA
// of the MACD series once slow+signal-1 closes exist, otherwise it is
// approximated from the latest MACD value.
func MACD(closes []float64, fast, slow, signal int) MACDResult {
	if len(closes) == 0 {
		return MACDResult{}
	}
	line := EMA(closes, fast) - EMA(closes, slow)
	res := MACDResult{MACD: line, Signal: line * signalApprox}

	if fast < slow && signal > 0 && len(closes) >= slow+signal-1 {
		fastS := EMASeries(closes, fast) // starts at index fast-1
		slowS := EMASeries(closes, slow) // starts at index slow-1
		series := make([]float64, len(slowS))
		off := slow - fast
		for i := range slowS {
			series[i] = fastS[i+off] - slowS[i]
		}
		res.Signal = EMA(series, signal)
	}
	res.Histogram = res.MACD - res.Signal
	return res
}

// Stochastic returns %K over the last period candles and %D, which mirrors %K.
// A flat range yields 50.
func Stochastic(candles []models.Candle, period int) (k, d float64) {
	n := effectivePeriod(len(candles), period)
	if n == 0 {
		return 50, 50
	}
	hh, ll := highLow(candles[len(candles)-n:])
	if hh == ll {
		return 50, 50
	}
	k = (candles[len(candles)-1].Close - ll) / (hh - ll) * 100
	return k, k
}
