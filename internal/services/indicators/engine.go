package indicators

import "ConfluenceCal/internal/domain/models"

// Lookback is the ideal number of candles used for one bundle.
const Lookback = 200

const (
	rsiPeriod        = 14
	atrPeriod        = 14
	adxPeriod        = 14
	stochPeriod      = 14
	bbPeriod         = 20
	bbDev            = 2.0
	vwapPeriod       = 20
	fibPeriod        = 50
	levelsPeriod     = 100
	macdFast         = 12
	macdSlow         = 26
	macdSignalPeriod = 9
)

// Compute builds the indicator bundle at candles[index] from the trailing
// window of at most Lookback candles. An out-of-range index is clamped and
// shorter histories shrink every window; it never fails.
func Compute(candles []models.Candle, index int) models.IndicatorBundle {
	if len(candles) == 0 {
		return models.IndicatorBundle{}
	}
	if index < 0 {
		index = 0
	}
	if index >= len(candles) {
		index = len(candles) - 1
	}
	start := index - Lookback + 1
	if start < 0 {
		start = 0
	}
	win := candles[start : index+1]
	closes := closesOf(win)
	last := win[len(win)-1]

	b := models.IndicatorBundle{
		Timestamp: last.Bucket,
		Bars:      len(win),
		Close:     last.Close,

		SMA20:  SMA(closes, 20),
		SMA50:  SMA(closes, 50),
		SMA200: SMA(closes, 200),
		EMA12:  EMA(closes, 12),
		EMA26:  EMA(closes, 26),
		EMA50:  EMA(closes, 50),
		EMA200: EMA(closes, 200),

		RSI:  RSI(closes, rsiPeriod),
		ATR:  ATR(win, atrPeriod),
		VWAP: VWAP(win, vwapPeriod),
	}

	macd := MACD(closes, macdFast, macdSlow, macdSignalPeriod)
	b.MACD, b.MACDSignal, b.MACDHistogram = macd.MACD, macd.Signal, macd.Histogram

	adx := ADX(win, adxPeriod)
	b.ADX, b.PlusDI, b.MinusDI = adx.ADX, adx.PlusDI, adx.MinusDI

	b.StochK, b.StochD = Stochastic(win, stochPeriod)

	bb := Bollinger(closes, bbPeriod, bbDev)
	b.BBUpper, b.BBMiddle, b.BBLower = bb.Upper, bb.Middle, bb.Lower

	ichi := Ichimoku(win)
	b.Tenkan, b.Kijun, b.SpanA, b.SpanB = ichi.Tenkan, ichi.Kijun, ichi.SpanA, ichi.SpanB

	fib := Fibonacci(win, fibPeriod)
	b.FibHigh, b.FibLow = fib.High, fib.Low
	b.Fib236, b.Fib382, b.Fib500, b.Fib618 = fib.Level236, fib.Level382, fib.Level500, fib.Level618

	b.Support, b.Resistance = SupportResistance(win, levelsPeriod, last.Close)

	s := SessionsAt(last.Bucket)
	b.SessionAsian, b.SessionLondon, b.SessionNewYork, b.SessionOverlap = s.Asian, s.London, s.NewYork, s.Overlap

	return b
}

// ComputeLatest is Compute at the last candle.
func ComputeLatest(candles []models.Candle) models.IndicatorBundle {
	return Compute(candles, len(candles)-1)
}

func closesOf(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}
