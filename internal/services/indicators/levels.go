package indicators

import (
	"time"

	"ConfluenceCal/internal/domain/models"
)

// Midpoint is (highest high + lowest low)/2 over the last period candles.
func Midpoint(candles []models.Candle, period int) float64 {
	n := effectivePeriod(len(candles), period)
	if n == 0 {
		return 0
	}
	hh, ll := highLow(candles[len(candles)-n:])
	return (hh + ll) / 2
}

// IchimokuResult holds the unshifted Ichimoku lines.
type IchimokuResult struct {
	Tenkan float64
	Kijun  float64
	SpanA  float64
	SpanB  float64
}

// Ichimoku uses the classic 9/26/52 periods.
func Ichimoku(candles []models.Candle) IchimokuResult {
	r := IchimokuResult{
		Tenkan: Midpoint(candles, 9),
		Kijun:  Midpoint(candles, 26),
		SpanB:  Midpoint(candles, 52),
	}
	r.SpanA = (r.Tenkan + r.Kijun) / 2
	return r
}

// VWAP is the volume-weighted typical price (H+L+C)/3 over the last period
// candles. Without volume it falls back to the latest close.
func VWAP(candles []models.Candle, period int) float64 {
	n := effectivePeriod(len(candles), period)
	if n == 0 {
		return 0
	}
	var pv, vol float64
	for _, c := range candles[len(candles)-n:] {
		tp := (c.High + c.Low + c.Close) / 3
		pv += tp * c.Volume
		vol += c.Volume
	}
	if vol <= 0 {
		return candles[len(candles)-1].Close
	}
	return pv / vol
}

// FibonacciResult holds the retracement levels of a swing.
type FibonacciResult struct {
	High     float64
	Low      float64
	Level236 float64
	Level382 float64
	Level500 float64
	Level618 float64
}

// Fibonacci measures retracements down from the highest high of the last
// period candles. A zero range collapses every level onto the high.
func Fibonacci(candles []models.Candle, period int) FibonacciResult {
	n := effectivePeriod(len(candles), period)
	if n == 0 {
		return FibonacciResult{}
	}
	hh, ll := highLow(candles[len(candles)-n:])
	rng := hh - ll
	return FibonacciResult{
		High:     hh,
		Low:      ll,
		Level236: hh - rng*0.236,
		Level382: hh - rng*0.382,
		Level500: hh - rng*0.5,
		Level618: hh - rng*0.618,
	}
}

// SupportResistance returns the nearest high or low strictly below and above
// price among the last period candles. A side without a level is 0.
func SupportResistance(candles []models.Candle, period int, price float64) (support, resistance float64) {
	n := effectivePeriod(len(candles), period)
	if n == 0 {
		return 0, 0
	}
	consider := func(level float64) {
		switch {
		case level < price:
			if support == 0 || level > support {
				support = level
			}
		case level > price:
			if resistance == 0 || level < resistance {
				resistance = level
			}
		}
	}
	for _, c := range candles[len(candles)-n:] {
		consider(c.High)
		consider(c.Low)
	}
	return support, resistance
}

// Sessions holds the trading sessions active at a given time.
type Sessions struct {
	Asian   bool
	London  bool
	NewYork bool
	Overlap bool
}

// SessionsAt classifies the UTC hour of t.
func SessionsAt(t time.Time) Sessions {
	h := t.UTC().Hour()
	s := Sessions{
		Asian:   h < 9,
		London:  h >= 7 && h < 16,
		NewYork: h >= 12 && h < 21,
	}
	s.Overlap = s.London && s.NewYork
	return s
}
