package confluence

import (
	"math"

	"ConfluenceCal/internal/domain/models"
)

// Thresholds used by the flag predicates.
const (
	BandLowZone     = 0.2
	BandHighZone    = 0.8
	RSIMid          = 50.0
	RSIOverbought   = 70.0
	RSIOversold     = 30.0
	ADXStrongTrend  = 25.0
	StochBuyZone    = 30.0
	StochSellZone   = 70.0
	KeyLevelATRFrac = 0.5
)

// Flags evaluates the ten confluence conditions of bundle for a signal in the
// given direction. An empty bundle or an unknown direction sets nothing.
func Flags(b models.IndicatorBundle, dir models.Direction) models.ConfluenceFlags {
	var f models.ConfluenceFlags
	if b.Bars == 0 || !dir.Valid() {
		return f
	}
	buy := dir == models.DirectionBuy

	f[models.FlagEMAAlign] = (b.EMA50 > b.EMA200) == buy
	f[models.FlagBBSignal] = bandSignal(b, buy)
	f[models.FlagRSIMomentum] = rsiMomentum(b.RSI, buy)
	f[models.FlagMACDMomentum] = (buy && b.MACDHistogram > 0) || (!buy && b.MACDHistogram < 0)
	f[models.FlagADXTrend] = b.ADX >= ADXStrongTrend &&
		((buy && b.PlusDI > b.MinusDI) || (!buy && b.MinusDI > b.PlusDI))
	f[models.FlagStochastic] = (buy && b.StochK <= StochBuyZone) || (!buy && b.StochK >= StochSellZone)
	f[models.FlagIchimoku] = ichimoku(b, buy)
	f[models.FlagVWAP] = (buy && b.Close > b.VWAP) || (!buy && b.Close < b.VWAP)
	f[models.FlagKeyLevel] = nearKeyLevel(b, buy)
	f[models.FlagSession] = b.SessionLondon || b.SessionNewYork

	return f
}

// PercentB is the close's position inside the Bollinger bands, false on zero width.
func PercentB(b models.IndicatorBundle) (float64, bool) {
	width := b.BBUpper - b.BBLower
	if width <= 0 {
		return 0, false
	}
	return (b.Close - b.BBLower) / width, true
}

func bandSignal(b models.IndicatorBundle, buy bool) bool {
	pb, ok := PercentB(b)
	if !ok {
		return false
	}
	if buy {
		return pb <= BandLowZone
	}
	return pb >= BandHighZone
}

func rsiMomentum(rsi float64, buy bool) bool {
	if buy {
		return rsi > RSIMid && rsi < RSIOverbought
	}
	return rsi < RSIMid && rsi > RSIOversold
}

func ichimoku(b models.IndicatorBundle, buy bool) bool {
	top := math.Max(b.SpanA, b.SpanB)
	bottom := math.Min(b.SpanA, b.SpanB)
	if buy {
		return b.Close > top && b.Tenkan > b.Kijun
	}
	return b.Close < bottom && b.Tenkan < b.Kijun
}

func nearKeyLevel(b models.IndicatorBundle, buy bool) bool {
	if b.ATR <= 0 {
		return false
	}
	tol := KeyLevelATRFrac * b.ATR
	near := func(level float64) bool { return level > 0 && math.Abs(b.Close-level) <= tol }

	if buy && near(b.Support) {
		return true
	}
	if !buy && near(b.Resistance) {
		return true
	}
	if b.FibHigh == b.FibLow {
		return false
	}
	return near(b.Fib382) || near(b.Fib500) || near(b.Fib618)
}
