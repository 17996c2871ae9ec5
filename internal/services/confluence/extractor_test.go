package confluence

import (
	"testing"
	"time"

	"ConfluenceCal/internal/domain/models"
	"ConfluenceCal/internal/services/indicators"
)

func bullishBundle() models.IndicatorBundle {
	return models.IndicatorBundle{
		Bars:          200,
		Close:         100,
		EMA50:         98,
		EMA200:        90,
		RSI:           60,
		MACDHistogram: 0.4,
		ADX:           30,
		PlusDI:        28,
		MinusDI:       12,
		StochK:        20,
		BBUpper:       110,
		BBMiddle:      104,
		BBLower:       99,
		Tenkan:        97,
		Kijun:         95,
		SpanA:         96,
		SpanB:         94,
		VWAP:          99,
		ATR:           2,
		Support:       99.5,
		Resistance:    104,
		FibHigh:       110,
		FibLow:        90,
		Fib382:        102.36,
		Fib500:        100,
		Fib618:        97.64,
		SessionLondon: true,
	}
}

func TestFlagsBullishSetupForBuy(t *testing.T) {
	f := Flags(bullishBundle(), models.DirectionBuy)
	for _, flag := range models.AllFlags() {
		if !f[flag] {
			t.Fatalf("flag %s should be set for BUY", flag)
		}
	}
}

func TestFlagsMirrorForSell(t *testing.T) {
	f := Flags(bullishBundle(), models.DirectionSell)
	for _, flag := range []models.Flag{
		models.FlagEMAAlign, models.FlagBBSignal, models.FlagRSIMomentum,
		models.FlagMACDMomentum, models.FlagADXTrend, models.FlagStochastic,
		models.FlagIchimoku, models.FlagVWAP,
	} {
		if f[flag] {
			t.Fatalf("flag %s should not be set for SELL on a bullish setup", flag)
		}
	}
	// key levels (fib 50 at the close) and session do not depend on direction
	if !f[models.FlagKeyLevel] || !f[models.FlagSession] {
		t.Fatalf("direction-neutral flags should stay set: %+v", f)
	}
}

func TestEMAAlignFollowsDirection(t *testing.T) {
	b := bullishBundle()
	b.EMA50, b.EMA200 = 90, 98
	if Flags(b, models.DirectionBuy)[models.FlagEMAAlign] {
		t.Fatalf("ema50 < ema200 should not align with BUY")
	}
	if !Flags(b, models.DirectionSell)[models.FlagEMAAlign] {
		t.Fatalf("ema50 < ema200 should align with SELL")
	}
}

func TestFlagsEmptyBundleOrBadDirection(t *testing.T) {
	if n := Flags(models.IndicatorBundle{}, models.DirectionBuy).Count(); n != 0 {
		t.Fatalf("empty bundle set %d flags", n)
	}
	if n := Flags(bullishBundle(), models.Direction("HOLD")).Count(); n != 0 {
		t.Fatalf("unknown direction set %d flags", n)
	}
}

func TestBandSignalZeroWidth(t *testing.T) {
	b := bullishBundle()
	b.BBUpper, b.BBMiddle, b.BBLower = 100, 100, 100
	if Flags(b, models.DirectionBuy)[models.FlagBBSignal] {
		t.Fatalf("zero-width bands must not signal")
	}
	if _, ok := PercentB(b); ok {
		t.Fatalf("PercentB should report zero width")
	}
}

func TestKeyLevelNeedsATR(t *testing.T) {
	b := bullishBundle()
	b.ATR = 0
	if Flags(b, models.DirectionBuy)[models.FlagKeyLevel] {
		t.Fatalf("key level requires a positive ATR")
	}
}

func TestFlagsFromEngineAreDeterministic(t *testing.T) {
	start := time.Date(2024, 1, 2, 14, 0, 0, 0, time.UTC)
	var cs []models.Candle
	for i := 0; i < 250; i++ {
		f := float64(i)
		cs = append(cs, models.Candle{
			Bucket: start.Add(time.Duration(i) * time.Minute),
			Open:   100 + f*0.1, High: 101 + f*0.1, Low: 99 + f*0.1, Close: 100.5 + f*0.1, Volume: 5,
		})
	}
	b := indicators.ComputeLatest(cs)
	a1 := Flags(b, models.DirectionBuy)
	a2 := Flags(indicators.ComputeLatest(cs), models.DirectionBuy)
	if a1 != a2 {
		t.Fatalf("flags differ between identical computations: %v vs %v", a1, a2)
	}
	if !a1[models.FlagEMAAlign] || !a1[models.FlagSession] || !a1[models.FlagVWAP] {
		t.Fatalf("steady uptrend during the overlap should align ema, session and vwap: %v", a1)
	}
}
