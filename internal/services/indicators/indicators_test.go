package indicators

import (
	"math"
	"reflect"
	"testing"
	"time"

	"ConfluenceCal/internal/domain/models"
)

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Fatalf("%s: got %.12f, want %.12f (tol %g)", label, got, want, tol)
	}
}

func ramp(from, to float64) []float64 {
	out := []float64{}
	for v := from; v <= to; v++ {
		out = append(out, v)
	}
	return out
}

func candle(h, l, c, v float64) models.Candle {
	return models.Candle{High: h, Low: l, Close: c, Open: c, Volume: v}
}

// ─── moving averages ──────────────────────────────────────────

func TestEMASeriesMatchesHandComputedReference(t *testing.T) {
	// closes 1..20, period 10: seed SMA(1..10)=5.5 and every later step
	// adds k*(close-ema) = (2/11)*5.5 = 1.
	got := EMASeries(ramp(1, 20), 10)
	want := []float64{5.5, 6.5, 7.5, 8.5, 9.5, 10.5, 11.5, 12.5, 13.5, 14.5, 15.5}
	if len(got) != len(want) {
		t.Fatalf("len: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		assertClose(t, "ema", got[i], want[i], 1e-9)
	}
	assertClose(t, "ema latest", EMA(ramp(1, 20), 10), 15.5, 1e-9)
}

func TestSMAShrinksToAvailableHistory(t *testing.T) {
	assertClose(t, "sma", SMA([]float64{1, 2, 3}, 10), 2, 1e-12)
	assertClose(t, "sma tail", SMA(ramp(1, 20), 4), 18.5, 1e-12)
	if SMA(nil, 5) != 0 || EMA(nil, 5) != 0 {
		t.Fatalf("empty input should yield 0")
	}
}

// ─── momentum ─────────────────────────────────────────────────

func TestRSIAllRisingIs100(t *testing.T) {
	assertClose(t, "rsi up", RSI(ramp(1, 15), 14), 100, 0)
}

func TestRSIAllFallingIs0(t *testing.T) {
	closes := ramp(1, 15)
	for i, j := 0, len(closes)-1; i < j; i, j = i+1, j-1 {
		closes[i], closes[j] = closes[j], closes[i]
	}
	assertClose(t, "rsi down", RSI(closes, 14), 0, 0)
}

func TestRSISimpleAverages(t *testing.T) {
	// changes +1, -1, +2 -> avg gain 1, avg loss 1/3, rs 3
	assertClose(t, "rsi", RSI([]float64{1, 2, 1, 3}, 3), 75, 1e-9)
	assertClose(t, "rsi short", RSI([]float64{5}, 14), 50, 0)
}

func TestMACDShortHistoryApproximatesSignal(t *testing.T) {
	closes := ramp(1, 10)
	m := MACD(closes, 12, 26, 9)
	assertClose(t, "signal", m.Signal, m.MACD*0.9, 1e-12)
	assertClose(t, "hist", m.Histogram, m.MACD-m.Signal, 1e-12)
}

func TestMACDFlatSeriesIsZero(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100
	}
	m := MACD(closes, 12, 26, 9)
	assertClose(t, "macd", m.MACD, 0, 1e-9)
	assertClose(t, "signal", m.Signal, 0, 1e-9)
}

func TestStochastic(t *testing.T) {
	cs := []models.Candle{candle(10, 5, 6, 1), candle(12, 6, 12, 1)}
	k, d := Stochastic(cs, 14)
	assertClose(t, "%K", k, 100, 1e-12)
	if k != d {
		t.Fatalf("%%D should mirror %%K: k=%v d=%v", k, d)
	}
	flat := []models.Candle{candle(5, 5, 5, 1), candle(5, 5, 5, 1)}
	k, _ = Stochastic(flat, 14)
	assertClose(t, "flat %K", k, 50, 0)
}

// ─── volatility ───────────────────────────────────────────────

func TestATRMeanTrueRange(t *testing.T) {
	cs := []models.Candle{candle(10, 8, 9, 1), candle(11, 9, 10, 1), candle(12, 9, 11, 1)}
	// TR: 2 (first bar, high-low), 2, 3
	assertClose(t, "atr", ATR(cs, 14), 7.0/3.0, 1e-12)
	assertClose(t, "atr 2", ATR(cs, 2), 2.5, 1e-12)
}

func TestADXStrictUptrend(t *testing.T) {
	var cs []models.Candle
	for i := 0; i < 20; i++ {
		f := float64(i)
		cs = append(cs, candle(f+2, f, f+1, 1))
	}
	r := ADX(cs, 14)
	assertClose(t, "+DI", r.PlusDI, 50, 1e-9)
	assertClose(t, "-DI", r.MinusDI, 0, 0)
	assertClose(t, "adx", r.ADX, 100, 1e-9)

	if got := ADX(cs[:1], 14); got != (ADXResult{}) {
		t.Fatalf("single bar ADX should be zero, got %+v", got)
	}
}

func TestBollingerDegenerateInputs(t *testing.T) {
	one := Bollinger([]float64{42}, 20, 2)
	if one.Upper != 42 || one.Middle != 42 || one.Lower != 42 {
		t.Fatalf("single close should collapse bands, got %+v", one)
	}
	flat := make([]float64, 30)
	for i := range flat {
		flat[i] = 100
	}
	bb := Bollinger(flat, 20, 2)
	assertClose(t, "upper", bb.Upper, 100, 1e-9)
	assertClose(t, "middle", bb.Middle, 100, 1e-9)
	assertClose(t, "lower", bb.Lower, 100, 1e-9)
}

func TestBollingerBandsAreOrdered(t *testing.T) {
	closes := []float64{10, 12, 11, 13, 12, 14, 13, 15, 14, 16}
	bb := Bollinger(closes, 20, 2)
	assertClose(t, "middle", bb.Middle, SMA(closes, 10), 1e-9)
	if !(bb.Lower < bb.Middle && bb.Middle < bb.Upper) {
		t.Fatalf("bands out of order: %+v", bb)
	}
	assertClose(t, "symmetry", bb.Upper-bb.Middle, bb.Middle-bb.Lower, 1e-9)
}

// ─── levels ───────────────────────────────────────────────────

func TestFibonacciLevels(t *testing.T) {
	cs := []models.Candle{candle(110, 104, 105, 1), candle(108, 100, 101, 1)}
	f := Fibonacci(cs, 50)
	assertClose(t, "high", f.High, 110, 0)
	assertClose(t, "low", f.Low, 100, 0)
	assertClose(t, "23.6", f.Level236, 107.64, 1e-9)
	assertClose(t, "38.2", f.Level382, 106.18, 1e-9)
	assertClose(t, "50", f.Level500, 105, 1e-9)
	assertClose(t, "61.8", f.Level618, 103.82, 1e-9)
}

func TestFibonacciZeroRange(t *testing.T) {
	cs := []models.Candle{candle(5, 5, 5, 1), candle(5, 5, 5, 1)}
	f := Fibonacci(cs, 50)
	for _, v := range []float64{f.Level236, f.Level382, f.Level500, f.Level618} {
		if v != 5 {
			t.Fatalf("zero range should collapse levels onto the high, got %+v", f)
		}
	}
}

func TestSupportResistanceNearestLevels(t *testing.T) {
	cs := []models.Candle{candle(110, 100, 105, 1), candle(106, 104, 105, 1)}
	s, r := SupportResistance(cs, 100, 105)
	assertClose(t, "support", s, 104, 0)
	assertClose(t, "resistance", r, 106, 0)

	s, r = SupportResistance(cs, 100, 200)
	if s != 110 || r != 0 {
		t.Fatalf("above every level: support=%v resistance=%v", s, r)
	}
}

func TestVWAP(t *testing.T) {
	cs := []models.Candle{candle(12, 9, 9, 1), candle(21, 15, 18, 3)}
	// typical prices 10 and 18
	assertClose(t, "vwap", VWAP(cs, 20), (10*1+18*3)/4.0, 1e-12)

	noVol := []models.Candle{candle(12, 9, 9, 0), candle(21, 15, 18, 0)}
	assertClose(t, "vwap fallback", VWAP(noVol, 20), 18, 0)
}

func TestIchimokuMidpoints(t *testing.T) {
	var cs []models.Candle
	for i := 0; i < 60; i++ {
		f := float64(i)
		cs = append(cs, candle(f+1, f, f, 1))
	}
	ichi := Ichimoku(cs)
	assertClose(t, "tenkan", ichi.Tenkan, (60+51)/2.0, 1e-12)
	assertClose(t, "kijun", ichi.Kijun, (60+34)/2.0, 1e-12)
	assertClose(t, "spanB", ichi.SpanB, (60+8)/2.0, 1e-12)
	assertClose(t, "spanA", ichi.SpanA, (ichi.Tenkan+ichi.Kijun)/2, 1e-12)
}

func TestSessionsAt(t *testing.T) {
	day := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		hour int
		want Sessions
	}{
		{3, Sessions{Asian: true}},
		{8, Sessions{Asian: true, London: true}},
		{13, Sessions{London: true, NewYork: true, Overlap: true}},
		{18, Sessions{NewYork: true}},
		{22, Sessions{}},
	}
	for _, tc := range cases {
		got := SessionsAt(day.Add(time.Duration(tc.hour) * time.Hour))
		if got != tc.want {
			t.Fatalf("hour %d: got %+v, want %+v", tc.hour, got, tc.want)
		}
	}
}

// ─── engine ───────────────────────────────────────────────────

func TestComputeEmptyInput(t *testing.T) {
	b := Compute(nil, 5)
	if b.Bars != 0 {
		t.Fatalf("empty input should yield an empty bundle, got bars=%d", b.Bars)
	}
}

func TestComputeSingleCandleHasNoNaN(t *testing.T) {
	b := Compute([]models.Candle{candle(11, 9, 10, 0)}, 0)
	if b.Bars != 1 {
		t.Fatalf("bars: got %d, want 1", b.Bars)
	}
	v := reflect.ValueOf(b)
	for i := 0; i < v.NumField(); i++ {
		f := v.Field(i)
		if f.Kind() != reflect.Float64 {
			continue
		}
		if x := f.Float(); math.IsNaN(x) || math.IsInf(x, 0) {
			t.Fatalf("field %s is %v", v.Type().Field(i).Name, x)
		}
	}
}

func TestComputeCapsLookbackAndClampsIndex(t *testing.T) {
	start := time.Date(2024, 3, 5, 13, 0, 0, 0, time.UTC)
	var cs []models.Candle
	for i := 0; i < 300; i++ {
		f := float64(i)
		c := candle(f+2, f, f+1, 10)
		c.Bucket = start.Add(time.Duration(i) * time.Minute)
		cs = append(cs, c)
	}
	b := Compute(cs, 1000)
	if b.Bars != Lookback {
		t.Fatalf("bars: got %d, want %d", b.Bars, Lookback)
	}
	assertClose(t, "close", b.Close, 300, 0)
	if !(b.EMA50 > b.EMA200) {
		t.Fatalf("uptrend should have ema50 > ema200: %v <= %v", b.EMA50, b.EMA200)
	}
	assertClose(t, "rsi", b.RSI, 100, 0)
	if b.MACDHistogram == 0 && b.MACD == 0 {
		t.Fatalf("macd should be non-zero on a trend")
	}

	mid := Compute(cs, 50)
	if mid.Bars != 51 {
		t.Fatalf("bars at index 50: got %d, want 51", mid.Bars)
	}
}
