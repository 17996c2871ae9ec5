package features

import (
	"testing"
	"time"

	"ConfluenceCal/internal/domain/models"
	domrepo "ConfluenceCal/internal/domain/repository"
	"ConfluenceCal/internal/services/confluence"
	"ConfluenceCal/internal/services/indicators"
)

func hourly(n int, start time.Time) []models.Candle {
	out := make([]models.Candle, n)
	for i := range out {
		c := 100 + float64(i)
		out[i] = models.Candle{
			Bucket: start.Add(time.Duration(i) * time.Hour),
			Symbol: "BTCUSDT",
			Open:   c - 0.5,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: 10,
		}
	}
	return out
}

func TestWindow(t *testing.T) {
	t0 := time.Date(2024, 3, 10, 12, 30, 0, 0, time.UTC)
	signals := []models.HistoricalSignal{
		{EntryTime: t0.Add(5 * time.Hour)},
		{EntryTime: t0},
		{EntryTime: t0.Add(-100 * time.Hour), HasConfluence: true},
	}
	from, to, ok := Window(signals, domrepo.TF1h)
	if !ok {
		t.Fatalf("window expected")
	}
	wantFrom := t0.Add(-time.Duration(indicators.Lookback) * time.Hour).Truncate(time.Hour)
	if !from.Equal(wantFrom) || !to.Equal(t0.Add(5*time.Hour).Truncate(time.Hour)) {
		t.Fatalf("window: %v .. %v", from, to)
	}

	if _, _, ok := Window(signals[2:], domrepo.TF1h); ok {
		t.Fatalf("no window when every signal has flags")
	}
}

func TestBackfillUsesLastClosedCandle(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := hourly(300, start)

	// candle 250 opens at 250:00 and is still forming at 250:20
	entry := start.Add(250*time.Hour + 20*time.Minute)
	signals := []models.HistoricalSignal{
		{ID: "a", Direction: models.DirectionBuy, EntryTime: entry},
		{ID: "b", Direction: models.DirectionSell, EntryTime: start.Add(30 * time.Minute)},
		{ID: "c", Direction: models.DirectionBuy, EntryTime: entry, HasConfluence: true},
		{ID: "d", Direction: models.DirectionBuy, EntryTime: start.Add(251 * time.Hour)},
	}
	if n := Backfill(signals, candles, domrepo.TF1h); n != 2 {
		t.Fatalf("filled: got %d, want 2", n)
	}

	want := confluence.Flags(indicators.Compute(candles, 249), models.DirectionBuy)
	if !signals[0].HasConfluence || signals[0].Confluence != want {
		t.Fatalf("signal a: %+v, want flags %v", signals[0], want)
	}
	if signals[1].HasConfluence {
		t.Fatalf("signal inside the first candle must stay without flags")
	}
	if signals[2].Confluence != (models.ConfluenceFlags{}) {
		t.Fatalf("existing flags must not be recomputed")
	}
	// candle 250 closes exactly at 251:00
	wantD := confluence.Flags(indicators.Compute(candles, 250), models.DirectionBuy)
	if signals[3].Confluence != wantD {
		t.Fatalf("signal d: got %v, want %v", signals[3].Confluence, wantD)
	}
	// a steady uptrend puts the close above VWAP
	if !signals[0].Confluence[models.FlagVWAP] {
		t.Fatalf("expected vwap flag on uptrend")
	}
}

func TestBackfillIgnoresFormingCandle(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	entry := start.Add(250*time.Hour + time.Minute)

	flagsWith := func(candles []models.Candle) models.ConfluenceFlags {
		signals := []models.HistoricalSignal{{Direction: models.DirectionBuy, EntryTime: entry}}
		if n := Backfill(signals, candles, domrepo.TF1h); n != 1 {
			t.Fatalf("filled: got %d, want 1", n)
		}
		return signals[0].Confluence
	}

	base := flagsWith(hourly(300, start))

	crashed := hourly(300, start)
	crashed[250].Close = 50
	crashed[250].Low = 49
	if got := flagsWith(crashed); got != base {
		t.Fatalf("flags moved with a candle closing after entry: %v vs %v", got, base)
	}
}

func TestAlignFromTo(t *testing.T) {
	from := time.Date(2024, 1, 1, 10, 7, 31, 0, time.UTC)
	to := time.Date(2024, 1, 1, 10, 59, 59, 0, time.UTC)
	f, tt := AlignFromTo(from, to, domrepo.TF15m)
	if f.Minute() != 0 || tt.Minute() != 45 {
		t.Fatalf("aligned: %v %v", f, tt)
	}
}
