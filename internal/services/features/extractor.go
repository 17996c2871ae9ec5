package features

import (
	"sort"
	"time"

	"ConfluenceCal/internal/domain/models"
	domrepo "ConfluenceCal/internal/domain/repository"
	"ConfluenceCal/internal/services/confluence"
	"ConfluenceCal/internal/services/indicators"
)

// Window returns the candle range needed to backfill every signal in
// signals: from Lookback bars before the earliest entry to the latest entry,
// aligned to tf. ok is false when no signal needs a backfill.
func Window(signals []models.HistoricalSignal, tf domrepo.Timeframe) (from, to time.Time, ok bool) {
	for _, s := range signals {
		if s.HasConfluence || s.EntryTime.IsZero() {
			continue
		}
		if !ok || s.EntryTime.Before(from) {
			from = s.EntryTime
		}
		if !ok || s.EntryTime.After(to) {
			to = s.EntryTime
		}
		ok = true
	}
	if !ok {
		return from, to, false
	}
	from = from.Add(-time.Duration(indicators.Lookback) * tf.Duration())
	from, to = AlignFromTo(from, to, tf)
	return from, to, true
}

// Backfill computes confluence flags for signals that carry none, using the
// last candle that closed at or before each entry time. Bucket is a candle's
// open time, so the candle still forming at entry is skipped. candles must be
// sorted by Bucket. It returns the number of signals filled; signals with no
// closed candle before their entry are left untouched.
func Backfill(signals []models.HistoricalSignal, candles []models.Candle, tf domrepo.Timeframe) int {
	if len(candles) == 0 {
		return 0
	}
	width := tf.Duration()
	filled := 0
	for i := range signals {
		s := &signals[i]
		if s.HasConfluence || s.EntryTime.IsZero() {
			continue
		}
		idx := sort.Search(len(candles), func(j int) bool {
			return candles[j].Bucket.Add(width).After(s.EntryTime)
		}) - 1
		if idx < 0 {
			continue
		}
		s.Confluence = confluence.Flags(indicators.Compute(candles, idx), s.Direction)
		s.HasConfluence = true
		filled++
	}
	return filled
}

// AlignFromTo rounds time range to candle boundaries based on timeframe.
func AlignFromTo(from, to time.Time, tf domrepo.Timeframe) (time.Time, time.Time) {
	d := tf.Duration()
	if d <= 0 {
		d = time.Minute
	}
	return from.Truncate(d), to.Truncate(d)
}
