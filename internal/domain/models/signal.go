package models

import (
	"math"
	"time"
)

// Candle represents an OHLCV record used by the indicator engine.
type Candle struct {
	Bucket time.Time
	Symbol string
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// Valid reports whether d is BUY or SELL.
func (d Direction) Valid() bool { return d == DirectionBuy || d == DirectionSell }

type Status string

const (
	StatusOpen    Status = "OPEN"
	StatusTPHit   Status = "TP_HIT"
	StatusSLHit   Status = "SL_HIT"
	StatusExpired Status = "EXPIRED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusTPHit, StatusSLHit, StatusExpired:
		return true
	default:
		return false
	}
}

// Terminal is true for signals resolved by hitting the target or the stop.
func (s Status) Terminal() bool { return s == StatusTPHit || s == StatusSLHit }

// HistoricalSignal is a resolved (or still open) signal produced upstream.
// Entry, Stop and Target are NaN when the source omitted them.
type HistoricalSignal struct {
	ID            string
	Symbol        string
	Direction     Direction
	Entry         float64
	Stop          float64
	Target        float64
	EntryTime     time.Time
	ExitTime      *time.Time
	Status        Status
	PnLPercent    *float64
	Confluence    ConfluenceFlags
	HasConfluence bool
}

// WellFormed reports whether the signal carries everything the scorer needs.
func (s HistoricalSignal) WellFormed() bool {
	if !s.Direction.Valid() || !s.Status.Valid() || !s.HasConfluence {
		return false
	}
	return finite(s.Entry) && finite(s.Stop) && finite(s.Target)
}

// PnL returns the reported pnl percent, false when missing or not finite.
func (s HistoricalSignal) PnL() (float64, bool) {
	if s.PnLPercent == nil || !finite(*s.PnLPercent) {
		return 0, false
	}
	return *s.PnLPercent, true
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
