package repository

import (
	"context"
	"errors"
	"time"

	"ConfluenceCal/internal/domain/models"
)

// ErrNotFound is returned by stores when nothing is recorded for a key.
var ErrNotFound = errors.New("not found")

// SignalStore provides read-only access to historical signal outcomes.
type SignalStore interface {
	LoadSignals(ctx context.Context, symbol string, from, to time.Time) ([]models.HistoricalSignal, error)
}

// CandleStore provides the candle history used to backfill confluence flags.
// Candles are returned oldest first.
type CandleStore interface {
	GetCandles(ctx context.Context, symbol string, from, to time.Time, tf Timeframe) ([]models.Candle, error)
}

// WeightStore keeps the current published weights per symbol.
type WeightStore interface {
	SaveWeights(ctx context.Context, rec *models.PublishedWeights) error
	LoadWeights(ctx context.Context, symbol string) (*models.PublishedWeights, error)
}

// RunLock serializes calibration runs per symbol across instances.
type RunLock interface {
	TryLock(ctx context.Context, symbol string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, symbol string) error
}

// WeightPublisher announces newly published weights to downstream consumers.
type WeightPublisher interface {
	PublishWeights(ctx context.Context, rec *models.PublishedWeights) error
	Close() error
}

// RunStore appends calibration runs to a history.
type RunStore interface {
	SaveRun(ctx context.Context, rep *models.CalibrationReport) error
	RecentRuns(ctx context.Context, symbol string, limit int) ([]models.CalibrationReport, error)
}

type Metrics interface {
	RecordRun(symbol, outcome string, seconds float64)
	RecordScore(symbol string, score float64)
	RecordIterations(symbol string, n int)
	RecordExcluded(symbol string, n int)
	RecordError(kind string)
}
