package service

import (
	"context"
	"errors"
	"time"

	"ConfluenceCal/internal/domain/models"
)

var (
	// ErrInsufficientSignals rejects runs with too few terminal signals.
	ErrInsufficientSignals = errors.New("insufficient terminal signals")
	ErrInvalidInput        = errors.New("invalid calibration input")
	ErrInvalidWeights      = errors.New("invalid weights")
	ErrRunInProgress       = errors.New("calibration already running for symbol")
	ErrNoSignalStore       = errors.New("no signal store configured")
)

// SymbolRun describes a calibration over stored signals. Zero From/To fall
// back to the configured lookback ending now.
type SymbolRun struct {
	Symbol       string
	From         time.Time
	To           time.Time
	LearningRate *float64
	Iterations   *int
	DryRun       bool
}

// Calibrator runs calibrations and serves their results.
type Calibrator interface {
	Calibrate(ctx context.Context, in *models.CalibrationInput, publish bool) (*models.CalibrationReport, error)
	CalibrateSymbol(ctx context.Context, run SymbolRun) (*models.CalibrationReport, error)
	CurrentWeights(ctx context.Context, symbol string) (*models.PublishedWeights, error)
	ScoreSignals(ctx context.Context, symbol string, signals []models.SignalInput, weights *models.WeightVector) (*models.ScoreResult, error)
}
