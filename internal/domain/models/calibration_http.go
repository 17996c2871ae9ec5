package models

import "encoding/json"

// Requests for the calibration HTTP endpoints.

// CalibrateSymbolRequest overrides the configured optimizer settings only
// for the fields it sets.
type CalibrateSymbolRequest struct {
	Symbol       string   `param:"symbol" json:"symbol" validate:"required"`
	From         string   `json:"from"`
	To           string   `json:"to"`
	LearningRate *float64 `json:"learningRate,omitempty" validate:"omitempty,gt=0,lte=10"`
	Iterations   *int     `json:"iterations,omitempty" validate:"omitempty,gte=1,lte=5000"`
	DryRun       bool     `json:"dryRun"`
}

type WeightsRequest struct {
	Symbol string `param:"symbol" json:"symbol" validate:"required"`
}

type ScoreRequest struct {
	Symbol  string          `json:"symbol"`
	Signals []SignalInput   `json:"signals" validate:"lte=100000"`
	Weights json.RawMessage `json:"weights,omitempty"`
}

type ErrorLogsRequest struct {
	Limit int `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=1000"`
}
