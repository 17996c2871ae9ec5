package models

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// SignalInput is the wire form of a historical signal. Missing prices decode
// to nil and become NaN on the domain side.
type SignalInput struct {
	ID         string           `json:"id,omitempty"`
	Symbol     string           `json:"symbol"`
	Direction  Direction        `json:"direction"`
	Entry      *float64         `json:"entry"`
	Stop       *float64         `json:"stop"`
	Target     *float64         `json:"target"`
	EntryTime  time.Time        `json:"entryTime"`
	ExitTime   *time.Time       `json:"exitTime,omitempty"`
	Status     Status           `json:"status"`
	PnLPercent *float64         `json:"pnlPercent,omitempty"`
	Confluence *ConfluenceFlags `json:"confluence,omitempty"`
}

func (in SignalInput) ToSignal() HistoricalSignal {
	s := HistoricalSignal{
		ID:         in.ID,
		Symbol:     in.Symbol,
		Direction:  in.Direction,
		Entry:      orNaN(in.Entry),
		Stop:       orNaN(in.Stop),
		Target:     orNaN(in.Target),
		EntryTime:  in.EntryTime,
		ExitTime:   in.ExitTime,
		Status:     in.Status,
		PnLPercent: in.PnLPercent,
	}
	if in.Confluence != nil {
		s.Confluence = *in.Confluence
		s.HasConfluence = true
	}
	return s
}

// ToSignals converts a batch in order.
func ToSignals(in []SignalInput) []HistoricalSignal {
	out := make([]HistoricalSignal, len(in))
	for i := range in {
		out[i] = in[i].ToSignal()
	}
	return out
}

func orNaN(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

// CalibrationInput is the request body of a calibration run.
type CalibrationInput struct {
	Symbol       string          `json:"symbol,omitempty"`
	Signals      []SignalInput   `json:"signals"`
	SeedWeights  json.RawMessage `json:"seedWeights,omitempty"`
	LearningRate *float64        `json:"learningRate,omitempty" validate:"omitempty,gt=0,lte=10"`
	Iterations   *int            `json:"iterations,omitempty" validate:"omitempty,gte=1,lte=5000"`
}

// Caps on per-run optimizer overrides. Every iteration costs 21 scoring
// passes over the whole signal set.
const (
	MaxIterations   = 5000
	MaxLearningRate = 10
)

// ValidateOverrides checks optional learning rate and iteration overrides
// against the per-run caps. nil means "use the configured value".
func ValidateOverrides(learningRate *float64, iterations *int) error {
	if learningRate != nil {
		if lr := *learningRate; !(lr > 0) || lr > MaxLearningRate {
			return fmt.Errorf("learningRate must be in (0, %d], got %v", MaxLearningRate, lr)
		}
	}
	if iterations != nil {
		if n := *iterations; n < 1 || n > MaxIterations {
			return fmt.Errorf("iterations must be in [1, %d], got %d", MaxIterations, n)
		}
	}
	return nil
}

// Seed returns the seed vector: DefaultWeights overlaid with any named
// weights from the request.
func (in *CalibrationInput) Seed() (WeightVector, error) {
	w := DefaultWeights()
	if len(in.SeedWeights) == 0 || string(in.SeedWeights) == "null" {
		return w, nil
	}
	if err := json.Unmarshal(in.SeedWeights, &w); err != nil {
		return w, fmt.Errorf("seed weights: %w", err)
	}
	return w, nil
}

// CalibrationOutput is the minimal result: the calibrated vector and its score.
type CalibrationOutput struct {
	Weights WeightVector `json:"weights"`
	Score   float64      `json:"score"`
}

// WeightChange describes how one weight moved during a run.
type WeightChange struct {
	Flag     string  `json:"flag"`
	Old      float64 `json:"old"`
	New      float64 `json:"new"`
	Absolute float64 `json:"absoluteChange"`
	Percent  float64 `json:"percentChange"`
}

// WeightChanges lists the per-flag change from old to new. Percent is 0 when
// the old weight is 0.
func WeightChanges(old, new WeightVector) []WeightChange {
	out := make([]WeightChange, 0, NumFlags)
	for _, f := range AllFlags() {
		c := WeightChange{Flag: f.String(), Old: old[f], New: new[f], Absolute: new[f] - old[f]}
		if old[f] != 0 {
			c.Percent = c.Absolute / old[f] * 100
		}
		out = append(out, c)
	}
	return out
}

// PerformanceMetrics is the scorer breakdown for one weight vector.
type PerformanceMetrics struct {
	Qualified int     `json:"qualified"`
	Wins      int     `json:"wins"`
	Losses    int     `json:"losses"`
	WinRate   float64 `json:"winRate"`
	Sharpe    float64 `json:"sharpe"`
	Score     float64 `json:"score"`
}

// ThresholdComparison compares seed and calibrated weights at one threshold.
type ThresholdComparison struct {
	Threshold          float64 `json:"threshold"`
	BaselineQualified  int     `json:"baselineQualified"`
	BaselineWinRate    float64 `json:"baselineWinRate"`
	OptimizedQualified int     `json:"optimizedQualified"`
	OptimizedWinRate   float64 `json:"optimizedWinRate"`
}

type Performance struct {
	Baseline           PerformanceMetrics    `json:"baseline"`
	Optimized          PerformanceMetrics    `json:"optimized"`
	WinRateImprovement float64               `json:"winRateImprovement"`
	Thresholds         []ThresholdComparison `json:"thresholds"`
}

// CalibrationReport is everything known about a finished run.
type CalibrationReport struct {
	RunID       string         `json:"runId"`
	Symbol      string         `json:"symbol"`
	Version     string         `json:"version"`
	Timestamp   time.Time      `json:"timestamp"`
	Received    int            `json:"received"`
	Usable      int            `json:"usable"`
	Excluded    int            `json:"excluded"`
	Terminal    int            `json:"terminal"`
	Backfilled  int            `json:"backfilled"`
	Iterations  int            `json:"iterations"`
	DurationMS  int64          `json:"durationMs"`
	Seed        WeightVector   `json:"seed"`
	Weights     WeightVector   `json:"weights"`
	Score       float64        `json:"score"`
	SeedScore   float64        `json:"seedScore"`
	FellBack    bool           `json:"fellBack"`
	Published   bool           `json:"published"`
	Changes     []WeightChange `json:"changes"`
	Performance Performance    `json:"performance"`
}

// Output trims the report to the calibration result.
func (r *CalibrationReport) Output() CalibrationOutput {
	return CalibrationOutput{Weights: r.Weights, Score: r.Score}
}

// PublishedWeights is the record consumers read to score live signals.
type PublishedWeights struct {
	Symbol      string       `json:"symbol"`
	Weights     WeightVector `json:"weights"`
	Score       float64      `json:"score"`
	Version     string       `json:"version"`
	RunID       string       `json:"runId,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
	Performance *Performance `json:"performance,omitempty"`
	Default     bool         `json:"default,omitempty"`
}

// DefaultPublished is served when no calibration has been published for symbol.
func DefaultPublished(symbol string) PublishedWeights {
	return PublishedWeights{Symbol: symbol, Weights: DefaultWeights(), Version: "default", Default: true}
}

// WeightsPublishedEvent is emitted on the events topic after each publish.
type WeightsPublishedEvent struct {
	Type string `json:"type"`
	PublishedWeights
}

const EventWeightsPublished = "weights.published"

// CalibrationRequest arrives on the requests topic. When Signals is set the
// run uses them directly, otherwise signals are loaded for Symbol.
type CalibrationRequest struct {
	Symbol       string        `json:"symbol"`
	From         *time.Time    `json:"from,omitempty"`
	To           *time.Time    `json:"to,omitempty"`
	LearningRate *float64      `json:"learningRate,omitempty" validate:"omitempty,gt=0,lte=10"`
	Iterations   *int          `json:"iterations,omitempty" validate:"omitempty,gte=1,lte=5000"`
	DryRun       bool          `json:"dryRun,omitempty"`
	Signals      []SignalInput `json:"signals,omitempty"`
}

// SignalGrade is the per-signal view of a score request.
type SignalGrade struct {
	ID                 string  `json:"id,omitempty"`
	Confidence         float64 `json:"confidence"`
	Qualified          bool    `json:"qualified"`
	Recommendation     string  `json:"recommendation"`
	PositionMultiplier float64 `json:"positionMultiplier"`
}

// ScoreResult answers a score request.
type ScoreResult struct {
	Weights  WeightVector       `json:"weights"`
	Version  string             `json:"version"`
	Metrics  PerformanceMetrics `json:"metrics"`
	Excluded int                `json:"excluded"`
	Grades   []SignalGrade      `json:"grades"`
}
