package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ConfluenceCal/internal/domain/models"
	domrepo "ConfluenceCal/internal/domain/repository"
	"ConfluenceCal/internal/domain/service"
	pkgkafka "ConfluenceCal/pkg/kafka"
	applogger "ConfluenceCal/pkg/logger"
)

// CalibrationRequestsHandler runs calibrations requested over Kafka.
type CalibrationRequestsHandler struct {
	topic   string
	cal     service.Calibrator
	metrics domrepo.Metrics
	l       *applogger.Logger
}

func NewCalibrationRequestsHandler(topic string, cal service.Calibrator, metrics domrepo.Metrics) *CalibrationRequestsHandler {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &CalibrationRequestsHandler{topic: topic, cal: cal, metrics: metrics}
}

func (h *CalibrationRequestsHandler) SetLogger(l *applogger.Logger) { h.l = l }

func (h *CalibrationRequestsHandler) Topic() string { return h.topic }

// Handle decodes a CalibrationRequest. Requests the service rejects are
// returned as permanent errors so they are committed and not retried.
func (h *CalibrationRequestsHandler) Handle(ctx context.Context, b []byte) error {
	var req models.CalibrationRequest
	if err := json.Unmarshal(b, &req); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return pkgkafka.Permanent(fmt.Errorf("decode calibration request: %w", err))
	}
	if err := models.ValidateOverrides(req.LearningRate, req.Iterations); err != nil {
		h.metrics.RecordError("consumer_invalid")
		return pkgkafka.Permanent(fmt.Errorf("%w: %v", service.ErrInvalidInput, err))
	}

	start := time.Now()
	var (
		rep *models.CalibrationReport
		err error
	)
	if len(req.Signals) > 0 {
		rep, err = h.cal.Calibrate(ctx, &models.CalibrationInput{
			Symbol:       req.Symbol,
			Signals:      req.Signals,
			LearningRate: req.LearningRate,
			Iterations:   req.Iterations,
		}, !req.DryRun)
	} else {
		run := service.SymbolRun{
			Symbol:       req.Symbol,
			LearningRate: req.LearningRate,
			Iterations:   req.Iterations,
			DryRun:       req.DryRun,
		}
		if req.From != nil {
			run.From = *req.From
		}
		if req.To != nil {
			run.To = *req.To
		}
		rep, err = h.cal.CalibrateSymbol(ctx, run)
	}

	if err != nil {
		if isRejection(err) {
			return pkgkafka.Permanent(err)
		}
		h.metrics.RecordError("consumer_calibrate")
		return err
	}

	if h.l != nil {
		h.l.Info("calibration request handled",
			applogger.String("symbol", rep.Symbol),
			applogger.String("run_id", rep.RunID),
			applogger.String("trace_id", pkgkafka.TraceIDFromContext(ctx)),
			applogger.Float64("score", rep.Score),
			applogger.Bool("published", rep.Published),
			applogger.Duration("elapsed", time.Since(start)))
	}
	return nil
}

// isRejection reports errors caused by the request itself; retrying them
// cannot succeed.
func isRejection(err error) bool {
	return errors.Is(err, service.ErrInsufficientSignals) ||
		errors.Is(err, service.ErrInvalidInput) ||
		errors.Is(err, service.ErrInvalidWeights) ||
		errors.Is(err, service.ErrRunInProgress) ||
		errors.Is(err, service.ErrNoSignalStore)
}

var _ pkgkafka.MessageHandler = (*CalibrationRequestsHandler)(nil)
