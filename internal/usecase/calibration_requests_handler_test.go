package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"ConfluenceCal/internal/domain/models"
	"ConfluenceCal/internal/domain/service"
	pkgkafka "ConfluenceCal/pkg/kafka"
)

type fakeCalibrator struct {
	calls     []string
	lastInput *models.CalibrationInput
	lastPub   bool
	lastRun   service.SymbolRun
	err       error
}

func (f *fakeCalibrator) Calibrate(_ context.Context, in *models.CalibrationInput, publish bool) (*models.CalibrationReport, error) {
	f.calls = append(f.calls, "calibrate")
	f.lastInput, f.lastPub = in, publish
	if f.err != nil {
		return nil, f.err
	}
	return &models.CalibrationReport{Symbol: in.Symbol, RunID: "r1", Published: publish}, nil
}

func (f *fakeCalibrator) CalibrateSymbol(_ context.Context, run service.SymbolRun) (*models.CalibrationReport, error) {
	f.calls = append(f.calls, "symbol")
	f.lastRun = run
	if f.err != nil {
		return nil, f.err
	}
	return &models.CalibrationReport{Symbol: run.Symbol, RunID: "r2", Published: !run.DryRun}, nil
}

func (f *fakeCalibrator) CurrentWeights(context.Context, string) (*models.PublishedWeights, error) {
	return nil, nil
}

func (f *fakeCalibrator) ScoreSignals(context.Context, string, []models.SignalInput, *models.WeightVector) (*models.ScoreResult, error) {
	return nil, nil
}

func TestRequestsHandlerWithSignals(t *testing.T) {
	cal := &fakeCalibrator{}
	h := NewCalibrationRequestsHandler("calibration.requests", cal, nil)
	if h.Topic() != "calibration.requests" {
		t.Fatalf("topic = %s", h.Topic())
	}
	body := `{"symbol":"BTCUSDT","dryRun":true,"iterations":5,"signals":[{"symbol":"BTCUSDT","direction":"BUY","entry":1,"stop":0.9,"target":1.2,"status":"TP_HIT","entryTime":"2026-01-01T00:00:00Z"}]}`
	if err := h.Handle(context.Background(), []byte(body)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cal.calls) != 1 || cal.calls[0] != "calibrate" {
		t.Fatalf("calls = %v", cal.calls)
	}
	if cal.lastPub {
		t.Fatalf("dry run request must not publish")
	}
	if cal.lastInput.Iterations == nil || *cal.lastInput.Iterations != 5 || len(cal.lastInput.Signals) != 1 {
		t.Fatalf("input not forwarded: %+v", cal.lastInput)
	}
}

func TestRequestsHandlerBySymbol(t *testing.T) {
	cal := &fakeCalibrator{}
	h := NewCalibrationRequestsHandler("t", cal, nil)
	body := `{"symbol":"ETHUSDT","from":"2026-01-01T00:00:00Z","to":"2026-02-01T00:00:00Z"}`
	if err := h.Handle(context.Background(), []byte(body)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cal.calls) != 1 || cal.calls[0] != "symbol" {
		t.Fatalf("calls = %v", cal.calls)
	}
	want := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if cal.lastRun.Symbol != "ETHUSDT" || !cal.lastRun.From.Equal(want) || cal.lastRun.DryRun {
		t.Fatalf("run = %+v", cal.lastRun)
	}
}

func TestRequestsHandlerErrors(t *testing.T) {
	h := NewCalibrationRequestsHandler("t", &fakeCalibrator{}, nil)
	if err := h.Handle(context.Background(), []byte("{not json")); !pkgkafka.IsPermanent(err) {
		t.Fatalf("bad payload should be permanent, got %v", err)
	}

	rejected := &fakeCalibrator{err: service.ErrInsufficientSignals}
	err := NewCalibrationRequestsHandler("t", rejected, nil).Handle(context.Background(), []byte(`{"symbol":"X"}`))
	if !pkgkafka.IsPermanent(err) || !errors.Is(err, service.ErrInsufficientSignals) {
		t.Fatalf("rejection should be permanent, got %v", err)
	}

	failing := &fakeCalibrator{err: errors.New("clickhouse down")}
	err = NewCalibrationRequestsHandler("t", failing, nil).Handle(context.Background(), []byte(`{"symbol":"X"}`))
	if err == nil || pkgkafka.IsPermanent(err) {
		t.Fatalf("infrastructure error should be retried, got %v", err)
	}
}

func TestRequestsHandlerRejectsOversizedRuns(t *testing.T) {
	cal := &fakeCalibrator{}
	h := NewCalibrationRequestsHandler("t", cal, nil)
	for _, body := range []string{
		`{"symbol":"X","iterations":2000000000}`,
		`{"symbol":"X","learningRate":1e300}`,
		`{"symbol":"X","learningRate":0}`,
	} {
		err := h.Handle(context.Background(), []byte(body))
		if !pkgkafka.IsPermanent(err) || !errors.Is(err, service.ErrInvalidInput) {
			t.Fatalf("%s: got %v, want permanent ErrInvalidInput", body, err)
		}
	}
	if len(cal.calls) != 0 {
		t.Fatalf("calibrator called for rejected requests: %v", cal.calls)
	}
}
