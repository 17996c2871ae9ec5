package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"ConfluenceCal/internal/domain/models"
	"ConfluenceCal/internal/domain/service"
)

type stubCalibrator struct {
	publish bool
	run     service.SymbolRun
	weights *models.WeightVector
	err     error
}

func (s *stubCalibrator) Calibrate(_ context.Context, in *models.CalibrationInput, publish bool) (*models.CalibrationReport, error) {
	s.publish = publish
	if s.err != nil {
		return nil, s.err
	}
	return &models.CalibrationReport{Symbol: in.Symbol, Received: len(in.Signals), Weights: models.DefaultWeights(), Published: publish}, nil
}

func (s *stubCalibrator) CalibrateSymbol(_ context.Context, run service.SymbolRun) (*models.CalibrationReport, error) {
	s.run = run
	if s.err != nil {
		return nil, s.err
	}
	return &models.CalibrationReport{Symbol: run.Symbol}, nil
}

func (s *stubCalibrator) CurrentWeights(_ context.Context, symbol string) (*models.PublishedWeights, error) {
	rec := models.DefaultPublished(symbol)
	return &rec, nil
}

func (s *stubCalibrator) ScoreSignals(_ context.Context, _ string, in []models.SignalInput, w *models.WeightVector) (*models.ScoreResult, error) {
	s.weights = w
	return &models.ScoreResult{Grades: make([]models.SignalGrade, len(in))}, nil
}

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func serve(t *testing.T, h *CalibrationEchoHandler, method, target, body string) (int, envelope) {
	t.Helper()
	e := echo.New()
	h.RegisterRoutes(e)
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return rec.Code, env
}

func TestCalibrateEndpoint(t *testing.T) {
	cal := &stubCalibrator{}
	h := NewCalibrationEchoHandler(cal, nil, RateLimit{Capacity: 10, RefillPerSec: 1})
	code, env := serve(t, h, http.MethodPost, "/api/calibrate?publish=true", `{"symbol":"BTCUSDT","signals":[{"symbol":"BTCUSDT"}]}`)
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if !cal.publish {
		t.Fatalf("publish flag not forwarded")
	}
	var rep models.CalibrationReport
	if err := json.Unmarshal(env.Data, &rep); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if rep.Symbol != "BTCUSDT" || rep.Received != 1 || !rep.Published {
		t.Fatalf("unexpected report %+v", rep)
	}

	code, _ = serve(t, h, http.MethodPost, "/api/calibrate?publish=maybe", `{}`)
	if code != http.StatusBadRequest {
		t.Fatalf("bad publish flag: status = %d", code)
	}
}

func TestCalibrateEndpointMapsErrors(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{service.ErrInsufficientSignals, http.StatusUnprocessableEntity},
		{service.ErrInvalidWeights, http.StatusBadRequest},
		{service.ErrRunInProgress, http.StatusConflict},
		{context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		h := NewCalibrationEchoHandler(&stubCalibrator{err: tc.err}, nil, RateLimit{Capacity: 10, RefillPerSec: 1})
		code, env := serve(t, h, http.MethodPost, "/api/calibrate", `{"signals":[]}`)
		if code != tc.want || env.Status != tc.want {
			t.Fatalf("%v: status = %d/%d, want %d", tc.err, code, env.Status, tc.want)
		}
	}
}

func TestCalibrateEndpointCapsRunSize(t *testing.T) {
	for _, body := range []string{
		`{"signals":[],"iterations":2000000000}`,
		`{"signals":[],"learningRate":1e300}`,
	} {
		h := NewCalibrationEchoHandler(&stubCalibrator{}, nil, RateLimit{Capacity: 10, RefillPerSec: 1})
		if code, _ := serve(t, h, http.MethodPost, "/api/calibrate", body); code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400", body, code)
		}
	}
}

func TestCalibrateSymbolEndpoint(t *testing.T) {
	cal := &stubCalibrator{}
	h := NewCalibrationEchoHandler(cal, nil, RateLimit{Capacity: 10, RefillPerSec: 1})
	code, _ := serve(t, h, http.MethodPost, "/api/calibrate/ETHUSDT", `{"from":"2026-01-01","iterations":50,"dryRun":true}`)
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if cal.run.Symbol != "ETHUSDT" || !cal.run.DryRun || cal.run.Iterations == nil || *cal.run.Iterations != 50 {
		t.Fatalf("run not forwarded: %+v", cal.run)
	}
	if cal.run.LearningRate != nil || cal.run.From.IsZero() || !cal.run.To.IsZero() {
		t.Fatalf("unexpected run window/overrides: %+v", cal.run)
	}

	code, _ = serve(t, h, http.MethodPost, "/api/calibrate/ETHUSDT", `{"iterations":0.5}`)
	if code != http.StatusBadRequest {
		t.Fatalf("invalid body: status = %d", code)
	}
	code, _ = serve(t, h, http.MethodPost, "/api/calibrate/ETHUSDT", `{"to":"soon"}`)
	if code != http.StatusBadRequest {
		t.Fatalf("invalid time: status = %d", code)
	}
}

func TestCalibrateRateLimited(t *testing.T) {
	h := NewCalibrationEchoHandler(&stubCalibrator{}, nil, RateLimit{Capacity: 1, RefillPerSec: 0.0001})
	if code, _ := serve(t, h, http.MethodPost, "/api/calibrate", `{}`); code != http.StatusOK {
		t.Fatalf("first request: status = %d", code)
	}
	if code, _ := serve(t, h, http.MethodPost, "/api/calibrate", `{}`); code != http.StatusTooManyRequests {
		t.Fatalf("second request: status = %d", code)
	}
}

func TestWeightsAndScoreEndpoints(t *testing.T) {
	cal := &stubCalibrator{}
	h := NewCalibrationEchoHandler(cal, nil, RateLimit{})

	code, env := serve(t, h, http.MethodGet, "/api/weights/SOLUSDT", "")
	if code != http.StatusOK {
		t.Fatalf("weights status = %d", code)
	}
	var rec models.PublishedWeights
	if err := json.Unmarshal(env.Data, &rec); err != nil {
		t.Fatalf("decode weights: %v", err)
	}
	if rec.Symbol != "SOLUSDT" || !rec.Default {
		t.Fatalf("unexpected record %+v", rec)
	}

	code, _ = serve(t, h, http.MethodPost, "/api/score", `{"signals":[{},{}],"weights":{"rsiMomentum":3}}`)
	if code != http.StatusOK {
		t.Fatalf("score status = %d", code)
	}
	if cal.weights == nil || cal.weights[models.FlagRSIMomentum] != 3 || cal.weights[models.FlagEMAAlign] != models.DefaultWeights()[models.FlagEMAAlign] {
		t.Fatalf("weights overlay not applied: %v", cal.weights)
	}

	code, _ = serve(t, h, http.MethodPost, "/api/score", `{"signals":[]}`)
	if code != http.StatusOK || cal.weights != nil {
		t.Fatalf("expected published weights to be used, got %v", cal.weights)
	}
}

func TestErrorLogsEndpoint(t *testing.T) {
	h := NewCalibrationEchoHandler(&stubCalibrator{}, nil, RateLimit{})
	code, _ := serve(t, h, http.MethodGet, "/api/logs/errors?limit=10", "")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	code, _ = serve(t, h, http.MethodGet, "/api/logs/errors?limit=5000", "")
	if code != http.StatusBadRequest {
		t.Fatalf("limit above max: status = %d", code)
	}
}
