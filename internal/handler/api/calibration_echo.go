package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"ConfluenceCal/internal/domain/models"
	domrepo "ConfluenceCal/internal/domain/repository"
	"ConfluenceCal/internal/domain/service"
	"ConfluenceCal/internal/service/metrics"
	"ConfluenceCal/internal/service/ratelimit"
	xhttp "ConfluenceCal/pkg/http"
	applogger "ConfluenceCal/pkg/logger"
)

// RateLimit is the per-client token bucket applied to calibration runs.
type RateLimit struct {
	Capacity     float64
	RefillPerSec float64
}

// CalibrationEchoHandler exposes calibration runs, published weights and
// scoring over HTTP.
type CalibrationEchoHandler struct {
	cal    service.Calibrator
	logger *applogger.Logger
	rl     *ratelimit.Limiter
	limit  RateLimit
}

func NewCalibrationEchoHandler(cal service.Calibrator, logger *applogger.Logger, limit RateLimit) *CalibrationEchoHandler {
	metrics.Register()
	if limit.Capacity <= 0 {
		limit = RateLimit{Capacity: 3, RefillPerSec: 0.05}
	}
	return &CalibrationEchoHandler{cal: cal, logger: logger, rl: ratelimit.New(), limit: limit}
}

func (h *CalibrationEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/calibrate", h.Calibrate)
	g.POST("/calibrate/:symbol", h.CalibrateSymbol)
	g.GET("/weights/:symbol", h.Weights)
	g.POST("/score", h.Score)
	g.GET("/logs/errors", h.ErrorLogs)
}

// Calibrate runs the optimizer over the posted signals. ?publish=true
// publishes the result.
func (h *CalibrationEchoHandler) Calibrate(c echo.Context) error {
	const endpoint = "calibrate"
	defer observe(endpoint, time.Now())

	if !h.allow(c, endpoint) {
		return h.limited(c)
	}
	publish := false
	if raw := c.QueryParam("publish"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return h.fail(c, endpoint, xhttp.BadRequestErrorf("publish: invalid boolean %q", raw))
		}
		publish = v
	}

	req := &models.CalibrationInput{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		metrics.APIErrors.WithLabelValues(endpoint, "bad_request").Inc()
		return xhttp.BadRequestResponse(c, verr)
	}

	rep, err := h.cal.Calibrate(c.Request().Context(), req, publish)
	if err != nil {
		return h.fail(c, endpoint, err)
	}
	return xhttp.SuccessResponse(c, rep)
}

// CalibrateSymbol calibrates the stored signals of one symbol.
func (h *CalibrationEchoHandler) CalibrateSymbol(c echo.Context) error {
	const endpoint = "calibrate_symbol"
	defer observe(endpoint, time.Now())

	if !h.allow(c, endpoint) {
		return h.limited(c)
	}
	req := &models.CalibrateSymbolRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		metrics.APIErrors.WithLabelValues(endpoint, "bad_request").Inc()
		return xhttp.BadRequestResponse(c, verr)
	}

	run := service.SymbolRun{
		Symbol:       req.Symbol,
		LearningRate: req.LearningRate,
		Iterations:   req.Iterations,
		DryRun:       req.DryRun,
	}
	var ok bool
	if req.From != "" {
		if run.From, ok = xhttp.ParseTime(req.From); !ok {
			return h.fail(c, endpoint, xhttp.BadRequestErrorf("from: unrecognised time %q", req.From))
		}
	}
	if req.To != "" {
		if run.To, ok = xhttp.ParseTime(req.To); !ok {
			return h.fail(c, endpoint, xhttp.BadRequestErrorf("to: unrecognised time %q", req.To))
		}
	}

	rep, err := h.cal.CalibrateSymbol(c.Request().Context(), run)
	if err != nil {
		return h.fail(c, endpoint, err)
	}
	return xhttp.SuccessResponse(c, rep)
}

// Weights returns the published weights of a symbol, or the defaults.
func (h *CalibrationEchoHandler) Weights(c echo.Context) error {
	const endpoint = "weights"
	defer observe(endpoint, time.Now())

	req := &models.WeightsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		metrics.APIErrors.WithLabelValues(endpoint, "bad_request").Inc()
		return xhttp.BadRequestResponse(c, verr)
	}
	rec, err := h.cal.CurrentWeights(c.Request().Context(), req.Symbol)
	if err != nil {
		return h.fail(c, endpoint, err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, rec)
}

// Score grades a signal set under explicit or published weights.
func (h *CalibrationEchoHandler) Score(c echo.Context) error {
	const endpoint = "score"
	defer observe(endpoint, time.Now())

	req := &models.ScoreRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		metrics.APIErrors.WithLabelValues(endpoint, "bad_request").Inc()
		return xhttp.BadRequestResponse(c, verr)
	}
	var weights *models.WeightVector
	if len(req.Weights) > 0 && string(req.Weights) != "null" {
		w := models.DefaultWeights()
		if err := json.Unmarshal(req.Weights, &w); err != nil {
			return h.fail(c, endpoint, xhttp.BadRequestErrorf("weights: %v", err))
		}
		weights = &w
	}
	res, err := h.cal.ScoreSignals(c.Request().Context(), req.Symbol, req.Signals, weights)
	if err != nil {
		return h.fail(c, endpoint, err)
	}
	return xhttp.SuccessResponse(c, res)
}

// ErrorLogs lists the most recent aggregated error logs.
func (h *CalibrationEchoHandler) ErrorLogs(c echo.Context) error {
	req := &models.ErrorLogsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	entries := []applogger.AggregatedLogEntry{}
	if h.logger != nil {
		entries = append(entries, h.logger.RecentErrors(req.Limit)...)
	}
	return xhttp.ListResponse(c, entries, int64(len(entries)))
}

func (h *CalibrationEchoHandler) allow(c echo.Context, endpoint string) bool {
	if h.rl.Allow(c.RealIP()+":"+endpoint, h.limit.Capacity, h.limit.RefillPerSec) {
		return true
	}
	metrics.APIRateLimited.WithLabelValues(endpoint).Inc()
	if h.logger != nil {
		h.logger.Warn("calibration rate limited",
			applogger.String("endpoint", endpoint),
			applogger.String("remote", c.RealIP()))
	}
	return false
}

// limited answers 429 with the time until one token is back.
func (h *CalibrationEchoHandler) limited(c echo.Context) error {
	err := xhttp.TooManyRequestsError("calibration rate limit exceeded")
	if h.limit.RefillPerSec > 0 {
		err.WithRetryAfter(time.Duration(float64(time.Second) / h.limit.RefillPerSec))
	}
	return xhttp.AppErrorResponse(c, err)
}

func (h *CalibrationEchoHandler) fail(c echo.Context, endpoint string, err error) error {
	appErr := toAppError(err)
	metrics.APIErrors.WithLabelValues(endpoint, appErr.Code).Inc()
	if appErr.Status >= http.StatusInternalServerError && h.logger != nil {
		h.logger.Error("calibration api error",
			applogger.String("endpoint", endpoint),
			applogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

func observe(endpoint string, start time.Time) {
	metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

func toAppError(err error) *xhttp.AppError {
	var appErr *xhttp.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	switch {
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, service.ErrInvalidWeights):
		return xhttp.BadRequestError(err.Error()).WithError(err)
	case errors.Is(err, service.ErrInsufficientSignals):
		return xhttp.UnprocessableError(err.Error()).WithError(err)
	case errors.Is(err, service.ErrRunInProgress):
		return xhttp.ConflictError(err.Error()).WithError(err)
	case errors.Is(err, service.ErrNoSignalStore):
		return xhttp.UnavailableError(err.Error()).WithError(err)
	case errors.Is(err, domrepo.ErrNotFound):
		return xhttp.NotFoundError(err.Error()).WithError(err)
	default:
		return xhttp.InternalError("calibration failed").WithError(err)
	}
}
