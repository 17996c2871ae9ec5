package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ConfluenceCal/internal/domain/models"
	domrepo "ConfluenceCal/internal/domain/repository"
	"ConfluenceCal/internal/domain/service"
	svccache "ConfluenceCal/internal/service/cache"
	"ConfluenceCal/internal/services/features"
	"ConfluenceCal/internal/services/optimizer"
	"ConfluenceCal/internal/services/scoring"
	applogger "ConfluenceCal/pkg/logger"
)

// Run outcomes reported to metrics.
const (
	OutcomePublished     = "published"
	OutcomeDryRun        = "dry_run"
	OutcomeFallback      = "fallback"
	OutcomeRejected      = "rejected"
	OutcomeFailed        = "failed"
	OutcomePublishFailed = "publish_failed"
)

// Settings are the service-level knobs around the optimizer.
type Settings struct {
	MinTerminalSignals int
	Lookback           time.Duration
	Timeframe          domrepo.Timeframe
	Version            string
	LockTTL            time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		MinTerminalSignals: 50,
		Lookback:           90 * 24 * time.Hour,
		Timeframe:          domrepo.DefaultTimeframe(),
		Version:            "1",
		LockTTL:            10 * time.Minute,
	}
}

// CalibrationUseCase runs calibrations and publishes their results. Every
// store is optional; a missing one disables the step that needs it.
type CalibrationUseCase struct {
	scorer   *scoring.Scorer
	optCfg   optimizer.Config
	settings Settings

	signals domrepo.SignalStore
	candles domrepo.CandleStore
	weights domrepo.WeightStore
	pub     domrepo.WeightPublisher
	runs    domrepo.RunStore
	lock    domrepo.RunLock
	metrics domrepo.Metrics
	cache   *svccache.WeightCache

	l     *applogger.Logger
	now   func() time.Time
	newID func() string
}

type Option func(*CalibrationUseCase)

func WithSignalStore(s domrepo.SignalStore) Option {
	return func(uc *CalibrationUseCase) { uc.signals = s }
}

func WithCandleStore(s domrepo.CandleStore) Option {
	return func(uc *CalibrationUseCase) { uc.candles = s }
}

func WithWeightStore(s domrepo.WeightStore) Option {
	return func(uc *CalibrationUseCase) { uc.weights = s }
}

func WithPublisher(p domrepo.WeightPublisher) Option {
	return func(uc *CalibrationUseCase) { uc.pub = p }
}

func WithRunStore(s domrepo.RunStore) Option {
	return func(uc *CalibrationUseCase) { uc.runs = s }
}

func WithRunLock(l domrepo.RunLock) Option {
	return func(uc *CalibrationUseCase) { uc.lock = l }
}

func WithMetrics(m domrepo.Metrics) Option {
	return func(uc *CalibrationUseCase) {
		if m != nil {
			uc.metrics = m
		}
	}
}

func WithWeightCache(c *svccache.WeightCache) Option {
	return func(uc *CalibrationUseCase) {
		if c != nil {
			uc.cache = c
		}
	}
}

func WithLogger(l *applogger.Logger) Option {
	return func(uc *CalibrationUseCase) { uc.l = l }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(uc *CalibrationUseCase) { uc.now = now }
}

func NewCalibrationUseCase(scorer *scoring.Scorer, optCfg optimizer.Config, settings Settings, opts ...Option) *CalibrationUseCase {
	if scorer == nil {
		scorer = scoring.New()
	}
	if !domrepo.IsValidTimeframe(settings.Timeframe) {
		settings.Timeframe = domrepo.DefaultTimeframe()
	}
	uc := &CalibrationUseCase{
		scorer:   scorer,
		optCfg:   optCfg,
		settings: settings,
		metrics:  noopMetrics{},
		cache:    svccache.NewWeightCache(5 * time.Minute),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

type runParams struct {
	symbol       string
	signals      []models.HistoricalSignal
	seed         models.WeightVector
	learningRate *float64
	iterations   *int
	publish      bool
}

// Calibrate optimizes the weights for the signals carried by in.
func (uc *CalibrationUseCase) Calibrate(ctx context.Context, in *models.CalibrationInput, publish bool) (*models.CalibrationReport, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: empty body", service.ErrInvalidInput)
	}
	if err := models.ValidateOverrides(in.LearningRate, in.Iterations); err != nil {
		return nil, fmt.Errorf("%w: %v", service.ErrInvalidInput, err)
	}
	seed, err := in.Seed()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", service.ErrInvalidWeights, err)
	}
	if err := models.ValidateWeights(seed, uc.optCfg.Bounds); err != nil {
		return nil, fmt.Errorf("%w: %v", service.ErrInvalidWeights, err)
	}
	signals := models.ToSignals(in.Signals)
	symbol := in.Symbol
	if symbol == "" && len(signals) > 0 {
		symbol = signals[0].Symbol
	}
	return uc.run(ctx, runParams{
		symbol:       symbol,
		signals:      signals,
		seed:         seed,
		learningRate: in.LearningRate,
		iterations:   in.Iterations,
		publish:      publish,
	})
}

// CalibrateSymbol loads the stored signals of run.Symbol and calibrates them.
func (uc *CalibrationUseCase) CalibrateSymbol(ctx context.Context, run service.SymbolRun) (*models.CalibrationReport, error) {
	if run.Symbol == "" {
		return nil, fmt.Errorf("%w: symbol required", service.ErrInvalidInput)
	}
	if err := models.ValidateOverrides(run.LearningRate, run.Iterations); err != nil {
		return nil, fmt.Errorf("%w: %v", service.ErrInvalidInput, err)
	}
	if uc.signals == nil {
		return nil, service.ErrNoSignalStore
	}
	to := run.To
	if to.IsZero() {
		to = uc.now()
	}
	from := run.From
	if from.IsZero() {
		from = to.Add(-uc.settings.Lookback)
	}
	if !from.Before(to) {
		return nil, fmt.Errorf("%w: from must be before to", service.ErrInvalidInput)
	}

	signals, err := uc.signals.LoadSignals(ctx, run.Symbol, from, to)
	if err != nil {
		uc.metrics.RecordError("load_signals")
		return nil, fmt.Errorf("load signals: %w", err)
	}
	return uc.run(ctx, runParams{
		symbol:       run.Symbol,
		signals:      signals,
		seed:         models.DefaultWeights(),
		learningRate: run.LearningRate,
		iterations:   run.Iterations,
		publish:      !run.DryRun,
	})
}

func (uc *CalibrationUseCase) run(ctx context.Context, p runParams) (*models.CalibrationReport, error) {
	start := uc.now()

	if p.symbol != "" && uc.lock != nil && p.publish {
		ok, err := uc.lock.TryLock(ctx, p.symbol, uc.settings.LockTTL)
		switch {
		case err != nil:
			if uc.l != nil {
				uc.l.Warn("run lock unavailable, continuing unlocked", applogger.String("symbol", p.symbol), applogger.Error(err))
			}
		case !ok:
			return nil, fmt.Errorf("%w: %s", service.ErrRunInProgress, p.symbol)
		default:
			defer func() {
				if err := uc.lock.Unlock(context.Background(), p.symbol); err != nil && uc.l != nil {
					uc.l.Warn("run unlock failed", applogger.String("symbol", p.symbol), applogger.Error(err))
				}
			}()
		}
	}

	backfilled := uc.backfill(ctx, p.signals)
	d := scoring.NewDataset(p.signals)
	uc.metrics.RecordExcluded(p.symbol, d.Excluded())

	if d.Terminal() < uc.settings.MinTerminalSignals {
		uc.metrics.RecordRun(p.symbol, OutcomeRejected, uc.now().Sub(start).Seconds())
		return nil, fmt.Errorf("%w: %d terminal, need %d", service.ErrInsufficientSignals, d.Terminal(), uc.settings.MinTerminalSignals)
	}

	cfg := uc.optCfg
	if p.learningRate != nil {
		cfg.LearningRate = *p.learningRate
	}
	if p.iterations != nil {
		cfg.Iterations = *p.iterations
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", service.ErrInvalidInput, err)
	}
	opt := optimizer.NewWithConfig(uc.scorer, cfg)
	opt.SetLogger(uc.l)

	res, err := opt.Run(ctx, d, p.seed)
	if err != nil {
		uc.metrics.RecordRun(p.symbol, OutcomeFailed, uc.now().Sub(start).Seconds())
		return nil, fmt.Errorf("optimize: %w", err)
	}
	uc.metrics.RecordIterations(p.symbol, res.Iterations)

	rep := &models.CalibrationReport{
		RunID:      uc.newID(),
		Symbol:     p.symbol,
		Version:    uc.settings.Version,
		Timestamp:  uc.now().UTC(),
		Received:   len(p.signals),
		Usable:     d.Len(),
		Excluded:   d.Excluded(),
		Terminal:   d.Terminal(),
		Backfilled: backfilled,
		Iterations: res.Iterations,
		Seed:       res.Seed,
		Weights:    res.Weights,
		Score:      res.Score,
		SeedScore:  res.SeedScore,
	}
	if res.Score == 0 {
		rep.Weights = models.DefaultWeights()
		rep.FellBack = true
	}
	rep.Changes = models.WeightChanges(rep.Seed, rep.Weights)
	rep.Performance = uc.performance(d, rep.Seed, rep.Weights)
	rep.DurationMS = uc.now().Sub(start).Milliseconds()

	outcome := OutcomeDryRun
	switch {
	case rep.FellBack:
		outcome = OutcomeFallback
	case p.publish:
		if err := uc.publish(ctx, rep); err != nil {
			uc.metrics.RecordRun(p.symbol, OutcomePublishFailed, uc.now().Sub(start).Seconds())
			return rep, err
		}
		outcome = OutcomePublished
	}

	uc.metrics.RecordRun(p.symbol, outcome, uc.now().Sub(start).Seconds())
	uc.metrics.RecordScore(p.symbol, rep.Score)
	if uc.l != nil {
		uc.l.Info("calibration finished",
			applogger.String("run_id", rep.RunID),
			applogger.String("symbol", rep.Symbol),
			applogger.String("outcome", outcome),
			applogger.Int("signals", rep.Received),
			applogger.Int("excluded", rep.Excluded),
			applogger.Int("terminal", rep.Terminal),
			applogger.Int("backfilled", rep.Backfilled),
			applogger.Float64("seed_score", rep.SeedScore),
			applogger.Float64("score", rep.Score),
			applogger.Int64("duration_ms", rep.DurationMS),
		)
	}
	return rep, nil
}

// publish writes the record to the weight store first; the event and the run
// history follow and only log on failure.
func (uc *CalibrationUseCase) publish(ctx context.Context, rep *models.CalibrationReport) error {
	if rep.Symbol == "" {
		return fmt.Errorf("%w: symbol required to publish", service.ErrInvalidInput)
	}
	perf := rep.Performance
	rec := &models.PublishedWeights{
		Symbol:      rep.Symbol,
		Weights:     rep.Weights,
		Score:       rep.Score,
		Version:     rep.Version,
		RunID:       rep.RunID,
		Timestamp:   rep.Timestamp,
		Performance: &perf,
	}

	if uc.weights != nil {
		if err := uc.weights.SaveWeights(ctx, rec); err != nil {
			uc.metrics.RecordError("publish_store")
			return fmt.Errorf("publish weights: %w", err)
		}
	}
	rep.Published = true
	uc.cache.Set(*rec, uc.now())

	if uc.pub != nil {
		if err := uc.pub.PublishWeights(ctx, rec); err != nil {
			uc.metrics.RecordError("publish_event")
			if uc.l != nil {
				uc.l.Error("weights event publish failed", applogger.String("symbol", rec.Symbol), applogger.String("run_id", rec.RunID), applogger.Error(err))
			}
		}
	}
	if uc.runs != nil {
		if err := uc.runs.SaveRun(ctx, rep); err != nil {
			uc.metrics.RecordError("save_run")
			if uc.l != nil {
				uc.l.Error("run history write failed", applogger.String("symbol", rec.Symbol), applogger.String("run_id", rec.RunID), applogger.Error(err))
			}
		}
	}
	return nil
}

func (uc *CalibrationUseCase) performance(d *scoring.Dataset, seed, weights models.WeightVector) models.Performance {
	base := uc.scorer.Evaluate(d, seed)
	opt := uc.scorer.Evaluate(d, weights)
	thresholds := scoring.DefaultSweep()
	sb := uc.scorer.Sweep(d, seed, thresholds)
	so := uc.scorer.Sweep(d, weights, thresholds)

	perf := models.Performance{
		Baseline:           toMetrics(base),
		Optimized:          toMetrics(opt),
		WinRateImprovement: opt.WinRate - base.WinRate,
		Thresholds:         make([]models.ThresholdComparison, len(thresholds)),
	}
	for i := range thresholds {
		perf.Thresholds[i] = models.ThresholdComparison{
			Threshold:          thresholds[i],
			BaselineQualified:  sb[i].Qualified,
			BaselineWinRate:    sb[i].WinRate,
			OptimizedQualified: so[i].Qualified,
			OptimizedWinRate:   so[i].WinRate,
		}
	}
	return perf
}

// backfill fills missing confluence flags from stored candles, one candle
// query per symbol. Failures leave the signals without flags.
func (uc *CalibrationUseCase) backfill(ctx context.Context, signals []models.HistoricalSignal) int {
	if uc.candles == nil {
		return 0
	}
	bySymbol := make(map[string][]int)
	var order []string
	for i, s := range signals {
		if s.HasConfluence || s.Symbol == "" {
			continue
		}
		if _, ok := bySymbol[s.Symbol]; !ok {
			order = append(order, s.Symbol)
		}
		bySymbol[s.Symbol] = append(bySymbol[s.Symbol], i)
	}

	filled := 0
	tf := uc.settings.Timeframe
	for _, symbol := range order {
		idx := bySymbol[symbol]
		sub := make([]models.HistoricalSignal, len(idx))
		for k, i := range idx {
			sub[k] = signals[i]
		}
		from, to, ok := features.Window(sub, tf)
		if !ok {
			continue
		}
		candles, err := uc.candles.GetCandles(ctx, symbol, from, to, tf)
		if err != nil {
			uc.metrics.RecordError("backfill_candles")
			if uc.l != nil {
				uc.l.Warn("confluence backfill skipped", applogger.String("symbol", symbol), applogger.Error(err))
			}
			continue
		}
		filled += features.Backfill(sub, candles, tf)
		for k, i := range idx {
			signals[i] = sub[k]
		}
	}
	return filled
}

// CurrentWeights returns the published weights of symbol, or the defaults
// when nothing has been published.
func (uc *CalibrationUseCase) CurrentWeights(ctx context.Context, symbol string) (*models.PublishedWeights, error) {
	now := uc.now()
	if rec, ok := uc.cache.Get(symbol, now); ok {
		return &rec, nil
	}
	if uc.weights != nil {
		rec, err := uc.weights.LoadWeights(ctx, symbol)
		switch {
		case err == nil:
			uc.cache.Set(*rec, now)
			return rec, nil
		case !errors.Is(err, domrepo.ErrNotFound):
			return nil, err
		}
	}
	def := models.DefaultPublished(symbol)
	return &def, nil
}

// ScoreSignals grades signals under weights, or under the current weights of
// symbol when weights is nil.
func (uc *CalibrationUseCase) ScoreSignals(ctx context.Context, symbol string, inputs []models.SignalInput, weights *models.WeightVector) (*models.ScoreResult, error) {
	out := &models.ScoreResult{}
	if weights != nil {
		if err := models.ValidateWeights(*weights, uc.optCfg.Bounds); err != nil {
			return nil, fmt.Errorf("%w: %v", service.ErrInvalidWeights, err)
		}
		out.Weights, out.Version = *weights, "request"
	} else {
		rec, err := uc.CurrentWeights(ctx, symbol)
		if err != nil {
			return nil, err
		}
		out.Weights, out.Version = rec.Weights, rec.Version
	}

	signals := models.ToSignals(inputs)
	uc.backfill(ctx, signals)
	d := scoring.NewDataset(signals)
	out.Metrics = toMetrics(uc.scorer.Evaluate(d, out.Weights))
	out.Excluded = d.Excluded()
	out.Grades = make([]models.SignalGrade, 0, d.Len())
	for _, s := range signals {
		if !s.WellFormed() {
			continue
		}
		g := scoring.GradeSignal(s, out.Weights)
		out.Grades = append(out.Grades, models.SignalGrade{
			ID:                 g.ID,
			Confidence:         g.Confidence,
			Qualified:          g.Qualified,
			Recommendation:     string(g.Recommendation),
			PositionMultiplier: g.PositionMultiplier,
		})
	}
	return out, nil
}

func toMetrics(r scoring.Result) models.PerformanceMetrics {
	return models.PerformanceMetrics{
		Qualified: r.Qualified,
		Wins:      r.Wins,
		Losses:    r.Losses,
		WinRate:   r.WinRate,
		Sharpe:    r.Sharpe,
		Score:     r.Score,
	}
}

type noopMetrics struct{}

func (noopMetrics) RecordRun(string, string, float64) {}
func (noopMetrics) RecordScore(string, float64)       {}
func (noopMetrics) RecordIterations(string, int)      {}
func (noopMetrics) RecordExcluded(string, int)        {}
func (noopMetrics) RecordError(string)                {}

var _ service.Calibrator = (*CalibrationUseCase)(nil)
