package optimizer

import (
	"context"
	"errors"
	"math"
	"testing"

	"ConfluenceCal/internal/domain/models"
	"ConfluenceCal/internal/services/scoring"
)

func flags(set ...models.Flag) models.ConfluenceFlags {
	var f models.ConfluenceFlags
	for _, fl := range set {
		f[fl] = true
	}
	return f
}

func signal(status models.Status, f models.ConfluenceFlags, pnl *float64) models.HistoricalSignal {
	return models.HistoricalSignal{
		Symbol:        "ETHUSDT",
		Direction:     models.DirectionBuy,
		Entry:         2000,
		Stop:          1980,
		Target:        2040,
		Status:        status,
		PnLPercent:    pnl,
		Confluence:    f,
		HasConfluence: true,
	}
}

func ptr(v float64) *float64 { return &v }

func times(n int, s models.HistoricalSignal) []models.HistoricalSignal {
	out := make([]models.HistoricalSignal, n)
	for i := range out {
		out[i] = s
	}
	return out
}

// alignedScenario is 40 winners carrying five aligned flags (confidence 73
// under the defaults) and 20 losers carrying four of them (exactly 65).
func alignedScenario() []models.HistoricalSignal {
	win := flags(models.FlagEMAAlign, models.FlagBBSignal, models.FlagRSIMomentum, models.FlagMACDMomentum, models.FlagADXTrend)
	loss := flags(models.FlagEMAAlign, models.FlagBBSignal, models.FlagRSIMomentum, models.FlagMACDMomentum)
	winPnL := []float64{1.2, 1.5, 1.8, 1.5}
	lossPnL := []float64{-1.3, -1.0, -0.7, -1.0}

	var out []models.HistoricalSignal
	for i := 0; i < 40; i++ {
		out = append(out, signal(models.StatusTPHit, win, ptr(winPnL[i%4])))
	}
	for i := 0; i < 20; i++ {
		out = append(out, signal(models.StatusSLHit, loss, ptr(lossPnL[i%4])))
	}
	return out
}

func TestRunImprovesAlignedScenario(t *testing.T) {
	d := scoring.NewDataset(alignedScenario())
	opt := New(scoring.New())

	res, err := opt.Run(context.Background(), d, models.DefaultWeights())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !(res.Score > res.SeedScore) {
		t.Fatalf("score %v should beat seed score %v", res.Score, res.SeedScore)
	}
	m := scoring.New().Evaluate(d, res.Weights)
	if m.WinRate < 0.65 {
		t.Fatalf("win rate %v < 0.65", m.WinRate)
	}
	if m.Score != res.Score {
		t.Fatalf("reported score %v does not match re-evaluation %v", res.Score, m.Score)
	}
	if res.Iterations != 200 {
		t.Fatalf("iterations: got %d, want 200", res.Iterations)
	}
}

func TestRunKeepsBoxInvariant(t *testing.T) {
	d := scoring.NewDataset(alignedScenario())
	opt := New(scoring.New(), WithLearningRate(2), WithIterations(60))
	bounds := opt.Config().Bounds

	seen := 0
	opt.OnIteration(func(s Snapshot) {
		seen++
		if !bounds.Contains(s.Weights) {
			t.Fatalf("iteration %d left the box: %v", s.Iteration, s.Weights)
		}
	})
	// seed far outside the box gets clipped first
	seed := models.WeightVector{100, -5, 0, 50, 8, 8, 7, 7, 6, math.NaN()}
	res, err := opt.Run(context.Background(), d, seed)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if seen != 60 {
		t.Fatalf("hook calls: got %d, want 60", seen)
	}
	if !bounds.Contains(res.Seed) || !bounds.Contains(res.Weights) || !bounds.Contains(res.Final) {
		t.Fatalf("result outside box: %+v", res)
	}
}

func TestRunIsDeterministic(t *testing.T) {
	d := scoring.NewDataset(alignedScenario())
	run := func() (Result, []Snapshot) {
		var snaps []Snapshot
		opt := New(scoring.New(scoring.WithWorkers(3), scoring.WithChunkSize(7)), WithWorkers(8))
		opt.OnIteration(func(s Snapshot) { snaps = append(snaps, s) })
		res, err := opt.Run(context.Background(), d, models.DefaultWeights())
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		return res, snaps
	}
	r1, s1 := run()
	r2, s2 := run()
	if r1 != r2 {
		t.Fatalf("results differ:\n%+v\n%+v", r1, r2)
	}
	for i := range s1 {
		if s1[i] != s2[i] {
			t.Fatalf("trajectories diverge at iteration %d", i+1)
		}
	}
}

func TestRunEmptySignalsLeavesSeed(t *testing.T) {
	seed := models.DefaultWeights()
	res, err := New(nil).Run(context.Background(), scoring.NewDataset(nil), seed)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Score != 0 || res.Weights != seed || res.Final != seed {
		t.Fatalf("empty run moved the seed: %+v", res)
	}
}

func predictiveScenario() []models.HistoricalSignal {
	var signals []models.HistoricalSignal
	signals = append(signals, times(20, signal(models.StatusTPHit, flags(models.FlagEMAAlign, models.FlagBBSignal), nil))...)
	signals = append(signals, times(20, signal(models.StatusSLHit, flags(models.FlagBBSignal), nil))...)
	signals = append(signals, times(20, signal(models.StatusSLHit, flags(models.FlagBBSignal, models.FlagRSIMomentum), nil))...)
	return signals
}

// One flag set only on winners is pushed to its ceiling, one set only on
// losers to its floor, and flags never observed keep their weight.
//
// The score is a step function of the weights: it only changes when a
// signal crosses the qualify threshold. The default step (0.01) sees no
// crossing here and the gradient is zero, so this run widens the step to 30
// and raises the learning rate. See TestRunDefaultStepIsFlatOnPlateau for
// the default behaviour on the same set.
func TestRunDrivesPredictiveAndNoiseFlags(t *testing.T) {
	signals := predictiveScenario()
	seed := models.WeightVector{26, 40, 20, 5, 5, 5, 5, 5, 5, 5}
	opt := New(scoring.New(), WithFDStep(30), WithLearningRate(0.5))
	res, err := opt.Run(context.Background(), scoring.NewDataset(signals), seed)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	bounds := models.DefaultBounds()
	if got := res.Final[models.FlagEMAAlign]; got != bounds[models.FlagEMAAlign].Max {
		t.Fatalf("predictive flag: got %v, want upper bound %v", got, bounds[models.FlagEMAAlign].Max)
	}
	if got := res.Final[models.FlagRSIMomentum]; got != bounds[models.FlagRSIMomentum].Min {
		t.Fatalf("noise flag: got %v, want lower bound %v", got, bounds[models.FlagRSIMomentum].Min)
	}
	for _, f := range []models.Flag{
		models.FlagMACDMomentum, models.FlagADXTrend, models.FlagStochastic,
		models.FlagIchimoku, models.FlagVWAP, models.FlagKeyLevel, models.FlagSession,
	} {
		if res.Final[f] != seed[f] {
			t.Fatalf("unobserved flag %s moved: %v -> %v", f, seed[f], res.Final[f])
		}
	}
	if res.FinalScore != 1 {
		t.Fatalf("final score: got %v, want 1", res.FinalScore)
	}
}

// With the default step no perturbation moves a signal across the qualify
// threshold, so the gradient is zero and the run ends on the seed.
func TestRunDefaultStepIsFlatOnPlateau(t *testing.T) {
	seed := models.WeightVector{26, 40, 20, 5, 5, 5, 5, 5, 5, 5}
	res, err := New(scoring.New()).Run(context.Background(), scoring.NewDataset(predictiveScenario()), seed)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Final != seed || res.Weights != seed {
		t.Fatalf("default step moved the weights: final %v best %v", res.Final, res.Weights)
	}
}

func TestRunHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(nil).Run(ctx, scoring.NewDataset(alignedScenario()), models.DefaultWeights())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}

func TestRunDecaysLearningRate(t *testing.T) {
	var rates []float64
	opt := New(nil, WithIterations(101))
	opt.OnIteration(func(s Snapshot) { rates = append(rates, s.LearningRate) })
	if _, err := opt.Run(context.Background(), scoring.NewDataset(nil), models.DefaultWeights()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if rates[0] != 0.01 || rates[49] != 0.01 {
		t.Fatalf("lr before first decay: %v, %v", rates[0], rates[49])
	}
	if math.Abs(rates[50]-0.0095) > 1e-15 || math.Abs(rates[100]-0.009025) > 1e-15 {
		t.Fatalf("lr after decay: %v, %v", rates[50], rates[100])
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config: %v", err)
	}
	bad := DefaultConfig()
	bad.LearningRate = 0
	if bad.Validate() == nil {
		t.Fatalf("zero learning rate should be rejected")
	}
	if _, err := NewWithConfig(nil, bad).Run(context.Background(), scoring.NewDataset(nil), models.DefaultWeights()); err == nil {
		t.Fatalf("run with invalid config should fail")
	}
}
