package optimizer

import (
	"context"
	"fmt"

	"ConfluenceCal/internal/domain/models"
	"ConfluenceCal/internal/services/scoring"
	"ConfluenceCal/pkg/logger"
)

// Snapshot is handed to the iteration hook after every step.
type Snapshot struct {
	Iteration    int
	Weights      models.WeightVector
	Gradient     models.WeightVector
	Score        float64
	BestScore    float64
	LearningRate float64
}

// Result of a run. Weights is the best vector seen, Final the last iterate.
type Result struct {
	Weights    models.WeightVector
	Score      float64
	Final      models.WeightVector
	FinalScore float64
	Seed       models.WeightVector
	SeedScore  float64
	Iterations int
}

// Optimizer runs projected Adam ascent over the box-constrained weights.
type Optimizer struct {
	cfg    Config
	scorer *scoring.Scorer
	hook   func(Snapshot)
	log    *logger.Logger
}

func New(scorer *scoring.Scorer, opts ...Option) *Optimizer {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if scorer == nil {
		scorer = scoring.New()
	}
	return &Optimizer{cfg: cfg, scorer: scorer}
}

// NewWithConfig uses cfg as-is instead of the defaults.
func NewWithConfig(scorer *scoring.Scorer, cfg Config) *Optimizer {
	o := New(scorer)
	o.cfg = cfg
	if o.cfg.Workers <= 0 {
		o.cfg.Workers = 1
	}
	return o
}

// OnIteration registers fn to receive a snapshot after each iteration.
func (o *Optimizer) OnIteration(fn func(Snapshot)) { o.hook = fn }

func (o *Optimizer) SetLogger(l *logger.Logger) { o.log = l }

func (o *Optimizer) Config() Config { return o.cfg }

// Run optimizes seed against d for a fixed number of iterations. Cancelling
// ctx abandons the run and returns ctx.Err().
func (o *Optimizer) Run(ctx context.Context, d *scoring.Dataset, seed models.WeightVector) (Result, error) {
	if err := o.cfg.Validate(); err != nil {
		return Result{}, fmt.Errorf("optimizer config: %w", err)
	}
	bounds := o.cfg.Bounds
	lr := o.cfg.LearningRate
	opt := newAdam(o.cfg)

	w := bounds.Clip(seed)
	res := Result{Seed: w, SeedScore: o.scorer.Score(d, w)}
	res.Weights, res.Score = w, res.SeedScore

	for t := 1; t <= o.cfg.Iterations; t++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		grad, err := o.gradient(ctx, d, w)
		if err != nil {
			return Result{}, err
		}

		w = bounds.Clip(opt.step(w, grad, lr))
		score := o.scorer.Score(d, w)
		if score > res.Score {
			res.Weights, res.Score = w, score
		}
		res.Final, res.FinalScore, res.Iterations = w, score, t

		if o.hook != nil {
			o.hook(Snapshot{
				Iteration:    t,
				Weights:      w,
				Gradient:     grad,
				Score:        score,
				BestScore:    res.Score,
				LearningRate: lr,
			})
		}
		if o.log != nil && o.cfg.DecayEvery > 0 && t%o.cfg.DecayEvery == 0 {
			o.log.Debug("optimizer progress",
				logger.Int("iteration", t),
				logger.Float64("score", score),
				logger.Float64("best_score", res.Score),
				logger.Float64("learning_rate", lr))
		}

		if o.cfg.DecayEvery > 0 && t%o.cfg.DecayEvery == 0 {
			lr *= o.cfg.DecayFactor
		}
	}

	if res.Iterations == 0 {
		res.Final, res.FinalScore = w, res.SeedScore
	}
	return res, nil
}
