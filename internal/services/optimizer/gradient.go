package optimizer

import (
	"context"

	"golang.org/x/sync/errgroup"

	"ConfluenceCal/internal/domain/models"
	"ConfluenceCal/internal/services/scoring"
)

// gradient estimates d score / d w with centered differences. The perturbed
// vectors are scored as-is, without clipping. Each evaluation writes its own
// slot so the result does not depend on scheduling.
func (o *Optimizer) gradient(ctx context.Context, d *scoring.Dataset, w models.WeightVector) (models.WeightVector, error) {
	var plus, minus [models.NumFlags]float64
	h := o.cfg.FDStep

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Workers)
	for i := 0; i < models.NumFlags; i++ {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			wp := w
			wp[i] += h
			plus[i] = o.scorer.Score(d, wp)
			return nil
		})
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			wm := w
			wm[i] -= h
			minus[i] = o.scorer.Score(d, wm)
			return nil
		})
	}

	var grad models.WeightVector
	if err := g.Wait(); err != nil {
		return grad, err
	}
	for i := range grad {
		grad[i] = (plus[i] - minus[i]) / (2 * h)
	}
	return grad, nil
}
