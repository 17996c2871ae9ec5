package optimizer

import (
	"math"

	"ConfluenceCal/internal/domain/models"
)

// adam keeps the first and second moment estimates across steps.
type adam struct {
	beta1, beta2, eps float64
	m, v              models.WeightVector
	t                 int
}

func newAdam(cfg Config) *adam {
	return &adam{beta1: cfg.Beta1, beta2: cfg.Beta2, eps: cfg.Epsilon}
}

// step moves w along the bias-corrected ascent direction for gradient g.
func (a *adam) step(w, g models.WeightVector, lr float64) models.WeightVector {
	a.t++
	c1 := 1 - math.Pow(a.beta1, float64(a.t))
	c2 := 1 - math.Pow(a.beta2, float64(a.t))
	for i := range w {
		a.m[i] = a.beta1*a.m[i] + (1-a.beta1)*g[i]
		a.v[i] = a.beta2*a.v[i] + (1-a.beta2)*g[i]*g[i]
		mHat := a.m[i] / c1
		vHat := a.v[i] / c2
		w[i] += lr * mHat / (math.Sqrt(vHat) + a.eps)
	}
	return w
}
