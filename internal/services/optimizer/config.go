package optimizer

import (
	"fmt"
	"runtime"

	"ConfluenceCal/internal/domain/models"
)

// Config holds the Adam and finite-difference parameters of a run.
type Config struct {
	LearningRate float64
	Iterations   int
	FDStep       float64
	Beta1        float64
	Beta2        float64
	Epsilon      float64
	DecayEvery   int
	DecayFactor  float64
	Bounds       models.Bounds
	// Workers bounds the concurrent score evaluations of one gradient.
	Workers int
}

func DefaultConfig() Config {
	return Config{
		LearningRate: 0.01,
		Iterations:   200,
		FDStep:       0.01,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-8,
		DecayEvery:   50,
		DecayFactor:  0.95,
		Bounds:       models.DefaultBounds(),
		Workers:      runtime.GOMAXPROCS(0),
	}
}

// Validate rejects configurations that cannot produce a finite run.
func (c Config) Validate() error {
	switch {
	case !(c.LearningRate > 0):
		return fmt.Errorf("learning rate must be > 0, got %v", c.LearningRate)
	case c.Iterations < 0:
		return fmt.Errorf("iterations must be >= 0, got %d", c.Iterations)
	case !(c.FDStep > 0):
		return fmt.Errorf("fd step must be > 0, got %v", c.FDStep)
	case c.Beta1 < 0 || c.Beta1 >= 1 || c.Beta2 < 0 || c.Beta2 >= 1:
		return fmt.Errorf("betas must be in [0, 1): %v, %v", c.Beta1, c.Beta2)
	case !(c.Epsilon > 0):
		return fmt.Errorf("epsilon must be > 0")
	case c.DecayEvery < 0 || c.DecayFactor <= 0 || c.DecayFactor > 1:
		return fmt.Errorf("invalid decay %d x %v", c.DecayEvery, c.DecayFactor)
	}
	for i, b := range c.Bounds {
		if b.Min > b.Max {
			return fmt.Errorf("bound %s: min %v > max %v", models.Flag(i), b.Min, b.Max)
		}
	}
	return nil
}

// Option mutates Config.
type Option func(*Config)

func WithLearningRate(lr float64) Option { return func(c *Config) { c.LearningRate = lr } }

func WithIterations(n int) Option { return func(c *Config) { c.Iterations = n } }

func WithFDStep(h float64) Option { return func(c *Config) { c.FDStep = h } }

func WithBounds(b models.Bounds) Option { return func(c *Config) { c.Bounds = b } }

func WithDecay(every int, factor float64) Option {
	return func(c *Config) {
		c.DecayEvery = every
		c.DecayFactor = factor
	}
}

func WithWorkers(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.Workers = n
		}
	}
}
