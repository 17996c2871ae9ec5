package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// Flag indexes one of the ten confluence conditions.
type Flag int

const (
	FlagEMAAlign Flag = iota
	FlagBBSignal
	FlagRSIMomentum
	FlagMACDMomentum
	FlagADXTrend
	FlagStochastic
	FlagIchimoku
	FlagVWAP
	FlagKeyLevel
	FlagSession

	NumFlags = int(FlagSession) + 1
)

var flagNames = [NumFlags]string{
	"emaAlign",
	"bbSignal",
	"rsiMomentum",
	"macdMomentum",
	"adxTrend",
	"stochastic",
	"ichimoku",
	"vwap",
	"keyLevel",
	"session",
}

func (f Flag) String() string {
	if f < 0 || int(f) >= NumFlags {
		return fmt.Sprintf("flag(%d)", int(f))
	}
	return flagNames[f]
}

// AllFlags returns the flags in canonical order.
func AllFlags() [NumFlags]Flag {
	var out [NumFlags]Flag
	for i := range out {
		out[i] = Flag(i)
	}
	return out
}

// ParseFlag maps a JSON name back to its Flag.
func ParseFlag(name string) (Flag, bool) {
	for i, n := range flagNames {
		if n == name {
			return Flag(i), true
		}
	}
	return 0, false
}

// ConfluenceFlags holds one boolean per Flag.
type ConfluenceFlags [NumFlags]bool

// Count returns how many conditions are set.
func (c ConfluenceFlags) Count() int {
	n := 0
	for _, v := range c {
		if v {
			n++
		}
	}
	return n
}

func (c ConfluenceFlags) MarshalJSON() ([]byte, error) {
	return marshalNamed(func(i int) any { return c[i] })
}

func (c *ConfluenceFlags) UnmarshalJSON(b []byte) error {
	raw := map[string]bool{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("confluence: %w", err)
	}
	var out ConfluenceFlags
	for k, v := range raw {
		f, ok := ParseFlag(k)
		if !ok {
			return fmt.Errorf("confluence: unknown flag %q", k)
		}
		out[f] = v
	}
	*c = out
	return nil
}

// WeightVector holds one weight per Flag.
type WeightVector [NumFlags]float64

// DefaultWeights is the fallback vector used when calibration is not conclusive.
func DefaultWeights() WeightVector {
	return WeightVector{
		FlagEMAAlign:     25,
		FlagBBSignal:     20,
		FlagRSIMomentum:  10,
		FlagMACDMomentum: 10,
		FlagADXTrend:     8,
		FlagStochastic:   8,
		FlagIchimoku:     7,
		FlagVWAP:         7,
		FlagKeyLevel:     6,
		FlagSession:      5,
	}
}

// Confidence is the weighted sum of the set flags.
func (w WeightVector) Confidence(flags ConfluenceFlags) float64 {
	sum := 0.0
	for i, on := range flags {
		if on {
			sum += w[i]
		}
	}
	return sum
}

// Total returns the sum of all weights.
func (w WeightVector) Total() float64 {
	sum := 0.0
	for _, v := range w {
		sum += v
	}
	return sum
}

func (w WeightVector) MarshalJSON() ([]byte, error) {
	return marshalNamed(func(i int) any { return w[i] })
}

// UnmarshalJSON accepts a partial object; missing flags keep their current value.
func (w *WeightVector) UnmarshalJSON(b []byte) error {
	raw := map[string]float64{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("weights: %w", err)
	}
	out := *w
	for k, v := range raw {
		f, ok := ParseFlag(k)
		if !ok {
			return fmt.Errorf("weights: unknown flag %q", k)
		}
		out[f] = v
	}
	*w = out
	return nil
}

// Bound is an inclusive [Min, Max] box for one weight.
type Bound struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// Bounds holds the box for every weight.
type Bounds [NumFlags]Bound

// DefaultBounds lets alignment and pattern flags dominate without any single
// flag zeroing out or swamping the score.
func DefaultBounds() Bounds {
	var b Bounds
	for i := range b {
		b[i] = Bound{Min: 1, Max: 25}
	}
	b[FlagEMAAlign] = Bound{Min: 10, Max: 40}
	b[FlagBBSignal] = Bound{Min: 10, Max: 40}
	return b
}

// Clip returns w with every component clamped into its box.
func (b Bounds) Clip(w WeightVector) WeightVector {
	for i := range w {
		switch {
		case math.IsNaN(w[i]):
			w[i] = b[i].Min
		case w[i] < b[i].Min:
			w[i] = b[i].Min
		case w[i] > b[i].Max:
			w[i] = b[i].Max
		}
	}
	return w
}

// Contains reports whether every component of w lies inside its box.
func (b Bounds) Contains(w WeightVector) bool {
	for i := range w {
		if math.IsNaN(w[i]) || w[i] < b[i].Min || w[i] > b[i].Max {
			return false
		}
	}
	return true
}

// ValidateWeights rejects vectors that cannot be used for scoring.
func ValidateWeights(w WeightVector, b Bounds) error {
	for i, v := range w {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("weight %s is not finite", Flag(i))
		}
		if v < b[i].Min || v > b[i].Max {
			return fmt.Errorf("weight %s=%.4f outside [%.0f, %.0f]", Flag(i), v, b[i].Min, b[i].Max)
		}
	}
	return nil
}

func marshalNamed(value func(i int) any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i := 0; i < NumFlags; i++ {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, _ := json.Marshal(flagNames[i])
		v, err := json.Marshal(value(i))
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
