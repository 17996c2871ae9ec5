package scoring

import "ConfluenceCal/internal/domain/models"

type Recommendation string

const (
	RecommendStrongBuy Recommendation = "STRONG_BUY"
	RecommendBuy       Recommendation = "BUY"
	RecommendWeak      Recommendation = "WEAK"
	RecommendAvoid     Recommendation = "AVOID"
)

// Recommend maps a confidence to its tier.
func Recommend(confidence float64) Recommendation {
	switch {
	case confidence >= 75:
		return RecommendStrongBuy
	case confidence >= 60:
		return RecommendBuy
	case confidence >= 40:
		return RecommendWeak
	default:
		return RecommendAvoid
	}
}

var sizeSteps = []struct {
	min  float64
	mult float64
}{
	{80, 2.0},
	{70, 1.5},
	{60, 1.0},
	{50, 0.75},
	{40, 0.5},
}

// PositionMultiplier scales position size with confidence.
func PositionMultiplier(confidence float64) float64 {
	for _, s := range sizeSteps {
		if confidence >= s.min {
			return s.mult
		}
	}
	return 0.25
}

// Grade is the per-signal view returned by the score endpoint.
type Grade struct {
	ID                 string         `json:"id,omitempty"`
	Confidence         float64        `json:"confidence"`
	Qualified          bool           `json:"qualified"`
	Recommendation     Recommendation `json:"recommendation"`
	PositionMultiplier float64        `json:"positionMultiplier"`
}

// GradeSignal scores a single signal's flags under w.
func GradeSignal(s models.HistoricalSignal, w models.WeightVector) Grade {
	c := w.Confidence(s.Confluence)
	return Grade{
		ID:                 s.ID,
		Confidence:         c,
		Qualified:          c >= QualifyThreshold,
		Recommendation:     Recommend(c),
		PositionMultiplier: PositionMultiplier(c),
	}
}

// ThresholdStat is one row of a threshold sweep.
type ThresholdStat struct {
	Threshold float64 `json:"threshold"`
	Qualified int     `json:"qualified"`
	Wins      int     `json:"wins"`
	Losses    int     `json:"losses"`
	WinRate   float64 `json:"winRate"`
}

// DefaultSweep returns the thresholds 55, 60, ... 85.
func DefaultSweep() []float64 {
	out := make([]float64, 0, 7)
	for t := 55.0; t <= 85; t += 5 {
		out = append(out, t)
	}
	return out
}

// Sweep reports qualified counts and win rate at each threshold. Unlike
// Evaluate it applies no minimum sample size.
func (s *Scorer) Sweep(d *Dataset, w models.WeightVector, thresholds []float64) []ThresholdStat {
	out := make([]ThresholdStat, 0, len(thresholds))
	for _, th := range thresholds {
		st := ThresholdStat{Threshold: th}
		if d != nil && len(d.rows) > 0 {
			for _, p := range s.mapChunks(d.rows, w, th) {
				st.Qualified += p.qualified
				st.Wins += p.wins
				st.Losses += p.losses
			}
		}
		if n := st.Wins + st.Losses; n > 0 {
			st.WinRate = float64(st.Wins) / float64(n)
		}
		out = append(out, st)
	}
	return out
}
