package scoring

import (
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"ConfluenceCal/internal/domain/models"
)

const (
	// QualifyThreshold is the confidence a signal needs to count.
	QualifyThreshold = 65.0
	// MinQualified below which the score is flat zero.
	MinQualified = 10
	// MinPnLSamples needed before the Sharpe term is used.
	MinPnLSamples = 5

	defaultChunkSize = 4096
)

// Result is the breakdown behind a score.
type Result struct {
	Qualified  int     `json:"qualified"`
	Wins       int     `json:"wins"`
	Losses     int     `json:"losses"`
	WinRate    float64 `json:"winRate"`
	PnLSamples int     `json:"pnlSamples"`
	Sharpe     float64 `json:"sharpe"`
	Score      float64 `json:"score"`
}

// Scorer evaluates weight vectors against a Dataset. Large datasets are split
// into fixed chunks scored concurrently and reduced in chunk order.
type Scorer struct {
	workers   int
	chunkSize int
}

// Option configures Scorer.
type Option func(*Scorer)

// WithWorkers sets how many chunks are scored concurrently (1 = sequential).
func WithWorkers(n int) Option {
	return func(s *Scorer) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithChunkSize sets the number of signals per map task.
func WithChunkSize(n int) Option {
	return func(s *Scorer) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

func New(opts ...Option) *Scorer {
	s := &Scorer{workers: 1, chunkSize: defaultChunkSize}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score compiles signals and scores them with a sequential Scorer.
func Score(signals []models.HistoricalSignal, w models.WeightVector) float64 {
	return New().Score(NewDataset(signals), w)
}

// Score returns only the scalar score.
func (s *Scorer) Score(d *Dataset, w models.WeightVector) float64 {
	return s.Evaluate(d, w).Score
}

// Evaluate applies the fixed qualification threshold:
//
//	score = winRate * (1 + max(0, sharpe))
//
// with zero when fewer than MinQualified signals qualify.
func (s *Scorer) Evaluate(d *Dataset, w models.WeightVector) Result {
	return s.evaluate(d, w, QualifyThreshold)
}

type partial struct {
	qualified int
	wins      int
	losses    int
	pnls      []float64
}

func (s *Scorer) evaluate(d *Dataset, w models.WeightVector, threshold float64) Result {
	if d == nil || len(d.rows) == 0 {
		return Result{}
	}
	parts := s.mapChunks(d.rows, w, threshold)

	var total partial
	for _, p := range parts {
		total.qualified += p.qualified
		total.wins += p.wins
		total.losses += p.losses
		total.pnls = append(total.pnls, p.pnls...)
	}
	return reduce(total)
}

func (s *Scorer) mapChunks(rows []row, w models.WeightVector, threshold float64) []partial {
	size := s.chunkSize
	n := (len(rows) + size - 1) / size
	parts := make([]partial, n)

	if s.workers <= 1 || n == 1 {
		for i := range parts {
			parts[i] = scan(chunk(rows, i, size), w, threshold)
		}
		return parts
	}

	// scan cannot fail; the group only bounds concurrency
	var g errgroup.Group
	g.SetLimit(s.workers)
	for i := range parts {
		i := i
		g.Go(func() error {
			parts[i] = scan(chunk(rows, i, size), w, threshold)
			return nil
		})
	}
	_ = g.Wait()
	return parts
}

func chunk(rows []row, i, size int) []row {
	end := (i + 1) * size
	if end > len(rows) {
		end = len(rows)
	}
	return rows[i*size : end]
}

func scan(rows []row, w models.WeightVector, threshold float64) partial {
	var p partial
	for i := range rows {
		r := &rows[i]
		if w.Confidence(r.flags) < threshold {
			continue
		}
		p.qualified++
		switch r.outcome {
		case outcomeWin:
			p.wins++
		case outcomeLoss:
			p.losses++
		}
		if r.hasPnL {
			p.pnls = append(p.pnls, r.pnl)
		}
	}
	return p
}

func reduce(p partial) Result {
	res := Result{Qualified: p.qualified, Wins: p.wins, Losses: p.losses, PnLSamples: len(p.pnls)}
	if p.qualified < MinQualified {
		return res
	}
	terminal := p.wins + p.losses
	if terminal == 0 {
		return res
	}
	res.WinRate = float64(p.wins) / float64(terminal)

	if len(p.pnls) >= MinPnLSamples {
		res.Sharpe = sharpe(p.pnls)
	}
	res.Score = res.WinRate * (1 + math.Max(0, res.Sharpe))
	return res
}

// sharpe is mean/population-std of values, 0 when the std is 0. Values are
// summed in sorted order so the result does not depend on signal order.
func sharpe(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	n := float64(len(sorted))
	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	mean := sum / n

	sq := 0.0
	for _, v := range sorted {
		d := v - mean
		sq += d * d
	}
	std := math.Sqrt(sq / n)
	if std == 0 {
		return 0
	}
	return mean / std
}
