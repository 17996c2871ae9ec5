package scoring

import "ConfluenceCal/internal/domain/models"

type outcome uint8

const (
	outcomeOther outcome = iota
	outcomeWin
	outcomeLoss
)

type row struct {
	flags   models.ConfluenceFlags
	outcome outcome
	pnl     float64
	hasPnL  bool
}

// Dataset is an immutable compiled copy of the well-formed signals of a run.
// Scoring never touches the caller's slice after NewDataset returns.
type Dataset struct {
	rows     []row
	excluded int
	terminal int
}

// NewDataset drops malformed signals and keeps only what scoring reads.
func NewDataset(signals []models.HistoricalSignal) *Dataset {
	d := &Dataset{rows: make([]row, 0, len(signals))}
	for _, s := range signals {
		if !s.WellFormed() {
			d.excluded++
			continue
		}
		r := row{flags: s.Confluence}
		switch s.Status {
		case models.StatusTPHit:
			r.outcome = outcomeWin
			d.terminal++
		case models.StatusSLHit:
			r.outcome = outcomeLoss
			d.terminal++
		}
		r.pnl, r.hasPnL = s.PnL()
		d.rows = append(d.rows, r)
	}
	return d
}

// Len is the number of usable signals.
func (d *Dataset) Len() int { return len(d.rows) }

// Excluded is the number of malformed signals dropped.
func (d *Dataset) Excluded() int { return d.excluded }

// Terminal counts usable signals resolved as TP_HIT or SL_HIT.
func (d *Dataset) Terminal() int { return d.terminal }
