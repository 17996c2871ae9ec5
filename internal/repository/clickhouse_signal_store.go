package repository

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"ConfluenceCal/internal/domain/models"
	pkgch "ConfluenceCal/pkg/clickhouse"
	applogger "ConfluenceCal/pkg/logger"
)

// CHSignalStore implements SignalStore over the signals table. Missing prices
// come back as NaN so the scorer excludes the row.
type CHSignalStore struct {
	ch       *pkgch.Client
	db       *sql.DB
	database string
	l        *applogger.Logger
}

func NewCHSignalStore(ch *pkgch.Client) *CHSignalStore {
	return &CHSignalStore{ch: ch, db: ch.DB(), database: ch.Database()}
}

// SetLogger injects a structured logger.
func (s *CHSignalStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHSignalStore) LoadSignals(ctx context.Context, symbol string, from, to time.Time) ([]models.HistoricalSignal, error) {
	start := time.Now()
	q := fmt.Sprintf(`
        SELECT id, symbol, direction, entry, stop, target, entry_time, exit_time,
               status, pnl_percent, confluence, has_confluence
        FROM %s.signals FINAL
        WHERE symbol = ? AND entry_time >= ? AND entry_time <= ?
        ORDER BY entry_time ASC, id ASC
    `, s.database)
	rows, err := s.db.QueryContext(ctx, q, symbol, from, to)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse load_signals query error", applogger.String("symbol", symbol), applogger.Error(err))
		}
		return nil, fmt.Errorf("load signals: %w", err)
	}
	defer rows.Close()

	var out []models.HistoricalSignal
	unknown := 0
	for rows.Next() {
		var (
			sig                 models.HistoricalSignal
			dir, status         string
			entry, stop, target sql.NullFloat64
			exit                sql.NullTime
			pnl                 sql.NullFloat64
			names               []string
			has                 uint8
		)
		if err := rows.Scan(&sig.ID, &sig.Symbol, &dir, &entry, &stop, &target, &sig.EntryTime, &exit,
			&status, &pnl, &names, &has); err != nil {
			if s.l != nil {
				s.l.Error("clickhouse load_signals scan error", applogger.String("symbol", symbol), applogger.Error(err))
			}
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		sig.Direction = models.Direction(dir)
		sig.Status = models.Status(status)
		sig.Entry, sig.Stop, sig.Target = nullFloat(entry), nullFloat(stop), nullFloat(target)
		if exit.Valid {
			t := exit.Time
			sig.ExitTime = &t
		}
		if pnl.Valid {
			v := pnl.Float64
			sig.PnLPercent = &v
		}
		if has != 0 {
			sig.HasConfluence = true
			for _, name := range names {
				f, ok := models.ParseFlag(name)
				if !ok {
					unknown++
					continue
				}
				sig.Confluence[f] = true
			}
		}
		out = append(out, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	if s.l != nil {
		s.l.Info("clickhouse load_signals ok",
			applogger.String("symbol", symbol),
			applogger.Int("rows", len(out)),
			applogger.Int("unknown_flags", unknown),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return out, nil
}

func nullFloat(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

// StoreSignals sends the signals as one insert block. Rows without a
// symbol are skipped.
func (s *CHSignalStore) StoreSignals(ctx context.Context, signals []models.HistoricalSignal) error {
	q := fmt.Sprintf(`INSERT INTO %s.signals (id, symbol, direction, entry, stop, target, entry_time, exit_time, status, pnl_percent, confluence, has_confluence)`, s.database)
	sent, err := s.ch.Batch(ctx, q, len(signals), func(i int) []any {
		sig := signals[i]
		if sig.Symbol == "" {
			return nil
		}
		names := make([]string, 0, models.NumFlags)
		for _, f := range models.AllFlags() {
			if sig.Confluence[f] {
				names = append(names, f.String())
			}
		}
		var has uint8
		if sig.HasConfluence {
			has = 1
		}
		return []any{
			sig.ID, sig.Symbol, string(sig.Direction),
			finiteOrNil(sig.Entry), finiteOrNil(sig.Stop), finiteOrNil(sig.Target),
			sig.EntryTime, sig.ExitTime, string(sig.Status), sig.PnLPercent,
			names, has,
		}
	})
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse store_signals error", applogger.Int("rows", len(signals)), applogger.Error(err))
		}
		return fmt.Errorf("store signals: %w", err)
	}
	if s.l != nil {
		s.l.Debug("clickhouse store_signals", applogger.Int("rows", sent))
	}
	return nil
}

func finiteOrNil(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}
