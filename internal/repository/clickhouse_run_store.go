package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"ConfluenceCal/internal/domain/models"
	pkgch "ConfluenceCal/pkg/clickhouse"
	applogger "ConfluenceCal/pkg/logger"
)

// CHRunStore appends calibration runs to the calibration_runs table. The
// full report is kept as JSON next to the columns used for filtering.
type CHRunStore struct {
	db       *sql.DB
	database string
	l        *applogger.Logger
}

func NewCHRunStore(ch *pkgch.Client) *CHRunStore {
	return &CHRunStore{db: ch.DB(), database: ch.Database()}
}

// SetLogger injects a structured logger.
func (s *CHRunStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHRunStore) SaveRun(ctx context.Context, rep *models.CalibrationReport) error {
	weights, err := json.Marshal(rep.Weights)
	if err != nil {
		return fmt.Errorf("marshal weights: %w", err)
	}
	report, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	q := fmt.Sprintf(`INSERT INTO %s.calibration_runs
        (run_id, symbol, version, ts, score, seed_score, iterations, terminal, excluded, fell_back, published, weights, report)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.database)
	_, err = s.db.ExecContext(ctx, q,
		rep.RunID, rep.Symbol, rep.Version, rep.Timestamp,
		rep.Score, rep.SeedScore,
		uint32(rep.Iterations), uint32(rep.Terminal), uint32(rep.Excluded),
		boolToUInt8(rep.FellBack), boolToUInt8(rep.Published),
		string(weights), string(report),
	)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse save_run error",
				applogger.String("run_id", rep.RunID),
				applogger.String("symbol", rep.Symbol),
				applogger.Error(err))
		}
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

// RecentRuns returns up to limit runs for symbol, newest first.
func (s *CHRunStore) RecentRuns(ctx context.Context, symbol string, limit int) ([]models.CalibrationReport, error) {
	start := time.Now()
	q := fmt.Sprintf(`SELECT report FROM %s.calibration_runs WHERE symbol = ? ORDER BY ts DESC LIMIT ?`, s.database)
	rows, err := s.db.QueryContext(ctx, q, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("recent runs: %w", err)
	}
	defer rows.Close()

	var out []models.CalibrationReport
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		var rep models.CalibrationReport
		if err := json.Unmarshal([]byte(raw), &rep); err != nil {
			if s.l != nil {
				s.l.Warn("skipping undecodable run report", applogger.String("symbol", symbol), applogger.Error(err))
			}
			continue
		}
		out = append(out, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	if s.l != nil {
		s.l.Debug("clickhouse recent_runs ok",
			applogger.String("symbol", symbol),
			applogger.Int("rows", len(out)),
			applogger.Duration("duration_ms", time.Since(start)))
	}
	return out, nil
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
