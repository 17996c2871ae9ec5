package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ConfluenceCal/internal/domain/models"
	domrepo "ConfluenceCal/internal/domain/repository"
	pkgch "ConfluenceCal/pkg/clickhouse"
	applogger "ConfluenceCal/pkg/logger"
)

// CHCandleStore implements CandleStore backed by ClickHouse.
type CHCandleStore struct {
	db       *sql.DB
	database string
	l        *applogger.Logger
}

func NewCHCandleStore(ch *pkgch.Client) *CHCandleStore {
	return &CHCandleStore{db: ch.DB(), database: ch.Database()}
}

// SetLogger injects a structured logger.
func (s *CHCandleStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHCandleStore) GetCandles(ctx context.Context, symbol string, from, to time.Time, tf domrepo.Timeframe) ([]models.Candle, error) {
	start := time.Now()
	if !domrepo.IsValidTimeframe(tf) {
		return nil, fmt.Errorf("unsupported timeframe: %s", tf)
	}
	table := candleTable(s.database, tf)
	const qtpl = `
        SELECT bucket, symbol, open, high, low, close, vol
        FROM %s FINAL
        WHERE symbol = ? AND bucket >= ? AND bucket <= ?
        ORDER BY bucket ASC
    `
	q := fmt.Sprintf(qtpl, table)
	rows, err := s.db.QueryContext(ctx, q, symbol, from, to)
	if err != nil {
		s.logErr("clickhouse get_candles query error", table, symbol, tf, err)
		return nil, fmt.Errorf("get candles: %w", err)
	}
	defer rows.Close()

	out := make([]models.Candle, 0, 1024)
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Bucket, &c.Symbol, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			s.logErr("clickhouse get_candles scan error", table, symbol, tf, err)
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		s.logErr("clickhouse get_candles rows error", table, symbol, tf, err)
		return nil, fmt.Errorf("rows: %w", err)
	}
	if s.l != nil {
		s.l.Debug("clickhouse get_candles ok",
			applogger.String("table", table),
			applogger.String("symbol", symbol),
			applogger.String("tf", string(tf)),
			applogger.Int("rows", len(out)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return out, nil
}

func (s *CHCandleStore) logErr(msg, table, symbol string, tf domrepo.Timeframe, err error) {
	if s.l == nil {
		return
	}
	s.l.Error(msg,
		applogger.String("table", table),
		applogger.String("symbol", symbol),
		applogger.String("tf", string(tf)),
		applogger.Error(err),
	)
}
