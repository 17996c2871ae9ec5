package repository

import (
	"fmt"

	domrepo "ConfluenceCal/internal/domain/repository"
)

// Schema returns the idempotent DDL for database db.
func Schema(db string) []string {
	stmts := []string{
		fmt.Sprintf(`CREATE DATABASE IF NOT EXISTS %s`, db),
		fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s.signals (
            id             String,
            symbol         LowCardinality(String),
            direction      LowCardinality(String),
            entry          Nullable(Float64),
            stop           Nullable(Float64),
            target         Nullable(Float64),
            entry_time     DateTime64(3, 'UTC'),
            exit_time      Nullable(DateTime64(3, 'UTC')),
            status         LowCardinality(String),
            pnl_percent    Nullable(Float64),
            confluence     Array(LowCardinality(String)),
            has_confluence UInt8
        )
        ENGINE = ReplacingMergeTree
        ORDER BY (symbol, entry_time, id)
    `, db),
		fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s.calibration_runs (
            run_id     String,
            symbol     LowCardinality(String),
            version    String,
            ts         DateTime64(3, 'UTC'),
            score      Float64,
            seed_score Float64,
            iterations UInt32,
            terminal   UInt32,
            excluded   UInt32,
            fell_back  UInt8,
            published  UInt8,
            weights    String,
            report     String
        )
        ENGINE = MergeTree
        ORDER BY (symbol, ts)
    `, db),
	}
	for _, tf := range []domrepo.Timeframe{domrepo.TF1m, domrepo.TF5m, domrepo.TF15m, domrepo.TF1h, domrepo.TF4h, domrepo.TF1d} {
		stmts = append(stmts, fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s
        (
            bucket DateTime('UTC'),
            symbol LowCardinality(String),
            open   Float64,
            high   Float64,
            low    Float64,
            close  Float64,
            vol    Float64
        )
        ENGINE = ReplacingMergeTree
        ORDER BY (symbol, bucket)
    `, candleTable(db, tf)))
	}
	return stmts
}

func candleTable(db string, tf domrepo.Timeframe) string {
	return fmt.Sprintf("%s.candles_%s", db, tf)
}
