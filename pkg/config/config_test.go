package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
environment: test
kafka:
  brokers: ["localhost:9092"]
optimizer:
  iterations: 50
calibration:
  lookback: 720h
`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Optimizer.Iterations != 50 || c.Optimizer.LearningRate != 0.01 {
		t.Fatalf("optimizer = %+v", c.Optimizer)
	}
	if c.Calibration.Lookback != 720*time.Hour || c.Calibration.MinTerminalSignals != 50 {
		t.Fatalf("calibration = %+v", c.Calibration)
	}
	if c.Server.Port != 8080 || c.Kafka.RequiredAcks != -1 || !c.Redis.Enabled {
		t.Fatalf("defaults not applied: port=%d acks=%d redis=%v", c.Server.Port, c.Kafka.RequiredAcks, c.Redis.Enabled)
	}
	if c.Kafka.Consumer.HandleTimeout != 10*time.Minute {
		t.Fatalf("handle timeout = %v", c.Kafka.Consumer.HandleTimeout)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"no brokers":    "environment: test\n",
		"bad timeframe": "environment: test\nkafka: {enabled: false}\ncalibration: {candle_timeframe: 2h}\n",
		"bad level":     "environment: test\nkafka: {enabled: false}\nlogger: {level: loud}\n",
		"schedule":      "environment: test\nkafka: {enabled: false}\ncalibration: {schedule: 1h}\n",
		"bad lr":        "environment: test\nkafka: {enabled: false}\noptimizer: {learning_rate: -1}\n",
	}
	for name, body := range cases {
		if _, err := Load(writeConfig(t, body)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	path := writeConfig(t, "environment: test\nkafka: {brokers: [\"a:9092\"]}\n")
	t.Setenv("CLICKHOUSE_HOST", "ch.internal")
	t.Setenv("REDIS_ADDR", "redis.internal:6380")
	t.Setenv("KAFKA_BROKERS", "b1:9092, b2:9092")
	t.Setenv("CALIBRATION_SYMBOLS", "BTCUSDT,ETHUSDT")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("CALIBRATION_MIN_TERMINAL", "many")

	c, err := LoadWithEnv(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.ClickHouse.Host != "ch.internal" || c.Redis.Host != "redis.internal" || c.Redis.Port != 6380 {
		t.Fatalf("store overrides not applied: %+v %+v", c.ClickHouse.Host, c.Redis)
	}
	if len(c.Kafka.Brokers) != 2 || c.Kafka.Brokers[1] != "b2:9092" {
		t.Fatalf("brokers = %v", c.Kafka.Brokers)
	}
	if len(c.Calibration.Symbols) != 2 || c.Server.Port != 9090 {
		t.Fatalf("symbols=%v port=%d", c.Calibration.Symbols, c.Server.Port)
	}
	if c.Calibration.MinTerminalSignals != 50 {
		t.Fatalf("bad CALIBRATION_MIN_TERMINAL should keep the default, got %d", c.Calibration.MinTerminalSignals)
	}

	t.Setenv("HTTP_PORT", "eighty")
	if _, err := LoadWithEnv(path); err == nil {
		t.Fatalf("expected error for non-numeric HTTP_PORT")
	}
}
