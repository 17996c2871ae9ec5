package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	xutil "ConfluenceCal/pkg/util"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Server      struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"5m"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"30s"`
		BodyLimit       string        `yaml:"body_limit" default:"32M"`
		SlowRequest     time.Duration `yaml:"slow_request" default:"30s"`
		RateLimit       struct {
			Capacity     float64 `yaml:"capacity" default:"3" validate:"gte=1"`
			RefillPerSec float64 `yaml:"refill_per_sec" default:"0.05" validate:"gt=0"`
		} `yaml:"rate_limit"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool `yaml:"enabled" default:"true"`
	} `yaml:"metrics"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled" default:"true"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"confluencecal"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert" default:"true"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
		MaxOpenConns     int           `yaml:"max_open_conns" default:"10"`
		MaxIdleConns     int           `yaml:"max_idle_conns" default:"5"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled      bool          `yaml:"enabled" default:"true"`
		Host         string        `yaml:"host" default:"localhost"`
		Port         int           `yaml:"port" default:"6379"`
		Password     string        `yaml:"password"`
		DB           int           `yaml:"db"`
		PoolSize     int           `yaml:"pool_size" default:"10"`
		MinIdleConns int           `yaml:"min_idle_conns" default:"2"`
		Timeout      time.Duration `yaml:"timeout" default:"3s"`
		Prefix       string        `yaml:"prefix" default:"confluencecal"`
		L1Size       int           `yaml:"l1_size" default:"1000"`
		L1TTL        time.Duration `yaml:"l1_ttl" default:"30s"`
	} `yaml:"redis"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled" default:"true"`
		Brokers      []string `yaml:"brokers"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"gzip" validate:"oneof=gzip snappy lz4 zstd"`
		LogsTopic    string   `yaml:"logs_topic" default:"confluencecal.logs"`
		Producer     struct {
			MaxAttempts      int           `yaml:"max_attempts" default:"3"`
			Linger           time.Duration `yaml:"linger" default:"50ms"`
			BatchBytes       int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize        int           `yaml:"batch_size" default:"100"`
			WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
			AutoCreateTopics bool          `yaml:"auto_create_topics"`
		} `yaml:"producer"`
		Consumer struct {
			Enabled       bool          `yaml:"enabled" default:"true"`
			GroupID       string        `yaml:"group_id" default:"confluencecal"`
			Workers       int           `yaml:"workers" default:"1"`
			BufferSize    int           `yaml:"buffer_size" default:"10"`
			RetryMax      int           `yaml:"retry_max" default:"2"`
			BackoffMin    time.Duration `yaml:"backoff_min" default:"1s"`
			BackoffMax    time.Duration `yaml:"backoff_max" default:"30s"`
			DLQTopic      string        `yaml:"dlq_topic" default:"confluencecal.requests.dlq"`
			MinBytes      int           `yaml:"min_bytes" default:"1"`
			MaxBytes      int           `yaml:"max_bytes" default:"10000000"`
			HandleTimeout time.Duration `yaml:"handle_timeout" default:"10m"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	Logger struct {
		Level         string        `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format        string        `yaml:"format" default:"console" validate:"oneof=json console"`
		Output        string        `yaml:"output" default:"stdout"`
		CollectErrors bool          `yaml:"collect_errors" default:"true"`
		FlushInterval time.Duration `yaml:"flush_interval" default:"1m"`
		Threshold     int           `yaml:"threshold" default:"5"`
		KeepRecent    int           `yaml:"keep_recent" default:"200"`
	} `yaml:"logger"`
	Optimizer struct {
		LearningRate float64 `yaml:"learning_rate" default:"0.01" validate:"gt=0"`
		Iterations   int     `yaml:"iterations" default:"200" validate:"gte=1"`
		FDStep       float64 `yaml:"fd_step" default:"0.01" validate:"gt=0"`
		Workers      int     `yaml:"workers" validate:"gte=0"`
		DecayEvery   int     `yaml:"decay_every" default:"50" validate:"gte=0"`
		DecayFactor  float64 `yaml:"decay_factor" default:"0.95" validate:"gt=0,lte=1"`
		ScoreWorkers int     `yaml:"score_workers" validate:"gte=0"`
		ChunkSize    int     `yaml:"chunk_size" validate:"gte=0"`
	} `yaml:"optimizer"`
	Calibration struct {
		MinTerminalSignals int           `yaml:"min_terminal_signals" default:"50" validate:"gte=0"`
		Lookback           time.Duration `yaml:"lookback" default:"2160h"`
		CandleTimeframe    string        `yaml:"candle_timeframe" default:"1h"`
		Symbols            []string      `yaml:"symbols"`
		Schedule           time.Duration `yaml:"schedule"`
		WeightsTTL         time.Duration `yaml:"weights_ttl"`
		CacheTTL           time.Duration `yaml:"cache_ttl" default:"1m"`
		CachePrefix        string        `yaml:"cache_prefix" default:"weights"`
		LockTTL            time.Duration `yaml:"lock_ttl" default:"10m"`
		EventsTopic        string        `yaml:"events_topic" default:"confluencecal.weights"`
		RequestsTopic      string        `yaml:"requests_topic" default:"confluencecal.requests"`
		Version            string        `yaml:"version" default:"1"`
	} `yaml:"calibration"`
}

// Default returns a configuration populated only from struct defaults.
func Default() *Config {
	var c Config
	_ = defaults.Set(&c)
	return &c
}

// Load reads and parses a YAML configuration file. Missing keys keep their
// defaults.
func Load(path string) (*Config, error) {
	c, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func read(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		host, port, err := net.SplitHostPort(v)
		if err != nil {
			return fmt.Errorf("REDIS_ADDR: %w", err)
		}
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("REDIS_ADDR port: %w", err)
		}
		c.Redis.Host, c.Redis.Port = host, p
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = xutil.SplitList(v)
	}
	if v := os.Getenv("CALIBRATION_SYMBOLS"); v != "" {
		c.Calibration.Symbols = xutil.SplitList(v)
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HTTP_PORT: %w", err)
		}
		c.Server.Port = p
	}
	if v := os.Getenv("CALIBRATION_MIN_TERMINAL"); v != "" {
		c.Calibration.MinTerminalSignals = xutil.ParseIntDefault(v, c.Calibration.MinTerminalSignals)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logger.Level = strings.ToLower(v)
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	switch c.Calibration.CandleTimeframe {
	case "1m", "5m", "15m", "1h", "4h", "1d":
	default:
		return fmt.Errorf("calibration.candle_timeframe %q is not supported", c.Calibration.CandleTimeframe)
	}
	if c.Calibration.Lookback <= 0 {
		return fmt.Errorf("calibration.lookback must be positive")
	}
	if c.Calibration.Schedule > 0 && len(c.Calibration.Symbols) == 0 {
		return fmt.Errorf("calibration.symbols cannot be empty when a schedule is set")
	}
	return nil
}
