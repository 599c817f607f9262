package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"logging"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Schedule struct {
		Version       int           `yaml:"version"`
		Start         time.Time     `yaml:"start"`
		RoundLength   time.Duration `yaml:"round_length"`
		CloseInterval time.Duration `yaml:"close_interval"`
	} `yaml:"schedule"`
	Scoring struct {
		PriceRetryAttempts int           `yaml:"price_retry_attempts"`
		PriceBackoffMin    time.Duration `yaml:"price_backoff_min"`
		PriceBackoffMax    time.Duration `yaml:"price_backoff_max"`
		PriceMaxGap        time.Duration `yaml:"price_max_gap"`
		LockTTL            time.Duration `yaml:"lock_ttl"`
	} `yaml:"scoring"`
	Backend struct {
		Type string `yaml:"type"` // clickhouse or memory
	} `yaml:"backend"`
	Kafka struct {
		Enabled           bool     `yaml:"enabled"`
		Brokers           []string `yaml:"brokers"`
		ObservationsTopic string   `yaml:"observations_topic"`
		LeaderboardTopic  string   `yaml:"leaderboard_topic"`
		RequiredAcks      int      `yaml:"required_acks"`
		Compression       string   `yaml:"compression"`
		Producer          struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string `yaml:"group_id"`
			Workers    int    `yaml:"workers"`
			BufferSize int    `yaml:"buffer_size"`
			MinBytes   int    `yaml:"min_bytes"`
			MaxBytes   int    `yaml:"max_bytes"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled        bool          `yaml:"enabled"`
		Addr           string        `yaml:"addr"`
		Password       string        `yaml:"password"`
		DB             int           `yaml:"db"`
		LeaderboardTTL time.Duration `yaml:"leaderboard_ttl"`
	} `yaml:"redis"`
	PriceFeed struct {
		Enabled        bool          `yaml:"enabled"`
		WebSocketURL   string        `yaml:"websocket_url"`
		APIKey         string        `yaml:"api_key"`
		Assets         []string      `yaml:"assets"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay"`
		PingInterval   time.Duration `yaml:"ping_interval"`
	} `yaml:"pricefeed"`
	RateLimit struct {
		Capacity     float64 `yaml:"capacity"`
		RefillPerSec float64 `yaml:"refill_per_sec"`
	} `yaml:"ratelimit"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("BACKEND"); v != "" {
		c.Backend.Type = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("PRICEFEED_API_KEY"); v != "" {
		c.PriceFeed.APIKey = v
	}
	if v := os.Getenv("ASSETS"); v != "" {
		c.PriceFeed.Assets = strings.Split(v, ",")
	}

	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Backend.Type == "" {
		return fmt.Errorf("backend.type is required")
	}
	if c.Backend.Type != "clickhouse" && c.Backend.Type != "memory" {
		return fmt.Errorf("backend.type must be 'clickhouse' or 'memory', got '%s'", c.Backend.Type)
	}
	if c.Schedule.Start.IsZero() {
		return fmt.Errorf("schedule.start is required")
	}
	if c.Schedule.RoundLength <= 0 {
		return fmt.Errorf("schedule.round_length must be positive")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.PriceFeed.Enabled && c.PriceFeed.WebSocketURL == "" {
		return fmt.Errorf("pricefeed.websocket_url is required when pricefeed is enabled")
	}
	return nil
}
