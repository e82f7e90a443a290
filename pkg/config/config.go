package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

// GeneratorConfig toggles a signal generator and sets its aggregation weight.
// Omitted fields take the tag defaults; an explicit weight of 0 is kept.
type GeneratorConfig struct {
	Enabled bool    `yaml:"enabled" default:"true"`
	Weight  float64 `yaml:"weight" default:"1"`
}

// UnmarshalYAML applies defaults before decoding. Map values are not reached
// by defaults.Set on the parent struct.
func (g *GeneratorConfig) UnmarshalYAML(n *yaml.Node) error {
	type plain GeneratorConfig
	var p plain
	if err := defaults.Set(&p); err != nil {
		return err
	}
	if err := n.Decode(&p); err != nil {
		return err
	}
	*g = GeneratorConfig(p)
	return nil
}

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		SlowRequest     time.Duration `yaml:"slow_request" default:"2s"`
		CORSOrigins     []string      `yaml:"cors_origins"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"log"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Feed struct {
		Type         string `yaml:"type" default:"clickhouse"` // clickhouse | finnhub
		Interval     string `yaml:"interval" default:"1d"`
		HistoryCount int    `yaml:"history_count" default:"250"`
	} `yaml:"feed"`
	Store struct {
		Type  string `yaml:"type" default:"clickhouse"` // clickhouse | memory
		Table string `yaml:"table" default:"trading_signals"`
	} `yaml:"store"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic" default:"trading-signals"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"gzip"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"100ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"finsignal"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		Compression      string        `yaml:"compression" default:"lz4"`
		MaxOpenConns     int           `yaml:"max_open_conns" default:"10"`
		MaxIdleConns     int           `yaml:"max_idle_conns" default:"5"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"finsignal"`
		PoolSize int    `yaml:"pool_size" default:"10"`
	} `yaml:"redis"`
	Finnhub struct {
		APIKey       string        `yaml:"api_key"`
		BaseURL      string        `yaml:"base_url" default:"https://finnhub.io/api/v1"`
		Timeout      time.Duration `yaml:"timeout" default:"5s"`
		RequestsPerS float64       `yaml:"requests_per_second" default:"1"`
		Burst        float64       `yaml:"burst" default:"30"`
		NewsDays     int           `yaml:"news_days" default:"3"`
	} `yaml:"finnhub"`
	Signals struct {
		Symbols []string `yaml:"symbols"`
		Crypto  []string `yaml:"crypto"`
		Cache   struct {
			Enabled  bool          `yaml:"enabled" default:"true"`
			Duration time.Duration `yaml:"duration" default:"15m"`
		} `yaml:"cache"`
		MinSignals      int                        `yaml:"min_signals" default:"7"`
		Concurrency     int                        `yaml:"concurrency" default:"8"`
		RefreshInterval time.Duration              `yaml:"refresh_interval" default:"15m"`
		MonitorInterval time.Duration              `yaml:"monitor_interval" default:"1m"`
		PersistTimeout  time.Duration              `yaml:"persist_timeout" default:"5s"`
		Generators      map[string]GeneratorConfig `yaml:"generators"`
		Aggregator      struct {
			Policy             string             `yaml:"policy" default:"weighted"` // strongest | weighted | majority
			MinSignalsRequired int                `yaml:"min_signals_required" default:"1"`
			StrengthWeights    map[string]float64 `yaml:"strength_weights"`
		} `yaml:"aggregator"`
	} `yaml:"signals"`
}

var (
	knownGenerators = map[string]bool{"technical": true, "pattern": true, "sentiment": true}
	knownPolicies   = map[string]bool{"strongest": true, "weighted": true, "majority": true}
)

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes, applies defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	c, err := decode(b)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func decode(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.applyGeneratorDefaults()
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
// Validation runs once, after the overrides.
func LoadWithEnv(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	c, err := decode(b)
	if err != nil {
		return nil, err
	}

	// Override with environment variables
	if v := os.Getenv("FINNHUB_API_KEY"); v != "" {
		c.Finnhub.APIKey = v
	}
	if v := os.Getenv("SIGNAL_SYMBOLS"); v != "" {
		c.Signals.Symbols = strings.Split(v, ",")
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// applyGeneratorDefaults enables the technical generator when none is configured.
func (c *Config) applyGeneratorDefaults() {
	if len(c.Signals.Generators) == 0 {
		c.Signals.Generators = map[string]GeneratorConfig{"technical": {Enabled: true, Weight: 1}}
	}
}

// EnabledGenerators returns the names of generators switched on.
func (c *Config) EnabledGenerators() []string {
	out := make([]string, 0, len(c.Signals.Generators))
	for name, g := range c.Signals.Generators {
		if g.Enabled {
			out = append(out, name)
		}
	}
	return out
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if len(c.Signals.Symbols) == 0 {
		return fmt.Errorf("signals.symbols cannot be empty")
	}
	if c.Feed.Type != "clickhouse" && c.Feed.Type != "finnhub" {
		return fmt.Errorf("feed.type must be 'clickhouse' or 'finnhub', got '%s'", c.Feed.Type)
	}
	if c.Feed.Type == "finnhub" && c.Finnhub.APIKey == "" {
		return fmt.Errorf("finnhub.api_key is required for finnhub feed")
	}
	if c.Store.Type != "clickhouse" && c.Store.Type != "memory" {
		return fmt.Errorf("store.type must be 'clickhouse' or 'memory', got '%s'", c.Store.Type)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if !knownPolicies[c.Signals.Aggregator.Policy] {
		return fmt.Errorf("signals.aggregator.policy must be one of strongest, weighted, majority, got '%s'", c.Signals.Aggregator.Policy)
	}
	if c.Signals.Aggregator.MinSignalsRequired < 1 {
		return fmt.Errorf("signals.aggregator.min_signals_required must be >= 1")
	}
	enabled := 0
	for name, g := range c.Signals.Generators {
		if !knownGenerators[name] {
			return fmt.Errorf("unknown generator type '%s'", name)
		}
		if g.Weight < 0 {
			return fmt.Errorf("generator '%s' weight must be >= 0", name)
		}
		if g.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		return fmt.Errorf("at least one generator must be enabled")
	}
	if c.Signals.Generators["sentiment"].Enabled && c.Finnhub.APIKey == "" {
		return fmt.Errorf("finnhub.api_key is required for the sentiment generator's news feed")
	}
	if c.Signals.MinSignals < 1 {
		return fmt.Errorf("signals.min_signals must be >= 1")
	}
	return nil
}
