package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App       AppConfig       `yaml:"app"`
	Logging   LoggingConfig   `yaml:"logging"`
	Protocol  ProtocolConfig  `yaml:"protocol"`
	Oracle    OracleConfig    `yaml:"oracle"`
	Security  SecurityConfig  `yaml:"security"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Stores    StoresConfig    `yaml:"stores"`
	PubSub    PubSubConfig    `yaml:"pubsub"`
	API       APIConfig       `yaml:"api"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type AppConfig struct {
	InstanceID      string        `yaml:"instance_id"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // json|console
}

type ProtocolConfig struct {
	// locker token (CVX); staked/withdrawn/kick_reward amounts are denominated in it
	TokenAddress string `yaml:"token_address"`
}

// What to do when the oracle has no USD quote
type RateFallback string

const (
	RateFallbackZero RateFallback = "zero" // record USD as 0 and keep going
	RateFallbackFail RateFallback = "fail" // fail the event, the source redelivers it
)

type StaticToken struct {
	Decimals int32  `yaml:"decimals"`
	Symbol   string `yaml:"symbol"`
	USDRate  string `yaml:"usd_rate"` // decimal string, empty -> no quote
}

type OracleConfig struct {
	Driver   string                 `yaml:"driver"` // static|http
	BaseURL  string                 `yaml:"base_url"`
	Timeout  time.Duration          `yaml:"timeout"`
	RateTTL  time.Duration          `yaml:"rate_ttl"` // 0 -> no rate caching
	Fallback RateFallback           `yaml:"fallback"`
	Tokens   map[string]StaticToken `yaml:"tokens"` // static driver, key = token address
}

type JWTConfig struct {
	Enabled       bool          `yaml:"enabled"`
	PublicKeyPath string        `yaml:"public_key_path"`
	Audience      string        `yaml:"audience"`
	Issuer        string        `yaml:"issuer"`
	Scope         string        `yaml:"scope"` // required scope claim, empty -> not checked
	Leeway        time.Duration `yaml:"leeway"`
}

type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

type RateBucket struct {
	RefillPerSec int           `yaml:"refill_per_sec"`
	Burst        int           `yaml:"burst"`
	TTL          time.Duration `yaml:"ttl"`
}

type RateLimitConfig struct {
	Enabled        bool       `yaml:"enabled"`
	ByJWT          RateBucket `yaml:"by_jwt"`
	ByIP           RateBucket `yaml:"by_ip"`
	TrustedProxies []string   `yaml:"trusted_proxies"` // IPs or CIDRs allowed to set X-Forwarded-For
}

type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	Prefix       string        `yaml:"prefix"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type ClickHouseWriterConfig struct {
	QueueSize        int           `yaml:"queue_size"`
	BatchMaxRows     int           `yaml:"batch_max_rows"`
	BatchMaxInterval time.Duration `yaml:"batch_max_interval"`
	MaxRetries       int           `yaml:"max_retries"`
	RetryBackoff     time.Duration `yaml:"retry_backoff"`
}

type ClickHouseConfig struct {
	Enabled bool                   `yaml:"enabled"`
	DSN     string                 `yaml:"dsn"`
	Table   string                 `yaml:"table"`
	Writer  ClickHouseWriterConfig `yaml:"writer"`
}

type StoresConfig struct {
	Driver     string           `yaml:"driver"` // redis|memory
	Redis      RedisConfig      `yaml:"redis"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

type NATSConfig struct {
	URL             string        `yaml:"url"`
	Stream          string        `yaml:"stream"`
	IngestSubject   string        `yaml:"ingest_subject"`
	Durable         string        `yaml:"durable"`
	FetchWait       time.Duration `yaml:"fetch_wait"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
	BroadcastPrefix string        `yaml:"broadcast_prefix"`
}

type PubSubConfig struct {
	NATS NATSConfig `yaml:"nats"`
}

type CORSConfig struct {
	Enabled bool     `yaml:"enabled"`
	Origins []string `yaml:"origins"`
	Methods []string `yaml:"methods"`
	Headers []string `yaml:"headers"`
}

type HTTPConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	CORS         CORSConfig    `yaml:"cors"`
}

type APIConfig struct {
	HTTP HTTPConfig `yaml:"http"`
}

type PyroscopeConfig struct {
	Enabled    bool              `yaml:"enabled"`
	AppName    string            `yaml:"app_name"`
	ServerAddr string            `yaml:"server_addr"`
	AuthToken  string            `yaml:"auth_token"`
	Tags       map[string]string `yaml:"tags"`
}

type MetricsConfig struct {
	Pyroscope PyroscopeConfig `yaml:"pyroscope"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err = yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err = cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.App.ShutdownTimeout <= 0 {
		c.App.ShutdownTimeout = 10 * time.Second
	}
	if c.Oracle.Driver == "" {
		c.Oracle.Driver = "static"
	}
	if c.Oracle.Fallback == "" {
		c.Oracle.Fallback = RateFallbackZero
	}
	if c.Oracle.Timeout <= 0 {
		c.Oracle.Timeout = 5 * time.Second
	}
	if c.Stores.Driver == "" {
		c.Stores.Driver = "redis"
	}
	if c.Stores.ClickHouse.Table == "" {
		c.Stores.ClickHouse.Table = "movements"
	}
	if c.PubSub.NATS.Stream == "" {
		c.PubSub.NATS.Stream = "LOCKER_EVENTS"
	}
	if c.PubSub.NATS.IngestSubject == "" {
		c.PubSub.NATS.IngestSubject = "locker.events"
	}
	if c.PubSub.NATS.Durable == "" {
		c.PubSub.NATS.Durable = "lockstats"
	}
	if c.API.HTTP.Addr == "" {
		c.API.HTTP.Addr = ":8080"
	}
}

func (c *Config) Validate() error {
	var errs []error

	if c.Protocol.TokenAddress == "" {
		errs = append(errs, errors.New("protocol.token_address is required"))
	}

	switch c.Oracle.Fallback {
	case RateFallbackZero, RateFallbackFail:
	default:
		errs = append(errs, fmt.Errorf("oracle.fallback must be zero|fail, got %q", c.Oracle.Fallback))
	}

	switch c.Oracle.Driver {
	case "static":
	case "http":
		if c.Oracle.BaseURL == "" {
			errs = append(errs, errors.New("oracle.base_url is required for the http driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("oracle.driver must be static|http, got %q", c.Oracle.Driver))
	}

	if c.Oracle.RateTTL < 0 {
		errs = append(errs, errors.New("oracle.rate_ttl must not be negative"))
	}

	switch c.Stores.Driver {
	case "redis":
		if c.Stores.Redis.Addr == "" {
			errs = append(errs, errors.New("stores.redis.addr is required for the redis driver"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("stores.driver must be redis|memory, got %q", c.Stores.Driver))
	}

	if c.Stores.ClickHouse.Enabled && c.Stores.ClickHouse.DSN == "" {
		errs = append(errs, errors.New("stores.clickhouse.dsn is required when clickhouse is enabled"))
	}

	if c.PubSub.NATS.URL == "" {
		errs = append(errs, errors.New("pubsub.nats.url is required"))
	}

	if c.Security.JWT.Enabled && c.Security.JWT.PublicKeyPath == "" {
		errs = append(errs, errors.New("security.jwt.public_key_path is required when jwt is enabled"))
	}

	if c.RateLimit.Enabled && c.Stores.Driver != "redis" {
		errs = append(errs, errors.New("rate_limit requires the redis store driver"))
	}

	return errors.Join(errs...)
}
