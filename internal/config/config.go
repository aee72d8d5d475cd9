// Package config provides configuration management for the portfolio sync service.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Cache backends for market data
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Market    MarketConfig
	Exchange  ExchangeConfig
	Chain     ChainConfig
	Valuation ValuationConfig
	RateLimit RateLimitConfig
	Snapshot  SnapshotConfig
	Logging   LoggingConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	SSLMode        string
	MaxConnections int
	MinConnections int
	ConnectTimeout time.Duration
	// StatementTimeout caps every query; stores answer a sync, so they must not stall it
	StatementTimeout time.Duration
}

// URL returns the postgres:// form shared by pgx and golang-migrate
func (c PostgresConfig) URL() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": {sslMode}}.Encode(),
	}
	return u.String()
}

// ClickHouseConfig holds ClickHouse configuration.
// The asset archive is skipped entirely when Enabled is false.
type ClickHouseConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Database string
	User     string
	Password string
	// the archive writes one small batch per sync
	MaxOpenConns     int
	DialTimeout      time.Duration
	MaxExecutionTime time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
	DialTimeout    time.Duration
	// OpTimeout bounds each cache read and write; a slow cache counts as a miss
	OpTimeout time.Duration
}

// MarketConfig holds market-data provider configuration
type MarketConfig struct {
	BaseURL         string
	APIKey          string
	VsCurrency      string
	RequestTimeout  time.Duration
	MinInterval     time.Duration // minimum spacing between upstream requests
	CacheTTL        time.Duration
	CacheBackend    string
	BreakerFailures int
	BreakerCooldown time.Duration
}

// ExchangeConfig holds exchange API configuration
type ExchangeConfig struct {
	BaseURL    string
	Timeout    time.Duration
	RecvWindow time.Duration
}

// ChainConfig holds on-chain provider configuration
type ChainConfig struct {
	RPCURL              string
	Timeout             time.Duration
	MetadataConcurrency int
	NativeSymbol        string
}

// ValuationConfig holds portfolio valuation rules
type ValuationConfig struct {
	DustThreshold   string
	SymbolOverrides map[string]string
}

// RateLimitConfig holds HTTP rate limiting configuration
type RateLimitConfig struct {
	FreeTier    int
	BasicTier   int
	PremiumTier int
}

// SnapshotConfig holds daily snapshot job configuration
type SnapshotConfig struct {
	RetryAttempts int
	RetryDelay    time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// .env is optional; environment variables can be set directly
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:             getEnv("POSTGRES_HOST", "localhost"),
				Port:             getEnv("POSTGRES_PORT", "5432"),
				Database:         getEnv("POSTGRES_DB", "koinlytics"),
				User:             getEnv("POSTGRES_USER", "koinlytics"),
				Password:         getEnv("POSTGRES_PASSWORD", ""),
				SSLMode:          getEnv("POSTGRES_SSLMODE", "disable"),
				MaxConnections:   getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 20),
				MinConnections:   getEnvAsInt("POSTGRES_MIN_CONNECTIONS", 0),
				ConnectTimeout:   getEnvAsDuration("POSTGRES_CONNECT_TIMEOUT", 10*time.Second),
				StatementTimeout: getEnvAsDuration("POSTGRES_STATEMENT_TIMEOUT", 5*time.Second),
			},
			ClickHouse: ClickHouseConfig{
				Enabled:          getEnvAsBool("CLICKHOUSE_ENABLED", false),
				Host:             getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:             getEnv("CLICKHOUSE_PORT", "9000"),
				Database:         getEnv("CLICKHOUSE_DB", "koinlytics"),
				User:             getEnv("CLICKHOUSE_USER", "default"),
				Password:         getEnv("CLICKHOUSE_PASSWORD", ""),
				MaxOpenConns:     getEnvAsInt("CLICKHOUSE_MAX_OPEN_CONNS", 2),
				DialTimeout:      getEnvAsDuration("CLICKHOUSE_DIAL_TIMEOUT", 5*time.Second),
				MaxExecutionTime: getEnvAsDuration("CLICKHOUSE_MAX_EXECUTION_TIME", 10*time.Second),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
				DialTimeout:    getEnvAsDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
				OpTimeout:      getEnvAsDuration("REDIS_OP_TIMEOUT", 500*time.Millisecond),
			},
		},
		Market: MarketConfig{
			BaseURL:         getEnv("COINGECKO_BASE_URL", "https://api.coingecko.com"),
			APIKey:          getEnv("COINGECKO_API_KEY", ""),
			VsCurrency:      getEnv("COINGECKO_VS_CURRENCY", "usd"),
			RequestTimeout:  getEnvAsDuration("COINGECKO_TIMEOUT", 10*time.Second),
			MinInterval:     getEnvAsDuration("COINGECKO_MIN_INTERVAL", time.Second),
			CacheTTL:        getEnvAsDuration("MARKET_CACHE_TTL", 5*time.Minute),
			CacheBackend:    strings.ToLower(getEnv("MARKET_CACHE_BACKEND", CacheBackendMemory)),
			BreakerFailures: getEnvAsInt("COINGECKO_BREAKER_FAILURES", 5),
			BreakerCooldown: getEnvAsDuration("COINGECKO_BREAKER_COOLDOWN", 30*time.Second),
		},
		Exchange: ExchangeConfig{
			BaseURL:    getEnv("BINANCE_BASE_URL", "https://testnet.binance.vision"),
			Timeout:    getEnvAsDuration("BINANCE_TIMEOUT", 10*time.Second),
			RecvWindow: getEnvAsDuration("BINANCE_RECV_WINDOW", 5*time.Second),
		},
		Chain: ChainConfig{
			RPCURL:              alchemyURL(),
			Timeout:             getEnvAsDuration("CHAIN_TIMEOUT", 15*time.Second),
			MetadataConcurrency: getEnvAsInt("CHAIN_METADATA_CONCURRENCY", 8),
			NativeSymbol:        strings.ToLower(getEnv("CHAIN_NATIVE_SYMBOL", "eth")),
		},
		Valuation: ValuationConfig{
			DustThreshold:   getEnv("VALUATION_DUST_THRESHOLD", "1.00"),
			SymbolOverrides: parseSymbolOverrides(getEnv("SYMBOL_OVERRIDES", "")),
		},
		RateLimit: RateLimitConfig{
			FreeTier:    getEnvAsInt("RATE_LIMIT_FREE_TIER", 10),
			BasicTier:   getEnvAsInt("RATE_LIMIT_BASIC_TIER", 50),
			PremiumTier: getEnvAsInt("RATE_LIMIT_PREMIUM_TIER", 200),
		},
		Snapshot: SnapshotConfig{
			RetryAttempts: getEnvAsInt("SNAPSHOT_RETRY_ATTEMPTS", 3),
			RetryDelay:    getEnvAsDuration("SNAPSHOT_RETRY_DELAY", 30*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate rejects configurations the service cannot run with
func (c *Config) Validate() error {
	if c.Market.MinInterval <= 0 {
		return fmt.Errorf("COINGECKO_MIN_INTERVAL must be positive, got %s", c.Market.MinInterval)
	}
	if c.Market.CacheTTL <= 0 {
		return fmt.Errorf("MARKET_CACHE_TTL must be positive, got %s", c.Market.CacheTTL)
	}
	if c.Market.RequestTimeout <= 0 {
		return fmt.Errorf("COINGECKO_TIMEOUT must be positive, got %s", c.Market.RequestTimeout)
	}
	switch c.Market.CacheBackend {
	case CacheBackendMemory, CacheBackendRedis:
	default:
		return fmt.Errorf("unknown MARKET_CACHE_BACKEND %q", c.Market.CacheBackend)
	}
	if c.Chain.MetadataConcurrency <= 0 {
		return fmt.Errorf("CHAIN_METADATA_CONCURRENCY must be positive, got %d", c.Chain.MetadataConcurrency)
	}
	if c.Database.Postgres.MaxConnections <= 0 {
		return fmt.Errorf("POSTGRES_MAX_CONNECTIONS must be positive, got %d", c.Database.Postgres.MaxConnections)
	}
	if c.Database.Postgres.MinConnections < 0 || c.Database.Postgres.MinConnections > c.Database.Postgres.MaxConnections {
		return fmt.Errorf("POSTGRES_MIN_CONNECTIONS must be between 0 and %d, got %d",
			c.Database.Postgres.MaxConnections, c.Database.Postgres.MinConnections)
	}
	if c.Snapshot.RetryAttempts < 1 {
		return fmt.Errorf("SNAPSHOT_RETRY_ATTEMPTS must be at least 1, got %d", c.Snapshot.RetryAttempts)
	}
	if _, err := strconv.ParseFloat(c.Valuation.DustThreshold, 64); err != nil {
		return fmt.Errorf("invalid VALUATION_DUST_THRESHOLD %q: %w", c.Valuation.DustThreshold, err)
	}
	return nil
}

// alchemyURL prefers an explicit RPC URL and falls back to building one from the API key
func alchemyURL() string {
	if url := getEnv("CHAIN_RPC_URL", ""); url != "" {
		return url
	}
	if key := getEnv("ALCHEMY_API_KEY", ""); key != "" {
		return "https://eth-mainnet.g.alchemy.com/v2/" + key
	}
	return ""
}

// parseSymbolOverrides parses "sym=id,sym2=id2" into a map
func parseSymbolOverrides(raw string) map[string]string {
	overrides := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		symbol, id, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}
		symbol = strings.ToLower(strings.TrimSpace(symbol))
		id = strings.ToLower(strings.TrimSpace(id))
		if symbol == "" || id == "" {
			continue
		}
		overrides[symbol] = id
	}
	return overrides
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as a boolean with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
