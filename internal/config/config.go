// Package config provides configuration management for the scan worker and API server.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Scan      ScanConfig
	GameStats GameStatsConfig
	Discord   DiscordConfig
	Trigger   TriggerConfig
	Cache     CacheConfig
	Logging   LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port              string
	Host              string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	RequestsPerSecond float64
	Burst             int
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres PostgresConfig
	Redis    RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
	MigrationsPath string
}

// URL returns the connection string used by pgx and golang-migrate
func (c PostgresConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// RedisConfig holds Redis configuration. An empty Host disables the cache.
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// ScanConfig holds scan pipeline configuration
type ScanConfig struct {
	TickInterval     time.Duration
	StepBudget       time.Duration
	StaleThreshold   time.Duration
	ClanBatchSize    int
	PlayerBatchSize  int
	FFAGameBatchSize int
}

// GameStatsConfig holds the game-stats API client configuration
type GameStatsConfig struct {
	BaseURL           string
	RequestsPerSecond float64
	Timeout           time.Duration
	FailureThreshold  int
	OpenTimeout       time.Duration
}

// DiscordConfig holds the notification sink configuration
type DiscordConfig struct {
	APIBase     string
	BotToken    string
	MaxAttempts int
}

// TriggerConfig holds the external step trigger configuration.
// An empty token disables the trigger route.
type TriggerConfig struct {
	Token string
}

// CacheConfig holds leaderboard cache configuration
type CacheConfig struct {
	LeaderboardTTL time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port:              getEnv("SERVER_PORT", "8080"),
			Host:              getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:       getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:      getEnvAsDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
			RequestsPerSecond: getEnvAsFloat("SERVER_RATE_LIMIT_RPS", 20),
			Burst:             getEnvAsInt("SERVER_RATE_LIMIT_BURST", 40),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "openfront_bot"),
				User:           getEnv("POSTGRES_USER", "openfront"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 20),
				MigrationsPath: getEnv("POSTGRES_MIGRATIONS_PATH", "migrations/postgres"),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", ""),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
			},
		},
		Scan: ScanConfig{
			TickInterval:     getEnvAsDuration("SCAN_TICK_INTERVAL", time.Minute),
			StepBudget:       getEnvAsDuration("SCAN_STEP_BUDGET", 50*time.Second),
			StaleThreshold:   getEnvAsDuration("SCAN_STALE_THRESHOLD", 300*time.Second),
			ClanBatchSize:    getEnvAsInt("SCAN_CLAN_BATCH_SIZE", 50),
			PlayerBatchSize:  getEnvAsInt("SCAN_PLAYER_BATCH_SIZE", 5),
			FFAGameBatchSize: getEnvAsInt("SCAN_FFA_BATCH_SIZE", 40),
		},
		GameStats: GameStatsConfig{
			BaseURL:           getEnv("OPENFRONT_API_URL", "https://api.openfront.io"),
			RequestsPerSecond: getEnvAsFloat("OPENFRONT_RPS", 10),
			Timeout:           getEnvAsDuration("OPENFRONT_TIMEOUT", 10*time.Second),
			FailureThreshold:  getEnvAsInt("OPENFRONT_BREAKER_FAILURES", 5),
			OpenTimeout:       getEnvAsDuration("OPENFRONT_BREAKER_TIMEOUT", 30*time.Second),
		},
		Discord: DiscordConfig{
			APIBase:     getEnv("DISCORD_API_BASE", "https://discord.com/api/v10"),
			BotToken:    getEnv("DISCORD_BOT_TOKEN", ""),
			MaxAttempts: getEnvAsInt("DISCORD_MAX_ATTEMPTS", 3),
		},
		Trigger: TriggerConfig{
			Token: getEnv("TRIGGER_TOKEN", ""),
		},
		Cache: CacheConfig{
			LeaderboardTTL: getEnvAsDuration("LEADERBOARD_CACHE_TTL", 30*time.Second),
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

// Validate rejects settings the scan pipeline cannot run with
func (c *Config) Validate() error {
	scan := c.Scan
	switch {
	case scan.ClanBatchSize <= 0:
		return fmt.Errorf("SCAN_CLAN_BATCH_SIZE must be positive, got %d", scan.ClanBatchSize)
	case scan.PlayerBatchSize <= 0:
		return fmt.Errorf("SCAN_PLAYER_BATCH_SIZE must be positive, got %d", scan.PlayerBatchSize)
	case scan.FFAGameBatchSize <= 0:
		return fmt.Errorf("SCAN_FFA_BATCH_SIZE must be positive, got %d", scan.FFAGameBatchSize)
	case scan.StaleThreshold <= 0:
		return fmt.Errorf("SCAN_STALE_THRESHOLD must be positive, got %s", scan.StaleThreshold)
	case scan.TickInterval <= 0:
		return fmt.Errorf("SCAN_TICK_INTERVAL must be positive, got %s", scan.TickInterval)
	case scan.StepBudget <= 0:
		return fmt.Errorf("SCAN_STEP_BUDGET must be positive, got %s", scan.StepBudget)
	case scan.StepBudget >= scan.StaleThreshold:
		// a longer step would have its own job reclaimed while still running
		return fmt.Errorf("SCAN_STEP_BUDGET (%s) must be shorter than SCAN_STALE_THRESHOLD (%s)", scan.StepBudget, scan.StaleThreshold)
	}
	if c.GameStats.RequestsPerSecond <= 0 {
		return fmt.Errorf("OPENFRONT_RPS must be positive, got %v", c.GameStats.RequestsPerSecond)
	}
	return nil
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

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
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
