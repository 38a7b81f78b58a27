package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	ScanStore ScanStoreConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Stats     StatsConfig
	Rule      RuleConfig
	MQTT      MQTTConfig
	LogMode   string
}

type ServerConfig struct {
	Port int
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

func (d DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

func (d DatabaseConfig) GetURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// ScanStoreConfig points at the historical scan records. An empty DSN means the
// records live in the main database.
type ScanStoreConfig struct {
	DSN string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret      string
	ExpiryHours int
}

type CORSConfig struct {
	AllowedOrigins string
}

type StatsConfig struct {
	Cron              string
	LookbackDays      int
	TenantTimeout     time.Duration
	TenantConcurrency int
	CacheTTL          time.Duration
}

type RuleConfig struct {
	StageMinutes int
}

// MQTTConfig enables the scan-station bridge. An empty BrokerURL turns it off.
type MQTTConfig struct {
	BrokerURL   string
	TopicPrefix string
	ClientID    string
	Username    string
	Password    string
}

func (m MQTTConfig) Enabled() bool {
	return m.BrokerURL != ""
}

func LoadConfig() (*Config, error) {
	serverPort, err := getIntEnv("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	dbPort, err := getIntEnv("DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	redisPort, err := getIntEnv("REDIS_PORT", 6379)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_PORT: %w", err)
	}

	redisDB, err := getIntEnv("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	jwtExpiry, err := getIntEnv("JWT_EXPIRY_HOURS", 24)
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_EXPIRY_HOURS: %w", err)
	}

	lookbackDays, err := getIntEnv("STATS_LOOKBACK_DAYS", 90)
	if err != nil {
		return nil, fmt.Errorf("invalid STATS_LOOKBACK_DAYS: %w", err)
	}
	if lookbackDays <= 0 {
		return nil, fmt.Errorf("invalid STATS_LOOKBACK_DAYS: must be positive, got %d", lookbackDays)
	}

	tenantTimeout, err := getDurationEnv("STATS_TENANT_TIMEOUT", 2*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("invalid STATS_TENANT_TIMEOUT: %w", err)
	}

	concurrency, err := getIntEnv("STATS_TENANT_CONCURRENCY", 1)
	if err != nil {
		return nil, fmt.Errorf("invalid STATS_TENANT_CONCURRENCY: %w", err)
	}
	if concurrency < 1 {
		concurrency = 1
	}

	cacheTTL, err := getDurationEnv("STATS_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("invalid STATS_CACHE_TTL: %w", err)
	}

	ruleMinutes, err := getIntEnv("RULE_STAGE_MINUTES", 480)
	if err != nil {
		return nil, fmt.Errorf("invalid RULE_STAGE_MINUTES: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: serverPort,
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("DB_USER", "fz"),
			Password: getEnv("DB_PASSWORD", "fz_dev_password"),
			Name:     getEnv("DB_NAME", "fz_erp"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		ScanStore: ScanStoreConfig{
			DSN: getEnv("SCAN_DB_DSN", ""),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     redisPort,
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me"),
			ExpiryHours: jwtExpiry,
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
		},
		Stats: StatsConfig{
			Cron:              getEnv("STATS_CRON", "0 30 2 * * *"),
			LookbackDays:      lookbackDays,
			TenantTimeout:     tenantTimeout,
			TenantConcurrency: concurrency,
			CacheTTL:          cacheTTL,
		},
		Rule: RuleConfig{
			StageMinutes: ruleMinutes,
		},
		MQTT: MQTTConfig{
			BrokerURL:   getEnv("MQTT_BROKER_URL", ""),
			TopicPrefix: getEnv("MQTT_TOPIC_PREFIX", "fz/stations"),
			ClientID:    getEnv("MQTT_CLIENT_ID", "fz-intelligence"),
			Username:    getEnv("MQTT_USERNAME", ""),
			Password:    getEnv("MQTT_PASSWORD", ""),
		},
		LogMode: getEnv("LOG_MODE", "development"),
	}

	return cfg, nil
}

// ScanDSN returns the connection string for the scan store, falling back to the
// main database.
func (c *Config) ScanDSN() string {
	if c.ScanStore.DSN != "" {
		return c.ScanStore.DSN
	}
	return c.Database.GetURL()
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getIntEnv(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func getDurationEnv(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}
