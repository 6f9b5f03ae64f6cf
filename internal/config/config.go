// internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all configuration for the storefront core
type Config struct {
	App      AppConfig
	API      APIConfig
	Storage  StorageConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Store    StoreConfig
	Sync     SyncConfig
	Logging  LoggingConfig
	DevAPI   DevAPIConfig
}

// AppConfig contains application-level configuration
type AppConfig struct {
	Name        string
	Version     string
	Environment string
	Debug       bool
}

// APIConfig describes the remote REST API the client talks to
type APIConfig struct {
	BaseURL     string
	Timeout     time.Duration // zero means the transport default
	RefreshPath string
}

// StorageConfig selects where session, cart and order state is persisted
type StorageConfig struct {
	Driver    string // memory, file, redis, postgres
	FilePath  string
	KeyPrefix string
}

// DatabaseConfig contains database connection configuration
type DatabaseConfig struct {
	Host         string
	Port         string
	Name         string
	User         string
	Password     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

// RedisConfig contains Redis configuration
type RedisConfig struct {
	Host         string
	Port         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
}

// StoreConfig contains shop rules and receipt details
type StoreConfig struct {
	FreeDeliveryThreshold decimal.Decimal
	DeliveryCharge        decimal.Decimal
	Currency              string
	CompanyName           string
	CompanyAddress        string
	CompanyPhone          string
	CompanyEmail          string
	CompanyWebsite        string
}

// SyncConfig controls what happens to an optimistic mutation the server rejected
type SyncConfig struct {
	Policy string // keep, rollback
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// DevAPIConfig configures the local development backend
type DevAPIConfig struct {
	Port               string
	JWTSecret          string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	BcryptCost         int
	AdminEmail         string
	AdminPassword      string
	CORSAllowedOrigins []string
}

const (
	StorageMemory   = "memory"
	StorageFile     = "file"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"

	SyncPolicyKeep     = "keep"
	SyncPolicyRollback = "rollback"
)

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using environment variables")
	}

	config := FromEnv()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// FromEnv builds a Config from the current environment without touching .env files
func FromEnv() *Config {
	return &Config{
		App: AppConfig{
			Name:        getEnv("APP_NAME", "Eid Collection"),
			Version:     getEnv("APP_VERSION", "1.0.0"),
			Environment: getEnv("APP_ENV", "development"),
			Debug:       getEnvAsBool("APP_DEBUG", false),
		},
		API: APIConfig{
			BaseURL:     getEnv("API_BASE_URL", "http://localhost:8080/api/v1"),
			Timeout:     getEnvAsDuration("API_TIMEOUT", 0),
			RefreshPath: getEnv("API_REFRESH_PATH", "/auth/refresh"),
		},
		Storage: StorageConfig{
			Driver:    getEnv("STORAGE_DRIVER", StorageFile),
			FilePath:  getEnv("STORAGE_FILE_PATH", ".eid-storefront.json"),
			KeyPrefix: getEnv("STORAGE_KEY_PREFIX", "eid"),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			Name:         getEnv("DB_NAME", "eid_storefront"),
			User:         getEnv("DB_USER", "eid_user"),
			Password:     getEnv("DB_PASSWORD", "eid_password"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 2),
			MaxLifetime:  getEnvAsDuration("DB_MAX_LIFETIME", 300*time.Second),
		},
		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnv("REDIS_PORT", "6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvAsInt("REDIS_MIN_IDLE_CONNS", 2),
		},
		Store: StoreConfig{
			FreeDeliveryThreshold: getEnvAsDecimal("FREE_DELIVERY_THRESHOLD", decimal.NewFromInt(5000)),
			DeliveryCharge:        getEnvAsDecimal("DELIVERY_CHARGE", decimal.NewFromInt(250)),
			Currency:              getEnv("STORE_CURRENCY", "BDT"),
			CompanyName:           getEnv("COMPANY_NAME", "Eid Collection"),
			CompanyAddress:        getEnv("COMPANY_ADDRESS", ""),
			CompanyPhone:          getEnv("COMPANY_PHONE", ""),
			CompanyEmail:          getEnv("COMPANY_EMAIL", ""),
			CompanyWebsite:        getEnv("COMPANY_WEBSITE", ""),
		},
		Sync: SyncConfig{
			Policy: getEnv("SYNC_POLICY", SyncPolicyKeep),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
		DevAPI: DevAPIConfig{
			Port:               getEnv("DEVAPI_PORT", "8080"),
			JWTSecret:          getEnv("DEVAPI_JWT_SECRET", "dev-only-secret-change-me-0123456789abcdef"),
			AccessTokenExpiry:  getEnvAsDuration("DEVAPI_ACCESS_EXPIRE", 15*time.Minute),
			RefreshTokenExpiry: getEnvAsDuration("DEVAPI_REFRESH_EXPIRE", 7*24*time.Hour),
			BcryptCost:         getEnvAsInt("DEVAPI_BCRYPT_COST", 10),
			AdminEmail:         getEnv("DEVAPI_ADMIN_EMAIL", "admin@eid.local"),
			AdminPassword:      getEnv("DEVAPI_ADMIN_PASSWORD", "admin1234"),
			CORSAllowedOrigins: getEnvAsSlice("DEVAPI_CORS_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("API_BASE_URL must be an absolute URL, got %q", c.API.BaseURL)
	}

	switch c.Storage.Driver {
	case StorageMemory, StorageRedis, StoragePostgres:
	case StorageFile:
		if c.Storage.FilePath == "" {
			return fmt.Errorf("STORAGE_FILE_PATH is required for the file driver")
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.Storage.Driver)
	}

	if c.Store.DeliveryCharge.IsNegative() {
		return fmt.Errorf("DELIVERY_CHARGE must not be negative")
	}
	if c.Store.FreeDeliveryThreshold.IsNegative() {
		return fmt.Errorf("FREE_DELIVERY_THRESHOLD must not be negative")
	}

	if c.Sync.Policy != SyncPolicyKeep && c.Sync.Policy != SyncPolicyRollback {
		return fmt.Errorf("unknown SYNC_POLICY %q", c.Sync.Policy)
	}

	if len(c.DevAPI.JWTSecret) < 32 {
		return fmt.Errorf("DEVAPI_JWT_SECRET must be at least 32 characters long")
	}

	return nil
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsProduction returns true if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// GetDatabaseDSN returns the database connection string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// GetRedisAddr returns the Redis address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvAsDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}
