package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	Auth       AuthConfig
	Storage    StorageConfig
	QuickSale  QuickSaleConfig
	Migrations MigrationConfig
}

type ServerConfig struct {
	Port            string
	PublicBaseURL   string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Driver       string // postgres | sqlite
	Host         string
	Port         string
	Username     string
	Password     string
	Database     string
	SSLMode      string
	SQLitePath   string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Enabled  bool
}

type KafkaConfig struct {
	Brokers     []string
	Enabled     bool
	Topics      TopicConfig
	InstanceID  string
	RelayEvents bool // replay other instances' events to local SSE clients
}

type TopicConfig struct {
	SaleCreated   string
	BidPlaced     string
	SaleFinalized string
	SaleUpdated   string
	SaleDeleted   string
}

type AuthConfig struct {
	JWTSecret         string
	TokenTTL          time.Duration
	AdminUsername     string
	AdminPasswordHash string
	OIDCIssuer        string
	OIDCClientID      string
}

type StorageConfig struct {
	S3Endpoint    string
	S3Region      string
	S3Bucket      string
	S3AccessKey   string
	S3SecretKey   string
	PublicURL     string
	LocalDir      string
	MaxImageBytes int64
}

type QuickSaleConfig struct {
	MaxProducts         int
	MaxImagesPerProduct int
	AutoFinalize        bool
	SweepInterval       time.Duration
	HighestBidCacheTTL  time.Duration
	EventsTickInterval  time.Duration
}

type MigrationConfig struct {
	AutoMigrate bool
}

// Load reads a .env file if one is present and builds the configuration from the environment.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", ":8080"),
			PublicBaseURL:   strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:3000"), "/"),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 0),
			IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 5*time.Second),
		},
		Database: DatabaseConfig{
			Driver:       strings.ToLower(getEnv("DB_DRIVER", "postgres")),
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			Username:     getEnv("DB_USER", "bizconnect"),
			Password:     getEnv("DB_PASSWORD", ""),
			Database:     getEnv("DB_NAME", "bizconnect"),
			SSLMode:      getEnv("DB_SSLMODE", "disable"),
			SQLitePath:   getEnv("SQLITE_PATH", "file:quicksale.db?cache=shared"),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			Enabled:  getEnvBool("REDIS_ENABLED", true),
		},
		Kafka: KafkaConfig{
			Brokers:     getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
			Enabled:     getEnvBool("KAFKA_ENABLED", false),
			InstanceID:  getEnv("INSTANCE_ID", hostname()),
			RelayEvents: getEnvBool("KAFKA_RELAY_EVENTS", true),
			Topics: TopicConfig{
				SaleCreated:   getEnv("KAFKA_TOPIC_SALE_CREATED", "quicksale.created"),
				BidPlaced:     getEnv("KAFKA_TOPIC_BID_PLACED", "quicksale.bid_placed"),
				SaleFinalized: getEnv("KAFKA_TOPIC_SALE_FINALIZED", "quicksale.finalized"),
				SaleUpdated:   getEnv("KAFKA_TOPIC_SALE_UPDATED", "quicksale.updated"),
				SaleDeleted:   getEnv("KAFKA_TOPIC_SALE_DELETED", "quicksale.deleted"),
			},
		},
		Auth: AuthConfig{
			JWTSecret:         getEnv("JWT_SECRET", ""),
			TokenTTL:          getEnvDuration("JWT_TTL", 12*time.Hour),
			AdminUsername:     getEnv("ADMIN_USERNAME", "admin"),
			AdminPasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
			OIDCIssuer:        getEnv("OIDC_ISSUER", ""),
			OIDCClientID:      getEnv("OIDC_CLIENT_ID", ""),
		},
		Storage: StorageConfig{
			S3Endpoint:    getEnv("S3_ENDPOINT", ""),
			S3Region:      getEnv("S3_REGION", "us-east-1"),
			S3Bucket:      getEnv("S3_BUCKET", ""),
			S3AccessKey:   getEnv("S3_ACCESS_KEY", ""),
			S3SecretKey:   getEnv("S3_SECRET_KEY", ""),
			PublicURL:     strings.TrimRight(getEnv("S3_PUBLIC_URL", ""), "/"),
			LocalDir:      getEnv("STORAGE_LOCAL_DIR", "uploads"),
			MaxImageBytes: int64(getEnvInt("STORAGE_MAX_IMAGE_BYTES", 5<<20)),
		},
		QuickSale: QuickSaleConfig{
			MaxProducts:         getEnvInt("QUICKSALE_MAX_PRODUCTS", 20),
			MaxImagesPerProduct: getEnvInt("QUICKSALE_MAX_IMAGES_PER_PRODUCT", 5),
			AutoFinalize:        getEnvBool("QUICKSALE_AUTO_FINALIZE", true),
			SweepInterval:       getEnvDuration("QUICKSALE_SWEEP_INTERVAL", 30*time.Second),
			HighestBidCacheTTL:  getEnvDuration("QUICKSALE_HIGHEST_CACHE_TTL", 10*time.Minute),
			EventsTickInterval:  getEnvDuration("QUICKSALE_EVENTS_TICK", time.Second),
		},
		Migrations: MigrationConfig{
			AutoMigrate: getEnvBool("DB_AUTO_MIGRATE", false),
		},
	}
}

// Validate reports configuration that would leave the service unable to start.
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case "postgres":
		if c.Database.Host == "" || c.Database.Database == "" {
			errs = append(errs, errors.New("DB_HOST and DB_NAME are required for postgres"))
		}
	case "sqlite":
	default:
		errs = append(errs, fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver))
	}

	if len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 32 characters"))
	}
	if c.Auth.AdminPasswordHash == "" && c.Auth.OIDCIssuer == "" {
		errs = append(errs, errors.New("either ADMIN_PASSWORD_HASH or OIDC_ISSUER must be set"))
	}
	if c.Auth.OIDCIssuer != "" && c.Auth.OIDCClientID == "" {
		errs = append(errs, errors.New("OIDC_CLIENT_ID is required when OIDC_ISSUER is set"))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED=true"))
	}
	if c.QuickSale.MaxProducts <= 0 {
		errs = append(errs, errors.New("QUICKSALE_MAX_PRODUCTS must be positive"))
	}
	if c.QuickSale.SweepInterval <= 0 {
		errs = append(errs, errors.New("QUICKSALE_SWEEP_INTERVAL must be positive"))
	}
	if c.QuickSale.EventsTickInterval <= 0 {
		errs = append(errs, errors.New("QUICKSALE_EVENTS_TICK must be positive"))
	}
	if c.Storage.S3Bucket != "" && c.Storage.PublicURL == "" {
		errs = append(errs, errors.New("S3_PUBLIC_URL is required when S3_BUCKET is set"))
	}

	return errors.Join(errs...)
}

// PostgresDSN builds a lib/pq connection string.
func (d DatabaseConfig) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.Username, d.Password, d.Host, d.Port, d.Database, d.SSLMode)
}

func hostname() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "quicksale"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
