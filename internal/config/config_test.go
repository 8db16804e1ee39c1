package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DB_DRIVER", "")
	t.Setenv("QUICKSALE_SWEEP_INTERVAL", "")

	cfg := Load()

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 20, cfg.QuickSale.MaxProducts)
	assert.Equal(t, 5, cfg.QuickSale.MaxImagesPerProduct)
	assert.True(t, cfg.QuickSale.AutoFinalize)
	assert.Equal(t, 30*time.Second, cfg.QuickSale.SweepInterval)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	assert.False(t, cfg.Kafka.Enabled)
	assert.True(t, cfg.Kafka.RelayEvents)
	assert.NotEmpty(t, cfg.Kafka.InstanceID)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("QUICKSALE_SWEEP_INTERVAL", "2m")
	t.Setenv("QUICKSALE_AUTO_FINALIZE", "false")
	t.Setenv("PUBLIC_BASE_URL", "https://bizconnect.ktu.edu.gh/")
	t.Setenv("INSTANCE_ID", "api-2")

	cfg := Load()

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 2*time.Minute, cfg.QuickSale.SweepInterval)
	assert.False(t, cfg.QuickSale.AutoFinalize)
	assert.Equal(t, "https://bizconnect.ktu.edu.gh", cfg.Server.PublicBaseURL)
	assert.Equal(t, "api-2", cfg.Kafka.InstanceID)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("QUICKSALE_MAX_PRODUCTS", "many")
	t.Setenv("JWT_TTL", "soon")

	cfg := Load()

	assert.Equal(t, 20, cfg.QuickSale.MaxProducts)
	assert.Equal(t, 12*time.Hour, cfg.Auth.TokenTTL)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Load()
		cfg.Database.Driver = "sqlite"
		cfg.Auth.JWTSecret = "0123456789abcdef0123456789abcdef"
		cfg.Auth.AdminPasswordHash = "$2a$10$abcdefghijklmnopqrstuv"
		return cfg
	}

	require.NoError(t, valid().Validate())

	cfg := valid()
	cfg.Auth.JWTSecret = "short"
	assert.ErrorContains(t, cfg.Validate(), "JWT_SECRET")

	cfg = valid()
	cfg.Database.Driver = "mysql"
	assert.ErrorContains(t, cfg.Validate(), "unsupported DB_DRIVER")

	cfg = valid()
	cfg.Auth.AdminPasswordHash = ""
	assert.ErrorContains(t, cfg.Validate(), "ADMIN_PASSWORD_HASH")

	cfg = valid()
	cfg.Auth.OIDCIssuer = "https://keycloak.example/realms/ktu"
	assert.ErrorContains(t, cfg.Validate(), "OIDC_CLIENT_ID")

	cfg = valid()
	cfg.QuickSale.EventsTickInterval = 0
	assert.ErrorContains(t, cfg.Validate(), "QUICKSALE_EVENTS_TICK")

	cfg = valid()
	cfg.QuickSale.SweepInterval = -time.Second
	assert.ErrorContains(t, cfg.Validate(), "QUICKSALE_SWEEP_INTERVAL")

	cfg = valid()
	cfg.Storage.S3Bucket = "images"
	cfg.Storage.PublicURL = ""
	assert.ErrorContains(t, cfg.Validate(), "S3_PUBLIC_URL")
}

func TestPostgresDSN(t *testing.T) {
	d := DatabaseConfig{Username: "u", Password: "p", Host: "db", Port: "5432", Database: "biz", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@db:5432/biz?sslmode=disable", d.PostgresDSN())
}
