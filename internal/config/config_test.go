package config

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg := FromEnv()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "http://localhost:8080/api/v1", cfg.API.BaseURL)
	assert.True(t, cfg.Store.FreeDeliveryThreshold.Equal(decimal.NewFromInt(5000)))
	assert.True(t, cfg.Store.DeliveryCharge.Equal(decimal.NewFromInt(250)))
	assert.Equal(t, SyncPolicyKeep, cfg.Sync.Policy)
	assert.Zero(t, cfg.API.Timeout)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("API_BASE_URL", "https://api.eid.example/v2")
	t.Setenv("DELIVERY_CHARGE", "120.50")
	t.Setenv("STORAGE_DRIVER", StorageMemory)
	t.Setenv("API_TIMEOUT", "5s")

	cfg := FromEnv()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "https://api.eid.example/v2", cfg.API.BaseURL)
	assert.Equal(t, "120.5", cfg.Store.DeliveryCharge.String())
	assert.Equal(t, StorageMemory, cfg.Storage.Driver)
	assert.Equal(t, "5s", cfg.API.Timeout.String())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"relative base url", func(c *Config) { c.API.BaseURL = "/api/v1" }},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "sqlite" }},
		{"file driver without path", func(c *Config) { c.Storage.Driver = StorageFile; c.Storage.FilePath = "" }},
		{"negative charge", func(c *Config) { c.Store.DeliveryCharge = decimal.NewFromInt(-1) }},
		{"unknown policy", func(c *Config) { c.Sync.Policy = "drop" }},
		{"short secret", func(c *Config) { c.DevAPI.JWTSecret = "short" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := FromEnv()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
