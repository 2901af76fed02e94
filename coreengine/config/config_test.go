package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeeves-cluster-organization/selene/coreengine/domains/quota"
	"github.com/jeeves-cluster-organization/selene/coreengine/domains/searchplan"
)

// =============================================================================
// DEFAULTS TESTS
// =============================================================================

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, StoreMemory, cfg.Server.StoreDriver)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, searchplan.DefaultConfig(), cfg.Domains.SearchPlan)
	assert.Len(t, cfg.Domains.ByDomain(), 11)
	for domain, wc := range cfg.Domains.ByDomain() {
		assert.True(t, wc.Enabled, domain)
	}
}

func TestDefaultConfigIsFresh(t *testing.T) {
	// Each call returns an independent value.
	a := DefaultConfig()
	a.Server.GRPCAddr = "changed:1"
	assert.NotEqual(t, a.Server.GRPCAddr, DefaultConfig().Server.GRPCAddr)
}

// =============================================================================
// FILE TESTS
// =============================================================================

func TestLoadFileOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "selene.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  store_driver: sqlite
  store_path: /var/lib/selene/events.db
  maintenance_interval: 30s
logging:
  level: debug
domains:
  quota:
    enabled: false
    max_candidates: 8
    max_diagnostics: 4
`), 0o600))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFile(path))
	require.NoError(t, cfg.Validate())

	assert.Equal(t, StoreSQLite, cfg.Server.StoreDriver)
	assert.Equal(t, 30*time.Second, cfg.Server.MaintenanceInterval)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.False(t, cfg.Domains.Quota.Enabled)
	assert.Equal(t, 8, cfg.Domains.Quota.MaxCandidates)
	assert.Equal(t, searchplan.DefaultConfig(), cfg.Domains.SearchPlan)
}

func TestDecodeRejectsUnknownKeys(t *testing.T) {
	err := DefaultConfig().Decode(strings.NewReader("server:\n  grpc_adr: x:1\n"))
	assert.Error(t, err)
}

func TestDecodeEmpty(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Decode(strings.NewReader("")))
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadFileMissing(t *testing.T) {
	err := DefaultConfig().LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to open config file")
}

// =============================================================================
// ENVIRONMENT TESTS
// =============================================================================

func TestEnvOverrides(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.applyEnv(env.Options{
		Prefix: EnvPrefix,
		Environment: map[string]string{
			"SELENE_SERVER_GRPC_ADDR":                  "0.0.0.0:6000",
			"SELENE_LOG_FORMAT":                        "console",
			"SELENE_RATE_LIMIT_PER_MINUTE":             "5",
			"SELENE_DOMAIN_QUOTA_MAX_CANDIDATES":       "16",
			"SELENE_DOMAIN_RETRY_ENABLED":              "false",
			"SELENE_SERVER_MAINTENANCE_INTERVAL":       "2m",
			"SELENE_DOMAIN_SEARCHPLAN_MAX_DIAGNOSTICS": "8",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:6000", cfg.Server.GRPCAddr)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, 5, cfg.RateLimit.RequestsPerMinute)
	assert.Equal(t, 16, cfg.Domains.Quota.MaxCandidates)
	assert.Equal(t, quota.DefaultConfig().MaxDiagnostics, cfg.Domains.Quota.MaxDiagnostics)
	assert.False(t, cfg.Domains.Retry.Enabled)
	assert.Equal(t, 2*time.Minute, cfg.Server.MaintenanceInterval)
	assert.Equal(t, 8, cfg.Domains.SearchPlan.MaxDiagnostics)
}

func TestEnvBadValue(t *testing.T) {
	err := DefaultConfig().applyEnv(env.Options{
		Prefix:      EnvPrefix,
		Environment: map[string]string{"SELENE_RATE_LIMIT_PER_HOUR": "lots"},
	})
	assert.ErrorContains(t, err, "failed to parse environment")
}

func TestLoadUsesProcessEnvironment(t *testing.T) {
	t.Setenv("SELENE_LOG_LEVEL", "warn")

	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

// =============================================================================
// VALIDATION TESTS
// =============================================================================

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad store driver", func(c *Config) { c.Server.StoreDriver = "postgres" }},
		{"sqlite without path", func(c *Config) { c.Server.StoreDriver = StoreSQLite }},
		{"bad grpc addr", func(c *Config) { c.Server.GRPCAddr = "nope" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }},
		{"short maintenance interval", func(c *Config) { c.Server.MaintenanceInterval = time.Millisecond }},
		{"negative rate", func(c *Config) { c.RateLimit.RequestsPerDay = -1 }},
		{"zero ceiling", func(c *Config) { c.Domains.Lexicon.MaxCandidates = 0 }},
		{"ceiling over global", func(c *Config) { c.Domains.Export.MaxDiagnostics = 1000 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestToMap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Domains.Tenant.Enabled = false

	m := cfg.ToMap()

	assert.Equal(t, "selene", m["service_name"])
	assert.Equal(t, "5m0s", m["maintenance_interval"])
	assert.Equal(t, 10, m["enabled_domains"])
}
