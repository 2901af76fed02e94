// Package config loads the process configuration: defaults, then an optional
// YAML file, then SELENE_* environment overrides, then validation.
//
// Configuration is built once at startup and handed to the kernel; nothing
// here is global.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/jeeves-cluster-organization/selene/coreengine/domains/clarify"
	"github.com/jeeves-cluster-organization/selene/coreengine/domains/costbudget"
	"github.com/jeeves-cluster-organization/selene/coreengine/domains/export"
	"github.com/jeeves-cluster-organization/selene/coreengine/domains/governance"
	"github.com/jeeves-cluster-organization/selene/coreengine/domains/lexicon"
	"github.com/jeeves-cluster-organization/selene/coreengine/domains/quota"
	"github.com/jeeves-cluster-organization/selene/coreengine/domains/retry"
	"github.com/jeeves-cluster-organization/selene/coreengine/domains/searchplan"
	"github.com/jeeves-cluster-organization/selene/coreengine/domains/summarize"
	"github.com/jeeves-cluster-organization/selene/coreengine/domains/tenant"
	"github.com/jeeves-cluster-organization/selene/coreengine/domains/workorder"
	"github.com/jeeves-cluster-organization/selene/coreengine/wiring"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SELENE_"

// Store drivers.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Config is the whole process configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" envPrefix:"SERVER_"`
	Logging   LoggingConfig   `yaml:"logging" envPrefix:"LOG_"`
	RateLimit RateLimitConfig `yaml:"rate_limit" envPrefix:"RATE_LIMIT_"`
	Domains   DomainsConfig   `yaml:"domains" envPrefix:"DOMAIN_"`
}

// ServerConfig holds listener, storage and telemetry settings.
type ServerConfig struct {
	ServiceName         string        `yaml:"service_name" env:"SERVICE_NAME" validate:"required"`
	GRPCAddr            string        `yaml:"grpc_addr" env:"GRPC_ADDR" validate:"required,hostname_port"`
	MetricsAddr         string        `yaml:"metrics_addr" env:"METRICS_ADDR" validate:"omitempty,hostname_port"`
	StoreDriver         string        `yaml:"store_driver" env:"STORE_DRIVER" validate:"oneof=memory sqlite"`
	StorePath           string        `yaml:"store_path" env:"STORE_PATH" validate:"required_if=StoreDriver sqlite"`
	OTLPEndpoint        string        `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	MaintenanceInterval time.Duration `yaml:"maintenance_interval" env:"MAINTENANCE_INTERVAL" validate:"min=1s"`
}

// LoggingConfig selects the log level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LEVEL" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" env:"FORMAT" validate:"oneof=json console"`
}

// RateLimitConfig bounds quota turns per tenant. A zero limit disables
// that window.
type RateLimitConfig struct {
	RequestsPerMinute int           `yaml:"requests_per_minute" env:"PER_MINUTE" validate:"gte=0"`
	RequestsPerHour   int           `yaml:"requests_per_hour" env:"PER_HOUR" validate:"gte=0"`
	RequestsPerDay    int           `yaml:"requests_per_day" env:"PER_DAY" validate:"gte=0"`
	IdleRetention     time.Duration `yaml:"idle_retention" env:"IDLE_RETENTION" validate:"min=1m"`
}

// DomainsConfig holds one wiring config per capability domain.
type DomainsConfig struct {
	SearchPlan wiring.Config `yaml:"searchplan" envPrefix:"SEARCHPLAN_"`
	Quota      wiring.Config `yaml:"quota" envPrefix:"QUOTA_"`
	Retry      wiring.Config `yaml:"retry" envPrefix:"RETRY_"`
	CostBudget wiring.Config `yaml:"costbudget" envPrefix:"COSTBUDGET_"`
	Summarize  wiring.Config `yaml:"summarize" envPrefix:"SUMMARIZE_"`
	Tenant     wiring.Config `yaml:"tenant" envPrefix:"TENANT_"`
	Clarify    wiring.Config `yaml:"clarify" envPrefix:"CLARIFY_"`
	Lexicon    wiring.Config `yaml:"lexicon" envPrefix:"LEXICON_"`
	WorkOrder  wiring.Config `yaml:"workorder" envPrefix:"WORKORDER_"`
	Export     wiring.Config `yaml:"export" envPrefix:"EXPORT_"`
	Governance wiring.Config `yaml:"governance" envPrefix:"GOVERNANCE_"`
}

// ByDomain maps domain names to their configs.
func (d DomainsConfig) ByDomain() map[string]wiring.Config {
	return map[string]wiring.Config{
		searchplan.Domain: d.SearchPlan,
		quota.Domain:      d.Quota,
		retry.Domain:      d.Retry,
		costbudget.Domain: d.CostBudget,
		summarize.Domain:  d.Summarize,
		tenant.Domain:     d.Tenant,
		clarify.Domain:    d.Clarify,
		lexicon.Domain:    d.Lexicon,
		workorder.Domain:  d.WorkOrder,
		export.Domain:     d.Export,
		governance.Domain: d.Governance,
	}
}

// DefaultConfig returns a Config with default values: every domain enabled
// at its hard caps, in-memory storage, no tracing.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ServiceName:         "selene",
			GRPCAddr:            "localhost:50051",
			MetricsAddr:         "localhost:9090",
			StoreDriver:         StoreMemory,
			MaintenanceInterval: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
			RequestsPerHour:   1000,
			RequestsPerDay:    10000,
			IdleRetention:     time.Hour,
		},
		Domains: DomainsConfig{
			SearchPlan: searchplan.DefaultConfig(),
			Quota:      quota.DefaultConfig(),
			Retry:      retry.DefaultConfig(),
			CostBudget: costbudget.DefaultConfig(),
			Summarize:  summarize.DefaultConfig(),
			Tenant:     tenant.DefaultConfig(),
			Clarify:    clarify.DefaultConfig(),
			Lexicon:    lexicon.DefaultConfig(),
			WorkOrder:  workorder.DefaultConfig(),
			Export:     export.DefaultConfig(),
			Governance: governance.DefaultConfig(),
		},
	}
}

// Load builds the configuration. An empty path skips the file layer.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays the YAML file at path. Unknown keys are rejected.
func (c *Config) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()
	return c.Decode(f)
}

// Decode overlays YAML from r.
func (c *Config) Decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

// ApplyEnv overlays SELENE_* environment variables. Unset variables leave
// the current values alone.
func (c *Config) ApplyEnv() error {
	return c.applyEnv(env.Options{Prefix: EnvPrefix})
}

func (c *Config) applyEnv(opts env.Options) error {
	if err := env.ParseWithOptions(c, opts); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field, including each domain's wiring ceilings.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	for domain, wc := range c.Domains.ByDomain() {
		if err := wc.Validate(); err != nil {
			return fmt.Errorf("invalid config for domain %s: %w", domain, err)
		}
	}
	return nil
}

// ToMap flattens the configuration for startup logging.
func (c *Config) ToMap() map[string]any {
	enabled := make([]string, 0, 11)
	for domain, wc := range c.Domains.ByDomain() {
		if wc.Enabled {
			enabled = append(enabled, domain)
		}
	}
	return map[string]any{
		"service_name":         c.Server.ServiceName,
		"grpc_addr":            c.Server.GRPCAddr,
		"metrics_addr":         c.Server.MetricsAddr,
		"store_driver":         c.Server.StoreDriver,
		"store_path":           c.Server.StorePath,
		"otlp_endpoint":        c.Server.OTLPEndpoint,
		"maintenance_interval": c.Server.MaintenanceInterval.String(),
		"log_level":            c.Logging.Level,
		"log_format":           c.Logging.Format,
		"rate_per_minute":      c.RateLimit.RequestsPerMinute,
		"enabled_domains":      len(enabled),
	}
}
