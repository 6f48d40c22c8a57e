// Package config loads LeaguePulse configuration from a YAML file, the
// environment and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/leaguepulse/leaguepulse/internal/classify"
	"github.com/leaguepulse/leaguepulse/internal/dashboard"
	"github.com/leaguepulse/leaguepulse/internal/database"
	"github.com/leaguepulse/leaguepulse/internal/logging"
)

// EnvPrefix prefixes every environment override, e.g. LEAGUEPULSE_HTTP_PORT.
const EnvPrefix = "LEAGUEPULSE"

const minAdminTokenLen = 16

// Sample log drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverBadger   = "badger"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Database  database.Config `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	SampleLog SampleLogConfig `mapstructure:"samplelog"`
	Probe     ProbeConfig     `mapstructure:"probe"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Policy    PolicyConfig    `mapstructure:"policy"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RateLimit       int           `mapstructure:"rate_limit"`
	RateWindow      time.Duration `mapstructure:"rate_window"`

	// RequireTLS rejects requests that did not arrive over HTTPS, as reported
	// by the load balancer.
	RequireTLS bool `mapstructure:"require_tls"`

	// AdminTokens maps operator names to bearer tokens. Viper lowercases map
	// keys, so tokens are values. Without tokens the admin endpoints reject
	// every request.
	AdminTokens map[string]string `mapstructure:"admin_tokens"`
}

// Addr returns the listen address.
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf(":%d", h.Port)
}

// OperatorTokens returns AdminTokens keyed by token.
func (h HTTPConfig) OperatorTokens() map[string]string {
	out := make(map[string]string, len(h.AdminTokens))
	for operator, token := range h.AdminTokens {
		out[token] = operator
	}
	return out
}

// RedisConfig configures the cache subsystem probed for liveness.
type RedisConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	Addrs    []string `mapstructure:"addrs"`
	Password string   `mapstructure:"password"`
	DB       int      `mapstructure:"db"`
}

// SampleLogConfig selects and configures the sample store.
type SampleLogConfig struct {
	Driver        string        `mapstructure:"driver"`
	BadgerPath    string        `mapstructure:"badger_path"`
	AppendTimeout time.Duration `mapstructure:"append_timeout"`
}

// ProbeConfig configures the source adapters.
type ProbeConfig struct {
	Timeout time.Duration     `mapstructure:"timeout"`
	Sleeper IntegrationConfig `mapstructure:"sleeper"`
	ESPN    IntegrationConfig `mapstructure:"espn"`
	Yahoo   IntegrationConfig `mapstructure:"yahoo"`
}

// IntegrationConfig configures one fantasy platform probe. Credentials are
// optional; without them the probe checks reachability anonymously.
type IntegrationConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	URL         string `mapstructure:"url"`
	AccessToken string `mapstructure:"access_token"`
	ESPNS2      string `mapstructure:"espn_s2"`
	SWID        string `mapstructure:"swid"`
}

// MonitorConfig configures the dashboard pollers.
type MonitorConfig struct {
	Intervals    dashboard.Intervals `mapstructure:"intervals"`
	FetchTimeout time.Duration       `mapstructure:"fetch_timeout"`
}

// PolicyConfig configures thresholds.
type PolicyConfig struct {
	Thresholds classify.Policy `mapstructure:"thresholds"`
	CacheTTL   time.Duration   `mapstructure:"cache_ttl"`
}

// AlertingConfig configures alert delivery.
type AlertingConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	WebhookURL string        `mapstructure:"webhook_url"`
	Cooldown   time.Duration `mapstructure:"cooldown"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries uint64        `mapstructure:"max_retries"`
}

// PubSubConfig configures the background job subscription.
type PubSubConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ProjectID    string `mapstructure:"project_id"`
	Subscription string `mapstructure:"subscription"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	OTLPEndpoint   string        `mapstructure:"otlp_endpoint"`
	ExportInterval time.Duration `mapstructure:"export_interval"`
}

// Load builds configuration from file, environment, and defaults. An empty
// path looks for config.yaml in the working directory; a missing file is not
// an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "leaguepulse")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", "15s")
	v.SetDefault("http.write_timeout", "30s")
	v.SetDefault("http.idle_timeout", "60s")
	v.SetDefault("http.shutdown_timeout", "30s")
	v.SetDefault("http.rate_limit", 120)
	v.SetDefault("http.rate_window", "1m")
	v.SetDefault("http.require_tls", false)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "leaguepulse")
	v.SetDefault("database.name", "leaguepulse")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "5m")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addrs", []string{"localhost:6379"})
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("samplelog.driver", DriverMemory)
	v.SetDefault("samplelog.badger_path", "data/samples")
	v.SetDefault("samplelog.append_timeout", "2s")

	v.SetDefault("probe.timeout", "5s")
	for _, name := range []string{"sleeper", "espn", "yahoo"} {
		v.SetDefault("probe."+name+".enabled", true)
		// Empty defaults register the keys so environment overrides apply.
		for _, key := range []string{"url", "access_token", "espn_s2", "swid"} {
			v.SetDefault("probe."+name+"."+key, "")
		}
	}

	intervals := dashboard.DefaultIntervals()
	v.SetDefault("monitor.intervals.health", intervals.Health)
	v.SetDefault("monitor.intervals.error_rate", intervals.ErrorRate)
	v.SetDefault("monitor.intervals.connection_success", intervals.ConnectionSuccess)
	v.SetDefault("monitor.intervals.completion_rate", intervals.CompletionRate)
	v.SetDefault("monitor.intervals.incidents", intervals.Incidents)
	v.SetDefault("monitor.intervals.latency", intervals.Latency)
	v.SetDefault("monitor.fetch_timeout", "20s")

	p := classify.DefaultPolicy()
	v.SetDefault("policy.thresholds.success_green_min", p.SuccessGreenMin)
	v.SetDefault("policy.thresholds.success_yellow_min", p.SuccessYellowMin)
	v.SetDefault("policy.thresholds.completion_green_min", p.CompletionGreenMin)
	v.SetDefault("policy.thresholds.completion_yellow_min", p.CompletionYellowMin)
	v.SetDefault("policy.thresholds.latency_excellent_max_ms", p.LatencyExcellentMaxMs)
	v.SetDefault("policy.thresholds.latency_warning_max_ms", p.LatencyWarningMaxMs)
	v.SetDefault("policy.thresholds.p99_alert_ms", p.P99AlertMs)
	v.SetDefault("policy.thresholds.error_rate_alert_pct", p.ErrorRateAlertPct)
	v.SetDefault("policy.thresholds.trend_noise_epsilon", p.TrendNoiseEpsilon)
	v.SetDefault("policy.cache_ttl", "1m")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.webhook_url", "")
	v.SetDefault("alerting.cooldown", "15m")
	v.SetDefault("alerting.timeout", "10s")
	v.SetDefault("alerting.max_retries", 3)

	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.subscription", "")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4317")
	v.SetDefault("telemetry.export_interval", "15s")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535")
	}
	seen := make(map[string]bool, len(c.HTTP.AdminTokens))
	for operator, token := range c.HTTP.AdminTokens {
		if len(token) < minAdminTokenLen {
			return fmt.Errorf("http.admin_tokens: token for %q must be at least %d characters", operator, minAdminTokenLen)
		}
		if seen[token] {
			return fmt.Errorf("http.admin_tokens: token for %q is shared with another operator", operator)
		}
		seen[token] = true
	}
	switch c.SampleLog.Driver {
	case DriverMemory, DriverBadger:
	case DriverPostgres:
		if !c.Database.Enabled {
			return fmt.Errorf("samplelog.driver postgres requires database.enabled")
		}
	default:
		return fmt.Errorf("samplelog.driver must be one of memory, postgres, badger; got %q", c.SampleLog.Driver)
	}
	if c.SampleLog.Driver == DriverBadger && c.SampleLog.BadgerPath == "" {
		return fmt.Errorf("samplelog.badger_path must be set for the badger driver")
	}
	if c.Probe.Timeout <= 0 {
		return fmt.Errorf("probe.timeout must be greater than zero")
	}
	if c.Database.Enabled && c.Database.MaxOpenConns < c.Database.MaxIdleConns {
		return fmt.Errorf("database.max_open_conns cannot be below database.max_idle_conns")
	}
	if c.Redis.Enabled && len(c.Redis.Addrs) == 0 {
		return fmt.Errorf("redis.addrs must be set when redis is enabled")
	}
	if err := c.Policy.Thresholds.Validate(); err != nil {
		return fmt.Errorf("policy.thresholds: %w", err)
	}
	if c.Alerting.Enabled && c.Alerting.WebhookURL == "" {
		return fmt.Errorf("alerting.webhook_url must be set when alerting is enabled")
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.Subscription == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.subscription must be set when pubsub is enabled")
	}
	return nil
}
