// Package config loads and hot-reloads the agent configuration: runtime
// settings plus the table profiles that drive mutation semantics.
package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/Clukay-Fun/OmniAgent-sub000/internal/logging"
)

// ServerConfig configures the inbound HTTP surface.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	VerifyToken     string        `mapstructure:"verify_token"`
	EventDedupTTL   time.Duration `mapstructure:"event_dedup_ttl"`
	MaxQueueDepth   int           `mapstructure:"max_queue_depth"`
}

// IntentConfig tunes message routing.
type IntentConfig struct {
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	RulesPath           string  `mapstructure:"rules_path"`
}

// RenderConfig configures card templates and reply personalization.
type RenderConfig struct {
	TemplateRoot    string `mapstructure:"template_root"`
	Personalization bool   `mapstructure:"personalization"`
}

// BackendConfig configures the record store bridge.
type BackendConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	AppToken string        `mapstructure:"app_token"`
	APIKey   string        `mapstructure:"api_key"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// LLMConfig configures the model facade.
type LLMConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
}

// StateConfig configures slot lifetimes and persistence.
type StateConfig struct {
	SessionTTL       time.Duration `mapstructure:"session_ttl"`
	LastResultTTL    time.Duration `mapstructure:"last_result_ttl"`
	PendingDeleteTTL time.Duration `mapstructure:"pending_delete_ttl"`
	PendingActionTTL time.Duration `mapstructure:"pending_action_ttl"`
	PaginationTTL    time.Duration `mapstructure:"pagination_ttl"`
	SQLitePath       string        `mapstructure:"sqlite_path"`
}

// CostConfig configures the spend guard.
type CostConfig struct {
	HourlyThreshold float64 `mapstructure:"hourly_threshold"`
	DailyThreshold  float64 `mapstructure:"daily_threshold"`
	CircuitBreaker  bool    `mapstructure:"circuit_breaker"`
	UsageLogPath    string  `mapstructure:"usage_log_path"`
}

// MetricsConfig configures the Prometheus surface.
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// ChannelConfig configures the outbound chat channel.
type ChannelConfig struct {
	WebsocketURL string `mapstructure:"websocket_url"`
	BotToken     string `mapstructure:"bot_token"`
}

// CloseProfile describes how "close" resolves for one table kind.
type CloseProfile struct {
	StatusField    string `mapstructure:"status_field"`
	ClosedValue    string `mapstructure:"closed_value"`
	ReminderPolicy string `mapstructure:"reminder_policy"`
}

// ReminderRule schedules an automatic reminder ahead of a date field.
type ReminderRule struct {
	Field      string `mapstructure:"field"`
	DaysBefore int    `mapstructure:"days_before"`
}

// TableProfile carries the per-table mutation semantics.
type TableProfile struct {
	Kind           string                  `mapstructure:"kind"`
	Aliases        []string                `mapstructure:"aliases"`
	ReadOnly       bool                    `mapstructure:"read_only"`
	IdentityFields []string                `mapstructure:"identity_fields"`
	DedupeFields   []string                `mapstructure:"dedupe_fields"`
	CreateDefaults map[string]string       `mapstructure:"create_defaults"`
	AppendFields   []string                `mapstructure:"append_fields"`
	Close          *CloseProfile           `mapstructure:"close"`
	CloseVariants  map[string]CloseProfile `mapstructure:"close_variants"`
	Reminders      []ReminderRule          `mapstructure:"reminders"`
}

// Config is the root configuration record.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Backend BackendConfig `mapstructure:"backend"`
	LLM     LLMConfig     `mapstructure:"llm"`
	State   StateConfig   `mapstructure:"state"`
	Cost    CostConfig    `mapstructure:"cost"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Channel ChannelConfig `mapstructure:"channel"`
	Intent  IntentConfig  `mapstructure:"intent"`
	Render  RenderConfig  `mapstructure:"render"`

	// Tables maps the table kind key ("case", "contracts", ...) to its profile.
	Tables map[string]TableProfile `mapstructure:"tables"`
	// FieldAliases maps a user-facing field name to schema candidates.
	FieldAliases map[string][]string `mapstructure:"field_aliases"`
	LogLevel     string              `mapstructure:"log_level"`
}

// TableProfileFor resolves a profile by kind key or alias.
func (c *Config) TableProfileFor(name string) (TableProfile, bool) {
	if p, ok := c.Tables[name]; ok {
		return p, true
	}
	for _, p := range c.Tables {
		for _, alias := range p.Aliases {
			if alias == name {
				return p, true
			}
		}
	}
	return TableProfile{}, false
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.event_dedup_ttl", "10m")
	v.SetDefault("server.max_queue_depth", 256)

	v.SetDefault("backend.timeout", "15s")

	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.timeout", "30s")
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.temperature", 0.2)

	v.SetDefault("state.session_ttl", "30m")
	v.SetDefault("state.last_result_ttl", "10m")
	v.SetDefault("state.pending_delete_ttl", "5m")
	v.SetDefault("state.pending_action_ttl", "5m")
	v.SetDefault("state.pagination_ttl", "10m")

	v.SetDefault("cost.hourly_threshold", 5.0)
	v.SetDefault("cost.daily_threshold", 30.0)
	v.SetDefault("cost.circuit_breaker", true)
	v.SetDefault("cost.usage_log_path", "usage.log")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.prometheus_port", 9090)

	v.SetDefault("intent.confidence_threshold", 0.65)

	v.SetDefault("render.template_root", "templates")
	v.SetDefault("render.personalization", false)

	v.SetDefault("log_level", "info")

	v.SetDefault("tables", builtinTableProfiles())
	v.SetDefault("field_aliases", builtinFieldAliases())
}

// Load reads the configuration file (optional) and the OMNIAGENT_* environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("OMNIAGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("omniagent")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.omniagent")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Provider hands out the live configuration and supports atomic reloads.
type Provider struct {
	mu     sync.RWMutex
	cfg    *Config
	path   string
	logger logging.Logger
}

// NewProvider wraps an initial configuration.
func NewProvider(cfg *Config, path string, logger logging.Logger) *Provider {
	return &Provider{cfg: cfg, path: path, logger: logging.OrNop(logger)}
}

// Current returns the live configuration snapshot.
func (p *Provider) Current() *Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg
}

// Reload re-reads the configuration file and swaps it in.
func (p *Provider) Reload() error {
	cfg, err := Load(p.path)
	if err != nil {
		return fmt.Errorf("reload config: %w", err)
	}
	p.mu.Lock()
	p.cfg = cfg
	p.mu.Unlock()
	p.logger.Info("configuration reloaded from %s", p.path)
	return nil
}
