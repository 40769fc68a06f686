// Package config loads and validates plate checker configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/alymdu/shortest-plates/internal/classifier"
)

// EnvPrefix namespaces environment overrides, e.g. PLATES_PROBE_URL_PREFIX.
const EnvPrefix = "PLATES"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig      `mapstructure:"server"`
	Auth       AuthConfig        `mapstructure:"auth"`
	Probe      ProbeConfig       `mapstructure:"probe"`
	HTTP       HTTPConfig        `mapstructure:"http"`
	Storage    StorageConfig     `mapstructure:"storage"`
	Classifier classifier.Config `mapstructure:"classifier"`
	PubSub     PubSubConfig      `mapstructure:"pubsub"`
	Logging    LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig holds the shared secret for /start and /stop. Empty disables the check.
type AuthConfig struct {
	ControlToken string `mapstructure:"control_token"`
}

// ProbeConfig shapes probe URLs and pacing.
type ProbeConfig struct {
	URLPrefix         string  `mapstructure:"url_prefix"`
	URLSuffix         string  `mapstructure:"url_suffix"`
	SleepSeconds      float64 `mapstructure:"sleep_seconds"`
	BlockSleepSeconds float64 `mapstructure:"block_sleep_seconds"`
	Autostart         bool    `mapstructure:"autostart"`
}

// HTTPConfig configures the outbound fetcher.
type HTTPConfig struct {
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	UserAgent      string  `mapstructure:"user_agent"`
	MaxRPS         float64 `mapstructure:"max_rps"`
}

// StorageConfig locates the append-only result log.
type StorageConfig struct {
	DataFile string `mapstructure:"data_file"`
}

// PubSubConfig holds metadata for observation notifications. An empty topic disables publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features and the minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// legacyEnv maps keys to the bare variable names older deployments set.
var legacyEnv = map[string]string{
	"probe.url_prefix":          "BASE_URL_L",
	"probe.url_suffix":          "BASE_URL_R",
	"probe.sleep_seconds":       "SLEEP_SECONDS",
	"probe.block_sleep_seconds": "BLOCK_SLEEP",
	"storage.data_file":         "DATA_FILE",
	"auth.control_token":        "CONTROL_TOKEN",
	"server.port":               "PORT",
}

// Load builds a Config from disk/environment and validates it.
func Load(path string) (Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Read builds a Config from disk/environment without validating it, for
// commands that only need part of it.
func Read(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("auth.control_token", "")
	v.SetDefault("probe.url_prefix", "")
	v.SetDefault("probe.url_suffix", "")
	v.SetDefault("probe.sleep_seconds", 60)
	v.SetDefault("probe.block_sleep_seconds", 150)
	v.SetDefault("probe.autostart", false)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.user_agent", "Mozilla/5.0 (compatible; PlateChecker/1.0)")
	v.SetDefault("http.max_rps", 0)
	v.SetDefault("storage.data_file", "results.jsonl")
	v.SetDefault("classifier.blocked_phrase", classifier.DefaultBlockedPhrase)
	v.SetDefault("classifier.issued_phrase", classifier.DefaultIssuedPhrase)
	v.SetDefault("classifier.available_keyword", classifier.DefaultAvailableKeyword)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

// bindLegacyEnv lets the prefixed name win over the legacy one.
func bindLegacyEnv(v *viper.Viper) error {
	replacer := strings.NewReplacer(".", "_")
	for key, legacy := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(replacer.Replace(key))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535")
	}
	if strings.TrimSpace(c.Probe.URLPrefix) == "" {
		return fmt.Errorf("probe.url_prefix must be set (or BASE_URL_L)")
	}
	if c.Probe.SleepSeconds < 0 {
		return fmt.Errorf("probe.sleep_seconds must be >= 0")
	}
	if c.Probe.BlockSleepSeconds < 0 {
		return fmt.Errorf("probe.block_sleep_seconds must be >= 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRPS < 0 {
		return fmt.Errorf("http.max_rps must be >= 0")
	}
	if c.Storage.DataFile == "" {
		return fmt.Errorf("storage.data_file must be set")
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	return nil
}

// Interval is the pause after a normal probe.
func (c Config) Interval() time.Duration {
	return seconds(c.Probe.SleepSeconds)
}

// BlockInterval is the pause after a rate-limited probe.
func (c Config) BlockInterval() time.Duration {
	return seconds(c.Probe.BlockSleepSeconds)
}

// FetchTimeout bounds a single probe fetch.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
