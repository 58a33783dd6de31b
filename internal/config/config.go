package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the bridge. It is loaded once at
// startup and must not be mutated afterwards.
type Config struct {
	TelegramBotToken   string          `json:"telegram_bot_token" env:"TELEGRAM_BOT_TOKEN"`
	RevoltBotToken     string          `json:"revolt_bot_token" env:"REVOLT_BOT_TOKEN"`
	Bridges            []Bridge        `json:"bridges"`
	Endpoints          EndpointsConfig `json:"endpoints" envPrefix:"ENDPOINTS_"`
	Revolt             RevoltConfig    `json:"revolt" envPrefix:"REVOLT_"`
	LogLevel           string          `json:"log_level" env:"LOG_LEVEL"`
	HTTPTimeoutSeconds int             `json:"http_timeout_seconds" env:"HTTP_TIMEOUT_SECONDS"` // 0 disables the client timeout
	Metrics            MetricsConfig   `json:"metrics" envPrefix:"METRICS_"`
}

// Bridge pairs a Telegram chat with a Revolt channel. An empty ID disables
// relaying towards that side.
type Bridge struct {
	TelegramChatID  FlexID `json:"telegram_chat_id"`
	RevoltChannelID FlexID `json:"revolt_channel_id"`
}

// EndpointsConfig holds the base URLs of both platforms.
type EndpointsConfig struct {
	TelegramAPI  string `json:"telegram_api" env:"TELEGRAM_API"`
	RevoltAPI    string `json:"revolt_api" env:"REVOLT_API"`
	RevoltAutumn string `json:"revolt_autumn" env:"REVOLT_AUTUMN"`
	RevoltWS     string `json:"revolt_ws" env:"REVOLT_WS"`
}

type RevoltConfig struct {
	// Masquerade sends Telegram author names as the Revolt message
	// masquerade. Requires the ManageMasquerade permission.
	Masquerade bool `json:"masquerade" env:"MASQUERADE"`
}

// MetricsConfig configures the optional Prometheus text endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" env:"ENABLED"`
	Listen  string `json:"listen" env:"LISTEN"`
}

// FlexID is a chat or channel ID that can be written in the config as a
// JSON string, a JSON number or null (e.g. -100123, "-100123" and "01H..."
// are all accepted).
type FlexID string

func (f *FlexID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string, number or null: %w", err)
	}
	*f = FlexID(n.String())
	return nil
}

// MarshalJSON writes an empty ID as null so that a saved config keeps the
// one-way meaning of the original.
func (f FlexID) MarshalJSON() ([]byte, error) {
	if f == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(f))
}

// String returns the ID as plain text.
func (f FlexID) String() string { return string(f) }

// IsSet reports whether the ID is configured.
func (f FlexID) IsSet() bool { return f != "" }

// DefaultConfigPath is the path used when --config is not given.
func DefaultConfigPath() string {
	return "config.json"
}

// Load reads, parses and validates the config file at path. JSON is the
// default format; files ending in .yaml or .yml are parsed as YAML.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	if isYAML(path) {
		data, err = yamlToJSON(data)
		if err != nil {
			return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
		}
	}

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// yamlToJSON re-encodes a YAML document as JSON so both formats share the
// same struct tags and the same type checks (a non-list "bridges" fails
// the same way in both).
func yamlToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(doc)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match
		}
		return val
	})
}

// EnvPrefix prefixes every environment override, e.g.
// REVOLTGRAM_TELEGRAM_BOT_TOKEN or REVOLTGRAM_ENDPOINTS_REVOLT_API.
const EnvPrefix = "REVOLTGRAM_"

// ApplyEnv overrides cfg fields with REVOLTGRAM_* environment variables.
// Unset variables leave the file value in place. Bridges cannot be set
// from the environment.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("environment overrides: %w", err)
	}
	return nil
}

// Save writes cfg as indented JSON, creating the parent directory.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.TelegramBotToken == "" {
		errs = append(errs, "telegram_bot_token is required")
	}
	if cfg.RevoltBotToken == "" {
		errs = append(errs, "revolt_bot_token is required")
	}

	if cfg.Bridges == nil {
		errs = append(errs, "bridges must be an array")
	}
	for i, b := range cfg.Bridges {
		if b.TelegramChatID.IsSet() {
			if _, err := strconv.ParseInt(b.TelegramChatID.String(), 10, 64); err != nil {
				errs = append(errs, fmt.Sprintf("bridges[%d].telegram_chat_id must be a numeric chat ID", i))
			}
		}
	}

	switch cfg.LogLevel {
	case "", "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "log_level must be one of: debug, info, warn, error")
	}

	if cfg.HTTPTimeoutSeconds < 0 {
		errs = append(errs, "http_timeout_seconds must be >= 0")
	}

	for name, u := range map[string]string{
		"endpoints.telegram_api":  cfg.Endpoints.TelegramAPI,
		"endpoints.revolt_api":    cfg.Endpoints.RevoltAPI,
		"endpoints.revolt_autumn": cfg.Endpoints.RevoltAutumn,
		"endpoints.revolt_ws":     cfg.Endpoints.RevoltWS,
	} {
		if u == "" {
			errs = append(errs, name+" must not be empty")
		}
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		errs = append(errs, "metrics.listen is required when metrics are enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
