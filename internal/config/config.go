// Package config loads and manages parley configuration.
// Configuration source priority (highest to lowest):
// 1. Environment variables (LLM_API_KEY, LLM_BASE_URL, LLM_MODEL, OPENROUTER_API_KEY, etc.)
// 2. Config file path specified via --config flag
// 3. ~/.config/parley/config.yaml
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

const appName = "parley"

//go:embed providers_default.yaml
var defaultProvidersYAML []byte

// ProviderDefaults holds the default base URL and model for a provider.
type ProviderDefaults struct {
	BaseURL      string            `yaml:"base_url"`
	DefaultModel string            `yaml:"default_model"`
	Headers      map[string]string `yaml:"headers"`
}

// LoadProviderDefaults parses the embedded defaults and merges any user
// overrides from ~/.config/parley/providers.yaml.
func LoadProviderDefaults() map[string]ProviderDefaults {
	defs := make(map[string]ProviderDefaults)
	_ = yaml.Unmarshal(defaultProvidersYAML, &defs)

	dir, err := ConfigDir()
	if err != nil {
		return defs
	}
	data, err := os.ReadFile(filepath.Join(dir, "providers.yaml"))
	if err != nil {
		return defs
	}
	userDefs := make(map[string]ProviderDefaults)
	if yaml.Unmarshal(data, &userDefs) != nil {
		return defs
	}
	for name, ud := range userDefs {
		d := defs[name]
		if ud.BaseURL != "" {
			d.BaseURL = ud.BaseURL
		}
		if ud.DefaultModel != "" {
			d.DefaultModel = ud.DefaultModel
		}
		if len(ud.Headers) > 0 {
			d.Headers = ud.Headers
		}
		defs[name] = d
	}
	return defs
}

// ProviderConfig holds configuration for a single provider.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	// Headers are sent with every request, e.g. HTTP-Referer and X-Title
	// for OpenRouter attribution.
	Headers map[string]string `yaml:"headers"`
}

// StorageConfig selects where conversations are kept.
type StorageConfig struct {
	// Backend: "file" (default, one JSON record per conversation) | "sqlite"
	Backend string `yaml:"backend"`

	// Dir is the storage directory. Empty = ~/.local/share/parley/chat_history.
	Dir string `yaml:"dir"`
}

func (s StorageConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Backend, validation.In("file", "sqlite")),
	)
}

// ReplyConfig shapes each assistant reply request.
type ReplyConfig struct {
	// MaxTokens caps the reply length. 0 = provider default.
	MaxTokens int `yaml:"max_tokens"`

	// Temperature is passed through when set.
	Temperature *float64 `yaml:"temperature"`

	// Sentinels are extra control markers stripped from streamed replies,
	// in addition to the built-in set.
	Sentinels []string `yaml:"sentinels"`

	// SystemPrompt is sent with every reply request. Empty = none.
	SystemPrompt string `yaml:"system_prompt"`

	// MaxRetries is how many times a reply that failed before any text
	// arrived is requested again. Unset = 3.
	MaxRetries *int `yaml:"max_retries"`
}

func (r ReplyConfig) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.MaxTokens, validation.Min(0)),
		validation.Field(&r.Temperature, validation.Min(0.0), validation.Max(2.0)),
		validation.Field(&r.MaxRetries, validation.Min(0), validation.Max(10)),
	)
}

// SummaryConfig controls /summary and `parley summarize`.
type SummaryConfig struct {
	// Prompt replaces the default summarization instruction.
	Prompt string `yaml:"prompt"`

	// Model overrides the model used for summaries (e.g. a cheaper one).
	Model string `yaml:"model"`
}

// LogConfig controls the structured log file.
type LogConfig struct {
	// Level: "debug" | "info" (default) | "warn" | "error"
	Level string `yaml:"level"`

	// Dir holds parley-<timestamp>.log files. Empty = ~/.local/share/parley/logs.
	Dir string `yaml:"dir"`

	// MaxFiles is how many log files to keep.
	MaxFiles int `yaml:"max_files"`
}

func (l LogConfig) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Level, validation.In("debug", "info", "warn", "error")),
		validation.Field(&l.MaxFiles, validation.Min(1)),
	)
}

// Config is the complete configuration structure for parley.
type Config struct {
	// Provider is the active provider name (e.g. "openrouter", "anthropic", "openai")
	Provider string `yaml:"provider"`

	// Model overrides the provider's default model.
	Model string `yaml:"model"`

	// Providers holds per-provider configuration.
	Providers map[string]*ProviderConfig `yaml:"providers"`

	Storage StorageConfig `yaml:"storage"`
	Reply   ReplyConfig   `yaml:"reply"`
	Summary SummaryConfig `yaml:"summary"`
	Log     LogConfig     `yaml:"log"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Provider:  "openrouter",
		Providers: make(map[string]*ProviderConfig),
		Storage: StorageConfig{
			Backend: "file",
		},
		Log: LogConfig{
			Level:    "info",
			MaxFiles: 10,
		},
	}
}

// Validate checks field ranges and enumerations.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Provider, validation.Required),
		validation.Field(&c.Storage),
		validation.Field(&c.Reply),
		validation.Field(&c.Log),
	)
}

// Load reads the config file and merges environment variable overrides.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Determine config file path
	if configPath == "" {
		if dir, err := ConfigDir(); err == nil {
			configPath = filepath.Join(dir, "config.yaml")
		}
	}

	// Read config file (use defaults if not found)
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
		}
	}

	// Initialize providers map
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]*ProviderConfig)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// GetProviderConfig returns the config for the named provider, or an empty config if not found.
func (c *Config) GetProviderConfig(name string) *ProviderConfig {
	if pc, ok := c.Providers[name]; ok && pc != nil {
		return pc
	}
	return &ProviderConfig{}
}

// StorageDir returns the configured storage directory or the default one.
func (c *Config) StorageDir() (string, error) {
	if c.Storage.Dir != "" {
		return expandHome(c.Storage.Dir)
	}
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "chat_history"), nil
}

// LogDir returns the configured log directory or the default one.
func (c *Config) LogDir() (string, error) {
	if c.Log.Dir != "" {
		return expandHome(c.Log.Dir)
	}
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "logs"), nil
}

// ConfigDir returns ~/.config/parley.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", appName), nil
}

// DataDir returns ~/.local/share/parley.
func DataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", appName), nil
}

func expandHome(p string) (string, error) {
	if p != "~" && !hasHomePrefix(p) {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, p[1:]), nil
}

func hasHomePrefix(p string) bool {
	return len(p) >= 2 && p[0] == '~' && (p[1] == '/' || p[1] == filepath.Separator)
}

var (
	// KnownProviderBaseURLs maps well-known provider names to their base URLs.
	// Populated from providers_default.yaml (embedded) + user overrides.
	KnownProviderBaseURLs map[string]string

	// KnownProviderModels maps well-known provider names to their default models.
	// Populated from providers_default.yaml (embedded) + user overrides.
	KnownProviderModels map[string]string

	// KnownProviderHeaders maps provider names to default request headers.
	KnownProviderHeaders map[string]map[string]string
)

func init() {
	defs := LoadProviderDefaults()
	KnownProviderBaseURLs = make(map[string]string, len(defs))
	KnownProviderModels = make(map[string]string, len(defs))
	KnownProviderHeaders = make(map[string]map[string]string, len(defs))
	for name, d := range defs {
		if d.BaseURL != "" {
			KnownProviderBaseURLs[name] = d.BaseURL
		}
		if d.DefaultModel != "" {
			KnownProviderModels[name] = d.DefaultModel
		}
		if len(d.Headers) > 0 {
			KnownProviderHeaders[name] = d.Headers
		}
	}
}

// ConfigPath returns the default config file location.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// SaveProviderToFile persists a single provider's config and the active provider
// name into cfgPath, preserving all other user settings.
func SaveProviderToFile(cfgPath, providerName string, pc ProviderConfig) error {
	// Read existing file into a generic map to preserve unknown fields.
	raw := make(map[string]any)
	if data, err := os.ReadFile(cfgPath); err == nil {
		_ = yaml.Unmarshal(data, &raw) // ignore errors; start fresh if corrupt
	}

	// Ensure providers sub-map exists.
	providers, _ := raw["providers"].(map[string]any)
	if providers == nil {
		providers = make(map[string]any)
	}

	// Build the provider entry.
	entry := map[string]any{
		"api_key": pc.APIKey,
	}
	if pc.BaseURL != "" {
		entry["base_url"] = pc.BaseURL
	}
	if pc.Model != "" {
		entry["model"] = pc.Model
	}
	if len(pc.Headers) > 0 {
		entry["headers"] = pc.Headers
	}
	providers[providerName] = entry
	raw["providers"] = providers

	// Set active provider and clear stale global model override.
	raw["provider"] = providerName
	delete(raw, "model")

	// Ensure config directory exists.
	if err := os.MkdirAll(filepath.Dir(cfgPath), 0755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := yaml.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(cfgPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) providerEntry(name string) *ProviderConfig {
	if c.Providers[name] == nil {
		c.Providers[name] = &ProviderConfig{}
	}
	return c.Providers[name]
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(cfg *Config) {
	// Provider selection first, so the generic overrides target it.
	if v := os.Getenv("PARLEY_PROVIDER"); v != "" {
		cfg.Provider = v
	}

	// Generic overrides
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.providerEntry(cfg.Provider).APIKey = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.providerEntry(cfg.Provider).BaseURL = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("PARLEY_MODEL"); v != "" {
		cfg.Model = v
	}

	// Vendor-specific keys
	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
		cfg.providerEntry("openrouter").APIKey = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.providerEntry("anthropic").APIKey = v
	}

	if v := os.Getenv("PARLEY_STORE_DIR"); v != "" {
		cfg.Storage.Dir = v
	}
}
