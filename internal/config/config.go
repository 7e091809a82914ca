package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/argus-beta/fincall/internal/providers"
)

// Config is the top-level user configuration.
type Config struct {
	Keys        APIKeys     `toml:"keys"`
	Defaults    Defaults    `toml:"defaults"`
	Server      Server      `toml:"server"`
	DataService DataService `toml:"data_service"`
	Ollama      Ollama      `toml:"ollama"`
	History     History     `toml:"history"`
}

// APIKeys holds API keys for each hosted provider.
type APIKeys struct {
	Anthropic string `toml:"anthropic"`
	OpenAI    string `toml:"openai"`
	GLM       string `toml:"glm"`
	Kimi      string `toml:"kimi"`
}

// Defaults holds per-request orchestration settings.
type Defaults struct {
	Model          string   `toml:"model"`
	Language       string   `toml:"language"`
	Currency       string   `toml:"currency"`
	Personality    string   `toml:"personality"` // voice of the chat command's advice
	ToolNamespace  string   `toml:"tool_namespace"`
	ToolTimeout    Duration `toml:"tool_timeout"`
	RequestTimeout Duration `toml:"request_timeout"`
	MaxToolCalls   int      `toml:"max_tool_calls"`
	MaxCostUSD     float64  `toml:"max_cost_usd"`
	ParallelTools  bool     `toml:"parallel_tools"`
	LogLevel       string   `toml:"log_level"`
	LogFormat      string   `toml:"log_format"`
}

// Server configures the HTTP gateway.
type Server struct {
	Addr      string `toml:"addr"`
	JWTSecret string `toml:"jwt_secret"`
}

// DataService locates the expense backend the tools call.
type DataService struct {
	BaseURL string   `toml:"base_url"`
	Timeout Duration `toml:"timeout"`
}

// Ollama locates the local model server.
type Ollama struct {
	Host string `toml:"host"`
}

// History configures the query history database.
type History struct {
	Enabled bool   `toml:"enabled"`
	DBPath  string `toml:"db_path"`
}

// Duration is a time.Duration written as a Go duration string ("30s").
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the configuration used when no file overrides it.
func Default() *Config {
	return &Config{
		Defaults: Defaults{
			Model:          providers.DefaultModel,
			Language:       "Vietnamese",
			Currency:       "VND",
			Personality:    "polite",
			ToolNamespace:  "function.",
			ToolTimeout:    Duration{30 * time.Second},
			RequestTimeout: Duration{2 * time.Minute},
			MaxToolCalls:   8,
			MaxCostUSD:     0.25,
			LogLevel:       "info",
			LogFormat:      "json",
		},
		Server: Server{
			Addr: ":8080",
		},
		DataService: DataService{
			BaseURL: "http://localhost:3000",
			Timeout: Duration{15 * time.Second},
		},
		Ollama: Ollama{
			Host: "http://localhost:11434",
		},
		History: History{
			Enabled: true,
		},
	}
}

// configDir returns the path to ~/.config/fincall/
func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", "fincall"), nil
}

// Path returns the full path to the config file.
func Path() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads config from ~/.config/fincall/config.toml and applies
// environment overrides. Returns error if the file doesn't exist (user needs
// to run `fincall init`).
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads config from path and applies environment overrides.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config: no config file found at %s, run 'fincall init' to create one", path)
		}
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	cfg.ApplyEnv(os.Getenv)
	return cfg, nil
}

// ApplyEnv overrides file values with the environment variables the
// deployment sets: OLLAMA_HOST, NODE_URL, JWT_SECRET_ACCESS and FINCALL_MODEL.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("OLLAMA_HOST"); v != "" {
		c.Ollama.Host = v
	}
	if v := getenv("NODE_URL"); v != "" {
		c.DataService.BaseURL = v
	}
	if v := getenv("JWT_SECRET_ACCESS"); v != "" {
		c.Server.JWTSecret = v
	}
	if v := getenv("FINCALL_MODEL"); v != "" {
		c.Defaults.Model = v
	}
}

// Save writes config to ~/.config/fincall/config.toml.
// Creates the directory if it doesn't exist.
func Save(cfg *Config) error {
	path, err := Path()
	if err != nil {
		return err
	}
	return SaveTo(path, cfg)
}

// SaveTo writes config to path.
func SaveTo(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("config: failed to create directory %s: %w", dir, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("config: failed to create %s: %w", path, err)
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("config: failed to write %s: %w", path, err)
	}

	return nil
}

// SetKey stores the API key for a provider name ("anthropic", "openai", "glm", "kimi").
func (c *Config) SetKey(provider, key string) error {
	switch provider {
	case "anthropic":
		c.Keys.Anthropic = key
	case "openai":
		c.Keys.OpenAI = key
	case "glm":
		c.Keys.GLM = key
	case "kimi":
		c.Keys.Kimi = key
	default:
		return fmt.Errorf("config: unknown provider %q (valid: anthropic, openai, glm, kimi)", provider)
	}
	return nil
}

// ToAPIKeysMap converts the Keys struct to the map format providers.NewProvider expects.
func (c *Config) ToAPIKeysMap() map[string]string {
	return map[string]string{
		"anthropic": c.Keys.Anthropic,
		"openai":    c.Keys.OpenAI,
		"glm":       c.Keys.GLM,
		"kimi":      c.Keys.Kimi,
	}
}

// ProviderOptions returns what providers.NewProvider needs from the config.
func (c *Config) ProviderOptions() providers.Options {
	return providers.Options{
		APIKeys:    c.ToAPIKeysMap(),
		OllamaHost: c.Ollama.Host,
	}
}

// HistoryPath returns the configured history database path, falling back
// to the default location.
func (c *Config) HistoryPath() (string, error) {
	if c.History.DBPath != "" {
		return c.History.DBPath, nil
	}
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "fincall.db"), nil
}

// ValidateForModel checks that the model is known and that its API key, if
// it needs one, is present.
func (c *Config) ValidateForModel(modelID string) error {
	if _, known := providers.SupportedModels[modelID]; !known {
		return fmt.Errorf("config: unknown model %q", modelID)
	}

	name := providers.APIKeyName(modelID)
	if name == "" {
		return nil
	}
	if c.ToAPIKeysMap()[name] == "" {
		return fmt.Errorf("config: API key for %q is not set, run 'fincall config set-key %s <key>'", modelID, name)
	}
	return nil
}
