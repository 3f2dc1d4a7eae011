package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Environment variables read by mockflowctl.
const (
	EnvConfigFile = "MOCKFLOW_CONFIG"
	EnvBaseURL    = "MOCKFLOW_BASE_URL"
	EnvAPIKey     = "MOCKFLOW_API_KEY"
)

// Profile keys accepted by Get and Set.
const (
	KeyBaseURL = "base_url"
	KeyAPIKey  = "api_key"
)

// AdHocProfile names a connection built only from flags or environment
// variables.
const AdHocProfile = "adhoc"

// ErrUnknownKey is returned for profile keys other than base_url and api_key.
var ErrUnknownKey = errors.New("unknown key, valid keys: base_url, api_key")

// Config is the mockflowctl configuration file.
type Config struct {
	Current  string             `yaml:"current"`
	Profiles map[string]Profile `yaml:"profiles"`
}

// Profile is one mockflow server the CLI can talk to.
type Profile struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// Get returns the value stored under key.
func (p Profile) Get(key string) (string, error) {
	switch key {
	case KeyBaseURL:
		return p.BaseURL, nil
	case KeyAPIKey:
		return p.APIKey, nil
	}
	return "", fmt.Errorf("%q: %w", key, ErrUnknownKey)
}

// Set stores value under key.
func (p *Profile) Set(key, value string) error {
	switch key {
	case KeyBaseURL:
		p.BaseURL = value
	case KeyAPIKey:
		p.APIKey = value
	default:
		return fmt.Errorf("%q: %w", key, ErrUnknownKey)
	}
	return nil
}

// MaskedKey hides all but the first four characters of the API key.
func (p Profile) MaskedKey() string {
	if len(p.APIKey) > 4 {
		return p.APIKey[:4] + "***"
	}
	return "***"
}

func (p Profile) complete() bool {
	return p.BaseURL != "" && p.APIKey != ""
}

// Names returns the profile names in sorted order.
func (c *Config) Names() []string {
	names := make([]string, 0, len(c.Profiles))
	for name := range c.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultConfig is what `config init` writes.
func DefaultConfig() *Config {
	return &Config{
		Current: "local",
		Profiles: map[string]Profile{
			"local": {BaseURL: "http://localhost:8080", APIKey: "admin-123"},
			"ci":    {BaseURL: "http://mockflow:8080", APIKey: "ci-key-456"},
		},
	}
}

// ConfigPath returns $MOCKFLOW_CONFIG or ~/.mockflow/config.yaml.
func ConfigPath() (string, error) {
	if p := os.Getenv(EnvConfigFile); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locate home directory: %w", err)
	}
	return filepath.Join(home, ".mockflow", "config.yaml"), nil
}

// Load reads the configuration file. A missing file yields an empty config
// whose current profile is "local".
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	cfg := &Config{Current: "local", Profiles: map[string]Profile{}}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.Profiles == nil {
		cfg.Profiles = map[string]Profile{}
	}
	return cfg, nil
}

// Save writes cfg with owner-only permissions.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Resolve picks the connection settings for name. Each field is taken from
// the flag, then the environment, then the stored profile. An empty name
// means the current profile. When flags and environment together supply both
// fields no profile is needed and the returned name is name or AdHocProfile.
func Resolve(name, baseURLFlag, apiKeyFlag string) (*Profile, string, error) {
	override := Profile{
		BaseURL: firstNonEmpty(baseURLFlag, os.Getenv(EnvBaseURL)),
		APIKey:  firstNonEmpty(apiKeyFlag, os.Getenv(EnvAPIKey)),
	}
	if override.complete() {
		if name == "" {
			name = AdHocProfile
		}
		return &override, name, nil
	}

	cfg, err := Load()
	if err != nil {
		return nil, "", err
	}
	if name == "" {
		name = cfg.Current
	}
	stored, ok := cfg.Profiles[name]
	if !ok {
		return nil, "", fmt.Errorf("profile %q not found in config", name)
	}

	p := Profile{
		BaseURL: firstNonEmpty(override.BaseURL, stored.BaseURL),
		APIKey:  firstNonEmpty(override.APIKey, stored.APIKey),
	}
	if !p.complete() {
		return nil, "", fmt.Errorf("profile %q needs both base_url and api_key", name)
	}
	return &p, name, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
