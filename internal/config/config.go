package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// ViewMode names the initial task view.
type ViewMode string

const (
	ViewList          ViewMode = "list"
	ViewVisualization ViewMode = "visualization"
)

// Environment variables consulted by WithEnv.
const (
	EnvBaseURL  = "TASKDECK_API_BASE_URL"
	EnvAudience = "TASKDECK_API_AUDIENCE"
	EnvToken    = "TASKDECK_TOKEN"
)

type Config struct {
	API      APIConfig      `toml:"api"`
	Auth     AuthConfig     `toml:"auth"`
	Layout   LayoutConfig   `toml:"layout"`
	Logging  LoggingConfig  `toml:"logging"`
	Database DatabaseConfig `toml:"database"`
	Server   ServerConfig   `toml:"server"`
	UI       UIConfig       `toml:"ui"`
	Keys     KeyConfig      `toml:"keys"`
}

type APIConfig struct {
	BaseURL  string   `toml:"base_url"`
	Audience string   `toml:"audience"`
	Timeout  Duration `toml:"timeout"`
}

// AuthConfig selects how bearer tokens are obtained. A client id switches
// from the static token to the client-credentials flow.
type AuthConfig struct {
	TokenEnv        string   `toml:"token_env"`
	ClientID        string   `toml:"client_id"`
	ClientSecretEnv string   `toml:"client_secret_env"`
	TokenURL        string   `toml:"token_url"`
	Scopes          []string `toml:"scopes"`

	// Token is resolved from the environment and never read from the file.
	Token string `toml:"-"`
}

type LayoutConfig struct {
	Budget         Duration `toml:"budget"`
	MinMotion      float64  `toml:"min_motion"`
	Padding        float64  `toml:"padding"`
	Charge         float64  `toml:"charge"`
	CenterStrength float64  `toml:"center_strength"`
	Width          float64  `toml:"width"`
	Height         float64  `toml:"height"`
}

type LoggingConfig struct {
	Level   string        `toml:"level"`
	DevFile DevFileConfig `toml:"dev_file"`
}

type DevFileConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type ServerConfig struct {
	Bind        string `toml:"bind"`
	APIEndpoint string `toml:"api_endpoint"`
	MCPEndpoint string `toml:"mcp_endpoint"`
}

type UIConfig struct {
	DefaultView   ViewMode `toml:"default_view"`
	ConfirmDelete bool     `toml:"confirm_delete"`
}

type KeyConfig struct {
	Visualize   string `toml:"visualize"`
	ActivityLog string `toml:"activity_log"`
	Yank        string `toml:"yank"`
}

// Duration wraps time.Duration so TOML files can use "2s" style values.
type Duration struct {
	time.Duration
}

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", string(text), err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText renders the duration in Go syntax.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the baseline configuration rooted at the given paths.
func Default(dbPath, logDir string) Config {
	return Config{
		API: APIConfig{
			BaseURL: "http://localhost:8000",
			Timeout: Duration{10 * time.Second},
		},
		Auth: AuthConfig{
			TokenEnv:        EnvToken,
			ClientSecretEnv: "TASKDECK_CLIENT_SECRET",
		},
		Layout: LayoutConfig{
			Budget:         Duration{2 * time.Second},
			MinMotion:      0.05,
			Padding:        2,
			Charge:         -100,
			CenterStrength: 0.1,
			Width:          800,
			Height:         600,
		},
		Logging: LoggingConfig{
			Level: "info",
			DevFile: DevFileConfig{
				Enabled: false,
				Dir:     logDir,
			},
		},
		Database: DatabaseConfig{
			Path: dbPath,
		},
		Server: ServerConfig{
			Bind:        "127.0.0.1:8080",
			APIEndpoint: "/api/v1",
			MCPEndpoint: "/mcp",
		},
		UI: UIConfig{
			DefaultView:   ViewList,
			ConfirmDelete: true,
		},
		Keys: KeyConfig{
			Visualize:   "v",
			ActivityLog: "g",
			Yank:        "y",
		},
	}
}

// Load reads the TOML file at path over defaults. A missing file is not an error.
func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// WithEnv applies environment overrides and resolves secrets.
func (c Config) WithEnv(getenv func(string) string) Config {
	if getenv == nil {
		return c
	}
	if v := strings.TrimSpace(getenv(EnvBaseURL)); v != "" {
		c.API.BaseURL = v
	}
	if v := strings.TrimSpace(getenv(EnvAudience)); v != "" {
		c.API.Audience = v
	}
	tokenEnv := strings.TrimSpace(c.Auth.TokenEnv)
	if tokenEnv == "" {
		tokenEnv = EnvToken
	}
	c.Auth.Token = strings.TrimSpace(getenv(tokenEnv))
	return c
}

// ClientSecret reads the client secret from the configured variable.
func (c Config) ClientSecret(getenv func(string) string) string {
	name := strings.TrimSpace(c.Auth.ClientSecretEnv)
	if name == "" || getenv == nil {
		return ""
	}
	return strings.TrimSpace(getenv(name))
}

func (c Config) Validate() error {
	base := strings.TrimSpace(c.API.BaseURL)
	if base == "" {
		return errors.New("api.base_url is required")
	}
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid api.base_url: %q", c.API.BaseURL)
	}
	if c.API.Timeout.Duration < 0 {
		return errors.New("api.timeout must be >= 0")
	}
	if strings.TrimSpace(c.Auth.ClientID) != "" && strings.TrimSpace(c.Auth.TokenURL) == "" {
		return errors.New("auth.token_url is required when auth.client_id is set")
	}

	if c.Layout.Budget.Duration <= 0 {
		return errors.New("layout.budget must be > 0")
	}
	if c.Layout.MinMotion < 0 {
		return errors.New("layout.min_motion must be >= 0")
	}
	if c.Layout.Padding < 0 {
		return errors.New("layout.padding must be >= 0")
	}
	if c.Layout.Width <= 0 || c.Layout.Height <= 0 {
		return errors.New("layout.width and layout.height must be > 0")
	}
	if c.Layout.CenterStrength < 0 || c.Layout.CenterStrength > 1 {
		return fmt.Errorf("layout.center_strength must be within [0,1]: %v", c.Layout.CenterStrength)
	}

	switch strings.TrimSpace(strings.ToLower(c.Logging.Level)) {
	case "", "debug", "info", "warn", "error", "fatal":
	default:
		return fmt.Errorf("invalid logging.level: %q", c.Logging.Level)
	}
	if c.Logging.DevFile.Enabled && strings.TrimSpace(c.Logging.DevFile.Dir) == "" {
		return errors.New("logging.dev_file.dir is required when dev_file is enabled")
	}

	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database path is required")
	}

	for name, endpoint := range map[string]string{
		"server.api_endpoint": c.Server.APIEndpoint,
		"server.mcp_endpoint": c.Server.MCPEndpoint,
	} {
		endpoint = strings.TrimSpace(endpoint)
		if endpoint != "" && !strings.HasPrefix(endpoint, "/") {
			return fmt.Errorf("%s must start with /: %q", name, endpoint)
		}
	}

	switch c.UI.DefaultView {
	case "", ViewList, ViewVisualization:
	default:
		return fmt.Errorf("invalid ui.default_view: %q", c.UI.DefaultView)
	}
	return nil
}

// EnsureConfigDir creates the directory containing path.
func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
