// Package config resolves the service configuration from the environment
// and an optional YAML file.
//
// Precedence: environment variables > config file > defaults. The variable
// names are the ones deployments already set (BROWSER_SERVICE_API_KEY,
// ALLOWED_ORIGINS, DEFAULT_LLM_PROVIDER, ...); every other key can also be
// set as PILOT_<KEY>.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrMissingAPIKey is returned by Validate when the service API key is unset.
var ErrMissingAPIKey = errors.New("BROWSER_SERVICE_API_KEY environment variable must be set. API cannot start without it")

const (
	DefaultAllowedOrigin = "https://6kfncr9i25.eu-central-1.awsapprunner.com"
	DefaultProvider      = "openai"
	DefaultModel         = "gpt-4o"
	DefaultTemperature   = 0.2
	DefaultMaxSteps      = 30
	DefaultPollWait      = 5 * time.Second
	DefaultPort          = 7788
	DefaultAPIPort       = 7789
	DefaultTmpDir        = "./tmp"
	DefaultWindowWidth   = 1920
	DefaultWindowHeight  = 1080
)

// Config is the fully resolved service configuration.
type Config struct {
	APIKey            string        `yaml:"api_key"`
	AllowedOrigins    []string      `yaml:"allowed_origins"`
	PersistentSession bool          `yaml:"persistent_session"`
	TmpDir            string        `yaml:"tmp_dir"`
	MaxSteps          int           `yaml:"max_steps"`
	PollWait          time.Duration `yaml:"poll_wait"`
	LogLevel          string        `yaml:"log_level"`

	LLM         LLMConfig     `yaml:"llm"`
	Server      ServerConfig  `yaml:"server"`
	Browser     BrowserConfig `yaml:"browser"`
	Environment Environment   `yaml:"environment"`
}

// LLMConfig selects the model that drives the browser agent.
type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
}

// ServerConfig holds listener and rate limit settings.
type ServerConfig struct {
	IP                 string `yaml:"ip"`
	Port               int    `yaml:"port"`
	APIPort            int    `yaml:"api_port"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`
	RateLimitBurst     int    `yaml:"rate_limit_burst"`
}

// BrowserConfig holds the browser settings used for agent runs.
type BrowserConfig struct {
	Headless        bool     `yaml:"headless"`
	DisableSecurity bool     `yaml:"disable_security"`
	ExtraArgs       []string `yaml:"extra_args"`
	WindowWidth     int      `yaml:"window_width"`
	WindowHeight    int      `yaml:"window_height"`
	ChromePath      string   `yaml:"chrome_path"`
	CDPURL          string   `yaml:"cdp_url"`
	CookiesFile     string   `yaml:"cookies_file"`
	TracePath       string   `yaml:"trace_path"`
	RecordingPath   string   `yaml:"recording_path"`
}

// Environment captures the container detection variables.
type Environment struct {
	Docker bool `yaml:"docker"`
	AWS    bool `yaml:"aws"`
}

// InContainer reports whether any container or AWS marker is present.
func (e Environment) InContainer() bool {
	return e.Docker || e.AWS
}

// DetectEnvironment reads DOCKER_CONTAINER, AWS_EXECUTION_ENV and
// ECS_CONTAINER_METADATA_URI.
func DetectEnvironment() Environment {
	return Environment{
		Docker: os.Getenv("DOCKER_CONTAINER") != "",
		AWS:    os.Getenv("AWS_EXECUTION_ENV") != "" || os.Getenv("ECS_CONTAINER_METADATA_URI") != "",
	}
}

// envBindings maps config keys to the legacy environment variables that set them.
var envBindings = map[string][]string{
	"api_key":             {"BROWSER_SERVICE_API_KEY"},
	"allowed_origins":     {"ALLOWED_ORIGINS"},
	"llm.provider":        {"DEFAULT_LLM_PROVIDER"},
	"llm.model":           {"DEFAULT_LLM_MODEL"},
	"persistent_session":  {"CHROME_PERSISTENT_SESSION"},
	"browser.chrome_path": {"CHROME_PATH"},
	"browser.cdp_url":     {"CHROME_CDP"},
}

// Load resolves the configuration. configPath may be empty.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("PILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, envs := range envBindings {
		args := append([]string{key, "PILOT_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	env := DetectEnvironment()
	cfg := &Config{
		APIKey:            v.GetString("api_key"),
		AllowedOrigins:    ParseOrigins(v.Get("allowed_origins")),
		PersistentSession: v.GetBool("persistent_session"),
		TmpDir:            v.GetString("tmp_dir"),
		MaxSteps:          v.GetInt("max_steps"),
		PollWait:          v.GetDuration("poll_wait"),
		LogLevel:          v.GetString("log_level"),
		LLM: LLMConfig{
			Provider:    strings.ToLower(v.GetString("llm.provider")),
			Model:       v.GetString("llm.model"),
			Temperature: v.GetFloat64("llm.temperature"),
			APIKey:      v.GetString("llm.api_key"),
			BaseURL:     v.GetString("llm.base_url"),
		},
		Server: ServerConfig{
			IP:                 v.GetString("server.ip"),
			Port:               v.GetInt("server.port"),
			APIPort:            v.GetInt("server.api_port"),
			RateLimitPerMinute: v.GetInt("server.rate_limit_per_minute"),
			RateLimitBurst:     v.GetInt("server.rate_limit_burst"),
		},
		Browser: BrowserConfig{
			Headless:        v.GetBool("browser.headless"),
			DisableSecurity: v.GetBool("browser.disable_security"),
			ExtraArgs:       v.GetStringSlice("browser.extra_args"),
			WindowWidth:     v.GetInt("browser.window_width"),
			WindowHeight:    v.GetInt("browser.window_height"),
			ChromePath:      v.GetString("browser.chrome_path"),
			CDPURL:          v.GetString("browser.cdp_url"),
			CookiesFile:     v.GetString("browser.cookies_file"),
			TracePath:       v.GetString("browser.trace_path"),
			RecordingPath:   v.GetString("browser.recording_path"),
		},
		Environment: env,
	}

	if cfg.Server.IP == "" {
		cfg.Server.IP = DefaultBindIP(env)
	}
	if env.InContainer() {
		cfg.Server.IP = "0.0.0.0"
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("allowed_origins", DefaultAllowedOrigin)
	v.SetDefault("persistent_session", false)
	v.SetDefault("tmp_dir", DefaultTmpDir)
	v.SetDefault("max_steps", DefaultMaxSteps)
	v.SetDefault("poll_wait", DefaultPollWait)
	v.SetDefault("log_level", "info")

	v.SetDefault("llm.provider", DefaultProvider)
	v.SetDefault("llm.model", DefaultModel)
	v.SetDefault("llm.temperature", DefaultTemperature)

	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("server.api_port", DefaultAPIPort)
	v.SetDefault("server.rate_limit_per_minute", 120)
	v.SetDefault("server.rate_limit_burst", 20)

	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.disable_security", true)
	v.SetDefault("browser.extra_args", []string{"--disable-default-apps", "--start-maximized", "--kiosk", "--window-size=1920,1080"})
	v.SetDefault("browser.window_width", DefaultWindowWidth)
	v.SetDefault("browser.window_height", DefaultWindowHeight)
}

// DefaultBindIP is 0.0.0.0 on AWS/ECS and 127.0.0.1 elsewhere.
func DefaultBindIP(env Environment) string {
	if env.AWS {
		return "0.0.0.0"
	}
	return "127.0.0.1"
}

// ParseOrigins accepts a comma-separated string or a list and returns the
// trimmed, non-empty origins. An empty result falls back to the default origin.
func ParseOrigins(raw interface{}) []string {
	var parts []string
	switch val := raw.(type) {
	case string:
		parts = strings.Split(val, ",")
	case []string:
		parts = val
	case []interface{}:
		for _, p := range val {
			parts = append(parts, fmt.Sprint(p))
		}
	}

	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			origins = append(origins, p)
		}
	}
	if len(origins) == 0 {
		return []string{DefaultAllowedOrigin}
	}
	return origins
}

// Validate checks the settings the service cannot start without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return ErrMissingAPIKey
	}
	if c.MaxSteps <= 0 {
		return fmt.Errorf("max_steps must be positive, got %d", c.MaxSteps)
	}
	if _, ok := LookupProvider(c.LLM.Provider); !ok {
		return fmt.Errorf("unknown LLM provider %q", c.LLM.Provider)
	}
	return nil
}

// AgentHistoryDir is where task directories live.
func (c *Config) AgentHistoryDir() string {
	return filepath.Join(c.TmpDir, "agent_history")
}

// SettingsDir is where the registry persists its files.
func (c *Config) SettingsDir() string {
	return filepath.Join(c.TmpDir, "webui_settings")
}

// DownloadsDir is where browser downloads are saved.
func (c *Config) DownloadsDir() string {
	return filepath.Join(c.TmpDir, "downloads")
}

// LogDir is where log files are written.
func (c *Config) LogDir() string {
	return filepath.Join(c.TmpDir, "logs")
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() Config {
	out := *c
	out.APIKey = redact(out.APIKey)
	out.LLM.APIKey = redact(out.LLM.APIKey)
	return out
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
