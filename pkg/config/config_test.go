package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable Load reads so tests see defaults.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"BROWSER_SERVICE_API_KEY", "ALLOWED_ORIGINS", "DEFAULT_LLM_PROVIDER", "DEFAULT_LLM_MODEL",
		"CHROME_PERSISTENT_SESSION", "CHROME_PATH", "CHROME_CDP",
		"DOCKER_CONTAINER", "AWS_EXECUTION_ENV", "ECS_CONTAINER_METADATA_URI",
		"PILOT_TMP_DIR", "PILOT_MAX_STEPS", "PILOT_LOG_LEVEL", "PILOT_POLL_WAIT",
		"PILOT_API_KEY", "PILOT_ALLOWED_ORIGINS", "PILOT_PERSISTENT_SESSION",
		"PILOT_LLM_PROVIDER", "PILOT_LLM_MODEL", "PILOT_SERVER_IP",
	} {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Empty(t, cfg.APIKey)
	assert.Equal(t, []string{DefaultAllowedOrigin}, cfg.AllowedOrigins)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, 0.2, cfg.LLM.Temperature)
	assert.Equal(t, 30, cfg.MaxSteps)
	assert.Equal(t, 5*time.Second, cfg.PollWait)
	assert.Equal(t, "127.0.0.1", cfg.Server.IP)
	assert.Equal(t, 7788, cfg.Server.Port)
	assert.Equal(t, 7789, cfg.Server.APIPort)
	assert.False(t, cfg.PersistentSession)
	assert.False(t, cfg.Browser.Headless)
	assert.True(t, cfg.Browser.DisableSecurity)
	assert.Contains(t, cfg.Browser.ExtraArgs, "--kiosk")
	assert.Equal(t, filepath.Join("tmp", "agent_history"), filepath.Clean(cfg.AgentHistoryDir()))

	assert.ErrorIs(t, cfg.Validate(), ErrMissingAPIKey)
}

func TestLoadFromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("BROWSER_SERVICE_API_KEY", "secret-key")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("DEFAULT_LLM_PROVIDER", "DeepSeek")
	t.Setenv("DEFAULT_LLM_MODEL", "deepseek-chat")
	t.Setenv("CHROME_PERSISTENT_SESSION", "true")
	t.Setenv("PILOT_MAX_STEPS", "12")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "secret-key", cfg.APIKey)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, "deepseek", cfg.LLM.Provider)
	assert.Equal(t, "deepseek-chat", cfg.LLM.Model)
	assert.True(t, cfg.PersistentSession)
	assert.Equal(t, 12, cfg.MaxSteps)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFileWithEnvOverride(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "pilot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api_key: from-file
allowed_origins:
  - https://file.example
llm:
  model: gpt-4o-mini
server:
  port: 9000
browser:
  headless: true
`), 0600))
	t.Setenv("BROWSER_SERVICE_API_KEY", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.APIKey)
	assert.Equal(t, []string{"https://file.example"}, cfg.AllowedOrigins)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.True(t, cfg.Browser.Headless)
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestBindAddress(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{name: "local", want: "127.0.0.1"},
		{name: "docker", env: map[string]string{"DOCKER_CONTAINER": "1"}, want: "0.0.0.0"},
		{name: "aws", env: map[string]string{"AWS_EXECUTION_ENV": "AWS_ECS_FARGATE"}, want: "0.0.0.0"},
		{name: "ecs", env: map[string]string{"ECS_CONTAINER_METADATA_URI": "http://169.254.170.2/v3"}, want: "0.0.0.0"},
		{name: "docker overrides configured ip", env: map[string]string{"DOCKER_CONTAINER": "1", "PILOT_SERVER_IP": "10.0.0.5"}, want: "0.0.0.0"},
		{name: "configured ip", env: map[string]string{"PILOT_SERVER_IP": "10.0.0.5"}, want: "10.0.0.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := Load("")
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Server.IP)
		})
	}
}

func TestParseOrigins(t *testing.T) {
	assert.Equal(t, []string{"*"}, ParseOrigins("*"))
	assert.Equal(t, []string{"a", "b"}, ParseOrigins([]interface{}{"a", " b "}))
	assert.Equal(t, []string{DefaultAllowedOrigin}, ParseOrigins(""))
	assert.Equal(t, []string{DefaultAllowedOrigin}, ParseOrigins(nil))
}

func TestValidate(t *testing.T) {
	cfg := &Config{APIKey: "k", MaxSteps: 30, LLM: LLMConfig{Provider: "openai"}}
	assert.NoError(t, cfg.Validate())

	cfg.MaxSteps = 0
	assert.Error(t, cfg.Validate())

	cfg.MaxSteps = 1
	cfg.LLM.Provider = "anthropic"
	assert.Error(t, cfg.Validate())
}

func TestRedacted(t *testing.T) {
	cfg := &Config{APIKey: "supersecret", LLM: LLMConfig{APIKey: "abc"}}
	r := cfg.Redacted()
	assert.Equal(t, "su*******et", r.APIKey)
	assert.Equal(t, "****", r.LLM.APIKey)
	assert.Equal(t, "supersecret", cfg.APIKey)
}
