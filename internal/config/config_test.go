package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ProviderGemini, cfg.LLM.Provider)
	assert.Equal(t, "gemini-2.5-flash", cfg.LLM.Model)
	assert.InDelta(t, 0.2, cfg.LLM.Temperature, 0.001)
	assert.Equal(t, int32(8192), cfg.LLM.MaxOutputTokens)
	assert.Equal(t, 120*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 20*time.Minute, cfg.LLM.CacheTTL)
	assert.Equal(t, 3, cfg.Gate.Capacity)
	assert.Equal(t, 120*time.Second, cfg.Gate.Wait)
	assert.Equal(t, 60, cfg.Search.MaxResults)
	assert.Equal(t, `(?i)\bOST\b`, cfg.Search.Exclude)
	assert.Equal(t, 8, cfg.Collector.Workers)
	assert.Equal(t, 4000, cfg.Collector.MaxPerVideo)
	assert.Equal(t, 120000, cfg.Collector.MaxTotal)
	assert.Equal(t, 200*time.Millisecond, cfg.Collector.PageInterval)
	assert.Equal(t, 280, cfg.Sampler.MaxCharsPerComment)
	assert.Equal(t, 420000, cfg.Sampler.MaxTotalChars)
	assert.Equal(t, 1000, cfg.Sampler.TopN)
	assert.Equal(t, 1000, cfg.Sampler.RandomN)
	assert.Equal(t, "text", cfg.Sampler.DedupKey)
	assert.Equal(t, uint64(42), cfg.Sampler.Seed)
	assert.Equal(t, "Asia/Seoul", cfg.Session.Timezone)
	assert.Equal(t, 10, cfg.Session.HistoryTurns)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 2*time.Hour, cfg.Server.SessionIdle)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Empty(t, cfg.YouTube.Keys)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
youtube:
  keys: [yt-1, yt-2]
llm:
  provider: Anthropic
  model: claude-sonnet-4-5
  keys:
    - sk-1
store:
  driver: postgres
  database_url: postgres://localhost/cs
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"yt-1", "yt-2"}, cfg.YouTube.Keys)
	assert.Equal(t, []string{"sk-1"}, cfg.LLM.Keys)
	assert.Equal(t, ProviderAnthropic, cfg.LLM.Provider)
	assert.Equal(t, "claude-sonnet-4-5", cfg.LLM.Model)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	// Defaults still apply for unset values
	assert.Equal(t, 8, cfg.Collector.Workers)
}

func TestLoadFileExplicitPath(t *testing.T) {
	chdirTemp(t)
	other := filepath.Join(t.TempDir(), "prod.yml")
	require.NoError(t, os.WriteFile(other, []byte("llm:\n  model: gemini-2.5-pro\n"), 0644))

	cfg, err := LoadFile(other)
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.5-pro", cfg.LLM.Model)
	assert.Equal(t, 3, cfg.Gate.Capacity)
}

func TestLoadFileMissingPath(t *testing.T) {
	chdirTemp(t)
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("COMMENTSCOPE_STORE_DRIVER", "postgres")
	t.Setenv("COMMENTSCOPE_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvKeyList(t *testing.T) {
	chdirTemp(t)
	t.Setenv("COMMENTSCOPE_YOUTUBE_KEYS", "a, b,,c")
	t.Setenv("COMMENTSCOPE_GATE_WAIT", "5s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.YouTube.Keys)
	assert.Equal(t, 5*time.Second, cfg.Gate.Wait)
}

func TestSplitKeys(t *testing.T) {
	assert.Nil(t, splitKeys(nil))
	assert.Equal(t, []string{"a", "b", "c"}, splitKeys([]string{"a,b", " ", "c"}))
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config that passes validation in every mode.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.YouTube.Keys = []string{"yt"}
	cfg.LLM.Keys = []string{"llm"}
	cfg.LLM.Provider = ProviderGemini
	cfg.LLM.Model = "gemini-2.5-flash"
	cfg.Gate.Capacity = 3
	cfg.Collector.Workers = 8
	cfg.Store.Driver = "sqlite"
	cfg.Store.Path = "cs.db"
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateAnalyze_AllPresent(t *testing.T) {
	assert.NoError(t, validDefaults().Validate(ModeAnalyze))
	assert.NoError(t, validDefaults().Validate(ModeServe))
}

func TestValidateAnalyze_MissingFields(t *testing.T) {
	cfg := validDefaults()
	cfg.YouTube.Keys = nil
	cfg.LLM.Keys = nil
	cfg.LLM.Provider = "openai"

	err := cfg.Validate(ModeAnalyze)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "youtube.keys is required")
	assert.Contains(t, err.Error(), "llm.keys is required")
	assert.Contains(t, err.Error(), "llm.provider must be gemini or anthropic")
}

func TestValidateSessions_NoCredentialsNeeded(t *testing.T) {
	cfg := &Config{Store: StoreConfig{Driver: "sqlite", Path: "cs.db"}}
	assert.NoError(t, cfg.Validate(ModeSessions))
}

func TestValidateStore(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "postgres"
	err := cfg.Validate(ModeSessions)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url")

	cfg.Store.DatabaseURL = "postgres://localhost/cs"
	assert.NoError(t, cfg.Validate(ModeSessions))

	cfg.Store.Driver = "mysql"
	assert.ErrorContains(t, cfg.Validate(ModeSessions), "store.driver")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate(ModeServe)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
	assert.NoError(t, cfg.Validate(ModeAnalyze))
}

func TestValidateWorkerBounds(t *testing.T) {
	cfg := validDefaults()
	cfg.Collector.Workers = 0
	assert.ErrorContains(t, cfg.Validate(ModeAnalyze), "collector.workers")
	cfg.Collector.Workers = 33
	assert.ErrorContains(t, cfg.Validate(ModeAnalyze), "collector.workers")
}

func TestValidateUnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
