package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	// Collect subcommand names.
	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	// Verify expected subcommands are registered.
	expected := []string{"analyze", "ask", "sessions", "serve"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "commentscope", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestAnalyzeCommand_Flags(t *testing.T) {
	for _, name := range []string{"user", "first-party", "save", "interactive"} {
		require.NotNil(t, analyzeCmd.Flags().Lookup(name), "analyze should have --%s", name)
	}
	assert.Error(t, analyzeCmd.Args(analyzeCmd, nil))
}

func TestSessionsCommand_Subcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range sessionsCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"list", "show", "rename", "delete", "export"} {
		assert.True(t, names[name], "expected sessions subcommand %q", name)
	}
	require.NotNil(t, sessionsExportCmd.Flags().Lookup("out"))
}

func TestServeCommand_PortFlag(t *testing.T) {
	require.NotNil(t, serveCmd.Flags().Lookup("port"))
}

func TestRootCommand_PersistentFlags(t *testing.T) {
	for _, name := range []string{"config", "log-level"} {
		require.NotNil(t, rootCmd.PersistentFlags().Lookup(name), "root should have --%s", name)
	}
	assert.True(t, rootCmd.SilenceUsage)
}

func TestLoadConfig_FlagOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: warn\nllm:\n  model: m-1\n"), 0644))

	c, err := loadConfig(path, "")
	require.NoError(t, err)
	assert.Equal(t, "warn", c.Log.Level)
	assert.Equal(t, "m-1", c.LLM.Model)

	c, err = loadConfig(path, "debug")
	require.NoError(t, err)
	assert.Equal(t, "debug", c.Log.Level)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"), "")
	assert.Error(t, err)
}
