package config

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "memory-mcp/backend/pkg/errors"
)

// clearEnv unsets every variable Load reads so the host environment cannot leak in
func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range settings {
		for _, env := range s.envs {
			// Setenv restores the original value when the test ends
			t.Setenv(env, "")
			require.NoError(t, os.Unsetenv(env))
		}
	}
}

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(newFlags(t))
	require.NoError(t, err)

	assert.Equal(t, "bolt://localhost:7687", cfg.DBURL)
	assert.Equal(t, "neo4j", cfg.Username)
	assert.Equal(t, "password", cfg.Password)
	assert.Equal(t, "neo4j", cfg.Database)
	assert.Empty(t, cfg.Namespace)
	assert.Equal(t, "stdio", cfg.Transport)
	assert.Equal(t, "127.0.0.1", cfg.ServerHost)
	assert.Equal(t, 8000, cfg.ServerPort)
	assert.Equal(t, "/mcp/", cfg.ServerPath)
	assert.Empty(t, cfg.AllowOrigins)
	assert.Equal(t, []string{"localhost", "127.0.0.1"}, cfg.AllowedHosts)
	assert.Equal(t, "neo4j", cfg.Backend)
	assert.Equal(t, "memory.db", cfg.SQLitePath)
	assert.Equal(t, 4, cfg.WriteConcurrency)
	assert.Equal(t, "development", cfg.Env)
	assert.False(t, cfg.IsProduction())
	assert.Empty(t, cfg.LogLevel)
	assert.Equal(t, "stderr", cfg.LogOutput)

	// One warning per defaulted connection setting
	assert.Len(t, cfg.Warnings, 4)
}

func TestLoad_Precedence(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "memory.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
db_url: bolt://file:7687
username: file-user
namespace: file-ns
server-port: 9000
allowed_hosts: [example.com, api.example.com]
`), 0o600))

	t.Setenv("NEO4J_USERNAME", "env-user")
	t.Setenv("NEO4J_NAMESPACE", "env-ns")

	cfg, err := Load(newFlags(t, "--config", path, "--namespace", "flag-ns"))
	require.NoError(t, err)

	assert.Equal(t, "bolt://file:7687", cfg.DBURL, "file beats default")
	assert.Equal(t, "env-user", cfg.Username, "env beats file")
	assert.Equal(t, "flag-ns", cfg.Namespace, "flag beats env")
	assert.Equal(t, 9000, cfg.ServerPort)
	assert.Equal(t, []string{"example.com", "api.example.com"}, cfg.AllowedHosts)
}

func TestLoad_EmptyEnvOverridesFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "memory.yaml")
	require.NoError(t, os.WriteFile(path, []byte("namespace: file-ns\n"), 0o600))
	t.Setenv("NEO4J_NAMESPACE", "")

	cfg, err := Load(newFlags(t, "--config", path))
	require.NoError(t, err)
	assert.Empty(t, cfg.Namespace)
}

func TestLoad_IntegerFlags(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(newFlags(t, "--server-port", "9100", "--write-concurrency", "8"))
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.ServerPort)
	assert.Equal(t, 8, cfg.WriteConcurrency)

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	BindFlags(fs)
	assert.Error(t, fs.Parse([]string{"--server-port", "eighty"}))
}

func TestLoad_LogSettings(t *testing.T) {
	clearEnv(t)
	t.Setenv("MEMORY_LOG_LEVEL", "WARN")

	cfg, err := Load(newFlags(t, "--log-output", "/tmp/memory.log"))
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "/tmp/memory.log", cfg.LogOutput)

	cfg, err = Load(newFlags(t, "--transport", "http", "--log-output", "stdout"))
	require.NoError(t, err)
	assert.Equal(t, "stdout", cfg.LogOutput)

	_, err = Load(newFlags(t, "--log-output", "stdout"))
	var cfgErr *apperrors.ErrConfigValidationFailed
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "log-output", cfgErr.Field)
}

func TestLoad_URLVariablePrecedence(t *testing.T) {
	clearEnv(t)
	t.Setenv("NEO4J_URI", "bolt://uri:7687")

	cfg, err := Load(newFlags(t))
	require.NoError(t, err)
	assert.Equal(t, "bolt://uri:7687", cfg.DBURL)

	t.Setenv("NEO4J_URL", "bolt://url:7687")
	cfg, err = Load(newFlags(t))
	require.NoError(t, err)
	assert.Equal(t, "bolt://url:7687", cfg.DBURL)
}

func TestLoad_CommaLists(t *testing.T) {
	clearEnv(t)
	t.Setenv("NEO4J_MCP_SERVER_ALLOW_ORIGINS", "https://a.example.com, https://b.example.com,,")

	cfg, err := Load(newFlags(t, "--allowed-hosts", "*"))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.AllowOrigins)
	assert.Equal(t, []string{"*"}, cfg.AllowedHosts)
}

func TestLoad_Warnings(t *testing.T) {
	t.Run("network flags with stdio", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("NEO4J_URL", "bolt://db:7687")
		t.Setenv("NEO4J_USERNAME", "u")
		t.Setenv("NEO4J_PASSWORD", "p")
		t.Setenv("NEO4J_DATABASE", "d")

		cfg, err := Load(newFlags(t, "--server-port", "9001", "--server-path", "/x/"))
		require.NoError(t, err)
		assert.Len(t, cfg.Warnings, 2)
		assert.Contains(t, cfg.Warnings[0], "server-port")
		assert.Contains(t, cfg.Warnings[1], "server-path")
	})

	t.Run("sqlite skips connection warnings", func(t *testing.T) {
		clearEnv(t)

		cfg, err := Load(newFlags(t, "--backend", "sqlite", "--sqlite-path", filepath.Join(t.TempDir(), "m.db")))
		require.NoError(t, err)
		assert.Empty(t, cfg.Warnings)
	})

	t.Run("http transport uses network flags", func(t *testing.T) {
		clearEnv(t)

		cfg, err := Load(newFlags(t, "--backend", "sqlite", "--transport", "HTTP", "--server-port", "9001"))
		require.NoError(t, err)
		assert.Equal(t, "http", cfg.Transport)
		assert.Empty(t, cfg.Warnings)
	})
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		env   map[string]string
		field string
	}{
		{"unknown transport", []string{"--transport", "grpc"}, nil, "Transport"},
		{"unknown backend", []string{"--backend", "redis"}, nil, "Backend"},
		{"port out of range", []string{"--server-port", "70000"}, nil, "ServerPort"},
		{"port not a number", nil, map[string]string{"NEO4J_MCP_SERVER_PORT": "eighty"}, "server-port"},
		{"no write concurrency", []string{"--write-concurrency", "0"}, nil, "WriteConcurrency"},
		{"unknown env", []string{"--env", "staging"}, nil, "Env"},
		{"unknown log level", []string{"--log-level", "loud"}, nil, "LogLevel"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load(newFlags(t, tt.args...))
			require.Error(t, err)
			assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeConfig))

			var cfgErr *apperrors.ErrConfigValidationFailed
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		field string
	}{
		{"http without path", []string{"--transport", "http", "--server-path", ""}, "ServerPath"},
		{"sse without host", []string{"--transport", "sse", "--server-host", ""}, "ServerHost"},
		{"sqlite without path", []string{"--backend", "sqlite", "--sqlite-path", ""}, "SQLitePath"},
		{"neo4j without url", []string{"--db-url", ""}, "DBURL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)

			_, err := Load(newFlags(t, tt.args...))
			require.Error(t, err)
			assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeConfig))

			var missing *apperrors.ErrConfigMissingRequired
			require.ErrorAs(t, err, &missing)
			assert.Equal(t, tt.field, missing.Field)
		})
	}
}

func TestLoad_ConfigFileErrors(t *testing.T) {
	clearEnv(t)

	_, err := Load(newFlags(t, "--config", filepath.Join(t.TempDir(), "missing.yaml")))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("transport: [unclosed"), 0o600))
	_, err = Load(newFlags(t, "--config", path))
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeConfig))
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Equal(t, []string{"a"}, splitList(" a "))
	assert.Equal(t, []string{"a", "b"}, splitList("a,,b"))
}
