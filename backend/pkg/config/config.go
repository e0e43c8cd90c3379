package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	apperrors "memory-mcp/backend/pkg/errors"
)

// FlagConfigFile names the optional YAML configuration file
const FlagConfigFile = "config"

// Config holds all application configuration
type Config struct {
	// Neo4j
	DBURL    string `validate:"required_if=Backend neo4j"`
	Username string
	Password string
	Database string

	// Tools
	Namespace string

	// Transport
	Transport    string `validate:"oneof=stdio sse http"`
	ServerHost   string `validate:"required_unless=Transport stdio"`
	ServerPort   int    `validate:"min=1,max=65535"`
	ServerPath   string `validate:"required_unless=Transport stdio"`
	AllowOrigins []string
	AllowedHosts []string

	// Storage
	Backend          string `validate:"oneof=neo4j sqlite"`
	SQLitePath       string `validate:"required_if=Backend sqlite"`
	WriteConcurrency int    `validate:"min=1"`

	// App
	Env       string `validate:"oneof=development production"`
	LogLevel  string `validate:"omitempty,oneof=debug info warn error"`
	LogOutput string `validate:"required"`

	// Warnings collected while resolving, logged once the logger exists
	Warnings []string `validate:"-"`
}

// setting describes one configuration key and every source it can come from
type setting struct {
	flag  string
	envs  []string
	def   string
	usage string
	// integer settings get an int flag so parsing rejects bad values
	integer bool
	// warnDefault is logged when the default is used for a neo4j connection setting
	warnDefault string
	apply       func(c *Config, value string) error
}

var settings = []setting{
	{
		flag: "db-url", envs: []string{"NEO4J_URL", "NEO4J_URI"}, def: "bolt://localhost:7687",
		usage:       "Neo4j connection URL",
		warnDefault: "No Neo4j connection URL provided. Using default: bolt://localhost:7687",
		apply:       func(c *Config, v string) error { c.DBURL = v; return nil },
	},
	{
		flag: "username", envs: []string{"NEO4J_USERNAME"}, def: "neo4j",
		usage:       "Neo4j username",
		warnDefault: "No Neo4j username provided. Using default: neo4j",
		apply:       func(c *Config, v string) error { c.Username = v; return nil },
	},
	{
		flag: "password", envs: []string{"NEO4J_PASSWORD"}, def: "password",
		usage:       "Neo4j password",
		warnDefault: "No Neo4j password provided. Using default password",
		apply:       func(c *Config, v string) error { c.Password = v; return nil },
	},
	{
		flag: "database", envs: []string{"NEO4J_DATABASE"}, def: "neo4j",
		usage:       "Neo4j database name",
		warnDefault: "No Neo4j database provided. Using default: neo4j",
		apply:       func(c *Config, v string) error { c.Database = v; return nil },
	},
	{
		flag: "namespace", envs: []string{"NEO4J_NAMESPACE"},
		usage: "Prefix for every tool name",
		apply: func(c *Config, v string) error { c.Namespace = v; return nil },
	},
	{
		flag: "transport", envs: []string{"NEO4J_TRANSPORT"}, def: "stdio",
		usage: "Transport: stdio, sse or http",
		apply: func(c *Config, v string) error { c.Transport = strings.ToLower(v); return nil },
	},
	{
		flag: "server-host", envs: []string{"NEO4J_MCP_SERVER_HOST"}, def: "127.0.0.1",
		usage: "Host to bind for sse and http",
		apply: func(c *Config, v string) error { c.ServerHost = v; return nil },
	},
	{
		flag: "server-port", envs: []string{"NEO4J_MCP_SERVER_PORT"}, def: "8000",
		usage: "Port to bind for sse and http", integer: true,
		apply: func(c *Config, v string) (err error) {
			c.ServerPort, err = parseInt("server-port", v)
			return err
		},
	},
	{
		flag: "server-path", envs: []string{"NEO4J_MCP_SERVER_PATH"}, def: "/mcp/",
		usage: "Endpoint path for sse and http",
		apply: func(c *Config, v string) error { c.ServerPath = v; return nil },
	},
	{
		flag: "allow-origins", envs: []string{"NEO4J_MCP_SERVER_ALLOW_ORIGINS"},
		usage: "Comma separated CORS origins",
		apply: func(c *Config, v string) error { c.AllowOrigins = splitList(v); return nil },
	},
	{
		flag: "allowed-hosts", envs: []string{"NEO4J_MCP_SERVER_ALLOWED_HOSTS"}, def: "localhost,127.0.0.1",
		usage: "Comma separated trusted Host header values",
		apply: func(c *Config, v string) error { c.AllowedHosts = splitList(v); return nil },
	},
	{
		flag: "backend", envs: []string{"MEMORY_BACKEND"}, def: "neo4j",
		usage: "Storage backend: neo4j or sqlite",
		apply: func(c *Config, v string) error { c.Backend = strings.ToLower(v); return nil },
	},
	{
		flag: "sqlite-path", envs: []string{"MEMORY_SQLITE_PATH"}, def: "memory.db",
		usage: "SQLite database file for the sqlite backend",
		apply: func(c *Config, v string) error { c.SQLitePath = v; return nil },
	},
	{
		flag: "write-concurrency", envs: []string{"MEMORY_WRITE_CONCURRENCY"}, def: "4",
		usage: "Concurrent per-item writes inside one batch", integer: true,
		apply: func(c *Config, v string) (err error) {
			c.WriteConcurrency, err = parseInt("write-concurrency", v)
			return err
		},
	},
	{
		flag: "env", envs: []string{"ENV"}, def: "development",
		usage: "Environment: development or production",
		apply: func(c *Config, v string) error { c.Env = strings.ToLower(v); return nil },
	},
	{
		flag: "log-level", envs: []string{"MEMORY_LOG_LEVEL"},
		usage: "Log level: debug, info, warn or error (default depends on env)",
		apply: func(c *Config, v string) error { c.LogLevel = strings.ToLower(v); return nil },
	},
	{
		flag: "log-output", envs: []string{"MEMORY_LOG_OUTPUT"}, def: "stderr",
		usage: "Log destination: stderr, stdout or a file path",
		apply: func(c *Config, v string) error { c.LogOutput = v; return nil },
	},
}

// networkFlags only matter for the sse and http transports
var networkFlags = []string{"server-host", "server-port", "server-path"}

// BindFlags registers every configuration flag on fs. Flag defaults are shown
// in help only; a flag counts as a source when it is set explicitly.
func BindFlags(fs *pflag.FlagSet) {
	fs.String(FlagConfigFile, "", "Optional YAML configuration file")
	for _, s := range settings {
		if s.integer {
			def, _ := strconv.Atoi(s.def)
			fs.Int(s.flag, def, s.usage)
			continue
		}
		fs.String(s.flag, s.def, s.usage)
	}
}

// Load resolves the configuration. Each key comes from the first source that
// sets it: flag, environment (after loading .env), YAML file, default. A
// variable set to the empty string counts as set.
func Load(fs *pflag.FlagSet) (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	file, err := loadFile(flagValue(fs, FlagConfigFile))
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	explicit := map[string]bool{}
	var defaulted []setting

	for _, s := range settings {
		value, ok := lookup(fs, file, s)
		if ok {
			explicit[s.flag] = true
		} else {
			value = s.def
			defaulted = append(defaulted, s)
		}
		if err := s.apply(cfg, value); err != nil {
			return nil, err
		}
	}

	if cfg.Backend == "neo4j" {
		for _, s := range defaulted {
			if s.warnDefault != "" {
				cfg.Warnings = append(cfg.Warnings, s.warnDefault)
			}
		}
	}
	if cfg.Transport == "stdio" {
		if cfg.LogOutput == "stdout" {
			return nil, apperrors.NewConfigValidationFailed("log-output",
				"stdout carries protocol frames with the stdio transport")
		}
		for _, name := range networkFlags {
			if explicit[name] {
				cfg.Warnings = append(cfg.Warnings,
					fmt.Sprintf("%s is set but unused with the stdio transport", name))
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks that configuration values are usable
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		if strings.HasPrefix(fe.Tag(), "required") {
			return apperrors.NewConfigMissingRequired(fe.Field())
		}
		return apperrors.NewConfigValidationFailed(fe.Field(), fmt.Sprintf("failed %q check with value %v", fe.Tag(), fe.Value()))
	}
	return apperrors.NewConfigValidationFailed("config", err.Error())
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func lookup(fs *pflag.FlagSet, file map[string]string, s setting) (string, bool) {
	if fs != nil && fs.Changed(s.flag) {
		return flagValue(fs, s.flag), true
	}
	for _, env := range s.envs {
		if value, ok := os.LookupEnv(env); ok {
			return value, true
		}
	}
	if value, ok := file[s.flag]; ok {
		return value, true
	}
	return "", false
}

func flagValue(fs *pflag.FlagSet, name string) string {
	if fs == nil {
		return ""
	}
	if f := fs.Lookup(name); f != nil {
		return f.Value.String()
	}
	return ""
}

// loadFile reads a YAML mapping of flag names to values. Keys may use dashes
// or underscores; sequences become comma lists.
func loadFile(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, apperrors.NewConfigValidationFailed(FlagConfigFile, err.Error())
	}

	values := make(map[string]string, len(raw))
	for key, value := range raw {
		key = strings.ReplaceAll(strings.ToLower(key), "_", "-")
		switch v := value.(type) {
		case nil:
		case []any:
			parts := make([]string, 0, len(v))
			for _, item := range v {
				parts = append(parts, fmt.Sprint(item))
			}
			values[key] = strings.Join(parts, ",")
		default:
			values[key] = fmt.Sprint(v)
		}
	}
	return values, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseInt(field, value string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, apperrors.NewConfigValidationFailed(field, fmt.Sprintf("%q is not an integer", value))
	}
	return n, nil
}
