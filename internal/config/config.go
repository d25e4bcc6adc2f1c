package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"shipfilter/internal/compiler"
	"shipfilter/internal/filterspec"
	"shipfilter/internal/token"
)

// EnvPrefix is prepended to every environment override, e.g.
// SHIPFILTER_TOKEN_SECRET or SHIPFILTER_DATABASE_DRIVER.
const EnvPrefix = "SHIPFILTER"

type Config struct {
	Server   ServerConfig      `mapstructure:"server"`
	Database DatabaseConfig    `mapstructure:"database"`
	Token    TokenConfig       `mapstructure:"token"`
	Compiler CompilerConfig    `mapstructure:"compiler"`
	Limits   filterspec.Limits `mapstructure:"limits"`
	Audit    AuditConfig       `mapstructure:"audit"`
	Log      LogConfig         `mapstructure:"log"`
	Execute  ExecuteConfig     `mapstructure:"execute"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // duckdb, postgres or sqlite
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	PoolSize int    `mapstructure:"pool_size"`
	Path     string `mapstructure:"path"`  // directory for SQLite and DuckDB files
	Table    string `mapstructure:"table"` // default table filters run against
}

// DSN returns the driver-specific data source name. A database named
// ":memory:" opens an in-memory SQLite or DuckDB database.
func (d DatabaseConfig) DSN() string {
	switch d.Driver {
	case "sqlite":
		if d.Name == ":memory:" {
			return "file::memory:?cache=shared"
		}
		return filepath.Join(d.Path, d.Name+".db")
	case "duckdb":
		if d.Name == ":memory:" {
			return ""
		}
		return filepath.Join(d.Path, d.Name+".duckdb")
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type TokenConfig struct {
	Secret string        `mapstructure:"secret"`
	TTL    time.Duration `mapstructure:"ttl"`

	// SessionTTL bounds how long a session's bearer token stays valid.
	SessionTTL time.Duration `mapstructure:"session_ttl"`
}

type CompilerConfig struct {
	Dialect string `mapstructure:"dialect"`
}

type AuditConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	BufferSize      int  `mapstructure:"buffer_size"`
	FlushIntervalMs int  `mapstructure:"flush_interval_ms"`
	RetentionDays   int  `mapstructure:"retention_days"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type ExecuteConfig struct {
	MaxRows int `mapstructure:"max_rows"`
}

func setDefaults(v *viper.Viper) {
	limits := filterspec.DefaultLimits()

	v.SetDefault("server.port", 8080)
	v.SetDefault("database.driver", "duckdb")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "shipfilter")
	v.SetDefault("database.pool_size", 10)
	v.SetDefault("database.path", "./data")
	v.SetDefault("database.table", "shipments")
	v.SetDefault("token.secret", "")
	v.SetDefault("token.ttl", token.DefaultTTL)
	v.SetDefault("token.session_ttl", 12*time.Hour)
	v.SetDefault("compiler.dialect", compiler.DefaultDialect)
	v.SetDefault("limits.max_depth", limits.MaxDepth)
	v.SetDefault("limits.max_conditions", limits.MaxConditions)
	v.SetDefault("limits.max_params", limits.MaxParams)
	v.SetDefault("limits.max_in_cardinality", limits.MaxInCardinality)
	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.buffer_size", 500)
	v.SetDefault("audit.flush_interval_ms", 100)
	v.SetDefault("audit.retention_days", 30)
	v.SetDefault("log.level", "info")
	v.SetDefault("execute.max_rows", 1000)
}

// Load reads app.yaml from the working directory (or the file named by
// configFile) and applies SHIPFILTER_* environment overrides. A missing
// app.yaml is not an error; everything has a default except the token
// secret.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("app")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("../..")
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	if len(c.Token.Secret) < token.MinSecretLength {
		return fmt.Errorf("config: token.secret must be at least %d characters (set %s_TOKEN_SECRET)",
			token.MinSecretLength, EnvPrefix)
	}
	if c.Token.TTL <= 0 {
		return fmt.Errorf("config: token.ttl must be positive, got %s", c.Token.TTL)
	}
	if _, err := compiler.LookupDialect(c.Compiler.Dialect); err != nil {
		return fmt.Errorf("config: compiler.dialect: %w", err)
	}
	switch c.Database.Driver {
	case "duckdb", "postgres", "sqlite":
	default:
		return fmt.Errorf("config: unknown database.driver %q", c.Database.Driver)
	}
	if c.Limits.MaxDepth <= 0 || c.Limits.MaxConditions <= 0 || c.Limits.MaxParams <= 0 || c.Limits.MaxInCardinality <= 0 {
		return fmt.Errorf("config: limits must be positive, got %+v", c.Limits)
	}
	if c.Execute.MaxRows <= 0 {
		return fmt.Errorf("config: execute.max_rows must be positive")
	}
	return nil
}
