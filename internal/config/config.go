/*-------------------------------------------------------------------------
 *
 * Postgres Schema MCP Server
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultSchema is the schema the tools inspect when none is given
const DefaultSchema = "mcp_demo"

// Config represents the complete server configuration
type Config struct {
	// HTTP server configuration
	HTTP HTTPConfig `yaml:"http"`

	// Database connection configuration
	Database DatabaseConfig `yaml:"database"`

	// Tool defaults and limits
	Tools ToolsConfig `yaml:"tools"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging"`
}

// HTTPConfig holds HTTP/HTTPS server settings
type HTTPConfig struct {
	Enabled bool       `yaml:"enabled"`
	Address string     `yaml:"address"`
	Path    string     `yaml:"path"`
	TLS     TLSConfig  `yaml:"tls"`
	Auth    AuthConfig `yaml:"auth"`
}

// AuthConfig holds bearer token authentication settings
type AuthConfig struct {
	Enabled   bool   `yaml:"enabled"`    // Whether a bearer token is required
	TokenFile string `yaml:"token_file"` // Path to token file
}

// TLSConfig holds TLS/HTTPS settings
type TLSConfig struct {
	Enabled   bool   `yaml:"enabled"`
	CertFile  string `yaml:"cert_file"`
	KeyFile   string `yaml:"key_file"`
	ChainFile string `yaml:"chain_file"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string `yaml:"host"`             // Database host (default: localhost)
	Port            int    `yaml:"port"`             // Database port (default: 5432)
	Database        string `yaml:"database"`         // Database name (default: postgres)
	User            string `yaml:"user"`             // Database user (required, no default)
	Password        string `yaml:"password"`         // Database password (optional, .pgpass is used when empty)
	SSLMode         string `yaml:"sslmode"`          // disable, allow, prefer, require, verify-ca, verify-full
	ApplicationName string `yaml:"application_name"` // Reported in pg_stat_activity

	// Connection pool settings
	PoolMaxConns        int    `yaml:"pool_max_conns"`          // Maximum number of connections (default: 5)
	PoolMinConns        int    `yaml:"pool_min_conns"`          // Minimum number of connections (default: 0)
	PoolMaxConnIdleTime string `yaml:"pool_max_conn_idle_time"` // Max idle time before a connection is closed (default: 30m)
}

// ToolsConfig holds tool defaults
type ToolsConfig struct {
	DefaultSchema string          `yaml:"default_schema"`
	SampleRows    SampleRowsLimit `yaml:"sample_rows"`
	RunSelect     RunSelectLimit  `yaml:"run_select"`
}

// SampleRowsLimit bounds the sample_rows limit argument
type SampleRowsLimit struct {
	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`
}

// RunSelectLimit bounds the run_select max_rows argument
type RunSelectLimit struct {
	DefaultMaxRows int `yaml:"default_max_rows"`
	MaxMaxRows     int `yaml:"max_max_rows"`
}

// LoggingConfig holds log settings
type LoggingConfig struct {
	Level   string `yaml:"level"`    // debug, info, warn, error
	Format  string `yaml:"format"`   // json or text
	DBLevel string `yaml:"db_level"` // none, info, debug, trace
}

// CLIFlags represents command line flag values and whether they were explicitly set
type CLIFlags struct {
	ConfigFileSet bool
	ConfigFile    string

	EnvFileSet bool
	EnvFile    string

	// HTTP flags
	HTTPEnabled    bool
	HTTPEnabledSet bool
	HTTPAddr       string
	HTTPAddrSet    bool

	// TLS flags
	TLSEnabled    bool
	TLSEnabledSet bool
	TLSCertFile   string
	TLSCertSet    bool
	TLSKeyFile    string
	TLSKeySet     bool
	TLSChainFile  string
	TLSChainSet   bool

	// Auth flags
	AuthEnabled    bool
	AuthEnabledSet bool
	AuthTokenFile  string
	AuthTokenSet   bool

	// DefaultTokenFile is used when no layer names a token file
	DefaultTokenFile string

	// Database flags
	DBHost     string
	DBHostSet  bool
	DBPort     int
	DBPortSet  bool
	DBName     string
	DBNameSet  bool
	DBUser     string
	DBUserSet  bool
	DBPassword string
	DBPassSet  bool
	DBSSLMode  string
	DBSSLSet   bool

	// Logging flags
	LogLevel    string
	LogLevelSet bool
}

// LoadConfig loads configuration with proper priority:
// 1. Command line flags (highest priority)
// 2. Environment variables (including an optional .env file)
// 3. Configuration file
// 4. Hard-coded defaults (lowest priority)
func LoadConfig(configPath string, cliFlags CLIFlags) (*Config, error) {
	cfg := defaultConfig()

	if configPath != "" {
		fileCfg, err := loadConfigFile(configPath)
		if err != nil {
			// If file was explicitly specified, error out
			if cliFlags.ConfigFileSet {
				return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
			}
		} else {
			mergeConfig(cfg, fileCfg)
		}
	}

	if err := loadEnvFile(cliFlags); err != nil {
		return nil, err
	}

	applyEnvironmentVariables(cfg)
	applyCLIFlags(cfg, cliFlags)

	if cfg.HTTP.Auth.TokenFile == "" {
		cfg.HTTP.Auth.TokenFile = cliFlags.DefaultTokenFile
	}

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns configuration with hard-coded defaults.
// There is deliberately no default database user or password.
func defaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Enabled: false,
			Address: ":3333",
			Path:    "/",
			TLS: TLSConfig{
				Enabled:  false,
				CertFile: "./server.crt",
				KeyFile:  "./server.key",
			},
			Auth: AuthConfig{
				Enabled: false,
			},
		},
		Database: DatabaseConfig{
			Host:                "localhost",
			Port:                5432,
			Database:            "postgres",
			SSLMode:             "prefer",
			ApplicationName:     "postgres-schema-mcp",
			PoolMaxConns:        5,
			PoolMinConns:        0,
			PoolMaxConnIdleTime: "30m",
		},
		Tools: ToolsConfig{
			DefaultSchema: DefaultSchema,
			SampleRows: SampleRowsLimit{
				DefaultLimit: 10,
				MaxLimit:     100,
			},
			RunSelect: RunSelectLimit{
				DefaultMaxRows: 100,
				MaxMaxRows:     500,
			},
		},
		Logging: LoggingConfig{
			Level:   "info",
			Format:  "json",
			DBLevel: "none",
		},
	}
}

// loadConfigFile loads configuration from a YAML file
func loadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return &cfg, nil
}

// loadEnvFile loads KEY=VALUE pairs from a .env file into the process
// environment without overriding variables that are already set
func loadEnvFile(cliFlags CLIFlags) error {
	path := ".env"
	if cliFlags.EnvFileSet {
		path = cliFlags.EnvFile
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && !cliFlags.EnvFileSet {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}

	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// mergeConfig merges source config into dest, only overriding non-zero values
func mergeConfig(dest, src *Config) {
	// HTTP
	if src.HTTP.Enabled {
		dest.HTTP.Enabled = src.HTTP.Enabled
	}
	if src.HTTP.Address != "" {
		dest.HTTP.Address = src.HTTP.Address
	}
	if src.HTTP.Path != "" {
		dest.HTTP.Path = src.HTTP.Path
	}

	// TLS
	if src.HTTP.TLS.Enabled {
		dest.HTTP.TLS.Enabled = src.HTTP.TLS.Enabled
	}
	if src.HTTP.TLS.CertFile != "" {
		dest.HTTP.TLS.CertFile = src.HTTP.TLS.CertFile
	}
	if src.HTTP.TLS.KeyFile != "" {
		dest.HTTP.TLS.KeyFile = src.HTTP.TLS.KeyFile
	}
	if src.HTTP.TLS.ChainFile != "" {
		dest.HTTP.TLS.ChainFile = src.HTTP.TLS.ChainFile
	}

	// Auth
	if src.HTTP.Auth.Enabled {
		dest.HTTP.Auth.Enabled = src.HTTP.Auth.Enabled
	}
	if src.HTTP.Auth.TokenFile != "" {
		dest.HTTP.Auth.TokenFile = src.HTTP.Auth.TokenFile
	}

	// Database
	if src.Database.Host != "" {
		dest.Database.Host = src.Database.Host
	}
	if src.Database.Port != 0 {
		dest.Database.Port = src.Database.Port
	}
	if src.Database.Database != "" {
		dest.Database.Database = src.Database.Database
	}
	if src.Database.User != "" {
		dest.Database.User = src.Database.User
	}
	if src.Database.Password != "" {
		dest.Database.Password = src.Database.Password
	}
	if src.Database.SSLMode != "" {
		dest.Database.SSLMode = src.Database.SSLMode
	}
	if src.Database.ApplicationName != "" {
		dest.Database.ApplicationName = src.Database.ApplicationName
	}
	if src.Database.PoolMaxConns != 0 {
		dest.Database.PoolMaxConns = src.Database.PoolMaxConns
	}
	if src.Database.PoolMinConns != 0 {
		dest.Database.PoolMinConns = src.Database.PoolMinConns
	}
	if src.Database.PoolMaxConnIdleTime != "" {
		dest.Database.PoolMaxConnIdleTime = src.Database.PoolMaxConnIdleTime
	}

	// Tools
	if src.Tools.DefaultSchema != "" {
		dest.Tools.DefaultSchema = src.Tools.DefaultSchema
	}
	if src.Tools.SampleRows.DefaultLimit != 0 {
		dest.Tools.SampleRows.DefaultLimit = src.Tools.SampleRows.DefaultLimit
	}
	if src.Tools.SampleRows.MaxLimit != 0 {
		dest.Tools.SampleRows.MaxLimit = src.Tools.SampleRows.MaxLimit
	}
	if src.Tools.RunSelect.DefaultMaxRows != 0 {
		dest.Tools.RunSelect.DefaultMaxRows = src.Tools.RunSelect.DefaultMaxRows
	}
	if src.Tools.RunSelect.MaxMaxRows != 0 {
		dest.Tools.RunSelect.MaxMaxRows = src.Tools.RunSelect.MaxMaxRows
	}

	// Logging
	if src.Logging.Level != "" {
		dest.Logging.Level = src.Logging.Level
	}
	if src.Logging.Format != "" {
		dest.Logging.Format = src.Logging.Format
	}
	if src.Logging.DBLevel != "" {
		dest.Logging.DBLevel = src.Logging.DBLevel
	}
}

// setStringFromEnv sets a string config value from an environment variable if it exists
func setStringFromEnv(dest *string, key string) {
	if val := os.Getenv(key); val != "" {
		*dest = val
	}
}

// setBoolFromEnv sets a boolean config value from an environment variable if it exists
// Accepts "true", "1", or "yes" as true values
func setBoolFromEnv(dest *bool, key string) {
	if val := os.Getenv(key); val != "" {
		*dest = val == "true" || val == "1" || val == "yes"
	}
}

// setIntFromEnv sets an integer config value from an environment variable if it exists
func setIntFromEnv(dest *int, key string) {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			*dest = intVal
		}
	}
}

// applyEnvironmentVariables overrides config with environment variables if they exist.
// PGSCHEMA_ variables win over the standard libpq ones.
func applyEnvironmentVariables(cfg *Config) {
	// Standard PostgreSQL environment variables first
	setStringFromEnv(&cfg.Database.Host, "PGHOST")
	setIntFromEnv(&cfg.Database.Port, "PGPORT")
	setStringFromEnv(&cfg.Database.Database, "PGDATABASE")
	setStringFromEnv(&cfg.Database.User, "PGUSER")
	setStringFromEnv(&cfg.Database.Password, "PGPASSWORD")
	setStringFromEnv(&cfg.Database.SSLMode, "PGSSLMODE")

	// Bare port variables understood by hosting platforms; PORT wins
	for _, key := range []string{"PORT", "MCP_HTTP_PORT"} {
		if val := strings.TrimSpace(os.Getenv(key)); val != "" {
			if _, err := strconv.Atoi(val); err == nil {
				cfg.HTTP.Address = ":" + val
				break
			}
		}
	}

	// HTTP
	setBoolFromEnv(&cfg.HTTP.Enabled, "PGSCHEMA_HTTP_ENABLED")
	setStringFromEnv(&cfg.HTTP.Address, "PGSCHEMA_HTTP_ADDRESS")
	setStringFromEnv(&cfg.HTTP.Path, "PGSCHEMA_HTTP_PATH")

	// TLS
	setBoolFromEnv(&cfg.HTTP.TLS.Enabled, "PGSCHEMA_TLS_ENABLED")
	setStringFromEnv(&cfg.HTTP.TLS.CertFile, "PGSCHEMA_TLS_CERT_FILE")
	setStringFromEnv(&cfg.HTTP.TLS.KeyFile, "PGSCHEMA_TLS_KEY_FILE")
	setStringFromEnv(&cfg.HTTP.TLS.ChainFile, "PGSCHEMA_TLS_CHAIN_FILE")

	// Auth
	setBoolFromEnv(&cfg.HTTP.Auth.Enabled, "PGSCHEMA_AUTH_ENABLED")
	setStringFromEnv(&cfg.HTTP.Auth.TokenFile, "PGSCHEMA_AUTH_TOKEN_FILE")

	// Database
	setStringFromEnv(&cfg.Database.Host, "PGSCHEMA_DB_HOST")
	setIntFromEnv(&cfg.Database.Port, "PGSCHEMA_DB_PORT")
	setStringFromEnv(&cfg.Database.Database, "PGSCHEMA_DB_NAME")
	setStringFromEnv(&cfg.Database.User, "PGSCHEMA_DB_USER")
	setStringFromEnv(&cfg.Database.Password, "PGSCHEMA_DB_PASSWORD")
	setStringFromEnv(&cfg.Database.SSLMode, "PGSCHEMA_DB_SSLMODE")
	setStringFromEnv(&cfg.Database.ApplicationName, "PGSCHEMA_DB_APPLICATION_NAME")
	setIntFromEnv(&cfg.Database.PoolMaxConns, "PGSCHEMA_DB_POOL_MAX_CONNS")
	setIntFromEnv(&cfg.Database.PoolMinConns, "PGSCHEMA_DB_POOL_MIN_CONNS")
	setStringFromEnv(&cfg.Database.PoolMaxConnIdleTime, "PGSCHEMA_DB_POOL_MAX_CONN_IDLE_TIME")

	// Tools
	setStringFromEnv(&cfg.Tools.DefaultSchema, "PGSCHEMA_DEFAULT_SCHEMA")
	setIntFromEnv(&cfg.Tools.SampleRows.DefaultLimit, "PGSCHEMA_SAMPLE_ROWS_DEFAULT_LIMIT")
	setIntFromEnv(&cfg.Tools.SampleRows.MaxLimit, "PGSCHEMA_SAMPLE_ROWS_MAX_LIMIT")
	setIntFromEnv(&cfg.Tools.RunSelect.DefaultMaxRows, "PGSCHEMA_RUN_SELECT_DEFAULT_MAX_ROWS")
	setIntFromEnv(&cfg.Tools.RunSelect.MaxMaxRows, "PGSCHEMA_RUN_SELECT_MAX_MAX_ROWS")

	// Logging
	setStringFromEnv(&cfg.Logging.Level, "PGSCHEMA_LOG_LEVEL")
	setStringFromEnv(&cfg.Logging.Format, "PGSCHEMA_LOG_FORMAT")
	setStringFromEnv(&cfg.Logging.DBLevel, "PGSCHEMA_DB_LOG_LEVEL")
}

// applyCLIFlags overrides config with CLI flags if they were explicitly set
func applyCLIFlags(cfg *Config, flags CLIFlags) {
	// HTTP
	if flags.HTTPEnabledSet {
		cfg.HTTP.Enabled = flags.HTTPEnabled
	}
	if flags.HTTPAddrSet {
		cfg.HTTP.Address = flags.HTTPAddr
	}

	// TLS
	if flags.TLSEnabledSet {
		cfg.HTTP.TLS.Enabled = flags.TLSEnabled
	}
	if flags.TLSCertSet {
		cfg.HTTP.TLS.CertFile = flags.TLSCertFile
	}
	if flags.TLSKeySet {
		cfg.HTTP.TLS.KeyFile = flags.TLSKeyFile
	}
	if flags.TLSChainSet {
		cfg.HTTP.TLS.ChainFile = flags.TLSChainFile
	}

	// Auth
	if flags.AuthEnabledSet {
		cfg.HTTP.Auth.Enabled = flags.AuthEnabled
	}
	if flags.AuthTokenSet {
		cfg.HTTP.Auth.TokenFile = flags.AuthTokenFile
	}

	// Database
	if flags.DBHostSet {
		cfg.Database.Host = flags.DBHost
	}
	if flags.DBPortSet {
		cfg.Database.Port = flags.DBPort
	}
	if flags.DBNameSet {
		cfg.Database.Database = flags.DBName
	}
	if flags.DBUserSet {
		cfg.Database.User = flags.DBUser
	}
	if flags.DBPassSet {
		cfg.Database.Password = flags.DBPassword
	}
	if flags.DBSSLSet {
		cfg.Database.SSLMode = flags.DBSSLMode
	}

	// Logging
	if flags.LogLevelSet {
		cfg.Logging.Level = flags.LogLevel
	}
}

// validateConfig checks if the configuration is valid
func validateConfig(cfg *Config) error {
	// TLS requires HTTP to be enabled
	if cfg.HTTP.TLS.Enabled && !cfg.HTTP.Enabled {
		return fmt.Errorf("TLS requires HTTP mode to be enabled")
	}

	if cfg.HTTP.TLS.Enabled {
		if cfg.HTTP.TLS.CertFile == "" {
			return fmt.Errorf("TLS certificate file is required when HTTPS is enabled")
		}
		if cfg.HTTP.TLS.KeyFile == "" {
			return fmt.Errorf("TLS key file is required when HTTPS is enabled")
		}
	}

	if cfg.HTTP.Enabled && cfg.HTTP.Auth.Enabled && cfg.HTTP.Auth.TokenFile == "" {
		return fmt.Errorf("authentication token file is required when HTTP auth is enabled (use --no-auth to disable)")
	}

	if !strings.HasPrefix(cfg.HTTP.Path, "/") {
		return fmt.Errorf("http path must start with '/': %q", cfg.HTTP.Path)
	}

	// No silently active credentials: the user must be configured explicitly
	if cfg.Database.User == "" {
		return fmt.Errorf("database user is required (set via --db-user, PGSCHEMA_DB_USER, PGUSER env var, or config file)")
	}
	if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
		return fmt.Errorf("database port out of range: %d", cfg.Database.Port)
	}
	if cfg.Database.PoolMaxConns < 1 {
		return fmt.Errorf("database pool_max_conns must be at least 1")
	}
	if cfg.Database.PoolMinConns < 0 || cfg.Database.PoolMinConns > cfg.Database.PoolMaxConns {
		return fmt.Errorf("database pool_min_conns must be between 0 and pool_max_conns")
	}
	if cfg.Database.PoolMaxConnIdleTime != "" {
		if _, err := time.ParseDuration(cfg.Database.PoolMaxConnIdleTime); err != nil {
			return fmt.Errorf("invalid pool_max_conn_idle_time: %w", err)
		}
	}

	if cfg.Tools.DefaultSchema == "" {
		return fmt.Errorf("tools default_schema must not be empty")
	}
	if cfg.Tools.SampleRows.DefaultLimit < 1 || cfg.Tools.SampleRows.DefaultLimit > cfg.Tools.SampleRows.MaxLimit {
		return fmt.Errorf("sample_rows default_limit must be between 1 and max_limit")
	}
	if cfg.Tools.RunSelect.DefaultMaxRows < 1 || cfg.Tools.RunSelect.DefaultMaxRows > cfg.Tools.RunSelect.MaxMaxRows {
		return fmt.Errorf("run_select default_max_rows must be between 1 and max_max_rows")
	}

	switch strings.ToLower(cfg.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("unknown log format %q (expected json or text)", cfg.Logging.Format)
	}

	return nil
}

// GetDefaultConfigPath returns the default config file path
// Searches /etc/postgres-schema-mcp/ first, then binary directory
func GetDefaultConfigPath(binaryPath string) string {
	systemPath := "/etc/postgres-schema-mcp/postgres-schema-mcp.yaml"
	if _, err := os.Stat(systemPath); err == nil {
		return systemPath
	}

	dir := filepath.Dir(binaryPath)
	return filepath.Join(dir, "postgres-schema-mcp.yaml")
}

// ConfigFileExists checks if a config file exists at the given path
func ConfigFileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// BuildConnectionString creates a PostgreSQL connection URL from DatabaseConfig.
// If password is not set, pgx will look it up from the .pgpass file.
func (cfg *DatabaseConfig) BuildConnectionString() string {
	u := &url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:   "/" + cfg.Database,
	}
	if cfg.Password != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	} else {
		u.User = url.User(cfg.User)
	}

	query := url.Values{}
	if cfg.SSLMode != "" {
		query.Set("sslmode", cfg.SSLMode)
	}
	if cfg.ApplicationName != "" {
		query.Set("application_name", cfg.ApplicationName)
	}
	u.RawQuery = query.Encode()

	return u.String()
}

// MaxConnIdleTime returns the parsed idle timeout, or zero when unset
func (cfg *DatabaseConfig) MaxConnIdleTime() time.Duration {
	if cfg.PoolMaxConnIdleTime == "" {
		return 0
	}
	d, err := time.ParseDuration(cfg.PoolMaxConnIdleTime)
	if err != nil {
		return 0
	}
	return d
}
