/*-------------------------------------------------------------------------
 *
 * Postgres Schema MCP Server
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"postgres-schema-mcp/internal/auth"
	"postgres-schema-mcp/internal/config"
	"postgres-schema-mcp/internal/database"
	"postgres-schema-mcp/internal/logging"
	"postgres-schema-mcp/internal/mcp"
	"postgres-schema-mcp/internal/tools"
)

const (
	// startupProbeTimeout bounds the initial SELECT 1
	startupProbeTimeout = 10 * time.Second

	// Token cleanup configuration
	tokenCleanupInterval = 5 * time.Minute // How often to check for expired tokens
)

var (
	configFile  string
	envFile     string
	httpMode    bool
	httpAddr    string
	tlsMode     bool
	certFile    string
	keyFile     string
	chainFile   string
	authMode    bool
	noAuth      bool
	tokenFile   string
	debug       bool
	logLevel    string
	dbHost      string
	dbPort      int
	dbName      string
	dbUser      string
	dbPassword  string
	dbSSLMode   string
	showVersion bool
)

var rootCmd = &cobra.Command{
	Use:   "postgres-schema-mcp",
	Short: "Read-only PostgreSQL schema and query tools over MCP",
	Long: `postgres-schema-mcp exposes four read-only tools (list_tables, describe_table,
sample_rows and run_select) to Model Context Protocol clients.

It speaks line-delimited JSON-RPC on stdin/stdout by default, or serves a
stateless HTTP endpoint with --http. Every statement runs in a read-only
transaction.`,
	Args: cobra.NoArgs,
	RunE: run,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVarP(&configFile, "config", "c", "", "Path to configuration file")
	flags.StringVar(&envFile, "env-file", "", "Path to a .env file (default: ./.env when present)")
	flags.BoolVar(&httpMode, "http", false, "Enable HTTP transport mode (default: stdio)")
	flags.StringVar(&httpAddr, "addr", "", "HTTP server address (default :3333)")
	flags.BoolVar(&tlsMode, "tls", false, "Enable TLS/HTTPS (requires --http)")
	flags.StringVar(&certFile, "cert", "", "Path to TLS certificate file")
	flags.StringVar(&keyFile, "key", "", "Path to TLS key file")
	flags.StringVar(&chainFile, "chain", "", "Path to TLS certificate chain file (optional)")
	flags.BoolVar(&authMode, "auth", false, "Require API bearer tokens in HTTP mode")
	flags.BoolVar(&noAuth, "no-auth", false, "Disable API token authentication in HTTP mode")
	flags.BoolVar(&debug, "debug", false, "Enable debug logging")
	flags.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.BoolVar(&showVersion, "version", false, "Print the version and exit")

	// Database connection flags
	flags.StringVar(&dbHost, "db-host", "", "Database host")
	flags.IntVar(&dbPort, "db-port", 0, "Database port")
	flags.StringVar(&dbName, "db-name", "", "Database name")
	flags.StringVar(&dbUser, "db-user", "", "Database user")
	flags.StringVar(&dbPassword, "db-password", "", "Database password (prefer PGPASSWORD or .pgpass)")
	flags.StringVar(&dbSSLMode, "db-sslmode", "", "Database SSL mode (disable, prefer, require, verify-ca, verify-full)")

	rootCmd.MarkFlagsMutuallyExclusive("auth", "no-auth")

	rootCmd.PersistentFlags().StringVar(&tokenFile, "token-file", "", "Path to API token file")
	rootCmd.AddCommand(newTokenCommand())
}

func main() {
	// Usage is shown for flag parse errors, but suppressed for runtime errors
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// collectFlags records which flags were given explicitly so that they
// override the file and the environment, and nothing else does
func collectFlags(cmd *cobra.Command, execPath string) config.CLIFlags {
	changed := cmd.Flags().Changed
	cliFlags := config.CLIFlags{
		ConfigFileSet: changed("config"),
		ConfigFile:    configFile,
		EnvFileSet:    changed("env-file"),
		EnvFile:       envFile,

		HTTPEnabledSet: changed("http"),
		HTTPEnabled:    httpMode,
		HTTPAddrSet:    changed("addr"),
		HTTPAddr:       httpAddr,

		TLSEnabledSet: changed("tls"),
		TLSEnabled:    tlsMode,
		TLSCertSet:    changed("cert"),
		TLSCertFile:   certFile,
		TLSKeySet:     changed("key"),
		TLSKeyFile:    keyFile,
		TLSChainSet:   changed("chain"),
		TLSChainFile:  chainFile,

		AuthTokenSet:     changed("token-file"),
		AuthTokenFile:    tokenFile,
		DefaultTokenFile: auth.GetDefaultTokenPath(execPath),

		DBHostSet:  changed("db-host"),
		DBHost:     dbHost,
		DBPortSet:  changed("db-port"),
		DBPort:     dbPort,
		DBNameSet:  changed("db-name"),
		DBName:     dbName,
		DBUserSet:  changed("db-user"),
		DBUser:     dbUser,
		DBPassSet:  changed("db-password"),
		DBPassword: dbPassword,
		DBSSLSet:   changed("db-sslmode"),
		DBSSLMode:  dbSSLMode,
	}

	switch {
	case changed("auth"):
		cliFlags.AuthEnabledSet = true
		cliFlags.AuthEnabled = authMode
	case changed("no-auth"):
		cliFlags.AuthEnabledSet = true
		cliFlags.AuthEnabled = !noAuth // Invert because it's "no-auth"
	}

	switch {
	case changed("log-level"):
		cliFlags.LogLevelSet = true
		cliFlags.LogLevel = logLevel
	case debug:
		cliFlags.LogLevelSet = true
		cliFlags.LogLevel = "debug"
	}

	return cliFlags
}

func run(cmd *cobra.Command, args []string) error {
	// Suppress usage for runtime errors (flags have already been parsed by this point)
	cmd.SilenceUsage = true

	if showVersion {
		fmt.Printf("%s %s\n", mcp.ServerName, mcp.ServerVersion)
		return nil
	}

	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	// Validate basic flag dependencies before loading full config
	if !httpMode && (tlsMode || certFile != "" || keyFile != "" || chainFile != "") {
		return fmt.Errorf("TLS options (--tls, --cert, --key, --chain) require --http")
	}

	cliFlags := collectFlags(cmd, execPath)

	// Only the default config path may be missing
	configPath := configFile
	if !cliFlags.ConfigFileSet {
		configPath = config.GetDefaultConfigPath(execPath)
		if !config.ConfigFileExists(configPath) {
			configPath = ""
		}
	}

	cfg, err := config.LoadConfig(configPath, cliFlags)
	if err != nil {
		return err
	}

	if err := logging.Configure(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		return err
	}
	database.SetLogLevel(database.ParseLogLevel(cfg.Logging.DBLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db := database.NewClient(&cfg.Database)
	if err := db.Connect(ctx); err != nil {
		return fmt.Errorf("failed to configure database pool: %w", err)
	}
	defer db.Close()

	probeDatabase(ctx, db)

	server := mcp.NewServer(tools.NewSchemaRegistry(db, cfg.Tools))

	if cfg.HTTP.Enabled {
		err = serveHTTP(ctx, server, cfg)
	} else {
		err = serveStdio(ctx, server)
	}
	db.LogStats()
	return err
}

// probeDatabase checks connectivity once. A failure is only logged; the
// first tool call reports it again.
func probeDatabase(ctx context.Context, db *database.Client) {
	probeCtx, cancel := context.WithTimeout(ctx, startupProbeTimeout)
	defer cancel()

	if err := db.Ping(probeCtx); err != nil {
		logging.Error("database_probe_failed", "target", db.ConnectionString(), "error", err)
		return
	}
	logging.Info("database_connected", "target", db.ConnectionString())
}

func serveStdio(ctx context.Context, server *mcp.Server) error {
	logging.Info("server_starting", "mode", "stdio", "version", mcp.ServerVersion)

	// A read from stdin cannot be interrupted, so a signal ends the process
	// without waiting for the loop
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run(ctx)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	case <-ctx.Done():
		logging.Info("server_stopping", "mode", "stdio")
		return nil
	}
}

func serveHTTP(ctx context.Context, server *mcp.Server, cfg *config.Config) error {
	httpConfig := &mcp.HTTPConfig{
		Addr:        cfg.HTTP.Address,
		Path:        cfg.HTTP.Path,
		TLSEnable:   cfg.HTTP.TLS.Enabled,
		CertFile:    cfg.HTTP.TLS.CertFile,
		KeyFile:     cfg.HTTP.TLS.KeyFile,
		ChainFile:   cfg.HTTP.TLS.ChainFile,
		AuthEnabled: cfg.HTTP.Auth.Enabled,
	}

	// Verify TLS files exist if HTTPS is enabled
	if cfg.HTTP.TLS.Enabled {
		for _, path := range []string{cfg.HTTP.TLS.CertFile, cfg.HTTP.TLS.KeyFile, cfg.HTTP.TLS.ChainFile} {
			if path == "" {
				continue
			}
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("TLS file not found: %s", path)
			}
		}
	}

	if cfg.HTTP.Auth.Enabled {
		tokenStore, err := openTokenStore(ctx, cfg.HTTP.Auth.TokenFile)
		if err != nil {
			return err
		}
		defer tokenStore.StopWatching()
		httpConfig.TokenStore = tokenStore
	} else {
		logging.Warn("http_auth_disabled")
	}

	logging.Info("server_starting", "mode", "http", "version", mcp.ServerVersion)
	return server.RunHTTP(ctx, httpConfig)
}

// openTokenStore loads the token file, drops expired tokens and keeps the
// store in sync with the file until ctx ends
func openTokenStore(ctx context.Context, path string) (*auth.TokenStore, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("token file not found: %s (create one with '%s token add' or use --no-auth)",
			path, os.Args[0])
	}

	store, err := auth.LoadTokenStore(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load token file: %w", err)
	}
	logging.Info("tokens_loaded", "path", path, "count", store.Count())

	cleanupExpiredTokens(store, path)

	if err := store.StartWatching(); err != nil {
		logging.Warn("token_watch_failed", "path", path, "error", err)
	}

	go func() {
		ticker := time.NewTicker(tokenCleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cleanupExpiredTokens(store, path)
			}
		}
	}()

	return store, nil
}

func cleanupExpiredTokens(store *auth.TokenStore, path string) {
	removed := store.CleanupExpiredTokens()
	if removed == 0 {
		return
	}
	logging.Info("tokens_expired_removed", "count", removed)
	if err := auth.SaveTokenStore(path, store); err != nil {
		logging.Warn("token_file_save_failed", "path", path, "error", err)
	}
}
