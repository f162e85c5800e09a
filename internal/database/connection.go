/*-------------------------------------------------------------------------
 *
 * Postgres Schema MCP Server
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package database

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"postgres-schema-mcp/internal/config"
)

// DefaultApplicationName is reported in pg_stat_activity when the
// connection string does not name one
const DefaultApplicationName = "postgres-schema-mcp"

// Querier runs one statement and returns its full result set
type Querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (*Result, error)
}

// Client owns the process-wide connection pool
type Client struct {
	connStr  string
	dbConfig *config.DatabaseConfig
	pool     *pgxpool.Pool
	mu       sync.RWMutex
}

var _ Querier = (*Client)(nil)

// NewClient creates a client whose connection string is built from dbConfig
func NewClient(dbConfig *config.DatabaseConfig) *Client {
	c := &Client{dbConfig: dbConfig}
	if dbConfig != nil {
		c.connStr = dbConfig.BuildConnectionString()
	}
	return c
}

// NewClientWithConnectionString creates a client for an explicit connection
// string; dbConfig only contributes pool settings and may be nil
func NewClientWithConnectionString(connStr string, dbConfig *config.DatabaseConfig) *Client {
	return &Client{
		connStr:  connStr,
		dbConfig: dbConfig,
	}
}

// ConnectionString returns the connection string with the password masked
func (c *Client) ConnectionString() string {
	return sanitizeConnStr(c.connStr)
}

// Connect creates the pool. No connection is opened until the first
// statement, so an unreachable server is reported by Ping or Query rather
// than here.
func (c *Client) Connect(ctx context.Context) error {
	startTime := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pool != nil {
		return nil
	}
	if c.connStr == "" {
		return fmt.Errorf("no database connection configured")
	}

	appName := DefaultApplicationName
	if c.dbConfig != nil && c.dbConfig.ApplicationName != "" {
		appName = c.dbConfig.ApplicationName
	}
	enhancedConnStr, err := addApplicationName(c.connStr, appName)
	if err != nil {
		return fmt.Errorf("unable to enhance connection string: %w", err)
	}

	poolConfig, err := pgxpool.ParseConfig(enhancedConnStr)
	if err != nil {
		return fmt.Errorf("unable to parse connection string: %w", err)
	}

	if c.dbConfig != nil {
		if c.dbConfig.PoolMaxConns > 0 {
			poolConfig.MaxConns = int32(c.dbConfig.PoolMaxConns)
		}
		if c.dbConfig.PoolMinConns > 0 {
			poolConfig.MinConns = int32(c.dbConfig.PoolMinConns)
		}
		if idle := c.dbConfig.MaxConnIdleTime(); idle > 0 {
			poolConfig.MaxConnIdleTime = idle
		}
	}

	// Every session starts read-only; Query additionally opens each
	// transaction READ ONLY
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = make(map[string]string)
	}
	poolConfig.ConnConfig.RuntimeParams["default_transaction_read_only"] = "on"

	LogConnectionDetails(c.connStr, poolConfig.MaxConns, poolConfig.MinConns, poolConfig.MaxConnIdleTime)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		LogConnection(c.connStr, time.Since(startTime), err)
		return fmt.Errorf("unable to create connection pool: %w", err)
	}

	c.pool = pool
	LogConnection(c.connStr, time.Since(startTime), nil)
	return nil
}

// addApplicationName adds application_name to a URL-style connection
// string unless it is already present. Keyword/value strings are
// returned unchanged.
func addApplicationName(connStr, appName string) (string, error) {
	if !strings.Contains(connStr, "://") {
		return connStr, nil
	}

	u, err := url.Parse(connStr)
	if err != nil {
		return "", fmt.Errorf("invalid connection string: %w", err)
	}

	query := u.Query()
	if !query.Has("application_name") {
		query.Set("application_name", appName)
		u.RawQuery = query.Encode()
	}

	return u.String(), nil
}

func (c *Client) getPool() *pgxpool.Pool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pool
}

// Ping runs a trivial statement to prove the server is reachable
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Query(ctx, "SELECT 1")
	return err
}

// Query runs sql inside a read-only transaction and collects every row.
// Values are normalized for JSON; failures are returned as *Error.
func (c *Client) Query(ctx context.Context, sql string, args ...interface{}) (*Result, error) {
	pool := c.getPool()
	if pool == nil {
		return nil, ErrNotConnected
	}

	startTime := time.Now()
	LogQueryDetails(sql, args)
	LogQueryTrace(sql, args)

	result, err := runReadOnly(ctx, pool, sql, args)

	rowCount := 0
	if result != nil {
		rowCount = len(result.Rows)
	}
	LogQuery(sql, time.Since(startTime), rowCount, err)

	if err != nil {
		return nil, newError(err)
	}
	return result, nil
}

func runReadOnly(ctx context.Context, pool *pgxpool.Pool, sql string, args []interface{}) (*Result, error) {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, err
	}
	// Nothing is ever written, so the transaction always ends in rollback.
	// The rollback must still run after ctx is cancelled.
	defer func() {
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fieldDescriptions := rows.FieldDescriptions()
	columns := make([]string, len(fieldDescriptions))
	for i, fd := range fieldDescriptions {
		columns[i] = fd.Name
	}

	result := &Result{
		Columns: columns,
		Rows:    make([]Row, 0),
	}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		for i := range values {
			values[i] = NormalizeValue(values[i])
		}
		result.Rows = append(result.Rows, NewRow(columns, values))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// LogStats writes current pool statistics to the database log
func (c *Client) LogStats() {
	pool := c.getPool()
	if pool == nil {
		return
	}
	stat := pool.Stat()
	LogPoolStats(c.connStr, stat.AcquiredConns(), stat.IdleConns(), stat.MaxConns())
}

// Close closes the pool; Query fails with ErrNotConnected afterwards
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pool != nil {
		c.pool.Close()
		c.pool = nil
	}
}
