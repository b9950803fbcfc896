// Package clickhouse records per-item sync outcomes for failure analytics.
package clickhouse

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

var errNotConnected = errors.New("clickhouse: not connected")

// Config holds ClickHouse connection settings
type Config struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	Secure   bool // TLS on the native protocol
}

// DefaultConfig returns a local, unauthenticated configuration
func DefaultConfig() *Config {
	return &Config{
		Host:     "localhost",
		Port:     9000,
		Database: "pimsync",
	}
}

// ConfigFromSettings builds a Config from the config file section, reading
// credentials from the named environment variables
func ConfigFromSettings(host string, port int, database string, secure bool, usernameEnv, passwordEnv string) *Config {
	cfg := DefaultConfig()
	cfg.Username = os.Getenv(usernameEnv)
	cfg.Password = os.Getenv(passwordEnv)
	cfg.Secure = secure
	if host != "" {
		cfg.Host = host
	}
	if port > 0 {
		cfg.Port = port
	}
	if database != "" {
		cfg.Database = database
	}
	return cfg
}

func (cfg *Config) options() *clickhouse.Options {
	opts := &clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Protocol: clickhouse.Native,
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
	}
	if cfg.Secure {
		opts.TLS = &tls.Config{ServerName: cfg.Host}
	}
	return opts
}

// Client is a ClickHouse connection for sync events
type Client struct {
	conn   driver.Conn
	config *Config
}

// NewClient creates an unconnected client
func NewClient(cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Client{config: cfg}
}

// Connect opens the connection and pings the server
func (c *Client) Connect(ctx context.Context) error {
	conn, err := clickhouse.Open(c.config.options())
	if err != nil {
		return fmt.Errorf("failed to open connection: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return fmt.Errorf("failed to ping ClickHouse at %s:%d: %w", c.config.Host, c.config.Port, err)
	}
	c.conn = conn
	return nil
}

// Close closes the connection
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// Ping checks if the connection is alive
func (c *Client) Ping(ctx context.Context) error {
	if c.conn == nil {
		return errNotConnected
	}
	return c.conn.Ping(ctx)
}

// schema is applied in order by InitSchema. Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS sync_events (
		run_id UUID,
		action LowCardinality(String),
		product_index Int32,
		product String,
		outcome LowCardinality(String),
		error_type LowCardinality(String) DEFAULT '',
		occurred_at DateTime64(3),
		occurred_date Date
	) ENGINE = MergeTree()
	PARTITION BY toYYYYMM(occurred_date)
	ORDER BY (action, occurred_at, run_id)
	TTL occurred_date + INTERVAL 1 YEAR`,

	`CREATE MATERIALIZED VIEW IF NOT EXISTS sync_daily_mv
	ENGINE = SummingMergeTree()
	PARTITION BY toYYYYMM(date)
	ORDER BY (action, outcome, date)
	AS SELECT
		action,
		outcome,
		toDate(occurred_at) AS date,
		count() AS events
	FROM sync_events
	GROUP BY action, outcome, date`,
}

// InitSchema creates the sync event tables
func (c *Client) InitSchema(ctx context.Context) error {
	if c.conn == nil {
		return errNotConnected
	}
	for i, stmt := range schema {
		if err := c.conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d failed: %w", i+1, err)
		}
	}
	return nil
}

// TableInfo describes one table of the sync database
type TableInfo struct {
	Name      string
	Engine    string
	Rows      uint64
	BytesSize uint64
}

// GetTableInfo lists the tables of the current database, largest first
func (c *Client) GetTableInfo(ctx context.Context) ([]TableInfo, error) {
	if c.conn == nil {
		return nil, errNotConnected
	}

	rows, err := c.conn.Query(ctx, `
		SELECT name, engine, total_rows, total_bytes
		FROM system.tables
		WHERE database = currentDatabase()
		ORDER BY total_bytes DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var tables []TableInfo
	for rows.Next() {
		var (
			t           TableInfo
			rowCount    *uint64
			bytesOnDisk *uint64
		)
		if err := rows.Scan(&t.Name, &t.Engine, &rowCount, &bytesOnDisk); err != nil {
			return nil, fmt.Errorf("failed to scan table: %w", err)
		}
		if rowCount != nil {
			t.Rows = *rowCount
		}
		if bytesOnDisk != nil {
			t.BytesSize = *bytesOnDisk
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}
