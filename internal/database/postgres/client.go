// Package postgres stores the sync run history in PostgreSQL.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var errNotConnected = errors.New("postgres: not connected")

// Config holds PostgreSQL connection settings. The CLI runs one job at a
// time, so the pool stays small.
type Config struct {
	Host        string
	Port        int
	Database    string
	Username    string
	Password    string
	SSLMode     string
	MaxConns    int32
	MinConns    int32
	MaxConnLife time.Duration
	MaxConnIdle time.Duration
}

// DefaultConfig returns a local configuration
func DefaultConfig() *Config {
	return &Config{
		Host:        "localhost",
		Port:        5432,
		Database:    "pimsync",
		SSLMode:     "prefer",
		MaxConns:    4,
		MinConns:    1,
		MaxConnLife: time.Hour,
		MaxConnIdle: 30 * time.Minute,
	}
}

// ConfigFromSettings builds a Config from the config file section, reading
// credentials from the named environment variables
func ConfigFromSettings(host string, port int, database, sslMode, usernameEnv, passwordEnv string) *Config {
	cfg := DefaultConfig()
	cfg.Username = os.Getenv(usernameEnv)
	cfg.Password = os.Getenv(passwordEnv)
	if host != "" {
		cfg.Host = host
	}
	if port > 0 {
		cfg.Port = port
	}
	if database != "" {
		cfg.Database = database
	}
	if sslMode != "" {
		cfg.SSLMode = sslMode
	}
	return cfg
}

// Client owns the connection pool and the schema migrations
type Client struct {
	pool   *pgxpool.Pool
	config *Config
}

// NewClient creates an unconnected client
func NewClient(cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Client{config: cfg}
}

// buildConnectionString returns the URL used by both pgx and golang-migrate
func (c *Client) buildConnectionString() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.config.Username, c.config.Password),
		Host:     c.config.Host + ":" + strconv.Itoa(c.config.Port),
		Path:     "/" + c.config.Database,
		RawQuery: url.Values{"sslmode": {c.config.SSLMode}}.Encode(),
	}
	return u.String()
}

// Connect opens the pool and pings the server
func (c *Client) Connect(ctx context.Context) error {
	poolConfig, err := pgxpool.ParseConfig(c.buildConnectionString())
	if err != nil {
		return fmt.Errorf("invalid connection settings: %w", err)
	}
	poolConfig.MaxConns = c.config.MaxConns
	poolConfig.MinConns = c.config.MinConns
	poolConfig.MaxConnLifetime = c.config.MaxConnLife
	poolConfig.MaxConnIdleTime = c.config.MaxConnIdle

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("failed to reach PostgreSQL at %s:%d: %w", c.config.Host, c.config.Port, err)
	}

	c.pool = pool
	return nil
}

// Close releases the pool
func (c *Client) Close() {
	if c.pool != nil {
		c.pool.Close()
		c.pool = nil
	}
}

// db returns the pool or errNotConnected
func (c *Client) db() (*pgxpool.Pool, error) {
	if c.pool == nil {
		return nil, errNotConnected
	}
	return c.pool, nil
}

// Ping checks if the pool can reach the server
func (c *Client) Ping(ctx context.Context) error {
	pool, err := c.db()
	if err != nil {
		return err
	}
	return pool.Ping(ctx)
}

// Stats returns pool statistics, or nil when not connected
func (c *Client) Stats() *pgxpool.Stat {
	if c.pool == nil {
		return nil
	}
	return c.pool.Stat()
}

// withMigrator runs fn against the embedded migrations
func (c *Client) withMigrator(fn func(*migrate.Migrate) error) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, c.buildConnectionString())
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()
	return fn(m)
}

// RunMigrations applies every pending migration
func (c *Client) RunMigrations() error {
	return c.withMigrator(func(m *migrate.Migrate) error {
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migration failed: %w", err)
		}
		return nil
	})
}

// MigrationVersion returns the applied version; 0 when nothing was applied
func (c *Client) MigrationVersion() (version uint, dirty bool, err error) {
	err = c.withMigrator(func(m *migrate.Migrate) error {
		var verr error
		version, dirty, verr = m.Version()
		if errors.Is(verr, migrate.ErrNilVersion) {
			return nil
		}
		return verr
	})
	return version, dirty, err
}

// RollbackMigration reverts the most recent migration
func (c *Client) RollbackMigration() error {
	return c.withMigrator(func(m *migrate.Migrate) error {
		if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("rollback failed: %w", err)
		}
		return nil
	})
}

// TableStats is the size of one sync table
type TableStats struct {
	TableName string
	RowCount  int64
	Size      string
}

// GetTableStats returns row counts and sizes of the sync_* tables
func (c *Client) GetTableStats(ctx context.Context) ([]TableStats, error) {
	pool, err := c.db()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, `
		SELECT relname, n_live_tup, pg_size_pretty(pg_total_relation_size(relid))
		FROM pg_stat_user_tables
		WHERE schemaname = 'public' AND relname LIKE 'sync_%'
		ORDER BY n_live_tup DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query table stats: %w", err)
	}
	defer rows.Close()

	var stats []TableStats
	for rows.Next() {
		var s TableStats
		if err := rows.Scan(&s.TableName, &s.RowCount, &s.Size); err != nil {
			return nil, fmt.Errorf("failed to scan table stats: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// DatabaseInfo describes the connected database
type DatabaseInfo struct {
	Version        string
	DatabaseName   string
	DatabaseSize   string
	ConnectionsMax int
	ConnectionsNow int
}

// GetDatabaseInfo reads server version, size and connection usage in one query
func (c *Client) GetDatabaseInfo(ctx context.Context) (*DatabaseInfo, error) {
	pool, err := c.db()
	if err != nil {
		return nil, err
	}

	info := &DatabaseInfo{}
	err = pool.QueryRow(ctx, `
		SELECT
			version(),
			current_database(),
			pg_size_pretty(pg_database_size(current_database())),
			(SELECT setting::int FROM pg_settings WHERE name = 'max_connections'),
			(SELECT count(*)::int FROM pg_stat_activity WHERE datname = current_database())
	`).Scan(&info.Version, &info.DatabaseName, &info.DatabaseSize, &info.ConnectionsMax, &info.ConnectionsNow)
	if err != nil {
		return nil, fmt.Errorf("failed to read database info: %w", err)
	}
	return info, nil
}
