package storage

import (
	"context"
	"fmt"
	"net"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/koinlytics-backend/internal/config"
)

// ClickHouseDB wraps the ClickHouse connection
type ClickHouseDB struct {
	conn driver.Conn
}

// NewClickHouseDB opens the archive connection and pings it within the dial timeout
func NewClickHouseDB(cfg *config.ClickHouseConfig) (*ClickHouseDB, error) {
	opts := clickHouseOptions(cfg)
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.DialTimeout)
	defer cancel()

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse at %s: %w", opts.Addr[0], err)
	}

	return &ClickHouseDB{conn: conn}, nil
}

// clickHouseOptions maps the service config onto driver options. Idle connections
// match the open limit since archive writes arrive in bursts at sync time.
func clickHouseOptions(cfg *config.ClickHouseConfig) *clickhouse.Options {
	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 1
	}
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = defaultConnectTimeout
	}

	opts := &clickhouse.Options{
		Addr: []string{net.JoinHostPort(cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		DialTimeout:  dialTimeout,
		MaxOpenConns: maxOpen,
		MaxIdleConns: maxOpen,
	}
	if secs := int(cfg.MaxExecutionTime.Seconds()); secs > 0 {
		opts.Settings = clickhouse.Settings{"max_execution_time": secs}
	}
	return opts
}

// Close closes the ClickHouse connection
func (db *ClickHouseDB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Conn returns the underlying ClickHouse connection
func (db *ClickHouseDB) Conn() driver.Conn {
	return db.conn
}

// Exec executes a query without returning rows
func (db *ClickHouseDB) Exec(ctx context.Context, query string, args ...interface{}) error {
	return db.conn.Exec(ctx, query, args...)
}
