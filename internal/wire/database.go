package wire

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/wire"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/faultline/faultline/internal/config"
)

// PostgresDB wraps the connection pool with its cleanup function.
type PostgresDB struct {
	Pool    *pgxpool.Pool
	Cleanup func()
}

// ClickHouseDB wraps the ClickHouse connection with its cleanup function.
type ClickHouseDB struct {
	Conn    driver.Conn
	Cleanup func()
}

// DatabaseSet provides database connections.
var DatabaseSet = wire.NewSet(
	ProvidePostgresDB,
	ProvideClickHouseConn,
	wire.FieldsOf(new(*PostgresDB), "Pool"),
	wire.FieldsOf(new(*ClickHouseDB), "Conn"),
)

// ProvidePostgresDB creates a PostgreSQL connection pool.
func ProvidePostgresDB(cfg *config.Config) (*PostgresDB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.Postgres.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.Postgres.MaxOpenConns)
	poolConfig.MaxConnLifetime = cfg.Postgres.ConnMaxLifetime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return &PostgresDB{
		Pool: pool,
		Cleanup: func() {
			pool.Close()
		},
	}, nil
}

// ProvideClickHouseConn creates a ClickHouse database connection.
func ProvideClickHouseConn(cfg *config.Config) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.ClickHouse.Host, cfg.ClickHouse.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.ClickHouse.Database,
			Username: cfg.ClickHouse.User,
			Password: cfg.ClickHouse.Password,
		},
		DialTimeout: cfg.ClickHouse.DialTimeout,
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		MaxOpenConns: cfg.ClickHouse.MaxOpenConn,
		MaxIdleConns: cfg.ClickHouse.MaxIdleConn,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open clickhouse connection: %w", err)
	}

	if err := conn.Ping(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	return &ClickHouseDB{
		Conn: conn,
		Cleanup: func() {
			conn.Close()
		},
	}, nil
}
