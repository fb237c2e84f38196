package db

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"go.uber.org/zap"

	"review-metrics-service/internal/config"
)

// NewConnection opens a ClickHouse connection pool and checks it is reachable.
func NewConnection(ctx context.Context, cfg *config.Config, logger *zap.Logger) (clickhouse.Conn, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.ClickHouseAddr},
		Auth: clickhouse.Auth{
			Database: cfg.ClickHouseDatabase,
			Username: cfg.ClickHouseUsername,
			Password: cfg.ClickHousePassword,
		},
		MaxOpenConns:    cfg.ClickHouseMaxConns,
		MaxIdleConns:    cfg.ClickHouseMaxConns,
		ConnMaxLifetime: cfg.ClickHouseConnMaxLifetime,
		DialTimeout:     10 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	if cfg.AppMode == "benchmark" {
		logger.Info("clickhouse pool configured",
			zap.Int("max_conns", cfg.ClickHouseMaxConns),
			zap.Duration("conn_max_lifetime", cfg.ClickHouseConnMaxLifetime),
		)
	}
	return conn, nil
}
