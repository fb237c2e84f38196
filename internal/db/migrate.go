package db

import (
	"context"
	"fmt"
	"regexp"

	"github.com/ClickHouse/clickhouse-go/v2"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// RunMigrations ensures the event table exists. This keeps the service
// self-contained without an external migration step.
func RunMigrations(ctx context.Context, conn clickhouse.Conn, table string) error {
	if !tableNamePattern.MatchString(table) {
		return fmt.Errorf("invalid table name %q", table)
	}
	err := conn.Exec(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s
(
	type                            LowCardinality(String),
	repository_fullname             String,
	repository_fullname_and_number  String,
	author                          String,
	on_author                       String DEFAULT '',
	created_at                      DateTime64(3, 'UTC'),
	on_created_at                   DateTime64(3, 'UTC'),
	approval                        String DEFAULT '',
	state                           LowCardinality(String) DEFAULT '',
	duration                        Int64 DEFAULT 0
)
ENGINE = MergeTree
PARTITION BY toYYYYMM(created_at)
ORDER BY (repository_fullname, type, created_at)
SETTINGS
    index_granularity = 8192;
`, table))
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
