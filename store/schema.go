package store

import "context"

// createOrder is the table creation order satisfying every foreign
// key in §6's persisted schema; dropOrder is its reverse.
var createOrder = []string{
	`CREATE TABLE IF NOT EXISTS backends (
		uuid VARCHAR(36) PRIMARY KEY,
		address VARCHAR(255) NOT NULL,
		user VARCHAR(128) NOT NULL,
		passwd VARCHAR(255) NOT NULL,
		status VARCHAR(16) NOT NULL,
		mode VARCHAR(16) NOT NULL DEFAULT 'OFFLINE',
		weight DOUBLE NOT NULL DEFAULT 1.0,
		server_id BIGINT UNSIGNED NOT NULL DEFAULT 0,
		version VARCHAR(64) NOT NULL DEFAULT '',
		gtid_enabled BOOL NOT NULL DEFAULT FALSE,
		binlog_enabled BOOL NOT NULL DEFAULT FALSE,
		read_only BOOL NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS groups (
		id VARCHAR(128) PRIMARY KEY,
		description VARCHAR(255) NOT NULL DEFAULT '',
		master_uuid VARCHAR(36) NULL,
		status VARCHAR(16) NOT NULL DEFAULT 'ACTIVE',
		FOREIGN KEY (master_uuid) REFERENCES backends(uuid)
	)`,
	`CREATE TABLE IF NOT EXISTS group_members (
		group_id VARCHAR(128) NOT NULL,
		backend_uuid VARCHAR(36) NOT NULL,
		PRIMARY KEY (group_id, backend_uuid),
		FOREIGN KEY (group_id) REFERENCES groups(id),
		FOREIGN KEY (backend_uuid) REFERENCES backends(uuid)
	)`,
	`CREATE TABLE IF NOT EXISTS global_to_shard (
		group_id VARCHAR(128) PRIMARY KEY,
		master_group_id VARCHAR(128) NOT NULL,
		FOREIGN KEY (master_group_id) REFERENCES groups(id)
	)`,
	`CREATE TABLE IF NOT EXISTS shard_to_global (
		group_id VARCHAR(128) NOT NULL,
		slave_group_id VARCHAR(128) NOT NULL UNIQUE,
		PRIMARY KEY (group_id, slave_group_id)
	)`,
	`CREATE TABLE IF NOT EXISTS shard_maps (
		id INTEGER PRIMARY KEY AUTO_INCREMENT,
		type ENUM('RANGE','HASH','RANGE_STRING','RANGE_DATETIME') NOT NULL,
		global_group VARCHAR(128) NOT NULL,
		FOREIGN KEY (global_group) REFERENCES groups(id)
	)`,
	`CREATE TABLE IF NOT EXISTS shard_tables (
		map_id INTEGER NOT NULL,
		table_name VARCHAR(255) NOT NULL,
		column_name VARCHAR(255) NOT NULL,
		PRIMARY KEY (table_name, column_name),
		FOREIGN KEY (map_id) REFERENCES shard_maps(id)
	)`,
	`CREATE TABLE IF NOT EXISTS shards (
		id INTEGER PRIMARY KEY AUTO_INCREMENT,
		group_id VARCHAR(128) NOT NULL UNIQUE,
		map_id INTEGER NOT NULL,
		state ENUM('PENDING','ENABLED','DISABLED','REMOVED') NOT NULL,
		FOREIGN KEY (group_id) REFERENCES groups(id),
		FOREIGN KEY (map_id) REFERENCES shard_maps(id)
	)`,
	`CREATE TABLE IF NOT EXISTS shard_ranges (
		map_id INTEGER NOT NULL,
		lower_bound VARBINARY(255) NOT NULL,
		shard_id INTEGER NOT NULL,
		UNIQUE (map_id, lower_bound),
		FOREIGN KEY (map_id) REFERENCES shard_maps(id),
		FOREIGN KEY (shard_id) REFERENCES shards(id)
	)`,
}

var dropOrder = []string{
	"DROP TABLE IF EXISTS shard_ranges",
	"DROP TABLE IF EXISTS shards",
	"DROP TABLE IF EXISTS shard_tables",
	"DROP TABLE IF EXISTS shard_maps",
	"DROP TABLE IF EXISTS shard_to_global",
	"DROP TABLE IF EXISTS global_to_shard",
	"DROP TABLE IF EXISTS group_members",
	"DROP TABLE IF EXISTS groups",
	"DROP TABLE IF EXISTS backends",
}

// Migrate creates every table in §6's persisted schema, in an order
// that satisfies every declared foreign key.
func (g *Gateway) Migrate(ctx context.Context) error {
	for _, ddl := range createOrder {
		if _, err := g.db.ExecContext(ctx, ddl); err != nil {
			return err
		}
	}
	return nil
}

// DropAll drops every table in reverse dependency order. Used by
// tests.
func (g *Gateway) DropAll(ctx context.Context) error {
	for _, ddl := range dropOrder {
		if _, err := g.db.ExecContext(ctx, ddl); err != nil {
			return err
		}
	}
	return nil
}
