// Package topology holds the in-memory model of Backends, Groups,
// Shard Mappings, Shards and Range/Hash entries described in the data
// model. Instances here are caches: the state store (package store) is
// the sole authority, and every mutation is persisted inside the
// procedure step that causes it. IDs, not pointers, represent the
// cyclic Group<->Backend relationship; callers dereference through a
// Cache keyed by id.
package topology

import "time"

// BackendStatus is the lifecycle status of a Backend.
type BackendStatus string

const (
	StatusPrimary    BackendStatus = "PRIMARY"
	StatusSecondary  BackendStatus = "SECONDARY"
	StatusSpare      BackendStatus = "SPARE"
	StatusFaulty     BackendStatus = "FAULTY"
	StatusRecovering BackendStatus = "RECOVERING"
	StatusOffline    BackendStatus = "OFFLINE"
)

// BackendMode controls whether a backend currently accepts reads,
// writes, both or neither.
type BackendMode string

const (
	ModeOffline   BackendMode = "OFFLINE"
	ModeReadOnly  BackendMode = "READ_ONLY"
	ModeWriteOnly BackendMode = "WRITE_ONLY"
	ModeReadWrite BackendMode = "READ_WRITE"
)

// GroupStatus controls whether the failure detector monitors a group.
type GroupStatus string

const (
	GroupActive   GroupStatus = "ACTIVE"
	GroupInactive GroupStatus = "INACTIVE"
)

// ShardState is the lifecycle state of a Shard.
type ShardState string

const (
	ShardPending  ShardState = "PENDING"
	ShardEnabled  ShardState = "ENABLED"
	ShardDisabled ShardState = "DISABLED"
	ShardRemoved  ShardState = "REMOVED"
)

// ShardingType selects the comparator and bound encoding a mapping uses.
type ShardingType string

const (
	TypeRange         ShardingType = "RANGE"
	TypeHash          ShardingType = "HASH"
	TypeRangeString   ShardingType = "RANGE_STRING"
	TypeRangeDatetime ShardingType = "RANGE_DATETIME"
)

// Backend is a single relational database server instance.
type Backend struct {
	UUID         string        `db:"uuid" json:"uuid"`
	Address      string        `db:"address" json:"address"`
	User         string        `db:"user" json:"user"`
	Passwd       string        `db:"passwd" json:"-"`
	Status       BackendStatus `db:"status" json:"status"`
	Mode         BackendMode   `db:"mode" json:"mode"`
	GroupID      *string       `db:"group_id" json:"groupId,omitempty"`
	Weight       float64       `db:"weight" json:"weight"`
	ServerID     uint64        `db:"server_id" json:"serverId"`
	Version      string        `db:"version" json:"version"`
	GtidEnabled  bool          `db:"gtid_enabled" json:"gtidEnabled"`
	BinlogOn     bool          `db:"binlog_enabled" json:"binlogEnabled"`
	ReadOnly     bool          `db:"read_only" json:"readOnly"`
	CreatedAt    time.Time     `db:"created_at" json:"createdAt"`
}

// Group is a named set of backends forming one replication unit.
type Group struct {
	ID          string      `db:"id" json:"id"`
	Description string      `db:"description" json:"description"`
	Master      *string     `db:"master_uuid" json:"master,omitempty"`
	Status      GroupStatus `db:"status" json:"status"`
}

// Key returns the group's id.
func (g *Group) Key() string { return g.ID }

// ShardMapping is the definition attaching tables to a sharding type
// and a global group.
type ShardMapping struct {
	ID            int64        `db:"id" json:"id"`
	Type          ShardingType `db:"type" json:"type"`
	GlobalGroupID string       `db:"global_group" json:"globalGroup"`
}

// ShardTable is one (table, sharding column) tuple attached to a mapping.
type ShardTable struct {
	MapID      int64  `db:"map_id" json:"mapId"`
	TableName  string `db:"table_name" json:"table"`
	ColumnName string `db:"column_name" json:"column"`
}

// Shard is a partition of the rows of all tables in one mapping.
type Shard struct {
	ID      int64      `db:"id" json:"id"`
	GroupID string     `db:"group_id" json:"groupId"`
	MapID   int64      `db:"map_id" json:"mapId"`
	State   ShardState `db:"state" json:"state"`
	// LowerBound is the raw persisted bound: the typed RANGE* value
	// encoded as a string, or the 16-byte MD5 digest for HASH, hex
	// encoded for storage/display.
	LowerBound string `db:"lower_bound" json:"lowerBound"`
}
