// Package replication defines the Replication Driver contract surface
// the HA and Sharding components consume, and a MySQL/MariaDB-dialect
// implementation over the connection pool. The lower-level database
// driver that runs SQL against backends is out of scope per spec.md
// §1; this package is the thin contract layer spec.md §4.3 asks for.
package replication

import (
	"context"
	"time"
)

// GtidSet is an opaque, comparable representation of a GTID set. The
// concrete encoding (MariaDB sequence numbers vs MySQL UUID:interval
// sets) is a driver implementation detail; callers only need Executed
// counts via Diff.
type GtidSet struct {
	Executed string
	Purged   string
	Owned    string
}

// WaitResult is the outcome of a bounded replication wait.
type WaitResult string

const (
	WaitOK      WaitResult = "ok"
	WaitTimeout WaitResult = "timeout"
)

// Driver is the replication control surface consumed by ha and
// sharding. Backend is addressed by DSN; concrete drivers resolve it
// through the connection pool.
type Driver interface {
	GetGtidStatus(ctx context.Context, backendDSN string) (GtidSet, error)

	// DiffExecuted returns the count of transactions b has executed
	// that a has not, used to rank candidates by freshness.
	DiffExecuted(ctx context.Context, a, b GtidSet) (int, error)

	// CheckMasterIssues returns reasons backendDSN cannot serve writes
	// (no binlog, no gtid, insufficient privilege, ...), empty if none.
	CheckMasterIssues(ctx context.Context, backendDSN string) ([]string, error)

	// CheckSlaveIssues returns reasons sql/io threads are stopped or
	// lagging, empty if none.
	CheckSlaveIssues(ctx context.Context, backendDSN string) ([]string, error)

	// SlaveHasMaster returns the uuid of the backend backendDSN
	// currently replicates from, or "" if it is not a slave.
	SlaveHasMaster(ctx context.Context, backendDSN string) (string, error)

	SwitchMaster(ctx context.Context, slaveDSN, masterDSN, replUser, replPasswd string) error
	StartSlave(ctx context.Context, backendDSN string, wait bool) error
	StopSlave(ctx context.Context, backendDSN string, wait bool) error
	ResetSlave(ctx context.Context, backendDSN string, clean bool) error

	WaitForGtid(ctx context.Context, slaveDSN string, target GtidSet, timeout time.Duration) (WaitResult, error)
}
