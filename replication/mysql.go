package replication

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"

	"github.com/fabrikd/fabrikd/errs"
	"github.com/fabrikd/fabrikd/pool"
)

// MysqlDriver implements Driver against MySQL/MariaDB backends, pulling
// connections from a shared pool.Pool keyed by the backend's DSN.
type MysqlDriver struct {
	pool *pool.Pool
}

func NewMysqlDriver(p *pool.Pool) *MysqlDriver {
	return &MysqlDriver{pool: p}
}

func (d *MysqlDriver) conn(ctx context.Context, dsn string) (*sqlx.DB, error) {
	conn, err := d.pool.Get(ctx, dsn, dsn)
	if err != nil {
		return nil, errs.Database("ERR-DB-003", err, "connect to backend %s", dsn)
	}
	return conn, nil
}

func (d *MysqlDriver) release(dsn string, conn *sqlx.DB) {
	d.pool.Release(dsn, conn)
}

type masterStatusRow struct {
	ExecutedGtidSet string `db:"Executed_Gtid_Set"`
}

func (d *MysqlDriver) GetGtidStatus(ctx context.Context, backendDSN string) (GtidSet, error) {
	conn, err := d.conn(ctx, backendDSN)
	if err != nil {
		return GtidSet{}, err
	}
	defer d.release(backendDSN, conn)

	var row masterStatusRow
	if err := conn.Unsafe().GetContext(ctx, &row, "SHOW MASTER STATUS"); err != nil {
		return GtidSet{}, errs.InvalidGtid("ERR-GTID-001", "read gtid status on %s: %v", backendDSN, err)
	}

	var purged, owned string
	_ = conn.GetContext(ctx, &purged, "SELECT @@GLOBAL.gtid_purged")
	_ = conn.GetContext(ctx, &owned, "SELECT @@GLOBAL.gtid_owned")

	return GtidSet{Executed: row.ExecutedGtidSet, Purged: purged, Owned: owned}, nil
}

// DiffExecuted counts the transactions present in b's executed set that
// are absent from a's, a coarse distance used only to rank candidates
// relative to one another, not to reconstruct an exact transaction log.
func (d *MysqlDriver) DiffExecuted(ctx context.Context, a, b GtidSet) (int, error) {
	aSet := parseGtidSet(a.Executed)
	bSet := parseGtidSet(b.Executed)
	missing := 0
	for uuid, bRanges := range bSet {
		aRanges, ok := aSet[uuid]
		if !ok {
			missing += countIntervals(bRanges)
			continue
		}
		missing += countIntervals(subtractIntervals(bRanges, aRanges))
	}
	return missing, nil
}

func (d *MysqlDriver) CheckMasterIssues(ctx context.Context, backendDSN string) ([]string, error) {
	conn, err := d.conn(ctx, backendDSN)
	if err != nil {
		return nil, err
	}
	defer d.release(backendDSN, conn)

	var issues []string
	var logBin string
	if err := conn.GetContext(ctx, &logBin, "SELECT @@GLOBAL.log_bin"); err != nil {
		return nil, errs.Database("ERR-DB-002", err, "read log_bin on %s", backendDSN)
	}
	if logBin != "1" && strings.ToUpper(logBin) != "ON" {
		issues = append(issues, "binary logging disabled")
	}
	var gtidMode string
	if err := conn.GetContext(ctx, &gtidMode, "SELECT @@GLOBAL.gtid_mode"); err == nil && gtidMode != "" {
		if strings.ToUpper(gtidMode) != "ON" && gtidMode != "1" {
			issues = append(issues, "gtid mode disabled")
		}
	}
	return issues, nil
}

type slaveStatusRow struct {
	SlaveIORunning  string `db:"Slave_IO_Running"`
	SlaveSQLRunning string `db:"Slave_SQL_Running"`
	LastIOError     string `db:"Last_IO_Error"`
	LastSQLError    string `db:"Last_SQL_Error"`
	SecondsBehind   *int64 `db:"Seconds_Behind_Master"`
	MasterUUID      string `db:"Master_UUID"`
}

func (d *MysqlDriver) CheckSlaveIssues(ctx context.Context, backendDSN string) ([]string, error) {
	row, err := d.slaveStatus(ctx, backendDSN)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return []string{"not a slave"}, nil
	}

	var issues []string
	if strings.ToUpper(row.SlaveIORunning) != "YES" {
		issues = append(issues, fmt.Sprintf("io thread stopped: %s", row.LastIOError))
	}
	if strings.ToUpper(row.SlaveSQLRunning) != "YES" {
		issues = append(issues, fmt.Sprintf("sql thread stopped: %s", row.LastSQLError))
	}
	return issues, nil
}

func (d *MysqlDriver) SlaveHasMaster(ctx context.Context, backendDSN string) (string, error) {
	row, err := d.slaveStatus(ctx, backendDSN)
	if err != nil {
		return "", err
	}
	if row == nil {
		return "", nil
	}
	return row.MasterUUID, nil
}

func (d *MysqlDriver) slaveStatus(ctx context.Context, backendDSN string) (*slaveStatusRow, error) {
	conn, err := d.conn(ctx, backendDSN)
	if err != nil {
		return nil, err
	}
	defer d.release(backendDSN, conn)

	var row slaveStatusRow
	if err := conn.GetContext(ctx, &row, "SHOW SLAVE STATUS"); err != nil {
		if strings.Contains(err.Error(), "no rows") {
			return nil, nil
		}
		return nil, errs.Database("ERR-DB-002", err, "read slave status on %s", backendDSN)
	}
	return &row, nil
}

func (d *MysqlDriver) SwitchMaster(ctx context.Context, slaveDSN, masterDSN, replUser, replPasswd string) error {
	conn, err := d.conn(ctx, slaveDSN)
	if err != nil {
		return err
	}
	defer d.release(slaveDSN, conn)

	host, port := splitHostPort(masterDSN)
	stmt := fmt.Sprintf(
		"CHANGE MASTER TO MASTER_HOST=?, MASTER_PORT=?, MASTER_USER=?, MASTER_PASSWORD=?, MASTER_AUTO_POSITION=1")
	if _, err := conn.ExecContext(ctx, stmt, host, port, replUser, replPasswd); err != nil {
		return errs.Database("ERR-DB-002", err, "change master on %s", slaveDSN)
	}
	log.WithFields(log.Fields{"slave": slaveDSN, "master": masterDSN}).Info("replication: switched master")
	return nil
}

func (d *MysqlDriver) StartSlave(ctx context.Context, backendDSN string, wait bool) error {
	return d.slaveControl(ctx, backendDSN, "START SLAVE")
}

func (d *MysqlDriver) StopSlave(ctx context.Context, backendDSN string, wait bool) error {
	return d.slaveControl(ctx, backendDSN, "STOP SLAVE")
}

func (d *MysqlDriver) ResetSlave(ctx context.Context, backendDSN string, clean bool) error {
	stmt := "RESET SLAVE"
	if clean {
		stmt = "RESET SLAVE ALL"
	}
	return d.slaveControl(ctx, backendDSN, stmt)
}

func (d *MysqlDriver) slaveControl(ctx context.Context, backendDSN, stmt string) error {
	conn, err := d.conn(ctx, backendDSN)
	if err != nil {
		return err
	}
	defer d.release(backendDSN, conn)

	if _, err := conn.ExecContext(ctx, stmt); err != nil {
		return errs.Database("ERR-DB-002", err, "%s on %s", stmt, backendDSN)
	}
	return nil
}

// WaitForGtid polls the slave's executed set until it is a superset of
// target.Executed or timeout elapses.
func (d *MysqlDriver) WaitForGtid(ctx context.Context, slaveDSN string, target GtidSet, timeout time.Duration) (WaitResult, error) {
	deadline := time.Now().Add(timeout)
	for {
		status, err := d.GetGtidStatus(ctx, slaveDSN)
		if err != nil {
			return "", err
		}
		if diff, err := d.DiffExecuted(ctx, status, target); err == nil && diff == 0 {
			return WaitOK, nil
		}
		if time.Now().After(deadline) {
			return WaitTimeout, errs.Timeout("ERR-TMO-001", "waiting for %s to catch up to target gtid set", slaveDSN)
		}
		select {
		case <-ctx.Done():
			return WaitTimeout, ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
}

func splitHostPort(dsn string) (string, string) {
	parts := strings.SplitN(dsn, ":", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return dsn, "3306"
}
