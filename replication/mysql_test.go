package replication

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/fabrikd/fabrikd/pool"
)

func newMockDriver(t *testing.T) (*MysqlDriver, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	opener := func(dsn string) (*sqlx.DB, error) {
		return sqlx.NewDb(db, "mysql"), nil
	}
	p := pool.New(opener)
	return NewMysqlDriver(p), mock
}

func TestGetGtidStatus(t *testing.T) {
	d, mock := newMockDriver(t)
	rows := sqlmock.NewRows([]string{"File", "Position", "Binlog_Do_DB", "Binlog_Ignore_DB", "Executed_Gtid_Set"}).
		AddRow("mysql-bin.000001", 4, "", "", "uuid-a:1-5")
	mock.ExpectQuery("SHOW MASTER STATUS").WillReturnRows(rows)
	mock.ExpectQuery("gtid_purged").WillReturnRows(sqlmock.NewRows([]string{"@@GLOBAL.gtid_purged"}).AddRow(""))
	mock.ExpectQuery("gtid_owned").WillReturnRows(sqlmock.NewRows([]string{"@@GLOBAL.gtid_owned"}).AddRow(""))

	set, err := d.GetGtidStatus(context.Background(), "backend-a")
	require.NoError(t, err)
	require.Equal(t, "uuid-a:1-5", set.Executed)
}

func TestCheckMasterIssuesFlagsDisabledBinlog(t *testing.T) {
	d, mock := newMockDriver(t)
	mock.ExpectQuery("log_bin").WillReturnRows(sqlmock.NewRows([]string{"@@GLOBAL.log_bin"}).AddRow("0"))
	mock.ExpectQuery("gtid_mode").WillReturnRows(sqlmock.NewRows([]string{"@@GLOBAL.gtid_mode"}).AddRow("ON"))

	issues, err := d.CheckMasterIssues(context.Background(), "backend-a")
	require.NoError(t, err)
	require.Contains(t, issues, "binary logging disabled")
}

func TestCheckSlaveIssuesDetectsStoppedThreads(t *testing.T) {
	d, mock := newMockDriver(t)
	rows := sqlmock.NewRows([]string{
		"Slave_IO_Running", "Slave_SQL_Running", "Last_IO_Error", "Last_SQL_Error",
		"Seconds_Behind_Master", "Master_UUID",
	}).AddRow("No", "Yes", "connection refused", "", 0, "uuid-a")
	mock.ExpectQuery("SHOW SLAVE STATUS").WillReturnRows(rows)

	issues, err := d.CheckSlaveIssues(context.Background(), "backend-b")
	require.NoError(t, err)
	require.Len(t, issues, 1)
	require.Contains(t, issues[0], "io thread stopped")
}

func TestSwitchMasterIssuesChangeMaster(t *testing.T) {
	d, mock := newMockDriver(t)
	mock.ExpectExec("CHANGE MASTER TO").
		WithArgs("host-a", "3306", "repl", "secret").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := d.SwitchMaster(context.Background(), "slave-dsn", "host-a:3306", "repl", "secret")
	require.NoError(t, err)
}

func TestStartStopResetSlave(t *testing.T) {
	d, mock := newMockDriver(t)
	mock.ExpectExec("START SLAVE").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, d.StartSlave(context.Background(), "backend-a", false))

	mock.ExpectExec("STOP SLAVE").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, d.StopSlave(context.Background(), "backend-a", false))

	mock.ExpectExec("RESET SLAVE ALL").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, d.ResetSlave(context.Background(), "backend-a", true))
}
