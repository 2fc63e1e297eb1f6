package ha

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/fabrikd/fabrikd/store"
	"github.com/fabrikd/fabrikd/topology"
)

func newMockTx(t *testing.T) (*store.Gateway, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return store.OpenDB(sqlx.NewDb(db, "mysql")), mock
}

func TestPersistGroupStateWritesMasterAndMemberRows(t *testing.T) {
	gw, mock := newMockTx(t)
	cache := topology.NewCache()
	master := &topology.Backend{UUID: "fresh", Status: topology.StatusPrimary, Mode: topology.ModeReadWrite}
	seedGroup(cache, "g1", "fresh", master)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE groups SET master_uuid").
		WithArgs(sqlmock.AnyArg(), "g1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE backends SET status").
		WithArgs(string(topology.StatusPrimary), string(topology.ModeReadWrite), false, "fresh").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ctx := context.Background()
	tx, err := gw.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, PersistGroupState(ctx, tx, cache, "g1"))
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPersistGroupStateUnknownGroupIsNoop(t *testing.T) {
	gw, mock := newMockTx(t)
	cache := topology.NewCache()

	mock.ExpectBegin()
	mock.ExpectCommit()

	ctx := context.Background()
	tx, err := gw.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, PersistGroupState(ctx, tx, cache, "missing"))
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}
