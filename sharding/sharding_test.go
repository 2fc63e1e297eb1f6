package sharding

import (
	"context"
	"io"
	"strings"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/fabrikd/fabrikd/replication"
	"github.com/fabrikd/fabrikd/store"
	"github.com/fabrikd/fabrikd/topology"
)

func newTestEngine(t *testing.T) (*Engine, *topology.Cache, *replication.FakeDriver, *store.Gateway, sqlmock.Sqlmock) {
	t.Helper()
	cache := topology.NewCache()
	drv := replication.NewFakeDriver()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	mock.MatchExpectationsInOrder(false)
	gw := store.OpenDB(sqlx.NewDb(db, "mysql"))
	return NewEngine(cache, drv), cache, drv, gw, mock
}

func beginTx(t *testing.T, gw *store.Gateway, mock sqlmock.Sqlmock) *store.Tx {
	t.Helper()
	mock.ExpectBegin()
	tx, err := gw.Begin(context.Background())
	require.NoError(t, err)
	return tx
}

func seedRangeMapping(cache *topology.Cache, mapID int64, globalGroup string) {
	cache.PutMapping(&topology.ShardMapping{ID: mapID, Type: topology.TypeRange, GlobalGroupID: globalGroup})
}

func seedGroupWithMaster(cache *topology.Cache, gid, masterUUID string) {
	cache.PutGroup(&topology.Group{ID: gid, Master: &masterUUID, Status: topology.GroupActive})
	gidCopy := gid
	cache.PutBackend(&topology.Backend{UUID: masterUUID, Address: masterUUID + "-dsn", Status: topology.StatusPrimary, Mode: topology.ModeReadWrite, GroupID: &gidCopy})
}

type fakeBackupper struct {
	dumped   []string
	restored []string
}

func (f *fakeBackupper) Dump(ctx context.Context, sourceDSN string) (io.Reader, error) {
	f.dumped = append(f.dumped, sourceDSN)
	return strings.NewReader("dump:" + sourceDSN), nil
}

func (f *fakeBackupper) Restore(ctx context.Context, destDSN string, dump io.Reader) error {
	f.restored = append(f.restored, destDSN)
	_, err := io.ReadAll(dump)
	return err
}
