package sharding

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/fabrikd/fabrikd/topology"
)

// TestSplitShardRangeCreatesTwoFreshShards exercises spec.md §8
// scenario S2: a RANGE shard splits into two new ENABLED shards, the
// original keeping its lower_bound and the new one starting at
// split_value.
func TestSplitShardRangeCreatesTwoFreshShards(t *testing.T) {
	e, cache, drv, gw, mock := newTestEngine(t)
	seedRangeMapping(cache, 1, "global-group")
	seedGroupWithMaster(cache, "global-group", "global-master")
	seedGroupWithMaster(cache, "orig-group", "orig-master")
	seedGroupWithMaster(cache, "new-group", "new-master")
	cache.PutShard(&topology.Shard{ID: 1, GroupID: "orig-group", MapID: 1, State: topology.ShardEnabled, LowerBound: "0"})

	bk := &fakeBackupper{}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM shard_ranges").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM shards").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO shards").WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectExec("INSERT INTO shard_ranges").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO shards").WillReturnResult(sqlmock.NewResult(3, 1))
	mock.ExpectExec("INSERT INTO shard_ranges").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := gw.Begin(context.Background())
	require.NoError(t, err)

	nextID := int64(100)
	origID, newID, err := e.SplitShard(context.Background(), tx, 1, "new-group", "50", false, bk,
		func() int64 { nextID++; return nextID }, "global-master-dsn", ReplicationCreds{User: "repl", Passwd: "x"})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	require.NotEqual(t, origID, newID)

	original, ok := cache.Shard(origID)
	require.True(t, ok)
	require.Equal(t, "0", original.LowerBound)
	require.Equal(t, "orig-group", original.GroupID)
	require.Equal(t, topology.ShardEnabled, original.State)

	fresh, ok := cache.Shard(newID)
	require.True(t, ok)
	require.Equal(t, "50", fresh.LowerBound)
	require.Equal(t, "new-group", fresh.GroupID)

	_, stillThere := cache.Shard(1)
	require.False(t, stillThere, "the old shard id must be retired, not reused")
	require.Len(t, drv.Switches, 2, "both resulting shards must be reconfigured against the global master")
}

func TestSplitShardRejectsValueOutsideBounds(t *testing.T) {
	e, cache, _, gw, mock := newTestEngine(t)
	seedRangeMapping(cache, 1, "global-group")
	seedGroupWithMaster(cache, "orig-group", "orig-master")
	seedGroupWithMaster(cache, "new-group", "new-master")
	cache.PutShard(&topology.Shard{ID: 1, GroupID: "orig-group", MapID: 1, State: topology.ShardEnabled, LowerBound: "50"})
	cache.PutShard(&topology.Shard{ID: 2, GroupID: "new-group", MapID: 1, State: topology.ShardEnabled, LowerBound: "100"})

	mock.ExpectBegin()
	tx, err := gw.Begin(context.Background())
	require.NoError(t, err)

	_, _, err = e.SplitShard(context.Background(), tx, 1, "third-group", "10", false, &fakeBackupper{},
		func() int64 { return 3 }, "global-dsn", ReplicationCreds{})
	require.Error(t, err, "10 is below shard 1's own lower_bound 50")
}

func TestSplitShardHashRejectsExplicitSplitValue(t *testing.T) {
	e, cache, _, gw, mock := newTestEngine(t)
	cache.PutMapping(&topology.ShardMapping{ID: 2, Type: topology.TypeHash, GlobalGroupID: "global-group"})
	seedGroupWithMaster(cache, "orig-group", "orig-master")
	seedGroupWithMaster(cache, "new-group", "new-master")
	cache.PutShard(&topology.Shard{ID: 1, GroupID: "orig-group", MapID: 2, State: topology.ShardEnabled, LowerBound: HashOf("orig-group")})

	mock.ExpectBegin()
	tx, err := gw.Begin(context.Background())
	require.NoError(t, err)

	_, _, err = e.SplitShard(context.Background(), tx, 1, "new-group", "should-be-empty", false, &fakeBackupper{},
		func() int64 { return 3 }, "global-dsn", ReplicationCreds{})
	require.Error(t, err)
}
