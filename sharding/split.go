package sharding

import (
	"context"

	"github.com/fabrikd/fabrikd/errs"
	"github.com/fabrikd/fabrikd/store"
	"github.com/fabrikd/fabrikd/topology"
)

// SplitShard carves a shard in two: the original group keeps the
// original lower_bound and everything below splitValue; newGroupID
// gets a fresh shard starting at splitValue. For HASH mappings
// splitValue must be empty — the engine computes the midpoint itself.
func (e *Engine) SplitShard(
	ctx context.Context,
	tx *store.Tx,
	shardID int64,
	newGroupID string,
	splitValue string,
	updateOnly bool,
	bk Backupper,
	nextShardID func() int64,
	globalMasterDSN string,
	creds ReplicationCreds,
) (originalShardID, newShardID int64, err error) {
	shard, ok := e.cache.Shard(shardID)
	if !ok {
		return 0, 0, errs.Sharding("ERR-SHD-002", "shard %d does not exist", shardID)
	}
	mapping, ok := e.cache.Mapping(shard.MapID)
	if !ok {
		return 0, 0, errs.Sharding("ERR-SHD-001", "mapping %d does not exist", shard.MapID)
	}
	if e.cache.GroupHostsShard(newGroupID) {
		return 0, 0, errs.Sharding("ERR-SHD-004", errs.Msg("ERR-SHD-004"), newGroupID)
	}

	cmp, cerr := ComparatorFor(mapping.Type)
	if cerr != nil {
		return 0, 0, errs.Sharding("ERR-SHD-001", "%v", cerr)
	}

	siblings := e.cache.ShardsOfMapping(mapping.ID)
	var bounds []string
	for _, s := range siblings {
		bounds = append(bounds, s.LowerBound)
	}
	sorted := SortBounds(cmp, bounds)
	idx := indexOf(sorted, shard.LowerBound)
	upper, wraps := cmp.UpperBoundFor(sorted, idx)

	var splitBound string
	if mapping.Type == topology.TypeHash {
		if splitValue != "" {
			return 0, 0, errs.Sharding("ERR-SHD-006", errs.Msg("ERR-SHD-006"))
		}
		splitBound = hashMidpoint(shard.LowerBound, upper, wraps)
	} else {
		if splitValue == "" {
			return 0, 0, errs.Sharding("ERR-SHD-005", errs.Msg("ERR-SHD-005"))
		}
		encoded, eerr := cmp.Encode(splitValue)
		if eerr != nil {
			return 0, 0, errs.Sharding("ERR-SHD-001", "%v", eerr)
		}
		if cmp.Compare(encoded, shard.LowerBound) <= 0 {
			return 0, 0, errs.Sharding("ERR-SHD-005", errs.Msg("ERR-SHD-005"))
		}
		hasUpper := !wraps && upper != ""
		if hasUpper && cmp.Compare(encoded, upper) >= 0 {
			return 0, 0, errs.Sharding("ERR-SHD-005", errs.Msg("ERR-SHD-005"))
		}
		splitBound = encoded
	}

	if !updateOnly {
		originalGroupID := shard.GroupID
		sourceMembers := e.cache.BackendsOfGroup(originalGroupID)
		sourceGroup, _ := e.cache.Group(originalGroupID)
		var sourceMasterID string
		if sourceGroup != nil && sourceGroup.Master != nil {
			sourceMasterID = *sourceGroup.Master
		}
		backupSource := pickBackupSource(sourceMembers, sourceMasterID)
		if backupSource == nil {
			return 0, 0, errs.Group("ERR-GRP-001", "source group %s has no backend to back up from", originalGroupID)
		}
		dump, derr := bk.Dump(ctx, backupSource.Address)
		if derr != nil {
			return 0, 0, derr
		}
		for _, b := range e.cache.BackendsOfGroup(newGroupID) {
			if rerr := bk.Restore(ctx, b.Address, dump); rerr != nil {
				return 0, 0, rerr
			}
		}
	}

	// cutover: delete the old shard row outright rather than soft-retiring
	// it — group_id carries a UNIQUE constraint (store/schema.go), and the
	// replacement shard below reuses shard.GroupID, so a REMOVED row left
	// behind would collide with it on insert.
	if _, derr := tx.Exec(ctx, "DELETE FROM shard_ranges WHERE shard_id = ?", shardID); derr != nil {
		return 0, 0, derr
	}
	if _, derr := tx.Exec(ctx, "DELETE FROM shards WHERE id = ?", shardID); derr != nil {
		return 0, 0, derr
	}
	e.cache.DeleteShard(shardID)

	originalShardID = nextShardID()
	newShardID = nextShardID()

	for _, pair := range []struct {
		id      int64
		groupID string
		bound   string
	}{
		{originalShardID, shard.GroupID, shard.LowerBound},
		{newShardID, newGroupID, splitBound},
	} {
		if _, derr := tx.Exec(ctx, "INSERT INTO shards (id, group_id, map_id, state) VALUES (?, ?, ?, ?)",
			pair.id, pair.groupID, mapping.ID, string(topology.ShardEnabled)); derr != nil {
			return 0, 0, derr
		}
		if _, derr := tx.Exec(ctx, "INSERT INTO shard_ranges (map_id, lower_bound, shard_id) VALUES (?, ?, ?)",
			mapping.ID, pair.bound, pair.id); derr != nil {
			return 0, 0, derr
		}
		e.cache.PutShard(&topology.Shard{ID: pair.id, GroupID: pair.groupID, MapID: mapping.ID, State: topology.ShardEnabled, LowerBound: pair.bound})
		if cerr := e.configureSlaveOfGlobal(ctx, pair.groupID, globalMasterDSN, creds); cerr != nil {
			return 0, 0, cerr
		}
	}

	e.refreshShardCountMetrics()
	return originalShardID, newShardID, nil
}

func indexOf(sorted []string, bound string) int {
	for i, b := range sorted {
		if b == bound {
			return i
		}
	}
	return -1
}

// hashMidpoint computes the midpoint between two 16-byte MD5 bounds
// encoded as hex, treating them as big-endian unsigned integers. When
// wraps is true, lower is the last shard in circular order and upper
// should be read as the domain maximum rather than the first shard's
// bound.
func hashMidpoint(lowerHex, upperHex string, wraps bool) string {
	lower := hexToBigInt(lowerHex)
	var upper [16]byte
	if wraps {
		for i := range upper {
			upper[i] = 0xff
		}
	} else {
		upper = hexToBigIntBytes(upperHex)
	}
	mid := midpoint(lower, upper)
	return bytesToHex(mid)
}
