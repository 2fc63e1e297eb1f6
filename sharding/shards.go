package sharding

import (
	"context"

	"github.com/fabrikd/fabrikd/errs"
	"github.com/fabrikd/fabrikd/store"
	"github.com/fabrikd/fabrikd/topology"
)

// GroupBound pairs a hosting group with the raw (unencoded) lower
// bound add_shard should assign it; Bound is ignored for HASH, whose
// bounds the engine derives from the group's id.
type GroupBound struct {
	GroupID string
	Bound   string
}

// AddShard defines the initial shard set of a mapping. It fails if the
// mapping already has any shards: shards are added only at definition
// time, growth afterwards is via split. Returns the new shard ids,
// uniformly as []int64 for every sharding type including HASH.
func (e *Engine) AddShard(
	ctx context.Context,
	tx *store.Tx,
	mappingID int64,
	groups []GroupBound,
	initialState topology.ShardState,
	nextShardID func() int64,
	globalMasterDSN string,
	creds ReplicationCreds,
) ([]int64, error) {
	mapping, ok := e.cache.Mapping(mappingID)
	if !ok {
		return nil, errs.Sharding("ERR-SHD-001", "mapping %d does not exist", mappingID)
	}
	if len(e.cache.ShardsOfMapping(mappingID)) > 0 {
		return nil, errs.Sharding("ERR-SHD-003", errs.Msg("ERR-SHD-003"), mappingID)
	}

	cmp, err := ComparatorFor(mapping.Type)
	if err != nil {
		return nil, errs.Sharding("ERR-SHD-001", "%v", err)
	}

	if mapping.Type == topology.TypeHash {
		for _, g := range groups {
			if g.Bound != "" {
				return nil, errs.Sharding("ERR-SHD-006", errs.Msg("ERR-SHD-006"))
			}
		}
	}

	var ids []int64
	for _, g := range groups {
		if e.cache.GroupHostsShard(g.GroupID) {
			return nil, errs.Sharding("ERR-SHD-004", errs.Msg("ERR-SHD-004"), g.GroupID)
		}

		var bound string
		if mapping.Type == topology.TypeHash {
			bound = HashOf(g.GroupID)
		} else {
			bound, err = cmp.Encode(g.Bound)
			if err != nil {
				return nil, errs.Sharding("ERR-SHD-001", "%v", err)
			}
		}

		id := nextShardID()
		if _, err := tx.Exec(ctx,
			"INSERT INTO shards (id, group_id, map_id, state) VALUES (?, ?, ?, ?)",
			id, g.GroupID, mappingID, string(initialState)); err != nil {
			return nil, err
		}
		if _, err := tx.Exec(ctx,
			"INSERT INTO shard_ranges (map_id, lower_bound, shard_id) VALUES (?, ?, ?)",
			mappingID, bound, id); err != nil {
			return nil, err
		}

		shard := &topology.Shard{ID: id, GroupID: g.GroupID, MapID: mappingID, State: initialState, LowerBound: bound}
		e.cache.PutShard(shard)
		ids = append(ids, id)

		if initialState == topology.ShardEnabled {
			if err := e.configureSlaveOfGlobal(ctx, g.GroupID, globalMasterDSN, creds); err != nil {
				return nil, err
			}
		}
	}
	e.refreshShardCountMetrics()
	return ids, nil
}

// ReplicationCreds is the credential pair used to point a hosting
// group's master at another master, mirroring ha.ReplicationCreds —
// kept separate so sharding does not import ha for a two-field struct.
type ReplicationCreds struct {
	User   string
	Passwd string
}

func (e *Engine) configureSlaveOfGlobal(ctx context.Context, groupID, globalMasterDSN string, creds ReplicationCreds) error {
	group, ok := e.cache.Group(groupID)
	if !ok {
		return errs.Group("ERR-GRP-001", errs.Msg("ERR-GRP-001"), groupID)
	}
	if group.Master == nil {
		return errs.Group("ERR-GRP-001", errs.Msg("ERR-GRP-001"), groupID)
	}
	master, ok := e.cache.Backend(*group.Master)
	if !ok {
		return errs.Group("ERR-GRP-001", errs.Msg("ERR-GRP-001"), groupID)
	}
	return e.drv.SwitchMaster(ctx, master.Address, globalMasterDSN, creds.User, creds.Passwd)
}

// EnableShard sets a shard ENABLED and (re)configures its hosting
// group as a replication slave of the mapping's global group master.
func (e *Engine) EnableShard(ctx context.Context, tx *store.Tx, shardID int64, globalMasterDSN string, creds ReplicationCreds) error {
	shard, ok := e.cache.Shard(shardID)
	if !ok {
		return errs.Sharding("ERR-SHD-002", "shard %d does not exist", shardID)
	}
	if _, err := tx.Exec(ctx, "UPDATE shards SET state = ? WHERE id = ?", string(topology.ShardEnabled), shardID); err != nil {
		return err
	}
	if err := e.configureSlaveOfGlobal(ctx, shard.GroupID, globalMasterDSN, creds); err != nil {
		return err
	}
	shard.State = topology.ShardEnabled
	e.refreshShardCountMetrics()
	return nil
}

// DisableShard stops replication on the hosting group and clears the
// shard's participation in lookups and global fan-out.
func (e *Engine) DisableShard(ctx context.Context, tx *store.Tx, shardID int64) error {
	shard, ok := e.cache.Shard(shardID)
	if !ok {
		return errs.Sharding("ERR-SHD-002", "shard %d does not exist", shardID)
	}
	if _, err := tx.Exec(ctx, "UPDATE shards SET state = ? WHERE id = ?", string(topology.ShardDisabled), shardID); err != nil {
		return err
	}
	group, ok := e.cache.Group(shard.GroupID)
	if ok && group.Master != nil {
		if master, ok := e.cache.Backend(*group.Master); ok {
			if err := e.drv.StopSlave(ctx, master.Address, false); err != nil {
				return err
			}
		}
	}
	shard.State = topology.ShardDisabled
	e.refreshShardCountMetrics()
	return nil
}

// RemoveShard deletes a DISABLED shard's index entry. Removal is only
// permitted on DISABLED shards.
func (e *Engine) RemoveShard(ctx context.Context, tx *store.Tx, shardID int64) error {
	shard, ok := e.cache.Shard(shardID)
	if !ok {
		return errs.Sharding("ERR-SHD-002", "shard %d does not exist", shardID)
	}
	if shard.State != topology.ShardDisabled {
		return errs.Sharding("ERR-SHD-007", errs.Msg("ERR-SHD-007"), shardID)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM shard_ranges WHERE shard_id = ?", shardID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, "DELETE FROM shards WHERE id = ?", shardID); err != nil {
		return err
	}
	e.cache.DeleteShard(shardID)
	e.refreshShardCountMetrics()
	return nil
}
