package sharding

import (
	"context"
	"fmt"

	"github.com/fabrikd/fabrikd/errs"
	"github.com/fabrikd/fabrikd/pool"
	"github.com/fabrikd/fabrikd/topology"
)

// PruneTable deletes, on every ENABLED shard's hosting group master,
// rows of table whose shardColumn value falls outside that shard's
// [lower_bound, upper_bound) window -- [lower_bound, MAX] for the last
// RANGE* shard, which has no upper bound, and [lower_bound, MAX] ∪
// [MIN, first) for the HASH shard that wraps. One logical DELETE per
// shard.
func (e *Engine) PruneTable(ctx context.Context, p *pool.Pool, mappingID int64, table, shardColumn string) error {
	mapping, ok := e.cache.Mapping(mappingID)
	if !ok {
		return errs.Sharding("ERR-SHD-001", "mapping %d does not exist", mappingID)
	}
	cmp, err := ComparatorFor(mapping.Type)
	if err != nil {
		return errs.Sharding("ERR-SHD-001", "%v", err)
	}

	shards := e.cache.ShardsOfMapping(mappingID)
	var bounds []string
	byBound := make(map[string]*topology.Shard, len(shards))
	for _, s := range shards {
		if s.State != topology.ShardEnabled {
			continue
		}
		bounds = append(bounds, s.LowerBound)
		byBound[s.LowerBound] = s
	}
	sorted := SortBounds(cmp, bounds)

	for idx, bound := range sorted {
		shard := byBound[bound]
		upper, wraps := cmp.UpperBoundFor(sorted, idx)

		group, ok := e.cache.Group(shard.GroupID)
		if !ok || group.Master == nil {
			return errs.Group("ERR-GRP-001", "group %s hosting shard %d has no master", shard.GroupID, shard.ID)
		}
		master, ok := e.cache.Backend(*group.Master)
		if !ok {
			return errs.Group("ERR-GRP-001", errs.Msg("ERR-GRP-001"), shard.GroupID)
		}

		conn, err := p.Get(ctx, master.UUID, master.Address)
		if err != nil {
			return err
		}
		stmt, args := pruneStatement(table, shardColumn, bound, upper, wraps)
		_, execErr := conn.ExecContext(ctx, stmt, args...)
		p.Release(master.UUID, conn)
		if execErr != nil {
			return errs.Database("ERR-DB-002", execErr, "prune shard %d on %s", shard.ID, master.Address)
		}
	}
	return nil
}

// pruneStatement builds the DELETE that keeps only rows in
// [lower, upper), [lower, MAX] when upper is empty (the last RANGE*
// shard), or [lower, MAX] ∪ [MIN, first) when wraps is true (the shard
// that closes the HASH ring).
func pruneStatement(table, column, lower, upper string, wraps bool) (string, []interface{}) {
	if wraps {
		stmt := fmt.Sprintf("DELETE FROM %s WHERE NOT (%s >= ? OR %s < ?)", table, column, column)
		return stmt, []interface{}{lower, upper}
	}
	if upper == "" {
		stmt := fmt.Sprintf("DELETE FROM %s WHERE NOT (%s >= ?)", table, column)
		return stmt, []interface{}{lower}
	}
	stmt := fmt.Sprintf("DELETE FROM %s WHERE NOT (%s >= ? AND %s < ?)", table, column, column)
	return stmt, []interface{}{lower, upper}
}
