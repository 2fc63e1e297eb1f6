package topology

import "context"

// reader is the subset of store.Gateway's read surface load needs;
// declared locally so topology does not import store.
type reader interface {
	Select(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// Load hydrates an empty Cache from the state store's current rows, the
// read fabrikd performs once at process startup before accepting any
// procedure. Shards are loaded with their shard_ranges lower_bound
// joined in, matching how AddShard/SplitShard write the two tables
// together.
func Load(ctx context.Context, r reader, cache *Cache) error {
	var backends []*Backend
	if err := r.Select(ctx, &backends, "SELECT * FROM backends"); err != nil {
		return err
	}
	for _, b := range backends {
		cache.PutBackend(b)
	}

	var groups []*Group
	if err := r.Select(ctx, &groups, "SELECT * FROM groups"); err != nil {
		return err
	}
	for _, g := range groups {
		cache.PutGroup(g)
	}

	type memberRow struct {
		GroupID     string `db:"group_id"`
		BackendUUID string `db:"backend_uuid"`
	}
	var members []memberRow
	if err := r.Select(ctx, &members, "SELECT * FROM group_members"); err != nil {
		return err
	}
	for _, m := range members {
		if b, ok := cache.Backend(m.BackendUUID); ok {
			gid := m.GroupID
			b.GroupID = &gid
		}
	}

	var mappings []*ShardMapping
	if err := r.Select(ctx, &mappings, "SELECT * FROM shard_maps"); err != nil {
		return err
	}
	for _, m := range mappings {
		cache.PutMapping(m)
	}

	var tables []*ShardTable
	if err := r.Select(ctx, &tables, "SELECT * FROM shard_tables"); err != nil {
		return err
	}
	for _, t := range tables {
		cache.PutTable(t)
	}

	type shardRow struct {
		ID         int64  `db:"id"`
		GroupID    string `db:"group_id"`
		MapID      int64  `db:"map_id"`
		State      string `db:"state"`
		LowerBound string `db:"lower_bound"`
	}
	var shardRows []shardRow
	query := `SELECT shards.id, shards.group_id, shards.map_id, shards.state, shard_ranges.lower_bound
		FROM shards LEFT JOIN shard_ranges ON shard_ranges.shard_id = shards.id`
	if err := r.Select(ctx, &shardRows, query); err != nil {
		return err
	}
	for _, s := range shardRows {
		cache.PutShard(&Shard{
			ID:         s.ID,
			GroupID:    s.GroupID,
			MapID:      s.MapID,
			State:      ShardState(s.State),
			LowerBound: s.LowerBound,
		})
	}
	return nil
}
