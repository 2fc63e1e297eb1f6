package topology

import "sync"

// Cache is the process-wide in-memory view of the topology, refreshed
// from the state store. It never trusts a pointer across the
// Group<->Backend relationship: Group.Master and Backend.GroupID are
// ids, resolved through this map.
type Cache struct {
	mu       sync.RWMutex
	backends map[string]*Backend
	groups   map[string]*Group
	mappings map[int64]*ShardMapping
	shards   map[int64]*Shard
	// tables is keyed by table name: shard_tables' schema primary key
	// is (table_name, column_name), but a table is only ever attached
	// to one mapping at a time, so table name alone is the lookup key
	// sharding.lookup_table/add_table/remove_table need.
	tables map[string]*ShardTable
}

func NewCache() *Cache {
	return &Cache{
		backends: make(map[string]*Backend),
		groups:   make(map[string]*Group),
		mappings: make(map[int64]*ShardMapping),
		shards:   make(map[int64]*Shard),
		tables:   make(map[string]*ShardTable),
	}
}

func (c *Cache) PutBackend(b *Backend) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.backends[b.UUID] = b
}

func (c *Cache) Backend(uuid string) (*Backend, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.backends[uuid]
	return b, ok
}

func (c *Cache) DeleteBackend(uuid string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.backends, uuid)
}

func (c *Cache) BackendsOfGroup(groupID string) []*Backend {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []*Backend
	for _, b := range c.backends {
		if b.GroupID != nil && *b.GroupID == groupID {
			out = append(out, b)
		}
	}
	return out
}

// BackendByAddress resolves server.lookup_uuid: given the DSN/address
// a caller already knows, find the backend identity it belongs to.
func (c *Cache) BackendByAddress(address string) (*Backend, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, b := range c.backends {
		if b.Address == address {
			return b, true
		}
	}
	return nil, false
}

func (c *Cache) PutGroup(g *Group) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.groups[g.ID] = g
}

func (c *Cache) Group(id string) (*Group, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	g, ok := c.groups[id]
	return g, ok
}

func (c *Cache) DeleteGroup(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.groups, id)
}

// AllGroups returns every known group, used by periodic sweeps like
// ha.ReconcileReadOnly that must visit the whole fleet.
func (c *Cache) AllGroups() []*Group {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Group, 0, len(c.groups))
	for _, g := range c.groups {
		out = append(out, g)
	}
	return out
}

func (c *Cache) PutMapping(m *ShardMapping) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mappings[m.ID] = m
}

func (c *Cache) Mapping(id int64) (*ShardMapping, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.mappings[id]
	return m, ok
}

// DeleteMapping drops a shard mapping definition, used by
// sharding.remove_definition once no shard or table references it.
func (c *Cache) DeleteMapping(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.mappings, id)
}

// AllMappings returns every known shard mapping, used by
// sharding.list_definitions.
func (c *Cache) AllMappings() []*ShardMapping {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*ShardMapping, 0, len(c.mappings))
	for _, m := range c.mappings {
		out = append(out, m)
	}
	return out
}

// PutTable attaches a (table, sharding column) tuple to a mapping.
func (c *Cache) PutTable(t *ShardTable) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tables[t.TableName] = t
}

// Table looks up the mapping a table is attached to, if any.
func (c *Cache) Table(name string) (*ShardTable, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tables[name]
	return t, ok
}

// DeleteTable detaches a table, used by sharding.remove_table.
func (c *Cache) DeleteTable(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tables, name)
}

// TablesOfMapping returns every table attached to mapID, used by
// sharding.list_tables and to guard sharding.remove_definition.
func (c *Cache) TablesOfMapping(mapID int64) []*ShardTable {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []*ShardTable
	for _, t := range c.tables {
		if t.MapID == mapID {
			out = append(out, t)
		}
	}
	return out
}

func (c *Cache) PutShard(s *Shard) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shards[s.ID] = s
}

func (c *Cache) Shard(id int64) (*Shard, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.shards[id]
	return s, ok
}

func (c *Cache) DeleteShard(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.shards, id)
}

// AllShards returns every known shard across every mapping, used by
// metrics to report shard counts per state.
func (c *Cache) AllShards() []*Shard {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Shard, 0, len(c.shards))
	for _, s := range c.shards {
		out = append(out, s)
	}
	return out
}

// ShardsOfMapping returns every shard (any state) attached to mapID.
func (c *Cache) ShardsOfMapping(mapID int64) []*Shard {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []*Shard
	for _, s := range c.shards {
		if s.MapID == mapID {
			out = append(out, s)
		}
	}
	return out
}

// GroupHostsShard reports whether any shard (not REMOVED) is hosted on
// groupID, used by CanDestroyGroup.
func (c *Cache) GroupHostsShard(groupID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.shards {
		if s.GroupID == groupID && s.State != ShardRemoved {
			return true
		}
	}
	return false
}

// ShardHostingGroup returns the shard (not REMOVED) hosted on groupID,
// the reverse of GroupHostsShard — used to find a promoted/demoted
// group's own shard mapping when the group is itself shard-hosting
// rather than a mapping's global group.
func (c *Cache) ShardHostingGroup(groupID string) (*Shard, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.shards {
		if s.GroupID == groupID && s.State != ShardRemoved {
			return s, true
		}
	}
	return nil, false
}

// GroupIsGlobalOfMapping returns the mapping id that groupID is the
// global group of, if any.
func (c *Cache) GroupIsGlobalOfMapping(groupID string) *int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, m := range c.mappings {
		if m.GlobalGroupID == groupID {
			id := m.ID
			return &id
		}
	}
	return nil
}
