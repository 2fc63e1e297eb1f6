package sharding

import (
	"context"

	"github.com/fabrikd/fabrikd/errs"
	"github.com/fabrikd/fabrikd/metrics"
	"github.com/fabrikd/fabrikd/replication"
	"github.com/fabrikd/fabrikd/topology"
)

// Hint selects between the global-group shortcut and the ordinary
// per-key shard lookup.
type Hint string

const (
	HintGlobal Hint = "GLOBAL"
	HintLocal  Hint = "LOCAL"
)

// LookupResult is one backend of the resolved hosting group, with
// IsMaster flagging the current master among the returned set —
// supplementing spec.md's distilled lookup_servers with the full
// replica set an original mysql-fabric caller expects, per SPEC_FULL §6.
type LookupResult struct {
	Backend  *topology.Backend
	IsMaster bool
}

// Engine bundles the cache and replication driver lookup/mutation
// operations need; constructed once per process and shared by the
// executor's steps.
type Engine struct {
	cache *topology.Cache
	drv   replication.Driver
}

func NewEngine(cache *topology.Cache, drv replication.Driver) *Engine {
	return &Engine{cache: cache, drv: drv}
}

// refreshShardCountMetrics recomputes the per-state shard gauge from
// the cache. Called after every mutation that adds, removes, or
// changes the state of a shard.
func (e *Engine) refreshShardCountMetrics() {
	counts := map[topology.ShardState]int{
		topology.ShardPending:  0,
		topology.ShardEnabled:  0,
		topology.ShardDisabled: 0,
		topology.ShardRemoved:  0,
	}
	for _, s := range e.cache.AllShards() {
		counts[s.State]++
	}
	for state, n := range counts {
		metrics.ShardCount.WithLabelValues(string(state)).Set(float64(n))
	}
}

// Lookup resolves a mapping+key+hint to the hosting group's full
// backend set, each flagged with whether it is that group's master.
func (e *Engine) Lookup(ctx context.Context, mappingID int64, key string, hint Hint) ([]LookupResult, error) {
	mapping, ok := e.cache.Mapping(mappingID)
	if !ok {
		return nil, errs.Sharding("ERR-SHD-001", "mapping %d does not exist", mappingID)
	}

	if hint == HintGlobal {
		return e.resultsForGroup(mapping.GlobalGroupID), nil
	}

	shard, err := e.resolveShard(mapping, key)
	if err != nil {
		return nil, err
	}
	if shard.State != topology.ShardEnabled {
		return nil, errs.Sharding("ERR-SHD-002", errs.Msg("ERR-SHD-002"))
	}
	return e.resultsForGroup(shard.GroupID), nil
}

func (e *Engine) resultsForGroup(groupID string) []LookupResult {
	group, _ := e.cache.Group(groupID)
	var out []LookupResult
	for _, b := range e.cache.BackendsOfGroup(groupID) {
		isMaster := group != nil && group.Master != nil && *group.Master == b.UUID
		out = append(out, LookupResult{Backend: b, IsMaster: isMaster})
	}
	return out
}

// resolveShard finds the shard whose lower_bound is the largest ≤ key
// (HASH: ≤ md5(key), wrapping to the maximum lower_bound if none is),
// regardless of its enabled/disabled state — callers decide how to
// react to a disabled result.
func (e *Engine) resolveShard(mapping *topology.ShardMapping, key string) (*topology.Shard, error) {
	cmp, err := ComparatorFor(mapping.Type)
	if err != nil {
		return nil, errs.Sharding("ERR-SHD-001", "%v", err)
	}
	encoded, err := cmp.Encode(key)
	if err != nil {
		return nil, errs.Sharding("ERR-SHD-001", errs.Msg("ERR-SHD-001"))
	}

	shards := e.cache.ShardsOfMapping(mapping.ID)
	byBound := make(map[string]*topology.Shard, len(shards))
	var bounds []string
	for _, s := range shards {
		byBound[s.LowerBound] = s
		bounds = append(bounds, s.LowerBound)
	}
	if len(bounds) == 0 {
		return nil, errs.Sharding("ERR-SHD-001", errs.Msg("ERR-SHD-001"))
	}
	sorted := SortBounds(cmp, bounds)

	var best string
	found := false
	for _, b := range sorted {
		if cmp.Compare(b, encoded) <= 0 {
			best = b
			found = true
			continue
		}
		break
	}
	if !found {
		if mapping.Type == topology.TypeHash {
			best = sorted[len(sorted)-1]
		} else {
			return nil, errs.Sharding("ERR-SHD-001", errs.Msg("ERR-SHD-001"))
		}
	}
	return byBound[best], nil
}
