package sharding

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fabrikd/fabrikd/topology"
)

func TestEstimateRebalanceCostNoShardsReturnsZero(t *testing.T) {
	e, _, _, _, _ := newTestEngine(t)
	require.Equal(t, 0.0, e.EstimateRebalanceCost(1, []string{"a", "b"}))
}

func TestEstimateRebalanceCostEmptySampleReturnsZero(t *testing.T) {
	e, cache, _, _, _ := newTestEngine(t)
	seedRangeMapping(cache, 1, "global-group")
	cache.PutShard(&topology.Shard{ID: 1, GroupID: "shard-a", MapID: 1, State: topology.ShardEnabled, LowerBound: "0"})

	require.Equal(t, 0.0, e.EstimateRebalanceCost(1, nil))
}

func TestEstimateRebalanceCostSkewsTowardBusiestBucket(t *testing.T) {
	e, cache, _, _, _ := newTestEngine(t)
	seedRangeMapping(cache, 1, "global-group")
	cache.PutShard(&topology.Shard{ID: 1, GroupID: "shard-a", MapID: 1, State: topology.ShardEnabled, LowerBound: "0"})
	cache.PutShard(&topology.Shard{ID: 2, GroupID: "shard-b", MapID: 1, State: topology.ShardEnabled, LowerBound: "100"})

	var keys []string
	for i := 0; i < 200; i++ {
		keys = append(keys, "key-"+strconv.Itoa(i))
	}

	skew := e.EstimateRebalanceCost(1, keys)
	require.GreaterOrEqual(t, skew, 1.0)
}
