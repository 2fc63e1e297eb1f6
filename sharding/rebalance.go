package sharding

import (
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/fabrikd/fabrikd/metrics"
)

// EstimateRebalanceCost buckets a sample of keys into the mapping's
// current shard count using xxhash and reports the busiest-to-quietest
// bucket ratio as the rebalance skew gauge, a cheap pre-check an
// operator can run before committing to a move or split without
// touching any backend. A ratio near 1 means the sample is roughly
// even across shards; a high ratio flags a hot shard worth splitting.
func (e *Engine) EstimateRebalanceCost(mappingID int64, sampleKeys []string) float64 {
	shards := e.cache.ShardsOfMapping(mappingID)
	if len(shards) == 0 || len(sampleKeys) == 0 {
		metrics.RebalanceSkew.WithLabelValues(strconv.FormatInt(mappingID, 10)).Set(0)
		return 0
	}

	buckets := make([]int, len(shards))
	for _, key := range sampleKeys {
		h := xxhash.Sum64String(key)
		buckets[h%uint64(len(buckets))]++
	}

	min, max := buckets[0], buckets[0]
	for _, c := range buckets[1:] {
		if c < min {
			min = c
		}
		if c > max {
			max = c
		}
	}
	skew := 1.0
	if min > 0 {
		skew = float64(max) / float64(min)
	} else if max > 0 {
		skew = float64(max)
	}

	metrics.RebalanceSkew.WithLabelValues(strconv.FormatInt(mappingID, 10)).Set(skew)
	return skew
}
