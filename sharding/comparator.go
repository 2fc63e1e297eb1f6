// Package sharding implements the shard index: per-type key
// comparators, lookup, definition-time shard creation, enable/disable/
// prune, and online move/split. Grounded on the teacher's DatabaseProxy
// dispatch idiom (cluster/prx.go's Proxy interface with multiple
// concrete backends selected by type) generalized to a Comparator
// dispatched by topology.ShardingType.
package sharding

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fabrikd/fabrikd/topology"
)

// Comparator encodes a sharding key into the type's lower_bound storage
// format, compares two encoded bounds, and walks the upper bound of a
// shard given the mapping's sorted shard list — the dispatch surface
// §4.6's per-type table describes.
type Comparator interface {
	// Encode renders a raw key (the value a caller looks up or the
	// lower_bound supplied to add_shard) into its persisted string form.
	Encode(key string) (string, error)

	// Compare orders two encoded bounds: negative if a < b, zero if
	// equal, positive if a > b.
	Compare(a, b string) int

	// UpperBoundFor returns the exclusive upper bound of shards[idx] in
	// a lower_bound-sorted shard list, and whether it wraps (HASH only,
	// when idx is the last shard in circular order).
	UpperBoundFor(sorted []string, idx int) (bound string, wraps bool)
}

// ComparatorFor dispatches on a mapping's sharding type.
func ComparatorFor(t topology.ShardingType) (Comparator, error) {
	switch t {
	case topology.TypeRange:
		return rangeIntComparator{}, nil
	case topology.TypeRangeString:
		return rangeStringComparator{}, nil
	case topology.TypeRangeDatetime:
		return rangeDatetimeComparator{}, nil
	case topology.TypeHash:
		return hashComparator{}, nil
	default:
		return nil, fmt.Errorf("unknown sharding type %q", t)
	}
}

// SortBounds returns shard lower_bounds sorted by the comparator's
// order, used by lookup and UpperBoundFor.
func SortBounds(c Comparator, bounds []string) []string {
	sorted := append([]string(nil), bounds...)
	sort.Slice(sorted, func(i, j int) bool { return c.Compare(sorted[i], sorted[j]) < 0 })
	return sorted
}

// --- RANGE (signed integer) ---

type rangeIntComparator struct{}

func (rangeIntComparator) Encode(key string) (string, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(key), 10, 64)
	if err != nil {
		return "", fmt.Errorf("key %q is not a representable integer: %w", key, err)
	}
	return strconv.FormatInt(n, 10), nil
}

func (rangeIntComparator) Compare(a, b string) int {
	an, _ := strconv.ParseInt(a, 10, 64)
	bn, _ := strconv.ParseInt(b, 10, 64)
	switch {
	case an < bn:
		return -1
	case an > bn:
		return 1
	default:
		return 0
	}
}

func (c rangeIntComparator) UpperBoundFor(sorted []string, idx int) (string, bool) {
	if idx == len(sorted)-1 {
		return "", false
	}
	return sorted[idx+1], false
}

// --- RANGE_STRING (lexicographic) ---

type rangeStringComparator struct{}

func (rangeStringComparator) Encode(key string) (string, error) { return key, nil }

func (rangeStringComparator) Compare(a, b string) int { return strings.Compare(a, b) }

func (c rangeStringComparator) UpperBoundFor(sorted []string, idx int) (string, bool) {
	if idx == len(sorted)-1 {
		return "", false
	}
	return sorted[idx+1], false
}

// --- RANGE_DATETIME (chronological, RFC3339 storage) ---

type rangeDatetimeComparator struct{}

func (rangeDatetimeComparator) Encode(key string) (string, error) {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(key))
	if err != nil {
		return "", fmt.Errorf("key %q is not a representable datetime: %w", key, err)
	}
	return t.UTC().Format(time.RFC3339), nil
}

func (rangeDatetimeComparator) Compare(a, b string) int {
	at, _ := time.Parse(time.RFC3339, a)
	bt, _ := time.Parse(time.RFC3339, b)
	switch {
	case at.Before(bt):
		return -1
	case at.After(bt):
		return 1
	default:
		return 0
	}
}

func (c rangeDatetimeComparator) UpperBoundFor(sorted []string, idx int) (string, bool) {
	if idx == len(sorted)-1 {
		return "", false
	}
	return sorted[idx+1], false
}

// --- HASH (unsigned compare on 16-byte MD5, circular) ---

type hashComparator struct{}

func (hashComparator) Encode(key string) (string, error) {
	sum := md5.Sum([]byte(key))
	return hex.EncodeToString(sum[:]), nil
}

func (hashComparator) Compare(a, b string) int { return strings.Compare(a, b) }

// UpperBoundFor wraps: the last shard in circular order has no proper
// upper bound short of the domain maximum, reported via wraps=true so
// callers (prune) know to treat it as [lower_bound, MAX] ∪ [MIN, first).
func (c hashComparator) UpperBoundFor(sorted []string, idx int) (string, bool) {
	if idx == len(sorted)-1 {
		return sorted[0], true
	}
	return sorted[idx+1], false
}

// HashOf is the exported MD5-derivation helper used by add_shard to
// derive a HASH mapping's lower_bounds from each hosting group's id.
func HashOf(seed string) string {
	sum := md5.Sum([]byte(seed))
	return hex.EncodeToString(sum[:])
}
