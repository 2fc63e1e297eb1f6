package sharding

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fabrikd/fabrikd/topology"
)

func TestRangeIntComparatorOrdersNumerically(t *testing.T) {
	c, err := ComparatorFor(topology.TypeRange)
	require.NoError(t, err)

	a, _ := c.Encode("10")
	b, _ := c.Encode("9")
	require.Positive(t, c.Compare(a, b), "10 should compare greater than 9 as integers, not strings")
}

func TestRangeIntComparatorRejectsNonInteger(t *testing.T) {
	c, _ := ComparatorFor(topology.TypeRange)
	_, err := c.Encode("not-a-number")
	require.Error(t, err)
}

func TestRangeStringComparatorLexicographic(t *testing.T) {
	c, _ := ComparatorFor(topology.TypeRangeString)
	require.Negative(t, c.Compare("apple", "banana"))
}

func TestRangeDatetimeComparatorChronological(t *testing.T) {
	c, _ := ComparatorFor(topology.TypeRangeDatetime)
	early, err := c.Encode("2020-01-01T00:00:00Z")
	require.NoError(t, err)
	late, err := c.Encode("2021-01-01T00:00:00Z")
	require.NoError(t, err)
	require.Negative(t, c.Compare(early, late))
}

func TestHashComparatorUpperBoundWrapsAtRingEnd(t *testing.T) {
	c, _ := ComparatorFor(topology.TypeHash)
	sorted := []string{"10", "20", "30"}
	upper, wraps := c.UpperBoundFor(sorted, 2)
	require.True(t, wraps)
	require.Equal(t, "10", upper)

	upper, wraps = c.UpperBoundFor(sorted, 0)
	require.False(t, wraps)
	require.Equal(t, "20", upper)
}

func TestHashOfIsDeterministic(t *testing.T) {
	require.Equal(t, HashOf("group-a"), HashOf("group-a"))
	require.NotEqual(t, HashOf("group-a"), HashOf("group-b"))
	require.Len(t, HashOf("group-a"), 32, "hex-encoded 16-byte md5 digest")
}
