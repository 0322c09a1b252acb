package geometry

import (
	"math/rand/v2"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEdgeIndex_SharedBorder(t *testing.T) {
	left := square(0, 0, 10)
	right := square(10.5, 0, 10)
	far := square(100, 100, 5)

	idx := NewEdgeIndex([]orb.Ring{left, right, far})
	assert.Equal(t, 12, idx.Len())

	contested := idx.Contested(1)
	require.NotEmpty(t, contested)
	for _, e := range contested {
		assert.NotEqual(t, 2, e.Owner, "isolated ring should have no contested edges")
	}

	// The facing edges (left's east side and right's west side) are contested.
	var owners = map[int]bool{}
	for _, e := range contested {
		owners[e.Owner] = true
	}
	assert.True(t, owners[0])
	assert.True(t, owners[1])
}

func TestEdgeIndex_IgnoresOwnEdges(t *testing.T) {
	idx := NewEdgeIndex([]orb.Ring{square(0, 0, 1)})
	assert.Empty(t, idx.Contested(5))
}

func TestEdgeIndex_OpenRingIsClosed(t *testing.T) {
	idx := NewEdgeIndex([]orb.Ring{{{0, 0}, {1, 0}, {1, 1}}})
	assert.Equal(t, 3, idx.Len())
}

func TestEdgeIndex_MatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewPCG(9, 9))
	var rings []orb.Ring
	for i := 0; i < 30; i++ {
		rings = append(rings, square(rng.Float64()*200, rng.Float64()*200, 5+rng.Float64()*20))
	}
	const threshold = 3.0

	idx := NewEdgeIndex(rings)
	got := map[[2]int]bool{}
	for _, e := range idx.Contested(threshold) {
		got[[2]int{e.Owner, e.Index}] = true
	}

	want := map[[2]int]bool{}
	for i, ri := range rings {
		for ei, a := range ringEdges(ri) {
			for j, rj := range rings {
				if i == j {
					continue
				}
				for _, b := range ringEdges(rj) {
					if SegmentDistance(a[0], a[1], b[0], b[1]) <= threshold {
						want[[2]int{i, ei}] = true
					}
				}
			}
		}
	}
	assert.Equal(t, want, got)
}
