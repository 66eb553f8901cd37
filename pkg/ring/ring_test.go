package ring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_PanicsOnNonPositiveSlots(t *testing.T) {
	assert.Panics(t, func() { New(0) })
	assert.Panics(t, func() { New(-8) })
}

func TestUpdate_FirstAssignmentGivesAllSlotsToNodeZero(t *testing.T) {
	r := New(8)
	r.Update(1)

	require.Equal(t, 1, r.Nodes())
	for slot := 0; slot < 8; slot++ {
		nodes := r.NodesFor(slot, 1)
		assert.Equal(t, []int{0}, nodes)
	}
}

func TestUpdate_GrowthOnlyMovesSlotsToNewNode(t *testing.T) {
	r := New(128)
	r.Update(1)
	r.Update(2)

	before := map[int]int{}
	for slot := 0; slot < 128; slot++ {
		before[slot] = r.NodesFor(slot, 1)[0]
	}

	r.Update(3)

	moved := 0
	for slot := 0; slot < 128; slot++ {
		after := r.NodesFor(slot, 1)[0]
		if after != before[slot] {
			require.Equal(t, 2, after, "slot %d moved to an existing node, not the new one", slot)
			moved++
		}
	}
	assert.Equal(t, 128/3, moved)
}

func TestUpdate_PanicsOnShrink(t *testing.T) {
	r := New(8)
	r.Update(4)
	assert.Panics(t, func() { r.Update(2) })
}

func TestUpdate_NoopWhenNodesUnchanged(t *testing.T) {
	r := New(8)
	r.Update(2)
	before := snapshot(r)
	r.Update(2)
	assert.Equal(t, before, snapshot(r))
}

func TestNodesFor_ReturnsDistinctNodesWalkingForward(t *testing.T) {
	r := New(128)
	r.Update(4)

	nodes := r.NodesFor(0, 3)
	assert.Len(t, nodes, 3)
	assert.True(t, allDistinct(nodes))
}

func TestNodesFor_PadsWithOriginalOwnerWhenFewerNodesThanReplicas(t *testing.T) {
	r := New(8)
	r.Update(1)

	nodes := r.NodesFor(3, 3)
	assert.Equal(t, []int{0, 0, 0}, nodes)
}

func TestNodesFor_WrapsAroundSlotSpace(t *testing.T) {
	r := New(8)
	r.Update(2)

	nodes := r.NodesFor(7, 2)
	assert.Len(t, nodes, 2)
	assert.True(t, allDistinct(nodes))
}

func snapshot(r *Ring) []int {
	out := make([]int, r.slots)
	for s := 0; s < r.slots; s++ {
		out[s] = r.NodesFor(s, 1)[0]
	}
	return out
}

func allDistinct(nodes []int) bool {
	seen := make(map[int]bool, len(nodes))
	for _, n := range nodes {
		if seen[n] {
			return false
		}
		seen[n] = true
	}
	return true
}
