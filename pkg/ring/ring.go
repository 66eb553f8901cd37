// Package ring implements a consistent-hash ring that maps a fixed number
// of slots onto a growing number of nodes. Growing the node count moves
// slots only away from existing nodes onto the newly added node, never
// between two existing nodes, which keeps any previously computed replica
// set a stable prefix of the replica set computed after growth.
package ring

import "fmt"

// Ring maps slot indices in [0, slots) onto node indices in [0, nodes).
// It is not safe for concurrent use; callers that mutate and read
// concurrently must provide their own synchronization (pkg/view never
// shares one: Build creates its rings locally and drops them on return).
type Ring struct {
	slots int
	nodes int
	// owner[slot] is the node index currently assigned to that slot.
	owner []int
	// slotsOf[node] holds the slots owned by that node, kept sorted
	// ascending so ownedSlot can walk it by position.
	slotsOf map[int][]int
}

// New creates an unassigned ring of the given number of slots. slots must
// be a positive power of two; vbucket hashing elsewhere relies on this.
func New(slots int) *Ring {
	if slots <= 0 {
		panic(fmt.Sprintf("ring: slots must be positive, got %d", slots))
	}
	return &Ring{
		slots:   slots,
		nodes:   0,
		owner:   make([]int, slots),
		slotsOf: make(map[int][]int),
	}
}

// Nodes reports the number of nodes currently assigned slots.
func (r *Ring) Nodes() int {
	return r.nodes
}

// Slots reports the fixed slot count the ring was created with.
func (r *Ring) Slots() int {
	return r.slots
}

// Update grows the ring's node assignment from its current node count to
// nodes, reassigning the minimum number of slots needed to give the new
// nodes a fair share. It panics if asked to shrink: a ring cannot shrink
// in place, callers needing fewer nodes must build a fresh Ring via New.
func (r *Ring) Update(nodes int) {
	if nodes < r.nodes {
		panic(fmt.Sprintf("ring: cannot shrink from %d to %d nodes in place, build a fresh ring", r.nodes, nodes))
	}
	if nodes == r.nodes {
		return
	}

	if r.nodes == 0 {
		// First assignment: every slot starts on node 0.
		all := make([]int, r.slots)
		for s := range r.owner {
			r.owner[s] = 0
			all[s] = s
		}
		r.slotsOf[0] = all
		r.nodes = 1
	}

	for r.nodes < nodes {
		replaceSlots := r.slots / (r.nodes + 1)
		for i := 0; i < replaceSlots; i++ {
			replaceNode := r.mostLoadedNode()
			slot := r.ownedSlot(replaceNode, i)
			r.assignSlot(slot, r.nodes)
		}
		r.nodes++
	}
}

// mostLoadedNode returns the node owning the most slots, breaking ties in
// favor of the highest-numbered node.
func (r *Ring) mostLoadedNode() int {
	best := 0
	bestCount := len(r.slotsOf[0])
	for n := 1; n < r.nodes; n++ {
		count := len(r.slotsOf[n])
		if count >= bestCount {
			best = n
			bestCount = count
		}
	}
	return best
}

// ownedSlot returns the slot at position (number mod len(owned slots)) in
// node's sorted set of owned slots. Rotating the requested position by the
// iteration counter during Update spreads which slots a node gives up
// across repeated calls instead of always taking the same one.
func (r *Ring) ownedSlot(node, number int) int {
	owned := r.slotsOf[node]
	return owned[number%len(owned)]
}

// assignSlot moves slot from its current owner to node.
func (r *Ring) assignSlot(slot, node int) {
	old := r.owner[slot]
	r.slotsOf[old] = removeSlot(r.slotsOf[old], slot)
	r.owner[slot] = node
	r.slotsOf[node] = insertSlot(r.slotsOf[node], slot)
}

func removeSlot(slots []int, slot int) []int {
	for i, s := range slots {
		if s == slot {
			return append(slots[:i], slots[i+1:]...)
		}
	}
	return slots
}

func insertSlot(slots []int, slot int) []int {
	i := 0
	for i < len(slots) && slots[i] < slot {
		i++
	}
	slots = append(slots, 0)
	copy(slots[i+1:], slots[i:])
	slots[i] = slot
	return slots
}

// NodesFor returns up to replicas distinct node indices, starting at slot
// and walking forward (wrapping modulo the slot count) until that many
// unique nodes have been collected. If the ring has fewer nodes than
// replicas, the remaining positions repeat the slot's original owner,
// matching the degraded-redundancy behavior callers must tolerate.
func (r *Ring) NodesFor(slot, replicas int) []int {
	if r.nodes == 0 {
		return nil
	}
	slot = ((slot % r.slots) + r.slots) % r.slots
	want := replicas
	if want > r.nodes {
		want = r.nodes
	}

	result := make([]int, 0, replicas)
	seen := make(map[int]bool, want)
	for i := 0; i < r.slots && len(result) < want; i++ {
		node := r.owner[(slot+i)%r.slots]
		if !seen[node] {
			seen[node] = true
			result = append(result, node)
		}
	}

	originalOwner := r.owner[slot]
	for len(result) < replicas {
		result = append(result, originalOwner)
	}
	return result
}
