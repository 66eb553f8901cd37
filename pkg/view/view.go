// Package view computes ClusterView snapshots: the per-vbucket read/write
// replica lists and move map derived from a pair of server lists. Build is
// a pure function of its inputs plus the fixed replication factor and
// vbucket count, so two processes fed the same config produce bit-identical
// views without needing to coordinate over the network.
package view

import (
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/cuemby/vshard/pkg/ring"
)

// Move records that a vbucket's replica assignment changed between the
// current and next server lists.
type Move struct {
	Old []string
	New []string
}

// View is an immutable snapshot of cluster membership and per-vbucket
// replica assignment, identified by a monotonically increasing ViewNumber.
// Callers must never mutate the slices or map below; WithViewNumber
// returns a new View sharing the same replica tables when only the number
// needs to change.
type View struct {
	ViewNumber uint64
	Servers    []string
	Replicas   int
	Vbuckets   int
	ReadSet    [][]string
	WriteSet   [][]string
	Changes    map[int]Move
}

// WithViewNumber returns a shallow copy of v with ViewNumber replaced,
// leaving every replica table shared (and therefore still immutable).
func (v *View) WithViewNumber(n uint64) *View {
	cp := *v
	cp.ViewNumber = n
	return &cp
}

// ReadReplicas returns the read replica list for vbucket.
func (v *View) ReadReplicas(vbucket int) []string {
	return v.ReadSet[vbucket]
}

// WriteReplicas returns the write replica list for vbucket.
func (v *View) WriteReplicas(vbucket int) []string {
	return v.WriteSet[vbucket]
}

// InTransition reports whether at least one vbucket's replica set differs
// between the current and next server lists. A non-empty next list that
// yields the same assignment for every vbucket is not reported as a
// transition.
func (v *View) InTransition() bool {
	return len(v.Changes) > 0
}

// VBucketForKey maps key to a vbucket in [0, vbuckets) using a stable
// non-cryptographic hash. vbuckets must be a power of two.
func VBucketForKey(key string, vbuckets int) int {
	return int(xxhash.Sum64String(key) & uint64(vbuckets-1))
}

// Build computes read/write replica sets and the move map for every
// vbucket from current and next server lists. An empty next means the
// configuration is stable; a non-empty next means a transition is in
// flight and replica sets are widened to cover both topologies.
func Build(current, next []string, replicas, vbuckets int) *View {
	v := &View{
		Servers:  dedupConcat(current, next),
		Replicas: replicas,
		Vbuckets: vbuckets,
		ReadSet:  make([][]string, vbuckets),
		WriteSet: make([][]string, vbuckets),
		Changes:  make(map[int]Move),
	}

	if len(next) == 0 {
		r := ring.New(vbuckets)
		if len(current) > 0 {
			r.Update(len(current))
		}
		n := min(replicas, len(current))
		for vb := 0; vb < vbuckets; vb++ {
			set := resolveServers(r, vb, n, current)
			v.ReadSet[vb] = set
			v.WriteSet[vb] = set
		}
		return v
	}

	currentRing := ring.New(vbuckets)
	if len(current) > 0 {
		currentRing.Update(len(current))
	}
	newRing := ring.New(vbuckets)
	newRing.Update(len(next))

	nCurrent := min(replicas, len(current))
	nNew := min(replicas, len(next))

	for vb := 0; vb < vbuckets; vb++ {
		curNodes := resolveServers(currentRing, vb, nCurrent, current)
		newNodes := resolveServers(newRing, vb, nNew, next)

		merged := dedupConcat(curNodes, newNodes)
		v.ReadSet[vb] = merged
		v.WriteSet[vb] = merged

		if !sameSet(curNodes, newNodes) {
			v.Changes[vb] = Move{Old: curNodes, New: newNodes}
		}
	}

	return v
}

func resolveServers(r *ring.Ring, vbucket, replicas int, servers []string) []string {
	if len(servers) == 0 || replicas == 0 {
		return nil
	}
	indices := r.NodesFor(vbucket, replicas)
	out := make([]string, len(indices))
	for i, idx := range indices {
		out[i] = servers[idx]
	}
	return out
}

// dedupConcat concatenates a and b, preserving the order of first
// occurrence and dropping later duplicates.
func dedupConcat(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range a {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range b {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sa := append([]string{}, a...)
	sb := append([]string{}, b...)
	sort.Strings(sa)
	sort.Strings(sb)
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
