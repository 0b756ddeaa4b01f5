package network

import "fmt"

// UnionFind is a disjoint-set over reach arena indices with path halving and
// union by rank.
type UnionFind struct {
	parent []int32
	rank   []byte
	size   []int32
}

// NewUnionFind creates a UnionFind for n reaches.
func NewUnionFind(n int) *UnionFind {
	parent := make([]int32, n)
	size := make([]int32, n)
	for i := range n {
		parent[i] = int32(i)
		size[i] = 1
	}
	return &UnionFind{
		parent: parent,
		rank:   make([]byte, n),
		size:   size,
	}
}

// Find returns the representative of the set containing x.
func (uf *UnionFind) Find(x int32) int32 {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

// Union merges the sets containing x and y. Returns false if already joined.
func (uf *UnionFind) Union(x, y int32) bool {
	rx := uf.Find(x)
	ry := uf.Find(y)
	if rx == ry {
		return false
	}
	if uf.rank[rx] < uf.rank[ry] {
		rx, ry = ry, rx
	}
	uf.parent[ry] = rx
	uf.size[rx] += uf.size[ry]
	if uf.rank[rx] == uf.rank[ry] {
		uf.rank[rx]++
	}
	return true
}

// Size returns the number of members in x's set.
func (uf *UnionFind) Size(x int32) int32 {
	return uf.size[uf.Find(x)]
}

// Components groups reaches into weakly connected fragments (flow direction
// ignored). The returned map is keyed by representative arena index.
func Components(n *Network) (*UnionFind, map[int32][]int32) {
	uf := NewUnionFind(n.Len())
	for i := range n.Reaches {
		for _, d := range n.Downstream(int32(i)) {
			uf.Union(int32(i), d)
		}
	}
	groups := make(map[int32][]int32)
	for i := range n.Reaches {
		root := uf.Find(int32(i))
		groups[root] = append(groups[root], int32(i))
	}
	return uf, groups
}

// Sinks returns the arena indices of reaches with no downstream successor.
func Sinks(n *Network) []int32 {
	var sinks []int32
	for i := range n.Reaches {
		if n.IsSink(int32(i)) {
			sinks = append(sinks, int32(i))
		}
	}
	return sinks
}

// FindOutlet selects the outlet reach and stores it in n.Outlet.
//
// With outletID set, that reach must exist and be a sink. Otherwise the sink
// of the largest connected fragment wins, lowest ID on ties. Other sinks are
// left for AssignBranches to report as structural gaps.
func FindOutlet(n *Network, outletID int64) error {
	n.Outlet = -1
	if n.Len() == 0 {
		return ErrNoOutlet
	}

	if outletID != 0 {
		idx, ok := n.Index(outletID)
		if !ok {
			return fmt.Errorf("outlet %d: %w", outletID, ErrUnknownReach)
		}
		if !n.IsSink(idx) {
			return fmt.Errorf("outlet %d has downstream reaches", outletID)
		}
		n.Outlet = idx
		return nil
	}

	sinks := Sinks(n)
	if len(sinks) == 0 {
		return fmt.Errorf("every reach has a successor: %w", ErrNoOutlet)
	}

	uf, _ := Components(n)
	best := sinks[0]
	for _, s := range sinks[1:] {
		if uf.Size(s) > uf.Size(best) {
			best = s
		}
	}
	n.Outlet = best
	return nil
}
