package network

import (
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb"
)

// NodeID identifies a junction or endpoint of the river network.
// Input node ids start at 1; zero means "not yet resolved" (see ResolveNodes).
type NodeID int64

// NoID marks an unset branch, connection or segment id.
const NoID int32 = -1

// Reach is a directed river segment flowing FromNode → ToNode.
//
// Optional numeric attributes use NaN for null. Derived fields are written
// by the pipeline stages and reset whenever their stage runs again.
type Reach struct {
	ID       int64
	FromNode NodeID
	ToNode   NodeID

	Start    orb.Point      // upstream endpoint
	End      orb.Point      // downstream endpoint
	Geometry orb.LineString // optional full polyline

	Length       float64
	ElevUp       float64
	ElevDown     float64
	DrainageArea float64 // km²
	Station      string  // measurement key; non-empty marks a survey station

	// Derived.
	BranchID     int32
	ConnectID    int32 // branch this reach's branch drains into (terminal reach only)
	BranchLength float64
	DownDistance float64
	SegmentID    int32
	SegmentRank  int32
	DeltaDA      float64
}

// NewReach returns a reach with all optional and derived fields null.
func NewReach(id int64, from, to NodeID, length float64) Reach {
	r := Reach{
		ID:           id,
		FromNode:     from,
		ToNode:       to,
		Length:       length,
		ElevUp:       math.NaN(),
		ElevDown:     math.NaN(),
		DrainageArea: math.NaN(),
	}
	r.resetDerived()
	return r
}

func (r *Reach) resetDerived() {
	r.BranchID = NoID
	r.ConnectID = NoID
	r.BranchLength = math.NaN()
	r.DownDistance = math.NaN()
	r.SegmentID = NoID
	r.SegmentRank = NoID
	r.DeltaDA = math.NaN()
}

// IsNull reports whether an optional attribute value is missing.
func IsNull(v float64) bool { return math.IsNaN(v) }

// Connection records one branch draining into another.
type Connection struct {
	Branch    int32 // upstream branch
	Into      int32 // receiving branch
	ReachID   int64 // terminal reach of Branch
	JoinReach int64 // first reach of Into below the junction
	Node      NodeID
}

// Network holds every reach in an index-addressable arena, ordered by reach
// ID, together with precomputed adjacency keyed by node.
type Network struct {
	Reaches []Reach

	// Fields holds generic per-reach attribute columns (slope, discharge,
	// interpolated and smoothed values). Every column has len(Reaches) entries.
	Fields map[string][]float64

	Outlet      int32 // arena index of the outlet reach, -1 if unknown
	Connections []Connection
	Gaps        []*StructuralGapError
	RunID       string

	index  map[int64]int32
	byFrom map[NodeID][]int32
	byTo   map[NodeID][]int32
}

// New builds a network arena from reaches. The input slice is copied and
// sorted by ID; duplicate IDs are rejected.
func New(reaches []Reach) (*Network, error) {
	rs := make([]Reach, len(reaches))
	copy(rs, reaches)
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].ID < rs[j].ID })

	for i := 1; i < len(rs); i++ {
		if rs[i].ID == rs[i-1].ID {
			return nil, fmt.Errorf("reach %d: %w", rs[i].ID, ErrDuplicateReach)
		}
	}

	n := &Network{
		Reaches: rs,
		Fields:  make(map[string][]float64),
		Outlet:  -1,
	}
	n.reindex()
	return n, nil
}

// reindex rebuilds the id and node adjacency maps. Adjacency lists are in
// arena order, so the first entry is always the lowest reach ID.
func (n *Network) reindex() {
	n.index = make(map[int64]int32, len(n.Reaches))
	n.byFrom = make(map[NodeID][]int32, len(n.Reaches))
	n.byTo = make(map[NodeID][]int32, len(n.Reaches))
	for i := range n.Reaches {
		r := &n.Reaches[i]
		idx := int32(i)
		n.index[r.ID] = idx
		n.byFrom[r.FromNode] = append(n.byFrom[r.FromNode], idx)
		n.byTo[r.ToNode] = append(n.byTo[r.ToNode], idx)
	}
}

// Len returns the number of reaches.
func (n *Network) Len() int { return len(n.Reaches) }

// Index returns the arena index of the reach with the given ID.
func (n *Network) Index(id int64) (int32, bool) {
	i, ok := n.index[id]
	return i, ok
}

// Reach returns the reach with the given ID.
func (n *Network) Reach(id int64) (*Reach, error) {
	i, ok := n.index[id]
	if !ok {
		return nil, fmt.Errorf("reach %d: %w", id, ErrUnknownReach)
	}
	return &n.Reaches[i], nil
}

// Downstream returns the reaches starting at the node where reach i ends.
func (n *Network) Downstream(i int32) []int32 {
	return n.byFrom[n.Reaches[i].ToNode]
}

// Upstream returns the reaches ending at the node where reach i starts.
func (n *Network) Upstream(i int32) []int32 {
	return n.byTo[n.Reaches[i].FromNode]
}

// Next returns the downstream successor of reach i. At a bifurcation the
// lowest reach ID is followed.
func (n *Network) Next(i int32) (int32, bool) {
	ds := n.Downstream(i)
	for _, d := range ds {
		if d != i {
			return d, true
		}
	}
	return -1, false
}

// IsSink reports whether nothing flows out of reach i.
func (n *Network) IsSink(i int32) bool {
	_, ok := n.Next(i)
	return !ok
}

// Field returns the named attribute column, or nil if it does not exist.
func (n *Network) Field(name string) []float64 {
	return n.Fields[name]
}

// EnsureField returns the named column, creating it filled with nulls.
func (n *Network) EnsureField(name string) []float64 {
	if col, ok := n.Fields[name]; ok {
		return col
	}
	col := make([]float64, len(n.Reaches))
	for i := range col {
		col[i] = math.NaN()
	}
	n.Fields[name] = col
	return col
}

// ResetField replaces the named column with a fresh all-null column.
func (n *Network) ResetField(name string) []float64 {
	delete(n.Fields, name)
	return n.EnsureField(name)
}

// FieldNames returns attribute column names in sorted order.
func (n *Network) FieldNames() []string {
	names := make([]string, 0, len(n.Fields))
	for name := range n.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Trace follows successors from reach i to the network sink and returns the
// visited arena indices, i first. It stops early on a revisit.
func (n *Network) Trace(i int32) ([]int32, error) {
	seen := make(map[int32]bool)
	path := []int32{i}
	seen[i] = true
	cur := i
	for {
		next, ok := n.Next(cur)
		if !ok {
			return path, nil
		}
		if seen[next] {
			return path, &CycleError{SourceID: n.Reaches[i].ID, ReachID: n.Reaches[next].ID, Steps: len(path)}
		}
		seen[next] = true
		path = append(path, next)
		cur = next
	}
}
