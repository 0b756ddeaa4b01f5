package network

import (
	"errors"
	"fmt"
	"log"
)

// BuildOptions configures Build.
type BuildOptions struct {
	OutletID int64 // 0 = detect from topology
}

// Build creates a network from reaches, selects the outlet and assigns
// branches. The returned error covers unusable input only; structural gaps
// found while tracing branches are kept in Network.Gaps.
func Build(reaches []Reach, opts BuildOptions) (*Network, error) {
	n, err := New(reaches)
	if err != nil {
		return nil, err
	}
	if err := FindOutlet(n, opts.OutletID); err != nil {
		return nil, fmt.Errorf("find outlet: %w", err)
	}
	if err := AssignBranches(n); err != nil {
		log.Printf("Warning: %d structural gaps while assigning branches", len(n.Gaps))
	}
	return n, nil
}

// AssignBranches traces branches and fills BranchID, ConnectID and
// BranchLength on every reach.
//
// Seeds are taken in ascending reach ID order. A trace continues while
// exactly one unassigned reach starts where the current one ends, so it stops
// at bifurcations, at confluences already claimed by another branch, and at
// sinks. The returned error joins a StructuralGapError for every sink other
// than the outlet.
//
// ConnectID is set on a branch's terminal reach and names the branch it flows
// into. The receiving-side view (which tributary branches join at a reach) is
// in n.Connections, keyed by JoinReach.
func AssignBranches(n *Network) error {
	for i := range n.Reaches {
		n.Reaches[i].BranchID = NoID
		n.Reaches[i].ConnectID = NoID
		n.Reaches[i].BranchLength = 0
	}
	n.Connections = nil
	n.Gaps = nil

	var branches [][]int32
	for seed := range n.Reaches {
		if n.Reaches[seed].BranchID != NoID {
			continue
		}
		bid := int32(len(branches) + 1)
		members := n.traceBranch(int32(seed), bid)
		branches = append(branches, members)
	}

	var errs []error
	for b, members := range branches {
		bid := int32(b + 1)

		var total float64
		for _, m := range members {
			total += n.Reaches[m].Length
		}
		for _, m := range members {
			n.Reaches[m].BranchLength = total
		}

		last := members[len(members)-1]
		term := &n.Reaches[last]
		into, ok := n.receivingBranch(last, bid)
		if ok {
			join := &n.Reaches[into]
			term.ConnectID = join.BranchID
			n.Connections = append(n.Connections, Connection{
				Branch:    bid,
				Into:      join.BranchID,
				ReachID:   term.ID,
				JoinReach: join.ID,
				Node:      term.ToNode,
			})
			continue
		}
		if last != n.Outlet {
			gap := &StructuralGapError{ReachID: term.ID, Node: term.ToNode}
			n.Gaps = append(n.Gaps, gap)
			errs = append(errs, gap)
		}
	}
	return errors.Join(errs...)
}

// traceBranch assigns bid to seed and every reach reachable by unambiguous
// continuation, returning the members in flow order.
func (n *Network) traceBranch(seed, bid int32) []int32 {
	n.Reaches[seed].BranchID = bid
	members := []int32{seed}
	cur := seed
	for {
		next := int32(-1)
		candidates := 0
		for _, d := range n.Downstream(cur) {
			if n.Reaches[d].BranchID == NoID {
				next = d
				candidates++
			}
		}
		if candidates != 1 {
			return members
		}
		n.Reaches[next].BranchID = bid
		members = append(members, next)
		cur = next
	}
}

// receivingBranch returns the lowest-ID reach of another branch that starts
// where reach i ends.
func (n *Network) receivingBranch(i, bid int32) (int32, bool) {
	for _, d := range n.Downstream(i) {
		if n.Reaches[d].BranchID != bid {
			return d, true
		}
	}
	return -1, false
}

// Branches returns the member reach IDs of every branch, keyed by branch ID.
func (n *Network) Branches() map[int32][]int64 {
	out := make(map[int32][]int64)
	for _, r := range n.Reaches {
		if r.BranchID == NoID {
			continue
		}
		out[r.BranchID] = append(out[r.BranchID], r.ID)
	}
	return out
}
