package network

import (
	"errors"
	"log"
	"math"
)

// AccumulateDistance assigns DownDistance to every reach, with the outlet at
// 0 and
//
//	DownDistance(up) == DownDistance(down) + Length(up)
//
// for every pair of adjacent reaches. Sources are reaches with no upstream
// reach or with a null drainage area.
//
// Each source walks downstream collecting reach indices until it meets a
// reach whose distance is already fixed (the outlet, or a reach resolved by
// an earlier source). The collected path is then unwound outlet-first,
// accumulating lengths. A second pass starts a trace from every reach the
// sources never reached, such as the side of a bifurcation Next does not
// follow. Traces that end at a non-outlet sink or loop are abandoned and
// reported; the returned error joins those reports and every other reach is
// still assigned.
func AccumulateDistance(n *Network) error {
	for i := range n.Reaches {
		n.Reaches[i].DownDistance = math.NaN()
	}
	if n.Outlet < 0 {
		return ErrNoOutlet
	}
	n.Reaches[n.Outlet].DownDistance = 0

	dead := make([]bool, n.Len())
	var errs []error
	for i := range n.Reaches {
		src := int32(i)
		if !n.isSource(src) {
			continue
		}
		if err := n.traceDistance(src, dead); err != nil {
			errs = append(errs, err)
		}
	}
	for i := range n.Reaches {
		if !IsNull(n.Reaches[i].DownDistance) || dead[i] {
			continue
		}
		if err := n.traceDistance(int32(i), dead); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		log.Printf("Warning: %d source traces did not reach the outlet", len(errs))
	}
	return errors.Join(errs...)
}

func (n *Network) isSource(i int32) bool {
	return len(n.Upstream(i)) == 0 || IsNull(n.Reaches[i].DrainageArea)
}

// traceDistance resolves one source path. Reaches on an abandoned path are
// marked dead so later sources sharing them stop without a duplicate report.
func (n *Network) traceDistance(src int32, dead []bool) error {
	var path []int32
	onPath := make(map[int32]bool)
	budget := n.Len()

	cur := src
	for {
		r := &n.Reaches[cur]
		if !IsNull(r.DownDistance) {
			break
		}
		if dead[cur] {
			markDead(path, dead)
			return nil
		}
		if onPath[cur] || len(path) > budget {
			markDead(path, dead)
			return &CycleError{SourceID: n.Reaches[src].ID, ReachID: r.ID, Steps: len(path)}
		}
		onPath[cur] = true
		path = append(path, cur)

		next, ok := n.Next(cur)
		if !ok {
			markDead(path, dead)
			return &StructuralGapError{ReachID: r.ID, Node: r.ToNode}
		}
		cur = next
	}

	sum := n.Reaches[cur].DownDistance
	for k := len(path) - 1; k >= 0; k-- {
		r := &n.Reaches[path[k]]
		sum += r.Length
		if IsNull(r.DownDistance) {
			r.DownDistance = sum
		}
	}
	return nil
}

func markDead(path []int32, dead []bool) {
	for _, p := range path {
		dead[p] = true
	}
}
