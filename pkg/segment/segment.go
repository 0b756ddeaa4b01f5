// Package segment groups reaches into segments of slowly growing drainage
// area and smooths reach attributes within each segment.
package segment

import (
	"fmt"
	"math"
	"sort"

	"rivernet/pkg/network"
)

// DefaultThreshold is the fractional drainage-area change that ends a segment.
const DefaultThreshold = 0.10

// Segment assigns SegmentID, SegmentRank and DeltaDA to every reach and
// returns the number of segments.
//
// Seeds are taken from the highest ElevDown down (reach ID breaks ties, null
// elevations last). Each seed gets rank 0 and the segment grows downstream
// while the next reach is unassigned and
//
//	(DA(next) - DA(last)) / DA(next) < threshold
//
// where DA(last) is the drainage area of the reach most recently added.
// A null or zero DA(next) yields a change of 0; a null DA(last) counts as 0.
// A reach that fails the test becomes a seed later on.
func Segment(n *network.Network, threshold float64) (int, error) {
	if math.IsNaN(threshold) || threshold <= 0 {
		return 0, fmt.Errorf("threshold %v must be positive", threshold)
	}
	for i := range n.Reaches {
		r := &n.Reaches[i]
		r.SegmentID = network.NoID
		r.SegmentRank = network.NoID
		r.DeltaDA = math.NaN()
	}

	order := make([]int32, n.Len())
	for i := range order {
		order[i] = int32(i)
	}
	sort.SliceStable(order, func(a, b int) bool {
		ea, eb := n.Reaches[order[a]].ElevDown, n.Reaches[order[b]].ElevDown
		switch {
		case network.IsNull(ea) != network.IsNull(eb):
			return network.IsNull(eb)
		case ea != eb && !network.IsNull(ea):
			return ea > eb
		}
		return n.Reaches[order[a]].ID < n.Reaches[order[b]].ID
	})

	var sid int32
	for _, seed := range order {
		if n.Reaches[seed].SegmentID != network.NoID {
			continue
		}
		sid++
		grow(n, seed, sid, threshold)
	}
	return int(sid), nil
}

// grow assigns seed and its accepted downstream continuation to segment sid.
func grow(n *network.Network, seed, sid int32, threshold float64) {
	r := &n.Reaches[seed]
	r.SegmentID = sid
	r.SegmentRank = 0
	startDA := normDA(r.DrainageArea)

	cur, rank := seed, int32(0)
	for {
		next, ok := n.Next(cur)
		if !ok {
			return
		}
		cand := &n.Reaches[next]
		if cand.SegmentID != network.NoID {
			return
		}
		delta := deltaDA(startDA, cand.DrainageArea)
		if !(delta < threshold) {
			return
		}
		rank++
		cand.SegmentID = sid
		cand.SegmentRank = rank
		cand.DeltaDA = delta
		startDA = normDA(cand.DrainageArea)
		cur = next
	}
}

func normDA(v float64) float64 {
	if network.IsNull(v) {
		return 0
	}
	return v
}

func deltaDA(start, cand float64) float64 {
	if network.IsNull(cand) || cand == 0 {
		return 0
	}
	return (cand - start) / cand
}

// Segments returns the member arena indices of every segment in rank order,
// keyed by segment ID.
func Segments(n *network.Network) map[int32][]int32 {
	out := make(map[int32][]int32)
	for i, r := range n.Reaches {
		if r.SegmentID == network.NoID {
			continue
		}
		out[r.SegmentID] = append(out[r.SegmentID], int32(i))
	}
	for _, members := range out {
		sort.Slice(members, func(a, b int) bool {
			return n.Reaches[members[a]].SegmentRank < n.Reaches[members[b]].SegmentRank
		})
	}
	return out
}
