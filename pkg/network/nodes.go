package network

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/tidwall/rtree"
)

// ResolveNodes assigns FromNode/ToNode to reaches that carry endpoint
// coordinates but no node ids. Endpoints closer than tol share a node, which
// replaces exact "x,y" text keys that break on rounding noise.
//
// Reaches are visited in ID order so assignments are deterministic. Existing
// non-zero node ids are kept. Returns the number of nodes created.
//
// A reach that needs resolving but whose Start equals its End (no usable
// coordinates) fails with ErrNoCoordinates before any node is assigned.
func ResolveNodes(reaches []Reach, tol float64) (int, error) {
	var errs []error
	for _, r := range reaches {
		if (r.FromNode == 0 || r.ToNode == 0) && r.Start == r.End {
			errs = append(errs, fmt.Errorf("reach %d: %w", r.ID, ErrNoCoordinates))
		}
	}
	if len(errs) > 0 {
		return 0, errors.Join(errs...)
	}

	order := make([]int, len(reaches))
	var maxID NodeID
	for i := range reaches {
		order[i] = i
		maxID = max(maxID, reaches[i].FromNode, reaches[i].ToNode)
	}
	sort.Slice(order, func(a, b int) bool { return reaches[order[a]].ID < reaches[order[b]].ID })

	var tr rtree.RTreeG[NodeID]
	points := make(map[NodeID]orb.Point)
	created := 0

	// Seed the index with nodes the input already names.
	for _, i := range order {
		r := &reaches[i]
		if r.FromNode != 0 {
			if _, ok := points[r.FromNode]; !ok {
				points[r.FromNode] = r.Start
				tr.Insert(r.Start, r.Start, r.FromNode)
			}
		}
		if r.ToNode != 0 {
			if _, ok := points[r.ToNode]; !ok {
				points[r.ToNode] = r.End
				tr.Insert(r.End, r.End, r.ToNode)
			}
		}
	}

	lookup := func(p orb.Point) NodeID {
		best := NodeID(0)
		bestDist := math.Inf(1)
		lo := [2]float64{p[0] - tol, p[1] - tol}
		hi := [2]float64{p[0] + tol, p[1] + tol}
		tr.Search(lo, hi, func(min, _ [2]float64, id NodeID) bool {
			d := math.Hypot(min[0]-p[0], min[1]-p[1])
			if d <= tol && (d < bestDist || (d == bestDist && id < best)) {
				best = id
				bestDist = d
			}
			return true
		})
		if best != 0 {
			return best
		}
		maxID++
		created++
		points[maxID] = p
		tr.Insert(p, p, maxID)
		return maxID
	}

	for _, i := range order {
		r := &reaches[i]
		if r.FromNode == 0 {
			r.FromNode = lookup(r.Start)
		}
		if r.ToNode == 0 {
			r.ToNode = lookup(r.End)
		}
	}
	return created, nil
}
