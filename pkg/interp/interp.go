// Package interp fills gaps in sparse reach attributes by linear
// interpolation against distance traced downstream from measured reaches.
package interp

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sort"

	"rivernet/pkg/network"
)

// DefaultPrefix names interpolated columns: "WS_Elev" becomes "INTP_WS_Elev".
const DefaultPrefix = "INTP_"

// Options configures Interpolate.
type Options struct {
	Prefix string // output column prefix, DefaultPrefix if empty
}

// Result summarizes one Interpolate call.
type Result struct {
	Field     string
	Anchors   int
	Runs      int
	Filled    int
	Ambiguous []*network.AmbiguousAnchorError
}

// Interpolate writes prefix+field, prefix+"ID" and prefix+"LENGTH" columns.
//
// Anchors are reaches with a non-null field value and a station key,
// processed in reach ID order. Each anchor starts a run: it keeps its own
// value at distance 0, then the trace walks downstream adding each reach's
// length. Reaches with neither a raw nor an interpolated value are gaps and
// join the run; the first reach with a raw value closes it as the second
// sample. The trace also stops at a reach another run already filled and at
// the outlet. Gaps are then filled by linear interpolation; a run with a
// single sample leaves its gaps null.
//
// The ID and LENGTH columns record, for every reach a run touched, the run
// number and the distance from the run's anchor. They are rewritten on each
// call, so they describe the field most recently interpolated.
func Interpolate(n *network.Network, field string, opts Options) (Result, error) {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	res := Result{Field: field}
	raw := n.Field(field)
	if raw == nil {
		return res, fmt.Errorf("interpolate %q: %w", field, network.ErrUnknownField)
	}

	out := n.ResetField(prefix + field)
	runID := n.ResetField(prefix + "ID")
	runLen := n.ResetField(prefix + "LENGTH")

	anchors, ambiguous := findAnchors(n, raw)
	res.Anchors = len(anchors)
	res.Ambiguous = ambiguous

	// Measured values pass through.
	for i, v := range raw {
		if !network.IsNull(v) {
			out[i] = v
		}
	}

	var errs []error
	for _, a := range ambiguous {
		log.Printf("Warning: %v", a)
		errs = append(errs, a)
	}

	for _, a := range anchors {
		res.Runs++
		id := float64(res.Runs)
		filled, err := run(n, a, raw, out, runID, runLen, id)
		res.Filled += filled
		if err != nil {
			errs = append(errs, err)
		}
	}
	log.Printf("Interpolated %s: %d anchors, %d reaches filled", field, res.Anchors, res.Filled)
	return res, errors.Join(errs...)
}

// findAnchors returns anchor arena indices in ID order. When several reaches
// share a station key the lowest ID is kept.
func findAnchors(n *network.Network, raw []float64) ([]int32, []*network.AmbiguousAnchorError) {
	byKey := make(map[string][]int32)
	var keys []string
	for i, r := range n.Reaches {
		if r.Station == "" || network.IsNull(raw[i]) {
			continue
		}
		if _, ok := byKey[r.Station]; !ok {
			keys = append(keys, r.Station)
		}
		byKey[r.Station] = append(byKey[r.Station], int32(i))
	}

	var anchors []int32
	var ambiguous []*network.AmbiguousAnchorError
	for _, k := range keys {
		members := byKey[k]
		anchors = append(anchors, members[0])
		if len(members) > 1 {
			ids := make([]int64, len(members))
			for j, m := range members {
				ids[j] = n.Reaches[m].ID
			}
			ambiguous = append(ambiguous, &network.AmbiguousAnchorError{Key: k, ReachIDs: ids, Chosen: ids[0]})
		}
	}
	sort.Slice(anchors, func(a, b int) bool { return anchors[a] < anchors[b] })
	return anchors, ambiguous
}

// run traces one anchor downstream and fills the gaps it claims.
func run(n *network.Network, anchor int32, raw, out, runID, runLen []float64, id float64) (int, error) {
	xs := []float64{0}
	ys := []float64{raw[anchor]}
	out[anchor] = raw[anchor]
	runID[anchor] = id
	runLen[anchor] = 0

	var gaps []int32
	visited := map[int32]bool{anchor: true}
	var dist float64
	var err error

	cur := anchor
	for {
		next, ok := n.Next(cur)
		if !ok {
			break
		}
		if visited[next] {
			err = &network.CycleError{SourceID: n.Reaches[anchor].ID, ReachID: n.Reaches[next].ID, Steps: len(gaps)}
			break
		}
		visited[next] = true
		r := &n.Reaches[next]
		if !network.IsNull(raw[next]) {
			dist += r.Length
			xs = append(xs, dist)
			ys = append(ys, raw[next])
			break
		}
		if !network.IsNull(out[next]) {
			break
		}
		dist += r.Length
		gaps = append(gaps, next)
		runID[next] = id
		runLen[next] = dist
		cur = next
	}

	filled := 0
	if len(xs) < 2 {
		return 0, err
	}
	for _, g := range gaps {
		out[g] = Linear(runLen[g], xs, ys)
		if !network.IsNull(out[g]) {
			filled++
		}
	}
	return filled, err
}

// Linear interpolates y at x over samples with increasing xs. Outside the
// sample range the nearest end value is returned.
func Linear(x float64, xs, ys []float64) float64 {
	if len(xs) == 0 || len(xs) != len(ys) || network.IsNull(x) {
		return math.NaN()
	}
	if x <= xs[0] {
		return ys[0]
	}
	last := len(xs) - 1
	if x >= xs[last] {
		return ys[last]
	}
	k := sort.SearchFloat64s(xs, x)
	x0, x1 := xs[k-1], xs[k]
	y0, y1 := ys[k-1], ys[k]
	if x1 == x0 {
		return y1
	}
	return y0 + (y1-y0)*(x-x0)/(x1-x0)
}
