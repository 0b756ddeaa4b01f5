// Package station snaps survey stations onto the nearest reach and copies
// their measured values into reach attribute columns.
package station

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/tidwall/rtree"

	"rivernet/pkg/geo"
	"rivernet/pkg/network"
)

// DefaultMaxSnapDistance is the largest station-to-reach distance, in meters
// for geographic networks and in coordinate units otherwise.
const DefaultMaxSnapDistance = 45.0

const metersPerDegree = math.Pi / 180 * 6_371_000.0

// ErrPointTooFar is returned when a station is too far from any reach.
var ErrPointTooFar = errors.New("point too far from reach")

// Station is a surveyed point carrying measured values keyed by field name.
type Station struct {
	ID     string
	Point  orb.Point
	Values map[string]float64
}

// SnapResult represents a station snapped to a reach.
type SnapResult struct {
	ReachID int64
	Index   int32   // arena index of the reach
	Segment int     // polyline segment holding the snapped point
	Ratio   float64 // 0.0 = segment start, 1.0 = segment end
	Dist    float64
}

type segRef struct {
	reach int32
	seg   int
}

// Snapper provides nearest-reach snapping over an R-tree of polyline
// segments.
type Snapper struct {
	tr         rtree.RTreeG[segRef]
	n          *network.Network
	maxDist    float64
	geographic bool
}

// NewSnapper indexes every reach segment of n. Reaches without a polyline
// are indexed as the straight line from Start to End.
func NewSnapper(n *network.Network, maxDist float64, geographic bool) *Snapper {
	s := &Snapper{n: n, maxDist: maxDist, geographic: geographic}
	for i := range n.Reaches {
		line := reachLine(&n.Reaches[i])
		for k := 1; k < len(line); k++ {
			b := orb.LineString{line[k-1], line[k]}.Bound()
			s.tr.Insert(b.Min, b.Max, segRef{reach: int32(i), seg: k - 1})
		}
	}
	return s
}

func reachLine(r *network.Reach) orb.LineString {
	if len(r.Geometry) >= 2 {
		return r.Geometry
	}
	return orb.LineString{r.Start, r.End}
}

// Snap finds the nearest reach to p.
func (s *Snapper) Snap(p orb.Point) (SnapResult, error) {
	padX, padY := s.maxDist, s.maxDist
	if s.geographic {
		padY = s.maxDist / metersPerDegree
		padX = padY / math.Max(math.Cos(p.Lat()*math.Pi/180), 1e-6)
	}
	lo := [2]float64{p[0] - padX, p[1] - padY}
	hi := [2]float64{p[0] + padX, p[1] + padY}

	best := SnapResult{Dist: math.Inf(1), Index: -1}
	s.tr.Search(lo, hi, func(_, _ [2]float64, ref segRef) bool {
		line := reachLine(&s.n.Reaches[ref.reach])
		seg := orb.LineString{line[ref.seg], line[ref.seg+1]}
		d, _, ratio := geo.PointToLine(p, seg, s.geographic)
		id := s.n.Reaches[ref.reach].ID
		if d < best.Dist || (d == best.Dist && (id < best.ReachID || (id == best.ReachID && ref.seg < best.Segment))) {
			best = SnapResult{ReachID: id, Index: ref.reach, Segment: ref.seg, Ratio: ratio, Dist: d}
		}
		return true
	})

	if best.Index < 0 || best.Dist > s.maxDist {
		return SnapResult{}, ErrPointTooFar
	}
	return best, nil
}

// AttachResult summarizes an Attach call.
type AttachResult struct {
	Attached  int
	TooFar    []string
	Ambiguous []*network.AmbiguousAnchorError
}

// Attach snaps stations onto reaches, sets each receiving reach's Station key
// and writes the station values into attribute columns. When several
// stations land on one reach the lowest station ID wins, comparing IDs as
// integers when both parse as one and as strings otherwise. Stations beyond the
// snap distance are skipped. The returned error joins one error per skipped
// or ambiguous station.
func Attach(n *network.Network, s *Snapper, stations []Station) (AttachResult, error) {
	var res AttachResult
	var errs []error

	sorted := make([]Station, len(stations))
	copy(sorted, stations)
	sort.SliceStable(sorted, func(i, j int) bool { return lessID(sorted[i].ID, sorted[j].ID) })

	byReach := make(map[int32][]Station)
	var order []int32
	for _, st := range sorted {
		snap, err := s.Snap(st.Point)
		if err != nil {
			res.TooFar = append(res.TooFar, st.ID)
			errs = append(errs, fmt.Errorf("station %s: %w", st.ID, err))
			continue
		}
		if _, ok := byReach[snap.Index]; !ok {
			order = append(order, snap.Index)
		}
		byReach[snap.Index] = append(byReach[snap.Index], st)
	}

	for _, idx := range order {
		group := byReach[idx]
		st := group[0]
		r := &n.Reaches[idx]
		if len(group) > 1 {
			amb := &network.AmbiguousAnchorError{Key: stationKeys(group), ReachIDs: []int64{r.ID}, Chosen: r.ID}
			log.Printf("Warning: %d stations snap to reach %d, using %s", len(group), r.ID, st.ID)
			res.Ambiguous = append(res.Ambiguous, amb)
			errs = append(errs, amb)
		}
		r.Station = st.ID
		for name, v := range st.Values {
			n.EnsureField(name)[idx] = v
		}
		res.Attached++
	}

	if len(res.TooFar) > 0 {
		log.Printf("Warning: %d stations farther than %.1f from any reach", len(res.TooFar), s.maxDist)
	}
	return res, errors.Join(errs...)
}

func lessID(a, b string) bool {
	x, errA := strconv.ParseInt(a, 10, 64)
	y, errB := strconv.ParseInt(b, 10, 64)
	if errA == nil && errB == nil && x != y {
		return x < y
	}
	return a < b
}

func stationKeys(group []Station) string {
	key := group[0].ID
	for _, st := range group[1:] {
		key += "," + st.ID
	}
	return key
}
