package geo

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

const earthRadiusMeters = 6_371_000.0

// Haversine returns the great-circle distance in meters between two points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	lat1r := lat1 * math.Pi / 180
	lat2r := lat2 * math.Pi / 180
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1r)*math.Cos(lat2r)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}

// LineLength returns the length of a polyline. Geographic lines use orb's
// [lon, lat] order and are measured with Haversine in meters; projected
// lines are measured in their own units.
func LineLength(ls orb.LineString, geographic bool) float64 {
	if !geographic {
		return planar.Length(ls)
	}
	var total float64
	for i := 1; i < len(ls); i++ {
		total += Haversine(ls[i-1].Lat(), ls[i-1].Lon(), ls[i].Lat(), ls[i].Lon())
	}
	return total
}

// degToMeters converts degree-scaled equirectangular distances to meters.
const degToMeters = math.Pi / 180 * earthRadiusMeters

// PointToSegmentDist computes the perpendicular distance from point P to segment AB,
// and returns the projection ratio along AB (clamped to [0,1]).
// dist is in meters, ratio is in [0.0, 1.0].
func PointToSegmentDist(pLat, pLon, aLat, aLon, bLat, bLon float64) (dist float64, ratio float64) {
	// Equirectangular projection, fine at snapping distances.
	cosLat := math.Cos((aLat + bLat) / 2 * math.Pi / 180)

	ax := aLon * cosLat
	ay := aLat
	bx := bLon * cosLat
	by := bLat
	px := pLon * cosLat
	py := pLat

	// Exact comparison before projecting, where cosLat noise can split
	// identical coordinates.
	if aLat == bLat && aLon == bLon {
		ex := px - ax
		ey := py - ay
		return math.Sqrt(ex*ex+ey*ey) * degToMeters, 0
	}

	d, t := projectOnSegment(px, py, ax, ay, bx, by)
	return d * degToMeters, t
}

// PointToLine returns the distance from p to the nearest point of ls, the
// index of the segment holding that point and the ratio along it.
func PointToLine(p orb.Point, ls orb.LineString, geographic bool) (dist float64, seg int, ratio float64) {
	dist = math.Inf(1)
	if len(ls) == 1 {
		ls = orb.LineString{ls[0], ls[0]}
	}
	for i := 1; i < len(ls); i++ {
		a, b := ls[i-1], ls[i]
		var d, t float64
		if geographic {
			d, t = PointToSegmentDist(p.Lat(), p.Lon(), a.Lat(), a.Lon(), b.Lat(), b.Lon())
		} else {
			d, t = projectOnSegment(p[0], p[1], a[0], a[1], b[0], b[1])
		}
		if d < dist {
			dist, seg, ratio = d, i-1, t
		}
	}
	return dist, seg, ratio
}

func projectOnSegment(px, py, ax, ay, bx, by float64) (float64, float64) {
	dx := bx - ax
	dy := by - ay
	lenSq := dx*dx + dy*dy

	var t float64
	if lenSq > 0 {
		t = ((px-ax)*dx + (py-ay)*dy) / lenSq
		t = max(0, min(1, t))
	}
	ex := px - (ax + t*dx)
	ey := py - (ay + t*dy)
	return math.Sqrt(ex*ex + ey*ey), t
}
