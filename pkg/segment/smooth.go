package segment

import (
	"fmt"
	"math"

	"rivernet/pkg/network"
)

// DefaultSuffix names smoothed columns: "S_mperm" becomes "S_mperm_SAVG".
const DefaultSuffix = "_SAVG"

// WindowSize derives an odd rolling window from an averaging distance on each
// side of a reach and the base cell resolution: 2*ceil(target/resolution)+1.
func WindowSize(targetDistance, resolution float64) (int, error) {
	if !(resolution > 0) || !(targetDistance >= 0) || math.IsInf(targetDistance, 0) {
		return 0, fmt.Errorf("invalid window target %v / resolution %v", targetDistance, resolution)
	}
	return 2*int(math.Ceil(targetDistance/resolution)) + 1, nil
}

// Smooth writes a centered rolling mean of field over each segment's rank
// sequence to field+suffix. Windows are truncated at segment ends and null
// values are dropped from the window; a window holding no values yields null.
// Reaches outside any segment get null.
func Smooth(n *network.Network, field, suffix string, window int) error {
	if window < 1 || window%2 == 0 {
		return fmt.Errorf("window %d must be a positive odd number", window)
	}
	src := n.Field(field)
	if src == nil {
		return fmt.Errorf("smooth %q: %w", field, network.ErrUnknownField)
	}
	segs := Segments(n)
	if len(segs) == 0 && n.Len() > 0 {
		return fmt.Errorf("smooth %q: %w", field, network.ErrNoSegments)
	}

	dst := n.ResetField(field + suffix)
	half := window / 2
	series := make([]float64, 0, 64)
	for _, members := range segs {
		series = series[:0]
		for _, m := range members {
			series = append(series, src[m])
		}
		for k, m := range members {
			dst[m] = windowMean(series, k-half, k+half)
		}
	}
	return nil
}

// windowMean averages the non-null values of s[lo..hi], clamped to s.
func windowMean(s []float64, lo, hi int) float64 {
	lo = max(lo, 0)
	hi = min(hi, len(s)-1)
	var sum float64
	count := 0
	for i := lo; i <= hi; i++ {
		if network.IsNull(s[i]) {
			continue
		}
		sum += s[i]
		count++
	}
	if count == 0 {
		return math.NaN()
	}
	return sum / float64(count)
}
