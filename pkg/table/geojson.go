package table

import (
	"encoding/json"
	"io"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"rivernet/pkg/network"
)

// WriteGeoJSON writes every reach as a LineString feature carrying its
// derived fields and attribute columns as properties. Null values are
// omitted. Reaches without a polyline use the straight line between their
// endpoints.
func WriteGeoJSON(w io.Writer, n *network.Network) error {
	fc := geojson.NewFeatureCollection()
	names := n.FieldNames()
	for i := range n.Reaches {
		r := &n.Reaches[i]
		line := r.Geometry
		if len(line) < 2 {
			line = orb.LineString{r.Start, r.End}
		}
		f := geojson.NewFeature(line)
		f.ID = r.ID
		props := f.Properties
		props[ColFromNode] = int64(r.FromNode)
		props[ColToNode] = int64(r.ToNode)
		if r.Station != "" {
			props[ColStation] = r.Station
		}
		for _, p := range []struct {
			key string
			v   float64
		}{
			{ColLength, r.Length},
			{ColElevUp, r.ElevUp},
			{ColElevDown, r.ElevDown},
			{ColDrainageArea, r.DrainageArea},
			{ColBranchLength, r.BranchLength},
			{ColDownDistance, r.DownDistance},
			{ColDeltaDA, r.DeltaDA},
		} {
			if !network.IsNull(p.v) {
				props[p.key] = p.v
			}
		}
		for _, p := range []struct {
			key string
			v   int32
		}{
			{ColBranchID, r.BranchID},
			{ColConnectID, r.ConnectID},
			{ColSegmentID, r.SegmentID},
			{ColSegmentRank, r.SegmentRank},
		} {
			if p.v != network.NoID {
				props[p.key] = p.v
			}
		}
		for _, name := range names {
			if v := n.Fields[name][i]; !network.IsNull(v) {
				props[name] = v
			}
		}
		fc.Append(f)
	}

	enc := json.NewEncoder(w)
	return enc.Encode(fc)
}
