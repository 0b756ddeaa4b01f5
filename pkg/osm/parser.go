package osm

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"

	"rivernet/pkg/geo"
	"rivernet/pkg/network"
)

// ParseResult holds the reaches built from an OSM PBF file.
type ParseResult struct {
	Reaches []network.Reach
	Ways    int
	Nodes   int
}

// waterways lists waterway tag values that carry channel flow.
var waterways = map[string]bool{
	"river":  true,
	"stream": true,
	"canal":  true,
	"drain":  true,
	"ditch":  true,
}

// isWaterway returns true if the way is a linear flowing channel.
func isWaterway(tags osm.Tags) bool {
	if !waterways[tags.Find("waterway")] {
		return false
	}
	// Riverbank outlines and other areas.
	return tags.Find("area") != "yes"
}

// reversed reports whether a waterway is drawn against its flow.
// OSM draws waterways downstream; a few imports tag exceptions.
func reversed(tags osm.Tags) bool {
	switch tags.Find("direction") {
	case "backward", "-1":
		return true
	}
	return false
}

// wayInfo holds parsed way data collected during Pass 1, in flow order.
type wayInfo struct {
	NodeIDs []osm.NodeID
}

// BBox defines a geographic bounding box for filtering.
// If non-zero, only reaches with both endpoints inside the box are kept.
type BBox struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// IsZero returns true if the bbox is unset.
func (b BBox) IsZero() bool {
	return b.MinLat == 0 && b.MaxLat == 0 && b.MinLng == 0 && b.MaxLng == 0
}

// Contains returns true if the point is inside the bounding box.
func (b BBox) Contains(lat, lng float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lng >= b.MinLng && lng <= b.MaxLng
}

// ParseOptions configures the OSM parser.
type ParseOptions struct {
	BBox BBox // if non-zero, filter reaches to this bounding box
}

// Parse reads an OSM PBF file and returns reaches for every waterway,
// split at confluences. Node ids are the OSM node ids of the reach
// endpoints; geometry is in [lon, lat] order and lengths are in meters.
// The reader is consumed twice (seeks back to start for the second pass),
// so it must implement io.ReadSeeker.
func Parse(ctx context.Context, rs io.ReadSeeker, opts ...ParseOptions) (*ParseResult, error) {
	var opt ParseOptions
	if len(opts) > 0 {
		opt = opts[0]
	}

	// Pass 1: Scan ways to collect referenced node IDs and way info.
	refCount := make(map[osm.NodeID]int)
	var ways []wayInfo

	scanner := osmpbf.New(ctx, rs, 1)
	scanner.SkipNodes = true
	scanner.SkipRelations = true

	for scanner.Scan() {
		w, ok := scanner.Object().(*osm.Way)
		if !ok {
			continue
		}
		if !isWaterway(w.Tags) || len(w.Nodes) < 2 {
			continue
		}

		nodeIDs := make([]osm.NodeID, len(w.Nodes))
		for i, wn := range w.Nodes {
			nodeIDs[i] = wn.ID
		}
		if reversed(w.Tags) {
			for i, j := 0, len(nodeIDs)-1; i < j; i, j = i+1, j-1 {
				nodeIDs[i], nodeIDs[j] = nodeIDs[j], nodeIDs[i]
			}
		}
		countRefs(refCount, nodeIDs)
		ways = append(ways, wayInfo{NodeIDs: nodeIDs})
	}
	if err := scanner.Err(); err != nil {
		scanner.Close()
		return nil, fmt.Errorf("pass 1 (ways): %w", err)
	}
	scanner.Close()

	log.Printf("Pass 1 complete: %d waterways, %d referenced nodes", len(ways), len(refCount))

	// Pass 2: Scan nodes to collect coordinates for referenced nodes only.
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek for pass 2: %w", err)
	}

	coords := make(map[osm.NodeID]orb.Point, len(refCount))

	scanner = osmpbf.New(ctx, rs, 1)
	scanner.SkipWays = true
	scanner.SkipRelations = true

	for scanner.Scan() {
		n, ok := scanner.Object().(*osm.Node)
		if !ok {
			continue
		}
		if _, needed := refCount[n.ID]; !needed {
			continue
		}
		coords[n.ID] = orb.Point{n.Lon, n.Lat}
	}
	if err := scanner.Err(); err != nil {
		scanner.Close()
		return nil, fmt.Errorf("pass 2 (nodes): %w", err)
	}
	scanner.Close()

	log.Printf("Pass 2 complete: %d node coordinates collected", len(coords))

	reaches := buildReaches(ways, coords, refCount, opt.BBox)
	log.Printf("Built %d reaches", len(reaches))

	return &ParseResult{
		Reaches: reaches,
		Ways:    len(ways),
		Nodes:   len(coords),
	}, nil
}

// countRefs counts how often each node is used as a way vertex. Way
// endpoints count twice so they always split.
func countRefs(refCount map[osm.NodeID]int, nodeIDs []osm.NodeID) {
	for i, id := range nodeIDs {
		refCount[id]++
		if i == 0 || i == len(nodeIDs)-1 {
			refCount[id]++
		}
	}
}

// buildReaches splits every way at nodes shared with other ways (or
// repeated within it) and turns each piece into a reach. Reach ids are
// assigned sequentially from 1 in way order.
func buildReaches(ways []wayInfo, coords map[osm.NodeID]orb.Point, refCount map[osm.NodeID]int, bbox BBox) []network.Reach {
	var reaches []network.Reach
	var skipped, bboxFiltered int
	useBBox := !bbox.IsZero()

	for _, w := range ways {
		line := orb.LineString{}
		from := w.NodeIDs[0]
		complete := true

		for i, id := range w.NodeIDs {
			p, ok := coords[id]
			if !ok {
				complete = false
			} else {
				line = append(line, p)
			}
			if i == 0 || (refCount[id] < 2 && i < len(w.NodeIDs)-1) {
				continue
			}

			switch {
			case !complete || len(line) < 2:
				skipped++
			case useBBox && (!bbox.Contains(line[0].Lat(), line[0].Lon()) || !bbox.Contains(p.Lat(), p.Lon())):
				bboxFiltered++
			default:
				r := network.NewReach(int64(len(reaches)+1), network.NodeID(from), network.NodeID(id), geo.LineLength(line, true))
				r.Start, r.End = line[0], line[len(line)-1]
				r.Geometry = line
				reaches = append(reaches, r)
			}

			from = id
			complete = ok
			line = orb.LineString{}
			if ok {
				line = append(line, p)
			}
		}
	}

	if skipped > 0 {
		log.Printf("Warning: skipped %d reaches due to missing node coordinates", skipped)
	}
	if bboxFiltered > 0 {
		log.Printf("Filtered %d reaches outside bounding box", bboxFiltered)
	}
	return reaches
}
