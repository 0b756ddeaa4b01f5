// Package table reads and writes reach and station tables as CSV.
//
// Null values are empty cells. Reach geometry, when present, is a WKT
// LINESTRING in the "geometry" column.
package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"

	"rivernet/pkg/network"
)

// Column names of the reach table.
const (
	ColID           = "id"
	ColFromNode     = "from_node"
	ColToNode       = "to_node"
	ColLength       = "length"
	ColElevUp       = "elevation_up"
	ColElevDown     = "elevation_down"
	ColDrainageArea = "drainage_area"
	ColStation      = "station"
	ColStartX       = "start_x"
	ColStartY       = "start_y"
	ColEndX         = "end_x"
	ColEndY         = "end_y"
	ColGeometry     = "geometry"

	ColBranchID     = "branch_id"
	ColConnectID    = "connect_id"
	ColBranchLength = "branch_total_length"
	ColDownDistance = "down_distance"
	ColSegmentID    = "segment_id"
	ColSegmentRank  = "segment_rank"
	ColDeltaDA      = "delta_da"
)

var inputCols = []string{
	ColID, ColFromNode, ColToNode, ColLength, ColElevUp, ColElevDown, ColDrainageArea,
	ColStation, ColStartX, ColStartY, ColEndX, ColEndY,
}

var derivedCols = []string{
	ColBranchID, ColConnectID, ColBranchLength, ColDownDistance, ColSegmentID, ColSegmentRank, ColDeltaDA,
}

// ErrMissingColumn is returned when a required column is absent.
var ErrMissingColumn = errors.New("missing column")

// Table is a parsed reach table. Fields holds every extra numeric column,
// aligned with Reaches.
type Table struct {
	Reaches []network.Reach
	Fields  map[string][]float64
}

// Read parses a reach table. An id column is required, and either node id
// columns or endpoint coordinates (or geometry) to resolve nodes from.
// Derived columns in the input are ignored.
func Read(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := cols[ColID]; !ok {
		return nil, fmt.Errorf("%s: %w", ColID, ErrMissingColumn)
	}
	_, hasNodes := cols[ColFromNode]
	_, hasStart := cols[ColStartX]
	_, hasGeom := cols[ColGeometry]
	if !hasNodes && !hasStart && !hasGeom {
		return nil, fmt.Errorf("%s or %s or %s: %w", ColFromNode, ColStartX, ColGeometry, ErrMissingColumn)
	}

	known := make(map[string]bool)
	for _, c := range append(append([]string{ColGeometry}, inputCols...), derivedCols...) {
		known[c] = true
	}
	var extra []string
	for i, h := range header {
		name := strings.TrimSpace(h)
		if !known[strings.ToLower(name)] {
			extra = append(extra, name)
			cols[name] = i
		}
	}

	t := &Table{Fields: make(map[string][]float64, len(extra))}
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rr := row{rec: rec, cols: cols, line: line}

		id, err := rr.int(ColID)
		if err != nil {
			return nil, err
		}
		from, err := rr.int(ColFromNode)
		if err != nil {
			return nil, err
		}
		to, err := rr.int(ColToNode)
		if err != nil {
			return nil, err
		}
		reach := network.NewReach(id, network.NodeID(from), network.NodeID(to), math.NaN())
		for _, f := range []struct {
			col string
			dst *float64
		}{
			{ColLength, &reach.Length},
			{ColElevUp, &reach.ElevUp},
			{ColElevDown, &reach.ElevDown},
			{ColDrainageArea, &reach.DrainageArea},
			{ColStartX, &reach.Start[0]},
			{ColStartY, &reach.Start[1]},
			{ColEndX, &reach.End[0]},
			{ColEndY, &reach.End[1]},
		} {
			if *f.dst, err = rr.float(f.col); err != nil {
				return nil, err
			}
		}
		reach.Station = rr.str(ColStation)

		if s := rr.str(ColGeometry); s != "" {
			ls, err := wkt.UnmarshalLineString(s)
			if err != nil {
				return nil, fmt.Errorf("line %d: %s: %w", line, ColGeometry, err)
			}
			reach.Geometry = ls
			if len(ls) > 0 && network.IsNull(reach.Start[0]) {
				reach.Start = ls[0]
			}
			if len(ls) > 0 && network.IsNull(reach.End[0]) {
				reach.End = ls[len(ls)-1]
			}
		}
		noStart := network.IsNull(reach.Start[0]) || network.IsNull(reach.Start[1])
		noEnd := network.IsNull(reach.End[0]) || network.IsNull(reach.End[1])
		if (from == 0 && noStart) || (to == 0 && noEnd) {
			return nil, fmt.Errorf("line %d: reach %d has no node id and no coordinates for it: %w", line, id, network.ErrNoCoordinates)
		}
		if noStart {
			reach.Start = orb.Point{}
		}
		if noEnd {
			reach.End = orb.Point{}
		}
		t.Reaches = append(t.Reaches, reach)

		for _, name := range extra {
			v, err := rr.float(name)
			if err != nil {
				return nil, err
			}
			t.Fields[name] = append(t.Fields[name], v)
		}
	}
	return t, nil
}

// Apply copies the table's extra columns into n, matching rows by reach ID.
func (t *Table) Apply(n *network.Network) {
	for name, vals := range t.Fields {
		col := n.EnsureField(name)
		for i, v := range vals {
			if idx, ok := n.Index(t.Reaches[i].ID); ok {
				col[idx] = v
			}
		}
	}
}

type row struct {
	rec  []string
	cols map[string]int
	line int
}

func (r row) str(col string) string {
	i, ok := r.cols[col]
	if !ok || i >= len(r.rec) {
		return ""
	}
	return strings.TrimSpace(r.rec[i])
}

func (r row) float(col string) (float64, error) {
	s := r.str(col)
	if s == "" {
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("line %d: column %s: %w", r.line, col, err)
	}
	return v, nil
}

func (r row) int(col string) (int64, error) {
	s := r.str(col)
	if s == "" {
		if col == ColID {
			return 0, fmt.Errorf("line %d: empty %s", r.line, col)
		}
		return 0, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// Some exports write integer ids as floats.
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f != math.Trunc(f) {
			return 0, fmt.Errorf("line %d: column %s: %w", r.line, col, err)
		}
		v = int64(f)
	}
	return v, nil
}

// UnitFactor converts meters to the named distance unit.
func UnitFactor(unit string) (float64, error) {
	switch strings.ToLower(unit) {
	case "", "m":
		return 1, nil
	case "km":
		return 0.001, nil
	case "ft":
		return 1 / 0.3048, nil
	case "mi":
		return 1 / 1609.344, nil
	}
	return 0, fmt.Errorf("unknown distance unit %q", unit)
}

// WriteOptions configures Write.
type WriteOptions struct {
	Unit     string // distance unit for lengths and down distances
	Geometry bool   // include the WKT geometry column
}

// Write emits every reach with its derived fields and attribute columns.
func Write(w io.Writer, n *network.Network, opts WriteOptions) error {
	factor, err := UnitFactor(opts.Unit)
	if err != nil {
		return err
	}
	names := n.FieldNames()
	header := append(append([]string{}, inputCols...), derivedCols...)
	header = append(header, names...)
	if opts.Geometry {
		header = append(header, ColGeometry)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	rec := make([]string, len(header))
	for i, r := range n.Reaches {
		rec = rec[:0]
		rec = append(rec,
			strconv.FormatInt(r.ID, 10),
			strconv.FormatInt(int64(r.FromNode), 10),
			strconv.FormatInt(int64(r.ToNode), 10),
			formatFloat(r.Length*factor),
			formatFloat(r.ElevUp),
			formatFloat(r.ElevDown),
			formatFloat(r.DrainageArea),
			r.Station,
			formatFloat(r.Start[0]), formatFloat(r.Start[1]),
			formatFloat(r.End[0]), formatFloat(r.End[1]),
			formatID(r.BranchID),
			formatID(r.ConnectID),
			formatFloat(r.BranchLength*factor),
			formatFloat(r.DownDistance*factor),
			formatID(r.SegmentID),
			formatID(r.SegmentRank),
			formatFloat(r.DeltaDA),
		)
		for _, name := range names {
			rec = append(rec, formatFloat(n.Fields[name][i]))
		}
		if opts.Geometry {
			g := ""
			if len(r.Geometry) > 0 {
				g = wkt.MarshalString(r.Geometry)
			}
			rec = append(rec, g)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	if network.IsNull(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatID(v int32) string {
	if v == network.NoID {
		return ""
	}
	return strconv.FormatInt(int64(v), 10)
}

// FieldNames returns the extra column names in sorted order.
func (t *Table) FieldNames() []string {
	names := make([]string, 0, len(t.Fields))
	for name := range t.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
