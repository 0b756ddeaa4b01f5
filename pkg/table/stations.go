package table

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/paulmach/orb"

	"rivernet/pkg/network"
	"rivernet/pkg/station"
)

// ReadStations parses a station table with id, x and y columns (lon and lat
// are accepted as aliases). Every other column is a measured value; empty
// cells are left out of the station's values.
func ReadStations(r io.Reader) ([]station.Station, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	var values []string
	for i, h := range header {
		name := strings.TrimSpace(h)
		switch strings.ToLower(name) {
		case "id", "station":
			cols["id"] = i
		case "x", "lon", "lng":
			cols["x"] = i
		case "y", "lat":
			cols["y"] = i
		default:
			cols[name] = i
			values = append(values, name)
		}
	}
	for _, c := range []string{"id", "x", "y"} {
		if _, ok := cols[c]; !ok {
			return nil, fmt.Errorf("%s: %w", c, ErrMissingColumn)
		}
	}

	var out []station.Station
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
		id := rr.str("id")
		if id == "" {
			return nil, fmt.Errorf("line %d: empty station id", line)
		}
		x, err := rr.float("x")
		if err != nil {
			return nil, err
		}
		y, err := rr.float("y")
		if err != nil {
			return nil, err
		}
		if network.IsNull(x) || network.IsNull(y) {
			return nil, fmt.Errorf("line %d: station %s has no coordinates", line, id)
		}
		st := station.Station{ID: id, Point: orb.Point{x, y}, Values: make(map[string]float64)}
		for _, name := range values {
			v, err := rr.float(name)
			if err != nil {
				return nil, err
			}
			if !network.IsNull(v) {
				st.Values[name] = v
			}
		}
		out = append(out, st)
	}
	return out, nil
}
