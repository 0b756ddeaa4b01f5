package power

import (
	"fmt"
	"log"

	"rivernet/pkg/network"
)

// Output column names.
const (
	FieldSlope          = "S_mperm"
	FieldDischarge      = "Q_m3pers"
	FieldWidth          = "width_m"
	FieldPower          = "Power_Wperm"
	FieldSpecificPower  = "SPower_Wperm"
	FieldD84            = "D84_mm"
	FieldPowerGradient  = "PowerGr_Wperm"
	FieldSPowerGradient = "SPowerGr_Wperm"
	FieldScourRatio     = "Scour_Ratio"
	FieldOvertopRatio   = "Overtop_Ratio"
)

// Params configures Calculate.
type Params struct {
	UnitWeight float64
	SlopeField string

	// DischargeField names an existing discharge column (e.g. from a
	// hydraulic model). When empty, discharge is derived from drainage area,
	// with ImperviousField selecting the urban formula if that column exists.
	DischargeField  string
	ImperviousField string
	Discharge       DischargeCoeffs
	Width           WidthCoeffs

	// Suffix is appended to every output column so scenarios can coexist.
	Suffix string

	Gradient bool
}

// DefaultParams returns the regional defaults with the smoothed DEM slope.
func DefaultParams() Params {
	return Params{
		UnitWeight: UnitWeight,
		SlopeField: FieldSlope + "_SAVG",
		Discharge:  DefaultDischarge,
		Width:      DefaultWidth,
		Gradient:   true,
	}
}

// Calculate writes discharge, width, stream power, specific power and D84
// columns, and the power gradients when p.Gradient is set.
func Calculate(n *network.Network, p Params) error {
	slope := n.Field(p.SlopeField)
	if slope == nil {
		return fmt.Errorf("slope %q: %w", p.SlopeField, network.ErrUnknownField)
	}

	q, err := discharge(n, p)
	if err != nil {
		return err
	}
	width := n.ResetField(FieldWidth + p.Suffix)
	pow := n.ResetField(FieldPower + p.Suffix)
	spow := n.ResetField(FieldSpecificPower + p.Suffix)
	d84 := n.ResetField(FieldD84 + p.Suffix)

	nulls := 0
	for i := range n.Reaches {
		width[i] = Width(n.Reaches[i].DrainageArea, p.Width)
		pow[i] = StreamPower(slope[i], q[i], p.UnitWeight)
		spow[i] = SpecificPower(pow[i], width[i])
		d84[i] = D84(spow[i], slope[i])
		if network.IsNull(pow[i]) {
			nulls++
		}
	}
	log.Printf("Stream power: %d reaches, %d null", n.Len(), nulls)

	if !p.Gradient {
		return nil
	}
	if err := Gradient(n, FieldPower+p.Suffix, FieldPowerGradient+p.Suffix); err != nil {
		return err
	}
	return Gradient(n, FieldSpecificPower+p.Suffix, FieldSPowerGradient+p.Suffix)
}

func discharge(n *network.Network, p Params) ([]float64, error) {
	if p.DischargeField != "" {
		q := n.Field(p.DischargeField)
		if q == nil {
			return nil, fmt.Errorf("discharge %q: %w", p.DischargeField, network.ErrUnknownField)
		}
		return q, nil
	}
	q := n.ResetField(FieldDischarge + p.Suffix)
	imp := n.Field(p.ImperviousField)
	for i, r := range n.Reaches {
		if imp != nil {
			q[i] = UrbanDischarge(r.DrainageArea, imp[i], p.Discharge)
		} else {
			q[i] = RuralDischarge(r.DrainageArea, p.Discharge)
		}
	}
	return q, nil
}

// Gradient writes, for every reach with a downstream successor,
// value(reach) - value(successor) to the out column. Sinks get null.
func Gradient(n *network.Network, field, out string) error {
	src := n.Field(field)
	if src == nil {
		return fmt.Errorf("gradient %q: %w", field, network.ErrUnknownField)
	}
	dst := n.ResetField(out)
	for i := range n.Reaches {
		next, ok := n.Next(int32(i))
		if !ok {
			continue
		}
		dst[i] = src[i] - src[next]
	}
	return nil
}

// DEMSlope writes (ElevDown - ElevUp) / Length for every reach to out.
func DEMSlope(n *network.Network, out string) {
	dst := n.ResetField(out)
	for i, r := range n.Reaches {
		dst[i] = Slope(r.ElevUp, r.ElevDown, r.Length)
	}
}

// TracedSlope derives a slope from a per-reach elevation-like field by
// tracing downstream: each reach reached from an upstream neighbour gets
// (value(reach) - value(upstream)) / Length(reach). Traces start at each
// unvisited reach in ID order, so at confluences the lowest-ID tributary
// supplies the upstream value. Trace starts keep a null slope unless a later
// trace reaches them.
func TracedSlope(n *network.Network, field, out string) error {
	src := n.Field(field)
	if src == nil {
		return fmt.Errorf("traced slope %q: %w", field, network.ErrUnknownField)
	}
	dst := n.ResetField(out)
	visited := make([]bool, n.Len())
	for i := range n.Reaches {
		if visited[i] {
			continue
		}
		visited[i] = true
		up := src[i]
		cur := int32(i)
		for {
			next, ok := n.Next(cur)
			if !ok {
				break
			}
			if network.IsNull(dst[next]) {
				dst[next] = (src[next] - up) / n.Reaches[next].Length
			}
			if visited[next] {
				break
			}
			visited[next] = true
			up = src[next]
			cur = next
		}
	}
	return nil
}

// BridgeFields names the columns ApplyBridge reads.
type BridgeFields struct {
	BridgeDischarge   string
	UpstreamDischarge string
	TotalDischarge    string
	UpstreamWidth     string
	BridgeWidth       string
}

// ApplyBridge writes scour and overtopping ratios for reaches carrying bridge
// hydraulics. Reaches without bridge data get null.
func ApplyBridge(n *network.Network, f BridgeFields) error {
	cols := make([][]float64, 0, 5)
	for _, name := range []string{f.BridgeDischarge, f.UpstreamDischarge, f.TotalDischarge, f.UpstreamWidth, f.BridgeWidth} {
		col := n.Field(name)
		if col == nil {
			return fmt.Errorf("bridge %q: %w", name, network.ErrUnknownField)
		}
		cols = append(cols, col)
	}
	qb, qup, qt, wup, wb := cols[0], cols[1], cols[2], cols[3], cols[4]
	scour := n.ResetField(FieldScourRatio)
	over := n.ResetField(FieldOvertopRatio)
	for i := range n.Reaches {
		scour[i] = ScourRatio(qb[i], qup[i], wup[i], wb[i])
		over[i] = OvertopRatio(qt[i], qb[i])
	}
	return nil
}

// Compare writes field(a) - field(b) and field(a) / field(b) into a as
// field+"_DIFF" and field+"_RATIO", matching reaches by ID. Reaches missing
// from b get null. Returns the number of matched reaches.
func Compare(a, b *network.Network, field string) (int, error) {
	fa := a.Field(field)
	fb := b.Field(field)
	if fa == nil || fb == nil {
		return 0, fmt.Errorf("compare %q: %w", field, network.ErrUnknownField)
	}
	diff := a.ResetField(field + "_DIFF")
	ratio := a.ResetField(field + "_RATIO")
	matched := 0
	for i, r := range a.Reaches {
		j, ok := b.Index(r.ID)
		if !ok {
			continue
		}
		matched++
		diff[i] = fa[i] - fb[j]
		ratio[i] = fa[i] / fb[j]
	}
	return matched, nil
}
