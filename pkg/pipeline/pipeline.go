// Package pipeline runs the processing stages over a reach table in
// dependency order: node resolution, network build, downstream distance,
// station snapping, slope, segmentation, smoothing, interpolation and
// stream power.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"

	"rivernet/pkg/config"
	"rivernet/pkg/geo"
	"rivernet/pkg/interp"
	"rivernet/pkg/network"
	"rivernet/pkg/power"
	"rivernet/pkg/segment"
	"rivernet/pkg/station"
	"rivernet/pkg/table"
)

// ErrStrict is returned in strict mode when a run found data-quality issues.
var ErrStrict = errors.New("data-quality issues in strict mode")

// Issue kinds used in Report.Issues and the issues metric.
const (
	KindStructuralGap   = "structural_gap"
	KindCycle           = "cycle"
	KindAmbiguousAnchor = "ambiguous_anchor"
	KindSnapTooFar      = "snap_too_far"
	KindMissingField    = "missing_field"
	KindOther           = "other"
)

// Input is the data a run starts from.
type Input struct {
	Table    *table.Table
	Stations []station.Station
}

// Stage records how long a stage took.
type Stage struct {
	Name     string
	Duration time.Duration
}

// Report summarizes a run.
type Report struct {
	RunID          string
	Reaches        int
	Branches       int
	Segments       int
	Outlet         int64
	NodesCreated   int
	LengthsFilled  int
	Stations       station.AttachResult
	Interpolations []interp.Result
	Stages         []Stage
	Issues         map[string]int

	errs []error
}

// Err joins every data-quality issue found during the run.
func (r *Report) Err() error {
	return errors.Join(r.errs...)
}

type runner struct {
	ctx context.Context
	cfg config.Config
	m   *Metrics
	rep *Report
}

// Run processes in and returns the annotated network. Data-quality issues
// (structural gaps, cycles, ambiguous anchors, stations too far from any
// reach, missing attribute columns) do not stop the run; they are collected
// in the report and counted in m. With cfg.Strict set the run still completes
// but returns ErrStrict when any issue was found. m may be nil.
func Run(ctx context.Context, cfg config.Config, in Input, m *Metrics) (*network.Network, *Report, error) {
	p := &runner{
		ctx: ctx,
		cfg: cfg,
		m:   m,
		rep: &Report{RunID: uuid.NewString(), Issues: make(map[string]int)},
	}
	log.Printf("Run %s: %d reaches, %d stations", p.rep.RunID, len(in.Table.Reaches), len(in.Stations))

	n, err := p.run(in)
	if err != nil {
		p.count("failed")
		return nil, p.rep, err
	}
	if m != nil {
		m.Reaches.Set(float64(n.Len()))
		m.Segments.Set(float64(p.rep.Segments))
	}

	if len(p.rep.errs) > 0 {
		log.Printf("Run %s finished with %d issues: %v", p.rep.RunID, len(p.rep.errs), p.rep.Issues)
		if cfg.Strict {
			p.count("strict")
			return n, p.rep, fmt.Errorf("%w: %w", ErrStrict, p.rep.Err())
		}
	}
	p.count("ok")
	return n, p.rep, nil
}

func (p *runner) count(status string) {
	if p.m != nil {
		p.m.Runs.WithLabelValues(status).Inc()
	}
}

func (p *runner) run(in Input) (*network.Network, error) {
	cfg := p.cfg
	reaches := make([]network.Reach, len(in.Table.Reaches))
	copy(reaches, in.Table.Reaches)

	if err := p.stage("prepare", func() error {
		p.rep.LengthsFilled = fillLengths(reaches, cfg.Geographic)
		if unresolved(reaches) {
			created, err := network.ResolveNodes(reaches, cfg.NodeTolerance)
			if err != nil {
				return fmt.Errorf("resolve nodes: %w", err)
			}
			p.rep.NodesCreated = created
			log.Printf("Resolved %d nodes from endpoint coordinates", p.rep.NodesCreated)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	var n *network.Network
	if err := p.stage("build", func() error {
		var err error
		n, err = network.Build(reaches, network.BuildOptions{OutletID: cfg.OutletID})
		if err != nil {
			return fmt.Errorf("build network: %w", err)
		}
		n.RunID = p.rep.RunID
		in.Table.Apply(n)
		for _, g := range n.Gaps {
			p.issue(g)
		}
		p.rep.Reaches = n.Len()
		p.rep.Branches = len(n.Branches())
		p.rep.Outlet = n.Reaches[n.Outlet].ID
		log.Printf("Network: %d reaches, %d branches, outlet reach %d", p.rep.Reaches, p.rep.Branches, p.rep.Outlet)
		return nil
	}); err != nil {
		return nil, err
	}

	stages := []struct {
		name string
		fn   func() error
	}{
		{"distance", func() error {
			p.issue(withoutKnownGaps(network.AccumulateDistance(n), n.Gaps))
			return nil
		}},
		{"stations", func() error {
			if len(in.Stations) == 0 {
				return nil
			}
			s := station.NewSnapper(n, cfg.Stations.MaxSnapDistance, cfg.Geographic)
			res, err := station.Attach(n, s, in.Stations)
			p.rep.Stations = res
			p.issue(err)
			log.Printf("Attached %d of %d stations", res.Attached, len(in.Stations))
			return nil
		}},
		{"slope", func() error {
			if n.Field(power.FieldSlope) == nil {
				power.DEMSlope(n, power.FieldSlope)
			}
			return nil
		}},
		{"segment", func() error {
			count, err := segment.Segment(n, cfg.Threshold)
			if err != nil {
				return fmt.Errorf("segment: %w", err)
			}
			p.rep.Segments = count
			log.Printf("Segmented into %d segments", count)
			return nil
		}},
		{"smooth", func() error {
			if len(cfg.Smoothing.Fields) == 0 {
				return nil
			}
			w, err := cfg.Window()
			if err != nil {
				return fmt.Errorf("smoothing window: %w", err)
			}
			for _, f := range cfg.Smoothing.Fields {
				p.issue(segment.Smooth(n, f, cfg.Smoothing.Suffix, w))
			}
			return nil
		}},
		{"interpolate", func() error {
			for _, f := range cfg.Interpolation.Fields {
				res, err := interp.Interpolate(n, f, interp.Options{Prefix: cfg.Interpolation.Prefix})
				p.issue(err)
				if errors.Is(err, network.ErrUnknownField) {
					continue
				}
				p.rep.Interpolations = append(p.rep.Interpolations, res)
				if cfg.Interpolation.Slope {
					name := cfg.Interpolation.Prefix + f
					p.issue(power.TracedSlope(n, name, "S_"+name))
				}
			}
			return nil
		}},
		{"power", func() error {
			if cfg.Power.Enabled {
				p.issue(power.Calculate(n, cfg.PowerParams()))
			}
			if f, ok := cfg.BridgeFields(); ok {
				p.issue(power.ApplyBridge(n, f))
			}
			return nil
		}},
	}
	for _, s := range stages {
		if err := p.stage(s.name, s.fn); err != nil {
			return nil, err
		}
	}
	return n, nil
}

func (p *runner) stage(name string, fn func() error) error {
	if err := p.ctx.Err(); err != nil {
		return fmt.Errorf("before %s: %w", name, err)
	}
	start := time.Now()
	err := fn()
	d := time.Since(start)
	p.rep.Stages = append(p.rep.Stages, Stage{Name: name, Duration: d})
	if p.m != nil {
		p.m.StageDuration.WithLabelValues(name).Observe(d.Seconds())
	}
	return err
}

// issue records every error joined into err.
func (p *runner) issue(err error) {
	if err == nil {
		return
	}
	errs := []error{err}
	if u, ok := err.(interface{ Unwrap() []error }); ok {
		errs = u.Unwrap()
	}
	for _, e := range errs {
		kind := Kind(e)
		p.rep.Issues[kind]++
		p.rep.errs = append(p.rep.errs, e)
		if p.m != nil {
			p.m.Issues.WithLabelValues(kind).Inc()
		}
	}
}

// withoutKnownGaps drops structural gaps already reported by the branch
// builder for the same reach.
func withoutKnownGaps(err error, known []*network.StructuralGapError) error {
	if err == nil || len(known) == 0 {
		return err
	}
	seen := make(map[int64]bool, len(known))
	for _, g := range known {
		seen[g.ReachID] = true
	}
	errs := []error{err}
	if u, ok := err.(interface{ Unwrap() []error }); ok {
		errs = u.Unwrap()
	}
	var keep []error
	for _, e := range errs {
		var gap *network.StructuralGapError
		if errors.As(e, &gap) && seen[gap.ReachID] {
			continue
		}
		keep = append(keep, e)
	}
	return errors.Join(keep...)
}

// Kind classifies a data-quality error.
func Kind(err error) string {
	switch {
	case errors.Is(err, network.ErrStructuralGap):
		return KindStructuralGap
	case errors.Is(err, network.ErrCycle):
		return KindCycle
	case errors.Is(err, network.ErrAmbiguousAnchor):
		return KindAmbiguousAnchor
	case errors.Is(err, station.ErrPointTooFar):
		return KindSnapTooFar
	case errors.Is(err, network.ErrUnknownField):
		return KindMissingField
	}
	return KindOther
}

// fillLengths computes missing or non-positive lengths from geometry.
func fillLengths(reaches []network.Reach, geographic bool) int {
	filled := 0
	for i := range reaches {
		r := &reaches[i]
		if !network.IsNull(r.Length) && r.Length > 0 {
			continue
		}
		line := r.Geometry
		if len(line) < 2 {
			if r.Start == r.End {
				continue
			}
			line = orb.LineString{r.Start, r.End}
		}
		r.Length = geo.LineLength(line, geographic)
		filled++
	}
	if filled > 0 {
		log.Printf("Computed %d reach lengths from geometry", filled)
	}
	return filled
}

func unresolved(reaches []network.Reach) bool {
	for _, r := range reaches {
		if r.FromNode == 0 || r.ToNode == 0 {
			return true
		}
	}
	return false
}
