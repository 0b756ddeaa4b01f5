package pipeline

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/paulmach/orb"

	"rivernet/pkg/config"
	"rivernet/pkg/network"
	"rivernet/pkg/power"
	"rivernet/pkg/station"
	"rivernet/pkg/table"
)

// A main stem 1→2→3→4 running south along x=0 with tributary 5 joining at
// node 3 from the east. Every reach is 100 long.
const riverCSV = `id,from_node,to_node,length,elevation_up,elevation_down,drainage_area,station,start_x,start_y,end_x,end_y,WS_Elev
1,1,2,100,110,108,1.0,A,0,400,0,300,100
2,2,3,100,108,106,1.05,,0,300,0,200,
3,3,4,100,106,104,2.0,,0,200,0,100,
4,4,5,100,104,102,2.1,D,0,100,0,0,94
5,10,3,100,109,106,0.8,,100,200,0,200,
`

func readTable(t *testing.T, in string) *table.Table {
	t.Helper()
	tbl, err := table.Read(strings.NewReader(in))
	if err != nil {
		t.Fatalf("table.Read: %v", err)
	}
	return tbl
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Interpolation.Fields = []string{"WS_Elev"}
	cfg.Interpolation.Slope = true
	return cfg
}

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestRun(t *testing.T) {
	m := NewMetrics()
	n, rep, err := Run(context.Background(), testConfig(), Input{Table: readTable(t, riverCSV)}, m)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.RunID == "" || n.RunID != rep.RunID {
		t.Errorf("run id %q not stored on network (%q)", rep.RunID, n.RunID)
	}
	if rep.Reaches != 5 || rep.Branches != 2 || rep.Segments != 3 || rep.Outlet != 4 {
		t.Errorf("report = %+v, want 5 reaches, 2 branches, 3 segments, outlet 4", rep)
	}
	if len(rep.Issues) != 0 || rep.Err() != nil {
		t.Errorf("unexpected issues: %v", rep.Err())
	}

	wantStages := []string{"prepare", "build", "distance", "stations", "slope", "segment", "smooth", "interpolate", "power"}
	if len(rep.Stages) != len(wantStages) {
		t.Fatalf("got %d stages, want %d", len(rep.Stages), len(wantStages))
	}
	for i, s := range rep.Stages {
		if s.Name != wantStages[i] {
			t.Errorf("stage %d = %s, want %s", i, s.Name, wantStages[i])
		}
	}

	for id, want := range map[int64]float64{1: 300, 2: 200, 3: 100, 4: 0, 5: 200} {
		r, _ := n.Reach(id)
		if r.DownDistance != want {
			t.Errorf("reach %d: DownDistance = %v, want %v", id, r.DownDistance, want)
		}
	}

	ws := n.Field("INTP_WS_Elev")
	for i, want := range []float64{100, 98, 96, 94} {
		if !near(ws[i], want) {
			t.Errorf("INTP_WS_Elev[%d] = %v, want %v", i, ws[i], want)
		}
	}
	if !math.IsNaN(ws[4]) {
		t.Errorf("tributary INTP_WS_Elev = %v, want null", ws[4])
	}
	if s := n.Field("S_INTP_WS_Elev"); s == nil || !near(s[1], -0.02) {
		t.Errorf("S_INTP_WS_Elev = %v, want -0.02 on reach 2", s)
	}

	if s := n.Field(power.FieldSlope); s == nil || !near(s[0], -0.02) {
		t.Errorf("%s = %v, want DEM slope -0.02", power.FieldSlope, s)
	}
	pw := n.Field(power.FieldPower)
	if pw == nil {
		t.Fatalf("missing %s", power.FieldPower)
	}
	for i, v := range pw {
		if math.IsNaN(v) || v <= 0 {
			t.Errorf("%s[%d] = %v, want positive", power.FieldPower, i, v)
		}
	}

	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := make(map[string]bool)
	for _, f := range families {
		found[f.GetName()] = true
		if f.GetName() == "rivernet_reaches" && f.GetMetric()[0].GetGauge().GetValue() != 5 {
			t.Errorf("rivernet_reaches = %v, want 5", f.GetMetric()[0].GetGauge().GetValue())
		}
	}
	for _, name := range []string{"rivernet_runs_total", "rivernet_stage_duration_seconds", "rivernet_reaches", "rivernet_segments"} {
		if !found[name] {
			t.Errorf("metric %s not gathered", name)
		}
	}
}

func TestRunResolvesNodesAndLengths(t *testing.T) {
	var b strings.Builder
	b.WriteString("id,length,drainage_area,start_x,start_y,end_x,end_y\n")
	for _, line := range strings.Split(strings.TrimSpace(riverCSV), "\n")[1:] {
		c := strings.Split(line, ",")
		// Drop node ids and the length so both are derived.
		b.WriteString(strings.Join([]string{c[0], "", c[6], c[8], c[9], c[10], c[11]}, ",") + "\n")
	}

	cfg := testConfig()
	cfg.Interpolation.Fields = nil
	cfg.Power.Enabled = false
	n, rep, err := Run(context.Background(), cfg, Input{Table: readTable(t, b.String())}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.LengthsFilled != 5 {
		t.Errorf("LengthsFilled = %d, want 5", rep.LengthsFilled)
	}
	if rep.NodesCreated != 6 {
		t.Errorf("NodesCreated = %d, want 6", rep.NodesCreated)
	}
	if rep.Outlet != 4 || rep.Branches != 2 {
		t.Errorf("outlet %d branches %d, want 4 and 2", rep.Outlet, rep.Branches)
	}
	r1, _ := n.Reach(1)
	if r1.Length != 100 || r1.DownDistance != 300 {
		t.Errorf("reach 1: length %v down %v, want 100 and 300", r1.Length, r1.DownDistance)
	}
}

func TestRunStations(t *testing.T) {
	stations := []station.Station{
		{ID: "S1", Point: orb.Point{5, 350}, Values: map[string]float64{"Q_obs": 3}},
		{ID: "S2", Point: orb.Point{1000, 1000}},
	}
	in := Input{Table: readTable(t, riverCSV), Stations: stations}
	m := NewMetrics()

	n, rep, err := Run(context.Background(), testConfig(), in, m)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Stations.Attached != 1 || len(rep.Stations.TooFar) != 1 {
		t.Errorf("stations = %+v, want 1 attached and 1 too far", rep.Stations)
	}
	if rep.Issues[KindSnapTooFar] != 1 {
		t.Errorf("issues = %v, want one %s", rep.Issues, KindSnapTooFar)
	}
	if !errors.Is(rep.Err(), station.ErrPointTooFar) {
		t.Errorf("report error %v does not wrap ErrPointTooFar", rep.Err())
	}
	r1, _ := n.Reach(1)
	if r1.Station != "S1" || n.Field("Q_obs")[0] != 3 {
		t.Errorf("reach 1 station %q Q_obs %v, want S1 and 3", r1.Station, n.Field("Q_obs"))
	}

	cfg := testConfig()
	cfg.Strict = true
	_, _, err = Run(context.Background(), cfg, in, m)
	if !errors.Is(err, ErrStrict) || !errors.Is(err, station.ErrPointTooFar) {
		t.Errorf("strict run: got %v, want ErrStrict wrapping ErrPointTooFar", err)
	}
}

func TestRunCollectsIssues(t *testing.T) {
	// Reach 6 is a disconnected fragment whose sink is not the outlet.
	in := riverCSV + "6,20,21,50,,,,,,,,,\n"
	cfg := testConfig()
	cfg.Smoothing.Fields = []string{power.FieldSlope, "Missing"}

	_, rep, err := Run(context.Background(), cfg, Input{Table: readTable(t, in)}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Issues[KindMissingField] != 1 {
		t.Errorf("issues = %v, want one %s", rep.Issues, KindMissingField)
	}
	if rep.Issues[KindStructuralGap] != 1 {
		t.Errorf("issues = %v, want one structural gap for the fragment", rep.Issues)
	}
	if got := strings.Count(rep.Err().Error(), "reach 6 ends at node 21"); got != 1 {
		t.Errorf("fragment gap reported %d times, want 1", got)
	}
}

func TestRunBridgeRatios(t *testing.T) {
	const in = `id,from_node,to_node,length,elevation_up,elevation_down,drainage_area,Qb,Qup,Qt,Wup,Wb
1,1,2,100,110,108,1.0,,,,,
2,2,3,100,108,106,1.2,40,50,60,12,10
`
	cfg := testConfig()
	cfg.Interpolation.Fields = nil
	cfg.Power.Bridge = &config.BridgeConfig{
		BridgeDischarge:   "Qb",
		UpstreamDischarge: "Qup",
		TotalDischarge:    "Qt",
		UpstreamWidth:     "Wup",
		BridgeWidth:       "Wb",
	}

	n, _, err := Run(context.Background(), cfg, Input{Table: readTable(t, in)}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	scour := n.Field(power.FieldScourRatio)
	over := n.Field(power.FieldOvertopRatio)
	if scour == nil || over == nil {
		t.Fatalf("bridge columns missing: %v", n.FieldNames())
	}
	if !network.IsNull(scour[0]) || !network.IsNull(over[0]) {
		t.Errorf("reach 1 without bridge data: scour %v overtop %v, want null", scour[0], over[0])
	}
	if want := power.ScourRatio(40, 50, 12, 10); !near(scour[1], want) {
		t.Errorf("reach 2 scour = %v, want %v", scour[1], want)
	}
	if !near(over[1], 1.5) {
		t.Errorf("reach 2 overtop = %v, want 1.5", over[1])
	}

	cfg.Power.Bridge.TotalDischarge = "Missing"
	_, rep, err := Run(context.Background(), cfg, Input{Table: readTable(t, in)}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Issues[KindMissingField] == 0 {
		t.Errorf("issues = %v, want a missing field for the bridge column", rep.Issues)
	}
}

func TestRunFatal(t *testing.T) {
	cfg := testConfig()
	cfg.OutletID = 3
	if _, _, err := Run(context.Background(), cfg, Input{Table: readTable(t, riverCSV)}, nil); err == nil {
		t.Error("expected error for an outlet that is not a sink")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := Run(ctx, testConfig(), Input{Table: readTable(t, riverCSV)}, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&network.StructuralGapError{ReachID: 1}, KindStructuralGap},
		{&network.CycleError{SourceID: 1}, KindCycle},
		{&network.AmbiguousAnchorError{Key: "A"}, KindAmbiguousAnchor},
		{station.ErrPointTooFar, KindSnapTooFar},
		{network.ErrUnknownField, KindMissingField},
		{errors.New("boom"), KindOther},
	}
	for _, tt := range tests {
		if got := Kind(tt.err); got != tt.want {
			t.Errorf("Kind(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}
