package network

import (
	"errors"
	"math"
	"testing"
)

func TestAccumulateDistanceChain(t *testing.T) {
	n, err := Build(chain(10, 10, 10, 10), BuildOptions{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := AccumulateDistance(n); err != nil {
		t.Fatalf("AccumulateDistance: %v", err)
	}
	want := []float64{30, 20, 10, 0}
	for i, w := range want {
		if got := n.Reaches[i].DownDistance; got != w {
			t.Errorf("reach %d: DownDistance = %v, want %v", n.Reaches[i].ID, got, w)
		}
	}
}

func TestAccumulateDistanceConfluence(t *testing.T) {
	n, err := Build([]Reach{
		NewReach(1, 1, 3, 5),
		NewReach(2, 2, 3, 7),
		NewReach(3, 3, 4, 10),
		NewReach(4, 4, 5, 2),
	}, BuildOptions{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := AccumulateDistance(n); err != nil {
		t.Fatalf("AccumulateDistance: %v", err)
	}
	tests := []struct {
		id   int64
		want float64
	}{
		{1, 15}, {2, 17}, {3, 10}, {4, 0},
	}
	for _, tt := range tests {
		r, _ := n.Reach(tt.id)
		if r.DownDistance != tt.want {
			t.Errorf("reach %d: DownDistance = %v, want %v", tt.id, r.DownDistance, tt.want)
		}
	}
}

func TestAccumulateDistanceNullDrainageAreaIsSource(t *testing.T) {
	// Reach 2 has a null drainage area, so it seeds its own trace; the
	// result must not depend on which source reached it first.
	rs := chain(4, 3, 2)
	for i := range rs {
		rs[i].DrainageArea = float64(i + 1)
	}
	rs[1].DrainageArea = math.NaN()
	n, err := Build(rs, BuildOptions{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := AccumulateDistance(n); err != nil {
		t.Fatalf("AccumulateDistance: %v", err)
	}
	for i, w := range []float64{7, 3, 0} {
		if got := n.Reaches[i].DownDistance; got != w {
			t.Errorf("reach %d: DownDistance = %v, want %v", n.Reaches[i].ID, got, w)
		}
	}
}

func TestAccumulateDistanceBraided(t *testing.T) {
	// Node 2 splits into 2→3→5 and 3→4→5, which rejoin at node 5. Only
	// reach 1 is a source and Next follows reach 2, so the 3→5 side is
	// resolved by the second pass.
	rs := []Reach{
		NewReach(1, 1, 2, 10),
		NewReach(2, 2, 3, 10),
		NewReach(3, 2, 4, 10),
		NewReach(4, 3, 5, 10),
		NewReach(5, 4, 5, 10),
		NewReach(6, 5, 6, 10),
	}
	for i := range rs {
		rs[i].DrainageArea = 5
	}
	rs[0].DrainageArea = math.NaN()
	n, err := Build(rs, BuildOptions{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if err := AccumulateDistance(n); err != nil {
		t.Fatalf("AccumulateDistance: %v", err)
	}
	tests := []struct {
		id   int64
		want float64
	}{
		{1, 30}, {2, 20}, {3, 20}, {4, 10}, {5, 10}, {6, 0},
	}
	for _, tt := range tests {
		r, _ := n.Reach(tt.id)
		if r.DownDistance != tt.want {
			t.Errorf("reach %d: DownDistance = %v, want %v", tt.id, r.DownDistance, tt.want)
		}
	}
}

func TestAccumulateDistanceIsolatedLoop(t *testing.T) {
	// Reaches 2 and 3 form a loop with no source feeding it.
	rs := []Reach{
		NewReach(1, 1, 9, 1),
		NewReach(2, 2, 3, 1),
		NewReach(3, 3, 2, 1),
	}
	for i := range rs {
		rs[i].DrainageArea = 1
	}
	n, err := Build(rs, BuildOptions{OutletID: 1})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	err = AccumulateDistance(n)
	if !errors.Is(err, ErrCycle) {
		t.Fatalf("got %v, want ErrCycle", err)
	}
	if errs := joined(err); len(errs) != 1 {
		t.Errorf("reported %d errors, want 1: %v", len(errs), errs)
	}
}

func TestAccumulateDistanceCycle(t *testing.T) {
	rs := []Reach{
		NewReach(1, 1, 2, 1),
		NewReach(2, 2, 3, 1),
		NewReach(3, 3, 2, 1),
		NewReach(4, 5, 6, 1),
	}
	for i := range rs {
		rs[i].DrainageArea = 1
	}
	n, err := Build(rs, BuildOptions{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if n.Reaches[n.Outlet].ID != 4 {
		t.Fatalf("outlet = reach %d, want 4", n.Reaches[n.Outlet].ID)
	}

	err = AccumulateDistance(n)
	if !errors.Is(err, ErrCycle) {
		t.Fatalf("got %v, want ErrCycle", err)
	}
	if errs := joined(err); len(errs) != 1 {
		t.Errorf("reported %d errors, want 1: %v", len(errs), errs)
	}
	for i := 0; i < 3; i++ {
		if !math.IsNaN(n.Reaches[i].DownDistance) {
			t.Errorf("reach %d: DownDistance = %v, want null", n.Reaches[i].ID, n.Reaches[i].DownDistance)
		}
	}
	if n.Reaches[3].DownDistance != 0 {
		t.Errorf("outlet DownDistance = %v, want 0", n.Reaches[3].DownDistance)
	}
}

func TestAccumulateDistanceFragmentReportedOnce(t *testing.T) {
	rs := []Reach{
		NewReach(1, 1, 3, 1),
		NewReach(2, 2, 3, 1),
		NewReach(3, 3, 4, 1),
		NewReach(10, 100, 101, 1),
	}
	n, err := Build(rs, BuildOptions{OutletID: 10})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	err = AccumulateDistance(n)
	if !errors.Is(err, ErrStructuralGap) {
		t.Fatalf("got %v, want ErrStructuralGap", err)
	}
	errs := joined(err)
	if len(errs) != 1 {
		t.Fatalf("reported %d errors, want 1", len(errs))
	}
	var gap *StructuralGapError
	if !errors.As(errs[0], &gap) || gap.ReachID != 3 || gap.Node != 4 {
		t.Errorf("gap = %+v, want reach 3 at node 4", gap)
	}
}

func TestAccumulateDistanceNoOutlet(t *testing.T) {
	n, err := New(chain(1))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := AccumulateDistance(n); !errors.Is(err, ErrNoOutlet) {
		t.Errorf("got %v, want ErrNoOutlet", err)
	}
}
