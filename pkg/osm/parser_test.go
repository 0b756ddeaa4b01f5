package osm

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/osm"

	"rivernet/pkg/network"
)

func TestIsWaterway(t *testing.T) {
	tests := []struct {
		name string
		tags osm.Tags
		want bool
	}{
		{
			name: "river",
			tags: osm.Tags{{Key: "waterway", Value: "river"}},
			want: true,
		},
		{
			name: "stream",
			tags: osm.Tags{{Key: "waterway", Value: "stream"}},
			want: true,
		},
		{
			name: "ditch",
			tags: osm.Tags{{Key: "waterway", Value: "ditch"}},
			want: true,
		},
		{
			name: "riverbank (area)",
			tags: osm.Tags{{Key: "waterway", Value: "riverbank"}},
			want: false,
		},
		{
			name: "dam",
			tags: osm.Tags{{Key: "waterway", Value: "dam"}},
			want: false,
		},
		{
			name: "canal drawn as area",
			tags: osm.Tags{
				{Key: "waterway", Value: "canal"},
				{Key: "area", Value: "yes"},
			},
			want: false,
		},
		{
			name: "road",
			tags: osm.Tags{{Key: "highway", Value: "residential"}},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := isWaterway(tt.tags)
			if got != tt.want {
				t.Errorf("isWaterway() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReversed(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"", false},
		{"forward", false},
		{"backward", true},
		{"-1", true},
	}
	for _, tt := range tests {
		tags := osm.Tags{{Key: "waterway", Value: "stream"}}
		if tt.value != "" {
			tags = append(tags, osm.Tag{Key: "direction", Value: tt.value})
		}
		if got := reversed(tags); got != tt.want {
			t.Errorf("reversed(direction=%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

// twoStreams returns a main stream 1-2-3-4-5 and a tributary 10-11-3 that
// joins it at node 3.
func twoStreams() ([]wayInfo, map[osm.NodeID]orb.Point, map[osm.NodeID]int) {
	ways := []wayInfo{
		{NodeIDs: []osm.NodeID{1, 2, 3, 4, 5}},
		{NodeIDs: []osm.NodeID{10, 11, 3}},
	}
	coords := map[osm.NodeID]orb.Point{
		1: {-80.5200, 43.4700}, 2: {-80.5200, 43.4690}, 3: {-80.5200, 43.4680},
		4: {-80.5200, 43.4670}, 5: {-80.5200, 43.4660},
		10: {-80.5180, 43.4690}, 11: {-80.5190, 43.4685},
	}
	refs := make(map[osm.NodeID]int)
	for _, w := range ways {
		countRefs(refs, w.NodeIDs)
	}
	return ways, coords, refs
}

func TestBuildReachesSplitsAtConfluence(t *testing.T) {
	ways, coords, refs := twoStreams()
	reaches := buildReaches(ways, coords, refs, BBox{})

	want := []struct {
		from, to network.NodeID
		points   int
	}{
		{1, 3, 3},
		{3, 5, 3},
		{10, 3, 3},
	}
	if len(reaches) != len(want) {
		t.Fatalf("got %d reaches, want %d", len(reaches), len(want))
	}
	for i, w := range want {
		r := reaches[i]
		if r.ID != int64(i+1) {
			t.Errorf("reach %d: ID = %d", i, r.ID)
		}
		if r.FromNode != w.from || r.ToNode != w.to {
			t.Errorf("reach %d: %d→%d, want %d→%d", r.ID, r.FromNode, r.ToNode, w.from, w.to)
		}
		if len(r.Geometry) != w.points {
			t.Errorf("reach %d: %d points, want %d", r.ID, len(r.Geometry), w.points)
		}
		if r.Start != r.Geometry[0] || r.End != r.Geometry[len(r.Geometry)-1] {
			t.Errorf("reach %d: endpoints do not match geometry", r.ID)
		}
	}
	// Two 0.001° steps of latitude.
	if l := reaches[0].Length; l < 220 || l > 225 {
		t.Errorf("reach 1 length = %v, want ~222 m", l)
	}

	n, err := network.Build(reaches, network.BuildOptions{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if n.Reaches[n.Outlet].ID != 2 || len(n.Gaps) != 0 {
		t.Errorf("outlet = %d, gaps = %d; want reach 2 and none", n.Reaches[n.Outlet].ID, len(n.Gaps))
	}
}

func TestBuildReachesMissingCoords(t *testing.T) {
	ways, coords, refs := twoStreams()
	delete(coords, 11)
	reaches := buildReaches(ways, coords, refs, BBox{})
	if len(reaches) != 2 {
		t.Fatalf("got %d reaches, want 2 (tributary dropped)", len(reaches))
	}
	for _, r := range reaches {
		if r.FromNode == 10 {
			t.Errorf("tributary reach with missing coordinates was kept")
		}
	}
}

func TestBuildReachesBBox(t *testing.T) {
	ways, coords, refs := twoStreams()
	bbox := BBox{MinLat: 43.4675, MaxLat: 43.471, MinLng: -80.53, MaxLng: -80.51}
	reaches := buildReaches(ways, coords, refs, bbox)
	if len(reaches) != 2 {
		t.Fatalf("got %d reaches, want 2", len(reaches))
	}
	for _, r := range reaches {
		if r.ToNode == 5 {
			t.Errorf("reach ending outside bbox was kept")
		}
	}
}

func TestBBox(t *testing.T) {
	var zero BBox
	if !zero.IsZero() {
		t.Error("zero BBox should report IsZero")
	}
	b := BBox{MinLat: 43, MaxLat: 44, MinLng: -81, MaxLng: -80}
	if !b.Contains(43.5, -80.5) || b.Contains(45, -80.5) {
		t.Error("Contains gave wrong result")
	}
}
