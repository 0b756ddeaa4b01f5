package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/prometheus/client_golang/prometheus"

	"rivernet/pkg/network"
	"rivernet/pkg/segment"
	"rivernet/pkg/station"
)

// mockSnapper implements Snapper for testing.
type mockSnapper struct {
	result station.SnapResult
	err    error
}

func (m *mockSnapper) Snap(p orb.Point) (station.SnapResult, error) {
	return m.result, m.err
}

// testNetwork builds a processed chain 1→2→3 with tributary 4 joining at
// node 2, segmented and with a WS field on reach 1 only.
func testNetwork(t *testing.T) *network.Network {
	t.Helper()
	rs := []network.Reach{
		network.NewReach(1, 1, 2, 100),
		network.NewReach(2, 2, 3, 100),
		network.NewReach(3, 3, 4, 50),
		network.NewReach(4, 5, 2, 80),
	}
	for i, da := range []float64{1, 1.05, 1.1, 0.5} {
		rs[i].DrainageArea = da
		rs[i].ElevDown = float64(100 - 10*i)
	}
	rs[0].Station = "XS1"
	rs[0].Geometry = orb.LineString{{0, 0}, {0, 100}}
	n, err := network.Build(rs, network.BuildOptions{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := network.AccumulateDistance(n); err != nil {
		t.Fatalf("AccumulateDistance: %v", err)
	}
	if _, err := segment.Segment(n, segment.DefaultThreshold); err != nil {
		t.Fatalf("Segment: %v", err)
	}
	n.EnsureField("WS")[0] = 101.5
	n.RunID = "run-1"
	return n
}

// serve routes a request through the full server so path values are set.
func serve(t *testing.T, h *Handlers, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	srv := NewServer(DefaultConfig(":0"), h)
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, req)
	return w
}

func TestHandleReach(t *testing.T) {
	h := NewHandlers(testNetwork(t), &mockSnapper{})
	w := serve(t, h, "GET", "/api/v1/reaches/1", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200. body: %s", w.Code, w.Body.String())
	}
	var resp ReachResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != 1 || resp.Station != "XS1" {
		t.Errorf("got reach %d station %q, want 1 XS1", resp.ID, resp.Station)
	}
	if resp.DownDistance == nil || *resp.DownDistance != 200 {
		t.Errorf("DownDistance = %v, want 200", resp.DownDistance)
	}
	if resp.BranchID == nil || *resp.BranchID != 1 {
		t.Errorf("BranchID = %v, want 1", resp.BranchID)
	}
	if resp.ElevationUp != nil {
		t.Errorf("ElevationUp = %v, want null", *resp.ElevationUp)
	}
	if v := resp.Fields["WS"]; v == nil || *v != 101.5 {
		t.Errorf("Fields[WS] = %v, want 101.5", v)
	}
	if len(resp.Geometry) != 2 || resp.Geometry[1][1] != 100 {
		t.Errorf("Geometry = %v", resp.Geometry)
	}
}

func TestHandleReach_NullField(t *testing.T) {
	h := NewHandlers(testNetwork(t), &mockSnapper{})
	w := serve(t, h, "GET", "/api/v1/reaches/2", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"WS":null`) {
		t.Errorf("null field not encoded as null: %s", w.Body.String())
	}
}

func TestHandleReach_Errors(t *testing.T) {
	h := NewHandlers(testNetwork(t), &mockSnapper{})
	tests := []struct {
		path string
		want int
	}{
		{"/api/v1/reaches/99", http.StatusNotFound},
		{"/api/v1/reaches/abc", http.StatusBadRequest},
		{"/api/v1/reaches/99/downstream", http.StatusNotFound},
		{"/api/v1/segments/99", http.StatusNotFound},
		{"/api/v1/segments/x", http.StatusBadRequest},
	}
	for _, tt := range tests {
		if w := serve(t, h, "GET", tt.path, ""); w.Code != tt.want {
			t.Errorf("GET %s: status = %d, want %d", tt.path, w.Code, tt.want)
		}
	}
}

func TestHandleDownstream(t *testing.T) {
	h := NewHandlers(testNetwork(t), &mockSnapper{})
	w := serve(t, h, "GET", "/api/v1/reaches/4/downstream", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp DownstreamResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	want := []int64{4, 2, 3}
	if len(resp.Reaches) != len(want) {
		t.Fatalf("Reaches = %v, want %v", resp.Reaches, want)
	}
	for i := range want {
		if resp.Reaches[i] != want[i] {
			t.Errorf("Reaches = %v, want %v", resp.Reaches, want)
			break
		}
	}
	if resp.Distance != 230 {
		t.Errorf("Distance = %v, want 230", resp.Distance)
	}
}

func TestHandleSegment(t *testing.T) {
	n := testNetwork(t)
	h := NewHandlers(n, &mockSnapper{})
	w := serve(t, h, "GET", "/api/v1/segments/1", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200. body: %s", w.Code, w.Body.String())
	}
	var resp SegmentResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != 1 || len(resp.Reaches) == 0 {
		t.Fatalf("segment = %+v", resp)
	}
	for i, m := range resp.Reaches {
		if m.Rank != int32(i) {
			t.Errorf("member %d has rank %d", i, m.Rank)
		}
	}
	if resp.Reaches[0].DeltaDA != nil {
		t.Errorf("seed DeltaDA = %v, want null", *resp.Reaches[0].DeltaDA)
	}
}

func TestHandleSnap_Success(t *testing.T) {
	mock := &mockSnapper{result: station.SnapResult{ReachID: 3, Segment: 0, Ratio: 0.25, Dist: 4.5}}
	h := NewHandlers(testNetwork(t), mock)
	w := serve(t, h, "POST", "/api/v1/snap", `{"x":10,"y":20}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200. body: %s", w.Code, w.Body.String())
	}
	var resp SnapResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ReachID != 3 || resp.Ratio != 0.25 || resp.Distance != 4.5 {
		t.Errorf("snap = %+v", resp)
	}
}

func TestHandleSnap_InvalidJSON(t *testing.T) {
	h := NewHandlers(testNetwork(t), &mockSnapper{})
	if w := serve(t, h, "POST", "/api/v1/snap", "not json"); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHandleSnap_MissingContentType(t *testing.T) {
	h := NewHandlers(testNetwork(t), &mockSnapper{})
	req := httptest.NewRequest("POST", "/api/v1/snap", strings.NewReader(`{"x":1,"y":2}`))
	w := httptest.NewRecorder()

	h.HandleSnap(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHandleSnap_PointTooFar(t *testing.T) {
	h := NewHandlers(testNetwork(t), &mockSnapper{err: station.ErrPointTooFar})
	if w := serve(t, h, "POST", "/api/v1/snap", `{"x":1,"y":2}`); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", w.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	h := NewHandlers(testNetwork(t), &mockSnapper{})

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()

	h.HandleHealth(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}

	var resp HealthResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Status != "ok" {
		t.Errorf("status = %q, want ok", resp.Status)
	}
}

func TestHandleStats(t *testing.T) {
	h := NewHandlers(testNetwork(t), &mockSnapper{})
	w := serve(t, h, "GET", "/api/v1/stats", "")

	var resp StatsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.RunID != "run-1" || resp.NumReaches != 4 || resp.NumBranches != 2 || resp.Outlet != 3 {
		t.Errorf("stats = %+v", resp)
	}
	if resp.NumConnections != 1 || resp.NumGaps != 0 {
		t.Errorf("connections %d gaps %d, want 1 and 0", resp.NumConnections, resp.NumGaps)
	}
	if len(resp.Fields) != 1 || resp.Fields[0] != "WS" {
		t.Errorf("Fields = %v", resp.Fields)
	}
}

func TestMiddlewareHeadersAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	cfg := DefaultConfig(":0")
	cfg.Registry = reg
	cfg.CORSOrigin = "https://example.org"
	srv := NewServer(cfg, NewHandlers(testNetwork(t), &mockSnapper{}))

	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/reaches/99", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" || w.Header().Get("Access-Control-Allow-Origin") != "https://example.org" {
		t.Errorf("missing middleware headers: %v", w.Header())
	}

	w = httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, `rivernet_http_requests_total{route="GET /api/v1/reaches/{id}",status="404"} 1`) {
		t.Errorf("request counter not exported:\n%s", body)
	}
}
