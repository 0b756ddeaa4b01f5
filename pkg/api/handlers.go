package api

import (
	"encoding/json"
	"errors"
	"math"
	"mime"
	"net/http"
	"strconv"

	"github.com/paulmach/orb"

	"rivernet/pkg/network"
	"rivernet/pkg/segment"
	"rivernet/pkg/station"
)

// Snapper finds the reach nearest to a point.
type Snapper interface {
	Snap(p orb.Point) (station.SnapResult, error)
}

// Handlers holds the HTTP handlers and their dependencies. The network is
// read-only once handlers are created.
type Handlers struct {
	n        *network.Network
	snapper  Snapper
	segments map[int32][]int32
	stats    StatsResponse
}

// NewHandlers creates handlers over a processed network.
func NewHandlers(n *network.Network, snapper Snapper) *Handlers {
	segs := segment.Segments(n)
	return &Handlers{
		n:        n,
		snapper:  snapper,
		segments: segs,
		stats:    NewStats(n, len(segs)),
	}
}

// NewStats summarizes a processed network.
func NewStats(n *network.Network, numSegments int) StatsResponse {
	s := StatsResponse{
		RunID:       n.RunID,
		NumReaches:  n.Len(),
		NumBranches: len(n.Branches()),
		NumSegments: numSegments,
		Fields:      n.FieldNames(),
	}
	for _, r := range n.Reaches {
		if r.ConnectID != network.NoID {
			s.NumConnections++
		}
	}
	if n.Outlet >= 0 {
		s.Outlet = n.Reaches[n.Outlet].ID
		s.NumGaps = len(network.Sinks(n)) - 1
	}
	return s
}

// HandleReach handles GET /api/v1/reaches/{id}.
func (h *Handlers) HandleReach(w http.ResponseWriter, r *http.Request) {
	idx, ok := h.reachIndex(w, r)
	if !ok {
		return
	}
	writeJSON(w, h.reachResponse(idx))
}

// HandleDownstream handles GET /api/v1/reaches/{id}/downstream.
func (h *Handlers) HandleDownstream(w http.ResponseWriter, r *http.Request) {
	idx, ok := h.reachIndex(w, r)
	if !ok {
		return
	}
	path, err := h.n.Trace(idx)
	if err != nil {
		if errors.Is(err, network.ErrCycle) {
			writeError(w, http.StatusConflict, "cycle_detected", "")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}

	resp := DownstreamResponse{From: h.n.Reaches[idx].ID, Reaches: make([]int64, len(path))}
	for i, p := range path {
		resp.Reaches[i] = h.n.Reaches[p].ID
		if l := h.n.Reaches[p].Length; !network.IsNull(l) {
			resp.Distance += l
		}
	}
	writeJSON(w, resp)
}

// HandleSegment handles GET /api/v1/segments/{id}.
func (h *Handlers) HandleSegment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "id")
		return
	}
	members, ok := h.segments[int32(id)]
	if !ok {
		writeError(w, http.StatusNotFound, "segment_not_found", "")
		return
	}
	resp := SegmentResponse{ID: int32(id), Reaches: make([]SegmentReachJSON, len(members))}
	for i, m := range members {
		rc := &h.n.Reaches[m]
		resp.Reaches[i] = SegmentReachJSON{ID: rc.ID, Rank: rc.SegmentRank, DeltaDA: nullable(rc.DeltaDA)}
	}
	writeJSON(w, resp)
}

// HandleSnap handles POST /api/v1/snap.
func (h *Handlers) HandleSnap(w http.ResponseWriter, r *http.Request) {
	// Enforce Content-Type.
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		writeError(w, http.StatusBadRequest, "invalid_request", "")
		return
	}

	var req SnapRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1024)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "")
		return
	}
	if err := validateCoord(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_coordinates", "")
		return
	}
	res, err := h.snapper.Snap(orb.Point{req.X, req.Y})
	if err != nil {
		if errors.Is(err, station.ErrPointTooFar) {
			writeError(w, http.StatusUnprocessableEntity, "point_too_far_from_reach", "")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}
	writeJSON(w, SnapResponse{ReachID: res.ReachID, Segment: res.Segment, Ratio: res.Ratio, Distance: res.Dist})
}

// HandleHealth handles GET /api/v1/health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, HealthResponse{Status: "ok"})
}

// HandleStats handles GET /api/v1/stats.
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.stats)
}

func (h *Handlers) reachIndex(w http.ResponseWriter, r *http.Request) (int32, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "id")
		return 0, false
	}
	idx, ok := h.n.Index(id)
	if !ok {
		writeError(w, http.StatusNotFound, "reach_not_found", "")
		return 0, false
	}
	return idx, true
}

func (h *Handlers) reachResponse(idx int32) ReachResponse {
	rc := &h.n.Reaches[idx]
	resp := ReachResponse{
		ID:            rc.ID,
		FromNode:      int64(rc.FromNode),
		ToNode:        int64(rc.ToNode),
		Length:        nullable(rc.Length),
		ElevationUp:   nullable(rc.ElevUp),
		ElevationDown: nullable(rc.ElevDown),
		DrainageArea:  nullable(rc.DrainageArea),
		Station:       rc.Station,
		BranchID:      nullableID(rc.BranchID),
		ConnectID:     nullableID(rc.ConnectID),
		BranchLength:  nullable(rc.BranchLength),
		DownDistance:  nullable(rc.DownDistance),
		SegmentID:     nullableID(rc.SegmentID),
		SegmentRank:   nullableID(rc.SegmentRank),
		DeltaDA:       nullable(rc.DeltaDA),
	}
	if len(h.n.Fields) > 0 {
		resp.Fields = make(map[string]*float64, len(h.n.Fields))
		for name, col := range h.n.Fields {
			resp.Fields[name] = nullable(col[idx])
		}
	}
	for _, p := range rc.Geometry {
		resp.Geometry = append(resp.Geometry, [2]float64(p))
	}
	return resp
}

func nullable(v float64) *float64 {
	if network.IsNull(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func nullableID(v int32) *int32 {
	if v == network.NoID {
		return nil
	}
	return &v
}

func validateCoord(req SnapRequest) error {
	if math.IsNaN(req.X) || math.IsNaN(req.Y) || math.IsInf(req.X, 0) || math.IsInf(req.Y, 0) {
		return errors.New("coordinates must be finite numbers")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, field string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: code, Field: field})
}
