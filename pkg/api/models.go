package api

// Null attribute values are encoded as JSON null.

// ReachResponse is the JSON response for GET /api/v1/reaches/{id}.
type ReachResponse struct {
	ID            int64               `json:"id"`
	FromNode      int64               `json:"from_node"`
	ToNode        int64               `json:"to_node"`
	Length        *float64            `json:"length"`
	ElevationUp   *float64            `json:"elevation_up"`
	ElevationDown *float64            `json:"elevation_down"`
	DrainageArea  *float64            `json:"drainage_area"`
	Station       string              `json:"station,omitempty"`
	BranchID      *int32              `json:"branch_id"`
	ConnectID     *int32              `json:"connect_id"`
	BranchLength  *float64            `json:"branch_total_length"`
	DownDistance  *float64            `json:"down_distance"`
	SegmentID     *int32              `json:"segment_id"`
	SegmentRank   *int32              `json:"segment_rank"`
	DeltaDA       *float64            `json:"delta_da"`
	Fields        map[string]*float64 `json:"fields,omitempty"`
	Geometry      [][2]float64        `json:"geometry,omitempty"`
}

// DownstreamResponse is the JSON response for GET /api/v1/reaches/{id}/downstream.
type DownstreamResponse struct {
	From     int64   `json:"from"`
	Reaches  []int64 `json:"reaches"`
	Distance float64 `json:"distance"`
}

// SegmentResponse is the JSON response for GET /api/v1/segments/{id}.
type SegmentResponse struct {
	ID      int32             `json:"id"`
	Reaches []SegmentReachJSON `json:"reaches"`
}

// SegmentReachJSON is one member of a segment, in rank order.
type SegmentReachJSON struct {
	ID      int64    `json:"id"`
	Rank    int32    `json:"rank"`
	DeltaDA *float64 `json:"delta_da"`
}

// SnapRequest is the JSON body for POST /api/v1/snap.
type SnapRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// SnapResponse is the JSON response for a successful snap.
type SnapResponse struct {
	ReachID  int64   `json:"reach_id"`
	Segment  int     `json:"segment"`
	Ratio    float64 `json:"ratio"`
	Distance float64 `json:"distance"`
}

// ErrorResponse is the JSON response for errors.
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// StatsResponse is the JSON response for GET /api/v1/stats.
type StatsResponse struct {
	RunID          string   `json:"run_id"`
	NumReaches     int      `json:"num_reaches"`
	NumBranches    int      `json:"num_branches"`
	NumSegments    int      `json:"num_segments"`
	NumConnections int      `json:"num_connections"`
	NumGaps        int      `json:"num_gaps"`
	Outlet         int64    `json:"outlet"`
	Fields         []string `json:"fields"`
}

// HealthResponse is the JSON response for GET /api/v1/health.
type HealthResponse struct {
	Status string `json:"status"`
}
