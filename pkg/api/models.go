package api

// LatLngJSON represents a lat/lng pair in JSON.
type LatLngJSON struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// LocationRequest is the JSON body for POST /api/v1/tour/location and
// POST /api/v1/tour/offroute.
type LocationRequest struct {
	Lat     float64  `json:"lat"`
	Lng     float64  `json:"lng"`
	Bearing *float64 `json:"bearing,omitempty"`
}

// StatusResponse is the JSON response for GET /api/v1/tour.
type StatusResponse struct {
	State                   string         `json:"state"`
	RunID                   string         `json:"run_id,omitempty"`
	LegIndex                int            `json:"leg_index"`
	ResumeOffset            int            `json:"resume_offset"`
	WaypointIndex           int            `json:"waypoint_index"`
	TotalWaypoints          int            `json:"total_waypoints"`
	RequestInFlight         bool           `json:"request_in_flight"`
	LastLocation            *LatLngJSON    `json:"last_location,omitempty"`
	Marker                  *LatLngJSON    `json:"marker,omitempty"`
	RemainingDistanceMeters *float64       `json:"remaining_distance_meters,omitempty"`
	Navigation              NavigationJSON `json:"navigation"`
}

// NavigationJSON describes the navigation session as last commanded.
type NavigationJSON struct {
	Active          bool    `json:"active"`
	Reroutes        int     `json:"reroutes"`
	DistanceMeters  float64 `json:"distance_meters,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
}

// ErrorResponse is the JSON response for errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
	Index   *int   `json:"index,omitempty"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is the JSON response for GET /api/v1/health.
type HealthResponse struct {
	Status string `json:"status"`
	State  string `json:"state,omitempty"`
}
