package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"mime"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"tour_navigator/pkg/location"
	"tour_navigator/pkg/tour"
	"tour_navigator/pkg/waypoint"
)

const maxTourBytes = 1 << 20

// Tour is the part of the tour controller the HTTP API drives.
type Tour interface {
	Start(ctx context.Context, records []waypoint.Record) error
	Reset(ctx context.Context) error
	Status(ctx context.Context) (tour.Status, error)
	OnLocation(s location.Sample)
	OnOffRoute(s location.Sample)
}

// Handlers holds the HTTP handlers and their dependencies.
type Handlers struct {
	tour Tour
	view *View
}

// NewHandlers creates handlers driving t and serving the geometry drawn
// into view.
func NewHandlers(t Tour, view *View) *Handlers {
	return &Handlers{tour: t, view: view}
}

// HandleStart handles POST /api/v1/tour/start. The body is a tour file:
// either a JSON array of records or a GeoJSON FeatureCollection.
func (h *Handlers) HandleStart(w http.ResponseWriter, r *http.Request) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/json" && mediaType != "application/geo+json" {
		writeError(w, http.StatusBadRequest, "invalid_request", "")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxTourBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request_too_large", "")
		return
	}

	var records []waypoint.Record
	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && trimmed[0] == '{' {
		records, err = waypoint.DecodeGeoJSON(trimmed)
	} else {
		records, err = waypoint.Decode(bytes.NewReader(trimmed))
	}
	if err == nil {
		err = h.tour.Start(r.Context(), records)
	}
	if err != nil {
		h.writeTourError(w, err)
		return
	}

	h.writeStatus(w, r, http.StatusAccepted)
}

// HandleReset handles POST /api/v1/tour/reset.
func (h *Handlers) HandleReset(w http.ResponseWriter, r *http.Request) {
	if err := h.tour.Reset(r.Context()); err != nil {
		h.writeTourError(w, err)
		return
	}
	h.writeStatus(w, r, http.StatusOK)
}

// HandleLocation handles POST /api/v1/tour/location.
func (h *Handlers) HandleLocation(w http.ResponseWriter, r *http.Request) {
	s, ok := decodeSample(w, r)
	if !ok {
		return
	}
	h.tour.OnLocation(s)
	w.WriteHeader(http.StatusAccepted)
}

// HandleOffRoute handles POST /api/v1/tour/offroute.
func (h *Handlers) HandleOffRoute(w http.ResponseWriter, r *http.Request) {
	s, ok := decodeSample(w, r)
	if !ok {
		return
	}
	h.tour.OnOffRoute(s)
	w.WriteHeader(http.StatusAccepted)
}

// HandleStatus handles GET /api/v1/tour.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	h.writeStatus(w, r, http.StatusOK)
}

// HandleLegRoute handles GET /api/v1/tour/leg-route.
func (h *Handlers) HandleLegRoute(w http.ResponseWriter, r *http.Request) {
	writeFeature(w, h.view.LegRoute())
}

// HandleTourRoute handles GET /api/v1/tour/tour-route.
func (h *Handlers) HandleTourRoute(w http.ResponseWriter, r *http.Request) {
	writeFeature(w, h.view.TourRoute())
}

// HandleHealth handles GET /api/v1/health. It reports unavailable once the
// controller loop has stopped.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	st, err := h.tour.Status(ctx)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "error"})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", State: st.State.String()})
}

func (h *Handlers) writeStatus(w http.ResponseWriter, r *http.Request, code int) {
	st, err := h.tour.Status(r.Context())
	if err != nil {
		h.writeTourError(w, err)
		return
	}

	resp := StatusResponse{
		State:                   st.State.String(),
		LegIndex:                st.LegIndex,
		ResumeOffset:            st.ResumeOffset,
		WaypointIndex:           st.WaypointIndex,
		TotalWaypoints:          st.TotalWaypoints,
		RequestInFlight:         st.RequestInFlight,
		RemainingDistanceMeters: st.RemainingDistance,
		Navigation:              h.view.Navigation(),
	}
	if st.RunID != uuid.Nil {
		resp.RunID = st.RunID.String()
	}
	if st.LastLocation != nil {
		resp.LastLocation = &LatLngJSON{Lat: st.LastLocation.Lat(), Lng: st.LastLocation.Lon()}
	}
	if p, ok := h.view.Marker(); ok {
		resp.Marker = &LatLngJSON{Lat: p.Lat(), Lng: p.Lon()}
	}
	writeJSON(w, code, resp)
}

func (h *Handlers) writeTourError(w http.ResponseWriter, err error) {
	var pe *waypoint.ParseError
	var oor *waypoint.OutOfRangeError
	switch {
	case errors.As(err, &pe):
		resp := ErrorResponse{Error: "invalid_waypoints", Field: pe.Field, Message: pe.Error()}
		if pe.Index >= 0 {
			resp.Index = &pe.Index
		}
		writeJSON(w, http.StatusBadRequest, resp)
	case errors.As(err, &oor):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: "resume_out_of_range", Message: oor.Error()})
	case errors.Is(err, tour.ErrTourInProgress):
		writeError(w, http.StatusConflict, "tour_in_progress", "")
	case errors.Is(err, tour.ErrNotRunning):
		writeError(w, http.StatusServiceUnavailable, "controller_stopped", "")
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "request_timeout", "")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "")
	}
}

func decodeSample(w http.ResponseWriter, r *http.Request) (location.Sample, bool) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		writeError(w, http.StatusBadRequest, "invalid_request", "")
		return location.Sample{}, false
	}

	var req LocationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1024)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "")
		return location.Sample{}, false
	}
	if err := validateCoord(LatLngJSON{Lat: req.Lat, Lng: req.Lng}); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_coordinates", "")
		return location.Sample{}, false
	}
	if req.Bearing != nil && (math.IsNaN(*req.Bearing) || math.IsInf(*req.Bearing, 0)) {
		writeError(w, http.StatusBadRequest, "invalid_bearing", "bearing")
		return location.Sample{}, false
	}

	return location.Sample{
		Point:     orb.Point{req.Lng, req.Lat},
		Bearing:   req.Bearing,
		Timestamp: time.Now(),
	}, true
}

func validateCoord(ll LatLngJSON) error {
	if math.IsNaN(ll.Lat) || math.IsNaN(ll.Lng) || math.IsInf(ll.Lat, 0) || math.IsInf(ll.Lng, 0) {
		return errors.New("coordinates must be finite numbers")
	}
	if ll.Lat < -90 || ll.Lat > 90 || ll.Lng < -180 || ll.Lng > 180 {
		return errors.New("coordinates out of range")
	}
	return nil
}

func writeFeature(w http.ResponseWriter, f *geojson.Feature) {
	if f == nil {
		writeError(w, http.StatusNotFound, "no_route", "")
		return
	}
	data, err := f.MarshalJSON()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, field string) {
	writeJSON(w, status, ErrorResponse{Error: code, Field: field})
}
