// Package tour drives a multi-leg tour: it requests a route per leg,
// watches location updates for arrival or departure from the route, and
// persists progress so a tour can resume after a restart.
package tour

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"

	"tour_navigator/pkg/directions"
)

// DefaultArrivalThreshold is the remaining distance in meters at or below
// which the current waypoint counts as reached.
const DefaultArrivalThreshold = 40.0

var (
	// ErrNotRunning is returned when the controller loop has stopped.
	ErrNotRunning = errors.New("tour controller is not running")
	// ErrTourInProgress is returned by Start while a tour is underway.
	ErrTourInProgress = errors.New("tour already in progress")
)

// State is the controller's position in the tour lifecycle.
type State int

const (
	Idle State = iota
	AwaitingDeparture
	LegInFlight
	LegActive
	Rerouting
	TourComplete
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingDeparture:
		return "awaiting_departure"
	case LegInFlight:
		return "leg_in_flight"
	case LegActive:
		return "leg_active"
	case Rerouting:
		return "rerouting"
	case TourComplete:
		return "tour_complete"
	default:
		return "unknown"
	}
}

// RenderSink receives geometry to draw. An empty line clears the route.
type RenderSink interface {
	RenderLegRoute(line orb.LineString)
	RenderTourRoute(line orb.LineString)
	UpdateLocationMarker(p orb.Point)
}

// NavigationSession receives turn-by-turn session commands. Begin starts a
// new leg, Update replaces the route of the current leg after a reroute.
type NavigationSession interface {
	Begin(route *directions.Route)
	Update(route *directions.Route)
	End()
}

// Sessions fans navigation commands out to several sessions.
type Sessions []NavigationSession

func (s Sessions) Begin(r *directions.Route) {
	for _, n := range s {
		n.Begin(r)
	}
}

func (s Sessions) Update(r *directions.Route) {
	for _, n := range s {
		n.Update(r)
	}
}

func (s Sessions) End() {
	for _, n := range s {
		n.End()
	}
}

// Config tunes the controller.
type Config struct {
	// ArrivalThreshold in meters; zero selects DefaultArrivalThreshold.
	ArrivalThreshold float64
	// DepartureFallback is how long to wait for a first location before
	// departing from the departure waypoint itself.
	DepartureFallback time.Duration
	// QueueSize bounds the event queue; zero selects 64.
	QueueSize int
	// OnTourRoute, if set, is called from the controller goroutine with the
	// whole-tour route once it arrives.
	OnTourRoute func(route *directions.Route)
}

// DiagnosticKind classifies a Diagnostic.
type DiagnosticKind string

const (
	DiagRouteFailed     DiagnosticKind = "route_failed"
	DiagTourRouteFailed DiagnosticKind = "tour_route_failed"
	DiagStaleResponse   DiagnosticKind = "stale_response"
	DiagPersistFailed   DiagnosticKind = "persist_failed"
	DiagInvalidIndex    DiagnosticKind = "invalid_index"
	DiagLegAdvanced     DiagnosticKind = "leg_advanced"
	DiagTourComplete    DiagnosticKind = "tour_complete"
)

// Diagnostic reports something the controller absorbed rather than
// returned: recoverable failures, discarded responses and milestones.
type Diagnostic struct {
	Kind     DiagnosticKind
	RunID    uuid.UUID
	LegIndex int
	Status   directions.Status
	Err      error
	Time     time.Time
}

// Status is a snapshot of the controller state.
type Status struct {
	State             State
	RunID             uuid.UUID
	LegIndex          int
	ResumeOffset      int
	WaypointIndex     int
	TotalWaypoints    int
	RequestInFlight   bool
	LastLocation      *orb.Point
	RemainingDistance *float64
}
