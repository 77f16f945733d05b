// Package offroute decides when a traveler has left the active route.
package offroute

import (
	"sync"

	"github.com/paulmach/orb"

	"tour_navigator/pkg/directions"
	"tour_navigator/pkg/geo"
	"tour_navigator/pkg/location"
)

// DefaultMaxDistance is the distance in meters from the route beyond which
// a sample counts as off-route.
const DefaultMaxDistance = 40.0

// Detector tracks the active route through the navigation session
// commands and checks samples against it. It reports at most once per
// route and re-arms when a new route begins.
type Detector struct {
	maxDistance float64

	mu    sync.Mutex
	route orb.LineString
	fired bool
}

// New returns a detector with the given tolerance. Zero selects
// DefaultMaxDistance.
func New(maxDistance float64) *Detector {
	if maxDistance <= 0 {
		maxDistance = DefaultMaxDistance
	}
	return &Detector{maxDistance: maxDistance}
}

func (d *Detector) Begin(r *directions.Route)  { d.setRoute(r) }
func (d *Detector) Update(r *directions.Route) { d.setRoute(r) }

func (d *Detector) End() {
	d.mu.Lock()
	d.route = nil
	d.fired = false
	d.mu.Unlock()
}

func (d *Detector) setRoute(r *directions.Route) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.route = nil
	if r != nil {
		d.route = r.Geometry
	}
	d.fired = false
}

// Check reports whether s is off the active route. Without a route, or
// after it already fired for this route, it reports false.
func (d *Detector) Check(s location.Sample) bool {
	if !s.Valid() {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.fired || len(d.route) < 2 {
		return false
	}
	proj, ok := geo.Project(d.route, s.Point)
	if !ok || proj.Dist <= d.maxDistance {
		return false
	}
	d.fired = true
	return true
}

// Listener receives samples sorted by a Guard.
type Listener interface {
	OnLocation(s location.Sample)
	OnOffRoute(s location.Sample)
}

// Guard feeds samples to a Listener, turning the first sample off the
// active route into an off-route signal instead of a location update.
type Guard struct {
	Detector *Detector
	Listener Listener
}

func (g Guard) OnLocation(s location.Sample) {
	if g.Detector.Check(s) {
		g.Listener.OnOffRoute(s)
		return
	}
	g.Listener.OnLocation(s)
}
