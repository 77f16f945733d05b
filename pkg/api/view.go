package api

import (
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"tour_navigator/pkg/directions"
	"tour_navigator/pkg/geo"
)

// View keeps the latest render and navigation commands from the tour
// controller so HTTP clients can poll them. It implements tour.RenderSink
// and tour.NavigationSession.
type View struct {
	mu        sync.RWMutex
	legRoute  orb.LineString
	tourRoute orb.LineString
	marker    *orb.Point
	navRoute  *directions.Route
	active    bool
	reroutes  int
}

// NewView returns an empty view.
func NewView() *View {
	return &View{}
}

func (v *View) RenderLegRoute(line orb.LineString) {
	v.mu.Lock()
	v.legRoute = line
	v.mu.Unlock()
}

func (v *View) RenderTourRoute(line orb.LineString) {
	v.mu.Lock()
	v.tourRoute = line
	v.mu.Unlock()
}

func (v *View) UpdateLocationMarker(p orb.Point) {
	v.mu.Lock()
	v.marker = &p
	v.mu.Unlock()
}

func (v *View) Begin(r *directions.Route) {
	v.mu.Lock()
	v.navRoute = r
	v.active = true
	v.mu.Unlock()
}

func (v *View) Update(r *directions.Route) {
	v.mu.Lock()
	v.navRoute = r
	v.reroutes++
	v.mu.Unlock()
}

// End clears the leg route along with the session; the tour route and
// marker stay on screen.
func (v *View) End() {
	v.mu.Lock()
	v.navRoute = nil
	v.legRoute = nil
	v.active = false
	v.mu.Unlock()
}

// LegRoute returns the drawn leg route as a GeoJSON Feature, or nil.
func (v *View) LegRoute() *geojson.Feature {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return lineFeature(v.legRoute, "leg")
}

// TourRoute returns the drawn tour route as a GeoJSON Feature, or nil.
func (v *View) TourRoute() *geojson.Feature {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return lineFeature(v.tourRoute, "tour")
}

// Marker returns the location marker position, if one was drawn.
func (v *View) Marker() (orb.Point, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.marker == nil {
		return orb.Point{}, false
	}
	return *v.marker, true
}

// Navigation summarizes the navigation session.
func (v *View) Navigation() NavigationJSON {
	v.mu.RLock()
	defer v.mu.RUnlock()
	n := NavigationJSON{Active: v.active, Reroutes: v.reroutes}
	if v.navRoute != nil {
		n.DistanceMeters = v.navRoute.DistanceMeters
		n.DurationSeconds = v.navRoute.DurationSeconds
	}
	return n
}

func lineFeature(line orb.LineString, kind string) *geojson.Feature {
	if len(line) == 0 {
		return nil
	}
	f := geojson.NewFeature(append(orb.LineString(nil), line...))
	f.Properties["kind"] = kind
	f.Properties["length_meters"] = geo.LineLength(line)
	return f
}
