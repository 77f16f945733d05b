package offroute

import (
	"testing"

	"github.com/paulmach/orb"

	"tour_navigator/pkg/directions"
	"tour_navigator/pkg/location"
)

// State Street, running north from Madison to Lake.
var stateStreet = &directions.Route{Geometry: orb.LineString{{-87.6278, 41.8819}, {-87.6278, 41.8857}}}

func at(lng, lat float64) location.Sample {
	return location.Sample{Point: orb.Point{lng, lat}}
}

func TestCheck(t *testing.T) {
	d := New(0)
	if d.Check(at(-87.6400, 41.8830)) {
		t.Error("no route yet, should not fire")
	}

	d.Begin(stateStreet)
	tests := []struct {
		name string
		s    location.Sample
		want bool
	}{
		{"on route", at(-87.6278, 41.8830), false},
		{"20 m east", at(-87.62756, 41.8830), false},
		{"invalid", at(0, 0), false},
		{"one block west", at(-87.6290, 41.8830), true},
		{"still off, already fired", at(-87.6300, 41.8830), false},
	}
	for _, tt := range tests {
		if got := d.Check(tt.s); got != tt.want {
			t.Errorf("%s: Check() = %v, want %v", tt.name, got, tt.want)
		}
	}

	// A reroute re-arms the detector.
	d.Update(stateStreet)
	if !d.Check(at(-87.6300, 41.8830)) {
		t.Error("Update should re-arm")
	}

	d.End()
	if d.Check(at(-87.6300, 41.8830)) {
		t.Error("no route after End, should not fire")
	}
}

func TestCustomTolerance(t *testing.T) {
	d := New(10)
	d.Begin(stateStreet)
	if !d.Check(at(-87.62756, 41.8830)) {
		t.Error("20 m off should exceed a 10 m tolerance")
	}
}

type listener struct {
	locations, offRoute int
}

func (l *listener) OnLocation(location.Sample) { l.locations++ }
func (l *listener) OnOffRoute(location.Sample) { l.offRoute++ }

func TestGuard(t *testing.T) {
	d := New(0)
	d.Begin(stateStreet)
	l := &listener{}
	g := Guard{Detector: d, Listener: l}

	g.OnLocation(at(-87.6278, 41.8830))
	g.OnLocation(at(-87.6290, 41.8830))
	g.OnLocation(at(-87.6300, 41.8830))

	if l.locations != 2 || l.offRoute != 1 {
		t.Errorf("locations %d off-route %d, want 2/1", l.locations, l.offRoute)
	}
}
