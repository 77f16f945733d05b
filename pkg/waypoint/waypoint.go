// Package waypoint loads and serves the ordered waypoints of a tour.
package waypoint

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// Waypoint is a tour stop. Position is its ordinal in the loaded records,
// 0 being the departure.
type Waypoint struct {
	Position int
	Point    orb.Point
	Name     string
}

// ParseError reports a malformed waypoint record. Index is -1 when the
// error concerns the input as a whole.
type ParseError struct {
	Index  int
	Field  string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Index < 0 {
		return "waypoints: " + e.Reason
	}
	if e.Field == "" {
		return fmt.Sprintf("waypoint %d: %s", e.Index, e.Reason)
	}
	return fmt.Sprintf("waypoint %d: %s: %s", e.Index, e.Field, e.Reason)
}

// OutOfRangeError is returned when indexing past the remaining waypoints.
type OutOfRangeError struct {
	Index int
	Count int
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("waypoint index %d out of range [0, %d)", e.Index, e.Count)
}

// Store holds a loaded tour: the departure plus the remaining waypoints
// visited one leg at a time. It is immutable.
type Store struct {
	departure Waypoint
	remaining []Waypoint
}

// Load validates every record and builds a Store. Nothing is loaded if any
// record is invalid.
func Load(records []Record) (*Store, error) {
	if len(records) < 2 {
		return nil, &ParseError{
			Index:  -1,
			Reason: fmt.Sprintf("tour needs a departure and at least one waypoint, got %d records", len(records)),
		}
	}

	points := make([]Waypoint, len(records))
	for i, r := range records {
		lng, err := parseCoord(r.Value.Longitude, 180)
		if err != nil {
			return nil, &ParseError{Index: i, Field: "longitude", Reason: err.Error()}
		}
		lat, err := parseCoord(r.Value.Latitude, 90)
		if err != nil {
			return nil, &ParseError{Index: i, Field: "latitude", Reason: err.Error()}
		}
		points[i] = Waypoint{Position: i, Point: orb.Point{lng, lat}, Name: r.Value.Name}
	}

	return &Store{departure: points[0], remaining: points[1:]}, nil
}

func parseCoord(c Coord, limit float64) (float64, error) {
	s := strings.TrimSpace(string(c))
	if s == "" {
		return 0, fmt.Errorf("missing")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	if v < -limit || v > limit {
		return 0, fmt.Errorf("%v out of range", v)
	}
	return v, nil
}

// Departure returns the fixed start of the tour.
func (s *Store) Departure() Waypoint {
	return s.departure
}

// At returns the remaining waypoint at absoluteIndex.
func (s *Store) At(absoluteIndex int) (Waypoint, error) {
	if absoluteIndex < 0 || absoluteIndex >= len(s.remaining) {
		return Waypoint{}, &OutOfRangeError{Index: absoluteIndex, Count: len(s.remaining)}
	}
	return s.remaining[absoluteIndex], nil
}

// RemainingCount returns the number of waypoints after the departure.
func (s *Store) RemainingCount() int {
	return len(s.remaining)
}

// Remaining returns the waypoints from absolute index from onward.
func (s *Store) Remaining(from int) []Waypoint {
	if from < 0 {
		from = 0
	}
	if from >= len(s.remaining) {
		return nil
	}
	out := make([]Waypoint, len(s.remaining)-from)
	copy(out, s.remaining[from:])
	return out
}

// Points returns the coordinates of Remaining(from).
func (s *Store) Points(from int) []orb.Point {
	wps := s.Remaining(from)
	pts := make([]orb.Point, len(wps))
	for i, w := range wps {
		pts[i] = w.Point
	}
	return pts
}
