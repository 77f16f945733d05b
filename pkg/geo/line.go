package geo

import (
	"math"

	"github.com/paulmach/orb"
)

// Projection describes where a point falls on a line.
type Projection struct {
	Index int       // index of the segment's first vertex
	Ratio float64   // position along the segment, 0.0 = line[Index], 1.0 = line[Index+1]
	Point orb.Point // closest point on the line
	Dist  float64   // meters from the query point to Point
}

// Project finds the closest point on line to p.
// Returns false for an empty line.
func Project(line orb.LineString, p orb.Point) (Projection, bool) {
	switch len(line) {
	case 0:
		return Projection{}, false
	case 1:
		return Projection{
			Point: line[0],
			Dist:  Haversine(p.Lat(), p.Lon(), line[0].Lat(), line[0].Lon()),
		}, true
	}

	best := Projection{Dist: math.Inf(1)}
	for i := 0; i < len(line)-1; i++ {
		a, b := line[i], line[i+1]
		d, t := PointToSegmentDist(p.Lat(), p.Lon(), a.Lat(), a.Lon(), b.Lat(), b.Lon())
		if d < best.Dist {
			best = Projection{Index: i, Ratio: t, Point: lerp(a, b, t), Dist: d}
		}
	}
	return best, true
}

// RemainingDistance returns the distance in meters from p's projection on line
// to the line's last vertex, measured along the line.
// An empty line has infinite remaining distance.
func RemainingDistance(line orb.LineString, p orb.Point) float64 {
	proj, ok := Project(line, p)
	if !ok {
		return math.Inf(1)
	}
	if len(line) == 1 {
		return proj.Dist
	}

	next := line[proj.Index+1]
	total := Haversine(proj.Point.Lat(), proj.Point.Lon(), next.Lat(), next.Lon())
	return total + LineLength(line[proj.Index+1:])
}

// SliceFrom returns the part of line from p's projection to the line's end.
func SliceFrom(line orb.LineString, p orb.Point) orb.LineString {
	proj, ok := Project(line, p)
	if !ok {
		return nil
	}
	if len(line) == 1 {
		return orb.LineString{line[0]}
	}

	rest := line[proj.Index+1:]
	out := make(orb.LineString, 0, len(rest)+1)
	if !proj.Point.Equal(rest[0]) {
		out = append(out, proj.Point)
	}
	return append(out, rest...)
}

// LineLength returns the length of line in meters.
func LineLength(line orb.LineString) float64 {
	var total float64
	for i := 1; i < len(line); i++ {
		total += Haversine(line[i-1].Lat(), line[i-1].Lon(), line[i].Lat(), line[i].Lon())
	}
	return total
}

func lerp(a, b orb.Point, t float64) orb.Point {
	switch t {
	case 0:
		return a
	case 1:
		return b
	}
	return orb.Point{a[0] + (b[0]-a[0])*t, a[1] + (b[1]-a[1])*t}
}
