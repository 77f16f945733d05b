// Package location produces position samples for the tour controller.
package location

import (
	"context"
	"math"
	"time"

	"github.com/paulmach/orb"
)

// Sample is one position report. Bearing is the heading in degrees
// clockwise from north, when known.
type Sample struct {
	Point     orb.Point
	Bearing   *float64
	Timestamp time.Time
}

// Valid reports whether the sample carries a usable position. Feeds report
// (0,0) before they have a fix.
func (s Sample) Valid() bool {
	lng, lat := s.Point.Lon(), s.Point.Lat()
	if math.IsNaN(lng) || math.IsNaN(lat) || math.IsInf(lng, 0) || math.IsInf(lat, 0) {
		return false
	}
	return !(lng == 0 && lat == 0)
}

// Feed delivers samples to emit until ctx is done.
type Feed interface {
	Run(ctx context.Context, emit func(Sample)) error
}
