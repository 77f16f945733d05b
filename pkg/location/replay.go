package location

import (
	"context"
	"sync"
	"time"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"

	"tour_navigator/pkg/geo"
)

const (
	DefaultReplaySpeedKmh = 30.0
	DefaultReplayInterval = time.Second
)

// Replay plays a route back at constant speed, one sample per interval.
// It idles until SetRoute is called and stops emitting at the route's end.
type Replay struct {
	speed    float64 // m/s
	interval time.Duration

	mu       sync.Mutex
	route    orb.LineString
	traveled float64
	done     bool
}

// NewReplay returns a feed moving at speedKmh. Zero values select the
// defaults.
func NewReplay(speedKmh float64, interval time.Duration) *Replay {
	if speedKmh <= 0 {
		speedKmh = DefaultReplaySpeedKmh
	}
	if interval <= 0 {
		interval = DefaultReplayInterval
	}
	return &Replay{speed: speedKmh / 3.6, interval: interval, done: true}
}

// SetRoute restarts playback from the start of line.
func (r *Replay) SetRoute(line orb.LineString) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.route = append(orb.LineString(nil), line...)
	r.traveled = 0
	r.done = len(line) == 0
}

func (r *Replay) Run(ctx context.Context, emit func(Sample)) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if s, ok := r.step(now); ok {
				emit(s)
			}
		}
	}
}

// step returns the sample at the current travel distance and moves on.
func (r *Replay) step(now time.Time) (Sample, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done {
		return Sample{}, false
	}

	p, bearing, atEnd := pointAlong(r.route, r.traveled)
	r.traveled += r.speed * r.interval.Seconds()
	r.done = atEnd

	s := Sample{Point: p, Timestamp: now}
	if bearing >= 0 {
		s.Bearing = &bearing
	}
	return s, true
}

// pointAlong returns the point dist meters along line and the bearing of
// the segment it lies on (-1 for a single-point line).
func pointAlong(line orb.LineString, dist float64) (orb.Point, float64, bool) {
	if len(line) == 1 {
		return line[0], -1, true
	}

	var bearing float64
	for i := 0; i < len(line)-1; i++ {
		a, b := line[i], line[i+1]
		seg := geo.Haversine(a.Lat(), a.Lon(), b.Lat(), b.Lon())
		bearing = geo.Bearing(a.Lat(), a.Lon(), b.Lat(), b.Lon())
		if dist < seg {
			return orbgeo.PointAtBearingAndDistance(a, bearing, dist), bearing, false
		}
		dist -= seg
	}
	return line[len(line)-1], bearing, true
}
