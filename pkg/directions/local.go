package directions

import (
	"context"
	"errors"
	"fmt"

	"github.com/paulmach/orb"

	osmparser "tour_navigator/pkg/osm"
	"tour_navigator/pkg/routing"
)

// Average travel speeds in m/s used to estimate durations.
var profileSpeed = map[osmparser.Profile]float64{
	osmparser.ProfileDriving: 50 / 3.6,
	osmparser.ProfileCycling: 15 / 3.6,
	osmparser.ProfileWalking: 5 / 3.6,
}

// Local is a Router backed by the in-process road graph.
type Local struct {
	router routing.Router
	speed  float64
}

// NewLocal wraps r. profile selects the speed used for duration estimates.
func NewLocal(r routing.Router, profile osmparser.Profile) *Local {
	speed, ok := profileSpeed[profile]
	if !ok {
		speed = profileSpeed[osmparser.ProfileDriving]
	}
	return &Local{router: r, speed: speed}
}

func (l *Local) Route(ctx context.Context, origin orb.Point, bearing *float64, stops []orb.Point) (*Route, error) {
	rs := make([]routing.Stop, 0, len(stops)+1)
	rs = append(rs, routing.Stop{LatLng: routing.LatLng{Lat: origin.Lat(), Lng: origin.Lon()}, Bearing: bearing})
	for _, p := range stops {
		rs = append(rs, routing.Stop{LatLng: routing.LatLng{Lat: p.Lat(), Lng: p.Lon()}})
	}

	res, err := l.router.Route(ctx, rs)
	if err != nil {
		if errors.Is(err, routing.ErrNoRoute) || errors.Is(err, routing.ErrPointTooFar) {
			return nil, fmt.Errorf("%w: %v", ErrNoRoute, err)
		}
		return nil, err
	}

	pts := res.Geometry()
	line := make(orb.LineString, len(pts))
	for i, p := range pts {
		line[i] = orb.Point{p.Lng, p.Lat}
	}
	return &Route{
		Geometry:        line,
		DistanceMeters:  res.TotalDistanceMeters,
		DurationSeconds: res.TotalDistanceMeters / l.speed,
	}, nil
}
