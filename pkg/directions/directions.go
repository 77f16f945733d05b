// Package directions requests routes from a directions backend and
// delivers the outcome asynchronously.
package directions

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/paulmach/orb"
)

// ErrNoRoute is returned by a Router when the backend answered but found
// no route between the requested points.
var ErrNoRoute = errors.New("no route found")

// Route is a computed path. Geometry runs from the origin to the last stop.
type Route struct {
	Geometry        orb.LineString
	DistanceMeters  float64
	DurationSeconds float64
}

// Status is the outcome of a route request.
type Status int

const (
	RouteFound Status = iota
	NoRouteFound
	TransportFailure
)

func (s Status) String() string {
	switch s {
	case RouteFound:
		return "route_found"
	case NoRouteFound:
		return "no_route_found"
	case TransportFailure:
		return "transport_failure"
	default:
		return "unknown"
	}
}

// Result is delivered exactly once per request. Route is set only for
// RouteFound; Err carries the cause of a failure.
type Result struct {
	Status Status
	Route  *Route
	Err    error
}

// Callback receives the result of a request.
type Callback func(Result)

// Gateway issues single-shot, non-retrying route requests.
type Gateway interface {
	RequestLegRoute(ctx context.Context, origin orb.Point, bearing *float64, destination orb.Point, cb Callback)
	RequestTourRoute(ctx context.Context, origin orb.Point, bearing *float64, waypoints []orb.Point, cb Callback)
}

// Router computes a route synchronously through origin and stops, in order.
// bearing is the heading at origin in degrees, if known.
type Router interface {
	Route(ctx context.Context, origin orb.Point, bearing *float64, stops []orb.Point) (*Route, error)
}

// Async adapts a Router to the Gateway interface. Each request runs on its
// own goroutine bounded by the configured timeout.
type Async struct {
	router  Router
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewAsync returns a gateway over r. A zero timeout means no deadline
// beyond the caller's context.
func NewAsync(r Router, timeout time.Duration) *Async {
	return &Async{router: r, timeout: timeout}
}

func (a *Async) RequestLegRoute(ctx context.Context, origin orb.Point, bearing *float64, destination orb.Point, cb Callback) {
	a.request(ctx, "leg", origin, bearing, []orb.Point{destination}, cb)
}

func (a *Async) RequestTourRoute(ctx context.Context, origin orb.Point, bearing *float64, waypoints []orb.Point, cb Callback) {
	a.request(ctx, "tour", origin, bearing, waypoints, cb)
}

// Wait blocks until every outstanding request has delivered its result.
func (a *Async) Wait() {
	a.wg.Wait()
}

func (a *Async) request(ctx context.Context, kind string, origin orb.Point, bearing *float64, stops []orb.Point, cb Callback) {
	stops = append([]orb.Point(nil), stops...)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		if a.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, a.timeout)
			defer cancel()
		}

		start := time.Now()
		route, err := a.router.Route(ctx, origin, bearing, stops)
		res := classify(route, err)
		if res.Status != RouteFound {
			log.Printf("directions: %s request failed after %v: %s: %v", kind, time.Since(start), res.Status, err)
		}
		cb(res)
	}()
}

func classify(route *Route, err error) Result {
	switch {
	case err == nil && route != nil:
		return Result{Status: RouteFound, Route: route}
	case err == nil:
		return Result{Status: NoRouteFound, Err: ErrNoRoute}
	case errors.Is(err, ErrNoRoute):
		return Result{Status: NoRouteFound, Err: err}
	default:
		return Result{Status: TransportFailure, Err: err}
	}
}
