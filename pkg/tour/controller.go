package tour

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"tour_navigator/pkg/directions"
	"tour_navigator/pkg/geo"
	"tour_navigator/pkg/location"
	"tour_navigator/pkg/progress"
	"tour_navigator/pkg/waypoint"
)

// event is a unit of work executed on the controller goroutine.
type event func()

// Controller is the tour state machine. All state below the queues is
// owned by the goroutine running Run; every other method only enqueues.
type Controller struct {
	cfg    Config
	gw     directions.Gateway
	store  progress.Store
	render RenderSink
	nav    NavigationSession

	events   chan event
	priority chan event
	diag     chan Diagnostic
	done     chan struct{}
	running  atomic.Bool

	ctx context.Context

	state        State
	runID        uuid.UUID
	waypoints    *waypoint.Store
	legIndex     int
	resumeOffset int
	currentRoute *directions.Route
	tourRoute    *directions.Route
	inFlight     bool
	lastKnown    *location.Sample

	// Staleness tags. generation changes on every start and reset;
	// requestSeq identifies the latest leg request.
	generation uint64
	requestSeq uint64

	navActive bool
	navLeg    int
	fallback  *time.Timer
}

// New creates a controller. nav may be nil.
func New(cfg Config, gw directions.Gateway, store progress.Store, render RenderSink, nav NavigationSession) *Controller {
	if cfg.ArrivalThreshold <= 0 {
		cfg.ArrivalThreshold = DefaultArrivalThreshold
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if nav == nil {
		nav = Sessions(nil)
	}
	return &Controller{
		cfg:      cfg,
		gw:       gw,
		store:    store,
		render:   render,
		nav:      nav,
		events:   make(chan event, cfg.QueueSize),
		priority: make(chan event, cfg.QueueSize),
		diag:     make(chan Diagnostic, 64),
		done:     make(chan struct{}),
		ctx:      context.Background(),
	}
}

// Run processes events until ctx is done. Off-route events are always
// handled before queued ordinary events.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return errors.New("tour controller already running")
	}
	defer close(c.done)
	c.ctx = ctx

	for {
		select {
		case ev := <-c.priority:
			ev()
			continue
		default:
		}

		select {
		case <-ctx.Done():
			if c.fallback != nil {
				c.fallback.Stop()
			}
			return ctx.Err()
		case ev := <-c.priority:
			ev()
		case ev := <-c.events:
			ev()
		}
	}
}

// Diagnostics returns the stream of diagnostics. Diagnostics are dropped
// when nobody reads them fast enough.
func (c *Controller) Diagnostics() <-chan Diagnostic {
	return c.diag
}

// Start loads a tour and begins it. Malformed records return a
// *waypoint.ParseError and a persisted resume index outside the tour a
// *waypoint.OutOfRangeError; in both cases nothing changes.
func (c *Controller) Start(ctx context.Context, records []waypoint.Record) error {
	wps, err := waypoint.Load(records)
	if err != nil {
		return err
	}
	return c.call(ctx, func() error { return c.start(wps) })
}

// Reset abandons the current tour and clears persisted progress.
func (c *Controller) Reset(ctx context.Context) error {
	return c.call(ctx, func() error {
		c.reset()
		return nil
	})
}

// Status returns a snapshot taken on the controller goroutine, after every
// event queued before the call.
func (c *Controller) Status(ctx context.Context) (Status, error) {
	var st Status
	err := c.call(ctx, func() error {
		st = c.snapshot()
		return nil
	})
	return st, err
}

// OnLocation queues a location update.
func (c *Controller) OnLocation(s location.Sample) {
	c.send(context.Background(), c.events, func() { c.handleLocation(s) })
}

// OnOffRoute queues an off-route signal at s.
func (c *Controller) OnOffRoute(s location.Sample) {
	c.send(context.Background(), c.priority, func() { c.handleOffRoute(s) })
}

func (c *Controller) send(ctx context.Context, ch chan event, ev event) bool {
	select {
	case ch <- ev:
		return true
	case <-c.done:
		return false
	case <-ctx.Done():
		return false
	}
}

func (c *Controller) call(ctx context.Context, fn func() error) error {
	reply := make(chan error, 1)
	if !c.send(ctx, c.events, func() { reply <- fn() }) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrNotRunning
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrNotRunning
	}
}

func (c *Controller) start(wps *waypoint.Store) error {
	if c.state != Idle && c.state != TourComplete {
		return ErrTourInProgress
	}

	resume, err := c.store.LoadResumeIndex(c.ctx)
	if err != nil {
		return fmt.Errorf("load resume index: %w", err)
	}
	if resume < 0 || resume >= wps.RemainingCount() {
		return &waypoint.OutOfRangeError{Index: resume, Count: wps.RemainingCount()}
	}

	c.generation++
	c.runID = uuid.New()
	c.waypoints = wps
	c.legIndex = 0
	c.resumeOffset = resume
	c.currentRoute = nil
	c.tourRoute = nil
	c.inFlight = false
	c.state = AwaitingDeparture

	log.Printf("tour: run %s started, %d waypoints, resuming at %d", c.runID, wps.RemainingCount(), resume)

	switch {
	case c.lastKnown != nil:
		c.depart(*c.lastKnown)
	case c.cfg.DepartureFallback <= 0:
		c.departFromWaypoint()
	default:
		gen := c.generation
		c.fallback = time.AfterFunc(c.cfg.DepartureFallback, func() {
			c.send(context.Background(), c.events, func() {
				if c.generation == gen && c.state == AwaitingDeparture {
					c.departFromWaypoint()
				}
			})
		})
	}
	return nil
}

// departFromWaypoint stands in for a location fix at the departure waypoint.
func (c *Controller) departFromWaypoint() {
	s := location.Sample{Point: c.waypoints.Departure().Point, Timestamp: time.Now()}
	c.lastKnown = &s
	c.render.UpdateLocationMarker(s.Point)
	c.depart(s)
}

func (c *Controller) depart(origin location.Sample) {
	c.stopFallback()
	c.state = LegInFlight

	gen := c.generation
	c.gw.RequestTourRoute(c.ctx, origin.Point, origin.Bearing, c.waypoints.Points(c.resumeOffset), func(res directions.Result) {
		c.send(context.Background(), c.events, func() { c.handleTourRoute(gen, res) })
	})
	c.requestLeg(origin)
}

func (c *Controller) requestLeg(origin location.Sample) {
	c.state = LegInFlight
	dest, err := c.waypoints.At(c.resumeOffset + c.legIndex)
	if err != nil {
		log.Printf("tour: run %s: %v", c.runID, err)
		c.emit(Diagnostic{Kind: DiagInvalidIndex, LegIndex: c.legIndex, Err: err})
		return
	}

	c.requestSeq++
	gen, leg, seq := c.generation, c.legIndex, c.requestSeq
	c.inFlight = true

	c.gw.RequestLegRoute(c.ctx, origin.Point, origin.Bearing, dest.Point, func(res directions.Result) {
		c.send(context.Background(), c.events, func() { c.handleLegRoute(gen, leg, seq, res) })
	})
}

func (c *Controller) handleLegRoute(gen uint64, leg int, seq uint64, res directions.Result) {
	if gen != c.generation || seq != c.requestSeq || leg != c.legIndex || c.state != LegInFlight {
		c.emit(Diagnostic{Kind: DiagStaleResponse, LegIndex: leg, Status: res.Status})
		return
	}
	c.inFlight = false

	if res.Status != directions.RouteFound {
		log.Printf("tour: run %s leg %d: %s: %v", c.runID, leg, res.Status, res.Err)
		c.emit(Diagnostic{Kind: DiagRouteFailed, LegIndex: leg, Status: res.Status, Err: res.Err})
		return
	}

	c.currentRoute = res.Route
	c.state = LegActive

	if c.navActive && c.navLeg == c.legIndex {
		c.nav.Update(res.Route)
	} else {
		c.nav.Begin(res.Route)
	}
	c.navActive = true
	c.navLeg = c.legIndex

	line := res.Route.Geometry
	if c.lastKnown != nil {
		line = geo.SliceFrom(line, c.lastKnown.Point)
	}
	c.render.RenderLegRoute(line)
}

func (c *Controller) handleTourRoute(gen uint64, res directions.Result) {
	if gen != c.generation || c.state == Idle || c.state == TourComplete {
		c.emit(Diagnostic{Kind: DiagStaleResponse, LegIndex: -1, Status: res.Status})
		return
	}
	if res.Status != directions.RouteFound {
		log.Printf("tour: run %s tour route: %s: %v", c.runID, res.Status, res.Err)
		c.emit(Diagnostic{Kind: DiagTourRouteFailed, LegIndex: -1, Status: res.Status, Err: res.Err})
		return
	}

	c.tourRoute = res.Route
	c.render.RenderTourRoute(res.Route.Geometry)
	if c.cfg.OnTourRoute != nil {
		c.cfg.OnTourRoute(res.Route)
	}
}

func (c *Controller) handleLocation(s location.Sample) {
	if !s.Valid() {
		return
	}
	c.lastKnown = &s
	c.render.UpdateLocationMarker(s.Point)

	switch c.state {
	case AwaitingDeparture:
		c.depart(s)
	case LegInFlight:
		// A failed request left nothing in flight: retry from here.
		if !c.inFlight {
			c.requestLeg(s)
		}
	case LegActive:
		line := c.currentRoute.Geometry
		c.render.RenderLegRoute(geo.SliceFrom(line, s.Point))
		if !c.inFlight && geo.RemainingDistance(line, s.Point) <= c.cfg.ArrivalThreshold {
			c.arrive()
		}
	}
}

func (c *Controller) handleOffRoute(s location.Sample) {
	if !s.Valid() {
		return
	}
	c.lastKnown = &s
	c.render.UpdateLocationMarker(s.Point)

	if c.state != LegActive && c.state != LegInFlight {
		return
	}
	log.Printf("tour: run %s leg %d: off route, rerouting", c.runID, c.legIndex)
	c.state = Rerouting
	c.currentRoute = nil
	c.requestLeg(s)
}

func (c *Controller) arrive() {
	if c.resumeOffset+c.legIndex >= c.waypoints.RemainingCount()-1 {
		c.complete()
		return
	}

	c.legIndex++
	c.persist(c.resumeOffset + c.legIndex)
	c.currentRoute = nil
	// The finished leg's route no longer applies; sessions wait for the
	// next Begin.
	c.endNavigation()
	log.Printf("tour: run %s advanced to waypoint %d", c.runID, c.resumeOffset+c.legIndex)
	c.emit(Diagnostic{Kind: DiagLegAdvanced, LegIndex: c.legIndex})
	c.requestLeg(*c.lastKnown)
}

func (c *Controller) complete() {
	c.state = TourComplete
	c.persist(0)
	log.Printf("tour: run %s complete", c.runID)
	c.emit(Diagnostic{Kind: DiagTourComplete, LegIndex: c.legIndex})

	c.legIndex = 0
	c.resumeOffset = 0
	c.currentRoute = nil
	c.endNavigation()
}

func (c *Controller) reset() {
	c.stopFallback()
	c.endNavigation()
	if c.state != Idle {
		c.render.RenderLegRoute(nil)
		c.render.RenderTourRoute(nil)
	}
	if err := c.store.Clear(c.ctx); err != nil {
		log.Printf("tour: clear progress: %v", err)
		c.emit(Diagnostic{Kind: DiagPersistFailed, LegIndex: c.legIndex, Err: err})
	}
	if c.state != Idle {
		log.Printf("tour: run %s reset", c.runID)
	}

	c.generation++
	c.state = Idle
	c.runID = uuid.Nil
	c.waypoints = nil
	c.legIndex = 0
	c.resumeOffset = 0
	c.currentRoute = nil
	c.tourRoute = nil
	c.inFlight = false
}

func (c *Controller) endNavigation() {
	if c.navActive {
		c.nav.End()
		c.navActive = false
	}
}

func (c *Controller) stopFallback() {
	if c.fallback != nil {
		c.fallback.Stop()
		c.fallback = nil
	}
}

func (c *Controller) persist(index int) {
	if err := c.store.SaveResumeIndex(c.ctx, index); err != nil {
		log.Printf("tour: run %s: save resume index %d: %v", c.runID, index, err)
		c.emit(Diagnostic{Kind: DiagPersistFailed, LegIndex: c.legIndex, Err: err})
	}
}

func (c *Controller) emit(d Diagnostic) {
	d.RunID = c.runID
	d.Time = time.Now()
	select {
	case c.diag <- d:
	default:
	}
}

func (c *Controller) snapshot() Status {
	st := Status{
		State:           c.state,
		RunID:           c.runID,
		LegIndex:        c.legIndex,
		ResumeOffset:    c.resumeOffset,
		WaypointIndex:   c.resumeOffset + c.legIndex,
		RequestInFlight: c.inFlight,
	}
	if c.waypoints != nil {
		st.TotalWaypoints = c.waypoints.RemainingCount()
	}
	if c.lastKnown != nil {
		p := c.lastKnown.Point
		st.LastLocation = &p
		if c.state == LegActive && c.currentRoute != nil {
			d := geo.RemainingDistance(c.currentRoute.Geometry, p)
			st.RemainingDistance = &d
		}
	}
	return st
}
