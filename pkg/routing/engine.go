package routing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"

	"tour_navigator/pkg/geo"
	"tour_navigator/pkg/graph"
	osmparser "tour_navigator/pkg/osm"
)

const noNode uint32 = math.MaxUint32

// ErrNoRoute is returned when no route exists between two stops.
var ErrNoRoute = errors.New("no route found")

// LatLng represents a geographic coordinate.
type LatLng struct {
	Lat float64
	Lng float64
}

// Stop is a point the route must pass through. Bearing, when set, is the
// current heading in degrees and biases snapping toward roads going that way.
type Stop struct {
	LatLng
	Bearing *float64
}

// Segment is the portion of a route between two consecutive stops.
type Segment struct {
	DistanceMeters float64
	Geometry       []LatLng
}

// RouteResult is the output of a route query.
type RouteResult struct {
	TotalDistanceMeters float64
	Segments            []Segment
}

// Geometry concatenates segment geometries, dropping the duplicated
// vertex at each intermediate stop.
func (r *RouteResult) Geometry() []LatLng {
	var out []LatLng
	for i, seg := range r.Segments {
		pts := seg.Geometry
		if i > 0 && len(pts) > 0 && len(out) > 0 && out[len(out)-1] == pts[0] {
			pts = pts[1:]
		}
		out = append(out, pts...)
	}
	return out
}

// Router is the interface for route queries.
type Router interface {
	Route(ctx context.Context, stops []Stop) (*RouteResult, error)
}

// Engine implements Router with plain Dijkstra over the road graph.
type Engine struct {
	g       *graph.Graph
	snapper *Snapper
}

// NewEngine creates a routing engine over g.
func NewEngine(g *graph.Graph) *Engine {
	return &Engine{g: g, snapper: NewSnapper(g)}
}

// LoadEngine parses a PBF extract, keeps the largest connected component
// and returns an engine over it.
func LoadEngine(ctx context.Context, rs io.ReadSeeker, opt osmparser.ParseOptions) (*Engine, error) {
	result, err := osmparser.Parse(ctx, rs, opt)
	if err != nil {
		return nil, fmt.Errorf("parse osm: %w", err)
	}
	g := graph.Build(result)
	nodes := graph.LargestComponent(g)
	if len(nodes) == 0 {
		return nil, errors.New("road graph is empty")
	}
	if uint32(len(nodes)) < g.NumNodes {
		log.Printf("routing: dropping %d nodes outside the largest component", g.NumNodes-uint32(len(nodes)))
		g = graph.FilterToComponent(g, nodes)
	}
	log.Printf("routing: graph has %d nodes, %d edges", g.NumNodes, g.NumEdges)
	return NewEngine(g), nil
}

// Route computes the shortest path visiting stops in order. Each pair of
// consecutive stops yields one Segment.
func (e *Engine) Route(ctx context.Context, stops []Stop) (*RouteResult, error) {
	if len(stops) < 2 {
		return nil, fmt.Errorf("route needs at least 2 stops, got %d", len(stops))
	}

	snaps := make([]SnapResult, len(stops))
	for i, s := range stops {
		// Heading only describes the origin.
		var bearing *float64
		if i == 0 {
			bearing = s.Bearing
		}
		snap, err := e.snapper.Snap(s.Lat, s.Lng, bearing)
		if err != nil {
			return nil, fmt.Errorf("stop %d: %w", i, err)
		}
		snaps[i] = snap
	}

	qs := newQueryState(e.g.NumNodes)
	result := &RouteResult{}
	for i := 0; i < len(snaps)-1; i++ {
		seg, err := e.routePair(ctx, qs, snaps[i], snaps[i+1])
		qs.reset()
		if err != nil {
			return nil, err
		}
		result.Segments = append(result.Segments, seg)
		result.TotalDistanceMeters += seg.DistanceMeters
	}
	return result, nil
}

// routePair runs a single Dijkstra search between two snapped points.
func (e *Engine) routePair(ctx context.Context, qs *queryState, from, to SnapResult) (Segment, error) {
	g := e.g
	startPt, endPt := from.Point(g), to.Point(g)

	best := uint32(math.MaxUint32)
	bestNode := noNode
	direct := false

	w := g.Weight[from.EdgeIdx]
	twoWay := findEdge(g, from.NodeV, from.NodeU) != noNode

	// The end point may have snapped onto the opposite twin of a two-way
	// street; express it on the start edge so the shortcut below applies.
	if to.EdgeIdx != from.EdgeIdx && to.NodeU == from.NodeV && to.NodeV == from.NodeU {
		to = SnapResult{EdgeIdx: from.EdgeIdx, NodeU: from.NodeU, NodeV: from.NodeV, Ratio: 1 - to.Ratio, Dist: to.Dist}
	}

	// Both points on the same edge: straight along it when the target is
	// ahead, or behind on a two-way road.
	if from.EdgeIdx == to.EdgeIdx {
		switch {
		case from.Ratio <= to.Ratio:
			best, direct = scale(w, to.Ratio-from.Ratio), true
		case twoWay:
			best, direct = scale(w, from.Ratio-to.Ratio), true
		}
	}

	// Exits from the start point: forward to v, and back to u when the
	// road is two-way or the start sits on u.
	qs.relax(from.NodeV, scale(w, 1-from.Ratio), noNode)
	if twoWay || from.Ratio <= 0 {
		qs.relax(from.NodeU, scale(w, from.Ratio), noNode)
	}

	// Entries into the end point, as extra cost once a node is settled.
	tw := g.Weight[to.EdgeIdx]
	entryU := scale(tw, to.Ratio)
	entryV := uint32(math.MaxUint32)
	if to.Ratio >= 1 || findEdge(g, to.NodeV, to.NodeU) != noNode {
		entryV = scale(tw, 1-to.Ratio)
	}

	iterations := 0
	for qs.pq.Len() > 0 {
		iterations++
		if iterations%100 == 0 && ctx.Err() != nil {
			return Segment{}, ctx.Err()
		}

		item := qs.pq.Pop()
		u, d := item.Node, item.Dist
		if d > qs.dist[u] {
			continue // stale entry
		}
		if d >= best {
			break
		}

		if u == to.NodeU && d+entryU < best {
			best, bestNode, direct = d+entryU, u, false
		}
		if u == to.NodeV && entryV != math.MaxUint32 && d+entryV < best {
			best, bestNode, direct = d+entryV, u, false
		}

		start, end := g.EdgesFrom(u)
		for ei := start; ei < end; ei++ {
			qs.relax(g.Head[ei], d+g.Weight[ei], u)
		}
	}

	if best == math.MaxUint32 {
		return Segment{}, ErrNoRoute
	}

	geom := []LatLng{startPt}
	if !direct {
		for _, n := range qs.path(bestNode) {
			geom = append(geom, LatLng{Lat: g.NodeLat[n], Lng: g.NodeLon[n]})
		}
	}
	geom = append(geom, endPt)

	return Segment{
		DistanceMeters: float64(best) / 1000.0,
		Geometry:       dedupe(geom),
	}, nil
}

// path walks predecessors back from node to a seed and returns them in
// travel order.
func (qs *queryState) path(node uint32) []uint32 {
	var nodes []uint32
	for n := node; n != noNode; n = qs.pred[n] {
		nodes = append(nodes, n)
	}
	for i, j := 0, len(nodes)-1; i < j; i, j = i+1, j-1 {
		nodes[i], nodes[j] = nodes[j], nodes[i]
	}
	return nodes
}

// findEdge returns the index of edge u→v, or noNode.
func findEdge(g *graph.Graph, u, v uint32) uint32 {
	start, end := g.EdgesFrom(u)
	for e := start; e < end; e++ {
		if g.Head[e] == v {
			return e
		}
	}
	return noNode
}

func scale(w uint32, ratio float64) uint32 {
	return uint32(math.Round(float64(w) * ratio))
}

// dedupe drops consecutive points closer than a centimeter, which appear
// when a stop snaps exactly onto a node.
func dedupe(pts []LatLng) []LatLng {
	out := pts[:1]
	for _, p := range pts[1:] {
		last := out[len(out)-1]
		if geo.EquirectangularDist(last.Lat, last.Lng, p.Lat, p.Lng) < 0.01 {
			continue
		}
		out = append(out, p)
	}
	if len(out) == 1 {
		out = append(out, pts[len(pts)-1])
	}
	return out
}
