package routing

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/paulmach/osm"

	"tour_navigator/pkg/geo"
	"tour_navigator/pkg/graph"
	osmparser "tour_navigator/pkg/osm"
)

// Chicago Loop grid, ~83 m between columns and ~111 m between rows.
//
//	40 --- 50 --- 60
//	|      |      ^
//	10 --- 20 --- 30
//
// All streets are two-way except 30 -> 60.
var (
	gridLat = map[osm.NodeID]float64{10: 41.880, 20: 41.880, 30: 41.880, 40: 41.881, 50: 41.881, 60: 41.881}
	gridLon = map[osm.NodeID]float64{10: -87.630, 20: -87.629, 30: -87.628, 40: -87.630, 50: -87.629, 60: -87.628}
)

func mm(a, b osm.NodeID) uint32 {
	return uint32(math.Round(geo.Haversine(gridLat[a], gridLon[a], gridLat[b], gridLon[b]) * 1000))
}

func buildTestGraph(t testing.TB) *graph.Graph {
	t.Helper()
	var edges []osmparser.RawEdge
	twoWay := func(a, b osm.NodeID) {
		edges = append(edges,
			osmparser.RawEdge{FromNodeID: a, ToNodeID: b, Weight: mm(a, b)},
			osmparser.RawEdge{FromNodeID: b, ToNodeID: a, Weight: mm(a, b)},
		)
	}
	twoWay(10, 20)
	twoWay(20, 30)
	twoWay(40, 50)
	twoWay(50, 60)
	twoWay(10, 40)
	twoWay(20, 50)
	edges = append(edges, osmparser.RawEdge{FromNodeID: 30, ToNodeID: 60, Weight: mm(30, 60)})

	return graph.Build(&osmparser.ParseResult{Edges: edges, NodeLat: gridLat, NodeLon: gridLon})
}

func stopAt(id osm.NodeID) Stop {
	return Stop{LatLng: LatLng{Lat: gridLat[id], Lng: gridLon[id]}}
}

// plainDijkstra runs textbook Dijkstra between two graph nodes.
func plainDijkstra(g *graph.Graph, source, target uint32) uint32 {
	dist := make([]uint32, g.NumNodes)
	done := make([]bool, g.NumNodes)
	for i := range dist {
		dist[i] = math.MaxUint32
	}
	dist[source] = 0
	for {
		u := noNode
		for i := uint32(0); i < g.NumNodes; i++ {
			if !done[i] && dist[i] != math.MaxUint32 && (u == noNode || dist[i] < dist[u]) {
				u = i
			}
		}
		if u == noNode {
			return math.MaxUint32
		}
		if u == target {
			return dist[u]
		}
		done[u] = true
		start, end := g.EdgesFrom(u)
		for e := start; e < end; e++ {
			if nd := dist[u] + g.Weight[e]; nd < dist[g.Head[e]] {
				dist[g.Head[e]] = nd
			}
		}
	}
}

func nodeIndex(g *graph.Graph, id osm.NodeID) uint32 {
	for i := uint32(0); i < g.NumNodes; i++ {
		if g.NodeLat[i] == gridLat[id] && g.NodeLon[i] == gridLon[id] {
			return i
		}
	}
	return noNode
}

func TestMinHeap(t *testing.T) {
	var h MinHeap
	for i, d := range []uint32{50, 10, 40, 20, 30} {
		h.Push(uint32(i), d)
	}
	var prev uint32
	for h.Len() > 0 {
		item := h.Pop()
		if item.Dist < prev {
			t.Fatalf("popped %d after %d", item.Dist, prev)
		}
		prev = item.Dist
	}
	if h.PeekDist() != math.MaxUint32 {
		t.Error("PeekDist on empty heap should be MaxUint32")
	}
}

func TestQueryStatePath(t *testing.T) {
	qs := newQueryState(4)
	qs.relax(2, 0, noNode)
	qs.relax(0, 120, 2)
	qs.relax(3, 250, 0)

	got := qs.path(3)
	want := []uint32{2, 0, 3}
	if len(got) != len(want) {
		t.Fatalf("path = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("path = %v, want %v", got, want)
		}
	}

	qs.reset()
	if qs.pred[3] != noNode || qs.dist[3] != math.MaxUint32 || qs.pq.Len() != 0 {
		t.Error("reset left state behind")
	}
}

func TestSnap(t *testing.T) {
	g := buildTestGraph(t)
	s := NewSnapper(g)

	// A few meters north of the middle of 10-20.
	snap, err := s.Snap(41.88003, -87.6295, nil)
	if err != nil {
		t.Fatalf("Snap: %v", err)
	}
	u, v := nodeIndex(g, 10), nodeIndex(g, 20)
	if !(snap.NodeU == u && snap.NodeV == v) && !(snap.NodeU == v && snap.NodeV == u) {
		t.Errorf("snapped to %d->%d, want edge between %d and %d", snap.NodeU, snap.NodeV, u, v)
	}
	if math.Abs(snap.Ratio-0.5) > 0.01 {
		t.Errorf("Ratio = %.3f, want 0.5", snap.Ratio)
	}
	if snap.Dist > 5 {
		t.Errorf("Dist = %.1f m, want < 5", snap.Dist)
	}
}

func TestSnapTooFar(t *testing.T) {
	s := NewSnapper(buildTestGraph(t))
	if _, err := s.Snap(41.90, -87.63, nil); !errors.Is(err, ErrPointTooFar) {
		t.Errorf("err = %v, want ErrPointTooFar", err)
	}
}

func TestSnapBearing(t *testing.T) {
	g := buildTestGraph(t)
	s := NewSnapper(g)
	west := 270.0
	east := 90.0

	snap, err := s.Snap(41.880, -87.6295, &west)
	if err != nil {
		t.Fatalf("Snap: %v", err)
	}
	if snap.NodeU != nodeIndex(g, 20) || snap.NodeV != nodeIndex(g, 10) {
		t.Errorf("heading west snapped to %d->%d, want 20->10", snap.NodeU, snap.NodeV)
	}

	snap, err = s.Snap(41.880, -87.6295, &east)
	if err != nil {
		t.Fatalf("Snap: %v", err)
	}
	if snap.NodeU != nodeIndex(g, 10) || snap.NodeV != nodeIndex(g, 20) {
		t.Errorf("heading east snapped to %d->%d, want 10->20", snap.NodeU, snap.NodeV)
	}
}

func TestRouteMatchesPlainDijkstra(t *testing.T) {
	g := buildTestGraph(t)
	e := NewEngine(g)
	ids := []osm.NodeID{10, 20, 30, 40, 50, 60}

	for _, a := range ids {
		for _, b := range ids {
			if a == b {
				continue
			}
			want := plainDijkstra(g, nodeIndex(g, a), nodeIndex(g, b))
			res, err := e.Route(context.Background(), []Stop{stopAt(a), stopAt(b)})
			if err != nil {
				t.Errorf("%d->%d: %v", a, b, err)
				continue
			}
			if math.Abs(res.TotalDistanceMeters-float64(want)/1000) > 1 {
				t.Errorf("%d->%d: distance %.1f m, want %.1f m", a, b, res.TotalDistanceMeters, float64(want)/1000)
			}
		}
	}
}

func TestRouteRespectsOneway(t *testing.T) {
	e := NewEngine(buildTestGraph(t))

	up, err := e.Route(context.Background(), []Stop{stopAt(30), stopAt(60)})
	if err != nil {
		t.Fatalf("30->60: %v", err)
	}
	down, err := e.Route(context.Background(), []Stop{stopAt(60), stopAt(30)})
	if err != nil {
		t.Fatalf("60->30: %v", err)
	}
	if up.TotalDistanceMeters > 120 {
		t.Errorf("30->60 = %.1f m, want the direct ~111 m street", up.TotalDistanceMeters)
	}
	if down.TotalDistanceMeters < 250 {
		t.Errorf("60->30 = %.1f m, want a detour around the one-way", down.TotalDistanceMeters)
	}
	geom := down.Geometry()
	if len(geom) < 4 {
		t.Errorf("detour geometry has %d points, want >= 4", len(geom))
	}
}

func TestRouteSameEdge(t *testing.T) {
	e := NewEngine(buildTestGraph(t))
	a := Stop{LatLng: LatLng{Lat: 41.880, Lng: -87.62975}}
	b := Stop{LatLng: LatLng{Lat: 41.880, Lng: -87.62925}}
	half := float64(mm(10, 20)) / 2000

	for _, tc := range []struct {
		name     string
		from, to Stop
	}{
		{"forward", a, b},
		{"backward", b, a},
	} {
		t.Run(tc.name, func(t *testing.T) {
			res, err := e.Route(context.Background(), []Stop{tc.from, tc.to})
			if err != nil {
				t.Fatalf("Route: %v", err)
			}
			if math.Abs(res.TotalDistanceMeters-half) > 1 {
				t.Errorf("distance = %.1f m, want %.1f m", res.TotalDistanceMeters, half)
			}
			if n := len(res.Segments[0].Geometry); n != 2 {
				t.Errorf("geometry has %d points, want 2", n)
			}
		})
	}
}

func TestRouteMultiStop(t *testing.T) {
	e := NewEngine(buildTestGraph(t))
	res, err := e.Route(context.Background(), []Stop{stopAt(10), stopAt(30), stopAt(40)})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if len(res.Segments) != 2 {
		t.Fatalf("got %d segments, want 2", len(res.Segments))
	}
	sum := res.Segments[0].DistanceMeters + res.Segments[1].DistanceMeters
	if math.Abs(sum-res.TotalDistanceMeters) > 1e-9 {
		t.Errorf("segments sum to %.3f, total is %.3f", sum, res.TotalDistanceMeters)
	}
	geom := res.Geometry()
	last := geom[len(geom)-1]
	if geo.Haversine(last.Lat, last.Lng, gridLat[40], gridLon[40]) > 1 {
		t.Errorf("route ends at %+v, want node 40", last)
	}
}

func TestRouteErrors(t *testing.T) {
	g := buildTestGraph(t)
	e := NewEngine(g)

	if _, err := e.Route(context.Background(), []Stop{stopAt(10)}); err == nil {
		t.Error("single stop should fail")
	}
	far := Stop{LatLng: LatLng{Lat: 42.5, Lng: -87.63}}
	if _, err := e.Route(context.Background(), []Stop{stopAt(10), far}); !errors.Is(err, ErrPointTooFar) {
		t.Errorf("err = %v, want ErrPointTooFar", err)
	}
}

func TestRouteNoRoute(t *testing.T) {
	lat := map[osm.NodeID]float64{1: 41.880, 2: 41.880, 3: 41.890, 4: 41.890}
	lon := map[osm.NodeID]float64{1: -87.630, 2: -87.629, 3: -87.630, 4: -87.629}
	g := graph.Build(&osmparser.ParseResult{
		Edges: []osmparser.RawEdge{
			{FromNodeID: 1, ToNodeID: 2, Weight: 83_000},
			{FromNodeID: 3, ToNodeID: 4, Weight: 83_000},
		},
		NodeLat: lat,
		NodeLon: lon,
	})
	e := NewEngine(g)
	_, err := e.Route(context.Background(), []Stop{
		{LatLng: LatLng{Lat: 41.880, Lng: -87.6295}},
		{LatLng: LatLng{Lat: 41.890, Lng: -87.6295}},
	})
	if !errors.Is(err, ErrNoRoute) {
		t.Errorf("err = %v, want ErrNoRoute", err)
	}
}

func BenchmarkRoute(b *testing.B) {
	g := buildTestGraph(b)
	e := NewEngine(g)
	stops := []Stop{stopAt(10), stopAt(60)}
	for b.Loop() {
		if _, err := e.Route(context.Background(), stops); err != nil {
			b.Fatal(err)
		}
	}
}
