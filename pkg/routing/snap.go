package routing

import (
	"errors"
	"math"

	"github.com/tidwall/rtree"

	"tour_navigator/pkg/geo"
	"tour_navigator/pkg/graph"
)

const (
	maxSnapDistMeters = 500.0

	// bearingTolerance is the maximum angle between a heading hint and a
	// road segment for the segment to be preferred.
	bearingTolerance = 90.0

	metersPerDegreeLat = 111_320.0
)

// ErrPointTooFar is returned when the query point is too far from any road.
var ErrPointTooFar = errors.New("point too far from road")

// SnapResult represents a point snapped to a road segment.
type SnapResult struct {
	EdgeIdx uint32  // index into graph edge arrays
	NodeU   uint32  // source node of the edge
	NodeV   uint32  // target node of the edge
	Ratio   float64 // 0.0 = at NodeU, 1.0 = at NodeV
	Dist    float64 // distance in meters from query point to snapped point
}

// Point returns the snapped location on the segment.
func (s SnapResult) Point(g *graph.Graph) LatLng {
	return LatLng{
		Lat: g.NodeLat[s.NodeU] + (g.NodeLat[s.NodeV]-g.NodeLat[s.NodeU])*s.Ratio,
		Lng: g.NodeLon[s.NodeU] + (g.NodeLon[s.NodeV]-g.NodeLon[s.NodeU])*s.Ratio,
	}
}

// Snapper provides nearest-road snapping over an R-tree of edge bounding boxes.
type Snapper struct {
	tree rtree.RTreeG[uint32]
	g    *graph.Graph
}

// NewSnapper indexes every directed edge of g by its bounding box.
func NewSnapper(g *graph.Graph) *Snapper {
	s := &Snapper{g: g}
	for u := uint32(0); u < g.NumNodes; u++ {
		start, end := g.EdgesFrom(u)
		for e := start; e < end; e++ {
			v := g.Head[e]
			minPt := [2]float64{math.Min(g.NodeLon[u], g.NodeLon[v]), math.Min(g.NodeLat[u], g.NodeLat[v])}
			maxPt := [2]float64{math.Max(g.NodeLon[u], g.NodeLon[v]), math.Max(g.NodeLat[u], g.NodeLat[v])}
			s.tree.Insert(minPt, maxPt, e)
		}
	}
	return s
}

// Snap finds the nearest road segment to the given lat/lng. When bearing is
// non-nil, segments heading within bearingTolerance of it are preferred and
// the nearest segment overall is used only if none qualifies.
func (s *Snapper) Snap(lat, lng float64, bearing *float64) (SnapResult, error) {
	dLat := maxSnapDistMeters / metersPerDegreeLat
	dLng := maxSnapDistMeters / (metersPerDegreeLat * math.Max(math.Cos(lat*math.Pi/180), 0.01))

	best := SnapResult{Dist: math.Inf(1)}
	bestAligned := SnapResult{Dist: math.Inf(1)}

	s.tree.Search(
		[2]float64{lng - dLng, lat - dLat},
		[2]float64{lng + dLng, lat + dLat},
		func(_, _ [2]float64, e uint32) bool {
			u := s.g.Source(e)
			v := s.g.Head[e]
			uLat, uLon := s.g.NodeLat[u], s.g.NodeLon[u]
			vLat, vLon := s.g.NodeLat[v], s.g.NodeLon[v]

			dist, ratio := geo.PointToSegmentDist(lat, lng, uLat, uLon, vLat, vLon)
			cand := SnapResult{EdgeIdx: e, NodeU: u, NodeV: v, Ratio: ratio, Dist: dist}
			if better(cand, best) {
				best = cand
			}
			if bearing != nil && geo.AngleDiff(geo.Bearing(uLat, uLon, vLat, vLon), *bearing) <= bearingTolerance {
				if better(cand, bestAligned) {
					bestAligned = cand
				}
			}
			return true
		},
	)

	if bestAligned.Dist <= maxSnapDistMeters {
		return bestAligned, nil
	}
	if best.Dist > maxSnapDistMeters {
		return SnapResult{}, ErrPointTooFar
	}
	return best, nil
}

// better orders candidates by distance, breaking ties by edge index so the
// result does not depend on R-tree iteration order.
func better(a, b SnapResult) bool {
	if a.Dist != b.Dist {
		return a.Dist < b.Dist
	}
	return a.EdgeIdx < b.EdgeIdx
}
