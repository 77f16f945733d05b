package graph

import (
	"sort"

	"github.com/paulmach/osm"

	osmparser "tour_navigator/pkg/osm"
)

// Build creates a CSR Graph from parsed OSM edges.
func Build(result *osmparser.ParseResult) *Graph {
	if len(result.Edges) == 0 {
		return &Graph{}
	}

	// Compact OSM node IDs to dense indices in first-seen order.
	index := make(map[osm.NodeID]uint32)
	var ids []osm.NodeID
	lookup := func(id osm.NodeID) uint32 {
		if idx, ok := index[id]; ok {
			return idx
		}
		idx := uint32(len(ids))
		index[id] = idx
		ids = append(ids, id)
		return idx
	}

	edges := make([]edge, len(result.Edges))
	for i, e := range result.Edges {
		edges[i] = edge{from: lookup(e.FromNodeID), to: lookup(e.ToNodeID), weight: e.Weight}
	}

	sort.Slice(edges, func(i, j int) bool {
		if edges[i].from != edges[j].from {
			return edges[i].from < edges[j].from
		}
		return edges[i].to < edges[j].to
	})

	numNodes := uint32(len(ids))
	nodeLat := make([]float64, numNodes)
	nodeLon := make([]float64, numNodes)
	for idx, id := range ids {
		nodeLat[idx] = result.NodeLat[id]
		nodeLon[idx] = result.NodeLon[id]
	}

	return fromEdges(numNodes, edges, nodeLat, nodeLon)
}
