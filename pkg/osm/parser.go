package osm

import (
	"context"
	"fmt"
	"io"
	"log"
	"math"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"

	"tour_navigator/pkg/geo"
)

// Profile selects which ways are traversable and whether oneway tags apply.
// Names match the OSRM profile path segment.
type Profile string

const (
	ProfileDriving Profile = "driving"
	ProfileCycling Profile = "cycling"
	ProfileWalking Profile = "walking"
)

// IsValid reports whether p is a known profile.
func (p Profile) IsValid() bool {
	switch p {
	case ProfileDriving, ProfileCycling, ProfileWalking:
		return true
	default:
		return false
	}
}

// RawEdge represents a directed edge parsed from OSM data.
type RawEdge struct {
	FromNodeID osm.NodeID
	ToNodeID   osm.NodeID
	Weight     uint32 // distance in millimeters
}

// ParseResult holds the output of parsing an OSM PBF file.
type ParseResult struct {
	Edges   []RawEdge
	NodeLat map[osm.NodeID]float64
	NodeLon map[osm.NodeID]float64
}

var carHighways = map[string]bool{
	"motorway":       true,
	"motorway_link":  true,
	"trunk":          true,
	"trunk_link":     true,
	"primary":        true,
	"primary_link":   true,
	"secondary":      true,
	"secondary_link": true,
	"tertiary":       true,
	"tertiary_link":  true,
	"unclassified":   true,
	"residential":    true,
	"living_street":  true,
	"service":        true,
}

// slowHighways are open to bikes and pedestrians but not cars.
var slowHighways = map[string]bool{
	"cycleway":   true,
	"path":       true,
	"track":      true,
	"pedestrian": true,
	"footway":    true,
	"steps":      true,
}

// isAccessible returns true if the way can be used with the given profile.
func isAccessible(p Profile, tags osm.Tags) bool {
	hw := tags.Find("highway")

	switch p {
	case ProfileDriving:
		if !carHighways[hw] || tags.Find("area") == "yes" {
			return false
		}
		if tags.Find("motor_vehicle") == "no" {
			return false
		}
	case ProfileCycling:
		if hw == "motorway" || hw == "motorway_link" || hw == "steps" || hw == "footway" {
			return false
		}
		if !carHighways[hw] && !slowHighways[hw] {
			return false
		}
		if tags.Find("bicycle") == "no" {
			return false
		}
	case ProfileWalking:
		if hw == "motorway" || hw == "motorway_link" || hw == "trunk" || hw == "trunk_link" {
			return false
		}
		if !carHighways[hw] && !slowHighways[hw] {
			return false
		}
		if tags.Find("foot") == "no" {
			return false
		}
	default:
		return false
	}

	access := tags.Find("access")
	return access != "no" && access != "private"
}

// directionFlags returns (forward, backward) for a way under the given profile.
// Pedestrians ignore oneway restrictions.
func directionFlags(p Profile, tags osm.Tags) (forward, backward bool) {
	if p == ProfileWalking {
		return true, true
	}

	forward = true
	backward = true

	hw := tags.Find("highway")
	if hw == "motorway" || hw == "motorway_link" || tags.Find("junction") == "roundabout" {
		backward = false
	}

	oneway := tags.Find("oneway")
	if p == ProfileCycling && tags.Find("oneway:bicycle") == "no" {
		oneway = "no"
	}

	switch oneway {
	case "yes", "true", "1":
		forward, backward = true, false
	case "-1", "reverse":
		forward, backward = false, true
	case "no":
		forward, backward = true, true
	case "reversible":
		// Time-dependent, not routable.
		forward, backward = false, false
	}

	return forward, backward
}

type wayInfo struct {
	NodeIDs  []osm.NodeID
	Forward  bool
	Backward bool
}

// BBox defines a geographic bounding box for filtering.
// If non-zero, only edges with both endpoints inside the box are kept.
type BBox struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// IsZero returns true if the bbox is unset.
func (b BBox) IsZero() bool {
	return b.MinLat == 0 && b.MaxLat == 0 && b.MinLng == 0 && b.MaxLng == 0
}

// Contains returns true if the point is inside the bounding box.
func (b BBox) Contains(lat, lng float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lng >= b.MinLng && lng <= b.MaxLng
}

// ParseOptions configures the OSM parser.
type ParseOptions struct {
	Profile Profile // defaults to ProfileDriving
	BBox    BBox
}

// Parse reads an OSM PBF file and returns directed edges for the chosen profile.
// The reader is scanned twice (ways, then nodes), so it must implement io.ReadSeeker.
func Parse(ctx context.Context, rs io.ReadSeeker, opt ParseOptions) (*ParseResult, error) {
	if opt.Profile == "" {
		opt.Profile = ProfileDriving
	}
	if !opt.Profile.IsValid() {
		return nil, fmt.Errorf("unknown profile %q", opt.Profile)
	}
	useBBox := !opt.BBox.IsZero()

	referencedNodes := make(map[osm.NodeID]struct{})
	var ways []wayInfo

	scanner := osmpbf.New(ctx, rs, 1)
	scanner.SkipNodes = true
	scanner.SkipRelations = true

	for scanner.Scan() {
		w, ok := scanner.Object().(*osm.Way)
		if !ok || len(w.Nodes) < 2 || !isAccessible(opt.Profile, w.Tags) {
			continue
		}

		fwd, bwd := directionFlags(opt.Profile, w.Tags)
		if !fwd && !bwd {
			continue
		}

		nodeIDs := make([]osm.NodeID, len(w.Nodes))
		for i, wn := range w.Nodes {
			nodeIDs[i] = wn.ID
			referencedNodes[wn.ID] = struct{}{}
		}
		ways = append(ways, wayInfo{NodeIDs: nodeIDs, Forward: fwd, Backward: bwd})
	}
	if err := scanner.Err(); err != nil {
		scanner.Close()
		return nil, fmt.Errorf("pass 1 (ways): %w", err)
	}
	scanner.Close()

	log.Printf("osm: %s profile, %d ways, %d referenced nodes", opt.Profile, len(ways), len(referencedNodes))

	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek for pass 2: %w", err)
	}

	nodeLat := make(map[osm.NodeID]float64, len(referencedNodes))
	nodeLon := make(map[osm.NodeID]float64, len(referencedNodes))

	scanner = osmpbf.New(ctx, rs, 1)
	scanner.SkipWays = true
	scanner.SkipRelations = true

	for scanner.Scan() {
		n, ok := scanner.Object().(*osm.Node)
		if !ok {
			continue
		}
		if _, needed := referencedNodes[n.ID]; !needed {
			continue
		}
		nodeLat[n.ID] = n.Lat
		nodeLon[n.ID] = n.Lon
	}
	if err := scanner.Err(); err != nil {
		scanner.Close()
		return nil, fmt.Errorf("pass 2 (nodes): %w", err)
	}
	scanner.Close()

	edges, skipped, filtered := buildEdges(ways, nodeLat, nodeLon, opt.BBox, useBBox)
	if skipped > 0 {
		log.Printf("osm: skipped %d edges with missing node coordinates", skipped)
	}
	if filtered > 0 {
		log.Printf("osm: filtered %d edges outside bounding box", filtered)
	}
	log.Printf("osm: built %d directed edges", len(edges))

	return &ParseResult{
		Edges:   edges,
		NodeLat: nodeLat,
		NodeLon: nodeLon,
	}, nil
}

func buildEdges(ways []wayInfo, nodeLat, nodeLon map[osm.NodeID]float64, bbox BBox, useBBox bool) (edges []RawEdge, skipped, filtered int) {
	for _, w := range ways {
		for i := 0; i < len(w.NodeIDs)-1; i++ {
			fromID, toID := w.NodeIDs[i], w.NodeIDs[i+1]

			fromLat, fromOk := nodeLat[fromID]
			toLat, toOk := nodeLat[toID]
			if !fromOk || !toOk {
				skipped++
				continue
			}
			fromLon, toLon := nodeLon[fromID], nodeLon[toID]

			if useBBox && (!bbox.Contains(fromLat, fromLon) || !bbox.Contains(toLat, toLon)) {
				filtered++
				continue
			}

			weightMM := uint32(math.Round(geo.Haversine(fromLat, fromLon, toLat, toLon) * 1000))
			if weightMM == 0 {
				weightMM = 1
			}

			if w.Forward {
				edges = append(edges, RawEdge{FromNodeID: fromID, ToNodeID: toID, Weight: weightMM})
			}
			if w.Backward {
				edges = append(edges, RawEdge{FromNodeID: toID, ToNodeID: fromID, Weight: weightMM})
			}
		}
	}
	return edges, skipped, filtered
}
