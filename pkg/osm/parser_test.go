package osm

import (
	"testing"

	"github.com/paulmach/osm"
)

func TestIsAccessible(t *testing.T) {
	tests := []struct {
		name    string
		profile Profile
		tags    osm.Tags
		want    bool
	}{
		{"driving residential", ProfileDriving, osm.Tags{{Key: "highway", Value: "residential"}}, true},
		{"driving motorway", ProfileDriving, osm.Tags{{Key: "highway", Value: "motorway"}}, true},
		{"driving footway", ProfileDriving, osm.Tags{{Key: "highway", Value: "footway"}}, false},
		{"driving private", ProfileDriving, osm.Tags{
			{Key: "highway", Value: "residential"},
			{Key: "access", Value: "private"},
		}, false},
		{"driving motor_vehicle=no", ProfileDriving, osm.Tags{
			{Key: "highway", Value: "residential"},
			{Key: "motor_vehicle", Value: "no"},
		}, false},
		{"driving area plaza", ProfileDriving, osm.Tags{
			{Key: "highway", Value: "service"},
			{Key: "area", Value: "yes"},
		}, false},
		{"cycling cycleway", ProfileCycling, osm.Tags{{Key: "highway", Value: "cycleway"}}, true},
		{"cycling motorway", ProfileCycling, osm.Tags{{Key: "highway", Value: "motorway"}}, false},
		{"cycling bicycle=no", ProfileCycling, osm.Tags{
			{Key: "highway", Value: "primary"},
			{Key: "bicycle", Value: "no"},
		}, false},
		{"walking footway", ProfileWalking, osm.Tags{{Key: "highway", Value: "footway"}}, true},
		{"walking steps", ProfileWalking, osm.Tags{{Key: "highway", Value: "steps"}}, true},
		{"walking trunk", ProfileWalking, osm.Tags{{Key: "highway", Value: "trunk"}}, false},
		{"walking foot=no", ProfileWalking, osm.Tags{
			{Key: "highway", Value: "residential"},
			{Key: "foot", Value: "no"},
		}, false},
		{"no highway tag", ProfileDriving, osm.Tags{{Key: "name", Value: "Some Street"}}, false},
		{"unknown profile", Profile("boat"), osm.Tags{{Key: "highway", Value: "residential"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isAccessible(tt.profile, tt.tags); got != tt.want {
				t.Errorf("isAccessible() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDirectionFlags(t *testing.T) {
	tests := []struct {
		name         string
		profile      Profile
		tags         osm.Tags
		wantForward  bool
		wantBackward bool
	}{
		{
			name:         "default bidirectional",
			profile:      ProfileDriving,
			tags:         osm.Tags{{Key: "highway", Value: "residential"}},
			wantForward:  true,
			wantBackward: true,
		},
		{
			name:         "motorway implied oneway",
			profile:      ProfileDriving,
			tags:         osm.Tags{{Key: "highway", Value: "motorway"}},
			wantForward:  true,
			wantBackward: false,
		},
		{
			name:    "roundabout implied oneway",
			profile: ProfileDriving,
			tags: osm.Tags{
				{Key: "highway", Value: "residential"},
				{Key: "junction", Value: "roundabout"},
			},
			wantForward:  true,
			wantBackward: false,
		},
		{
			name:    "oneway reverse",
			profile: ProfileDriving,
			tags: osm.Tags{
				{Key: "highway", Value: "residential"},
				{Key: "oneway", Value: "-1"},
			},
			wantForward:  false,
			wantBackward: true,
		},
		{
			name:    "reversible is unroutable",
			profile: ProfileDriving,
			tags: osm.Tags{
				{Key: "highway", Value: "primary"},
				{Key: "oneway", Value: "reversible"},
			},
			wantForward:  false,
			wantBackward: false,
		},
		{
			name:    "cycling contraflow",
			profile: ProfileCycling,
			tags: osm.Tags{
				{Key: "highway", Value: "residential"},
				{Key: "oneway", Value: "yes"},
				{Key: "oneway:bicycle", Value: "no"},
			},
			wantForward:  true,
			wantBackward: true,
		},
		{
			name:    "walking ignores oneway",
			profile: ProfileWalking,
			tags: osm.Tags{
				{Key: "highway", Value: "residential"},
				{Key: "oneway", Value: "yes"},
			},
			wantForward:  true,
			wantBackward: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fwd, bwd := directionFlags(tt.profile, tt.tags)
			if fwd != tt.wantForward || bwd != tt.wantBackward {
				t.Errorf("directionFlags() = (%v, %v), want (%v, %v)", fwd, bwd, tt.wantForward, tt.wantBackward)
			}
		})
	}
}

func TestBuildEdges(t *testing.T) {
	ways := []wayInfo{
		{NodeIDs: []osm.NodeID{1, 2, 3}, Forward: true, Backward: true},
		{NodeIDs: []osm.NodeID{3, 4}, Forward: true, Backward: false},
		{NodeIDs: []osm.NodeID{4, 99}, Forward: true, Backward: true}, // 99 has no coordinates
	}
	lat := map[osm.NodeID]float64{1: 41.870, 2: 41.871, 3: 41.872, 4: 41.873}
	lon := map[osm.NodeID]float64{1: -87.65, 2: -87.65, 3: -87.65, 4: -87.65}

	edges, skipped, filtered := buildEdges(ways, lat, lon, BBox{}, false)
	if len(edges) != 5 {
		t.Errorf("len(edges) = %d, want 5", len(edges))
	}
	if skipped != 1 {
		t.Errorf("skipped = %d, want 1", skipped)
	}
	if filtered != 0 {
		t.Errorf("filtered = %d, want 0", filtered)
	}
	for _, e := range edges {
		if e.Weight < 100_000 || e.Weight > 120_000 {
			t.Errorf("edge %d->%d weight = %d mm, want ~111 m", e.FromNodeID, e.ToNodeID, e.Weight)
		}
	}

	bbox := BBox{MinLat: 41.869, MaxLat: 41.8715, MinLng: -88, MaxLng: -87}
	edges, _, filtered = buildEdges(ways, lat, lon, bbox, true)
	if len(edges) != 2 {
		t.Errorf("len(edges) with bbox = %d, want 2", len(edges))
	}
	if filtered != 2 {
		t.Errorf("filtered = %d, want 2", filtered)
	}
}

func TestBBox(t *testing.T) {
	var zero BBox
	if !zero.IsZero() {
		t.Error("zero BBox should report IsZero")
	}
	b := BBox{MinLat: 41, MaxLat: 42, MinLng: -88, MaxLng: -87}
	if !b.Contains(41.5, -87.5) {
		t.Error("point inside bbox not contained")
	}
	if b.Contains(43, -87.5) {
		t.Error("point outside bbox contained")
	}
}
