package directions

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/paulmach/orb"
)

func TestOSRMRoute(t *testing.T) {
	geometry := string(polyline6.EncodeCoords(nil, [][]float64{
		{41.8826, -87.6226},
		{41.8870, -87.6140},
		{41.8917, -87.6051},
	}))

	var gotPath, gotBearings, gotGeometries string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBearings = r.URL.Query().Get("bearings")
		gotGeometries = r.URL.Query().Get("geometries")
		fmt.Fprintf(w, `{"code":"Ok","routes":[{"geometry":%q,"distance":2134.5,"duration":301.2}]}`, geometry)
	}))
	defer srv.Close()

	o := NewOSRM(srv.URL+"/", "driving", srv.Client())
	bearing := 359.6
	route, err := o.Route(context.Background(), millennium, &bearing, []orb.Point{navyPier})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}

	if gotPath != "/route/v1/driving/-87.622600,41.882600;-87.605100,41.891700" {
		t.Errorf("path = %q", gotPath)
	}
	if gotBearings != "0,90;" {
		t.Errorf("bearings = %q, want %q", gotBearings, "0,90;")
	}
	if gotGeometries != "polyline6" {
		t.Errorf("geometries = %q", gotGeometries)
	}
	if len(route.Geometry) != 3 {
		t.Fatalf("geometry has %d points, want 3", len(route.Geometry))
	}
	last := route.Geometry[2]
	if math.Abs(last.Lon()-navyPier.Lon()) > 1e-6 || math.Abs(last.Lat()-navyPier.Lat()) > 1e-6 {
		t.Errorf("last point = %v, want %v", last, navyPier)
	}
	if route.DistanceMeters != 2134.5 || route.DurationSeconds != 301.2 {
		t.Errorf("distance/duration = %v/%v", route.DistanceMeters, route.DurationSeconds)
	}
}

func TestOSRMNoBearing(t *testing.T) {
	var rawQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawQuery = r.URL.RawQuery
		fmt.Fprint(w, `{"code":"Ok","routes":[{"geometry":"","distance":0,"duration":0}]}`)
	}))
	defer srv.Close()

	if _, err := NewOSRM(srv.URL, "walking", nil).Route(context.Background(), millennium, nil, []orb.Point{navyPier}); err != nil {
		t.Fatalf("Route: %v", err)
	}
	if strings.Contains(rawQuery, "bearings") {
		t.Errorf("query %q should not carry bearings", rawQuery)
	}
}

func TestOSRMErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantNoRte bool
	}{
		{"no route", http.StatusBadRequest, `{"code":"NoRoute","message":"Impossible route"}`, true},
		{"no segment", http.StatusBadRequest, `{"code":"NoSegment","message":"Could not find a matching segment"}`, true},
		{"empty routes", http.StatusOK, `{"code":"Ok","routes":[]}`, true},
		{"invalid query", http.StatusBadRequest, `{"code":"InvalidQuery","message":"bad"}`, false},
		{"gateway error", http.StatusBadGateway, `<html>bad gateway</html>`, false},
		{"garbage", http.StatusOK, `not json`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			_, err := NewOSRM(srv.URL, "driving", srv.Client()).Route(context.Background(), millennium, nil, []orb.Point{navyPier})
			if err == nil {
				t.Fatal("expected error")
			}
			if errors.Is(err, ErrNoRoute) != tt.wantNoRte {
				t.Errorf("errors.Is(err, ErrNoRoute) = %v, want %v (err: %v)", !tt.wantNoRte, tt.wantNoRte, err)
			}
			if got := classify(nil, err).Status; (got == NoRouteFound) != tt.wantNoRte {
				t.Errorf("classified as %s", got)
			}
		})
	}
}

func TestOSRMTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewOSRM(url, "driving", nil).Route(context.Background(), millennium, nil, []orb.Point{navyPier})
	if err == nil {
		t.Fatal("expected error from closed server")
	}
	if classify(nil, err).Status != TransportFailure {
		t.Errorf("closed server should be a transport failure, got %v", err)
	}
}
