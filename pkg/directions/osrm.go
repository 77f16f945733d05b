package directions

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"

	"github.com/paulmach/orb"
	"github.com/twpayne/go-polyline"
)

// bearingRange is the tolerance in degrees sent with the origin heading.
const bearingRange = 90

// polyline6 decodes OSRM geometries requested with geometries=polyline6.
var polyline6 = polyline.Codec{Dim: 2, Scale: 1e6}

// OSRM is a Router backed by the OSRM HTTP route service.
type OSRM struct {
	baseURL string
	profile string
	client  *http.Client
}

// NewOSRM returns a router for the OSRM server at baseURL. A nil client
// uses http.DefaultClient.
func NewOSRM(baseURL, profile string, client *http.Client) *OSRM {
	if client == nil {
		client = http.DefaultClient
	}
	return &OSRM{
		baseURL: strings.TrimRight(baseURL, "/"),
		profile: profile,
		client:  client,
	}
}

type osrmResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Geometry string  `json:"geometry"`
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
	} `json:"routes"`
}

// Route queries /route/v1 through origin and stops.
func (o *OSRM) Route(ctx context.Context, origin orb.Point, bearing *float64, stops []orb.Point) (*Route, error) {
	if len(stops) == 0 {
		return nil, fmt.Errorf("osrm: no destination")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.requestURL(origin, bearing, stops), nil)
	if err != nil {
		return nil, fmt.Errorf("osrm: build request: %w", err)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("osrm: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("osrm: read body: %w", err)
	}

	// OSRM reports NoRoute and NoSegment as 400 with a JSON body.
	var parsed osrmResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("osrm: HTTP %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("osrm: decode response: %w", err)
	}

	switch parsed.Code {
	case "NoRoute", "NoSegment":
		return nil, fmt.Errorf("osrm: %s: %w", parsed.Message, ErrNoRoute)
	case "Ok":
	default:
		return nil, fmt.Errorf("osrm: HTTP %d, code %q: %s", resp.StatusCode, parsed.Code, parsed.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("osrm: HTTP %d", resp.StatusCode)
	}
	if len(parsed.Routes) == 0 {
		return nil, fmt.Errorf("osrm: empty routes: %w", ErrNoRoute)
	}

	r := parsed.Routes[0]
	coords, _, err := polyline6.DecodeCoords([]byte(r.Geometry))
	if err != nil {
		return nil, fmt.Errorf("osrm: decode geometry: %w", err)
	}
	line := make(orb.LineString, len(coords))
	for i, c := range coords {
		line[i] = orb.Point{c[1], c[0]}
	}

	return &Route{
		Geometry:        line,
		DistanceMeters:  r.Distance,
		DurationSeconds: r.Duration,
	}, nil
}

func (o *OSRM) requestURL(origin orb.Point, bearing *float64, stops []orb.Point) string {
	coords := make([]string, 0, len(stops)+1)
	coords = append(coords, fmt.Sprintf("%.6f,%.6f", origin.Lon(), origin.Lat()))
	for _, p := range stops {
		coords = append(coords, fmt.Sprintf("%.6f,%.6f", p.Lon(), p.Lat()))
	}

	q := url.Values{}
	q.Set("overview", "full")
	q.Set("geometries", "polyline6")
	q.Set("continue_straight", "true")
	if bearing != nil {
		b := int(math.Round(*bearing)) % 360
		if b < 0 {
			b += 360
		}
		q.Set("bearings", fmt.Sprintf("%d,%d", b, bearingRange)+strings.Repeat(";", len(stops)))
	}

	return fmt.Sprintf("%s/route/v1/%s/%s?%s", o.baseURL, url.PathEscape(o.profile), strings.Join(coords, ";"), q.Encode())
}
