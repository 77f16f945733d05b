package location

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/paulmach/orb"
	"google.golang.org/protobuf/proto"
)

// GTFSRT follows one vehicle in a GTFS-Realtime vehicle positions feed.
type GTFSRT struct {
	url       string
	vehicleID string
	interval  time.Duration
	client    *http.Client

	lastTimestamp uint64
}

// NewGTFSRT polls url every interval for vehicleID, matched against the
// vehicle descriptor id or, failing that, the entity id.
func NewGTFSRT(url, vehicleID string, interval time.Duration, client *http.Client) *GTFSRT {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &GTFSRT{url: url, vehicleID: vehicleID, interval: interval, client: client}
}

func (g *GTFSRT) Run(ctx context.Context, emit func(Sample)) error {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		s, ok, err := g.Poll(ctx)
		if err != nil {
			log.Printf("gtfsrt: poll failed: %v", err)
		} else if ok {
			emit(s)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Poll fetches the feed once. ok is false when the vehicle is absent or
// its position has not changed since the previous poll.
func (g *GTFSRT) Poll(ctx context.Context) (Sample, bool, error) {
	feed, err := g.fetchFeed(ctx)
	if err != nil {
		return Sample{}, false, err
	}

	for _, entity := range feed.Entity {
		v := entity.GetVehicle()
		if v == nil || v.Position == nil {
			continue
		}
		id := v.GetVehicle().GetId()
		if id == "" {
			id = entity.GetId()
		}
		if id != g.vehicleID {
			continue
		}

		ts := v.GetTimestamp()
		if ts == 0 {
			ts = feed.GetHeader().GetTimestamp()
		}
		if ts != 0 && ts == g.lastTimestamp {
			return Sample{}, false, nil
		}
		g.lastTimestamp = ts

		pos := v.Position
		s := Sample{
			Point:     orb.Point{float64(pos.GetLongitude()), float64(pos.GetLatitude())},
			Timestamp: time.Unix(int64(ts), 0).UTC(),
		}
		if pos.Bearing != nil {
			b := float64(*pos.Bearing)
			s.Bearing = &b
		}
		return s, true, nil
	}
	return Sample{}, false, nil
}

func (g *GTFSRT) fetchFeed(ctx context.Context) (*gtfs.FeedMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	feed := &gtfs.FeedMessage{}
	if err := proto.Unmarshal(body, feed); err != nil {
		return nil, fmt.Errorf("failed to parse protobuf: %w", err)
	}
	return feed, nil
}
