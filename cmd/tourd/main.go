package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"tour_navigator/pkg/api"
	"tour_navigator/pkg/config"
	"tour_navigator/pkg/directions"
	"tour_navigator/pkg/location"
	"tour_navigator/pkg/offroute"
	osmparser "tour_navigator/pkg/osm"
	"tour_navigator/pkg/progress"
	"tour_navigator/pkg/routing"
	"tour_navigator/pkg/tour"
	"tour_navigator/pkg/waypoint"
)

// guardedTour routes location updates through the off-route detector.
type guardedTour struct {
	*tour.Controller
	guard offroute.Guard
}

func (g *guardedTour) OnLocation(s location.Sample) {
	g.guard.OnLocation(s)
}

func main() {
	configPath := flag.String("config", "", "Path to TOML config file")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	tourPath := flag.String("tour", "", "Tour file to start at boot (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath, ".env", ".env.local")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *tourPath != "" {
		cfg.Tour.File = *tourPath
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg.Progress)
	if err != nil {
		log.Fatalf("Failed to open progress store: %v", err)
	}
	defer closeStore()

	router, err := openRouter(ctx, cfg.Directions)
	if err != nil {
		log.Fatalf("Failed to set up directions: %v", err)
	}
	gw := directions.NewAsync(router, cfg.Directions.Timeout)

	view := api.NewView()
	detector := offroute.New(cfg.Tour.OffRouteDistance)

	tcfg := tour.Config{
		ArrivalThreshold:  cfg.Tour.ArrivalThreshold,
		DepartureFallback: cfg.Tour.DepartureFallback,
	}
	var feed location.Feed
	switch cfg.Location.Source {
	case "replay":
		replay := location.NewReplay(cfg.Location.SpeedKmh, cfg.Location.Interval)
		tcfg.OnTourRoute = func(r *directions.Route) { replay.SetRoute(r.Geometry) }
		feed = replay
	case "gtfsrt":
		feed = location.NewGTFSRT(cfg.Location.FeedURL, cfg.Location.VehicleID, cfg.Location.Interval, nil)
	}

	ctrl := tour.New(tcfg, gw, store, view, tour.Sessions{view, detector})
	nav := &guardedTour{Controller: ctrl, guard: offroute.Guard{Detector: detector, Listener: ctrl}}

	go logDiagnostics(ctx, ctrl.Diagnostics())

	ctrlDone := make(chan error, 1)
	go func() { ctrlDone <- ctrl.Run(ctx) }()

	if feed != nil {
		log.Printf("Location source: %s", cfg.Location.Source)
		go func() {
			if err := feed.Run(ctx, nav.OnLocation); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("Location feed stopped: %v", err)
			}
		}()
	}

	if cfg.Tour.File != "" {
		if err := startTour(ctx, nav, cfg.Tour.File); err != nil {
			log.Fatalf("Failed to start tour: %v", err)
		}
	}

	scfg := api.DefaultConfig(cfg.Server.Addr)
	scfg.CORSOrigins = cfg.Server.CORSOrigins
	scfg.RequestTimeout = cfg.Server.RequestTimeout
	if cfg.Server.MaxConcurrent > 0 {
		scfg.MaxConcurrent = cfg.Server.MaxConcurrent
	}
	srv := api.NewServer(scfg, api.NewHandlers(nav, view))

	if err := api.ListenAndServe(ctx, srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("Server stopped: %v", err)
		stop()
		<-ctrlDone
		gw.Wait()
		os.Exit(1)
	}

	stop()
	<-ctrlDone
	gw.Wait()
	log.Printf("Shutdown complete")
}

func openStore(ctx context.Context, cfg config.Progress) (progress.Store, func(), error) {
	switch cfg.Backend {
	case "sqlite":
		s, err := progress.OpenSQLite(ctx, cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	case "postgres":
		p, err := progress.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("Progress stored in Postgres")
		return p, p.Close, nil
	default:
		log.Printf("Progress kept in memory; it will not survive a restart")
		return progress.NewMemory(), func() {}, nil
	}
}

func openRouter(ctx context.Context, cfg config.Directions) (directions.Router, error) {
	profile := osmparser.Profile(cfg.Profile)
	if cfg.Backend == "osrm" {
		log.Printf("Routing with OSRM at %s (%s)", cfg.URL, profile)
		return directions.NewOSRM(cfg.URL, cfg.Profile, nil), nil
	}

	start := time.Now()
	log.Printf("Building road graph from %s...", cfg.PBF)
	f, err := os.Open(cfg.PBF)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	engine, err := routing.LoadEngine(ctx, f, osmparser.ParseOptions{Profile: profile, BBox: cfg.BoundingBox()})
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", cfg.PBF, err)
	}
	log.Printf("Road graph ready in %s", time.Since(start).Round(time.Millisecond))
	return directions.NewLocal(engine, profile), nil
}

// startTour reads a tour file, GeoJSON when named *.geojson, and starts it.
func startTour(ctx context.Context, nav api.Tour, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var records []waypoint.Record
	if strings.EqualFold(filepath.Ext(path), ".geojson") {
		data, err := io.ReadAll(f)
		if err != nil {
			return err
		}
		records, err = waypoint.DecodeGeoJSON(data)
		if err != nil {
			return err
		}
	} else if records, err = waypoint.Decode(f); err != nil {
		return err
	}

	if err := nav.Start(ctx, records); err != nil {
		return err
	}
	log.Printf("Started tour %s with %d records", path, len(records))
	return nil
}

func logDiagnostics(ctx context.Context, diags <-chan tour.Diagnostic) {
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-diags:
			switch d.Kind {
			case tour.DiagLegAdvanced, tour.DiagTourComplete:
				log.Printf("tour: %s run=%s leg=%d", d.Kind, d.RunID, d.LegIndex)
			case tour.DiagStaleResponse:
				// Expected after every reroute.
			default:
				log.Printf("tour: %s run=%s leg=%d status=%s err=%v", d.Kind, d.RunID, d.LegIndex, d.Status, d.Err)
			}
		}
	}
}
