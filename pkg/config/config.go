// Package config loads tourd configuration from a TOML file, .env files and
// TOUR_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	osmparser "tour_navigator/pkg/osm"
)

// Config holds all configuration for tourd.
type Config struct {
	Server     Server     `toml:"server"`
	Tour       Tour       `toml:"tour"`
	Directions Directions `toml:"directions"`
	Progress   Progress   `toml:"progress"`
	Location   Location   `toml:"location"`
}

type Server struct {
	Addr           string        `toml:"addr"`
	CORSOrigins    []string      `toml:"cors_origins"`
	MaxConcurrent  int           `toml:"max_concurrent"`
	RequestTimeout time.Duration `toml:"request_timeout"`
}

type Tour struct {
	ArrivalThreshold  float64       `toml:"arrival_threshold_meters"`
	OffRouteDistance  float64       `toml:"off_route_meters"`
	DepartureFallback time.Duration `toml:"departure_fallback"`
	// File, if set, is a tour file started at boot.
	File string `toml:"file"`
}

// Directions selects the routing backend: "osrm" calls an OSRM server at
// URL, "local" routes over a road graph built from the PBF extract.
type Directions struct {
	Backend string        `toml:"backend"`
	URL     string        `toml:"url"`
	Profile string        `toml:"profile"`
	Timeout time.Duration `toml:"timeout"`
	PBF     string        `toml:"pbf"`
	// BBox is min_lat, min_lng, max_lat, max_lng.
	BBox []float64 `toml:"bbox"`
}

// Progress selects where the resume index is kept: "sqlite", "postgres" or
// "memory".
type Progress struct {
	Backend     string `toml:"backend"`
	Path        string `toml:"path"`
	DatabaseURL string `toml:"database_url"`
}

// Location selects the position source: "replay" drives along the tour
// route, "gtfsrt" follows a vehicle in a GTFS-Realtime feed, "none" only
// takes positions posted to the HTTP API.
type Location struct {
	Source    string        `toml:"source"`
	SpeedKmh  float64       `toml:"speed_kmh"`
	Interval  time.Duration `toml:"interval"`
	FeedURL   string        `toml:"feed_url"`
	VehicleID string        `toml:"vehicle_id"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Server: Server{
			Addr:           ":8080",
			RequestTimeout: 5 * time.Second,
		},
		Tour: Tour{
			ArrivalThreshold: 40,
			OffRouteDistance: 40,
		},
		Directions: Directions{
			Backend: "osrm",
			URL:     "https://router.project-osrm.org",
			Profile: string(osmparser.ProfileDriving),
			Timeout: 10 * time.Second,
		},
		Progress: Progress{
			Backend: "sqlite",
			Path:    "tour.db",
		},
		Location: Location{
			Source:   "replay",
			SpeedKmh: 30,
			Interval: time.Second,
		},
	}
}

// Load reads path (skipped when empty), then the given .env files (missing
// ones are skipped), then applies TOUR_* environment overrides and
// validates the result.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		md, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("error decoding config file: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("unknown config keys: %v", undecoded)
		}
	}

	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Addr = getEnv("TOUR_ADDR", c.Server.Addr)
	if origins := getEnv("TOUR_CORS_ORIGINS", ""); origins != "" {
		c.Server.CORSOrigins = strings.Split(origins, ",")
	}

	c.Tour.ArrivalThreshold = getEnvFloat("TOUR_ARRIVAL_THRESHOLD", c.Tour.ArrivalThreshold)
	c.Tour.OffRouteDistance = getEnvFloat("TOUR_OFF_ROUTE_METERS", c.Tour.OffRouteDistance)
	c.Tour.DepartureFallback = getEnvDuration("TOUR_DEPARTURE_FALLBACK", c.Tour.DepartureFallback)
	c.Tour.File = getEnv("TOUR_FILE", c.Tour.File)

	c.Directions.Backend = getEnv("TOUR_DIRECTIONS_BACKEND", c.Directions.Backend)
	c.Directions.URL = getEnv("TOUR_OSRM_URL", c.Directions.URL)
	c.Directions.Profile = getEnv("TOUR_PROFILE", c.Directions.Profile)
	c.Directions.Timeout = getEnvDuration("TOUR_DIRECTIONS_TIMEOUT", c.Directions.Timeout)
	c.Directions.PBF = getEnv("TOUR_PBF", c.Directions.PBF)

	c.Progress.Backend = getEnv("TOUR_PROGRESS_BACKEND", c.Progress.Backend)
	c.Progress.Path = getEnv("TOUR_SQLITE_PATH", c.Progress.Path)
	c.Progress.DatabaseURL = getEnv("TOUR_DATABASE_URL", c.Progress.DatabaseURL)

	c.Location.Source = getEnv("TOUR_LOCATION_SOURCE", c.Location.Source)
	c.Location.FeedURL = getEnv("TOUR_GTFS_URL", c.Location.FeedURL)
	c.Location.VehicleID = getEnv("TOUR_VEHICLE_ID", c.Location.VehicleID)
	c.Location.Interval = time.Duration(getEnvInt("TOUR_LOCATION_INTERVAL_MS", int(c.Location.Interval/time.Millisecond))) * time.Millisecond
}

// Validate reports the first inconsistency in c.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if c.Tour.ArrivalThreshold <= 0 {
		return fmt.Errorf("tour.arrival_threshold_meters must be positive, got %v", c.Tour.ArrivalThreshold)
	}
	if c.Tour.OffRouteDistance <= 0 {
		return fmt.Errorf("tour.off_route_meters must be positive, got %v", c.Tour.OffRouteDistance)
	}

	if !osmparser.Profile(c.Directions.Profile).IsValid() {
		return fmt.Errorf("directions.profile %q is not one of driving, cycling, walking", c.Directions.Profile)
	}
	switch c.Directions.Backend {
	case "osrm":
		if c.Directions.URL == "" {
			return errors.New("directions.url is required for the osrm backend")
		}
	case "local":
		if c.Directions.PBF == "" {
			return errors.New("directions.pbf is required for the local backend")
		}
	default:
		return fmt.Errorf("directions.backend %q is not one of osrm, local", c.Directions.Backend)
	}
	if n := len(c.Directions.BBox); n != 0 && n != 4 {
		return fmt.Errorf("directions.bbox needs 4 values, got %d", n)
	}

	switch c.Progress.Backend {
	case "sqlite":
		if c.Progress.Path == "" {
			return errors.New("progress.path is required for the sqlite backend")
		}
	case "postgres":
		if c.Progress.DatabaseURL == "" {
			return errors.New("progress.database_url is required for the postgres backend")
		}
	case "memory":
	default:
		return fmt.Errorf("progress.backend %q is not one of sqlite, postgres, memory", c.Progress.Backend)
	}

	switch c.Location.Source {
	case "replay", "none":
	case "gtfsrt":
		if c.Location.FeedURL == "" || c.Location.VehicleID == "" {
			return errors.New("location.feed_url and location.vehicle_id are required for the gtfsrt source")
		}
	default:
		return fmt.Errorf("location.source %q is not one of replay, gtfsrt, none", c.Location.Source)
	}
	return nil
}

// BoundingBox returns the configured extract filter, zero when unset.
func (d Directions) BoundingBox() osmparser.BBox {
	if len(d.BBox) != 4 {
		return osmparser.BBox{}
	}
	return osmparser.BBox{MinLat: d.BBox[0], MinLng: d.BBox[1], MaxLat: d.BBox[2], MaxLng: d.BBox[3]}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
