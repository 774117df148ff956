package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelvins/geocoder"

	"github.com/apalacios/aemet-opendata/internal/geo"
	"github.com/apalacios/aemet-opendata/internal/weather"
)

type AppConfig struct {
	// AemetAPIKey authenticates against the OpenData API. Required.
	AemetAPIKey string

	// FetchInterval controls how often prefetch snapshots are refreshed.
	FetchInterval time.Duration

	// CatalogRefresh controls how often the town and station master lists
	// are reloaded.
	CatalogRefresh time.Duration

	// StationData enables observation fetches alongside forecasts.
	StationData bool

	// Climatology folds the climatological station inventory into the
	// catalog.
	Climatology bool

	// Queries to prefetch on the scheduler interval.
	Queries []weather.Query

	// In-memory store retention.
	StoreMaxHistory int           // max snapshots per location (0 = unlimited)
	StoreMaxAge     time.Duration // max age of snapshots (0 = unlimited)

	Port string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}

	cfg.AemetAPIKey = os.Getenv("AEMET_API_KEY")
	if cfg.AemetAPIKey == "" {
		return nil, fmt.Errorf("AEMET_API_KEY is required")
	}

	interval, err := time.ParseDuration(getenvDefault("FETCH_INTERVAL", "15m"))
	if err != nil {
		return nil, fmt.Errorf("invalid FETCH_INTERVAL: %w", err)
	}
	cfg.FetchInterval = interval

	refresh, err := time.ParseDuration(getenvDefault("CATALOG_REFRESH", "24h"))
	if err != nil {
		return nil, fmt.Errorf("invalid CATALOG_REFRESH: %w", err)
	}
	cfg.CatalogRefresh = refresh

	cfg.StationData = getenvBool("STATION_DATA", true)
	cfg.Climatology = getenvBool("CLIMATOLOGY", false)

	cfg.StoreMaxHistory = getenvInt("STORE_MAX_HISTORY", 96) // roughly 24h at 15-minute intervals

	maxAge, err := time.ParseDuration(getenvDefault("STORE_MAX_AGE", "24h"))
	if err != nil {
		return nil, fmt.Errorf("invalid STORE_MAX_AGE: %w", err)
	}
	cfg.StoreMaxAge = maxAge
	cfg.Port = getenvDefault("PORT", "8080")

	queries, err := loadQueries()
	if err != nil {
		return nil, err
	}
	cfg.Queries = queries

	return cfg, nil
}

// loadQueries assembles the prefetch query list from the three location
// sources: town ids, raw coordinates and geocoded addresses.
func loadQueries() ([]weather.Query, error) {
	var queries []weather.Query

	for _, id := range splitList(os.Getenv("WEATHER_TOWN_IDS")) {
		queries = append(queries, weather.Query{TownID: id})
	}

	for _, pair := range splitList(os.Getenv("WEATHER_COORDINATES")) {
		point, err := parseCoordinate(pair)
		if err != nil {
			return nil, err
		}
		queries = append(queries, weather.Query{Coordinate: point})
	}

	addresses := splitList(os.Getenv("WEATHER_ADDRESSES"))
	if len(addresses) > 0 {
		geocoder.ApiKey = os.Getenv("GEOCODER_API_KEY")
		if geocoder.ApiKey == "" {
			return nil, fmt.Errorf("WEATHER_ADDRESSES requires GEOCODER_API_KEY")
		}
		for _, addr := range addresses {
			point, err := geocodeAddress(addr)
			if err != nil {
				return nil, fmt.Errorf("geocoding %q: %w", addr, err)
			}
			queries = append(queries, weather.Query{Coordinate: point})
		}
	}

	return queries, nil
}

// parseCoordinate parses one "lat,lon" pair.
func parseCoordinate(pair string) (*geo.Point, error) {
	parts := strings.Split(pair, ",")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid WEATHER_COORDINATES entry %q: want lat,lon", pair)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid latitude in %q: %w", pair, err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid longitude in %q: %w", pair, err)
	}
	point := geo.Point{Latitude: lat, Longitude: lon}
	if err := point.Validate(); err != nil {
		return nil, err
	}
	return &point, nil
}

// geocodeAddress resolves a "city,country" address entry to coordinates.
func geocodeAddress(addr string) (*geo.Point, error) {
	parts := strings.SplitN(addr, ",", 2)
	address := geocoder.Address{City: strings.TrimSpace(parts[0]), Country: "Spain"}
	if len(parts) == 2 {
		address.Country = strings.TrimSpace(parts[1])
	}

	loc, err := geocoder.Geocoding(address)
	if err != nil {
		return nil, err
	}
	return &geo.Point{Latitude: loc.Latitude, Longitude: loc.Longitude}, nil
}

// splitList splits a semicolon-separated env value, dropping empty entries.
func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ";") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}
