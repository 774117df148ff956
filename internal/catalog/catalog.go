// Package catalog holds the master index of towns and weather stations and
// answers identifier and nearest-neighbor lookups over it.
package catalog

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/apalacios/aemet-opendata/internal/aemet"
	"github.com/apalacios/aemet-opendata/internal/geo"
)

var (
	// ErrNotFound is returned when a town or station id is unknown.
	ErrNotFound = errors.New("catalog: not found")

	// ErrEmptyCatalog is returned when a load yields no usable entries, or
	// when a lookup runs against an unpopulated index.
	ErrEmptyCatalog = errors.New("catalog: no usable entries")
)

// Town is a municipality from the agency master list.
type Town struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Province  string    `json:"province,omitempty"`
	Location  geo.Point `json:"location"`
	Altitude  *float64  `json:"altitude,omitempty"`
	Residents *int      `json:"residents,omitempty"`
}

// Station is a weather station known to the agency.
type Station struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Province      string    `json:"province,omitempty"`
	Location      geo.Point `json:"location"`
	Altitude      *float64  `json:"altitude,omitempty"`
	Climatological bool     `json:"climatological,omitempty"`
}

// SkippedRecord reports one catalog record dropped during load. Skips are
// warnings: the load carries on with the remaining records.
type SkippedRecord struct {
	Kind   string // "town", "station" or "climatological-station"
	ID     string // may be empty when the id itself was missing
	Reason string
}

func (s SkippedRecord) String() string {
	return fmt.Sprintf("%s %q: %s", s.Kind, s.ID, s.Reason)
}

// LoadResult summarizes a catalog load.
type LoadResult struct {
	Towns    int
	Stations int
	Skipped  []SkippedRecord
}

// snapshot is one fully-built generation of the index. Lookups run against
// whichever snapshot was published when they started.
type snapshot struct {
	towns    map[string]Town
	stations map[string]Station
}

// Index is the master data index. Load replaces the whole snapshot
// atomically; readers never observe a partially-populated catalog.
type Index struct {
	snap atomic.Pointer[snapshot]
}

// NewIndex returns an empty index. Lookups against it fail with
// ErrEmptyCatalog until Load succeeds.
func NewIndex() *Index {
	idx := &Index{}
	idx.snap.Store(&snapshot{
		towns:    map[string]Town{},
		stations: map[string]Station{},
	})
	return idx
}

// Load validates the raw records and publishes a new snapshot. Records
// missing an id or a usable location are skipped and reported; the load only
// fails when nothing valid remains.
func (idx *Index) Load(towns []aemet.TownRecord, stations []aemet.ObservationData, clim []aemet.ClimatologicalStationRecord) (LoadResult, error) {
	next := &snapshot{
		towns:    make(map[string]Town, len(towns)),
		stations: make(map[string]Station, len(stations)+len(clim)),
	}
	var res LoadResult

	for _, rec := range towns {
		town, reason := parseTown(rec)
		if reason != "" {
			res.Skipped = append(res.Skipped, SkippedRecord{Kind: "town", ID: rec.ID, Reason: reason})
			continue
		}
		next.towns[town.ID] = town
	}

	for _, rec := range stations {
		station, reason := parseStation(rec)
		if reason != "" {
			res.Skipped = append(res.Skipped, SkippedRecord{Kind: "station", ID: rec.StationID, Reason: reason})
			continue
		}
		next.stations[station.ID] = station
	}

	for _, rec := range clim {
		station, reason := parseClimatologicalStation(rec)
		if reason != "" {
			res.Skipped = append(res.Skipped, SkippedRecord{Kind: "climatological-station", ID: rec.ID, Reason: reason})
			continue
		}
		// Conventional stations win over climatological duplicates.
		if _, exists := next.stations[station.ID]; !exists {
			next.stations[station.ID] = station
		}
	}

	res.Towns = len(next.towns)
	res.Stations = len(next.stations)

	if res.Towns == 0 && res.Stations == 0 {
		return res, ErrEmptyCatalog
	}

	idx.snap.Store(next)
	return res, nil
}

// Town returns the town with the given id. The master-list "id" prefix is
// accepted.
func (idx *Index) Town(id string) (Town, error) {
	snap := idx.snap.Load()
	town, ok := snap.towns[aemet.ParseTownCode(id)]
	if !ok {
		return Town{}, fmt.Errorf("%w: town %q", ErrNotFound, id)
	}
	return town, nil
}

// Station returns the station with the given id.
func (idx *Index) Station(id string) (Station, error) {
	snap := idx.snap.Load()
	station, ok := snap.stations[id]
	if !ok {
		return Station{}, fmt.Errorf("%w: station %q", ErrNotFound, id)
	}
	return station, nil
}

// NearestStation returns the station closest to point. Equal distances break
// ties toward the lexicographically smaller id, so repeated calls with the
// same catalog always agree.
func (idx *Index) NearestStation(point geo.Point) (Station, float64, error) {
	if err := point.Validate(); err != nil {
		return Station{}, 0, err
	}

	snap := idx.snap.Load()
	if len(snap.stations) == 0 {
		return Station{}, 0, fmt.Errorf("%w: no stations loaded", ErrEmptyCatalog)
	}

	var (
		best     Station
		bestDist float64
		found    bool
	)
	for _, station := range snap.stations {
		dist, err := geo.Distance(point, station.Location)
		if err != nil {
			continue
		}
		if !found || dist < bestDist || (dist == bestDist && station.ID < best.ID) {
			best = station
			bestDist = dist
			found = true
		}
	}
	if !found {
		return Station{}, 0, fmt.Errorf("%w: no stations loaded", ErrEmptyCatalog)
	}
	return best, bestDist, nil
}

// NearestTown returns the town closest to point, with the same determinism
// contract as NearestStation.
func (idx *Index) NearestTown(point geo.Point) (Town, float64, error) {
	if err := point.Validate(); err != nil {
		return Town{}, 0, err
	}

	snap := idx.snap.Load()
	if len(snap.towns) == 0 {
		return Town{}, 0, fmt.Errorf("%w: no towns loaded", ErrEmptyCatalog)
	}

	var (
		best     Town
		bestDist float64
		found    bool
	)
	for _, town := range snap.towns {
		dist, err := geo.Distance(point, town.Location)
		if err != nil {
			continue
		}
		if !found || dist < bestDist || (dist == bestDist && town.ID < best.ID) {
			best = town
			bestDist = dist
			found = true
		}
	}
	if !found {
		return Town{}, 0, fmt.Errorf("%w: no towns loaded", ErrEmptyCatalog)
	}
	return best, bestDist, nil
}

// Counts returns the number of towns and stations in the current snapshot.
func (idx *Index) Counts() (towns, stations int) {
	snap := idx.snap.Load()
	return len(snap.towns), len(snap.stations)
}

func parseTown(rec aemet.TownRecord) (Town, string) {
	if rec.ID == "" {
		return Town{}, "missing id"
	}
	lat, okLat := rec.LatitudeDecimal.Float()
	lon, okLon := rec.LongitudeDecimal.Float()
	if !okLat || !okLon {
		return Town{}, "missing decimal coordinates"
	}
	loc := geo.Point{Latitude: lat, Longitude: lon}
	if err := loc.Validate(); err != nil {
		return Town{}, err.Error()
	}

	town := Town{
		ID:       aemet.ParseTownCode(rec.ID),
		Name:     rec.Name,
		Province: rec.Province,
		Location: loc,
	}
	if alt, ok := rec.Altitude.Float(); ok {
		town.Altitude = &alt
	}
	if residents, ok := rec.Residents.Float(); ok {
		n := int(residents)
		town.Residents = &n
	}
	return town, ""
}

func parseStation(rec aemet.ObservationData) (Station, string) {
	if rec.StationID == "" {
		return Station{}, "missing id"
	}
	if rec.Latitude == nil || rec.Longitude == nil {
		return Station{}, "missing coordinates"
	}
	loc := geo.Point{Latitude: *rec.Latitude, Longitude: *rec.Longitude}
	if err := loc.Validate(); err != nil {
		return Station{}, err.Error()
	}

	return Station{
		ID:       rec.StationID,
		Name:     rec.Name,
		Location: loc,
		Altitude: rec.Altitude,
	}, ""
}

func parseClimatologicalStation(rec aemet.ClimatologicalStationRecord) (Station, string) {
	if rec.ID == "" {
		return Station{}, "missing id"
	}
	lat, err := geo.ParseDMS(rec.Latitude)
	if err != nil {
		return Station{}, err.Error()
	}
	lon, err := geo.ParseDMS(rec.Longitude)
	if err != nil {
		return Station{}, err.Error()
	}
	loc := geo.Point{Latitude: lat, Longitude: lon}
	if err := loc.Validate(); err != nil {
		return Station{}, err.Error()
	}

	station := Station{
		ID:             rec.ID,
		Name:           rec.Name,
		Province:       rec.Province,
		Location:       loc,
		Climatological: true,
	}
	if alt, ok := rec.Altitude.Float(); ok {
		station.Altitude = &alt
	}
	return station, ""
}
