package weather

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/apalacios/aemet-opendata/internal/aemet"
	"github.com/apalacios/aemet-opendata/internal/catalog"
)

// ErrSnapshotFailed is returned when every attempted snapshot part failed,
// so nothing usable can be handed back.
var ErrSnapshotFailed = errors.New("weather: all snapshot parts failed")

// observationMaxAge is the freshness window beyond which a station
// observation is flagged outdated.
const observationMaxAge = 2 * time.Hour

// Agency is the upstream API contract the service consumes. The concrete
// client owns authentication, retries and connection management.
type Agency interface {
	Towns(ctx context.Context) ([]aemet.TownRecord, error)
	ObservationStations(ctx context.Context) ([]aemet.ObservationData, error)
	ClimatologicalStations(ctx context.Context) ([]aemet.ClimatologicalStationRecord, error)
	TownForecastDaily(ctx context.Context, townID string) (*aemet.DailyForecastResponse, error)
	TownForecastHourly(ctx context.Context, townID string) (*aemet.HourlyForecastResponse, error)
	StationObservations(ctx context.Context, stationID string) ([]aemet.ObservationData, error)
}

// Store is the contract the snapshot cache must satisfy.
type Store interface {
	SaveSnapshot(key string, snapshot Snapshot)
	GetLatest(key string) (Snapshot, error)
	GetRange(key string, from, to time.Time) ([]Snapshot, error)
}

// Options tune the service.
type Options struct {
	// StationData enables the observation fetch; without it snapshots are
	// forecast-only, which spares API quota.
	StationData bool

	// Climatology folds the climatological station inventory into the
	// catalog on load.
	Climatology bool

	// now is a test hook; defaults to time.Now.
	now func() time.Time
}

// Service composes resolution, fetching and normalization into per-location
// weather snapshots.
type Service struct {
	agency   Agency
	index    *catalog.Index
	resolver *Resolver
	store    Store
	opts     Options
}

// NewService creates a Service. store may be nil when history retention is
// not wanted.
func NewService(agency Agency, index *catalog.Index, store Store, opts Options) *Service {
	if opts.now == nil {
		opts.now = time.Now
	}
	return &Service{
		agency:   agency,
		index:    index,
		resolver: NewResolver(index),
		store:    store,
		opts:     opts,
	}
}

// Town looks a town up in the catalog.
func (s *Service) Town(id string) (catalog.Town, error) { return s.index.Town(id) }

// Station looks a station up in the catalog.
func (s *Service) Station(id string) (catalog.Station, error) { return s.index.Station(id) }

// Counts reports how many towns and stations the catalog currently holds.
func (s *Service) Counts() (towns, stations int) { return s.index.Counts() }

// LoadCatalog fetches the town and station master lists and atomically
// replaces the index snapshot. Per-record problems are logged as warnings;
// the load fails only when the upstream fetches fail or nothing valid
// remains.
func (s *Service) LoadCatalog(ctx context.Context) (catalog.LoadResult, error) {
	var (
		wg       sync.WaitGroup
		towns    []aemet.TownRecord
		stations []aemet.ObservationData
		clim     []aemet.ClimatologicalStationRecord

		townsErr, stationsErr, climErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		towns, townsErr = s.agency.Towns(ctx)
	}()
	go func() {
		defer wg.Done()
		stations, stationsErr = s.agency.ObservationStations(ctx)
	}()
	if s.opts.Climatology {
		wg.Add(1)
		go func() {
			defer wg.Done()
			clim, climErr = s.agency.ClimatologicalStations(ctx)
		}()
	}
	wg.Wait()

	if townsErr != nil {
		return catalog.LoadResult{}, fmt.Errorf("loading towns: %w", townsErr)
	}
	if stationsErr != nil {
		return catalog.LoadResult{}, fmt.Errorf("loading stations: %w", stationsErr)
	}
	if climErr != nil {
		return catalog.LoadResult{}, fmt.Errorf("loading climatological stations: %w", climErr)
	}

	res, err := s.index.Load(towns, stations, clim)
	if err != nil {
		return res, err
	}

	for _, skipped := range res.Skipped {
		log.Printf("catalog: skipped %s", skipped)
	}
	log.Printf("catalog: loaded %d towns, %d stations (%d records skipped)",
		res.Towns, res.Stations, len(res.Skipped))

	return res, nil
}

// GetSnapshot resolves the query and assembles a weather snapshot. The
// forecast and observation fetches run concurrently; a failing part leaves
// its slot unset and is recorded on the snapshot. Only when every attempted
// part fails does the call fail as a whole.
func (s *Service) GetSnapshot(ctx context.Context, q Query) (Snapshot, error) {
	res, err := s.resolver.Resolve(q)
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		ID:                uuid.NewString(),
		Location:          res.Point,
		Town:              res.Town,
		Station:           res.Station,
		StationDistanceKm: res.StationDistanceKm,
		RetrievedAt:       s.opts.now().UTC(),
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		attempted int
	)
	fail := func(part SnapshotPart, err error) {
		mu.Lock()
		snap.Failures = append(snap.Failures, PartFailure{Part: part, Error: err.Error()})
		mu.Unlock()
		log.Printf("snapshot %s: %s failed: %v", snap.ID, part, err)
	}

	if res.Town != nil {
		attempted += 2
		wg.Add(2)
		go func() {
			defer wg.Done()
			raw, err := s.agency.TownForecastDaily(ctx, res.Town.ID)
			if err != nil {
				fail(PartForecastDaily, err)
				return
			}
			entries, err := NormalizeForecastDaily(raw)
			if err != nil {
				fail(PartForecastDaily, err)
				return
			}
			mu.Lock()
			snap.Daily = entries
			mu.Unlock()
		}()
		go func() {
			defer wg.Done()
			raw, err := s.agency.TownForecastHourly(ctx, res.Town.ID)
			if err != nil {
				fail(PartForecastHourly, err)
				return
			}
			entries, err := NormalizeForecastHourly(raw)
			if err != nil {
				fail(PartForecastHourly, err)
				return
			}
			mu.Lock()
			snap.Hourly = entries
			mu.Unlock()
		}()
	}

	if s.opts.StationData && res.Station != nil {
		attempted++
		wg.Add(1)
		go func() {
			defer wg.Done()
			samples, err := s.agency.StationObservations(ctx, res.Station.ID)
			if err != nil {
				fail(PartObservation, err)
				return
			}
			obs, err := LatestObservation(samples)
			if err != nil {
				fail(PartObservation, err)
				return
			}
			obs.Outdated = snap.RetrievedAt.Sub(obs.Timestamp) > observationMaxAge
			mu.Lock()
			snap.Current = &obs
			mu.Unlock()
		}()
	}

	wg.Wait()

	if attempted == 0 {
		return Snapshot{}, fmt.Errorf("%w: nothing to fetch for %s", ErrSnapshotFailed, snap.Key())
	}
	if len(snap.Failures) == attempted {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrSnapshotFailed, snap.Failures[0].Error)
	}

	if s.store != nil {
		s.store.SaveSnapshot(snap.Key(), snap)
	}

	return snap, nil
}

// GetLatest returns the most recent cached snapshot for a store key.
func (s *Service) GetLatest(key string) (Snapshot, error) {
	if s.store == nil {
		return Snapshot{}, errors.New("weather: no store configured")
	}
	return s.store.GetLatest(key)
}

// GetRange returns cached snapshots for a store key between from and to.
func (s *Service) GetRange(key string, from, to time.Time) ([]Snapshot, error) {
	if s.store == nil {
		return nil, errors.New("weather: no store configured")
	}
	return s.store.GetRange(key, from, to)
}
