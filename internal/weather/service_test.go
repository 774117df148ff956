package weather

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/apalacios/aemet-opendata/internal/aemet"
	"github.com/apalacios/aemet-opendata/internal/catalog"
)

type fakeAgency struct {
	towns    []aemet.TownRecord
	stations []aemet.ObservationData
	clim     []aemet.ClimatologicalStationRecord

	daily      *aemet.DailyForecastResponse
	dailyErr   error
	hourly     *aemet.HourlyForecastResponse
	hourlyErr  error
	samples    []aemet.ObservationData
	samplesErr error

	climCalled bool
}

func (f *fakeAgency) Towns(context.Context) ([]aemet.TownRecord, error) { return f.towns, nil }

func (f *fakeAgency) ObservationStations(context.Context) ([]aemet.ObservationData, error) {
	return f.stations, nil
}

func (f *fakeAgency) ClimatologicalStations(context.Context) ([]aemet.ClimatologicalStationRecord, error) {
	f.climCalled = true
	return f.clim, nil
}

func (f *fakeAgency) TownForecastDaily(context.Context, string) (*aemet.DailyForecastResponse, error) {
	return f.daily, f.dailyErr
}

func (f *fakeAgency) TownForecastHourly(context.Context, string) (*aemet.HourlyForecastResponse, error) {
	return f.hourly, f.hourlyErr
}

func (f *fakeAgency) StationObservations(context.Context, string) ([]aemet.ObservationData, error) {
	return f.samples, f.samplesErr
}

type fakeStore struct {
	saved map[string][]Snapshot
}

func newFakeStore() *fakeStore { return &fakeStore{saved: make(map[string][]Snapshot)} }

func (s *fakeStore) SaveSnapshot(key string, snap Snapshot) {
	s.saved[key] = append(s.saved[key], snap)
}

func (s *fakeStore) GetLatest(key string) (Snapshot, error) {
	snaps := s.saved[key]
	if len(snaps) == 0 {
		return Snapshot{}, errors.New("empty")
	}
	return snaps[len(snaps)-1], nil
}

func (s *fakeStore) GetRange(key string, from, to time.Time) ([]Snapshot, error) {
	return s.saved[key], nil
}

func testAgency() *fakeAgency {
	return &fakeAgency{
		towns: []aemet.TownRecord{
			{ID: "id28065", Name: "Getafe", Province: "Madrid", LatitudeDecimal: "40.3047", LongitudeDecimal: "-3.7311"},
		},
		stations: []aemet.ObservationData{
			{StationID: "3200", Name: "GETAFE", Latitude: f64(40.2997), Longitude: f64(-3.7225)},
		},
		daily: &aemet.DailyForecastResponse{
			Days: []aemet.DailyForecastDay{
				{Date: "2026-08-29T00:00:00", SkyState: []aemet.PeriodValue{{Value: "11", Period: "00-24"}},
					Temperature: aemet.RangeValue{Max: "31", Min: "18"}},
			},
		},
		hourly: &aemet.HourlyForecastResponse{
			Days: []aemet.HourlyForecastDay{
				{Date: "2026-08-29T00:00:00",
					SkyState:    []aemet.PeriodValue{{Value: "11", Period: "12"}},
					Temperature: []aemet.PeriodValue{{Value: "27", Period: "12"}}},
			},
		},
		samples: []aemet.ObservationData{
			{StationID: "3200", Timestamp: "2026-08-29T10:00:00", Temperature: f64(24.5)},
		},
	}
}

func newTestService(t *testing.T, agency *fakeAgency, store Store, opts Options) *Service {
	t.Helper()

	if opts.now == nil {
		opts.now = func() time.Time {
			return time.Date(2026, 8, 29, 11, 0, 0, 0, time.UTC)
		}
	}
	svc := NewService(agency, catalog.NewIndex(), store, opts)
	if _, err := svc.LoadCatalog(context.Background()); err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	return svc
}

func TestServiceGetSnapshot(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, testAgency(), store, Options{StationData: true})

	snap, err := svc.GetSnapshot(context.Background(), Query{TownID: "id28065"})
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}

	if snap.ID == "" {
		t.Error("snapshot has no id")
	}
	if len(snap.Failures) != 0 {
		t.Fatalf("failures = %+v, want none", snap.Failures)
	}
	if len(snap.Daily) != 1 || len(snap.Hourly) != 1 {
		t.Fatalf("got %d daily / %d hourly entries, want 1/1", len(snap.Daily), len(snap.Hourly))
	}
	if snap.Current == nil || snap.Current.Temperature == nil || *snap.Current.Temperature != 24.5 {
		t.Fatalf("current = %+v, want the station reading", snap.Current)
	}
	if snap.Current.Outdated {
		t.Error("observation one hour old must not be flagged outdated")
	}
	if snap.Station == nil || snap.Station.ID != "3200" {
		t.Errorf("station = %+v, want 3200", snap.Station)
	}

	saved, err := store.GetLatest("town:28065")
	if err != nil {
		t.Fatalf("snapshot was not saved: %v", err)
	}
	if saved.ID != snap.ID {
		t.Errorf("saved snapshot id = %q, want %q", saved.ID, snap.ID)
	}
}

func TestServiceGetSnapshotOutdatedObservation(t *testing.T) {
	agency := testAgency()
	agency.samples = []aemet.ObservationData{
		{StationID: "3200", Timestamp: "2026-08-29T08:00:00", Temperature: f64(19)},
	}
	svc := newTestService(t, agency, nil, Options{StationData: true})

	snap, err := svc.GetSnapshot(context.Background(), Query{TownID: "id28065"})
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if snap.Current == nil || !snap.Current.Outdated {
		t.Fatalf("current = %+v, want the stale flag set past the freshness window", snap.Current)
	}
}

func TestServiceGetSnapshotPartialFailure(t *testing.T) {
	agency := testAgency()
	agency.samplesErr = errors.New("station endpoint down")
	svc := newTestService(t, agency, nil, Options{StationData: true})

	snap, err := svc.GetSnapshot(context.Background(), Query{TownID: "id28065"})
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}

	if snap.Current != nil {
		t.Errorf("current = %+v, want unset on observation failure", snap.Current)
	}
	if len(snap.Daily) != 1 {
		t.Errorf("daily entries = %d, want the forecast kept", len(snap.Daily))
	}
	if len(snap.Failures) != 1 || snap.Failures[0].Part != PartObservation {
		t.Fatalf("failures = %+v, want one observation failure", snap.Failures)
	}
}

func TestServiceGetSnapshotTotalFailure(t *testing.T) {
	agency := testAgency()
	agency.dailyErr = errors.New("boom")
	agency.hourlyErr = errors.New("boom")
	agency.samplesErr = errors.New("boom")
	svc := newTestService(t, agency, nil, Options{StationData: true})

	if _, err := svc.GetSnapshot(context.Background(), Query{TownID: "id28065"}); !errors.Is(err, ErrSnapshotFailed) {
		t.Fatalf("err = %v, want ErrSnapshotFailed", err)
	}
}

func TestServiceGetSnapshotWithoutStationData(t *testing.T) {
	agency := testAgency()
	agency.samplesErr = errors.New("must not be called")
	svc := newTestService(t, agency, nil, Options{})

	snap, err := svc.GetSnapshot(context.Background(), Query{TownID: "id28065"})
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if snap.Current != nil {
		t.Errorf("current = %+v, want none when station data is disabled", snap.Current)
	}
	if len(snap.Failures) != 0 {
		t.Errorf("failures = %+v, want none: the observation part was never attempted", snap.Failures)
	}
}

func TestServiceGetSnapshotInvalidQuery(t *testing.T) {
	svc := newTestService(t, testAgency(), nil, Options{})
	if _, err := svc.GetSnapshot(context.Background(), Query{}); !errors.Is(err, ErrInvalidQuery) {
		t.Fatalf("err = %v, want ErrInvalidQuery", err)
	}
}

func TestServiceLoadCatalogClimatology(t *testing.T) {
	agency := testAgency()
	agency.clim = []aemet.ClimatologicalStationRecord{
		{ID: "3194U", Name: "MADRID AEMET", Province: "MADRID", Latitude: "403040N", Longitude: "0034102W"},
	}
	svc := newTestService(t, agency, nil, Options{Climatology: true})

	if !agency.climCalled {
		t.Fatal("climatological inventory was not fetched")
	}
	station, err := svc.Station("3194U")
	if err != nil {
		t.Fatalf("Station: %v", err)
	}
	if !station.Climatological {
		t.Errorf("station = %+v, want the climatological flag", station)
	}
}

func TestServiceTownLookup(t *testing.T) {
	svc := newTestService(t, testAgency(), nil, Options{})

	town, err := svc.Town("28065")
	if err != nil {
		t.Fatalf("Town: %v", err)
	}
	if town.Name != "Getafe" {
		t.Errorf("town = %+v", town)
	}
	if _, err := svc.Town("00000"); !errors.Is(err, catalog.ErrNotFound) {
		t.Errorf("err = %v, want catalog.ErrNotFound", err)
	}
}
