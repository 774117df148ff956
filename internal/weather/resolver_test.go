package weather

import (
	"errors"
	"testing"

	"github.com/apalacios/aemet-opendata/internal/aemet"
	"github.com/apalacios/aemet-opendata/internal/catalog"
	"github.com/apalacios/aemet-opendata/internal/geo"
)

func testIndex(t *testing.T) *catalog.Index {
	t.Helper()

	towns := []aemet.TownRecord{
		{ID: "id28065", Name: "Getafe", Province: "Madrid", LatitudeDecimal: "40.3047", LongitudeDecimal: "-3.7311"},
		{ID: "id28079", Name: "Madrid", Province: "Madrid", LatitudeDecimal: "40.4168", LongitudeDecimal: "-3.7038"},
	}
	stations := []aemet.ObservationData{
		{StationID: "3195", Name: "MADRID RETIRO", Latitude: f64(40.4117), Longitude: f64(-3.6781)},
		{StationID: "3200", Name: "GETAFE", Latitude: f64(40.2997), Longitude: f64(-3.7225)},
	}

	idx := catalog.NewIndex()
	if _, err := idx.Load(towns, stations, nil); err != nil {
		t.Fatalf("loading test catalog: %v", err)
	}
	return idx
}

func TestResolveByTown(t *testing.T) {
	r := NewResolver(testIndex(t))

	res, err := r.Resolve(Query{TownID: "id28065"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Town == nil || res.Town.ID != "28065" {
		t.Fatalf("town = %+v, want 28065", res.Town)
	}
	if res.Station == nil || res.Station.ID != "3200" {
		t.Fatalf("station = %+v, want 3200 (closest to the town)", res.Station)
	}
	if res.StationDistanceKm <= 0 || res.StationDistanceKm > 5 {
		t.Errorf("distance = %v km, want a small positive value", res.StationDistanceKm)
	}
	if res.Point != res.Town.Location {
		t.Errorf("point = %v, want the town's own coordinates", res.Point)
	}
}

func TestResolveByCoordinate(t *testing.T) {
	r := NewResolver(testIndex(t))

	res, err := r.Resolve(Query{Coordinate: &geo.Point{Latitude: 40.4, Longitude: -3.7}})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Station == nil || res.Station.ID != "3195" {
		t.Fatalf("station = %+v, want 3195", res.Station)
	}
	if res.Town == nil || res.Town.ID != "28079" {
		t.Fatalf("town = %+v, want the nearest town 28079", res.Town)
	}
}

func TestResolveInvalidQueries(t *testing.T) {
	r := NewResolver(testIndex(t))

	cases := []Query{
		{},
		{TownID: "id28065", Coordinate: &geo.Point{Latitude: 40, Longitude: -3}},
	}
	for _, q := range cases {
		if _, err := r.Resolve(q); !errors.Is(err, ErrInvalidQuery) {
			t.Errorf("Resolve(%+v) err = %v, want ErrInvalidQuery", q, err)
		}
	}
}

func TestResolveUnknownTown(t *testing.T) {
	r := NewResolver(testIndex(t))
	if _, err := r.Resolve(Query{TownID: "id99999"}); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("err = %v, want catalog.ErrNotFound", err)
	}
}

func TestResolveBadCoordinate(t *testing.T) {
	r := NewResolver(testIndex(t))
	q := Query{Coordinate: &geo.Point{Latitude: 123, Longitude: 0}}
	if _, err := r.Resolve(q); !errors.Is(err, geo.ErrInvalidCoordinate) {
		t.Fatalf("err = %v, want geo.ErrInvalidCoordinate", err)
	}
}
