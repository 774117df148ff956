package catalog

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/apalacios/aemet-opendata/internal/aemet"
	"github.com/apalacios/aemet-opendata/internal/geo"
)

func townRecord(id, name, lat, lon string) aemet.TownRecord {
	return aemet.TownRecord{
		ID:               id,
		Name:             name,
		LatitudeDecimal:  aemet.FlexValue(lat),
		LongitudeDecimal: aemet.FlexValue(lon),
	}
}

func stationRecord(id, name string, lat, lon float64) aemet.ObservationData {
	return aemet.ObservationData{
		StationID: id,
		Name:      name,
		Latitude:  &lat,
		Longitude: &lon,
	}
}

func TestLoadSkipsInvalidRecords(t *testing.T) {
	idx := NewIndex()

	towns := []aemet.TownRecord{
		townRecord("id28065", "Getafe", "40.3083", "-3.7327"),
		townRecord("", "No ID", "40.0", "-3.0"),
		townRecord("id99999", "No coords", "", ""),
	}
	stations := []aemet.ObservationData{
		stationRecord("3195", "MADRID RETIRO", 40.41, -3.68),
		{StationID: "9999"}, // missing coordinates
		stationRecord("XXXX", "BROKEN", 95.0, 0.0),
	}

	res, err := idx.Load(towns, stations, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.Towns != 1 || res.Stations != 1 {
		t.Errorf("expected 1 town and 1 station, got %d and %d", res.Towns, res.Stations)
	}
	if len(res.Skipped) != 4 {
		t.Errorf("expected 4 skipped records, got %d: %v", len(res.Skipped), res.Skipped)
	}
}

func TestLoadEmptyCatalog(t *testing.T) {
	idx := NewIndex()

	_, err := idx.Load(
		[]aemet.TownRecord{townRecord("", "", "", "")},
		[]aemet.ObservationData{{StationID: ""}},
		nil,
	)
	if !errors.Is(err, ErrEmptyCatalog) {
		t.Fatalf("expected ErrEmptyCatalog, got %v", err)
	}

	// A failed load must not disturb the previous snapshot.
	if _, err := idx.Load([]aemet.TownRecord{townRecord("id28065", "Getafe", "40.3", "-3.7")}, nil, nil); err != nil {
		t.Fatalf("valid load: %v", err)
	}
	if _, err := idx.Load(nil, []aemet.ObservationData{{StationID: ""}}, nil); !errors.Is(err, ErrEmptyCatalog) {
		t.Fatalf("expected ErrEmptyCatalog, got %v", err)
	}
	if _, err := idx.Town("28065"); err != nil {
		t.Errorf("previous snapshot lost after failed load: %v", err)
	}
}

func TestTownLookup(t *testing.T) {
	idx := NewIndex()
	if _, err := idx.Load([]aemet.TownRecord{townRecord("id28065", "Getafe", "40.3083", "-3.7327")}, nil, nil); err != nil {
		t.Fatalf("Load: %v", err)
	}

	// Both the stripped code and the prefixed master id must resolve.
	for _, id := range []string{"28065", "id28065"} {
		town, err := idx.Town(id)
		if err != nil {
			t.Fatalf("Town(%q): %v", id, err)
		}
		if town.Name != "Getafe" {
			t.Errorf("Town(%q).Name = %q", id, town.Name)
		}
	}

	if _, err := idx.Town("nonexistent"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestNearestStation(t *testing.T) {
	idx := NewIndex()
	stations := []aemet.ObservationData{
		stationRecord("3200", "SEGOVIA", 41.0, -4.0),
		stationRecord("3195", "MADRID RETIRO", 40.45, -3.65),
	}
	if _, err := idx.Load(nil, stations, nil); err != nil {
		t.Fatalf("Load: %v", err)
	}

	station, dist, err := idx.NearestStation(geo.Point{Latitude: 40.4, Longitude: -3.7})
	if err != nil {
		t.Fatalf("NearestStation: %v", err)
	}
	if station.ID != "3195" {
		t.Errorf("expected station 3195, got %s", station.ID)
	}
	if dist <= 0 || dist > 40 {
		t.Errorf("implausible distance %v km", dist)
	}
}

func TestNearestStationTieBreak(t *testing.T) {
	idx := NewIndex()
	// Two stations at the exact same location: ties must break toward the
	// lexicographically smaller id, every time.
	stations := []aemet.ObservationData{
		stationRecord("B200", "SECOND", 41.0, 2.0),
		stationRecord("A100", "FIRST", 41.0, 2.0),
	}
	if _, err := idx.Load(nil, stations, nil); err != nil {
		t.Fatalf("Load: %v", err)
	}

	for i := 0; i < 20; i++ {
		station, _, err := idx.NearestStation(geo.Point{Latitude: 40.5, Longitude: 2.0})
		if err != nil {
			t.Fatalf("NearestStation: %v", err)
		}
		if station.ID != "A100" {
			t.Fatalf("iteration %d: expected A100, got %s", i, station.ID)
		}
	}
}

func TestNearestStationEmptyCatalog(t *testing.T) {
	idx := NewIndex()
	if _, _, err := idx.NearestStation(geo.Point{Latitude: 40, Longitude: -3}); !errors.Is(err, ErrEmptyCatalog) {
		t.Fatalf("expected ErrEmptyCatalog, got %v", err)
	}
}

func TestNearestStationInvalidPoint(t *testing.T) {
	idx := NewIndex()
	if _, err := idx.Load(nil, []aemet.ObservationData{stationRecord("3195", "X", 40, -3)}, nil); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, _, err := idx.NearestStation(geo.Point{Latitude: 91, Longitude: 0}); !errors.Is(err, geo.ErrInvalidCoordinate) {
		t.Fatalf("expected ErrInvalidCoordinate, got %v", err)
	}
}

func TestLoadClimatologicalStations(t *testing.T) {
	idx := NewIndex()
	clim := []aemet.ClimatologicalStationRecord{
		{ID: "3194U", Name: "MADRID CIUDAD UNIVERSITARIA", Province: "MADRID", Latitude: "402706N", Longitude: "034327W", Altitude: "664"},
		{ID: "3195", Name: "DUPLICATE OF CONVENTIONAL", Province: "MADRID", Latitude: "402440N", Longitude: "034041W"},
		{ID: "BAD", Name: "BROKEN COORDS", Latitude: "x", Longitude: "y"},
	}
	conventional := []aemet.ObservationData{stationRecord("3195", "MADRID RETIRO", 40.41, -3.68)}

	res, err := idx.Load(nil, conventional, clim)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.Stations != 2 {
		t.Errorf("expected 2 stations, got %d", res.Stations)
	}
	if len(res.Skipped) != 1 {
		t.Errorf("expected 1 skipped record, got %v", res.Skipped)
	}

	station, err := idx.Station("3194U")
	if err != nil {
		t.Fatalf("Station(3194U): %v", err)
	}
	if !station.Climatological {
		t.Error("expected climatological flag set")
	}
	if station.Location.Latitude < 40.4 || station.Location.Latitude > 40.5 {
		t.Errorf("DMS latitude parsed wrong: %v", station.Location.Latitude)
	}

	// The conventional record wins on duplicate ids.
	retiro, err := idx.Station("3195")
	if err != nil {
		t.Fatalf("Station(3195): %v", err)
	}
	if retiro.Climatological || retiro.Name != "MADRID RETIRO" {
		t.Errorf("conventional station overwritten by climatological duplicate: %+v", retiro)
	}
}

func TestConcurrentLoadAndLookup(t *testing.T) {
	idx := NewIndex()
	if _, err := idx.Load(nil, []aemet.ObservationData{stationRecord("3195", "X", 40, -3)}, nil); err != nil {
		t.Fatalf("Load: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				stations := []aemet.ObservationData{stationRecord(fmt.Sprintf("S%d", n), "X", 40, -3)}
				if _, err := idx.Load(nil, stations, nil); err != nil {
					t.Errorf("Load: %v", err)
					return
				}
			}
		}(i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				// Readers must always see a complete snapshot.
				if _, _, err := idx.NearestStation(geo.Point{Latitude: 40.1, Longitude: -3.1}); err != nil {
					t.Errorf("NearestStation during reload: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
}
