package weather

import (
	"errors"
	"fmt"

	"github.com/apalacios/aemet-opendata/internal/catalog"
	"github.com/apalacios/aemet-opendata/internal/geo"
)

// ErrInvalidQuery is returned when a query does not carry exactly one of
// town id or coordinate.
var ErrInvalidQuery = errors.New("weather: query needs exactly one of town id or coordinate")

// Query identifies a location either by agency town id or by coordinate.
// Exactly one must be set.
type Query struct {
	TownID     string
	Coordinate *geo.Point
}

// Resolution is the outcome of mapping a query onto the catalog: the
// authoritative station for observations, plus the town whose municipality
// forecast applies when the catalog knows one.
type Resolution struct {
	Point             geo.Point
	Town              *catalog.Town
	Station           *catalog.Station
	StationDistanceKm float64
}

// Resolver selects the station and town serving a location.
//
// The agency catalog carries no explicit town-to-station relation, so town
// resolution is geometric: the station nearest to the town's own coordinates
// serves it. Nearest-neighbor search guarantees every valid coordinate
// resolves to some station while the catalog is non-empty.
type Resolver struct {
	index *catalog.Index
}

// NewResolver creates a Resolver over the given index.
func NewResolver(index *catalog.Index) *Resolver {
	return &Resolver{index: index}
}

// Resolve validates the query and dispatches to the town or coordinate path.
func (r *Resolver) Resolve(q Query) (Resolution, error) {
	switch {
	case q.TownID != "" && q.Coordinate != nil:
		return Resolution{}, fmt.Errorf("%w: both supplied", ErrInvalidQuery)
	case q.TownID != "":
		return r.ResolveByTown(q.TownID)
	case q.Coordinate != nil:
		return r.ResolveByCoordinate(*q.Coordinate)
	default:
		return Resolution{}, fmt.Errorf("%w: none supplied", ErrInvalidQuery)
	}
}

// ResolveByTown looks the town up and selects the station nearest to it.
func (r *Resolver) ResolveByTown(townID string) (Resolution, error) {
	town, err := r.index.Town(townID)
	if err != nil {
		return Resolution{}, err
	}

	res := Resolution{Point: town.Location, Town: &town}

	station, dist, err := r.index.NearestStation(town.Location)
	if err != nil {
		if errors.Is(err, catalog.ErrEmptyCatalog) {
			// A town with no station catalog still resolves for
			// forecast-only snapshots.
			return res, nil
		}
		return Resolution{}, err
	}
	res.Station = &station
	res.StationDistanceKm = dist
	return res, nil
}

// ResolveByCoordinate selects the nearest station, and the nearest town when
// towns are loaded, for an arbitrary coordinate.
func (r *Resolver) ResolveByCoordinate(point geo.Point) (Resolution, error) {
	if err := point.Validate(); err != nil {
		return Resolution{}, err
	}

	res := Resolution{Point: point}

	station, dist, err := r.index.NearestStation(point)
	if err != nil {
		return Resolution{}, err
	}
	res.Station = &station
	res.StationDistanceKm = dist

	if town, _, err := r.index.NearestTown(point); err == nil {
		res.Town = &town
	}

	return res, nil
}
