// Package geo provides coordinate types and great-circle distance math.
package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// ErrInvalidCoordinate is returned when a latitude or longitude is out of range.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

const earthRadiusKm = 6371.0088

// Point is an immutable geographic coordinate in decimal degrees.
type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Validate checks that the point lies within valid latitude/longitude ranges.
func (p Point) Validate() error {
	if p.Latitude < -90 || p.Latitude > 90 {
		return fmt.Errorf("%w: latitude %v out of range [-90, 90]", ErrInvalidCoordinate, p.Latitude)
	}
	if p.Longitude < -180 || p.Longitude > 180 {
		return fmt.Errorf("%w: longitude %v out of range [-180, 180]", ErrInvalidCoordinate, p.Longitude)
	}
	return nil
}

func (p Point) String() string {
	return fmt.Sprintf("%.4f,%.4f", p.Latitude, p.Longitude)
}

// Distance returns the great-circle distance between a and b in kilometers.
// It is symmetric and returns 0 for identical points.
func Distance(a, b Point) (float64, error) {
	if err := a.Validate(); err != nil {
		return 0, err
	}
	if err := b.Validate(); err != nil {
		return 0, err
	}
	if a == b {
		return 0, nil
	}

	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon

	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h)), nil
}

// ParseDMS parses a packed degrees-minutes-seconds coordinate string as used
// by the climatological station inventory, e.g. "412330N" or "024512W".
// The trailing letter selects the hemisphere (N/S for latitude, E/W for
// longitude; the upstream also uses "O" for west).
func ParseDMS(s string) (float64, error) {
	if len(s) < 7 {
		return 0, fmt.Errorf("%w: DMS string %q too short", ErrInvalidCoordinate, s)
	}

	deg, err := strconv.Atoi(s[:len(s)-5])
	if err != nil {
		return 0, fmt.Errorf("%w: DMS degrees in %q: %v", ErrInvalidCoordinate, s, err)
	}
	min, err := strconv.Atoi(s[len(s)-5 : len(s)-3])
	if err != nil {
		return 0, fmt.Errorf("%w: DMS minutes in %q: %v", ErrInvalidCoordinate, s, err)
	}
	sec, err := strconv.Atoi(s[len(s)-3 : len(s)-1])
	if err != nil {
		return 0, fmt.Errorf("%w: DMS seconds in %q: %v", ErrInvalidCoordinate, s, err)
	}

	value := float64(deg) + float64(min)/60 + float64(sec)/3600

	switch s[len(s)-1] {
	case 'N', 'E':
	case 'S', 'W', 'O':
		value = -value
	default:
		return 0, fmt.Errorf("%w: DMS hemisphere %q in %q", ErrInvalidCoordinate, s[len(s)-1:], s)
	}

	return value, nil
}
