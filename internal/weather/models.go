package weather

import (
	"time"

	"github.com/apalacios/aemet-opendata/internal/catalog"
	"github.com/apalacios/aemet-opendata/internal/geo"
)

// Wind bundles direction, speed and gust. Direction is degrees from north;
// nil direction means calm or not reported. Speeds are m/s.
type Wind struct {
	DirectionDeg *float64 `json:"directionDeg,omitempty"`
	SpeedMS      *float64 `json:"speedMs,omitempty"`
	GustMS       *float64 `json:"gustMs,omitempty"`
}

// ForecastEntry is one normalized forecast slot. Daily entries carry the
// max/min pairs; hourly entries carry the point values. Missing upstream
// fields stay nil rather than zero.
type ForecastEntry struct {
	Timestamp time.Time `json:"timestamp"`

	Temperature *float64 `json:"temperatureC,omitempty"`
	TempMax     *float64 `json:"temperatureMaxC,omitempty"`
	TempMin     *float64 `json:"temperatureMinC,omitempty"`
	FeelTemp    *float64 `json:"feelTemperatureC,omitempty"`
	FeelTempMax *float64 `json:"feelTemperatureMaxC,omitempty"`
	FeelTempMin *float64 `json:"feelTemperatureMinC,omitempty"`

	Humidity    *float64 `json:"humidityPercent,omitempty"`
	HumidityMax *float64 `json:"humidityMaxPercent,omitempty"`
	HumidityMin *float64 `json:"humidityMinPercent,omitempty"`

	PrecipProbability *float64 `json:"precipProbabilityPercent,omitempty"`
	Precipitation     *float64 `json:"precipMm,omitempty"`
	SnowProbability   *float64 `json:"snowProbabilityPercent,omitempty"`
	Snow              *float64 `json:"snowMm,omitempty"`
	StormProbability  *float64 `json:"stormProbabilityPercent,omitempty"`

	Condition Condition `json:"condition"`
	Wind      *Wind     `json:"wind,omitempty"`
	UVIndex   *float64  `json:"uvIndex,omitempty"`
}

// ObservationRecord is one normalized station observation. Only the station
// id and timestamp are guaranteed; stations omit offline sensors.
type ObservationRecord struct {
	StationID string    `json:"stationId"`
	Timestamp time.Time `json:"timestamp"`

	Temperature   *float64 `json:"temperatureC,omitempty"`
	TempMax       *float64 `json:"temperatureMaxC,omitempty"`
	TempMin       *float64 `json:"temperatureMinC,omitempty"`
	DewPoint      *float64 `json:"dewPointC,omitempty"`
	Humidity      *float64 `json:"humidityPercent,omitempty"`
	Pressure      *float64 `json:"pressureHpa,omitempty"`
	Precipitation *float64 `json:"precipMm,omitempty"`
	Wind          *Wind    `json:"wind,omitempty"`

	// Outdated flags observations older than the freshness window at
	// snapshot time.
	Outdated bool `json:"outdated,omitempty"`
}

// SnapshotPart identifies one independently-fetched piece of a snapshot.
type SnapshotPart string

const (
	PartForecastDaily  SnapshotPart = "forecast-daily"
	PartForecastHourly SnapshotPart = "forecast-hourly"
	PartObservation    SnapshotPart = "observation"
)

// PartFailure records a non-fatal fetch or normalization failure for one
// snapshot part. Its presence is how callers tell "request failed" apart
// from "agency reports nothing".
type PartFailure struct {
	Part  SnapshotPart `json:"part"`
	Error string       `json:"error"`
}

// Snapshot is the per-location bundle of current conditions and forecast
// horizon returned to callers. It holds ids, not references into the
// catalog, and is owned by the caller once returned.
type Snapshot struct {
	ID       string    `json:"id"`
	Location geo.Point `json:"location"`

	Town    *catalog.Town    `json:"town,omitempty"`
	Station *catalog.Station `json:"station,omitempty"`

	// StationDistanceKm is the great-circle distance between the query
	// location and the resolved station.
	StationDistanceKm float64 `json:"stationDistanceKm"`

	Current *ObservationRecord `json:"current,omitempty"`
	Hourly  []ForecastEntry    `json:"hourly,omitempty"`
	Daily   []ForecastEntry    `json:"daily,omitempty"`

	Failures    []PartFailure `json:"failures,omitempty"`
	RetrievedAt time.Time     `json:"retrievedAt"`
}

// Key returns the store key for the snapshot's resolved location.
func (s Snapshot) Key() string {
	if s.Town != nil {
		return "town:" + s.Town.ID
	}
	if s.Station != nil {
		return "station:" + s.Station.ID
	}
	return "point:" + s.Location.String()
}
