package aemet

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// envelope is the first-step response of most API endpoints. The actual
// payload lives behind the "datos" URL.
type envelope struct {
	Description string `json:"descripcion"`
	State       int    `json:"estado"`
	Data        string `json:"datos"`
	Metadata    string `json:"metadatos"`
}

// FlexValue holds a field the API serves inconsistently as string, number or
// null depending on the endpoint. An absent or empty value decodes to "".
type FlexValue string

func (v *FlexValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = FlexValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*v = FlexValue(n.String())
	return nil
}

// IsEmpty reports whether the value was absent, null or the empty string.
func (v FlexValue) IsEmpty() bool { return v == "" }

// Float parses the value as a float. The precipitation marker "Ip"
// (inapreciable) parses to 0.
func (v FlexValue) Float() (float64, bool) {
	if v.IsEmpty() {
		return 0, false
	}
	if v == "Ip" {
		return 0, true
	}
	f, err := strconv.ParseFloat(string(v), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// TownRecord is one entry of the municipality master list
// (maestro/municipios). IDs arrive prefixed, e.g. "id28065".
type TownRecord struct {
	ID               string    `json:"id"`
	Name             string    `json:"nombre"`
	Province         string    `json:"provincia"`
	Altitude         FlexValue `json:"altitud"`
	Residents        FlexValue `json:"num_hab"`
	LatitudeDecimal  FlexValue `json:"latitud_dec"`
	LongitudeDecimal FlexValue `json:"longitud_dec"`
}

// ObservationData is one sample from a conventional observation station.
// Everything except station id and timestamp is optional: stations only
// report the sensors they have online.
type ObservationData struct {
	StationID     string   `json:"idema"`
	Timestamp     string   `json:"fint"`
	Name          string   `json:"ubi"`
	Latitude      *float64 `json:"lat"`
	Longitude     *float64 `json:"lon"`
	Altitude      *float64 `json:"alt"`
	Temperature   *float64 `json:"ta"`
	TempMax       *float64 `json:"tamax"`
	TempMin       *float64 `json:"tamin"`
	DewPoint      *float64 `json:"tpr"`
	Humidity      *float64 `json:"hr"`
	Pressure      *float64 `json:"pres"`
	PressureSea   *float64 `json:"pres_nmar"`
	Precipitation *float64 `json:"prec"`
	WindDirection *float64 `json:"dv"`
	WindSpeed     *float64 `json:"vv"`
	WindSpeedMax  *float64 `json:"vmax"`
}

// ClimatologicalStationRecord is one entry of the climatological values
// station inventory. Coordinates arrive as packed DMS strings ("412330N").
type ClimatologicalStationRecord struct {
	ID        string    `json:"indicativo"`
	Name      string    `json:"nombre"`
	Province  string    `json:"provincia"`
	Altitude  FlexValue `json:"altitud"`
	Latitude  string    `json:"latitud"`
	Longitude string    `json:"longitud"`
}

// PeriodValue is a forecast value scoped to a period of the day. Daily
// payloads use periods like "00-24"; hourly payloads use "09" for hours and
// "0915" style spans for probabilities.
type PeriodValue struct {
	Value  FlexValue `json:"value"`
	Period string    `json:"periodo"`
}

// RangeValue carries daily max/min pairs (temperature, humidity, feel
// temperature).
type RangeValue struct {
	Max FlexValue `json:"maxima"`
	Min FlexValue `json:"minima"`
}

// DailyWind is the daily forecast wind block: compass direction plus speed
// in km/h for a period of the day.
type DailyWind struct {
	Direction string    `json:"direccion"`
	Speed     FlexValue `json:"velocidad"`
	Period    string    `json:"periodo"`
}

// HourlyWind is the hourly "vientoAndRachaMax" block. Wind entries carry
// direction/speed arrays; gust entries carry only Value. Both share the
// hour period key.
type HourlyWind struct {
	Direction []string    `json:"direccion"`
	Speed     []FlexValue `json:"velocidad"`
	Value     FlexValue   `json:"value"`
	Period    string      `json:"periodo"`
}

// DailyForecastDay is one day of the daily municipality forecast.
type DailyForecastDay struct {
	Date              string        `json:"fecha"`
	SkyState          []PeriodValue `json:"estadoCielo"`
	PrecipProbability []PeriodValue `json:"probPrecipitacion"`
	Temperature       RangeValue    `json:"temperatura"`
	FeelTemperature   RangeValue    `json:"sensTermica"`
	Humidity          RangeValue    `json:"humedadRelativa"`
	Wind              []DailyWind   `json:"viento"`
	UVMax             FlexValue     `json:"uvMax"`
}

// HourlyForecastDay is one day of the hourly municipality forecast.
type HourlyForecastDay struct {
	Date              string        `json:"fecha"`
	Sunrise           string        `json:"orto"`
	Sunset            string        `json:"ocaso"`
	SkyState          []PeriodValue `json:"estadoCielo"`
	Precipitation     []PeriodValue `json:"precipitacion"`
	PrecipProbability []PeriodValue `json:"probPrecipitacion"`
	Snow              []PeriodValue `json:"nieve"`
	SnowProbability   []PeriodValue `json:"probNieve"`
	StormProbability  []PeriodValue `json:"probTormenta"`
	Temperature       []PeriodValue `json:"temperatura"`
	FeelTemperature   []PeriodValue `json:"sensTermica"`
	Humidity          []PeriodValue `json:"humedadRelativa"`
	Wind              []HourlyWind  `json:"vientoAndRachaMax"`
}

// forecastResponse is the generic shell of both forecast payloads.
type forecastResponse[D any] struct {
	Elaborated string `json:"elaborado"`
	Name       string `json:"nombre"`
	Province   string `json:"provincia"`
	Forecast   struct {
		Days []D `json:"dia"`
	} `json:"prediccion"`
}

// DailyForecastResponse is the daily municipality forecast payload.
type DailyForecastResponse struct {
	Elaborated string
	Name       string
	Province   string
	Days       []DailyForecastDay
}

// HourlyForecastResponse is the hourly municipality forecast payload.
type HourlyForecastResponse struct {
	Elaborated string
	Name       string
	Province   string
	Days       []HourlyForecastDay
}
