package weather

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/apalacios/aemet-opendata/internal/aemet"
)

// ErrMalformedPayload is returned when a structurally required field (the
// timestamp) cannot be parsed. Optional fields never fail normalization;
// they stay unset.
var ErrMalformedPayload = errors.New("weather: malformed payload")

// kmhToMS converts the forecast wind speeds (km/h) to the canonical m/s.
// Observation wind arrives in m/s already and passes through unchanged.
const kmhToMS = 1.0 / 3.6

const hoursPerDay = 24

// Daily payloads scope values to day periods. Full-day wins; the afternoon
// halves are fallbacks, mirroring how the agency fills sparse days.
var dailyPeriodPreference = []string{"00-24", "12-24", "18-24"}

// timestampLayouts lists the formats the agency uses across endpoints.
// Forecast dates have no zone designator; observations are UTC.
var timestampLayouts = []string{
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02",
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unparsable timestamp %q", ErrMalformedPayload, s)
}

// dayValue selects a value from a daily period list. Single-element lists
// apply to the whole day; multi-element lists are searched in period
// preference order.
func dayValue(values []aemet.PeriodValue) aemet.FlexValue {
	if len(values) == 1 {
		return values[0].Value
	}
	for _, period := range dailyPeriodPreference {
		for _, v := range values {
			if v.Period == period && !v.Value.IsEmpty() {
				return v.Value
			}
		}
	}
	return ""
}

// hourValue selects the value whose period equals the given hour.
func hourValue(values []aemet.PeriodValue, hour int) aemet.FlexValue {
	for _, v := range values {
		p, err := strconv.Atoi(v.Period)
		if err != nil {
			continue
		}
		if p == hour {
			return v.Value
		}
	}
	return ""
}

// intervalValue selects the value whose "HHHH" span covers the given hour.
// Spans that wrap past midnight are normalized against the smallest end
// offset seen in the list, matching the upstream convention.
func intervalValue(values []aemet.PeriodValue, hour int) aemet.FlexValue {
	periodOffset := -1
	for _, v := range values {
		start, end, ok := splitSpan(v.Period)
		if !ok {
			continue
		}
		if end < start && (periodOffset < 0 || end < periodOffset) {
			periodOffset = end
		}
	}
	if periodOffset < 0 {
		periodOffset = 0
	}

	for _, v := range values {
		start, end, ok := splitSpan(v.Period)
		if !ok {
			continue
		}
		start -= periodOffset
		end -= periodOffset
		h := hour
		if end < start {
			end += hoursPerDay
			if h == 0 {
				h += hoursPerDay
			}
		}
		if start <= h && h < end {
			return v.Value
		}
	}
	return ""
}

func splitSpan(period string) (start, end int, ok bool) {
	if len(period) != 4 {
		return 0, 0, false
	}
	start, err := strconv.Atoi(period[:2])
	if err != nil {
		return 0, 0, false
	}
	end, err = strconv.Atoi(period[2:])
	if err != nil {
		return 0, 0, false
	}
	return start, end, true
}

func floatPtr(v aemet.FlexValue) *float64 {
	if f, ok := v.Float(); ok {
		return &f
	}
	return nil
}

// NormalizeForecastDaily converts a raw daily municipality forecast into
// ordered forecast entries, one per day.
func NormalizeForecastDaily(resp *aemet.DailyForecastResponse) ([]ForecastEntry, error) {
	if resp == nil {
		return nil, fmt.Errorf("%w: nil daily forecast", ErrMalformedPayload)
	}

	entries := make([]ForecastEntry, 0, len(resp.Days))
	for _, day := range resp.Days {
		ts, err := parseTimestamp(day.Date)
		if err != nil {
			return nil, err
		}

		entry := ForecastEntry{
			Timestamp:         ts,
			Condition:         ParseCondition(string(dayValue(day.SkyState))),
			TempMax:           floatPtr(day.Temperature.Max),
			TempMin:           floatPtr(day.Temperature.Min),
			FeelTempMax:       floatPtr(day.FeelTemperature.Max),
			FeelTempMin:       floatPtr(day.FeelTemperature.Min),
			HumidityMax:       floatPtr(day.Humidity.Max),
			HumidityMin:       floatPtr(day.Humidity.Min),
			PrecipProbability: floatPtr(dayValue(day.PrecipProbability)),
			UVIndex:           floatPtr(day.UVMax),
		}
		entry.Wind = dailyWind(day.Wind)

		entries = append(entries, entry)
	}

	return sortDedupEntries(entries), nil
}

// dailyWind picks the day's wind block. Calm ("C") yields no direction and
// no speed, as the upstream reports no measurement for it.
func dailyWind(winds []aemet.DailyWind) *Wind {
	pick := func(period string) *aemet.DailyWind {
		for i := range winds {
			if winds[i].Period == period {
				return &winds[i]
			}
		}
		return nil
	}

	var chosen *aemet.DailyWind
	if len(winds) == 1 {
		chosen = &winds[0]
	} else {
		for _, period := range dailyPeriodPreference {
			if chosen = pick(period); chosen != nil {
				break
			}
		}
	}
	if chosen == nil {
		return nil
	}

	deg, ok := ParseWindDirection(chosen.Direction)
	if !ok {
		return nil
	}
	wind := &Wind{DirectionDeg: &deg}
	if speed, ok := chosen.Speed.Float(); ok {
		ms := speed * kmhToMS
		wind.SpeedMS = &ms
	}
	return wind
}

// NormalizeForecastHourly converts a raw hourly municipality forecast into
// ordered forecast entries, one per hour slot the payload covers. Slots
// without a sky state are skipped: the agency pads past hours of the current
// day with empty blocks.
func NormalizeForecastHourly(resp *aemet.HourlyForecastResponse) ([]ForecastEntry, error) {
	if resp == nil {
		return nil, fmt.Errorf("%w: nil hourly forecast", ErrMalformedPayload)
	}

	var entries []ForecastEntry
	for _, day := range resp.Days {
		dayTS, err := parseTimestamp(day.Date)
		if err != nil {
			return nil, err
		}

		for hour := 0; hour < hoursPerDay; hour++ {
			sky := hourValue(day.SkyState, hour)
			if sky.IsEmpty() {
				continue
			}

			entry := ForecastEntry{
				Timestamp:   dayTS.Add(time.Duration(hour) * time.Hour),
				Condition:   ParseCondition(string(sky)),
				Temperature: floatPtr(hourValue(day.Temperature, hour)),
				FeelTemp:    floatPtr(hourValue(day.FeelTemperature, hour)),
				Humidity:    floatPtr(hourValue(day.Humidity, hour)),
			}

			// Precipitation and snow amounts only mean something when their
			// probability interval is present for the hour.
			if prob := floatPtr(intervalValue(day.PrecipProbability, hour)); prob != nil {
				entry.PrecipProbability = prob
				entry.Precipitation = floatPtr(hourValue(day.Precipitation, hour))
			}
			if prob := floatPtr(intervalValue(day.SnowProbability, hour)); prob != nil {
				entry.SnowProbability = prob
				entry.Snow = floatPtr(hourValue(day.Snow, hour))
			}
			entry.StormProbability = floatPtr(intervalValue(day.StormProbability, hour))
			entry.Wind = hourlyWind(day.Wind, hour)

			entries = append(entries, entry)
		}
	}

	return sortDedupEntries(entries), nil
}

// hourlyWind assembles wind for one hour from the mixed direction/speed and
// gust entries of the "vientoAndRachaMax" block.
func hourlyWind(winds []aemet.HourlyWind, hour int) *Wind {
	var wind *Wind
	for _, w := range winds {
		p, err := strconv.Atoi(w.Period)
		if err != nil || p != hour {
			continue
		}

		if len(w.Direction) > 0 {
			deg, ok := ParseWindDirection(w.Direction[0])
			if !ok {
				continue
			}
			if wind == nil {
				wind = &Wind{}
			}
			wind.DirectionDeg = &deg
			if len(w.Speed) > 0 {
				if speed, ok := w.Speed[0].Float(); ok {
					ms := speed * kmhToMS
					wind.SpeedMS = &ms
				}
			}
		} else if gust, ok := w.Value.Float(); ok {
			if wind == nil {
				wind = &Wind{}
			}
			ms := gust * kmhToMS
			wind.GustMS = &ms
		}
	}
	// A gust without a direction measurement is not a usable wind reading.
	if wind != nil && wind.DirectionDeg == nil {
		return nil
	}
	return wind
}

// NormalizeObservation converts one raw station sample. Station id and
// timestamp are required; every sensor field is optional. Sea-level pressure
// is preferred over the station-level reading when both are present.
func NormalizeObservation(rec aemet.ObservationData) (ObservationRecord, error) {
	if rec.StationID == "" {
		return ObservationRecord{}, fmt.Errorf("%w: observation without station id", ErrMalformedPayload)
	}
	ts, err := parseTimestamp(rec.Timestamp)
	if err != nil {
		return ObservationRecord{}, err
	}

	obs := ObservationRecord{
		StationID:     rec.StationID,
		Timestamp:     ts,
		Temperature:   rec.Temperature,
		TempMax:       rec.TempMax,
		TempMin:       rec.TempMin,
		DewPoint:      rec.DewPoint,
		Humidity:      rec.Humidity,
		Precipitation: rec.Precipitation,
	}

	if rec.PressureSea != nil {
		obs.Pressure = rec.PressureSea
	} else {
		obs.Pressure = rec.Pressure
	}

	if rec.WindDirection != nil || rec.WindSpeed != nil || rec.WindSpeedMax != nil {
		obs.Wind = &Wind{
			DirectionDeg: rec.WindDirection,
			SpeedMS:      rec.WindSpeed,
			GustMS:       rec.WindSpeedMax,
		}
	}

	return obs, nil
}

// LatestObservation normalizes the newest parsable sample of a station
// series. Samples whose timestamp cannot be parsed are skipped; the
// function only fails when no sample survives.
func LatestObservation(samples []aemet.ObservationData) (ObservationRecord, error) {
	var (
		latest ObservationRecord
		found  bool
	)
	for _, sample := range samples {
		obs, err := NormalizeObservation(sample)
		if err != nil {
			continue
		}
		if !found || obs.Timestamp.After(latest.Timestamp) {
			latest = obs
			found = true
		}
	}
	if !found {
		return ObservationRecord{}, fmt.Errorf("%w: no usable observation samples", ErrMalformedPayload)
	}
	return latest, nil
}

// sortDedupEntries orders entries by timestamp and collapses duplicate
// slots, keeping the last occurrence. The upstream occasionally repeats a
// slot with revised values.
func sortDedupEntries(entries []ForecastEntry) []ForecastEntry {
	if len(entries) == 0 {
		return entries
	}

	byTS := make(map[time.Time]ForecastEntry, len(entries))
	for _, e := range entries {
		byTS[e.Timestamp] = e
	}

	out := make([]ForecastEntry, 0, len(byTS))
	for _, e := range byTS {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}
