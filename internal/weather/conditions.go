package weather

// Condition represents a normalized high-level sky condition.
type Condition string

const (
	ConditionUnknown        Condition = "unknown"
	ConditionClearNight     Condition = "clear-night"
	ConditionCloudy         Condition = "cloudy"
	ConditionFog            Condition = "fog"
	ConditionLightning      Condition = "lightning"
	ConditionLightningRainy Condition = "lightning-rainy"
	ConditionPartlyCloudy   Condition = "partly-cloudy"
	ConditionPouring        Condition = "pouring"
	ConditionRainy          Condition = "rainy"
	ConditionSnowy          Condition = "snowy"
	ConditionSunny          Condition = "sunny"
)

// conditionGroups maps each normalized condition to the agency sky-state
// codes it covers. Codes suffixed "n" are the night variants.
var conditionGroups = map[Condition][]string{
	ConditionClearNight: {"11n"},
	ConditionSunny:      {"11"},
	ConditionPartlyCloudy: {
		"12", "12n", // poco nuboso
		"13", "13n", // intervalos nubosos
	},
	ConditionCloudy: {
		"14", "14n", // nuboso
		"15", "15n", // muy nuboso
		"16", "16n", // cubierto
		"17", "17n", // nubes altas
	},
	ConditionRainy: {
		"23", "23n", "24", "24n", "25", "25n", "26", "26n", // con lluvia
		"43", "43n", "44", "44n", "45", "45n", "46", "46n", // lluvia escasa
	},
	ConditionPouring: {"27", "27n"}, // chubascos
	ConditionSnowy: {
		"33", "33n", "34", "34n", "35", "35n", "36", "36n", // con nieve
		"71", "71n", "72", "72n", "73", "73n", "74", "74n", // nieve escasa
	},
	ConditionLightning: {
		"51", "51n", "52", "52n", "53", "53n", "54", "54n", // tormenta
	},
	ConditionLightningRainy: {
		"61", "61n", "62", "62n", "63", "63n", "64", "64n", // tormenta y lluvia
	},
	ConditionFog: {
		"81", "81n", // niebla
		"82", "82n", // bruma
	},
}

// conditionByCode is the flattened code -> condition lookup.
var conditionByCode = func() map[string]Condition {
	m := make(map[string]Condition)
	for cond, codes := range conditionGroups {
		for _, code := range codes {
			m[code] = cond
		}
	}
	return m
}()

// ParseCondition maps an agency sky-state code to a Condition. Codes the
// agency adds over time map to ConditionUnknown instead of breaking
// ingestion.
func ParseCondition(code string) Condition {
	if code == "" {
		return ConditionUnknown
	}
	if cond, ok := conditionByCode[code]; ok {
		return cond
	}
	return ConditionUnknown
}

// windDirectionDeg maps the agency's Spanish compass letters to degrees from
// north. "C" (calma) has no direction.
var windDirectionDeg = map[string]float64{
	"N":  0,
	"NE": 45,
	"E":  90,
	"SE": 135,
	"S":  180,
	"SO": 225,
	"O":  270,
	"NO": 315,
}

// ParseWindDirection converts a compass letter to degrees. The second return
// is false for calm ("C"), empty, or unrecognized directions.
func ParseWindDirection(dir string) (float64, bool) {
	deg, ok := windDirectionDeg[dir]
	return deg, ok
}
