// Package sim contains the tick-based generation engine: the weather
// sampler, the event lifecycle manager, the traffic model, and the
// simulation instance that composes them once per simulated hour.
package sim

import (
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/DavidAlexKelly/edinburgh-city-sim-stream/internal/domain"
	"github.com/DavidAlexKelly/edinburgh-city-sim-stream/pkg/utils"
)

// historyTolerance is how far a historical record may sit from the requested
// timestamp before the engine falls back to synthesis.
const historyTolerance = time.Minute

// anchorTrailingBuffer keeps the anchor away from the end of the dataset so
// replay has runway before running off the series.
const anchorTrailingBuffer = 30 * 24 * time.Hour

// dailyAmplitude is the synthetic day/night temperature swing in degrees.
const dailyAmplitude = 5.0

// WeatherOffsets are the per-city adjustments applied on top of the shared
// base dataset.
type WeatherOffsets struct {
	Temperature float64
	Humidity    float64
	Wind        float64
}

// WeatherEngine produces a weather sample for any simulated timestamp.
// With a historical dataset it replays records offset from a fixed anchor;
// without one it synthesizes samples. It never blocks on missing data and
// never returns an error to callers.
type WeatherEngine struct {
	history  *domain.WeatherHistory
	anchor   time.Time
	simStart time.Time
	offsets  WeatherOffsets
	rng      *rand.Rand
}

// NewWeatherEngine creates an engine for an instance whose simulated clock
// starts at simStart. history may be nil, which pins the engine to fallback
// synthesis for its lifetime.
func NewWeatherEngine(history *domain.WeatherHistory, simStart time.Time, offsets WeatherOffsets, rng *rand.Rand) *WeatherEngine {
	e := &WeatherEngine{
		history:  history,
		simStart: simStart,
		offsets:  offsets,
		rng:      rng,
	}
	if history != nil && history.Len() > 0 {
		e.anchor = pickAnchor(history, rng)
	} else {
		e.history = nil
		logrus.Warn("weather: no historical dataset available, synthesizing for engine lifetime")
	}
	return e
}

// pickAnchor chooses the fixed random anchor inside the dataset range,
// excluding the trailing buffer. Datasets shorter than the buffer anchor at
// their first record.
func pickAnchor(history *domain.WeatherHistory, rng *rand.Rand) time.Time {
	first, last := history.Span()
	usable := last.Add(-anchorTrailingBuffer)
	if !usable.After(first) {
		return first
	}
	return first.Add(time.Duration(rng.Int63n(int64(usable.Sub(first)))))
}

// SampleAt returns the weather for the requested simulated time. Historical
// replay applies when a record exists within tolerance of anchor+elapsed;
// otherwise the sample is synthesized.
func (e *WeatherEngine) SampleAt(t time.Time) domain.Weather {
	if e.history != nil {
		target := e.anchor.Add(t.Sub(e.simStart))
		if rec, ok := e.history.At(target, historyTolerance); ok {
			return e.fromRecord(rec, t)
		}
	}
	return e.synthesize(t)
}

func (e *WeatherEngine) fromRecord(rec domain.WeatherRecord, t time.Time) domain.Weather {
	condition := CanonicalCondition(rec.Condition)
	return domain.Weather{
		Temperature: utils.RoundTo(rec.Temperature+e.offsets.Temperature, 1),
		Humidity:    clampHumidity(float64(rec.Humidity) + e.offsets.Humidity),
		WindSpeed:   utils.RoundTo(math.Max(rec.WindSpeed+e.offsets.Wind, 0), 1),
		Condition:   condition,
		Description: rec.Condition,
		Pressure:    estimatePressure(condition),
		Source:      domain.WeatherSourceHistorical,
		Timestamp:   t,
	}
}

// synthesize builds a sample from a seasonal daily temperature curve plus
// bounded randomness. Humidity, wind, condition and pressure follow the same
// derivation rules as historical mode.
func (e *WeatherEngine) synthesize(t time.Time) domain.Weather {
	condition := e.seasonalCondition(t.Month())

	// Sinusoid peaking mid-afternoon, trough in the small hours.
	temp := seasonalBase(t.Month()) +
		dailyAmplitude*math.Sin(2*math.Pi*float64(t.Hour()-9)/24) +
		(e.rng.Float64()*2-1)*1.5
	humidity := float64(baseHumidity(condition)+e.rng.Intn(11)-5) + e.offsets.Humidity
	wind := 2 + e.rng.Float64()*8 + e.offsets.Wind

	return domain.Weather{
		Temperature: utils.RoundTo(temp+e.offsets.Temperature, 1),
		Humidity:    clampHumidity(humidity),
		WindSpeed:   utils.RoundTo(math.Max(wind, 0), 1),
		Condition:   condition,
		Pressure:    estimatePressure(condition),
		Source:      domain.WeatherSourceSynthetic,
		Timestamp:   t,
	}
}

func (e *WeatherEngine) seasonalCondition(m time.Month) domain.Condition {
	return conditionChoices[utils.WeightedIndex(e.rng, seasonWeights(m))]
}

var conditionChoices = []domain.Condition{
	domain.ConditionSunny,
	domain.ConditionPartlyCloudy,
	domain.ConditionCloudy,
	domain.ConditionRainy,
	domain.ConditionStormy,
	domain.ConditionSnowy,
}

func seasonWeights(m time.Month) []float64 {
	switch {
	case m == time.December || m <= time.February:
		return []float64{0.08, 0.17, 0.35, 0.22, 0.05, 0.13}
	case m <= time.May:
		return []float64{0.20, 0.30, 0.25, 0.20, 0.05, 0}
	case m <= time.August:
		return []float64{0.35, 0.30, 0.15, 0.15, 0.05, 0}
	default:
		return []float64{0.12, 0.25, 0.30, 0.25, 0.08, 0}
	}
}

func seasonalBase(m time.Month) float64 {
	switch {
	case m == time.December || m <= time.February:
		return 3.5
	case m <= time.May:
		return 9.0
	case m <= time.August:
		return 15.5
	default:
		return 10.0
	}
}

func baseHumidity(c domain.Condition) int {
	switch c {
	case domain.ConditionRainy, domain.ConditionStormy:
		return 85
	case domain.ConditionSnowy:
		return 80
	case domain.ConditionCloudy:
		return 75
	case domain.ConditionPartlyCloudy:
		return 65
	default:
		return 55
	}
}

func clampHumidity(v float64) int {
	return int(math.Round(utils.Clamp(v, 20, 100)))
}

// CanonicalCondition maps a free-text description onto the canonical
// vocabulary. Severe conditions take precedence, so "thunderstorm with rain"
// is stormy rather than rainy.
func CanonicalCondition(description string) domain.Condition {
	desc := strings.ToLower(description)
	switch {
	case strings.Contains(desc, "thunder") || strings.Contains(desc, "storm"):
		return domain.ConditionStormy
	case strings.Contains(desc, "snow") || strings.Contains(desc, "sleet"):
		return domain.ConditionSnowy
	case strings.Contains(desc, "rain") || strings.Contains(desc, "drizzle") || strings.Contains(desc, "shower"):
		return domain.ConditionRainy
	case strings.Contains(desc, "partly"):
		return domain.ConditionPartlyCloudy
	case strings.Contains(desc, "cloud") || strings.Contains(desc, "overcast") || strings.Contains(desc, "mist") || strings.Contains(desc, "fog"):
		return domain.ConditionCloudy
	case strings.Contains(desc, "clear") || strings.Contains(desc, "sun"):
		return domain.ConditionSunny
	default:
		return domain.ConditionPartlyCloudy
	}
}

// estimatePressure maps a condition onto a plausible sea-level pressure in
// hPa.
func estimatePressure(c domain.Condition) int {
	switch c {
	case domain.ConditionStormy:
		return 985
	case domain.ConditionSnowy:
		return 996
	case domain.ConditionRainy:
		return 1002
	case domain.ConditionCloudy:
		return 1009
	case domain.ConditionPartlyCloudy:
		return 1014
	default:
		return 1022
	}
}
