package domain

import (
	"sort"
	"time"
)

// Condition is the canonical weather condition vocabulary.
type Condition string

const (
	ConditionSunny        Condition = "sunny"
	ConditionCloudy       Condition = "cloudy"
	ConditionPartlyCloudy Condition = "partly_cloudy"
	ConditionRainy        Condition = "rainy"
	ConditionStormy       Condition = "stormy"
	ConditionSnowy        Condition = "snowy"
)

// Conditions lists every canonical condition.
var Conditions = []Condition{
	ConditionSunny,
	ConditionCloudy,
	ConditionPartlyCloudy,
	ConditionRainy,
	ConditionStormy,
	ConditionSnowy,
}

// Valid reports whether c is one of the canonical conditions.
func (c Condition) Valid() bool {
	for _, known := range Conditions {
		if c == known {
			return true
		}
	}
	return false
}

// Weather sample provenance tags.
const (
	WeatherSourceHistorical = "historical"
	WeatherSourceSynthetic  = "synthetic"
)

// Weather is one sampled weather state for a simulated timestamp.
type Weather struct {
	Temperature float64   `json:"temperature"`
	Humidity    int       `json:"humidity"`
	WindSpeed   float64   `json:"wind_speed"`
	Condition   Condition `json:"condition"`
	Description string    `json:"description,omitempty"`
	Pressure    int       `json:"pressure"`
	Source      string    `json:"source"`
	Timestamp   time.Time `json:"timestamp"`
}

// WeatherRecord is one row of the historical weather dataset.
type WeatherRecord struct {
	Timestamp   time.Time
	Temperature float64
	Humidity    int
	WindSpeed   float64
	Condition   string
}

// WeatherHistory is an indexed historical time series. It is built once by
// the history provider, never mutated afterwards, and safe for concurrent
// reads by many instances.
type WeatherHistory struct {
	records []WeatherRecord
	index   map[int64]int
}

// NewWeatherHistory sorts records by timestamp and builds the second-exact
// lookup index.
func NewWeatherHistory(records []WeatherRecord) *WeatherHistory {
	sorted := make([]WeatherRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	index := make(map[int64]int, len(sorted))
	for i, r := range sorted {
		index[r.Timestamp.Unix()] = i
	}
	return &WeatherHistory{records: sorted, index: index}
}

// Len returns the number of records.
func (h *WeatherHistory) Len() int { return len(h.records) }

// Span returns the first and last record timestamps, zero times when empty.
func (h *WeatherHistory) Span() (time.Time, time.Time) {
	if len(h.records) == 0 {
		return time.Time{}, time.Time{}
	}
	return h.records[0].Timestamp, h.records[len(h.records)-1].Timestamp
}

// At returns the record for t: an exact second match when present, otherwise
// the nearest neighbour within tolerance. ok is false when nothing qualifies.
func (h *WeatherHistory) At(t time.Time, tolerance time.Duration) (WeatherRecord, bool) {
	if len(h.records) == 0 {
		return WeatherRecord{}, false
	}
	if i, ok := h.index[t.Unix()]; ok {
		return h.records[i], true
	}

	i := sort.Search(len(h.records), func(i int) bool {
		return !h.records[i].Timestamp.Before(t)
	})
	best := -1
	var bestDiff time.Duration
	for _, j := range []int{i - 1, i} {
		if j < 0 || j >= len(h.records) {
			continue
		}
		diff := h.records[j].Timestamp.Sub(t)
		if diff < 0 {
			diff = -diff
		}
		if best == -1 || diff < bestDiff {
			best, bestDiff = j, diff
		}
	}
	if best == -1 || bestDiff > tolerance {
		return WeatherRecord{}, false
	}
	return h.records[best], true
}
