package config

import (
	"fmt"
	"hash/fnv"
	"math"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/DavidAlexKelly/edinburgh-city-sim-stream/internal/domain"
	"github.com/DavidAlexKelly/edinburgh-city-sim-stream/pkg/utils"
)

// WeatherOffsets differentiates a city's weather from the shared base
// dataset. All-zero offsets are replaced at load time with deterministic
// hash-derived defaults.
type WeatherOffsets struct {
	Temperature float64 `yaml:"temperature"`
	Humidity    float64 `yaml:"humidity"`
	Wind        float64 `yaml:"wind"`
}

// CityConfig is the explicit per-city configuration record. Every field is
// validated when the registry is built. File paths are relative to the data
// directory.
type CityConfig struct {
	ID         string         `yaml:"id"`
	Name       string         `yaml:"name"`
	ZonesFile  string         `yaml:"zones_file"`
	EventsFile string         `yaml:"events_file"`
	Offsets    WeatherOffsets `yaml:"weather_offsets"`
}

func (c CityConfig) validate() error {
	switch {
	case c.ID == "":
		return fmt.Errorf("missing id")
	case c.Name == "":
		return fmt.Errorf("city %q: missing name", c.ID)
	case c.ZonesFile == "":
		return fmt.Errorf("city %q: missing zones_file", c.ID)
	case c.EventsFile == "":
		return fmt.Errorf("city %q: missing events_file", c.ID)
	case math.Abs(c.Offsets.Temperature) > 10:
		return fmt.Errorf("city %q: temperature offset out of range", c.ID)
	case math.Abs(c.Offsets.Humidity) > 30:
		return fmt.Errorf("city %q: humidity offset out of range", c.ID)
	case math.Abs(c.Offsets.Wind) > 10:
		return fmt.Errorf("city %q: wind offset out of range", c.ID)
	}
	return nil
}

// CityRegistry looks up validated city records by id.
type CityRegistry struct {
	cities map[string]CityConfig
}

// DefaultCities returns the built-in records used when no cities file is
// configured.
func DefaultCities() []CityConfig {
	return []CityConfig{
		{ID: "edinburgh", Name: "Edinburgh", ZonesFile: "edinburgh/zones.json", EventsFile: "edinburgh/events.json"},
		{ID: "glasgow", Name: "Glasgow", ZonesFile: "glasgow/zones.json", EventsFile: "glasgow/events.json"},
	}
}

// LoadCities builds a registry from a YAML file, or from the built-in
// defaults when path is empty.
func LoadCities(path string) (*CityRegistry, error) {
	cities := DefaultCities()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: failed to read cities file: %w", err)
		}
		var file struct {
			Cities []CityConfig `yaml:"cities"`
		}
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("config: failed to parse cities file: %w", err)
		}
		if len(file.Cities) == 0 {
			return nil, fmt.Errorf("config: cities file %s defines no cities", path)
		}
		cities = file.Cities
	}
	return NewCityRegistry(cities)
}

// NewCityRegistry validates the records and builds the lookup.
func NewCityRegistry(cities []CityConfig) (*CityRegistry, error) {
	byID := make(map[string]CityConfig, len(cities))
	for i, c := range cities {
		if err := c.validate(); err != nil {
			return nil, fmt.Errorf("config: city record %d: %w", i, err)
		}
		if _, dup := byID[c.ID]; dup {
			return nil, fmt.Errorf("config: duplicate city id %q", c.ID)
		}
		if c.Offsets == (WeatherOffsets{}) {
			c.Offsets = DeriveWeatherOffsets(c.ID)
		}
		byID[c.ID] = c
	}
	return &CityRegistry{cities: byID}, nil
}

// Get returns the record for id, or domain.ErrUnknownCity.
func (r *CityRegistry) Get(id string) (CityConfig, error) {
	c, ok := r.cities[id]
	if !ok {
		return CityConfig{}, fmt.Errorf("%w: %q", domain.ErrUnknownCity, id)
	}
	return c, nil
}

// IDs returns the configured city ids, sorted.
func (r *CityRegistry) IDs() []string {
	ids := make([]string, 0, len(r.cities))
	for id := range r.cities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// All returns every city record, sorted by id.
func (r *CityRegistry) All() []CityConfig {
	out := make([]CityConfig, 0, len(r.cities))
	for _, id := range r.IDs() {
		out = append(out, r.cities[id])
	}
	return out
}

// DeriveWeatherOffsets maps an FNV-1a hash of the city id onto bounded
// offsets, so cities sharing the base dataset stay distinguishable without
// explicit configuration.
func DeriveWeatherOffsets(cityID string) WeatherOffsets {
	h := fnv.New64a()
	h.Write([]byte(cityID))
	sum := h.Sum64()
	return WeatherOffsets{
		Temperature: offsetLane(sum, 0, 2.5),
		Humidity:    offsetLane(sum, 1, 8),
		Wind:        offsetLane(sum, 2, 1.5),
	}
}

// offsetLane maps one byte of the hash into [-bound, bound].
func offsetLane(sum uint64, lane uint, bound float64) float64 {
	b := float64((sum>>(lane*8))&0xff) / 255.0
	return utils.RoundTo((b*2-1)*bound, 2)
}
