package config

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DavidAlexKelly/edinburgh-city-sim-stream/internal/domain"
)

func TestLoadCities_DefaultsWhenNoPath(t *testing.T) {
	reg, err := LoadCities("")

	require.NoError(t, err)
	assert.Equal(t, []string{"edinburgh", "glasgow"}, reg.IDs())

	city, err := reg.Get("edinburgh")
	require.NoError(t, err)
	assert.Equal(t, "Edinburgh", city.Name)
	assert.Equal(t, "edinburgh/zones.json", city.ZonesFile)
	assert.NotEqual(t, WeatherOffsets{}, city.Offsets, "zero offsets are replaced with derived ones")
}

func TestLoadCities_ParsesYAMLFile(t *testing.T) {
	reg, err := LoadCities(filepath.Join("testdata", "cities.yaml"))

	require.NoError(t, err)
	assert.Equal(t, []string{"aberdeen", "dundee"}, reg.IDs())

	aberdeen, err := reg.Get("aberdeen")
	require.NoError(t, err)
	assert.Equal(t, WeatherOffsets{Temperature: -1.5, Humidity: 5, Wind: 2.0}, aberdeen.Offsets,
		"explicit offsets survive loading")

	dundee, err := reg.Get("dundee")
	require.NoError(t, err)
	assert.Equal(t, DeriveWeatherOffsets("dundee"), dundee.Offsets,
		"records without offsets get derived ones")
}

func TestLoadCities_MissingFileFails(t *testing.T) {
	_, err := LoadCities(filepath.Join("testdata", "nonexistent.yaml"))

	assert.ErrorContains(t, err, "failed to read cities file")
}

func TestLoadCities_EmptyFileFails(t *testing.T) {
	_, err := LoadCities(filepath.Join("testdata", "cities_empty.yaml"))

	assert.ErrorContains(t, err, "defines no cities")
}

func TestNewCityRegistry_RejectsDuplicateIDs(t *testing.T) {
	_, err := NewCityRegistry([]CityConfig{
		{ID: "leith", Name: "Leith", ZonesFile: "a.json", EventsFile: "b.json"},
		{ID: "leith", Name: "Leith Again", ZonesFile: "c.json", EventsFile: "d.json"},
	})

	assert.ErrorContains(t, err, "duplicate city id")
}

func TestNewCityRegistry_Validation(t *testing.T) {
	valid := CityConfig{ID: "leith", Name: "Leith", ZonesFile: "a.json", EventsFile: "b.json"}

	tests := []struct {
		name    string
		mutate  func(*CityConfig)
		wantMsg string
	}{
		{"missing id", func(c *CityConfig) { c.ID = "" }, "missing id"},
		{"missing name", func(c *CityConfig) { c.Name = "" }, "missing name"},
		{"missing zones file", func(c *CityConfig) { c.ZonesFile = "" }, "missing zones_file"},
		{"missing events file", func(c *CityConfig) { c.EventsFile = "" }, "missing events_file"},
		{"temperature offset", func(c *CityConfig) { c.Offsets.Temperature = 11 }, "temperature offset out of range"},
		{"humidity offset", func(c *CityConfig) { c.Offsets.Humidity = -31 }, "humidity offset out of range"},
		{"wind offset", func(c *CityConfig) { c.Offsets.Wind = 10.5 }, "wind offset out of range"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)

			_, err := NewCityRegistry([]CityConfig{c})

			assert.ErrorContains(t, err, tt.wantMsg)
		})
	}
}

func TestCityRegistry_GetUnknown(t *testing.T) {
	reg, err := LoadCities("")
	require.NoError(t, err)

	_, err = reg.Get("atlantis")

	assert.ErrorIs(t, err, domain.ErrUnknownCity)
}

func TestCityRegistry_AllSortedByID(t *testing.T) {
	reg, err := NewCityRegistry([]CityConfig{
		{ID: "glasgow", Name: "Glasgow", ZonesFile: "a.json", EventsFile: "b.json"},
		{ID: "aberdeen", Name: "Aberdeen", ZonesFile: "c.json", EventsFile: "d.json"},
		{ID: "edinburgh", Name: "Edinburgh", ZonesFile: "e.json", EventsFile: "f.json"},
	})
	require.NoError(t, err)

	all := reg.All()

	require.Len(t, all, 3)
	assert.Equal(t, "aberdeen", all[0].ID)
	assert.Equal(t, "edinburgh", all[1].ID)
	assert.Equal(t, "glasgow", all[2].ID)
}

func TestDeriveWeatherOffsets_DeterministicAndBounded(t *testing.T) {
	for _, id := range []string{"edinburgh", "glasgow", "aberdeen", "dundee", "inverness"} {
		offsets := DeriveWeatherOffsets(id)

		assert.Equal(t, offsets, DeriveWeatherOffsets(id), "same id derives the same offsets")
		assert.LessOrEqual(t, math.Abs(offsets.Temperature), 2.5, "city %s", id)
		assert.LessOrEqual(t, math.Abs(offsets.Humidity), 8.0, "city %s", id)
		assert.LessOrEqual(t, math.Abs(offsets.Wind), 1.5, "city %s", id)
	}

	assert.NotEqual(t, DeriveWeatherOffsets("edinburgh"), DeriveWeatherOffsets("glasgow"),
		"different ids separate")
}
