// Package file loads the static city datasets (zone topology, event
// catalogs, weather history) from the data directory. Every loader caches
// its result; cached values are immutable and shared read-only across all
// simulation instances.
package file

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/DavidAlexKelly/edinburgh-city-sim-stream/internal/config"
	"github.com/DavidAlexKelly/edinburgh-city-sim-stream/internal/domain"
)

// ZoneRepository implements domain.ZoneProvider over per-city JSON files.
type ZoneRepository struct {
	dataDir string
	cities  *config.CityRegistry

	mu    sync.RWMutex
	cache map[string][]domain.Zone
}

// NewZoneRepository creates a zone repository rooted at dataDir.
func NewZoneRepository(dataDir string, cities *config.CityRegistry) *ZoneRepository {
	return &ZoneRepository{
		dataDir: dataDir,
		cities:  cities,
		cache:   make(map[string][]domain.Zone),
	}
}

// Load returns the city's zones, reading the file on first use.
func (r *ZoneRepository) Load(cityID string) ([]domain.Zone, error) {
	r.mu.RLock()
	zones, ok := r.cache[cityID]
	r.mu.RUnlock()
	if ok {
		return zones, nil
	}

	cfg, err := r.cities.Get(cityID)
	if err != nil {
		return nil, err
	}
	zones, err = readZones(filepath.Join(r.dataDir, cfg.ZonesFile))
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.cache[cityID]; ok {
		return cached, nil
	}
	r.cache[cityID] = zones
	return zones, nil
}

func readZones(path string) ([]domain.Zone, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &domain.DataLoadError{Resource: "zones", Path: path, Err: err}
	}

	var zones []domain.Zone
	if err := json.Unmarshal(data, &zones); err != nil {
		return nil, &domain.DataLoadError{Resource: "zones", Path: path, Err: err}
	}
	if len(zones) == 0 {
		return nil, &domain.DataLoadError{Resource: "zones", Path: path, Err: fmt.Errorf("no zones defined")}
	}
	for i, z := range zones {
		if z.ID == "" {
			return nil, &domain.DataLoadError{Resource: "zones", Path: path, Err: fmt.Errorf("zone %d: missing id", i)}
		}
		if z.StreetCount <= 0 {
			return nil, &domain.DataLoadError{Resource: "zones", Path: path, Err: fmt.Errorf("zone %q: street_count must be positive", z.ID)}
		}
		if len(z.RoadTypes) == 0 {
			return nil, &domain.DataLoadError{Resource: "zones", Path: path, Err: fmt.Errorf("zone %q: missing road_types", z.ID)}
		}
	}
	return zones, nil
}
