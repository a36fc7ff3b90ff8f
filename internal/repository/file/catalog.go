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

// CatalogRepository implements domain.EventCatalogProvider over per-city
// JSON files.
type CatalogRepository struct {
	dataDir string
	cities  *config.CityRegistry

	mu    sync.RWMutex
	cache map[string][]domain.EventTemplate
}

// NewCatalogRepository creates an event catalog repository rooted at dataDir.
func NewCatalogRepository(dataDir string, cities *config.CityRegistry) *CatalogRepository {
	return &CatalogRepository{
		dataDir: dataDir,
		cities:  cities,
		cache:   make(map[string][]domain.EventTemplate),
	}
}

// Load returns the city's event templates, reading the file on first use.
func (r *CatalogRepository) Load(cityID string) ([]domain.EventTemplate, error) {
	r.mu.RLock()
	templates, ok := r.cache[cityID]
	r.mu.RUnlock()
	if ok {
		return templates, nil
	}

	cfg, err := r.cities.Get(cityID)
	if err != nil {
		return nil, err
	}
	templates, err = readCatalog(filepath.Join(r.dataDir, cfg.EventsFile))
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.cache[cityID]; ok {
		return cached, nil
	}
	r.cache[cityID] = templates
	return templates, nil
}

func readCatalog(path string) ([]domain.EventTemplate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &domain.DataLoadError{Resource: "event catalog", Path: path, Err: err}
	}

	var templates []domain.EventTemplate
	if err := json.Unmarshal(data, &templates); err != nil {
		return nil, &domain.DataLoadError{Resource: "event catalog", Path: path, Err: err}
	}
	if len(templates) == 0 {
		return nil, &domain.DataLoadError{Resource: "event catalog", Path: path, Err: fmt.Errorf("no templates defined")}
	}
	for i, t := range templates {
		if err := validateTemplate(t); err != nil {
			return nil, &domain.DataLoadError{Resource: "event catalog", Path: path, Err: fmt.Errorf("template %d: %w", i, err)}
		}
	}
	return templates, nil
}

func validateTemplate(t domain.EventTemplate) error {
	switch {
	case t.Type == "":
		return fmt.Errorf("missing type")
	case t.Name == "":
		return fmt.Errorf("%s: missing name", t.Type)
	case len(t.Zones) == 0:
		return fmt.Errorf("%s: no affected zones", t.Type)
	case t.ImpactFactor < 0 || t.ImpactFactor > 2:
		return fmt.Errorf("%s: impact_factor %.2f outside [0, 2]", t.Type, t.ImpactFactor)
	case t.StartHour < 0 || t.StartHour > 23:
		return fmt.Errorf("%s: start_hour %d outside [0, 23]", t.Type, t.StartHour)
	case t.DurationHours <= 0:
		return fmt.Errorf("%s: duration_hours must be positive", t.Type)
	}
	return nil
}
