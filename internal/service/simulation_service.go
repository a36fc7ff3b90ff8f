// Package service owns the instance registry and composes providers,
// engines and sinks into running simulations.
package service

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/DavidAlexKelly/edinburgh-city-sim-stream/internal/config"
	"github.com/DavidAlexKelly/edinburgh-city-sim-stream/internal/domain"
	"github.com/DavidAlexKelly/edinburgh-city-sim-stream/internal/sim"
)

// Deps carries everything the simulation service needs. Pusher may be nil
// when no external sink is configured.
type Deps struct {
	Cities                *config.CityRegistry
	Zones                 domain.ZoneProvider
	Catalog               domain.EventCatalogProvider
	Weather               domain.WeatherHistoryProvider
	Recorder              domain.SnapshotRecorder
	Pusher                domain.TelemetrySink
	DefaultSecondsPerHour float64
}

// SimulationService starts, serves and stops simulation instances. Stopped
// instances stay registered, so a stopped id keeps answering ErrNotRunning
// rather than decaying into an unknown one.
type SimulationService struct {
	cities                *config.CityRegistry
	zones                 domain.ZoneProvider
	catalog               domain.EventCatalogProvider
	weather               domain.WeatherHistoryProvider
	recorder              domain.SnapshotRecorder
	pusher                domain.TelemetrySink
	defaultSecondsPerHour float64

	mu        sync.RWMutex
	instances map[string]*sim.Instance
}

// NewSimulationService creates the service from its dependencies.
func NewSimulationService(deps Deps) *SimulationService {
	return &SimulationService{
		cities:                deps.Cities,
		zones:                 deps.Zones,
		catalog:               deps.Catalog,
		weather:               deps.Weather,
		recorder:              deps.Recorder,
		pusher:                deps.Pusher,
		defaultSecondsPerHour: deps.DefaultSecondsPerHour,
		instances:             make(map[string]*sim.Instance),
	}
}

// Start creates and starts an instance for cityID. A nil secondsPerHour
// takes the configured default. The first tick is computed before Start
// returns, so the caller gets a full snapshot along with the new id.
// A missing weather dataset degrades to synthesis; broken zone or catalog
// data is fatal for the request.
func (s *SimulationService) Start(cityID string, secondsPerHour *float64) (domain.TickSnapshot, error) {
	city, err := s.cities.Get(cityID)
	if err != nil {
		return domain.TickSnapshot{}, err
	}
	zones, err := s.zones.Load(cityID)
	if err != nil {
		return domain.TickSnapshot{}, err
	}
	templates, err := s.catalog.Load(cityID)
	if err != nil {
		return domain.TickSnapshot{}, err
	}
	history, err := s.weather.Load()
	if err != nil {
		logrus.WithError(err).Warn("service: weather history unavailable, instance will synthesize")
		history = nil
	}

	sph := s.defaultSecondsPerHour
	if secondsPerHour != nil {
		sph = *secondsPerHour
	}

	simStart := time.Now().UTC().Truncate(time.Hour)
	seed := time.Now().UnixNano()

	weather := sim.NewWeatherEngine(history, simStart, sim.WeatherOffsets{
		Temperature: city.Offsets.Temperature,
		Humidity:    city.Offsets.Humidity,
		Wind:        city.Offsets.Wind,
	}, rand.New(rand.NewSource(seed)))
	events := sim.NewEventManager(templates, sim.DefaultEventConfig(), rand.New(rand.NewSource(seed+1)))
	traffic := sim.NewTrafficEngine(sim.DefaultTrafficConfig(), rand.New(rand.NewSource(seed+2)))
	if err := traffic.InitZones(zones); err != nil {
		return domain.TickSnapshot{}, fmt.Errorf("service: failed to initialize traffic zones: %w", err)
	}

	id := uuid.NewString()
	inst := sim.NewInstance(id, cityID, simStart, sph, weather, events, traffic, s.sink())
	if err := inst.Start(); err != nil {
		return domain.TickSnapshot{}, err
	}

	s.mu.Lock()
	s.instances[id] = inst
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"instance":         id,
		"city":             cityID,
		"seconds_per_hour": sph,
	}).Info("service: simulation started")

	return inst.Snapshot()
}

// sink composes the always-on history recorder with the optional external
// pusher.
func (s *SimulationService) sink() domain.TelemetrySink {
	sinks := multiSink{recorderSink{rec: s.recorder}}
	if s.pusher != nil {
		sinks = append(sinks, s.pusher)
	}
	return sinks
}

func (s *SimulationService) instance(id string) (*sim.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.instances[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownInstance, id)
	}
	return inst, nil
}

// Snapshot returns the instance's current ready tick.
func (s *SimulationService) Snapshot(id string) (domain.TickSnapshot, error) {
	inst, err := s.instance(id)
	if err != nil {
		return domain.TickSnapshot{}, err
	}
	return inst.Snapshot()
}

// Advance returns the current ready tick and schedules the next one.
func (s *SimulationService) Advance(id string) (domain.TickSnapshot, error) {
	inst, err := s.instance(id)
	if err != nil {
		return domain.TickSnapshot{}, err
	}
	return inst.Advance()
}

// SetTimeCompression changes how fast an instance's simulated clock runs.
func (s *SimulationService) SetTimeCompression(id string, secondsPerHour float64) error {
	inst, err := s.instance(id)
	if err != nil {
		return err
	}
	return inst.SetTimeCompression(secondsPerHour)
}

// Subscribe attaches a consumer to an instance's published ticks.
func (s *SimulationService) Subscribe(id string) (<-chan domain.TickSnapshot, func(), error) {
	inst, err := s.instance(id)
	if err != nil {
		return nil, nil, err
	}
	return inst.Subscribe()
}

// Stop ends an instance. The id stays registered.
func (s *SimulationService) Stop(id string) error {
	inst, err := s.instance(id)
	if err != nil {
		return err
	}
	inst.Stop()
	logrus.WithField("instance", id).Info("service: simulation stopped")
	return nil
}

// History returns up to limit recorded ticks for the instance, newest
// first. Stopped instances keep their history.
func (s *SimulationService) History(ctx context.Context, id string, limit int) ([]domain.SnapshotRecord, error) {
	if _, err := s.instance(id); err != nil {
		return nil, err
	}
	return s.recorder.Recent(ctx, id, limit)
}

// Cities returns the configured city records.
func (s *SimulationService) Cities() []config.CityConfig {
	return s.cities.All()
}

// Health reports the live instance count and recorder connectivity.
func (s *SimulationService) Health(ctx context.Context) (int, error) {
	s.mu.RLock()
	n := len(s.instances)
	s.mu.RUnlock()
	return n, s.recorder.Health(ctx)
}

// StopAll stops every instance and waits for their background work to
// drain. Called during graceful shutdown.
func (s *SimulationService) StopAll() {
	s.mu.Lock()
	instances := make([]*sim.Instance, 0, len(s.instances))
	for _, inst := range s.instances {
		instances = append(instances, inst)
	}
	s.mu.Unlock()

	for _, inst := range instances {
		inst.Stop()
	}
	for _, inst := range instances {
		inst.WaitBackground()
	}
}
