package domain

import "context"

// ZoneProvider loads a city's datazone topology. Implementations load once,
// cache, and share the result read-only across instances. Failure is fatal
// to starting a simulation for that city.
type ZoneProvider interface {
	Load(cityID string) ([]Zone, error)
}

// EventCatalogProvider loads a city's event templates. Same caching and
// failure contract as ZoneProvider.
type EventCatalogProvider interface {
	Load(cityID string) ([]EventTemplate, error)
}

// WeatherHistoryProvider loads the shared historical weather series. Failure
// degrades weather generation to fallback-only mode; it is never fatal.
type WeatherHistoryProvider interface {
	Load() (*WeatherHistory, error)
}

// TelemetrySink receives every published snapshot, best effort. Push errors
// are logged by the caller and never abort the tick pipeline.
type TelemetrySink interface {
	Push(ctx context.Context, snap TickSnapshot) error
}

// SnapshotRecorder persists flattened tick rows and serves recent history.
type SnapshotRecorder interface {
	Save(ctx context.Context, rec SnapshotRecord) error
	Recent(ctx context.Context, instanceID string, limit int) ([]SnapshotRecord, error)
	Health(ctx context.Context) error
}
