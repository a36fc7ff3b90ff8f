package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the simulation control surface.
var (
	// ErrNotReady means no tick has completed yet. Transient; callers retry.
	ErrNotReady = errors.New("simulation: snapshot not ready")

	// ErrNotRunning means the instance was stopped. Terminal; a new instance
	// must be started.
	ErrNotRunning = errors.New("simulation: instance not running")

	// ErrNotInitialized means an engine was used before its setup call.
	ErrNotInitialized = errors.New("simulation: engine not initialized")

	// ErrUnknownCity means no configuration record exists for the city id.
	ErrUnknownCity = errors.New("config: unknown city")

	// ErrUnknownInstance means the instance id is not registered.
	ErrUnknownInstance = errors.New("simulation: unknown instance")
)

// DataLoadError reports a missing or invalid static data file. It is fatal
// to starting instances for the affected city.
type DataLoadError struct {
	Resource string
	Path     string
	Err      error
}

func (e *DataLoadError) Error() string {
	return fmt.Sprintf("%s: failed to load %s: %v", e.Resource, e.Path, e.Err)
}

func (e *DataLoadError) Unwrap() error { return e.Err }
