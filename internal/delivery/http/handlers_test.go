package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DavidAlexKelly/edinburgh-city-sim-stream/internal/config"
	"github.com/DavidAlexKelly/edinburgh-city-sim-stream/internal/domain"
	"github.com/DavidAlexKelly/edinburgh-city-sim-stream/internal/repository/memory"
	"github.com/DavidAlexKelly/edinburgh-city-sim-stream/internal/service"
)

type stubZones struct{}

func (stubZones) Load(string) ([]domain.Zone, error) {
	return []domain.Zone{
		{ID: "Z1", Name: "Old Town Core", StreetCount: 12, RoadTypes: map[string]int{"primary": 4, "secondary": 8}, DominantRoadType: "secondary"},
		{ID: "Z2", Name: "Terraces", StreetCount: 10, RoadTypes: map[string]int{"residential": 10}, DominantRoadType: "residential"},
	}, nil
}

type stubCatalog struct{}

func (stubCatalog) Load(string) ([]domain.EventTemplate, error) {
	return []domain.EventTemplate{
		{Type: "festival", Name: "Street Festival", Zones: []string{"Z1"}, ImpactFactor: 1.4, StartHour: 15, DurationHours: 4},
	}, nil
}

type stubWeather struct{}

func (stubWeather) Load() (*domain.WeatherHistory, error) { return nil, nil }

func testApp(t *testing.T) *fiber.App {
	t.Helper()
	registry, err := config.NewCityRegistry(config.DefaultCities())
	require.NoError(t, err)
	svc := service.NewSimulationService(service.Deps{
		Cities:   registry,
		Zones:    stubZones{},
		Catalog:  stubCatalog{},
		Weather:  stubWeather{},
		Recorder: memory.NewRecorder(0),
		// Paused pacer; tests drive ticks through the API.
		DefaultSecondsPerHour: 0,
	})
	t.Cleanup(svc.StopAll)

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	SetupRoutes(app, svc)
	return app
}

type envelope struct {
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
	Count   int             `json:"count"`
}

func request(app *fiber.App, method, target string, body any) (*nethttp.Response, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return app.Test(req, -1)
}

func doRequest(t *testing.T, app *fiber.App, method, target string, body any) (*nethttp.Response, envelope) {
	t.Helper()
	resp, err := request(app, method, target, body)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var env envelope
	if len(raw) > 0 && json.Valid(raw) {
		require.NoError(t, json.Unmarshal(raw, &env))
	}
	return resp, env
}

func startInstance(t *testing.T, app *fiber.App) domain.TickSnapshot {
	t.Helper()
	resp, env := doRequest(t, app, fiber.MethodPost, "/api/v1/simulations", fiber.Map{"city": "edinburgh"})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	require.True(t, env.Success)
	var snap domain.TickSnapshot
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	require.NotEmpty(t, snap.InstanceID)
	return snap
}

func TestHealthCheck(t *testing.T) {
	app := testApp(t)

	resp, err := request(app, fiber.MethodGet, "/health", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	var body struct {
		Status    string `json:"status"`
		Service   string `json:"service"`
		Version   string `json:"version"`
		Instances int    `json:"instances"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "city-sim-stream", body.Service)
	assert.Equal(t, 0, body.Instances)
}

func TestGetCities(t *testing.T) {
	app := testApp(t)

	resp, env := doRequest(t, app, fiber.MethodGet, "/api/v1/cities", nil)

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.True(t, env.Success)
	assert.Equal(t, 2, env.Count)
	var cities []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &cities))
	require.Len(t, cities, 2)
	assert.Equal(t, "edinburgh", cities[0].ID)
	assert.Equal(t, "Edinburgh", cities[0].Name)
}

func TestStartSimulation(t *testing.T) {
	app := testApp(t)

	snap := startInstance(t, app)

	assert.Equal(t, 1, snap.Tick)
	assert.Equal(t, "edinburgh", snap.City)
	assert.Len(t, snap.Traffic.Zones, 2)
}

func TestStartSimulation_BadRequests(t *testing.T) {
	app := testApp(t)

	tests := []struct {
		name       string
		body       any
		wantStatus int
	}{
		{"no body", nil, fiber.StatusBadRequest},
		{"missing city", fiber.Map{}, fiber.StatusBadRequest},
		{"negative compression", fiber.Map{"city": "edinburgh", "seconds_per_hour": -5}, fiber.StatusBadRequest},
		{"unknown city", fiber.Map{"city": "atlantis"}, fiber.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, env := doRequest(t, app, fiber.MethodPost, "/api/v1/simulations", tt.body)

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.False(t, env.Success)
			assert.NotEmpty(t, env.Error)
		})
	}
}

func TestGetSnapshot(t *testing.T) {
	app := testApp(t)
	snap := startInstance(t, app)

	resp, env := doRequest(t, app, fiber.MethodGet, "/api/v1/simulations/"+snap.InstanceID+"/snapshot", nil)

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	var got domain.TickSnapshot
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, snap.InstanceID, got.InstanceID)
	assert.Equal(t, 1, got.Tick)
}

func TestGetSnapshot_UnknownInstance(t *testing.T) {
	app := testApp(t)

	resp, env := doRequest(t, app, fiber.MethodGet, "/api/v1/simulations/ghost/snapshot", nil)

	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.False(t, env.Success)
}

func TestAdvanceSimulation(t *testing.T) {
	app := testApp(t)
	snap := startInstance(t, app)

	resp, env := doRequest(t, app, fiber.MethodPost, "/api/v1/simulations/"+snap.InstanceID+"/advance", nil)

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	var got domain.TickSnapshot
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, 1, got.Tick, "advance answers with the buffered tick")

	// The next tick lands in the buffer shortly after.
	require.Eventually(t, func() bool {
		resp, err := request(app, fiber.MethodGet, "/api/v1/simulations/"+snap.InstanceID+"/snapshot", nil)
		if err != nil || resp.StatusCode != fiber.StatusOK {
			return false
		}
		defer resp.Body.Close()
		var env envelope
		if json.NewDecoder(resp.Body).Decode(&env) != nil {
			return false
		}
		var next domain.TickSnapshot
		return json.Unmarshal(env.Data, &next) == nil && next.Tick == 2
	}, time.Second, 20*time.Millisecond)
}

func TestSetClock(t *testing.T) {
	app := testApp(t)
	snap := startInstance(t, app)

	resp, _ := doRequest(t, app, fiber.MethodPatch, "/api/v1/simulations/"+snap.InstanceID+"/clock", fiber.Map{"seconds_per_hour": 0})

	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
}

func TestSetClock_BadRequests(t *testing.T) {
	app := testApp(t)
	snap := startInstance(t, app)

	tests := []struct {
		name       string
		target     string
		body       any
		wantStatus int
	}{
		{"missing field", snap.InstanceID, fiber.Map{}, fiber.StatusBadRequest},
		{"negative", snap.InstanceID, fiber.Map{"seconds_per_hour": -1}, fiber.StatusBadRequest},
		{"unknown instance", "ghost", fiber.Map{"seconds_per_hour": 5}, fiber.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, env := doRequest(t, app, fiber.MethodPatch, "/api/v1/simulations/"+tt.target+"/clock", tt.body)

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.False(t, env.Success)
		})
	}
}

func TestStopSimulation(t *testing.T) {
	app := testApp(t)
	snap := startInstance(t, app)

	resp, _ := doRequest(t, app, fiber.MethodDelete, "/api/v1/simulations/"+snap.InstanceID, nil)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	// Stopped instances keep answering, with a conflict rather than a 404.
	resp, env := doRequest(t, app, fiber.MethodGet, "/api/v1/simulations/"+snap.InstanceID+"/snapshot", nil)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.False(t, env.Success)

	// Stopping again stays a no-op.
	resp, _ = doRequest(t, app, fiber.MethodDelete, "/api/v1/simulations/"+snap.InstanceID, nil)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
}

func TestStopSimulation_UnknownInstance(t *testing.T) {
	app := testApp(t)

	resp, _ := doRequest(t, app, fiber.MethodDelete, "/api/v1/simulations/ghost", nil)

	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestGetHistory(t *testing.T) {
	app := testApp(t)
	snap := startInstance(t, app)
	target := "/api/v1/simulations/" + snap.InstanceID + "/history"

	// The first row lands through the background sink.
	require.Eventually(t, func() bool {
		resp, err := request(app, fiber.MethodGet, target, nil)
		if err != nil || resp.StatusCode != fiber.StatusOK {
			return false
		}
		defer resp.Body.Close()
		var env envelope
		return json.NewDecoder(resp.Body).Decode(&env) == nil && env.Count == 1
	}, time.Second, 20*time.Millisecond)

	resp, env := doRequest(t, app, fiber.MethodGet, target, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	var rows []domain.SnapshotRecord
	require.NoError(t, json.Unmarshal(env.Data, &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].Tick)
	assert.Equal(t, "edinburgh", rows[0].City)
}

func TestGetHistory_UnknownInstance(t *testing.T) {
	app := testApp(t)

	resp, _ := doRequest(t, app, fiber.MethodGet, "/api/v1/simulations/ghost/history", nil)

	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestStreamRequiresWebsocketUpgrade(t *testing.T) {
	app := testApp(t)
	snap := startInstance(t, app)

	resp, env := doRequest(t, app, fiber.MethodGet, "/api/v1/simulations/"+snap.InstanceID+"/stream", nil)

	assert.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
	assert.False(t, env.Success)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unknown city", domain.ErrUnknownCity, fiber.StatusNotFound},
		{"unknown instance", fmt.Errorf("wrap: %w", domain.ErrUnknownInstance), fiber.StatusNotFound},
		{"not ready", domain.ErrNotReady, fiber.StatusTooEarly},
		{"not running", fmt.Errorf("wrap: %w", domain.ErrNotRunning), fiber.StatusConflict},
		{"broken data", &domain.DataLoadError{Resource: "zones", Path: "x.json", Err: errors.New("boom")}, fiber.StatusServiceUnavailable},
		{"anything else", errors.New("boom"), fiber.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
