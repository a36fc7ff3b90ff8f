package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DavidAlexKelly/edinburgh-city-sim-stream/internal/config"
	"github.com/DavidAlexKelly/edinburgh-city-sim-stream/internal/domain"
	"github.com/DavidAlexKelly/edinburgh-city-sim-stream/internal/repository/memory"
)

func testSnapshot() domain.TickSnapshot {
	return domain.TickSnapshot{
		InstanceID:    "inst-1",
		City:          "edinburgh",
		Tick:          7,
		SimulatedTime: time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC),
		Hour:          8,
		Weather:       domain.Weather{Condition: domain.ConditionRainy, Temperature: 6.5},
		Events:        domain.EventsView{ScheduledCount: 2, ActiveCount: 1},
		Traffic:       domain.Traffic{CongestionLevel: 2.4, Label: "Moderate", AverageSpeed: 31.5, VehicleEstimate: 812},
		GeneratedAt:   time.Date(2025, 3, 10, 8, 0, 1, 0, time.UTC),
	}
}

func sinkConfig(url, authURL string) config.SinkConfig {
	return config.SinkConfig{
		URL:            url,
		AuthURL:        authURL,
		ClientID:       "city-sim",
		ClientSecret:   "secret",
		MaxAuthRetries: 2,
		Timeout:        5 * time.Second,
	}
}

func TestTelemetryPusher_PushDeliversSnapshot(t *testing.T) {
	var gotBody domain.TickSnapshot
	var gotContentType, gotAuth string
	collector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer collector.Close()

	p := NewTelemetryPusher(sinkConfig(collector.URL, ""))

	require.NoError(t, p.Push(context.Background(), testSnapshot()))
	assert.Equal(t, "application/json", gotContentType)
	assert.Empty(t, gotAuth, "no bearer header before any auth exchange")
	assert.Equal(t, "inst-1", gotBody.InstanceID)
	assert.Equal(t, 7, gotBody.Tick)
	assert.Equal(t, domain.ConditionRainy, gotBody.Weather.Condition)
}

func TestTelemetryPusher_RefreshesTokenOnUnauthorized(t *testing.T) {
	// GIVEN a collector that rejects until it sees the fresh token
	var collectorHits, authHits int32
	collector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&collectorHits, 1)
		if r.Header.Get("Authorization") != "Bearer fresh-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer collector.Close()

	auth := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&authHits, 1)
		var creds map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		assert.Equal(t, "city-sim", creds["client_id"])
		assert.Equal(t, "secret", creds["client_secret"])
		json.NewEncoder(w).Encode(map[string]string{"access_token": "fresh-token"})
	}))
	defer auth.Close()

	p := NewTelemetryPusher(sinkConfig(collector.URL, auth.URL))

	// WHEN pushing
	err := p.Push(context.Background(), testSnapshot())

	// THEN one auth round trip recovers the delivery
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&collectorHits))
	assert.Equal(t, int32(1), atomic.LoadInt32(&authHits))
}

func TestTelemetryPusher_AuthRetriesAreBounded(t *testing.T) {
	var collectorHits, authHits int32
	collector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&collectorHits, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer collector.Close()

	auth := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&authHits, 1)
		json.NewEncoder(w).Encode(map[string]string{"access_token": "still-rejected"})
	}))
	defer auth.Close()

	p := NewTelemetryPusher(sinkConfig(collector.URL, auth.URL))

	err := p.Push(context.Background(), testSnapshot())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejected with status 403")
	assert.Equal(t, int32(3), atomic.LoadInt32(&collectorHits), "initial attempt plus two retries")
	assert.Equal(t, int32(2), atomic.LoadInt32(&authHits))
}

func TestTelemetryPusher_ServerErrorDoesNotTriggerAuth(t *testing.T) {
	var collectorHits int32
	collector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&collectorHits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer collector.Close()

	p := NewTelemetryPusher(sinkConfig(collector.URL, "http://auth.invalid"))

	err := p.Push(context.Background(), testSnapshot())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "returned status 500")
	assert.Equal(t, int32(1), atomic.LoadInt32(&collectorHits))
}

func TestTelemetryPusher_UnauthorizedWithoutAuthURLFailsFast(t *testing.T) {
	collector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer collector.Close()

	p := NewTelemetryPusher(sinkConfig(collector.URL, ""))

	err := p.Push(context.Background(), testSnapshot())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejected with status 401")
}

func TestTelemetryPusher_EmptyTokenResponseFails(t *testing.T) {
	collector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer collector.Close()

	auth := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"access_token": ""})
	}))
	defer auth.Close()

	p := NewTelemetryPusher(sinkConfig(collector.URL, auth.URL))

	err := p.Push(context.Background(), testSnapshot())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no token")
}

func TestRecorderSink_SavesFlattenedRow(t *testing.T) {
	rec := memory.NewRecorder(0)
	sink := recorderSink{rec: rec}
	ctx := context.Background()

	require.NoError(t, sink.Push(ctx, testSnapshot()))

	rows, err := rec.Recent(ctx, "inst-1", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	row := rows[0]
	assert.Equal(t, "edinburgh", row.City)
	assert.Equal(t, 7, row.Tick)
	assert.Equal(t, domain.ConditionRainy, row.Condition)
	assert.Equal(t, 2.4, row.CongestionLevel)
	assert.Equal(t, "Moderate", row.CongestionLabel)
	assert.Equal(t, 812, row.VehicleEstimate)
	assert.Equal(t, 2, row.ScheduledEvents)
	assert.Equal(t, 1, row.ActiveEvents)
}

type countingSink struct {
	calls int32
	err   error
}

func (s *countingSink) Push(ctx context.Context, snap domain.TickSnapshot) error {
	atomic.AddInt32(&s.calls, 1)
	return s.err
}

func TestMultiSink_ContinuesPastFailingDelegate(t *testing.T) {
	boom := errors.New("collector down")
	failing := &countingSink{err: boom}
	healthy := &countingSink{}
	sinks := multiSink{failing, healthy}

	err := sinks.Push(context.Background(), testSnapshot())

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(1), atomic.LoadInt32(&failing.calls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&healthy.calls), "failure upstream does not skip later sinks")
}
