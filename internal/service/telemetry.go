package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/DavidAlexKelly/edinburgh-city-sim-stream/internal/config"
	"github.com/DavidAlexKelly/edinburgh-city-sim-stream/internal/domain"
)

// TelemetryPusher delivers tick snapshots to an external collector over
// HTTP. When an auth endpoint is configured it fetches a bearer token with
// client credentials and refreshes it on 401/403, bounded by the retry cap.
type TelemetryPusher struct {
	url            string
	authURL        string
	clientID       string
	clientSecret   string
	maxAuthRetries int
	httpClient     *http.Client

	mu    sync.Mutex
	token string
}

// NewTelemetryPusher creates a pusher from the sink configuration.
func NewTelemetryPusher(cfg config.SinkConfig) *TelemetryPusher {
	return &TelemetryPusher{
		url:            cfg.URL,
		authURL:        cfg.AuthURL,
		clientID:       cfg.ClientID,
		clientSecret:   cfg.ClientSecret,
		maxAuthRetries: cfg.MaxAuthRetries,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Push sends one snapshot. The body is marshalled once; only the request and
// token are rebuilt on an auth retry.
func (p *TelemetryPusher) Push(ctx context.Context, snap domain.TickSnapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("telemetry: failed to marshal snapshot: %w", err)
	}

	for attempt := 0; ; attempt++ {
		status, err := p.send(ctx, body)
		if err != nil {
			return err
		}
		if status < http.StatusMultipleChoices {
			return nil
		}
		if status != http.StatusUnauthorized && status != http.StatusForbidden {
			return fmt.Errorf("telemetry: push returned status %d", status)
		}
		if p.authURL == "" || attempt >= p.maxAuthRetries {
			return fmt.Errorf("telemetry: push rejected with status %d", status)
		}
		if err := p.authenticate(ctx); err != nil {
			return err
		}
	}
}

func (p *TelemetryPusher) send(ctx context.Context, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("telemetry: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token := p.currentToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("telemetry: push failed: %w", err)
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

// authenticate exchanges the client credentials for a fresh bearer token.
func (p *TelemetryPusher) authenticate(ctx context.Context) error {
	payload, err := json.Marshal(map[string]string{
		"client_id":     p.clientID,
		"client_secret": p.clientSecret,
	})
	if err != nil {
		return fmt.Errorf("telemetry: failed to marshal credentials: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.authURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("telemetry: failed to create auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telemetry: auth request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telemetry: auth returned status %d", resp.StatusCode)
	}

	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("telemetry: failed to decode auth response: %w", err)
	}
	if out.AccessToken == "" {
		return fmt.Errorf("telemetry: auth response carried no token")
	}

	p.mu.Lock()
	p.token = out.AccessToken
	p.mu.Unlock()
	return nil
}

func (p *TelemetryPusher) currentToken() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.token
}

// recorderSink adapts a SnapshotRecorder so every published tick lands in
// history.
type recorderSink struct {
	rec domain.SnapshotRecorder
}

func (s recorderSink) Push(ctx context.Context, snap domain.TickSnapshot) error {
	return s.rec.Save(ctx, domain.NewSnapshotRecord(snap))
}

// multiSink fans one tick out to every delegate. Delivery continues past a
// failing delegate; the first error is reported.
type multiSink []domain.TelemetrySink

func (m multiSink) Push(ctx context.Context, snap domain.TickSnapshot) error {
	var firstErr error
	for _, s := range m {
		if err := s.Push(ctx, snap); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
