package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/DavidAlexKelly/edinburgh-city-sim-stream/internal/domain"
)

// pushTimeout bounds one telemetry delivery attempt.
const pushTimeout = 10 * time.Second

// The instance consumes its engines through narrow interfaces so tests can
// substitute slow or scripted ones.

// WeatherSource yields a weather sample for a simulated time.
type WeatherSource interface {
	SampleAt(t time.Time) domain.Weather
}

// EventProcessor advances the event lifecycle one tick.
type EventProcessor interface {
	ProcessTick(now time.Time, w domain.Weather) domain.EventsView
	Active() []domain.Event
}

// TrafficComputer produces the congestion snapshot for one tick.
type TrafficComputer interface {
	Tick(now time.Time, w domain.Weather, active []domain.Event) (domain.Traffic, error)
}

// Instance runs one simulated city. It holds exactly one ready snapshot at a
// time and computes the next tick under a single-flight guard: no matter how
// many pacer fires, advances and clock changes race, at most one tick is in
// flight per instance.
type Instance struct {
	id     string
	cityID string

	weather WeatherSource
	events  EventProcessor
	traffic TrafficComputer
	sink    domain.TelemetrySink

	mu             sync.Mutex
	simTime        time.Time
	tick           int
	secondsPerHour float64
	ready          *domain.TickSnapshot
	generating     bool
	running        bool
	stopped        bool
	subs           map[chan domain.TickSnapshot]struct{}

	stopCh     chan struct{}
	pacerNudge chan struct{}
	wgBg       sync.WaitGroup
}

// NewInstance wires the engines for one simulation. The first computed tick
// lands on simStart; secondsPerHour <= 0 disables the autonomous pacer until
// SetTimeCompression raises it. sink may be nil.
func NewInstance(id, cityID string, simStart time.Time, secondsPerHour float64, weather WeatherSource, events EventProcessor, traffic TrafficComputer, sink domain.TelemetrySink) *Instance {
	return &Instance{
		id:             id,
		cityID:         cityID,
		weather:        weather,
		events:         events,
		traffic:        traffic,
		sink:           sink,
		simTime:        simStart.Add(-time.Hour),
		secondsPerHour: secondsPerHour,
		subs:           make(map[chan domain.TickSnapshot]struct{}),
		stopCh:         make(chan struct{}),
		pacerNudge:     make(chan struct{}, 1),
	}
}

// ID returns the instance identifier.
func (inst *Instance) ID() string { return inst.id }

// CityID returns the city this instance simulates.
func (inst *Instance) CityID() string { return inst.cityID }

// Start computes the first tick synchronously, so a snapshot is ready the
// moment Start returns, then launches the pacer.
func (inst *Instance) Start() error {
	inst.mu.Lock()
	if inst.running || inst.stopped {
		inst.mu.Unlock()
		return fmt.Errorf("sim: instance %s already started", inst.id)
	}
	inst.running = true
	inst.mu.Unlock()

	if err := inst.RunTick(); err != nil {
		return err
	}
	inst.wgBg.Add(1)
	go inst.pace()
	return nil
}

// RunTick computes the next tick and publishes it as the ready snapshot. If
// a computation is already in flight the call is a no-op. A tick that
// finishes after Stop is discarded without publishing, and a failed
// computation leaves the previous snapshot in place so the same simulated
// hour retries on the next attempt.
func (inst *Instance) RunTick() error {
	inst.mu.Lock()
	if inst.stopped {
		inst.mu.Unlock()
		return domain.ErrNotRunning
	}
	if inst.generating {
		inst.mu.Unlock()
		return nil
	}
	inst.generating = true
	at := inst.simTime.Add(time.Hour)
	tick := inst.tick + 1
	inst.mu.Unlock()

	// Engines run outside the lock; the generating flag is what serializes
	// them.
	snap, err := inst.compute(tick, at)

	inst.mu.Lock()
	inst.generating = false
	if inst.stopped {
		inst.mu.Unlock()
		return domain.ErrNotRunning
	}
	if err != nil {
		inst.mu.Unlock()
		return err
	}
	inst.ready = &snap
	inst.simTime = at
	inst.tick = tick
	// Fan-out stays under mu: cancel and Stop close channels under the same
	// lock, so a send can never hit a closed channel.
	for ch := range inst.subs {
		select {
		case ch <- snap:
		default:
			// Slow consumer skips this tick rather than stalling the engine.
		}
	}
	inst.mu.Unlock()

	inst.push(snap)
	return nil
}

func (inst *Instance) compute(tick int, at time.Time) (domain.TickSnapshot, error) {
	w := inst.weather.SampleAt(at)
	events := inst.events.ProcessTick(at, w)
	traffic, err := inst.traffic.Tick(at, w, inst.events.Active())
	if err != nil {
		return domain.TickSnapshot{}, fmt.Errorf("sim: tick %d traffic computation failed: %w", tick, err)
	}
	return domain.TickSnapshot{
		InstanceID:    inst.id,
		City:          inst.cityID,
		Tick:          tick,
		SimulatedTime: at,
		Hour:          at.Hour(),
		Weather:       w,
		Events:        events,
		Traffic:       traffic,
		GeneratedAt:   time.Now().UTC(),
	}, nil
}

func (inst *Instance) push(snap domain.TickSnapshot) {
	if inst.sink == nil {
		return
	}
	inst.wgBg.Add(1)
	go func() {
		defer inst.wgBg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
		defer cancel()
		if err := inst.sink.Push(ctx, snap); err != nil {
			logrus.WithError(err).WithField("instance", inst.id).Warn("sim: telemetry push failed")
		}
	}()
}

// Snapshot returns the current ready tick without advancing anything.
func (inst *Instance) Snapshot() (domain.TickSnapshot, error) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if inst.stopped || !inst.running {
		return domain.TickSnapshot{}, domain.ErrNotRunning
	}
	if inst.ready == nil {
		return domain.TickSnapshot{}, domain.ErrNotReady
	}
	return *inst.ready, nil
}

// Advance returns the current ready tick and schedules the next computation
// in the background. Callers get an answer immediately; the buffer refreshes
// behind them.
func (inst *Instance) Advance() (domain.TickSnapshot, error) {
	snap, err := inst.Snapshot()
	if err != nil {
		return domain.TickSnapshot{}, err
	}
	inst.wgBg.Add(1)
	go func() {
		defer inst.wgBg.Done()
		if err := inst.RunTick(); err != nil && !errors.Is(err, domain.ErrNotRunning) {
			logrus.WithError(err).WithField("instance", inst.id).Warn("sim: background tick failed")
		}
	}()
	return snap, nil
}

// SetTimeCompression changes how many wall seconds one simulated hour takes.
// Zero or negative pauses autonomous ticking; manual advances still work.
func (inst *Instance) SetTimeCompression(secondsPerHour float64) error {
	inst.mu.Lock()
	if inst.stopped {
		inst.mu.Unlock()
		return domain.ErrNotRunning
	}
	inst.secondsPerHour = secondsPerHour
	inst.mu.Unlock()

	select {
	case inst.pacerNudge <- struct{}{}:
	default:
	}
	return nil
}

// Subscribe registers a consumer for every published tick. The returned
// cancel is safe to call after Stop.
func (inst *Instance) Subscribe() (<-chan domain.TickSnapshot, func(), error) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if inst.stopped {
		return nil, nil, domain.ErrNotRunning
	}
	ch := make(chan domain.TickSnapshot, 8)
	inst.subs[ch] = struct{}{}
	cancel := func() {
		inst.mu.Lock()
		defer inst.mu.Unlock()
		if _, ok := inst.subs[ch]; ok {
			delete(inst.subs, ch)
			close(ch)
		}
	}
	return ch, cancel, nil
}

// Stop ends the simulation. Idempotent; the ready buffer is cleared so late
// readers see ErrNotRunning rather than a stale tick.
func (inst *Instance) Stop() {
	inst.mu.Lock()
	if inst.stopped {
		inst.mu.Unlock()
		return
	}
	inst.stopped = true
	inst.running = false
	inst.ready = nil
	for ch := range inst.subs {
		close(ch)
	}
	inst.subs = nil
	close(inst.stopCh)
	inst.mu.Unlock()
}

// WaitBackground blocks until the pacer and in-flight pushes exit. Call
// after Stop during shutdown.
func (inst *Instance) WaitBackground() {
	inst.wgBg.Wait()
}

// pace drives autonomous ticking at the configured compression, restarting
// its timer whenever the compression changes.
func (inst *Instance) pace() {
	defer inst.wgBg.Done()
	for {
		interval := inst.tickInterval()
		if interval <= 0 {
			select {
			case <-inst.stopCh:
				return
			case <-inst.pacerNudge:
				continue
			}
		}
		timer := time.NewTimer(interval)
		select {
		case <-inst.stopCh:
			timer.Stop()
			return
		case <-inst.pacerNudge:
			timer.Stop()
		case <-timer.C:
			if err := inst.RunTick(); err != nil {
				if errors.Is(err, domain.ErrNotRunning) {
					return
				}
				logrus.WithError(err).WithField("instance", inst.id).Warn("sim: autonomous tick failed")
			}
		}
	}
}

func (inst *Instance) tickInterval() time.Duration {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if inst.secondsPerHour <= 0 {
		return 0
	}
	return time.Duration(inst.secondsPerHour * float64(time.Second))
}
