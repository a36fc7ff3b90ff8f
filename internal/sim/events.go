package sim

import (
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/DavidAlexKelly/edinburgh-city-sim-stream/internal/domain"
)

// EventConfig bounds event generation for one instance.
type EventConfig struct {
	// MinHoursAhead and MaxHoursAhead bracket how far into the simulated
	// future a new event may be scheduled.
	MinHoursAhead int
	MaxHoursAhead int

	// MaxPerDay caps generation per simulated calendar day.
	MaxPerDay int

	// MaxConcurrent caps events active at the same time.
	MaxConcurrent int

	// MinGap is the minimum simulated time between two generation successes.
	MinGap time.Duration

	// GenerationProbability is the per-tick chance of attempting generation
	// when all rate limits allow it.
	GenerationProbability float64

	// CompletedRetention caps how many completed events are kept for views.
	CompletedRetention int
}

// DefaultEventConfig returns the standard generation limits.
func DefaultEventConfig() EventConfig {
	return EventConfig{
		MinHoursAhead:         2,
		MaxHoursAhead:         48,
		MaxPerDay:             5,
		MaxConcurrent:         3,
		MinGap:                4 * time.Hour,
		GenerationProbability: 0.35,
		CompletedRetention:    25,
	}
}

// EventManager owns the scheduled/active/completed event sets for one
// instance and advances them once per tick. It is not safe for concurrent
// use; the owning instance serializes ticks.
type EventManager struct {
	templates []domain.EventTemplate
	cfg       EventConfig
	rng       *rand.Rand

	scheduled []domain.Event
	active    []domain.Event
	completed []domain.Event

	generatedByDay map[string]int
	lastGenerated  time.Time
}

// NewEventManager creates a manager seeded from the city catalog. An empty
// catalog is allowed and simply never generates events.
func NewEventManager(templates []domain.EventTemplate, cfg EventConfig, rng *rand.Rand) *EventManager {
	return &EventManager{
		templates:      templates,
		cfg:            cfg,
		rng:            rng,
		generatedByDay: make(map[string]int),
	}
}

// ProcessTick advances every event through its lifecycle for the simulated
// time now, possibly generates a new scheduled event, and returns the
// resulting view. Transitions are monotonic: an event only ever moves
// scheduled to active to completed.
func (m *EventManager) ProcessTick(now time.Time, w domain.Weather) domain.EventsView {
	m.activateDue(now)
	m.completeExpired(now)
	m.evictCompleted()
	m.maybeGenerate(now, w)
	m.pruneDayCounters(now)
	return m.view(now)
}

// Active returns a copy of the currently active events for consumers that
// outlive the tick, such as the traffic model.
func (m *EventManager) Active() []domain.Event {
	out := make([]domain.Event, len(m.active))
	copy(out, m.active)
	return out
}

// activateDue promotes scheduled events whose start has arrived. The actual
// start time is recorded exactly once, at the moment of transition.
func (m *EventManager) activateDue(now time.Time) {
	var remaining []domain.Event
	for _, ev := range m.scheduled {
		if !now.Before(ev.ScheduledStart) && now.Hour() == ev.StartHour {
			started := now
			ev.ActualStart = &started
			ev.Status = domain.EventActive
			m.active = append(m.active, ev)
			logrus.WithFields(logrus.Fields{
				"event": ev.Name,
				"type":  ev.Type,
				"zones": len(ev.Zones),
			}).Debug("events: activated")
			continue
		}
		remaining = append(remaining, ev)
	}
	m.scheduled = remaining
}

// completeExpired retires active events whose duration has elapsed. The
// actual end time is recorded exactly once, at the moment of transition.
func (m *EventManager) completeExpired(now time.Time) {
	var still []domain.Event
	for _, ev := range m.active {
		end := ev.ActualStart.Add(time.Duration(ev.DurationHours) * time.Hour)
		if !now.Before(end) {
			ended := now
			ev.ActualEnd = &ended
			ev.Status = domain.EventCompleted
			m.completed = append(m.completed, ev)
			continue
		}
		still = append(still, ev)
	}
	m.active = still
}

// evictCompleted drops the oldest completed events beyond the retention cap.
func (m *EventManager) evictCompleted() {
	if excess := len(m.completed) - m.cfg.CompletedRetention; excess > 0 {
		m.completed = append([]domain.Event(nil), m.completed[excess:]...)
	}
}

// maybeGenerate rolls for a new scheduled event. Severe weather halves the
// attempt probability; the per-day, concurrency and spacing limits can veto
// the attempt entirely.
func (m *EventManager) maybeGenerate(now time.Time, w domain.Weather) {
	if len(m.templates) == 0 {
		return
	}
	p := m.cfg.GenerationProbability
	if w.Condition == domain.ConditionStormy || w.Condition == domain.ConditionSnowy {
		p /= 2
	}
	if m.rng.Float64() >= p {
		return
	}
	if !m.canGenerate(now) {
		return
	}

	ev := m.generate(now)
	m.scheduled = append(m.scheduled, ev)
	m.generatedByDay[dayKey(now)]++
	m.lastGenerated = now
	logrus.WithFields(logrus.Fields{
		"event": ev.Name,
		"start": ev.ScheduledStart.Format(time.RFC3339),
	}).Debug("events: scheduled")
}

func (m *EventManager) canGenerate(now time.Time) bool {
	if m.generatedByDay[dayKey(now)] >= m.cfg.MaxPerDay {
		return false
	}
	if len(m.active) >= m.cfg.MaxConcurrent {
		return false
	}
	if !m.lastGenerated.IsZero() && now.Sub(m.lastGenerated) < m.cfg.MinGap {
		return false
	}
	return true
}

// generate picks a template uniformly and schedules it at its preferred hour
// on the nearest future date at least MinHoursAhead away.
func (m *EventManager) generate(now time.Time) domain.Event {
	tpl := m.templates[m.rng.Intn(len(m.templates))]

	ahead := m.cfg.MinHoursAhead + m.rng.Intn(m.cfg.MaxHoursAhead-m.cfg.MinHoursAhead)
	target := now.Add(time.Duration(ahead) * time.Hour)
	start := time.Date(target.Year(), target.Month(), target.Day(), tpl.StartHour, 0, 0, 0, target.Location())
	if start.Before(now.Add(time.Duration(m.cfg.MinHoursAhead) * time.Hour)) {
		start = start.AddDate(0, 0, 1)
	}

	return domain.Event{
		ID:             uuid.NewString(),
		Type:           tpl.Type,
		Name:           tpl.Name,
		Description:    tpl.Description,
		Zones:          append([]string(nil), tpl.Zones...),
		ImpactFactor:   tpl.ImpactFactor,
		StartHour:      tpl.StartHour,
		DurationHours:  tpl.DurationHours,
		ScheduledStart: start,
		Status:         domain.EventScheduled,
	}
}

// pruneDayCounters forgets per-day counters older than two simulated days.
func (m *EventManager) pruneDayCounters(now time.Time) {
	if len(m.generatedByDay) <= 2 {
		return
	}
	cutoff := now.AddDate(0, 0, -1)
	for key := range m.generatedByDay {
		day, err := time.ParseInLocation("2006-01-02", key, now.Location())
		if err != nil || day.Before(time.Date(cutoff.Year(), cutoff.Month(), cutoff.Day(), 0, 0, 0, 0, now.Location())) {
			delete(m.generatedByDay, key)
		}
	}
}

// view projects the three event sets into the tick payload, sorted by start
// time within each status.
func (m *EventManager) view(now time.Time) domain.EventsView {
	events := make([]domain.EventView, 0, len(m.active)+len(m.scheduled)+len(m.completed))

	active := append([]domain.Event(nil), m.active...)
	sort.Slice(active, func(i, j int) bool { return active[i].ActualStart.Before(*active[j].ActualStart) })
	for _, ev := range active {
		end := ev.ActualStart.Add(time.Duration(ev.DurationHours) * time.Hour)
		remaining := end.Sub(now).Hours()
		if remaining < 0 {
			remaining = 0
		}
		events = append(events, domain.EventView{Event: ev, HoursRemaining: &remaining})
	}

	scheduled := append([]domain.Event(nil), m.scheduled...)
	sort.Slice(scheduled, func(i, j int) bool { return scheduled[i].ScheduledStart.Before(scheduled[j].ScheduledStart) })
	for _, ev := range scheduled {
		until := ev.ScheduledStart.Sub(now).Hours()
		if until < 0 {
			until = 0
		}
		events = append(events, domain.EventView{Event: ev, HoursUntilStart: &until})
	}

	completed := append([]domain.Event(nil), m.completed...)
	sort.Slice(completed, func(i, j int) bool { return completed[i].ActualEnd.Before(*completed[j].ActualEnd) })
	events = append(events, eventViews(completed)...)

	return domain.EventsView{
		Events:         events,
		ScheduledCount: len(m.scheduled),
		ActiveCount:    len(m.active),
		CompletedCount: len(m.completed),
	}
}

func eventViews(events []domain.Event) []domain.EventView {
	out := make([]domain.EventView, len(events))
	for i, ev := range events {
		out[i] = domain.EventView{Event: ev}
	}
	return out
}

func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}
