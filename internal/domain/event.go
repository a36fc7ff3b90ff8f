package domain

import "time"

// EventStatus is the lifecycle state of a city event. Transitions are
// monotonic and one-directional: scheduled → active → completed.
type EventStatus string

const (
	EventScheduled EventStatus = "scheduled"
	EventActive    EventStatus = "active"
	EventCompleted EventStatus = "completed"
)

// EventTemplate is a catalog entry that generated events are stamped from.
type EventTemplate struct {
	Type          string   `json:"type"`
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	Zones         []string `json:"zones"`
	ImpactFactor  float64  `json:"impact_factor"`
	StartHour     int      `json:"start_hour"`
	DurationHours int      `json:"duration_hours"`
}

// Event is one generated city event. Zones lists the primary zone first;
// congestion impact decays along the rest of the list. ActualStart and
// ActualEnd are set exactly once, at the scheduled→active and
// active→completed transitions respectively.
type Event struct {
	ID             string      `json:"id"`
	Type           string      `json:"type"`
	Name           string      `json:"name"`
	Description    string      `json:"description"`
	Zones          []string    `json:"zones"`
	ImpactFactor   float64     `json:"impact_factor"`
	StartHour      int         `json:"start_hour"`
	DurationHours  int         `json:"duration_hours"`
	ScheduledStart time.Time   `json:"scheduled_start_time"`
	ActualStart    *time.Time  `json:"actual_start_time"`
	ActualEnd      *time.Time  `json:"actual_end_time"`
	Status         EventStatus `json:"status"`
}

// EventView is an event projected with status-appropriate countdown fields.
// A field that does not apply to the event's status is null: scheduled rows
// carry hours_until_start only, active rows hours_remaining only, completed
// rows neither.
type EventView struct {
	Event
	HoursUntilStart *float64 `json:"hours_until_start"`
	HoursRemaining  *float64 `json:"hours_remaining"`
}

// EventsView is the merged scheduled/active/completed projection for one tick.
type EventsView struct {
	Events         []EventView `json:"events"`
	ScheduledCount int         `json:"scheduled_count"`
	ActiveCount    int         `json:"active_count"`
	CompletedCount int         `json:"completed_count"`
}
