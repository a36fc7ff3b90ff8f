package domain

import "time"

// TickSnapshot is the immutable composed record for one simulated hour. The
// ready buffer holds exactly the most recent snapshot per instance.
type TickSnapshot struct {
	InstanceID    string     `json:"instance_id"`
	City          string     `json:"city"`
	Tick          int        `json:"tick"`
	SimulatedTime time.Time  `json:"simulated_time"`
	Hour          int        `json:"hour"`
	Weather       Weather    `json:"weather"`
	Events        EventsView `json:"events"`
	Traffic       Traffic    `json:"traffic"`
	GeneratedAt   time.Time  `json:"generated_at"`
}

// SnapshotRecord is the flat row shape recorders persist per tick.
type SnapshotRecord struct {
	InstanceID      string    `json:"instance_id"`
	City            string    `json:"city"`
	Tick            int       `json:"tick"`
	SimulatedTime   time.Time `json:"simulated_time"`
	Hour            int       `json:"hour"`
	Condition       Condition `json:"condition"`
	Temperature     float64   `json:"temperature"`
	CongestionLevel float64   `json:"congestion_level"`
	CongestionLabel string    `json:"congestion_label"`
	AverageSpeed    float64   `json:"average_speed_kmh"`
	VehicleEstimate int       `json:"vehicle_estimate"`
	ScheduledEvents int       `json:"scheduled_events"`
	ActiveEvents    int       `json:"active_events"`
	CompletedEvents int       `json:"completed_events"`
	CreatedAt       time.Time `json:"created_at"`
}

// NewSnapshotRecord flattens a snapshot into its recorder row.
func NewSnapshotRecord(snap TickSnapshot) SnapshotRecord {
	return SnapshotRecord{
		InstanceID:      snap.InstanceID,
		City:            snap.City,
		Tick:            snap.Tick,
		SimulatedTime:   snap.SimulatedTime,
		Hour:            snap.Hour,
		Condition:       snap.Weather.Condition,
		Temperature:     snap.Weather.Temperature,
		CongestionLevel: snap.Traffic.CongestionLevel,
		CongestionLabel: snap.Traffic.Label,
		AverageSpeed:    snap.Traffic.AverageSpeed,
		VehicleEstimate: snap.Traffic.VehicleEstimate,
		ScheduledEvents: snap.Events.ScheduledCount,
		ActiveEvents:    snap.Events.ActiveCount,
		CompletedEvents: snap.Events.CompletedCount,
		CreatedAt:       snap.GeneratedAt,
	}
}
