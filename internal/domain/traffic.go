package domain

import "time"

// Traffic is the city-wide congestion aggregate for one tick. CongestionLevel
// is the mean zone multiplier on the 0.1–10.0 scale; Label is its
// human-readable band.
type Traffic struct {
	CongestionLevel float64       `json:"congestion_level"`
	Label           string        `json:"congestion_label"`
	AverageSpeed    float64       `json:"average_speed_kmh"`
	FreeFlowSpeed   float64       `json:"free_flow_speed_kmh"`
	VehicleEstimate int           `json:"vehicle_estimate"`
	PeakHour        bool          `json:"peak_hour"`
	Zones           []ZoneTraffic `json:"zones"`
	Timestamp       time.Time     `json:"timestamp"`
}
