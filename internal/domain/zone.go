package domain

// Zone is the static road topology record for one datazone. Zones are loaded
// once per city and shared read-only across all simulation instances of that
// city.
type Zone struct {
	ID               string         `json:"id"`
	Name             string         `json:"name"`
	StreetCount      int            `json:"street_count"`
	RoadTypes        map[string]int `json:"road_types"`
	DominantRoadType string         `json:"dominant_road_type"`
	StreetIDs        []string       `json:"street_ids"`
}

// ZoneTraffic is the derived per-instance traffic state for one zone. It is
// owned exclusively by one traffic engine and mutated only by that engine's
// tick; published snapshots receive copies.
type ZoneTraffic struct {
	ZoneID     string             `json:"zone_id"`
	Name       string             `json:"name"`
	AreaType   string             `json:"area_type"`
	Capacity   int                `json:"capacity"`
	Baseline   float64            `json:"baseline"`
	Congestion float64            `json:"congestion"`
	Level      string             `json:"level"`
	Trend      float64            `json:"trend"`
	Streets    map[string]float64 `json:"streets,omitempty"`
}
