package sim

import (
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/DavidAlexKelly/edinburgh-city-sim-stream/internal/domain"
	"github.com/DavidAlexKelly/edinburgh-city-sim-stream/pkg/utils"
)

// Area classifications derived from a zone's road mix.
const (
	areaCityCentre  = "city_centre"
	areaCommercial  = "commercial"
	areaResidential = "residential"
	areaIndustrial  = "industrial"
	areaMixed       = "mixed"
)

// TrafficConfig bounds the congestion model for one instance.
type TrafficConfig struct {
	// MinCongestion and MaxCongestion clamp the congestion scale.
	MinCongestion float64
	MaxCongestion float64

	// Momentum is the weight of the previous tick in the blended value.
	Momentum float64

	// FreeFlowSpeed is the unimpeded speed in km/h that congestion divides.
	FreeFlowSpeed float64
}

// DefaultTrafficConfig returns the standard model bounds.
func DefaultTrafficConfig() TrafficConfig {
	return TrafficConfig{
		MinCongestion: 0.1,
		MaxCongestion: 10.0,
		Momentum:      0.3,
		FreeFlowSpeed: 60,
	}
}

// zoneState carries the per-zone values that persist between ticks.
type zoneState struct {
	zone       domain.Zone
	areaType   string
	baseline   float64
	capacity   int
	congestion float64
}

// TrafficEngine computes hourly congestion per zone. Zones must be loaded
// through InitZones before the first tick; the engine is not safe for
// concurrent use and relies on the owning instance to serialize ticks.
type TrafficEngine struct {
	cfg    TrafficConfig
	rng    *rand.Rand
	zones  []*zoneState
	inited bool
}

// NewTrafficEngine creates an engine with no zones loaded.
func NewTrafficEngine(cfg TrafficConfig, rng *rand.Rand) *TrafficEngine {
	return &TrafficEngine{cfg: cfg, rng: rng}
}

// InitZones derives the per-zone baseline, capacity and area class from the
// static zone descriptions. Baselines include a bounded random component, so
// two instances of the same city differ slightly from the start.
func (e *TrafficEngine) InitZones(zones []domain.Zone) error {
	if len(zones) == 0 {
		return domain.ErrNotInitialized
	}
	e.zones = make([]*zoneState, 0, len(zones))
	for _, z := range zones {
		base := e.baselineFor(z)
		e.zones = append(e.zones, &zoneState{
			zone:       z,
			areaType:   classifyArea(z),
			baseline:   base,
			capacity:   capacityFor(z),
			congestion: base,
		})
	}
	e.inited = true
	return nil
}

// baselineFor weights the zone's road mix and scales it by a bounded random
// factor. Heavier road classes push the resting congestion up.
func (e *TrafficEngine) baselineFor(z domain.Zone) float64 {
	total := 0
	for _, n := range z.RoadTypes {
		total += n
	}
	if total == 0 {
		return e.cfg.MinCongestion
	}
	weighted := 0.0
	for roadType, n := range z.RoadTypes {
		weighted += roadTypeWeight(roadType) * float64(n) / float64(total)
	}
	scale := 0.85 + e.rng.Float64()*0.3
	return utils.Clamp(weighted*scale, e.cfg.MinCongestion, e.cfg.MaxCongestion)
}

// Tick computes the congestion snapshot for the simulated time now. The
// previous tick's value carries through with configured momentum, so
// congestion moves rather than jumps.
func (e *TrafficEngine) Tick(now time.Time, w domain.Weather, active []domain.Event) (domain.Traffic, error) {
	if !e.inited {
		return domain.Traffic{}, domain.ErrNotInitialized
	}

	tod := timeOfDayMultiplier(now.Hour())
	peak := tod >= 1.5
	weekend := now.Weekday() == time.Saturday || now.Weekday() == time.Sunday
	weather := weatherMultiplier(w)

	zones := make([]domain.ZoneTraffic, 0, len(e.zones))
	var sumCong, sumSpeed float64
	var totalCars int
	for _, zs := range e.zones {
		raw := zs.baseline * tod * areaFactor(zs.areaType, weekend, peak) * roadFactor(zs.zone.DominantRoadType, weekend) * weather * eventFactor(zs.zone.ID, active)

		prev := zs.congestion
		blended := utils.Lerp(prev, raw, 1-e.cfg.Momentum)
		congestion := utils.Clamp(blended, e.cfg.MinCongestion, e.cfg.MaxCongestion)
		zs.congestion = congestion

		speed := zoneSpeed(congestion, e.cfg.FreeFlowSpeed)
		cars := vehicleEstimate(congestion, zs.capacity, 0.9+e.rng.Float64()*0.2)
		sumCong += congestion
		sumSpeed += speed
		totalCars += cars

		zones = append(zones, domain.ZoneTraffic{
			ZoneID:     zs.zone.ID,
			Name:       zs.zone.Name,
			AreaType:   zs.areaType,
			Capacity:   zs.capacity,
			Baseline:   utils.RoundTo(zs.baseline, 2),
			Congestion: utils.RoundTo(congestion, 2),
			Level:      congestionLabel(congestion),
			Trend:      utils.RoundTo(congestion-prev, 2),
			Streets:    e.streetCongestion(zs.zone.StreetIDs, congestion),
		})
	}

	avgCong := sumCong / float64(len(e.zones))
	return domain.Traffic{
		CongestionLevel: utils.RoundTo(avgCong, 2),
		Label:           congestionLabel(avgCong),
		AverageSpeed:    utils.RoundTo(sumSpeed/float64(len(e.zones)), 1),
		FreeFlowSpeed:   e.cfg.FreeFlowSpeed,
		VehicleEstimate: totalCars,
		PeakHour:        peak,
		Zones:           zones,
		Timestamp:       now,
	}, nil
}

// streetCongestion spreads the zone value across its streets with bounded
// jitter so per-street figures stay plausible without separate state.
func (e *TrafficEngine) streetCongestion(streetIDs []string, congestion float64) map[string]float64 {
	if len(streetIDs) == 0 {
		return nil
	}
	out := make(map[string]float64, len(streetIDs))
	for _, id := range streetIDs {
		out[id] = utils.RoundTo(utils.Clamp(congestion*(0.85+e.rng.Float64()*0.3), e.cfg.MinCongestion, e.cfg.MaxCongestion), 2)
	}
	return out
}

func roadTypeWeight(roadType string) float64 {
	switch roadType {
	case "motorway":
		return 2.6
	case "trunk":
		return 2.4
	case "primary":
		return 2.2
	case "secondary":
		return 1.8
	case "tertiary":
		return 1.4
	case "unclassified":
		return 1.1
	case "residential":
		return 1.0
	case "service":
		return 0.6
	default:
		return 1.0
	}
}

// roadCapacityPerStreet approximates vehicles one street of the class can
// hold before saturating.
func roadCapacityPerStreet(roadType string) int {
	switch roadType {
	case "motorway":
		return 120
	case "trunk":
		return 100
	case "primary":
		return 90
	case "secondary":
		return 70
	case "tertiary":
		return 50
	case "unclassified":
		return 40
	case "residential":
		return 35
	case "service":
		return 20
	default:
		return 35
	}
}

func capacityFor(z domain.Zone) int {
	return z.StreetCount * roadCapacityPerStreet(z.DominantRoadType)
}

// classifyArea buckets a zone by its name and road mix.
func classifyArea(z domain.Zone) string {
	total := 0
	for _, n := range z.RoadTypes {
		total += n
	}
	if total == 0 {
		return areaMixed
	}
	share := func(t string) float64 { return float64(z.RoadTypes[t]) / float64(total) }

	name := strings.ToLower(z.Name)
	switch {
	case strings.Contains(name, "centre") || strings.Contains(name, "central") || strings.Contains(name, "old town") || strings.Contains(name, "new town"):
		return areaCityCentre
	case share("service") > 0.35:
		return areaIndustrial
	case share("residential") > 0.55:
		return areaResidential
	case share("primary")+share("trunk")+share("motorway") > 0.30:
		return areaCommercial
	default:
		return areaMixed
	}
}

func timeOfDayMultiplier(hour int) float64 {
	switch {
	case hour >= 7 && hour <= 9:
		return 1.8
	case hour >= 17 && hour <= 19:
		return 2.0
	case hour >= 12 && hour <= 14:
		return 1.3
	case hour >= 10 && hour <= 11:
		return 1.15
	case hour >= 15 && hour <= 16:
		return 1.2
	case hour >= 20 && hour <= 21:
		return 0.9
	case hour >= 22:
		return 0.55
	case hour <= 5:
		return 0.35
	default:
		return 0.9
	}
}

// areaFactor returns the demand multiplier for the zone class. Weekday peak
// pressure concentrates in the centre and commercial zones; at the weekend
// the centre stays busy while industrial zones go quiet. Off-peak weekdays
// keep half the deviation so the classes still separate.
func areaFactor(area string, weekend, peak bool) float64 {
	if weekend {
		switch area {
		case areaCityCentre:
			return 1.2
		case areaCommercial:
			return 1.05
		case areaMixed:
			return 0.95
		case areaResidential:
			return 0.85
		case areaIndustrial:
			return 0.6
		default:
			return 1.0
		}
	}
	var f float64
	switch area {
	case areaCityCentre:
		f = 1.5
	case areaCommercial:
		f = 1.35
	case areaMixed:
		f = 1.15
	case areaIndustrial:
		f = 1.1
	default:
		f = 1.0
	}
	if !peak {
		return 1 + (f-1)*0.5
	}
	return f
}

// roadFactor skews weekday commuting load toward through routes. Weekends
// flatten the skew.
func roadFactor(dominant string, weekend bool) float64 {
	if weekend {
		return 1.0
	}
	switch dominant {
	case "motorway":
		return 1.2
	case "trunk":
		return 1.18
	case "primary":
		return 1.15
	case "secondary":
		return 1.05
	case "residential":
		return 0.95
	case "service":
		return 0.85
	default:
		return 1.0
	}
}

func weatherMultiplier(w domain.Weather) float64 {
	m := 1.0
	switch w.Condition {
	case domain.ConditionSnowy:
		m = 1.6
	case domain.ConditionStormy:
		m = 1.45
	case domain.ConditionRainy:
		m = 1.25
	case domain.ConditionSunny:
		m = 0.95
	}
	if w.WindSpeed >= 10 {
		m += 0.15
	}
	return m
}

// eventFactor returns the strongest event multiplier touching the zone. An
// event hits its first listed zone at full impact and each later zone at
// half the previous one.
func eventFactor(zoneID string, active []domain.Event) float64 {
	factor := 1.0
	for _, ev := range active {
		for i, z := range ev.Zones {
			if z != zoneID {
				continue
			}
			if f := 1 + ev.ImpactFactor*math.Pow(0.5, float64(i)); f > factor {
				factor = f
			}
			break
		}
	}
	return factor
}

func zoneSpeed(congestion, freeFlow float64) float64 {
	return utils.Clamp(freeFlow/(0.55+0.45*congestion), 8, freeFlow)
}

// vehicleEstimate fills the zone capacity by a congestion-driven occupancy,
// scaled by the caller's jitter factor and kept inside the occupancy bounds.
func vehicleEstimate(congestion float64, capacity int, jitter float64) int {
	occupancy := utils.Clamp(0.12*congestion*jitter, 0.03, 0.95)
	return int(float64(capacity) * occupancy)
}

func congestionLabel(c float64) string {
	switch {
	case c >= 5:
		return "Severe"
	case c >= 3:
		return "Heavy"
	case c >= 1.8:
		return "Moderate"
	case c >= 0.9:
		return "Light"
	default:
		return "Free Flow"
	}
}
