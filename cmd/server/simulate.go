package main

import (
	"encoding/json"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/DavidAlexKelly/edinburgh-city-sim-stream/internal/config"
	"github.com/DavidAlexKelly/edinburgh-city-sim-stream/internal/repository/file"
	"github.com/DavidAlexKelly/edinburgh-city-sim-stream/internal/sim"
)

var (
	simulateCity  string
	simulateHours int
	simulateSeed  int64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a headless simulation, printing one JSON line per tick",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSimulate()
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateCity, "city", "edinburgh", "city id to simulate")
	simulateCmd.Flags().IntVar(&simulateHours, "hours", 24, "simulated hours to run")
	simulateCmd.Flags().Int64Var(&simulateSeed, "seed", 0, "random seed, 0 derives one from the clock")
}

// runSimulate drives an instance manually with the pacer disabled, so ticks
// run back to back as fast as they compute.
func runSimulate() error {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found, using system environment")
	}

	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	cities, err := config.LoadCities(cfg.CitiesFile)
	if err != nil {
		return err
	}
	city, err := cities.Get(simulateCity)
	if err != nil {
		return err
	}

	zones, err := file.NewZoneRepository(cfg.DataDir, cities).Load(simulateCity)
	if err != nil {
		return err
	}
	templates, err := file.NewCatalogRepository(cfg.DataDir, cities).Load(simulateCity)
	if err != nil {
		return err
	}
	history, err := file.NewWeatherHistoryRepository(cfg.WeatherHistoryFile).Load()
	if err != nil {
		logrus.WithError(err).Warn("Weather history unavailable, synthesizing")
		history = nil
	}

	seed := simulateSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	simStart := time.Now().UTC().Truncate(time.Hour)
	weather := sim.NewWeatherEngine(history, simStart, sim.WeatherOffsets{
		Temperature: city.Offsets.Temperature,
		Humidity:    city.Offsets.Humidity,
		Wind:        city.Offsets.Wind,
	}, rand.New(rand.NewSource(seed)))
	events := sim.NewEventManager(templates, sim.DefaultEventConfig(), rand.New(rand.NewSource(seed+1)))
	traffic := sim.NewTrafficEngine(sim.DefaultTrafficConfig(), rand.New(rand.NewSource(seed+2)))
	if err := traffic.InitZones(zones); err != nil {
		return err
	}

	inst := sim.NewInstance(uuid.NewString(), simulateCity, simStart, 0, weather, events, traffic, nil)
	if err := inst.Start(); err != nil {
		return err
	}
	defer inst.Stop()

	enc := json.NewEncoder(os.Stdout)
	for i := 0; i < simulateHours; i++ {
		snap, err := inst.Snapshot()
		if err != nil {
			return err
		}
		if err := enc.Encode(snap); err != nil {
			return err
		}
		if err := inst.RunTick(); err != nil {
			return err
		}
	}
	return nil
}
