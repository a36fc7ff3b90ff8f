package file

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/DavidAlexKelly/edinburgh-city-sim-stream/internal/domain"
)

// WeatherHistoryRepository implements domain.WeatherHistoryProvider over a
// shared CSV export. The parse outcome, success or failure, is cached for
// the repository's lifetime: a dataset that fails to load once stays
// unavailable, and weather generation runs in fallback mode.
type WeatherHistoryRepository struct {
	path string

	once    sync.Once
	history *domain.WeatherHistory
	err     error
}

// NewWeatherHistoryRepository creates a history repository for the CSV at
// path.
func NewWeatherHistoryRepository(path string) *WeatherHistoryRepository {
	return &WeatherHistoryRepository{path: path}
}

// Load parses the CSV on first use.
func (r *WeatherHistoryRepository) Load() (*domain.WeatherHistory, error) {
	r.once.Do(func() {
		r.history, r.err = readHistory(r.path)
	})
	return r.history, r.err
}

func readHistory(path string) (*domain.WeatherHistory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("weather history: failed to open %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("weather history: failed to read header of %s: %w", path, err)
	}
	col, err := headerColumns(header)
	if err != nil {
		return nil, fmt.Errorf("weather history: %s: %w", path, err)
	}

	var records []domain.WeatherRecord
	skipped := 0
	for row := 1; ; row++ {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("weather history: %s row %d: %w", path, row, err)
		}
		rec, ok := parseRecord(fields, col)
		if !ok {
			skipped++
			continue
		}
		records = append(records, rec)
	}
	if skipped > 0 {
		logrus.Warnf("weather history: skipped %d malformed rows in %s", skipped, path)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("weather history: no usable records in %s", path)
	}
	return domain.NewWeatherHistory(records), nil
}

type columns struct {
	timestamp, temperature, humidity, wind, condition int
}

func headerColumns(header []string) (columns, error) {
	col := columns{timestamp: -1, temperature: -1, humidity: -1, wind: -1, condition: -1}
	for i, name := range header {
		switch name {
		case "timestamp":
			col.timestamp = i
		case "temperature":
			col.temperature = i
		case "humidity":
			col.humidity = i
		case "wind_speed":
			col.wind = i
		case "condition":
			col.condition = i
		}
	}
	if col.timestamp < 0 || col.temperature < 0 || col.humidity < 0 || col.wind < 0 || col.condition < 0 {
		return col, fmt.Errorf("header must name timestamp, temperature, humidity, wind_speed and condition columns")
	}
	return col, nil
}

func parseRecord(fields []string, col columns) (domain.WeatherRecord, bool) {
	max := col.timestamp
	for _, i := range []int{col.temperature, col.humidity, col.wind, col.condition} {
		if i > max {
			max = i
		}
	}
	if len(fields) <= max {
		return domain.WeatherRecord{}, false
	}

	ts, err := time.Parse(time.RFC3339, fields[col.timestamp])
	if err != nil {
		return domain.WeatherRecord{}, false
	}
	temp, err := strconv.ParseFloat(fields[col.temperature], 64)
	if err != nil {
		return domain.WeatherRecord{}, false
	}
	humidity, err := strconv.ParseFloat(fields[col.humidity], 64)
	if err != nil {
		return domain.WeatherRecord{}, false
	}
	wind, err := strconv.ParseFloat(fields[col.wind], 64)
	if err != nil {
		return domain.WeatherRecord{}, false
	}
	condition := fields[col.condition]
	if condition == "" {
		return domain.WeatherRecord{}, false
	}

	return domain.WeatherRecord{
		Timestamp:   ts,
		Temperature: temp,
		Humidity:    int(humidity + 0.5),
		WindSpeed:   wind,
		Condition:   condition,
	}, true
}
