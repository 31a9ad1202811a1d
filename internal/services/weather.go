package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/redrabbit14-cmyk/my-running-dash/internal/models"
	"github.com/redrabbit14-cmyk/my-running-dash/pkg/client"
)

type weatherResponse struct {
	current *models.CurrentWeather
	err     error
}

// fetchWeather asks every weather client concurrently and averages the
// answers. It fails only when no client answered.
func fetchWeather(ctx context.Context, clients []client.WeatherClient, loc models.Location, logger *zap.Logger) (*models.AggregatedCurrentWeather, error) {
	var wg sync.WaitGroup
	responses := make([]weatherResponse, len(clients))

	for i, c := range clients {
		wg.Add(1)
		go func(i int, c client.WeatherClient) {
			defer wg.Done()
			current, err := c.GetCurrentWeather(ctx, loc)
			if err != nil {
				logger.Warn("Failed to fetch current weather from source",
					zap.String("location", loc.Name),
					zap.Error(err))
			}
			responses[i] = weatherResponse{current: current, err: err}
		}(i, c)
	}
	wg.Wait()

	var readings []*models.CurrentWeather
	for _, r := range responses {
		if r.err == nil && r.current != nil {
			readings = append(readings, r.current)
		}
	}
	if len(readings) == 0 {
		return nil, fmt.Errorf("all weather sources failed for %s", loc.Name)
	}
	return aggregateCurrentWeather(loc.Name, readings), nil
}

func aggregateCurrentWeather(location string, readings []*models.CurrentWeather) *models.AggregatedCurrentWeather {
	if len(readings) == 0 {
		return nil
	}

	// Stable order so the first-source icon does not depend on goroutine timing.
	sort.SliceStable(readings, func(i, j int) bool { return readings[i].Source < readings[j].Source })

	var totalTemp, totalFeelsLike, totalHumidity, totalWindSpeed float64
	var descriptions []string
	var sources []string
	var latestTimestamp time.Time

	for _, weather := range readings {
		totalTemp += weather.Temperature
		totalFeelsLike += weather.FeelsLike
		totalHumidity += weather.Humidity
		totalWindSpeed += weather.WindSpeed
		descriptions = append(descriptions, weather.Description)
		sources = append(sources, weather.Source)

		if weather.Timestamp.After(latestTimestamp) {
			latestTimestamp = weather.Timestamp
		}
	}

	count := float64(len(readings))

	return &models.AggregatedCurrentWeather{
		Location:    location,
		Temperature: totalTemp / count,
		FeelsLike:   totalFeelsLike / count,
		Humidity:    totalHumidity / count,
		WindSpeed:   totalWindSpeed / count,
		Description: mostCommonString(descriptions),
		Icon:        readings[0].Icon,
		LastUpdated: latestTimestamp,
		Sources:     sources,
		Confidence:  calculateConfidence(readings),
	}
}

// calculateConfidence is 0.5 for a single source. With more sources it drops
// with temperature variance (25 degrees squared or more means no agreement)
// and gains 0.1 per extra source, clamped to [0, 1].
func calculateConfidence(readings []*models.CurrentWeather) float64 {
	if len(readings) <= 1 {
		return 0.5
	}

	mean := 0.0
	for _, w := range readings {
		mean += w.Temperature
	}
	mean /= float64(len(readings))

	variance := 0.0
	for _, w := range readings {
		diff := w.Temperature - mean
		variance += diff * diff
	}
	variance /= float64(len(readings))

	normalizedVariance := variance / 25.0
	if normalizedVariance > 1 {
		normalizedVariance = 1
	}

	confidence := 1 - normalizedVariance
	confidence += float64(len(readings)-1) * 0.1

	if confidence > 1 {
		confidence = 1
	}
	if confidence < 0 {
		confidence = 0
	}

	return confidence
}

// mostCommonString breaks ties toward the lexicographically smaller value.
func mostCommonString(strs []string) string {
	counts := make(map[string]int)
	for _, s := range strs {
		counts[s]++
	}

	var mostCommon string
	maxCount := 0
	for s, count := range counts {
		if count > maxCount || (count == maxCount && s < mostCommon) {
			mostCommon = s
			maxCount = count
		}
	}

	return mostCommon
}
