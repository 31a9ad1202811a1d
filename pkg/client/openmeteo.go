package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/redrabbit14-cmyk/my-running-dash/internal/models"
	"go.uber.org/zap"
)

const openMeteoBaseURL = "https://api.open-meteo.com/v1"

// WeatherClient returns current conditions at a location.
type WeatherClient interface {
	GetCurrentWeather(ctx context.Context, loc models.Location) (*models.CurrentWeather, error)
}

type OpenMeteoClient struct {
	*BaseClient
	baseURL string
}

type OpenMeteoCurrentResponse struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timezone  string  `json:"timezone"`
	Current   struct {
		Time                string  `json:"time"`
		Temperature2M       float64 `json:"temperature_2m"`
		ApparentTemperature float64 `json:"apparent_temperature"`
		RelativeHumidity2M  int     `json:"relative_humidity_2m"`
		WindSpeed10M        float64 `json:"wind_speed_10m"`
		WeatherCode         int     `json:"weather_code"`
	} `json:"current"`
}

// NewOpenMeteoClient creates a keyless Open-Meteo client. An empty baseURL
// selects the public API.
func NewOpenMeteoClient(baseURL string, config ClientConfig, logger *zap.Logger) *OpenMeteoClient {
	if baseURL == "" {
		baseURL = openMeteoBaseURL
	}
	return &OpenMeteoClient{
		BaseClient: NewBaseClient("openmeteo", config, logger),
		baseURL:    baseURL,
	}
}

func (c *OpenMeteoClient) GetCurrentWeather(ctx context.Context, loc models.Location) (*models.CurrentWeather, error) {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(loc.Latitude, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(loc.Longitude, 'f', 4, 64))
	q.Set("current", "temperature_2m,apparent_temperature,relative_humidity_2m,wind_speed_10m,weather_code")
	q.Set("wind_speed_unit", "ms")
	q.Set("timezone", "UTC")

	data, err := c.GetWithRetry(ctx, c.baseURL+"/forecast?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch current weather: %w", err)
	}

	var response OpenMeteoCurrentResponse
	if err := json.Unmarshal(data, &response); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	// Open-Meteo reports minute precision without a zone designator.
	observed, err := time.Parse("2006-01-02T15:04", response.Current.Time)
	if err != nil {
		observed = time.Now().UTC()
	}

	return &models.CurrentWeather{
		Location:    loc.Name,
		Temperature: response.Current.Temperature2M,
		FeelsLike:   response.Current.ApparentTemperature,
		Humidity:    float64(response.Current.RelativeHumidity2M),
		WindSpeed:   response.Current.WindSpeed10M,
		Description: weatherCodeToDescription(response.Current.WeatherCode),
		Icon:        weatherCodeToIcon(response.Current.WeatherCode),
		Timestamp:   observed,
		Source:      "open-meteo",
	}, nil
}

// WMO weather interpretation codes.
var weatherCodes = map[int]string{
	0:  "Clear sky",
	1:  "Mainly clear",
	2:  "Partly cloudy",
	3:  "Overcast",
	45: "Foggy",
	48: "Depositing rime fog",
	51: "Light drizzle",
	53: "Moderate drizzle",
	55: "Dense drizzle",
	56: "Light freezing drizzle",
	57: "Dense freezing drizzle",
	61: "Slight rain",
	63: "Moderate rain",
	65: "Heavy rain",
	66: "Light freezing rain",
	67: "Heavy freezing rain",
	71: "Slight snow fall",
	73: "Moderate snow fall",
	75: "Heavy snow fall",
	77: "Snow grains",
	80: "Slight rain showers",
	81: "Moderate rain showers",
	82: "Violent rain showers",
	85: "Slight snow showers",
	86: "Heavy snow showers",
	95: "Thunderstorm",
	96: "Thunderstorm with slight hail",
	99: "Thunderstorm with heavy hail",
}

func weatherCodeToDescription(code int) string {
	if desc, ok := weatherCodes[code]; ok {
		return desc
	}
	return "Unknown"
}

// weatherCodeToIcon maps WMO codes onto OpenWeatherMap icon names so both
// sources render the same way.
func weatherCodeToIcon(code int) string {
	switch {
	case code == 0:
		return "01d"
	case code <= 3:
		return "02d"
	case code <= 48:
		return "50d"
	case code <= 67:
		return "10d"
	case code <= 77:
		return "13d"
	case code <= 82:
		return "09d"
	case code <= 86:
		return "13d"
	default:
		return "11d"
	}
}
