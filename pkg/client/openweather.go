package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/redrabbit14-cmyk/my-running-dash/internal/models"
	"go.uber.org/zap"
)

const openWeatherBaseURL = "https://api.openweathermap.org/data/2.5"

var ErrMissingAPIKey = errors.New("openweather api key is not configured")

type OpenWeatherClient struct {
	*BaseClient
	apiKey  string
	baseURL string
}

type OpenWeatherCurrentResponse struct {
	Weather []struct {
		ID          int    `json:"id"`
		Main        string `json:"main"`
		Description string `json:"description"`
		Icon        string `json:"icon"`
	} `json:"weather"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  float64 `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Dt   int64  `json:"dt"`
	Name string `json:"name"`
	Cod  int    `json:"cod"`
}

func NewOpenWeatherClient(apiKey, baseURL string, config ClientConfig, logger *zap.Logger) *OpenWeatherClient {
	if baseURL == "" {
		baseURL = openWeatherBaseURL
	}
	return &OpenWeatherClient{
		BaseClient: NewBaseClient("openweather", config, logger),
		apiKey:     apiKey,
		baseURL:    baseURL,
	}
}

func (c *OpenWeatherClient) GetCurrentWeather(ctx context.Context, loc models.Location) (*models.CurrentWeather, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(loc.Latitude, 'f', 4, 64))
	q.Set("lon", strconv.FormatFloat(loc.Longitude, 'f', 4, 64))
	q.Set("appid", c.apiKey)
	q.Set("units", "metric")

	data, err := c.GetWithRetry(ctx, c.baseURL+"/weather?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch current weather: %w", err)
	}

	var response OpenWeatherCurrentResponse
	if err := json.Unmarshal(data, &response); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if response.Cod != 200 {
		return nil, fmt.Errorf("API error: %d", response.Cod)
	}

	weather := &models.CurrentWeather{
		Location:    loc.Name,
		Temperature: response.Main.Temp,
		FeelsLike:   response.Main.FeelsLike,
		Humidity:    response.Main.Humidity,
		WindSpeed:   response.Wind.Speed,
		Timestamp:   time.Unix(response.Dt, 0).UTC(),
		Source:      "openweathermap",
	}
	if len(response.Weather) > 0 {
		weather.Description = response.Weather[0].Description
		weather.Icon = response.Weather[0].Icon
	}
	if weather.Location == "" {
		weather.Location = response.Name
	}

	return weather, nil
}
