package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/redrabbit14-cmyk/my-running-dash/internal/models"
	"github.com/redrabbit14-cmyk/my-running-dash/internal/weekly"
)

type Config struct {
	Server struct {
		Port         string
		ReadTimeout  time.Duration
		WriteTimeout time.Duration
		LogLevel     string
		SentryDSN    string
		Environment  string
	}

	Crew struct {
		Members               []string
		WeekStart             string
		ReferenceDate         string
		Timezone              string
		PaceFloorSecPerKm     float64
		DistanceUnitThreshold float64
		ChartWeeks            int
	}

	Firestore struct {
		ProjectID       string
		Collection      string
		CredentialsFile string
		OrderBy         string
		Limit           int
	}

	RecordsAPI struct {
		URL   string
		Token string
	}

	RecordsFile string

	WeatherAPI struct {
		OpenWeatherAPIKey string
		OpenWeatherURL    string
		OpenMeteoURL      string
		Location          models.Location
		Enabled           bool
	}

	Scheduler struct {
		Schedule     string
		FetchTimeout time.Duration
	}

	Cache struct {
		Duration time.Duration
		MaxSize  int
	}

	CircuitBreaker struct {
		Threshold int
		Timeout   time.Duration
	}

	Retry struct {
		MaxRetries int
		Delay      time.Duration
		Multiplier float64
	}
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if err := godotenv.Load(); err != nil {
		zap.L().Info("No .env file found, using environment variables")
	}

	cfg := &Config{}

	// Server configuration
	cfg.Server.Port = getEnv("FIBER_PORT", "8080")
	cfg.Server.ReadTimeout = parseDuration("FIBER_READ_TIMEOUT", "10s")
	cfg.Server.WriteTimeout = parseDuration("FIBER_WRITE_TIMEOUT", "10s")
	cfg.Server.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.Server.SentryDSN = getEnv("SENTRY_DSN", "")
	cfg.Server.Environment = getEnv("ENVIRONMENT", "development")

	// Crew and weekly windows
	cfg.Crew.Members = splitList(getEnv("CREW_MEMBERS", ""))
	cfg.Crew.WeekStart = getEnv("WEEK_START", "monday")
	cfg.Crew.ReferenceDate = getEnv("REFERENCE_DATE", "")
	cfg.Crew.Timezone = getEnv("TIMEZONE", "Local")
	cfg.Crew.PaceFloorSecPerKm = parseFloat("PACE_FLOOR_SECONDS_PER_KM", "120")
	cfg.Crew.DistanceUnitThreshold = parseFloat("DISTANCE_UNIT_THRESHOLD", "100")
	cfg.Crew.ChartWeeks = parseInt("CHART_WEEKS", "12")

	// Record sources
	cfg.Firestore.ProjectID = getEnv("FIRESTORE_PROJECT_ID", "")
	cfg.Firestore.Collection = getEnv("FIRESTORE_COLLECTION", "activities")
	cfg.Firestore.CredentialsFile = getEnv("FIRESTORE_CREDENTIALS_FILE", "")
	cfg.Firestore.OrderBy = getEnv("FIRESTORE_ORDER_BY", "")
	cfg.Firestore.Limit = parseInt("FIRESTORE_LIMIT", "0")
	cfg.RecordsAPI.URL = getEnv("RECORDS_API_URL", "")
	cfg.RecordsAPI.Token = getEnv("RECORDS_API_TOKEN", "")
	cfg.RecordsFile = getEnv("RECORDS_FILE", "")

	// Weather API configuration
	cfg.WeatherAPI.OpenWeatherAPIKey = getEnv("OPENWEATHER_API_KEY", "")
	cfg.WeatherAPI.OpenWeatherURL = getEnv("OPENWEATHER_URL", "https://api.openweathermap.org/data/2.5")
	cfg.WeatherAPI.OpenMeteoURL = getEnv("OPENMETEO_URL", "https://api.open-meteo.com/v1")
	cfg.WeatherAPI.Location = models.Location{
		Name:      getEnv("WEATHER_LOCATION_NAME", "Seoul"),
		Latitude:  parseFloat("WEATHER_LATITUDE", "37.5665"),
		Longitude: parseFloat("WEATHER_LONGITUDE", "126.9780"),
	}
	cfg.WeatherAPI.Enabled = parseBool("WEATHER_ENABLED", "true")

	// Scheduler configuration
	cfg.Scheduler.Schedule = getEnv("REFRESH_SCHEDULE", "@every 15m")
	cfg.Scheduler.FetchTimeout = parseDuration("FETCH_TIMEOUT", "30s")

	// Cache configuration
	cfg.Cache.Duration = parseDuration("CACHE_DURATION", "10m")
	cfg.Cache.MaxSize = parseInt("MAX_CACHE_SIZE", "1000")

	// Circuit breaker configuration
	cfg.CircuitBreaker.Threshold = parseInt("CIRCUIT_BREAKER_THRESHOLD", "3")
	cfg.CircuitBreaker.Timeout = parseDuration("CIRCUIT_BREAKER_TIMEOUT", "30s")

	// Retry configuration
	cfg.Retry.MaxRetries = parseInt("MAX_RETRIES", "3")
	cfg.Retry.Delay = parseDuration("RETRY_DELAY", "1s")
	cfg.Retry.Multiplier = parseFloat("RETRY_MULTIPLIER", "2")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if _, err := c.WeekStart(); err != nil {
		errs = append(errs, fmt.Errorf("WEEK_START: %w", err))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, fmt.Errorf("TIMEZONE: %w", err))
	}
	if _, err := c.ReferenceDate(); err != nil {
		errs = append(errs, fmt.Errorf("REFERENCE_DATE: %w", err))
	}
	if c.Crew.PaceFloorSecPerKm < 0 {
		errs = append(errs, errors.New("PACE_FLOOR_SECONDS_PER_KM must not be negative"))
	}
	if c.Crew.DistanceUnitThreshold <= 0 {
		errs = append(errs, errors.New("DISTANCE_UNIT_THRESHOLD must be positive"))
	}
	if c.Crew.ChartWeeks <= 0 {
		errs = append(errs, errors.New("CHART_WEEKS must be positive"))
	}
	if c.Firestore.ProjectID == "" && c.RecordsAPI.URL == "" && c.RecordsFile == "" {
		errs = append(errs, errors.New("no record source: set FIRESTORE_PROJECT_ID, RECORDS_API_URL or RECORDS_FILE"))
	}

	return errors.Join(errs...)
}

func (c *Config) WeekStart() (time.Weekday, error) {
	return weekly.ParseWeekday(c.Crew.WeekStart)
}

func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Crew.Timezone)
}

// ReferenceDate returns the pinned reference date, or the zero time when the
// dashboard should follow the clock.
func (c *Config) ReferenceDate() (time.Time, error) {
	if c.Crew.ReferenceDate == "" {
		return time.Time{}, nil
	}
	loc, err := c.Location()
	if err != nil {
		loc = time.Local
	}
	return time.ParseInLocation("2006-01-02", c.Crew.ReferenceDate, loc)
}

// WeeklyOptions returns the aggregation options; call after Validate.
func (c *Config) WeeklyOptions() weekly.Options {
	start, _ := c.WeekStart()
	return weekly.Options{
		WeekStart:         start,
		PaceFloorSecPerKm: c.Crew.PaceFloorSecPerKm,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// The parse helpers read key from the environment and fall back to
// defaultValue when the setting is missing or malformed.
func parseDuration(key, defaultValue string) time.Duration {
	value := getEnv(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		warnFallback(key, value, defaultValue, err)
		duration, _ = time.ParseDuration(defaultValue)
	}
	return duration
}

func parseInt(key, defaultValue string) int {
	value := getEnv(key, defaultValue)
	intValue, err := strconv.Atoi(value)
	if err != nil {
		warnFallback(key, value, defaultValue, err)
		intValue, _ = strconv.Atoi(defaultValue)
	}
	return intValue
}

func parseFloat(key, defaultValue string) float64 {
	value := getEnv(key, defaultValue)
	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		warnFallback(key, value, defaultValue, err)
		floatValue, _ = strconv.ParseFloat(defaultValue, 64)
	}
	return floatValue
}

func parseBool(key, defaultValue string) bool {
	value := getEnv(key, defaultValue)
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		warnFallback(key, value, defaultValue, err)
		boolValue, _ = strconv.ParseBool(defaultValue)
	}
	return boolValue
}

func warnFallback(key, value, defaultValue string, err error) {
	zap.L().Warn("Invalid setting, using default",
		zap.String("key", key),
		zap.String("value", value),
		zap.String("default", defaultValue),
		zap.Error(err))
}
