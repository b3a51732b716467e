package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type OpenMeteoClient struct {
	latitude  float64
	longitude float64
	client    *http.Client
}

func NewOpenMeteoClient(latitude, longitude float64) *OpenMeteoClient {
	return &OpenMeteoClient{
		latitude:  latitude,
		longitude: longitude,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type openMeteoResponse struct {
	Timezone string `json:"timezone"`
	Current  struct {
		Time          string  `json:"time"`
		Temperature   float64 `json:"temperature_2m"`
		WeatherCode   int     `json:"weather_code"`
		Precipitation float64 `json:"precipitation"`
	} `json:"current"`
	Daily struct {
		Sunrise []string  `json:"sunrise"`
		Sunset  []string  `json:"sunset"`
		TempMax []float64 `json:"temperature_2m_max"`
		TempMin []float64 `json:"temperature_2m_min"`
	} `json:"daily"`
}

func (c *OpenMeteoClient) Get(ctx context.Context) (*Data, error) {
	query := url.Values{}
	query.Set("latitude", fmt.Sprintf("%.6f", c.latitude))
	query.Set("longitude", fmt.Sprintf("%.6f", c.longitude))
	query.Set("current", "temperature_2m,weather_code,precipitation")
	query.Set("daily", "sunrise,sunset,temperature_2m_max,temperature_2m_min")
	query.Set("timezone", "auto")
	query.Set("forecast_days", "1")

	endpoint := url.URL{
		Scheme:   "https",
		Host:     "api.open-meteo.com",
		Path:     "/v1/forecast",
		RawQuery: query.Encode(),
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("open-meteo request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open-meteo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("open-meteo bad status: %s", resp.Status)
	}

	var payload openMeteoResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("open-meteo decode: %w", err)
	}

	if strings.TrimSpace(payload.Current.Time) == "" {
		return nil, fmt.Errorf("open-meteo current data missing")
	}

	observed, _ := parseOpenMeteoTime(payload.Current.Time, payload.Timezone)
	condition, description := openMeteoDescribe(payload.Current.WeatherCode)

	data := &Data{
		Temperature:   payload.Current.Temperature,
		WeatherCode:   payload.Current.WeatherCode,
		Condition:     condition,
		Description:   description,
		Precipitation: payload.Current.Precipitation,
		LastUpdated:   observed,
	}

	if len(payload.Daily.Sunrise) > 0 {
		data.Sunrise, _ = parseOpenMeteoTime(payload.Daily.Sunrise[0], payload.Timezone)
	}
	if len(payload.Daily.Sunset) > 0 {
		data.Sunset, _ = parseOpenMeteoTime(payload.Daily.Sunset[0], payload.Timezone)
	}
	if len(payload.Daily.TempMax) > 0 {
		data.TempMax = payload.Daily.TempMax[0]
	}
	if len(payload.Daily.TempMin) > 0 {
		data.TempMin = payload.Daily.TempMin[0]
	}

	return data, nil
}

func parseOpenMeteoTime(value, timezone string) (time.Time, *time.Location) {
	loc := time.UTC
	if strings.TrimSpace(timezone) != "" {
		if parsed, err := time.LoadLocation(timezone); err == nil {
			loc = parsed
		}
	}

	if t, err := time.ParseInLocation("2006-01-02T15:04", value, loc); err == nil {
		return t, loc
	}
	if t, err := time.ParseInLocation(time.RFC3339, value, loc); err == nil {
		return t, loc
	}
	return time.Time{}, loc
}

func openMeteoDescribe(code int) (string, string) {
	switch code {
	case 0:
		return "Clear", "clear sky"
	case 1:
		return "Clouds", "mainly clear"
	case 2:
		return "Clouds", "partly cloudy"
	case 3:
		return "Clouds", "overcast"
	case 45, 48:
		return "Fog", "fog"
	case 51, 53, 55, 56, 57:
		return "Drizzle", "drizzle"
	case 61, 63, 65, 66, 67:
		return "Rain", "rain"
	case 71, 73, 75, 77:
		return "Snow", "snow"
	case 80, 81, 82:
		return "Rain", "rain showers"
	case 85, 86:
		return "Snow", "snow showers"
	case 95:
		return "Thunderstorm", "thunderstorm"
	case 96, 99:
		return "Thunderstorm", "thunderstorm with hail"
	default:
		return "Unknown", "unknown conditions"
	}
}
