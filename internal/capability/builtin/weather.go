// Package builtin provides the stock capability implementations: weather
// lookup, web search, and smart-home device control. Each is a thin I/O
// wrapper around one external service.
package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/normanking/archon/internal/capability"
)

const (
	geocodingEndpoint = "https://geocoding-api.open-meteo.com/v1/search"
	forecastEndpoint  = "https://api.open-meteo.com/v1/forecast"
)

// WeatherClient talks to the Open-Meteo API. No API key required.
type WeatherClient struct {
	client *http.Client
}

// NewWeatherClient creates a weather client with a sane request timeout.
func NewWeatherClient() *WeatherClient {
	return &WeatherClient{
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

// Descriptor returns the registry entry for weather lookup.
func (w *WeatherClient) Descriptor() *capability.Descriptor {
	return &capability.Descriptor{
		Name:        "get_weather",
		Description: "Get the current weather and a short forecast for a city.",
		Domain:      "weather",
		Params: []capability.Param{
			{Name: "city", Type: "string", Description: "City name, e.g. Berlin", Required: true},
			{Name: "units", Type: "string", Description: "Unit system", Enum: []string{"metric", "imperial"}},
		},
		Invoke: w.invoke,
	}
}

type geocodingResponse struct {
	Results []struct {
		Name      string  `json:"name"`
		Country   string  `json:"country"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"results"`
}

type forecastResponse struct {
	Current struct {
		Temperature   float64 `json:"temperature_2m"`
		ApparentTemp  float64 `json:"apparent_temperature"`
		Humidity      int     `json:"relative_humidity_2m"`
		WindSpeed     float64 `json:"wind_speed_10m"`
		WeatherCode   int     `json:"weather_code"`
		Precipitation float64 `json:"precipitation"`
	} `json:"current"`
	CurrentUnits struct {
		Temperature string `json:"temperature_2m"`
		WindSpeed   string `json:"wind_speed_10m"`
	} `json:"current_units"`
}

func (w *WeatherClient) invoke(ctx context.Context, args map[string]string) (any, error) {
	city := args["city"]
	if city == "" {
		return nil, fmt.Errorf("city is required")
	}

	lat, lon, place, err := w.geocode(ctx, city)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%.4f", lat))
	q.Set("longitude", fmt.Sprintf("%.4f", lon))
	q.Set("current", "temperature_2m,apparent_temperature,relative_humidity_2m,wind_speed_10m,weather_code,precipitation")
	if args["units"] == "imperial" {
		q.Set("temperature_unit", "fahrenheit")
		q.Set("wind_speed_unit", "mph")
	}

	var forecast forecastResponse
	if err := w.getJSON(ctx, forecastEndpoint+"?"+q.Encode(), &forecast); err != nil {
		return nil, fmt.Errorf("fetch forecast: %w", err)
	}

	return map[string]any{
		"location":      place,
		"temperature":   fmt.Sprintf("%.1f%s", forecast.Current.Temperature, forecast.CurrentUnits.Temperature),
		"feels_like":    fmt.Sprintf("%.1f%s", forecast.Current.ApparentTemp, forecast.CurrentUnits.Temperature),
		"humidity_pct":  forecast.Current.Humidity,
		"wind":          fmt.Sprintf("%.1f %s", forecast.Current.WindSpeed, forecast.CurrentUnits.WindSpeed),
		"precipitation": forecast.Current.Precipitation,
		"conditions":    weatherCodeText(forecast.Current.WeatherCode),
	}, nil
}

func (w *WeatherClient) geocode(ctx context.Context, city string) (lat, lon float64, place string, err error) {
	q := url.Values{}
	q.Set("name", city)
	q.Set("count", "1")

	var geo geocodingResponse
	if err := w.getJSON(ctx, geocodingEndpoint+"?"+q.Encode(), &geo); err != nil {
		return 0, 0, "", fmt.Errorf("geocode %q: %w", city, err)
	}
	if len(geo.Results) == 0 {
		return 0, 0, "", fmt.Errorf("city not found: %s", city)
	}
	r := geo.Results[0]
	return r.Latitude, r.Longitude, fmt.Sprintf("%s, %s", r.Name, r.Country), nil
}

func (w *WeatherClient) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// weatherCodeText maps WMO weather codes to short descriptions.
func weatherCodeText(code int) string {
	switch {
	case code == 0:
		return "clear sky"
	case code <= 3:
		return "partly cloudy"
	case code <= 48:
		return "fog"
	case code <= 57:
		return "drizzle"
	case code <= 67:
		return "rain"
	case code <= 77:
		return "snow"
	case code <= 82:
		return "rain showers"
	case code <= 86:
		return "snow showers"
	default:
		return "thunderstorm"
	}
}
