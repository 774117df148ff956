// Package aemet implements the client for the AEMET OpenData REST API.
//
// Most endpoints answer with a small JSON envelope whose "datos" field points
// at a second URL carrying the actual payload; the client follows it
// transparently. Retries, backoff and circuit breaking live here, so callers
// can treat every fetch as final.
package aemet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

const (
	defaultBaseURL = "https://opendata.aemet.es/opendata/api"

	// reqCountHeader reports the caller's remaining API quota.
	reqCountHeader = "Remaining-request-count"

	townIDPrefix = "id"
)

// Client interacts with the AEMET OpenData API.
type Client struct {
	baseURL string
	apiKey  string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker

	// remaining holds the last seen request quota, -1 until known.
	remaining atomic.Int64
}

// NewClient creates an API client using the shared HTTP client and the
// account API key.
func NewClient(httpClient *http.Client, apiKey string) *Client {
	return newClient(defaultBaseURL, httpClient, apiKey)
}

// NewClientWithBaseURL is intended for tests against a mock server.
func NewClientWithBaseURL(baseURL string, httpClient *http.Client, apiKey string) *Client {
	return newClient(strings.TrimSuffix(baseURL, "/"), httpClient, apiKey)
}

func newClient(baseURL string, httpClient *http.Client, apiKey string) *Client {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "aemet",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpCfg: HTTPClientConfig{
			Client: httpClient,
			Backoff: BackoffConfig{
				MaxRetries:      3,
				InitialInterval: 500 * time.Millisecond,
				MaxInterval:     5 * time.Second,
			},
		},
		circuit: cb,
	}
	c.remaining.Store(-1)
	return c
}

// RemainingRequests returns the API quota reported by the last response,
// or -1 if no response carried it yet.
func (c *Client) RemainingRequests() int64 {
	return c.remaining.Load()
}

// get performs one resilient GET and returns the decoded body. Responses
// declaring a Latin charset (the municipality master list arrives as
// ISO-8859-15) are transcoded to UTF-8 so place names survive intact.
func (c *Client) get(ctx context.Context, rawURL string, withKey bool) ([]byte, error) {
	buildRequest := func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Cache-Control", "no-cache")
		if withKey {
			req.Header.Set("api_key", c.apiKey)
		}
		return req, nil
	}

	resp, err := doRequestWithResilience(ctx, c.httpCfg, c.circuit, buildRequest)
	if err != nil {
		if errors.Is(err, errRateLimited) {
			return nil, ErrTooManyRequests
		}
		return nil, &TransportError{Endpoint: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if v := resp.Header.Get(reqCountHeader); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.remaining.Store(n)
		}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrAuth
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrAPIData
	case resp.StatusCode != http.StatusOK:
		return nil, &APIError{Endpoint: rawURL, StatusCode: resp.StatusCode}
	}

	var body io.Reader = resp.Body
	if enc := charsetOf(resp.Header.Get("Content-Type")); enc != nil {
		body = transform.NewReader(resp.Body, enc.NewDecoder())
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, &TransportError{Endpoint: rawURL, Err: err}
	}
	return data, nil
}

func charsetOf(contentType string) *charmap.Charmap {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil
	}
	switch strings.ToLower(params["charset"]) {
	case "iso-8859-15":
		return charmap.ISO8859_15
	case "iso-8859-1", "latin1":
		return charmap.ISO8859_1
	case "windows-1252":
		return charmap.Windows1252
	}
	return nil
}

// fetchData calls an envelope endpoint and follows its "datos" URL.
func (c *Client) fetchData(ctx context.Context, path string) ([]byte, error) {
	body, err := c.get(ctx, c.baseURL+"/"+path, true)
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("aemet: decoding envelope for %s: %w", path, err)
	}
	if env.State == http.StatusNotFound {
		return nil, ErrAPIData
	}
	if env.Data == "" {
		return nil, fmt.Errorf("%w: empty data URL for %s", ErrAPIData, path)
	}

	log.Printf("aemet: %s -> %s", path, env.Data)

	data, err := c.get(ctx, env.Data, false)
	if err != nil {
		return nil, err
	}

	// Some payloads embed their own 404 state.
	var probe struct {
		State int `json:"estado"`
	}
	if json.Unmarshal(data, &probe) == nil && probe.State == http.StatusNotFound {
		return nil, ErrAPIData
	}

	return data, nil
}

// Towns fetches the municipality master list.
func (c *Client) Towns(ctx context.Context) ([]TownRecord, error) {
	data, err := c.fetchData(ctx, "maestro/municipios")
	if err != nil {
		return nil, err
	}
	var towns []TownRecord
	if err := json.Unmarshal(data, &towns); err != nil {
		return nil, fmt.Errorf("aemet: decoding towns: %w", err)
	}
	return towns, nil
}

// ObservationStations fetches the latest sample of every conventional
// observation station. Station metadata (id, name, coordinates, altitude)
// is carried on the samples themselves.
func (c *Client) ObservationStations(ctx context.Context) ([]ObservationData, error) {
	data, err := c.fetchData(ctx, "observacion/convencional/todas")
	if err != nil {
		return nil, err
	}
	var samples []ObservationData
	if err := json.Unmarshal(data, &samples); err != nil {
		return nil, fmt.Errorf("aemet: decoding observation stations: %w", err)
	}
	return samples, nil
}

// StationObservations fetches the recent samples (last ~24h, hourly) of one
// conventional observation station.
func (c *Client) StationObservations(ctx context.Context, stationID string) ([]ObservationData, error) {
	data, err := c.fetchData(ctx, "observacion/convencional/datos/estacion/"+stationID)
	if err != nil {
		return nil, err
	}
	var samples []ObservationData
	if err := json.Unmarshal(data, &samples); err != nil {
		return nil, fmt.Errorf("aemet: decoding observations for %s: %w", stationID, err)
	}
	return samples, nil
}

// ClimatologicalStations fetches the climatological values station inventory.
func (c *Client) ClimatologicalStations(ctx context.Context) ([]ClimatologicalStationRecord, error) {
	data, err := c.fetchData(ctx, "valores/climatologicos/inventarioestaciones/todasestaciones")
	if err != nil {
		return nil, err
	}
	var stations []ClimatologicalStationRecord
	if err := json.Unmarshal(data, &stations); err != nil {
		return nil, fmt.Errorf("aemet: decoding climatological stations: %w", err)
	}
	return stations, nil
}

// TownForecastDaily fetches the daily forecast for a municipality.
func (c *Client) TownForecastDaily(ctx context.Context, townID string) (*DailyForecastResponse, error) {
	data, err := c.fetchData(ctx, "prediccion/especifica/municipio/diaria/"+ParseTownCode(townID))
	if err != nil {
		return nil, err
	}
	return decodeForecast[DailyForecastDay, DailyForecastResponse](data, func(r forecastResponse[DailyForecastDay]) DailyForecastResponse {
		return DailyForecastResponse{
			Elaborated: r.Elaborated,
			Name:       r.Name,
			Province:   r.Province,
			Days:       r.Forecast.Days,
		}
	})
}

// TownForecastHourly fetches the hourly forecast for a municipality.
func (c *Client) TownForecastHourly(ctx context.Context, townID string) (*HourlyForecastResponse, error) {
	data, err := c.fetchData(ctx, "prediccion/especifica/municipio/horaria/"+ParseTownCode(townID))
	if err != nil {
		return nil, err
	}
	return decodeForecast[HourlyForecastDay, HourlyForecastResponse](data, func(r forecastResponse[HourlyForecastDay]) HourlyForecastResponse {
		return HourlyForecastResponse{
			Elaborated: r.Elaborated,
			Name:       r.Name,
			Province:   r.Province,
			Days:       r.Forecast.Days,
		}
	})
}

// decodeForecast handles forecast payloads, which arrive as a single-element
// JSON array.
func decodeForecast[D any, R any](data []byte, build func(forecastResponse[D]) R) (*R, error) {
	var responses []forecastResponse[D]
	if err := json.Unmarshal(data, &responses); err != nil {
		return nil, fmt.Errorf("aemet: decoding forecast: %w", err)
	}
	if len(responses) == 0 {
		return nil, fmt.Errorf("%w: empty forecast payload", ErrAPIData)
	}
	out := build(responses[0])
	return &out, nil
}

// ParseTownCode strips the master-list "id" prefix from a town identifier,
// so both "id28065" and "28065" address the same municipality.
func ParseTownCode(townID string) string {
	return strings.TrimPrefix(townID, townIDPrefix)
}
