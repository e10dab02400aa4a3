package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"

	"github.com/lox/wettermonitor/internal/httputil"
	"github.com/lox/wettermonitor/internal/metrics"
	"github.com/lox/wettermonitor/internal/models"
)

const DefaultTecdottirURL = "https://tecdottir.herokuapp.com"

// upstream value keys per stored field
var tecdottirFields = map[string]models.Field{
	"air_temperature":         models.FieldAirTemperature,
	"water_temperature":       models.FieldWaterTemperature,
	"wind_speed_avg_10min":    models.FieldWindSpeed,
	"wind_force_avg_10min":    models.FieldWindForce,
	"wind_direction":          models.FieldWindDirection,
	"barometric_pressure_qfe": models.FieldBarometricPressure,
}

// FetchResult describes one upstream call for the ingest audit.
type FetchResult struct {
	HTTPStatus   int
	ResponseSize int
	RecordCount  int
	TotalCount   int
	ParseErrors  int
	ParseError   string
}

// MeasurementFetcher fetches one page of measurements for a station.
type MeasurementFetcher interface {
	FetchMeasurements(ctx context.Context, station string, from, to time.Time, limit, offset int) ([]models.Observation, []byte, *FetchResult, error)
}

// TecdottirClient reads the lake station measurement API.
type TecdottirClient struct {
	baseURL    string
	client     *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
	newBackOff func() backoff.BackOff
}

func NewTecdottirClient(baseURL string) *TecdottirClient {
	if baseURL == "" {
		baseURL = DefaultTecdottirURL
	}
	return &TecdottirClient{
		baseURL: baseURL,
		client:  httputil.NewClient(),
		breaker: gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name:        "tecdottir",
			MaxRequests: 1,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 5
			},
		}),
		newBackOff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.MaxElapsedTime = 2 * time.Minute
			return bo
		},
	}
}

type measurementsResponse struct {
	OK         bool          `json:"ok"`
	Message    string        `json:"message"`
	TotalCount int           `json:"total_count"`
	RowCount   int           `json:"row_count"`
	Result     []measurement `json:"result"`
}

type measurement struct {
	Station   string                   `json:"station"`
	Timestamp string                   `json:"timestamp"`
	Values    map[string]measuredValue `json:"values"`
}

type measuredValue struct {
	Value  *float64 `json:"value"`
	Unit   string   `json:"unit"`
	Status string   `json:"status"`
}

type statusError struct {
	status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d", e.status)
}

// FetchMeasurements returns the observations of station in [from, to], oldest
// first. The raw body is returned for archiving.
func (c *TecdottirClient) FetchMeasurements(ctx context.Context, station string, from, to time.Time, limit, offset int) ([]models.Observation, []byte, *FetchResult, error) {
	q := url.Values{}
	q.Set("startDate", from.UTC().Format(time.RFC3339))
	q.Set("endDate", to.UTC().Format(time.RFC3339))
	q.Set("sort", "timestamp asc")
	q.Set("limit", fmt.Sprint(limit))
	q.Set("offset", fmt.Sprint(offset))
	endpoint := fmt.Sprintf("%s/measurements/%s?%s", c.baseURL, url.PathEscape(station), q.Encode())

	result := &FetchResult{}
	start := time.Now()

	var body []byte
	operation := func() error {
		b, err := c.breaker.Execute(func() ([]byte, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return nil, err
			}
			resp, err := c.client.Do(req)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()

			result.HTTPStatus = resp.StatusCode
			if resp.StatusCode != http.StatusOK {
				io.Copy(io.Discard, resp.Body)
				return nil, &statusError{status: resp.StatusCode}
			}
			return io.ReadAll(resp.Body)
		})
		if err == nil {
			body = b
			return nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(fmt.Errorf("fetch %s: %w", station, err))
		}
		var se *statusError
		if errors.As(err, &se) && se.status != http.StatusTooManyRequests && se.status < 500 {
			return backoff.Permanent(fmt.Errorf("fetch %s: %w", station, err))
		}
		return fmt.Errorf("fetch %s: %w", station, err)
	}

	err := backoff.Retry(operation, backoff.WithContext(c.newBackOff(), ctx))
	metrics.UpstreamLatency.WithLabelValues(station).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.UpstreamCallsTotal.WithLabelValues(station, "error").Inc()
		return nil, nil, result, err
	}
	metrics.UpstreamCallsTotal.WithLabelValues(station, "ok").Inc()
	result.ResponseSize = len(body)

	obs, err := parseMeasurements(body, station, result)
	if err != nil {
		return nil, body, result, err
	}
	return obs, body, result, nil
}

func parseMeasurements(body []byte, station string, result *FetchResult) ([]models.Observation, error) {
	var data measurementsResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	if !data.OK {
		return nil, fmt.Errorf("upstream error for %s: %s", station, data.Message)
	}
	result.TotalCount = data.TotalCount

	obs := make([]models.Observation, 0, len(data.Result))
	for _, m := range data.Result {
		observedAt, err := time.Parse(time.RFC3339, m.Timestamp)
		if err != nil {
			result.ParseErrors++
			result.ParseError = fmt.Sprintf("parse time %q: %v", m.Timestamp, err)
			continue
		}
		o := models.Observation{StationID: station, ObservedAt: observedAt.UTC()}
		for key, v := range m.Values {
			f, ok := tecdottirFields[key]
			if !ok || v.Value == nil {
				continue
			}
			o.Set(f, sql.NullFloat64{Float64: *v.Value, Valid: true})
		}
		obs = append(obs, o)
	}
	result.RecordCount = len(obs)
	return obs, nil
}
