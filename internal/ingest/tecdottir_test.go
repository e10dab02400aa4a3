package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const measurementsBody = `{
  "ok": true,
  "total_count": 2,
  "row_count": 2,
  "result": [
    {
      "station": "mythenquai",
      "timestamp": "2024-07-01T10:00:00.000Z",
      "values": {
        "air_temperature": {"value": 21.4, "unit": "°C", "status": "ok"},
        "water_temperature": {"value": 20.1, "unit": "°C", "status": "ok"},
        "wind_speed_avg_10min": {"value": 2.3, "unit": "m/s", "status": "ok"},
        "wind_force_avg_10min": {"value": 2, "unit": "bft", "status": "ok"},
        "wind_direction": {"value": 212, "unit": "°", "status": "ok"},
        "barometric_pressure_qfe": {"value": 968.9, "unit": "hPa", "status": "ok"},
        "humidity": {"value": 61, "unit": "%", "status": "ok"}
      }
    },
    {
      "station": "mythenquai",
      "timestamp": "2024-07-01T10:10:00.000Z",
      "values": {
        "air_temperature": {"value": null, "unit": "°C", "status": "broken"}
      }
    }
  ]
}`

func newTestClient(url string) *TecdottirClient {
	c := NewTecdottirClient(url)
	c.newBackOff = func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 2)
	}
	return c
}

func TestFetchMeasurements(t *testing.T) {
	var gotPath, gotLimit string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotLimit = r.URL.Query().Get("limit")
		w.Write([]byte(measurementsBody))
	}))
	defer srv.Close()

	from := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	obs, body, result, err := newTestClient(srv.URL).FetchMeasurements(context.Background(), "mythenquai", from, from.Add(24*time.Hour), 500, 0)
	if err != nil {
		t.Fatalf("FetchMeasurements: %v", err)
	}
	if gotPath != "/measurements/mythenquai" || gotLimit != "500" {
		t.Errorf("request = %s limit %s", gotPath, gotLimit)
	}
	if len(body) == 0 || result.HTTPStatus != http.StatusOK || result.TotalCount != 2 {
		t.Errorf("result = %+v", result)
	}
	if len(obs) != 2 {
		t.Fatalf("len(obs) = %d, want 2", len(obs))
	}

	o := obs[0]
	if !o.ObservedAt.Equal(time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("ObservedAt = %v", o.ObservedAt)
	}
	if o.AirTemperature.Float64 != 21.4 || o.WindSpeed.Float64 != 2.3 || o.WindForce.Float64 != 2 ||
		o.WindDirection.Float64 != 212 || o.BarometricPressure.Float64 != 968.9 || o.WaterTemperature.Float64 != 20.1 {
		t.Errorf("values = %+v", o)
	}
	if obs[1].AirTemperature.Valid {
		t.Error("null upstream value must stay missing")
	}
}

func TestFetchMeasurements_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(measurementsBody))
	}))
	defer srv.Close()

	now := time.Now()
	obs, _, _, err := newTestClient(srv.URL).FetchMeasurements(context.Background(), "mythenquai", now.Add(-time.Hour), now, 10, 0)
	if err != nil {
		t.Fatalf("FetchMeasurements: %v", err)
	}
	if calls.Load() != 2 || len(obs) != 2 {
		t.Errorf("calls = %d, obs = %d", calls.Load(), len(obs))
	}
}

func TestFetchMeasurements_ClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	now := time.Now()
	_, _, result, err := newTestClient(srv.URL).FetchMeasurements(context.Background(), "nowhere", now.Add(-time.Hour), now, 10, 0)
	if err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
	if result.HTTPStatus != http.StatusNotFound {
		t.Errorf("HTTPStatus = %d", result.HTTPStatus)
	}
}

func TestFetchMeasurements_UpstreamNotOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok": false, "message": "invalid station"}`))
	}))
	defer srv.Close()

	now := time.Now()
	if _, _, _, err := newTestClient(srv.URL).FetchMeasurements(context.Background(), "x", now.Add(-time.Hour), now, 10, 0); err == nil {
		t.Error("expected error for ok=false")
	}
}
