package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/lox/wettermonitor/internal/store"
)

const staleThreshold = 60 * time.Minute

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: encode response: %v", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stations, err := s.store.GetActiveStations()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "error": err.Error()})
		return
	}

	health := HealthStatus{
		Status:   "ok",
		Stations: make([]StationHealth, 0, len(stations)),
	}
	if v, err := s.store.MigrationVersion(); err == nil {
		health.MigrationVersion = v
	}

	now := time.Now()
	for _, st := range stations {
		last, ok, err := s.store.LatestObservedAt(r.Context(), st.StationID)
		if err != nil {
			health.Errors = append(health.Errors, st.StationID+": "+err.Error())
			continue
		}

		sh := StationHealth{StationID: st.StationID}
		if ok {
			sh.LastSeen = last.In(s.store.Location())
			sh.AgeMinutes = int(now.Sub(last).Minutes())
			sh.Stale = now.Sub(last) > staleThreshold
		} else {
			sh.Stale = true
			sh.AgeMinutes = -1
		}
		health.Stations = append(health.Stations, sh)
	}

	if snap := s.forecasts.Latest(); snap != nil {
		t := snap.ComputedAt
		health.ForecastAt = &t
	}

	for _, sh := range health.Stations {
		if sh.Stale {
			health.Status = "degraded"
			break
		}
	}
	if len(health.Errors) > 0 {
		health.Status = "degraded"
	}

	writeJSON(w, http.StatusOK, health)
}

func (s *Server) handleAPICurrent(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newCurrentView(s.forecasts.Current(r.Context()), s.store.Location()))
}

func (s *Server) handleAPIForecast(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, NewForecastView(s.forecasts.Latest(), s.store.Location()))
}

func (s *Server) handleAPIPressureTrend(w http.ResponseWriter, r *http.Request) {
	trend := s.forecasts.PressureTrend(r.Context())
	writeJSON(w, http.StatusOK, PressureTrendView{
		Trend:       trend,
		Symbol:      trend.Symbol(),
		Description: trend.Description(),
	})
}

func (s *Server) handleAPIStations(w http.ResponseWriter, r *http.Request) {
	stations, err := s.store.GetActiveStations()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stations)
}

func (s *Server) handleAPIIngestRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			http.Error(w, "limit must be between 1 and 500", http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := s.store.RecentIngestRuns(r.Context(), store.RunFilter{
		Source:    r.URL.Query().Get("source"),
		StationID: r.URL.Query().Get("station"),
		Limit:     limit,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	views := make([]IngestRunView, 0, len(runs))
	for _, run := range runs {
		views = append(views, newIngestRunView(run))
	}
	writeJSON(w, http.StatusOK, views)
}
