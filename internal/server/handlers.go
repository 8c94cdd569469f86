package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"churchrank/internal/dataset"
	"churchrank/internal/refresh"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns the http api:
//
//	GET /api/scrape-all   consolidated payload, ?refresh=true forces a refresh, ?from=&to= picks years
//	GET /api/churches     entities matching ?q=
//	GET /api/series       chart series for ?name=...&metric=
//	GET /api/trends       trend and growth of every entity for ?metric=
//	GET /healthz
//	GET /metrics
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.route(mux, "GET /api/scrape-all", s.handleScrapeAll)
	s.route(mux, "GET /api/churches", s.handleChurches)
	s.route(mux, "GET /api/series", s.handleSeries)
	s.route(mux, "GET /api/trends", s.handleTrends)
	s.route(mux, "GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return s.cors(mux)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) route(mux *http.ServeMux, pattern string, handler http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		handler(recorder, r)
		s.metrics.requests.WithLabelValues(pattern, strconv.Itoa(recorder.status)).Inc()
	})
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("access-control-allow-origin", s.opts.AllowedOrigin)
		w.Header().Set("access-control-allow-methods", "GET, OPTIONS")
		w.Header().Set("access-control-allow-headers", "content-type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type errorResponse struct {
	Error  string              `json:"error"`
	Errors []refresh.YearError `json:"errors,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(value)
	if err != nil {
		s.tel.ReportBroken(report_server_respond, err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error, yearErrors []refresh.YearError) {
	s.writeJSON(w, status, errorResponse{Error: err.Error(), Errors: yearErrors})
}

// refreshStatus maps a refresh failure to the status the dashboard sees.
func refreshStatus(err error) int {
	switch {
	case errors.Is(err, refresh.ErrBackendContractViolation),
		errors.Is(err, refresh.ErrNoData):
		return http.StatusBadGateway
	case errors.Is(err, refresh.ErrCancelled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func parseYears(r *http.Request) ([]int, error) {
	query := r.URL.Query()
	fromParam, toParam := query.Get("from"), query.Get("to")
	if fromParam == "" && toParam == "" {
		return nil, nil
	}
	from, err := strconv.Atoi(fromParam)
	if err != nil {
		return nil, fmt.Errorf("invalid from %q", fromParam)
	}
	to, err := strconv.Atoi(toParam)
	if err != nil {
		return nil, fmt.Errorf("invalid to %q", toParam)
	}
	if from > to || to-from > 50 {
		return nil, fmt.Errorf("invalid year range %d-%d", from, to)
	}
	return dataset.YearRange(from, to), nil
}

type healthResponse struct {
	Status      string     `json:"status"`
	LastRefresh *time.Time `json:"last_refresh"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	res := healthResponse{Status: "ok"}
	if last := s.LastRefresh(); !last.IsZero() {
		res.LastRefresh = &last
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleScrapeAll(w http.ResponseWriter, r *http.Request) {
	years, err := parseYears(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err, nil)
		return
	}
	force, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))

	result, err := s.Result(r.Context(), years, force)
	if err != nil {
		s.writeError(w, refreshStatus(err), err, result.Errors)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleChurches(w http.ResponseWriter, r *http.Request) {
	result, err := s.Result(r.Context(), nil, false)
	if err != nil {
		s.writeError(w, refreshStatus(err), err, result.Errors)
		return
	}
	matches := dataset.Filter(result.Entities, r.URL.Query().Get("q"))
	if matches == nil {
		matches = []dataset.Entity{}
	}
	s.writeJSON(w, http.StatusOK, matches)
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	metric, err := dataset.ParseMetric(r.URL.Query().Get("metric"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err, nil)
		return
	}
	result, err := s.Result(r.Context(), nil, false)
	if err != nil {
		s.writeError(w, refreshStatus(err), err, result.Errors)
		return
	}

	names := r.URL.Query()["name"]
	points := dataset.Series(result.Entities, names, dataset.Years(result.Entities), metric)
	if points == nil {
		points = []dataset.SeriesPoint{}
	}
	s.writeJSON(w, http.StatusOK, points)
}

func (s *Server) handleTrends(w http.ResponseWriter, r *http.Request) {
	metric, err := dataset.ParseMetric(r.URL.Query().Get("metric"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err, nil)
		return
	}
	result, err := s.Result(r.Context(), nil, false)
	if err != nil {
		s.writeError(w, refreshStatus(err), err, result.Errors)
		return
	}
	s.writeJSON(w, http.StatusOK, dataset.Trends(result.Entities, metric))
}
