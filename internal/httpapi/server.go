// Package httpapi exposes the fetch plan repository over HTTP.
package httpapi

import (
	"errors"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"fetchplan-registry/internal/diagnostic"
	"fetchplan-registry/internal/fetchplan"
	"fetchplan-registry/internal/repository"
)

// Registry is the read side of the fetch plan repository.
type Registry interface {
	Get(entity, name string) (*fetchplan.FetchPlan, error)
	Names(entity string) ([]string, error)
	Diagnostics() (diagnostic.Diagnostics, error)
}

// Refresher reloads the definitions.
type Refresher interface {
	Refresh() error
}

// Config configures the handler. Gatherer may be nil to disable /metrics.
type Config struct {
	Logger     *logrus.Entry
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// Server serves fetch plans.
type Server struct {
	plans     Registry
	refresher Refresher
	log       *logrus.Entry
	router    *mux.Router
}

type namesResponse struct {
	Entity string   `json:"entity"`
	Names  []string `json:"names"`
}

type errorResponse struct {
	Error       string   `json:"error"`
	Suggestions []string `json:"suggestions,omitempty"`
}

type diagnosticsResponse struct {
	Errors   []diagnostic.Diagnostic `json:"errors"`
	Warnings []diagnostic.Diagnostic `json:"warnings"`
	Infos    []diagnostic.Diagnostic `json:"infos"`
}

// New creates the server and its routes. refresher may be nil, in which case
// POST /refresh is not routed.
func New(plans Registry, refresher Refresher, cfg Config) *Server {
	log := cfg.Logger
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = logrus.NewEntry(l)
	}

	s := &Server{
		plans:     plans,
		refresher: refresher,
		log:       log.WithField("component", "httpapi"),
		router:    mux.NewRouter(),
	}

	s.router.Use(logRequests(s.log))

	if cfg.Registerer != nil {
		s.router.Use(instrument(newMetrics(cfg.Registerer)))
	}

	s.router.HandleFunc("/fetch-plans/{entity}", s.handleNames).Methods(http.MethodGet)
	s.router.HandleFunc("/fetch-plans/{entity}/{name}", s.handleGet).Methods(http.MethodGet)
	s.router.HandleFunc("/diagnostics", s.handleDiagnostics).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	if refresher != nil {
		s.router.HandleFunc("/refresh", s.handleRefresh).Methods(http.MethodPost)
	}

	if cfg.Gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleNames(w http.ResponseWriter, r *http.Request) {
	entity := mux.Vars(r)["entity"]

	names, err := s.plans.Names(entity)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, namesResponse{Entity: entity, Names: names})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	plan, err := s.plans.Get(vars["entity"], vars["name"])
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, fetchplan.ToTree(plan))
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, _ *http.Request) {
	// A failed initialization is reported through its error diagnostics.
	diags, err := s.plans.Diagnostics()
	if err != nil && !diags.HasErrors() {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, diagnosticsResponse{
		Errors:   nonNil(diags.Errors),
		Warnings: nonNil(diags.Warnings),
		Infos:    nonNil(diags.Infos),
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, _ *http.Request) {
	if err := s.refresher.Refresh(); err != nil {
		s.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error()}

	var cfgErr *repository.ConfigError

	status := http.StatusInternalServerError

	// A broken definition is a server fault even when it names a missing entity.
	switch {
	case errors.As(err, &cfgErr):
		resp.Suggestions = cfgErr.Suggestions
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, repository.ErrUnknownEntity):
		status = http.StatusNotFound
	case errors.Is(err, repository.ErrEmptyName):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		s.log.WithError(err).Error("request failed")
	}

	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func nonNil(d []diagnostic.Diagnostic) []diagnostic.Diagnostic {
	if d == nil {
		return []diagnostic.Diagnostic{}
	}

	return d
}
