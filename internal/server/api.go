package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/efebarandurmaz/codegraph/internal/query"
	"github.com/efebarandurmaz/codegraph/internal/vector"
)

// Searcher finds nodes by free text.
type Searcher interface {
	Search(ctx context.Context, text string, k int) ([]vector.Hit, error)
}

// API serves read-only graph queries over HTTP.
type API struct {
	query   *query.Service
	search  Searcher
	metrics http.Handler
	health  *HealthServer
	logger  *slog.Logger
}

// APIOption configures an API.
type APIOption func(*API)

// WithSearch enables GET /search.
func WithSearch(s Searcher) APIOption { return func(a *API) { a.search = s } }

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) APIOption { return func(a *API) { a.metrics = h } }

// WithHealth mounts the health endpoints.
func WithHealth(h *HealthServer) APIOption { return func(a *API) { a.health = h } }

// WithAPILogger sets the request error logger.
func WithAPILogger(l *slog.Logger) APIOption { return func(a *API) { a.logger = l } }

// NewAPI creates an API over svc.
func NewAPI(svc *query.Service, opts ...APIOption) *API {
	a := &API{query: svc, logger: slog.Default()}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Handler returns the routed API.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /graphs/{id}", a.handleGraph)
	mux.HandleFunc("GET /graphs/{domain}/sub/{sub}", a.handleSubGraph)
	mux.HandleFunc("GET /graphs/{domain}/sub/{sub}/cross-edges", a.handleCrossEdges)
	mux.HandleFunc("GET /dependencies", a.handleDependencies)
	mux.HandleFunc("GET /dependents", a.handleDependents)
	mux.HandleFunc("GET /impact", a.handleImpact)
	mux.HandleFunc("GET /recommend", a.handleRecommend)
	mux.HandleFunc("GET /status", a.handleStatus)
	mux.HandleFunc("GET /search", a.handleSearch)
	if a.metrics != nil {
		mux.Handle("GET /metrics", a.metrics)
	}
	if a.health != nil {
		a.health.Register(mux)
	}
	return mux
}

func (a *API) handleGraph(w http.ResponseWriter, r *http.Request) {
	g, err := a.query.LoadGraph(r.Context(), r.PathValue("id"))
	a.respond(w, g, err)
}

func (a *API) handleSubGraph(w http.ResponseWriter, r *http.Request) {
	g, err := a.query.LoadSubGraph(r.Context(), r.PathValue("domain"), r.PathValue("sub"))
	a.respond(w, g, err)
}

func (a *API) handleCrossEdges(w http.ResponseWriter, r *http.Request) {
	edges, err := a.query.CrossEdges(r.Context(), r.PathValue("domain"), r.PathValue("sub"))
	a.respond(w, edges, err)
}

type nodeList struct {
	Graph string   `json:"graph"`
	Node  string   `json:"node"`
	IDs   []string `json:"ids"`
}

// nodeParams reads the graph and node query parameters, answering 400 when
// either is missing.
func (a *API) nodeParams(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	graphID, nodeID := r.URL.Query().Get("graph"), r.URL.Query().Get("node")
	if graphID == "" || nodeID == "" {
		a.fail(w, http.StatusBadRequest, errors.New("graph and node parameters are required"))
		return "", "", false
	}
	return graphID, nodeID, true
}

func (a *API) handleDependencies(w http.ResponseWriter, r *http.Request) {
	graphID, nodeID, ok := a.nodeParams(w, r)
	if !ok {
		return
	}
	ids, err := a.query.FindDependencies(r.Context(), graphID, nodeID)
	a.respond(w, nodeList{Graph: graphID, Node: nodeID, IDs: ids}, err)
}

func (a *API) handleDependents(w http.ResponseWriter, r *http.Request) {
	graphID, nodeID, ok := a.nodeParams(w, r)
	if !ok {
		return
	}
	ids, err := a.query.FindDependents(r.Context(), graphID, nodeID)
	a.respond(w, nodeList{Graph: graphID, Node: nodeID, IDs: ids}, err)
}

func (a *API) handleImpact(w http.ResponseWriter, r *http.Request) {
	graphID, nodeID, ok := a.nodeParams(w, r)
	if !ok {
		return
	}
	rep, err := a.query.ImpactAnalysis(r.Context(), graphID, nodeID)
	a.respond(w, rep, err)
}

// handleRecommend routes a task description. With ?domain set, the domain's
// sub-router picks a sub-graph instead.
func (a *API) handleRecommend(w http.ResponseWriter, r *http.Request) {
	task := r.URL.Query().Get("task")
	if task == "" {
		a.fail(w, http.StatusBadRequest, errors.New("missing task parameter"))
		return
	}
	if domain := r.URL.Query().Get("domain"); domain != "" {
		rec, err := a.query.RecommendSubGraph(r.Context(), domain, task)
		a.respond(w, rec, err)
		return
	}
	rec, err := a.query.Recommend(r.Context(), task)
	a.respond(w, rec, err)
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	rep, err := a.query.Status(r.Context())
	a.respond(w, rep, err)
}

func (a *API) handleSearch(w http.ResponseWriter, r *http.Request) {
	if a.search == nil {
		a.fail(w, http.StatusNotImplemented, errors.New("vector index not configured"))
		return
	}
	text := r.URL.Query().Get("q")
	if text == "" {
		a.fail(w, http.StatusBadRequest, errors.New("missing q parameter"))
		return
	}
	k := 10
	if raw := r.URL.Query().Get("k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			a.fail(w, http.StatusBadRequest, errors.New("k must be a positive integer"))
			return
		}
		k = n
	}
	hits, err := a.search.Search(r.Context(), text, k)
	a.respond(w, hits, err)
}

func (a *API) respond(w http.ResponseWriter, body any, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, body)
	case query.IsNotFound(err):
		a.fail(w, http.StatusNotFound, err)
	default:
		a.logger.Error("request failed", "error", err)
		a.fail(w, http.StatusInternalServerError, err)
	}
}

func (a *API) fail(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
