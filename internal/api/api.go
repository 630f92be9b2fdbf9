// Package api serves the snapshot and the run ledger read-only over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/repreneur-cli/internal/model"
	"github.com/sells-group/repreneur-cli/internal/sink"
	"github.com/sells-group/repreneur-cli/internal/store"
)

// SnapshotLoader reads the current snapshot. *sink.Snapshot implements it.
type SnapshotLoader interface {
	Load(ctx context.Context) (*sink.Document, error)
}

// Handler wires the read-only endpoints.
type Handler struct {
	snapshot SnapshotLoader
	store    store.Store
	gatherer prometheus.Gatherer
}

// New creates a Handler. A nil gatherer disables /metrics.
func New(snapshot SnapshotLoader, st store.Store, gatherer prometheus.Gatherer) *Handler {
	if st == nil {
		st = store.Noop{}
	}
	return &Handler{snapshot: snapshot, store: st, gatherer: gatherer}
}

// Router returns the full route tree with CORS for allowedOrigins.
func (h *Handler) Router(allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	h.Register(r)
	return r
}

// Register mounts the endpoints on r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/health", h.HandleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/candidates", h.HandleListCandidates)
		r.Get("/candidates/{legalID}", h.HandleGetCandidate)
		r.Get("/runs", h.HandleListRuns)
		r.Get("/runs/{runID}", h.HandleGetRun)
	})
	if h.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}
}

// HandleHealth handles GET /health.
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type candidatesResponse struct {
	GeneratedAt time.Time         `json:"generated_at"`
	RunID       string            `json:"run_id"`
	Count       int               `json:"count"`
	Candidates  []model.Candidate `json:"candidates"`
}

type groupedResponse struct {
	GeneratedAt time.Time                    `json:"generated_at"`
	RunID       string                       `json:"run_id"`
	Count       int                          `json:"count"`
	Groups      map[string][]model.Candidate `json:"groups"`
}

// HandleListCandidates handles GET /api/candidates. Query parameters:
// channel (SUCCESSION or DISTRESSED), min_score, and group=true to split
// the result per channel.
func (h *Handler) HandleListCandidates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	channel := model.Channel(strings.ToUpper(q.Get("channel")))
	switch channel {
	case "", model.ChannelSuccession, model.ChannelDistressed:
	default:
		writeError(w, http.StatusBadRequest, "channel must be SUCCESSION or DISTRESSED")
		return
	}
	var minScore float64
	if v := q.Get("min_score"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			writeError(w, http.StatusBadRequest, "min_score must be a non-negative number")
			return
		}
		minScore = f
	}

	doc, ok := h.load(w, r)
	if !ok {
		return
	}

	cs := sink.Filter(doc.Candidates, channel, minScore)
	if q.Get("group") == "true" {
		writeJSON(w, http.StatusOK, groupedResponse{
			GeneratedAt: doc.GeneratedAt, RunID: doc.RunID, Count: len(cs), Groups: sink.Group(cs),
		})
		return
	}
	writeJSON(w, http.StatusOK, candidatesResponse{
		GeneratedAt: doc.GeneratedAt, RunID: doc.RunID, Count: len(cs), Candidates: cs,
	})
}

// HandleGetCandidate handles GET /api/candidates/{legalID}.
func (h *Handler) HandleGetCandidate(w http.ResponseWriter, r *http.Request) {
	legalID := chi.URLParam(r, "legalID")
	doc, ok := h.load(w, r)
	if !ok {
		return
	}
	c, found := sink.Find(doc.Candidates, legalID)
	if !found {
		writeError(w, http.StatusNotFound, "candidate not found")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// HandleListRuns handles GET /api/runs?status=&limit=&offset=.
func (h *Handler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.RunFilter{Status: model.RunStatus(q.Get("status")), Limit: 50}
	for key, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		v := q.Get(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, key+" must be a non-negative integer")
			return
		}
		*dst = n
	}

	runs, err := h.store.ListRuns(r.Context(), filter)
	if err != nil {
		zap.L().Error("api: list runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(runs), "runs": runs})
}

// HandleGetRun handles GET /api/runs/{runID}.
func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.store.GetRun(r.Context(), chi.URLParam(r, "runID"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		zap.L().Error("api: get run", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (*sink.Document, bool) {
	doc, err := h.snapshot.Load(r.Context())
	if err != nil {
		zap.L().Error("api: load snapshot", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "snapshot unavailable")
		return nil, false
	}
	return doc, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
