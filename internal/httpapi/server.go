package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dlanza/callprobe/internal/config"
	"github.com/dlanza/callprobe/internal/conversation"
	"github.com/dlanza/callprobe/internal/engine"
	"github.com/dlanza/callprobe/internal/observability"
	"github.com/dlanza/callprobe/internal/resultstore"
	"github.com/dlanza/callprobe/internal/signaling"
)

// Runner executes one test conversation end to end.
type Runner interface {
	Run(ctx context.Context, spec conversation.TestCaseSpec, target engine.Target) (conversation.Result, error)
}

type Server struct {
	cfg    config.Config
	runner Runner
	store  resultstore.Store
	window *observability.LatencyWindow
}

func New(cfg config.Config, runner Runner, store resultstore.Store, window *observability.LatencyWindow) *Server {
	return &Server{
		cfg:    cfg,
		runner: runner,
		store:  store,
		window: window,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/runs", s.handleCreateRun)
	r.Get("/v1/runs/recent", s.handleRecentRuns)
	r.Get("/v1/runs/{callID}", s.handleGetRun)
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ready",
		"store_mode": s.storeMode(),
	})
}

type runRequest struct {
	TestCase conversation.TestCaseSpec `json:"test_case"`
	Provider string                    `json:"provider"`
	AgentID  string                    `json:"agent_id"`
	APIKey   string                    `json:"api_key,omitempty"`
	BaseURL  string                    `json:"base_url,omitempty"`
}

type runResponse struct {
	conversation.Result
	RecordingBytes int `json:"recording_bytes"`
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := decodeJSON(r, &req); err != nil {
		if errors.Is(err, errEmptyBody) {
			respondError(w, http.StatusBadRequest, "invalid_request", "request body is required")
			return
		}
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	req.Provider = strings.TrimSpace(req.Provider)
	req.AgentID = strings.TrimSpace(req.AgentID)
	if req.Provider == "" {
		respondError(w, http.StatusBadRequest, "missing_provider", "provider is required")
		return
	}
	if req.AgentID == "" && !strings.EqualFold(req.Provider, "mock") {
		respondError(w, http.StatusBadRequest, "missing_agent_id", "agent_id is required")
		return
	}
	if strings.TrimSpace(req.TestCase.OpeningGoal) == "" {
		respondError(w, http.StatusBadRequest, "missing_opening_goal", "test_case.opening_goal is required")
		return
	}

	apiKey := strings.TrimSpace(req.APIKey)
	if apiKey == "" {
		apiKey = s.providerAPIKey(req.Provider)
	}

	res, err := s.runner.Run(r.Context(), req.TestCase, engine.Target{
		Provider: req.Provider,
		AgentID:  req.AgentID,
		Credentials: signaling.Credentials{
			APIKey:  apiKey,
			BaseURL: strings.TrimSpace(req.BaseURL),
		},
	})
	if err != nil {
		// Setup failures still carry a Result describing what went wrong.
		respondJSON(w, http.StatusBadGateway, runResponse{Result: res})
		return
	}
	respondJSON(w, http.StatusOK, runResponse{
		Result:         res,
		RecordingBytes: len(res.Recording),
	})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	callID := strings.TrimSpace(chi.URLParam(r, "callID"))
	if callID == "" {
		respondError(w, http.StatusBadRequest, "missing_call_id", "call id is required")
		return
	}
	rec, err := s.store.Get(r.Context(), callID)
	if err != nil {
		if errors.Is(err, resultstore.ErrNotFound) {
			respondError(w, http.StatusNotFound, "run_not_found", "no result for call "+callID)
			return
		}
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleRecentRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}
	records, err := s.store.Recent(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	if records == nil {
		records = []resultstore.Record{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"runs": records})
}

func (s *Server) handlePerfLatency(w http.ResponseWriter, _ *http.Request) {
	if s.window == nil {
		respondJSON(w, http.StatusOK, observability.LatencySnapshot{})
		return
	}
	respondJSON(w, http.StatusOK, s.window.Snapshot())
}

// providerAPIKey returns the server-configured credential for a provider,
// used when the run request carries none.
func (s *Server) providerAPIKey(provider string) string {
	switch strings.ToLower(provider) {
	case "retell":
		return s.cfg.RetellAPIKey
	case "vapi":
		return s.cfg.VapiAPIKey
	default:
		return ""
	}
}

func (s *Server) storeMode() string {
	switch s.store.(type) {
	case *resultstore.PostgresStore:
		return "postgres"
	case *resultstore.InMemoryStore:
		return "in-memory"
	default:
		return "custom"
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
