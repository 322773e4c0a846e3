package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"overlayvideos/internal/app"
	"overlayvideos/internal/config"
	"overlayvideos/internal/logging"
	"overlayvideos/internal/overlay"
	"overlayvideos/internal/queue"
	"overlayvideos/internal/store"
)

type createRunRequest struct {
	InputFile       string            `json:"input_file"`
	OverlayFile     string            `json:"overlay_file"`
	OutputDir       string            `json:"output_dir"`
	CorrelationData map[string]string `json:"correlation_data,omitempty"`
}

type createRunResponse struct {
	TaskID string `json:"task_id"`
	Queue  string `json:"queue"`
}

type listRunsResponse struct {
	Runs []runResponse `json:"runs"`
}

type runResponse struct {
	ID          string  `json:"id"`
	JobName     string  `json:"job_name"`
	Transform   string  `json:"transform"`
	InputAsset  string  `json:"input_asset"`
	LogoAsset   string  `json:"logo_asset"`
	OutputAsset string  `json:"output_asset"`
	State       string  `json:"state"`
	Error       *string `json:"error,omitempty"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type runLister interface {
	ListRuns(ctx context.Context, limit int) ([]store.Run, error)
}

type server struct {
	cfg config.Config
	// dataDir is the absolute directory request paths are resolved under.
	dataDir string
	queue   queue.Enqueuer
	runs    runLister
	logger  *slog.Logger
}

func main() {
	cfg, err := config.Load(os.Getenv("OVERLAY_CONFIG"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dataDir, err := filepath.Abs(cfg.APIDataDir)
	if err != nil {
		logger.Error("resolve api data dir", "error", err)
		os.Exit(1)
	}
	if strings.TrimSpace(cfg.APIToken) == "" {
		logger.Warn("API_TOKEN is empty; requests are not authenticated")
	}

	s := &server{cfg: cfg, dataDir: dataDir, logger: logger}

	st, err := app.OpenLedger(ctx, cfg)
	switch {
	case err == nil:
		defer st.Close()
		s.runs = st
	case errors.Is(err, store.ErrDisabled):
		logger.Warn("run ledger disabled; GET /runs will answer 503")
	default:
		logger.Error("open ledger", "error", err)
		os.Exit(1)
	}

	client := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	defer client.Close()
	s.queue = client

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           authMiddleware(cfg.APIToken, s.routes()),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("api listening", "addr", cfg.HTTPAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("api stopped", "error", err)
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("/runs", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			s.createRun(w, r)
		case http.MethodGet:
			s.listRuns(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	return mux
}

func (s *server) createRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json"})
			return
		}
	}
	p := queue.RunPayload{CorrelationData: req.CorrelationData}
	fields := []struct {
		name  string
		value string
		dest  *string
	}{
		{"input_file", firstNonEmpty(req.InputFile, s.cfg.InputFile), &p.InputFile},
		{"overlay_file", firstNonEmpty(req.OverlayFile, s.cfg.OverlayFile), &p.OverlayFile},
		{"output_dir", firstNonEmpty(req.OutputDir, s.cfg.OutputDir), &p.OutputDir},
	}
	for _, f := range fields {
		resolved, err := overlay.ResolveUnder(s.dataDir, f.value)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: f.name + " must stay inside the data directory"})
			return
		}
		*f.dest = resolved
	}

	info, err := queue.EnqueueRun(r.Context(), s.queue, p, s.cfg.JobTimeout())
	if err != nil {
		s.logger.Error("enqueue run", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to enqueue"})
		return
	}
	writeJSON(w, http.StatusAccepted, createRunResponse{TaskID: info.ID, Queue: info.Queue})
}

func (s *server) listRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "run ledger disabled"})
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			limit = v
		}
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	items, err := s.runs.ListRuns(r.Context(), limit)
	if err != nil {
		s.logger.Error("list runs", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to load runs"})
		return
	}
	resp := listRunsResponse{Runs: make([]runResponse, 0, len(items))}
	for _, run := range items {
		item := runResponse{
			ID:          run.ID,
			JobName:     run.JobName,
			Transform:   run.TransformName,
			InputAsset:  run.InputAsset,
			LogoAsset:   run.LogoAsset,
			OutputAsset: run.OutputAsset,
			State:       run.State,
			CreatedAt:   run.CreatedAt.UTC().Format(time.RFC3339),
			UpdatedAt:   run.UpdatedAt.UTC().Format(time.RFC3339),
		}
		if run.Error.Valid {
			msg := run.Error.String
			item.Error = &msg
		}
		resp.Runs = append(resp.Runs, item)
	}
	writeJSON(w, http.StatusOK, resp)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func authMiddleware(token string, next http.Handler) http.Handler {
	if strings.TrimSpace(token) == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}
		if !isAuthorized(r, token) {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isAuthorized(r *http.Request, token string) bool {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == token {
		return true
	}
	return r.Header.Get("X-API-KEY") == token
}
