package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/foxseedlab/localscribe/internal/metrics"
	"github.com/foxseedlab/localscribe/internal/orchestrator"
	"github.com/foxseedlab/localscribe/internal/repository"
	"github.com/foxseedlab/localscribe/internal/transcriber"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 200
)

type Transcriptions interface {
	Run(ctx context.Context, src orchestrator.Source) (orchestrator.Completed, error)
	Reset() error
	Current() orchestrator.Stage
	History(sinceSeq int64) []orchestrator.StageEvent
	RunEvents(runID string) []orchestrator.StageEvent
	LastError() (orchestrator.Error, bool)
	Mode() transcriber.Mode
	SetMode(mode transcriber.Mode)
}

type HTTPServer struct {
	server         *http.Server
	transcriptions Transcriptions
	runs           repository.RunRepository
	metrics        *metrics.Metrics
	maxUploadBytes int64
	startTime      time.Time
}

func NewHTTPServer(addr string, t Transcriptions, runs repository.RunRepository, m *metrics.Metrics, maxUploadBytes int64) *HTTPServer {
	h := &HTTPServer{
		transcriptions: t,
		runs:           runs,
		metrics:        m,
		maxUploadBytes: maxUploadBytes,
		startTime:      time.Now(),
	}
	h.server = &http.Server{
		Addr:              addr,
		Handler:           h.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return h
}

// Handler returns the routed mux. Uploads block until the run ends, so the
// server sets no write timeout.
func (h *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.withMetrics("/healthz", h.handleHealth))
	mux.HandleFunc("POST /v1/transcriptions", h.withMetrics("/v1/transcriptions", h.handleTranscribe))
	mux.HandleFunc("GET /v1/stage", h.withMetrics("/v1/stage", h.handleStage))
	mux.HandleFunc("GET /v1/events", h.withMetrics("/v1/events", h.handleEvents))
	mux.HandleFunc("POST /v1/reset", h.withMetrics("/v1/reset", h.handleReset))
	mux.HandleFunc("GET /v1/mode", h.withMetrics("/v1/mode", h.handleGetMode))
	mux.HandleFunc("PUT /v1/mode", h.withMetrics("/v1/mode", h.handleSetMode))
	mux.HandleFunc("GET /v1/runs", h.withMetrics("/v1/runs", h.handleRuns))
	mux.HandleFunc("GET /v1/runs/{id}", h.withMetrics("/v1/runs/{id}", h.handleRun))
	mux.HandleFunc("GET /v1/runs/{id}/events", h.withMetrics("/v1/runs/{id}/events", h.handleRunEvents))
	if h.metrics != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(h.metrics.Registry, promhttp.HandlerOpts{}))
	}
	return mux
}

func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()
		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler(ww, r)
		if h.metrics != nil {
			h.metrics.RecordHTTPRequest(r.Method, endpoint, strconv.Itoa(ww.statusCode), time.Since(startTime).Seconds())
		}
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (h *HTTPServer) Start() error {
	slog.Info("starting http api server", "address", h.server.Addr)
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()
	return nil
}

func (h *HTTPServer) Stop(ctx context.Context) error {
	slog.Info("stopping http api server")
	return h.server.Shutdown(ctx)
}

type errorResponse struct {
	Error string                  `json:"error"`
	Kind  string                  `json:"kind,omitempty"`
	Stage *orchestrator.StageView `json:"stage,omitempty"`
}

type transcriptionResponse struct {
	Text      string `json:"text"`
	ElapsedMs int64  `json:"elapsed_ms"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(h.startTime).Round(time.Second).String(),
		"stage":  h.transcriptions.Current().Kind(),
		"mode":   h.transcriptions.Mode(),
	})
}

func (h *HTTPServer) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}
	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, "expected multipart/form-data upload")
		return
	}
	var src orchestrator.Source
	for src == nil {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, `missing "file" part`)
			return
		}
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("read upload: %v", err))
			return
		}
		if part.FormName() != "file" {
			_ = part.Close()
			continue
		}
		name := part.FileName()
		if name == "" {
			name = "upload"
		}
		src = orchestrator.ReaderSource{Name: name, Reader: part}
	}

	done, err := h.transcriptions.Run(r.Context(), src)
	if err == nil {
		writeJSON(w, http.StatusOK, transcriptionResponse{Text: done.Text, ElapsedMs: done.ElapsedMs})
		return
	}

	switch {
	case errors.Is(err, orchestrator.ErrBusy):
		// A finished run stays visible until POST /v1/reset dismisses it.
		view := orchestrator.Describe(h.transcriptions.Current())
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Kind: "busy", Stage: &view})
		return
	case errors.Is(err, orchestrator.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	resp := errorResponse{Error: err.Error(), Kind: orchestrator.ErrorKind(err)}
	if stage, ok := h.transcriptions.LastError(); ok {
		view := orchestrator.Describe(stage)
		resp.Error = stage.Message
		resp.Stage = &view
	}
	writeJSON(w, failureStatus(err), resp)
}

func failureStatus(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, orchestrator.ErrSourceUnavailable):
		return http.StatusBadRequest
	case errors.Is(err, transcriber.ErrModelLoadFailed), errors.Is(err, transcriber.ErrInferenceFailed):
		return http.StatusBadGateway
	}
	return http.StatusUnprocessableEntity
}

func (h *HTTPServer) handleStage(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, orchestrator.Describe(h.transcriptions.Current()))
}

func (h *HTTPServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	var since int64
	if raw := r.URL.Query().Get("since"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			writeError(w, http.StatusBadRequest, "since must be a non-negative integer")
			return
		}
		since = v
	}
	events := h.transcriptions.History(since)
	next := since
	if len(events) > 0 {
		next = events[len(events)-1].Seq
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"next":   next,
	})
}

func (h *HTTPServer) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := h.transcriptions.Reset(); err != nil {
		if errors.Is(err, orchestrator.ErrNotResettable) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, orchestrator.Describe(h.transcriptions.Current()))
}

type modeRequest struct {
	Mode string `json:"mode"`
}

func (h *HTTPServer) handleGetMode(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, modeRequest{Mode: string(h.transcriptions.Mode())})
}

func (h *HTTPServer) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	mode, err := transcriber.ParseMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.transcriptions.SetMode(mode)
	writeJSON(w, http.StatusOK, modeRequest{Mode: string(mode)})
}

func (h *HTTPServer) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(v, maxRunsLimit)
	}
	runs, err := h.runs.ListRecentRuns(r.Context(), limit)
	if err != nil {
		slog.Error("failed to list runs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	out := make([]runResponse, 0, len(runs))
	for _, run := range runs {
		out = append(out, toRunResponse(run))
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": out})
}

func (h *HTTPServer) handleRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.runs.GetRun(r.Context(), r.PathValue("id"))
	if errors.Is(err, repository.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		slog.Error("failed to get run", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}
	writeJSON(w, http.StatusOK, toRunResponse(*run))
}

func (h *HTTPServer) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	events := h.transcriptions.RunEvents(r.PathValue("id"))
	if len(events) == 0 {
		writeError(w, http.StatusNotFound, "no events retained for run")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

type runResponse struct {
	ID           string    `json:"id"`
	DisplayName  string    `json:"display_name"`
	Engine       string    `json:"engine"`
	Variant      string    `json:"variant"`
	Status       string    `json:"status"`
	FailedStage  string    `json:"failed_stage,omitempty"`
	ErrorKind    string    `json:"error_kind,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Transcript   string    `json:"transcript,omitempty"`
	AudioSeconds float64   `json:"audio_seconds"`
	ElapsedMs    int64     `json:"elapsed_ms"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}

func toRunResponse(r repository.Run) runResponse {
	return runResponse{
		ID:           r.ID,
		DisplayName:  r.DisplayName,
		Engine:       r.Engine,
		Variant:      r.Variant,
		Status:       string(r.Status),
		FailedStage:  r.FailedStage,
		ErrorKind:    r.ErrorKind,
		ErrorMessage: r.ErrorMessage,
		Transcript:   r.Transcript,
		AudioSeconds: r.AudioSeconds,
		ElapsedMs:    r.ElapsedMs,
		StartedAt:    r.StartedAt,
		FinishedAt:   r.FinishedAt,
	}
}
