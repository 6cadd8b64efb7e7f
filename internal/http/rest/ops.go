package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/italolelis/filebot/internal/logctx"
	"github.com/italolelis/filebot/internal/telemetry"
	"github.com/italolelis/filebot/internal/transfer"
)

const healthTimeout = 5 * time.Second

// SessionCounter reports how many lifecycles are being watched.
type SessionCounter interface {
	Len() int
}

type healthResponse struct {
	Status           string `json:"status"`
	EngineVersion    string `json:"engine_version,omitempty"`
	Error            string `json:"error,omitempty"`
	ActiveLifecycles int    `json:"active_lifecycles"`
}

type jobResponse struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Status          string `json:"status"`
	Progress        string `json:"progress"`
	Speed           string `json:"speed"`
	ETA             string `json:"eta"`
	TotalLength     int64  `json:"total_length"`
	CompletedLength int64  `json:"completed_length"`
	DownloadSpeed   int64  `json:"download_speed"`
	Dir             string `json:"dir,omitempty"`
	ErrorMessage    string `json:"error_message,omitempty"`
	FollowedBy      string `json:"followed_by,omitempty"`
}

type downloadsResponse struct {
	Downloads []jobResponse `json:"downloads"`
}

// OpsHandler serves health, metrics and a read-only view of the engine jobs.
// It never touches the chat listing.
type OpsHandler struct {
	engine    transfer.Engine
	sessions  SessionCounter
	telemetry *telemetry.Telemetry
}

func NewOpsHandler(engine transfer.Engine, sessions SessionCounter, t *telemetry.Telemetry) *OpsHandler {
	return &OpsHandler{
		engine:    engine,
		sessions:  sessions,
		telemetry: t,
	}
}

func (h *OpsHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(telemetry.RequestID)
	r.Use(telemetry.HTTPLogging)
	r.Use(telemetry.NewHTTPMiddleware(h.telemetry).Middleware)

	r.Get("/healthz", h.HandleHealth)
	r.Method(http.MethodGet, "/metrics", h.telemetry.Handler())
	r.Get("/api/downloads", h.HandleDownloads)

	return r
}

// HandleHealth pings the engine and reports 503 when it does not answer.
func (h *OpsHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	resp := healthResponse{Status: "ok"}
	if h.sessions != nil {
		resp.ActiveLifecycles = h.sessions.Len()
	}

	status := http.StatusOK

	version, err := h.engine.Version(ctx)
	if err != nil {
		logctx.LoggerFromContext(ctx).WarnContext(ctx, "engine health check failed", "err", err)

		resp.Status = "unavailable"
		resp.Error = err.Error()
		status = http.StatusServiceUnavailable
	} else {
		resp.EngineVersion = version
	}

	writeJSON(ctx, w, status, resp)
}

// HandleDownloads lists every job known to the engine.
func (h *OpsHandler) HandleDownloads(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	jobs, err := h.engine.ListJobs(ctx)
	if err != nil {
		logctx.LoggerFromContext(ctx).ErrorContext(ctx, "failed to list jobs", "err", err)
		http.Error(w, "failed to list downloads", http.StatusBadGateway)

		return
	}

	resp := downloadsResponse{Downloads: make([]jobResponse, 0, len(jobs))}

	for _, job := range jobs {
		view := jobResponse{
			ID:              job.ID,
			Name:            job.Name,
			Status:          string(job.Status),
			Progress:        job.Progress(),
			Speed:           job.Speed(),
			ETA:             job.ETA(),
			TotalLength:     job.TotalLength,
			CompletedLength: job.CompletedLength,
			DownloadSpeed:   job.DownloadSpeed,
			Dir:             job.Dir,
			ErrorMessage:    job.ErrorMessage,
		}

		if job.FollowedBy.Present() {
			view.FollowedBy = job.FollowedBy.ID
		}

		resp.Downloads = append(resp.Downloads, view)
	}

	writeJSON(ctx, w, http.StatusOK, resp)
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		logctx.LoggerFromContext(ctx).ErrorContext(ctx, "failed to encode response", "err", err)
	}
}
