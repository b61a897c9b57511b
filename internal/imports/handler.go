package imports

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/salespulse/salespulse/internal/platform/httpx"
)

// Handler exposes the upload, polling, reset and deletion endpoints.
type Handler struct {
	service  *Service
	logger   *slog.Logger
	maxBytes int64
}

// NewHandler constructs the imports HTTP handler.
func NewHandler(service *Service, logger *slog.Logger, maxBytes int64) *Handler {
	return &Handler{service: service, logger: logger, maxBytes: maxBytes}
}

// MountRoutes attaches import routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleUpload)
	r.Get("/", h.handleList)
	r.Get("/{id}", h.handleGet)
	r.Delete("/{id}", h.handleDelete)
	r.Post("/{id}/reset", h.handleReset)
}

type jobResponse struct {
	ID           string     `json:"id"`
	Filename     string     `json:"filename"`
	FileSize     int64      `json:"file_size"`
	Kind         string     `json:"kind"`
	Status       string     `json:"status"`
	TotalRows    int        `json:"total_rows"`
	ImportedRows int        `json:"imported_rows"`
	FailedRows   int        `json:"failed_rows"`
	Progress     int        `json:"progress"`
	ErrorLog     []RowError `json:"error_log"`
	ErrorMessage string     `json:"error_message,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

func toJobResponse(job ImportJob) jobResponse {
	resp := jobResponse{
		ID:           job.ID.String(),
		Filename:     job.Filename,
		FileSize:     job.FileSize,
		Kind:         string(job.Kind),
		Status:       string(job.Status),
		TotalRows:    job.TotalRows,
		ImportedRows: job.ImportedRows,
		FailedRows:   job.FailedRows,
		Progress:     job.Progress,
		ErrorLog:     job.ErrorLog,
		ErrorMessage: job.ErrorMessage,
		StartedAt:    job.StartedAt,
		CompletedAt:  job.CompletedAt,
		CreatedAt:    job.CreatedAt,
	}
	if resp.ErrorLog == nil {
		resp.ErrorLog = []RowError{}
	}
	return resp
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "multipart form expected")
		return
	}

	kind, err := ParseEntityKind(r.FormValue("kind"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "file field is required")
		return
	}
	defer func() { _ = file.Close() }()

	job, err := h.service.CreateFromUpload(r.Context(), header.Filename, kind, file)
	if err != nil {
		h.logger.Error("create import", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, toJobResponse(job))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)
	offset := queryInt(r, "offset", 0)
	if limit < 0 || offset < 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "limit and offset must be non-negative")
		return
	}

	jobsList, total, err := h.service.List(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("list imports", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	items := make([]jobResponse, 0, len(jobsList))
	for _, job := range jobsList {
		items = append(items, toJobResponse(job))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items, "total": total})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	job, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toJobResponse(job))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	if err := h.service.ResetStuck(r.Context(), id); err != nil {
		h.respondServiceError(w, err)
		return
	}
	job, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toJobResponse(job))
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid job id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrJobNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrNotFound, err))
	case errors.Is(err, ErrJobNotResettable):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrConflict, err))
	default:
		h.logger.Error("imports request", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return v
}
