package classify

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/salespulse/salespulse/internal/platform/httpx"
)

// defaultWindowDays is the lookback used when no explicit range is given.
// Twelve months of history gives the XYZ series enough buckets to be
// meaningful.
const defaultWindowDays = 365

// Handler exposes the classification endpoint.
type Handler struct {
	service *Service
	logger  *slog.Logger
	now     func() time.Time
}

// NewHandler constructs the classification HTTP handler.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger, now: time.Now}
}

// MountRoutes attaches classification routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/abc-xyz", h.handleReport)
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	to := h.now().UTC().Truncate(24 * time.Hour)
	from := to.AddDate(0, 0, -defaultWindowDays)

	var err error
	if raw := q.Get("days"); raw != "" {
		days, convErr := strconv.Atoi(raw)
		if convErr != nil || days < 1 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "days must be a positive integer")
			return
		}
		from = to.AddDate(0, 0, -days)
	}
	if raw := q.Get("date_from"); raw != "" {
		if from, err = time.Parse("2006-01-02", raw); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date_from must be YYYY-MM-DD")
			return
		}
	}
	if raw := q.Get("date_to"); raw != "" {
		if to, err = time.Parse("2006-01-02", raw); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date_to must be YYYY-MM-DD")
			return
		}
	}

	report, err := h.service.GetReport(r.Context(), from, to, q.Get("refresh") == "true")
	if err != nil {
		if errors.Is(err, ErrInvalidWindow) {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		h.logger.Error("classification report", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}
