package analytics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/salespulse/salespulse/internal/platform/httpx"
)

// defaultRangeDays is how far back queries reach when no range is given.
const defaultRangeDays = 30

// Handler exposes the analytics read endpoints.
type Handler struct {
	service *Service
	logger  *slog.Logger
	now     func() time.Time
}

// NewHandler constructs the analytics HTTP handler.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger, now: time.Now}
}

// MountRoutes attaches analytics routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/dashboard", h.handleDashboard)
	r.Get("/overview", h.handleOverview)
	r.Get("/top-customers", h.handleTopCustomers)
	r.Get("/top-products", h.handleTopProducts)
	r.Get("/trend", h.handleTrend)
	r.Get("/cache/stats", h.handleCacheStats)
	r.Post("/cache/refresh", h.handleCacheRefresh)
}

// parseFilter reads the shared range and dimension query parameters.
func (h *Handler) parseFilter(r *http.Request) (Filter, error) {
	q := r.URL.Query()
	to := h.now().UTC().Truncate(24 * time.Hour)
	from := to.AddDate(0, 0, -defaultRangeDays)

	var err error
	if raw := q.Get("date_from"); raw != "" {
		if from, err = time.Parse("2006-01-02", raw); err != nil {
			return Filter{}, errors.New("date_from must be YYYY-MM-DD")
		}
	}
	if raw := q.Get("date_to"); raw != "" {
		if to, err = time.Parse("2006-01-02", raw); err != nil {
			return Filter{}, errors.New("date_to must be YYYY-MM-DD")
		}
	}

	f := Filter{From: from, To: to, Force: q.Get("refresh") == "true"}
	if f.CustomerID, err = queryID(q.Get("customer_id")); err != nil {
		return Filter{}, errors.New("customer_id must be an integer")
	}
	if f.ProductID, err = queryID(q.Get("product_id")); err != nil {
		return Filter{}, errors.New("product_id must be an integer")
	}
	if f.StoreID, err = queryID(q.Get("store_id")); err != nil {
		return Filter{}, errors.New("store_id must be an integer")
	}
	return f, f.Validate()
}

func queryID(raw string) (*int64, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	f, err := h.parseFilter(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	out, err := h.service.GetDashboard(r.Context(), f)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleOverview(w http.ResponseWriter, r *http.Request) {
	f, err := h.parseFilter(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	out, err := h.service.GetOverview(r.Context(), f)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleTopCustomers(w http.ResponseWriter, r *http.Request) {
	h.handleTop(w, r, h.service.GetTopCustomers)
}

func (h *Handler) handleTopProducts(w http.ResponseWriter, r *http.Request) {
	h.handleTop(w, r, h.service.GetTopProducts)
}

func (h *Handler) handleTop(w http.ResponseWriter, r *http.Request, fetch func(ctx context.Context, f Filter, limit int) ([]TopEntry, error)) {
	f, err := h.parseFilter(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "limit must be an integer")
			return
		}
	}
	out, err := fetch(r.Context(), f, limit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": out})
}

func (h *Handler) handleTrend(w http.ResponseWriter, r *http.Request) {
	f, err := h.parseFilter(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	g, err := ParseGranularity(r.URL.Query().Get("granularity"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	dense := r.URL.Query().Get("dense") == "true"
	out, err := h.service.GetTrend(r.Context(), f, g, dense)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"granularity": g, "points": out})
}

func (h *Handler) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.CacheStats(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}

func (h *Handler) handleCacheRefresh(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RefreshCache(r.Context()); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidRange), errors.Is(err, ErrInvalidLimit), errors.Is(err, ErrInvalidGranularity):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("analytics request", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
