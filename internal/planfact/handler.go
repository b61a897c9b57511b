package planfact

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/salespulse/salespulse/internal/platform/httpx"
)

// Handler exposes plan management and comparison endpoints.
type Handler struct {
	service *Service
	logger  *slog.Logger
	now     func() time.Time
}

// NewHandler constructs the plan-fact HTTP handler.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger, now: time.Now}
}

// MountPlanRoutes attaches plan target CRUD routes.
func (h *Handler) MountPlanRoutes(r chi.Router) {
	r.Post("/", h.handleCreatePlan)
	r.Get("/", h.handleListPlans)
	r.Put("/{id}", h.handleUpdatePlan)
	r.Delete("/{id}", h.handleDeletePlan)
}

// MountReportRoutes attaches variance and like-for-like report routes.
func (h *Handler) MountReportRoutes(r chi.Router) {
	r.Get("/planfact", h.handleVariance)
	r.Get("/lfl", h.handleLFL)
}

type planRequest struct {
	Year            int     `json:"year"`
	Month           int     `json:"month"`
	StoreID         *int64  `json:"store_id"`
	PlannedRevenue  float64 `json:"planned_revenue"`
	PlannedQuantity float64 `json:"planned_quantity"`
}

func (h *Handler) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	target, err := h.service.CreatePlan(r.Context(), PlanTarget{
		Year:            req.Year,
		Month:           req.Month,
		StoreID:         req.StoreID,
		PlannedRevenue:  req.PlannedRevenue,
		PlannedQuantity: req.PlannedQuantity,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, target)
}

func (h *Handler) handleListPlans(w http.ResponseWriter, r *http.Request) {
	year, storeID, err := h.parseYearScope(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	plans, err := h.service.ListPlans(r.Context(), year, storeID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": plans})
}

type planUpdateRequest struct {
	PlannedRevenue  float64 `json:"planned_revenue"`
	PlannedQuantity float64 `json:"planned_quantity"`
}

func (h *Handler) handleUpdatePlan(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid plan id")
		return
	}
	var req planUpdateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	target, err := h.service.UpdatePlan(r.Context(), id, req.PlannedRevenue, req.PlannedQuantity)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, target)
}

func (h *Handler) handleDeletePlan(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid plan id")
		return
	}
	if err := h.service.DeletePlan(r.Context(), id); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleVariance(w http.ResponseWriter, r *http.Request) {
	year, storeID, err := h.parseYearScope(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	report, err := h.service.GetVarianceReport(r.Context(), year, storeID, r.URL.Query().Get("refresh") == "true")
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) handleLFL(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	current, err := parsePeriod(q.Get("date_from"), q.Get("date_to"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	var baseline Period
	if q.Get("compare_from") == "" && q.Get("compare_to") == "" {
		// Default baseline: the equal-length window immediately before the
		// current one.
		length := current.Days()
		baseline = Period{
			From: current.From.AddDate(0, 0, -length),
			To:   current.From.AddDate(0, 0, -1),
		}
	} else {
		baseline, err = parsePeriod(q.Get("compare_from"), q.Get("compare_to"))
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
	}

	report, err := h.service.GetLFLReport(r.Context(), current, baseline, q.Get("refresh") == "true")
	if err != nil {
		h.respondError(w, err)
		return
	}
	if metric := q.Get("metric"); metric != "" {
		view, err := SelectMetric(report, metric)
		if err != nil {
			h.respondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, view)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func parsePeriod(fromRaw, toRaw string) (Period, error) {
	if fromRaw == "" || toRaw == "" {
		return Period{}, errors.New("date_from and date_to are required (YYYY-MM-DD)")
	}
	from, err := time.Parse("2006-01-02", fromRaw)
	if err != nil {
		return Period{}, errors.New("date_from must be YYYY-MM-DD")
	}
	to, err := time.Parse("2006-01-02", toRaw)
	if err != nil {
		return Period{}, errors.New("date_to must be YYYY-MM-DD")
	}
	return Period{From: from, To: to}, nil
}

func (h *Handler) parseYearScope(r *http.Request) (int, *int64, error) {
	q := r.URL.Query()
	year := h.now().UTC().Year()
	if raw := q.Get("year"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return 0, nil, errors.New("year must be an integer")
		}
		year = v
	}
	var storeID *int64
	if raw := q.Get("store_id"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, nil, errors.New("store_id must be an integer")
		}
		storeID = &v
	}
	return year, storeID, nil
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrPlanNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	case errors.Is(err, ErrDuplicatePlan):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrInvalidPeriods), errors.Is(err, ErrUnequalPeriods),
		errors.Is(err, ErrInvalidInterval), errors.Is(err, ErrUnknownMetric):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("planfact request", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
