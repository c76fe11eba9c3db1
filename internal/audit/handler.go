package audit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/veris-bms/veris/internal/platform/httpx"
	"github.com/veris-bms/veris/internal/rbac"
	"github.com/veris-bms/veris/internal/shared"
)

// Handler serves the audit timeline to admins.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermAuditView))
		r.Get("/", h.timeline)
	})
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	actorID, _ := strconv.ParseInt(q.Get("actor"), 10, 64)
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("pageSize"))

	filters := TimelineFilters{
		ActorID:  actorID,
		Entity:   q.Get("entity"),
		Action:   q.Get("action"),
		Page:     page,
		PageSize: pageSize,
	}
	if t, err := time.Parse("2006-01-02", q.Get("from")); err == nil {
		filters.From = t
	}
	if t, err := time.Parse("2006-01-02", q.Get("to")); err == nil {
		filters.To = t.Add(24*time.Hour - time.Nanosecond)
	}

	res, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.logger.Error("audit timeline", slog.Any("error", err))
		httpx.Fail(w, http.StatusInternalServerError, "internal error")
		return
	}
	httpx.OK(w, res)
}
