package users

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/veris-bms/veris/internal/platform/httpx"
	"github.com/veris-bms/veris/internal/rbac"
	"github.com/veris-bms/veris/internal/shared"
)

// Handler exposes user administration endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermUsersView))
		r.Get("/distributors", h.listDistributors)
		r.Get("/{id}", h.show)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermUsersEdit))
		r.Post("/{id}/commission-rate", h.updateCommissionRate)
		r.Post("/{id}/active", h.setActive)
	})
}

func (h *Handler) listDistributors(w http.ResponseWriter, r *http.Request) {
	distributors, err := h.service.ListDistributors(r.Context())
	if err != nil {
		h.logger.Error("list distributors", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, distributors)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid user id")
		return
	}
	user, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.Fail(w, http.StatusNotFound, "user not found")
		return
	}
	httpx.OK(w, user)
}

func (h *Handler) updateCommissionRate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid user id")
		return
	}
	if err := r.ParseForm(); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "bad request")
		return
	}
	rate := shared.ParseAmount(r.PostFormValue("commission_rate"))
	if err := h.service.UpdateCommissionRate(r.Context(), id, rate); err != nil {
		h.logger.Error("update commission rate", slog.Any("error", err), slog.Int64("user_id", id))
		httpx.Fail(w, http.StatusBadRequest, shared.UserSafeMessage(err))
		return
	}
	httpx.OK(w, map[string]any{"id": id, "commission_rate": rate})
}

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid user id")
		return
	}
	if err := r.ParseForm(); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "bad request")
		return
	}
	active := r.PostFormValue("active") == "true"
	if err := h.service.SetActive(r.Context(), id, active); err != nil {
		httpx.Fail(w, http.StatusNotFound, "user not found")
		return
	}
	httpx.OK(w, map[string]any{"id": id, "is_active": active})
}
