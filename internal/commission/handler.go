package commission

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/veris-bms/veris/internal/platform/httpx"
	"github.com/veris-bms/veris/internal/rbac"
	"github.com/veris-bms/veris/internal/shared"
)

// Handler exposes commission tier management endpoints. All routes are
// admin-only.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers tier routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermTierManage))
		r.Get("/", h.list)
		r.Get("/preview", h.preview)
		r.Get("/{id}", h.show)
		r.Post("/", h.create)
		r.Post("/{id}", h.update)
		r.Post("/{id}/delete", h.delete)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	entityType := EntityType(r.URL.Query().Get("entity_type"))
	entityID, _ := strconv.ParseInt(r.URL.Query().Get("entity_id"), 10, 64)
	tiers, err := h.service.ListForEntity(r.Context(), entityType, entityID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.OK(w, map[string]any{"tiers": tiers})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid tier id")
		return
	}
	tier, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.OK(w, tier)
}

// preview answers "what rate would this amount get today" without touching
// any invoice.
func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	entityType := EntityType(r.URL.Query().Get("entity_type"))
	entityID, _ := strconv.ParseInt(r.URL.Query().Get("entity_id"), 10, 64)
	amount := shared.ParseAmount(r.URL.Query().Get("amount"))
	rate, err := h.service.Preview(r.Context(), entityType, entityID, amount)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.OK(w, map[string]any{"rate": rate, "matched": rate != nil})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	in, ok := h.parseForm(w, r)
	if !ok {
		return
	}
	id, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.Created(w, map[string]any{"id": id})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid tier id")
		return
	}
	in, ok := h.parseForm(w, r)
	if !ok {
		return
	}
	if err := h.service.Update(r.Context(), id, in); err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.OK(w, map[string]any{"id": id})
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid tier id")
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.OK(w, map[string]any{"id": id})
}

func (h *Handler) parseForm(w http.ResponseWriter, r *http.Request) (TierInput, bool) {
	if err := r.ParseForm(); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "bad request")
		return TierInput{}, false
	}
	entityID, _ := strconv.ParseInt(r.PostFormValue("entity_id"), 10, 64)
	return TierInput{
		EntityType: EntityType(r.PostFormValue("entity_type")),
		EntityID:   entityID,
		MinAmount:  shared.ParseAmount(r.PostFormValue("min_amount")),
		MaxAmount:  shared.ParseOptionalAmount(r.PostFormValue("max_amount")),
		Rate:       shared.ParseAmount(r.PostFormValue("rate")),
	}, true
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		httpx.Fail(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		httpx.Fail(w, http.StatusNotFound, "tier not found")
	default:
		h.logger.Error("commission tier request failed", slog.Any("error", err))
		httpx.Fail(w, http.StatusInternalServerError, "internal error")
	}
}
