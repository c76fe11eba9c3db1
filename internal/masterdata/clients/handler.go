package clients

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	mdshared "github.com/veris-bms/veris/internal/masterdata/shared"
	"github.com/veris-bms/veris/internal/platform/httpx"
	"github.com/veris-bms/veris/internal/rbac"
	"github.com/veris-bms/veris/internal/shared"
)

// Handler exposes client CRUD endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers client routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermMasterDataView))
		r.Get("/", h.list)
		r.Get("/{id}", h.show)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermMasterDataEdit))
		r.Post("/", h.create)
		r.Post("/{id}", h.update)
		r.Post("/{id}/delete", h.delete)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	items, total, err := h.service.List(r.Context(), mdshared.ListFilters{
		Search: r.URL.Query().Get("search"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		h.logger.Error("list clients", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, map[string]any{"clients": items, "total": total})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid client id")
		return
	}
	client, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.Fail(w, http.StatusNotFound, "client not found")
		return
	}
	httpx.OK(w, client)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	client, ok := h.parseForm(w, r)
	if !ok {
		return
	}
	created, err := h.service.Create(r.Context(), client)
	if err != nil {
		h.logger.Error("create client", slog.Any("error", err))
		httpx.Fail(w, http.StatusBadRequest, err.Error())
		return
	}
	httpx.Created(w, created)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid client id")
		return
	}
	client, ok := h.parseForm(w, r)
	if !ok {
		return
	}
	if err := h.service.Update(r.Context(), id, client); err != nil {
		h.logger.Error("update client", slog.Any("error", err), slog.Int64("id", id))
		httpx.Fail(w, http.StatusBadRequest, err.Error())
		return
	}
	httpx.OK(w, map[string]any{"id": id})
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid client id")
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httpx.Fail(w, http.StatusNotFound, "client not found")
		return
	}
	httpx.OK(w, map[string]any{"id": id})
}

func (h *Handler) parseForm(w http.ResponseWriter, r *http.Request) (Client, bool) {
	if err := r.ParseForm(); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "bad request")
		return Client{}, false
	}
	client := Client{
		Name:           r.PostFormValue("name"),
		CommissionRate: shared.ParseAmount(r.PostFormValue("commission_rate")),
		IsActive:       r.PostFormValue("is_active") != "false",
	}
	if email := r.PostFormValue("email"); email != "" {
		client.Email = &email
	}
	if phone := r.PostFormValue("phone"); phone != "" {
		client.Phone = &phone
	}
	return client, true
}
