package invoices

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/veris-bms/veris/internal/commission"
	"github.com/veris-bms/veris/internal/export"
	"github.com/veris-bms/veris/internal/platform/httpx"
	"github.com/veris-bms/veris/internal/rbac"
	"github.com/veris-bms/veris/internal/shared"
)

// ScopeBuilder produces the visibility scope for the requesting actor.
type ScopeBuilder interface {
	BuildScope(ctx context.Context, actor shared.Actor) (Scope, error)
}

// AdminDirectory lists admin user IDs for the exclusion filter.
type AdminDirectory interface {
	AdminIDs(ctx context.Context) ([]int64, error)
}

// AuthzScopeBuilder derives scopes from the permission service and the admin
// directory. Built once per request, handed down, never recomputed.
type AuthzScopeBuilder struct {
	Perms  *rbac.Service
	Admins AdminDirectory
}

func (b AuthzScopeBuilder) BuildScope(ctx context.Context, actor shared.Actor) (Scope, error) {
	viewAll, err := b.Perms.Can(ctx, actor.ID, shared.PermInvoiceViewAll)
	if err != nil {
		return Scope{}, err
	}
	if viewAll {
		return ScopeFor(actor, true, nil), nil
	}
	adminIDs, err := b.Admins.AdminIDs(ctx)
	if err != nil {
		return Scope{}, err
	}
	return ScopeFor(actor, false, adminIDs), nil
}

// Handler exposes the invoice endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	scopes   ScopeBuilder
	rbac     rbac.Middleware
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service, scopes ScopeBuilder, rbac rbac.Middleware) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		scopes:   scopes,
		rbac:     rbac,
		validate: validator.New(),
	}
}

// MountRoutes registers invoice routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermInvoiceView, shared.PermInvoiceViewAll))
		r.Get("/", h.list)
		r.Get("/summary", h.summary)
		r.Get("/rates", h.rates)
		r.Get("/export.csv", h.exportCSV)
		r.Get("/{id}", h.show)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermInvoiceCreate))
		r.Post("/", h.create)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermInvoiceEdit))
		r.Post("/{id}", h.update)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermInvoiceApprove))
		r.Post("/{id}/approve", h.approve)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermInvoiceDelete))
		r.Post("/{id}/delete", h.delete)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermPaymentMark))
		r.Post("/{id}/payments/{stage}", h.markPayment)
		r.Post("/bulk-settle", h.bulkSettle)
		r.Post("/mass-settle", h.massSettle)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermPaymentUnmark))
		r.Post("/{id}/payments/{stage}/unmark", h.unmarkPayment)
	})
}

type identityForm struct {
	InvoiceCode         string `validate:"required"`
	ClientID            int64  `validate:"required,gt=0"`
	FileID              int64  `validate:"required,gt=0"`
	AssignedDistributor int64  `validate:"required,gt=0"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	_, scope, ok := h.requestScope(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	clientID, _ := strconv.ParseInt(q.Get("client"), 10, 64)
	distributorID, _ := strconv.ParseInt(q.Get("distributor"), 10, 64)
	companyID, _ := strconv.ParseInt(q.Get("company"), 10, 64)

	filters := ListFilters{
		Code:          q.Get("code"),
		ClientID:      clientID,
		DistributorID: distributorID,
		CompanyID:     companyID,
		Unsettled:     PaymentStage(q.Get("unsettled")),
		Limit:         limit,
		Offset:        offset,
	}
	if from := parseDate(q.Get("from")); !from.IsZero() {
		filters.DateFrom = &from
	}
	if to := parseDate(q.Get("to")); !to.IsZero() {
		filters.DateTo = &to
	}

	items, total, err := h.service.List(r.Context(), scope, filters)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.OK(w, map[string]any{"invoices": items, "total": total})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	_, scope, ok := h.requestScope(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	inv, err := h.service.Get(r.Context(), scope, id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	status, blocking := inv.DisplayStatus()
	httpx.OK(w, map[string]any{"invoice": inv, "displayStatus": status, "blockingStage": blocking})
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	_, scope, ok := h.requestScope(w, r)
	if !ok {
		return
	}
	sum, err := h.service.Summarize(r.Context(), scope)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.OK(w, sum)
}

// rates answers the invoice form's preview request before submission.
func (h *Handler) rates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	clientID, _ := strconv.ParseInt(q.Get("client"), 10, 64)
	fileID, _ := strconv.ParseInt(q.Get("file"), 10, 64)
	distributorID, _ := strconv.ParseInt(q.Get("assignedDistributor"), 10, 64)

	rates, err := h.service.ResolveRates(r.Context(), Input{
		ClientID:            clientID,
		FileID:              fileID,
		AssignedDistributor: distributorID,
		Total:               shared.ParseAmount(q.Get("total")),
	})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.OK(w, rates)
}

func (h *Handler) exportCSV(w http.ResponseWriter, r *http.Request) {
	_, scope, ok := h.requestScope(w, r)
	if !ok {
		return
	}
	items, _, err := h.service.List(r.Context(), scope, ListFilters{Limit: 500})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	rows := make([]export.InvoiceRow, 0, len(items))
	for _, inv := range items {
		status, _ := inv.DisplayStatus()
		rows = append(rows, export.InvoiceRow{
			Code:            inv.InvoiceCode,
			Date:            inv.InvoiceDate,
			Total:           inv.Total,
			FinalAmount:     inv.FinalAmount,
			ClientRate:      inv.ClientCommissionRate,
			DistributorRate: inv.DistributorCommissionRate,
			CompanyRate:     inv.CompanyCommissionRate,
			Status:          status,
		})
	}
	if err := export.WriteInvoicesCSV(w, rows); err != nil {
		h.logger.Error("invoice csv export", slog.Any("error", err))
	}
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requestActor(w, r)
	if !ok {
		return
	}
	in, ok := h.parseInvoiceForm(w, r)
	if !ok {
		return
	}
	inv, err := h.service.Create(r.Context(), actor, in)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.Created(w, inv)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	actor, scope, ok := h.requestScope(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	in, ok := h.parseInvoiceForm(w, r)
	if !ok {
		return
	}
	inv, err := h.service.Update(r.Context(), actor, scope, id, in)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.OK(w, inv)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requestActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	inv, err := h.service.Approve(r.Context(), actor, id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.OK(w, inv)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requestActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), actor, id); err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.OK(w, map[string]any{"id": id})
}

func (h *Handler) markPayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requestActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	inv, err := h.service.MarkPayment(r.Context(), actor, id, PaymentStage(chi.URLParam(r, "stage")))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.OK(w, inv)
}

func (h *Handler) unmarkPayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requestActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	inv, err := h.service.UnmarkPayment(r.Context(), actor, id, PaymentStage(chi.URLParam(r, "stage")))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.OK(w, inv)
}

func (h *Handler) bulkSettle(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requestActor(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "bad request")
		return
	}
	scopeID, _ := strconv.ParseInt(r.PostFormValue("entityId"), 10, 64)
	res, err := h.service.BulkSettle(r.Context(), actor,
		commission.EntityType(r.PostFormValue("entityType")), scopeID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.OK(w, res)
}

func (h *Handler) massSettle(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requestActor(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "bad request")
		return
	}
	var scopeIDs []int64
	for _, raw := range strings.Split(r.PostFormValue("entityIds"), ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		scopeIDs = append(scopeIDs, id)
	}
	res, err := h.service.MassSettle(r.Context(), actor,
		commission.EntityType(r.PostFormValue("entityType")), scopeIDs)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.OK(w, res)
}

// parseInvoiceForm reads the submission. Identity fields go through the
// validator; every numeric field coerces, bad input becoming zero.
func (h *Handler) parseInvoiceForm(w http.ResponseWriter, r *http.Request) (Input, bool) {
	if err := r.ParseForm(); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "bad request")
		return Input{}, false
	}
	clientID, _ := strconv.ParseInt(r.PostFormValue("client"), 10, 64)
	fileID, _ := strconv.ParseInt(r.PostFormValue("file"), 10, 64)
	distributorID, _ := strconv.ParseInt(r.PostFormValue("assignedDistributor"), 10, 64)

	form := identityForm{
		InvoiceCode:         strings.TrimSpace(r.PostFormValue("invoiceCode")),
		ClientID:            clientID,
		FileID:              fileID,
		AssignedDistributor: distributorID,
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invoice code, client, file and distributor are required")
		return Input{}, false
	}

	date := parseDate(r.PostFormValue("invoiceDate"))
	if date.IsZero() {
		date = time.Now()
	}

	return Input{
		InvoiceCode:         form.InvoiceCode,
		ClientID:            form.ClientID,
		FileID:              form.FileID,
		AssignedDistributor: form.AssignedDistributor,
		InvoiceDate:         date,
		Status:              r.PostFormValue("status"),

		Total:                   shared.ParseAmount(r.PostFormValue("total")),
		TaxPercentage:           shared.ParseAmount(r.PostFormValue("taxPercentage")),
		TaxAmount:               shared.ParseAmount(r.PostFormValue("taxAmount")),
		ManagementTaxPercentage: shared.ParseAmount(r.PostFormValue("managementTaxPercentage")),
		ManagementTaxAmount:     shared.ParseAmount(r.PostFormValue("managementTaxAmount")),
		CorporateTaxPercentage:  shared.ParseAmount(r.PostFormValue("corporateTaxPercentage")),
		CorporateTaxAmount:      shared.ParseAmount(r.PostFormValue("corporateTaxAmount")),
		ProfitPercentage:        shared.ParseAmount(r.PostFormValue("profitPercentage")),
		ProfitAmount:            shared.ParseAmount(r.PostFormValue("profitAmount")),
		FinalAmount:             shared.ParseAmount(r.PostFormValue("finalAmount")),
		DiscountAmount:          shared.ParseAmount(r.PostFormValue("discountAmount")),

		CustomClientCommissionRate:      shared.ParseOptionalAmount(r.PostFormValue("customClientCommissionRate")),
		CustomDistributorCommissionRate: shared.ParseOptionalAmount(r.PostFormValue("customDistributorCommissionRate")),
	}, true
}

func (h *Handler) requestActor(w http.ResponseWriter, r *http.Request) (shared.Actor, bool) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Fail(w, http.StatusUnauthorized, "authentication required")
		return shared.Actor{}, false
	}
	return actor, true
}

func (h *Handler) requestScope(w http.ResponseWriter, r *http.Request) (shared.Actor, Scope, bool) {
	actor, ok := h.requestActor(w, r)
	if !ok {
		return shared.Actor{}, Scope{}, false
	}
	scope, err := h.scopes.BuildScope(r.Context(), actor)
	if err != nil {
		h.logger.Error("build visibility scope", slog.Any("error", err))
		httpx.Fail(w, http.StatusInternalServerError, "internal error")
		return shared.Actor{}, Scope{}, false
	}
	return actor, scope, true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid invoice id")
		return 0, false
	}
	return id, true
}

func parseDate(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	case errors.Is(err, ErrDuplicateCode):
		httpx.Fail(w, http.StatusConflict, "invoice code already exists")
	case errors.Is(err, ErrValidation):
		httpx.Fail(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrStageAlreadyPaid):
		httpx.Fail(w, http.StatusConflict, "payment stage already marked paid")
	case errors.Is(err, ErrAlreadyApproved):
		httpx.Fail(w, http.StatusConflict, "invoice already approved")
	case errors.Is(err, ErrPaymentForbidden):
		httpx.Fail(w, http.StatusForbidden, "payment transition not permitted")
	default:
		h.logger.Error("invoice request failed", slog.Any("error", err))
		httpx.Fail(w, http.StatusInternalServerError, shared.UserSafeMessage(err))
	}
}
