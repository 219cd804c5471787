package purchases

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/harbor-erp/harbor-erp/internal/platform/httpx"
	"github.com/harbor-erp/harbor-erp/internal/shared"
)

// Handler exposes purchase reconciliation endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers purchase routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/purchases", h.handleListPurchases)
	r.Get("/purchases/{id}/reconciliation", h.handleReconciliation)
	r.Get("/returns/{id}/refund-eligibility", h.handleRefundEligibility)
	r.Post("/returns/{id}/refund-breakdown", h.handleRefundBreakdown)
	r.Post("/returns/{id}/refund/process", h.handleProcessRefund)
}

type listResponse struct {
	Data       []PurchaseListItem `json:"data"`
	Pagination shared.Pagination  `json:"pagination"`
}

func (h *Handler) handleListPurchases(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 20
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	supplierID, _ := strconv.ParseInt(r.URL.Query().Get("supplier_id"), 10, 64)
	filters := ListFilters{
		SupplierID: supplierID,
		Search:     r.URL.Query().Get("search"),
		SortBy:     r.URL.Query().Get("sort"),
		SortDir:    r.URL.Query().Get("dir"),
	}

	items, total, err := h.service.ListPurchases(r.Context(), limit, offset, filters)
	if err != nil {
		h.logger.Error("list purchases", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	if items == nil {
		items = []PurchaseListItem{}
	}
	page := offset/limit + 1
	httpx.JSON(w, http.StatusOK, listResponse{
		Data:       items,
		Pagination: shared.NewPagination(page, limit, total),
	})
}

func (h *Handler) handleReconciliation(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "purchase id must be a positive integer")
		return
	}
	view, err := h.service.Reconciliation(r.Context(), id)
	if err != nil {
		h.respondError(w, r, "reconciliation", id, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) handleRefundEligibility(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "return id must be a positive integer")
		return
	}
	// Failures surface inside the eligibility result, so this path always
	// answers 200 with an explicit eligible flag.
	httpx.JSON(w, http.StatusOK, h.service.RefundEligibility(r.Context(), id))
}

type refundBreakdownRequest struct {
	RefundAmount string `json:"refund_amount" validate:"omitempty,numeric"`
}

func (h *Handler) handleRefundBreakdown(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "return id must be a positive integer")
		return
	}

	var req refundBreakdownRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
			return
		}
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	amount := decimal.Zero
	if req.RefundAmount != "" {
		amount, err = decimal.NewFromString(req.RefundAmount)
		if err != nil || amount.IsNegative() {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "refund_amount must be a non-negative number")
			return
		}
	}

	breakdown := h.service.RefundBreakdown(r.Context(), id, amount)
	status := http.StatusOK
	if !breakdown.Success {
		status = http.StatusUnprocessableEntity
	}
	httpx.JSON(w, status, breakdown)
}

type processRefundRequest struct {
	ActorID int64 `json:"actor_id" validate:"omitempty,gte=0"`
}

func (h *Handler) handleProcessRefund(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "return id must be a positive integer")
		return
	}

	var req processRefundRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
			return
		}
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	if err := h.service.EnqueueRefundProcess(r.Context(), id, req.ActorID); err != nil {
		h.respondError(w, r, "enqueue refund", id, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]any{"return_id": id, "status": "queued"})
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, op string, id int64, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrInvalidState):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err), slog.Int64("id", id))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
