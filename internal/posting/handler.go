package posting

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/inventory-ledger/internal/inventory"
	"github.com/odyssey-erp/inventory-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/inventory-ledger/internal/procurement"
	"github.com/odyssey-erp/inventory-ledger/internal/shared"
)

// Reader serves the read side of the posting endpoints.
type Reader interface {
	GetProduct(ctx context.Context, id int64) (inventory.Product, error)
	GetInventory(ctx context.Context, productID, warehouseID int64) (inventory.Inventory, error)
	GetAdjustment(ctx context.Context, id int64) (inventory.Adjustment, error)
	GetTransfer(ctx context.Context, id int64) (inventory.Transfer, error)
	ListMovements(ctx context.Context, filter inventory.MovementFilter) ([]inventory.StockMovement, error)
	GetReceivingVoucher(ctx context.Context, id int64) (procurement.ReceivingVoucher, error)
}

// Queries joins the pool-backed inventory and purchasing repositories into a Reader.
type Queries struct {
	Inventory  *inventory.Repository
	Purchasing *procurement.Repository
}

func (q Queries) GetProduct(ctx context.Context, id int64) (inventory.Product, error) {
	return q.Inventory.GetProduct(ctx, id)
}

func (q Queries) GetInventory(ctx context.Context, productID, warehouseID int64) (inventory.Inventory, error) {
	return q.Inventory.GetInventory(ctx, productID, warehouseID)
}

func (q Queries) GetAdjustment(ctx context.Context, id int64) (inventory.Adjustment, error) {
	return q.Inventory.GetAdjustment(ctx, id)
}

func (q Queries) GetTransfer(ctx context.Context, id int64) (inventory.Transfer, error) {
	return q.Inventory.GetTransfer(ctx, id)
}

func (q Queries) ListMovements(ctx context.Context, filter inventory.MovementFilter) ([]inventory.StockMovement, error) {
	return q.Inventory.ListMovements(ctx, filter)
}

func (q Queries) GetReceivingVoucher(ctx context.Context, id int64) (procurement.ReceivingVoucher, error) {
	return q.Purchasing.GetReceivingVoucher(ctx, id)
}

// ActorHeader carries the acting user id, set by the fronting gateway.
const ActorHeader = "X-Actor-ID"

// Handler exposes document posting over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
	reader  Reader
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, reader Reader) *Handler {
	return &Handler{logger: logger, service: service, reader: reader}
}

// MountRoutes registers posting routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/receiving-vouchers", func(r chi.Router) {
		r.Post("/", h.postReceivingVoucher)
		r.Get("/{id}", h.getReceivingVoucher)
		r.Post("/{id}/cancel", h.cancelReceivingVoucher)
	})
	r.Route("/adjustments", func(r chi.Router) {
		r.Post("/", h.createAdjustment)
		r.Get("/{id}", h.getAdjustment)
		r.Put("/{id}", h.updateAdjustment)
		r.Post("/{id}/cancel", h.adjustmentAction(h.service.CancelAdjustment))
		r.Post("/{id}/copy", h.adjustmentAction(h.service.CopyAdjustment))
		r.Post("/{id}/post", h.adjustmentAction(h.service.PostAdjustment))
		r.Post("/{id}/reverse", h.adjustmentAction(h.service.ReverseAdjustment))
	})
	r.Route("/transfers", func(r chi.Router) {
		r.Post("/", h.createTransfer)
		r.Get("/{id}", h.getTransfer)
		r.Put("/{id}", h.updateTransfer)
		r.Post("/{id}/cancel", h.transferAction(h.service.CancelTransfer))
		r.Post("/{id}/post", h.transferAction(h.service.PostTransfer))
	})
	r.Get("/stock/{productID}/{warehouseID}", h.getStock)
	r.Get("/movements", h.listMovements)
}

func actorID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(r.Header.Get(ActorHeader), 10, 64)
	return id
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Debug("posting request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	httpx.RespondError(w, err)
}

func (h *Handler) postReceivingVoucher(w http.ResponseWriter, r *http.Request) {
	var input ReceiveInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	input.ActorID = actorID(r)
	if key := r.Header.Get("Idempotency-Key"); key != "" && input.IdempotencyKey == "" {
		input.IdempotencyKey = key
	}
	result, err := h.service.PostReceivingVoucher(r.Context(), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.Created(w, httpx.Location("/api/v1/receiving-vouchers", result.Voucher.ID), result)
}

func (h *Handler) getReceivingVoucher(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rv, err := h.reader.GetReceivingVoucher(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rv)
}

func (h *Handler) cancelReceivingVoucher(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rv, err := h.service.CancelReceivingVoucher(r.Context(), id, actorID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rv)
}

func (h *Handler) createAdjustment(w http.ResponseWriter, r *http.Request) {
	var input AdjustmentInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	input.ActorID = actorID(r)
	adj, err := h.service.CreateAdjustment(r.Context(), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.Created(w, httpx.Location("/api/v1/adjustments", adj.ID), adj)
}

func (h *Handler) getAdjustment(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	adj, err := h.reader.GetAdjustment(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, adj)
}

func (h *Handler) updateAdjustment(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var input AdjustmentInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	input.ActorID = actorID(r)
	adj, err := h.service.UpdateAdjustment(r.Context(), id, input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, adj)
}

func (h *Handler) adjustmentAction(action func(context.Context, int64, int64) (inventory.Adjustment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.URLParamID(r, "id")
		if err != nil {
			h.fail(w, r, err)
			return
		}
		adj, err := action(r.Context(), id, actorID(r))
		if err != nil {
			h.fail(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusOK, adj)
	}
}

func (h *Handler) createTransfer(w http.ResponseWriter, r *http.Request) {
	var input TransferInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	input.ActorID = actorID(r)
	t, err := h.service.CreateTransfer(r.Context(), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.Created(w, httpx.Location("/api/v1/transfers", t.ID), t)
}

func (h *Handler) getTransfer(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	t, err := h.reader.GetTransfer(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}

func (h *Handler) updateTransfer(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var input TransferInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	input.ActorID = actorID(r)
	t, err := h.service.UpdateTransfer(r.Context(), id, input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}

func (h *Handler) transferAction(action func(context.Context, int64, int64) (inventory.Transfer, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.URLParamID(r, "id")
		if err != nil {
			h.fail(w, r, err)
			return
		}
		t, err := action(r.Context(), id, actorID(r))
		if err != nil {
			h.fail(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusOK, t)
	}
}

type stockResponse struct {
	ProductID   int64           `json:"product_id"`
	WarehouseID int64           `json:"warehouse_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	UOM         string          `json:"uom"`
	AverageCost decimal.Decimal `json:"average_cost"`
}

// getStock reports quantity and average cost, in ?uom= when given.
func (h *Handler) getStock(w http.ResponseWriter, r *http.Request) {
	productID, err := httpx.URLParamID(r, "productID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	warehouseID, err := httpx.URLParamID(r, "warehouseID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	product, err := h.reader.GetProduct(r.Context(), productID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	inv, err := h.reader.GetInventory(r.Context(), productID, warehouseID)
	if err != nil && !errors.Is(err, inventory.ErrInventoryNotFound) {
		h.fail(w, r, err)
		return
	}
	resp := stockResponse{ProductID: productID, WarehouseID: warehouseID, Quantity: inv.Quantity, UOM: product.BaseUOM, AverageCost: product.AverageCost}
	if unit := r.URL.Query().Get("uom"); unit != "" {
		cost, err := product.AverageCostIn(unit)
		if err != nil {
			h.fail(w, r, shared.Validationf("%v", err))
			return
		}
		factor, _ := product.Units().Factor(unit)
		resp.UOM = unit
		resp.AverageCost = cost
		resp.Quantity = inv.Quantity.Div(factor)
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := inventory.MovementFilter{ReferenceType: inventory.ReferenceType(q.Get("reference_type"))}
	filter.ProductID, _ = strconv.ParseInt(q.Get("product_id"), 10, 64)
	filter.WarehouseID, _ = strconv.ParseInt(q.Get("warehouse_id"), 10, 64)
	filter.ReferenceID, _ = strconv.ParseInt(q.Get("reference_id"), 10, 64)
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	window := shared.NewPagination(page, perPage)
	filter.Limit, filter.Offset = window.PerPage, window.Offset()
	movements, err := h.reader.ListMovements(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": movements, "pagination": window})
}
