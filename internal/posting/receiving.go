package posting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/inventory-ledger/internal/ap"
	"github.com/odyssey-erp/inventory-ledger/internal/costing"
	"github.com/odyssey-erp/inventory-ledger/internal/inventory"
	"github.com/odyssey-erp/inventory-ledger/internal/procurement"
	"github.com/odyssey-erp/inventory-ledger/internal/shared"
)

const (
	opReceive       = "receive"
	opCancelReceipt = "cancel_receipt"
)

// ReceiveLine is one received PO item. UOM defaults to the item's unit and
// UnitPrice to the ordered price.
type ReceiveLine struct {
	POItemID  int64               `json:"po_item_id" validate:"required,gt=0"`
	Quantity  decimal.Decimal     `json:"quantity"`
	UnitPrice decimal.NullDecimal `json:"unit_price"`
	UOM       string              `json:"uom" validate:"max=32"`
}

// ReceiveInput carries a goods receipt against a purchase order.
type ReceiveInput struct {
	PurchaseOrderID      int64                `json:"purchase_order_id" validate:"required,gt=0"`
	WarehouseID          int64                `json:"warehouse_id" validate:"gte=0"`
	Items                []ReceiveLine        `json:"items" validate:"required,min=1,dive"`
	SupplierDiscount     decimal.Decimal      `json:"supplier_discount"`
	SupplierDiscountType costing.DiscountType `json:"supplier_discount_type" validate:"omitempty,oneof=fixed percentage"`
	AdditionalFees       decimal.Decimal      `json:"additional_fees"`
	RecomputeAverageCost bool                 `json:"recompute_average_cost"`
	Note                 string               `json:"note" validate:"max=500"`
	IdempotencyKey       string               `json:"idempotency_key" validate:"max=128"`
	ActorID              int64                `json:"-"`
}

// ReceiveResult is the outcome of a committed receipt.
type ReceiveResult struct {
	Voucher            procurement.ReceivingVoucher
	Movements          []inventory.StockMovement
	UpdatedAverageCost map[int64]decimal.Decimal
	POStatus           procurement.POStatus
	ReceivingStatus    procurement.ReceivingStatus
	Payable            *ap.Payable
}

// PostReceivingVoucher records a receipt: it creates the voucher, posts the
// stock with landed costs, advances the order and raises the payable.
func (s *Service) PostReceivingVoucher(ctx context.Context, input ReceiveInput) (ReceiveResult, error) {
	if err := s.check(ctx, input); err != nil {
		return ReceiveResult{}, err
	}
	var result ReceiveResult
	err := s.execute(ctx, opReceive, shared.PurchaseOrderLockKey(input.PurchaseOrderID), func(ctx context.Context, uow UnitOfWork) error {
		if input.IdempotencyKey != "" {
			if err := uow.ClaimIdempotencyKey(ctx, input.IdempotencyKey, KindReceivingVoucher); err != nil {
				return err
			}
		}
		var err error
		result, err = s.receive(ctx, uow, input)
		return err
	})
	if err != nil {
		return ReceiveResult{}, err
	}
	s.afterCommit(ctx, input.ActorID, Event{
		Kind:         KindReceivingVoucher,
		Action:       ActionPosted,
		DocumentID:   result.Voucher.ID,
		Number:       result.Voucher.Number,
		Movements:    len(result.Movements),
		AverageCosts: result.UpdatedAverageCost,
		OccurredAt:   result.Voucher.ReceivedAt,
	}, map[string]any{
		"purchase_order_id": input.PurchaseOrderID,
		"po_status":         string(result.POStatus),
		"net_amount":        result.Voucher.NetAmount.String(),
	})
	return result, nil
}

func (s *Service) receive(ctx context.Context, uow UnitOfWork, input ReceiveInput) (ReceiveResult, error) {
	po, err := uow.Purchasing().GetPurchaseOrderForUpdate(ctx, input.PurchaseOrderID)
	if err != nil {
		return ReceiveResult{}, err
	}
	if err := po.CanReceive(); err != nil {
		return ReceiveResult{}, err
	}
	warehouseID := input.WarehouseID
	if warehouseID == 0 {
		warehouseID = po.WarehouseID
	}
	if warehouseID == 0 {
		return ReceiveResult{}, shared.Validationf("posting: purchase order %s has no warehouse", po.Number)
	}

	items := make([]procurement.RVItem, 0, len(input.Items))
	receipts := make([]procurement.Receipt, 0, len(input.Items))
	costLines := make([]costing.ReceiptLine, 0, len(input.Items))
	for i, line := range input.Items {
		if line.Quantity.IsZero() {
			continue
		}
		item, ok := po.Item(line.POItemID)
		if !ok {
			return ReceiveResult{}, fmt.Errorf("%w: line %d references item %d", procurement.ErrPOItemNotFound, i+1, line.POItemID)
		}
		unit := item.UOM
		if line.UOM != "" && !strings.EqualFold(line.UOM, item.UOM) {
			return ReceiveResult{}, shared.Validationf("posting: line %d unit %q differs from ordered unit %q", i+1, line.UOM, item.UOM)
		}
		product, err := uow.Inventory().GetProduct(ctx, item.ProductID)
		if err != nil {
			return ReceiveResult{}, fmt.Errorf("line %d: %w", i+1, err)
		}
		base, err := product.Units().ToBaseQuantity(unit, line.Quantity)
		if err != nil {
			return ReceiveResult{}, fmt.Errorf("%w: line %d: %w", shared.ErrValidation, i+1, err)
		}
		price := item.UnitPrice
		if line.UnitPrice.Valid {
			price = line.UnitPrice.Decimal
		}
		if price.IsNegative() {
			return ReceiveResult{}, fmt.Errorf("line %d: %w", i+1, inventory.ErrInvalidUnitCost)
		}
		varQty, varPct := procurement.Variance(*item, line.Quantity)
		items = append(items, procurement.RVItem{
			POItemID:         item.ID,
			ProductID:        item.ProductID,
			OrderedQuantity:  item.Quantity,
			ReceivedQuantity: line.Quantity,
			UnitPrice:        price,
			UOM:              unit,
			BaseQuantity:     base,
			VarianceQuantity: varQty,
			VariancePercent:  varPct,
		})
		receipts = append(receipts, procurement.Receipt{POItemID: item.ID, Quantity: line.Quantity})
		costLines = append(costLines, costing.ReceiptLine{Quantity: line.Quantity, UnitPrice: price})
	}
	if err := po.ApplyReceipt(receipts, s.cfg.OverReceipt); err != nil {
		return ReceiveResult{}, err
	}

	discount := costing.Discount{Amount: input.SupplierDiscount, Type: input.SupplierDiscountType}
	landed, err := costing.Allocate(costLines, discount, input.AdditionalFees, input.RecomputeAverageCost)
	if err != nil {
		return ReceiveResult{}, fmt.Errorf("%w: %w", shared.ErrValidation, err)
	}
	for i := range items {
		items[i].LandedUnitCost = landed.UnitCosts[i]
	}

	now := s.now()
	number, err := shared.NextDocumentNumber(ctx, uow, shared.PrefixReceivingVoucher, now)
	if err != nil {
		return ReceiveResult{}, err
	}
	discountType := input.SupplierDiscountType
	if discountType == "" {
		discountType = costing.DiscountFixed
	}
	rv := procurement.ReceivingVoucher{
		Number:               number,
		PurchaseOrderID:      po.ID,
		SupplierID:           po.SupplierID,
		WarehouseID:          warehouseID,
		Status:               procurement.RVStatusComplete,
		SupplierDiscount:     input.SupplierDiscount,
		SupplierDiscountType: discountType,
		AdditionalFees:       input.AdditionalFees,
		RecomputeAverageCost: input.RecomputeAverageCost,
		TotalAmount:          landed.Total,
		DiscountAmount:       landed.DiscountAmount,
		NetAmount:            landed.Net(),
		Note:                 input.Note,
		ReceivedAt:           now,
		Items:                items,
	}
	rv.ID, err = uow.Purchasing().InsertReceivingVoucher(ctx, rv)
	if err != nil {
		return ReceiveResult{}, fmt.Errorf("posting: insert receiving voucher: %w", err)
	}

	lines := make([]inventory.PostableLine, len(items))
	for i, item := range items {
		lines[i] = inventory.PostableLine{
			Kind:        inventory.LineReceipt,
			ProductID:   item.ProductID,
			WarehouseID: warehouseID,
			Quantity:    item.ReceivedQuantity,
			UOM:         item.UOM,
			UnitCost:    item.LandedUnitCost,
		}
	}
	posted, err := s.ledger.Post(ctx, uow.Inventory(), inventory.Reference{Type: inventory.ReferenceRV, ID: rv.ID, Note: rv.Number}, lines)
	if err != nil {
		return ReceiveResult{}, err
	}
	if err := uow.Purchasing().UpdatePurchaseOrderReceipt(ctx, po); err != nil {
		return ReceiveResult{}, fmt.Errorf("posting: update purchase order: %w", err)
	}
	payable, err := s.raisePayable(ctx, uow, po, rv, now)
	if err != nil {
		return ReceiveResult{}, err
	}
	return ReceiveResult{
		Voucher:            rv,
		Movements:          posted.Movements(),
		UpdatedAverageCost: posted.AverageCosts,
		POStatus:           po.Status,
		ReceivingStatus:    po.ReceivingStatus,
		Payable:            payable,
	}, nil
}

// raisePayable creates the supplier payable owed for the receipt, if any is due yet.
func (s *Service) raisePayable(ctx context.Context, uow UnitOfWork, po procurement.PurchaseOrder, rv procurement.ReceivingVoucher, now time.Time) (*ap.Payable, error) {
	payable := ap.Payable{
		SupplierID:      po.SupplierID,
		PurchaseOrderID: po.ID,
		Status:          ap.PayableOpen,
		DueDate:         ap.DueDate(po.PaymentTerms, now),
		CreatedAt:       now,
	}
	switch s.cfg.PayableMode {
	case PayablePerVoucher:
		payable.ReceivingVoucherID = rv.ID
		payable.TotalAmount = rv.NetAmount
	default:
		if po.ReceivingStatus != procurement.ReceivingFull {
			return nil, nil
		}
		total, err := uow.Purchasing().SumNetAmount(ctx, po.ID)
		if err != nil {
			return nil, fmt.Errorf("posting: sum receipts: %w", err)
		}
		payable.TotalAmount = total
	}
	payable.Balance = payable.TotalAmount
	number, err := shared.NextDocumentNumber(ctx, uow, shared.PrefixPayable, now)
	if err != nil {
		return nil, err
	}
	payable.Number = number
	payable.ID, err = uow.Payables().InsertPayable(ctx, payable)
	if err != nil {
		return nil, fmt.Errorf("posting: insert payable: %w", err)
	}
	return &payable, nil
}

// CancelReceivingVoucher reverses a complete voucher. The base quantity
// recorded at receipt leaves the warehouse as REVERSAL movements, and the
// order and payable are rolled back with it.
// Vouchers whose goods have already been sold from the warehouse stay.
func (s *Service) CancelReceivingVoucher(ctx context.Context, id, actorID int64) (procurement.ReceivingVoucher, error) {
	var rv procurement.ReceivingVoucher
	var moved int
	err := s.execute(ctx, opCancelReceipt, shared.DocumentLockKey(KindReceivingVoucher, id), func(ctx context.Context, uow UnitOfWork) error {
		var err error
		rv, err = uow.Purchasing().GetReceivingVoucherForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := rv.CanCancel(); err != nil {
			return err
		}
		po, err := uow.Purchasing().GetPurchaseOrderForUpdate(ctx, rv.PurchaseOrderID)
		if err != nil {
			return err
		}
		lines := make([]inventory.PostableLine, len(rv.Items))
		receipts := make([]procurement.Receipt, len(rv.Items))
		for i, item := range rv.Items {
			cell := inventory.Cell{ProductID: item.ProductID, WarehouseID: rv.WarehouseID}
			sold, err := uow.Inventory().HasMovementsSince(ctx, cell, inventory.ReferenceSale, rv.ReceivedAt)
			if err != nil {
				return fmt.Errorf("posting: check sales: %w", err)
			}
			if sold {
				return fmt.Errorf("%w: %s has sales after receiving voucher %s", shared.ErrInvalidStateTransition, cell, rv.Number)
			}
			lines[i] = inventory.PostableLine{
				Kind:         inventory.LineReversal,
				ProductID:    item.ProductID,
				WarehouseID:  rv.WarehouseID,
				Quantity:     item.ReceivedQuantity,
				UOM:          item.UOM,
				AppliedDelta: item.BaseQuantity,
			}
			receipts[i] = procurement.Receipt{POItemID: item.POItemID, Quantity: item.ReceivedQuantity}
		}
		posted, err := s.ledger.Post(ctx, uow.Inventory(), inventory.Reference{Type: inventory.ReferenceReversal, ID: rv.ID, Note: rv.Number}, lines)
		if err != nil {
			return err
		}
		moved = len(posted.Movements())
		if err := po.RevertReceipt(receipts); err != nil {
			return err
		}
		if err := uow.Purchasing().UpdatePurchaseOrderReceipt(ctx, po); err != nil {
			return fmt.Errorf("posting: update purchase order: %w", err)
		}
		now := s.now()
		if err := s.cancelPayable(ctx, uow, rv, now); err != nil {
			return err
		}
		if err := uow.Purchasing().UpdateReceivingVoucherStatus(ctx, rv.ID, procurement.RVStatusCancelled, now); err != nil {
			return fmt.Errorf("posting: update receiving voucher: %w", err)
		}
		rv.Status = procurement.RVStatusCancelled
		rv.CancelledAt = now
		return nil
	})
	if err != nil {
		return procurement.ReceivingVoucher{}, err
	}
	s.afterCommit(ctx, actorID, Event{
		Kind:       KindReceivingVoucher,
		Action:     ActionCancelled,
		DocumentID: rv.ID,
		Number:     rv.Number,
		Movements:  moved,
		OccurredAt: rv.CancelledAt,
	}, map[string]any{"purchase_order_id": rv.PurchaseOrderID})
	return rv, nil
}

func (s *Service) cancelPayable(ctx context.Context, uow UnitOfWork, rv procurement.ReceivingVoucher, at time.Time) error {
	voucherID := rv.ID
	if s.cfg.PayableMode != PayablePerVoucher {
		voucherID = 0
	}
	payable, err := uow.Payables().FindOpenPayable(ctx, rv.PurchaseOrderID, voucherID)
	if errors.Is(err, ap.ErrPayableNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("posting: find payable: %w", err)
	}
	if err := payable.CanCancel(); err != nil {
		return err
	}
	if err := uow.Payables().CancelPayable(ctx, payable.ID, at); err != nil {
		return fmt.Errorf("posting: cancel payable: %w", err)
	}
	return nil
}
