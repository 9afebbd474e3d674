package posting

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/inventory-ledger/internal/inventory"
	"github.com/odyssey-erp/inventory-ledger/internal/shared"
)

const (
	opCreateAdjustment  = "create_adjustment"
	opUpdateAdjustment  = "update_adjustment"
	opCancelAdjustment  = "cancel_adjustment"
	opCopyAdjustment    = "copy_adjustment"
	opPostAdjustment    = "post_adjustment"
	opReverseAdjustment = "reverse_adjustment"
)

// AdjustmentItemInput is one counted or corrected product.
type AdjustmentItemInput struct {
	ProductID int64                    `json:"product_id" validate:"required,gt=0"`
	Type      inventory.AdjustmentType `json:"type" validate:"required,oneof=ABSOLUTE RELATIVE"`
	Quantity  decimal.Decimal          `json:"quantity"`
	UOM       string                   `json:"uom" validate:"max=32"`
	Note      string                   `json:"note" validate:"max=255"`
}

// AdjustmentInput creates or replaces a draft adjustment.
type AdjustmentInput struct {
	WarehouseID int64                 `json:"warehouse_id" validate:"required,gt=0"`
	Reason      string                `json:"reason" validate:"max=255"`
	Items       []AdjustmentItemInput `json:"items" validate:"required,min=1,dive"`
	ActorID     int64                 `json:"-"`
}

func (in AdjustmentInput) items() []inventory.AdjustmentItem {
	items := make([]inventory.AdjustmentItem, len(in.Items))
	for i, item := range in.Items {
		items[i] = inventory.AdjustmentItem{
			LineNo:    i + 1,
			ProductID: item.ProductID,
			Type:      item.Type,
			Quantity:  item.Quantity,
			UOM:       item.UOM,
			Note:      item.Note,
		}
	}
	return items
}

// CreateAdjustment stores a DRAFT adjustment, snapshotting the system quantity
// of every item.
func (s *Service) CreateAdjustment(ctx context.Context, input AdjustmentInput) (inventory.Adjustment, error) {
	if err := s.check(ctx, input); err != nil {
		return inventory.Adjustment{}, err
	}
	adj := inventory.Adjustment{
		WarehouseID: input.WarehouseID,
		Status:      inventory.AdjustmentDraft,
		Reason:      input.Reason,
		CreatedBy:   input.ActorID,
		Items:       input.items(),
	}
	err := s.execute(ctx, opCreateAdjustment, "", func(ctx context.Context, uow UnitOfWork) error {
		return s.insertAdjustment(ctx, uow, &adj)
	})
	if err != nil {
		return inventory.Adjustment{}, err
	}
	s.afterCommit(ctx, input.ActorID, Event{Kind: KindAdjustment, Action: ActionCreated, DocumentID: adj.ID, Number: adj.Number}, nil)
	return adj, nil
}

func (s *Service) insertAdjustment(ctx context.Context, uow UnitOfWork, adj *inventory.Adjustment) error {
	if err := adj.Validate(); err != nil {
		return err
	}
	if err := snapshotItems(ctx, uow.Inventory(), adj.WarehouseID, adj.Items); err != nil {
		return err
	}
	now := s.now()
	number, err := shared.NextDocumentNumber(ctx, uow, shared.PrefixAdjustment, now)
	if err != nil {
		return err
	}
	adj.Number = number
	adj.CreatedAt = now
	adj.ID, err = uow.Inventory().InsertAdjustment(ctx, *adj)
	if err != nil {
		return fmt.Errorf("posting: insert adjustment: %w", err)
	}
	return nil
}

// snapshotItems checks products and units and records the current quantity of each item.
func snapshotItems(ctx context.Context, repo inventory.StockRepository, warehouseID int64, items []inventory.AdjustmentItem) error {
	for i := range items {
		item := &items[i]
		if err := checkUnit(ctx, repo, item.ProductID, item.UOM); err != nil {
			return fmt.Errorf("item %d: %w", i+1, err)
		}
		qty, err := repo.GetQuantity(ctx, item.ProductID, warehouseID)
		if err != nil {
			return fmt.Errorf("posting: read quantity: %w", err)
		}
		item.SystemQuantity = qty
	}
	return nil
}

func checkUnit(ctx context.Context, repo inventory.StockRepository, productID int64, unit string) error {
	product, err := repo.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	if _, err := product.Units().Factor(unit); err != nil {
		return fmt.Errorf("%w: product %d: %w", shared.ErrValidation, productID, err)
	}
	return nil
}

// UpdateAdjustment replaces the header and items of a DRAFT adjustment.
func (s *Service) UpdateAdjustment(ctx context.Context, id int64, input AdjustmentInput) (inventory.Adjustment, error) {
	if err := s.check(ctx, input); err != nil {
		return inventory.Adjustment{}, err
	}
	var adj inventory.Adjustment
	err := s.execute(ctx, opUpdateAdjustment, shared.DocumentLockKey(KindAdjustment, id), func(ctx context.Context, uow UnitOfWork) error {
		var err error
		adj, err = uow.Inventory().GetAdjustmentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := adj.CanEdit(); err != nil {
			return err
		}
		adj.WarehouseID = input.WarehouseID
		adj.Reason = input.Reason
		adj.Items = input.items()
		if err := adj.Validate(); err != nil {
			return err
		}
		if err := snapshotItems(ctx, uow.Inventory(), adj.WarehouseID, adj.Items); err != nil {
			return err
		}
		if err := uow.Inventory().UpdateAdjustment(ctx, adj); err != nil {
			return fmt.Errorf("posting: update adjustment: %w", err)
		}
		if err := uow.Inventory().ReplaceAdjustmentItems(ctx, adj.ID, adj.Items); err != nil {
			return fmt.Errorf("posting: replace adjustment items: %w", err)
		}
		return nil
	})
	if err != nil {
		return inventory.Adjustment{}, err
	}
	s.afterCommit(ctx, input.ActorID, Event{Kind: KindAdjustment, Action: ActionUpdated, DocumentID: adj.ID, Number: adj.Number}, nil)
	return adj, nil
}

// CancelAdjustment discards a DRAFT adjustment.
func (s *Service) CancelAdjustment(ctx context.Context, id, actorID int64) (inventory.Adjustment, error) {
	var adj inventory.Adjustment
	err := s.execute(ctx, opCancelAdjustment, shared.DocumentLockKey(KindAdjustment, id), func(ctx context.Context, uow UnitOfWork) error {
		var err error
		adj, err = uow.Inventory().GetAdjustmentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := adj.CanCancel(); err != nil {
			return err
		}
		adj.Status = inventory.AdjustmentCancelled
		return uow.Inventory().UpdateAdjustment(ctx, adj)
	})
	if err != nil {
		return inventory.Adjustment{}, err
	}
	s.afterCommit(ctx, actorID, Event{Kind: KindAdjustment, Action: ActionCancelled, DocumentID: adj.ID, Number: adj.Number}, nil)
	return adj, nil
}

// CopyAdjustment starts a new DRAFT from any existing adjustment.
func (s *Service) CopyAdjustment(ctx context.Context, id, actorID int64) (inventory.Adjustment, error) {
	var adj inventory.Adjustment
	err := s.execute(ctx, opCopyAdjustment, "", func(ctx context.Context, uow UnitOfWork) error {
		source, err := uow.Inventory().GetAdjustmentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		adj = source.Copy()
		adj.CreatedBy = actorID
		return s.insertAdjustment(ctx, uow, &adj)
	})
	if err != nil {
		return inventory.Adjustment{}, err
	}
	s.afterCommit(ctx, actorID, Event{Kind: KindAdjustment, Action: ActionCreated, DocumentID: adj.ID, Number: adj.Number}, map[string]any{"source_id": id})
	return adj, nil
}

// PostAdjustment applies a DRAFT adjustment to stock. The quantity before and
// the delta applied are stored per item for the reversal.
func (s *Service) PostAdjustment(ctx context.Context, id, actorID int64) (inventory.Adjustment, error) {
	var (
		adj    inventory.Adjustment
		posted inventory.Result
	)
	err := s.execute(ctx, opPostAdjustment, shared.DocumentLockKey(KindAdjustment, id), func(ctx context.Context, uow UnitOfWork) error {
		var err error
		adj, err = uow.Inventory().GetAdjustmentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := adj.CanPost(); err != nil {
			return err
		}
		posted, err = s.ledger.Post(ctx, uow.Inventory(), inventory.Reference{Type: inventory.ReferenceAdjustment, ID: adj.ID, Note: adj.Number}, adj.PostableLines())
		if err != nil {
			return err
		}
		for i, applied := range posted.Lines {
			adj.Items[i].SystemQuantity = applied.Before
			adj.Items[i].AppliedDelta = applied.Delta
		}
		adj.Status = inventory.AdjustmentPosted
		adj.PostedAt = s.now()
		return uow.Inventory().UpdateAdjustment(ctx, adj)
	})
	if err != nil {
		return inventory.Adjustment{}, err
	}
	s.afterCommit(ctx, actorID, Event{
		Kind:       KindAdjustment,
		Action:     ActionPosted,
		DocumentID: adj.ID,
		Number:     adj.Number,
		Movements:  len(posted.Movements()),
		OccurredAt: adj.PostedAt,
	}, nil)
	return adj, nil
}

// ReverseAdjustment takes back exactly what a POSTED adjustment applied,
// appending REVERSAL movements. Average cost is left as is.
func (s *Service) ReverseAdjustment(ctx context.Context, id, actorID int64) (inventory.Adjustment, error) {
	var (
		adj    inventory.Adjustment
		posted inventory.Result
	)
	err := s.execute(ctx, opReverseAdjustment, shared.DocumentLockKey(KindAdjustment, id), func(ctx context.Context, uow UnitOfWork) error {
		var err error
		adj, err = uow.Inventory().GetAdjustmentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := adj.CanReverse(); err != nil {
			return err
		}
		posted, err = s.ledger.Post(ctx, uow.Inventory(), inventory.Reference{Type: inventory.ReferenceAdjustment, ID: adj.ID, Note: adj.Number}, adj.ReversalLines())
		if err != nil {
			return err
		}
		adj.Status = inventory.AdjustmentReversed
		adj.ReversedAt = s.now()
		return uow.Inventory().UpdateAdjustment(ctx, adj)
	})
	if err != nil {
		return inventory.Adjustment{}, err
	}
	s.afterCommit(ctx, actorID, Event{
		Kind:       KindAdjustment,
		Action:     ActionReversed,
		DocumentID: adj.ID,
		Number:     adj.Number,
		Movements:  len(posted.Movements()),
		OccurredAt: adj.ReversedAt,
	}, nil)
	return adj, nil
}
