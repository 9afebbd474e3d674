package posting

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/inventory-ledger/internal/inventory"
	"github.com/odyssey-erp/inventory-ledger/internal/shared"
)

const (
	opCreateTransfer = "create_transfer"
	opUpdateTransfer = "update_transfer"
	opCancelTransfer = "cancel_transfer"
	opPostTransfer   = "post_transfer"
)

// TransferItemInput is one product to move.
type TransferItemInput struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Quantity  decimal.Decimal `json:"quantity"`
	UOM       string          `json:"uom" validate:"max=32"`
	Note      string          `json:"note" validate:"max=255"`
}

// TransferInput creates or replaces a draft transfer.
type TransferInput struct {
	SourceWarehouseID      int64               `json:"source_warehouse_id" validate:"required,gt=0"`
	DestinationWarehouseID int64               `json:"destination_warehouse_id" validate:"required,gt=0,nefield=SourceWarehouseID"`
	Note                   string              `json:"note" validate:"max=500"`
	Items                  []TransferItemInput `json:"items" validate:"required,min=1,dive"`
	ActorID                int64               `json:"-"`
}

func (in TransferInput) apply(t *inventory.Transfer) {
	t.SourceWarehouseID = in.SourceWarehouseID
	t.DestinationWarehouseID = in.DestinationWarehouseID
	t.Note = in.Note
	t.Items = make([]inventory.TransferItem, len(in.Items))
	for i, item := range in.Items {
		t.Items[i] = inventory.TransferItem{
			LineNo:    i + 1,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UOM:       item.UOM,
			Note:      item.Note,
		}
	}
}

func checkTransfer(ctx context.Context, repo inventory.StockRepository, t inventory.Transfer) error {
	if err := t.Validate(); err != nil {
		return err
	}
	for i, item := range t.Items {
		if err := checkUnit(ctx, repo, item.ProductID, item.UOM); err != nil {
			return fmt.Errorf("item %d: %w", i+1, err)
		}
	}
	return nil
}

// CreateTransfer stores a DRAFT transfer.
func (s *Service) CreateTransfer(ctx context.Context, input TransferInput) (inventory.Transfer, error) {
	if err := s.check(ctx, input); err != nil {
		return inventory.Transfer{}, err
	}
	t := inventory.Transfer{Status: inventory.TransferDraft, CreatedBy: input.ActorID}
	input.apply(&t)
	err := s.execute(ctx, opCreateTransfer, "", func(ctx context.Context, uow UnitOfWork) error {
		if err := checkTransfer(ctx, uow.Inventory(), t); err != nil {
			return err
		}
		now := s.now()
		number, err := shared.NextDocumentNumber(ctx, uow, shared.PrefixTransfer, now)
		if err != nil {
			return err
		}
		t.Number = number
		t.CreatedAt = now
		t.ID, err = uow.Inventory().InsertTransfer(ctx, t)
		if err != nil {
			return fmt.Errorf("posting: insert transfer: %w", err)
		}
		return nil
	})
	if err != nil {
		return inventory.Transfer{}, err
	}
	s.afterCommit(ctx, input.ActorID, Event{Kind: KindTransfer, Action: ActionCreated, DocumentID: t.ID, Number: t.Number}, nil)
	return t, nil
}

// UpdateTransfer replaces the header and items of a DRAFT transfer.
func (s *Service) UpdateTransfer(ctx context.Context, id int64, input TransferInput) (inventory.Transfer, error) {
	if err := s.check(ctx, input); err != nil {
		return inventory.Transfer{}, err
	}
	var t inventory.Transfer
	err := s.execute(ctx, opUpdateTransfer, shared.DocumentLockKey(KindTransfer, id), func(ctx context.Context, uow UnitOfWork) error {
		var err error
		t, err = uow.Inventory().GetTransferForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := t.CanEdit(); err != nil {
			return err
		}
		input.apply(&t)
		if err := checkTransfer(ctx, uow.Inventory(), t); err != nil {
			return err
		}
		if err := uow.Inventory().UpdateTransfer(ctx, t); err != nil {
			return fmt.Errorf("posting: update transfer: %w", err)
		}
		if err := uow.Inventory().ReplaceTransferItems(ctx, t.ID, t.Items); err != nil {
			return fmt.Errorf("posting: replace transfer items: %w", err)
		}
		return nil
	})
	if err != nil {
		return inventory.Transfer{}, err
	}
	s.afterCommit(ctx, input.ActorID, Event{Kind: KindTransfer, Action: ActionUpdated, DocumentID: t.ID, Number: t.Number}, nil)
	return t, nil
}

// CancelTransfer discards a DRAFT transfer.
func (s *Service) CancelTransfer(ctx context.Context, id, actorID int64) (inventory.Transfer, error) {
	var t inventory.Transfer
	err := s.execute(ctx, opCancelTransfer, shared.DocumentLockKey(KindTransfer, id), func(ctx context.Context, uow UnitOfWork) error {
		var err error
		t, err = uow.Inventory().GetTransferForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := t.CanCancel(); err != nil {
			return err
		}
		t.Status = inventory.TransferCancelled
		return uow.Inventory().UpdateTransfer(ctx, t)
	})
	if err != nil {
		return inventory.Transfer{}, err
	}
	s.afterCommit(ctx, actorID, Event{Kind: KindTransfer, Action: ActionCancelled, DocumentID: t.ID, Number: t.Number}, nil)
	return t, nil
}

// PostTransfer moves the stock of a DRAFT transfer. The average cost of each
// product is unaffected.
func (s *Service) PostTransfer(ctx context.Context, id, actorID int64) (inventory.Transfer, error) {
	var (
		t      inventory.Transfer
		posted inventory.Result
	)
	err := s.execute(ctx, opPostTransfer, shared.DocumentLockKey(KindTransfer, id), func(ctx context.Context, uow UnitOfWork) error {
		var err error
		t, err = uow.Inventory().GetTransferForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := t.CanPost(); err != nil {
			return err
		}
		if err := t.Validate(); err != nil {
			return err
		}
		posted, err = s.ledger.Post(ctx, uow.Inventory(), inventory.Reference{Type: inventory.ReferenceTransfer, ID: t.ID, Note: t.Number}, t.PostableLines())
		if err != nil {
			return err
		}
		t.Status = inventory.TransferPosted
		t.PostedAt = s.now()
		return uow.Inventory().UpdateTransfer(ctx, t)
	})
	if err != nil {
		return inventory.Transfer{}, err
	}
	s.afterCommit(ctx, actorID, Event{
		Kind:       KindTransfer,
		Action:     ActionPosted,
		DocumentID: t.ID,
		Number:     t.Number,
		Movements:  len(posted.Movements()),
		OccurredAt: t.PostedAt,
	}, nil)
	return t, nil
}
