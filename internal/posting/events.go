package posting

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Document kinds carried by events and audit entries.
const (
	KindReceivingVoucher = "receiving_voucher"
	KindAdjustment       = "adjustment"
	KindTransfer         = "transfer"
)

// Event actions.
const (
	ActionCreated   = "created"
	ActionUpdated   = "updated"
	ActionPosted    = "posted"
	ActionReversed  = "reversed"
	ActionCancelled = "cancelled"
)

// Event is emitted after a document change commits.
type Event struct {
	ID           string                    `json:"id"`
	Kind         string                    `json:"kind"`
	Action       string                    `json:"action"`
	DocumentID   int64                     `json:"document_id"`
	Number       string                    `json:"number"`
	Movements    int                       `json:"movements"`
	AverageCosts map[int64]decimal.Decimal `json:"average_costs,omitempty"`
	OccurredAt   time.Time                 `json:"occurred_at"`
}

// AuditAction renders the audit action name, e.g. ADJUSTMENT_REVERSED.
func (e Event) AuditAction() string {
	return strings.ToUpper(e.Kind + "_" + e.Action)
}
