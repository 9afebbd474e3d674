package shared

import (
	"context"
	"fmt"
	"time"
)

// Document number prefixes.
const (
	PrefixReceivingVoucher = "RV"
	PrefixAdjustment       = "ADJ"
	PrefixTransfer         = "TRF"
	PrefixPayable          = "AP"
)

// Sequencer hands out per-prefix, per-day counters starting at 1.
type Sequencer interface {
	NextSequence(ctx context.Context, prefix string, day time.Time) (int, error)
}

// FormatDocumentNumber renders PREFIX-YYYYMMDD-NNNN.
func FormatDocumentNumber(prefix string, day time.Time, seq int) string {
	return fmt.Sprintf("%s-%s-%04d", prefix, day.Format("20060102"), seq)
}

// NextDocumentNumber draws the next number for prefix on the day of at.
func NextDocumentNumber(ctx context.Context, seq Sequencer, prefix string, at time.Time) (string, error) {
	day := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)
	n, err := seq.NextSequence(ctx, prefix, day)
	if err != nil {
		return "", fmt.Errorf("shared: next %s number: %w", prefix, err)
	}
	return FormatDocumentNumber(prefix, day, n), nil
}
