package posting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/odyssey-erp/inventory-ledger/internal/inventory"
	"github.com/odyssey-erp/inventory-ledger/internal/procurement"
	"github.com/odyssey-erp/inventory-ledger/internal/shared"
)

// PayableMode decides when a receipt creates the supplier payable.
type PayableMode string

const (
	// PayableOnFullReceipt creates one payable for the whole order once every item is received.
	PayableOnFullReceipt PayableMode = "full_receipt"
	// PayablePerVoucher creates one payable per receiving voucher.
	PayablePerVoucher PayableMode = "per_voucher"
)

// Config tunes document posting.
type Config struct {
	OverReceipt procurement.OverReceiptPolicy
	PayableMode PayableMode
	LockTTL     time.Duration
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Publisher delivers document events after commit.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Locker guards a document key for the duration of one request.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)
}

// Dependencies are optional collaborators; nil members are skipped.
type Dependencies struct {
	Locker  Locker
	Audit   AuditPort
	Events  Publisher
	Metrics *Metrics
	Logger  *slog.Logger
}

// Service posts receiving vouchers, adjustments and transfers. Each public
// operation is exactly one unit of work.
type Service struct {
	runner   Runner
	ledger   *inventory.Ledger
	cfg      Config
	locker   Locker
	audit    AuditPort
	events   Publisher
	metrics  *Metrics
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time
}

// NewService builds Service.
func NewService(runner Runner, ledger *inventory.Ledger, cfg Config, deps Dependencies) *Service {
	if cfg.OverReceipt == "" {
		cfg.OverReceipt = procurement.OverReceiptReject
	}
	if cfg.PayableMode == "" {
		cfg.PayableMode = PayableOnFullReceipt
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		runner:   runner,
		ledger:   ledger,
		cfg:      cfg,
		locker:   deps.Locker,
		audit:    deps.Audit,
		events:   deps.Events,
		metrics:  deps.Metrics,
		logger:   logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// execute runs fn as one unit of work under the document lock of lockKey.
func (s *Service) execute(ctx context.Context, op, lockKey string, fn func(context.Context, UnitOfWork) error) (err error) {
	start := time.Now()
	defer func() {
		s.metrics.observe(op, time.Since(start), err)
	}()
	if s.locker != nil && lockKey != "" {
		release, lockErr := s.locker.Acquire(ctx, lockKey, s.cfg.LockTTL)
		if lockErr != nil {
			return lockErr
		}
		defer func() {
			if relErr := release(context.WithoutCancel(ctx)); relErr != nil {
				s.logger.Warn("release document lock", slog.String("key", lockKey), slog.Any("error", relErr))
			}
		}()
	}
	err = shared.WrapTransaction(op, s.runner.WithTx(ctx, fn))
	var txErr *shared.TransactionError
	if errors.As(err, &txErr) {
		s.logger.Error("posting rolled back", slog.String("op", op), slog.Any("error", err))
	}
	return err
}

func (s *Service) check(ctx context.Context, input any) error {
	if err := s.validate.StructCtx(ctx, input); err != nil {
		return shared.Validationf("%v", err)
	}
	return nil
}

// afterCommit records audit and publishes the event. Failures are logged only:
// the posting is already durable.
func (s *Service) afterCommit(ctx context.Context, actorID int64, evt Event, meta map[string]any) {
	evt.ID = uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("%s:%d:%s", evt.Kind, evt.DocumentID, evt.Action))).String()
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = s.now()
	}
	if s.audit != nil {
		if meta == nil {
			meta = map[string]any{}
		}
		meta["number"] = evt.Number
		log := shared.AuditLog{
			ActorID:  actorID,
			Action:   evt.AuditAction(),
			Entity:   evt.Kind,
			EntityID: strconv.FormatInt(evt.DocumentID, 10),
			Meta:     meta,
			At:       evt.OccurredAt,
		}
		if err := s.audit.Record(ctx, log); err != nil {
			s.logger.Warn("record audit", slog.String("action", log.Action), slog.Any("error", err))
		}
	}
	if s.events != nil {
		if err := s.events.Publish(ctx, evt); err != nil {
			s.logger.Warn("publish document event", slog.String("event", evt.ID), slog.Any("error", err))
		}
	}
	s.logger.Info("document posted", slog.String("kind", evt.Kind), slog.String("action", evt.Action), slog.String("number", evt.Number))
}
