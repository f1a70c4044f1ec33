// Package orders consumes settlement events from the marketplace core
// and turns them into wallet ledger entries. Settled revenue lands as a
// debit_hold that matures after the configured hold window; refunds
// claw back revenue that is still held.
package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/adeyemio/tradefair-backend/internal/schedule"
	"github.com/adeyemio/tradefair-backend/internal/vendorlease"
	"github.com/adeyemio/tradefair-backend/internal/wallet"
	"github.com/adeyemio/tradefair-backend/pkg/db/models"
	"github.com/adeyemio/tradefair-backend/pkg/enums"
	pkgerrors "github.com/adeyemio/tradefair-backend/pkg/errors"
	"github.com/adeyemio/tradefair-backend/pkg/logger"
	"github.com/adeyemio/tradefair-backend/pkg/outbox"
)

const consumerName = "wallet-settlements"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type leaseManager interface {
	Acquire(ctx context.Context, vendorID uuid.UUID) (*vendorlease.Lease, error)
}

// SettlementPayload is the marketplace core's order settlement event.
type SettlementPayload struct {
	VendorID    uuid.UUID          `json:"vendorId"`
	OrderRef    string             `json:"orderRef"`
	Source      enums.LedgerSource `json:"source"`
	AmountMinor int64              `json:"amountMinor"`
	Currency    enums.Currency     `json:"currency"`
}

// Consumer turns order settlement events into ledger entries.
type Consumer struct {
	wallets    wallet.Service
	db         txRunner
	leases     leaseManager
	logg       *logger.Logger
	holdWindow time.Duration
	now        func() time.Time
}

// NewConsumer builds the settlement consumer.
func NewConsumer(wallets wallet.Service, db txRunner, leases leaseManager, logg *logger.Logger, holdWindow time.Duration) (*Consumer, error) {
	if wallets == nil {
		return nil, fmt.Errorf("wallet service required")
	}
	if db == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if leases == nil {
		return nil, fmt.Errorf("lease manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if holdWindow <= 0 {
		return nil, fmt.Errorf("hold window must be positive")
	}
	return &Consumer{
		wallets:    wallets,
		db:         db,
		leases:     leases,
		logg:       logg,
		holdWindow: holdWindow,
		now:        time.Now,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context, subscription *pubsub.Subscriber) error {
	if subscription == nil {
		return fmt.Errorf("orders subscription required")
	}
	return subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := enums.OrderEventType(msg.Attributes["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": string(eventType),
		"consumer":   consumerName,
	})

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{ack: true}
	}

	if err := c.Process(ctx, eventType, envelope); err != nil {
		if pkgErr := pkgerrors.As(err); pkgErr != nil && !pkgerrors.MetadataFor(pkgErr.Code()).Retryable {
			c.logg.Error(logCtx, "settlement event dropped", err)
			return processResult{ack: true}
		}
		c.logg.Error(logCtx, "settlement event failed, will retry", err)
		return processResult{nack: true}
	}
	return processResult{ack: true}
}

// Process applies one settlement event. A nil return means the event is
// handled or deliberately dropped; an error asks for redelivery unless
// it is non-retryable.
func (c *Consumer) Process(ctx context.Context, eventType enums.OrderEventType, envelope outbox.PayloadEnvelope) error {
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"event_id":   envelope.EventID,
		"event_type": string(eventType),
	})

	if eventType != enums.EventOrderSettled && eventType != enums.EventOrderRefunded {
		c.logg.Info(logCtx, "skipping non-settlement event")
		return nil
	}

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return nil
	}

	var payload SettlementPayload
	if err := json.Unmarshal(envelope.Data, &payload); err != nil {
		c.logg.Error(logCtx, "failed to parse payload", err)
		return nil
	}
	if payload.VendorID == uuid.Nil || payload.OrderRef == "" || payload.AmountMinor <= 0 {
		c.logg.Error(logCtx, "malformed settlement payload", fmt.Errorf("vendor %s, ref %q, amount %d", payload.VendorID, payload.OrderRef, payload.AmountMinor))
		return nil
	}

	logCtx = c.logg.WithVendorID(logCtx, payload.VendorID.String())
	logCtx = c.logg.WithFields(logCtx, map[string]any{"order_ref": payload.OrderRef})

	if eventType == enums.EventOrderSettled {
		return c.handleSettled(ctx, eventID, payload)
	}
	return c.handleRefunded(ctx, eventID, payload, logCtx)
}

// handleSettled appends the hold entry. A redelivered event finds the
// existing hold for the order and becomes a no-op.
func (c *Consumer) handleSettled(ctx context.Context, eventID uuid.UUID, payload SettlementPayload) error {
	exists, err := c.wallets.Repo().HasEntry(ctx, payload.VendorID, payload.OrderRef, enums.LedgerEntryTypeDebitHold)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing hold")
	}
	if exists {
		return nil
	}

	maturesAt := c.now().UTC().Add(c.holdWindow)
	_, err = c.wallets.Append(ctx, wallet.AppendEntryInput{
		VendorID:        payload.VendorID,
		Currency:        payload.Currency,
		Source:          payload.Source,
		OrderRef:        payload.OrderRef,
		EventID:         &eventID,
		AmountMinor:     payload.AmountMinor,
		Type:            enums.LedgerEntryTypeDebitHold,
		TargetPayoutAt:  maturesAt,
		TargetPayoutKey: maturesAt.Format(schedule.CycleKeyLayout),
		CreatedBy:       "system:orders-consumer",
	})
	return err
}

// handleRefunded claws back revenue that is still in the hold window.
// A refund for an order whose hold has already been promoted or clawed
// back cannot be applied against held funds; it is logged for manual
// reconciliation and dropped. The check and the clawback run under the
// vendor's lease inside one transaction so the eligibility sweep cannot
// promote the hold between them.
func (c *Consumer) handleRefunded(ctx context.Context, eventID uuid.UUID, payload SettlementPayload, logCtx context.Context) error {
	lease, err := c.leases.Acquire(ctx, payload.VendorID)
	if err != nil {
		if errors.Is(err, vendorlease.ErrHeld) {
			return pkgerrors.New(pkgerrors.CodeConcurrency, "vendor busy, refund will be redelivered")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire vendor lease")
	}
	defer func() {
		if err := lease.Release(ctx); err != nil {
			c.logg.Error(logCtx, "release vendor lease", err)
		}
	}()

	return c.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := c.wallets.Repo().WithTx(tx)

		exists, err := repo.HasEntry(ctx, payload.VendorID, payload.OrderRef, enums.LedgerEntryTypeDebitRefund)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing refund")
		}
		if exists {
			return nil
		}

		hold, err := repo.FindHoldByOrderRef(ctx, payload.VendorID, payload.OrderRef)
		if err != nil {
			c.logg.Warn(logCtx, "refund for unknown order, dropped for manual review")
			return nil
		}

		promoted, err := repo.HasEntry(ctx, payload.VendorID, payload.OrderRef, enums.LedgerEntryTypeHoldRelease)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check hold promotion")
		}
		if promoted {
			c.logg.Warn(logCtx, "refund arrived after hold promotion, dropped for manual review")
			return nil
		}

		// A refund retires the whole hold; a partial refund cannot be
		// expressed against held funds and goes to manual review instead.
		if payload.AmountMinor < hold.AmountMinor {
			c.logg.Warn(logCtx, "partial refund within hold window, dropped for manual review")
			return nil
		}

		entry := &models.LedgerEntry{
			VendorID:        payload.VendorID,
			Currency:        hold.Currency,
			Source:          hold.Source,
			OrderRef:        payload.OrderRef,
			EventID:         &eventID,
			AmountMinor:     hold.AmountMinor,
			Type:            enums.LedgerEntryTypeDebitRefund,
			Note:            fmt.Sprintf("refund against hold %s", hold.ID),
			TargetPayoutAt:  hold.TargetPayoutAt,
			TargetPayoutKey: hold.TargetPayoutKey,
			OriginEntryID:   &hold.ID,
			CreatedBy:       "system:orders-consumer",
		}
		if err := repo.CreateEntry(ctx, entry); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append refund entry")
		}
		return repo.AdjustSummary(ctx, payload.VendorID, 0, -hold.AmountMinor, nil)
	})
}
