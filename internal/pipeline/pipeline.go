// Package pipeline is the single create-or-update path shared by webhook
// processing, pull sync and the order-system hook.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"deliverysync/internal/delivery"
	"deliverysync/internal/integrations"
	"deliverysync/internal/model"
	"deliverysync/internal/store"
)

type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionSkipped Action = "skipped"
)

// Config holds the values new deliveries are priced and addressed with.
type Config struct {
	BaseFee         decimal.Decimal
	PerKgFee        decimal.Decimal
	DefaultPriority int
	TrackingPrefix  string
	DefaultPickup   model.Contact
}

type Options struct {
	// SkipMissing makes Run update-only: an order without a mapping is skipped.
	SkipMissing bool
	// SkipExisting makes Run create-only: an order with a mapping is skipped.
	SkipExisting bool
	// Step runs inside the transaction after the create or update.
	Step   func(ctx context.Context, u *Unit) error
	Actor  string
	Source string
}

type Result struct {
	Action   Action
	Delivery model.DeliveryRequest
}

type Pipeline struct {
	Store   store.Store
	Machine *delivery.Machine
	Config  Config
	Log     *zap.Logger
	Now     func() time.Time
}

func New(s store.Store, m *delivery.Machine, cfg Config, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.DefaultPriority == 0 {
		cfg.DefaultPriority = 2
	}
	if cfg.TrackingPrefix == "" {
		cfg.TrackingPrefix = "DLV"
	}
	return &Pipeline{Store: s, Machine: m, Config: cfg, Log: log, Now: func() time.Time { return time.Now().UTC() }}
}

// Run applies order to the delivery mapped from (conn, order.ID) in one transaction.
// Losing a creation race surfaces as store.ErrDuplicate; the unit is then rerun once
// and takes the update path.
func (p *Pipeline) Run(ctx context.Context, conn model.PlatformConnection, order model.CanonicalOrder, opts Options) (Result, error) {
	res, err := p.run(ctx, conn, order, opts)
	if errors.Is(err, store.ErrDuplicate) {
		p.Log.Info("order created concurrently, retrying as update",
			zap.String("platform_id", conn.ID),
			zap.String("external_order_id", order.ID),
		)
		res, err = p.run(ctx, conn, order, opts)
	}
	return res, err
}

func (p *Pipeline) run(ctx context.Context, conn model.PlatformConnection, order model.CanonicalOrder, opts Options) (Result, error) {
	var res Result
	u := &Unit{Order: order, pipeline: p, actor: opts.Actor}
	err := p.Store.WithTx(ctx, func(tx store.Tx) error {
		u.Tx = tx
		u.changes = nil
		mapping, err := tx.GetMapping(ctx, conn.ID, order.ID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			if opts.SkipMissing {
				res.Action = ActionSkipped
				return nil
			}
			if err := p.create(ctx, tx, conn, order, opts, u); err != nil {
				return err
			}
			res.Action = ActionCreated
		case err != nil:
			return err
		default:
			if opts.SkipExisting {
				res.Action = ActionSkipped
				return nil
			}
			if err := p.update(ctx, tx, mapping, order, u); err != nil {
				return err
			}
			res.Action = ActionUpdated
		}
		if opts.Step != nil {
			if err := opts.Step(ctx, u); err != nil {
				return err
			}
		}
		res.Delivery = *u.Delivery
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	p.Machine.Publish(ctx, u.changes...)
	return res, nil
}

func (p *Pipeline) create(ctx context.Context, tx store.Tx, conn model.PlatformConnection, order model.CanonicalOrder, opts Options, u *Unit) error {
	now := p.Now()
	pickup := p.Config.DefaultPickup
	if order.Store != nil {
		pickup = *order.Store
		if pickup.Address == "" {
			pickup.Address = p.Config.DefaultPickup.Address
		}
	}
	fee := p.Config.BaseFee.Add(p.Config.PerKgFee.Mul(order.WeightKg))
	meta := map[string]any{
		"platform": conn.Name,
		"source":   sourceOf(opts),
	}
	for k, v := range order.Metadata {
		meta[k] = v
	}
	d := &model.DeliveryRequest{
		TrackingNumber:     p.trackingNumber(now),
		PlatformID:         conn.ID,
		ExternalOrderID:    order.ID,
		OrderNumber:        order.Number,
		Status:             model.StatusPending,
		Priority:           p.Config.DefaultPriority,
		Pickup:             pickup,
		Recipient:          order.Shipping,
		PackageDescription: integrations.Describe("Order", order.Number, order.Items),
		PackageWeight:      order.WeightKg,
		DeclaredValue:      order.Total,
		IsFragile:          fragile(order.Items),
		DeliveryFee:        fee,
		TotalAmount:        fee,
		PaymentStatus:      paymentOrPending(order.PaymentStatus),
		Metadata:           meta,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := tx.CreateDelivery(ctx, d); err != nil {
		return fmt.Errorf("create delivery: %w", err)
	}
	m := &model.OrderMapping{
		PlatformID:      conn.ID,
		ExternalOrderID: order.ID,
		OrderNumber:     order.Number,
		DeliveryID:      d.ID,
		RawPayload:      order.Raw,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := tx.CreateMapping(ctx, m); err != nil {
		return fmt.Errorf("create mapping: %w", err)
	}
	if err := p.Machine.RecordCreated(ctx, tx, *d, actorOf(opts)); err != nil {
		return err
	}
	u.Delivery, u.Mapping, u.Created = d, *m, true
	return nil
}

func (p *Pipeline) update(ctx context.Context, tx store.Tx, mapping model.OrderMapping, order model.CanonicalOrder, u *Unit) error {
	d, err := tx.GetDelivery(ctx, mapping.DeliveryID)
	if err != nil {
		return fmt.Errorf("mapped delivery %s: %w", mapping.DeliveryID, err)
	}
	now := p.Now()
	if order.Shipping.Address != "" {
		d.Recipient = order.Shipping
	}
	d.OrderNumber = order.Number
	d.PackageDescription = integrations.Describe("Order", order.Number, order.Items)
	d.PackageWeight = order.WeightKg
	d.DeclaredValue = order.Total
	d.IsFragile = fragile(order.Items)
	if d.Metadata == nil {
		d.Metadata = map[string]any{}
	}
	for k, v := range order.Metadata {
		d.Metadata[k] = v
	}
	d.UpdatedAt = now
	if err := tx.UpdateDelivery(ctx, d); err != nil {
		return err
	}
	mapping.OrderNumber = order.Number
	if len(order.Raw) > 0 {
		mapping.RawPayload = order.Raw
	}
	mapping.UpdatedAt = now
	if err := tx.UpdateMapping(ctx, mapping); err != nil {
		return err
	}
	u.Delivery, u.Mapping = &d, mapping
	return nil
}

func (p *Pipeline) trackingNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return p.Config.TrackingPrefix + now.UTC().Format("20060102150405") + suffix
}

func fragile(items []model.LineItem) bool {
	for _, it := range items {
		if it.Fragile {
			return true
		}
	}
	return false
}

func paymentOrPending(s model.PaymentStatus) model.PaymentStatus {
	if s == "" {
		return model.PaymentPending
	}
	return s
}

func sourceOf(opts Options) string {
	if opts.Source != "" {
		return opts.Source
	}
	return "integration"
}

func actorOf(opts Options) string {
	if opts.Actor != "" {
		return opts.Actor
	}
	return "system"
}
