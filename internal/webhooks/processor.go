package webhooks

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"deliverysync/internal/integrations"
	"deliverysync/internal/metrics"
	"deliverysync/internal/model"
	"deliverysync/internal/pipeline"
	"deliverysync/internal/store"
)

// Outcome is what a webhook caller is told about an event.
type Outcome struct {
	EventID string                   `json:"event_id"`
	Status  model.WebhookEventStatus `json:"status"`
	Error   string                   `json:"error,omitempty"`
}

// Processor turns a recorded WebhookEvent into delivery changes. It is safe to call
// repeatedly for the same event: the claim lets one caller through and a processed
// event is reported as such without touching deliveries again.
type Processor struct {
	Store    store.Store
	Registry *integrations.Registry
	Pipeline *pipeline.Pipeline
	Log      *zap.Logger
	// StaleAfter is how long an event may sit in processing before another
	// caller may claim it again. It must exceed the processing timeout.
	StaleAfter time.Duration
}

const defaultStaleAfter = time.Minute

func (p *Processor) staleBefore(now time.Time) time.Time {
	if p.StaleAfter > 0 {
		return now.Add(-p.StaleAfter)
	}
	return now.Add(-defaultStaleAfter)
}

func (p *Processor) Process(ctx context.Context, eventID string) (Outcome, error) {
	e, ok, err := p.Store.ClaimWebhookEvent(ctx, eventID, p.staleBefore(time.Now().UTC()))
	if err != nil {
		return Outcome{EventID: eventID}, err
	}
	if !ok {
		return Outcome{EventID: eventID, Status: e.Status}, nil
	}
	start := time.Now()
	perr := p.process(ctx, e)
	status, errText := model.WebhookProcessed, ""
	if perr != nil {
		status, errText = model.WebhookFailed, perr.Error()
	}
	metrics.WebhookProcessing.WithLabelValues(string(e.EventType), string(status)).Observe(time.Since(start).Seconds())

	// The event must leave processing even when ctx has expired.
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := p.Store.FinishWebhookEvent(fctx, e.ID, status, errText); err != nil {
		return Outcome{EventID: e.ID, Status: model.WebhookProcessing}, fmt.Errorf("finish event %s: %w", e.ID, err)
	}
	out := Outcome{EventID: e.ID, Status: status, Error: errText}
	if perr != nil {
		return out, fmt.Errorf("%w: %v", ErrProcessing, perr)
	}
	return out, nil
}

func (p *Processor) process(ctx context.Context, e model.WebhookEvent) error {
	step, opts, known := dispatch(e.EventType)
	if !known {
		p.Log.Info("ignoring webhook event type", zap.String("event_id", e.ID), zap.String("event_type", string(e.EventType)))
		return nil
	}
	conn, err := p.Store.GetPlatform(ctx, e.PlatformID)
	if err != nil {
		return fmt.Errorf("platform %s: %w", e.PlatformID, err)
	}
	order, err := p.Registry.For(conn.Type).Normalize(e.Payload)
	if err != nil {
		return fmt.Errorf("normalize: %w", err)
	}
	opts.Step = step
	opts.Actor = "webhook:" + conn.Name
	opts.Source = "webhook"
	res, err := p.Pipeline.Run(ctx, conn, order, opts)
	if err != nil {
		return err
	}
	p.Log.Debug("webhook applied",
		zap.String("event_id", e.ID),
		zap.String("action", string(res.Action)),
		zap.String("delivery_id", res.Delivery.ID),
	)
	return nil
}

type step = func(ctx context.Context, u *pipeline.Unit) error

// dispatch returns the in-transaction step and pipeline options for an event type.
func dispatch(et model.EventType) (step, pipeline.Options, bool) {
	switch et {
	case model.EventOrderCreated:
		return nil, pipeline.Options{}, true
	case model.EventOrderUpdated:
		return func(ctx context.Context, u *pipeline.Unit) error {
			return u.Project(ctx, pipeline.ProjectOrderStatus(u.Order.Status), "Order status "+u.Order.Status)
		}, pipeline.Options{}, true
	case model.EventOrderCancelled, model.EventOrderRefunded:
		return func(ctx context.Context, u *pipeline.Unit) error {
			return u.TransitionUnlessFinal(ctx, model.StatusCancelled, "Order "+string(et))
		}, pipeline.Options{SkipMissing: true}, true
	case model.EventOrderPaid:
		return func(ctx context.Context, u *pipeline.Unit) error {
			if err := u.SetPayment(ctx, model.PaymentPaid); err != nil {
				return err
			}
			if u.Delivery.Status == model.StatusPending {
				return u.Transition(ctx, model.StatusAccepted, "Order paid")
			}
			return nil
		}, pipeline.Options{}, true
	case model.EventOrderShipped:
		return func(ctx context.Context, u *pipeline.Unit) error {
			return u.TransitionUnlessFinal(ctx, model.StatusInTransit, "Order shipped")
		}, pipeline.Options{}, true
	case model.EventOrderDelivered:
		return func(ctx context.Context, u *pipeline.Unit) error {
			return u.TransitionUnlessFinal(ctx, model.StatusDelivered, "Order delivered")
		}, pipeline.Options{}, true
	case model.EventPaymentFailed:
		return func(ctx context.Context, u *pipeline.Unit) error {
			return u.SetPayment(ctx, model.PaymentFailed)
		}, pipeline.Options{SkipMissing: true}, true
	}
	return nil, pipeline.Options{}, false
}
