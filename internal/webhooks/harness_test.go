package webhooks

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"deliverysync/internal/delivery"
	"deliverysync/internal/integrations"
	"deliverysync/internal/integrations/generic"
	"deliverysync/internal/integrations/marketplace"
	"deliverysync/internal/integrations/shopify"
	"deliverysync/internal/model"
	"deliverysync/internal/pipeline"
	"deliverysync/internal/store"
)

type harness struct {
	store     store.Store
	processor *Processor
	ingestor  *Ingestor
}

var (
	marketConn = model.PlatformConnection{ID: "p-market", Name: "marketplace", Type: model.PlatformMarketplace, Active: true, WebhookSecret: "m-secret"}
	shopConn   = model.PlatformConnection{ID: "p-shop", Name: "shopify-like", Type: model.PlatformShopify, Active: true, WebhookSecret: "s-secret"}
	openConn   = model.PlatformConnection{ID: "p-open", Name: "open", Type: model.PlatformGeneric, Active: true}
	offConn    = model.PlatformConnection{ID: "p-off", Name: "retired", Type: model.PlatformGeneric, Active: false}
)

func newHarness(t *testing.T, s store.Store) *harness {
	t.Helper()
	ctx := context.Background()
	for _, c := range []model.PlatformConnection{marketConn, shopConn, openConn, offConn} {
		require.NoError(t, s.UpsertPlatform(ctx, c))
	}
	reg := integrations.NewRegistry(generic.New(nil), marketplace.New(nil, 0), shopify.New(nil, 0))
	log := zap.NewNop()
	pl := pipeline.New(s, delivery.NewMachine(s, nil, log), pipeline.Config{BaseFee: decimal.NewFromInt(100)}, log)
	proc := &Processor{Store: s, Registry: reg, Pipeline: pl, Log: log}
	return &harness{
		store:     s,
		processor: proc,
		ingestor:  &Ingestor{Store: s, Registry: reg, Verifier: Verifier{Log: log}, Processor: proc, Log: log},
	}
}
