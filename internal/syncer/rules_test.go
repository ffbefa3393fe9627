package syncer

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"deliverysync/internal/model"
)

func TestEvaluate(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	old := now.AddDate(0, 0, -10)
	paid := model.CanonicalOrder{ID: "1", Status: "processing", PaymentStatus: model.PaymentPaid, Total: decimal.NewFromInt(50), CreatedAt: &old}

	tests := []struct {
		name  string
		rules []model.SyncRule
		order model.CanonicalOrder
		ok    bool
	}{
		{"no rules", nil, paid, true},
		{"empty allow list", []model.SyncRule{{Type: model.RuleStatusFilter, Active: true}}, paid, true},
		{"status rejected", []model.SyncRule{{Type: model.RuleStatusFilter, Active: true, AllowedStatuses: []string{"completed"}}}, paid, false},
		{"status case-insensitive", []model.SyncRule{{Type: model.RuleStatusFilter, Active: true, AllowedStatuses: []string{"PROCESSING"}}}, paid, true},
		{"payment required", []model.SyncRule{{Type: model.RulePaymentFilter, Active: true, RequirePayment: true}}, model.CanonicalOrder{PaymentStatus: model.PaymentPending}, false},
		{"too old", []model.SyncRule{{Type: model.RuleDateFilter, Active: true, MaxAgeDays: 7}}, paid, false},
		{"missing created-at passes", []model.SyncRule{{Type: model.RuleDateFilter, Active: true, MaxAgeDays: 7}}, model.CanonicalOrder{}, true},
		{"below minimum", []model.SyncRule{{Type: model.RuleValueFilter, Active: true, MinValue: decimal.NewFromInt(100)}}, paid, false},
		{"equal to minimum", []model.SyncRule{{Type: model.RuleValueFilter, Active: true, MinValue: decimal.NewFromInt(50)}}, paid, true},
		{"inactive ignored", []model.SyncRule{{Type: model.RuleValueFilter, MinValue: decimal.NewFromInt(100)}}, paid, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ok, _ := Evaluate(tc.rules, tc.order, now)
			assert.Equal(t, tc.ok, ok)
		})
	}
}

func TestEvaluateShortCircuitsInPriorityOrder(t *testing.T) {
	rules := []model.SyncRule{
		{Name: "value", Type: model.RuleValueFilter, Active: true, Priority: 20, MinValue: decimal.NewFromInt(1000)},
		{Name: "paid", Type: model.RulePaymentFilter, Active: true, Priority: 10, RequirePayment: true},
	}
	ok, reason := Evaluate(rules, model.CanonicalOrder{PaymentStatus: model.PaymentPending}, time.Now())
	assert.False(t, ok)
	assert.Contains(t, reason, `"paid"`)
}
