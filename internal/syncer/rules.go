package syncer

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"deliverysync/internal/model"
)

// Evaluate runs active rules in ascending priority and stops at the first rejection.
func Evaluate(rules []model.SyncRule, order model.CanonicalOrder, now time.Time) (bool, string) {
	active := make([]model.SyncRule, 0, len(rules))
	for _, r := range rules {
		if r.Active {
			active = append(active, r)
		}
	}
	slices.SortStableFunc(active, func(a, b model.SyncRule) int { return a.Priority - b.Priority })
	for _, r := range active {
		if ok, reason := check(r, order, now); !ok {
			return false, fmt.Sprintf("rule %q: %s", r.Name, reason)
		}
	}
	return true, ""
}

func check(r model.SyncRule, o model.CanonicalOrder, now time.Time) (bool, string) {
	switch r.Type {
	case model.RuleStatusFilter:
		if len(r.AllowedStatuses) == 0 {
			return true, ""
		}
		for _, s := range r.AllowedStatuses {
			if strings.EqualFold(s, o.Status) {
				return true, ""
			}
		}
		return false, "status " + o.Status + " not allowed"
	case model.RulePaymentFilter:
		if r.RequirePayment && o.PaymentStatus != model.PaymentPaid {
			return false, "order not paid"
		}
	case model.RuleDateFilter:
		if r.MaxAgeDays > 0 && o.CreatedAt != nil && now.Sub(*o.CreatedAt) > time.Duration(r.MaxAgeDays)*24*time.Hour {
			return false, fmt.Sprintf("older than %d days", r.MaxAgeDays)
		}
	case model.RuleValueFilter:
		if o.Total.LessThan(r.MinValue) {
			return false, "total below " + r.MinValue.String()
		}
	}
	return true, ""
}
