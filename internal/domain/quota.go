// Package domain contains core business types and interfaces.
//
// This file defines the quota decision: given a limit, the current count and
// the requested amount, is the action allowed and which pool pays for it.
package domain

// Coverage names the pool that pays for a request.
type Coverage string

const (
	CoveredByUnlimited Coverage = "unlimited"
	CoveredByAllowance Coverage = "allowance"
	CoveredByCredit    Coverage = "credit"
	CoveredByNone      Coverage = "none"
)

// MaxUsageAmount bounds a single check or commit.
const MaxUsageAmount int64 = 1_000_000

// UsageCheckResult is the answer of the quota gate.
//
// For minutes, Allowed is true when either the monthly allowance or the
// top-up credit covers the request. MonthlyAllowed and CreditAllowed say
// which, so a caller can warn the user before paid credit is consumed.
type UsageCheckResult struct {
	UsageType      UsageType `json:"usage_type"`
	Allowed        bool      `json:"allowed"`
	CurrentUsage   int64     `json:"current_usage"`
	LimitValue     int64     `json:"limit_value"`
	Remaining      int64     `json:"remaining"` // -1 when unlimited
	IsUnlimited    bool      `json:"is_unlimited"`
	MonthlyAllowed bool      `json:"monthly_allowed"`
	CreditAllowed  bool      `json:"credit_allowed"`
	CreditBalance  int64     `json:"credit_balance"`
	CoveredBy      Coverage  `json:"covered_by"`
	PlanKey        PlanKey   `json:"plan_key"`
}

// EvaluateQuota decides a quota check. credit is only consulted for minutes;
// pass 0 for other types.
func EvaluateQuota(t UsageType, limit, current, requested, credit int64) UsageCheckResult {
	res := UsageCheckResult{
		UsageType:     t,
		CurrentUsage:  current,
		LimitValue:    limit,
		CreditBalance: credit,
	}

	if limit == Unlimited {
		res.Allowed = true
		res.IsUnlimited = true
		res.MonthlyAllowed = true
		res.Remaining = Unlimited
		res.CoveredBy = CoveredByUnlimited
		return res
	}

	// Compared by subtraction so a huge request cannot wrap around.
	remaining := max(limit-current, 0)
	res.Remaining = remaining
	res.MonthlyAllowed = requested <= remaining

	if t == UsageMinutes && !res.MonthlyAllowed && credit > 0 {
		// Whatever the allowance cannot cover must fit in the credit balance.
		res.CreditAllowed = requested-remaining <= credit
	}

	switch {
	case res.MonthlyAllowed:
		res.Allowed = true
		res.CoveredBy = CoveredByAllowance
	case res.CreditAllowed:
		res.Allowed = true
		res.CoveredBy = CoveredByCredit
	default:
		res.CoveredBy = CoveredByNone
	}
	return res
}

// UsageSummary is a user's standing across every usage type.
type UsageSummary struct {
	PlanKey PlanKey            `json:"plan_key"`
	Plan    Plan               `json:"plan"`
	Usage   []UsageCheckResult `json:"usage"`
	Credit  CreditBalance      `json:"credit"`
}
